package eventbus

import "testing"

func TestPublishDeliversToMatchingSubscriber(t *testing.T) {
	b := New()
	sub := b.Subscribe(4, PortFound)
	defer sub.Close()

	other := b.Subscribe(4, Warning)
	defer other.Close()

	b.Publish(Event{Kind: PortFound, Payload: 80})
	b.Publish(Event{Kind: Warning, Payload: "slow"})

	select {
	case ev := <-sub.Events():
		if ev.Kind != PortFound {
			t.Errorf("got kind %v, want PortFound", ev.Kind)
		}
	default:
		t.Fatal("expected a buffered PortFound event")
	}

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected second event on filtered subscriber: %v", ev)
	default:
	}
}

func TestSubscribeAllKindsWithNoFilter(t *testing.T) {
	b := New()
	sub := b.Subscribe(4)
	defer sub.Close()

	b.Publish(Event{Kind: ScanStarted})
	b.Publish(Event{Kind: ScanCompleted})

	count := 0
	for i := 0; i < 2; i++ {
		<-sub.Events()
		count++
	}
	if count != 2 {
		t.Errorf("got %d events, want 2", count)
	}
}

func TestPublishDoesNotBlockOnFullBuffer(t *testing.T) {
	b := New()
	sub := b.Subscribe(1, Warning)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Kind: Warning, Payload: i})
		}
		close(done)
	}()
	<-done
}

func TestCloseStopsDelivery(t *testing.T) {
	b := New()
	sub := b.Subscribe(4, Warning)
	b.Close()
	if _, ok := <-sub.Events(); ok {
		t.Error("expected closed channel after Bus.Close")
	}
}
