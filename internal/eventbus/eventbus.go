// Package eventbus is the scan core's sole output interface: every
// externally visible happening — progress, discovered ports, warnings —
// is published here and consumed by whatever TUI or writer the caller
// wires up. No component in codec/correlator/ratecontrol/pipeline/detection
// writes to stdout directly.
package eventbus

import "sync"

// Kind names one event type the bus carries.
type Kind uint8

const (
	ScanStarted Kind = iota
	StageChanged
	ProgressUpdate
	HostDiscovered
	PortFound
	ServiceDetected
	Warning
	Error
	ScanCompleted
)

func (k Kind) String() string {
	switch k {
	case ScanStarted:
		return "scan_started"
	case StageChanged:
		return "stage_changed"
	case ProgressUpdate:
		return "progress_update"
	case HostDiscovered:
		return "host_discovered"
	case PortFound:
		return "port_found"
	case ServiceDetected:
		return "service_detected"
	case Warning:
		return "warning"
	case Error:
		return "error"
	case ScanCompleted:
		return "scan_completed"
	default:
		return "unknown"
	}
}

// Event is one published occurrence. Payload's concrete type is determined
// by Kind — ScanResult for PortFound, Accounting for ProgressUpdate, a
// plain string for Warning/StageChanged, an error for Error, and so on;
// subscribers type-assert based on Kind.
type Event struct {
	Kind    Kind
	Payload any
}

// Bus is a typed pub/sub fan-out. It is built on plain channels and a
// mutex rather than an external library: nothing in the reference stack
// this module draws on ships a pub/sub primitive, and the shape needed
// here (N subscribers, non-blocking publish, Kind-filtered subscription)
// is a dozen lines of stdlib concurrency — not a case that justifies a new
// ecosystem dependency.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*subscription
	next int
}

type subscription struct {
	kinds map[Kind]bool // empty means "all kinds"
	ch    chan Event
}

// New creates an empty bus. Subscribers should be registered before the
// scan that will publish to it starts.
func New() *Bus {
	return &Bus{subs: make(map[int]*subscription)}
}

// Subscription is returned by Subscribe; Events delivers the filtered
// stream, and Close unregisters and stops delivery.
type Subscription struct {
	id     int
	bus    *Bus
	events chan Event
}

func (s *Subscription) Events() <-chan Event { return s.events }

func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if sub, ok := s.bus.subs[s.id]; ok {
		close(sub.ch)
		delete(s.bus.subs, s.id)
	}
}

// Subscribe registers a new listener. With no kinds given, every event is
// delivered; otherwise only the named kinds are. The channel is buffered
// so a slow consumer doesn't stall a hot send loop; a full buffer drops
// the event rather than blocking the publisher.
func (b *Bus) Subscribe(bufferSize int, kinds ...Kind) *Subscription {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	filter := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		filter[k] = true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	sub := &subscription{kinds: filter, ch: make(chan Event, bufferSize)}
	b.subs[id] = sub
	return &Subscription{id: id, bus: b, events: sub.ch}
}

// Publish fans out ev to every matching subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if len(sub.kinds) > 0 && !sub.kinds[ev.Kind] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Close shuts down every subscriber's channel. Call once the scan (and all
// its publishers) has finished.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
