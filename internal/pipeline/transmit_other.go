//go:build !linux

package pipeline

import (
	"fmt"
	"net"
)

// noRawSender stands in on platforms without raw-socket + IP_HDRINCL
// support wired up; the scan pipeline's evasion/crafting features are
// Linux-only the way the teacher's netraw package already was.
type noRawSender struct{}

func newRawSenderV4() (rawSender, error) { return nil, errUnsupported }
func newRawSenderV6() (rawSender, error) { return nil, errUnsupported }

var errUnsupported = fmt.Errorf("raw-socket transmission is only supported on linux")

func (noRawSender) Send(net.IP, []byte) error                     { return errUnsupported }
func (noRawSender) SendBatch([]net.IP, [][]byte) (int, error)     { return 0, errUnsupported }
func (noRawSender) Close() error                                  { return nil }
