//go:build !linux

package pipeline

import (
	"net"

	"scancore/internal/codec"
)

type noRawReceiver struct{}

func newRawReceiver(codec.Family) (rawReceiver, error) { return nil, errUnsupported }

func (noRawReceiver) ReadFrom([]byte) (int, net.IP, error) { return 0, nil, errUnsupported }
func (noRawReceiver) Close() error                          { return nil }
