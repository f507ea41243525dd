package codec

import "fmt"

// BuildError is returned by the build_* family when the caller asked for
// something the wire format cannot represent (oversized TCP options, an MTU
// that isn't a multiple of 8, ...). It never panics the hot path.
type BuildError struct {
	Op  string
	Msg string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("codec: build %s: %s", e.Op, e.Msg)
}

// ParseError is returned by Parse on truncated headers, bad IHL, bad L4
// length, or an IPv6 payload length that overruns the packet. Parse does
// not walk an IPv6 extension-header chain: past at most one Fragment
// header, an unrecognized next header yields L4Unknown, not a ParseError.
// Parse errors are not fatal on the hot path: internal/pipeline's receive
// loop drops them without counting them.
type ParseError struct {
	Op  string
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("codec: parse %s: %s", e.Op, e.Msg)
}
