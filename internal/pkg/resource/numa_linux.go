//go:build linux

package resource

import "os"

// numaNodeCount counts entries under /sys/devices/system/node matching
// "node<N>". A single-node or non-NUMA host (the common case) returns 1.
func numaNodeCount() int {
	entries, err := os.ReadDir("/sys/devices/system/node")
	if err != nil {
		return 1
	}
	count := 0
	for _, e := range entries {
		name := e.Name()
		if len(name) > 4 && name[:4] == "node" {
			count++
		}
	}
	if count == 0 {
		return 1
	}
	return count
}
