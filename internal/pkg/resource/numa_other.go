//go:build !linux

package resource

// numaNodeCount: NUMA topology discovery is Linux-specific in this
// codebase (sysfs-based); other platforms are treated as single-node.
func numaNodeCount() int { return 1 }
