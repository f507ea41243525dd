//go:build linux

package resource

import "golang.org/x/sys/unix"

func fileDescriptorLimits() (soft, hard uint64, err error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, 0, err
	}
	return rlim.Cur, rlim.Max, nil
}

// batchIOAvailable is true on every Linux kernel new enough to run this
// binary: sendmmsg/recvmmsg have been present since 3.0. Nothing probes the
// syscall at run time; the pipeline's Linux sender issues one sendto per
// packet whatever this reports.
func batchIOAvailable() bool { return true }
