//go:build !linux

package resource

import "syscall"

func fileDescriptorLimits() (soft, hard uint64, err error) {
	var rlim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, 0, err
	}
	return uint64(rlim.Cur), uint64(rlim.Max), nil
}

// batchIOAvailable is false outside Linux: sendmmsg/recvmmsg are
// Linux-specific syscalls, so the transmitter always loops sendmsg there.
func batchIOAvailable() bool { return false }
