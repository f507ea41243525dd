// Package resource detects the host's capacity for raw-socket scanning:
// file-descriptor headroom, batch syscall availability, NUMA node count,
// and IPv6 reachability, so the pipeline can clamp --batch-size/hostgroup
// before it runs out of sockets mid-scan instead of crashing.
package resource

import (
	"net"
	"runtime"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"scancore/internal/pkg/logger"
)

// Capabilities is a point-in-time snapshot of what this host can sustain.
type Capabilities struct {
	FDLimitSoft   uint64
	FDLimitHard   uint64
	BatchIOAvail  bool // sendmmsg/recvmmsg present (linux only)
	NUMANodes     int
	IPv6Available bool
	CPUCores      int
	MemoryTotal   uint64
}

// Detect gathers the current host's capabilities. Every sub-probe degrades
// to a conservative default on error rather than failing the whole scan —
// a monitoring blind spot is not a reason to refuse to run.
func Detect() Capabilities {
	caps := Capabilities{CPUCores: runtime.NumCPU()}

	if soft, hard, err := fileDescriptorLimits(); err != nil {
		logger.LogSystemEvent("resource", "fd_limit", err.Error(), logger.WarnLevel, nil)
		caps.FDLimitSoft, caps.FDLimitHard = 1024, 1024
	} else {
		caps.FDLimitSoft, caps.FDLimitHard = soft, hard
	}

	caps.BatchIOAvail = batchIOAvailable()
	caps.NUMANodes = numaNodeCount()
	caps.IPv6Available = ipv6Available()

	if vm, err := mem.VirtualMemory(); err != nil {
		logger.LogSystemEvent("resource", "memory_probe", err.Error(), logger.WarnLevel, nil)
	} else {
		caps.MemoryTotal = vm.Total
	}

	if info, err := cpu.Info(); err == nil && len(info) > 0 {
		cores := 0
		for _, c := range info {
			cores += int(c.Cores)
		}
		if cores > 0 {
			caps.CPUCores = cores
		}
	}

	return caps
}

// ClampBatchSize reduces requested when the FD budget can't sustain it:
// each in-flight packet in a sendmmsg/recvmmsg batch holds one socket, so a
// batch larger than roughly a quarter of the soft limit risks EMFILE under
// concurrent hostgroup activity.
func (c Capabilities) ClampBatchSize(requested int) int {
	budget := int(c.FDLimitSoft / 4)
	if budget < 1 {
		budget = 1
	}
	if requested > budget {
		return budget
	}
	return requested
}

// ClampHostgroup reduces a requested --max-hostgroup the same way.
func (c Capabilities) ClampHostgroup(requested int) int {
	budget := int(c.FDLimitSoft / 8)
	if budget < 1 {
		budget = 1
	}
	if requested > budget {
		return budget
	}
	return requested
}

func ipv6Available() bool {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return false
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 == nil && ipnet.IP.IsGlobalUnicast() {
			return true
		}
	}
	return false
}
