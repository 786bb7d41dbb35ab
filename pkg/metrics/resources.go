package metrics

import (
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v3/process"
)

// ResourceMonitor samples the resident set size of the current process and
// keeps the peak.
type ResourceMonitor struct {
	process *process.Process
	gauge   prometheus.Gauge

	mu   sync.Mutex
	peak uint64
}

// NewResourceMonitor watches the current process. gauge may be nil.
func NewResourceMonitor(gauge prometheus.Gauge) *ResourceMonitor {
	// A failed lookup leaves process nil and Sample reports zero.
	proc, _ := process.NewProcess(int32(os.Getpid()))
	return &ResourceMonitor{
		process: proc,
		gauge:   gauge,
	}
}

// Sample reads the current RSS, updates the peak and returns the current value.
func (rm *ResourceMonitor) Sample() uint64 {
	if rm.process == nil {
		return 0
	}
	memInfo, err := rm.process.MemoryInfo()
	if err != nil {
		return 0
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if memInfo.RSS > rm.peak {
		rm.peak = memInfo.RSS
		if rm.gauge != nil {
			rm.gauge.Set(float64(rm.peak))
		}
	}
	return memInfo.RSS
}

// Peak returns the highest RSS seen by Sample.
func (rm *ResourceMonitor) Peak() uint64 {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	return rm.peak
}
