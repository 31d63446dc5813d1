package metrics

import (
	"log/slog"
	"os"
	"runtime"
	"sync"

	"github.com/cwrk-planet/collab-relay/internal/domain"

	"github.com/shirou/gopsutil/v3/process"
)

var (
	procOnce sync.Once
	proc     *process.Process
)

func self() *process.Process {
	procOnce.Do(func() {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			slog.Warn("metrics: process handle unavailable", "err", err)
			return
		}
		proc = p
	})
	return proc
}

// ReadMemory samples the Go heap and the resident set size of the process.
// RSS is zero when the platform does not expose it.
func ReadMemory() domain.MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	out := domain.MemoryStats{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		HeapInuse:  ms.HeapInuse,
	}
	if p := self(); p != nil {
		if mi, err := p.MemoryInfo(); err == nil && mi != nil {
			out.RSS = mi.RSS
		}
	}
	return out
}

// ReadMemoryAfterGC forces a collection first so that consecutive samples
// are comparable; the leak check of the load harness relies on it.
func ReadMemoryAfterGC() domain.MemoryStats {
	runtime.GC()
	return ReadMemory()
}
