package workers

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessStats is the snapshot served by the debug endpoint.
type ProcessStats struct {
	CPUPercent float64   `json:"cpu_percent"`
	MemPercent float32   `json:"mem_percent"`
	AllocMemMB uint64    `json:"alloc_mem_mb"`
	NumGC      uint32    `json:"num_gc"`
	Goroutines int       `json:"goroutines"`
	SampledAt  time.Time `json:"sampled_at"`
}

// StatsWorker samples the server's own process on a ticker and keeps the
// latest snapshot for the debug endpoint.
type StatsWorker struct {
	mu       sync.RWMutex
	log      *slog.Logger
	interval time.Duration
	latest   ProcessStats
}

func NewStatsWorker(log *slog.Logger, interval time.Duration) *StatsWorker {
	return &StatsWorker{log: log, interval: interval}
}

func (w *StatsWorker) Latest() ProcessStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.latest
}

func (w *StatsWorker) Run(ctx context.Context) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping stats sampling")
			return nil
		case <-ticker.C:
			w.sample(proc)
		}
	}
}

func (w *StatsWorker) sample(proc *process.Process) {
	cpu, err := proc.CPUPercent()
	if err != nil {
		w.log.Debug("Error while reading process cpu usage", "err", err)
		return
	}
	ram, err := proc.MemoryPercent()
	if err != nil {
		w.log.Debug("Error while reading process ram usage", "err", err)
		return
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	w.mu.Lock()
	w.latest = ProcessStats{
		CPUPercent: cpu,
		MemPercent: ram,
		AllocMemMB: mem.Alloc / 1024 / 1024,
		NumGC:      mem.NumGC,
		Goroutines: runtime.NumGoroutine(),
		SampledAt:  time.Now().UTC(),
	}
	w.mu.Unlock()
}
