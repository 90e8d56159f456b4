package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// Usage is the aggregated resource usage of every process running under one program name.
type Usage struct {
	Name       string    `json:"name"`
	PIDs       []int     `json:"pids"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	NumThreads int32     `json:"num_threads"`
	Timestamp  time.Time `json:"timestamp"`
}

// UsageSampler reads CPU and memory figures for monitored programs on demand
// and mirrors the latest sample into gauges.
type UsageSampler struct {
	mu   sync.RWMutex
	last map[string]Usage

	cpu     *prometheus.GaugeVec
	memory  *prometheus.GaugeVec
	threads *prometheus.GaugeVec
}

func NewUsageSampler() *UsageSampler {
	return &UsageSampler{
		last: make(map[string]Usage),
		cpu: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskpilot",
			Subsystem: "program",
			Name:      "cpu_percent",
			Help:      "CPU usage summed over the program's processes.",
		}, []string{"name"}),
		memory: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskpilot",
			Subsystem: "program",
			Name:      "memory_mb",
			Help:      "Resident memory in MB summed over the program's processes.",
		}, []string{"name"}),
		threads: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taskpilot",
			Subsystem: "program",
			Name:      "num_threads",
			Help:      "Thread count summed over the program's processes.",
		}, []string{"name"}),
	}
}

// Register adds the usage gauges to r. Already registered collectors are ignored.
func (s *UsageSampler) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{s.cpu, s.memory, s.threads} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Sample reads usage for pids and stores it under name. PIDs that vanished in the meantime are skipped.
func (s *UsageSampler) Sample(ctx context.Context, name string, pids []int) (Usage, error) {
	u := Usage{Name: name, Timestamp: time.Now()}
	for _, pid := range pids {
		if pid <= 0 {
			continue
		}
		p, err := process.NewProcessWithContext(ctx, int32(pid))
		if err != nil {
			slog.Debug("usage: process gone", "name", name, "pid", pid, "error", err)
			continue
		}
		mem, err := p.MemoryInfoWithContext(ctx)
		if err != nil {
			slog.Debug("usage: memory info", "name", name, "pid", pid, "error", err)
			continue
		}
		cpu, err := p.CPUPercentWithContext(ctx)
		if err != nil {
			cpu = 0
		}
		threads, err := p.NumThreadsWithContext(ctx)
		if err != nil {
			threads = 0
		}
		u.PIDs = append(u.PIDs, pid)
		u.CPUPercent += cpu
		u.MemoryMB += float64(mem.RSS) / 1024 / 1024
		u.NumThreads += threads
	}
	if len(pids) > 0 && len(u.PIDs) == 0 {
		return Usage{}, fmt.Errorf("usage %s: no readable process among %d pids", name, len(pids))
	}

	s.mu.Lock()
	s.last[name] = u
	s.mu.Unlock()

	s.cpu.WithLabelValues(name).Set(u.CPUPercent)
	s.memory.WithLabelValues(name).Set(u.MemoryMB)
	s.threads.WithLabelValues(name).Set(float64(u.NumThreads))
	return u, nil
}

// Get returns the latest sample for name.
func (s *UsageSampler) Get(name string) (Usage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.last[name]
	return u, ok
}

// All returns the latest samples ordered by name.
func (s *UsageSampler) All() []Usage {
	s.mu.RLock()
	out := make([]Usage, 0, len(s.last))
	for _, u := range s.last {
		out = append(out, u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Retain drops samples and gauges for names not in keep.
func (s *UsageSampler) Retain(keep map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name := range s.last {
		if _, ok := keep[name]; ok {
			continue
		}
		delete(s.last, name)
		s.cpu.DeleteLabelValues(name)
		s.memory.DeleteLabelValues(name)
		s.threads.DeleteLabelValues(name)
	}
}
