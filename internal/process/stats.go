package process

import (
	"fmt"
	"time"

	psprocess "github.com/shirou/gopsutil/v4/process"

	"github.com/ngenohkevin/procdeck/internal/cache"
	"github.com/ngenohkevin/procdeck/internal/system"
)

// Stats returns resource usage of a running process. Results are cached
// briefly since sampling CPU usage is comparatively expensive.
func (m *Manager) Stats(id string) (*Stats, error) {
	key := cache.StatsKey(id)
	if st, found := m.stats.Get(key); found {
		return st, nil
	}

	m.mu.RLock()
	e, ok := m.registry.get(id)
	var pid int
	var started time.Time
	var t *terminal
	if ok && e.term != nil {
		t = e.term
		pid = t.pid
		started = e.startTime
	}
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if pid == 0 {
		return nil, fmt.Errorf("%w: %s is not running", ErrNotFound, id)
	}

	p, err := psprocess.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect pid %d: %w", pid, err)
	}

	cpuPercent, _ := p.CPUPercent()
	memPercent, _ := p.MemoryPercent()
	memInfo, _ := p.MemoryInfo()
	numThreads, _ := p.NumThreads()
	children, _ := p.Children()

	var memRSS uint64
	if memInfo != nil {
		memRSS = memInfo.RSS
	}

	st := &Stats{
		ID:         id,
		PID:        int32(pid),
		CPUPercent: cpuPercent,
		MemPercent: memPercent,
		MemRSS:     memRSS,
		NumThreads: numThreads,
		Children:   len(children),
		StartedAt:  started,
		Uptime:     system.FormatUptime(time.Since(started)),
	}

	// the process may have exited while it was sampled
	m.mu.RLock()
	if m.isCurrent(e, t) {
		m.stats.Set(key, st)
	}
	m.mu.RUnlock()
	return st, nil
}
