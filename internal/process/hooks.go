package process

import (
	"fmt"
	"log"
	"sync"
	"syscall"

	"github.com/ngenohkevin/procdeck/internal/events"
	"github.com/ngenohkevin/procdeck/internal/metrics"
)

// hookRunner executes lifecycle hooks as pty children whose output goes to
// the owning process's log. Hooks are advisory: their failures are logged
// and never returned.
type hookRunner struct {
	m *Manager

	mu   sync.Mutex
	live map[string]*terminal
}

func newHookRunner(m *Manager) *hookRunner {
	return &hookRunner{m: m, live: make(map[string]*terminal)}
}

// run executes command to completion and returns its exit code
func (h *hookRunner) run(owner string, phase HookPhase, command string) int {
	key := HookKey(owner, phase)

	h.m.appendLog(owner, fmt.Sprintf("\r\n[%s] Executing: %s\r\n", phase, command))
	h.m.publish(events.TypeHookStart, owner, HookEvent{ID: owner, Phase: phase, HookKey: key})

	code := h.exec(owner, key, phase, command)

	h.m.appendLog(owner, fmt.Sprintf("\r\n[%s] Completed with exit code: %d\r\n", phase, code))
	h.m.publish(events.TypeHookEnd, owner, HookEvent{ID: owner, Phase: phase, HookKey: key, ExitCode: &code})

	outcome := "success"
	if code != 0 {
		outcome = "failure"
		log.Printf("[hook] %s exited with code %d", key, code)
	}
	metrics.HookRuns.WithLabelValues(string(phase), outcome).Inc()
	return code
}

func (h *hookRunner) exec(owner, key string, phase HookPhase, command string) int {
	t, err := startTerminal(h.m.spawnSpec(command))
	if err != nil {
		log.Printf("[hook] failed to start %s: %v", key, err)
		h.m.appendLog(owner, fmt.Sprintf("\r\n[%s] Failed to start: %v\r\n", phase, err))
		return -1
	}

	h.mu.Lock()
	h.live[key] = t
	h.mu.Unlock()

	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		t.pump(func(chunk []byte) {
			h.m.appendLog(owner, string(chunk))
		})
	}()

	st := t.wait()
	t.settle(pumped, h.m.opts.DrainTimeout)
	close(t.done)

	h.mu.Lock()
	if h.live[key] == t {
		delete(h.live, key)
	}
	h.mu.Unlock()

	if st.signal != 0 {
		return 128 + st.signal
	}
	return st.code
}

// write forwards data to the stdin of a running hook
func (h *hookRunner) write(key string, data []byte) error {
	h.mu.Lock()
	t, ok := h.live[key]
	h.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: no running hook %s", ErrNotFound, key)
	}
	if _, err := t.Write(data); err != nil {
		return fmt.Errorf("failed to write to hook %s: %w", key, err)
	}
	return nil
}

// cancel terminates and forgets the running hooks of owner
func (h *hookRunner) cancel(owner string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, phase := range []HookPhase{PhaseBeforeStop, PhaseAfterStop} {
		key := HookKey(owner, phase)
		if t, ok := h.live[key]; ok {
			_ = t.signal(syscall.SIGTERM)
			delete(h.live, key)
			n++
		}
	}
	return n
}

func (h *hookRunner) cancelAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, t := range h.live {
		_ = t.signal(syscall.SIGTERM)
		delete(h.live, key)
	}
}

// keys returns the keys of the running hooks
func (h *hookRunner) keys() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]string, 0, len(h.live))
	for key := range h.live {
		out = append(out, key)
	}
	return out
}
