package process

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ngenohkevin/procdeck/internal/cache"
	"github.com/ngenohkevin/procdeck/internal/events"
	"github.com/ngenohkevin/procdeck/internal/logbuf"
	"github.com/ngenohkevin/procdeck/internal/metrics"
	"github.com/ngenohkevin/procdeck/internal/store"
)

// Options configures how processes are spawned and stopped
type Options struct {
	Shell        string
	WorkDir      string
	Cols         uint16
	Rows         uint16
	StopTimeout  time.Duration
	PollInterval time.Duration
	DrainTimeout time.Duration
	LogCapacity  int
}

// DefaultOptions returns the options used when nothing is configured
func DefaultOptions() Options {
	return Options{
		Shell:        "bash",
		Cols:         80,
		Rows:         30,
		StopTimeout:  5 * time.Second,
		PollInterval: 100 * time.Millisecond,
		DrainTimeout: 500 * time.Millisecond,
		LogCapacity:  logbuf.DefaultCapacity,
	}
}

// Persister receives definition changes
type Persister interface {
	Schedule(snapshot store.SnapshotFunc)
	Flush() error
}

// Manager supervises pty-attached child processes
type Manager struct {
	opts  Options
	store Persister
	bus   *events.Bus
	logs  *logbuf.Buffer
	stats *cache.Cache[*Stats]
	hooks *hookRunner

	mu       sync.RWMutex
	registry *registry
	// stopping holds ids whose current exit was requested by a caller
	stopping map[string]struct{}
	closed   bool
}

// NewManager creates a new process manager
func NewManager(opts Options, persister Persister, bus *events.Bus) *Manager {
	defaults := DefaultOptions()
	if opts.Shell == "" {
		opts.Shell = defaults.Shell
	}
	opts.Shell = resolveShell(opts.Shell)
	if opts.WorkDir == "" {
		opts.WorkDir = defaultWorkDir()
	}
	if opts.Cols == 0 {
		opts.Cols = defaults.Cols
	}
	if opts.Rows == 0 {
		opts.Rows = defaults.Rows
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaults.StopTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaults.DrainTimeout
	}
	if bus == nil {
		bus = events.NewBus()
	}

	m := &Manager{
		opts:     opts,
		store:    persister,
		bus:      bus,
		logs:     logbuf.New(opts.LogCapacity),
		stats:    cache.New[*Stats](cache.DefaultStatsTTL),
		registry: newRegistry(),
		stopping: make(map[string]struct{}),
	}
	m.hooks = newHookRunner(m)
	return m
}

func resolveShell(shell string) string {
	if path, err := exec.LookPath(shell); err == nil {
		return path
	}
	log.Printf("[process] shell %q not found, falling back to /bin/sh", shell)
	return "/bin/sh"
}

func defaultWorkDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home
	}
	wd, _ := os.Getwd()
	return wd
}

// Bus returns the bus events are published on
func (m *Manager) Bus() *events.Bus {
	return m.bus
}

// List returns a snapshot of all processes in creation order
func (m *Manager) List() []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.list()
}

// Get returns a single process
func (m *Manager) Get(id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.registry.get(id)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e.record(), nil
}

// Summary counts processes per status
func (m *Manager) Summary() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s Summary
	for _, id := range m.registry.order {
		s.Total++
		switch m.registry.entries[id].status {
		case StatusRunning:
			s.Running++
		case StatusError:
			s.Error++
		default:
			s.Stopped++
		}
	}
	return s
}

// Logs returns a copy of the buffered output of a process
func (m *Manager) Logs(id string) ([]logbuf.Entry, error) {
	m.mu.RLock()
	_, ok := m.registry.get(id)
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return m.logs.Read(id), nil
}

// Restore registers persisted definitions as stopped processes. Ids that
// already exist are skipped. It returns the number of restored records.
func (m *Manager) Restore(defs []store.Definition) int {
	m.mu.Lock()
	restored := 0
	for _, d := range defs {
		e := &entry{def: definitionFromStore(d), status: StatusStopped}
		if m.registry.insert(e) {
			restored++
		}
	}
	m.mu.Unlock()

	if restored > 0 {
		m.publishList()
	}
	return restored
}

// Start creates a new process definition and spawns it
func (m *Manager) Start(req StartRequest) (Record, error) {
	if strings.TrimSpace(req.Command) == "" {
		return Record{}, fmt.Errorf("%w: command is required", ErrInvalid)
	}

	e := &entry{
		def: Definition{
			ID:         uuid.NewString(),
			Command:    req.Command,
			Args:       append([]string{}, req.Args...),
			BeforeStop: req.BeforeStop,
			AfterStop:  req.AfterStop,
		},
		status: StatusStopped,
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return Record{}, ErrClosed
	}
	m.registry.insert(e)
	m.mu.Unlock()

	rec, err := m.launch(e)
	if err != nil {
		m.mu.Lock()
		m.registry.remove(e.def.ID)
		m.mu.Unlock()
		m.logs.Drop(e.def.ID)
		return Record{}, err
	}

	log.Printf("[process] started %s (pid %d): %s", rec.ID, rec.PID, commandLine(rec.Command, rec.Args))
	m.scheduleSave()
	m.publishList()
	return rec, nil
}

// Stop runs the before-stop hook, terminates the process, waits for it to
// exit and runs the after-stop hook. It returns ErrNotFound when there is no
// live process. A stop whose wait times out still succeeds.
func (m *Manager) Stop(id string) error {
	e, ok := m.lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.op.Lock()
	defer e.op.Unlock()
	return m.stop(e)
}

func (m *Manager) stop(e *entry) error {
	id := e.def.ID

	m.mu.RLock()
	t := e.term
	def := e.def.clone()
	m.mu.RUnlock()
	if t == nil {
		return fmt.Errorf("%w: %s is not running", ErrNotFound, id)
	}

	began := time.Now()
	defer func() {
		metrics.StopDuration.Observe(time.Since(began).Seconds())
	}()

	if def.BeforeStop != "" {
		m.hooks.run(id, PhaseBeforeStop, def.BeforeStop)
	}

	m.mu.Lock()
	live := m.isCurrent(e, t)
	if live {
		m.stopping[id] = struct{}{}
	}
	m.mu.Unlock()

	if live {
		if err := t.signal(syscall.SIGTERM); err != nil {
			m.mu.Lock()
			delete(m.stopping, id)
			m.mu.Unlock()
			log.Printf("[process] failed to stop %s: %v", id, err)
			return err
		}
		if !m.awaitExit(t) {
			log.Printf("[process] %s did not exit within %v", id, m.opts.StopTimeout)
		}
	}

	if _, ok := m.lookup(id); ok && def.AfterStop != "" {
		m.hooks.run(id, PhaseAfterStop, def.AfterStop)
	}

	log.Printf("[process] stopped %s", id)
	return nil
}

// awaitExit polls until the exit of t has been handled or the stop timeout
// elapses
func (m *Manager) awaitExit(t *terminal) bool {
	deadline := time.NewTimer(m.opts.StopTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		if t.exited() {
			return true
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return t.exited()
		}
	}
}

// Restart stops the process if it is running, waits for the stop to finish,
// clears its logs and spawns it again from its current definition.
func (m *Manager) Restart(id string) (Record, error) {
	e, ok := m.lookup(id)
	if !ok {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	e.op.Lock()
	defer e.op.Unlock()

	m.mu.RLock()
	old := e.term
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return Record{}, ErrClosed
	}

	if err := m.stop(e); err != nil && !errors.Is(err, ErrNotFound) {
		return Record{}, err
	}
	if old != nil && !old.exited() {
		// never leave two live processes behind one id
		log.Printf("[process] %s ignored SIGTERM, sending SIGKILL", id)
		if err := old.signal(syscall.SIGKILL); err == nil {
			m.awaitExit(old)
		}
	}

	if _, ok := m.lookup(id); !ok {
		return Record{}, fmt.Errorf("%w: %s was removed", ErrNotFound, id)
	}

	m.logs.Clear(id)
	m.stats.Delete(cache.StatsKey(id))

	rec, err := m.launch(e)
	if errors.Is(err, ErrClosed) {
		return Record{}, err
	}
	if err != nil {
		m.mu.Lock()
		e.status = StatusError
		m.mu.Unlock()
		m.publishList()
		return Record{}, err
	}

	log.Printf("[process] restarted %s (pid %d)", id, rec.PID)
	m.publishList()
	return rec, nil
}

// Remove deletes a process, its logs and its hooks. A live process is
// signalled but not waited for. It reports whether anything was removed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	e, found := m.registry.remove(id)
	if found && e.term != nil {
		// the exit handler ignores entries that are no longer registered,
		// so no intentional-stop marker is needed here
		if err := e.term.signal(syscall.SIGTERM); err != nil {
			log.Printf("[process] failed to signal removed process %s: %v", id, err)
		}
	}
	delete(m.stopping, id)
	dropped := m.logs.Drop(id)
	m.mu.Unlock()

	hooks := m.hooks.cancel(id)
	if !found && !dropped && hooks == 0 {
		return false
	}

	m.stats.Delete(cache.StatsKey(id))
	log.Printf("[process] removed %s", id)
	m.scheduleSave()
	m.publishList()
	return true
}

// Update changes the stored definition. A running process keeps its
// original command until it is restarted.
func (m *Manager) Update(id string, req StartRequest) (Record, error) {
	if strings.TrimSpace(req.Command) == "" {
		return Record{}, fmt.Errorf("%w: command is required", ErrInvalid)
	}

	m.mu.Lock()
	e, ok := m.registry.get(id)
	if !ok {
		m.mu.Unlock()
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.def.Command = req.Command
	e.def.Args = append([]string{}, req.Args...)
	e.def.BeforeStop = req.BeforeStop
	e.def.AfterStop = req.AfterStop
	rec := e.record()
	m.mu.Unlock()

	m.scheduleSave()
	m.publishList()
	return rec, nil
}

// WriteInput sends raw bytes to the terminal of a live process
func (m *Manager) WriteInput(id string, data []byte) error {
	m.mu.RLock()
	var t *terminal
	if e, ok := m.registry.get(id); ok {
		t = e.term
	}
	m.mu.RUnlock()

	if t == nil {
		return fmt.Errorf("%w: %s is not running", ErrNotFound, id)
	}
	if _, err := t.Write(data); err != nil {
		return fmt.Errorf("failed to write to %s: %w", id, err)
	}
	return nil
}

// WriteHookInput sends raw bytes to a running hook
func (m *Manager) WriteHookInput(hookKey string, data []byte) error {
	return m.hooks.write(hookKey, data)
}

// Shutdown terminates every live process and hook without running hooks,
// then flushes any pending save.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	var live []*terminal
	for _, id := range m.registry.order {
		if t := m.registry.entries[id].term; t != nil {
			m.stopping[id] = struct{}{}
			live = append(live, t)
		}
	}
	m.mu.Unlock()

	m.hooks.cancelAll()
	m.stats.Close()
	for _, t := range live {
		if err := t.signal(syscall.SIGTERM); err != nil {
			log.Printf("[process] shutdown: %v", err)
		}
	}

	for _, t := range live {
		select {
		case <-t.done:
		case <-ctx.Done():
			_ = t.signal(syscall.SIGKILL)
		}
	}

	if m.store == nil {
		return nil
	}
	return m.store.Flush()
}

// launch spawns the current definition of e and starts watching it
func (m *Manager) launch(e *entry) (Record, error) {
	m.mu.RLock()
	def := e.def.clone()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return Record{}, ErrClosed
	}

	t, err := startTerminal(m.spawnSpec(commandLine(def.Command, def.Args)))
	if err != nil {
		metrics.ProcessStarts.WithLabelValues("failure").Inc()
		log.Printf("[process] failed to start %s: %v", def.ID, err)
		return Record{}, err
	}
	metrics.ProcessStarts.WithLabelValues("success").Inc()

	m.mu.Lock()
	if m.closed {
		// Shutdown already collected the live processes
		m.mu.Unlock()
		_ = t.signal(syscall.SIGKILL)
		go m.watch(e, t)
		return Record{}, ErrClosed
	}
	if cur, ok := m.registry.get(def.ID); !ok || cur != e {
		m.mu.Unlock()
		_ = t.signal(syscall.SIGKILL)
		go m.watch(e, t)
		return Record{}, fmt.Errorf("%w: %s was removed", ErrNotFound, def.ID)
	}
	delete(m.stopping, def.ID)
	e.term = t
	e.status = StatusRunning
	e.startTime = time.Now()
	rec := e.record()
	m.mu.Unlock()

	go m.watch(e, t)
	return rec, nil
}

func (m *Manager) spawnSpec(line string) spawnSpec {
	return spawnSpec{
		shell: m.opts.Shell,
		line:  line,
		dir:   m.opts.WorkDir,
		cols:  m.opts.Cols,
		rows:  m.opts.Rows,
	}
}

// watch forwards output of t into the log buffer and handles its exit
func (m *Manager) watch(e *entry, t *terminal) {
	id := e.def.ID

	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		t.pump(func(chunk []byte) {
			m.appendLog(id, string(chunk))
		})
	}()

	st := t.wait()
	t.settle(pumped, m.opts.DrainTimeout)
	m.handleExit(e, t, st)
	close(t.done)
}

// handleExit classifies the exit of t and updates the record if t is still
// the process behind it
func (m *Manager) handleExit(e *entry, t *terminal, st exitStatus) {
	id := e.def.ID

	status := StatusError
	if st.clean() {
		status = StatusStopped
	}

	m.mu.Lock()
	current := m.isCurrent(e, t)
	if current {
		if _, intentional := m.stopping[id]; intentional {
			status = StatusStopped
			delete(m.stopping, id)
		}
		e.status = status
		e.term = nil
		e.startTime = time.Time{}
	}
	m.mu.Unlock()

	log.Printf("[process] %s (pid %d) exited with code %d signal %d: %s", id, t.pid, st.code, st.signal, status)
	m.publish(events.TypeExit, id, ExitEvent{ID: id, Code: st.code, Signal: st.signal, Status: status})

	if !current {
		return
	}
	metrics.ProcessExits.WithLabelValues(string(status)).Inc()
	m.stats.Delete(cache.StatsKey(id))
	m.scheduleSave()
	m.publishList()
}

// isCurrent reports whether t is the live process of a registered e.
// Callers hold m.mu.
func (m *Manager) isCurrent(e *entry, t *terminal) bool {
	cur, ok := m.registry.get(e.def.ID)
	return ok && cur == e && e.term == t
}

func (m *Manager) lookup(id string) (*entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.get(id)
}

// appendLog buffers and publishes output for a registered process. Output
// for removed processes is discarded.
func (m *Manager) appendLog(id, chunk string) {
	m.mu.RLock()
	if _, ok := m.registry.get(id); !ok {
		m.mu.RUnlock()
		return
	}
	le := m.logs.Append(logbuf.Entry{ID: id, Stream: logbuf.StreamStdout, Chunk: chunk})
	m.mu.RUnlock()

	m.publish(events.TypeLog, id, le)
}

func (m *Manager) publish(t events.Type, id string, data interface{}) {
	m.bus.Publish(events.Event{Type: t, ProcessID: id, Data: data})
}

func (m *Manager) publishList() {
	list := m.List()

	counts := map[Status]int{StatusRunning: 0, StatusStopped: 0, StatusError: 0}
	for _, r := range list {
		counts[r.Status]++
	}
	for status, n := range counts {
		metrics.Processes.WithLabelValues(string(status)).Set(float64(n))
	}

	m.publish(events.TypeListChanged, "", list)
}

func (m *Manager) scheduleSave() {
	if m.store == nil {
		return
	}
	m.store.Schedule(m.definitions)
}

// definitions returns the persisted view of every record
func (m *Manager) definitions() []store.Definition {
	m.mu.RLock()
	defer m.mu.RUnlock()

	defs := make([]store.Definition, 0, m.registry.len())
	for _, id := range m.registry.order {
		defs = append(defs, m.registry.entries[id].def.persisted())
	}
	return defs
}
