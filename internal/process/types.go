package process

import (
	"errors"
	"time"

	"github.com/ngenohkevin/procdeck/internal/store"
)

var (
	// ErrNotFound is returned for an unknown id or hook key, or when the
	// operation needs a live process and there is none
	ErrNotFound = errors.New("process not found")
	// ErrSpawn is returned when the pty or child process cannot be created
	ErrSpawn = errors.New("failed to spawn process")
	// ErrSignal is returned when the termination signal cannot be delivered
	ErrSignal = errors.New("failed to signal process")
	// ErrInvalid is returned for a definition without a command
	ErrInvalid = errors.New("invalid process definition")
	// ErrClosed is returned by Start once Shutdown has begun
	ErrClosed = errors.New("process manager is shutting down")
)

// Status is the runtime state of a supervised process
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusError   Status = "error"
)

// HookPhase names a lifecycle hook
type HookPhase string

const (
	PhaseBeforeStop HookPhase = "beforeStop"
	PhaseAfterStop  HookPhase = "afterStop"
)

// HookKey identifies a running hook of a process
func HookKey(id string, phase HookPhase) string {
	return id + ":" + string(phase)
}

// Definition describes what to run. It is the persisted part of a record.
type Definition struct {
	ID         string   `json:"id"`
	Command    string   `json:"command"`
	Args       []string `json:"args"`
	BeforeStop string   `json:"beforeStop,omitempty"`
	AfterStop  string   `json:"afterStop,omitempty"`
}

// Record is a definition together with its runtime state
type Record struct {
	Definition
	Status    Status     `json:"status"`
	PID       int        `json:"pid,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
}

// StartRequest holds the parameters of a new process
type StartRequest struct {
	Command    string   `json:"command" binding:"required"`
	Args       []string `json:"args"`
	BeforeStop string   `json:"beforeStop,omitempty"`
	AfterStop  string   `json:"afterStop,omitempty"`
}

// HookEvent is published when a hook starts and when it ends
type HookEvent struct {
	ID       string    `json:"id"`
	Phase    HookPhase `json:"hookPhase"`
	HookKey  string    `json:"hookKey"`
	ExitCode *int      `json:"exitCode,omitempty"`
}

// ExitEvent is published when a supervised process exits
type ExitEvent struct {
	ID     string `json:"id"`
	Code   int    `json:"code"`
	Signal int    `json:"signal,omitempty"`
	Status Status `json:"status"`
}

// Summary counts processes per status
type Summary struct {
	Total   int `json:"total"`
	Running int `json:"running"`
	Stopped int `json:"stopped"`
	Error   int `json:"error"`
}

// Stats holds resource usage of a running process
type Stats struct {
	ID         string    `json:"id"`
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemPercent float32   `json:"mem_percent"`
	MemRSS     uint64    `json:"mem_rss"`
	NumThreads int32     `json:"num_threads"`
	Children   int       `json:"children"`
	StartedAt  time.Time `json:"started_at"`
	Uptime     string    `json:"uptime"`
}

func (d Definition) clone() Definition {
	d.Args = append([]string{}, d.Args...)
	return d
}

func (d Definition) persisted() store.Definition {
	return store.Definition{
		ID:         d.ID,
		Command:    d.Command,
		Args:       append([]string{}, d.Args...),
		BeforeStop: d.BeforeStop,
		AfterStop:  d.AfterStop,
	}
}

func definitionFromStore(d store.Definition) Definition {
	args := d.Args
	if args == nil {
		args = []string{}
	}
	return Definition{
		ID:         d.ID,
		Command:    d.Command,
		Args:       append([]string{}, args...),
		BeforeStop: d.BeforeStop,
		AfterStop:  d.AfterStop,
	}
}
