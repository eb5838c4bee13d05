package process

import (
	"sync"
	"time"
)

// entry is the registry's record of one process. Runtime fields are
// guarded by the Manager's mutex; op serializes stop and restart.
type entry struct {
	def       Definition
	status    Status
	term      *terminal
	startTime time.Time

	op sync.Mutex
}

func (e *entry) record() Record {
	r := Record{
		Definition: e.def.clone(),
		Status:     e.status,
	}
	if e.term != nil {
		r.PID = e.term.pid
		t := e.startTime
		r.StartTime = &t
	}
	return r
}

// registry is an insertion-ordered table of entries. It does no locking.
type registry struct {
	order   []string
	entries map[string]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[string]*entry)}
}

func (r *registry) get(id string) (*entry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

func (r *registry) insert(e *entry) bool {
	if _, exists := r.entries[e.def.ID]; exists {
		return false
	}
	r.entries[e.def.ID] = e
	r.order = append(r.order, e.def.ID)
	return true
}

func (r *registry) remove(id string) (*entry, bool) {
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return e, true
}

func (r *registry) list() []Record {
	out := make([]Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].record())
	}
	return out
}

func (r *registry) len() int {
	return len(r.order)
}
