// Package execution implements the execution state machine: driving
// a Plan as a running Execution through start/tick/run/task_action/cancel,
// with per-task retry, per-execution mutex serialization of state
// transitions, and concurrent agent dispatch across a ready set modeled on
// a concurrent task runner.
package execution

import (
	"sync"

	"github.com/insightloop/core/pkg/models"
)

// entry pairs one Execution snapshot with the mutex serializing every
// transition applied to it.
type entry struct {
	mu  sync.Mutex
	exe *models.Execution
}

// Store is the Execution registry: the id map is guarded by an RWMutex,
// and reads and mutations of one Execution hold its per-execution lock.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*entry
}

func NewStore() *Store {
	return &Store{byID: make(map[string]*entry)}
}

// Put registers a new Execution (or replaces one with the same id).
func (s *Store) Put(exe *models.Execution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[exe.ExecutionID] = &entry{exe: exe}
}

// Get returns a snapshot copy of the execution's Tasks slice header; the
// caller must still go through WithLock to mutate safely.
func (s *Store) Get(id string) (*models.Execution, bool) {
	s.mu.RLock()
	e, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := *e.exe
	cp.Tasks = append([]models.Task(nil), e.exe.Tasks...)
	return &cp, true
}

// WithLock runs fn with exclusive access to the named Execution, and
// persists whatever fn leaves in *models.Execution back into the store.
// Returns ErrNotFound-equivalent false if id is unknown.
func (s *Store) WithLock(id string, fn func(exe *models.Execution)) bool {
	s.mu.RLock()
	e, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.exe)
	return true
}

// All returns a snapshot of every execution id currently registered.
func (s *Store) All() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	return ids
}
