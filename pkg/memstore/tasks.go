package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskdesk/pkg/apperr"
	"taskdesk/pkg/task"
)

// Tasks is an in-memory task.Store. Mutate holds the write lock for the
// whole read-modify-write.
type Tasks struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
}

// NewTasks creates an empty task store.
func NewTasks() *Tasks {
	return &Tasks{tasks: make(map[string]*task.Task)}
}

func (s *Tasks) EnsureTable(ctx context.Context) error { return nil }

func (s *Tasks) Create(ctx context.Context, t *task.Task) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.ID = uuid.Must(uuid.NewV7()).String()
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now
	fill(t)
	s.tasks[t.ID] = t.Clone()
	return t, nil
}

func (s *Tasks) Get(ctx context.Context, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, apperr.NotFound("task not found")
	}
	return t.Clone(), nil
}

func (s *Tasks) Mutate(ctx context.Context, id string, fn func(t *task.Task) error) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.tasks[id]
	if !ok {
		return nil, apperr.NotFound("task not found")
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.ID = id
	next.UpdatedAt = time.Now()
	fill(next)
	s.tasks[id] = next.Clone()
	return next, nil
}

func (s *Tasks) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return apperr.NotFound("task not found")
	}
	delete(s.tasks, id)
	return nil
}

func (s *Tasks) List(ctx context.Context, f task.Filter) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []task.Task
	for _, t := range s.tasks {
		if !matches(t, f) {
			continue
		}
		out = append(out, *t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Tasks) Counts(ctx context.Context, assignee string) (task.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c task.Counts
	for _, t := range s.tasks {
		if assignee != "" && !t.IsAssignee(assignee) {
			continue
		}
		c.Add(t.Status)
	}
	return c, nil
}

func matches(t *task.Task, f task.Filter) bool {
	if f.Assignee != "" && !t.IsAssignee(f.Assignee) {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.CreatedFrom != nil && t.CreatedAt.Before(*f.CreatedFrom) {
		return false
	}
	if f.CreatedTo != nil && t.CreatedAt.After(*f.CreatedTo) {
		return false
	}
	return true
}

func fill(t *task.Task) {
	if t.Status == "" {
		t.Status = task.StatusPending
	}
	if t.Priority == "" {
		t.Priority = task.PriorityModerate
	}
	if t.AssignedTo == nil {
		t.AssignedTo = []string{}
	}
	if t.Attachments == nil {
		t.Attachments = []string{}
	}
	if t.Checklist == nil {
		t.Checklist = []task.ChecklistItem{}
	}
}
