package task

import (
	"context"
	"time"
)

// Status is the lifecycle state of a task. It is normally derived from the
// checklist, see Recompute.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

// Statuses lists every valid status in display order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusCompleted}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Priority ranks a task.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityModerate Priority = "Moderate"
	PriorityHigh     Priority = "High"
)

// Priorities lists every valid priority in display order.
var Priorities = []Priority{PriorityLow, PriorityModerate, PriorityHigh}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityModerate, PriorityHigh:
		return true
	}
	return false
}

// ChecklistItem is a sub-unit of a task with its own completion flag.
// ID is stable across updates.
type ChecklistItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// Task is a unit of work assigned to one or more users.
type Task struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Priority    Priority        `json:"priority"`
	Status      Status          `json:"status"`
	DueDate     *time.Time      `json:"due_date,omitempty"`
	AssignedTo  []string        `json:"assigned_to"`
	CreatedBy   string          `json:"created_by"`
	Attachments []string        `json:"attachments"`
	Checklist   []ChecklistItem `json:"checklist"`
	Progress    int             `json:"progress"` // 0-100, derived
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsAssignee reports whether userID is among the task's assignees.
func (t *Task) IsAssignee(userID string) bool {
	for _, id := range t.AssignedTo {
		if id == userID {
			return true
		}
	}
	return false
}

// DoneCount returns the number of completed checklist items.
func (t *Task) DoneCount() int {
	n := 0
	for _, it := range t.Checklist {
		if it.Done {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of t.
func (t *Task) Clone() *Task {
	cp := *t
	cp.AssignedTo = append([]string(nil), t.AssignedTo...)
	cp.Attachments = append([]string(nil), t.Attachments...)
	cp.Checklist = append([]ChecklistItem(nil), t.Checklist...)
	if t.DueDate != nil {
		d := *t.DueDate
		cp.DueDate = &d
	}
	return &cp
}

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Assignee    string
	Status      Status
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
}

// Counts is a per-status tally.
type Counts struct {
	All        int `json:"all"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

// Add tallies one task with status s.
func (c *Counts) Add(s Status) { c.AddN(s, 1) }

// AddN tallies n tasks with status s.
func (c *Counts) AddN(s Status, n int) {
	c.All += n
	switch s {
	case StatusPending:
		c.Pending += n
	case StatusInProgress:
		c.InProgress += n
	case StatusCompleted:
		c.Completed += n
	}
}

// Store is the contract for task persistence.
type Store interface {
	Create(ctx context.Context, t *Task) (*Task, error)
	Get(ctx context.Context, id string) (*Task, error)

	// Mutate loads the task, applies fn and persists the result as one
	// read-modify-write. If fn returns an error nothing is written.
	Mutate(ctx context.Context, id string, fn func(t *Task) error) (*Task, error)

	Delete(ctx context.Context, id string) error

	// List returns tasks matching f, newest first.
	List(ctx context.Context, f Filter) ([]Task, error)

	// Counts tallies tasks by status, restricted to assignee when non-empty.
	Counts(ctx context.Context, assignee string) (Counts, error)

	EnsureTable(ctx context.Context) error
}
