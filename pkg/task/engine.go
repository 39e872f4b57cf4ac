package task

import (
	"context"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"taskdesk/pkg/activity"
	"taskdesk/pkg/apperr"
	"taskdesk/pkg/user"
)

// RecentLimit is the number of tasks previewed on a dashboard.
const RecentLimit = 6

// UserDirectory resolves user IDs for expansion and assignee validation.
type UserDirectory interface {
	GetMany(ctx context.Context, ids []string) ([]user.User, error)
}

// View is a task with its user references expanded.
type View struct {
	Task
	Assignees      []user.Ref `json:"assignees"`
	Creator        *user.Ref  `json:"creator,omitempty"`
	CompletedCount int        `json:"completed_count"`
}

// ListResult is a visibility-scoped task list with its status summary.
type ListResult struct {
	Tasks   []View `json:"tasks"`
	Summary Counts `json:"summary"`
}

// Distribution tallies tasks by status and by priority.
type Distribution struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Low        int `json:"low"`
	Moderate   int `json:"moderate"`
	High       int `json:"high"`
}

// Dashboard is the summary shown on the admin and member landing pages.
type Dashboard struct {
	Total        int          `json:"total"`
	Distribution Distribution `json:"distribution"`
	Recent       []View       `json:"recent"`
}

// Scope selects which tasks a dashboard covers.
type Scope int

const (
	ScopeAll Scope = iota
	ScopeMine
)

// Engine applies the task workflow rules on top of a Store.
type Engine struct {
	tasks    Store
	users    UserDirectory
	activity activity.Store
	log      log.FieldLogger
}

// NewEngine creates an Engine. act may be nil to disable the activity log.
func NewEngine(tasks Store, users UserDirectory, act activity.Store, logger log.FieldLogger) *Engine {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Engine{tasks: tasks, users: users, activity: act, log: logger}
}

// Create stores a new task owned by acting. The stored task is re-read for
// the response; if only that read fails the task stays committed and the
// returned error says so.
func (e *Engine) Create(ctx context.Context, acting *user.User, in *CreateInput) (*View, error) {
	const op = "task.create"
	if err := e.checkAssignees(ctx, in.AssignedTo); err != nil {
		return nil, err
	}

	t := &Task{
		Title:       in.Title,
		Description: in.Description,
		Priority:    in.Priority,
		DueDate:     in.DueDate,
		AssignedTo:  in.AssignedTo,
		CreatedBy:   acting.ID,
		Attachments: in.Attachments,
	}
	for _, it := range in.Checklist {
		t.Checklist = append(t.Checklist, ChecklistItem{ID: newItemID(), Text: it.Text})
	}
	t.Recompute()

	created, err := e.tasks.Create(ctx, t)
	if err != nil {
		return nil, apperr.Internal(err, "failed to create task")
	}
	e.record(ctx, created.ID, acting.ID, activity.TaskCreated, map[string]any{"title": created.Title})
	e.log.WithField("operation", op).WithField("task_id", created.ID).Info("task created")

	stored, err := e.tasks.Get(ctx, created.ID)
	if err != nil {
		return nil, apperr.Internal(err, "task %s was created but could not be loaded", created.ID)
	}
	views, err := e.expand(ctx, []Task{*stored})
	if err != nil {
		return nil, apperr.Internal(err, "task %s was created but could not be loaded", created.ID)
	}
	return &views[0], nil
}

// Get returns one task. Members only see tasks they are assigned to or
// created.
func (e *Engine) Get(ctx context.Context, acting *user.User, id string) (*View, error) {
	t, err := e.visible(ctx, acting, id)
	if err != nil {
		return nil, err
	}
	return e.expandOne(ctx, t)
}

// List returns the tasks visible to acting, optionally narrowed by status.
// The summary covers every visible task regardless of the status filter.
func (e *Engine) List(ctx context.Context, acting *user.User, status Status) (*ListResult, error) {
	f := Filter{Status: status}
	if !acting.IsAdmin() {
		f.Assignee = acting.ID
	}
	tasks, err := e.tasks.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err, "failed to list tasks")
	}
	summary, err := e.tasks.Counts(ctx, f.Assignee)
	if err != nil {
		return nil, apperr.Internal(err, "failed to count tasks")
	}
	views, err := e.expand(ctx, tasks)
	if err != nil {
		return nil, err
	}
	return &ListResult{Tasks: views, Summary: summary}, nil
}

// Update applies a partial update. A provided checklist replaces the
// existing one and recomputes progress; a provided status is applied after
// that as an explicit override.
func (e *Engine) Update(ctx context.Context, acting *user.User, id string, p *Patch) (*View, error) {
	const op = "task.update"
	if p.AssignedTo != nil {
		if err := e.checkAssignees(ctx, *p.AssignedTo); err != nil {
			return nil, err
		}
	}

	t, err := e.tasks.Mutate(ctx, id, func(t *Task) error {
		if !canEdit(acting, t) {
			return apperr.Forbidden("only the creator, an assignee or an admin may edit this task")
		}
		if p.Title != nil {
			t.Title = *p.Title
		}
		if p.Description != nil {
			t.Description = *p.Description
		}
		if p.Priority != nil {
			t.Priority = *p.Priority
		}
		if p.ClearDue {
			t.DueDate = nil
		} else if p.DueDate != nil {
			t.DueDate = p.DueDate
		}
		if p.AssignedTo != nil {
			t.AssignedTo = *p.AssignedTo
		}
		if p.Attachments != nil {
			t.Attachments = *p.Attachments
		}
		if p.Checklist != nil {
			t.ReplaceChecklist(*p.Checklist)
		}
		if p.Status != nil {
			t.ApplyStatus(*p.Status)
		}
		return nil
	})
	if err != nil {
		return nil, e.mutateErr(err, "failed to update task")
	}
	e.record(ctx, t.ID, acting.ID, activity.TaskUpdated, map[string]any{"status": string(t.Status), "progress": t.Progress})
	e.log.WithField("operation", op).WithField("task_id", t.ID).Info("task updated")
	return e.expandOne(ctx, t)
}

// SetStatus sets an explicit status. Only assignees and admins may do this.
func (e *Engine) SetStatus(ctx context.Context, acting *user.User, id string, s Status) (*View, error) {
	if !s.Valid() {
		return nil, apperr.Validation("status must be one of Pending, In Progress, Completed")
	}
	t, err := e.tasks.Mutate(ctx, id, func(t *Task) error {
		if !acting.IsAdmin() && !t.IsAssignee(acting.ID) {
			return apperr.Forbidden("only an assignee or an admin may change the status")
		}
		t.ApplyStatus(s)
		return nil
	})
	if err != nil {
		return nil, e.mutateErr(err, "failed to update task status")
	}
	e.record(ctx, t.ID, acting.ID, activity.TaskStatusChanged, map[string]any{"status": string(t.Status)})
	return e.expandOne(ctx, t)
}

// UpdateChecklist reconciles done-flags by item ID and recomputes progress
// and status in one read-modify-write.
func (e *Engine) UpdateChecklist(ctx context.Context, acting *user.User, id string, items []ChecklistItem) (*View, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("checklist must not be empty")
	}
	var changed int
	t, err := e.tasks.Mutate(ctx, id, func(t *Task) error {
		if !canEdit(acting, t) {
			return apperr.Forbidden("only the creator, an assignee or an admin may update this checklist")
		}
		changed = t.ReconcileChecklist(items)
		return nil
	})
	if err != nil {
		return nil, e.mutateErr(err, "failed to update checklist")
	}
	e.record(ctx, t.ID, acting.ID, activity.TaskChecklistUpdated, map[string]any{
		"changed":  changed,
		"progress": t.Progress,
		"status":   string(t.Status),
	})
	return e.expandOne(ctx, t)
}

// Delete removes a task. Access is enforced by the caller's route policy.
func (e *Engine) Delete(ctx context.Context, acting *user.User, id string) error {
	if err := e.tasks.Delete(ctx, id); err != nil {
		return e.mutateErr(err, "failed to delete task")
	}
	e.record(ctx, id, acting.ID, activity.TaskDeleted, nil)
	e.log.WithField("operation", "task.delete").WithField("task_id", id).Info("task deleted")
	return nil
}

// Dashboard summarizes every task (ScopeAll) or the tasks assigned to acting
// (ScopeMine). No matching tasks yields a zeroed summary.
func (e *Engine) Dashboard(ctx context.Context, acting *user.User, scope Scope) (*Dashboard, error) {
	var f Filter
	if scope == ScopeMine {
		f.Assignee = acting.ID
	}
	tasks, err := e.tasks.List(ctx, f)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load dashboard")
	}

	d := &Dashboard{Total: len(tasks), Recent: []View{}}
	for _, t := range tasks {
		switch t.Status {
		case StatusPending:
			d.Distribution.Pending++
		case StatusInProgress:
			d.Distribution.InProgress++
		case StatusCompleted:
			d.Distribution.Completed++
		}
		switch t.Priority {
		case PriorityLow:
			d.Distribution.Low++
		case PriorityModerate:
			d.Distribution.Moderate++
		case PriorityHigh:
			d.Distribution.High++
		}
	}

	if len(tasks) > RecentLimit {
		tasks = tasks[:RecentLimit]
	}
	if d.Recent, err = e.expand(ctx, tasks); err != nil {
		return nil, err
	}
	return d, nil
}

// Activity returns a task's recorded mutations, oldest first.
func (e *Engine) Activity(ctx context.Context, acting *user.User, id string, limit int) ([]activity.Entry, error) {
	if _, err := e.visible(ctx, acting, id); err != nil {
		return nil, err
	}
	if e.activity == nil {
		return []activity.Entry{}, nil
	}
	if limit <= 0 {
		limit = 200
	}
	entries, err := e.activity.ByTask(ctx, id, limit)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load activity")
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	return entries, nil
}

// CountsFor tallies the tasks assigned to userID.
func (e *Engine) CountsFor(ctx context.Context, userID string) (Counts, error) {
	c, err := e.tasks.Counts(ctx, userID)
	if err != nil {
		return Counts{}, apperr.Internal(err, "failed to count tasks")
	}
	return c, nil
}

func (e *Engine) visible(ctx context.Context, acting *user.User, id string) (*Task, error) {
	t, err := e.tasks.Get(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
		return nil, apperr.Internal(err, "failed to load task")
	}
	if !canEdit(acting, t) {
		return nil, apperr.Forbidden("you do not have access to this task")
	}
	return t, nil
}

// canEdit reports whether acting created t, is assigned to it or is an admin.
func canEdit(acting *user.User, t *Task) bool {
	return acting.IsAdmin() || t.CreatedBy == acting.ID || t.IsAssignee(acting.ID)
}

func (e *Engine) checkAssignees(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := e.users.GetMany(ctx, ids)
	if err != nil {
		return apperr.Internal(err, "failed to resolve assignees")
	}
	if len(found) == len(ids) {
		return nil
	}
	known := make(map[string]bool, len(found))
	for _, u := range found {
		known[u.ID] = true
	}
	for _, id := range ids {
		if !known[id] {
			return apperr.Validation("unknown assignee %s", id)
		}
	}
	return nil
}

func (e *Engine) expandOne(ctx context.Context, t *Task) (*View, error) {
	views, err := e.expand(ctx, []Task{*t})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// expand resolves every referenced user with a single lookup. Unknown IDs
// (deleted users) are skipped.
func (e *Engine) expand(ctx context.Context, tasks []Task) ([]View, error) {
	views := make([]View, 0, len(tasks))
	if len(tasks) == 0 {
		return views, nil
	}

	seen := map[string]bool{}
	var ids []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, t := range tasks {
		add(t.CreatedBy)
		for _, id := range t.AssignedTo {
			add(id)
		}
	}
	sort.Strings(ids)

	users, err := e.users.GetMany(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err, "failed to resolve users")
	}
	refs := make(map[string]user.Ref, len(users))
	for i := range users {
		refs[users[i].ID] = users[i].Ref()
	}

	for _, t := range tasks {
		v := View{Task: t, Assignees: []user.Ref{}, CompletedCount: t.DoneCount()}
		for _, id := range t.AssignedTo {
			if r, ok := refs[id]; ok {
				v.Assignees = append(v.Assignees, r)
			}
		}
		if r, ok := refs[t.CreatedBy]; ok {
			v.Creator = &r
		}
		views = append(views, v)
	}
	return views, nil
}

func (e *Engine) mutateErr(err error, msg string) error {
	switch apperr.KindOf(err) {
	case apperr.KindInternal:
		return apperr.Internal(err, "%s", msg)
	default:
		return err
	}
}

func (e *Engine) record(ctx context.Context, taskID, actorID, entryType string, content map[string]any) {
	if e.activity == nil {
		return
	}
	start := time.Now()
	if _, err := e.activity.Append(ctx, taskID, actorID, entryType, content); err != nil {
		e.log.WithField("operation", "activity.append").
			WithField("task_id", taskID).
			WithField("type", entryType).
			WithError(err).
			Warn("failed to record activity")
		return
	}
	e.log.WithField("operation", "activity.append").WithField("elapsed", time.Since(start)).Debug("activity recorded")
}
