// Package report builds tabular exports of tasks and users. Every export is
// a Table, and the JSON and XLSX writers both render from it.
package report

import (
	"context"
	"strings"
	"time"

	"taskdesk/pkg/apperr"
	"taskdesk/pkg/task"
	"taskdesk/pkg/user"
)

// Column is one field of a table. Key names it in JSON, Title heads it in
// spreadsheets.
type Column struct {
	Key   string
	Title string
}

// Table is a rendered-agnostic report.
type Table struct {
	Sheet   string
	Columns []Column
	Rows    [][]any
}

var taskColumns = []Column{
	{"id", "Task ID"},
	{"title", "Title"},
	{"description", "Description"},
	{"priority", "Priority"},
	{"status", "Status"},
	{"due_date", "Due Date"},
	{"assigned_to", "Assigned To"},
}

var userColumns = []Column{
	{"name", "User Name"},
	{"handle", "Handle"},
	{"total", "Total Assigned Tasks"},
	{"pending", "Pending Tasks"},
	{"in_progress", "In Progress Tasks"},
	{"completed", "Completed Tasks"},
}

// Users is the user lookup the builder needs.
type Users interface {
	GetMany(ctx context.Context, ids []string) ([]user.User, error)
	List(ctx context.Context, role user.Role) ([]user.User, error)
}

// Builder assembles report tables from the stores.
type Builder struct {
	tasks task.Store
	users Users
}

// NewBuilder creates a Builder.
func NewBuilder(tasks task.Store, users Users) *Builder {
	return &Builder{tasks: tasks, users: users}
}

// TaskRows lists tasks created within [from, to]. Either bound may be nil.
func (b *Builder) TaskRows(ctx context.Context, from, to *time.Time) (*Table, error) {
	tasks, err := b.tasks.List(ctx, task.Filter{CreatedFrom: from, CreatedTo: to})
	if err != nil {
		return nil, apperr.Internal(err, "failed to load tasks")
	}

	var ids []string
	seen := map[string]bool{}
	for _, t := range tasks {
		for _, id := range t.AssignedTo {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	users, err := b.users.GetMany(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load users")
	}
	byID := make(map[string]user.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	tbl := &Table{Sheet: "Tasks Report", Columns: taskColumns, Rows: [][]any{}}
	for _, t := range tasks {
		due := ""
		if t.DueDate != nil {
			due = t.DueDate.UTC().Format(time.DateOnly)
		}
		var names []string
		for _, id := range t.AssignedTo {
			if u, ok := byID[id]; ok {
				names = append(names, u.Name+" ("+u.Handle+")")
			}
		}
		assigned := "Unassigned"
		if len(names) > 0 {
			assigned = strings.Join(names, ", ")
		}
		tbl.Rows = append(tbl.Rows, []any{
			t.ID, t.Title, t.Description, string(t.Priority), string(t.Status), due, assigned,
		})
	}
	return tbl, nil
}

// UserRows lists every user with the status breakdown of their assigned
// tasks.
func (b *Builder) UserRows(ctx context.Context) (*Table, error) {
	users, err := b.users.List(ctx, "")
	if err != nil {
		return nil, apperr.Internal(err, "failed to load users")
	}
	tasks, err := b.tasks.List(ctx, task.Filter{})
	if err != nil {
		return nil, apperr.Internal(err, "failed to load tasks")
	}

	counts := make(map[string]*task.Counts, len(users))
	for _, u := range users {
		counts[u.ID] = &task.Counts{}
	}
	for _, t := range tasks {
		for _, id := range t.AssignedTo {
			if c, ok := counts[id]; ok {
				c.Add(t.Status)
			}
		}
	}

	tbl := &Table{Sheet: "User Task Report", Columns: userColumns, Rows: [][]any{}}
	for _, u := range users {
		c := counts[u.ID]
		tbl.Rows = append(tbl.Rows, []any{u.Name, u.Handle, c.All, c.Pending, c.InProgress, c.Completed})
	}
	return tbl, nil
}

// ParseRange parses optional YYYY-MM-DD bounds. The upper bound covers the
// whole day.
func ParseRange(fromStr, toStr string) (from, to *time.Time, err error) {
	if fromStr = strings.TrimSpace(fromStr); fromStr != "" {
		d, err := time.Parse(time.DateOnly, fromStr)
		if err != nil {
			return nil, nil, apperr.Validation("from must be a YYYY-MM-DD date")
		}
		from = &d
	}
	if toStr = strings.TrimSpace(toStr); toStr != "" {
		d, err := time.Parse(time.DateOnly, toStr)
		if err != nil {
			return nil, nil, apperr.Validation("to must be a YYYY-MM-DD date")
		}
		end := d.Add(24*time.Hour - time.Nanosecond)
		to = &end
	}
	if from != nil && to != nil && from.After(*to) {
		return nil, nil, apperr.Validation("from must not be after to")
	}
	return from, to, nil
}
