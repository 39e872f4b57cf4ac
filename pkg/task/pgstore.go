package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskdesk/pkg/apperr"
)

const taskColumns = `id, title, description, priority, status, due_date, assigned_to, created_by, attachments, checklist, progress, created_at, updated_at`

// PgStore is a PostgreSQL-backed task store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the tasks table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id          TEXT PRIMARY KEY,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			priority    TEXT NOT NULL DEFAULT 'Moderate',
			status      TEXT NOT NULL DEFAULT 'Pending',
			due_date    TIMESTAMPTZ,
			assigned_to TEXT[] NOT NULL DEFAULT '{}',
			created_by  TEXT NOT NULL DEFAULT '',
			attachments TEXT[] NOT NULL DEFAULT '{}',
			checklist   JSONB NOT NULL DEFAULT '[]',
			progress    INTEGER NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_assigned ON tasks USING GIN(assigned_to)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_created ON tasks(created_at DESC)`)
	return err
}

// Create inserts a new task.
func (s *PgStore) Create(ctx context.Context, t *Task) (*Task, error) {
	t.ID = uuid.Must(uuid.NewV7()).String()
	now := time.Now().Truncate(time.Microsecond)
	t.CreatedAt = now
	t.UpdatedAt = now
	normalize(t)

	checklistJSON, err := json.Marshal(t.Checklist)
	if err != nil {
		return nil, fmt.Errorf("marshal checklist: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tasks (id, title, description, priority, status, due_date, assigned_to, created_by, attachments, checklist, progress, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12, $13)`,
		t.ID, t.Title, t.Description, string(t.Priority), string(t.Status), t.DueDate, t.AssignedTo, t.CreatedBy, t.Attachments, string(checklistJSON), t.Progress, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return t, nil
}

// Get retrieves a single task by ID.
func (s *PgStore) Get(ctx context.Context, id string) (*Task, error) {
	t, err := scanTask(s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr(err, "get task "+id)
	}
	return t, nil
}

// Mutate locks the row, applies fn and writes the whole task back inside one
// transaction, so checklist, progress and status are always stored together.
func (s *PgStore) Mutate(ctx context.Context, id string, fn func(t *Task) error) (*Task, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	t, err := scanTask(tx.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, mapErr(err, "lock task "+id)
	}
	if err := fn(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = time.Now().Truncate(time.Microsecond)
	normalize(t)

	checklistJSON, err := json.Marshal(t.Checklist)
	if err != nil {
		return nil, fmt.Errorf("marshal checklist: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE tasks SET title = $1, description = $2, priority = $3, status = $4, due_date = $5,
			assigned_to = $6, attachments = $7, checklist = $8::jsonb, progress = $9, updated_at = $10
		WHERE id = $11`,
		t.Title, t.Description, string(t.Priority), string(t.Status), t.DueDate,
		t.AssignedTo, t.Attachments, string(checklistJSON), t.Progress, t.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit task %s: %w", id, err)
	}
	return t, nil
}

// Delete removes a task.
func (s *PgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("task not found")
	}
	return nil
}

// List returns tasks matching f, newest first.
func (s *PgStore) List(ctx context.Context, f Filter) ([]Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE TRUE`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Assignee != "" {
		query += " AND " + arg(f.Assignee) + " = ANY(assigned_to)"
	}
	if f.Status != "" {
		query += " AND status = " + arg(string(f.Status))
	}
	if f.CreatedFrom != nil {
		query += " AND created_at >= " + arg(*f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		query += " AND created_at <= " + arg(*f.CreatedTo)
	}
	query += " ORDER BY created_at DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return scanTaskRows(rows)
}

// Counts tallies tasks by status.
func (s *PgStore) Counts(ctx context.Context, assignee string) (Counts, error) {
	var rows pgx.Rows
	var err error
	if assignee != "" {
		rows, err = s.pool.Query(ctx, `SELECT status, COUNT(*) FROM tasks WHERE $1 = ANY(assigned_to) GROUP BY status`, assignee)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	}
	if err != nil {
		return Counts{}, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return Counts{}, err
		}
		c.AddN(Status(status), n)
	}
	return c, rows.Err()
}

func normalize(t *Task) {
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == "" {
		t.Priority = PriorityModerate
	}
	if t.AssignedTo == nil {
		t.AssignedTo = []string{}
	}
	if t.Attachments == nil {
		t.Attachments = []string{}
	}
	if t.Checklist == nil {
		t.Checklist = []ChecklistItem{}
	}
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var priority, status string
	var checklistJSON []byte
	err := row.Scan(&t.ID, &t.Title, &t.Description, &priority, &status, &t.DueDate, &t.AssignedTo, &t.CreatedBy, &t.Attachments, &checklistJSON, &t.Progress, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Priority = Priority(priority)
	t.Status = Status(status)
	if err := json.Unmarshal(checklistJSON, &t.Checklist); err != nil {
		return nil, fmt.Errorf("unmarshal checklist: %w", err)
	}
	normalize(&t)
	return &t, nil
}

func scanTaskRows(rows pgx.Rows) ([]Task, error) {
	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tasks, nil
}

func mapErr(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound("task not found").Wrap(err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
