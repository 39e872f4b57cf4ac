package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const entryColumns = `id, task_id, actor_id, type, timestamp, content, hash, prev_hash`

// chainLockKey is the advisory lock serializing appends across processes.
const chainLockKey = 0x7461736b64657331

// PgStore is a PostgreSQL-backed activity store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the activity table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS task_activity (
			id        TEXT PRIMARY KEY,
			task_id   TEXT NOT NULL,
			actor_id  TEXT NOT NULL DEFAULT '',
			type      TEXT NOT NULL,
			timestamp TIMESTAMPTZ NOT NULL,
			content   JSONB NOT NULL DEFAULT '{}',
			hash      TEXT NOT NULL,
			prev_hash TEXT NOT NULL DEFAULT ''
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_activity_task ON task_activity(task_id, timestamp)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_activity_timestamp_id ON task_activity(timestamp, id)`)
	return err
}

// Append records an entry, linking it to the current chain head.
func (s *PgStore) Append(ctx context.Context, taskID, actorID, entryType string, content map[string]any) (*Entry, error) {
	if content == nil {
		content = map[string]any{}
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Held until commit; also covers the empty-table case where there is
	// no head row to lock.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(chainLockKey)); err != nil {
		return nil, fmt.Errorf("lock chain: %w", err)
	}

	var prevHash string
	var headAt time.Time
	err = tx.QueryRow(ctx, `SELECT hash, timestamp FROM task_activity ORDER BY timestamp DESC, id DESC LIMIT 1`).Scan(&prevHash, &headAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("read chain head: %w", err)
	}

	e := &Entry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TaskID:    taskID,
		ActorID:   actorID,
		Type:      entryType,
		Timestamp: NextStamp(headAt, time.Now()),
		Content:   content,
		PrevHash:  prevHash,
	}
	e.Hash = ComputeHash(prevHash, e.ID, e.TaskID, e.ActorID, e.Type, e.Timestamp, contentJSON)

	_, err = tx.Exec(ctx, `
		INSERT INTO task_activity (id, task_id, actor_id, type, timestamp, content, hash, prev_hash)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`,
		e.ID, e.TaskID, e.ActorID, e.Type, e.Timestamp, string(contentJSON), e.Hash, e.PrevHash)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit activity: %w", err)
	}
	return e, nil
}

// ByTask returns a task's entries in chronological order.
func (s *PgStore) ByTask(ctx context.Context, taskID string, limit int) ([]Entry, error) {
	return s.scanMany(ctx, `SELECT `+entryColumns+` FROM task_activity
		WHERE task_id = $1 ORDER BY timestamp ASC, id ASC LIMIT $2`, taskID, limit)
}

// Recent returns the newest entries first.
func (s *PgStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	return s.scanMany(ctx, `SELECT `+entryColumns+` FROM task_activity
		ORDER BY timestamp DESC, id DESC LIMIT $1`, limit)
}

// Since returns entries after afterID in chronological order. An unknown
// afterID yields nothing.
func (s *PgStore) Since(ctx context.Context, afterID string, limit int) ([]Entry, error) {
	if afterID == "" {
		return s.scanMany(ctx, `SELECT `+entryColumns+` FROM task_activity
			ORDER BY timestamp ASC, id ASC LIMIT $1`, limit)
	}
	return s.scanMany(ctx, `SELECT `+entryColumns+` FROM task_activity
		WHERE (timestamp, id) > (SELECT timestamp, id FROM task_activity WHERE id = $1)
		ORDER BY timestamp ASC, id ASC LIMIT $2`, afterID, limit)
}

// Count returns the total number of entries.
func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM task_activity`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count activity: %w", err)
	}
	return n, nil
}

// VerifyChain walks the log chronologically and checks every link.
func (s *PgStore) VerifyChain(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `SELECT `+entryColumns+` FROM task_activity ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return fmt.Errorf("verify chain query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	var raw [][]byte
	for rows.Next() {
		var e Entry
		var contentJSON []byte
		if err := rows.Scan(&e.ID, &e.TaskID, &e.ActorID, &e.Type, &e.Timestamp, &contentJSON, &e.Hash, &e.PrevHash); err != nil {
			return fmt.Errorf("verify chain scan row %d: %w", len(entries), err)
		}
		if err := json.Unmarshal(contentJSON, &e.Content); err != nil {
			return fmt.Errorf("entry %s: unmarshal content: %w", e.ID, err)
		}
		entries = append(entries, e)
		raw = append(raw, contentJSON)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("verify chain rows: %w", err)
	}
	return Verify(entries, raw)
}

// Verify checks the links of entries given in chronological order. raw, when
// non-nil, holds each entry's content as stored; JSONB may reformat it, so
// both the stored and the re-marshalled form are accepted.
func Verify(entries []Entry, raw [][]byte) error {
	prevHash := ""
	for i, e := range entries {
		if e.PrevHash != prevHash {
			return fmt.Errorf("entry %d (%s): prev_hash mismatch: got %s, want %s", i, e.ID, e.PrevHash, prevHash)
		}
		contentJSON, _ := json.Marshal(e.Content)
		expected := ComputeHash(prevHash, e.ID, e.TaskID, e.ActorID, e.Type, e.Timestamp, contentJSON)
		if e.Hash != expected && (raw == nil || e.Hash != ComputeHash(prevHash, e.ID, e.TaskID, e.ActorID, e.Type, e.Timestamp, raw[i])) {
			return fmt.Errorf("entry %d (%s): hash mismatch", i, e.ID)
		}
		prevHash = e.Hash
	}
	return nil
}

func (s *PgStore) scanMany(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var contentJSON []byte
		if err := rows.Scan(&e.ID, &e.TaskID, &e.ActorID, &e.Type, &e.Timestamp, &contentJSON, &e.Hash, &e.PrevHash); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(contentJSON, &e.Content); err != nil {
			return nil, fmt.Errorf("unmarshal content: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return entries, nil
}
