// Package activity keeps an append-only, hash-chained record of task
// mutations. Each entry's hash covers the previous entry's hash, so any
// rewrite of history breaks VerifyChain.
package activity

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"
)

// Entry types written by the task engine.
const (
	TaskCreated          = "task.created"
	TaskUpdated          = "task.updated"
	TaskStatusChanged    = "task.status_changed"
	TaskChecklistUpdated = "task.checklist_updated"
	TaskDeleted          = "task.deleted"
)

// Entry is one recorded mutation.
type Entry struct {
	ID        string         `json:"id"` // UUID v7 (time-ordered)
	TaskID    string         `json:"task_id"`
	ActorID   string         `json:"actor_id"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Content   map[string]any `json:"content"`
	Hash      string         `json:"hash"`
	PrevHash  string         `json:"prev_hash"`
}

// Store is the contract for activity persistence.
type Store interface {
	Append(ctx context.Context, taskID, actorID, entryType string, content map[string]any) (*Entry, error)
	ByTask(ctx context.Context, taskID string, limit int) ([]Entry, error)
	Recent(ctx context.Context, limit int) ([]Entry, error)
	// Since returns up to limit entries recorded after the entry afterID,
	// oldest first. An empty afterID starts from the beginning of the log.
	Since(ctx context.Context, afterID string, limit int) ([]Entry, error)
	Count(ctx context.Context) (int, error)
	VerifyChain(ctx context.Context) error
	EnsureTable(ctx context.Context) error
}

// NextStamp returns the timestamp for an entry appended at now after an
// entry stamped head. Stamps are microsecond precision and strictly
// increasing along the chain, so chronological order equals link order.
func NextStamp(head, now time.Time) time.Time {
	now = now.Truncate(time.Microsecond)
	if !head.IsZero() && !now.After(head) {
		return head.Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return now
}

// ComputeHash returns the chain hash for an entry.
func ComputeHash(prevHash, id, taskID, actorID, entryType string, timestamp time.Time, contentJSON []byte) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%s", prevHash, id, taskID, actorID, entryType, timestamp.UnixNano(), string(contentJSON))
	h := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", h)
}
