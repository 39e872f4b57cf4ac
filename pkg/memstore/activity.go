package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskdesk/pkg/activity"
)

// Activity is an in-memory activity.Store.
type Activity struct {
	mu      sync.RWMutex
	entries []activity.Entry
}

// NewActivity creates an empty activity log.
func NewActivity() *Activity {
	return &Activity{}
}

func (s *Activity) EnsureTable(ctx context.Context) error { return nil }

func (s *Activity) Append(ctx context.Context, taskID, actorID, entryType string, content map[string]any) (*activity.Entry, error) {
	if content == nil {
		content = map[string]any{}
	}
	contentJSON, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal content: %w", err)
	}
	// Stored content is the decoded JSON so it hashes the same on Verify.
	var stored map[string]any
	if err := json.Unmarshal(contentJSON, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal content: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := ""
	var headAt time.Time
	if n := len(s.entries); n > 0 {
		prev, headAt = s.entries[n-1].Hash, s.entries[n-1].Timestamp
	}
	e := activity.Entry{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TaskID:    taskID,
		ActorID:   actorID,
		Type:      entryType,
		Timestamp: activity.NextStamp(headAt, time.Now()),
		Content:   stored,
		PrevHash:  prev,
	}
	e.Hash = activity.ComputeHash(prev, e.ID, e.TaskID, e.ActorID, e.Type, e.Timestamp, contentJSON)
	s.entries = append(s.entries, e)
	return &e, nil
}

func (s *Activity) ByTask(ctx context.Context, taskID string, limit int) ([]activity.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []activity.Entry
	for _, e := range s.entries {
		if e.TaskID != taskID {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Activity) Recent(ctx context.Context, limit int) ([]activity.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []activity.Entry
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, s.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Activity) Since(ctx context.Context, afterID string, limit int) ([]activity.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if afterID != "" {
		start = len(s.entries)
		for i, e := range s.entries {
			if e.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	end := len(s.entries)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return append([]activity.Entry(nil), s.entries[start:end]...), nil
}

func (s *Activity) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

func (s *Activity) VerifyChain(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activity.Verify(s.entries, nil)
}
