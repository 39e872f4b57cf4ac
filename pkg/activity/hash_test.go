package activity

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestComputeHash(t *testing.T) {
	now := time.Date(2026, 2, 25, 12, 0, 0, 0, time.UTC)
	content, _ := json.Marshal(map[string]any{"status": "Completed"})

	h1 := ComputeHash("", "id1", "task1", "user1", TaskStatusChanged, now, content)
	h2 := ComputeHash("", "id1", "task1", "user1", TaskStatusChanged, now, content)
	if h1 != h2 {
		t.Fatalf("same inputs should produce same hash: %s != %s", h1, h2)
	}

	if h3 := ComputeHash("", "id1", "task2", "user1", TaskStatusChanged, now, content); h1 == h3 {
		t.Fatal("different task should produce different hash")
	}
	if h4 := ComputeHash("prevhash", "id1", "task1", "user1", TaskStatusChanged, now, content); h1 == h4 {
		t.Fatal("different prevHash should produce different hash")
	}
}

func chain(t *testing.T, n int) []Entry {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var entries []Entry
	prev := ""
	for i := 0; i < n; i++ {
		e := Entry{
			ID:        string(rune('a' + i)),
			TaskID:    "task1",
			ActorID:   "user1",
			Type:      TaskUpdated,
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Content:   map[string]any{"n": float64(i)},
			PrevHash:  prev,
		}
		content, _ := json.Marshal(e.Content)
		e.Hash = ComputeHash(prev, e.ID, e.TaskID, e.ActorID, e.Type, e.Timestamp, content)
		prev = e.Hash
		entries = append(entries, e)
	}
	return entries
}

func TestVerifyIntactChain(t *testing.T) {
	if err := Verify(chain(t, 4), nil); err != nil {
		t.Fatalf("intact chain: %v", err)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	entries := chain(t, 4)
	entries[2].Content["n"] = float64(99)

	err := Verify(entries, nil)
	if err == nil || !strings.Contains(err.Error(), "hash mismatch") {
		t.Fatalf("expected hash mismatch, got %v", err)
	}
}

func TestVerifyDetectsBrokenLink(t *testing.T) {
	entries := chain(t, 3)
	entries = append(entries[:1], entries[2:]...)

	err := Verify(entries, nil)
	if err == nil || !strings.Contains(err.Error(), "prev_hash mismatch") {
		t.Fatalf("expected prev_hash mismatch, got %v", err)
	}
}

func TestNextStampStrictlyAfterHead(t *testing.T) {
	head := time.Date(2026, 3, 1, 10, 0, 0, 5000, time.UTC)
	tests := []struct {
		name      string
		head, now time.Time
		want      time.Time
	}{
		{"empty chain", time.Time{}, head.Add(1500), head.Add(1000)},
		{"clock ahead", head, head.Add(time.Second), head.Add(time.Second)},
		{"same microsecond", head, head.Add(300), head.Add(time.Microsecond)},
		{"clock behind head", head, head.Add(-time.Minute), head.Add(time.Microsecond)},
	}
	for _, tt := range tests {
		if got := NextStamp(tt.head, tt.now); !got.Equal(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}
