package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"taskdesk/pkg/apperr"
	"taskdesk/pkg/task"
	"taskdesk/pkg/user"
)

func TestHandlesConflictCaseInsensitively(t *testing.T) {
	s := NewUsers()
	ctx := context.Background()
	if _, err := s.Create(ctx, &user.User{Name: "One", Handle: "User1"}); err != nil {
		t.Fatal(err)
	}
	_, err := s.Create(ctx, &user.User{Name: "Two", Handle: "user1"})
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	u, err := s.ByHandle(ctx, "USER1")
	if err != nil {
		t.Fatal(err)
	}
	if u.Handle != "user1" {
		t.Errorf("stored handle = %q, want lower-cased", u.Handle)
	}
}

func TestUserUpdateMovesHandle(t *testing.T) {
	s := NewUsers()
	ctx := context.Background()
	a, _ := s.Create(ctx, &user.User{Handle: "first"})
	b, _ := s.Create(ctx, &user.User{Handle: "second"})

	if _, err := s.Update(ctx, b.ID, map[string]any{"handle": "FIRST"}); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if _, err := s.Update(ctx, a.ID, map[string]any{"handle": "renamed", "token_version": 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ByHandle(ctx, "first"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("old handle should be released, got %v", err)
	}
	got, _ := s.Get(ctx, a.ID)
	if got.TokenVersion != 3 {
		t.Errorf("token_version = %d", got.TokenVersion)
	}
}

func TestMutateErrorWritesNothing(t *testing.T) {
	s := NewTasks()
	ctx := context.Background()
	created, _ := s.Create(ctx, &task.Task{Title: "keep"})

	boom := errors.New("boom")
	_, err := s.Mutate(ctx, created.ID, func(t *task.Task) error {
		t.Title = "changed"
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	got, _ := s.Get(ctx, created.ID)
	if got.Title != "keep" {
		t.Errorf("title = %q, mutation leaked", got.Title)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewTasks()
	ctx := context.Background()
	created, _ := s.Create(ctx, &task.Task{Title: "t", Checklist: []task.ChecklistItem{{ID: "a"}}})

	got, _ := s.Get(ctx, created.ID)
	got.Checklist[0].Done = true

	again, _ := s.Get(ctx, created.ID)
	if again.Checklist[0].Done {
		t.Error("caller mutation reached the store")
	}
}

func TestActivityChain(t *testing.T) {
	s := NewActivity()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := s.Append(ctx, "t1", "u1", "task.updated", map[string]any{"i": i}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.VerifyChain(ctx); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	recent, _ := s.Recent(ctx, 1)
	if len(recent) != 1 || recent[0].Content["i"] != float64(2) {
		t.Errorf("recent = %+v", recent)
	}
}

func TestConcurrentAppendsKeepChronologicalChain(t *testing.T) {
	s := NewActivity()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := s.Append(ctx, "t1", "u1", "task.updated", map[string]any{"i": i}); err != nil {
				t.Error(err)
			}
		}(i)
	}
	wg.Wait()

	all, _ := s.Since(ctx, "", 0)
	if len(all) != 40 {
		t.Fatalf("got %d entries", len(all))
	}
	for i := 1; i < len(all); i++ {
		if !all[i].Timestamp.After(all[i-1].Timestamp) {
			t.Fatalf("entry %d is not after its predecessor", i)
		}
	}
	if err := s.VerifyChain(ctx); err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
}

func TestActivitySincePages(t *testing.T) {
	s := NewActivity()
	ctx := context.Background()
	var ids []string
	for i := 0; i < 5; i++ {
		e, err := s.Append(ctx, "t1", "u1", "task.updated", map[string]any{"i": i})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, e.ID)
	}

	page, _ := s.Since(ctx, ids[1], 2)
	if len(page) != 2 || page[0].ID != ids[2] || page[1].ID != ids[3] {
		t.Errorf("page = %+v", page)
	}
	if rest, _ := s.Since(ctx, ids[4], 10); len(rest) != 0 {
		t.Errorf("nothing after the head expected, got %d", len(rest))
	}
	if unknown, _ := s.Since(ctx, "missing", 10); len(unknown) != 0 {
		t.Errorf("unknown cursor returned %d entries", len(unknown))
	}
}
