package task_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"taskdesk/pkg/activity"
	"taskdesk/pkg/apperr"
	"taskdesk/pkg/memstore"
	"taskdesk/pkg/task"
	"taskdesk/pkg/user"
)

type fixture struct {
	engine   *task.Engine
	tasks    *memstore.Tasks
	activity *memstore.Activity
	admin    *user.User
	alice    *user.User
	bob      *user.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	users := memstore.NewUsers()
	mk := func(handle string, role user.Role) *user.User {
		u, err := users.Create(ctx, &user.User{Name: handle, Handle: handle, Role: role})
		if err != nil {
			t.Fatalf("create %s: %v", handle, err)
		}
		return u
	}

	logger := log.New()
	logger.SetOutput(io.Discard)

	f := &fixture{
		tasks:    memstore.NewTasks(),
		activity: memstore.NewActivity(),
		admin:    mk("boss", user.RoleAdmin),
		alice:    mk("alice", user.RoleMember),
		bob:      mk("bobby", user.RoleMember),
	}
	f.engine = task.NewEngine(f.tasks, users, f.activity, logger)
	return f
}

func (f *fixture) create(t *testing.T, title string, assignees []string, items ...string) *task.View {
	t.Helper()
	in := &task.CreateInput{
		Title:       title,
		Description: "desc " + title,
		Priority:    task.PriorityModerate,
		AssignedTo:  assignees,
	}
	for _, text := range items {
		in.Checklist = append(in.Checklist, task.ChecklistItem{Text: text})
	}
	v, err := f.engine.Create(context.Background(), f.admin, in)
	if err != nil {
		t.Fatalf("create %s: %v", title, err)
	}
	return v
}

func TestCreateThenGetRoundTrips(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	created, err := f.engine.Create(ctx, f.admin, &task.CreateInput{
		Title:       "Quarterly report",
		Description: "collect numbers",
		Priority:    task.PriorityHigh,
		DueDate:     &due,
		AssignedTo:  []string{f.alice.ID, f.bob.ID},
		Checklist:   []task.ChecklistItem{{Text: "draft", Done: true}},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Status != task.StatusPending || created.Progress != 0 {
		t.Errorf("new task should be Pending/0, got %q/%d", created.Status, created.Progress)
	}
	if created.Checklist[0].ID == "" || created.Checklist[0].Done {
		t.Error("checklist items should get fresh ids and start undone")
	}

	got, err := f.engine.Get(ctx, f.alice, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "Quarterly report" || got.Description != "collect numbers" {
		t.Errorf("title/description = %q/%q", got.Title, got.Description)
	}
	if got.Priority != task.PriorityHigh {
		t.Errorf("priority = %q", got.Priority)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due) {
		t.Errorf("due = %v", got.DueDate)
	}
	if len(got.Assignees) != 2 || got.Assignees[0].Handle != "alice" || got.Assignees[1].Handle != "bobby" {
		t.Errorf("assignees = %+v", got.Assignees)
	}
	if got.Creator == nil || got.Creator.ID != f.admin.ID {
		t.Errorf("creator = %+v", got.Creator)
	}
}

func TestCreateRejectsUnknownAssignee(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Create(context.Background(), f.admin, &task.CreateInput{
		Title: "t", Description: "d", AssignedTo: []string{"ghost"},
	})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMembersOnlyListAssignedTasks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.create(t, "mine", []string{f.alice.ID})
	f.create(t, "shared", []string{f.alice.ID, f.bob.ID})
	f.create(t, "his", []string{f.bob.ID})

	res, err := f.engine.List(ctx, f.alice, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tasks) != 2 {
		t.Fatalf("alice sees %d tasks, want 2", len(res.Tasks))
	}
	for _, v := range res.Tasks {
		if !v.IsAssignee(f.alice.ID) {
			t.Errorf("alice sees unassigned task %q", v.Title)
		}
	}
	if res.Summary.All != 2 {
		t.Errorf("summary.all = %d, want 2", res.Summary.All)
	}

	all, err := f.engine.List(ctx, f.admin, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all.Tasks) != 3 {
		t.Errorf("admin sees %d tasks, want 3", len(all.Tasks))
	}
	if all.Tasks[0].Title != "his" {
		t.Errorf("list should be newest first, got %q", all.Tasks[0].Title)
	}
}

func TestListStatusFilterKeepsSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, "a", []string{f.alice.ID})
	f.create(t, "b", []string{f.alice.ID})
	if _, err := f.engine.SetStatus(ctx, f.alice, v.ID, task.StatusCompleted); err != nil {
		t.Fatal(err)
	}

	res, err := f.engine.List(ctx, f.alice, task.StatusCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Tasks) != 1 || res.Tasks[0].ID != v.ID {
		t.Fatalf("filtered list = %+v", res.Tasks)
	}
	want := task.Counts{All: 2, Pending: 1, Completed: 1}
	if res.Summary != want {
		t.Errorf("summary = %+v, want %+v", res.Summary, want)
	}
}

func TestGetHiddenFromOtherMembers(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, "private", []string{f.alice.ID})
	_, err := f.engine.Get(context.Background(), f.bob, v.ID)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	_, err = f.engine.Get(context.Background(), f.bob, "missing")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestUpdateChecklistHalfDone(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, "steps", []string{f.alice.ID}, "one", "two", "three", "four")

	items := []task.ChecklistItem{
		{ID: v.Checklist[0].ID, Done: true},
		{ID: v.Checklist[2].ID, Done: true},
		{ID: "not-an-item", Done: true},
	}
	got, err := f.engine.UpdateChecklist(context.Background(), f.alice, v.ID, items)
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != 50 || got.Status != task.StatusInProgress {
		t.Errorf("got %d/%q, want 50/In Progress", got.Progress, got.Status)
	}
	if got.CompletedCount != 2 {
		t.Errorf("completed_count = %d, want 2", got.CompletedCount)
	}
	if len(got.Checklist) != 4 {
		t.Errorf("checklist grew to %d", len(got.Checklist))
	}

	stored, _ := f.tasks.Get(context.Background(), v.ID)
	if stored.Progress != 50 || stored.Status != task.StatusInProgress {
		t.Error("reconciled checklist was not persisted with progress and status")
	}
}

func TestUpdateChecklistOutsiderForbidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, "secret", []string{f.alice.ID}, "one", "two")

	_, err := f.engine.UpdateChecklist(ctx, f.bob, v.ID, []task.ChecklistItem{
		{ID: v.Checklist[0].ID, Done: true},
		{ID: v.Checklist[1].ID, Done: true},
	})
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	stored, _ := f.tasks.Get(ctx, v.ID)
	if stored.Progress != 0 || stored.Status != task.StatusPending || stored.DoneCount() != 0 {
		t.Errorf("outsider changed the task: %d/%q", stored.Progress, stored.Status)
	}

	if _, err := f.engine.UpdateChecklist(ctx, f.admin, v.ID, []task.ChecklistItem{{ID: v.Checklist[0].ID, Done: true}}); err != nil {
		t.Errorf("admin checklist update: %v", err)
	}
}

func TestConcurrentChecklistUpdatesKeepInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, "race", []string{f.alice.ID, f.bob.ID}, "a", "b", "c", "d")
	ids := []string{v.Checklist[0].ID, v.Checklist[1].ID, v.Checklist[2].ID, v.Checklist[3].ID}

	half := []task.ChecklistItem{{ID: ids[0], Done: true}, {ID: ids[1], Done: true}, {ID: ids[2]}, {ID: ids[3]}}
	all := []task.ChecklistItem{{ID: ids[0], Done: true}, {ID: ids[1], Done: true}, {ID: ids[2], Done: true}, {ID: ids[3], Done: true}}

	const pairs = 50
	errs := make(chan error, 2*pairs)
	var wg sync.WaitGroup
	for i := 0; i < pairs; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.engine.UpdateChecklist(ctx, f.alice, v.ID, half)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.engine.UpdateChecklist(ctx, f.bob, v.ID, all)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}

	stored, err := f.tasks.Get(ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Checklist) != 4 {
		t.Fatalf("checklist has %d items", len(stored.Checklist))
	}
	if want := task.Progress(stored.DoneCount(), len(stored.Checklist)); stored.Progress != want {
		t.Errorf("progress = %d, want %d for %d done", stored.Progress, want, stored.DoneCount())
	}
	if want := task.StatusFor(stored.Progress); stored.Status != want {
		t.Errorf("status = %q, want %q", stored.Status, want)
	}
	if stored.Progress != 50 && stored.Progress != 100 {
		t.Errorf("progress %d matches neither writer", stored.Progress)
	}
}

func TestUpdateChecklistRejectsEmpty(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, "steps", nil, "one")
	_, err := f.engine.UpdateChecklist(context.Background(), f.alice, v.ID, nil)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = f.engine.UpdateChecklist(context.Background(), f.alice, "missing", []task.ChecklistItem{{ID: "x"}})
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetStatusCompletedForcesChecklist(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, "finish", []string{f.alice.ID}, "a", "b", "c")

	got, err := f.engine.SetStatus(context.Background(), f.alice, v.ID, task.StatusCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if got.Progress != 100 || got.Status != task.StatusCompleted {
		t.Errorf("got %d/%q", got.Progress, got.Status)
	}
	for _, it := range got.Checklist {
		if !it.Done {
			t.Errorf("item %q not done", it.Text)
		}
	}
}

func TestSetStatusForbiddenForNonAssignee(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, "not yours", []string{f.alice.ID})

	_, err := f.engine.SetStatus(context.Background(), f.bob, v.ID, task.StatusInProgress)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	stored, _ := f.tasks.Get(context.Background(), v.ID)
	if stored.Status != task.StatusPending {
		t.Errorf("status changed to %q despite forbidden", stored.Status)
	}

	if _, err := f.engine.SetStatus(context.Background(), f.admin, v.ID, "Done"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestUpdatePartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, "before", []string{f.alice.ID}, "x", "y")

	title := "after"
	got, err := f.engine.Update(ctx, f.alice, v.ID, &task.Patch{Title: &title})
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "after" || got.Description != v.Description || got.Priority != v.Priority {
		t.Errorf("partial update touched other fields: %+v", got.Task)
	}
	if len(got.Checklist) != 2 {
		t.Error("checklist should be untouched")
	}

	if _, err := f.engine.Update(ctx, f.bob, v.ID, &task.Patch{Title: &title}); !apperr.Is(err, apperr.KindForbidden) {
		t.Errorf("expected forbidden, got %v", err)
	}
}

func TestUpdateChecklistThenStatusOverride(t *testing.T) {
	f := newFixture(t)
	v := f.create(t, "replace", []string{f.alice.ID}, "keep", "drop")

	items := []task.ChecklistItem{
		{ID: v.Checklist[0].ID, Text: "keep", Done: true},
		{Text: "added"},
	}
	got, err := f.engine.Update(context.Background(), f.admin, v.ID, &task.Patch{Checklist: &items})
	if err != nil {
		t.Fatal(err)
	}
	if got.Checklist[0].ID != v.Checklist[0].ID || got.Checklist[1].ID == "" {
		t.Errorf("ids = %s, %s", got.Checklist[0].ID, got.Checklist[1].ID)
	}
	if got.Progress != 50 || got.Status != task.StatusInProgress {
		t.Errorf("got %d/%q, want 50/In Progress", got.Progress, got.Status)
	}

	pending := task.StatusPending
	got, err = f.engine.Update(context.Background(), f.admin, v.ID, &task.Patch{Checklist: &items, Status: &pending})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != task.StatusPending {
		t.Errorf("explicit status should win, got %q", got.Status)
	}
}

func TestDeleteMissing(t *testing.T) {
	f := newFixture(t)
	err := f.engine.Delete(context.Background(), f.admin, "missing")
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDashboardEmpty(t *testing.T) {
	f := newFixture(t)
	d, err := f.engine.Dashboard(context.Background(), f.alice, task.ScopeMine)
	if err != nil {
		t.Fatal(err)
	}
	if d.Total != 0 || d.Distribution != (task.Distribution{}) || len(d.Recent) != 0 {
		t.Errorf("expected zeroed dashboard, got %+v", d)
	}
}

func TestDashboardRecentLimited(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 8; i++ {
		f.create(t, string(rune('a'+i)), []string{f.alice.ID})
	}
	f.create(t, "other", []string{f.bob.ID})

	d, err := f.engine.Dashboard(context.Background(), f.alice, task.ScopeMine)
	if err != nil {
		t.Fatal(err)
	}
	if d.Total != 8 || d.Distribution.Pending != 8 || d.Distribution.Moderate != 8 {
		t.Errorf("dashboard = %+v", d)
	}
	if len(d.Recent) != task.RecentLimit {
		t.Errorf("recent = %d, want %d", len(d.Recent), task.RecentLimit)
	}

	all, err := f.engine.Dashboard(context.Background(), f.admin, task.ScopeAll)
	if err != nil {
		t.Fatal(err)
	}
	if all.Total != 9 {
		t.Errorf("admin total = %d, want 9", all.Total)
	}
}

func TestMutationsAreRecorded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	v := f.create(t, "logged", []string{f.alice.ID}, "a")
	if _, err := f.engine.SetStatus(ctx, f.alice, v.ID, task.StatusCompleted); err != nil {
		t.Fatal(err)
	}

	entries, err := f.engine.Activity(ctx, f.alice, v.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Type != activity.TaskCreated || entries[1].Type != activity.TaskStatusChanged {
		t.Fatalf("entries = %+v", entries)
	}
	if err := f.activity.VerifyChain(ctx); err != nil {
		t.Errorf("chain: %v", err)
	}
}
