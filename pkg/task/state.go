package task

import "github.com/google/uuid"

// Progress returns round-half-up(100 * done / total), or 0 for an empty
// checklist.
func Progress(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*done + total) / (2 * total)
}

// StatusFor derives a status from a progress percentage.
func StatusFor(progress int) Status {
	switch {
	case progress >= 100:
		return StatusCompleted
	case progress > 0:
		return StatusInProgress
	default:
		return StatusPending
	}
}

// Recompute derives Progress and Status from the checklist. Every mutation
// path that touches the checklist ends here.
func (t *Task) Recompute() {
	t.Progress = Progress(t.DoneCount(), len(t.Checklist))
	t.Status = StatusFor(t.Progress)
}

// ApplyStatus sets an explicit status. Completed overrides the checklist:
// every item is marked done and progress becomes 100. Other statuses leave
// checklist and progress alone.
func (t *Task) ApplyStatus(s Status) {
	t.Status = s
	if s != StatusCompleted {
		return
	}
	for i := range t.Checklist {
		t.Checklist[i].Done = true
	}
	t.Progress = 100
}

// ReconcileChecklist applies the done-flags of incoming items to existing
// items with the same ID. Unknown IDs are ignored and the checklist is never
// grown, shrunk or reordered. Returns the number of items changed.
func (t *Task) ReconcileChecklist(incoming []ChecklistItem) int {
	byID := make(map[string]bool, len(incoming))
	for _, it := range incoming {
		if it.ID == "" {
			continue
		}
		byID[it.ID] = it.Done
	}

	changed := 0
	for i := range t.Checklist {
		done, ok := byID[t.Checklist[i].ID]
		if !ok || t.Checklist[i].Done == done {
			continue
		}
		t.Checklist[i].Done = done
		changed++
	}
	t.Recompute()
	return changed
}

// ReplaceChecklist swaps in a new checklist. Items whose ID matches an
// existing item keep it; all others get a fresh ID. Progress and status are
// recomputed.
func (t *Task) ReplaceChecklist(items []ChecklistItem) {
	known := make(map[string]bool, len(t.Checklist))
	for _, it := range t.Checklist {
		known[it.ID] = true
	}
	next := make([]ChecklistItem, 0, len(items))
	for _, it := range items {
		if !known[it.ID] {
			it.ID = newItemID()
		}
		known[it.ID] = false // a repeated ID gets a fresh one
		next = append(next, it)
	}
	t.Checklist = next
	t.Recompute()
}

func newItemID() string {
	return uuid.Must(uuid.NewV7()).String()
}
