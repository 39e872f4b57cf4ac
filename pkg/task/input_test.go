package task

import (
	"testing"
	"time"

	"taskdesk/pkg/apperr"
)

func TestDecodeCreate(t *testing.T) {
	in, err := DecodeCreate([]byte(`{
		"title": " Ship it ",
		"description": "release 1.0",
		"priority": "High",
		"due_date": "2026-03-01",
		"assigned_to": ["u1", "u2", "u1"],
		"checklist": [{"text": "build"}, {"text": "tag"}]
	}`))
	if err != nil {
		t.Fatalf("DecodeCreate: %v", err)
	}
	if in.Title != "Ship it" {
		t.Errorf("title = %q", in.Title)
	}
	if in.Priority != PriorityHigh {
		t.Errorf("priority = %q", in.Priority)
	}
	if in.DueDate == nil || !in.DueDate.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("due = %v", in.DueDate)
	}
	if len(in.AssignedTo) != 2 {
		t.Errorf("assigned_to = %v, want deduped", in.AssignedTo)
	}
	if len(in.Checklist) != 2 {
		t.Errorf("checklist = %v", in.Checklist)
	}
}

func TestDecodeCreateDefaultsPriority(t *testing.T) {
	in, err := DecodeCreate([]byte(`{"title":"t","description":"d","assigned_to":[]}`))
	if err != nil {
		t.Fatal(err)
	}
	if in.Priority != PriorityModerate {
		t.Errorf("priority = %q, want Moderate", in.Priority)
	}
}

func TestDecodeCreateRejects(t *testing.T) {
	bodies := map[string]string{
		"not an object":       `[1,2]`,
		"missing title":       `{"description":"d","assigned_to":[]}`,
		"numeric title":       `{"title":5,"description":"d","assigned_to":[]}`,
		"missing description": `{"title":"t","assigned_to":[]}`,
		"assignees string":    `{"title":"t","description":"d","assigned_to":"u1"}`,
		"missing assignees":   `{"title":"t","description":"d"}`,
		"checklist object":    `{"title":"t","description":"d","assigned_to":[],"checklist":{}}`,
		"blank item":          `{"title":"t","description":"d","assigned_to":[],"checklist":[{"text":" "}]}`,
		"bad priority":        `{"title":"t","description":"d","assigned_to":[],"priority":"Urgent"}`,
		"bad date":            `{"title":"t","description":"d","assigned_to":[],"due_date":"tomorrow"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeCreate([]byte(body))
			if !apperr.Is(err, apperr.KindValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDecodePatchRejectsProgress(t *testing.T) {
	_, err := DecodePatch([]byte(`{"progress": 80}`))
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodePatchPartial(t *testing.T) {
	p, err := DecodePatch([]byte(`{"priority":"Low","due_date":null}`))
	if err != nil {
		t.Fatal(err)
	}
	if p.Priority == nil || *p.Priority != PriorityLow {
		t.Errorf("priority = %v", p.Priority)
	}
	if !p.ClearDue {
		t.Error("null due_date should clear")
	}
	if p.Title != nil || p.Checklist != nil || p.Status != nil {
		t.Error("omitted fields should stay nil")
	}
	if p.Empty() {
		t.Error("patch should not be empty")
	}

	empty, err := DecodePatch([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if !empty.Empty() {
		t.Error("{} should decode to an empty patch")
	}
}

func TestDecodeChecklist(t *testing.T) {
	items, err := DecodeChecklist([]byte(`{"checklist":[{"id":"a","done":true}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].ID != "a" || !items[0].Done {
		t.Errorf("items = %+v", items)
	}

	for _, body := range []string{`{}`, `{"checklist":[]}`, `{"checklist":"a"}`} {
		if _, err := DecodeChecklist([]byte(body)); !apperr.Is(err, apperr.KindValidation) {
			t.Errorf("%s: expected validation error, got %v", body, err)
		}
	}
}

func TestDecodeStatus(t *testing.T) {
	s, err := DecodeStatus([]byte(`{"status":"In Progress"}`))
	if err != nil || s != StatusInProgress {
		t.Fatalf("got %q, %v", s, err)
	}
	if _, err := DecodeStatus([]byte(`{"status":"Done"}`)); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2026-05-04T10:30:00+02:00")
	if err != nil {
		t.Fatal(err)
	}
	if d.Hour() != 8 || d.Location() != time.UTC {
		t.Errorf("got %v, want 08:30 UTC", d)
	}
}
