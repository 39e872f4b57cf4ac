package task

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"taskdesk/pkg/apperr"
)

// CreateInput is a validated request to create a task.
type CreateInput struct {
	Title       string
	Description string
	Priority    Priority
	DueDate     *time.Time
	AssignedTo  []string
	Attachments []string
	Checklist   []ChecklistItem
}

// Patch is a validated partial update. Nil fields are left untouched.
type Patch struct {
	Title       *string
	Description *string
	Priority    *Priority
	Status      *Status
	DueDate     *time.Time
	ClearDue    bool
	AssignedTo  *[]string
	Attachments *[]string
	Checklist   *[]ChecklistItem
}

// Empty reports whether the patch changes nothing.
func (p *Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Priority == nil && p.Status == nil &&
		p.DueDate == nil && !p.ClearDue && p.AssignedTo == nil && p.Attachments == nil && p.Checklist == nil
}

type fields map[string]json.RawMessage

func decodeObject(data []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil || f == nil {
		return nil, apperr.Validation("request body must be a JSON object")
	}
	return f, nil
}

func (f fields) has(key string) bool {
	raw, ok := f[key]
	return ok && !isNull(raw)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (f fields) str(key string) (string, error) {
	var s string
	if err := json.Unmarshal(f[key], &s); err != nil {
		return "", apperr.Validation("%s must be a string", key)
	}
	return s, nil
}

func (f fields) requiredStr(key string) (string, error) {
	if !f.has(key) {
		return "", apperr.Validation("%s is required", key)
	}
	s, err := f.str(key)
	if err != nil {
		return "", err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", apperr.Validation("%s is required", key)
	}
	return s, nil
}

func (f fields) strList(key string) ([]string, error) {
	raw := bytes.TrimSpace(f[key])
	if len(raw) == 0 || raw[0] != '[' {
		return nil, apperr.Validation("%s must be a list", key)
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, apperr.Validation("%s must be a list of strings", key)
	}
	if out == nil {
		out = []string{}
	}
	return dedupe(out), nil
}

func (f fields) checklist(key string) ([]ChecklistItem, error) {
	raw := bytes.TrimSpace(f[key])
	if len(raw) == 0 || raw[0] != '[' {
		return nil, apperr.Validation("%s must be a list", key)
	}
	var items []ChecklistItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperr.Validation("%s items must be objects with text and done", key)
	}
	if items == nil {
		items = []ChecklistItem{}
	}
	return items, nil
}

func (f fields) priority() (Priority, error) {
	s, err := f.str("priority")
	if err != nil {
		return "", err
	}
	p := Priority(s)
	if !p.Valid() {
		return "", apperr.Validation("priority must be one of Low, Moderate, High")
	}
	return p, nil
}

func (f fields) status() (Status, error) {
	s, err := f.str("status")
	if err != nil {
		return "", err
	}
	st := Status(s)
	if !st.Valid() {
		return "", apperr.Validation("status must be one of Pending, In Progress, Completed")
	}
	return st, nil
}

func (f fields) dueDate() (*time.Time, error) {
	s, err := f.str("due_date")
	if err != nil {
		return nil, err
	}
	d, err := ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ParseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates (UTC).
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, apperr.Validation("invalid date %q", s)
}

// DecodeCreate validates a create request body.
func DecodeCreate(data []byte) (*CreateInput, error) {
	f, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	in := &CreateInput{Priority: PriorityModerate}

	if in.Title, err = f.requiredStr("title"); err != nil {
		return nil, err
	}
	if in.Description, err = f.requiredStr("description"); err != nil {
		return nil, err
	}
	if in.AssignedTo, err = f.strList("assigned_to"); err != nil {
		return nil, err
	}
	if f.has("priority") {
		if in.Priority, err = f.priority(); err != nil {
			return nil, err
		}
	}
	if f.has("due_date") {
		if in.DueDate, err = f.dueDate(); err != nil {
			return nil, err
		}
	}
	if f.has("checklist") {
		if in.Checklist, err = f.checklist("checklist"); err != nil {
			return nil, err
		}
		if err := validateItemText(in.Checklist); err != nil {
			return nil, err
		}
	}
	if f.has("attachments") {
		if in.Attachments, err = f.strList("attachments"); err != nil {
			return nil, err
		}
	}
	return in, nil
}

// DecodePatch validates a partial update body.
func DecodePatch(data []byte) (*Patch, error) {
	f, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	if _, ok := f["progress"]; ok {
		return nil, apperr.Validation("progress is derived from the checklist and cannot be set")
	}

	p := &Patch{}
	if _, ok := f["title"]; ok {
		title, err := f.requiredStr("title")
		if err != nil {
			return nil, err
		}
		p.Title = &title
	}
	if f.has("description") {
		d, err := f.str("description")
		if err != nil {
			return nil, err
		}
		p.Description = &d
	}
	if f.has("priority") {
		pr, err := f.priority()
		if err != nil {
			return nil, err
		}
		p.Priority = &pr
	}
	if f.has("status") {
		st, err := f.status()
		if err != nil {
			return nil, err
		}
		p.Status = &st
	}
	if raw, ok := f["due_date"]; ok {
		if isNull(raw) {
			p.ClearDue = true
		} else if p.DueDate, err = f.dueDate(); err != nil {
			return nil, err
		}
	}
	if f.has("assigned_to") {
		ids, err := f.strList("assigned_to")
		if err != nil {
			return nil, err
		}
		p.AssignedTo = &ids
	}
	if f.has("attachments") {
		att, err := f.strList("attachments")
		if err != nil {
			return nil, err
		}
		p.Attachments = &att
	}
	if f.has("checklist") {
		items, err := f.checklist("checklist")
		if err != nil {
			return nil, err
		}
		if err := validateItemText(items); err != nil {
			return nil, err
		}
		p.Checklist = &items
	}
	return p, nil
}

// DecodeChecklist validates a checklist reconciliation body. The list must
// be present and non-empty.
func DecodeChecklist(data []byte) ([]ChecklistItem, error) {
	f, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	if !f.has("checklist") {
		return nil, apperr.Validation("checklist is required")
	}
	items, err := f.checklist("checklist")
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, apperr.Validation("checklist must not be empty")
	}
	return items, nil
}

// DecodeStatus validates a status transition body.
func DecodeStatus(data []byte) (Status, error) {
	f, err := decodeObject(data)
	if err != nil {
		return "", err
	}
	if !f.has("status") {
		return "", apperr.Validation("status is required")
	}
	return f.status()
}

func validateItemText(items []ChecklistItem) error {
	for i := range items {
		items[i].Text = strings.TrimSpace(items[i].Text)
		if items[i].Text == "" {
			return apperr.Validation("checklist item %d has no text", i+1)
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
