package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := NotFound("task %s not found", "t1")
	wrapped := fmt.Errorf("get task: %w", base)

	if got := KindOf(wrapped); got != KindNotFound {
		t.Fatalf("KindOf: want %q, got %q", KindNotFound, got)
	}
	if !Is(wrapped, KindNotFound) {
		t.Error("Is(wrapped, NotFound) = false")
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Error("unclassified errors should be internal")
	}
	if Is(nil, KindInternal) {
		t.Error("nil error must not match any kind")
	}
}

func TestStatusOf(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:    http.StatusBadRequest,
		KindUnauthorized:  http.StatusUnauthorized,
		KindForbidden:     http.StatusForbidden,
		KindNotFound:      http.StatusNotFound,
		KindConflict:      http.StatusConflict,
		KindConfiguration: http.StatusInternalServerError,
		KindInternal:      http.StatusInternalServerError,
	}
	for k, want := range cases {
		if got := StatusOf(k); got != want {
			t.Errorf("StatusOf(%s): want %d, got %d", k, want, got)
		}
	}
}

func TestInternalKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal(cause, "list tasks")
	if !errors.Is(err, cause) {
		t.Error("Internal should unwrap to its cause")
	}
	if err.Error() != "list tasks: connection reset" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
