package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("handler: %w", NotFound("document %s not found", "d-1"))
	if KindOf(err) != KindNotFound {
		t.Fatalf("KindOf() = %v, want %v", KindOf(err), KindNotFound)
	}
	if !IsKind(err, KindNotFound) {
		t.Fatalf("IsKind() = false, want true")
	}
}

func TestUnknownErrorTreatedAsInfrastructure(t *testing.T) {
	err := errors.New("connection reset")
	if KindOf(err) != KindInfrastructure {
		t.Fatalf("KindOf() = %v, want infrastructure", KindOf(err))
	}
	if got := PublicMessage(err); got != "internal error" {
		t.Fatalf("PublicMessage() = %q, want generic message", got)
	}
}

func TestInfrastructureHidesCause(t *testing.T) {
	cause := errors.New("pq: connection refused")
	err := Infrastructure(cause, "save document")
	if got := PublicMessage(err); got != "internal error" {
		t.Fatalf("PublicMessage() = %q, want generic message", got)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause should remain reachable for operational logging")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("bad input"), http.StatusBadRequest},
		{Authentication("expired token"), http.StatusUnauthorized},
		{Authorization("insufficient rights"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{Conflict("already approved"), http.StatusConflict},
		{Constraint("extension not allowed"), http.StatusUnprocessableEntity},
		{Throttled("slow down"), http.StatusTooManyRequests},
		{Infrastructure(errors.New("x"), "db"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestValidationFields(t *testing.T) {
	err := ValidationFields("invalid request",
		FieldProblem{Field: "email", Problem: "required"},
		FieldProblem{Field: "role", Problem: "must be one of admin, manager, user"},
	)
	fields := FieldsOf(fmt.Errorf("wrap: %w", err))
	if len(fields) != 2 {
		t.Fatalf("FieldsOf() returned %d problems, want 2", len(fields))
	}
	if fields[0].Field != "email" {
		t.Fatalf("fields[0].Field = %q, want email", fields[0].Field)
	}
}
