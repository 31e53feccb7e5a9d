package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("bad_input", "bad"), KindValidation},
		{"wrapped conflict", fmt.Errorf("ctx: %w", Conflict("dup", "dup")), KindConflict},
		{"plain error", errors.New("boom"), KindInternal},
		{"store", Wrap("db_failure", errors.New("conn reset")), KindStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("Expected kind %s, got %s", tt.want, got)
			}
		})
	}
}

func TestWrapKeepsCauseInternal(t *testing.T) {
	cause := errors.New("pq: relation \"users\" does not exist")
	err := Wrap("user_lookup_failed", cause)

	if err.Message != "storage operation failed" {
		t.Fatalf("Expected generic message, got %q", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Fatal("Expected cause to be reachable through Unwrap")
	}
}

func TestValidationDetails(t *testing.T) {
	err := Validation("weak_password", "password policy violated", "a", "b")
	if len(err.Details) != 2 {
		t.Fatalf("Expected 2 details, got %d", len(err.Details))
	}
	if !Is(err, KindValidation) {
		t.Fatal("Expected validation kind")
	}
}
