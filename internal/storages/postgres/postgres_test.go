package postgres

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"gw-auth-service/internal/storages"
)

func TestPQCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain error", errors.New("connection reset"), ""},
		{"pq error", &pq.Error{Code: pqUniqueViolation}, pqUniqueViolation},
		{"wrapped pq error", fmt.Errorf("insert failed: %w", &pq.Error{Code: pqForeignKeyViolation}), pqForeignKeyViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := pqCode(tt.err); got != tt.want {
				t.Errorf("Expected code %q, got %q", tt.want, got)
			}
		})
	}
}

func TestInsertErrorMapsColumnLimits(t *testing.T) {
	for _, code := range []pq.ErrorCode{pqNumericOutOfRange, pqStringTooLong} {
		err := insertError(&pq.Error{Code: code})
		if !errors.Is(err, storages.ErrValueOutOfRange) {
			t.Errorf("Expected ErrValueOutOfRange for %s, got %v", code, err)
		}
	}

	err := insertError(errors.New("connection reset"))
	if errors.Is(err, storages.ErrValueOutOfRange) {
		t.Fatalf("Expected generic error to stay unclassified, got %v", err)
	}
}

func TestBalanceErrorMapsOverflow(t *testing.T) {
	err := balanceError(&pq.Error{Code: pqNumericOutOfRange})
	if !errors.Is(err, storages.ErrBalanceOverflow) {
		t.Fatalf("Expected ErrBalanceOverflow, got %v", err)
	}

	err = balanceError(&pq.Error{Code: pqUniqueViolation})
	if errors.Is(err, storages.ErrBalanceOverflow) {
		t.Fatalf("Expected other codes not to map to overflow, got %v", err)
	}
}

func TestBuildTransactionQueryWithoutFilter(t *testing.T) {
	query, args := buildTransactionQuery(nil, storages.TransactionFilter{})

	if strings.Contains(query, "WHERE") || strings.Contains(query, "LIMIT") {
		t.Errorf("Expected no conditions, got %q", query)
	}
	if !strings.HasSuffix(query, "ORDER BY timestamp DESC") {
		t.Errorf("Expected ordering by timestamp, got %q", query)
	}
	if len(args) != 0 {
		t.Errorf("Expected no args, got %v", args)
	}
}

func TestBuildTransactionQueryNumbersPlaceholders(t *testing.T) {
	userID := uuid.New()
	cardID := uuid.New()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	query, args := buildTransactionQuery(&userID, storages.TransactionFilter{
		Status:    storages.TransactionStatusPending,
		CardID:    &cardID,
		StartDate: &start,
		EndDate:   &end,
		Limit:     20,
	})

	want := " WHERE user_id = $1 AND status = $2 AND card_id = $3 AND timestamp >= $4 AND timestamp <= $5" +
		" ORDER BY timestamp DESC LIMIT $6"
	if !strings.HasSuffix(query, want) {
		t.Fatalf("Unexpected query: %q", query)
	}

	expected := []interface{}{userID, storages.TransactionStatusPending, cardID, start, end, 20}
	if len(args) != len(expected) {
		t.Fatalf("Expected %d args, got %d", len(expected), len(args))
	}
	for i := range expected {
		if args[i] != expected[i] {
			t.Errorf("Arg $%d: expected %v, got %v", i+1, expected[i], args[i])
		}
	}
}

func TestBuildTransactionQuerySkipsMissingUser(t *testing.T) {
	query, args := buildTransactionQuery(nil, storages.TransactionFilter{Status: storages.TransactionStatusFailed})

	if !strings.Contains(query, " WHERE status = $1 ORDER BY") {
		t.Fatalf("Expected status to be the first placeholder, got %q", query)
	}
	if len(args) != 1 || args[0] != storages.TransactionStatusFailed {
		t.Fatalf("Unexpected args: %v", args)
	}
}
