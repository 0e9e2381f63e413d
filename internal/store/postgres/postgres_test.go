package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"tokoledger/backend/internal/store"
)

func TestMapTxError(t *testing.T) {
	serialization := &pgconn.PgError{Code: "40001"}
	if !errors.Is(mapTxError(serialization), store.ErrConflict) {
		t.Fatalf("expected 40001 to map to ErrConflict")
	}

	deadlock := &pgconn.PgError{Code: "40P01"}
	if !errors.Is(mapTxError(deadlock), store.ErrConflict) {
		t.Fatalf("expected 40P01 to map to ErrConflict")
	}

	wrapped := fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40001"})
	if !errors.Is(mapTxError(wrapped), store.ErrConflict) {
		t.Fatalf("expected wrapped 40001 to map to ErrConflict")
	}

	unique := &pgconn.PgError{Code: "23505"}
	if errors.Is(mapTxError(unique), store.ErrConflict) {
		t.Fatalf("unique violation must not map to ErrConflict")
	}
	if mapTxError(nil) != nil {
		t.Fatalf("nil must map to nil")
	}
}

func TestViolationHelpers(t *testing.T) {
	if !isUniqueViolation(&pgconn.PgError{Code: "23505"}) {
		t.Fatalf("expected 23505 to be a unique violation")
	}
	if isUniqueViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("23503 is not a unique violation")
	}
	if !isForeignKeyViolation(&pgconn.PgError{Code: "23503"}) {
		t.Fatalf("expected 23503 to be a foreign key violation")
	}
	if isForeignKeyViolation(errors.New("plain error")) {
		t.Fatalf("plain errors are not pg violations")
	}
}

func TestLineTotalCents(t *testing.T) {
	cases := []struct {
		unitPrice int64
		qty       int
		discount  float64
		want      int64
	}{
		{1500, 3, 0, 4500},
		{2000, 2, 25, 3000},
		{999, 1, 50, 500},
		{100, 1, 100, 0},
		{100, 3, 33.33, 200},
	}
	for _, tc := range cases {
		got := lineTotalCents(tc.unitPrice, tc.qty, tc.discount)
		if got != tc.want {
			t.Fatalf("lineTotalCents(%d, %d, %v) = %d, want %d",
				tc.unitPrice, tc.qty, tc.discount, got, tc.want)
		}
	}
}
