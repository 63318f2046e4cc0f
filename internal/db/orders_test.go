package db

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

func TestPreviousStatusesFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		next OrderStatus
		want []string
	}{
		{StatusConfirmed, []string{"pending"}},
		{StatusProcessing, []string{"confirmed"}},
		{StatusShipped, []string{"processing"}},
		{StatusDelivered, []string{"shipped"}},
		{StatusRefunded, []string{"delivered"}},
		{StatusCancelled, []string{"pending", "confirmed"}},
		{StatusPending, nil},
	}

	for _, tc := range tests {
		t.Run(string(tc.next), func(t *testing.T) {
			got := previousStatusesFor(tc.next)
			slices.Sort(got)
			want := slices.Clone(tc.want)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Errorf("previousStatusesFor(%s) = %v, want %v", tc.next, got, want)
			}
		})
	}
}

func TestGenerateOrderNumber(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	number := generateOrderNumber(now)

	if !strings.HasPrefix(number, "ORD-20260831-") {
		t.Errorf("order number %q missing date prefix", number)
	}
	if len(number) != len("ORD-20260831-")+6 {
		t.Errorf("order number %q has unexpected length", number)
	}

	seen := make(map[string]bool)
	for range 50 {
		seen[generateOrderNumber(now)] = true
	}
	if len(seen) < 2 {
		t.Error("order numbers are not randomized")
	}
}

func TestNormalizeTimestamp(t *testing.T) {
	t.Parallel()

	if got := normalizeTimestamp(pgtype.Timestamptz{}); !got.IsZero() {
		t.Errorf("NULL timestamp = %v, want zero time", got)
	}

	loc := time.FixedZone("ICT", 7*3600)
	local := time.Date(2026, 8, 31, 19, 30, 0, 0, loc)
	got := normalizeTimestamp(pgtype.Timestamptz{Time: local, Valid: true})
	if got.Location() != time.UTC {
		t.Errorf("timestamp location = %v, want UTC", got.Location())
	}
	if !got.Equal(local) {
		t.Errorf("timestamp = %v, want instant equal to %v", got, local)
	}
}

func TestNullableHelpers(t *testing.T) {
	t.Parallel()

	if nullableText("").Valid {
		t.Error("empty string should map to NULL")
	}
	if !nullableText("x").Valid {
		t.Error("non-empty string should be valid")
	}
	if nullableInt64(0).Valid {
		t.Error("zero should map to NULL")
	}
	if !nullableInt64(1700000000123).Valid {
		t.Error("non-zero code should be valid")
	}
	if nullableTime(time.Time{}).Valid {
		t.Error("zero time should map to NULL")
	}
	if !nullableTime(time.Now()).Valid {
		t.Error("non-zero time should be valid")
	}
}
