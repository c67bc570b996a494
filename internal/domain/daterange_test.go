package domain

import (
	"testing"
	"time"
)

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange([]any{"2024-01-01", "2024-06-01"})
	if err != nil {
		t.Fatalf("ParseDateRange failed: %v", err)
	}
	if r.Start == nil || r.End == nil {
		t.Fatalf("bounds missing: %+v", r)
	}
	if !r.Contains(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("should contain an inner date")
	}
	if !r.Contains(*r.Start) {
		t.Error("start bound is included")
	}
	if r.Contains(*r.End) {
		t.Error("end bound is excluded")
	}
}

func TestParseDateRangeUnbounded(t *testing.T) {
	r, err := ParseDateRange(nil)
	if err != nil {
		t.Fatalf("ParseDateRange failed: %v", err)
	}
	if !r.Contains(time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("unbounded range should contain everything")
	}

	r, err = ParseDateRange([]any{"2024-01-01", nil})
	if err != nil {
		t.Fatalf("half-bounded failed: %v", err)
	}
	if r.End != nil {
		t.Errorf("end = %v, want nil", r.End)
	}
}

func TestParseDateRangeRejectsReversedBounds(t *testing.T) {
	if _, err := ParseDateRange([]any{"2024-06-01", "2024-01-01"}); err == nil {
		t.Error("reversed bounds should fail")
	}
}
