package utils

import (
	"testing"
	"time"
)

func TestDateOnly_TruncatesToUTCCalendarDate(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	in := time.Date(2024, 3, 10, 23, 45, 0, 0, loc) // 16:45 UTC same day
	got := DateOnly(in)
	want := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("DateOnly = %s, want %s", got, want)
	}
}

func TestSameDay(t *testing.T) {
	a := time.Date(2024, 3, 10, 0, 1, 0, 0, time.UTC)
	b := time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC)
	c := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	if !SameDay(a, b) {
		t.Fatalf("expected %s and %s to share a day", a, b)
	}
	if SameDay(a, c) {
		t.Fatalf("%s and %s must not share a day", a, c)
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-03-10")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if got.Year() != 2024 || got.Month() != time.March || got.Day() != 10 {
		t.Fatalf("ParseDate = %s", got)
	}
	if _, err := ParseDate("10/03/2024"); err == nil {
		t.Fatalf("expected error for non-ISO input")
	}
}
