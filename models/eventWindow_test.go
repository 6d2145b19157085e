package models

import (
	"testing"
	"time"
)

// Stored event dates may carry a time of day while window bounds are plain
// calendar dates. The generated SQL bounds must still include a same-day
// event regardless of its time-of-day.

func TestDayCeil_ClosingDayCoversTimeOfDay(t *testing.T) {
	to := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	event := time.Date(2024, 1, 31, 9, 0, 0, 0, time.UTC)

	if !event.Before(dayCeil(to)) {
		t.Fatalf("event at %s must satisfy date < %s", event, dayCeil(to))
	}
	nextDay := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	if nextDay.Before(dayCeil(to)) {
		t.Fatalf("event on the following day must fall outside the window")
	}
}

func TestDayFloor_OpeningDayCoversTimeOfDay(t *testing.T) {
	from := time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC)
	event := time.Date(2024, 1, 15, 0, 30, 0, 0, time.UTC)

	// A from bound with a time of day must not exclude earlier same-day events.
	if event.Before(dayFloor(from)) {
		t.Fatalf("event at %s must satisfy date >= %s", event, dayFloor(from))
	}
}

func TestDayFloor_BeforeBoundExcludesWholeCutoffDay(t *testing.T) {
	cutoff := time.Date(2024, 1, 31, 18, 0, 0, 0, time.UTC)
	morning := time.Date(2024, 1, 31, 1, 0, 0, 0, time.UTC)
	prior := time.Date(2024, 1, 30, 23, 0, 0, 0, time.UTC)

	// Opening-balance cutoff: the cutoff day itself belongs to the window,
	// never to the opening sum.
	if morning.Before(dayFloor(cutoff)) {
		t.Fatalf("cutoff-day event at %s must not satisfy date < %s", morning, dayFloor(cutoff))
	}
	if !prior.Before(dayFloor(cutoff)) {
		t.Fatalf("prior-day event at %s must satisfy date < %s", prior, dayFloor(cutoff))
	}
}
