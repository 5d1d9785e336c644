package booking

import (
	"testing"

	"github.com/careslot/booking/internal/schedule"
)

func tod(h, m int) schedule.TimeOfDay {
	return schedule.TimeOfDay(h*60 + m)
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name   string
		aStart schedule.TimeOfDay
		aDur   int
		bStart schedule.TimeOfDay
		bDur   int
		want   bool
	}{
		{name: "partial overlap from the right", aStart: tod(10, 15), aDur: 30, bStart: tod(10, 0), bDur: 30, want: true},
		{name: "partial overlap from the left", aStart: tod(9, 45), aDur: 30, bStart: tod(10, 0), bDur: 30, want: true},
		{name: "adjacent intervals do not overlap", aStart: tod(10, 30), aDur: 30, bStart: tod(10, 0), bDur: 30, want: false},
		{name: "adjacent before does not overlap", aStart: tod(9, 30), aDur: 30, bStart: tod(10, 0), bDur: 30, want: false},
		{name: "identical intervals overlap", aStart: tod(10, 0), aDur: 30, bStart: tod(10, 0), bDur: 30, want: true},
		{name: "containment overlaps", aStart: tod(10, 5), aDur: 10, bStart: tod(10, 0), bDur: 30, want: true},
		{name: "disjoint intervals", aStart: tod(14, 0), aDur: 30, bStart: tod(10, 0), bDur: 30, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(tc.aStart, tc.aDur, tc.bStart, tc.bDur); got != tc.want {
				t.Errorf("Overlaps(%s+%dm, %s+%dm) = %v, want %v",
					tc.aStart, tc.aDur, tc.bStart, tc.bDur, got, tc.want)
			}
		})
	}
}

func TestFindConflictIgnoresNonOccupying(t *testing.T) {
	existing := []Appointment{
		{Start: tod(10, 0), DurationMinutes: 30, Status: StatusCancelled},
		{Start: tod(10, 0), DurationMinutes: 30, Status: StatusCompleted},
		{Start: tod(10, 0), DurationMinutes: 30, Status: StatusNoShow},
	}

	if c := FindConflict(tod(10, 15), 30, 1, existing); c != nil {
		t.Fatalf("non-occupying appointments should not conflict, got %+v", c)
	}
}

func TestFindConflictReturnsOccupying(t *testing.T) {
	existing := []Appointment{
		{Start: tod(9, 0), DurationMinutes: 30, Status: StatusConfirmed},
		{Start: tod(10, 0), DurationMinutes: 30, Status: StatusScheduled},
	}

	c := FindConflict(tod(10, 15), 30, 1, existing)
	if c == nil {
		t.Fatal("expected conflict with 10:00-10:30 appointment")
	}
	if c.Start != tod(10, 0) {
		t.Errorf("conflicting start = %s, want 10:00", c.Start)
	}

	if c := FindConflict(tod(10, 30), 30, 1, existing); c != nil {
		t.Fatalf("10:30-11:00 is adjacent, not conflicting, got %+v", c)
	}
}

func TestFindConflictSharedSlotCapacity(t *testing.T) {
	existing := []Appointment{
		{Start: tod(10, 0), DurationMinutes: 30, Status: StatusConfirmed},
	}

	// A second appointment at the same start fits while the slot has room.
	if c := FindConflict(tod(10, 0), 30, 2, existing); c != nil {
		t.Fatalf("capacity 2 with 1 booked should admit the same start, got %+v", c)
	}

	existing = append(existing, Appointment{Start: tod(10, 0), DurationMinutes: 30, Status: StatusConfirmed})
	if c := FindConflict(tod(10, 0), 30, 2, existing); c == nil {
		t.Fatal("capacity 2 with 2 booked should reject the same start")
	}

	// Capacity only shares the exact start; an overlapping different start
	// still conflicts.
	if c := FindConflict(tod(10, 15), 30, 2, existing); c == nil {
		t.Fatal("overlap from a different start must conflict regardless of capacity")
	}

	if c := FindConflict(tod(10, 0), 30, 0, existing[:1]); c == nil {
		t.Fatal("capacity below 1 must behave as 1")
	}
}
