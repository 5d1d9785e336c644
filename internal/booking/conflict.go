package booking

import "github.com/careslot/booking/internal/schedule"

// Overlaps reports whether two half-open intervals [aStart, aStart+aDur)
// and [bStart, bStart+bDur) intersect. Back-to-back appointments sharing a
// boundary minute do not overlap.
func Overlaps(aStart schedule.TimeOfDay, aDur int, bStart schedule.TimeOfDay, bDur int) bool {
	return aStart < bStart.Add(bDur) && aStart.Add(aDur) > bStart
}

// FindConflict decides whether a proposed interval may join the existing
// occupying appointments. Appointments sharing the proposed start share
// that slot and count against capacity; an overlap from any other start is
// always a conflict. Returns the blocking appointment, or nil.
func FindConflict(start schedule.TimeOfDay, duration, capacity int, existing []Appointment) *Appointment {
	if capacity < 1 {
		capacity = 1
	}

	sameStart := 0
	for i := range existing {
		appt := &existing[i]
		if !appt.Status.Occupying() {
			continue
		}
		if appt.Start == start {
			sameStart++
			if sameStart >= capacity {
				return appt
			}
			continue
		}
		if Overlaps(start, duration, appt.Start, appt.DurationMinutes) {
			return appt
		}
	}
	return nil
}
