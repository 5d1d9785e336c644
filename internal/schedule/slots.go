package schedule

import (
	"sort"
	"time"
)

// DayContext is everything BuildSlots needs to know about one doctor-day.
// The service assembles it from storage; tests assemble it by hand.
type DayContext struct {
	Rules    []WeeklyRule      // rules matching the date's weekday with IsAvailable = true
	Blocked  bool              // date appears in blocked_dates
	Booked   map[TimeOfDay]int // occupying appointment count per start time
	Settings Settings
}

// BuildSlots derives the ordered bookable slots for a date.
//
// Each rule window is walked from start to end in steps of consultation
// duration plus buffer. A step only becomes a slot when the full
// consultation still fits before the rule's end; a shorter tail window is
// dropped rather than partially offered. A slot is available while fewer
// than the rule's MaxConcurrent occupying appointments start at that exact
// time. When the target date is today, slots whose start has already
// passed are not emitted at all.
func BuildSlots(date time.Time, now time.Time, day DayContext) []Slot {
	if day.Blocked {
		return nil
	}

	duration := day.Settings.ConsultationMinutes
	if duration <= 0 {
		duration = DefaultConsultationMinutes
	}
	buffer := day.Settings.BufferMinutes
	if buffer < 0 {
		buffer = 0
	}
	step := duration + buffer

	isToday := DateOnly(now).Equal(DateOnly(date))
	nowMinute := TimeOfDay(now.Hour()*60 + now.Minute())

	var slots []Slot
	for _, rule := range day.Rules {
		if !rule.IsAvailable || rule.Start >= rule.End {
			continue
		}

		capacity := rule.MaxConcurrent
		if capacity < 1 {
			capacity = 1
		}

		for start := rule.Start; start.Add(duration) <= rule.End; start = start.Add(step) {
			if isToday && start <= nowMinute {
				continue
			}
			slots = append(slots, Slot{
				Date:      DateOnly(date),
				Start:     start,
				Available: day.Booked[start] < capacity,
			})
		}
	}

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].Start < slots[j].Start
	})

	return slots
}
