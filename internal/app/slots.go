package app

import (
	"fmt"
	"time"
)

// slotStep is the grid granularity. Slots always start on :00/:30 regardless
// of the requested duration.
const slotStep = 30 * time.Minute

// overlaps is the standard half-open interval test: [aStart, aEnd) and
// [bStart, bEnd) share at least one instant.
func overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

func parseHHMM(s string) (time.Time, error) {
	// Take first 5 chars "HH:MM" ("09:00:00.000000" -> "09:00").
	if len(s) < 5 {
		return time.Time{}, fmt.Errorf("invalid time string: %s", s)
	}
	tt, err := time.Parse("15:04", s[:5])
	if err != nil {
		return time.Time{}, err
	}
	return tt, nil
}

// ruleWindow anchors a rule's HH:MM bounds onto the given date in the given
// location.
func ruleWindow(r AvailabilityRule, date time.Time, loc *time.Location) (time.Time, time.Time, error) {
	startTOD, err := parseHHMM(r.StartTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	endTOD, err := parseHHMM(r.EndTime)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !endTOD.After(startTOD) {
		return time.Time{}, time.Time{}, fmt.Errorf("end_time must be after start_time for rule %d", r.ID)
	}
	year, month, day := date.In(loc).Date()
	start := time.Date(year, month, day, startTOD.Hour(), startTOD.Minute(), 0, 0, loc)
	end := time.Date(year, month, day, endTOD.Hour(), endTOD.Minute(), 0, 0, loc)
	return start, end, nil
}

// expandRule walks one rule window in fixed steps and emits every candidate
// that fits, marking it unavailable rather than skipping it when it fails
// the now/booking/busy checks. Callers get the full grid.
func expandRule(start, end time.Time, duration time.Duration, now time.Time, bookings []Booking, busy []BusyInterval) []SlotCandidate {
	var out []SlotCandidate
	for t := start; !t.Add(duration).After(end); t = t.Add(slotStep) {
		slotEnd := t.Add(duration)
		available := t.After(now)
		if available {
			for _, b := range bookings {
				if overlaps(t, slotEnd, b.StartAtUTC, b.EndAtUTC) {
					available = false
					break
				}
			}
		}
		if available {
			for _, bi := range busy {
				if overlaps(t, slotEnd, bi.Start, bi.End) {
					available = false
					break
				}
			}
		}
		out = append(out, SlotCandidate{
			Label:     t.Format("15:04"),
			StartUTC:  t.UTC(),
			Available: available,
		})
	}
	return out
}
