package booking

import (
	"time"
)

const dateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD calendar date as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// ParseAppointmentTime combines a YYYY-MM-DD date and an HH:MM time in UTC.
func ParseAppointmentTime(date, clock string) (time.Time, error) {
	d, err := time.ParseInLocation(dateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, ErrInvalidDateTime
	}
	tod, err := ParseTimeOfDay(clock)
	if err != nil {
		return time.Time{}, ErrInvalidDateTime
	}
	return d.Add(time.Duration(tod.Minutes()) * time.Minute), nil
}

// DayBounds returns [midnight, next midnight) in UTC for the calendar date of t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	t = t.UTC()
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// ComputeAvailableSlots returns the bookable HH:MM start times on date for the
// given weekly rules, minus the times held by active bookings on that date.
// Output keeps rule order, then chronological order within a rule; repeated
// times from overlapping rules are reported once.
func ComputeAvailableSlots(rules []WeeklyRule, date time.Time, bookings []Booking) []string {
	dayStart, dayEnd := DayBounds(date)
	weekday := dayStart.Weekday()

	taken := make(map[string]struct{}, len(bookings))
	for _, b := range bookings {
		if !b.Status.Active() {
			continue
		}
		at := b.AppointmentAt.UTC()
		if at.Before(dayStart) || !at.Before(dayEnd) {
			continue
		}
		taken[at.Format("15:04")] = struct{}{}
	}

	slots := []string{}
	seen := make(map[string]struct{})
	for _, rule := range rules {
		if rule.Day != weekday || rule.SlotDurationMinutes <= 0 {
			continue
		}
		step := time.Duration(rule.SlotDurationMinutes) * time.Minute
		end := dayStart.Add(time.Duration(rule.End.Minutes()) * time.Minute)
		for cur := dayStart.Add(time.Duration(rule.Start.Minutes()) * time.Minute); cur.Before(end); cur = cur.Add(step) {
			label := cur.Format("15:04")
			if _, ok := taken[label]; ok {
				continue
			}
			if _, ok := seen[label]; ok {
				continue
			}
			seen[label] = struct{}{}
			slots = append(slots, label)
		}
	}
	return slots
}
