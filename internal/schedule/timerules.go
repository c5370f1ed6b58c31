package schedule

import (
	"fmt"
	"time"
)

const (
	// SessionMinutes is the fixed length of a tutoring session.
	SessionMinutes = 25

	// OpenLeadTime is the minimum gap between "now" and a slot's start for a
	// tutor to open it.
	OpenLeadTime = 5 * time.Minute

	// BookingLeadTime is the minimum gap for a student to book an open slot.
	// Deliberately wider than OpenLeadTime: it protects students from booking
	// something the tutor might not be ready for.
	BookingLeadTime = 30 * time.Minute

	// ShortNoticeWindow is how close to start a closure counts as short notice.
	ShortNoticeWindow = 48 * time.Hour

	// MaxBulkSlots caps a single bulk-open expansion.
	MaxBulkSlots = 100
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// CanOpenAt reports whether a slot starting at startAt may still be opened.
func CanOpenAt(now, startAt time.Time) bool {
	return startAt.Sub(now) >= OpenLeadTime
}

// CanBookAt reports whether a slot starting at startAt may still be booked.
func CanBookAt(now, startAt time.Time) bool {
	return startAt.Sub(now) >= BookingLeadTime
}

// IsShortNotice reports whether closing a slot starting at startAt counts as
// a short-notice closure.
func IsShortNotice(now, startAt time.Time) bool {
	return startAt.Sub(now) < ShortNoticeWindow
}

// NoticeHours returns the notice given, in hours, when acting now on a slot
// starting at startAt.
func NoticeHours(now, startAt time.Time) float64 {
	return startAt.Sub(now).Hours()
}

// CombineDateTime parses a calendar date ("2006-01-02") and a local
// time-of-day ("15:04") into a single UTC instant.
func CombineDateTime(date, tod string) (time.Time, error) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	t, err := time.Parse(timeLayout, tod)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", tod, err)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}

// ParseDate parses a calendar date at midnight UTC.
func ParseDate(date string) (time.Time, error) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return d, nil
}

// ExpandRange produces the start instants of the cartesian product of
// eligible days in [startDate, endDate] and the requested times of day,
// keeping only instants that satisfy the opening lead time. An empty
// daysOfWeek set means every day is eligible.
func ExpandRange(now, startDate, endDate time.Time, times []string, daysOfWeek []time.Weekday) ([]time.Time, error) {
	eligible := make(map[time.Weekday]bool, len(daysOfWeek))
	for _, d := range daysOfWeek {
		eligible[d] = true
	}

	var out []time.Time
	for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
		if len(daysOfWeek) > 0 && !eligible[day.Weekday()] {
			continue
		}
		for _, tod := range times {
			t, err := time.Parse(timeLayout, tod)
			if err != nil {
				return nil, fmt.Errorf("invalid time %q: %w", tod, err)
			}
			startAt := time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
			if !CanOpenAt(now, startAt) {
				continue
			}
			out = append(out, startAt)
		}
	}
	return out, nil
}
