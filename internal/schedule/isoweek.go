package schedule

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"skolcal/internal/model"
)

// isoMonday returns 00:00 UTC on the Monday of ISO week (year, week).
// Week 1 is the week containing January 4th.
func isoMonday(year, week int) time.Time {
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7 // days since Monday
	week1 := jan4.AddDate(0, 0, -offset)
	return week1.AddDate(0, 0, (week-1)*7)
}

// weeksInYear is 52 or 53. December 28th always falls in the last ISO week.
func weeksInYear(year int) int {
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}

func validateWeeks(year, start, end int) error {
	switch {
	case start < 1 || start > 53:
		return fmt.Errorf("%w: start week %d outside 1..53", model.ErrValidation, start)
	case end < 1 || end > 53:
		return fmt.Errorf("%w: end week %d outside 1..53", model.ErrValidation, end)
	case end < start:
		return fmt.Errorf("%w: end week %d before start week %d", model.ErrValidation, end, start)
	case end > weeksInYear(year):
		return fmt.Errorf("%w: %d has only %d ISO weeks", model.ErrValidation, year, weeksInYear(year))
	}
	return nil
}

// weekMondays enumerates the Mondays of weeks start..end of year.
func weekMondays(year, start, end int) ([]time.Time, error) {
	if err := validateWeeks(year, start, end); err != nil {
		return nil, err
	}
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   isoMonday(year, start),
		Count:     end - start + 1,
		Byweekday: []rrule.Weekday{rrule.MO},
	})
	if err != nil {
		return nil, fmt.Errorf("schedule: week rule: %w", err)
	}
	return r.All(), nil
}
