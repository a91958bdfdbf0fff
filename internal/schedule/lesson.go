package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"skolcal/internal/model"
	"skolcal/internal/skola24"
)

// splitTexts maps the vendor text list to (name, counterpart, room). Missing
// entries are empty; extra entries are ignored.
func splitTexts(texts []string) (name, counterpart, room string) {
	get := func(i int) string {
		if i < len(texts) {
			return texts[i]
		}
		return ""
	}
	return get(0), get(1), get(2)
}

// parseClock accepts "15:04:05" (optionally with fractional seconds) and "15:04".
func parseClock(s string) (hour, minute, second int, err error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		t, perr := time.Parse(layout, s)
		if perr == nil {
			return t.Hour(), t.Minute(), t.Second(), nil
		}
	}
	return 0, 0, 0, fmt.Errorf("bad time of day %q", s)
}

// lessonTime combines the ISO date (year, week, day) with a wall clock time in
// loc and returns the instant in UTC.
func lessonTime(year, week, day int, clock string, loc *time.Location) (time.Time, error) {
	h, m, s, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	date := isoMonday(year, week).AddDate(0, 0, day-1)
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, s, 0, loc).UTC(), nil
}

// normalize turns one raw lesson into an Event. For class timetables the
// second text is the teacher and identifier the group; for teacher timetables
// it is the other way around.
func normalize(l skola24.Lesson, kind skola24.Kind, identifier string, year, week int, loc *time.Location) (model.Event, error) {
	if l.DayOfWeek < 1 || l.DayOfWeek > 7 {
		return model.Event{}, fmt.Errorf("lesson %s: dayOfWeekNumber %d outside 1..7", l.GUID, l.DayOfWeek)
	}

	name, counterpart, room := splitTexts(l.Texts)
	ev := model.Event{Course: name, Room: room}
	switch kind {
	case skola24.KindTeacher:
		ev.Group, ev.Teacher = counterpart, identifier
	default:
		ev.Group, ev.Teacher = identifier, counterpart
	}

	var err error
	if ev.Start, err = lessonTime(year, week, l.DayOfWeek, l.TimeStart, loc); err != nil {
		return model.Event{}, fmt.Errorf("lesson %s start: %w", l.GUID, err)
	}
	if ev.End, err = lessonTime(year, week, l.DayOfWeek, l.TimeEnd, loc); err != nil {
		return model.Event{}, fmt.Errorf("lesson %s end: %w", l.GUID, err)
	}

	ev.ID = l.GUID
	if ev.ID == "" {
		seed := ev.Course + "\x00" + ev.Group + "\x00" + ev.Teacher + "\x00" + ev.Start.Format(time.RFC3339)
		ev.ID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
	}
	return ev, nil
}
