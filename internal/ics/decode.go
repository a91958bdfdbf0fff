package ics

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "skolcal/internal/log"
	"skolcal/internal/model"
)

var (
	teacherPattern = regexp.MustCompile(`Teacher:\s*(.*)\s*Room`)
	classPattern   = regexp.MustCompile(`(?m)^Class:[ \t]*(.*?)[ \t]*$`)
)

// Decoder reads iCalendar documents back into events.
type Decoder struct {
	// Location is the zone start/end are converted to. Defaults to
	// Europe/Berlin.
	Location *time.Location
}

// Decode parses every VEVENT of r. Unreadable documents are ErrValidation;
// a VEVENT missing SUMMARY, DESCRIPTION, DTSTART, DTEND or LOCATION is
// ErrFormat.
func (d Decoder) Decode(r io.Reader) ([]model.Event, error) {
	loc := d.Location
	if loc == nil {
		var err error
		if loc, err = time.LoadLocation("Europe/Berlin"); err != nil {
			return nil, fmt.Errorf("ics: load location: %w", err)
		}
	}

	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("%w: ics: parse calendar: %w", model.ErrValidation, err)
	}

	vevents := cal.Events()
	events := make([]model.Event, 0, len(vevents))
	for i, ve := range vevents {
		ev, err := decodeEvent(ve, loc)
		if err != nil {
			return nil, fmt.Errorf("%w: ics: vevent %d: %w", model.ErrFormat, i, err)
		}
		events = append(events, ev)
	}

	appLog.Debug("ics decoded", "events", len(events))
	return events, nil
}

func decodeEvent(ve *ical.VEvent, loc *time.Location) (model.Event, error) {
	var ev model.Event

	text := func(name ical.ComponentProperty) (string, error) {
		p := ve.GetProperty(name)
		if p == nil {
			return "", fmt.Errorf("missing %s", name)
		}
		return p.Value, nil
	}

	summary, err := text(ical.ComponentPropertySummary)
	if err != nil {
		return ev, err
	}
	description, err := text(ical.ComponentPropertyDescription)
	if err != nil {
		return ev, err
	}
	if ev.Room, err = text(ical.ComponentPropertyLocation); err != nil {
		return ev, err
	}
	if ve.GetProperty(ical.ComponentPropertyDtStart) == nil {
		return ev, fmt.Errorf("missing %s", ical.ComponentPropertyDtStart)
	}
	if ve.GetProperty(ical.ComponentPropertyDtEnd) == nil {
		return ev, fmt.Errorf("missing %s", ical.ComponentPropertyDtEnd)
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return ev, fmt.Errorf("DTSTART: %w", err)
	}
	end, err := ve.GetEndAt()
	if err != nil {
		return ev, fmt.Errorf("DTEND: %w", err)
	}
	ev.Start = start.In(loc)
	ev.End = end.In(loc)

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		ev.ID = p.Value
	}

	ev.Group, ev.Course = splitSummary(summary, description)
	if m := teacherPattern.FindStringSubmatch(description); m != nil {
		ev.Teacher = m[1]
	}
	return ev, nil
}

// splitSummary extracts (group, course). Summaries of the form "group-course"
// are split on the first "-". When DESCRIPTION names the class, a summary
// that does not start with "class-" is taken as the course as a whole.
func splitSummary(summary, description string) (group, course string) {
	if m := classPattern.FindStringSubmatch(description); m != nil && m[1] != "" {
		class := m[1]
		if rest, ok := strings.CutPrefix(summary, class+"-"); ok {
			return class, rest
		}
		return class, summary
	}
	if g, c, ok := strings.Cut(summary, "-"); ok {
		return g, c
	}
	return "", summary
}
