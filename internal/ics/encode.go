package ics

import (
	"bytes"
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "skolcal/internal/log"
	"skolcal/internal/model"
)

const (
	DefaultProductID = "-//skolcal//Skola24 timetable//SV"
	DefaultUIDDomain = "stc"
)

// Encoder turns events into an iCalendar document.
type Encoder struct {
	// UIDDomain is appended to each UID after "@". Defaults to DefaultUIDDomain.
	UIDDomain string
	// ProductID is the calendar PRODID. Defaults to DefaultProductID.
	ProductID string
	// Now supplies DTSTAMP. Defaults to time.Now.
	Now func() time.Time
}

// UID returns the VEVENT UID for ev: "{start unix seconds}-{id}@{domain}".
// The start prefix keeps UIDs unique when the vendor reuses lesson GUIDs
// across weeks.
func (e Encoder) UID(ev model.Event) string {
	domain := e.UIDDomain
	if domain == "" {
		domain = DefaultUIDDomain
	}
	return fmt.Sprintf("%d-%s@%s", ev.Start.Unix(), ev.ID, domain)
}

// Description is the three-line text carried in DESCRIPTION.
func Description(ev model.Event) string {
	return fmt.Sprintf("Class: %s\nTeacher: %s\nRoom: %s", ev.Group, ev.Teacher, ev.Room)
}

// Encode builds the whole document in memory. Each event becomes one VEVENT
// with no recurrence. Content lines are CRLF-terminated on every platform.
func (e Encoder) Encode(events []model.Event) ([]byte, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	productID := e.ProductID
	if productID == "" {
		productID = DefaultProductID
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)

	stamp := now().UTC()
	for _, ev := range events {
		ve := cal.AddEvent(e.UID(ev))
		ve.SetSummary(ev.Course)
		ve.SetDescription(Description(ev))
		ve.SetStartAt(ev.Start.UTC())
		ve.SetEndAt(ev.End.UTC())
		ve.SetDtStampTime(stamp)
		ve.SetLocation(ev.Room)
	}

	var buf bytes.Buffer
	if err := cal.SerializeTo(&buf, ical.WithNewLineWindows); err != nil {
		return nil, fmt.Errorf("ics: serialize: %w", err)
	}

	appLog.Debug("ics encoded", "events", len(events), "bytes", buf.Len())
	return buf.Bytes(), nil
}
