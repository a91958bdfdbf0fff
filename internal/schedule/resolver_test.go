package schedule

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"
	_ "time/tzdata"

	"skolcal/internal/model"
	"skolcal/internal/skola24"
)

// fakeVendor records every call, in order, into a shared log. The pacer
// writes to the same log so the per-week sequence can be asserted.
type fakeVendor struct {
	log *[]string

	years     []skola24.SchoolYear
	units     []skola24.Unit
	selection []skola24.Selectable
	lessons   map[int][]skola24.Lesson // by week; missing week means no timetable

	failTimetableWeek int
	keys              int
	timetableReqs     []skola24.TimetableRequest
}

func (f *fakeVendor) record(s string) { *f.log = append(*f.log, s) }

func (f *fakeVendor) SchoolYears(_ context.Context, host string) ([]skola24.SchoolYear, error) {
	f.record("school-years")
	return f.years, nil
}

func (f *fakeVendor) Units(_ context.Context, host string) ([]skola24.Unit, error) {
	f.record("units")
	return f.units, nil
}

func (f *fakeVendor) Selection(_ context.Context, unit skola24.Unit, kind skola24.Kind) ([]skola24.Selectable, error) {
	f.record("selection:" + kind.String())
	return f.selection, nil
}

func (f *fakeVendor) RenderKey(context.Context) (string, error) {
	f.keys++
	f.record("render-key")
	return fmt.Sprintf("key-%d", f.keys), nil
}

func (f *fakeVendor) Timetable(_ context.Context, req skola24.TimetableRequest) ([]skola24.Lesson, bool, error) {
	f.record(fmt.Sprintf("timetable:%d", req.Week))
	f.timetableReqs = append(f.timetableReqs, req)
	if req.Week == f.failTimetableWeek {
		return nil, false, &model.StageError{Stage: skola24.StageTimetable, Err: model.ErrUpstream}
	}
	lessons, ok := f.lessons[req.Week]
	return lessons, ok, nil
}

type logPacer struct{ log *[]string }

func (p logPacer) Wait() { *p.log = append(*p.log, "wait") }

func stockholm(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Stockholm")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func newFixture(t *testing.T, trackYears bool) (*Resolver, *fakeVendor, *[]string) {
	t.Helper()
	var log []string
	v := &fakeVendor{
		log: &log,
		years: []skola24.SchoolYear{{
			GUID: "sy-2324",
			From: time.Date(2023, time.August, 1, 0, 0, 0, 0, time.UTC),
			To:   time.Date(2024, time.July, 31, 0, 0, 0, 0, time.UTC),
		}},
		units:     []skola24.Unit{{HostName: "h.skola24.se", GUID: "u-1", ID: "Skolan"}},
		selection: []skola24.Selectable{{Name: "9A", GUID: "g-9a"}, {Name: "9B", GUID: "g-9b"}},
		lessons: map[int][]skola24.Lesson{
			10: {{GUID: "g1", Texts: []string{"MathA", "MrX", "Room1"}, DayOfWeek: 1, TimeStart: "08:00:00", TimeEnd: "09:30:00"}},
			12: {{GUID: "g2", Texts: []string{"Art"}, DayOfWeek: 3, TimeStart: "10:00", TimeEnd: "11:00"}},
		},
	}
	r, err := NewResolver(v, Options{Pacer: logPacer{log: &log}, Location: stockholm(t), TrackSchoolYears: trackYears})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return r, v, &log
}

func classRequest(start, end int) Request {
	return Request{
		Unit:       "Skolan",
		Host:       "h.skola24.se",
		Identifier: "9A",
		Kind:       skola24.KindClass,
		Year:       2024,
		StartWeek:  start,
		EndWeek:    end,
	}
}

func TestResolveCallSequence(t *testing.T) {
	r, v, log := newFixture(t, true)

	events, err := r.Resolve(context.Background(), classRequest(10, 13))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	want := []string{
		"school-years", "units", "selection:class",
		"wait", "render-key", "timetable:10",
		"wait", "render-key", "timetable:11",
		"wait", "render-key", "timetable:12",
		"wait", "render-key", "timetable:13",
	}
	if !slices.Equal(*log, want) {
		t.Fatalf("unexpected call sequence:\n got %v\nwant %v", *log, want)
	}

	seen := map[string]bool{}
	for _, req := range v.timetableReqs {
		if seen[req.RenderKey] {
			t.Fatalf("render key %s reused", req.RenderKey)
		}
		seen[req.RenderKey] = true
		if req.SelectionGUID != "g-9a" || req.Unit.GUID != "u-1" || req.SchoolYear != "sy-2324" {
			t.Fatalf("unexpected timetable request %+v", req)
		}
	}

	if len(events) != 2 {
		t.Fatalf("expected 2 events from weeks 10 and 12, got %d", len(events))
	}
	if events[0].Course != "MathA" || events[1].Course != "Art" {
		t.Fatalf("events not in week order: %+v", events)
	}
}

func TestResolveCallCounts(t *testing.T) {
	for _, tc := range []struct{ start, end int }{{1, 1}, {5, 9}, {30, 52}} {
		t.Run(fmt.Sprintf("weeks %d-%d", tc.start, tc.end), func(t *testing.T) {
			r, _, log := newFixture(t, false)
			if _, err := r.Resolve(context.Background(), classRequest(tc.start, tc.end)); err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			counts := map[string]int{}
			for _, c := range *log {
				if len(c) > 10 && c[:10] == "timetable:" {
					c = "timetable"
				}
				counts[c]++
			}
			weeks := tc.end - tc.start + 1
			if counts["timetable"] != weeks || counts["render-key"] != weeks || counts["wait"] != weeks {
				t.Fatalf("expected %d of each per-week call, got %v", weeks, counts)
			}
			if counts["units"] != 1 || counts["selection:class"] != 1 {
				t.Fatalf("expected one unit and one selection call, got %v", counts)
			}
			if counts["school-years"] != 0 {
				t.Fatalf("school years must not be fetched when tracking is off")
			}
		})
	}
}

func TestResolveNormalizesClassLesson(t *testing.T) {
	r, _, _ := newFixture(t, false)

	events, err := r.Resolve(context.Background(), classRequest(10, 10))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	ev := events[0]
	loc := stockholm(t)
	wantStart := time.Date(2024, time.March, 4, 8, 0, 0, 0, loc).UTC()
	wantEnd := time.Date(2024, time.March, 4, 9, 30, 0, 0, loc).UTC()

	if ev.Course != "MathA" || ev.Teacher != "MrX" || ev.Room != "Room1" || ev.Group != "9A" {
		t.Fatalf("unexpected fields %+v", ev)
	}
	if !ev.Start.Equal(wantStart) || !ev.End.Equal(wantEnd) {
		t.Fatalf("unexpected times %s - %s", ev.Start, ev.End)
	}
	if ev.Start.Location() != time.UTC {
		t.Fatalf("expected UTC storage, got %s", ev.Start.Location())
	}
	if ev.Start.Hour() != 7 {
		t.Fatalf("expected 07:00 UTC for 08:00 CET, got %s", ev.Start)
	}
	if ev.ID != "g1" {
		t.Fatalf("unexpected id %q", ev.ID)
	}
}

func TestResolveTeacherDirection(t *testing.T) {
	r, v, log := newFixture(t, false)
	v.selection = []skola24.Selectable{{Name: "MrX", GUID: "p-1"}}
	v.lessons = map[int][]skola24.Lesson{
		10: {{GUID: "g1", Texts: []string{"MathA", "9A", "Room1"}, DayOfWeek: 1, TimeStart: "08:00:00", TimeEnd: "09:30:00"}},
	}

	req := classRequest(10, 10)
	req.Kind = skola24.KindTeacher
	req.Identifier = "MrX"

	events, err := r.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !slices.Contains(*log, "selection:teacher") {
		t.Fatalf("expected teacher selection, got %v", *log)
	}
	if v.timetableReqs[0].Kind.SelectionType() != 7 {
		t.Fatalf("expected teacher selection type")
	}
	if events[0].Teacher != "MrX" || events[0].Group != "9A" {
		t.Fatalf("unexpected direction %+v", events[0])
	}
}

func TestResolveUnitNotFound(t *testing.T) {
	r, _, log := newFixture(t, false)

	req := classRequest(10, 11)
	req.Unit = "Okänd"
	_, err := r.Resolve(context.Background(), req)

	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !slices.Equal(*log, []string{"units"}) {
		t.Fatalf("expected no calls after the unit lookup, got %v", *log)
	}
}

func TestResolveSelectionNotFound(t *testing.T) {
	r, _, log := newFixture(t, false)

	req := classRequest(10, 11)
	req.Identifier = "7C"
	_, err := r.Resolve(context.Background(), req)

	var se *model.StageError
	if !errors.Is(err, model.ErrNotFound) || !errors.As(err, &se) || se.Stage != skola24.StageSelection {
		t.Fatalf("expected selection ErrNotFound, got %v", err)
	}
	if slices.Contains(*log, "render-key") {
		t.Fatalf("no render key should be fetched, got %v", *log)
	}
}

func TestResolveFailureDiscardsEarlierWeeks(t *testing.T) {
	r, v, _ := newFixture(t, false)
	v.failTimetableWeek = 11

	events, err := r.Resolve(context.Background(), classRequest(10, 12))
	if !errors.Is(err, model.ErrUpstream) {
		t.Fatalf("expected ErrUpstream, got %v", err)
	}
	if events != nil {
		t.Fatalf("expected no partial result, got %d events", len(events))
	}
}

func TestResolveMissingSchoolYear(t *testing.T) {
	r, _, _ := newFixture(t, true)

	req := classRequest(40, 40) // autumn 2024, outside the only known year
	_, err := r.Resolve(context.Background(), req)

	var se *model.StageError
	if !errors.As(err, &se) || se.Stage != StageSchoolYear {
		t.Fatalf("expected school-year stage error, got %v", err)
	}
}

func TestResolveValidation(t *testing.T) {
	cases := map[string]Request{
		"start below range": classRequest(0, 3),
		"end above range":   classRequest(50, 54),
		"end before start":  classRequest(12, 10),
		"week 53 in 2024":   classRequest(52, 53),
	}
	empty := classRequest(1, 2)
	empty.Identifier = " "
	cases["empty identifier"] = empty

	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			r, _, log := newFixture(t, false)
			_, err := r.Resolve(context.Background(), req)
			if !errors.Is(err, model.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if len(*log) != 0 {
				t.Fatalf("expected no vendor calls, got %v", *log)
			}
		})
	}
}

func TestResolveEmptyRange(t *testing.T) {
	r, v, _ := newFixture(t, false)
	v.lessons = nil

	events, err := r.Resolve(context.Background(), classRequest(20, 22))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Fatalf("expected empty non-nil result, got %v", events)
	}
}
