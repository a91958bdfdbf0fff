// Package schedule resolves a teacher or class into timetable events through
// the Skola24 vendor API.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	appLog "skolcal/internal/log"
	"skolcal/internal/model"
	"skolcal/internal/skola24"
)

const (
	// DefaultInterval is the minimum pause before each week's render key.
	DefaultInterval = 500 * time.Millisecond

	StageSchoolYear = "school-year"
)

// Vendor is the subset of the Skola24 API the resolver drives.
// *skola24.Client implements it.
type Vendor interface {
	SchoolYears(ctx context.Context, host string) ([]skola24.SchoolYear, error)
	Units(ctx context.Context, host string) ([]skola24.Unit, error)
	Selection(ctx context.Context, unit skola24.Unit, kind skola24.Kind) ([]skola24.Selectable, error)
	RenderKey(ctx context.Context) (string, error)
	Timetable(ctx context.Context, req skola24.TimetableRequest) ([]skola24.Lesson, bool, error)
}

// Pacer blocks before each week's vendor calls.
type Pacer interface {
	Wait()
}

// SleepPacer sleeps a fixed duration. It is not interruptible.
type SleepPacer time.Duration

func (p SleepPacer) Wait() {
	time.Sleep(time.Duration(p))
}

// Options configures a Resolver.
type Options struct {
	// Pacer defaults to SleepPacer(DefaultInterval).
	Pacer Pacer
	// Location is the zone lesson times are published in. Defaults to
	// Europe/Stockholm.
	Location *time.Location
	// TrackSchoolYears fetches active school years and sends the matching
	// year GUID with each render.
	TrackSchoolYears bool
}

// Request describes one resolve run.
type Request struct {
	Unit       string
	Host       string
	Identifier string
	Kind       skola24.Kind
	Year       int
	StartWeek  int
	EndWeek    int
}

// Resolver runs the call sequence school years → unit → selection → per week
// (pace → render key → timetable). It is not safe for concurrent use since
// the vendor session is shared.
type Resolver struct {
	vendor Vendor
	pacer  Pacer
	loc    *time.Location
	years  bool
}

// NewResolver builds a Resolver. It fails only when the default location
// cannot be loaded.
func NewResolver(v Vendor, opts Options) (*Resolver, error) {
	if opts.Pacer == nil {
		opts.Pacer = SleepPacer(DefaultInterval)
	}
	if opts.Location == nil {
		loc, err := time.LoadLocation("Europe/Stockholm")
		if err != nil {
			return nil, fmt.Errorf("schedule: load location: %w", err)
		}
		opts.Location = loc
	}
	return &Resolver{
		vendor: v,
		pacer:  opts.Pacer,
		loc:    opts.Location,
		years:  opts.TrackSchoolYears,
	}, nil
}

// Resolve fetches weeks StartWeek..EndWeek and returns their events in week
// order. Any failure aborts the whole call and no partial result is returned.
func (r *Resolver) Resolve(ctx context.Context, req Request) ([]model.Event, error) {
	mondays, err := validate(req)
	if err != nil {
		return nil, err
	}

	appLog.Info("resolving timetable",
		"unit", req.Unit,
		"host", req.Host,
		"kind", req.Kind,
		"id", req.Identifier,
		"year", req.Year,
		"weeks", fmt.Sprintf("%d-%d", req.StartWeek, req.EndWeek),
	)

	var years []skola24.SchoolYear
	if r.years {
		if years, err = r.vendor.SchoolYears(ctx, req.Host); err != nil {
			return nil, err
		}
	}

	unit, err := r.findUnit(ctx, req)
	if err != nil {
		return nil, err
	}
	guid, err := r.findSelection(ctx, unit, req)
	if err != nil {
		return nil, err
	}

	events := make([]model.Event, 0)
	for i, monday := range mondays {
		week := req.StartWeek + i

		// The render key is consumed by this week's render, so it is fetched
		// after pacing and never shared with the next week.
		r.pacer.Wait()

		key, err := r.vendor.RenderKey(ctx)
		if err != nil {
			return nil, err
		}

		var yearGUID string
		if r.years {
			if yearGUID, err = schoolYearFor(years, monday); err != nil {
				return nil, err
			}
		}

		lessons, ok, err := r.vendor.Timetable(ctx, skola24.TimetableRequest{
			Unit:          unit,
			Kind:          req.Kind,
			SelectionGUID: guid,
			RenderKey:     key,
			SchoolYear:    yearGUID,
			Year:          req.Year,
			Week:          week,
		})
		if err != nil {
			return nil, err
		}
		if !ok {
			appLog.Info("no timetable for week", "year", req.Year, "week", week)
			continue
		}

		for _, l := range lessons {
			ev, err := normalize(l, req.Kind, req.Identifier, req.Year, week, r.loc)
			if err != nil {
				return nil, &model.StageError{Stage: skola24.StageTimetable, Err: fmt.Errorf("%w: %w", model.ErrUpstream, err)}
			}
			events = append(events, ev)
		}
		appLog.Debug("week resolved", "year", req.Year, "week", week, "lessons", len(lessons))
	}

	appLog.Info("timetable resolved", "events", len(events))
	return events, nil
}

func validate(req Request) ([]time.Time, error) {
	var problems []string
	if strings.TrimSpace(req.Unit) == "" {
		problems = append(problems, "unit is empty")
	}
	if strings.TrimSpace(req.Host) == "" {
		problems = append(problems, "host is empty")
	}
	if strings.TrimSpace(req.Identifier) == "" {
		problems = append(problems, req.Kind.String()+" id is empty")
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", model.ErrValidation, strings.Join(problems, ", "))
	}
	return weekMondays(req.Year, req.StartWeek, req.EndWeek)
}

func (r *Resolver) findUnit(ctx context.Context, req Request) (skola24.Unit, error) {
	units, err := r.vendor.Units(ctx, req.Host)
	if err != nil {
		return skola24.Unit{}, err
	}
	for _, u := range units {
		if u.ID != req.Unit {
			continue
		}
		if u.GUID == "" {
			return skola24.Unit{}, &model.StageError{
				Stage: skola24.StageUnits,
				Err:   fmt.Errorf("%w: unit %q has no unitGuid", model.ErrUpstream, u.ID),
			}
		}
		return u, nil
	}
	return skola24.Unit{}, &model.StageError{
		Stage: skola24.StageUnits,
		Err:   fmt.Errorf("%w: unit %q on %s", model.ErrNotFound, req.Unit, req.Host),
	}
}

func (r *Resolver) findSelection(ctx context.Context, unit skola24.Unit, req Request) (string, error) {
	entries, err := r.vendor.Selection(ctx, unit, req.Kind)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Name != req.Identifier {
			continue
		}
		if e.GUID == "" {
			return "", &model.StageError{
				Stage: skola24.StageSelection,
				Err:   fmt.Errorf("%w: %s %q has no guid", model.ErrUpstream, req.Kind, e.Name),
			}
		}
		return e.GUID, nil
	}
	return "", &model.StageError{
		Stage: skola24.StageSelection,
		Err:   fmt.Errorf("%w: %s %q", model.ErrNotFound, req.Kind, req.Identifier),
	}
}

var errNoSchoolYear = errors.New("no active school year")

// schoolYearFor picks the school year containing monday.
func schoolYearFor(years []skola24.SchoolYear, monday time.Time) (string, error) {
	for _, y := range years {
		if y.Contains(monday) {
			return y.GUID, nil
		}
	}
	return "", &model.StageError{
		Stage: StageSchoolYear,
		Err:   fmt.Errorf("%w: %w contains %s", model.ErrUpstream, errNoSchoolYear, monday.Format("2006-01-02")),
	}
}
