// Package skola24 talks to the Skola24 timetable viewer API. All calls of one
// Client share a single session (cookie jar and fixed headers).
package skola24

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	appLog "skolcal/internal/log"
	"skolcal/internal/model"
)

const (
	DefaultBaseURL = "https://web.skola24.se"

	pathSchoolYears = "/api/get/active/school/years"
	pathUnits       = "/api/services/skola24/get/timetable/viewer/units"
	pathSelection   = "/api/get/timetable/selection"
	pathRenderKey   = "/api/get/timetable/render/key"
	pathTimetable   = "/api/render/timetable"

	// Render sizes only affect the vendor's SVG boxes, which are ignored.
	renderWidth  = 1050
	renderHeight = 1223
)

// Stage names used in model.StageError.
const (
	StageSchoolYears = "school-years"
	StageUnits       = "units"
	StageSelection   = "selection"
	StageRenderKey   = "render-key"
	StageTimetable   = "timetable"
)

// Options configures a Client.
type Options struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// Scope is the X-Scope header value.
	Scope string
	// Timeout bounds each request; zero means 15s.
	Timeout time.Duration
}

// Client is a session against the vendor API.
type Client struct {
	http    *http.Client
	baseURL string
	scope   string
}

// NewClient creates a new session.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
			Jar:     jar,
		},
		baseURL: opts.BaseURL,
		scope:   opts.Scope,
	}, nil
}

// SchoolYears lists the active school years for host.
func (c *Client) SchoolYears(ctx context.Context, host string) ([]SchoolYear, error) {
	var data schoolYearsData
	body := schoolYearsRequest{HostName: host, CheckSchoolYearsFeatures: false}
	if err := c.post(ctx, StageSchoolYears, pathSchoolYears, body, &data); err != nil {
		return nil, err
	}
	if data.ActiveSchoolYears == nil {
		return nil, upstream(StageSchoolYears, missing("activeSchoolYears"))
	}

	out := make([]SchoolYear, 0, len(*data.ActiveSchoolYears))
	for _, raw := range *data.ActiveSchoolYears {
		y, err := raw.convert()
		if err != nil {
			return nil, upstream(StageSchoolYears, err)
		}
		out = append(out, y)
	}
	return out, nil
}

// Units lists the timetable viewer units for host. Units without a unitId are
// dropped. HostName is taken from the response.
func (c *Client) Units(ctx context.Context, host string) ([]Unit, error) {
	var req unitsRequest
	req.Request.HostName = host

	var data unitsData
	if err := c.post(ctx, StageUnits, pathUnits, req, &data); err != nil {
		return nil, err
	}
	resp := data.Response
	switch {
	case resp == nil:
		return nil, upstream(StageUnits, missing("getTimetableViewerUnitsResponse"))
	case resp.HostName == nil:
		return nil, upstream(StageUnits, missing("hostName"))
	case resp.Units == nil:
		return nil, upstream(StageUnits, missing("units"))
	}

	out := make([]Unit, 0, len(*resp.Units))
	for _, u := range *resp.Units {
		if u.UnitID == nil {
			continue
		}
		out = append(out, Unit{HostName: *resp.HostName, GUID: u.UnitGUID, ID: *u.UnitID})
	}
	return out, nil
}

// Selection lists teachers or classes of unit, depending on kind. Entries
// without a name are dropped.
func (c *Client) Selection(ctx context.Context, unit Unit, kind Kind) ([]Selectable, error) {
	body := selectionRequest{
		HostName: unit.HostName,
		UnitGUID: unit.GUID,
		Filters:  kind.filters(),
	}
	var data selectionData
	if err := c.post(ctx, StageSelection, pathSelection, body, &data); err != nil {
		return nil, err
	}

	var out []Selectable
	switch kind {
	case KindTeacher:
		if data.Teachers == nil {
			return nil, upstream(StageSelection, missing("teachers"))
		}
		for _, t := range *data.Teachers {
			if t.ID != nil {
				out = append(out, Selectable{Name: *t.ID, GUID: t.PersonGUID})
			}
		}
	case KindClass:
		if data.Classes == nil {
			return nil, upstream(StageSelection, missing("classes"))
		}
		for _, cl := range *data.Classes {
			if cl.GroupName != nil {
				out = append(out, Selectable{Name: *cl.GroupName, GUID: cl.GroupGUID})
			}
		}
	default:
		return nil, fmt.Errorf("skola24: unsupported kind %s", kind)
	}
	return out, nil
}

// RenderKey fetches a fresh single-use render key.
func (c *Client) RenderKey(ctx context.Context) (string, error) {
	var data renderKeyData
	if err := c.post(ctx, StageRenderKey, pathRenderKey, nil, &data); err != nil {
		return "", err
	}
	if data.Key == nil {
		return "", upstream(StageRenderKey, missing("key"))
	}
	return *data.Key, nil
}

// Timetable renders one week. ok is false when the vendor has no timetable for
// the week (lessonInfo is null), which is not an error.
func (c *Client) Timetable(ctx context.Context, r TimetableRequest) (lessons []Lesson, ok bool, err error) {
	body := timetableRequest{
		RenderKey:     r.RenderKey,
		Host:          r.Unit.HostName,
		UnitGUID:      r.Unit.GUID,
		Width:         renderWidth,
		Height:        renderHeight,
		SelectionType: r.Kind.SelectionType(),
		Selection:     r.SelectionGUID,
		ScheduleDay:   0,
		Week:          r.Week,
		Year:          r.Year,
		SchoolYear:    r.SchoolYear,
	}
	var data timetableData
	if err := c.post(ctx, StageTimetable, pathTimetable, body, &data); err != nil {
		return nil, false, err
	}

	raw := bytes.TrimSpace(data.LessonInfo)
	if len(raw) == 0 {
		return nil, false, upstream(StageTimetable, missing("lessonInfo"))
	}
	if bytes.Equal(raw, []byte("null")) {
		return nil, false, nil
	}

	var rawLessons []rawLesson
	if err := json.Unmarshal(raw, &rawLessons); err != nil {
		return nil, false, upstream(StageTimetable, err)
	}
	lessons = make([]Lesson, 0, len(rawLessons))
	for i, rl := range rawLessons {
		l, err := rl.convert()
		if err != nil {
			return nil, false, upstream(StageTimetable, fmt.Errorf("lesson %d: %w", i, err))
		}
		lessons = append(lessons, l)
	}
	return lessons, true, nil
}

// post sends body as JSON (nil is sent as the literal null) and decodes the
// "data" member of the response envelope into out.
func (c *Client) post(ctx context.Context, stage, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("skola24: %s: encode request: %w", stage, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("skola24: %s: %w", stage, err)
	}
	req.Header.Set("X-Scope", c.scope)
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	req.Header.Set("Content-Type", "application/json")

	appLog.Debug("skola24 request", "stage", stage, "path", path)

	resp, err := c.http.Do(req)
	if err != nil {
		return upstream(stage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return upstream(stage, fmt.Errorf("unexpected status %s", resp.Status))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return upstream(stage, err)
	}

	env := envelope[json.RawMessage]{}
	if err := json.Unmarshal(data, &env); err != nil {
		return upstream(stage, fmt.Errorf("decode response: %w", err))
	}
	if env.Data == nil || bytes.Equal(bytes.TrimSpace(*env.Data), []byte("null")) {
		return upstream(stage, missing("data"))
	}
	if err := json.Unmarshal(*env.Data, out); err != nil {
		return upstream(stage, fmt.Errorf("decode data: %w", err))
	}

	appLog.Debug("skola24 response", "stage", stage, "status", resp.StatusCode, "bytes", len(data))
	return nil
}

func upstream(stage string, err error) error {
	return &model.StageError{Stage: stage, Err: fmt.Errorf("%w: %w", model.ErrUpstream, err)}
}
