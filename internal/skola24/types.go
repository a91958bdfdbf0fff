package skola24

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Unit is a school unit as listed by the timetable viewer.
type Unit struct {
	HostName string
	GUID     string
	ID       string
}

// SchoolYear is an active school year and its validity interval. From and To
// are vendor wall-clock values stored in UTC without conversion.
type SchoolYear struct {
	GUID string
	From time.Time
	To   time.Time
}

// Contains reports whether t falls within [From, To], both ends inclusive.
func (y SchoolYear) Contains(t time.Time) bool {
	return !t.Before(y.From) && !t.After(y.To)
}

// Selectable is one teacher or class from the selection lists.
type Selectable struct {
	// Name is the human id: teacher "id" or class "groupName".
	Name string
	// GUID is "personGuid" for teachers and "groupGuid" for classes.
	GUID string
}

// Lesson is a raw lesson block from a timetable render.
type Lesson struct {
	GUID      string
	Texts     []string
	DayOfWeek int
	TimeStart string
	TimeEnd   string
}

// TimetableRequest identifies a single week render.
type TimetableRequest struct {
	Unit          Unit
	Kind          Kind
	SelectionGUID string
	RenderKey     string
	SchoolYear    string
	Year          int
	Week          int
}

// Wire formats. Pointer fields are required and checked after decoding.

type envelope[T any] struct {
	Data *T `json:"data"`
}

type schoolYearsRequest struct {
	HostName                 string `json:"hostName"`
	CheckSchoolYearsFeatures bool   `json:"checkSchoolYearsFeatures"`
}

type schoolYearsData struct {
	ActiveSchoolYears *[]rawSchoolYear `json:"activeSchoolYears"`
}

type rawSchoolYear struct {
	GUID *string `json:"guid"`
	From *string `json:"from"`
	To   *string `json:"to"`
}

type unitsRequest struct {
	Request struct {
		HostName string `json:"hostName"`
	} `json:"getTimetableViewerUnitsRequest"`
}

type unitsData struct {
	Response *struct {
		HostName *string    `json:"hostName"`
		Units    *[]rawUnit `json:"units"`
	} `json:"getTimetableViewerUnitsResponse"`
}

type rawUnit struct {
	UnitGUID string  `json:"unitGuid"`
	UnitID   *string `json:"unitId"`
}

type selectionFilters struct {
	Class   bool `json:"class"`
	Course  bool `json:"course"`
	Group   bool `json:"group"`
	Period  bool `json:"period"`
	Room    bool `json:"room"`
	Student bool `json:"student"`
	Subject bool `json:"subject"`
	Teacher bool `json:"teacher"`
}

type selectionRequest struct {
	HostName string           `json:"hostName"`
	UnitGUID string           `json:"unitGuid"`
	Filters  selectionFilters `json:"filters"`
}

type selectionData struct {
	Teachers *[]rawTeacher `json:"teachers"`
	Classes  *[]rawClass   `json:"classes"`
}

type rawTeacher struct {
	ID         *string `json:"id"`
	PersonGUID string  `json:"personGuid"`
}

type rawClass struct {
	GroupName *string `json:"groupName"`
	GroupGUID string  `json:"groupGuid"`
}

type renderKeyData struct {
	Key *string `json:"key"`
}

type timetableRequest struct {
	RenderKey     string `json:"renderKey"`
	Host          string `json:"host"`
	UnitGUID      string `json:"unitGuid"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	SelectionType int    `json:"selectionType"`
	Selection     string `json:"selection"`
	ScheduleDay   int    `json:"scheduleDay"`
	Week          int    `json:"week"`
	Year          int    `json:"year"`
	SchoolYear    string `json:"schoolYear,omitempty"`
}

type timetableData struct {
	// Raw so that an absent key (malformed) and null (no timetable this week)
	// can be told apart.
	LessonInfo json.RawMessage `json:"lessonInfo"`
}

type rawLesson struct {
	Texts           []string `json:"texts"`
	GUID            *string  `json:"guidId"`
	DayOfWeekNumber *flexInt `json:"dayOfWeekNumber"`
	TimeStart       *string  `json:"timeStart"`
	TimeEnd         *string  `json:"timeEnd"`
}

// flexInt decodes both 3 and "3".
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(strings.TrimSpace(s))
	}
	n, err := strconv.Atoi(string(b))
	if err != nil {
		return fmt.Errorf("skola24: not an integer: %s", b)
	}
	*f = flexInt(n)
	return nil
}

var errMissingField = errors.New("missing field")

func missing(field string) error {
	return fmt.Errorf("%w %q", errMissingField, field)
}

// parseVendorTime parses the vendor's zone-less timestamps.
func parseVendorTime(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func (r rawSchoolYear) convert() (SchoolYear, error) {
	if r.GUID == nil {
		return SchoolYear{}, missing("guid")
	}
	if r.From == nil {
		return SchoolYear{}, missing("from")
	}
	if r.To == nil {
		return SchoolYear{}, missing("to")
	}
	from, err := parseVendorTime(*r.From)
	if err != nil {
		return SchoolYear{}, fmt.Errorf("school year %s from: %w", *r.GUID, err)
	}
	to, err := parseVendorTime(*r.To)
	if err != nil {
		return SchoolYear{}, fmt.Errorf("school year %s to: %w", *r.GUID, err)
	}
	return SchoolYear{GUID: *r.GUID, From: from, To: to}, nil
}

func (r rawLesson) convert() (Lesson, error) {
	if r.GUID == nil {
		return Lesson{}, missing("guidId")
	}
	if r.DayOfWeekNumber == nil {
		return Lesson{}, missing("dayOfWeekNumber")
	}
	if r.TimeStart == nil {
		return Lesson{}, missing("timeStart")
	}
	if r.TimeEnd == nil {
		return Lesson{}, missing("timeEnd")
	}
	return Lesson{
		GUID:      *r.GUID,
		Texts:     r.Texts,
		DayOfWeek: int(*r.DayOfWeekNumber),
		TimeStart: *r.TimeStart,
		TimeEnd:   *r.TimeEnd,
	}, nil
}
