package model

import (
	"cmp"
	"slices"
	"time"
)

// Event is one normalized lesson occurrence.
//
// Two events are equal when Course, Group, Teacher, Room, Start and End match;
// ID is carried along for calendar UIDs but does not take part in identity or
// ordering.
type Event struct {
	ID string

	Course  string
	Group   string
	Teacher string
	Room    string

	Start time.Time
	End   time.Time
}

// Compare orders events by course, group, teacher, room, start, end.
func Compare(a, b Event) int {
	if c := cmp.Compare(a.Course, b.Course); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Group, b.Group); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Teacher, b.Teacher); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Room, b.Room); c != 0 {
		return c
	}
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	return a.End.Compare(b.End)
}

// Equal reports whether a and b describe the same lesson.
func Equal(a, b Event) bool {
	return Compare(a, b) == 0
}

// SortUnique returns a sorted copy of events without duplicates. The input is
// left untouched.
func SortUnique(events []Event) []Event {
	out := slices.Clone(events)
	slices.SortStableFunc(out, Compare)
	return slices.CompactFunc(out, Equal)
}
