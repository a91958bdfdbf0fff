package skola24

import "fmt"

// Kind selects whose timetable is rendered.
type Kind int

const (
	KindClass Kind = iota
	KindTeacher
)

func (k Kind) String() string {
	switch k {
	case KindClass:
		return "class"
	case KindTeacher:
		return "teacher"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// SelectionType is the vendor's numeric selectionType for timetable renders.
func (k Kind) SelectionType() int {
	if k == KindTeacher {
		return 7
	}
	return 0
}

// filters enables exactly one selection list in the selection request.
func (k Kind) filters() selectionFilters {
	return selectionFilters{
		Class:   k == KindClass,
		Teacher: k == KindTeacher,
	}
}
