package ics

import (
	"encoding/csv"
	"io"

	"skolcal/internal/model"
)

// CSVTimeLayout formats start/end columns, e.g. "2024-03-04 08:00:00+01:00".
const CSVTimeLayout = "2006-01-02 15:04:05-07:00"

// WriteCSV writes one ';'-separated row per unique event, sorted by
// model.Compare. Columns: course, group, teacher, room, start, end. No header.
// Times are written in whatever location the events carry.
func WriteCSV(w io.Writer, events []model.Event) error {
	cw := csv.NewWriter(w)
	cw.Comma = ';'
	cw.UseCRLF = true

	for _, ev := range model.SortUnique(events) {
		row := []string{
			ev.Course,
			ev.Group,
			ev.Teacher,
			ev.Room,
			ev.Start.Format(CSVTimeLayout),
			ev.End.Format(CSVTimeLayout),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
