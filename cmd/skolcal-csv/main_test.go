package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"skolcal/internal/ics"
	"skolcal/internal/model"
)

func writeCalendar(t *testing.T, dir, name string, events ...model.Event) string {
	t.Helper()
	enc := ics.Encoder{Now: func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }}
	data, err := enc.Encode(events)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestRunMergesAndDeduplicates(t *testing.T) {
	t.Setenv("SKOLCAL_DISPLAY_TIMEZONE", "Europe/Berlin")
	dir := t.TempDir()
	start := time.Date(2024, time.March, 4, 7, 0, 0, 0, time.UTC)
	ma := model.Event{ID: "g1", Course: "Matematik", Group: "9A", Teacher: "MrX", Room: "R1", Start: start, End: start.Add(time.Hour)}
	sv := model.Event{ID: "g2", Course: "Svenska", Group: "9A", Teacher: "MsY", Room: "R2", Start: start, End: start.Add(time.Hour)}

	a := writeCalendar(t, dir, "a.ics", sv, ma)
	b := writeCalendar(t, dir, "b.ics", ma)
	out := filepath.Join(dir, "out.csv")

	var stderr bytes.Buffer
	if code := run([]string{"-out", out, "-log-level", "error", a, b}, &stderr); code != 0 {
		t.Fatalf("expected exit 0, got %d:\n%s", code, stderr.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	want := "Matematik;9A;MrX;R1;2024-03-04 08:00:00+01:00;2024-03-04 09:00:00+01:00\r\n" +
		"Svenska;9A;MsY;R2;2024-03-04 08:00:00+01:00;2024-03-04 09:00:00+01:00\r\n"
	if string(data) != want {
		t.Fatalf("unexpected csv:\n%q\nwant\n%q", data, want)
	}
}

func TestRunWithoutInputs(t *testing.T) {
	var stderr bytes.Buffer
	if code := run(nil, &stderr); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "usage: skolcal-csv") {
		t.Fatalf("expected usage, got:\n%s", stderr.String())
	}
}

func TestRunFailsOnBadInput(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.ics")
	if err := os.WriteFile(bad, []byte("not a calendar"), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.csv")

	var stderr bytes.Buffer
	if code := run([]string{"-out", out, "-log-level", "error", bad}, &stderr); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output must not be written on failure, stat err=%v", err)
	}
}
