package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"
	_ "time/tzdata"

	"skolcal/internal/config"
	"skolcal/internal/fsutil"
	"skolcal/internal/ics"
	appLog "skolcal/internal/log"
	"skolcal/internal/model"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("skolcal-csv", flag.ContinueOnError)
	fs.SetOutput(stderr)
	out := fs.String("out", "output.csv", "CSV output path")
	configPath := fs.String("config", "", "Path to YAML config file (defaults only when empty)")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: skolcal-csv [flags] file.ics [file.ics ...]")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "error: no input files")
		fmt.Fprintln(stderr)
		fs.Usage()
		return 2
	}

	conf, err := config.Load(*configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", *configPath)
		return 1
	}
	if *logLevel != "" {
		conf.LogLevel = *logLevel
	}
	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Error("invalid log level; using info", err)
	}
	appLog.SetLevel(level)

	loc, err := time.LoadLocation(conf.DisplayTimezone)
	if err != nil {
		appLog.Error("failed to load display timezone", err, "timezone", conf.DisplayTimezone)
		return 1
	}

	events, err := decodeFiles(ics.Decoder{Location: loc}, fs.Args())
	if err != nil {
		appLog.Error("failed to decode calendars", err)
		return 1
	}

	var buf bytes.Buffer
	if err := ics.WriteCSV(&buf, events); err != nil {
		appLog.Error("failed to encode csv", err)
		return 1
	}
	if err := fsutil.WriteFile(*out, buf.Bytes(), 0o644); err != nil {
		appLog.Error("failed to write csv", err, "path", *out)
		return 1
	}

	appLog.Info("csv written", "path", *out, "inputs", fs.NArg(), "events", len(events))
	return 0
}

// decodeFiles merges the events of every file. The first failing file aborts
// the whole run.
func decodeFiles(dec ics.Decoder, paths []string) ([]model.Event, error) {
	var all []model.Event
	for _, path := range paths {
		events, err := decodeFile(dec, path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		all = append(all, events...)
	}
	return all, nil
}

func decodeFile(dec ics.Decoder, path string) ([]model.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return dec.Decode(f)
}
