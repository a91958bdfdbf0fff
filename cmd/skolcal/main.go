package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"skolcal/internal/config"
	"skolcal/internal/fsutil"
	"skolcal/internal/ics"
	appLog "skolcal/internal/log"
	"skolcal/internal/refresh"
	"skolcal/internal/schedule"
	"skolcal/internal/skola24"
)

// flagConfig holds CLI flag values. Empty strings mean "use config".
type flagConfig struct {
	configPath string
	envFile    string
	unit       string
	host       string
	filename   string
	start      int
	end        int
	year       int
	teacher    string
	group      string
	watch      bool
	logLevel   string
}

type app struct {
	now       func() time.Time
	newVendor func(cfg *config.Config) (schedule.Vendor, error)
	stderr    io.Writer
}

func main() {
	a := app{
		now:       time.Now,
		newVendor: newClient,
		stderr:    os.Stderr,
	}
	os.Exit(a.run(os.Args[1:]))
}

func newClient(cfg *config.Config) (schedule.Vendor, error) {
	return skola24.NewClient(skola24.Options{
		BaseURL: cfg.APIBase,
		Scope:   cfg.Scope,
		Timeout: cfg.HTTPTimeout,
	})
}

func (a app) run(args []string) int {
	fs := flag.NewFlagSet("skolcal", flag.ContinueOnError)
	fs.SetOutput(a.stderr)

	currentYear, currentWeek := a.now().ISOWeek()
	flags, err := parseFlags(fs, args, currentYear, currentWeek)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}
	if err := validateFlags(flags, currentYear); err != nil {
		fmt.Fprintf(a.stderr, "error: %v\n\n", err)
		fs.Usage()
		return 2
	}

	if err := config.LoadDotEnv(flags.envFile); err != nil {
		appLog.Error("failed to load env file", err, "path", flags.envFile)
		return 1
	}
	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		return 1
	}
	applyFlags(conf, flags)

	level, err := appLog.ParseLevel(conf.LogLevel)
	if err != nil {
		appLog.Error("invalid log level; using info", err)
	}
	appLog.SetLevel(level)

	kind, identifier := skola24.KindClass, flags.group
	if flags.teacher != "" {
		kind, identifier = skola24.KindTeacher, flags.teacher
	}
	req := schedule.Request{
		Unit:       conf.Unit,
		Host:       conf.Host,
		Identifier: identifier,
		Kind:       kind,
		Year:       flags.year,
		StartWeek:  flags.start,
		EndWeek:    flags.end,
	}

	appLog.Info("effective config",
		"unit", conf.Unit,
		"host", conf.Host,
		"filename", conf.Filename,
		"kind", kind,
		"id", identifier,
		"year", flags.year,
		"start", flags.start,
		"end", flags.end,
		"school_years", conf.TrackSchoolYears,
		"watch", flags.watch,
	)

	if !flags.watch {
		if err := a.generate(context.Background(), conf, req); err != nil {
			appLog.Error("calendar generation failed", err)
			return 1
		}
		return 0
	}

	if err := refresh.Validate(conf.RefreshCron); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.RefreshCron)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Produce a file right away instead of waiting for the first tick.
	if err := a.generate(ctx, conf, req); err != nil {
		appLog.Error("calendar generation failed", err)
	}
	if err := refresh.Run(ctx, conf.RefreshCron, func(ctx context.Context) error {
		return a.generate(ctx, conf, req)
	}); err != nil {
		appLog.Error("refresh scheduler failed", err)
		return 1
	}
	return 0
}

// generate runs one resolve on a fresh vendor session and writes the .ics
// atomically once the whole document has been built.
func (a app) generate(ctx context.Context, conf *config.Config, req schedule.Request) error {
	loc, err := time.LoadLocation(conf.SourceTimezone)
	if err != nil {
		return fmt.Errorf("load source timezone: %w", err)
	}
	vendor, err := a.newVendor(conf)
	if err != nil {
		return fmt.Errorf("create vendor session: %w", err)
	}
	resolver, err := schedule.NewResolver(vendor, schedule.Options{
		Pacer:            schedule.SleepPacer(conf.RequestInterval),
		Location:         loc,
		TrackSchoolYears: conf.TrackSchoolYears,
	})
	if err != nil {
		return err
	}

	events, err := resolver.Resolve(ctx, req)
	if err != nil {
		return err
	}

	enc := ics.Encoder{UIDDomain: conf.UIDDomain, Now: a.now}
	data, err := enc.Encode(events)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFile(conf.Filename, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", conf.Filename, err)
	}

	appLog.Info("calendar written", "filename", conf.Filename, "events", len(events))
	return nil
}

func applyFlags(conf *config.Config, f flagConfig) {
	if f.unit != "" {
		conf.Unit = f.unit
	}
	if f.host != "" {
		conf.Host = f.host
	}
	if f.filename != "" {
		conf.Filename = f.filename
	}
	if f.logLevel != "" {
		conf.LogLevel = f.logLevel
	}
}

func parseFlags(fs *flag.FlagSet, args []string, year, week int) (flagConfig, error) {
	var cfg flagConfig

	fs.StringVar(&cfg.configPath, "config", "", "Path to YAML config file (created with defaults if missing)")
	fs.StringVar(&cfg.envFile, "env", ".env", "Path to .env file with SKOLCAL_* overrides")
	stringFlag(fs, &cfg.unit, "u", "unit", "", "unit name (default "+fmt.Sprintf("%q", config.DefaultUnit)+")")
	stringFlag(fs, &cfg.host, "o", "host", "", "unit host (default "+fmt.Sprintf("%q", config.DefaultHost)+")")
	stringFlag(fs, &cfg.filename, "f", "filename", "", "filename for calendar output (default "+fmt.Sprintf("%q", config.DefaultFilename)+")")
	intFlag(fs, &cfg.start, "s", "start", week, "start week number")
	intFlag(fs, &cfg.end, "e", "end", week, "end week number")
	intFlag(fs, &cfg.year, "y", "year", year, "year")
	stringFlag(fs, &cfg.teacher, "t", "teacher", "", "teacher id")
	stringFlag(fs, &cfg.group, "g", "group", "", "class id")
	fs.BoolVar(&cfg.watch, "watch", false, "Keep running and regenerate on the config refresh schedule")
	fs.StringVar(&cfg.logLevel, "log-level", "", "debug, info, warn or error")

	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: skolcal [flags] (-teacher ID | -group ID)")
		fs.PrintDefaults()
	}

	err := fs.Parse(args)
	return cfg, err
}

func validateFlags(cfg flagConfig, currentYear int) error {
	switch {
	case cfg.teacher == "" && cfg.group == "":
		return errors.New("you must supply either a teacher id or a class id")
	case cfg.teacher != "" && cfg.group != "":
		return errors.New("you can't supply both a teacher id and a class id")
	case cfg.start < 1 || cfg.start > 53:
		return fmt.Errorf("start week must be 1-53, got %d", cfg.start)
	case cfg.end < 1 || cfg.end > 53:
		return fmt.Errorf("end week must be 1-53, got %d", cfg.end)
	case cfg.end < cfg.start:
		return fmt.Errorf("end week %d is before start week %d", cfg.end, cfg.start)
	case cfg.year != currentYear && cfg.year != currentYear+1:
		return fmt.Errorf("year must be %d or %d, got %d", currentYear, currentYear+1, cfg.year)
	}
	return nil
}

func stringFlag(fs *flag.FlagSet, p *string, short, long, value, usage string) {
	fs.StringVar(p, short, value, usage)
	fs.StringVar(p, long, value, usage)
}

func intFlag(fs *flag.FlagSet, p *int, short, long string, value int, usage string) {
	fs.IntVar(p, short, value, usage)
	fs.IntVar(p, long, value, usage)
}
