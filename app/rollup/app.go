package rollupcli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	activitydb "github.com/gramscope/gramscope/pkg/db/activity"
	geodb "github.com/gramscope/gramscope/pkg/db/geo"
	"github.com/gramscope/gramscope/pkg/db/models/reports"
	reportsdb "github.com/gramscope/gramscope/pkg/db/reports"
	"github.com/gramscope/gramscope/pkg/logging"
	"github.com/gramscope/gramscope/pkg/redis"
	"github.com/gramscope/gramscope/pkg/rollup"
	"github.com/gramscope/gramscope/pkg/utils"
)

const dateFormat = "2006-01-02"

const usageText = `Usage: rollup <command> [flags]

Commands:
  daily      generate daily reports
  weekly     generate weekly reports (Monday-aligned ISO weeks)
  monthly    generate calendar-month reports
  overall    advance the cumulative reports through yesterday

Flags (daily/weekly/monthly):
  --start-date YYYY-MM-DD   first period to generate (default: earliest activity)
  --end-date YYYY-MM-DD     last period to generate (default: last completed period)
  --force                   regenerate existing windows
  --batch-size N            rows per insert batch (default 1000)
  --verbose                 per-window stage timings

Flags (overall):
  --rebuild                 refresh child rosters and parent links instead of
                            absorbing new days
`

// Options captures one CLI invocation after flag parsing.
type Options struct {
	Command   string
	StartDate *time.Time
	EndDate   *time.Time
	Force     bool
	Rebuild   bool
	BatchSize int
	Verbose   bool
}

// ParseArgs interprets a subcommand plus its flags. The zero exit path is a
// fully populated Options; anything else is a usage error.
func ParseArgs(args []string, stderr io.Writer) (*Options, error) {
	if len(args) == 0 {
		fmt.Fprint(stderr, usageText)
		return nil, errors.New("missing command")
	}

	opts := &Options{Command: args[0]}
	switch opts.Command {
	case "daily", "weekly", "monthly", "overall":
	default:
		fmt.Fprint(stderr, usageText)
		return nil, fmt.Errorf("unknown command %q", opts.Command)
	}

	fs := flag.NewFlagSet(opts.Command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	startDate := fs.String("start-date", "", "first period to generate (YYYY-MM-DD)")
	endDate := fs.String("end-date", "", "last period to generate (YYYY-MM-DD)")
	fs.BoolVar(&opts.Force, "force", false, "regenerate existing windows")
	fs.BoolVar(&opts.Rebuild, "rebuild", false, "overall only: refresh child rosters and parent links")
	fs.IntVar(&opts.BatchSize, "batch-size",
		utils.EnvInt("ROLLUP_BATCH_SIZE", reportsdb.DefaultBatchSize), "rows per insert batch")
	fs.BoolVar(&opts.Verbose, "verbose", false, "per-window stage timings")
	if err := fs.Parse(args[1:]); err != nil {
		return nil, err
	}

	if *startDate != "" {
		d, err := time.ParseInLocation(dateFormat, *startDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid --start-date %q: expected YYYY-MM-DD", *startDate)
		}
		opts.StartDate = &d
	}
	if *endDate != "" {
		d, err := time.ParseInLocation(dateFormat, *endDate, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("invalid --end-date %q: expected YYYY-MM-DD", *endDate)
		}
		opts.EndDate = &d
	}
	return opts, nil
}

// Run executes one batch invocation end to end and returns the process exit
// code. Validation failures and empty-source runs exit non-zero before any
// write; per-window failures surface in the summary and the exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := ParseArgs(args, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "rollup: %v\n", err)
		return 1
	}

	logger, err := logging.New()
	if err != nil {
		fmt.Fprintf(stderr, "rollup: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()
	if !opts.Verbose {
		logger = logger.WithOptions(zap.IncreaseLevel(zap.WarnLevel))
	}

	engine, closeStores, err := newEngine(ctx, logger, opts.BatchSize)
	if err != nil {
		fmt.Fprintf(stderr, "rollup: %v\n", err)
		return 1
	}
	defer closeStores()

	if opts.Command == "overall" {
		if opts.Rebuild {
			if err := engine.RebuildOverall(ctx); err != nil {
				fmt.Fprintf(stderr, "rollup: %v\n", err)
				return 1
			}
			fmt.Fprintln(stdout, "overall: rosters and parent links rebuilt")
			return 0
		}
		summary, err := engine.RunOverall(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "rollup: %v\n", err)
			return 1
		}
		if summary.DaysProcessed == 0 {
			fmt.Fprintln(stdout, "overall: already current")
		} else {
			fmt.Fprintf(stdout, "overall: absorbed %d day(s) through %s\n",
				summary.DaysProcessed, summary.To.Format(dateFormat))
		}
		return 0
	}

	g, _ := reports.ParseGranularity(opts.Command)
	summary, err := engine.RunRange(ctx, g, opts.StartDate, opts.EndDate, opts.Force)
	if err != nil {
		fmt.Fprintf(stderr, "rollup: %v\n", err)
		return 1
	}

	printSummary(stdout, summary, opts.Verbose)
	if summary.Failed > 0 {
		return 1
	}
	return 0
}

func newEngine(ctx context.Context, logger *zap.Logger, batchSize int) (*rollup.Engine, func(), error) {
	geoDb, err := geodb.New(ctx, logger)
	if err != nil {
		return nil, nil, err
	}
	activityDb, err := activitydb.New(ctx, logger)
	if err != nil {
		_ = geoDb.Close()
		return nil, nil, err
	}
	reportsDb, err := reportsdb.New(ctx, logger)
	if err != nil {
		_ = geoDb.Close()
		_ = activityDb.Close()
		return nil, nil, err
	}

	// Redis is optional for a batch run; a missing broker only silences the
	// completion events.
	events, err := redis.NewClient(ctx, logger)
	if err != nil {
		logger.Warn("Redis unavailable, window events disabled", zap.Error(err))
		events = nil
	}

	engine := &rollup.Engine{
		Logger:         logger,
		Activity:       activityDb,
		Geo:            geoDb,
		Reports:        reportsDb,
		Events:         events,
		Clock:          clockwork.NewRealClock(),
		BatchSize:      batchSize,
		MaxParallelism: utils.EnvInt("ROLLUP_MAX_PARALLELISM", 0),
	}
	closeStores := func() {
		_ = geoDb.Close()
		_ = activityDb.Close()
		_ = reportsDb.Close()
		if events != nil {
			_ = events.Close()
		}
	}
	return engine, closeStores, nil
}

func printSummary(stdout io.Writer, summary *rollup.RunSummary, verbose bool) {
	fmt.Fprintf(stdout, "%s: %d window(s): %d generated, %d skipped, %d failed\n",
		summary.Granularity, summary.Windows, summary.Succeeded, summary.Skipped, summary.Failed)

	for _, res := range summary.Results {
		switch {
		case res.Err != nil:
			fmt.Fprintf(stdout, "  %s  FAILED: %v\n", res.Window.Label(), res.Err)
		case res.Skipped:
			fmt.Fprintf(stdout, "  %s  skipped (already generated)\n", res.Window.Label())
		default:
			fmt.Fprintf(stdout, "  %s  %d report(s)", res.Window.Label(), res.Rows)
			if res.Warnings > 0 {
				fmt.Fprintf(stdout, ", %d warning(s)", res.Warnings)
			}
			fmt.Fprintln(stdout)
			if verbose {
				printTimings(stdout, res)
			}
		}
	}
}

func printTimings(stdout io.Writer, res rollup.WindowResult) {
	order := []string{"aggregate_ms", "resolve_chains_ms", "build_ms", "stage_ms", "link_ms", "promote_ms", "total_ms"}
	for _, name := range order {
		if v, ok := res.Timings[name]; ok {
			fmt.Fprintf(stdout, "    %-18s %8.0fms\n", name[:len(name)-3], v)
		}
	}
}
