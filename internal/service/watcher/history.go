package watcher

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/oshokin/plc-sentry/internal/config"
	"github.com/oshokin/plc-sentry/internal/domain/watch"
	"github.com/oshokin/plc-sentry/internal/logger"
	"github.com/oshokin/plc-sentry/internal/repository/runlog"
)

// HistoryOptions controls the history subcommand.
type HistoryOptions struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// Limit caps how many runs are shown, newest first. Zero shows all.
	Limit int
}

// RunHistory renders the recorded backup runs as a table on stdout.
func RunHistory(ctx context.Context, opts *HistoryOptions) error {
	ctx = logger.WithName(ctx, "sentry-watcher")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	runs, err := runlog.NewFileRepository(cfg.RunLogFile, cfg.RunLogLimit).List(ctx)
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	if opts.Limit > 0 && len(runs) > opts.Limit {
		runs = runs[:opts.Limit]
	}

	return renderHistory(os.Stdout, runs)
}

// renderHistory writes the run table. Logs go to stderr, so the table stays
// clean for piping.
func renderHistory(w io.Writer, runs []*watch.TriggerRun) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "No backup runs recorded yet.")
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Started", "Status", "Value", "Exit Code", "Duration", "Host", "Detail"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignLeft
	})

	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, []string{
			run.StartedAt.Format(time.RFC3339),
			string(run.Status),
			strconv.FormatInt(run.TriggeringValue, 10),
			strconv.Itoa(run.ExitCode),
			formatRunDuration(run),
			run.Hostname,
			run.Detail,
		})
	}

	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("fill history table: %w", err)
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("render history table: %w", err)
	}

	return nil
}

// formatRunDuration is empty for runs that never finished.
func formatRunDuration(run *watch.TriggerRun) string {
	if run.FinishedAt.IsZero() {
		return ""
	}

	return run.FinishedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
}
