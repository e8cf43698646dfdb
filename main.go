package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"churn-metrics/pkg/apperrors"
	"churn-metrics/pkg/calculator"
	"churn-metrics/pkg/config"
	"churn-metrics/pkg/database"
	"churn-metrics/pkg/loader"
	"churn-metrics/pkg/metrics"
	"churn-metrics/pkg/models"
	"churn-metrics/pkg/rabbitmq"
	"churn-metrics/pkg/report"
)

// crosscheckColumn is the source column recomputed in SQL by --sql-crosscheck.
const crosscheckColumn = "Contract"

func main() {
	flags := config.Flags("churn-metrics")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(apperrors.ExitStatus(err))
	}
	logger := newLogger(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, logger)
	defer publisher.Close()

	a := &app{
		cfg:      cfg,
		logger:   logger,
		out:      os.Stdout,
		metrics:  metrics.New(),
		outreach: rabbitmq.NewOutreach(publisher, cfg.OutreachExchange, logger),
	}

	if cfg.Schedule == "" {
		if err := a.run(ctx); err != nil {
			logger.Error("analysis failed", "error", err)
			os.Exit(apperrors.ExitStatus(err))
		}
		return
	}

	// Scheduled mode: run now, then on every tick until a signal arrives.
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	job := func() {
		if err := a.run(ctx); err != nil {
			logger.Error("scheduled analysis failed", "error", err, "retryable", apperrors.Retryable(err))
		}
	}
	if _, err := c.AddFunc(cfg.Schedule, job); err != nil {
		logger.Error("failed to schedule analysis", "schedule", cfg.Schedule, "error", err)
		os.Exit(1)
	}
	logger.Info("scheduled analysis", "schedule", cfg.Schedule)
	job()
	c.Start()

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping scheduler")
	<-c.Stop().Done()
	logger.Info("scheduler stopped")
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if verbose && term.IsTerminal(int(os.Stderr.Fd())) {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	out      io.Writer
	metrics  *metrics.Metrics
	outreach *rabbitmq.Outreach
}

// run performs one complete analysis: load, compute, print, export, publish.
func (a *app) run(ctx context.Context) error {
	start := time.Now()

	var (
		records []models.CustomerRecord
		source  string
		db      *database.DB
	)
	if a.cfg.FromDatabase() {
		var (
			dsnUsed string
			err     error
		)
		db, dsnUsed, err = database.Open(ctx, a.cfg.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		a.logger.Info("connected", "dsn", dsnUsed, "driver", db.Driver)

		res, err := database.LoadCustomers(ctx, db, a.cfg.Table, a.cfg.Verbose, a.logger)
		if err != nil {
			return fmt.Errorf("load customers: %w", err)
		}
		a.logWarnings(res)
		records, source = res.Records, dsnUsed+"/"+a.cfg.Table
	} else {
		res, err := loader.Load(a.cfg.Input)
		if err != nil {
			return fmt.Errorf("load customers: %w", err)
		}
		a.logWarnings(res)
		records, source = res.Records, a.cfg.Input
	}
	a.logger.Info("customers loaded", "source", source, "records", len(records))

	rep, err := calculator.Run(ctx, records, models.Config{
		Source:     source,
		Partitions: a.cfg.Partitions,
		Now:        time.Now().UTC(),
		Verbose:    a.cfg.Verbose,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("compute: %w", err)
	}

	if db != nil && a.cfg.SQLCrosscheck {
		a.crosscheck(ctx, db, rep)
	}

	order := make([]string, 0, len(calculator.StandardSegments))
	for _, def := range calculator.StandardSegments {
		order = append(order, def.Name)
	}
	if err := report.Print(a.out, rep, order); err != nil {
		return fmt.Errorf("print report: %w", err)
	}

	paths, err := report.Export(a.cfg.OutputDir, rep, a.cfg.WritesJSON(), a.cfg.WritesCSV())
	if err != nil {
		return fmt.Errorf("export report: %w", err)
	}
	for _, p := range paths {
		a.logger.Info("exported", "path", p)
	}

	// Push and outreach failures are logged, not returned.
	a.metrics.Observe(rep)
	if a.cfg.PushgatewayURL != "" {
		if err := a.metrics.Push(ctx, a.cfg.PushgatewayURL, source); err != nil {
			a.logger.Warn("metrics push failed", "error", err)
		}
	}
	if _, err := a.outreach.Publish(ctx, rep); err != nil {
		a.logger.Warn("some outreach events failed", "error", err)
	}

	a.logger.Info("run finished", "run_id", rep.RunID, "duration", time.Since(start).String())
	return nil
}

func (a *app) logWarnings(res *loader.Result) {
	for _, w := range res.Warnings {
		a.logger.Debug("row skipped", "row", w.Row, "reason", w.Message)
	}
	if len(res.Warnings) > 0 {
		a.logger.Warn("rows skipped during load", "count", len(res.Warnings), "encoding", res.Encoding)
	}
}

// crosscheck recomputes the contract segmentation in SQL and logs any
// disagreement with the in-memory result.
func (a *app) crosscheck(ctx context.Context, db *database.DB, rep *models.Report) {
	raw, err := database.ChurnByColumn(ctx, db, a.cfg.Table, crosscheckColumn)
	if err != nil {
		a.logger.Warn("sql crosscheck failed", "error", err)
		return
	}
	want := database.NormalizeKeys(raw, func(s string) string { return string(loader.ContractFromLabel(s)) })
	diffs := calculator.CompareSegments(rep.Segments["contract"], want)
	if len(diffs) == 0 {
		a.logger.Info("sql crosscheck passed", "column", crosscheckColumn, "groups", len(want))
		return
	}
	for _, d := range diffs {
		a.logger.Warn("sql crosscheck mismatch", "column", crosscheckColumn, "detail", d)
	}
}
