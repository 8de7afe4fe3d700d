package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/xraph/dues"
	"github.com/xraph/dues/internal/config"
	"github.com/xraph/dues/internal/fixture"
	"github.com/xraph/dues/notify/amqp"
	"github.com/xraph/dues/notify/mail"
	"github.com/xraph/dues/statement"
	"github.com/xraph/dues/store/memory"
	"github.com/xraph/dues/temporal"
)

const dayLayout = "2006-01-02"

// app is the state shared by every subcommand: one engine over an
// in-memory store seeded from the dataset.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer

	today string
	json  bool

	eng *dues.Engine
	ix  *fixture.Index

	closers []func() error
}

func (a *app) open(ctx context.Context) error {
	opts := []dues.Option{
		dues.WithLogger(a.logger),
		dues.WithWorkers(a.cfg.Workers),
		dues.WithTenantParallelism(a.cfg.TenantParallelism),
		dues.WithPluginTimeout(a.cfg.PluginTimeout),
	}

	if a.today != "" {
		day, err := parseDay(a.today)
		if err != nil {
			return fmt.Errorf("--today: %w", err)
		}
		opts = append(opts, dues.WithClock(func() time.Time { return day }))
	}

	if a.cfg.SMTPHost != "" {
		mopts := []mail.Option{mail.WithLogger(a.logger)}
		if a.cfg.SMTPFrom != "" {
			mopts = append(mopts, mail.WithFrom(a.cfg.SMTPFrom))
		}
		opts = append(opts, dues.WithPlugin(
			mail.NewSMTP(a.cfg.SMTPHost, a.cfg.SMTPPort, a.cfg.SMTPUser, a.cfg.SMTPPassword, mopts...),
		))
		a.logger.Info("mail dispatch enabled", "host", a.cfg.SMTPHost)
	}

	if a.cfg.AMQPURL != "" {
		d, err := amqp.Dial(a.cfg.AMQPURL, a.cfg.AMQPExchange, a.cfg.AMQPQueue)
		if err != nil {
			return fmt.Errorf("connecting to AMQP: %w", err)
		}
		opts = append(opts, dues.WithPlugin(d.WithLogger(a.logger)))
		a.logger.Info("AMQP dispatch enabled", "exchange", a.cfg.AMQPExchange, "queue", a.cfg.AMQPQueue)
	}

	a.eng = dues.New(memory.New(), opts...)
	if err := a.eng.Start(ctx); err != nil {
		return err
	}
	a.closers = append(a.closers, a.eng.Stop)

	ds, err := fixture.LoadFile(a.cfg.DataFile)
	if err != nil {
		return err
	}
	a.ix, err = ds.Apply(ctx, a.eng)
	if err != nil {
		return fmt.Errorf("applying %s: %w", a.cfg.DataFile, err)
	}

	a.logger.Debug("dataset loaded", "file", a.cfg.DataFile, "tenants", len(a.ix.Tenants))
	return nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// print writes v as indented JSON when --json is set and otherwise calls
// table with a tab-aligned writer.
func (a *app) print(v any, table func(w io.Writer)) error {
	if a.json {
		enc := json.NewEncoder(a.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD, got %q", s)
	}
	return temporal.Day(t), nil
}

// parsePeriod accepts YYYY-MM. An empty string is the zero period.
func parsePeriod(s string) (statement.Period, error) {
	if s == "" {
		return statement.Period{}, nil
	}
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return statement.Period{}, fmt.Errorf("expected YYYY-MM, got %q", s)
	}
	return statement.Period{Year: t.Year(), Month: t.Month()}, nil
}
