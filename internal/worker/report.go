package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/mtlprog/cryptopro/internal/snapshot"
)

// SnapshotGenerator stores a wallet snapshot of every user for a date.
type SnapshotGenerator interface {
	Generate(ctx context.Context, date time.Time) (snapshot.Result, error)
}

// AfterSnapshotHook is called after each successful snapshot generation.
type AfterSnapshotHook interface {
	Export(ctx context.Context, res snapshot.Result) error
}

// ReportWorker periodically generates wallet snapshots.
type ReportWorker struct {
	generator SnapshotGenerator
	interval  time.Duration
	hook      AfterSnapshotHook // optional
	now       func() time.Time
}

// NewReportWorker creates a new ReportWorker with an optional post-generation hook.
func NewReportWorker(generator SnapshotGenerator, interval time.Duration, hook AfterSnapshotHook) *ReportWorker {
	return &ReportWorker{
		generator: generator,
		interval:  interval,
		hook:      hook,
		now:       time.Now,
	}
}

func (w *ReportWorker) generate(ctx context.Context) {
	date := snapshot.UTCDate(w.now())
	res, err := w.generator.Generate(ctx, date)
	if err != nil {
		slog.Error("wallet snapshot run failed", "date", date.Format(time.DateOnly), "error", err)
		return
	}
	slog.Info("wallet snapshot run completed", "date", date.Format(time.DateOnly), "users", len(res.Entries), "failed", res.Failed)

	if w.hook == nil {
		return
	}
	if err := w.hook.Export(ctx, res); err != nil {
		slog.Error("report export failed", "error", err)
		return
	}
	slog.Info("report exported", "users", len(res.Entries))
}

// Run blocks until the context is cancelled. A non-positive interval disables the worker.
func (w *ReportWorker) Run(ctx context.Context) {
	every(ctx, "reports", w.interval, w.generate)
}
