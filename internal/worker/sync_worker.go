package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"tiffin/internal/amqp"
	"tiffin/internal/core"
	applog "tiffin/internal/log"
	"tiffin/internal/repository"
	"tiffin/internal/sheets"
)

// Store is the read side the worker needs.
type Store interface {
	ListLogs(ctx context.Context, userID string, q repository.LogQuery) ([]core.DayLog, error)
	ListProfiles(ctx context.Context) ([]core.UserProfile, error)
}

// Consumer delivers log sync messages until ctx is done.
type Consumer interface {
	ConsumeLogSync(ctx context.Context, handler func(context.Context, *amqp.LogSyncMessage) error) error
}

// SyncWorker copies users' months from storage into the spreadsheet.
type SyncWorker struct {
	store       Store
	exporter    sheets.MonthExporter
	concurrency int
	now         func() time.Time

	synced int64
	failed int64
}

func NewSyncWorker(store Store, exporter sheets.MonthExporter, concurrency int) *SyncWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SyncWorker{
		store:       store,
		exporter:    exporter,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// HandleSyncMessage exports the month named by msg. A failure is returned so
// the message is requeued.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.LogSyncMessage) error {
	year, month := msg.Period()
	slog.InfoContext(ctx, "Processing sync message",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldUserID, msg.UserID,
		applog.FieldYear, year,
		applog.FieldMonth, int(month),
		"reason", msg.Reason)
	return w.SyncMonth(ctx, msg.UserID, year, month)
}

// SyncMonth reads the month back from storage and rewrites its sheet.
func (w *SyncWorker) SyncMonth(ctx context.Context, userID string, year int, month time.Month) error {
	first, last := core.MonthRange(month, year)
	logs, err := w.store.ListLogs(ctx, userID, repository.LogQuery{From: first, To: last})
	if err != nil {
		atomic.AddInt64(&w.failed, 1)
		return fmt.Errorf("load logs for %s: %w", sheets.SheetTitle(userID, year, month), err)
	}
	if err := w.exporter.ExportMonth(ctx, userID, year, month, logs); err != nil {
		atomic.AddInt64(&w.failed, 1)
		return fmt.Errorf("export %s: %w", sheets.SheetTitle(userID, year, month), err)
	}
	atomic.AddInt64(&w.synced, 1)
	return nil
}

// ResyncCurrentMonth exports the current month of every approved user. It
// is the safety net for messages lost while the broker or worker was down.
// Every user is attempted; the failures are joined.
func (w *SyncWorker) ResyncCurrentMonth(ctx context.Context) error {
	profiles, err := w.store.ListProfiles(ctx)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	now := w.now()
	year, month := now.Year(), now.Month()

	var (
		g     errgroup.Group
		errs  = make([]error, len(profiles))
		users int
	)
	g.SetLimit(w.concurrency)
	for i, p := range profiles {
		if !p.IsApproved && p.Role != core.RoleAdmin {
			continue
		}
		users++
		g.Go(func() error {
			errs[i] = w.SyncMonth(ctx, p.UID, year, month)
			return nil
		})
	}
	g.Wait()

	err = errors.Join(errs...)
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "Periodic resync completed",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldOperation, applog.OpSync,
		applog.FieldYear, year,
		applog.FieldMonth, int(month),
		"users", users,
		applog.FieldError, err)
	return err
}

// Run consumes messages and resyncs every interval until ctx is done or
// the consumer gives up.
func (w *SyncWorker) Run(ctx context.Context, consumer Consumer, interval time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := consumer.ConsumeLogSync(ctx, w.HandleSyncMessage)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		if err := w.ResyncCurrentMonth(ctx); err != nil {
			slog.ErrorContext(ctx, "Startup resync failed",
				applog.FieldComponent, applog.ComponentWorker,
				applog.FieldError, err)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := w.ResyncCurrentMonth(ctx); err != nil {
					slog.ErrorContext(ctx, "Periodic resync failed",
						applog.FieldComponent, applog.ComponentWorker,
						applog.FieldError, err)
				}
			}
		}
	})

	return g.Wait()
}

// Stats reports exports done and failed since start.
func (w *SyncWorker) Stats() (synced, failed int64) {
	return atomic.LoadInt64(&w.synced), atomic.LoadInt64(&w.failed)
}
