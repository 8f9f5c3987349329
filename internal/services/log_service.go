package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tiffin/internal/core"
	applog "tiffin/internal/log"
	"tiffin/internal/repository"
	"tiffin/internal/session"
)

// Reasons carried on sync notifications.
const (
	ReasonSave   = "save"
	ReasonDelete = "delete"
	ReasonLeave  = "leave"
)

// SyncPublisher is notified after a user's month changed.
type SyncPublisher interface {
	PublishLogSync(ctx context.Context, userID string, year int, month time.Month, reason string) error
}

// LogService is the per-user view over the day logs. It keeps the logs it
// has seen in memory, keyed by date, and every write goes to the store
// before the cache is touched.
type LogService struct {
	sess    session.Session
	store   repository.LogStore
	pricing *PricingService
	events  SyncPublisher
	now     func() time.Time
	newID   func() string

	mu    sync.RWMutex
	cache map[string]core.DayLog
}

// NewLogService opens a log session. The caller must be approved.
func NewLogService(sess session.Session, store repository.LogStore, pricing *PricingService, events SyncPublisher) (*LogService, error) {
	if err := sess.RequireApproved(); err != nil {
		return nil, err
	}
	return &LogService{
		sess:    sess,
		store:   store,
		pricing: pricing,
		events:  events,
		now:     time.Now,
		newID:   uuid.NewString,
		cache:   make(map[string]core.DayLog),
	}, nil
}

func (s *LogService) UserID() string { return s.sess.UserID }

// FetchLogs loads [from, to] from the store and replaces the cache with it.
// Zero bounds are open.
func (s *LogService) FetchLogs(ctx context.Context, from, to core.Date) ([]core.DayLog, error) {
	logs, err := s.store.ListLogs(ctx, s.sess.UserID, repository.LogQuery{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}

	s.mu.Lock()
	s.cache = make(map[string]core.DayLog, len(logs))
	for _, l := range logs {
		s.cache[l.Date.Key()] = l
	}
	s.mu.Unlock()

	return logs, nil
}

// Logs returns the cached logs ordered by date.
func (s *LogService) Logs() []core.DayLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.DayLog, 0, len(s.cache))
	for _, l := range s.cache {
		out = append(out, l)
	}
	core.SortByDate(out)
	return out
}

// GetLog returns the log for date, reading through the cache.
func (s *LogService) GetLog(ctx context.Context, date core.Date) (core.DayLog, error) {
	s.mu.RLock()
	l, ok := s.cache[date.Key()]
	s.mu.RUnlock()
	if ok {
		return l, nil
	}

	l, err := s.store.GetLog(ctx, s.sess.UserID, date)
	if err != nil {
		return core.DayLog{}, err
	}
	s.remember(l)
	return l, nil
}

// SaveLog replaces the log for date with entry. Unset fields become their
// zero value, the category defaults to mess and the total is recomputed
// against the current price table.
func (s *LogService) SaveLog(ctx context.Context, date core.Date, e core.Entry) (core.DayLog, error) {
	if err := date.Validate(); err != nil {
		return core.DayLog{}, err
	}
	date = core.DateOf(date.Time)

	prices, err := s.pricing.Get(ctx, s.sess.UserID)
	if err != nil {
		return core.DayLog{}, fmt.Errorf("load pricing: %w", err)
	}

	if len(e.CustomItems) > 0 {
		items := make([]core.CustomItem, len(e.CustomItems))
		for i, item := range e.CustomItems {
			if item.ID == "" {
				item.ID = s.newID()
			}
			items[i] = item
		}
		e.CustomItems = items
	}

	log, err := core.NewDayLog(date, e, prices, s.now())
	if err != nil {
		return core.DayLog{}, err
	}
	if err := s.store.PutLog(ctx, s.sess.UserID, log); err != nil {
		return core.DayLog{}, fmt.Errorf("save log %s: %w", date, err)
	}

	// The store keeps the first createdAt; read back what it holds.
	if stored, err := s.store.GetLog(ctx, s.sess.UserID, date); err == nil {
		log = stored
	}
	s.remember(log)

	slog.InfoContext(ctx, "Day log saved",
		applog.FieldComponent, applog.ComponentLogs,
		applog.FieldUserID, s.sess.UserID,
		applog.FieldDate, date.Key(),
		applog.FieldAmountCents, log.TotalCost.Cents)

	s.notify(ctx, ReasonSave, date)
	return log, nil
}

// SkipDay records that no tiffin was taken on date.
func (s *LogService) SkipDay(ctx context.Context, date core.Date) (core.DayLog, error) {
	return s.SaveLog(ctx, date, core.Entry{Flags: core.Flags{NoTiffin: true}})
}

func (s *LogService) DeleteLog(ctx context.Context, date core.Date) error {
	if err := s.store.DeleteLog(ctx, s.sess.UserID, date); err != nil {
		return fmt.Errorf("delete log %s: %w", date, err)
	}
	s.mu.Lock()
	delete(s.cache, date.Key())
	s.mu.Unlock()

	s.notify(ctx, ReasonDelete, date)
	return nil
}

// SetBulkLeave marks every day in [start, end] as leave in one batch. Either
// every day is written or none is. Days that already had a log are
// overwritten, so repeating the call leaves the same state.
func (s *LogService) SetBulkLeave(ctx context.Context, start, end core.Date, category string) error {
	logs, err := core.LeaveRange(start, end, category, s.now())
	if err != nil {
		return err
	}
	if err := s.store.PutLogs(ctx, s.sess.UserID, logs); err != nil {
		slog.ErrorContext(ctx, "Bulk leave failed",
			applog.FieldComponent, applog.ComponentLogs,
			applog.FieldUserID, s.sess.UserID,
			applog.FieldError, err)
		return fmt.Errorf("set leave %s..%s: %w", start, end, err)
	}

	first, last := logs[0].Date, logs[len(logs)-1].Date
	slog.InfoContext(ctx, "Bulk leave written",
		applog.FieldComponent, applog.ComponentLogs,
		applog.FieldUserID, s.sess.UserID,
		"from", first.Key(),
		"to", last.Key(),
		"days", len(logs),
		"category", logs[0].Category)

	s.refresh(ctx, first, last, logs)

	seen := make(map[string]bool)
	for _, l := range logs {
		key := l.Date.Format("2006-01")
		if !seen[key] {
			seen[key] = true
			s.notify(ctx, ReasonLeave, l.Date)
		}
	}
	return nil
}

// MonthlySummary loads the month into the cache and aggregates it.
func (s *LogService) MonthlySummary(ctx context.Context, month time.Month, year int) (core.MonthlySummary, error) {
	first, last := core.MonthRange(month, year)
	logs, err := s.load(ctx, first, last)
	if err != nil {
		return core.MonthlySummary{}, err
	}
	return core.MonthlySummaryFor(logs, month, year), nil
}

// WeeklySummary aggregates the seven days starting at start.
func (s *LogService) WeeklySummary(ctx context.Context, start core.Date) (core.WeeklySummary, error) {
	if err := start.Validate(); err != nil {
		return core.WeeklySummary{}, err
	}
	start = core.DateOf(start.Time)
	logs, err := s.load(ctx, start, start.AddDays(6))
	if err != nil {
		return core.WeeklySummary{}, err
	}
	return core.WeeklySummaryFor(logs, start), nil
}

// load reads [from, to] from the store and merges it into the cache.
func (s *LogService) load(ctx context.Context, from, to core.Date) ([]core.DayLog, error) {
	logs, err := s.store.ListLogs(ctx, s.sess.UserID, repository.LogQuery{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("load logs %s..%s: %w", from, to, err)
	}
	s.mu.Lock()
	for _, l := range logs {
		s.cache[l.Date.Key()] = l
	}
	s.mu.Unlock()
	return logs, nil
}

// refresh re-reads a freshly written range. On a read failure the written
// logs are cached as they were sent.
func (s *LogService) refresh(ctx context.Context, from, to core.Date, written []core.DayLog) {
	if _, err := s.load(ctx, from, to); err != nil {
		slog.WarnContext(ctx, "Cache refresh after write failed",
			applog.FieldComponent, applog.ComponentLogs,
			applog.FieldUserID, s.sess.UserID,
			applog.FieldError, err)
		for _, l := range written {
			s.remember(l)
		}
	}
}

func (s *LogService) remember(l core.DayLog) {
	s.mu.Lock()
	s.cache[l.Date.Key()] = l
	s.mu.Unlock()
}

func (s *LogService) notify(ctx context.Context, reason string, date core.Date) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLogSync(ctx, s.sess.UserID, date.Year(), date.Month(), reason); err != nil {
		// The write is already durable; the worker's periodic resync catches up.
		slog.ErrorContext(ctx, "Failed to publish log sync",
			applog.FieldComponent, applog.ComponentLogs,
			applog.FieldUserID, s.sess.UserID,
			applog.FieldError, err)
	}
}
