package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tiffin/internal/core"
	"tiffin/internal/repository"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var _ repository.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// Run migrations on their own connection before the pool opens
	if err := RunMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) GetLog(ctx context.Context, userID string, date core.Date) (core.DayLog, error) {
	row, err := r.queries.GetDayLog(ctx, userID, date.Key())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.DayLog{}, fmt.Errorf("log %s: %w", date.Key(), repository.ErrNotFound)
		}
		return core.DayLog{}, fmt.Errorf("get day log: %w", err)
	}
	items, err := r.queries.ListCustomItems(ctx, userID, date.Key(), date.Key())
	if err != nil {
		return core.DayLog{}, fmt.Errorf("list custom items: %w", err)
	}
	return toDayLog(row, items)
}

func (r *SQLiteRepository) ListLogs(ctx context.Context, userID string, q repository.LogQuery) ([]core.DayLog, error) {
	from, to := q.From.Key(), q.To.Key()
	rows, err := r.queries.ListDayLogs(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list day logs: %w", err)
	}
	items, err := r.queries.ListCustomItems(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list custom items: %w", err)
	}

	byDate := make(map[string][]CustomItemRow)
	for _, it := range items {
		byDate[it.Date] = append(byDate[it.Date], it)
	}

	logs := make([]core.DayLog, 0, len(rows))
	for _, row := range rows {
		l, err := toDayLog(row, byDate[row.Date])
		if err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, nil
}

func (r *SQLiteRepository) PutLog(ctx context.Context, userID string, log core.DayLog) error {
	return r.PutLogs(ctx, userID, []core.DayLog{log})
}

// PutLogs writes the batch in one transaction. Either every log is stored or
// none is.
func (r *SQLiteRepository) PutLogs(ctx context.Context, userID string, logs []core.DayLog) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	now := r.now()
	for _, l := range logs {
		if err := l.Date.Validate(); err != nil {
			return fmt.Errorf("write log: %w", err)
		}
		key := l.Date.Key()
		if err := qtx.UpsertDayLog(ctx, fromDayLog(userID, l, now)); err != nil {
			return fmt.Errorf("upsert day log %s: %w", key, err)
		}
		if err := qtx.DeleteCustomItems(ctx, userID, key); err != nil {
			return fmt.Errorf("clear custom items %s: %w", key, err)
		}
		for i, item := range l.CustomItems {
			err := qtx.InsertCustomItem(ctx, userID, CustomItemRow{
				Date:       key,
				ItemID:     item.ID,
				Position:   int64(i),
				Name:       item.Name,
				PriceCents: item.Price.Cents,
			})
			if err != nil {
				return fmt.Errorf("insert custom item %s/%s: %w", key, item.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit logs: %w", err)
	}
	slog.DebugContext(ctx, "Day logs written", "user_id", userID, "count", len(logs))
	return nil
}

func (r *SQLiteRepository) DeleteLog(ctx context.Context, userID string, date core.Date) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	if err := qtx.DeleteCustomItems(ctx, userID, date.Key()); err != nil {
		return fmt.Errorf("delete custom items: %w", err)
	}
	if err := qtx.DeleteDayLog(ctx, userID, date.Key()); err != nil {
		return fmt.Errorf("delete day log: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteRepository) GetPricing(ctx context.Context, userID string) (core.PriceTable, error) {
	row, err := r.queries.GetPriceTable(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.PriceTable{}, fmt.Errorf("pricing %s: %w", userID, repository.ErrNotFound)
		}
		return core.PriceTable{}, fmt.Errorf("get price table: %w", err)
	}
	return toPriceTable(row), nil
}

// UpdatePricing merges the patch over the stored table inside a transaction.
func (r *SQLiteRepository) UpdatePricing(ctx context.Context, userID string, patch core.PricePatch) (core.PriceTable, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.PriceTable{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	row, err := qtx.GetPriceTable(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.PriceTable{}, fmt.Errorf("pricing %s: %w", userID, repository.ErrNotFound)
		}
		return core.PriceTable{}, fmt.Errorf("get price table: %w", err)
	}
	merged := patch.Apply(toPriceTable(row))
	if err := qtx.UpsertPriceTable(ctx, fromPriceTable(userID, merged, r.now())); err != nil {
		return core.PriceTable{}, fmt.Errorf("update price table: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return core.PriceTable{}, fmt.Errorf("commit pricing: %w", err)
	}
	return merged, nil
}

func (r *SQLiteRepository) SetPricing(ctx context.Context, userID string, table core.PriceTable) error {
	if _, err := r.GetProfile(ctx, userID); err != nil {
		return err
	}
	if err := r.queries.UpsertPriceTable(ctx, fromPriceTable(userID, table, r.now())); err != nil {
		return fmt.Errorf("set price table: %w", err)
	}
	return nil
}

// CreateProfile stores the profile together with its initial price table.
func (r *SQLiteRepository) CreateProfile(ctx context.Context, p core.UserProfile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := r.queries.WithTx(tx)
	if _, err := qtx.GetProfile(ctx, p.UID); err == nil {
		return fmt.Errorf("profile %s: %w", p.UID, repository.ErrDuplicate)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check profile: %w", err)
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	err = qtx.InsertProfile(ctx, ProfileRow{
		UID:             p.UID,
		Email:           p.Email,
		DisplayName:     p.DisplayName,
		Role:            string(p.Role),
		IsApproved:      p.IsApproved,
		UITheme:         p.Settings.UITheme,
		ReminderTime:    p.Settings.ReminderTime,
		DefaultCategory: p.Settings.DefaultCategory,
		CreatedAt:       formatTime(createdAt),
	})
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	if err := qtx.UpsertPriceTable(ctx, fromPriceTable(p.UID, p.Pricing, createdAt)); err != nil {
		return fmt.Errorf("insert price table: %w", err)
	}
	return tx.Commit()
}

func (r *SQLiteRepository) GetProfile(ctx context.Context, userID string) (core.UserProfile, error) {
	row, err := r.queries.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.UserProfile{}, fmt.Errorf("profile %s: %w", userID, repository.ErrNotFound)
		}
		return core.UserProfile{}, fmt.Errorf("get profile: %w", err)
	}
	p := toProfile(row)
	pricing, err := r.GetPricing(ctx, userID)
	switch {
	case err == nil:
		p.Pricing = pricing
	case errors.Is(err, repository.ErrNotFound):
		p.Pricing = core.DefaultPriceTable
	default:
		return core.UserProfile{}, err
	}
	return p, nil
}

func (r *SQLiteRepository) ListProfiles(ctx context.Context) ([]core.UserProfile, error) {
	rows, err := r.queries.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	out := make([]core.UserProfile, len(rows))
	for i, row := range rows {
		out[i] = toProfile(row)
	}
	return out, nil
}

func (r *SQLiteRepository) SetApproval(ctx context.Context, userID string, approved bool) error {
	n, err := r.queries.SetApproval(ctx, userID, approved)
	return affected(n, err, "profile "+userID)
}

func (r *SQLiteRepository) SetRole(ctx context.Context, userID string, role core.Role) error {
	n, err := r.queries.SetRole(ctx, userID, string(role))
	return affected(n, err, "profile "+userID)
}

func (r *SQLiteRepository) UpdateSettings(ctx context.Context, userID string, s core.UserSettings) error {
	n, err := r.queries.UpdateSettings(ctx, userID, s.UITheme, s.ReminderTime, s.DefaultCategory)
	return affected(n, err, "profile "+userID)
}

func (r *SQLiteRepository) AddAlert(ctx context.Context, a core.Alert) error {
	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = r.now()
	}
	err := r.queries.InsertAlert(ctx, AlertRow{
		ID:          a.ID,
		Type:        a.Type,
		UserID:      a.UserID,
		Email:       a.Email,
		DisplayName: a.Name,
		Read:        a.Read,
		CreatedAt:   formatTime(createdAt),
	})
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListAlerts(ctx context.Context) ([]core.Alert, error) {
	rows, err := r.queries.ListAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	out := make([]core.Alert, len(rows))
	for i, row := range rows {
		out[i] = core.Alert{
			ID:        row.ID,
			Type:      row.Type,
			UserID:    row.UserID,
			Email:     row.Email,
			Name:      row.DisplayName,
			Read:      row.Read,
			CreatedAt: parseTime(row.CreatedAt),
		}
	}
	return out, nil
}

func (r *SQLiteRepository) MarkAlertRead(ctx context.Context, id string) error {
	n, err := r.queries.MarkAlertRead(ctx, id)
	return affected(n, err, "alert "+id)
}

func affected(n int64, err error, what string) error {
	if err != nil {
		return fmt.Errorf("update %s: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, repository.ErrNotFound)
	}
	return nil
}

func fromDayLog(userID string, l core.DayLog, now time.Time) DayLogRow {
	createdAt, updatedAt := l.CreatedAt, l.UpdatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	if updatedAt.IsZero() {
		updatedAt = now
	}
	return DayLogRow{
		UserID:          userID,
		Date:            l.Date.Key(),
		FullTiffin:      l.FullTiffin,
		HalfTiffin:      l.HalfTiffin,
		ExtraTiffin:     l.ExtraTiffin,
		NoTiffin:        l.NoTiffin,
		OnlyChapati:     l.OnlyChapati,
		ExtraChapatiQty: int64(l.ExtraChapatiQty),
		OnlyRice:        l.OnlyRice,
		OnlySabzi:       l.OnlySabzi,
		Curd:            l.Curd,
		Sweet:           l.Sweet,
		BreakfastOnly:   l.BreakfastOnly,
		DinnerOnly:      l.DinnerOnly,
		Notes:           l.Notes,
		Category:        l.CategoryOrDefault(),
		TotalCostCents:  l.TotalCost.Cents,
		CreatedAt:       formatTime(createdAt),
		UpdatedAt:       formatTime(updatedAt),
	}
}

func toDayLog(row DayLogRow, items []CustomItemRow) (core.DayLog, error) {
	date, err := core.ParseDate(row.Date)
	if err != nil {
		return core.DayLog{}, fmt.Errorf("stored log: %w", err)
	}
	l := core.DayLog{
		Date: date,
		Flags: core.Flags{
			FullTiffin:      row.FullTiffin,
			HalfTiffin:      row.HalfTiffin,
			ExtraTiffin:     row.ExtraTiffin,
			NoTiffin:        row.NoTiffin,
			OnlyChapati:     row.OnlyChapati,
			ExtraChapatiQty: int(row.ExtraChapatiQty),
			OnlyRice:        row.OnlyRice,
			OnlySabzi:       row.OnlySabzi,
			Curd:            row.Curd,
			Sweet:           row.Sweet,
			BreakfastOnly:   row.BreakfastOnly,
			DinnerOnly:      row.DinnerOnly,
		},
		CustomItems: make([]core.CustomItem, 0, len(items)),
		Notes:       row.Notes,
		Category:    row.Category,
		TotalCost:   core.Money{Cents: row.TotalCostCents},
		CreatedAt:   parseTime(row.CreatedAt),
		UpdatedAt:   parseTime(row.UpdatedAt),
	}
	for _, it := range items {
		l.CustomItems = append(l.CustomItems, core.CustomItem{
			ID:    it.ItemID,
			Name:  it.Name,
			Price: core.Money{Cents: it.PriceCents},
		})
	}
	return l, nil
}

func fromPriceTable(userID string, p core.PriceTable, now time.Time) PriceTableRow {
	return PriceTableRow{
		UserID:            userID,
		FullTiffinCents:   p.FullTiffin.Cents,
		HalfTiffinCents:   p.HalfTiffin.Cents,
		ExtraTiffinCents:  p.ExtraTiffin.Cents,
		ChapatiCents:      p.Chapati.Cents,
		ExtraChapatiCents: p.ExtraChapati.Cents,
		RiceCents:         p.Rice.Cents,
		SabziCents:        p.Sabzi.Cents,
		CurdCents:         p.Curd.Cents,
		SweetCents:        p.Sweet.Cents,
		BreakfastCents:    p.Breakfast.Cents,
		DinnerCents:       p.Dinner.Cents,
		UpdatedAt:         formatTime(now),
	}
}

func toPriceTable(r PriceTableRow) core.PriceTable {
	return core.PriceTable{
		FullTiffin:   core.Money{Cents: r.FullTiffinCents},
		HalfTiffin:   core.Money{Cents: r.HalfTiffinCents},
		ExtraTiffin:  core.Money{Cents: r.ExtraTiffinCents},
		Chapati:      core.Money{Cents: r.ChapatiCents},
		ExtraChapati: core.Money{Cents: r.ExtraChapatiCents},
		Rice:         core.Money{Cents: r.RiceCents},
		Sabzi:        core.Money{Cents: r.SabziCents},
		Curd:         core.Money{Cents: r.CurdCents},
		Sweet:        core.Money{Cents: r.SweetCents},
		Breakfast:    core.Money{Cents: r.BreakfastCents},
		Dinner:       core.Money{Cents: r.DinnerCents},
	}
}

func toProfile(r ProfileRow) core.UserProfile {
	return core.UserProfile{
		UID:         r.UID,
		Email:       r.Email,
		DisplayName: r.DisplayName,
		Role:        core.Role(strings.TrimSpace(r.Role)),
		IsApproved:  r.IsApproved,
		CreatedAt:   parseTime(r.CreatedAt),
		Settings: core.UserSettings{
			UITheme:         r.UITheme,
			ReminderTime:    r.ReminderTime,
			DefaultCategory: r.DefaultCategory,
		},
	}
}
