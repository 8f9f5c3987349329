package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"tiffin/internal/core"
	"tiffin/internal/repository"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "tiffin.db"))
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestMigrationsApplied(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiffin.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("open repo: %v", err)
	}
	repo.Close()

	version, dirty, err := SchemaVersion(path)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != 1 || dirty {
		t.Fatalf("version = %d dirty = %v", version, dirty)
	}
	// Reopening an up-to-date database is a no-op.
	again, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	again.Close()
}

func TestDayLogRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	created := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	log := core.DayLog{
		Date:  core.NewDate(2024, 3, 1),
		Flags: core.Flags{FullTiffin: true, Curd: true, ExtraChapatiQty: 3},
		CustomItems: []core.CustomItem{
			{ID: "b", Name: "lassi", Price: core.Money{Cents: 2550}},
			{ID: "a", Name: "papad", Price: core.Units(5)},
		},
		Notes:     "late lunch",
		Category:  "mess",
		TotalCost: core.Units(155),
		CreatedAt: created,
		UpdatedAt: created,
	}
	if err := repo.PutLog(ctx, "u1", log); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := repo.GetLog(ctx, "u1", log.Date)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Flags != log.Flags || got.Notes != log.Notes || got.TotalCost != log.TotalCost {
		t.Fatalf("got %+v", got)
	}
	if len(got.CustomItems) != 2 || got.CustomItems[0].ID != "b" || got.CustomItems[0].Price.Cents != 2550 {
		t.Fatalf("custom items out of order: %+v", got.CustomItems)
	}
	if !got.CreatedAt.Equal(created) {
		t.Fatalf("created at = %v", got.CreatedAt)
	}

	// Overwrite drops removed items and keeps the first creation time.
	later := created.Add(2 * time.Hour)
	log.CustomItems = log.CustomItems[:1]
	log.CreatedAt, log.UpdatedAt = later, later
	if err := repo.PutLog(ctx, "u1", log); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = repo.GetLog(ctx, "u1", log.Date)
	if len(got.CustomItems) != 1 || !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(later) {
		t.Fatalf("after overwrite %+v", got)
	}

	if _, err := repo.GetLog(ctx, "u2", log.Date); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("other user: %v", err)
	}
	if err := repo.DeleteLog(ctx, "u1", log.Date); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetLog(ctx, "u1", log.Date); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("after delete: %v", err)
	}
}

func TestListLogsRange(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	start, end := core.NewDate(2024, 2, 27), core.NewDate(2024, 3, 2)
	logs, err := core.LeaveRange(start, end, "trip", time.Now())
	if err != nil {
		t.Fatalf("leave range: %v", err)
	}
	if err := repo.PutLogs(ctx, "u1", logs); err != nil {
		t.Fatalf("put logs: %v", err)
	}

	first, last := core.MonthRange(time.February, 2024)
	feb, err := repo.ListLogs(ctx, "u1", repository.LogQuery{From: first, To: last})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(feb) != 3 || feb[0].Date.Key() != "2024-02-27" || feb[2].Date.Key() != "2024-02-29" {
		t.Fatalf("february = %v", feb)
	}
	for _, l := range feb {
		if !l.NoTiffin || l.Category != "trip" || l.CustomItems == nil {
			t.Fatalf("unexpected leave log %+v", l)
		}
	}

	all, _ := repo.ListLogs(ctx, "u1", repository.LogQuery{})
	if len(all) != 5 {
		t.Fatalf("open range returned %d", len(all))
	}
}

func TestPutLogsRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	logs, _ := core.LeaveRange(core.NewDate(2024, 3, 1), core.NewDate(2024, 3, 5), "", time.Now())
	// Two items sharing an id violate the custom item key on the fourth day.
	logs[3].CustomItems = []core.CustomItem{{ID: "x", Name: "a"}, {ID: "x", Name: "b"}}

	if err := repo.PutLogs(ctx, "u1", logs); err == nil {
		t.Fatalf("expected failure")
	}
	stored, _ := repo.ListLogs(ctx, "u1", repository.LogQuery{})
	if len(stored) != 0 {
		t.Fatalf("partial batch committed: %d logs", len(stored))
	}
}

func TestProfilesAndPricing(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	p := core.UserProfile{
		UID:       "u1",
		Email:     "a@example.com",
		Role:      core.RoleUser,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Settings:  core.DefaultSettings,
		Pricing:   core.DefaultPriceTable,
	}
	if err := repo.CreateProfile(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.CreateProfile(ctx, p); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("duplicate: %v", err)
	}

	price := core.Units(30)
	merged, err := repo.UpdatePricing(ctx, "u1", core.PricePatch{Rice: &price})
	if err != nil {
		t.Fatalf("update pricing: %v", err)
	}
	if merged.Rice != price || merged.Dinner != core.DefaultPriceTable.Dinner {
		t.Fatalf("merged = %+v", merged)
	}
	stored, _ := repo.GetPricing(ctx, "u1")
	if stored != merged {
		t.Fatalf("stored %+v != merged %+v", stored, merged)
	}
	if _, err := repo.UpdatePricing(ctx, "nobody", core.PricePatch{Rice: &price}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing pricing: %v", err)
	}

	if err := repo.SetApproval(ctx, "u1", true); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if err := repo.SetRole(ctx, "u1", core.RoleAdmin); err != nil {
		t.Fatalf("role: %v", err)
	}
	got, err := repo.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if !got.IsApproved || got.Role != core.RoleAdmin || got.Pricing.Rice != price || got.Settings != core.DefaultSettings {
		t.Fatalf("profile = %+v", got)
	}
	if err := repo.SetRole(ctx, "nobody", core.RoleAdmin); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing role target: %v", err)
	}
}

func TestAlerts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_ = repo.AddAlert(ctx, core.Alert{ID: "1", Type: "new_signup", UserID: "u1", CreatedAt: base})
	_ = repo.AddAlert(ctx, core.Alert{ID: "2", Type: "new_signup", UserID: "u2", CreatedAt: base.Add(time.Minute)})

	if err := repo.MarkAlertRead(ctx, "1"); err != nil {
		t.Fatalf("mark: %v", err)
	}
	alerts, err := repo.ListAlerts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(alerts) != 2 || alerts[0].ID != "2" || !alerts[1].Read {
		t.Fatalf("alerts = %+v", alerts)
	}
	if err := repo.MarkAlertRead(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("missing alert: %v", err)
	}
}
