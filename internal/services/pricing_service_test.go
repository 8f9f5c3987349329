package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"tiffin/internal/cache"
	"tiffin/internal/core"
	"tiffin/internal/repository/memory"
	"tiffin/internal/session"
)

func newPricingFixture(t *testing.T) (*PricingService, *memory.Store) {
	t.Helper()
	store := memory.New()
	err := store.CreateProfile(context.Background(), core.UserProfile{UID: "u1", Role: core.RoleUser, IsApproved: true, Pricing: core.DefaultPriceTable})
	if err != nil {
		t.Fatalf("create profile: %v", err)
	}
	return NewPricingService(store, cache.NewLRUCache[core.PriceTable](10, time.Minute)), store
}

func TestPricingGetFallsBackToDefaults(t *testing.T) {
	svc, _ := newPricingFixture(t)
	p, err := svc.Get(context.Background(), "nobody")
	if err != nil || p != core.DefaultPriceTable {
		t.Fatalf("got %+v %v", p, err)
	}
}

func TestPricingUpdateMerges(t *testing.T) {
	ctx := context.Background()
	svc, store := newPricingFixture(t)

	price := core.Units(25)
	p, err := svc.Update(ctx, approved, core.PricePatch{Rice: &price})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	want := core.DefaultPriceTable
	want.Rice = price
	if p != want {
		t.Fatalf("merged = %+v", p)
	}
	stored, _ := store.GetPricing(ctx, "u1")
	cached, _ := svc.Get(ctx, "u1")
	if stored != want || cached != want {
		t.Fatalf("stored %+v cached %+v", stored, cached)
	}
}

func TestPricingUpdateValidation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newPricingFixture(t)

	neg := core.Money{Cents: -1}
	if _, err := svc.Update(ctx, approved, core.PricePatch{Sweet: &neg}); !errors.Is(err, core.ErrNegativeAmount) {
		t.Fatalf("negative: %v", err)
	}
	pending := session.Session{UserID: "u1", Role: core.RoleUser}
	price := core.Units(1)
	if _, err := svc.Update(ctx, pending, core.PricePatch{Sweet: &price}); !errors.Is(err, session.ErrNotApproved) {
		t.Fatalf("pending: %v", err)
	}
	p, err := svc.Update(ctx, approved, core.PricePatch{})
	if err != nil || p != core.DefaultPriceTable {
		t.Fatalf("empty patch: %+v %v", p, err)
	}
}

func TestPricingReset(t *testing.T) {
	ctx := context.Background()
	svc, store := newPricingFixture(t)
	price := core.Units(500)
	if _, err := svc.Update(ctx, approved, core.PricePatch{FullTiffin: &price, Dinner: &price}); err != nil {
		t.Fatalf("update: %v", err)
	}
	p, err := svc.Reset(ctx, approved)
	if err != nil || p != core.DefaultPriceTable {
		t.Fatalf("reset: %+v %v", p, err)
	}
	stored, _ := store.GetPricing(ctx, "u1")
	if stored != core.DefaultPriceTable {
		t.Fatalf("stored = %+v", stored)
	}

	if _, err := svc.ResetFor(ctx, approved, "u1"); !errors.Is(err, session.ErrForbidden) {
		t.Fatalf("non-admin reset for: %v", err)
	}
}
