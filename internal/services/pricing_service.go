package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tiffin/internal/cache"
	"tiffin/internal/core"
	applog "tiffin/internal/log"
	"tiffin/internal/repository"
	"tiffin/internal/session"
)

// PricingService reads and edits per-user price tables. Reads go through an
// optional LRU cache that is refreshed on every write.
type PricingService struct {
	store repository.PricingStore
	cache cache.Cache[core.PriceTable]
}

func NewPricingService(store repository.PricingStore, c cache.Cache[core.PriceTable]) *PricingService {
	return &PricingService{store: store, cache: c}
}

// Get returns the user's price table, or the defaults when none is stored.
func (s *PricingService) Get(ctx context.Context, userID string) (core.PriceTable, error) {
	if s.cache != nil {
		if p, ok := s.cache.Get(userID); ok {
			return p, nil
		}
	}
	p, err := s.store.GetPricing(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return core.DefaultPriceTable, nil
	}
	if err != nil {
		return core.PriceTable{}, fmt.Errorf("get pricing: %w", err)
	}
	s.remember(userID, p)
	return p, nil
}

// Update merges patch over the caller's table. Fields left out keep their
// value; negative prices are rejected.
func (s *PricingService) Update(ctx context.Context, sess session.Session, patch core.PricePatch) (core.PriceTable, error) {
	if err := sess.RequireApproved(); err != nil {
		return core.PriceTable{}, err
	}
	if err := patch.Validate(); err != nil {
		return core.PriceTable{}, err
	}
	if patch.IsEmpty() {
		return s.Get(ctx, sess.UserID)
	}

	p, err := s.store.UpdatePricing(ctx, sess.UserID, patch)
	if err != nil {
		s.forget(sess.UserID)
		return core.PriceTable{}, fmt.Errorf("update pricing: %w", err)
	}
	s.remember(sess.UserID, p)

	slog.InfoContext(ctx, "Pricing updated",
		applog.FieldComponent, applog.ComponentPricing,
		applog.FieldUserID, sess.UserID)
	return p, nil
}

// Reset replaces the caller's table with the defaults.
func (s *PricingService) Reset(ctx context.Context, sess session.Session) (core.PriceTable, error) {
	if err := sess.RequireApproved(); err != nil {
		return core.PriceTable{}, err
	}
	return s.reset(ctx, sess.UserID)
}

// ResetFor resets another user's table. Admin only.
func (s *PricingService) ResetFor(ctx context.Context, sess session.Session, userID string) (core.PriceTable, error) {
	if err := sess.RequireAdmin(); err != nil {
		return core.PriceTable{}, err
	}
	return s.reset(ctx, userID)
}

func (s *PricingService) reset(ctx context.Context, userID string) (core.PriceTable, error) {
	if err := s.store.SetPricing(ctx, userID, core.DefaultPriceTable); err != nil {
		s.forget(userID)
		return core.PriceTable{}, fmt.Errorf("reset pricing: %w", err)
	}
	s.remember(userID, core.DefaultPriceTable)

	slog.InfoContext(ctx, "Pricing reset to defaults",
		applog.FieldComponent, applog.ComponentPricing,
		applog.FieldUserID, userID)
	return core.DefaultPriceTable, nil
}

func (s *PricingService) remember(userID string, p core.PriceTable) {
	if s.cache != nil {
		s.cache.Set(userID, p)
	}
}

func (s *PricingService) forget(userID string) {
	if s.cache != nil {
		s.cache.Delete(userID)
	}
}
