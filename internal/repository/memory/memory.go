package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tiffin/internal/core"
	"tiffin/internal/repository"
)

// Store keeps everything in process memory. Batches are staged in full and
// swapped in under the lock, so a failed batch leaves no trace.
type Store struct {
	mu       sync.Mutex
	logs     map[string]map[string]core.DayLog
	profiles map[string]core.UserProfile
	alerts   []core.Alert

	// failAfter > -1 makes the next log write fail once that many logs of
	// the call have been staged.
	failAfter int
	failErr   error
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		logs:      make(map[string]map[string]core.DayLog),
		profiles:  make(map[string]core.UserProfile),
		failAfter: -1,
	}
}

// FailWritesAfter makes the next log write fail with err after n logs of
// that write have been staged. Used to simulate a storage fault mid-batch.
func (s *Store) FailWritesAfter(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfter = n
	s.failErr = err
}

func (s *Store) Close() error { return nil }

func (s *Store) GetLog(_ context.Context, userID string, date core.Date) (core.DayLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.logs[userID][date.Key()]
	if !ok {
		return core.DayLog{}, fmt.Errorf("log %s: %w", date.Key(), repository.ErrNotFound)
	}
	return cloneLog(l), nil
}

func (s *Store) ListLogs(_ context.Context, userID string, q repository.LogQuery) ([]core.DayLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.DayLog, 0, len(s.logs[userID]))
	for _, l := range s.logs[userID] {
		if !q.From.IsZero() && l.Date.Before(q.From.Time) {
			continue
		}
		if !q.To.IsZero() && l.Date.After(q.To.Time) {
			continue
		}
		out = append(out, cloneLog(l))
	}
	core.SortByDate(out)
	return out, nil
}

func (s *Store) PutLog(ctx context.Context, userID string, log core.DayLog) error {
	return s.PutLogs(ctx, userID, []core.DayLog{log})
}

func (s *Store) PutLogs(_ context.Context, userID string, logs []core.DayLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.logs[userID]
	staged := make(map[string]core.DayLog, len(logs))
	for i, l := range logs {
		if s.failAfter >= 0 && i >= s.failAfter {
			err := s.failErr
			s.failAfter, s.failErr = -1, nil
			return fmt.Errorf("write log %s: %w", l.Date.Key(), err)
		}
		if err := l.Date.Validate(); err != nil {
			return fmt.Errorf("write log: %w", err)
		}
		key := l.Date.Key()
		if prev, ok := existing[key]; ok && !prev.CreatedAt.IsZero() {
			l.CreatedAt = prev.CreatedAt
		}
		staged[key] = cloneLog(l)
	}
	if s.failAfter >= 0 {
		err := s.failErr
		s.failAfter, s.failErr = -1, nil
		return fmt.Errorf("commit logs: %w", err)
	}

	if existing == nil {
		existing = make(map[string]core.DayLog, len(staged))
		s.logs[userID] = existing
	}
	for k, l := range staged {
		existing[k] = l
	}
	return nil
}

func (s *Store) DeleteLog(_ context.Context, userID string, date core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs[userID], date.Key())
	return nil
}

func (s *Store) GetPricing(_ context.Context, userID string) (core.PriceTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return core.PriceTable{}, fmt.Errorf("pricing %s: %w", userID, repository.ErrNotFound)
	}
	return p.Pricing, nil
}

func (s *Store) UpdatePricing(_ context.Context, userID string, patch core.PricePatch) (core.PriceTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return core.PriceTable{}, fmt.Errorf("pricing %s: %w", userID, repository.ErrNotFound)
	}
	p.Pricing = patch.Apply(p.Pricing)
	s.profiles[userID] = p
	return p.Pricing, nil
}

func (s *Store) SetPricing(_ context.Context, userID string, table core.PriceTable) error {
	return s.updateProfile(userID, func(p *core.UserProfile) { p.Pricing = table })
}

func (s *Store) CreateProfile(_ context.Context, p core.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UID]; ok {
		return fmt.Errorf("profile %s: %w", p.UID, repository.ErrDuplicate)
	}
	s.profiles[p.UID] = p
	return nil
}

func (s *Store) GetProfile(_ context.Context, userID string) (core.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return core.UserProfile{}, fmt.Errorf("profile %s: %w", userID, repository.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListProfiles(_ context.Context) ([]core.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.UserProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].UID < out[j].UID
	})
	return out, nil
}

func (s *Store) SetApproval(_ context.Context, userID string, approved bool) error {
	return s.updateProfile(userID, func(p *core.UserProfile) { p.IsApproved = approved })
}

func (s *Store) SetRole(_ context.Context, userID string, role core.Role) error {
	return s.updateProfile(userID, func(p *core.UserProfile) { p.Role = role })
}

func (s *Store) UpdateSettings(_ context.Context, userID string, settings core.UserSettings) error {
	return s.updateProfile(userID, func(p *core.UserProfile) { p.Settings = settings })
}

func (s *Store) updateProfile(userID string, fn func(*core.UserProfile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return fmt.Errorf("profile %s: %w", userID, repository.ErrNotFound)
	}
	fn(&p)
	s.profiles[userID] = p
	return nil
}

func (s *Store) AddAlert(_ context.Context, a core.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func (s *Store) ListAlerts(_ context.Context) ([]core.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Alert, len(s.alerts))
	for i, a := range s.alerts {
		out[len(s.alerts)-1-i] = a
	}
	return out, nil
}

func (s *Store) MarkAlertRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("alert %s: %w", id, repository.ErrNotFound)
}

func cloneLog(l core.DayLog) core.DayLog {
	l.CustomItems = append([]core.CustomItem{}, l.CustomItems...)
	return l
}
