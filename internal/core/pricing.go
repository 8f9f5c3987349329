package core

import (
	"fmt"
	"strings"
	"time"
)

// MaxLeaveDays bounds a single bulk leave request.
const MaxLeaveDays = 366

// MaxQuantity bounds the extra chapati count of one day.
const MaxQuantity = 1000

// Entry is what a caller submits for a day. Saving an entry fully replaces
// the stored log: anything left out is false, zero or empty afterwards.
type Entry struct {
	Flags
	CustomItems []CustomItem `json:"customItems"`
	Notes       string       `json:"notes"`
	Category    string       `json:"category"`
	CreatedAt   time.Time    `json:"createdAt,omitempty"`
}

// CalculateTotalCost sums the price of every selected item. It is a plain sum:
// NoTiffin is not consulted here, callers clear conflicting flags first (see
// Flags.Normalize). Custom items always count. The sum saturates rather than
// overflowing, so callers detect runaway totals with Money.TooLarge.
func CalculateTotalCost(f Flags, items []CustomItem, p PriceTable) Money {
	var total Money
	add := func(selected bool, price Money) {
		if selected {
			total = total.Add(price)
		}
	}
	add(f.FullTiffin, p.FullTiffin)
	add(f.HalfTiffin, p.HalfTiffin)
	add(f.ExtraTiffin, p.ExtraTiffin)
	add(f.OnlyChapati, p.Chapati)
	add(f.OnlyRice, p.Rice)
	add(f.OnlySabzi, p.Sabzi)
	add(f.Curd, p.Curd)
	add(f.Sweet, p.Sweet)
	add(f.BreakfastOnly, p.Breakfast)
	add(f.DinnerOnly, p.Dinner)

	if f.ExtraChapatiQty > 0 {
		total = total.Add(p.ExtraChapati.Times(f.ExtraChapatiQty))
	}
	for _, item := range items {
		total = total.Add(item.Price)
	}
	return total
}

// Normalize clears every consumption flag when NoTiffin is set.
func (f Flags) Normalize() Flags {
	if !f.NoTiffin {
		return f
	}
	return Flags{NoTiffin: true}
}

// HasConsumption reports whether anything billable was selected.
func (f Flags) HasConsumption() bool {
	return f.FullTiffin || f.HalfTiffin || f.ExtraTiffin || f.OnlyChapati ||
		f.OnlyRice || f.OnlySabzi || f.Curd || f.Sweet || f.BreakfastOnly ||
		f.DinnerOnly || f.ExtraChapatiQty > 0
}

// NewDayLog builds the complete record stored for date from a caller entry,
// recomputing TotalCost against prices.
func NewDayLog(date Date, e Entry, prices PriceTable, now time.Time) (DayLog, error) {
	items := e.CustomItems
	if items == nil {
		items = []CustomItem{}
	}
	category := strings.TrimSpace(e.Category)
	if category == "" {
		category = DefaultCategory
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	log := DayLog{
		Date:        date,
		Flags:       e.Flags.Normalize(),
		CustomItems: items,
		Notes:       e.Notes,
		Category:    category,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	}
	if err := log.Validate(); err != nil {
		return DayLog{}, err
	}
	log.TotalCost = CalculateTotalCost(log.Flags, log.CustomItems, prices)
	if log.TotalCost.TooLarge() {
		return DayLog{}, fmt.Errorf("%w: day total", ErrAmountTooLarge)
	}
	return log, nil
}

// NewLeaveLog builds the normalized record for a leave day.
func NewLeaveLog(date Date, category string, now time.Time) DayLog {
	return DayLog{
		Date:        date,
		Flags:       Flags{NoTiffin: true},
		CustomItems: []CustomItem{},
		Notes:       "Leave: " + category,
		Category:    category,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// LeaveRange returns one leave log per calendar day in [start, end].
func LeaveRange(start, end Date, category string, now time.Time) ([]DayLog, error) {
	if err := start.Validate(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	if err := end.Validate(); err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}
	start, end = DateOf(start.Time), DateOf(end.Time)
	if end.Before(start.Time) {
		return nil, fmt.Errorf("%w: %s..%s", ErrInvalidRange, start, end)
	}
	category = strings.TrimSpace(category)
	if category == "" {
		category = DefaultLeaveCategory
	}

	var logs []DayLog
	for d := start; !d.After(end.Time); d = d.AddDays(1) {
		if len(logs) == MaxLeaveDays {
			return nil, fmt.Errorf("%w: more than %d days", ErrRangeTooLong, MaxLeaveDays)
		}
		logs = append(logs, NewLeaveLog(d, category, now))
	}
	return logs, nil
}
