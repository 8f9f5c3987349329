package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date used as the natural key of a day log.
const DateLayout = "2006-01-02"

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

const (
	// DefaultCategory is applied to logs saved without a category.
	DefaultCategory = "mess"
	// DefaultLeaveCategory is applied to leave ranges set without a reason.
	DefaultLeaveCategory = "noTiffin"
)

type (
	Role string

	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	// PriceTable is the per-user unit price of every loggable item.
	PriceTable struct {
		FullTiffin   Money `json:"fullTiffin"`
		HalfTiffin   Money `json:"halfTiffin"`
		ExtraTiffin  Money `json:"extraTiffin"`
		Chapati      Money `json:"chapati"`
		ExtraChapati Money `json:"extraChapati"`
		Rice         Money `json:"rice"`
		Sabzi        Money `json:"sabzi"`
		Curd         Money `json:"curd"`
		Sweet        Money `json:"sweet"`
		Breakfast    Money `json:"breakfast"`
		Dinner       Money `json:"dinner"`
	}

	// PricePatch carries a partial price table update; nil fields keep their value.
	PricePatch struct {
		FullTiffin   *Money `json:"fullTiffin,omitempty"`
		HalfTiffin   *Money `json:"halfTiffin,omitempty"`
		ExtraTiffin  *Money `json:"extraTiffin,omitempty"`
		Chapati      *Money `json:"chapati,omitempty"`
		ExtraChapati *Money `json:"extraChapati,omitempty"`
		Rice         *Money `json:"rice,omitempty"`
		Sabzi        *Money `json:"sabzi,omitempty"`
		Curd         *Money `json:"curd,omitempty"`
		Sweet        *Money `json:"sweet,omitempty"`
		Breakfast    *Money `json:"breakfast,omitempty"`
		Dinner       *Money `json:"dinner,omitempty"`
	}

	// Flags are the consumption choices recorded for one day.
	Flags struct {
		FullTiffin      bool `json:"fullTiffin"`
		HalfTiffin      bool `json:"halfTiffin"`
		ExtraTiffin     bool `json:"extraTiffin"`
		NoTiffin        bool `json:"noTiffin"`
		OnlyChapati     bool `json:"onlyChapati"`
		ExtraChapatiQty int  `json:"extraChapatiQty"`
		OnlyRice        bool `json:"onlyRice"`
		OnlySabzi       bool `json:"onlySabzi"`
		Curd            bool `json:"curd"`
		Sweet           bool `json:"sweet"`
		BreakfastOnly   bool `json:"breakfastOnly"`
		DinnerOnly      bool `json:"dinnerOnly"`
	}

	CustomItem struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Price Money  `json:"price"`
	}

	// DayLog is one user's record for one calendar date. TotalCost is derived
	// from the flags, the custom items and the price table at write time.
	DayLog struct {
		Date Date `json:"date"`
		Flags
		CustomItems []CustomItem `json:"customItems"`
		Notes       string       `json:"notes"`
		Category    string       `json:"category"`
		TotalCost   Money        `json:"totalCost"`
		CreatedAt   time.Time    `json:"createdAt"`
		UpdatedAt   time.Time    `json:"updatedAt"`
	}

	UserSettings struct {
		UITheme         string `json:"uiTheme"`
		ReminderTime    string `json:"reminderTime,omitempty"`
		DefaultCategory string `json:"defaultCategory,omitempty"`
	}

	UserProfile struct {
		UID         string       `json:"uid"`
		Email       string       `json:"email"`
		DisplayName string       `json:"displayName,omitempty"`
		Role        Role         `json:"role"`
		IsApproved  bool         `json:"isApproved"`
		CreatedAt   time.Time    `json:"createdAt"`
		Settings    UserSettings `json:"settings"`
		Pricing     PriceTable   `json:"pricing"`
	}

	// Alert is an admin notification, e.g. a new signup waiting for approval.
	Alert struct {
		ID        string    `json:"id"`
		Type      string    `json:"type"`
		UserID    string    `json:"userId"`
		Email     string    `json:"email"`
		Name      string    `json:"displayName"`
		Read      bool      `json:"read"`
		CreatedAt time.Time `json:"createdAt"`
	}
)

var (
	ErrInvalidDate      = errors.New("invalid date")
	ErrInvalidRange     = errors.New("end date is before start date")
	ErrRangeTooLong     = errors.New("date range too long")
	ErrNegativeAmount   = errors.New("negative amount")
	ErrNegativeQuantity = errors.New("negative quantity")
	ErrAmountTooLarge   = errors.New("amount too large")
	ErrQuantityTooLarge = errors.New("quantity too large")
	ErrEmptyItemName    = errors.New("empty custom item name")
	ErrDuplicateItemID  = errors.New("duplicate custom item id")
	ErrInvalidRole      = errors.New("invalid role")
)

// DefaultPriceTable is assigned at account creation and on reset.
var DefaultPriceTable = PriceTable{
	FullTiffin:   Units(80),
	HalfTiffin:   Units(50),
	ExtraTiffin:  Units(80),
	Chapati:      Units(10),
	ExtraChapati: Units(10),
	Rice:         Units(20),
	Sabzi:        Units(25),
	Curd:         Units(15),
	Sweet:        Units(20),
	Breakfast:    Units(40),
	Dinner:       Units(50),
}

var DefaultSettings = UserSettings{
	UITheme:         "system",
	ReminderTime:    "19:00",
	DefaultCategory: DefaultCategory,
}

// Categories are the suggested spending labels. Logs may carry any string.
var Categories = []string{"mess", "restaurant", "snacks", "groceries", "other"}

// LeaveCategories are the suggested reasons for a leave range.
var LeaveCategories = []string{"noTiffin", "trip", "fast", "vacation", "other"}

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses a YYYY-MM-DD key.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// Key returns the ISO date string used as the storage key.
func (d Date) Key() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) String() string {
	return d.Key()
}

// AddDays returns the date n calendar days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: zero date", ErrInvalidDate)
	}
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Key() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysIn returns the number of days in the given month.
func DaysIn(month time.Month, year int) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthRange returns the first and last date of a month.
func MonthRange(month time.Month, year int) (Date, Date) {
	first := NewDate(year, month, 1)
	return first, NewDate(year, month, DaysIn(month, year))
}

func (r Role) Validate() error {
	switch r {
	case RoleAdmin, RoleUser:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidRole, string(r))
}

func (p PriceTable) Validate() error {
	for name, m := range p.entries() {
		if m.Cents < 0 {
			return fmt.Errorf("%w: price %s", ErrNegativeAmount, name)
		}
		if m.TooLarge() {
			return fmt.Errorf("%w: price %s", ErrAmountTooLarge, name)
		}
	}
	return nil
}

func (p PriceTable) entries() map[string]Money {
	return map[string]Money{
		"fullTiffin":   p.FullTiffin,
		"halfTiffin":   p.HalfTiffin,
		"extraTiffin":  p.ExtraTiffin,
		"chapati":      p.Chapati,
		"extraChapati": p.ExtraChapati,
		"rice":         p.Rice,
		"sabzi":        p.Sabzi,
		"curd":         p.Curd,
		"sweet":        p.Sweet,
		"breakfast":    p.Breakfast,
		"dinner":       p.Dinner,
	}
}

// Apply merges the patch over p and returns the result.
func (pp PricePatch) Apply(p PriceTable) PriceTable {
	set := func(dst *Money, src *Money) {
		if src != nil {
			*dst = *src
		}
	}
	set(&p.FullTiffin, pp.FullTiffin)
	set(&p.HalfTiffin, pp.HalfTiffin)
	set(&p.ExtraTiffin, pp.ExtraTiffin)
	set(&p.Chapati, pp.Chapati)
	set(&p.ExtraChapati, pp.ExtraChapati)
	set(&p.Rice, pp.Rice)
	set(&p.Sabzi, pp.Sabzi)
	set(&p.Curd, pp.Curd)
	set(&p.Sweet, pp.Sweet)
	set(&p.Breakfast, pp.Breakfast)
	set(&p.Dinner, pp.Dinner)
	return p
}

// IsEmpty reports whether the patch changes nothing.
func (pp PricePatch) IsEmpty() bool {
	return pp == PricePatch{}
}

func (pp PricePatch) Validate() error {
	return pp.Apply(PriceTable{}).Validate()
}

func (c CustomItem) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyItemName
	}
	if c.Price.Cents < 0 {
		return fmt.Errorf("%w: custom item %q", ErrNegativeAmount, c.Name)
	}
	if c.Price.TooLarge() {
		return fmt.Errorf("%w: custom item %q", ErrAmountTooLarge, c.Name)
	}
	return nil
}

func (f Flags) Validate() error {
	if f.ExtraChapatiQty < 0 {
		return fmt.Errorf("%w: extra chapati %d", ErrNegativeQuantity, f.ExtraChapatiQty)
	}
	if f.ExtraChapatiQty > MaxQuantity {
		return fmt.Errorf("%w: extra chapati %d", ErrQuantityTooLarge, f.ExtraChapatiQty)
	}
	return nil
}

func (l DayLog) Validate() error {
	if err := l.Date.Validate(); err != nil {
		return err
	}
	if err := l.Flags.Validate(); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(l.CustomItems))
	for _, item := range l.CustomItems {
		if err := item.Validate(); err != nil {
			return err
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateItemID, item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// CategoryOrDefault returns the log's category, falling back to mess.
func (l DayLog) CategoryOrDefault() string {
	if strings.TrimSpace(l.Category) == "" {
		return DefaultCategory
	}
	return l.Category
}
