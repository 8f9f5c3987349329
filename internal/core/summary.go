package core

import (
	"sort"
	"time"
)

// MonthlySummary aggregates the logs of one calendar month.
type MonthlySummary struct {
	Year              int              `json:"year"`
	Month             time.Month       `json:"month"`
	TotalCost         Money            `json:"totalCost"`
	DaysLogged        int              `json:"daysLogged"`
	CategoryBreakdown map[string]Money `json:"categoryBreakdown"`
	Logs              []DayLog         `json:"logs"`
}

// WeeklySummary aggregates the logs of a 7-day window.
type WeeklySummary struct {
	Start      Date     `json:"start"`
	End        Date     `json:"end"`
	TotalCost  Money    `json:"totalCost"`
	DaysLogged int      `json:"daysLogged"`
	Logs       []DayLog `json:"logs"`
}

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
}

// MonthlySummaryFor filters logs to the month of their own date and sums
// them. Logs without a date are ignored. Leave days count as logged.
func MonthlySummaryFor(logs []DayLog, month time.Month, year int) MonthlySummary {
	s := MonthlySummary{
		Year:              year,
		Month:             month,
		CategoryBreakdown: make(map[string]Money),
		Logs:              []DayLog{},
	}
	for _, l := range logs {
		if l.Date.IsZero() || l.Date.Month() != month || l.Date.Year() != year {
			continue
		}
		s.TotalCost = s.TotalCost.Add(l.TotalCost)
		s.DaysLogged++
		cat := l.CategoryOrDefault()
		s.CategoryBreakdown[cat] = s.CategoryBreakdown[cat].Add(l.TotalCost)
		s.Logs = append(s.Logs, l)
	}
	SortByDate(s.Logs)
	return s
}

// WeeklySummaryFor covers [startOfWeek, startOfWeek+6 days].
func WeeklySummaryFor(logs []DayLog, startOfWeek Date) WeeklySummary {
	start := DateOf(startOfWeek.Time)
	end := start.AddDays(6)
	s := WeeklySummary{Start: start, End: end, Logs: []DayLog{}}
	for _, l := range logs {
		if l.Date.IsZero() || l.Date.Before(start.Time) || l.Date.After(end.Time) {
			continue
		}
		s.TotalCost = s.TotalCost.Add(l.TotalCost)
		s.DaysLogged++
		s.Logs = append(s.Logs, l)
	}
	SortByDate(s.Logs)
	return s
}

// AveragePerDay is the mean cost of the logged days, zero when none.
func (s MonthlySummary) AveragePerDay() Money {
	if s.DaysLogged == 0 {
		return Money{}
	}
	return Money{Cents: s.TotalCost.Cents / int64(s.DaysLogged)}
}

// EstimatedMonth projects the average over every day of the month.
func (s MonthlySummary) EstimatedMonth() Money {
	if s.DaysLogged == 0 {
		return Money{}
	}
	days := int64(DaysIn(s.Month, s.Year))
	return Money{Cents: s.TotalCost.Cents * days / int64(s.DaysLogged)}
}

// ByCategory returns the breakdown sorted by descending amount, then name.
func (s MonthlySummary) ByCategory() []CategoryAmount {
	out := make([]CategoryAmount, 0, len(s.CategoryBreakdown))
	for name, amount := range s.CategoryBreakdown {
		out = append(out, CategoryAmount{Name: name, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Amount.Cents != out[j].Amount.Cents {
			return out[i].Amount.Cents > out[j].Amount.Cents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// SortByDate orders logs by ascending date in place.
func SortByDate(logs []DayLog) {
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Date.Before(logs[j].Date.Time)
	})
}
