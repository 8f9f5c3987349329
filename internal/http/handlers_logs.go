package http

import (
	"bytes"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"tiffin/internal/core"
	"tiffin/internal/export"
	applog "tiffin/internal/log"
)

type customItemRequest struct {
	ID    string     `json:"id" validate:"omitempty,max=64"`
	Name  string     `json:"name" validate:"required,max=100"`
	Price core.Money `json:"price"`
}

type saveLogRequest struct {
	core.Flags
	CustomItems []customItemRequest `json:"customItems" validate:"omitempty,max=50,dive"`
	Notes       string              `json:"notes" validate:"max=1000"`
	Category    string              `json:"category" validate:"max=50"`
}

func (req saveLogRequest) entry() core.Entry {
	e := core.Entry{
		Flags:    req.Flags,
		Notes:    sanitizeInput(req.Notes),
		Category: sanitizeInput(req.Category),
	}
	for _, item := range req.CustomItems {
		e.CustomItems = append(e.CustomItems, core.CustomItem{
			ID:    sanitizeInput(item.ID),
			Name:  sanitizeInput(item.Name),
			Price: item.Price,
		})
	}
	return e
}

type leaveRequest struct {
	Start    core.Date `json:"start"`
	End      core.Date `json:"end"`
	Category string    `json:"category" validate:"max=50"`
}

type leaveResponse struct {
	Start    core.Date `json:"start"`
	End      core.Date `json:"end"`
	Days     int       `json:"days"`
	Category string    `json:"category"`
}

// monthlySummaryResponse adds the derived figures the dashboard shows.
type monthlySummaryResponse struct {
	core.MonthlySummary
	AveragePerDay  core.Money            `json:"averagePerDay"`
	EstimatedMonth core.Money            `json:"estimatedMonth"`
	ByCategory     []core.CategoryAmount `json:"byCategory"`
}

// handleListLogs refreshes the caller's logs for the optional [from, to]
// window and returns them by date.
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := parseDateParam(q.Get("from"))
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	to, err := parseDateParam(q.Get("to"))
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from.Time) {
		s.writeError(w, r, applog.OpList, core.ErrInvalidRange)
		return
	}

	svc, err := s.logService(r)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	logs, err := svc.FetchLogs(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	if logs == nil {
		logs = []core.DayLog{}
	}
	NewJSONResponse().Body(logs).Write(w)
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	svc, err := s.logService(r)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	log, err := svc.GetLog(r.Context(), date)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(log).Write(w)
}

// handleSaveLog replaces the day's log with the submitted entry.
func (s *Server) handleSaveLog(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	var req saveLogRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	svc, err := s.logService(r)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	log, err := svc.SaveLog(r.Context(), date, req.entry())
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.logsSaved, 1)
	NewJSONResponse().Body(log).Write(w)
}

func (s *Server) handleSkipDay(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	svc, err := s.logService(r)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	log, err := svc.SkipDay(r.Context(), date)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.logsSaved, 1)
	NewJSONResponse().Body(log).Write(w)
}

// handleDeleteLog removes the day's log. Deleting a day without a log
// succeeds.
func (s *Server) handleDeleteLog(w http.ResponseWriter, r *http.Request) {
	date, err := pathDate(r)
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	svc, err := s.logService(r)
	if err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	if err := svc.DeleteLog(r.Context(), date); err != nil {
		s.writeError(w, r, applog.OpDelete, err)
		return
	}
	NoContent().Write(w)
}

// handleBulkLeave marks every day of [start, end] as leave in one batch.
func (s *Server) handleBulkLeave(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		s.writeError(w, r, applog.OpLeave, err)
		return
	}
	svc, err := s.logService(r)
	if err != nil {
		s.writeError(w, r, applog.OpLeave, err)
		return
	}
	category := sanitizeInput(req.Category)
	if err := svc.SetBulkLeave(r.Context(), req.Start, req.End, category); err != nil {
		s.writeError(w, r, applog.OpLeave, err)
		return
	}
	if category == "" {
		category = core.DefaultLeaveCategory
	}

	days := int(req.End.Sub(req.Start.Time).Hours()/24) + 1
	atomic.AddInt64(&s.appMetrics.leaveDays, int64(days))
	NewJSONResponse().Body(leaveResponse{
		Start:    req.Start,
		End:      req.End,
		Days:     days,
		Category: category,
	}).Write(w)
}

func (s *Server) handleMonthlySummary(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), time.Now())
	if err != nil {
		s.writeError(w, r, applog.OpSummary, err)
		return
	}
	svc, err := s.logService(r)
	if err != nil {
		s.writeError(w, r, applog.OpSummary, err)
		return
	}
	summary, err := svc.MonthlySummary(r.Context(), params.Month, params.Year)
	if err != nil {
		s.writeError(w, r, applog.OpSummary, err)
		return
	}
	NewJSONResponse().Body(monthlySummaryResponse{
		MonthlySummary: summary,
		AveragePerDay:  summary.AveragePerDay(),
		EstimatedMonth: summary.EstimatedMonth(),
		ByCategory:     summary.ByCategory(),
	}).Write(w)
}

// handleWeeklySummary aggregates seven days from ?start=, defaulting to the
// current week's Monday.
func (s *Server) handleWeeklySummary(w http.ResponseWriter, r *http.Request) {
	start, err := parseDateParam(r.URL.Query().Get("start"))
	if err != nil {
		s.writeError(w, r, applog.OpSummary, err)
		return
	}
	if start.IsZero() {
		start = startOfWeek(time.Now())
	}
	svc, err := s.logService(r)
	if err != nil {
		s.writeError(w, r, applog.OpSummary, err)
		return
	}
	summary, err := svc.WeeklySummary(r.Context(), start)
	if err != nil {
		s.writeError(w, r, applog.OpSummary, err)
		return
	}
	NewJSONResponse().Body(summary).Write(w)
}

// handleExport streams the month's logs as CSV.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	params, err := ParseMonthParams(r.URL.Query(), time.Now())
	if err != nil {
		s.writeError(w, r, applog.OpExport, err)
		return
	}
	svc, err := s.logService(r)
	if err != nil {
		s.writeError(w, r, applog.OpExport, err)
		return
	}
	summary, err := svc.MonthlySummary(r.Context(), params.Month, params.Year)
	if err != nil {
		s.writeError(w, r, applog.OpExport, err)
		return
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, summary.Logs); err != nil {
		s.writeError(w, r, applog.OpExport, err)
		return
	}
	atomic.AddInt64(&s.appMetrics.exports, 1)

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="tiffin-%04d-%02d.csv"`, params.Year, int(params.Month)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
