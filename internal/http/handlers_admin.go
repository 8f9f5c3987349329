package http

import (
	"net/http"

	"tiffin/internal/core"
	applog "tiffin/internal/log"
	"tiffin/internal/session"
)

type approvalRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin user"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	users, err := s.accounts.ListUsers(r.Context(), sess)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	if users == nil {
		users = []core.UserProfile{}
	}
	NewJSONResponse().Body(users).Write(w)
}

func (s *Server) handleSetApproval(w http.ResponseWriter, r *http.Request) {
	var req approvalRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	uid := sanitizeInput(r.PathValue("uid"))
	sess, _ := session.FromContext(r.Context())
	if err := s.accounts.SetApproval(r.Context(), sess, uid, *req.Approved); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.forgetSession(uid)
	NoContent().Write(w)
}

func (s *Server) handleSetRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	uid := sanitizeInput(r.PathValue("uid"))
	sess, _ := session.FromContext(r.Context())
	if err := s.accounts.SetRole(r.Context(), sess, uid, core.Role(req.Role)); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	s.forgetSession(uid)
	NoContent().Write(w)
}

func (s *Server) handleAdminResetPricing(w http.ResponseWriter, r *http.Request) {
	uid := sanitizeInput(r.PathValue("uid"))
	sess, _ := session.FromContext(r.Context())
	prices, err := s.pricing.ResetFor(r.Context(), sess, uid)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(prices).Write(w)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	alerts, err := s.accounts.Alerts(r.Context(), sess)
	if err != nil {
		s.writeError(w, r, applog.OpList, err)
		return
	}
	if alerts == nil {
		alerts = []core.Alert{}
	}
	NewJSONResponse().Body(alerts).Write(w)
}

func (s *Server) handleMarkAlertRead(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	if err := s.accounts.MarkAlertRead(r.Context(), sess, r.PathValue("id")); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	NoContent().Write(w)
}
