package http

import (
	"net/http"

	"tiffin/internal/core"
	applog "tiffin/internal/log"
	"tiffin/internal/session"
)

type registerRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	DisplayName string `json:"displayName" validate:"max=100"`
}

type settingsRequest struct {
	UITheme         string `json:"uiTheme" validate:"omitempty,oneof=light dark system"`
	ReminderTime    string `json:"reminderTime" validate:"omitempty,datetime=15:04"`
	DefaultCategory string `json:"defaultCategory" validate:"max=50"`
}

// handleRegister creates a pending account for the caller.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	uid := callerID(r)
	if uid == "" {
		s.writeError(w, r, applog.OpCreate, session.ErrNoSession)
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}

	profile, err := s.accounts.Register(r.Context(), uid, sanitizeInput(req.Email), sanitizeInput(req.DisplayName))
	if err != nil {
		s.writeError(w, r, applog.OpCreate, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(profile).Write(w)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	profile, err := s.accounts.Profile(r.Context(), sess.UserID)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(profile).Write(w)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(w, r, s.validate, &req); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	sess, _ := session.FromContext(r.Context())
	settings, err := s.accounts.UpdateSettings(r.Context(), sess, core.UserSettings{
		UITheme:         req.UITheme,
		ReminderTime:    req.ReminderTime,
		DefaultCategory: sanitizeInput(req.DefaultCategory),
	})
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(settings).Write(w)
}

func (s *Server) handleGetPricing(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	prices, err := s.pricing.Get(r.Context(), sess.UserID)
	if err != nil {
		s.writeError(w, r, applog.OpRead, err)
		return
	}
	NewJSONResponse().Body(prices).Write(w)
}

// handleUpdatePricing merges the submitted prices into the caller's table.
// Omitted items keep their current price.
func (s *Server) handleUpdatePricing(w http.ResponseWriter, r *http.Request) {
	var patch core.PricePatch
	if err := decodeJSON(w, r, s.validate, &patch); err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	sess, _ := session.FromContext(r.Context())
	prices, err := s.pricing.Update(r.Context(), sess, patch)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(prices).Write(w)
}

func (s *Server) handleResetPricing(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	prices, err := s.pricing.Reset(r.Context(), sess)
	if err != nil {
		s.writeError(w, r, applog.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(prices).Write(w)
}
