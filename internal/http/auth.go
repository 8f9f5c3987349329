package http

import (
	"errors"
	"net/http"
	"strings"

	applog "tiffin/internal/log"
	"tiffin/internal/repository"
	"tiffin/internal/services"
	"tiffin/internal/session"
)

// UserHeader carries the caller's uid, set by the authenticating proxy in
// front of the API.
const UserHeader = "X-User-ID"

func callerID(r *http.Request) string {
	return sanitizeInput(r.Header.Get(UserHeader))
}

// withSession resolves the caller's profile into a session. Unknown or
// missing callers get 401.
func (s *Server) withSession(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := callerID(r)
		if uid == "" {
			s.writeError(w, r, applog.OpRead, session.ErrNoSession)
			return
		}
		sess, err := s.accounts.Session(r.Context(), uid)
		if errors.Is(err, repository.ErrNotFound) {
			s.writeError(w, r, applog.OpRead, session.ErrNoSession)
			return
		}
		if err != nil {
			s.writeError(w, r, applog.OpRead, err)
			return
		}

		ctx := session.WithSession(r.Context(), sess)
		ctx = applog.WithContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, uid))
		next(w, r.WithContext(ctx))
	})
}

func (s *Server) approved(next http.HandlerFunc) http.Handler {
	return s.withSession(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := session.FromContext(r.Context())
		if err := sess.RequireApproved(); err != nil {
			s.writeError(w, r, applog.OpRead, err)
			return
		}
		next(w, r)
	})
}

func (s *Server) admin(next http.HandlerFunc) http.Handler {
	return s.withSession(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := session.FromContext(r.Context())
		if err := sess.RequireAdmin(); err != nil {
			s.writeError(w, r, applog.OpRead, err)
			return
		}
		next(w, r)
	})
}

// logService returns the caller's cached log service, opening one on first
// use.
func (s *Server) logService(r *http.Request) (*services.LogService, error) {
	sess, ok := session.FromContext(r.Context())
	if !ok {
		return nil, session.ErrNoSession
	}
	if svc, ok := s.sessions.Get(sess.UserID); ok {
		s.countSession(true)
		return svc, nil
	}
	s.countSession(false)

	svc, err := services.NewLogService(sess, s.deps.Store, s.pricing, s.deps.Events)
	if err != nil {
		return nil, err
	}
	s.sessions.Set(sess.UserID, svc)
	return svc, nil
}

// forgetSession drops uid's cached log service so the next request picks up
// a changed role or approval.
func (s *Server) forgetSession(uid string) {
	s.sessions.Delete(strings.TrimSpace(uid))
}
