package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/stellar-oracle/love-oracle/internal/metrics"
	"github.com/stellar-oracle/love-oracle/internal/narrative"
	"github.com/stellar-oracle/love-oracle/internal/session"
)

type sessionView struct {
	State         session.State `json:"state"`
	UserID        string        `json:"user_id,omitempty"`
	Model         string        `json:"model,omitempty"`
	HasCredential bool          `json:"has_credential"`
}

func viewOf(sess *session.Session) sessionView {
	return sessionView{
		State:         sess.State,
		UserID:        sess.UserID,
		Model:         sess.Model,
		HasCredential: sess.APIKey != "",
	}
}

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.currentSession(r)
	if err != nil {
		writeJSON(w, http.StatusOK, sessionView{State: session.StateLogin})
		return
	}
	writeJSON(w, http.StatusOK, viewOf(sess))
}

type loginRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	if existing, err := s.currentSession(r); err == nil && existing.State != session.StateLogin {
		writeError(w, http.StatusConflict, "already logged in")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	if !s.allowList.Contains(userID) {
		metrics.LoginsTotal.WithLabelValues("denied").Inc()
		logrus.WithField("user_id", userID).Info("Login denied")
		writeError(w, http.StatusForbidden, "purchaser ID not recognised")
		return
	}

	sess, err := session.New()
	if err != nil {
		logrus.Errorf("Failed to create session: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	if err := sess.Authenticate(userID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.saveSession(w, sess) {
		return
	}

	metrics.LoginsTotal.WithLabelValues("ok").Inc()
	logrus.WithField("user_id", userID).Info("Login accepted")
	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	view := sessionView{State: session.StateLogin}
	if sess, err := s.currentSession(r); err == nil {
		userID := sess.UserID
		sess.Logout()
		view = viewOf(sess)
		if err := s.sessions.Delete(sess.ID); err != nil {
			logrus.Errorf("Failed to delete session: %v", err)
		}
		logrus.WithField("user_id", userID).Info("Logged out")
	}
	s.cookies.Clear(w)
	writeJSON(w, http.StatusOK, view)
}

type credentialRequest struct {
	APIKey string `json:"api_key"`
	Model  string `json:"model"`
}

func (s *Server) setCredentialHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r, session.StateCredentialSetup, session.StateReady)
	if !ok {
		return
	}

	var req credentialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.APIKey = strings.TrimSpace(req.APIKey)
	if req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	if err := s.validator.ValidateKey(r.Context(), req.APIKey); err != nil {
		if errors.Is(err, narrative.ErrInvalidKey) {
			writeError(w, http.StatusUnprocessableEntity, "API key was rejected by the provider")
			return
		}
		logrus.Errorf("Failed to validate API key for %s: %v", sess.UserID, err)
		writeError(w, http.StatusBadGateway, "could not reach the model provider")
		return
	}

	if err := sess.SetCredential(req.APIKey, strings.TrimSpace(req.Model)); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if !s.saveSession(w, sess) {
		return
	}

	writeJSON(w, http.StatusOK, viewOf(sess))
}

func (s *Server) clearCredentialHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r, session.StateReady)
	if !ok {
		return
	}

	if err := sess.ClearCredential(); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if !s.saveSession(w, sess) {
		return
	}

	writeJSON(w, http.StatusOK, viewOf(sess))
}
