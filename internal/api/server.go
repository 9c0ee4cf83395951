package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/stellar-oracle/love-oracle/internal/config"
	"github.com/stellar-oracle/love-oracle/internal/models"
	"github.com/stellar-oracle/love-oracle/internal/narrative"
	"github.com/stellar-oracle/love-oracle/internal/oracle"
	"github.com/stellar-oracle/love-oracle/internal/session"
)

// Analyzer runs and serves readings
type Analyzer interface {
	RunAnalysis(ctx context.Context, sess *session.Session, req oracle.AnalysisRequest) (*models.Reading, error)
	LoadReport(userID, readingID string) ([]byte, error)
	ListReports(userID string) ([]string, error)
	DeleteReport(userID, readingID string) error
	History(userID string) ([]models.DiagnosisRecord, error)
	GetStatus() oracle.Status
}

// AllowList answers purchaser lookups
type AllowList interface {
	Contains(id string) bool
	Refresh(ctx context.Context) error
	Size() int
	LastRefresh() time.Time
}

// Server holds the HTTP handlers and their dependencies
type Server struct {
	config    *config.Config
	catalog   *config.Catalog
	sessions  session.Store
	cookies   *session.CookieCodec
	allowList AllowList
	validator narrative.KeyValidator
	analyzer  Analyzer
}

// NewServer creates the HTTP surface
func NewServer(cfg *config.Config, catalog *config.Catalog, sessions session.Store, cookies *session.CookieCodec,
	allowList AllowList, validator narrative.KeyValidator, analyzer Analyzer) *Server {
	return &Server{
		config:    cfg,
		catalog:   catalog,
		sessions:  sessions,
		cookies:   cookies,
		allowList: allowList,
		validator: validator,
		analyzer:  analyzer,
	}
}

// Router wires every route
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	// Health check endpoint
	router.HandleFunc("/health", s.healthCheckHandler).Methods("GET")

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session", s.sessionHandler).Methods("GET")
	api.HandleFunc("/login", s.loginHandler).Methods("POST")
	api.HandleFunc("/logout", s.logoutHandler).Methods("POST")
	api.HandleFunc("/credential", s.setCredentialHandler).Methods("POST")
	api.HandleFunc("/credential", s.clearCredentialHandler).Methods("DELETE")
	api.HandleFunc("/catalog", s.catalogHandler).Methods("GET")
	api.HandleFunc("/analyze", s.analyzeHandler).Methods("POST")
	api.HandleFunc("/history", s.historyHandler).Methods("GET")
	api.HandleFunc("/reports", s.listReportsHandler).Methods("GET")
	api.HandleFunc("/reports/{id}", s.reportHandler).Methods("GET")
	api.HandleFunc("/reports/{id}", s.deleteReportHandler).Methods("DELETE")
	api.HandleFunc("/admin/allowlist/refresh", s.refreshAllowListHandler).Methods("POST")

	return router
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	allowList := map[string]interface{}{"size": s.allowList.Size()}
	if last := s.allowList.LastRefresh(); !last.IsZero() {
		allowList["last_refresh"] = last.Format(time.RFC3339)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"analysis":  s.analyzer.GetStatus(),
		"allowlist": allowList,
	})
}

// currentSession loads the session named by the request cookie
func (s *Server) currentSession(r *http.Request) (*session.Session, error) {
	id, err := s.cookies.Read(r)
	if err != nil {
		return nil, session.ErrNotFound
	}
	return s.sessions.Load(id)
}

// requireSession writes 401 when there is no session and 409 when the
// session is not in one of the allowed states
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request, allowed ...session.State) (*session.Session, bool) {
	sess, err := s.currentSession(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "login required")
		return nil, false
	}
	if !slices.Contains(allowed, sess.State) {
		writeError(w, http.StatusConflict, "not available in session state "+string(sess.State))
		return nil, false
	}
	return sess, true
}

// saveSession stores the session and re-issues its cookie so both expire
// from the same last activity
func (s *Server) saveSession(w http.ResponseWriter, sess *session.Session) bool {
	if err := s.sessions.Save(sess); err != nil {
		logrus.Errorf("Failed to save session: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save session")
		return false
	}
	if err := s.cookies.Write(w, sess.ID); err != nil {
		logrus.Errorf("Failed to write session cookie: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to save session")
		return false
	}
	return true
}

// renewSession marks activity on the stored session without touching its state
func (s *Server) renewSession(w http.ResponseWriter, id string) {
	current, err := s.sessions.Load(id)
	if err != nil {
		return
	}
	current.Touch()
	if err := s.sessions.Save(current); err != nil {
		logrus.Errorf("Failed to save session: %v", err)
		return
	}
	if err := s.cookies.Write(w, id); err != nil {
		logrus.Errorf("Failed to write session cookie: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("invalid JSON body")
	}
	return nil
}
