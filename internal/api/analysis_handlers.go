package api

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/stellar-oracle/love-oracle/internal/config"
	"github.com/stellar-oracle/love-oracle/internal/metrics"
	"github.com/stellar-oracle/love-oracle/internal/models"
	"github.com/stellar-oracle/love-oracle/internal/narrative"
	"github.com/stellar-oracle/love-oracle/internal/oracle"
	"github.com/stellar-oracle/love-oracle/internal/session"
	"github.com/stellar-oracle/love-oracle/internal/storage"
)

type catalogView struct {
	Personas []config.Persona `json:"personas"`
	Tones    []config.Tone    `json:"tones"`
}

func (s *Server) catalogHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, catalogView{Personas: s.catalog.Personas, Tones: s.catalog.Tones})
}

func (s *Server) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r, session.StateReady)
	if !ok {
		return
	}

	if r.ContentLength > s.config.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "transcript is too large")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "transcript is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form")
		return
	}

	file, _, err := r.FormFile("transcript")
	if err != nil {
		writeError(w, http.StatusBadRequest, "transcript file is required")
		return
	}
	defer file.Close()

	transcript, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read transcript")
		return
	}

	reading, err := s.analyzer.RunAnalysis(r.Context(), sess, oracle.AnalysisRequest{
		Transcript:   transcript,
		Counterpart:  r.FormValue("partner"),
		PersonaID:    r.FormValue("persona"),
		ToneID:       r.FormValue("tone"),
		Consultation: r.FormValue("consultation"),
	})
	if err != nil {
		s.writeAnalysisError(w, sess, err)
		return
	}

	s.renewSession(w, sess.ID)
	writeJSON(w, http.StatusOK, reading)
}

func (s *Server) writeAnalysisError(w http.ResponseWriter, sess *session.Session, err error) {
	switch {
	case errors.Is(err, oracle.ErrNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, oracle.ErrBusy):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, oracle.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, oracle.ErrNoMessages):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, narrative.ErrInvalidKey):
		// back to credential setup, unless the key was replaced while the run was in flight
		if current, loadErr := s.sessions.Load(sess.ID); loadErr == nil && current.APIKey == sess.APIKey {
			if clearErr := current.ClearCredential(); clearErr == nil {
				if saveErr := s.sessions.Save(current); saveErr != nil {
					logrus.Errorf("Failed to save session: %v", saveErr)
				}
			}
		}
		writeError(w, http.StatusUnprocessableEntity, "API key was rejected by the provider")
	case errors.Is(err, oracle.ErrGeneration):
		writeError(w, http.StatusBadGateway, "the reading could not be generated, please try again later")
	default:
		logrus.Errorf("Analysis failed for %s: %v", sess.UserID, err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
	}
}

type historyView struct {
	Records []models.DiagnosisRecord `json:"records"`
}

func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r, session.StateCredentialSetup, session.StateReady)
	if !ok {
		return
	}

	records, err := s.analyzer.History(sess.UserID)
	if err != nil {
		logrus.Errorf("Failed to list history for %s: %v", sess.UserID, err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	if records == nil {
		records = []models.DiagnosisRecord{}
	}

	writeJSON(w, http.StatusOK, historyView{Records: records})
}

func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r, session.StateCredentialSetup, session.StateReady)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	html, err := s.analyzer.LoadReport(sess.UserID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		logrus.Errorf("Failed to load report %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to load report")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(html)
}

func (s *Server) listReportsHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r, session.StateCredentialSetup, session.StateReady)
	if !ok {
		return
	}

	ids, err := s.analyzer.ListReports(sess.UserID)
	if err != nil {
		logrus.Errorf("Failed to list reports for %s: %v", sess.UserID, err)
		writeError(w, http.StatusInternalServerError, "failed to list reports")
		return
	}
	if ids == nil {
		ids = []string{}
	}

	writeJSON(w, http.StatusOK, map[string][]string{"reports": ids})
}

func (s *Server) deleteReportHandler(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.requireSession(w, r, session.StateCredentialSetup, session.StateReady)
	if !ok {
		return
	}

	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		writeError(w, http.StatusNotFound, "report not found")
		return
	}

	if err := s.analyzer.DeleteReport(sess.UserID, id); err != nil {
		logrus.Errorf("Failed to delete report %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete report")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) refreshAllowListHandler(w http.ResponseWriter, r *http.Request) {
	if s.config.AdminToken == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.config.AdminToken)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid admin token")
		return
	}

	if err := s.allowList.Refresh(r.Context()); err != nil {
		logrus.Errorf("Manual allow-list refresh failed: %v", err)
		writeError(w, http.StatusBadGateway, "allow-list refresh failed")
		return
	}

	size := s.allowList.Size()
	metrics.AllowListSize.Set(float64(size))
	writeJSON(w, http.StatusOK, map[string]int{"size": size})
}
