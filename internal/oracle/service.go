package oracle

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stellar-oracle/love-oracle/internal/chatlog"
	"github.com/stellar-oracle/love-oracle/internal/config"
	"github.com/stellar-oracle/love-oracle/internal/engagement"
	"github.com/stellar-oracle/love-oracle/internal/extract"
	"github.com/stellar-oracle/love-oracle/internal/history"
	"github.com/stellar-oracle/love-oracle/internal/ingest"
	"github.com/stellar-oracle/love-oracle/internal/metrics"
	"github.com/stellar-oracle/love-oracle/internal/models"
	"github.com/stellar-oracle/love-oracle/internal/narrative"
	"github.com/stellar-oracle/love-oracle/internal/notifications"
	"github.com/stellar-oracle/love-oracle/internal/prompt"
	"github.com/stellar-oracle/love-oracle/internal/report"
	"github.com/stellar-oracle/love-oracle/internal/session"
	"github.com/stellar-oracle/love-oracle/internal/storage"
)

var (
	// ErrNoMessages is returned when the transcript yields no messages
	ErrNoMessages = errors.New("no messages found in transcript")
	// ErrBusy is returned when the session already has an analysis running
	ErrBusy = errors.New("an analysis is already running for this session")
	// ErrGeneration wraps narrative generator failures
	ErrGeneration = errors.New("narrative generation failed")
	// ErrNotReady is returned when the session has no credential yet
	ErrNotReady = errors.New("session is not ready for analysis")
	// ErrInvalidRequest is returned for missing request fields
	ErrInvalidRequest = errors.New("invalid analysis request")
)

// Generator produces narrative text from prompts
type Generator interface {
	Generate(ctx context.Context, req narrative.Request) (*narrative.Response, error)
}

// AnalysisRequest is one uploaded transcript plus the user's choices
type AnalysisRequest struct {
	Transcript   []byte
	Counterpart  string
	PersonaID    string
	ToneID       string
	Consultation string
}

// Status holds run counters
type Status struct {
	TotalRuns        int            `json:"total_runs"`
	FailedRuns       int            `json:"failed_runs"`
	ExtractionMisses int            `json:"extraction_misses"`
	LastRun          time.Time      `json:"last_run"`
	LastRunDuration  string         `json:"last_run_duration"`
	ModelUsage       map[string]int `json:"model_usage"`
	Running          int            `json:"running"`
}

// Service runs the analysis pipeline for ready sessions
type Service struct {
	config              *config.Config
	catalog             *config.Catalog
	storage             storage.StorageInterface
	history             history.Store
	generator           Generator
	extractor           *extract.Extractor
	builder             *prompt.Builder
	notificationService notifications.NotificationInterface
	status              *Status
	running             map[string]struct{}
	mu                  sync.RWMutex
	now                 func() time.Time
}

// NewService creates a new analysis service. notificationService may be nil.
func NewService(cfg *config.Config, catalog *config.Catalog, store storage.StorageInterface, hist history.Store,
	generator Generator, extractor *extract.Extractor, notificationService notifications.NotificationInterface) *Service {
	return &Service{
		config:              cfg,
		catalog:             catalog,
		storage:             store,
		history:             hist,
		generator:           generator,
		extractor:           extractor,
		builder:             prompt.NewBuilder(),
		notificationService: notificationService,
		status:              &Status{ModelUsage: make(map[string]int)},
		running:             make(map[string]struct{}),
		now:                 time.Now,
	}
}

func reportPrefix(userID string) string {
	return "reports/" + url.PathEscape(userID) + "/"
}

// ReportKey is where a reading's HTML report is stored
func ReportKey(userID, readingID string) string {
	return reportPrefix(userID) + readingID + ".html"
}

// RunAnalysis performs the full pipeline. Only generator failures fail the
// run; every other problem is logged and surfaced as a warning.
func (s *Service) RunAnalysis(ctx context.Context, sess *session.Session, req AnalysisRequest) (*models.Reading, error) {
	if sess == nil || !sess.Ready() {
		return nil, ErrNotReady
	}
	req.Counterpart = strings.TrimSpace(req.Counterpart)
	if req.Counterpart == "" {
		return nil, fmt.Errorf("%w: counterpart name is required", ErrInvalidRequest)
	}

	if !s.acquire(sess.ID) {
		return nil, ErrBusy
	}
	defer s.release(sess.ID)

	start := s.now()
	reading, err := s.run(ctx, sess, req)
	elapsed := s.now().Sub(start)

	s.recordRun(reading, elapsed, err)
	metrics.AnalysisDurationSeconds.Observe(elapsed.Seconds())
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues(resultLabel(err)).Inc()
		return nil, err
	}
	metrics.AnalysesTotal.WithLabelValues("ok").Inc()

	logrus.WithFields(logrus.Fields{
		"user_id":    sess.UserID,
		"reading_id": reading.ID,
		"model":      reading.Model,
		"match_rate": reading.MatchRate,
	}).Infof("Analysis completed in %v", elapsed)

	return reading, nil
}

func (s *Service) run(ctx context.Context, sess *session.Session, req AnalysisRequest) (*models.Reading, error) {
	text, encoding, err := ingest.Decode(req.Transcript, s.config.TranscriptEncodings)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	logrus.WithField("user_id", sess.UserID).Debugf("Transcript decoded as %s", encoding)

	parsed := chatlog.Parse(text)
	metrics.MessagesParsed.Observe(float64(len(parsed.Messages)))
	if len(parsed.Messages) == 0 {
		return nil, ErrNoMessages
	}

	scored := engagement.Analyze(parsed.Messages)

	reading := &models.Reading{
		ID:          uuid.New().String(),
		UserID:      sess.UserID,
		Counterpart: req.Counterpart,
		Trend:       scored.Trend,
		Series:      scored.Series,
		Messages:    len(parsed.Messages),
		GeneratedAt: s.now(),
	}

	previous, err := s.history.Latest(sess.UserID, req.Counterpart)
	switch {
	case err == nil:
		reading.Previous = previous
	case errors.Is(err, history.ErrNoRecord):
	default:
		logrus.Errorf("Failed to read history for %s: %v", sess.UserID, err)
		reading.Warnings = append(reading.Warnings, "前回の鑑定履歴を読み込めませんでした。")
	}

	persona := s.catalog.Persona(req.PersonaID)
	tone := s.catalog.Tone(req.ToneID)
	reading.Persona = persona.Name
	reading.Tone = tone.Name

	system, user := s.builder.Build(prompt.Input{
		Persona:      persona,
		Tone:         tone,
		Counterpart:  req.Counterpart,
		Consultation: req.Consultation,
		Trend:        scored.Trend,
		Series:       scored.Series,
		Messages:     parsed.Messages,
		WordCounts:   chatlog.WordFrequency(parsed.FullText),
		SenderCounts: chatlog.SenderCounts(parsed.Messages),
		Previous:     reading.Previous,
	})

	genCtx, cancel := context.WithTimeout(ctx, s.config.GenerationTimeout)
	defer cancel()

	resp, err := s.generator.Generate(genCtx, narrative.Request{
		APIKey: sess.APIKey,
		Models: narrative.Candidates(sess.Model, s.modelCandidates()),
		System: system,
		User:   user,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	reading.Narrative = resp.Text
	reading.Model = resp.Model

	extracted := s.extractor.Extract(resp.Text)
	reading.MatchRate = extracted.Percent
	if extracted.Warning != "" {
		metrics.ExtractionMissesTotal.Inc()
		reading.Warnings = append(reading.Warnings, extracted.Warning)
	}

	record := models.DiagnosisRecord{
		CreatedAt:   reading.GeneratedAt,
		Counterpart: req.Counterpart,
		MatchRate:   reading.MatchRate,
		Summary:     extract.Summary(resp.Text),
	}
	if err := s.history.Append(sess.UserID, record); err != nil {
		logrus.Errorf("Failed to append history for %s: %v", sess.UserID, err)
		reading.Warnings = append(reading.Warnings, "今回の鑑定結果を履歴に保存できませんでした。")
	}

	html, err := report.RenderHTML(reading)
	if err != nil {
		logrus.Errorf("Failed to render report %s: %v", reading.ID, err)
	} else if err := s.storage.Store(ReportKey(sess.UserID, reading.ID), html); err != nil {
		logrus.Errorf("Failed to store report %s: %v", reading.ID, err)
	} else {
		reading.ReportID = reading.ID
	}

	if s.notificationService != nil {
		if err := s.notificationService.SendReading(reading, html); err != nil {
			logrus.Errorf("Failed to send notifications for %s: %v", reading.ID, err)
		}
	}

	return reading, nil
}

func (s *Service) modelCandidates() []string {
	if len(s.catalog.Models) > 0 {
		return s.catalog.Models
	}
	return s.config.ModelCandidates
}

// LoadReport returns a stored report owned by userID
func (s *Service) LoadReport(userID, readingID string) ([]byte, error) {
	return s.storage.Retrieve(ReportKey(userID, readingID))
}

// ListReports returns the IDs of the user's stored reports
func (s *Service) ListReports(userID string) ([]string, error) {
	prefix := reportPrefix(userID)
	names, err := s.storage.List(prefix)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(names))
	for _, name := range names {
		if id, ok := strings.CutSuffix(strings.TrimPrefix(name, prefix), ".html"); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// DeleteReport removes a stored report owned by userID
func (s *Service) DeleteReport(userID, readingID string) error {
	return s.storage.Delete(ReportKey(userID, readingID))
}

// History lists the user's past readings
func (s *Service) History(userID string) ([]models.DiagnosisRecord, error) {
	return s.history.List(userID)
}

func (s *Service) acquire(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.running[sessionID]; ok {
		return false
	}
	s.running[sessionID] = struct{}{}
	return true
}

func (s *Service) release(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, sessionID)
}

func (s *Service) recordRun(reading *models.Reading, duration time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.TotalRuns++
	s.status.LastRun = s.now()
	s.status.LastRunDuration = duration.String()

	if err != nil {
		s.status.FailedRuns++
		return
	}
	s.status.ModelUsage[reading.Model]++
	if slices.Contains(reading.Warnings, extract.MissingWarning) {
		s.status.ExtractionMisses++
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrNoMessages):
		return "no_messages"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, narrative.ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrGeneration):
		return "generation_failed"
	}
	return "error"
}

// GetStatus returns a copy of the run counters
func (s *Service) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := *s.status
	out.ModelUsage = make(map[string]int, len(s.status.ModelUsage))
	for k, v := range s.status.ModelUsage {
		out.ModelUsage[k] = v
	}
	out.Running = len(s.running)
	return out
}
