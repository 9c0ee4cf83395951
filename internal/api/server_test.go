package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stellar-oracle/love-oracle/internal/auth"
	"github.com/stellar-oracle/love-oracle/internal/config"
	"github.com/stellar-oracle/love-oracle/internal/models"
	"github.com/stellar-oracle/love-oracle/internal/narrative"
	"github.com/stellar-oracle/love-oracle/internal/oracle"
	"github.com/stellar-oracle/love-oracle/internal/session"
	"github.com/stellar-oracle/love-oracle/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAnalyzer is a mock implementation of Analyzer
type MockAnalyzer struct {
	mock.Mock
}

func (m *MockAnalyzer) RunAnalysis(ctx context.Context, sess *session.Session, req oracle.AnalysisRequest) (*models.Reading, error) {
	args := m.Called(ctx, sess, req)
	if reading, ok := args.Get(0).(*models.Reading); ok {
		return reading, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAnalyzer) LoadReport(userID, readingID string) ([]byte, error) {
	args := m.Called(userID, readingID)
	if data, ok := args.Get(0).([]byte); ok {
		return data, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAnalyzer) ListReports(userID string) ([]string, error) {
	args := m.Called(userID)
	if ids, ok := args.Get(0).([]string); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAnalyzer) DeleteReport(userID, readingID string) error {
	args := m.Called(userID, readingID)
	return args.Error(0)
}

func (m *MockAnalyzer) History(userID string) ([]models.DiagnosisRecord, error) {
	args := m.Called(userID)
	if records, ok := args.Get(0).([]models.DiagnosisRecord); ok {
		return records, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockAnalyzer) GetStatus() oracle.Status {
	return oracle.Status{TotalRuns: 3}
}

// MockValidator is a mock implementation of narrative.KeyValidator
type MockValidator struct {
	mock.Mock
}

func (m *MockValidator) ValidateKey(ctx context.Context, apiKey string) error {
	args := m.Called(ctx, apiKey)
	return args.Error(0)
}

// MockAllowList is a mock implementation of AllowList
type MockAllowList struct {
	mock.Mock
}

func (m *MockAllowList) Contains(id string) bool {
	args := m.Called(id)
	return args.Bool(0)
}

func (m *MockAllowList) Refresh(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockAllowList) Size() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockAllowList) LastRefresh() time.Time {
	args := m.Called()
	return args.Get(0).(time.Time)
}

type harness struct {
	server    *Server
	handler   http.Handler
	sessions  *session.MemoryStore
	analyzer  *MockAnalyzer
	validator *MockValidator
	cookie    *http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := &config.Config{MaxUploadBytes: 1 << 20, AdminToken: "admin-secret"}
	h := &harness{
		sessions:  session.NewMemoryStore(time.Hour),
		analyzer:  new(MockAnalyzer),
		validator: new(MockValidator),
	}
	h.server = NewServer(cfg, config.DefaultCatalog(), h.sessions,
		session.NewCookieCodec("0123456789abcdef-test", time.Hour, false),
		auth.NewAllowList([]string{"buyer_id_123"}, ""), h.validator, h.analyzer)
	h.handler = h.server.Router()
	return h
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return h.send(req)
}

func (h *harness) send(req *http.Request) *httptest.ResponseRecorder {
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			h.cookie = c
			if c.MaxAge < 0 {
				h.cookie = nil
			}
		}
	}
	return rec
}

func (h *harness) login(t *testing.T) {
	t.Helper()
	rec := h.do(t, "POST", "/api/login", loginRequest{UserID: "buyer_id_123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func (h *harness) ready(t *testing.T) {
	t.Helper()
	h.login(t)
	h.validator.On("ValidateKey", mock.Anything, "sk-good").Return(nil)
	rec := h.do(t, "POST", "/api/credential", credentialRequest{APIKey: "sk-good", Model: "gpt-4o"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) sessionView {
	t.Helper()
	var view sessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return view
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	assert.Contains(t, rec.Body.String(), `"total_runs":3`)
	assert.Contains(t, rec.Body.String(), `"allowlist":{"size":1}`)
}

func TestHealth_AllowListStatus(t *testing.T) {
	refreshed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	allowList := new(MockAllowList)
	allowList.On("Size").Return(42)
	allowList.On("LastRefresh").Return(refreshed)

	server := NewServer(&config.Config{}, config.DefaultCatalog(), session.NewMemoryStore(time.Hour),
		session.NewCookieCodec("0123456789abcdef-test", time.Hour, false), allowList, new(MockValidator), new(MockAnalyzer))

	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		AllowList struct {
			Size        int    `json:"size"`
			LastRefresh string `json:"last_refresh"`
		} `json:"allowlist"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 42, body.AllowList.Size)
	assert.Equal(t, "2024-03-01T12:00:00Z", body.AllowList.LastRefresh)
	allowList.AssertExpectations(t)
}

func TestSessionFlow(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/session", nil)
	assert.Equal(t, session.StateLogin, decodeView(t, rec).State)

	h.login(t)
	require.NotNil(t, h.cookie)
	assert.True(t, h.cookie.HttpOnly)

	rec = h.do(t, "GET", "/api/session", nil)
	view := decodeView(t, rec)
	assert.Equal(t, session.StateCredentialSetup, view.State)
	assert.Equal(t, "buyer_id_123", view.UserID)

	rec = h.do(t, "POST", "/api/login", loginRequest{UserID: "buyer_id_123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	h.validator.On("ValidateKey", mock.Anything, "sk-good").Return(nil).Once()
	rec = h.do(t, "POST", "/api/credential", credentialRequest{APIKey: " sk-good ", Model: "gpt-4o"})
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeView(t, rec)
	assert.Equal(t, session.StateReady, view.State)
	assert.True(t, view.HasCredential)
	assert.NotContains(t, rec.Body.String(), "sk-good")

	rec = h.do(t, "DELETE", "/api/credential", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, session.StateCredentialSetup, decodeView(t, rec).State)

	rec = h.do(t, "DELETE", "/api/credential", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	id, err := h.server.cookies.Decode(h.cookie.Value)
	require.NoError(t, err)

	rec = h.do(t, "POST", "/api/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, h.cookie)
	view = decodeView(t, rec)
	assert.Equal(t, session.StateLogin, view.State)
	assert.Empty(t, view.UserID)
	_, err = h.sessions.Load(id)
	assert.ErrorIs(t, err, session.ErrNotFound)

	rec = h.do(t, "GET", "/api/history", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{name: "Allowed", body: loginRequest{UserID: " buyer_id_123 "}, status: http.StatusOK},
		{name: "Unknown purchaser", body: loginRequest{UserID: "stranger"}, status: http.StatusForbidden},
		{name: "Empty", body: loginRequest{}, status: http.StatusBadRequest},
		{name: "Unknown field", body: map[string]string{"uid": "x"}, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(t, "POST", "/api/login", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.status == http.StatusOK, h.cookie != nil)
		})
	}
}

func TestTamperedCookie(t *testing.T) {
	h := newHarness(t)
	h.login(t)
	h.cookie.Value += "x"

	rec := h.do(t, "GET", "/api/history", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSetCredential_Failures(t *testing.T) {
	tests := []struct {
		name    string
		loginFn bool
		err     error
		body    credentialRequest
		status  int
	}{
		{name: "No session", body: credentialRequest{APIKey: "sk"}, status: http.StatusUnauthorized},
		{name: "Empty key", loginFn: true, body: credentialRequest{APIKey: "  "}, status: http.StatusBadRequest},
		{name: "Rejected key", loginFn: true, err: fmt.Errorf("%w: 401", narrative.ErrInvalidKey), body: credentialRequest{APIKey: "sk-bad"}, status: http.StatusUnprocessableEntity},
		{name: "Provider down", loginFn: true, err: errors.New("connection refused"), body: credentialRequest{APIKey: "sk-bad"}, status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.loginFn {
				h.login(t)
			}
			if tt.err != nil {
				h.validator.On("ValidateKey", mock.Anything, tt.body.APIKey).Return(tt.err)
			}

			rec := h.do(t, "POST", "/api/credential", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, errorOf(t, rec))

			if tt.loginFn {
				rec = h.do(t, "GET", "/api/session", nil)
				assert.Equal(t, session.StateCredentialSetup, decodeView(t, rec).State)
			}
		})
	}
}

func TestCatalog(t *testing.T) {
	h := newHarness(t)

	rec := h.do(t, "GET", "/api/catalog", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var view catalogView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Len(t, view.Personas, 3)
	assert.Len(t, view.Tones, 3)
	assert.NotContains(t, rec.Body.String(), "instruction")
}

func multipartRequest(t *testing.T, fields map[string]string, transcript string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	if transcript != "" {
		part, err := writer.CreateFormFile("transcript", "talk.txt")
		require.NoError(t, err)
		_, err = part.Write([]byte(transcript))
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/api/analyze", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestAnalyze(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	h.analyzer.On("RunAnalysis", mock.Anything, mock.MatchedBy(func(sess *session.Session) bool {
		return sess.UserID == "buyer_id_123" && sess.APIKey == "sk-good" && sess.Ready()
	}), oracle.AnalysisRequest{
		Transcript:   []byte("09:00\tA\thi"),
		Counterpart:  "アリス",
		PersonaID:    "nana",
		ToneID:       "strict",
		Consultation: "脈ありですか？",
	}).Return(&models.Reading{ID: "r-1", MatchRate: 64}, nil).Once()

	rec := h.send(multipartRequest(t, map[string]string{
		"partner":      "アリス",
		"persona":      "nana",
		"tone":         "strict",
		"consultation": "脈ありですか？",
	}, "09:00\tA\thi"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var reading models.Reading
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reading))
	assert.Equal(t, 64, reading.MatchRate)
	h.analyzer.AssertExpectations(t)
}

func TestAnalyze_StateGates(t *testing.T) {
	h := newHarness(t)

	rec := h.send(multipartRequest(t, map[string]string{"partner": "A"}, "x"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	h.login(t)
	rec = h.send(multipartRequest(t, map[string]string{"partner": "A"}, "x"))
	assert.Equal(t, http.StatusConflict, rec.Code)

	h.analyzer.AssertNotCalled(t, "RunAnalysis", mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyze_MissingFile(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	rec := h.send(multipartRequest(t, map[string]string{"partner": "A"}, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyze_TooLarge(t *testing.T) {
	h := newHarness(t)
	h.ready(t)

	rec := h.send(multipartRequest(t, map[string]string{"partner": "A"}, strings.Repeat("x", 2<<20)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAnalyze_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "No messages", err: oracle.ErrNoMessages, status: http.StatusUnprocessableEntity},
		{name: "Busy", err: oracle.ErrBusy, status: http.StatusTooManyRequests},
		{name: "Invalid request", err: fmt.Errorf("%w: counterpart name is required", oracle.ErrInvalidRequest), status: http.StatusBadRequest},
		{name: "Generation", err: fmt.Errorf("%w: %w", oracle.ErrGeneration, narrative.ErrAllModelsFailed), status: http.StatusBadGateway},
		{name: "Unexpected", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.ready(t)
			h.analyzer.On("RunAnalysis", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

			rec := h.send(multipartRequest(t, map[string]string{"partner": "A"}, "x"))
			assert.Equal(t, tt.status, rec.Code)
			assert.NotEmpty(t, errorOf(t, rec))
		})
	}
}

func TestAnalyze_RejectedKeyResetsCredential(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	h.analyzer.On("RunAnalysis", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("%w: %w", oracle.ErrGeneration, narrative.ErrInvalidKey))

	rec := h.send(multipartRequest(t, map[string]string{"partner": "A"}, "x"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = h.do(t, "GET", "/api/session", nil)
	view := decodeView(t, rec)
	assert.Equal(t, session.StateCredentialSetup, view.State)
	assert.False(t, view.HasCredential)
}

func TestAnalyze_RejectedKeyKeepsReplacedCredential(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	id, err := h.server.cookies.Decode(h.cookie.Value)
	require.NoError(t, err)

	h.analyzer.On("RunAnalysis", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			// the purchaser enters a new key while the old one is being rejected
			current, err := h.sessions.Load(id)
			require.NoError(t, err)
			require.NoError(t, current.SetCredential("sk-new", ""))
			require.NoError(t, h.sessions.Save(current))
		}).
		Return(nil, fmt.Errorf("%w: %w", oracle.ErrGeneration, narrative.ErrInvalidKey))

	rec := h.send(multipartRequest(t, map[string]string{"partner": "A"}, "x"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	current, err := h.sessions.Load(id)
	require.NoError(t, err)
	assert.Equal(t, session.StateReady, current.State)
	assert.Equal(t, "sk-new", current.APIKey)
}

func TestSessionRenewal(t *testing.T) {
	h := newHarness(t)
	h.ready(t)
	id, err := h.server.cookies.Decode(h.cookie.Value)
	require.NoError(t, err)

	stored, err := h.sessions.Load(id)
	require.NoError(t, err)
	stored.UpdatedAt = time.Now().Add(-30 * time.Minute)
	require.NoError(t, h.sessions.Save(stored))

	h.analyzer.On("RunAnalysis", mock.Anything, mock.Anything, mock.Anything).
		Return(&models.Reading{ID: "r-1"}, nil).Once()

	req := multipartRequest(t, map[string]string{"partner": "A"}, "x")
	req.AddCookie(h.cookie)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var renewed *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			renewed = c
		}
	}
	require.NotNil(t, renewed)
	assert.Equal(t, 3600, renewed.MaxAge)
	renewedID, err := h.server.cookies.Decode(renewed.Value)
	require.NoError(t, err)
	assert.Equal(t, id, renewedID)

	stored, err = h.sessions.Load(id)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), stored.UpdatedAt, time.Minute)
	assert.Equal(t, session.StateReady, stored.State)
}

func TestHistory(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	h.analyzer.On("History", "buyer_id_123").Return(nil, nil).Once()
	rec := h.do(t, "GET", "/api/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"records":[]}`, rec.Body.String())

	h.analyzer.On("History", "buyer_id_123").Return([]models.DiagnosisRecord{{Counterpart: "アリス", MatchRate: 70}}, nil).Once()
	rec = h.do(t, "GET", "/api/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"match_rate":70`)
}

func TestReport(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	found := "0b5c2d8e-7f0a-4a57-9d3c-0c1f5f3e9a11"
	missing := "5f0e8a9c-2b1d-4c3e-8f7a-6d5c4b3a2918"
	h.analyzer.On("LoadReport", "buyer_id_123", found).Return([]byte("<html>ok</html>"), nil)
	h.analyzer.On("LoadReport", "buyer_id_123", missing).Return(nil, storage.ErrNotFound)

	rec := h.do(t, "GET", "/api/reports/"+found, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "<html>ok</html>", rec.Body.String())

	rec = h.do(t, "GET", "/api/reports/"+missing, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, "GET", "/api/reports/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListAndDeleteReports(t *testing.T) {
	h := newHarness(t)
	h.login(t)

	id := "0b5c2d8e-7f0a-4a57-9d3c-0c1f5f3e9a11"
	h.analyzer.On("ListReports", "buyer_id_123").Return([]string{id}, nil).Once()
	h.analyzer.On("DeleteReport", "buyer_id_123", id).Return(nil).Once()

	rec := h.do(t, "GET", "/api/reports", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"reports":["`+id+`"]}`, rec.Body.String())

	rec = h.do(t, "DELETE", "/api/reports/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, "DELETE", "/api/reports/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	h.analyzer.AssertExpectations(t)
}

func TestRefreshAllowList(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest("POST", "/api/admin/allowlist/refresh", nil)
	rec := h.send(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest("POST", "/api/admin/allowlist/refresh", nil)
	req.Header.Set("Authorization", "Bearer admin-secret")
	rec = h.send(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"size":1}`, rec.Body.String())
}
