package httputil

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type complaintRequest struct {
	Name     string  `validate:"required"`
	Phone    string  `validate:"required,numeric"`
	Latitude float64 `validate:"latitude"`
}

func TestValidationError(t *testing.T) {
	err := Validator.Struct(&complaintRequest{Phone: "98x", Latitude: 120})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	ValidationError(discard, rec, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["ok"])
	msg := body["error"].(string)
	assert.Contains(t, msg, "name is required")
	assert.Contains(t, msg, "phone must be a valid numeric")
	assert.Contains(t, msg, "latitude must be a valid latitude")
}

func TestRouterRecoversPanics(t *testing.T) {
	r := NewRouter(discard, 0)
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	r.Get("/healthz", HealthHandler(discard))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"Internal Server Error"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusTooManyRequests, "slow down")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"ok":false,"error":"slow down"}`, rec.Body.String())
}

func TestFail(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(discard, rec, "file is required", nil, http.StatusBadRequest)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"file is required"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	Fail(discard, rec, "failed to list documents", io.ErrUnexpectedEOF, 0)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestLevel(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   slog.Level
	}{
		{"/healthz", http.StatusOK, slog.LevelDebug},
		{"/api/chat", http.StatusOK, slog.LevelInfo},
		{"/api/chat", http.StatusBadRequest, slog.LevelWarn},
		{"/api/send-otp", http.StatusTooManyRequests, slog.LevelWarn},
		{"/healthz", http.StatusServiceUnavailable, slog.LevelError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, requestLevel(tt.path, tt.status), "%s %d", tt.path, tt.status)
	}
}
