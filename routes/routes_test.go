package routes

import (
	"MediSlot/config"
	"MediSlot/utils"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type okHealth struct{}

func (okHealth) Ping(context.Context) error { return nil }

func (okHealth) ServerTime(context.Context) (time.Time, error) { return time.Now(), nil }

func newTestHandler(t *testing.T) (http.Handler, *utils.TokenMaker) {
	t.Helper()
	tokens, err := utils.NewTokenMaker("0123456789abcdef0123456789abcdef", time.Hour)
	require.NoError(t, err)
	cfg := &config.AppConfig{
		Env:            "test",
		CORSOrigins:    []string{"http://localhost:3000"},
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}
	return SetupRoutes(Dependencies{
		Config:   cfg,
		Tokens:   tokens,
		Health:   okHealth{},
		Gatherer: prometheus.NewRegistry(),
	}), tokens
}

func TestSetupRoutes_Public(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, path := range []string{"/", "/health", "/metrics"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestSetupRoutes_AppointmentsRequireToken(t *testing.T) {
	h, tokens := newTestHandler(t)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/appointments/mine", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	patientToken, err := tokens.GenerateAccessToken("42", "Patient")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/appointments/doctor", nil)
	req.Header.Set("Authorization", "Bearer "+patientToken)
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSetupRoutes_CORSPreflight(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/appointments/book", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
