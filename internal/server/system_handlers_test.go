package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemHandlers_HandleSystemStatus(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	env.server.systemHandlers.sampleInterval = 10 * time.Millisecond

	env.sessions.Create()
	env.sessions.Create()

	rec := env.do(t, http.MethodGet, "/api/system/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	status := decode[SystemStatusResponse](t, rec)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, 2, status.Sessions)
	assert.GreaterOrEqual(t, status.UptimeSeconds, 0.0)
	assert.Greater(t, status.Goroutines, 0)
	assert.GreaterOrEqual(t, status.CPUPercent, 0.0)
	assert.GreaterOrEqual(t, status.MemoryPercent, 0.0)
	assert.Equal(t, 0, status.EventSubscribers)
}

func TestSystemHandlers_NilDependencies(t *testing.T) {
	h := NewSystemHandlers(nil, nil, zerolog.Nop())
	h.sampleInterval = 10 * time.Millisecond

	rec := httptest.NewRecorder()
	h.HandleSystemStatus(rec, httptest.NewRequest(http.MethodGet, "/api/system/status", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[SystemStatusResponse](t, rec).Sessions)
}
