package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/bondcalc/internal/events"
	"github.com/aristath/bondcalc/internal/modules/session"
)

// SystemHandlers reports process and host status
type SystemHandlers struct {
	sessions     *session.Registry
	eventManager *events.Manager
	startedAt    time.Time
	log          zerolog.Logger

	// sampleInterval is how long cpu.Percent measures for
	sampleInterval time.Duration
}

// NewSystemHandlers creates system handlers. eventManager may be nil.
func NewSystemHandlers(sessions *session.Registry, eventManager *events.Manager, log zerolog.Logger) *SystemHandlers {
	return &SystemHandlers{
		sessions:       sessions,
		eventManager:   eventManager,
		startedAt:      time.Now(),
		log:            log.With().Str("handler", "system").Logger(),
		sampleInterval: 100 * time.Millisecond,
	}
}

// SystemStatusResponse is the body of GET /api/system/status
type SystemStatusResponse struct {
	Status           string  `json:"status"`
	UptimeSeconds    float64 `json:"uptime_seconds"`
	Sessions         int     `json:"sessions"`
	EventSubscribers int     `json:"event_subscribers"`
	Goroutines       int     `json:"goroutines"`
	CPUPercent       float64 `json:"cpu_percent"`
	MemoryPercent    float64 `json:"memory_percent"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	h.log.Debug().Msg("Getting system status")

	cpuPercent, memPercent := h.getSystemStats()

	response := SystemStatusResponse{
		Status:        "healthy",
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
		CPUPercent:    cpuPercent,
		MemoryPercent: memPercent,
	}
	if h.sessions != nil {
		response.Sessions = h.sessions.Count()
	}
	if h.eventManager != nil {
		for _, t := range events.AllEventTypes {
			response.EventSubscribers += h.eventManager.Bus().SubscriberCount(t)
		}
	}

	writeJSON(w, h.log, http.StatusOK, response)
}

// getSystemStats returns CPU and RAM usage percentages, zero when unavailable
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(h.sampleInterval, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}
