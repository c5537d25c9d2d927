package scheduler

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// SessionEvictor is the part of the session registry the eviction job needs
type SessionEvictor interface {
	EvictIdle(maxIdle time.Duration) int
	Count() int
}

// SessionEvictionJob closes sessions nobody has touched for maxIdle
type SessionEvictionJob struct {
	log      zerolog.Logger
	sessions SessionEvictor
	maxIdle  time.Duration
}

// NewSessionEvictionJob creates the eviction job
func NewSessionEvictionJob(sessions SessionEvictor, maxIdle time.Duration, log zerolog.Logger) *SessionEvictionJob {
	return &SessionEvictionJob{
		log:      log.With().Str("job", "session_eviction").Logger(),
		sessions: sessions,
		maxIdle:  maxIdle,
	}
}

// Name returns the job name
func (j *SessionEvictionJob) Name() string {
	return "session_eviction"
}

// Run evicts idle sessions
func (j *SessionEvictionJob) Run() error {
	if j.sessions == nil {
		return fmt.Errorf("session registry not configured")
	}
	if j.maxIdle <= 0 {
		return fmt.Errorf("invalid idle timeout: %s", j.maxIdle)
	}

	evicted := j.sessions.EvictIdle(j.maxIdle)
	if evicted > 0 {
		j.log.Info().
			Int("evicted", evicted).
			Int("remaining", j.sessions.Count()).
			Msg("Evicted idle sessions")
	}
	return nil
}
