// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/bondcalc/internal/config"
	"github.com/aristath/bondcalc/internal/events"
	"github.com/aristath/bondcalc/internal/modules/session"
	"github.com/aristath/bondcalc/internal/modules/validation"
	"github.com/aristath/bondcalc/internal/modules/valuation"
	"github.com/aristath/bondcalc/internal/scheduler"
)

// Wire initializes all dependencies and returns a configured container.
// Order of operations:
// 1. Initialize services
// 2. Register jobs
// The scheduler is created but not started.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("failed to wire dependencies: nil config")
	}

	container := InitializeServices(cfg, log)

	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		container.Sessions.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	return container, jobs, nil
}

// InitializeServices builds the event bus, valuation core and session registry
func InitializeServices(cfg *config.Config, log zerolog.Logger) *Container {
	bus := events.NewBus()
	eventManager := events.NewManager(bus, log)

	service := valuation.NewService(cfg.ParTolerance, log)
	v := validation.New()

	sessions := session.NewRegistry(session.RegistryConfig{
		Defaults:         cfg.Defaults,
		DebounceInterval: cfg.InputDebounce,
	}, service, v, eventManager, log)

	log.Debug().
		Float64("par_tolerance", service.Tolerance()).
		Dur("input_debounce", cfg.InputDebounce).
		Msg("Services initialized")

	return &Container{
		EventBus:     bus,
		EventManager: eventManager,
		Valuation:    service,
		Validator:    v,
		Sessions:     sessions,
		Scheduler:    scheduler.New(log),
	}
}

// RegisterJobs schedules background jobs on the container's scheduler
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	eviction := scheduler.NewSessionEvictionJob(container.Sessions, cfg.SessionIdleTimeout, log)
	if err := container.Scheduler.AddJob(cfg.SessionEvictionSchedule, eviction); err != nil {
		return nil, fmt.Errorf("failed to schedule %s: %w", eviction.Name(), err)
	}

	return &JobInstances{SessionEviction: eviction}, nil
}
