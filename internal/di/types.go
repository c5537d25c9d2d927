package di

import (
	"github.com/aristath/bondcalc/internal/events"
	"github.com/aristath/bondcalc/internal/modules/session"
	"github.com/aristath/bondcalc/internal/modules/validation"
	"github.com/aristath/bondcalc/internal/modules/valuation"
	"github.com/aristath/bondcalc/internal/scheduler"
)

// Container holds every long-lived service of the process
type Container struct {
	// Events
	EventBus     *events.Bus
	EventManager *events.Manager

	// Valuation core
	Valuation *valuation.Service
	Validator *validation.Validator

	// Interactive sessions
	Sessions *session.Registry

	// Background jobs
	Scheduler *scheduler.Scheduler
}

// JobInstances holds registered jobs so they can be triggered manually
type JobInstances struct {
	SessionEviction scheduler.Job
}

// Close stops background work and releases every session
func (c *Container) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.Sessions != nil {
		c.Sessions.Close()
	}
}
