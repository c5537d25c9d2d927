package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/bondcalc/internal/debounce"
	"github.com/aristath/bondcalc/internal/modules/validation"
	"github.com/rs/zerolog"
)

// ErrUnknownField is returned for edits to fields the validator does not know
var ErrUnknownField = errors.New("unknown field")

// InputPipeline turns raw field edits into store updates.
// Edits arriving within the debounce interval are applied together in one Update.
type InputPipeline struct {
	store     *Store
	validator *validation.Validator
	debouncer *debounce.Debouncer
	log       zerolog.Logger

	mu      sync.Mutex
	pending map[string]string
	order   []string
}

// NewInputPipeline wires a store to a validator behind a debouncer
func NewInputPipeline(store *Store, v *validation.Validator, interval time.Duration, log zerolog.Logger, opts ...debounce.Option) *InputPipeline {
	p := &InputPipeline{
		store:     store,
		validator: v,
		log:       log.With().Str("component", "input_pipeline").Logger(),
		pending:   make(map[string]string),
	}
	p.debouncer = debounce.New(interval, p.apply, opts...)
	return p
}

// SetField records the latest raw value for field and schedules an apply
func (p *InputPipeline) SetField(field, raw string) error {
	if !validation.IsKnownField(field) {
		return fmt.Errorf("%w: %q", ErrUnknownField, field)
	}

	p.mu.Lock()
	if _, exists := p.pending[field]; !exists {
		p.order = append(p.order, field)
	}
	p.pending[field] = raw
	p.mu.Unlock()

	p.debouncer.Trigger()
	return nil
}

// Flush applies pending edits now and returns the resulting state
func (p *InputPipeline) Flush() State {
	p.debouncer.Flush()
	return p.store.Snapshot()
}

// Pending reports whether edits are waiting for the debounce interval
func (p *InputPipeline) Pending() bool {
	return p.debouncer.Pending()
}

// Close drops pending edits and stops the debouncer
func (p *InputPipeline) Close() {
	p.debouncer.Stop()

	p.mu.Lock()
	p.pending = make(map[string]string)
	p.order = nil
	p.mu.Unlock()
}

func (p *InputPipeline) apply() {
	p.mu.Lock()
	if len(p.order) == 0 {
		p.mu.Unlock()
		return
	}
	edits := p.pending
	order := p.order
	p.pending = make(map[string]string)
	p.order = nil
	p.mu.Unlock()

	current := p.store.Snapshot()
	params := current.Params
	patch := Patch{Errors: make(map[string]string, len(order)+1)}

	for _, field := range order {
		value, msg := p.validator.Parse(field, edits[field])
		patch.Errors[field] = msg
		if msg != "" {
			continue
		}

		v := value
		switch field {
		case validation.FieldFaceValue:
			patch.Params.FaceValue = &v
			params.FaceValue = v
		case validation.FieldCouponRate:
			patch.Params.CouponRate = &v
			params.CouponRate = v
		case validation.FieldYTM:
			patch.Params.YTM = &v
			params.YTM = v
		case validation.FieldYears:
			patch.Params.Years = &v
			params.Years = v
		case validation.FieldFrequency:
			n := int(v)
			patch.Params.Frequency = &n
			params.Frequency = n
		}
	}

	patch.Errors[validation.FieldTerm] = p.validator.ValidateTerm(params.Years, params.Frequency)

	state := p.store.Update(patch)

	p.log.Debug().
		Int("fields", len(order)).
		Uint64("version", state.Version).
		Bool("has_result", state.HasResult()).
		Msg("Inputs applied")
}
