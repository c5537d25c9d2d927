// Package session holds the reactive state for interactive bond valuations.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/aristath/bondcalc/internal/modules/valuation"
	"github.com/rs/zerolog"
)

// Calculator values a validated parameter set
type Calculator interface {
	CalculateBondMetrics(params valuation.BondParameters) (*valuation.ValuationResult, error)
}

// State is an immutable snapshot of a session.
// Result is nil whenever any validation error is active or the last calculation failed.
type State struct {
	Params    valuation.BondParameters   `json:"params"`
	Errors    map[string]string          `json:"errors"`
	Result    *valuation.ValuationResult `json:"bond_calculations"`
	CalcError string                     `json:"calc_error,omitempty"`
	Version   uint64                     `json:"version"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// HasResult reports whether a valid result is available
func (s State) HasResult() bool {
	return s.Result != nil
}

// ParamsPatch carries the fields to change; nil leaves a field untouched
type ParamsPatch struct {
	FaceValue  *float64
	CouponRate *float64
	YTM        *float64
	Years      *float64
	Frequency  *int
}

// Patch is one atomic update. An empty message in Errors clears that field's error.
type Patch struct {
	Params ParamsPatch
	Errors map[string]string
}

// Store owns the parameters, active errors and last result of one session
type Store struct {
	calc Calculator
	log  zerolog.Logger

	mu    sync.RWMutex
	state State
	subs  []*Subscription

	nextID uint64

	// update serializes Update so notifications go out in version order
	update sync.Mutex
}

// NewStore creates a store holding initial parameters. No calculation runs until
// the first Update or Recompute.
func NewStore(initial valuation.BondParameters, calc Calculator, log zerolog.Logger) *Store {
	return &Store{
		calc: calc,
		log:  log.With().Str("component", "session_store").Logger(),
		state: State{
			Params:    initial,
			Errors:    map[string]string{},
			UpdatedAt: time.Now(),
		},
	}
}

// Subscription is the handle returned by Subscribe
type Subscription struct {
	store *Store
	id    uint64
	fn    func(State)
	once  sync.Once
}

// Unsubscribe stops further notifications. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.store.remove(s.id)
	})
}

// Subscribe registers fn to receive every new state.
// fn runs synchronously inside Update and must not call Update itself.
func (s *Store) Subscribe(fn func(State)) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	sub := &Subscription{store: s, id: s.nextID, fn: fn}
	s.subs = append(s.subs, sub)
	return sub
}

// SubscriberCount returns the number of live subscriptions
func (s *Store) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyState(s.state)
}

// Update merges patch into the current state, recomputes or clears the result,
// then notifies every subscriber with the new snapshot before returning it.
func (s *Store) Update(patch Patch) State {
	s.update.Lock()
	defer s.update.Unlock()

	s.mu.RLock()
	next := copyState(s.state)
	s.mu.RUnlock()

	applyParams(&next.Params, patch.Params)
	for field, msg := range patch.Errors {
		if msg == "" {
			delete(next.Errors, field)
		} else {
			next.Errors[field] = msg
		}
	}

	return s.commit(next)
}

// Recompute re-runs the calculation on the current parameters and notifies
func (s *Store) Recompute() State {
	s.update.Lock()
	defer s.update.Unlock()

	s.mu.RLock()
	next := copyState(s.state)
	s.mu.RUnlock()

	return s.commit(next)
}

func (s *Store) commit(next State) State {
	next.Result = nil
	next.CalcError = ""

	if len(next.Errors) == 0 {
		result, err := s.calculate(next.Params)
		if err != nil {
			next.CalcError = err.Error()
			s.log.Warn().
				Err(err).
				Uint64("version", next.Version+1).
				Msg("Valuation failed, clearing result")
		} else {
			next.Result = result
		}
	}

	next.Version++
	next.UpdatedAt = time.Now()

	s.mu.Lock()
	s.state = next
	subs := make([]*Subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(copyState(next))
	}

	return copyState(next)
}

// calculate shields the store from a panicking calculator
func (s *Store) calculate(params valuation.BondParameters) (result *valuation.ValuationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("Calculator panicked")
			result = nil
			err = fmt.Errorf("unexpected calculation failure: %v", r)
		}
	}()
	return s.calc.CalculateBondMetrics(params)
}

func (s *Store) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, sub := range s.subs {
		if sub.id == id {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}

func applyParams(p *valuation.BondParameters, patch ParamsPatch) {
	if patch.FaceValue != nil {
		p.FaceValue = *patch.FaceValue
	}
	if patch.CouponRate != nil {
		p.CouponRate = *patch.CouponRate
	}
	if patch.YTM != nil {
		p.YTM = *patch.YTM
	}
	if patch.Years != nil {
		p.Years = *patch.Years
	}
	if patch.Frequency != nil {
		p.Frequency = *patch.Frequency
	}
}

func copyState(s State) State {
	out := s
	out.Errors = make(map[string]string, len(s.Errors))
	for k, v := range s.Errors {
		out.Errors[k] = v
	}
	out.Result = s.Result.Clone()
	return out
}
