package session

import (
	"errors"
	"sync"
	"time"

	"github.com/aristath/bondcalc/internal/debounce"
	"github.com/aristath/bondcalc/internal/events"
	"github.com/aristath/bondcalc/internal/modules/validation"
	"github.com/aristath/bondcalc/internal/modules/valuation"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrSessionNotFound is returned for unknown or evicted session IDs
var ErrSessionNotFound = errors.New("session not found")

const moduleName = "session"

// Session is one interactive valuation: a store plus the pipeline feeding it
type Session struct {
	ID        string
	Store     *Store
	Input     *InputPipeline
	CreatedAt time.Time

	bridge     *Subscription
	mu         sync.Mutex
	lastAccess time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// Done is closed once the session is deleted, evicted or the registry shuts down
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// LastAccess returns when the session was last read or edited
func (s *Session) LastAccess() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastAccess
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.Input.Close()
		if s.bridge != nil {
			s.bridge.Unsubscribe()
		}
		close(s.done)
	})
}

// RegistryConfig holds the settings shared by every new session
type RegistryConfig struct {
	Defaults         valuation.BondParameters
	DebounceInterval time.Duration
	DebounceOptions  []debounce.Option
}

// Registry tracks live sessions by ID
type Registry struct {
	cfg       RegistryConfig
	calc      Calculator
	validator *validation.Validator
	events    *events.Manager
	log       zerolog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a registry. eventManager may be nil.
func NewRegistry(cfg RegistryConfig, calc Calculator, v *validation.Validator, eventManager *events.Manager, log zerolog.Logger) *Registry {
	return &Registry{
		cfg:       cfg,
		calc:      calc,
		validator: v,
		events:    eventManager,
		log:       log.With().Str("component", "session_registry").Logger(),
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

// Create starts a session from the default parameters and values it immediately
func (r *Registry) Create() *Session {
	id := uuid.New().String()
	now := r.now()

	store := NewStore(r.cfg.Defaults, r.calc, r.log.With().Str("session_id", id).Logger())
	sess := &Session{
		ID:         id,
		Store:      store,
		Input:      NewInputPipeline(store, r.validator, r.cfg.DebounceInterval, r.log, r.cfg.DebounceOptions...),
		CreatedAt:  now,
		lastAccess: now,
		done:       make(chan struct{}),
	}

	if r.events != nil {
		sess.bridge = store.Subscribe(r.bridgeTo(id))
	}

	// defaults are not user input, so the term check runs here rather than in the pipeline
	if msg := r.validator.ValidateTerm(r.cfg.Defaults.Years, r.cfg.Defaults.Frequency); msg != "" {
		store.Update(Patch{Errors: map[string]string{validation.FieldTerm: msg}})
	} else {
		store.Recompute()
	}

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	r.log.Info().Str("session_id", id).Msg("Session created")
	if r.events != nil {
		r.events.EmitTyped(moduleName, &events.SessionCreatedData{SessionID: id})
	}

	return sess
}

// Get returns a session and marks it as accessed
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.touch(r.now())
	return sess, nil
}

// Delete closes and removes a session
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	sess.close()
	r.log.Info().Str("session_id", id).Msg("Session deleted")
	if r.events != nil {
		r.events.EmitTyped(moduleName, &events.SessionDeletedData{SessionID: id})
	}
	return nil
}

// EvictIdle removes sessions untouched for longer than maxIdle and returns how many went
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	now := r.now()

	r.mu.Lock()
	var evicted []*Session
	for id, sess := range r.sessions {
		if now.Sub(sess.LastAccess()) > maxIdle {
			evicted = append(evicted, sess)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, sess := range evicted {
		idle := now.Sub(sess.LastAccess())
		sess.close()

		r.log.Info().
			Str("session_id", sess.ID).
			Dur("idle", idle).
			Msg("Session evicted")
		if r.events != nil {
			r.events.EmitTyped(moduleName, &events.SessionEvictedData{
				SessionID:   sess.ID,
				IdleSeconds: idle.Seconds(),
			})
		}
	}

	return len(evicted)
}

// Count returns the number of live sessions
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close shuts every session down
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.close()
	}
}

func (r *Registry) bridgeTo(id string) func(State) {
	return func(st State) {
		if st.HasResult() {
			r.events.EmitTyped(moduleName, &events.ValuationUpdatedData{
				SessionID:      id,
				Version:        st.Version,
				BondPrice:      st.Result.BondPrice,
				Classification: string(st.Result.Classification.Type),
				Periods:        st.Result.Periods,
			})
			return
		}

		reason := "validation"
		if len(st.Errors) == 0 {
			reason = "calculation"
		}
		r.events.EmitTyped(moduleName, &events.ValuationClearedData{
			SessionID: id,
			Version:   st.Version,
			Reason:    reason,
			Errors:    st.Errors,
			CalcError: st.CalcError,
		})
	}
}
