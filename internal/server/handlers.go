package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"

	"github.com/aristath/bondcalc/internal/modules/session"
	"github.com/aristath/bondcalc/internal/modules/validation"
	"github.com/aristath/bondcalc/internal/modules/valuation"
)

const (
	contentTypeMsgpack = "application/msgpack"
	maxBodyBytes       = 1 << 16
)

// ValuationHandlers serves stateless valuations
type ValuationHandlers struct {
	service   *valuation.Service
	validator *validation.Validator
	limiter   *rate.Limiter
	log       zerolog.Logger
}

// NewValuationHandlers creates valuation handlers
func NewValuationHandlers(service *valuation.Service, v *validation.Validator, limiter *rate.Limiter, log zerolog.Logger) *ValuationHandlers {
	return &ValuationHandlers{
		service:   service,
		validator: v,
		limiter:   limiter,
		log:       log.With().Str("handler", "valuations").Logger(),
	}
}

// ValuationResponse is the body of a successful valuation
type ValuationResponse struct {
	Result  *valuation.ValuationResult `json:"bond_calculations"`
	Summary *valuation.Summary         `json:"summary"`
}

// HandleValuate handles POST /api/valuations
func (h *ValuationHandlers) HandleValuate(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		writeError(w, h.log, http.StatusTooManyRequests, "rate_limited", "Too many valuation requests")
		return
	}

	var params valuation.BondParameters
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&params); err != nil {
		writeError(w, h.log, http.StatusBadRequest, "invalid_body", fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	if errs := h.validator.ValidateParams(params); validation.HasErrors(errs) {
		writeJSON(w, h.log, http.StatusUnprocessableEntity, errorResponse{
			Error:  "Invalid bond parameters",
			Code:   "validation_error",
			Errors: errs,
		})
		return
	}

	result, err := h.service.CalculateBondMetrics(params)
	if err != nil {
		if errors.Is(err, valuation.ErrDomain) || errors.Is(err, valuation.ErrTermTooLong) {
			writeError(w, h.log, http.StatusUnprocessableEntity, "domain_error", err.Error())
			return
		}
		h.log.Error().Err(err).Msg("Valuation failed")
		writeError(w, h.log, http.StatusInternalServerError, "internal_error", "Valuation failed")
		return
	}

	h.respond(w, r, ValuationResponse{Result: result, Summary: valuation.Summarize(result)})
}

// respond picks msgpack or JSON from the Accept header
func (h *ValuationHandlers) respond(w http.ResponseWriter, r *http.Request, resp ValuationResponse) {
	if !strings.Contains(r.Header.Get("Accept"), contentTypeMsgpack) {
		writeJSON(w, h.log, http.StatusOK, resp)
		return
	}

	w.Header().Set("Content-Type", contentTypeMsgpack)
	w.WriteHeader(http.StatusOK)

	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(resp); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode msgpack response")
	}
}

// SessionHandlers serves interactive sessions
type SessionHandlers struct {
	sessions *session.Registry
	devMode  bool
	log      zerolog.Logger
}

// NewSessionHandlers creates session handlers
func NewSessionHandlers(sessions *session.Registry, devMode bool, log zerolog.Logger) *SessionHandlers {
	return &SessionHandlers{
		sessions: sessions,
		devMode:  devMode,
		log:      log.With().Str("handler", "sessions").Logger(),
	}
}

// SessionResponse describes a session and its current state
type SessionResponse struct {
	ID        string             `json:"id"`
	CreatedAt time.Time          `json:"created_at"`
	Pending   bool               `json:"pending"`
	State     session.State      `json:"state"`
	Summary   *valuation.Summary `json:"summary"`
}

func newSessionResponse(sess *session.Session, state session.State) SessionResponse {
	return SessionResponse{
		ID:        sess.ID,
		CreatedAt: sess.CreatedAt,
		Pending:   sess.Input.Pending(),
		State:     state,
		Summary:   valuation.Summarize(state.Result),
	}
}

// HandleCreate handles POST /api/sessions
func (h *SessionHandlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	sess := h.sessions.Create()
	writeJSON(w, h.log, http.StatusCreated, newSessionResponse(sess, sess.Store.Snapshot()))
}

// HandleGet handles GET /api/sessions/{id}
func (h *SessionHandlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, h.log, http.StatusOK, newSessionResponse(sess, sess.Store.Snapshot()))
}

// HandleDelete handles DELETE /api/sessions/{id}
func (h *SessionHandlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(chi.URLParam(r, "id")); err != nil {
		h.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetFields handles PATCH /api/sessions/{id}/fields.
// The body is either {"field": "ytm", "value": "4.5"} or a map of field to value.
// With ?flush=true the edits apply before responding; otherwise they wait for the debounce interval.
func (h *SessionHandlers) HandleSetFields(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var body map[string]interface{}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&body); err != nil {
		writeError(w, h.log, http.StatusBadRequest, "invalid_body", fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	edits, err := parseEdits(body)
	if err != nil {
		writeError(w, h.log, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}

	for _, edit := range edits {
		if err := sess.Input.SetField(edit.field, edit.value); err != nil {
			writeError(w, h.log, http.StatusBadRequest, "unknown_field", err.Error())
			return
		}
	}

	if flush, _ := strconv.ParseBool(r.URL.Query().Get("flush")); flush {
		state := sess.Input.Flush()
		writeJSON(w, h.log, http.StatusOK, newSessionResponse(sess, state))
		return
	}

	writeJSON(w, h.log, http.StatusAccepted, newSessionResponse(sess, sess.Store.Snapshot()))
}

func (h *SessionHandlers) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeSessionError(w, err)
		return nil, false
	}
	return sess, true
}

func (h *SessionHandlers) writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, h.log, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	h.log.Error().Err(err).Msg("Session operation failed")
	writeError(w, h.log, http.StatusInternalServerError, "internal_error", "Session operation failed")
}

type fieldEdit struct {
	field string
	value string
}

// parseEdits accepts the single-edit and batch body shapes. Batch edits are
// ordered by the validator's field order so results do not depend on map iteration.
func parseEdits(body map[string]interface{}) ([]fieldEdit, error) {
	if len(body) == 0 {
		return nil, errors.New("no fields to update")
	}

	if rawField, ok := body["field"]; ok {
		field, isString := rawField.(string)
		if !isString {
			return nil, errors.New(`"field" must be a string`)
		}
		value, err := rawValue(body["value"])
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		return []fieldEdit{{field: field, value: value}}, nil
	}

	edits := make([]fieldEdit, 0, len(body))
	for _, field := range validation.Fields {
		raw, ok := body[field]
		if !ok {
			continue
		}
		value, err := rawValue(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field, err)
		}
		edits = append(edits, fieldEdit{field: field, value: value})
	}
	for field := range body {
		if !validation.IsKnownField(field) {
			return nil, fmt.Errorf("%w: %q", session.ErrUnknownField, field)
		}
	}
	return edits, nil
}

// rawValue turns a JSON value back into the text a user would have typed
func rawValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}
