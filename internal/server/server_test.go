package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/bondcalc/internal/events"
	"github.com/aristath/bondcalc/internal/modules/session"
	"github.com/aristath/bondcalc/internal/modules/validation"
	"github.com/aristath/bondcalc/internal/modules/valuation"
)

type testEnv struct {
	server   *Server
	sessions *session.Registry
	bus      *events.Bus
}

type testOptions struct {
	debounce  time.Duration
	rateLimit float64
}

func newTestEnv(t *testing.T, opts testOptions) *testEnv {
	t.Helper()
	log := zerolog.Nop()

	bus := events.NewBus()
	manager := events.NewManager(bus, log)
	service := valuation.NewService(valuation.DefaultParTolerance, log)
	v := validation.New()

	registry := session.NewRegistry(session.RegistryConfig{
		Defaults:         valuation.BondParameters{FaceValue: 1000, CouponRate: 5, YTM: 5, Years: 10, Frequency: 2},
		DebounceInterval: opts.debounce,
	}, service, v, manager, log)
	t.Cleanup(registry.Close)

	srv := New(Config{
		Log:                log,
		Port:               0,
		DevMode:            true,
		Valuation:          service,
		Validator:          v,
		Sessions:           registry,
		EventManager:       manager,
		ValuationRateLimit: opts.rateLimit,
	})

	return &testEnv{server: srv, sessions: registry, bus: bus}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	rec := env.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestValuations_JSON(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	params := valuation.BondParameters{FaceValue: 1000, CouponRate: 6, YTM: 5, Years: 10, Frequency: 2}

	rec := env.do(t, http.MethodPost, "/api/valuations", params)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[ValuationResponse](t, rec)
	expected, err := valuation.CalculateBondMetrics(params)
	require.NoError(t, err)

	require.NotNil(t, resp.Result)
	assert.InDelta(t, expected.BondPrice, resp.Result.BondPrice, 1e-9)
	assert.Equal(t, valuation.BondTypePremium, resp.Result.Classification.Type)
	assert.Len(t, resp.Result.CashFlows, 21)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, valuation.FormatAmount(expected.BondPrice), resp.Summary.BondPrice)
}

func TestValuations_Msgpack(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	params := valuation.BondParameters{FaceValue: 1000, CouponRate: 4, YTM: 5, Years: 5, Frequency: 4}

	rec := env.do(t, http.MethodPost, "/api/valuations", params, "Accept", "application/msgpack")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/msgpack", rec.Header().Get("Content-Type"))

	var resp ValuationResponse
	dec := msgpack.NewDecoder(rec.Body)
	dec.SetCustomStructTag("json")
	require.NoError(t, dec.Decode(&resp))

	require.NotNil(t, resp.Result)
	assert.Equal(t, 20, resp.Result.Periods)
	assert.Equal(t, valuation.BondTypeDiscount, resp.Result.Classification.Type)
	assert.Equal(t, "discount", string(resp.Summary.Classification))
}

func TestValuations_ValidationError(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	params := valuation.BondParameters{FaceValue: -1, CouponRate: 5, YTM: 5, Years: 10, Frequency: 3}

	rec := env.do(t, http.MethodPost, "/api/valuations", params)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decode[errorResponse](t, rec)
	assert.Equal(t, "validation_error", resp.Code)
	assert.Contains(t, resp.Errors, validation.FieldFaceValue)
	assert.Contains(t, resp.Errors, validation.FieldFrequency)
}

func TestValuations_OversizedTerm(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	for _, years := range []float64{1e9, 1e15} {
		params := valuation.BondParameters{FaceValue: 1000, CouponRate: 5, YTM: 5, Years: years, Frequency: 12}

		rec := env.do(t, http.MethodPost, "/api/valuations", params)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		resp := decode[errorResponse](t, rec)
		assert.Equal(t, "validation_error", resp.Code)
		assert.Equal(t, "Years to maturity must be 100 or less", resp.Errors[validation.FieldYears])
	}
}

func TestValuations_DomainError(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	params := valuation.BondParameters{FaceValue: 1000, CouponRate: 5, YTM: -200, Years: 5, Frequency: 2}

	rec := env.do(t, http.MethodPost, "/api/valuations", params)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "domain_error", decode[errorResponse](t, rec).Code)
}

func TestValuations_BadBody(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	rec := env.do(t, http.MethodPost, "/api/valuations", "{not json")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_body", decode[errorResponse](t, rec).Code)
}

func TestValuations_RateLimited(t *testing.T) {
	env := newTestEnv(t, testOptions{rateLimit: 1})
	params := valuation.BondParameters{FaceValue: 1000, CouponRate: 5, YTM: 5, Years: 10, Frequency: 2}

	first := env.do(t, http.MethodPost, "/api/valuations", params)
	second := env.do(t, http.MethodPost, "/api/valuations", params)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestSessions_Lifecycle(t *testing.T) {
	env := newTestEnv(t, testOptions{debounce: time.Hour})

	rec := env.do(t, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[SessionResponse](t, rec)
	require.NotEmpty(t, created.ID)
	require.NotNil(t, created.State.Result)
	assert.Equal(t, valuation.BondTypePar, created.State.Result.Classification.Type)
	assert.Equal(t, "1000.00", created.Summary.BondPrice)

	rec = env.do(t, http.MethodGet, "/api/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[SessionResponse](t, rec).ID)

	rec = env.do(t, http.MethodDelete, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", decode[errorResponse](t, rec).Code)
}

func TestSessions_SetFieldsDebounced(t *testing.T) {
	env := newTestEnv(t, testOptions{debounce: time.Hour})
	id := decode[SessionResponse](t, env.do(t, http.MethodPost, "/api/sessions", nil)).ID

	rec := env.do(t, http.MethodPatch, "/api/sessions/"+id+"/fields", map[string]string{"field": "ytm", "value": "6"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	accepted := decode[SessionResponse](t, rec)
	assert.True(t, accepted.Pending)
	assert.Equal(t, 5.0, accepted.State.Params.YTM, "edit waits for the debounce interval")

	rec = env.do(t, http.MethodPatch, "/api/sessions/"+id+"/fields?flush=true", map[string]interface{}{
		"couponRate": 7,
		"years":      "20",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	flushed := decode[SessionResponse](t, rec)

	assert.False(t, flushed.Pending)
	assert.Equal(t, 6.0, flushed.State.Params.YTM)
	assert.Equal(t, 7.0, flushed.State.Params.CouponRate)
	assert.Equal(t, 20.0, flushed.State.Params.Years)
	require.NotNil(t, flushed.State.Result)
	assert.Equal(t, 40, flushed.State.Result.Periods)
	assert.Equal(t, valuation.BondTypePremium, flushed.State.Result.Classification.Type)
}

func TestSessions_SetFieldsInvalidValue(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	id := decode[SessionResponse](t, env.do(t, http.MethodPost, "/api/sessions", nil)).ID

	rec := env.do(t, http.MethodPatch, "/api/sessions/"+id+"/fields?flush=true", map[string]string{"field": "faceValue", "value": "abc"})

	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[SessionResponse](t, rec).State
	assert.Nil(t, state.Result)
	assert.Equal(t, "Face value must be greater than 0", state.Errors[validation.FieldFaceValue])
	assert.Equal(t, 1000.0, state.Params.FaceValue)
}

func TestSessions_SetFieldsOversizedTerm(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	id := decode[SessionResponse](t, env.do(t, http.MethodPost, "/api/sessions", nil)).ID

	rec := env.do(t, http.MethodPatch, "/api/sessions/"+id+"/fields?flush=true", map[string]string{"field": "years", "value": "1e9"})

	require.Equal(t, http.StatusOK, rec.Code)
	state := decode[SessionResponse](t, rec).State
	assert.Nil(t, state.Result)
	assert.Equal(t, "Years to maturity must be 100 or less", state.Errors[validation.FieldYears])

	rec = env.do(t, http.MethodPatch, "/api/sessions/"+id+"/fields?flush=true", map[string]string{"field": "years", "value": "30"})

	require.Equal(t, http.StatusOK, rec.Code)
	state = decode[SessionResponse](t, rec).State
	require.NotNil(t, state.Result, "the session keeps recomputing after the rejected edit")
	assert.Equal(t, 60, state.Result.Periods)
}

func TestSessions_SetFieldsRejectsBadBodies(t *testing.T) {
	env := newTestEnv(t, testOptions{debounce: time.Hour})
	id := decode[SessionResponse](t, env.do(t, http.MethodPost, "/api/sessions", nil)).ID

	testCases := []struct {
		name string
		body interface{}
		code string
	}{
		{"unknown single field", map[string]string{"field": "maturity", "value": "1"}, "unknown_field"},
		{"unknown batch field", map[string]string{"maturity": "1"}, "invalid_body"},
		{"empty body", map[string]string{}, "invalid_body"},
		{"non-scalar value", map[string]interface{}{"ytm": []int{1}}, "invalid_body"},
		{"malformed json", "{", "invalid_body"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPatch, "/api/sessions/"+id+"/fields", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tc.code, decode[errorResponse](t, rec).Code)
		})
	}
}

func TestSessions_UnknownSession(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := env.do(t, method, "/api/sessions/missing", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, method)
	}

	rec := env.do(t, http.MethodPatch, "/api/sessions/missing/fields", map[string]string{"field": "ytm", "value": "1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestParseEdits_BatchOrder(t *testing.T) {
	edits, err := parseEdits(map[string]interface{}{
		"frequency":  12.0,
		"faceValue":  "500",
		"couponRate": nil,
	})
	require.NoError(t, err)

	var fields []string
	for _, e := range edits {
		fields = append(fields, e.field)
	}
	assert.Equal(t, []string{"faceValue", "couponRate", "frequency"}, fields)
	assert.Equal(t, "12", edits[2].value)
	assert.Equal(t, "", edits[1].value)
}

func TestServer_CORSPreflight(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	rec := env.do(t, http.MethodOptions, "/api/valuations", nil,
		"Origin", "http://example.com",
		"Access-Control-Request-Method", "POST")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST"))
}
