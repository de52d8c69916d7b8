package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/3cpo-dev/saltamt/internal/chart"
	"github.com/3cpo-dev/saltamt/internal/core"
	"github.com/3cpo-dev/saltamt/internal/household"
	"github.com/3cpo-dev/saltamt/internal/impacts"
	"github.com/3cpo-dev/saltamt/internal/policy"
	"github.com/3cpo-dev/saltamt/internal/telemetry"
	v0 "github.com/3cpo-dev/saltamt/pkg/api"
)

const maxBodyBytes = 1 << 20

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("/v0/health", method(http.MethodGet, s.handleHealth))
	mux.HandleFunc("/metrics", method(http.MethodGet, s.handleMetrics))
	mux.HandleFunc("/v0/presets", method(http.MethodGet, s.handlePresets))
	mux.HandleFunc("/v0/impacts", method(http.MethodGet, s.handleImpacts))
	mux.HandleFunc("/v0/reform", method(http.MethodPost, s.handleReform))
	mux.HandleFunc("/v0/situation", method(http.MethodPost, s.handleSituation))
	mux.HandleFunc("/v0/calculate", method(http.MethodPost, s.handleCalculate))
	mux.HandleFunc("/v0/sweep", method(http.MethodPost, s.handleSweep))
	mux.HandleFunc("/v0/grid", method(http.MethodPost, s.handleGrid))
	mux.HandleFunc("/v0/compare", method(http.MethodPost, s.handleCompare))
}

func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != m {
			w.Header().Set("Allow", m)
			writeJSON(w, http.StatusMethodNotAllowed, errorBody(r, "method not allowed", ""))
			return
		}
		h(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, checks := s.health.Run()
	code := http.StatusOK
	if status == telemetry.HealthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, v0.HealthResponse{
		Status:    string(status),
		Version:   s.Version,
		Engines:   s.engines.Names(),
		Timestamp: time.Now().UTC(),
		Checks:    checks,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	for name, c := range s.calcs {
		st := c.GetMetrics()
		labels := map[string]string{"engine": name}
		telemetry.GaugeGlobal("calculator_engine_calls", float64(st.Requests), labels)
		telemetry.GaugeGlobal("calculator_errors", float64(st.Errors), labels)
		telemetry.GaugeGlobal("calculator_cache_hits", float64(st.CacheHits), labels)
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	if err := telemetry.GetGlobal().WriteText(w); err != nil {
		log.Warn().Err(err).Msg("Write metrics failed")
	}
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, v0.PresetsResponse{Presets: policy.Presets()})
}

// handleImpacts looks up a reform by key or preset name. baseline defaults
// to the preset's baseline (or current law) and year to the default year.
func (s *Server) handleImpacts(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody(r, "impacts store not configured", ""))
		return
	}
	q := r.URL.Query()
	key := q.Get("key")
	baseline := q.Get("baseline")
	year := policy.DefaultYear
	if name := q.Get("preset"); name != "" {
		p, ok := policy.LookupPreset(name)
		if !ok {
			s.fail(w, r, policy.ValidationError{Field: "preset", Value: name, Message: "unknown preset"})
			return
		}
		cfg := p.Config.Normalize()
		key = cfg.Key()
		if baseline == "" {
			baseline = string(cfg.Baseline)
		}
		year = cfg.Year
	}
	if key == "" {
		s.fail(w, r, policy.ValidationError{Field: "key", Message: "key or preset is required"})
		return
	}
	if baseline == "" {
		baseline = string(policy.CurrentLaw)
	}
	if y := q.Get("year"); y != "" {
		n, err := strconv.Atoi(y)
		if err != nil {
			s.fail(w, r, policy.ValidationError{Field: "year", Value: y, Message: "must be an integer"})
			return
		}
		year = n
	}
	rec, ok, err := impacts.Lookup(r.Context(), s.store, key, baseline, year)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody(r, fmt.Sprintf("no impacts for %s against %s in %d", key, baseline, year), ""))
		return
	}
	writeJSON(w, http.StatusOK, v0.ImpactsResponse{Record: rec})
}

func (s *Server) handleReform(w http.ResponseWriter, r *http.Request) {
	var req v0.ReformRequest
	if !decode(w, r, &req) {
		return
	}
	cfg := req.Policy
	if req.Preset != "" {
		p, ok := policy.LookupPreset(req.Preset)
		if !ok {
			s.fail(w, r, policy.ValidationError{Field: "preset", Value: req.Preset, Message: "unknown preset"})
			return
		}
		cfg = p.Config
	}
	cfg = cfg.Normalize()
	reform, err := policy.Translate(cfg)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	baseline := policy.BaselineReform(cfg.Baseline, cfg.Year)
	if baseline == nil {
		baseline = policy.Reform{}
	}
	writeJSON(w, http.StatusOK, v0.ReformResponse{
		Key:      cfg.Key(),
		Policy:   cfg,
		Reform:   reform,
		Baseline: baseline,
		Paths:    reform.Paths(),
	})
}

func (s *Server) handleSituation(w http.ResponseWriter, r *http.Request) {
	var req v0.SituationRequest
	if !decode(w, r, &req) {
		return
	}
	outputs, err := core.ResolveOutputs(req.Outputs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sit, err := household.Build(req.Household, outputs, req.Axes...)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v0.SituationResponse{Situation: sit})
}

func (s *Server) handleCalculate(w http.ResponseWriter, r *http.Request) {
	var req v0.CalculateRequest
	if !decode(w, r, &req) {
		return
	}
	calc, err := s.calculator(req.Engine)
	if err != nil {
		s.fail(w, r, policy.ValidationError{Field: "engine", Value: req.Engine, Message: err.Error()})
		return
	}
	p, err := calc.Single(r.Context(), req.Input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v0.CalculateResponse{Point: p, Table: chart.Table(p)})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req v0.SweepRequest
	if !decode(w, r, &req) {
		return
	}
	calc, err := s.calculator(req.Engine)
	if err != nil {
		s.fail(w, r, policy.ValidationError{Field: "engine", Value: req.Engine, Message: err.Error()})
		return
	}
	sweep, err := calc.Sweep(r.Context(), req.Input, req.Axis)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	line, err := chart.LineChart(sweep, req.Outputs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := v0.SweepResponse{Sweep: sweep, Chart: line}
	if v := req.MarginalRate; v != "" {
		if _, ok := sweep.Baseline[v]; !ok {
			s.fail(w, r, policy.ValidationError{Field: "marginal_rate", Value: v, Message: "not among the requested outputs"})
			return
		}
		resp.MarginalRates = map[string][]chart.Point{}
		for which, src := range map[string]map[string][]float64{"baseline": sweep.Baseline, "reform": sweep.Reform} {
			pts, err := chart.MarginalRates(sweep.X, src[v])
			if err != nil {
				s.fail(w, r, err)
				return
			}
			resp.MarginalRates[which] = pts
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGrid(w http.ResponseWriter, r *http.Request) {
	var req v0.GridRequest
	if !decode(w, r, &req) {
		return
	}
	calc, err := s.calculator(req.Engine)
	if err != nil {
		s.fail(w, r, policy.ValidationError{Field: "engine", Value: req.Engine, Message: err.Error()})
		return
	}
	variable := req.Variable
	if variable == "" {
		variable = "income_tax"
	}
	if len(req.Outputs) > 0 && !contains(req.Outputs, variable) {
		req.Outputs = append(req.Outputs, variable)
	}
	grid, err := calc.Grid(r.Context(), req.Input, req.X, req.Y)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	heat, err := chart.Heatmap(grid, variable, req.Which)
	if err != nil {
		s.fail(w, r, policy.ValidationError{Field: "variable", Value: variable, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, v0.GridResponse{Grid: grid, Heatmap: heat})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req v0.CompareRequest
	if !decode(w, r, &req) {
		return
	}
	calc, err := s.calculator(req.Engine)
	if err != nil {
		s.fail(w, r, policy.ValidationError{Field: "engine", Value: req.Engine, Message: err.Error()})
		return
	}
	scenarios := req.Scenarios
	for _, name := range req.Presets {
		p, ok := policy.LookupPreset(name)
		if !ok {
			s.fail(w, r, policy.ValidationError{Field: "presets", Value: name, Message: "unknown preset"})
			return
		}
		scenarios = append(scenarios, core.Scenario{Name: p.Name, Policy: p.Config})
	}
	variable, err := tableVariable(req.Variable, req.Outputs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	cmp, err := calc.Compare(r.Context(), req.Household, req.Baseline, scenarios, req.Outputs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v0.CompareResponse{Comparison: cmp, Table: chart.ScenarioTable(cmp, variable)})
}

// tableVariable picks the comparison table column: the named variable, or
// the first requested output.
func tableVariable(name string, outputs []string) (string, error) {
	vars, err := core.ResolveOutputs(outputs)
	if err != nil {
		return "", err
	}
	if name == "" {
		return vars[0].Name, nil
	}
	for _, v := range vars {
		if v.Name == name {
			return name, nil
		}
	}
	return "", policy.ValidationError{Field: "variable", Value: name, Message: "not among the requested outputs"}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// decode reads a JSON body, answering 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "invalid JSON body: " + err.Error()
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		writeJSON(w, http.StatusBadRequest, errorBody(r, msg, ""))
		return false
	}
	return true
}

// fail maps err to a status: invalid input 400, engine failures 502,
// timeouts 504, anything else 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve policy.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody(r, err.Error(), ve.Field))
	case isTimeout(err):
		writeJSON(w, http.StatusGatewayTimeout, errorBody(r, err.Error(), ""))
	case errors.Is(err, core.ErrEngine):
		writeJSON(w, http.StatusBadGateway, errorBody(r, err.Error(), ""))
	default:
		log.Error().Err(err).Str("request_id", RequestIDFrom(r.Context())).Msg("Request failed")
		writeJSON(w, http.StatusInternalServerError, errorBody(r, err.Error(), ""))
	}
}

// isTimeout reports a context deadline or a transport timeout such as
// http.Client.Timeout, which does not wrap context.DeadlineExceeded.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func errorBody(r *http.Request, msg, field string) v0.ErrorResponse {
	return v0.ErrorResponse{Error: msg, Field: field, RequestID: RequestIDFrom(r.Context())}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Encode response failed")
	}
}
