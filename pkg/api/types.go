package api

// v0 request and response bodies of the saltamt HTTP API.

import (
	"time"

	"github.com/3cpo-dev/saltamt/internal/chart"
	"github.com/3cpo-dev/saltamt/internal/core"
	"github.com/3cpo-dev/saltamt/internal/household"
	"github.com/3cpo-dev/saltamt/internal/impacts"
	"github.com/3cpo-dev/saltamt/internal/policy"
)

type ReformRequest struct {
	Policy policy.Config `json:"policy"`
	// Preset, when set, replaces Policy with a named scenario.
	Preset string `json:"preset,omitempty"`
}

type ReformResponse struct {
	Key      string        `json:"key"`
	Policy   policy.Config `json:"policy"`
	Reform   policy.Reform `json:"reform"`
	Baseline policy.Reform `json:"baseline"`
	Paths    []string      `json:"paths"`
}

type SituationRequest struct {
	Household household.Household `json:"household"`
	Outputs   []string            `json:"outputs,omitempty"`
	Axes      []household.Axis    `json:"axes,omitempty"`
}

type SituationResponse struct {
	Situation *household.Situation `json:"situation"`
}

type CalculateRequest struct {
	core.Input
	Engine string `json:"engine,omitempty"`
}

type CalculateResponse struct {
	*core.Point
	Table []chart.Row `json:"table"`
}

type SweepRequest struct {
	core.Input
	Engine string         `json:"engine,omitempty"`
	Axis   household.Axis `json:"axis"`
	// MarginalRate names an output whose marginal rate along the axis is
	// returned for both baseline and reform.
	MarginalRate string `json:"marginal_rate,omitempty"`
}

type SweepResponse struct {
	Sweep         *core.Sweep              `json:"sweep"`
	Chart         *chart.Line              `json:"chart"`
	MarginalRates map[string][]chart.Point `json:"marginal_rates,omitempty"`
}

type GridRequest struct {
	core.Input
	Engine   string         `json:"engine,omitempty"`
	X        household.Axis `json:"x"`
	Y        household.Axis `json:"y"`
	Variable string         `json:"variable,omitempty"`
	Which    chart.Which    `json:"which,omitempty"`
}

type GridResponse struct {
	Grid    *core.Grid         `json:"grid"`
	Heatmap *chart.HeatmapData `json:"heatmap"`
}

type CompareRequest struct {
	Household household.Household `json:"household"`
	Baseline  policy.Baseline     `json:"baseline,omitempty"`
	Scenarios []core.Scenario     `json:"scenarios,omitempty"`
	// Presets adds named scenarios by preset name.
	Presets []string `json:"presets,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
	Engine  string   `json:"engine,omitempty"`
	// Variable picks the table column; it defaults to the first output.
	Variable string `json:"variable,omitempty"`
}

type CompareResponse struct {
	*core.Comparison
	Table []chart.Row `json:"table"`
}

type ImpactsResponse struct {
	impacts.Record
}

type PresetsResponse struct {
	Presets []policy.Preset `json:"presets"`
}

type HealthResponse struct {
	Status    string      `json:"status"`
	Version   string      `json:"version"`
	Engines   []string    `json:"engines"`
	Timestamp time.Time   `json:"timestamp"`
	Checks    interface{} `json:"checks"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}
