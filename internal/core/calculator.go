package core

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/3cpo-dev/saltamt/internal/engine"
	"github.com/3cpo-dev/saltamt/internal/household"
	"github.com/3cpo-dev/saltamt/internal/policy"
)

// ErrEngine marks failures of the simulation engine itself, as opposed to
// invalid input.
var ErrEngine = errors.New("engine failure")

// Options tune how a Calculator batches and caches engine calls.
type Options struct {
	MaxAxisCount int
	Concurrency  int
	CacheTTL     time.Duration
	Store        *Store // nil disables caching
}

// OptionsFromConfig derives calculator options from the application config.
// The store is left to the caller.
func OptionsFromConfig(cfg engine.Config) Options {
	return Options{
		MaxAxisCount: cfg.Engine.MaxAxisCount,
		Concurrency:  cfg.Engine.Concurrency,
		CacheTTL:     time.Duration(cfg.Cache.TTLHours) * time.Hour,
	}
}

// Calculator evaluates households under a baseline and a reform.
type Calculator struct {
	sim     engine.Simulator
	opts    Options
	metrics *Metrics
}

func NewCalculator(sim engine.Simulator, opts Options) *Calculator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Calculator{sim: sim, opts: opts, metrics: NewMetrics()}
}

// Engine returns the simulator the calculator calls.
func (c *Calculator) Engine() engine.Simulator { return c.sim }

// GetMetrics returns current performance metrics
func (c *Calculator) GetMetrics() Stats { return c.metrics.GetStats() }

// Input describes one household under one set of policy toggles. Outputs
// name variables from household.DefaultOutputs; empty means all of them.
type Input struct {
	Household household.Household `json:"household" yaml:"household"`
	Policy    policy.Config       `json:"policy" yaml:"policy"`
	Outputs   []string            `json:"outputs,omitempty" yaml:"outputs,omitempty"`
}

// Point is the result of a single household evaluation.
type Point struct {
	Year      int                `json:"year"`
	ReformKey string             `json:"reform_key"`
	Baseline  map[string]float64 `json:"baseline"`
	Reform    map[string]float64 `json:"reform"`
	Change    map[string]float64 `json:"change"`
}

// Sweep holds one value per axis point for every output.
type Sweep struct {
	Year      int                  `json:"year"`
	ReformKey string               `json:"reform_key"`
	Axis      household.Axis       `json:"axis"`
	X         []float64            `json:"x"`
	Baseline  map[string][]float64 `json:"baseline"`
	Reform    map[string][]float64 `json:"reform"`
	Change    map[string][]float64 `json:"change"`
}

// Grid holds 2-D results. Matrices are indexed [i][j] where i walks the X
// axis and j walks the Y axis.
type Grid struct {
	Year      int                    `json:"year"`
	ReformKey string                 `json:"reform_key"`
	X         household.Axis         `json:"x_axis"`
	Y         household.Axis         `json:"y_axis"`
	XPoints   []float64              `json:"x"`
	YPoints   []float64              `json:"y"`
	Baseline  map[string][][]float64 `json:"baseline"`
	Reform    map[string][][]float64 `json:"reform"`
	Change    map[string][][]float64 `json:"change"`
}

// Scenario is a named reform compared against a shared baseline.
type Scenario struct {
	Name   string        `json:"name" yaml:"name"`
	Policy policy.Config `json:"policy" yaml:"policy"`
}

// ScenarioResult is one scenario of a Comparison.
type ScenarioResult struct {
	Name      string             `json:"name"`
	ReformKey string             `json:"reform_key"`
	Values    map[string]float64 `json:"values"`
	Change    map[string]float64 `json:"change"`
}

// Comparison evaluates several scenarios for one household.
type Comparison struct {
	Year         int                `json:"year"`
	BaselineName policy.Baseline    `json:"baseline_name"`
	Baseline     map[string]float64 `json:"baseline"`
	Scenarios    []ScenarioResult   `json:"scenarios"`
}

type prepared struct {
	household household.Household
	policy    policy.Config
	baseline  policy.Reform
	reform    policy.Reform
	outputs   []household.Variable
}

func (c *Calculator) prepare(in Input) (prepared, error) {
	cfg := in.Policy.Normalize()
	reform, err := policy.Translate(cfg)
	if err != nil {
		return prepared{}, err
	}
	outputs, err := ResolveOutputs(in.Outputs)
	if err != nil {
		return prepared{}, err
	}
	h := in.Household
	if h.Year == 0 {
		h.Year = cfg.Year
	}
	return prepared{
		household: h.Normalize(),
		policy:    cfg,
		baseline:  policy.BaselineReform(cfg.Baseline, cfg.Year),
		reform:    reform,
		outputs:   outputs,
	}, nil
}

// ResolveOutputs maps output names to variables. No names selects
// household.DefaultOutputs.
func ResolveOutputs(names []string) ([]household.Variable, error) {
	if len(names) == 0 {
		return household.DefaultOutputs, nil
	}
	out := make([]household.Variable, 0, len(names))
	seen := map[string]bool{}
	for _, n := range names {
		v, ok := household.LookupOutput(n)
		if !ok {
			return nil, policy.ValidationError{Field: "outputs", Value: n, Message: "unknown output variable"}
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, v)
	}
	return out, nil
}

// Single evaluates the household once under the baseline and the reform.
func (c *Calculator) Single(ctx context.Context, in Input) (*Point, error) {
	p, err := c.prepare(in)
	if err != nil {
		return nil, err
	}
	res, err := c.run(ctx, p.household, p.outputs, nil, []policy.Reform{p.baseline, p.reform})
	if err != nil {
		return nil, err
	}
	base, reform := scalars(res[0]), scalars(res[1])
	return &Point{
		Year:      p.household.Year,
		ReformKey: p.policy.Key(),
		Baseline:  base,
		Reform:    reform,
		Change:    diffScalars(reform, base),
	}, nil
}

// Sweep varies one household variable along axis.
func (c *Calculator) Sweep(ctx context.Context, in Input, axis household.Axis) (*Sweep, error) {
	p, err := c.prepare(in)
	if err != nil {
		return nil, err
	}
	axis = withPeriod(axis, p.household.Year)
	res, err := c.run(ctx, p.household, p.outputs, []household.Axis{axis}, []policy.Reform{p.baseline, p.reform})
	if err != nil {
		return nil, err
	}
	return &Sweep{
		Year:      p.household.Year,
		ReformKey: p.policy.Key(),
		Axis:      axis,
		X:         axis.Points(),
		Baseline:  res[0],
		Reform:    res[1],
		Change:    diffSeries(res[1], res[0]),
	}, nil
}

// Grid varies two household variables at once.
func (c *Calculator) Grid(ctx context.Context, in Input, x, y household.Axis) (*Grid, error) {
	p, err := c.prepare(in)
	if err != nil {
		return nil, err
	}
	x, y = withPeriod(x, p.household.Year), withPeriod(y, p.household.Year)
	res, err := c.run(ctx, p.household, p.outputs, []household.Axis{x, y}, []policy.Reform{p.baseline, p.reform})
	if err != nil {
		return nil, err
	}
	base := reshapeAll(res[0], x.Count, y.Count)
	reform := reshapeAll(res[1], x.Count, y.Count)
	return &Grid{
		Year:      p.household.Year,
		ReformKey: p.policy.Key(),
		X:         x,
		Y:         y,
		XPoints:   x.Points(),
		YPoints:   y.Points(),
		Baseline:  base,
		Reform:    reform,
		Change:    reshapeAll(diffSeries(res[1], res[0]), x.Count, y.Count),
	}, nil
}

// Compare evaluates each scenario against baseline for one household.
// Scenario policies without a baseline or year inherit them.
func (c *Calculator) Compare(ctx context.Context, h household.Household, baseline policy.Baseline, scenarios []Scenario, outputs []string) (*Comparison, error) {
	if len(scenarios) == 0 {
		return nil, policy.ValidationError{Field: "scenarios", Message: "at least one scenario is required"}
	}
	if baseline == "" {
		baseline = policy.CurrentLaw
	}
	year, err := compareYear(h.Year, scenarios)
	if err != nil {
		return nil, err
	}
	h.Year = year
	vars, err := ResolveOutputs(outputs)
	if err != nil {
		return nil, err
	}

	reforms := []policy.Reform{policy.BaselineReform(baseline, h.Year)}
	keys := make([]string, len(scenarios))
	seen := map[string]bool{}
	for i, s := range scenarios {
		if s.Name == "" {
			return nil, policy.ValidationError{Field: "scenarios.name", Value: strconv.Itoa(i), Message: "scenario needs a name"}
		}
		if seen[s.Name] {
			return nil, policy.ValidationError{Field: "scenarios.name", Value: s.Name, Message: "duplicate scenario"}
		}
		seen[s.Name] = true
		cfg := s.Policy
		if cfg.Baseline == "" {
			cfg.Baseline = baseline
		}
		if cfg.Year == 0 {
			cfg.Year = h.Year
		}
		r, err := policy.Translate(cfg)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		reforms = append(reforms, r)
		keys[i] = cfg.Normalize().Key()
	}

	h = h.Normalize()
	res, err := c.run(ctx, h, vars, nil, reforms)
	if err != nil {
		return nil, err
	}
	base := scalars(res[0])
	out := &Comparison{Year: h.Year, BaselineName: baseline, Baseline: base}
	for i, s := range scenarios {
		vals := scalars(res[i+1])
		out.Scenarios = append(out.Scenarios, ScenarioResult{
			Name:      s.Name,
			ReformKey: keys[i],
			Values:    vals,
			Change:    diffScalars(vals, base),
		})
	}
	return out, nil
}

// compareYear is the single year a comparison runs in: the household's, or
// else the one the scenarios name, or else policy.DefaultYear. Scenarios for
// another year are rejected.
func compareYear(householdYear int, scenarios []Scenario) (int, error) {
	year := householdYear
	for _, s := range scenarios {
		y := s.Policy.Year
		switch {
		case y == 0 || y == year:
		case year == 0:
			year = y
		default:
			return 0, policy.ValidationError{
				Field:   "scenarios.year",
				Value:   strconv.Itoa(y),
				Message: fmt.Sprintf("scenario %s is for %d but the comparison runs in %d", s.Name, y, year),
			}
		}
	}
	if year == 0 {
		year = policy.DefaultYear
	}
	return year, nil
}

// run evaluates h under every reform, splitting axes into blocks of at most
// MaxAxisCount points. Each result maps output name to row-major values over
// the full axes.
func (c *Calculator) run(ctx context.Context, h household.Household, outputs []household.Variable, axes []household.Axis, reforms []policy.Reform) ([]map[string][]float64, error) {
	if _, err := household.Build(h, outputs, axes...); err != nil {
		return nil, err
	}

	dims := make([]int, len(axes))
	total := 1
	for i, a := range axes {
		dims[i] = a.Count
		total *= a.Count
	}
	results := make([]map[string][]float64, len(reforms))
	for i := range results {
		results[i] = make(map[string][]float64, len(outputs))
		for _, v := range outputs {
			results[i][v.Name] = make([]float64, total)
		}
	}

	blocks := planBlocks(axes, c.opts.MaxAxisCount)
	log.Debug().
		Str("engine", c.sim.Name()).
		Int("reforms", len(reforms)).
		Int("blocks", len(blocks)).
		Int("points", total).
		Msg("Evaluating household")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for ri, reform := range reforms {
		ri, reform := ri, reform
		for _, b := range blocks {
			b := b
			g.Go(func() error {
				s, err := household.Build(h, outputs, b.axes...)
				if err != nil {
					return err
				}
				res, err := c.calculate(gctx, engine.Request{Situation: s, Reform: reform, Year: h.Year})
				if err != nil {
					return err
				}
				return scatter(res, outputs, b, dims, results[ri])
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// scatter copies a block's values into their positions in the full arrays.
// Distinct blocks write disjoint indices.
func scatter(res *engine.Result, outputs []household.Variable, b block, dims []int, into map[string][]float64) error {
	size := 1
	for _, a := range b.axes {
		size *= a.Count
	}
	strides := rowMajorStrides(dims)
	order := engineAxisOrder(len(b.axes))
	for _, v := range outputs {
		vals, err := res.Values(v)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEngine, err)
		}
		if len(vals) != size {
			return fmt.Errorf("%w: %s returned %d values, expected %d", ErrEngine, v.Name, len(vals), size)
		}
		dst := into[v.Name]
		for k, val := range vals {
			dst[fullIndex(k, b, order, strides)] = val
		}
	}
	return nil
}

// engineAxisOrder lists axis indices from slowest to fastest varying in the
// engine's flattened output. The engine expands perpendicular axes with an
// xy-indexed meshgrid, so the first two axes swap places: for a grid the
// first axis varies fastest.
func engineAxisOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if n >= 2 {
		order[0], order[1] = 1, 0
	}
	return order
}

func rowMajorStrides(dims []int) []int {
	strides := make([]int, len(dims))
	s := 1
	for d := len(dims) - 1; d >= 0; d-- {
		strides[d] = s
		s *= dims[d]
	}
	return strides
}

// fullIndex maps engine index k within block b to the row-major index
// within the full axes. order is the engine's axis order, slowest first.
func fullIndex(k int, b block, order, strides []int) int {
	idx := 0
	rem := k
	for o := len(order) - 1; o >= 0; o-- {
		d := order[o]
		n := b.axes[d].Count
		idx += (rem%n + b.offsets[d]) * strides[d]
		rem /= n
	}
	return idx
}

func (c *Calculator) calculate(ctx context.Context, req engine.Request) (*engine.Result, error) {
	start := time.Now()
	var fingerprint string
	if c.opts.Store != nil {
		fp, err := req.Fingerprint(c.sim.Name())
		if err != nil {
			return nil, err
		}
		fingerprint = fp
		body, ok, err := c.opts.Store.CachedResult(ctx, fingerprint, c.opts.CacheTTL)
		if err != nil {
			log.Warn().Err(err).Msg("Cache lookup failed")
		} else if ok {
			c.metrics.RecordCacheHit()
			return &engine.Result{Raw: body, Year: req.Year}, nil
		}
	}

	res, err := c.sim.Calculate(ctx, req)
	if err != nil {
		c.metrics.RecordError()
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrEngine, err)
	}
	c.metrics.RecordRequest(time.Since(start))

	if c.opts.Store != nil {
		if err := c.opts.Store.PutResult(ctx, fingerprint, c.sim.Name(), req.Year, res.Raw); err != nil {
			log.Warn().Err(err).Msg("Cache write failed")
		}
	}
	return res, nil
}

func withPeriod(a household.Axis, year int) household.Axis {
	if a.Period == "" {
		a.Period = strconv.Itoa(year)
	}
	return a
}

func scalars(m map[string][]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func diffScalars(reform, base map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(reform))
	for k, v := range reform {
		out[k] = v - base[k]
	}
	return out
}

func diffSeries(reform, base map[string][]float64) map[string][]float64 {
	out := make(map[string][]float64, len(reform))
	for k, r := range reform {
		b := base[k]
		d := make([]float64, len(r))
		for i := range r {
			d[i] = r[i] - b[i]
		}
		out[k] = d
	}
	return out
}

// Reshape turns row-major flat values into rows x cols.
func Reshape(flat []float64, rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = flat[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return out
}

func reshapeAll(m map[string][]float64, rows, cols int) map[string][][]float64 {
	out := make(map[string][][]float64, len(m))
	for k, v := range m {
		out[k] = Reshape(v, rows, cols)
	}
	return out
}
