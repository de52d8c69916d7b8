package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/3cpo-dev/saltamt/internal/engine"
	"github.com/3cpo-dev/saltamt/internal/household"
	"github.com/3cpo-dev/saltamt/internal/policy"
)

// fakeEngine computes income_tax = 0.2*wages - 0.1*property taxes, minus
// 1000 when any reform is applied, for every point of the situation's axes.
type fakeEngine struct {
	calls int32
	fail  error
}

func (f *fakeEngine) Name() string { return "fake" }

func (f *fakeEngine) Calculate(ctx context.Context, req engine.Request) (*engine.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.fail != nil {
		return nil, f.fail
	}
	year := strconv.Itoa(req.Year)
	head := req.Situation.People[household.Head]
	base := map[string]float64{}
	for _, name := range []string{"employment_income", "real_estate_taxes"} {
		if v, ok := head[name].(map[string]interface{}); ok {
			base[name] = v[year].(float64)
		}
	}

	at := func(set map[string]float64) map[string]float64 {
		q := map[string]float64{}
		for k, v := range base {
			q[k] = v
		}
		for k, v := range set {
			q[k] = v
		}
		return q
	}
	// Perpendicular axes come back meshgrid-ordered: the first axis varies
	// fastest.
	var points []map[string]float64
	switch axes := req.Situation.Axes; len(axes) {
	case 0:
		points = append(points, base)
	case 1:
		a := axes[0][0]
		for _, x := range a.Points() {
			points = append(points, at(map[string]float64{a.Name: x}))
		}
	case 2:
		a, b := axes[0][0], axes[1][0]
		for _, y := range b.Points() {
			for _, x := range a.Points() {
				points = append(points, at(map[string]float64{a.Name: x, b.Name: y}))
			}
		}
	default:
		return nil, fmt.Errorf("fake engine supports at most 2 axes, got %d", len(axes))
	}

	compute := func(p map[string]float64, name string) float64 {
		tax := 0.2*p["employment_income"] - 0.1*p["real_estate_taxes"]
		if len(req.Reform) > 0 {
			tax -= 1000
		}
		switch name {
		case "income_tax":
			return tax
		case "household_net_income":
			return p["employment_income"] - tax
		}
		return 0
	}
	fill := func(ent household.Entity) map[string]interface{} {
		out := map[string]interface{}{}
		for name, v := range ent {
			if m, ok := v.(map[string]interface{}); !ok || m[year] != nil {
				continue
			}
			if len(req.Situation.Axes) == 0 {
				out[name] = map[string]interface{}{year: compute(points[0], name)}
				continue
			}
			vals := make([]float64, len(points))
			for i, p := range points {
				vals[i] = compute(p, name)
			}
			out[name] = map[string]interface{}{year: vals}
		}
		return out
	}
	raw, err := json.Marshal(map[string]interface{}{
		"tax_units":  map[string]interface{}{household.TaxUnitName: fill(req.Situation.TaxUnits[household.TaxUnitName])},
		"households": map[string]interface{}{household.HouseholdName: fill(req.Situation.Households[household.HouseholdName])},
	})
	if err != nil {
		return nil, err
	}
	return &engine.Result{Raw: raw, Year: req.Year}, nil
}

func testInput() Input {
	return Input{
		Household: household.Household{StateCode: "NY", EmploymentIncome: 100_000, RealEstateTaxes: 10_000},
		Policy:    policy.Config{SALTMode: policy.SALTUncapped},
		Outputs:   []string{"income_tax", "household_net_income"},
	}
}

func TestSingle(t *testing.T) {
	f := &fakeEngine{}
	c := NewCalculator(f, Options{MaxAxisCount: 10})
	p, err := c.Single(context.Background(), testInput())
	if err != nil {
		t.Fatalf("single: %v", err)
	}
	if p.Baseline["income_tax"] != 19_000 || p.Reform["income_tax"] != 18_000 {
		t.Fatalf("unexpected taxes %v / %v", p.Baseline, p.Reform)
	}
	if p.Change["income_tax"] != -1000 || p.Change["household_net_income"] != 1000 {
		t.Fatalf("unexpected change %v", p.Change)
	}
	if p.Year != 2026 || p.ReformKey == "" {
		t.Fatalf("year %d key %q", p.Year, p.ReformKey)
	}
	if f.calls != 2 {
		t.Fatalf("expected 2 engine calls, got %d", f.calls)
	}
	if s := c.GetMetrics(); s.Requests != 2 || s.Errors != 0 {
		t.Fatalf("metrics %+v", s)
	}
}

func TestSweepChunksLongAxes(t *testing.T) {
	f := &fakeEngine{}
	c := NewCalculator(f, Options{MaxAxisCount: 4, Concurrency: 3})
	axis := household.Axis{Name: "employment_income", Min: 0, Max: 200_000, Count: 11}
	s, err := c.Sweep(context.Background(), testInput(), axis)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	// 11 points in blocks of 4 is 3 calls, for baseline and reform.
	if f.calls != 6 {
		t.Fatalf("expected 6 engine calls, got %d", f.calls)
	}
	if len(s.X) != 11 || s.Axis.Period != "2026" {
		t.Fatalf("unexpected axis %+v", s.Axis)
	}
	for i, x := range s.X {
		want := 0.2*x - 1000
		if math.Abs(s.Baseline["income_tax"][i]-want) > 1e-6 {
			t.Fatalf("baseline[%d] = %v, want %v", i, s.Baseline["income_tax"][i], want)
		}
		if s.Change["income_tax"][i] != -1000 {
			t.Fatalf("change[%d] = %v", i, s.Change["income_tax"][i])
		}
	}
}

func TestGridIsRowMajorAcrossBlocks(t *testing.T) {
	f := &fakeEngine{}
	c := NewCalculator(f, Options{MaxAxisCount: 2})
	x := household.Axis{Name: "employment_income", Min: 0, Max: 400_000, Count: 5}
	y := household.Axis{Name: "real_estate_taxes", Min: 0, Max: 20_000, Count: 3}
	g, err := c.Grid(context.Background(), testInput(), x, y)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	m := g.Baseline["income_tax"]
	if len(m) != 5 || len(m[0]) != 3 {
		t.Fatalf("shape %dx%d", len(m), len(m[0]))
	}
	for i, xv := range g.XPoints {
		for j, yv := range g.YPoints {
			want := 0.2*xv - 0.1*yv
			if math.Abs(m[i][j]-want) > 1e-6 {
				t.Fatalf("baseline[%d][%d] = %v, want %v", i, j, m[i][j], want)
			}
			if g.Change["income_tax"][i][j] != -1000 {
				t.Fatalf("change[%d][%d] = %v", i, j, g.Change["income_tax"][i][j])
			}
		}
	}
	// x splits 2+2+1 and y splits 2+1: 6 blocks per reform.
	if f.calls != 12 {
		t.Fatalf("expected 12 engine calls, got %d", f.calls)
	}
}

func TestGridSingleBlockOrder(t *testing.T) {
	f := &fakeEngine{}
	c := NewCalculator(f, Options{MaxAxisCount: 100})
	x := household.Axis{Name: "employment_income", Min: 0, Max: 200_000, Count: 3}
	y := household.Axis{Name: "real_estate_taxes", Min: 0, Max: 20_000, Count: 2}
	g, err := c.Grid(context.Background(), testInput(), x, y)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	if f.calls != 2 {
		t.Fatalf("expected one call per scenario, got %d", f.calls)
	}
	want := [][]float64{
		{0, -2000},
		{20_000, 18_000},
		{40_000, 38_000},
	}
	m := g.Baseline["income_tax"]
	for i := range want {
		for j := range want[i] {
			if math.Abs(m[i][j]-want[i][j]) > 1e-6 {
				t.Fatalf("baseline[%d][%d] at (x=%v, y=%v) = %v, want %v", i, j, g.XPoints[i], g.YPoints[j], m[i][j], want[i][j])
			}
		}
	}
}

func TestFullIndexMeshgridOrder(t *testing.T) {
	b := block{
		axes:    []household.Axis{{Count: 2}, {Count: 2}},
		offsets: []int{2, 1},
	}
	dims := []int{4, 3}
	order := engineAxisOrder(2)
	strides := rowMajorStrides(dims)
	// Engine index 1 is the second x point at the first y point.
	if got := fullIndex(1, b, order, strides); got != 3*3+1 {
		t.Fatalf("fullIndex(1) = %d", got)
	}
	if got := fullIndex(2, b, order, strides); got != 2*3+2 {
		t.Fatalf("fullIndex(2) = %d", got)
	}
}

func TestCompare(t *testing.T) {
	c := NewCalculator(&fakeEngine{}, Options{})
	h := household.Household{StateCode: "CA", EmploymentIncome: 50_000}
	cmp, err := c.Compare(context.Background(), h, policy.CurrentLaw, []Scenario{
		{Name: "repeal", Policy: policy.Config{SALTMode: policy.SALTRepealed}},
		{Name: "amt", Policy: policy.Config{AMTRepeal: true}},
	}, []string{"income_tax"})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp.Baseline["income_tax"] != 10_000 || len(cmp.Scenarios) != 2 {
		t.Fatalf("unexpected comparison %+v", cmp)
	}
	if cmp.Scenarios[1].Name != "amt" || cmp.Scenarios[1].Change["income_tax"] != -1000 {
		t.Fatalf("unexpected scenario %+v", cmp.Scenarios[1])
	}

	_, err = c.Compare(context.Background(), h, policy.CurrentLaw, []Scenario{
		{Name: "a", Policy: policy.Config{}}, {Name: "a", Policy: policy.Config{}},
	}, nil)
	var ve policy.ValidationError
	if !errors.As(err, &ve) || ve.Field != "scenarios.name" {
		t.Fatalf("expected duplicate scenario error, got %v", err)
	}
	if _, err := c.Compare(context.Background(), h, policy.CurrentLaw, nil, nil); !errors.As(err, &ve) {
		t.Fatalf("expected error for no scenarios, got %v", err)
	}
}

func TestCompareTakesScenarioYear(t *testing.T) {
	c := NewCalculator(&fakeEngine{}, Options{})
	h := household.Household{StateCode: "CA", EmploymentIncome: 50_000}
	cmp, err := c.Compare(context.Background(), h, policy.CurrentLaw, []Scenario{
		{Name: "repeal", Policy: policy.Config{SALTMode: policy.SALTRepealed, Year: 2028}},
		{Name: "amt", Policy: policy.Config{AMTRepeal: true}},
	}, []string{"income_tax"})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp.Year != 2028 {
		t.Fatalf("household should run in the scenario year, got %d", cmp.Year)
	}
	if cmp.Scenarios[0].Change["income_tax"] != -1000 {
		t.Fatalf("reform had no effect: %+v", cmp.Scenarios[0])
	}

	var ve policy.ValidationError
	_, err = c.Compare(context.Background(), h, policy.CurrentLaw, []Scenario{
		{Name: "a", Policy: policy.Config{Year: 2027}},
		{Name: "b", Policy: policy.Config{Year: 2028}},
	}, nil)
	if !errors.As(err, &ve) || ve.Field != "scenarios.year" {
		t.Fatalf("expected year mismatch error, got %v", err)
	}
	h.Year = 2026
	_, err = c.Compare(context.Background(), h, policy.CurrentLaw, []Scenario{
		{Name: "a", Policy: policy.Config{Year: 2028}},
	}, nil)
	if !errors.As(err, &ve) || ve.Value != "2028" {
		t.Fatalf("expected household year mismatch error, got %v", err)
	}
}

func TestEngineFailureIsWrapped(t *testing.T) {
	f := &fakeEngine{fail: &engine.StatusError{Engine: "fake", Code: 500, Message: "boom"}}
	c := NewCalculator(f, Options{})
	_, err := c.Single(context.Background(), testInput())
	if !errors.Is(err, ErrEngine) {
		t.Fatalf("expected ErrEngine, got %v", err)
	}
	var se *engine.StatusError
	if !errors.As(err, &se) || se.Code != 500 {
		t.Fatalf("status error lost: %v", err)
	}
	if c.GetMetrics().Errors == 0 {
		t.Fatalf("error not recorded")
	}
}

func TestValidationErrorsSkipEngine(t *testing.T) {
	f := &fakeEngine{}
	c := NewCalculator(f, Options{})
	in := testInput()
	in.Outputs = []string{"not_a_variable"}
	var ve policy.ValidationError
	if _, err := c.Single(context.Background(), in); !errors.As(err, &ve) || ve.Field != "outputs" {
		t.Fatalf("expected outputs error, got %v", err)
	}
	in = testInput()
	in.Household.StateCode = "ZZ"
	if _, err := c.Single(context.Background(), in); !errors.As(err, &ve) {
		t.Fatalf("expected state error, got %v", err)
	}
	if f.calls != 0 {
		t.Fatalf("engine called for invalid input")
	}
}

func TestCalculatorCachesResults(t *testing.T) {
	store, err := NewStore(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	f := &fakeEngine{}
	c := NewCalculator(f, Options{Store: store})
	first, err := c.Single(context.Background(), testInput())
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.Single(context.Background(), testInput())
	if err != nil {
		t.Fatal(err)
	}
	if f.calls != 2 {
		t.Fatalf("expected cached second run, got %d calls", f.calls)
	}
	if second.Reform["income_tax"] != first.Reform["income_tax"] {
		t.Fatalf("cached result differs")
	}
	if c.GetMetrics().CacheHits != 2 {
		t.Fatalf("cache hits %d", c.GetMetrics().CacheHits)
	}
}

func TestReshape(t *testing.T) {
	m := Reshape([]float64{1, 2, 3, 4, 5, 6}, 2, 3)
	if m[0][2] != 3 || m[1][0] != 4 || len(m[1]) != 3 {
		t.Fatalf("unexpected reshape %v", m)
	}
}
