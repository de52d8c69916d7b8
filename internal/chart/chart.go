// Package chart reshapes calculator results into chart and table ready
// structures.
package chart

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/3cpo-dev/saltamt/internal/core"
)

// Default color palette for chart series.
var defaultColors = []string{
	"#2C6496", "#D55E00", "#39A96B", "#8B5CF6", "#F59E0B",
	"#06B6D4", "#EC4899", "#616161", "#84CC16", "#EF4444",
}

// Which selects the baseline, the reform or their difference.
type Which string

const (
	Baseline Which = "baseline"
	Reform   Which = "reform"
	Change   Which = "change"
)

// Point is one x/y pair of a line series.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Series struct {
	Name  string  `json:"name"`
	Label string  `json:"label"`
	Color string  `json:"color"`
	Data  []Point `json:"data"`
}

type Line struct {
	Title  string   `json:"title"`
	XAxis  string   `json:"x_axis"`
	YAxis  string   `json:"y_axis"`
	Series []Series `json:"series"`
}

// HeatmapData is a z matrix over x and y, with z[i][j] at (x[i], y[j]).
type HeatmapData struct {
	Title string      `json:"title"`
	XAxis string      `json:"x_axis"`
	YAxis string      `json:"y_axis"`
	X     []float64   `json:"x"`
	Y     []float64   `json:"y"`
	Z     [][]float64 `json:"z"`
	Min   float64     `json:"min"`
	Max   float64     `json:"max"`
}

// Row is one line of a comparison table.
type Row struct {
	Variable string  `json:"variable"`
	Label    string  `json:"label"`
	Baseline float64 `json:"baseline"`
	Reform   float64 `json:"reform"`
	Change   float64 `json:"change"`
}

var labels = map[string]string{
	"income_tax":                         "Federal income tax",
	"regular_tax_before_credits":         "Regular tax before credits",
	"alternative_minimum_tax":            "Alternative minimum tax",
	"salt_deduction":                     "SALT deduction",
	"taxable_income":                     "Taxable income",
	"itemized_taxable_income_deductions": "Itemized deductions",
	"standard_deduction":                 "Standard deduction",
	"household_net_income":               "Household net income",
	"employment_income":                  "Employment income",
	"qualified_dividend_income":          "Qualified dividends",
	"long_term_capital_gains":            "Long-term capital gains",
	"short_term_capital_gains":           "Short-term capital gains",
	"real_estate_taxes":                  "Real estate taxes",
	"deductible_mortgage_interest":       "Mortgage interest",
	"charitable_cash_donations":          "Charitable donations",
}

// Label returns a display name for an engine variable.
func Label(name string) string {
	if l, ok := labels[name]; ok {
		return l
	}
	s := strings.ReplaceAll(name, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func pick(which Which, base, reform, change map[string][]float64) (map[string][]float64, error) {
	switch which {
	case Baseline:
		return base, nil
	case Reform:
		return reform, nil
	case Change, "":
		return change, nil
	}
	return nil, fmt.Errorf("unknown series %q", which)
}

// LineChart plots variables against the sweep axis. Each variable yields a
// baseline and a reform series unless which selects only one of them.
func LineChart(s *core.Sweep, variables []string, which ...Which) (*Line, error) {
	if s == nil {
		return nil, fmt.Errorf("no sweep")
	}
	if len(variables) == 0 {
		for name := range s.Baseline {
			variables = append(variables, name)
		}
		sort.Strings(variables)
	}
	if len(which) == 0 {
		which = []Which{Baseline, Reform}
	}

	line := &Line{
		Title: fmt.Sprintf("Tax outcomes by %s", strings.ToLower(Label(s.Axis.Name))),
		XAxis: Label(s.Axis.Name),
		YAxis: "Amount ($)",
	}
	for _, name := range variables {
		for _, w := range which {
			src, err := pick(w, s.Baseline, s.Reform, s.Change)
			if err != nil {
				return nil, err
			}
			vals, ok := src[name]
			if !ok {
				return nil, fmt.Errorf("sweep has no %s", name)
			}
			data := make([]Point, len(s.X))
			for i, x := range s.X {
				data[i] = Point{X: x, Y: round2(vals[i])}
			}
			line.Series = append(line.Series, Series{
				Name:  name + "." + string(w),
				Label: fmt.Sprintf("%s (%s)", Label(name), w),
				Color: defaultColors[len(line.Series)%len(defaultColors)],
				Data:  data,
			})
		}
	}
	return line, nil
}

// Heatmap renders one variable of a grid.
func Heatmap(g *core.Grid, variable string, which Which) (*HeatmapData, error) {
	if g == nil {
		return nil, fmt.Errorf("no grid")
	}
	var src map[string][][]float64
	switch which {
	case Baseline:
		src = g.Baseline
	case Reform:
		src = g.Reform
	case Change, "":
		which = Change
		src = g.Change
	default:
		return nil, fmt.Errorf("unknown series %q", which)
	}
	z, ok := src[variable]
	if !ok {
		return nil, fmt.Errorf("grid has no %s", variable)
	}

	h := &HeatmapData{
		Title: fmt.Sprintf("%s (%s)", Label(variable), which),
		XAxis: Label(g.X.Name),
		YAxis: Label(g.Y.Name),
		X:     g.XPoints,
		Y:     g.YPoints,
		Z:     make([][]float64, len(z)),
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
	}
	for i, row := range z {
		h.Z[i] = make([]float64, len(row))
		for j, v := range row {
			h.Z[i][j] = round2(v)
			h.Min = math.Min(h.Min, v)
			h.Max = math.Max(h.Max, v)
		}
	}
	if len(z) == 0 {
		h.Min, h.Max = 0, 0
	}
	return h, nil
}

// MarginalRates returns the finite-difference slope dy/dx between
// consecutive points, placed at the left point of each interval. Intervals
// with no width are skipped.
func MarginalRates(x, y []float64) ([]Point, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("x has %d points, y has %d", len(x), len(y))
	}
	var out []Point
	for i := 0; i+1 < len(x); i++ {
		dx := x[i+1] - x[i]
		if dx == 0 {
			continue
		}
		out = append(out, Point{X: x[i], Y: (y[i+1] - y[i]) / dx})
	}
	return out, nil
}

// Table lists each variable of a single evaluation in a stable order: the
// default outputs first, then anything else alphabetically.
func Table(p *core.Point) []Row {
	if p == nil {
		return nil
	}
	names := orderedNames(p.Baseline)
	rows := make([]Row, 0, len(names))
	for _, n := range names {
		rows = append(rows, Row{
			Variable: n,
			Label:    Label(n),
			Baseline: p.Baseline[n],
			Reform:   p.Reform[n],
			Change:   p.Change[n],
		})
	}
	return rows
}

// ScenarioTable lists one variable across every scenario of a comparison.
func ScenarioTable(c *core.Comparison, variable string) []Row {
	if c == nil {
		return nil
	}
	rows := make([]Row, 0, len(c.Scenarios))
	for _, s := range c.Scenarios {
		rows = append(rows, Row{
			Variable: s.Name,
			Label:    s.ReformKey,
			Baseline: c.Baseline[variable],
			Reform:   s.Values[variable],
			Change:   s.Change[variable],
		})
	}
	return rows
}

var order = map[string]int{
	"income_tax":                         0,
	"regular_tax_before_credits":         1,
	"alternative_minimum_tax":            2,
	"salt_deduction":                     3,
	"taxable_income":                     4,
	"itemized_taxable_income_deductions": 5,
	"standard_deduction":                 6,
	"household_net_income":               7,
}

func orderedNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool {
		oi, iok := order[names[i]]
		oj, jok := order[names[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		}
		return names[i] < names[j]
	})
	return names
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
