package household

import (
	"fmt"
	"strconv"

	"github.com/3cpo-dev/saltamt/internal/policy"
)

// Axis instructs the engine to evaluate a variable over count evenly spaced
// values between min and max in one batched call.
type Axis struct {
	Name   string  `json:"name" yaml:"name"`
	Min    float64 `json:"min" yaml:"min"`
	Max    float64 `json:"max" yaml:"max"`
	Count  int     `json:"count" yaml:"count"`
	Period string  `json:"period,omitempty" yaml:"period,omitempty"`
}

// Limits on sweep sizes accepted from callers.
const (
	MaxAxisPoints = 2001
	MaxGridPoints = 40_000
	MaxAxes       = 2
)

// Sweepable lists the head-of-household variables an axis may vary.
var Sweepable = map[string]bool{
	"employment_income":            true,
	"qualified_dividend_income":    true,
	"long_term_capital_gains":      true,
	"short_term_capital_gains":     true,
	"real_estate_taxes":            true,
	"deductible_mortgage_interest": true,
	"charitable_cash_donations":    true,
}

// Validate checks the axis bounds and name.
func (a Axis) Validate() error {
	if !Sweepable[a.Name] {
		return policy.ValidationError{Field: "axis.name", Value: a.Name, Message: "variable cannot be swept"}
	}
	if a.Count < 1 || a.Count > MaxAxisPoints {
		return policy.ValidationError{Field: "axis.count", Value: strconv.Itoa(a.Count), Message: fmt.Sprintf("must be between 1 and %d", MaxAxisPoints)}
	}
	if a.Max < a.Min {
		return policy.ValidationError{Field: "axis.max", Value: fmt.Sprintf("%g", a.Max), Message: "must not be below min"}
	}
	return nil
}

// Points returns the values the engine evaluates, matching a linspace over
// [min, max] with count points.
func (a Axis) Points() []float64 {
	if a.Count <= 0 {
		return nil
	}
	out := make([]float64, a.Count)
	if a.Count == 1 {
		out[0] = a.Min
		return out
	}
	step := (a.Max - a.Min) / float64(a.Count-1)
	for i := range out {
		out[i] = a.Min + float64(i)*step
	}
	out[a.Count-1] = a.Max
	return out
}

// ValidateAxes checks a set of axes for one situation.
func ValidateAxes(axes []Axis) error {
	if len(axes) > MaxAxes {
		return policy.ValidationError{Field: "axes", Value: strconv.Itoa(len(axes)), Message: fmt.Sprintf("at most %d axes", MaxAxes)}
	}
	total := 1
	seen := map[string]bool{}
	for _, a := range axes {
		if err := a.Validate(); err != nil {
			return err
		}
		if seen[a.Name] {
			return policy.ValidationError{Field: "axes", Value: a.Name, Message: "variable swept twice"}
		}
		seen[a.Name] = true
		total *= a.Count
	}
	if total > MaxGridPoints {
		return policy.ValidationError{Field: "axes", Value: strconv.Itoa(total), Message: fmt.Sprintf("grid exceeds %d points", MaxGridPoints)}
	}
	return nil
}

// SplitAxis divides a into contiguous sub-axes of at most size points each.
// The sub-axes' points, concatenated in order, are a's points.
func SplitAxis(a Axis, size int) []Axis {
	if size <= 0 || a.Count <= size {
		return []Axis{a}
	}
	pts := a.Points()
	var out []Axis
	for start := 0; start < len(pts); start += size {
		end := start + size
		if end > len(pts) {
			end = len(pts)
		}
		sub := a
		sub.Min = pts[start]
		sub.Max = pts[end-1]
		sub.Count = end - start
		out = append(out, sub)
	}
	return out
}
