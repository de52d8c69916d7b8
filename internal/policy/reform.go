package policy

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

var inf = math.Inf(1)

// Engine parameter paths touched by the translation layer.
const (
	saltCapPath       = "gov.irs.deductions.itemized.salt_and_real_estate.cap."
	saltPhaseOutPath  = "gov.contrib.salt_phase_out."
	amtExemptionPath  = "gov.irs.income.amt.exemption.amount."
	amtPhaseOutPath   = "gov.irs.income.amt.exemption.phase_out.start."
	amtPhaseOutRateP  = "gov.irs.income.amt.exemption.phase_out.rate"
	periodEndOfWindow = "2100-12-31"
)

// Reform maps a dotted engine parameter path to period -> value overrides.
// Values are float64 or bool.
type Reform map[string]map[string]interface{}

// Period returns the engine period string covering year onward.
func Period(year int) string {
	return fmt.Sprintf("%d-01-01.%s", year, periodEndOfWindow)
}

// Set overrides path for period.
func (r Reform) Set(path, period string, v interface{}) {
	if r[path] == nil {
		r[path] = map[string]interface{}{}
	}
	r[path][period] = v
}

// Get returns the value of path for period.
func (r Reform) Get(path, period string) (interface{}, bool) {
	p, ok := r[path]
	if !ok {
		return nil, false
	}
	v, ok := p[period]
	return v, ok
}

// Merge copies every override from other into r; other wins on conflicts.
func (r Reform) Merge(other Reform) {
	for path, periods := range other {
		for period, v := range periods {
			r.Set(path, period, v)
		}
	}
}

// Paths returns the overridden parameter paths in sorted order.
func (r Reform) Paths() []string {
	out := make([]string, 0, len(r))
	for p := range r {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON writes infinite amounts as the string "Infinity", which the
// engine parses as a float.
func (r Reform) MarshalJSON() ([]byte, error) {
	plain := make(map[string]map[string]interface{}, len(r))
	for path, periods := range r {
		out := make(map[string]interface{}, len(periods))
		for period, v := range periods {
			if f, ok := v.(float64); ok && math.IsInf(f, 0) {
				if f > 0 {
					out[period] = "Infinity"
				} else {
					out[period] = "-Infinity"
				}
				continue
			}
			out[period] = v
		}
		plain[path] = out
	}
	return json.Marshal(plain)
}

// UnmarshalJSON accepts the encoding produced by MarshalJSON.
func (r *Reform) UnmarshalJSON(data []byte) error {
	var plain map[string]map[string]interface{}
	if err := json.Unmarshal(data, &plain); err != nil {
		return err
	}
	out := make(Reform, len(plain))
	for path, periods := range plain {
		for period, v := range periods {
			switch s := v.(type) {
			case string:
				switch s {
				case "Infinity":
					v = inf
				case "-Infinity":
					v = math.Inf(-1)
				default:
					return fmt.Errorf("parameter %s: unexpected value %q", path, s)
				}
			}
			out.Set(path, period, v)
		}
	}
	*r = out
	return nil
}

// Translate maps the policy toggles in c onto engine parameter overrides.
func Translate(c Config) (Reform, error) {
	c = c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	period := Period(c.Year)
	r := Reform{}

	// Values the reform starts from: TCJA amounts when the reform carries
	// the extension, pre-TCJA amounts otherwise.
	start := Defaults(CurrentLaw)
	if c.TCJAExtended() {
		r.Merge(TCJAExtension(c.Year))
		start = Defaults(CurrentPolicy)
	}

	translateSALT(r, c, start, period)
	translateAMT(r, c, start, period)
	return r, nil
}

// BaselineReform returns the overrides that turn the engine's default
// (current law) into baseline b. Current law needs none.
func BaselineReform(b Baseline, year int) Reform {
	if year == 0 {
		year = DefaultYear
	}
	if b == CurrentPolicy {
		return TCJAExtension(year)
	}
	return nil
}

func translateSALT(r Reform, c Config, start Parameters, period string) {
	switch c.SALTMode {
	case SALTRepealed:
		setAll(r, saltCapPath, period, 0)
	case SALTUncapped:
		setAll(r, saltCapPath, period, inf)
	case SALTCap:
		for status, v := range saltCaps(c.SALTCap, c.SALTMarriageBonus) {
			r.Set(saltCapPath+string(status), period, v)
		}
	case SALTCurrent:
		if c.SALTMarriageBonus && !math.IsInf(start.SALTCap, 1) {
			for status, v := range saltCaps(start.SALTCap, true) {
				r.Set(saltCapPath+string(status), period, v)
			}
		}
	}

	if po := c.SALTPhaseOut; po.Enabled && c.SALTMode != SALTRepealed {
		r.Set(saltPhaseOutPath+"in_effect", period, true)
		for _, b := range []struct {
			name      string
			threshold float64
		}{{"joint", po.ThresholdJoint}, {"other", po.ThresholdOther}} {
			r.Set(saltPhaseOutPath+"rate."+b.name+"[1].threshold", period, b.threshold)
			r.Set(saltPhaseOutPath+"rate."+b.name+"[1].rate", period, po.Rate)
		}
	}
}

// saltCaps spreads a single-filer cap across filing statuses. The marriage
// bonus doubles the joint cap and gives separate filers the full cap.
func saltCaps(amount float64, marriageBonus bool) map[FilingStatus]float64 {
	joint, separate := amount, amount/2
	if marriageBonus {
		joint, separate = amount*2, amount
	}
	return map[FilingStatus]float64{
		Single:          amount,
		HeadOfHousehold: amount,
		SurvivingSpouse: amount,
		Joint:           joint,
		Separate:        separate,
	}
}

func translateAMT(r Reform, c Config, start Parameters, period string) {
	if c.AMTRepeal {
		setAll(r, amtExemptionPath, period, inf)
		return
	}
	elim := c.AMTEliminateMarriagePenalty
	for status, v := range amtAmounts(c.AMTExemption, c.AMTExemptionJoint, start.AMTExemption, elim) {
		r.Set(amtExemptionPath+string(status), period, v)
	}
	for status, v := range amtAmounts(c.AMTPhaseOut, c.AMTPhaseOutJoint, start.AMTPhaseOutStart, elim) {
		r.Set(amtPhaseOutPath+string(status), period, v)
	}
	if c.AMTPhaseOutRate > 0 {
		r.Set(amtPhaseOutRateP, period, c.AMTPhaseOutRate)
	}
}

// amtAmounts resolves single/joint AMT amounts into per-status values, or nil
// when nothing changes. Eliminating the marriage penalty pins joint to twice
// the single amount and separate to the single amount; otherwise a missing
// joint amount keeps the starting joint/single ratio and separate is half of
// joint.
func amtAmounts(single, joint float64, start map[FilingStatus]float64, elim bool) map[FilingStatus]float64 {
	if single == 0 && joint == 0 && !elim {
		return nil
	}
	if single == 0 {
		single = start[Single]
	}
	switch {
	case elim:
		joint = 2 * single
	case joint == 0:
		joint = single * start[Joint] / start[Single]
	}
	separate := joint / 2
	if elim {
		separate = single
	}
	return map[FilingStatus]float64{
		Single:          single,
		HeadOfHousehold: single,
		Joint:           joint,
		SurvivingSpouse: joint,
		Separate:        separate,
	}
}

func setAll(r Reform, prefix, period string, v float64) {
	for _, s := range FilingStatuses {
		r.Set(prefix+string(s), period, v)
	}
}
