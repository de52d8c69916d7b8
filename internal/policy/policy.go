package policy

import (
	"fmt"
	"strconv"
	"strings"
)

// FilingStatus mirrors the engine's filing_status enum.
type FilingStatus string

const (
	Single          FilingStatus = "SINGLE"
	Joint           FilingStatus = "JOINT"
	Separate        FilingStatus = "SEPARATE"
	HeadOfHousehold FilingStatus = "HEAD_OF_HOUSEHOLD"
	SurvivingSpouse FilingStatus = "SURVIVING_SPOUSE"
)

// FilingStatuses lists every status in the order parameters are emitted.
var FilingStatuses = []FilingStatus{Single, Joint, Separate, HeadOfHousehold, SurvivingSpouse}

// Baseline selects the policy a reform is measured against.
type Baseline string

const (
	// CurrentLaw lets the TCJA individual provisions expire after 2025.
	CurrentLaw Baseline = "current_law"
	// CurrentPolicy extends the TCJA individual provisions.
	CurrentPolicy Baseline = "current_policy"
)

// SALTMode selects how the SALT cap is reformed.
type SALTMode string

const (
	SALTCurrent  SALTMode = "current"
	SALTCap      SALTMode = "cap"
	SALTUncapped SALTMode = "uncapped"
	SALTRepealed SALTMode = "repealed"
)

// PhaseOut phases the SALT deduction out above an income threshold.
type PhaseOut struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	Rate           float64 `json:"rate" yaml:"rate"`
	ThresholdJoint float64 `json:"threshold_joint" yaml:"threshold_joint"`
	ThresholdOther float64 `json:"threshold_other" yaml:"threshold_other"`
}

// Config is the small set of human policy toggles a user picks. Zero values
// for AMT amounts mean "keep the baseline value".
type Config struct {
	Baseline Baseline `json:"baseline" yaml:"baseline"`
	Year     int      `json:"year" yaml:"year"`

	SALTMode          SALTMode `json:"salt_mode" yaml:"salt_mode"`
	SALTCap           float64  `json:"salt_cap" yaml:"salt_cap"`
	SALTMarriageBonus bool     `json:"salt_marriage_bonus" yaml:"salt_marriage_bonus"`
	SALTPhaseOut      PhaseOut `json:"salt_phase_out" yaml:"salt_phase_out"`

	AMTExemption                float64 `json:"amt_exemption" yaml:"amt_exemption"`
	AMTExemptionJoint           float64 `json:"amt_exemption_joint" yaml:"amt_exemption_joint"`
	AMTPhaseOut                 float64 `json:"amt_phase_out" yaml:"amt_phase_out"`
	AMTPhaseOutJoint            float64 `json:"amt_phase_out_joint" yaml:"amt_phase_out_joint"`
	AMTPhaseOutRate             float64 `json:"amt_phase_out_rate" yaml:"amt_phase_out_rate"`
	AMTEliminateMarriagePenalty bool    `json:"amt_eliminate_marriage_penalty" yaml:"amt_eliminate_marriage_penalty"`
	AMTRepeal                   bool    `json:"amt_repeal" yaml:"amt_repeal"`

	ExtendTCJA bool `json:"extend_tcja" yaml:"extend_tcja"`
}

// DefaultYear is the first year reforms take effect when none is given.
const DefaultYear = 2026

// Normalize fills empty fields with defaults.
func (c Config) Normalize() Config {
	if c.Baseline == "" {
		c.Baseline = CurrentLaw
	}
	if c.Year == 0 {
		c.Year = DefaultYear
	}
	if c.SALTMode == "" {
		c.SALTMode = SALTCurrent
	}
	return c
}

// TCJAExtended reports whether the reform scenario carries the TCJA extension.
func (c Config) TCJAExtended() bool {
	return c.ExtendTCJA || c.Baseline == CurrentPolicy
}

// Key returns a stable slug identifying the reform. Precomputed impact tables
// are keyed by it.
func (c Config) Key() string {
	c = c.Normalize()
	parts := []string{string(c.Baseline)}
	switch c.SALTMode {
	case SALTCap:
		parts = append(parts, "salt_cap_"+num(c.SALTCap))
	default:
		parts = append(parts, "salt_"+string(c.SALTMode))
	}
	// Toggles Translate ignores stay out of the key.
	if c.SALTMarriageBonus && (c.SALTMode == SALTCap || c.SALTMode == SALTCurrent) {
		parts = append(parts, "mb")
	}
	if c.SALTPhaseOut.Enabled && c.SALTMode != SALTRepealed {
		parts = append(parts, fmt.Sprintf("po_%s_%s_%s", num(c.SALTPhaseOut.Rate), num(c.SALTPhaseOut.ThresholdJoint), num(c.SALTPhaseOut.ThresholdOther)))
	}
	if c.AMTRepeal {
		parts = append(parts, "amt_repeal")
	} else {
		if c.AMTExemption > 0 || c.AMTExemptionJoint > 0 {
			parts = append(parts, fmt.Sprintf("amtex_%s_%s", num(c.AMTExemption), num(c.AMTExemptionJoint)))
		}
		if c.AMTPhaseOut > 0 || c.AMTPhaseOutJoint > 0 {
			parts = append(parts, fmt.Sprintf("amtpo_%s_%s", num(c.AMTPhaseOut), num(c.AMTPhaseOutJoint)))
		}
		if c.AMTPhaseOutRate > 0 {
			parts = append(parts, "amtrate_"+num(c.AMTPhaseOutRate))
		}
		if c.AMTEliminateMarriagePenalty {
			parts = append(parts, "amt_nomp")
		}
	}
	if c.ExtendTCJA && c.Baseline != CurrentPolicy {
		parts = append(parts, "tcja")
	}
	return strings.Join(parts, "-")
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Parameters are the SALT and AMT values a baseline carries for the reform year.
type Parameters struct {
	SALTCap          float64
	AMTExemption     map[FilingStatus]float64
	AMTPhaseOutStart map[FilingStatus]float64
	AMTPhaseOutRate  float64
}

// Defaults returns the baseline SALT/AMT parameters. Current law values are
// the pre-TCJA amounts indexed to 2026; current policy values are the TCJA
// amounts indexed to 2026. SALTCap is +Inf under current law.
func Defaults(b Baseline) Parameters {
	if b == CurrentPolicy {
		return Parameters{
			SALTCap:          tcjaSALTCap,
			AMTExemption:     copyStatusMap(tcjaAMTExemption),
			AMTPhaseOutStart: copyStatusMap(tcjaAMTPhaseOut),
			AMTPhaseOutRate:  0.25,
		}
	}
	return Parameters{
		SALTCap: inf,
		AMTExemption: map[FilingStatus]float64{
			Single:          70_600,
			Joint:           109_800,
			Separate:        54_900,
			HeadOfHousehold: 70_600,
			SurvivingSpouse: 109_800,
		},
		AMTPhaseOutStart: map[FilingStatus]float64{
			Single:          156_900,
			Joint:           209_200,
			Separate:        104_600,
			HeadOfHousehold: 156_900,
			SurvivingSpouse: 209_200,
		},
		AMTPhaseOutRate: 0.25,
	}
}

func copyStatusMap(m map[FilingStatus]float64) map[FilingStatus]float64 {
	out := make(map[FilingStatus]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
