package policy

import "sort"

// Preset is a named reform scenario offered to users as a starting point.
type Preset struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Config      Config `json:"config" yaml:"config"`
}

// CurrentLawConfig leaves every parameter at its current-law value.
func CurrentLawConfig() Config {
	return Config{Baseline: CurrentLaw, Year: DefaultYear, SALTMode: SALTCurrent}
}

// CurrentPolicyConfig extends TCJA and leaves SALT/AMT at their TCJA values.
func CurrentPolicyConfig() Config {
	return Config{Baseline: CurrentPolicy, Year: DefaultYear, SALTMode: SALTCurrent}
}

var presets = map[string]Preset{
	"current_law": {
		Description: "TCJA individual provisions expire after 2025",
		Config:      CurrentLawConfig(),
	},
	"current_policy": {
		Description: "TCJA individual provisions extended",
		Config:      CurrentPolicyConfig(),
	},
	"salt_repeal": {
		Description: "Repeal the SALT deduction, TCJA extended",
		Config:      Config{Baseline: CurrentPolicy, Year: DefaultYear, SALTMode: SALTRepealed},
	},
	"salt_uncapped": {
		Description: "Remove the SALT cap, TCJA extended otherwise",
		Config:      Config{Baseline: CurrentPolicy, Year: DefaultYear, SALTMode: SALTUncapped},
	},
	"salt_cap_15k_marriage_bonus": {
		Description: "$15,000 SALT cap, doubled for joint filers",
		Config:      Config{Baseline: CurrentPolicy, Year: DefaultYear, SALTMode: SALTCap, SALTCap: 15_000, SALTMarriageBonus: true},
	},
	"salt_cap_40k_phase_out": {
		Description: "$40,000 SALT cap phased out at 30% above $500,000",
		Config: Config{
			Baseline: CurrentPolicy, Year: DefaultYear, SALTMode: SALTCap, SALTCap: 40_000, SALTMarriageBonus: true,
			SALTPhaseOut: PhaseOut{Enabled: true, Rate: 0.3, ThresholdJoint: 500_000, ThresholdOther: 500_000},
		},
	},
	"amt_marriage_penalty_eliminated": {
		Description: "TCJA AMT with joint exemption and phase-out at twice the single values",
		Config:      Config{Baseline: CurrentPolicy, Year: DefaultYear, SALTMode: SALTCurrent, AMTEliminateMarriagePenalty: true},
	},
	"amt_repeal": {
		Description: "Repeal the AMT, TCJA extended",
		Config:      Config{Baseline: CurrentPolicy, Year: DefaultYear, SALTMode: SALTCurrent, AMTRepeal: true},
	},
}

// Presets returns the built-in scenarios sorted by name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for name, p := range presets {
		p.Name = name
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupPreset returns the preset called name.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	p.Name = name
	return p, ok
}
