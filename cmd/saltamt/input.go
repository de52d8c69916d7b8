package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/3cpo-dev/saltamt/internal/core"
	"github.com/3cpo-dev/saltamt/internal/engine"
	"github.com/3cpo-dev/saltamt/internal/household"
	"github.com/3cpo-dev/saltamt/internal/policy"
)

// addHouseholdFlags registers the household flags shared by every
// evaluating command.
func addHouseholdFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("input", "f", "", "YAML or JSON file with household, policy and outputs")
	cmd.Flags().String("state", "", "two-letter state code")
	cmd.Flags().Bool("married", false, "married filing jointly")
	cmd.Flags().Float64("income", 0, "employment income")
	cmd.Flags().Float64("spouse-income", 0, "spouse employment income")
	cmd.Flags().Float64("property-tax", 0, "real estate taxes paid")
	cmd.Flags().Float64("mortgage-interest", 0, "deductible mortgage interest")
	cmd.Flags().Float64("charity", 0, "charitable cash donations")
	cmd.Flags().Float64("dividends", 0, "qualified dividend income")
	cmd.Flags().Float64("ltcg", 0, "long-term capital gains")
	cmd.Flags().IntSlice("child-ages", nil, "ages of dependent children")
	cmd.Flags().StringSlice("outputs", nil, "output variables (default all)")
	cmd.Flags().String("engine", "", "engine endpoint name (default from config)")
}

// addPolicyFlags registers the reform flags.
func addPolicyFlags(cmd *cobra.Command) {
	cmd.Flags().String("preset", "", "named reform scenario, see `saltamt presets`")
	cmd.Flags().String("baseline", "", "current_law or current_policy")
	cmd.Flags().Int("year", 0, "first year of the reform")
	cmd.Flags().String("salt-mode", "", "current, cap, uncapped or repealed")
	cmd.Flags().Float64("salt-cap", 0, "SALT cap for single filers when --salt-mode=cap")
	cmd.Flags().Bool("salt-marriage-bonus", false, "double the SALT cap for joint filers")
	cmd.Flags().Bool("salt-phase-out", false, "phase the SALT cap out above an income threshold")
	cmd.Flags().Float64("salt-phase-out-rate", 0, "SALT cap phase-out rate (implies --salt-phase-out)")
	cmd.Flags().Float64("salt-phase-out-threshold", 0, "SALT phase-out threshold for non-joint filers (implies --salt-phase-out)")
	cmd.Flags().Float64("salt-phase-out-threshold-joint", 0, "SALT phase-out threshold for joint filers (implies --salt-phase-out)")
	cmd.Flags().Float64("amt-exemption", 0, "AMT exemption for single filers")
	cmd.Flags().Float64("amt-exemption-joint", 0, "AMT exemption for joint filers")
	cmd.Flags().Float64("amt-phase-out", 0, "AMT exemption phase-out start for single filers")
	cmd.Flags().Float64("amt-phase-out-joint", 0, "AMT exemption phase-out start for joint filers")
	cmd.Flags().Float64("amt-phase-out-rate", 0, "AMT exemption phase-out rate")
	cmd.Flags().Bool("amt-marriage-penalty", false, "eliminate the AMT marriage penalty")
	cmd.Flags().Bool("amt-repeal", false, "repeal the AMT")
	cmd.Flags().Bool("extend-tcja", false, "extend the TCJA individual provisions in the reform")
}

// readInput assembles the calculator input from --input, --preset and the
// individual flags, in that order of precedence from lowest to highest.
func readInput(cmd *cobra.Command, cfg engine.Config) (core.Input, error) {
	in := core.Input{Household: household.Default()}
	in.Household.Year = 0

	if path, _ := cmd.Flags().GetString("input"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return in, fmt.Errorf("read input: %w", err)
		}
		if err := yaml.Unmarshal(b, &in); err != nil {
			return in, fmt.Errorf("parse input %s: %w", path, err)
		}
	}
	if err := applyPolicyFlags(cmd, &in.Policy); err != nil {
		return in, err
	}
	applyHouseholdFlags(cmd, &in.Household)
	if cmd.Flags().Changed("outputs") {
		in.Outputs, _ = cmd.Flags().GetStringSlice("outputs")
	}

	if in.Policy.Year == 0 {
		in.Policy.Year = cfg.Defaults.Year
	}
	if in.Policy.Baseline == "" {
		in.Policy.Baseline = policy.Baseline(cfg.Defaults.Baseline)
	}
	return in, nil
}

func applyPolicyFlags(cmd *cobra.Command, p *policy.Config) error {
	f := cmd.Flags()
	if f.Lookup("preset") == nil {
		return nil
	}
	if name, _ := f.GetString("preset"); name != "" {
		preset, ok := policy.LookupPreset(name)
		if !ok {
			return fmt.Errorf("unknown preset %q", name)
		}
		*p = preset.Config
	}
	if f.Changed("baseline") {
		v, _ := f.GetString("baseline")
		p.Baseline = policy.Baseline(v)
	}
	if f.Changed("year") {
		p.Year, _ = f.GetInt("year")
	}
	if f.Changed("salt-mode") {
		v, _ := f.GetString("salt-mode")
		p.SALTMode = policy.SALTMode(v)
	}
	if f.Changed("salt-cap") {
		p.SALTCap, _ = f.GetFloat64("salt-cap")
		if !f.Changed("salt-mode") {
			p.SALTMode = policy.SALTCap
		}
	}
	if f.Changed("salt-marriage-bonus") {
		p.SALTMarriageBonus, _ = f.GetBool("salt-marriage-bonus")
	}
	po := &p.SALTPhaseOut
	for name, dst := range map[string]*float64{
		"salt-phase-out-rate":            &po.Rate,
		"salt-phase-out-threshold":       &po.ThresholdOther,
		"salt-phase-out-threshold-joint": &po.ThresholdJoint,
	} {
		if f.Changed(name) {
			*dst, _ = f.GetFloat64(name)
			po.Enabled = true
		}
	}
	if f.Changed("salt-phase-out") {
		po.Enabled, _ = f.GetBool("salt-phase-out")
	}
	if f.Changed("amt-exemption") {
		p.AMTExemption, _ = f.GetFloat64("amt-exemption")
	}
	if f.Changed("amt-exemption-joint") {
		p.AMTExemptionJoint, _ = f.GetFloat64("amt-exemption-joint")
	}
	if f.Changed("amt-phase-out") {
		p.AMTPhaseOut, _ = f.GetFloat64("amt-phase-out")
	}
	if f.Changed("amt-phase-out-joint") {
		p.AMTPhaseOutJoint, _ = f.GetFloat64("amt-phase-out-joint")
	}
	if f.Changed("amt-phase-out-rate") {
		p.AMTPhaseOutRate, _ = f.GetFloat64("amt-phase-out-rate")
	}
	if f.Changed("amt-marriage-penalty") {
		p.AMTEliminateMarriagePenalty, _ = f.GetBool("amt-marriage-penalty")
	}
	if f.Changed("amt-repeal") {
		p.AMTRepeal, _ = f.GetBool("amt-repeal")
	}
	if f.Changed("extend-tcja") {
		p.ExtendTCJA, _ = f.GetBool("extend-tcja")
	}
	return nil
}

func applyHouseholdFlags(cmd *cobra.Command, h *household.Household) {
	f := cmd.Flags()
	if f.Lookup("state") == nil {
		return
	}
	if f.Changed("state") {
		h.StateCode, _ = f.GetString("state")
	}
	if f.Changed("married") {
		h.IsMarried, _ = f.GetBool("married")
	}
	if f.Changed("child-ages") {
		h.ChildAges, _ = f.GetIntSlice("child-ages")
	}
	for flag, dst := range map[string]*float64{
		"income":            &h.EmploymentIncome,
		"spouse-income":     &h.SpouseIncome,
		"property-tax":      &h.RealEstateTaxes,
		"mortgage-interest": &h.DeductibleMortgageInterest,
		"charity":           &h.CharitableCashDonations,
		"dividends":         &h.QualifiedDividendIncome,
		"ltcg":              &h.LongTermCapitalGains,
	} {
		if f.Changed(flag) {
			*dst, _ = f.GetFloat64(flag)
		}
	}
}

// parseAxis reads an axis spec of the form name:min:max:count.
func parseAxis(spec string) (household.Axis, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 4 {
		return household.Axis{}, fmt.Errorf("axis %q: want name:min:max:count", spec)
	}
	a := household.Axis{Name: parts[0]}
	var err error
	if a.Min, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return a, fmt.Errorf("axis %q: bad min: %w", spec, err)
	}
	if a.Max, err = strconv.ParseFloat(parts[2], 64); err != nil {
		return a, fmt.Errorf("axis %q: bad max: %w", spec, err)
	}
	if a.Count, err = strconv.Atoi(parts[3]); err != nil {
		return a, fmt.Errorf("axis %q: bad count: %w", spec, err)
	}
	return a, a.Validate()
}

// readScenarios loads a YAML list of named scenarios.
func readScenarios(path string) ([]core.Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenarios: %w", err)
	}
	var out []core.Scenario
	if err := yaml.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse scenarios %s: %w", path, err)
	}
	return out, nil
}
