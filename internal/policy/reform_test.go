package policy

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
)

func mustTranslate(t *testing.T, c Config) Reform {
	t.Helper()
	r, err := Translate(c)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	return r
}

func value(t *testing.T, r Reform, path string, year int) interface{} {
	t.Helper()
	v, ok := r.Get(path, Period(year))
	if !ok {
		t.Fatalf("missing %s", path)
	}
	return v
}

func TestTranslateCurrentLawIsEmpty(t *testing.T) {
	r := mustTranslate(t, CurrentLawConfig())
	if len(r) != 0 {
		t.Fatalf("expected no overrides, got %v", r.Paths())
	}
}

func TestTranslateSALTCap(t *testing.T) {
	cases := []struct {
		name     string
		bonus    bool
		joint    float64
		separate float64
	}{
		{"no bonus", false, 15_000, 7_500},
		{"marriage bonus", true, 30_000, 15_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := mustTranslate(t, Config{SALTMode: SALTCap, SALTCap: 15_000, SALTMarriageBonus: tc.bonus})
			if got := value(t, r, saltCapPath+"SINGLE", DefaultYear); got != 15_000.0 {
				t.Errorf("single cap %v", got)
			}
			if got := value(t, r, saltCapPath+"HEAD_OF_HOUSEHOLD", DefaultYear); got != 15_000.0 {
				t.Errorf("hoh cap %v", got)
			}
			if got := value(t, r, saltCapPath+"JOINT", DefaultYear); got != tc.joint {
				t.Errorf("joint cap %v, want %v", got, tc.joint)
			}
			if got := value(t, r, saltCapPath+"SEPARATE", DefaultYear); got != tc.separate {
				t.Errorf("separate cap %v, want %v", got, tc.separate)
			}
		})
	}
}

func TestTranslateSALTUncappedAndRepealed(t *testing.T) {
	r := mustTranslate(t, Config{SALTMode: SALTUncapped})
	for _, s := range FilingStatuses {
		v := value(t, r, saltCapPath+string(s), DefaultYear).(float64)
		if !math.IsInf(v, 1) {
			t.Fatalf("%s: expected +Inf, got %v", s, v)
		}
	}
	r = mustTranslate(t, Config{SALTMode: SALTRepealed, SALTPhaseOut: PhaseOut{Enabled: true, Rate: 0.1, ThresholdJoint: 1, ThresholdOther: 1}})
	for _, s := range FilingStatuses {
		if v := value(t, r, saltCapPath+string(s), DefaultYear); v != 0.0 {
			t.Fatalf("%s: expected 0, got %v", s, v)
		}
	}
	if _, ok := r.Get(saltPhaseOutPath+"in_effect", Period(DefaultYear)); ok {
		t.Fatalf("phase-out must not apply to a repealed deduction")
	}
}

func TestTranslateMarriageBonusKeepsCurrentPolicyCap(t *testing.T) {
	r := mustTranslate(t, Config{Baseline: CurrentPolicy, SALTMarriageBonus: true})
	if got := value(t, r, saltCapPath+"JOINT", DefaultYear); got != 20_000.0 {
		t.Fatalf("joint cap %v", got)
	}
	if got := value(t, r, saltCapPath+"SEPARATE", DefaultYear); got != 10_000.0 {
		t.Fatalf("separate cap %v", got)
	}

	// Current law has no cap to double.
	r = mustTranslate(t, Config{SALTMarriageBonus: true})
	if len(r) != 0 {
		t.Fatalf("expected no overrides, got %v", r.Paths())
	}
}

func TestTranslateSALTPhaseOut(t *testing.T) {
	r := mustTranslate(t, Config{
		SALTMode: SALTCap, SALTCap: 40_000,
		SALTPhaseOut: PhaseOut{Enabled: true, Rate: 0.3, ThresholdJoint: 600_000, ThresholdOther: 400_000},
	})
	if v := value(t, r, saltPhaseOutPath+"in_effect", DefaultYear); v != true {
		t.Fatalf("in_effect %v", v)
	}
	if v := value(t, r, saltPhaseOutPath+"rate.joint[1].threshold", DefaultYear); v != 600_000.0 {
		t.Fatalf("joint threshold %v", v)
	}
	if v := value(t, r, saltPhaseOutPath+"rate.other[1].threshold", DefaultYear); v != 400_000.0 {
		t.Fatalf("other threshold %v", v)
	}
	if v := value(t, r, saltPhaseOutPath+"rate.other[1].rate", DefaultYear); v != 0.3 {
		t.Fatalf("rate %v", v)
	}
}

func TestTranslateAMTEliminateMarriagePenalty(t *testing.T) {
	r := mustTranslate(t, Config{Baseline: CurrentPolicy, AMTEliminateMarriagePenalty: true})
	single := tcjaAMTExemption[Single]
	if v := value(t, r, amtExemptionPath+"JOINT", DefaultYear); v != 2*single {
		t.Fatalf("joint exemption %v, want %v", v, 2*single)
	}
	if v := value(t, r, amtExemptionPath+"SEPARATE", DefaultYear); v != single {
		t.Fatalf("separate exemption %v, want %v", v, single)
	}
	po := tcjaAMTPhaseOut[Single]
	if v := value(t, r, amtPhaseOutPath+"JOINT", DefaultYear); v != 2*po {
		t.Fatalf("joint phase-out %v, want %v", v, 2*po)
	}
}

func TestTranslateAMTCustomExemption(t *testing.T) {
	r := mustTranslate(t, Config{AMTExemption: 100_000, AMTPhaseOutRate: 0.5})
	start := Defaults(CurrentLaw).AMTExemption
	wantJoint := 100_000 * start[Joint] / start[Single]
	if v := value(t, r, amtExemptionPath+"JOINT", DefaultYear); v != wantJoint {
		t.Fatalf("joint exemption %v, want %v", v, wantJoint)
	}
	if v := value(t, r, amtExemptionPath+"SEPARATE", DefaultYear); v != wantJoint/2 {
		t.Fatalf("separate exemption %v", v)
	}
	if v := value(t, r, amtPhaseOutRateP, DefaultYear); v != 0.5 {
		t.Fatalf("rate %v", v)
	}
	if _, ok := r.Get(amtPhaseOutPath+"JOINT", Period(DefaultYear)); ok {
		t.Fatalf("phase-out start should stay at baseline")
	}
}

func TestTranslateAMTRepeal(t *testing.T) {
	r := mustTranslate(t, Config{AMTRepeal: true, AMTExemption: 1})
	for _, s := range FilingStatuses {
		v := value(t, r, amtExemptionPath+string(s), DefaultYear).(float64)
		if !math.IsInf(v, 1) {
			t.Fatalf("%s exemption %v", s, v)
		}
	}
}

func TestTranslateOverridesWinOverTCJA(t *testing.T) {
	r := mustTranslate(t, Config{Baseline: CurrentPolicy, Year: 2027, SALTMode: SALTCap, SALTCap: 25_000})
	if v := value(t, r, saltCapPath+"SINGLE", 2027); v != 25_000.0 {
		t.Fatalf("single cap %v", v)
	}
	if v := value(t, r, "gov.irs.income.bracket.rates.7", 2027); v != 0.37 {
		t.Fatalf("top rate %v", v)
	}
}

func TestTranslateDeterministicJSON(t *testing.T) {
	c := Config{Baseline: CurrentPolicy, SALTMode: SALTUncapped, AMTEliminateMarriagePenalty: true}
	a, err := json.Marshal(mustTranslate(t, c))
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(mustTranslate(t, c))
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatalf("non-deterministic output")
	}
	if !strings.Contains(string(a), `"Infinity"`) {
		t.Fatalf("expected Infinity encoding in %s", a)
	}

	var back Reform
	if err := json.Unmarshal(a, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	v := value(t, back, saltCapPath+"JOINT", DefaultYear).(float64)
	if !math.IsInf(v, 1) {
		t.Fatalf("round trip lost infinity: %v", v)
	}
}

func TestTranslateValidation(t *testing.T) {
	cases := []struct {
		field string
		cfg   Config
	}{
		{"baseline", Config{Baseline: "future"}},
		{"year", Config{Year: 1999}},
		{"salt_mode", Config{SALTMode: "halved"}},
		{"salt_cap", Config{SALTMode: SALTCap}},
		{"salt_phase_out.rate", Config{SALTPhaseOut: PhaseOut{Enabled: true, Rate: 1.5, ThresholdJoint: 1, ThresholdOther: 1}}},
		{"salt_phase_out.threshold_joint", Config{SALTPhaseOut: PhaseOut{Enabled: true, Rate: 0.1, ThresholdOther: 1}}},
		{"amt_exemption", Config{AMTExemption: -1}},
		{"amt_phase_out_rate", Config{AMTPhaseOutRate: 2}},
	}
	for _, tc := range cases {
		_, err := Translate(tc.cfg)
		var ve ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.field, err)
		}
		if ve.Field != tc.field {
			t.Errorf("expected field %s, got %s", tc.field, ve.Field)
		}
	}
}

func TestBaselineReform(t *testing.T) {
	if r := BaselineReform(CurrentLaw, 2026); r != nil {
		t.Fatalf("current law baseline should be empty")
	}
	r := BaselineReform(CurrentPolicy, 0)
	if v := value(t, r, saltCapPath+"SEPARATE", DefaultYear); v != 5_000.0 {
		t.Fatalf("separate cap %v", v)
	}
}

func TestConfigKey(t *testing.T) {
	a := Config{SALTMode: SALTCap, SALTCap: 15_000, SALTMarriageBonus: true}.Key()
	if a != "current_law-salt_cap_15000-mb" {
		t.Fatalf("unexpected key %q", a)
	}
	b := Config{Baseline: CurrentPolicy, AMTRepeal: true, ExtendTCJA: true}.Key()
	if b != "current_policy-salt_current-amt_repeal" {
		t.Fatalf("unexpected key %q", b)
	}

	po := PhaseOut{Enabled: true, Rate: 0.3, ThresholdJoint: 500_000, ThresholdOther: 250_000}
	repeal := Config{SALTMode: SALTRepealed}
	noisy := Config{SALTMode: SALTRepealed, SALTMarriageBonus: true, SALTPhaseOut: po}
	if repeal.Key() != noisy.Key() {
		t.Fatalf("ignored toggles changed the key: %q vs %q", repeal.Key(), noisy.Key())
	}
	r1, err := Translate(repeal)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Translate(noisy)
	if err != nil {
		t.Fatal(err)
	}
	if len(r1.Paths()) != len(r2.Paths()) {
		t.Fatalf("keys match but reforms differ: %v vs %v", r1.Paths(), r2.Paths())
	}
	uncapped := Config{SALTMode: SALTUncapped, SALTPhaseOut: po}.Key()
	if !strings.Contains(uncapped, "po_") {
		t.Fatalf("phase-out should key an uncapped reform: %q", uncapped)
	}
}

func TestPresetsTranslate(t *testing.T) {
	for _, p := range Presets() {
		if _, err := Translate(p.Config); err != nil {
			t.Errorf("preset %s: %v", p.Name, err)
		}
	}
	if _, ok := LookupPreset("salt_repeal"); !ok {
		t.Fatalf("expected salt_repeal preset")
	}
}
