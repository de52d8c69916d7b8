package policy

import "strconv"

// TCJA individual income tax provisions, indexed to 2026.
var (
	tcjaSALTCap = 10_000.0

	tcjaAMTExemption = map[FilingStatus]float64{
		Single:          90_100,
		Joint:           140_300,
		Separate:        70_150,
		HeadOfHousehold: 90_100,
		SurvivingSpouse: 140_300,
	}
	tcjaAMTPhaseOut = map[FilingStatus]float64{
		Single:          641_350,
		Joint:           1_282_700,
		Separate:        641_350,
		HeadOfHousehold: 641_350,
		SurvivingSpouse: 1_282_700,
	}

	tcjaRates = []float64{0.10, 0.12, 0.22, 0.24, 0.32, 0.35, 0.37}

	// Upper bound of brackets 1..6; bracket 7 is open ended.
	tcjaThresholds = map[FilingStatus][]float64{
		Single:          {12_150, 49_475, 105_525, 201_350, 255_700, 639_300},
		Joint:           {24_300, 98_950, 211_050, 402_700, 511_400, 767_100},
		Separate:        {12_150, 49_475, 105_525, 201_350, 255_700, 383_550},
		HeadOfHousehold: {17_350, 66_200, 105_525, 201_350, 255_700, 639_300},
		SurvivingSpouse: {24_300, 98_950, 211_050, 402_700, 511_400, 767_100},
	}

	tcjaStandardDeduction = map[FilingStatus]float64{
		Single:          15_300,
		Joint:           30_600,
		Separate:        15_300,
		HeadOfHousehold: 22_950,
		SurvivingSpouse: 30_600,
	}

	tcjaCTCPhaseOut = map[FilingStatus]float64{
		Single:          200_000,
		Joint:           400_000,
		Separate:        200_000,
		HeadOfHousehold: 200_000,
		SurvivingSpouse: 400_000,
	}

	tcjaMortgageCap = map[FilingStatus]float64{
		Single:          750_000,
		Joint:           750_000,
		Separate:        375_000,
		HeadOfHousehold: 750_000,
		SurvivingSpouse: 750_000,
	}
)

// TCJAExtension returns the overrides that extend the TCJA individual
// provisions from year onward.
func TCJAExtension(year int) Reform {
	period := Period(year)
	r := Reform{}

	for i, rate := range tcjaRates {
		r.Set("gov.irs.income.bracket.rates."+strconv.Itoa(i+1), period, rate)
	}
	for status, bounds := range tcjaThresholds {
		for i, v := range bounds {
			r.Set("gov.irs.income.bracket.thresholds."+strconv.Itoa(i+1)+"."+string(status), period, v)
		}
	}
	for status, v := range tcjaStandardDeduction {
		r.Set("gov.irs.deductions.standard.amount."+string(status), period, v)
	}
	r.Set("gov.irs.income.exemption.amount", period, 0.0)

	r.Set("gov.irs.credits.ctc.amount.base[0].amount", period, 2_000.0)
	r.Set("gov.irs.credits.ctc.amount.adult_dependent", period, 500.0)
	r.Set("gov.irs.credits.ctc.refundable.individual_max", period, 1_700.0)
	r.Set("gov.irs.credits.ctc.refundable.phase_in.threshold", period, 2_500.0)
	for status, v := range tcjaCTCPhaseOut {
		r.Set("gov.irs.credits.ctc.phase_out.threshold."+string(status), period, v)
	}

	r.Set("gov.irs.deductions.qbi.max.rate", period, 0.2)
	r.Set("gov.irs.deductions.itemized.limitation.applicable_percentage", period, 0.0)
	r.Set("gov.irs.deductions.itemized.casualty.active", period, false)
	for status, v := range tcjaMortgageCap {
		r.Set("gov.irs.deductions.itemized.interest.mortgage.cap."+string(status), period, v)
	}

	setAll(r, saltCapPath, period, tcjaSALTCap)
	r.Set(saltCapPath+string(Separate), period, tcjaSALTCap/2)

	for status, v := range tcjaAMTExemption {
		r.Set(amtExemptionPath+string(status), period, v)
	}
	for status, v := range tcjaAMTPhaseOut {
		r.Set(amtPhaseOutPath+string(status), period, v)
	}
	r.Set(amtPhaseOutRateP, period, 0.25)
	return r
}
