package policy

import (
	"fmt"
)

// ValidationError reports a rejected policy or household input.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s=%s: %s", e.Field, e.Value, e.Message)
}

// MinYear and MaxYear bound the reform year.
const (
	MinYear = 2024
	MaxYear = 2035
)

// Validate checks a normalized config.
func (c Config) Validate() error {
	switch c.Baseline {
	case CurrentLaw, CurrentPolicy:
	default:
		return ValidationError{Field: "baseline", Value: string(c.Baseline), Message: "must be current_law or current_policy"}
	}
	if c.Year < MinYear || c.Year > MaxYear {
		return ValidationError{Field: "year", Value: fmt.Sprintf("%d", c.Year), Message: fmt.Sprintf("must be between %d and %d", MinYear, MaxYear)}
	}

	switch c.SALTMode {
	case SALTCurrent, SALTUncapped, SALTRepealed:
	case SALTCap:
		if c.SALTCap <= 0 {
			return ValidationError{Field: "salt_cap", Value: num(c.SALTCap), Message: "cap mode requires a positive cap"}
		}
	default:
		return ValidationError{Field: "salt_mode", Value: string(c.SALTMode), Message: "must be current, cap, uncapped or repealed"}
	}
	if c.SALTCap < 0 {
		return ValidationError{Field: "salt_cap", Value: num(c.SALTCap), Message: "must not be negative"}
	}

	if po := c.SALTPhaseOut; po.Enabled {
		if err := rate("salt_phase_out.rate", po.Rate); err != nil {
			return err
		}
		if po.ThresholdJoint <= 0 {
			return ValidationError{Field: "salt_phase_out.threshold_joint", Value: num(po.ThresholdJoint), Message: "must be positive"}
		}
		if po.ThresholdOther <= 0 {
			return ValidationError{Field: "salt_phase_out.threshold_other", Value: num(po.ThresholdOther), Message: "must be positive"}
		}
	}

	amounts := []struct {
		field string
		v     float64
	}{
		{"amt_exemption", c.AMTExemption},
		{"amt_exemption_joint", c.AMTExemptionJoint},
		{"amt_phase_out", c.AMTPhaseOut},
		{"amt_phase_out_joint", c.AMTPhaseOutJoint},
	}
	for _, a := range amounts {
		if a.v < 0 {
			return ValidationError{Field: a.field, Value: num(a.v), Message: "must not be negative"}
		}
	}
	return rate("amt_phase_out_rate", c.AMTPhaseOutRate)
}

func rate(field string, v float64) error {
	if v < 0 || v > 1 {
		return ValidationError{Field: field, Value: num(v), Message: "rate must be between 0 and 1"}
	}
	return nil
}
