package household

import (
	"fmt"
	"sort"
	"strings"

	"github.com/3cpo-dev/saltamt/internal/policy"
)

// Household holds the attributes a user enters about their household.
type Household struct {
	Year      int    `json:"year" yaml:"year"`
	StateCode string `json:"state_code" yaml:"state_code"`
	IsMarried bool   `json:"is_married" yaml:"is_married"`
	HeadAge   int    `json:"head_age" yaml:"head_age"`
	SpouseAge int    `json:"spouse_age" yaml:"spouse_age"`
	ChildAges []int  `json:"child_ages" yaml:"child_ages"`

	EmploymentIncome        float64 `json:"employment_income" yaml:"employment_income"`
	SpouseIncome            float64 `json:"spouse_income" yaml:"spouse_income"`
	QualifiedDividendIncome float64 `json:"qualified_dividend_income" yaml:"qualified_dividend_income"`
	LongTermCapitalGains    float64 `json:"long_term_capital_gains" yaml:"long_term_capital_gains"`
	ShortTermCapitalGains   float64 `json:"short_term_capital_gains" yaml:"short_term_capital_gains"`

	RealEstateTaxes            float64 `json:"real_estate_taxes" yaml:"real_estate_taxes"`
	DeductibleMortgageInterest float64 `json:"deductible_mortgage_interest" yaml:"deductible_mortgage_interest"`
	CharitableCashDonations    float64 `json:"charitable_cash_donations" yaml:"charitable_cash_donations"`
	MedicalExpenses            float64 `json:"medical_expenses" yaml:"medical_expenses"`
}

// Default returns a single 40-year-old filer in California with no income.
func Default() Household {
	return Household{Year: policy.DefaultYear, StateCode: "CA", HeadAge: 40, SpouseAge: 40}
}

const maxChildren = 10

var stateCodes = map[string]bool{}

func init() {
	for _, s := range strings.Fields(`AL AK AZ AR CA CO CT DE DC FL GA HI ID IL IN IA KS KY LA ME MD MA MI MN MS
		MO MT NE NV NH NJ NM NY NC ND OH OK OR PA RI SC SD TN TX UT VT VA WA WV WI WY`) {
		stateCodes[s] = true
	}
}

// StateCodes returns the accepted state codes in sorted order.
func StateCodes() []string {
	out := make([]string, 0, len(stateCodes))
	for s := range stateCodes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Normalize fills defaults and upper-cases the state code.
func (h Household) Normalize() Household {
	if h.Year == 0 {
		h.Year = policy.DefaultYear
	}
	if h.HeadAge == 0 {
		h.HeadAge = 40
	}
	if h.IsMarried && h.SpouseAge == 0 {
		h.SpouseAge = h.HeadAge
	}
	h.StateCode = strings.ToUpper(strings.TrimSpace(h.StateCode))
	return h
}

// Validate checks a normalized household.
func (h Household) Validate() error {
	if h.Year < policy.MinYear || h.Year > policy.MaxYear {
		return policy.ValidationError{Field: "year", Value: fmt.Sprintf("%d", h.Year), Message: fmt.Sprintf("must be between %d and %d", policy.MinYear, policy.MaxYear)}
	}
	if !stateCodes[h.StateCode] {
		return policy.ValidationError{Field: "state_code", Value: h.StateCode, Message: "unknown state"}
	}
	if h.HeadAge < 18 || h.HeadAge > 120 {
		return policy.ValidationError{Field: "head_age", Value: fmt.Sprintf("%d", h.HeadAge), Message: "must be between 18 and 120"}
	}
	if h.IsMarried && (h.SpouseAge < 18 || h.SpouseAge > 120) {
		return policy.ValidationError{Field: "spouse_age", Value: fmt.Sprintf("%d", h.SpouseAge), Message: "must be between 18 and 120"}
	}
	if len(h.ChildAges) > maxChildren {
		return policy.ValidationError{Field: "child_ages", Value: fmt.Sprintf("%d", len(h.ChildAges)), Message: fmt.Sprintf("at most %d children", maxChildren)}
	}
	for _, a := range h.ChildAges {
		if a < 0 || a > 120 {
			return policy.ValidationError{Field: "child_ages", Value: fmt.Sprintf("%d", a), Message: "must be between 0 and 120"}
		}
	}
	if !h.IsMarried && h.SpouseIncome != 0 {
		return policy.ValidationError{Field: "spouse_income", Value: fmt.Sprintf("%g", h.SpouseIncome), Message: "requires is_married"}
	}
	for field, v := range map[string]float64{
		"employment_income":            h.EmploymentIncome,
		"spouse_income":                h.SpouseIncome,
		"qualified_dividend_income":    h.QualifiedDividendIncome,
		"real_estate_taxes":            h.RealEstateTaxes,
		"deductible_mortgage_interest": h.DeductibleMortgageInterest,
		"charitable_cash_donations":    h.CharitableCashDonations,
		"medical_expenses":             h.MedicalExpenses,
	} {
		if v < 0 {
			return policy.ValidationError{Field: field, Value: fmt.Sprintf("%g", v), Message: "must not be negative"}
		}
	}
	return nil
}

// headVariables maps engine variable names to the head's values. Zero values
// are still sent so the engine never imputes them.
func (h Household) headVariables() map[string]float64 {
	return map[string]float64{
		"employment_income":              h.EmploymentIncome,
		"qualified_dividend_income":      h.QualifiedDividendIncome,
		"long_term_capital_gains":        h.LongTermCapitalGains,
		"short_term_capital_gains":       h.ShortTermCapitalGains,
		"real_estate_taxes":              h.RealEstateTaxes,
		"deductible_mortgage_interest":   h.DeductibleMortgageInterest,
		"charitable_cash_donations":      h.CharitableCashDonations,
		"medical_out_of_pocket_expenses": h.MedicalExpenses,
	}
}
