package household

import (
	"fmt"
	"strconv"
)

// Entity is one group or person in a situation: a "members" list plus
// variable -> {period -> value} entries. A nil value asks the engine to
// compute the variable.
type Entity map[string]interface{}

// Situation is the engine's description of a household.
type Situation struct {
	People       map[string]Entity `json:"people"`
	Families     map[string]Entity `json:"families"`
	MaritalUnits map[string]Entity `json:"marital_units"`
	TaxUnits     map[string]Entity `json:"tax_units"`
	SPMUnits     map[string]Entity `json:"spm_units"`
	Households   map[string]Entity `json:"households"`
	Axes         [][]Axis          `json:"axes,omitempty"`
}

// Entity groups a variable can be computed at.
const (
	TaxUnitEntity   = "tax_units"
	HouseholdEntity = "households"
)

// Names of the single group of each kind.
const (
	Head          = "you"
	Spouse        = "your partner"
	TaxUnitName   = "your tax unit"
	HouseholdName = "your household"
	FamilyName    = "your family"
	SPMUnitName   = "your spm unit"
	MaritalName   = "your marital unit"
)

// Variable is an output the engine computes for the situation.
type Variable struct {
	Name   string `json:"name" yaml:"name"`
	Entity string `json:"entity" yaml:"entity"`
}

// Group returns the name of the group the variable lives on.
func (v Variable) Group() string {
	if v.Entity == HouseholdEntity {
		return HouseholdName
	}
	return TaxUnitName
}

// DefaultOutputs are the tax outputs charted for every calculation.
var DefaultOutputs = []Variable{
	{Name: "income_tax", Entity: TaxUnitEntity},
	{Name: "regular_tax_before_credits", Entity: TaxUnitEntity},
	{Name: "alternative_minimum_tax", Entity: TaxUnitEntity},
	{Name: "salt_deduction", Entity: TaxUnitEntity},
	{Name: "taxable_income", Entity: TaxUnitEntity},
	{Name: "itemized_taxable_income_deductions", Entity: TaxUnitEntity},
	{Name: "standard_deduction", Entity: TaxUnitEntity},
	{Name: "household_net_income", Entity: HouseholdEntity},
}

// LookupOutput returns the default output called name.
func LookupOutput(name string) (Variable, bool) {
	for _, v := range DefaultOutputs {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

var ordinals = []string{"first", "second", "third", "fourth", "fifth", "sixth", "seventh", "eighth", "ninth", "tenth"}

// DependentName returns the person key of the i-th (0-based) dependent.
func DependentName(i int) string {
	if i < len(ordinals) {
		return "your " + ordinals[i] + " dependent"
	}
	return fmt.Sprintf("your dependent %d", i+1)
}

// Build assembles the situation for h, requesting outputs and sweeping axes.
// Each axis forms its own dimension, so two axes produce a grid. A head
// variable swept by an axis is omitted so the axis values apply.
func Build(h Household, outputs []Variable, axes ...Axis) (*Situation, error) {
	h = h.Normalize()
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateAxes(axes); err != nil {
		return nil, err
	}
	year := strconv.Itoa(h.Year)
	at := func(v interface{}) map[string]interface{} { return map[string]interface{}{year: v} }

	swept := map[string]bool{}
	for _, a := range axes {
		swept[a.Name] = true
	}

	head := Entity{"age": at(h.HeadAge)}
	for name, v := range h.headVariables() {
		if swept[name] {
			continue
		}
		head[name] = at(v)
	}
	people := map[string]Entity{Head: head}
	adults := []string{Head}
	if h.IsMarried {
		people[Spouse] = Entity{
			"age":               at(h.SpouseAge),
			"employment_income": at(h.SpouseIncome),
		}
		adults = append(adults, Spouse)
	}

	members := append([]string{}, adults...)
	maritalUnits := map[string]Entity{MaritalName: {"members": adults}}
	for i, age := range h.ChildAges {
		name := DependentName(i)
		people[name] = Entity{
			"age":                   at(age),
			"is_tax_unit_dependent": at(true),
		}
		members = append(members, name)
		maritalUnits[name+"'s marital unit"] = Entity{
			"members":         []string{name},
			"marital_unit_id": at(i + 1),
		}
	}

	s := &Situation{
		People:       people,
		Families:     map[string]Entity{FamilyName: {"members": members}},
		MaritalUnits: maritalUnits,
		TaxUnits:     map[string]Entity{TaxUnitName: {"members": members}},
		SPMUnits:     map[string]Entity{SPMUnitName: {"members": members}},
		Households: map[string]Entity{HouseholdName: {
			"members":    members,
			"state_name": at(h.StateCode),
		}},
	}

	for _, o := range outputs {
		switch o.Entity {
		case TaxUnitEntity:
			s.TaxUnits[TaxUnitName][o.Name] = at(nil)
		case HouseholdEntity:
			s.Households[HouseholdName][o.Name] = at(nil)
		default:
			return nil, fmt.Errorf("output %s: unsupported entity %q", o.Name, o.Entity)
		}
	}

	for _, a := range axes {
		if a.Period == "" {
			a.Period = year
		}
		s.Axes = append(s.Axes, []Axis{a})
	}
	return s, nil
}
