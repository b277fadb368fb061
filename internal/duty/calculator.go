// Package duty estimates U.S. import duty and landed cost for a scenario.
package duty

import (
	"github.com/shopspring/decimal"
)

const centPlaces = 2

// Component is one duty line item.
type Component struct {
	Code    string          `json:"code"`
	Label   string          `json:"label"`
	Rate    decimal.Decimal `json:"rate"`
	Amount  decimal.Decimal `json:"amount"`
	Applied bool            `json:"applied"`
	Note    string          `json:"note,omitempty"`
}

// Result is the calculator output. Amounts are rounded to cents.
type Result struct {
	Country         string          `json:"country"`
	Program         string          `json:"program,omitempty"`
	Components      []Component     `json:"components"`
	TotalRate       decimal.Decimal `json:"total_rate"`
	TotalDutyAmount decimal.Decimal `json:"total_duty_amount"`
	LandedCost      decimal.Decimal `json:"landed_cost"`
	Warnings        []string        `json:"warnings"`
}

// Calculator evaluates a fixed rule list. It holds no mutable state and is
// safe for concurrent use.
type Calculator struct {
	rules []Rule
}

// NewCalculator uses DefaultRules when rules is empty.
func NewCalculator(rules ...Rule) *Calculator {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Calculator{rules: rules}
}

var defaultCalculator = NewCalculator()

// Compute evaluates s with the default rule list.
func Compute(s Scenario) Result {
	return defaultCalculator.Compute(s)
}

// Compute runs every rule in order and totals the applied buckets.
func (c *Calculator) Compute(s Scenario) Result {
	s = s.normalize()

	ev := &evaluation{scenario: s}
	for _, issue := range s.issues {
		ev.warnings = append(ev.warnings, issue.Error())
	}
	for _, rule := range c.rules {
		rule.apply(ev)
	}

	result := Result{
		Country:    s.Country,
		Program:    s.Program,
		Components: make([]Component, 0, len(ev.buckets)),
		TotalRate:  decimal.Zero,
		Warnings:   ev.warnings,
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}

	totalDuty := decimal.Zero
	for _, b := range ev.buckets {
		amount := decimal.Zero
		if b.applied {
			amount = s.CustomsValue.Mul(b.rate)
			totalDuty = totalDuty.Add(amount)
			result.TotalRate = result.TotalRate.Add(b.rate)
		}
		result.Components = append(result.Components, Component{
			Code:    b.code,
			Label:   b.label,
			Rate:    b.rate,
			Amount:  amount.Round(centPlaces),
			Applied: b.applied,
			Note:    b.note,
		})
	}

	result.TotalDutyAmount = totalDuty.Round(centPlaces)
	result.LandedCost = s.CustomsValue.Add(s.FreightInsurance).Add(result.TotalDutyAmount)
	return result
}
