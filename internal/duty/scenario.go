package duty

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"TariffIntel/internal/domain"
)

// Scenario is one landed-cost question. Rates are fractions (0.25 = 25%).
type Scenario struct {
	Country          string          `json:"country"`
	Program          string          `json:"program"`
	CustomsValue     decimal.Decimal `json:"customs_value"`
	FreightInsurance decimal.Decimal `json:"freight_insurance"`
	MFNRate          decimal.Decimal `json:"mfn_rate"`
	Section301Rate   decimal.Decimal `json:"section301_rate"`
	IEEPAIncluded    bool            `json:"ieepa_included"`
	IEEPARate        decimal.Decimal `json:"ieepa_rate"`
	NonStacking      bool            `json:"non_stacking"`
	USMCA            bool            `json:"usmca"`
	EnergyPotash     bool            `json:"energy_potash"`
	BrazilTargeted   bool            `json:"brazil_targeted"`

	issues []*domain.ValidationError
}

// Issues returns the inputs that were replaced by defaults while decoding.
func (s Scenario) Issues() []*domain.ValidationError {
	return append([]*domain.ValidationError(nil), s.issues...)
}

// UnmarshalJSON accepts numbers or numeric strings and never fails on a
// bad field: unusable values become zero (or false) and are recorded as
// validation issues. Only malformed JSON is an error.
func (s *Scenario) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("scenario: %w", err)
	}

	out := Scenario{}
	out.Country = out.text(raw, "country")
	out.Program = out.text(raw, "program")
	out.CustomsValue = out.amount(raw, "customs_value")
	out.FreightInsurance = out.amount(raw, "freight_insurance")
	out.MFNRate = out.amount(raw, "mfn_rate")
	out.Section301Rate = out.amount(raw, "section301_rate")
	out.IEEPARate = out.amount(raw, "ieepa_rate")
	out.IEEPAIncluded = out.flag(raw, "ieepa_included")
	out.NonStacking = out.flag(raw, "non_stacking")
	out.USMCA = out.flag(raw, "usmca")
	out.EnergyPotash = out.flag(raw, "energy_potash")
	out.BrazilTargeted = out.flag(raw, "brazil_targeted")

	*s = out
	return nil
}

func (s *Scenario) text(raw map[string]json.RawMessage, field string) string {
	value, ok := raw[field]
	if !ok || isNull(value) {
		return ""
	}
	var str string
	if err := json.Unmarshal(value, &str); err != nil {
		s.invalid(field, string(value), "expected a string")
		return ""
	}
	return strings.TrimSpace(str)
}

func (s *Scenario) amount(raw map[string]json.RawMessage, field string) decimal.Decimal {
	value, ok := raw[field]
	if !ok || isNull(value) {
		return decimal.Zero
	}

	text := strings.TrimSpace(string(value))
	var str string
	if err := json.Unmarshal(value, &str); err == nil {
		text = strings.TrimSpace(str)
		if text == "" {
			return decimal.Zero
		}
	}
	text = strings.NewReplacer(",", "", "$", "", "_", "").Replace(text)

	d, err := decimal.NewFromString(text)
	if err != nil {
		s.invalid(field, string(value), "not a number, using 0")
		return decimal.Zero
	}
	return d
}

func (s *Scenario) flag(raw map[string]json.RawMessage, field string) bool {
	value, ok := raw[field]
	if !ok || isNull(value) {
		return false
	}

	var b bool
	if err := json.Unmarshal(value, &b); err == nil {
		return b
	}

	text := strings.Trim(strings.TrimSpace(string(value)), `"`)
	switch strings.ToLower(text) {
	case "yes", "on", "y":
		return true
	case "no", "off", "n", "":
		return false
	}
	if parsed, err := strconv.ParseBool(text); err == nil {
		return parsed
	}
	s.invalid(field, string(value), "not a boolean, using false")
	return false
}

func (s *Scenario) invalid(field, value, reason string) {
	s.issues = append(s.issues, &domain.ValidationError{Field: field, Value: value, Reason: reason})
}

// Input bounds. Rates above 1 are legal (stacked rates on some origins
// exceed 100%) but anything past maxRate is a typo or a percentage.
var (
	maxAmount = decimal.New(1, 12)
	maxRate   = decimal.New(5, 0)
)

const (
	maxExponent        = 12
	minExponent        = -12
	maxCoefficientBits = 96
)

// normalize zeroes negative or out-of-range inputs and canonicalizes the
// country.
func (s Scenario) normalize() Scenario {
	s.Country = strings.ToUpper(strings.TrimSpace(s.Country))
	s.issues = append([]*domain.ValidationError(nil), s.issues...)

	fields := []struct {
		name  string
		value *decimal.Decimal
		max   decimal.Decimal
	}{
		{"customs_value", &s.CustomsValue, maxAmount},
		{"freight_insurance", &s.FreightInsurance, maxAmount},
		{"mfn_rate", &s.MFNRate, maxRate},
		{"section301_rate", &s.Section301Rate, maxRate},
		{"ieepa_rate", &s.IEEPARate, maxRate},
	}
	for _, f := range fields {
		switch {
		case !representable(*f.value):
			s.invalid(f.name, brief(*f.value), "out of range, using 0")
			*f.value = decimal.Zero
		case f.value.IsNegative():
			s.invalid(f.name, f.value.String(), "negative, using 0")
			*f.value = decimal.Zero
		case f.value.GreaterThan(f.max):
			s.invalid(f.name, f.value.String(), fmt.Sprintf("above %s, using 0", f.max))
			*f.value = decimal.Zero
		}
	}
	return s
}

// representable rejects values whose exponent or coefficient would make
// the arithmetic or its output grow without bound. Checked before any
// comparison, since comparing rescales.
func representable(d decimal.Decimal) bool {
	if d.IsZero() {
		return true
	}
	exp := d.Exponent()
	return exp <= maxExponent && exp >= minExponent && d.Coefficient().BitLen() <= maxCoefficientBits
}

func brief(d decimal.Decimal) string {
	digits := d.Coefficient().String()
	if len(digits) > 16 {
		digits = digits[:16] + "..."
	}
	return fmt.Sprintf("%se%d", digits, d.Exponent())
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
