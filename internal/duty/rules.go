package duty

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Bucket codes in evaluation order.
const (
	CodeMFN        = "mfn"
	CodeSection301 = "section301"
	CodeIEEPA      = "ieepa"
)

// Rule is one step of a duty evaluation. The variants are Additive,
// Override and HighestOfGroup; rules run in list order.
type Rule interface {
	apply(ev *evaluation)
}

// Additive opens a duty bucket. Rate reports the bucket rate and whether
// the scenario enables it. Special buckets take part in non-stacking.
type Additive struct {
	Code    string
	Label   string
	Special bool
	Rate    func(Scenario) (decimal.Decimal, bool)
}

// Override replaces the rate of an enabled bucket when its toggle is set
// and the scenario country is one of Countries. When several overrides hit
// the same bucket the last one wins.
type Override struct {
	Toggle    string
	Target    string
	Countries []string
	Rate      decimal.Decimal
	Note      string
	Enabled   func(Scenario) bool
}

// HighestOfGroup keeps only the highest-rate special bucket when Active
// reports true. Equal rates resolve to the bucket evaluated first.
type HighestOfGroup struct {
	Active func(Scenario) bool
}

type bucket struct {
	code    string
	label   string
	special bool
	enabled bool
	applied bool
	rate    decimal.Decimal
	note    string
}

type evaluation struct {
	scenario Scenario
	buckets  []*bucket
	warnings []string
}

func (ev *evaluation) find(code string) *bucket {
	for _, b := range ev.buckets {
		if b.code == code {
			return b
		}
	}
	return nil
}

func (ev *evaluation) warn(format string, args ...interface{}) {
	ev.warnings = append(ev.warnings, fmt.Sprintf(format, args...))
}

func (r Additive) apply(ev *evaluation) {
	rate, enabled := r.Rate(ev.scenario)
	b := &bucket{
		code:    r.Code,
		label:   r.Label,
		special: r.Special,
		enabled: enabled,
		applied: enabled,
		rate:    decimal.Zero,
	}
	if enabled {
		b.rate = rate
	} else {
		b.note = "not enabled for this scenario"
	}
	ev.buckets = append(ev.buckets, b)
}

func (r Override) apply(ev *evaluation) {
	if !r.Enabled(ev.scenario) {
		return
	}
	if !containsFold(r.Countries, ev.scenario.Country) {
		ev.warn("%s ignored: applies to %s, scenario country is %q",
			r.Toggle, strings.Join(r.Countries, "/"), ev.scenario.Country)
		return
	}
	b := ev.find(r.Target)
	if b == nil || !b.enabled {
		ev.warn("%s has no effect: %s duty is not enabled", r.Toggle, r.Target)
		return
	}
	b.rate = r.Rate
	b.note = r.Note
}

func (r HighestOfGroup) apply(ev *evaluation) {
	if !r.Active(ev.scenario) {
		return
	}

	var winner *bucket
	for _, b := range ev.buckets {
		if !b.special || !b.enabled {
			continue
		}
		if winner == nil || b.rate.GreaterThan(winner.rate) {
			winner = b
		}
	}
	if winner == nil {
		return
	}

	for _, b := range ev.buckets {
		if !b.special || !b.enabled || b == winner {
			continue
		}
		b.applied = false
		b.note = fmt.Sprintf("not applied: non-stacking keeps %s", winner.label)
	}
}

// DefaultIEEPARate is the contested IEEPA rate assumed for a country when
// the scenario gives none.
func DefaultIEEPARate(country string) decimal.Decimal {
	switch strings.ToUpper(strings.TrimSpace(country)) {
	case "CA":
		return decimal.RequireFromString("0.35")
	case "MX":
		return decimal.RequireFromString("0.25")
	default:
		return decimal.RequireFromString("0.10")
	}
}

// DefaultRules is the U.S. landed-cost rule list: MFN, Section 301 and
// IEEPA buckets, country carve-outs, then the non-stacking selection.
func DefaultRules() []Rule {
	return []Rule{
		Additive{
			Code:  CodeMFN,
			Label: "Base MFN duty",
			Rate: func(s Scenario) (decimal.Decimal, bool) {
				return s.MFNRate, true
			},
		},
		Additive{
			Code:    CodeSection301,
			Label:   "Section 301",
			Special: true,
			Rate: func(s Scenario) (decimal.Decimal, bool) {
				return s.Section301Rate, s.Section301Rate.IsPositive()
			},
		},
		Additive{
			Code:    CodeIEEPA,
			Label:   "IEEPA (contested)",
			Special: true,
			Rate: func(s Scenario) (decimal.Decimal, bool) {
				if !s.IEEPAIncluded {
					return decimal.Zero, false
				}
				if s.IEEPARate.IsPositive() {
					return s.IEEPARate, true
				}
				return DefaultIEEPARate(s.Country), true
			},
		},
		Override{
			Toggle:    "energy_potash",
			Target:    CodeIEEPA,
			Countries: []string{"CA"},
			Rate:      decimal.RequireFromString("0.10"),
			Note:      "energy/potash carve-out at 10%",
			Enabled:   func(s Scenario) bool { return s.EnergyPotash },
		},
		Override{
			Toggle:    "brazil_targeted",
			Target:    CodeIEEPA,
			Countries: []string{"BR"},
			Rate:      decimal.RequireFromString("0.50"),
			Note:      "targeted product: 10% baseline plus 40%",
			Enabled:   func(s Scenario) bool { return s.BrazilTargeted },
		},
		Override{
			Toggle:    "usmca",
			Target:    CodeIEEPA,
			Countries: []string{"CA", "MX"},
			Rate:      decimal.Zero,
			Note:      "USMCA-qualifying goods exempt",
			Enabled:   func(s Scenario) bool { return s.USMCA },
		},
		HighestOfGroup{
			Active: func(s Scenario) bool { return s.NonStacking },
		},
	}
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
