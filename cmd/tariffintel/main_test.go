package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dutyOutput struct {
	TotalDutyAmount string   `json:"total_duty_amount"`
	LandedCost      string   `json:"landed_cost"`
	Warnings        []string `json:"warnings"`
}

func runDutyCLI(t *testing.T, stdin string, args ...string) dutyOutput {
	t.Helper()

	var out bytes.Buffer
	app := newCLI()
	app.Writer = &out
	app.Reader = strings.NewReader(stdin)

	require.NoError(t, app.Run(append([]string{"tariffintel", "duty"}, args...)))

	var res dutyOutput
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	return res
}

func TestDutyCommandFlags(t *testing.T) {
	res := runDutyCLI(t, "",
		"--country", "CN",
		"--customs-value", "100000",
		"--mfn-rate", "0.025",
		"--section301-rate", "0.25",
		"--ieepa", "--ieepa-rate", "0.10",
		"--non-stacking",
	)

	assert.Equal(t, "27500", res.TotalDutyAmount)
	assert.Equal(t, "127500", res.LandedCost)
	assert.Empty(t, res.Warnings)
}

func TestDutyCommandScenarioFileWithOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"country":"CA","customs_value":1000,"freight_insurance":50,"mfn_rate":0.02,"ieepa_included":true}`), 0o644))

	res := runDutyCLI(t, "", "--scenario", path, "--usmca")
	assert.Equal(t, "20", res.TotalDutyAmount)
	assert.Equal(t, "1070", res.LandedCost)
}

func TestDutyCommandStdinAndBadNumbers(t *testing.T) {
	res := runDutyCLI(t, `{"customs_value":"n/a","mfn_rate":0.1}`, "--scenario", "-")
	assert.Equal(t, "0", res.TotalDutyAmount)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "customs_value")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"tariff", "section 301"}, splitList(" tariff, ,section 301 "))
	assert.Nil(t, splitList(""))
}
