package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadPolicyEmptyPathReturnsDefaults(t *testing.T) {
	p, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPolicy(), p)
}

func TestLoadPolicyOverridesOnlyNamedKeys(t *testing.T) {
	path := writePolicy(t, `
exit:
  atr_k: 3.0
risk:
  daily_max_spend_usd: 1234
protect:
  dry_run: true
`)
	p, err := LoadPolicy(path)
	require.NoError(t, err)

	assert.Equal(t, 3.0, p.Exit.ATRMultiple)
	assert.Equal(t, 1234.0, p.Risk.DailyMaxSpendUSD)
	assert.True(t, p.Protect.DryRun)

	// Everything else keeps the defaults.
	def := DefaultPolicy()
	assert.Equal(t, def.Exit.MinStopPct, p.Exit.MinStopPct)
	assert.Equal(t, def.Risk.DailyMaxNewPositions, p.Risk.DailyMaxNewPositions)
	assert.Equal(t, def.Protect.TimeInForce, p.Protect.TimeInForce)
	assert.Equal(t, def.Safeguards.Enabled, p.Safeguards.Enabled)
}

func TestLoadPolicyMissingFile(t *testing.T) {
	_, err := LoadPolicy(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadPolicyValidation(t *testing.T) {
	_, err := LoadPolicy(writePolicy(t, "exit:\n  min_stop_pct: 1.5\n"))
	assert.ErrorContains(t, err, "min_stop_pct")

	_, err = LoadPolicy(writePolicy(t, "exit:\n  atr_k: -1\n"))
	assert.ErrorContains(t, err, "atr_k")

	_, err = LoadPolicy(writePolicy(t, "protect:\n  time_in_force: ioc\n"))
	assert.ErrorContains(t, err, "time_in_force")

	_, err = LoadPolicy(writePolicy(t, "risk:\n  cash_buffer_pct: 1.2\n"))
	assert.ErrorContains(t, err, "cash_buffer_pct")
}

func TestLoadPolicyRejectsBadYAML(t *testing.T) {
	_, err := LoadPolicy(writePolicy(t, "exit: [not: a: map\n"))
	assert.Error(t, err)
}
