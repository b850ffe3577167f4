package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const miniTable = `
language: en
text:
  help_prefix: Code
tiers:
  - tier: 1
    name: low
    severity: success
    guidance: routine
features:
  - code: A1
    description: first indicator
    importance: "0.50"
  - code: B2
    description: second indicator
    importance: "0.0837"
`

func TestLabelForKnownCodes(t *testing.T) {
	table, err := ParseTable([]byte(miniTable))
	require.NoError(t, err)

	assert.Equal(t, "1.first indicator(A1, importance: 0.50)", table.LabelFor("A1"))
	assert.Equal(t, "2.second indicator(B2, importance: 0.0837)", table.LabelFor("B2"))
	assert.NotEqual(t, "A1", table.LabelFor("A1"))

	entry, ok := table.Lookup("B2")
	require.True(t, ok)
	assert.Equal(t, 2, entry.Rank)
	assert.InDelta(t, 0.0837, entry.Importance, 1e-12)
}

func TestLabelForFallsBackToCode(t *testing.T) {
	table, err := ParseTable([]byte(miniTable))
	require.NoError(t, err)

	for _, code := range []string{"Z9", "", "a1", "C1.2"} {
		assert.Equal(t, code, table.LabelFor(code))
		_, ok := table.Lookup(code)
		assert.False(t, ok)
	}
}

func TestHelpAndTiers(t *testing.T) {
	table, err := ParseTable([]byte(miniTable))
	require.NoError(t, err)

	assert.Equal(t, "Code: A1", table.Help("A1"))
	assert.Equal(t, Tier{Tier: 1, Name: "low", Severity: "success", Guidance: "routine"}, table.Tier(1))

	missing := table.Tier(3)
	assert.Equal(t, "Level 3", missing.Name)
	assert.Equal(t, "info", missing.Severity)
	assert.Equal(t, "Level 2", LevelLabel(2))
}

func TestStale(t *testing.T) {
	table, err := ParseTable([]byte(miniTable))
	require.NoError(t, err)

	unlabeled, unknown := table.Stale([]string{"A1", "C3"})
	assert.Equal(t, []string{"C3"}, unlabeled)
	assert.Equal(t, []string{"B2"}, unknown)

	unlabeled, unknown = table.Stale([]string{"B2", "A1"})
	assert.Empty(t, unlabeled)
	assert.Empty(t, unknown)
}

func TestParseTableErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{name: "no language", payload: "features: []"},
		{name: "bad language", payload: "language: '!!'"},
		{name: "unknown field", payload: "language: en\ncolour: red"},
		{name: "duplicate code", payload: "language: en\nfeatures:\n  - {code: A, importance: '1'}\n  - {code: A, importance: '1'}"},
		{name: "bad importance", payload: "language: en\nfeatures:\n  - {code: A, importance: high}"},
		{name: "bad severity", payload: "language: en\ntiers:\n  - {tier: 1, severity: loud}"},
		{name: "tier zero", payload: "language: en\ntiers:\n  - {tier: 0, severity: info}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}
