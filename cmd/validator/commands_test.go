package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/maritime-claim-validator/internal/core/domain"
)

func TestReadNarrative(t *testing.T) {
	got, err := readNarrative(strings.NewReader("  Maersk shifted to the Cape.\n"), "-")
	require.NoError(t, err)
	assert.Equal(t, "Maersk shifted to the Cape.", got)

	path := filepath.Join(t.TempDir(), "theme.txt")
	require.NoError(t, os.WriteFile(path, []byte("Suez transits fell"), 0o600))

	got, err = readNarrative(strings.NewReader("ignored"), path)
	require.NoError(t, err)
	assert.Equal(t, "Suez transits fell", got)

	_, err = readNarrative(strings.NewReader("   "), "-")
	assert.Error(t, err)
}

func TestResultRows(t *testing.T) {
	rows := resultRows(domain.ResultSet{
		Columns: []string{"portname", "calls"},
		Rows:    [][]any{{"ROTTERDAM", int64(45)}, {"ANTWERP"}},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"portname": "ROTTERDAM", "calls": int64(45)}, rows[0])
	assert.Equal(t, map[string]any{"portname": "ANTWERP"}, rows[1])
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, writeJSON(&buf, map[string]int64{"theme_id": 7}))
	assert.Equal(t, "{\n  \"theme_id\": 7\n}\n", buf.String())
}

func TestNewLogger(t *testing.T) {
	assert.Equal(t, "debug", newLogger("production", "DEBUG").GetLevel().String())
	assert.Equal(t, "info", newLogger("local", "nonsense").GetLevel().String())
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"serve", "migrate", "add-theme", "add-claim", "validate", "generate-claims", "revalidate", "bulk", "summary", "query"} {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestManualClaimFromFlags(t *testing.T) {
	themeID, claimText, sqlText, claimLogic, claimPeriod = 7, "Piraeus calls doubled", "SELECT 1", "counts calls", "Q2 2025"

	claimType = "Port Frequency"
	mc := manualClaimFromFlags()

	assert.Equal(t, int64(7), mc.ThemeID)
	assert.Equal(t, domain.ClaimTypePortFrequency, mc.Type)
	assert.Equal(t, "SELECT 1", mc.Query)
	assert.Equal(t, "counts calls", mc.Logic)
	assert.Equal(t, "Q2 2025", mc.Period)

	claimType = ""
	assert.Empty(t, manualClaimFromFlags().Type)

	themeID, claimText, sqlText, claimLogic, claimPeriod = 0, "", "", "", ""
}
