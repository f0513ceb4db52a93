package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "xls2csv.yaml")
	content := `
debug: true
csv:
  delimiter: ";"
  quoting: all
  sheet_delimiter: ""
reader:
  on_demand: true
  mmap: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, ";", cfg.CSV.Delimiter)
	assert.Equal(t, "all", cfg.CSV.Quoting)
	assert.Equal(t, "", cfg.CSV.SheetDelimiterOrDefault())
	assert.True(t, cfg.Reader.OnDemand)
	assert.True(t, cfg.Reader.Mmap)
	assert.False(t, cfg.Reader.IgnoreCorruption)
	assert.Equal(t, 400, cfg.Watch.DebounceMS)
}

func TestLoad_emptyPathGivesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ",", cfg.CSV.Delimiter)
	assert.Equal(t, "minimal", cfg.CSV.Quoting)
	assert.Equal(t, DefaultSheetDelimiter, cfg.CSV.SheetDelimiterOrDefault())
	assert.Equal(t, []string{".xls", ".xlsx"}, cfg.Watch.Extensions)
}

func TestLoad_errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("csv: [unterminated"), 0600))
	_, err = Load(path)
	assert.ErrorContains(t, err, "failed to parse config")
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"XLS2CSV_DELIMITER":         "tab",
		"XLS2CSV_SHEET_DELIMITER":   "x0c",
		"XLS2CSV_ON_DEMAND":         "true",
		"XLS2CSV_IGNORE_CORRUPTION": "1",
		"XLS2CSV_DATE_FORMAT":       "%Y/%m/%d",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, ApplyEnv(cfg, lookup))

	assert.Equal(t, "tab", cfg.CSV.Delimiter)
	assert.Equal(t, "x0c", cfg.CSV.SheetDelimiterOrDefault())
	assert.True(t, cfg.Reader.OnDemand)
	assert.True(t, cfg.Reader.IgnoreCorruption)
	assert.Equal(t, "%Y/%m/%d", cfg.CSV.DateFormat)
	assert.Equal(t, "minimal", cfg.CSV.Quoting)
}

func TestApplyEnv_badBool(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "XLS2CSV_MMAP" {
			return "sometimes", true
		}
		return "", false
	}
	cfg, err := Load("")
	require.NoError(t, err)
	err = ApplyEnv(cfg, lookup)
	assert.ErrorContains(t, err, "XLS2CSV_MMAP")
	assert.False(t, cfg.Reader.Mmap)
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "absent.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("XLS2CSV_TEST_QUOTING=nonnumeric\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("XLS2CSV_TEST_QUOTING") })
	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "nonnumeric", os.Getenv("XLS2CSV_TEST_QUOTING"))
}
