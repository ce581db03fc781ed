package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, ":631", cfg.ListenAddr)
	assert.Equal(t, filepath.Join("data", "lprint.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join("data", "spool"), cfg.SpoolDir)
	assert.Equal(t, "stderr", cfg.ErrorLogPath)
	assert.True(t, cfg.DNSSD.Enabled)
	assert.Equal(t, []string{"_print"}, cfg.DNSSD.Subtypes)
	assert.Equal(t, 100, cfg.JobHistory)
	assert.Equal(t, int64(1024*1024), cfg.MaxLogBytes())

	port, err := cfg.Port()
	require.NoError(t, err)
	assert.Equal(t, 631, port)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lprintd.yaml")
	content := `
listen: 127.0.0.1:8631
data_dir: ` + dir + `
error_log: error_log
dnssd:
  enabled: false
printers:
  - name: label
    driver: pwg_4inch-203dpi-black_1
    device_uri: usb://Acme/Label
  - name: office
    driver: pwg_common-300dpi-srgb_8
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	t.Setenv("LPRINT_LOG_LEVEL", "debug")
	t.Setenv("LPRINT_JOB_HISTORY", "5")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8631", cfg.ListenAddr)
	assert.Equal(t, filepath.Join(dir, "error_log"), cfg.ErrorLogPath)
	assert.Equal(t, filepath.Join(dir, "lprint.db"), cfg.DBPath)
	assert.False(t, cfg.DNSSD.Enabled)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.JobHistory)
	require.Len(t, cfg.Printers, 2)
	assert.Equal(t, "usb://Acme/Label", cfg.Printers[0].DeviceURI)
	assert.Equal(t, "pwg_common-300dpi-srgb_8", cfg.Printers[1].Driver)
}

func TestLoadRejectsDuplicatePrinters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lprintd.yaml")
	content := "printers:\n  - name: a\n  - name: a\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(viper.New(), path)
	assert.ErrorContains(t, err, "duplicate name")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnsurePort(t *testing.T) {
	cases := map[string]string{
		"":              ":631",
		"localhost":     "localhost:631",
		":8631":         ":8631",
		"[::1]":         "[::1]:631",
		"10.0.0.1:9100": "10.0.0.1:9100",
	}
	for in, want := range cases {
		assert.Equal(t, want, ensurePort(in, "631"), "ensurePort(%q)", in)
	}
}

func TestParseSize(t *testing.T) {
	n, ok := parseSize("2k")
	assert.True(t, ok)
	assert.Equal(t, int64(2048), n)
	_, ok = parseSize("lots")
	assert.False(t, ok)
}
