package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	require.Equal(t, 3, cfg.Storage.CompressionLevel)
	require.Equal(t, 7, cfg.Gc.GracePeriodDays)
	require.Equal(t, int64(86400), cfg.Session.AskThresholdSecs)
	require.Equal(t, int64(604800), cfg.Session.AutoCompactThresholdSecs)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	dir := t.TempDir()

	cfg := Default()
	cfg.Storage.CompressionLevel = 9
	cfg.Gc.GracePeriodDays = 1
	cfg.Session.AskThresholdSecs = 60
	require.NoError(t, cfg.Save(dir))

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	partial := "storage:\n  compression_level: 19\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(partial), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, 19, cfg.Storage.CompressionLevel)
	require.Equal(t, Default().Gc.GracePeriodDays, cfg.Gc.GracePeriodDays)
	require.Equal(t, Default().Session.AskThresholdSecs, cfg.Session.AskThresholdSecs)
}
