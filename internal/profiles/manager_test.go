package profiles_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kadirbelkuyu/chkit/internal/config"
	"github.com/kadirbelkuyu/chkit/internal/profiles"
)

func TestManagerSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	manager := profiles.NewManager(dir)

	cfg := &config.Config{
		Environment: "production",
		Database: config.DatabaseConfig{
			Protocol: config.ProtocolNative,
			Host:     "ch.internal",
			Port:     9440,
			Database: "events",
			Secure:   true,
		},
	}

	profile, err := manager.Save("Prod CH", cfg, false)
	require.NoError(t, err)
	require.Equal(t, "Prod_CH", profile.Name)
	require.Equal(t, config.ProtocolNative, profile.Protocol)
	require.Equal(t, "production", profile.Environment)
	require.FileExists(t, profile.Path)

	loaded, err := manager.Load(profile.Name)
	require.NoError(t, err)
	require.Equal(t, cfg.Database.Host, loaded.Database.Host)
	require.Equal(t, cfg.Database.Port, loaded.Database.Port)
	require.Equal(t, "production", loaded.Environment)
	require.Equal(t, "schema_migrations", loaded.Migrations.Table, "defaults are applied on load")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestManagerSaveRefusesToOverwrite(t *testing.T) {
	manager := profiles.NewManager(t.TempDir())
	cfg := &config.Config{Environment: "staging"}
	cfg.ApplyDefaults()

	_, err := manager.Save("staging.yaml", cfg, false)
	require.NoError(t, err)

	cfg.Database.Host = "ch-2.internal"
	_, err = manager.Save("staging", cfg, false)
	require.ErrorIs(t, err, profiles.ErrProfileExists)

	profile, err := manager.Save("staging", cfg, true)
	require.NoError(t, err)
	require.Equal(t, "staging", profile.Name)

	loaded, err := manager.Load("staging")
	require.NoError(t, err)
	require.Equal(t, "ch-2.internal", loaded.Database.Host)
}

func TestManagerListFiltersByProtocol(t *testing.T) {
	dir := t.TempDir()
	manager := profiles.NewManager(dir)

	writeConfig(t, dir, "alpha-native.yaml", "native")
	writeConfig(t, dir, "beta-http.yaml", "http")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))

	all, err := manager.List("")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "alpha-native", all[0].Name)

	nativeOnly, err := manager.List(config.ProtocolNative)
	require.NoError(t, err)
	require.Len(t, nativeOnly, 1)
	require.Equal(t, "alpha-native", nativeOnly[0].Name)

	httpOnly, err := manager.List(config.ProtocolHTTP)
	require.NoError(t, err)
	require.Len(t, httpOnly, 1)
	require.Equal(t, config.ProtocolHTTP, httpOnly[0].Protocol)
}

func TestManagerDelete(t *testing.T) {
	dir := t.TempDir()
	manager := profiles.NewManager(dir)
	writeConfig(t, dir, "staging.yaml", "native")

	require.NoError(t, manager.Delete("staging"))
	require.Error(t, manager.Delete("staging"))
}

func writeConfig(t *testing.T, dir, name, protocol string) {
	t.Helper()

	cfg := config.Config{
		Database: config.DatabaseConfig{
			Protocol: protocol,
			Host:     "localhost",
			Database: "default",
		},
	}

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	err = os.WriteFile(path, data, 0o644)
	require.NoError(t, err)
}
