package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/chkit/internal/config"
	"github.com/kadirbelkuyu/chkit/internal/database"
	"github.com/kadirbelkuyu/chkit/internal/profiles"
	"github.com/kadirbelkuyu/chkit/internal/schema"
)

func TestServiceTables(t *testing.T) {
	cfg := &config.Config{Database: config.DatabaseConfig{Cluster: "main"}}
	cfg.ApplyDefaults()

	assert.Equal(t, []string{"schema_migrations", "ar_internal_metadata"}, serviceTables(cfg))

	cfg.Metadata.Distributed = true
	assert.Equal(t, []string{"schema_migrations", "ar_internal_metadata", "ar_internal_metadata_distributed"}, serviceTables(cfg))
}

func TestDefaultSchemaFile(t *testing.T) {
	assert.Equal(t, "db/schema.rb", defaultSchemaFile(schema.Simple))
	assert.Equal(t, "db/clickhouse_schema.rb", defaultSchemaFile(schema.Full))
}

func TestPrintResult(t *testing.T) {
	var out bytes.Buffer
	err := printResult(&out, &database.Result{
		Names: []string{"name", "total"},
		Types: []string{"String", "UInt64"},
		Rows:  [][]any{{"events", int64(42)}, {"users", int64(7)}},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.Equal(t, []string{"name", "total"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"String", "UInt64"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"events", "42"}, strings.Fields(lines[2]))
	assert.Equal(t, "2 rows", lines[5])
}

func TestPrintResultRaw(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printResult(&out, &database.Result{Raw: []byte("1,\"a\"\n")}))
	assert.Equal(t, "1,\"a\"\n", out.String())
}

func TestWriteOutput(t *testing.T) {
	var out bytes.Buffer
	service := NewServiceWith(strings.NewReader(""), &out)

	require.NoError(t, service.writeOutput("-", "script"))
	assert.Equal(t, "script", out.String())

	path := filepath.Join(t.TempDir(), "db", "schema.rb")
	require.NoError(t, service.writeOutput(path, "script"))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "script", string(data))
}

func TestEnvironments(t *testing.T) {
	manager := profiles.NewManager(t.TempDir())
	var out bytes.Buffer
	service := NewServiceWith(strings.NewReader(""), &out)

	require.NoError(t, service.Environments(manager))
	assert.Contains(t, out.String(), "No environments found")

	cfg := &config.Config{Environment: "staging"}
	cfg.ApplyDefaults()
	_, err := manager.Save("staging", cfg, false)
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, service.Environments(manager))
	assert.Contains(t, out.String(), "staging")
	assert.Contains(t, out.String(), "native")
}

func TestSaveAndDeleteEnvironment(t *testing.T) {
	manager := profiles.NewManager(t.TempDir())
	var out bytes.Buffer
	service := NewServiceWith(strings.NewReader("n\ny\n"), &out)

	cfg := &config.Config{Environment: "production", Database: config.DatabaseConfig{Host: "ch.internal", Database: "shop"}}
	cfg.ApplyDefaults()

	require.NoError(t, service.SaveEnvironment(manager, "prod", cfg, false))
	assert.Contains(t, out.String(), "Saved environment prod (shop on ch.internal:9000)")
	require.Error(t, service.SaveEnvironment(manager, "prod", cfg, false))

	require.NoError(t, service.DeleteEnvironment(manager, "prod", false))
	assert.Contains(t, out.String(), "Operation cancelled by user.")
	_, err := manager.Load("prod")
	require.NoError(t, err)

	require.NoError(t, service.DeleteEnvironment(manager, "prod", false))
	assert.Contains(t, out.String(), "Deleted environment prod")
	_, err = manager.Load("prod")
	require.Error(t, err)
}

func TestDropCancelled(t *testing.T) {
	var out bytes.Buffer
	service := NewServiceWith(strings.NewReader("n\n"), &out)
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	require.NoError(t, service.Drop(context.Background(), cfg, false, false))
	assert.Contains(t, out.String(), "Confirm running drop for default")
	assert.NotContains(t, out.String(), "Dropped")
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "0123456789abcdef...", shortChecksum("0123456789abcdef0123"))
	assert.Equal(t, "abc", shortChecksum("abc"))
	assert.Equal(t, "ch:9000", formatServerLabel(&config.Config{Database: config.DatabaseConfig{Host: "ch", Port: 9000}}))
	assert.Equal(t, "n/a", displayValue(" ", "n/a"))
}
