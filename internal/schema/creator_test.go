package schema_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/chkit/internal/schema"
	"github.com/kadirbelkuyu/chkit/pkg/logger"
)

type recordingExecutor struct {
	statements []string
	failOn     int
}

func (e *recordingExecutor) Exec(ctx context.Context, query string, args ...any) error {
	e.statements = append(e.statements, query)
	if e.failOn > 0 && len(e.statements) == e.failOn {
		return errors.New("code: 253, replica already exists")
	}
	return nil
}

func metadataDefinition() schema.TableDefinition {
	return schema.TableDefinition{
		Name:        "ar_internal_metadata",
		IfNotExists: true,
		Columns: []schema.ColumnDefinition{
			{Name: "key", Type: "String"},
			{Name: "value", Type: "String"},
		},
		Engine: "ReplacingMergeTree PARTITION BY key ORDER BY key",
	}
}

func TestBuildCreateTable(t *testing.T) {
	statements, err := schema.BuildCreateTable(metadataDefinition())
	require.NoError(t, err)
	require.Len(t, statements, 1)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS `ar_internal_metadata` (`key` String, `value` String) ENGINE = ReplacingMergeTree PARTITION BY key ORDER BY key", statements[0])
}

func TestBuildCreateTableDistributed(t *testing.T) {
	def := metadataDefinition()
	def.Cluster = "main"
	def.Distributed = true
	def.DistributedSuffix = "local"
	def.ShardingKey = "cityHash64(created_at)"
	def.Columns[1].Comment = "it's stored"

	statements, err := schema.BuildCreateTable(def)
	require.NoError(t, err)
	require.Len(t, statements, 2)
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS `ar_internal_metadata_local` ON CLUSTER `main` (`key` String, `value` String COMMENT 'it\\'s stored') ENGINE = ReplacingMergeTree PARTITION BY key ORDER BY key", statements[0])
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS `ar_internal_metadata` ON CLUSTER `main` AS `ar_internal_metadata_local` ENGINE = Distributed('main', currentDatabase(), 'ar_internal_metadata_local', cityHash64(created_at))", statements[1])
}

func TestBuildCreateTableValidation(t *testing.T) {
	def := metadataDefinition()
	def.Distributed = true
	_, err := schema.BuildCreateTable(def)
	assert.Error(t, err)

	_, err = schema.BuildCreateTable(schema.TableDefinition{Name: "t", Engine: "Memory"})
	assert.Error(t, err)
}

func TestCreatorStopsOnFirstFailure(t *testing.T) {
	def := metadataDefinition()
	def.Cluster = "main"
	def.Distributed = true

	exec := &recordingExecutor{failOn: 1}
	err := schema.NewCreator(exec, logger.NewDiscard()).CreateTable(context.Background(), def)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica already exists")
	assert.Len(t, exec.statements, 1)
	assert.Contains(t, exec.statements[0], "`ar_internal_metadata_distributed`")
}
