package migration_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirbelkuyu/chkit/internal/config"
	"github.com/kadirbelkuyu/chkit/internal/migration"
	"github.com/kadirbelkuyu/chkit/internal/schema"
	"github.com/kadirbelkuyu/chkit/pkg/logger"
)

type runnerFixture struct {
	conn   *fakeConn
	admin  *fakeAdmin
	store  *fakeStore
	log    *logger.Logger
	runner *migration.Runner
}

func newRunnerFixture(migrations ...migration.Migration) *runnerFixture {
	f := &runnerFixture{
		conn:  newFakeConn(),
		admin: &fakeAdmin{},
		store: &fakeStore{},
		log:   logger.NewDiscard(),
	}

	tracker := migration.NewTracker(f.conn, f.log, migration.TrackerOptions{
		Table: "schema_migrations",
		Now:   func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) },
	})
	f.runner = migration.NewRunner(f.admin, f.conn, migration.StaticSource(migrations), tracker, f.store, f.log,
		migration.Options{Database: "shop", Environment: "test"})
	return f
}

func sqlMigration(version int64, name, scope string) migration.Migration {
	return migration.Migration{
		Version: version,
		Name:    name,
		Scope:   scope,
		Up:      migration.Statements(fmt.Sprintf("-- %d %s", version, name)),
	}
}

func TestMigrateAppliesPendingInOrder(t *testing.T) {
	f := newRunnerFixture(
		sqlMigration(3, "add_index", ""),
		sqlMigration(1, "create_users", ""),
		sqlMigration(2, "create_events", ""),
	)

	require.NoError(t, f.runner.Migrate(context.Background(), config.Controls{Verbose: true}))
	assert.Equal(t, []string{"-- 1 create_users", "-- 2 create_events", "-- 3 add_index"}, f.conn.statementsExecuted())
	assert.Equal(t, []string{"1", "2", "3"}, f.conn.versions)
	assert.Equal(t, 1, f.conn.cleared, "schema cache is invalidated after a run")
	assert.Equal(t, "test", f.store.values["environment"])

	version, err := f.runner.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), version)

	// A second run finds nothing to do.
	require.NoError(t, f.runner.Migrate(context.Background(), config.Controls{}))
	assert.Len(t, f.conn.statementsExecuted(), 3)
}

func TestMigrateHonoursTargetAndScope(t *testing.T) {
	f := newRunnerFixture(
		sqlMigration(1, "create_users", ""),
		sqlMigration(2, "create_events", "analytics"),
		sqlMigration(3, "create_reports", "analytics"),
		sqlMigration(4, "create_orders", ""),
	)

	err := f.runner.Migrate(context.Background(), config.Controls{Version: "3", Scope: "analytics"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-- 2 create_events", "-- 3 create_reports"}, f.conn.statementsExecuted())

	err = f.runner.Migrate(context.Background(), config.Controls{Version: "00000000000001_create_users.sql"})
	require.NoError(t, err)
	assert.Equal(t, []string{"-- 2 create_events", "-- 3 create_reports", "-- 1 create_users"}, f.conn.statementsExecuted())
}

func TestMigrateRejectsMalformedVersionBeforeExecuting(t *testing.T) {
	f := newRunnerFixture(sqlMigration(1, "create_users", ""))

	err := f.runner.Migrate(context.Background(), config.Controls{Version: "yesterday"})

	var cfgErr *migration.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Empty(t, f.conn.execs, "nothing may run before the version is validated")
	assert.Zero(t, f.store.created)
}

func TestMigrateRestoresExactLogLevel(t *testing.T) {
	var levelDuringRun logrus.Level
	f := newRunnerFixture()
	source := migration.StaticSource{
		{
			Version: 1,
			Name:    "quiet",
			Up: func(ctx context.Context, exec schema.Executor) error {
				levelDuringRun = f.log.GetLevel()
				return nil
			},
		},
	}
	tracker := migration.NewTracker(f.conn, f.log, migration.TrackerOptions{Table: "schema_migrations"})
	f.runner = migration.NewRunner(f.admin, f.conn, source, tracker, f.store, f.log, migration.Options{Database: "shop"})

	f.log.SetLevel(logrus.TraceLevel)
	require.NoError(t, f.runner.Migrate(context.Background(), config.Controls{Verbose: false}))

	assert.Equal(t, logrus.InfoLevel, levelDuringRun)
	assert.Equal(t, logrus.TraceLevel, f.log.GetLevel())
}

func TestMigrateRestoresVerboseOnFailure(t *testing.T) {
	var verboseDuringRun bool
	f := newRunnerFixture()
	source := migration.StaticSource{
		sqlMigration(1, "create_users", ""),
		{
			Version: 2,
			Name:    "broken",
			Up: func(ctx context.Context, exec schema.Executor) error {
				verboseDuringRun = f.log.Verbose()
				return errors.New("code: 62, syntax error")
			},
		},
		sqlMigration(3, "never_runs", ""),
	}
	tracker := migration.NewTracker(f.conn, f.log, migration.TrackerOptions{Table: "schema_migrations"})
	f.runner = migration.NewRunner(f.admin, f.conn, source, tracker, f.store, f.log, migration.Options{Database: "shop"})

	f.log.SetVerbose(false)
	err := f.runner.Migrate(context.Background(), config.Controls{Verbose: true})
	require.Error(t, err)

	var migErr *migration.MigrationError
	require.ErrorAs(t, err, &migErr)
	assert.Equal(t, int64(2), migErr.Migration.Version)
	assert.Contains(t, err.Error(), "syntax error")

	assert.True(t, verboseDuringRun)
	assert.False(t, f.log.Verbose(), "verbosity is restored")
	assert.Equal(t, []string{"-- 1 create_users"}, f.conn.statementsExecuted())
	assert.Equal(t, []string{"1"}, f.conn.versions)
	assert.Zero(t, f.conn.cleared)
	assert.Empty(t, f.store.values)
}

func TestCreateReclassifiesAlreadyExists(t *testing.T) {
	f := newRunnerFixture()
	f.admin.createErr = &clickhouse.Exception{Code: 82, Name: "DB::Exception", Message: "Database shop already exists"}

	err := f.runner.Create(context.Background())
	require.ErrorIs(t, err, migration.ErrDatabaseAlreadyExists)
	assert.Empty(t, f.conn.execs)
}

func TestCreatePropagatesOtherErrors(t *testing.T) {
	f := newRunnerFixture()
	f.admin.createErr = errors.New("code: 516, authentication failed")

	err := f.runner.Create(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, migration.ErrDatabaseAlreadyExists)
	assert.Equal(t, f.admin.createErr, err)
}

func TestCreateProvisionsBookkeepingTables(t *testing.T) {
	f := newRunnerFixture()

	require.NoError(t, f.runner.Create(context.Background()))
	assert.Equal(t, []string{"create shop"}, f.admin.calls)
	require.Len(t, f.conn.execs, 1)
	assert.Contains(t, f.conn.execs[0], "CREATE TABLE IF NOT EXISTS `schema_migrations`")
	assert.Contains(t, f.conn.execs[0], "ENGINE = ReplacingMergeTree(applied_at)")
	assert.Equal(t, 1, f.store.created)
}

func TestPurgeReleasesThenRecreates(t *testing.T) {
	f := newRunnerFixture()

	require.NoError(t, f.runner.Purge(context.Background()))
	assert.Equal(t, 1, f.conn.released)
	assert.Equal(t, []string{"drop shop", "create shop"}, f.admin.calls)
}
