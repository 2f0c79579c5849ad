package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/kadirbelkuyu/chkit/internal/config"
	"github.com/kadirbelkuyu/chkit/internal/database"
	"github.com/kadirbelkuyu/chkit/pkg/logger"
	"github.com/kadirbelkuyu/chkit/pkg/progress"
)

// ErrDatabaseAlreadyExists is returned by Create when the database is
// already there.
var ErrDatabaseAlreadyExists = errors.New("database already exists")

// MigrationError wraps the failure that stopped a run.
type MigrationError struct {
	Migration Migration
	Err       error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %s failed: %v", e.Migration, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Admin issues database level statements, normally on a connection to the
// server's default database.
type Admin interface {
	CreateDatabase(ctx context.Context, name string) error
	DropDatabase(ctx context.Context, name string) error
}

// MetadataStore is the key/value bookkeeping updated after migrating.
type MetadataStore interface {
	Enabled() bool
	CreateTable(ctx context.Context) error
	Write(ctx context.Context, key, value string) error
}

type Options struct {
	Database     string
	Environment  string
	ShowProgress bool
}

type Runner struct {
	admin   Admin
	conn    Conn
	source  Source
	tracker *Tracker
	store   MetadataStore
	logger  *logger.Logger
	opts    Options
}

func NewRunner(admin Admin, conn Conn, source Source, tracker *Tracker, store MetadataStore, log *logger.Logger, opts Options) *Runner {
	return &Runner{
		admin:   admin,
		conn:    conn,
		source:  source,
		tracker: tracker,
		store:   store,
		logger:  log,
		opts:    opts,
	}
}

// Create makes the database and its bookkeeping tables.
func (r *Runner) Create(ctx context.Context) error {
	if err := r.admin.CreateDatabase(ctx, r.opts.Database); err != nil {
		if database.IsAlreadyExists(err) {
			return fmt.Errorf("%w: %s", ErrDatabaseAlreadyExists, r.opts.Database)
		}
		return err
	}
	r.logger.Infof("Created database '%s'", r.opts.Database)

	return r.provision(ctx)
}

func (r *Runner) Drop(ctx context.Context) error {
	if err := r.admin.DropDatabase(ctx, r.opts.Database); err != nil {
		return err
	}
	r.logger.Infof("Dropped database '%s'", r.opts.Database)
	return nil
}

// Purge drops and recreates the database. A failure half way leaves it
// dropped.
func (r *Runner) Purge(ctx context.Context) error {
	r.release(r.admin)
	r.release(r.conn)

	if err := r.Drop(ctx); err != nil {
		return err
	}
	return r.Create(ctx)
}

// Migrate applies pending migrations in ascending version order, up to the
// target version when one is given. The logger's verbosity follows
// controls.Verbose for the run and its level is restored afterwards.
func (r *Runner) Migrate(ctx context.Context, controls config.Controls) error {
	target, hasTarget, err := ParseTargetVersion(controls.Version)
	if err != nil {
		return err
	}

	levelWas := r.logger.GetLevel()
	r.logger.SetVerbose(controls.Verbose)
	defer r.logger.SetLevel(levelWas)

	if err := r.provision(ctx); err != nil {
		return err
	}

	pending, err := r.pending(ctx, target, hasTarget, controls.Scope)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		r.logger.Info("Schema is up to date")
		return nil
	}

	var bar *progress.Bar
	if r.opts.ShowProgress {
		bar = progress.NewBar(int64(len(pending)), "Migrating")
	}

	for _, m := range pending {
		r.logger.Debugf("== %s: migrating", m)
		if err := m.Up(ctx, r.conn); err != nil {
			return &MigrationError{Migration: m, Err: err}
		}
		if err := r.tracker.Record(ctx, m); err != nil {
			return &MigrationError{Migration: m, Err: err}
		}
		r.logger.Debugf("== %s: migrated", m)
		bar.Increment()
	}
	bar.Finish()

	if c, ok := r.conn.(interface{ ClearCache() }); ok {
		c.ClearCache()
	}

	if r.store != nil && r.store.Enabled() {
		if err := r.store.Write(ctx, "environment", r.opts.Environment); err != nil {
			return err
		}
	}

	r.logger.Infof("%d migrations applied", len(pending))
	return nil
}

// Version is the latest applied migration, 0 for a fresh database.
func (r *Runner) Version(ctx context.Context) (int64, error) {
	exists, err := r.conn.TableExists(ctx, r.tracker.TableName())
	if err != nil || !exists {
		return 0, err
	}
	return r.tracker.Current(ctx)
}

func (r *Runner) pending(ctx context.Context, target int64, hasTarget bool, scope string) ([]Migration, error) {
	migrations, err := r.source.Migrations()
	if err != nil {
		return nil, err
	}

	applied, err := r.tracker.Applied(ctx)
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, m := range migrations {
		switch {
		case applied[m.Version]:
		case hasTarget && m.Version > target:
		case scope != "" && m.Scope != scope:
			r.logger.Debugf("skipping %s: outside scope %s", m, scope)
		default:
			pending = append(pending, m)
		}
	}
	return pending, nil
}

func (r *Runner) provision(ctx context.Context) error {
	if err := r.tracker.CreateTable(ctx); err != nil {
		return err
	}
	if r.store != nil {
		return r.store.CreateTable(ctx)
	}
	return nil
}

func (r *Runner) release(conn any) {
	if c, ok := conn.(interface{ ReleaseConnections() }); ok {
		c.ReleaseConnections()
	}
}
