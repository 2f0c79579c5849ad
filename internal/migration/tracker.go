package migration

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirbelkuyu/chkit/internal/database"
	"github.com/kadirbelkuyu/chkit/internal/schema"
	"github.com/kadirbelkuyu/chkit/pkg/logger"
)

// Conn is the part of a connection the runner and tracker need.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Select(ctx context.Context, query string, args ...any) (*database.Result, error)
	TableExists(ctx context.Context, name string) (bool, error)
}

type TrackerOptions struct {
	Table   string
	Cluster string
	Now     func() time.Time
}

// Tracker records applied versions in a ReplacingMergeTree table. A version
// row is written once and never changed.
type Tracker struct {
	conn    Conn
	creator *schema.Creator
	opts    TrackerOptions
	logger  *logger.Logger
}

func NewTracker(conn Conn, log *logger.Logger, opts TrackerOptions) *Tracker {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Tracker{
		conn:    conn,
		creator: schema.NewCreator(conn, log),
		opts:    opts,
		logger:  log,
	}
}

func (t *Tracker) TableName() string {
	return t.opts.Table
}

func (t *Tracker) CreateTable(ctx context.Context) error {
	exists, err := t.conn.TableExists(ctx, t.opts.Table)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	return t.creator.CreateTable(ctx, schema.TableDefinition{
		Name:        t.opts.Table,
		IfNotExists: true,
		Cluster:     t.opts.Cluster,
		Columns: []schema.ColumnDefinition{
			{Name: "version", Type: "String"},
			{Name: "scope", Type: "String", Default: "''"},
			{Name: "applied_at", Type: "DateTime64(6)"},
		},
		Engine: "ReplacingMergeTree(applied_at) PARTITION BY version ORDER BY (version)",
	})
}

// Applied returns the recorded versions, read with FINAL so duplicates
// from repeated records collapse.
func (t *Tracker) Applied(ctx context.Context) (map[int64]bool, error) {
	query := fmt.Sprintf("SELECT version FROM %s FINAL ORDER BY version", schema.QuoteIdentifier(t.opts.Table))

	result, err := t.conn.Select(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}

	applied := make(map[int64]bool, len(result.Rows))
	for _, raw := range result.Column(0) {
		var version int64
		if _, err := fmt.Sscan(raw, &version); err != nil {
			return nil, fmt.Errorf("invalid version %q in %s: %w", raw, t.opts.Table, err)
		}
		applied[version] = true
	}
	return applied, nil
}

// Current returns the highest applied version, 0 when none.
func (t *Tracker) Current(ctx context.Context) (int64, error) {
	applied, err := t.Applied(ctx)
	if err != nil {
		return 0, err
	}

	var current int64
	for version := range applied {
		if version > current {
			current = version
		}
	}
	return current, nil
}

func (t *Tracker) Record(ctx context.Context, m Migration) error {
	query := fmt.Sprintf("INSERT INTO %s (version, scope, applied_at) VALUES (?, ?, ?)", schema.QuoteIdentifier(t.opts.Table))
	if err := t.conn.Exec(ctx, query, fmt.Sprint(m.Version), m.Scope, t.opts.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m, err)
	}
	return nil
}
