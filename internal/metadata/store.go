// Package metadata keeps key/value bookkeeping in a ReplacingMergeTree
// table. ClickHouse has no UPDATE, so a changed value is appended as a new
// row and the engine collapses rows per key during merges. Two writers that
// race on one key can both append; whichever row the merge keeps wins.
package metadata

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirbelkuyu/chkit/internal/database"
	"github.com/kadirbelkuyu/chkit/internal/schema"
	"github.com/kadirbelkuyu/chkit/pkg/logger"
)

const (
	tableEngine = "ReplacingMergeTree(created_at) PARTITION BY key ORDER BY key"
	shardingKey = "cityHash64(created_at)"
)

// Conn is the part of a connection the store needs.
type Conn interface {
	Exec(ctx context.Context, query string, args ...any) error
	Select(ctx context.Context, query string, args ...any) (*database.Result, error)
	TableExists(ctx context.Context, name string) (bool, error)
}

type Options struct {
	Table             string
	Enabled           bool
	Distributed       bool
	DistributedSuffix string
	Cluster           string
	// Now stamps appended rows; time.Now when nil.
	Now func() time.Time
}

func (o Options) definition() schema.TableDefinition {
	return schema.TableDefinition{
		Name:        o.Table,
		IfNotExists: true,
		Cluster:     o.Cluster,
		Columns: []schema.ColumnDefinition{
			{Name: "key", Type: "String"},
			{Name: "value", Type: "String"},
			{Name: "created_at", Type: "DateTime64(6)"},
			{Name: "updated_at", Type: "DateTime64(6)"},
		},
		Engine:            tableEngine,
		Distributed:       o.Distributed,
		DistributedSuffix: o.DistributedSuffix,
		ShardingKey:       shardingKey,
	}
}

type Store struct {
	conn    Conn
	creator *schema.Creator
	opts    Options
	caps    Capabilities
	logger  *logger.Logger
}

func NewStore(conn Conn, log *logger.Logger, opts Options, caps Capabilities) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		conn:    conn,
		creator: schema.NewCreator(conn, log),
		opts:    opts,
		caps:    caps,
		logger:  log,
	}
}

func (s *Store) Enabled() bool {
	return s.opts.Enabled
}

func (s *Store) TableName() string {
	return s.opts.Table
}

// CreateTable provisions the table unless it exists or tracking is off.
func (s *Store) CreateTable(ctx context.Context) error {
	if !s.opts.Enabled {
		return nil
	}

	exists, err := s.conn.TableExists(ctx, s.opts.Table)
	if err != nil {
		return err
	}
	if exists {
		s.logger.Debugf("metadata table %s already exists", s.opts.Table)
		return nil
	}

	return s.creator.CreateTable(ctx, s.opts.definition())
}

// Read returns the current value of key.
func (s *Store) Read(ctx context.Context, key string) (string, bool, error) {
	final := ""
	if s.caps.FinalRead {
		final = " FINAL"
	}

	query := fmt.Sprintf("SELECT value FROM %s%s WHERE key = ? ORDER BY key ASC LIMIT 1",
		schema.QuoteIdentifier(s.opts.Table), final)

	result, err := s.conn.Select(ctx, query, key)
	if err != nil {
		return "", false, fmt.Errorf("failed to read metadata %s: %w", key, err)
	}
	if len(result.Rows) == 0 {
		return "", false, nil
	}
	return result.String(0, 0), true, nil
}

// Write stores value under key. Nothing is appended when the value is
// unchanged.
func (s *Store) Write(ctx context.Context, key, value string) error {
	current, found, err := s.Read(ctx, key)
	if err != nil {
		return err
	}
	if found && current == value {
		return nil
	}

	now := s.opts.Now().UTC()
	query := fmt.Sprintf("INSERT INTO %s (key, value, created_at, updated_at) VALUES (?, ?, ?, ?)",
		schema.QuoteIdentifier(s.opts.Table))

	if err := s.conn.Exec(ctx, query, key, value, now, now); err != nil {
		return fmt.Errorf("failed to write metadata %s: %w", key, err)
	}

	s.logger.Debugf("metadata %s set to %q", key, value)
	return nil
}
