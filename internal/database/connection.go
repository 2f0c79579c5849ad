package database

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/lib/pq"

	"github.com/kadirbelkuyu/chkit/internal/config"
	"github.com/kadirbelkuyu/chkit/internal/schema"
	"github.com/kadirbelkuyu/chkit/pkg/logger"
)

const (
	maxOpenConns = 10
	maxIdleConns = 5

	// codeDatabaseAlreadyExists is DATABASE_ALREADY_EXISTS.
	codeDatabaseAlreadyExists = 82
	// codeTableAlreadyExists is TABLE_ALREADY_EXISTS.
	codeTableAlreadyExists = 57
)

type Connection struct {
	Config  *config.Config
	session Session
	logger  *logger.Logger

	mu      sync.Mutex
	columns map[string][]schema.Column
}

// NewConnection opens a session for the configured protocol and checks the
// server is reachable.
func NewConnection(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Connection, error) {
	conn, err := Open(cfg, log)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	return conn, nil
}

// Open prepares a connection without talking to the server, for databases
// that are about to be created.
func Open(cfg *config.Config, log *logger.Logger) (*Connection, error) {
	session, err := openSession(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewConnectionWithSession(cfg, session, log), nil
}

// NewHTTPConnection always uses the raw HTTP interface, so callers get
// column names and types back for ad hoc queries.
func NewHTTPConnection(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Connection, error) {
	session, err := NewHTTPSession(cfg, log)
	if err != nil {
		return nil, err
	}

	conn := NewConnectionWithSession(cfg, session, log)
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}
	return conn, nil
}

// NewConnectionWithSession wraps an already opened session.
func NewConnectionWithSession(cfg *config.Config, session Session, log *logger.Logger) *Connection {
	return &Connection{
		Config:  cfg,
		session: session,
		logger:  log,
		columns: make(map[string][]schema.Column),
	}
}

func openSession(cfg *config.Config, log *logger.Logger) (Session, error) {
	dialTimeout, err := cfg.DialTimeout()
	if err != nil {
		return nil, err
	}
	readTimeout, err := cfg.ReadTimeout()
	if err != nil {
		return nil, err
	}

	switch cfg.Database.Protocol {
	case config.ProtocolPostgres:
		db, err := sql.Open("postgres", cfg.GetConnectionString())
		if err != nil {
			return nil, fmt.Errorf("failed to open database connection: %w", err)
		}
		configurePool(db)
		return &sqlSession{db: db, bind: true}, nil

	case config.ProtocolNative, config.ProtocolHTTP:
		protocol := clickhouse.Native
		if cfg.Database.Protocol == config.ProtocolHTTP {
			protocol = clickhouse.HTTP
		}

		options := &clickhouse.Options{
			Protocol: protocol,
			Addr:     []string{cfg.Address()},
			Auth: clickhouse.Auth{
				Database: cfg.Database.Database,
				Username: cfg.Database.Username,
				Password: cfg.Database.Password,
			},
			Settings: clickhouse.Settings{
				"max_execution_time": int(readTimeout.Seconds()),
			},
			DialTimeout: dialTimeout,
			ReadTimeout: readTimeout,
		}
		if cfg.Database.Secure {
			options.TLS = &tls.Config{}
		}

		db := clickhouse.OpenDB(options)
		configurePool(db)
		log.Debugf("opened %s session to %s", cfg.Database.Protocol, cfg.Address())
		return &sqlSession{db: db}, nil

	case config.ProtocolHTTPRaw:
		return NewHTTPSession(cfg, log)

	default:
		return nil, fmt.Errorf("unsupported protocol: %s", cfg.Database.Protocol)
	}
}

func configurePool(db *sql.DB) {
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(time.Hour)
}

func (c *Connection) Ping(ctx context.Context) error {
	_, err := c.session.Select(ctx, "SELECT 1")
	return err
}

func (c *Connection) Exec(ctx context.Context, query string, args ...any) error {
	c.logger.Debugf("exec: %s", query)
	return c.session.Exec(ctx, query, args...)
}

func (c *Connection) Select(ctx context.Context, query string, args ...any) (*Result, error) {
	c.logger.Debugf("select: %s", query)
	return c.session.Select(ctx, query, args...)
}

func (c *Connection) Close() error {
	return c.session.Close()
}

func (c *Connection) GetDatabaseName() string {
	return c.Config.Database.Database
}

// ReleaseConnections returns pooled connections to the server.
func (c *Connection) ReleaseConnections() {
	if r, ok := c.session.(interface{ Release() }); ok {
		r.Release()
	}
	c.ClearCache()
}

// ClearCache forgets column metadata read so far.
func (c *Connection) ClearCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.columns = make(map[string][]schema.Column)
}

func (c *Connection) CreateDatabase(ctx context.Context, name string) error {
	stmt := fmt.Sprintf("CREATE DATABASE %s%s", schema.QuoteIdentifier(name), c.onCluster())
	return c.Exec(ctx, stmt)
}

func (c *Connection) DropDatabase(ctx context.Context, name string) error {
	stmt := fmt.Sprintf("DROP DATABASE IF EXISTS %s%s", schema.QuoteIdentifier(name), c.onCluster())
	return c.Exec(ctx, stmt)
}

func (c *Connection) ListDatabases(ctx context.Context) ([]string, error) {
	result, err := c.Select(ctx, "SELECT name FROM system.databases ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}
	return result.Column(0), nil
}

func (c *Connection) TableExists(ctx context.Context, name string) (bool, error) {
	result, err := c.Select(ctx,
		"SELECT count() FROM system.tables WHERE database = ? AND name = ?",
		c.GetDatabaseName(), name)
	if err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", name, err)
	}
	if len(result.Rows) == 0 {
		return false, nil
	}
	n, err := toInt(result.Rows[0][0])
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *Connection) onCluster() string {
	if c.Config.Database.Cluster == "" {
		return ""
	}
	return " ON CLUSTER " + schema.QuoteIdentifier(c.Config.Database.Cluster)
}

// IsAlreadyExists reports whether err is the server refusing to create an
// object that is already there.
func IsAlreadyExists(err error) bool {
	if err == nil {
		return false
	}

	var exception *clickhouse.Exception
	if errors.As(err, &exception) {
		return exception.Code == codeDatabaseAlreadyExists || exception.Code == codeTableAlreadyExists
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return strings.Contains(strings.ToLower(pqErr.Message), "already exists")
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code == codeDatabaseAlreadyExists || httpErr.Code == codeTableAlreadyExists
	}

	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
