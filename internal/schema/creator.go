package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirbelkuyu/chkit/pkg/logger"
)

// Executor runs a single statement that returns no rows.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) error
}

type ColumnDefinition struct {
	Name    string
	Type    string
	Default string
	Comment string
}

// TableDefinition describes a table to provision. With Distributed set the
// table is created as "<Name>_<DistributedSuffix>" on every shard and a
// Distributed façade named Name routes to it.
type TableDefinition struct {
	Name        string
	IfNotExists bool
	Cluster     string
	Columns     []ColumnDefinition
	// Engine clause including PARTITION BY / ORDER BY / SETTINGS.
	Engine            string
	Distributed       bool
	DistributedSuffix string
	ShardingKey       string
}

// LocalName is the physical table holding the rows.
func (d TableDefinition) LocalName() string {
	if !d.Distributed {
		return d.Name
	}
	suffix := d.DistributedSuffix
	if suffix == "" {
		suffix = "distributed"
	}
	return d.Name + "_" + suffix
}

type Creator struct {
	exec   Executor
	logger *logger.Logger
}

func NewCreator(exec Executor, logger *logger.Logger) *Creator {
	return &Creator{
		exec:   exec,
		logger: logger,
	}
}

// BuildCreateTable renders the statements needed for def, local table first.
func BuildCreateTable(def TableDefinition) ([]string, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("table name is required")
	}
	if len(def.Columns) == 0 {
		return nil, fmt.Errorf("table %s has no columns", def.Name)
	}
	if def.Engine == "" {
		return nil, fmt.Errorf("table %s has no engine", def.Name)
	}
	if def.Distributed && def.Cluster == "" {
		return nil, fmt.Errorf("distributed table %s requires a cluster", def.Name)
	}

	columnDefs := make([]string, 0, len(def.Columns))
	for _, col := range def.Columns {
		colDef := fmt.Sprintf("%s %s", QuoteIdentifier(col.Name), col.Type)
		if col.Default != "" {
			colDef += " DEFAULT " + col.Default
		}
		if col.Comment != "" {
			colDef += " COMMENT " + QuoteLiteral(col.Comment)
		}
		columnDefs = append(columnDefs, colDef)
	}

	local := fmt.Sprintf("CREATE TABLE %s%s%s (%s) ENGINE = %s",
		ifNotExists(def.IfNotExists),
		QuoteIdentifier(def.LocalName()),
		onCluster(def.Cluster),
		strings.Join(columnDefs, ", "),
		def.Engine,
	)
	statements := []string{local}

	if def.Distributed {
		shardingKey := def.ShardingKey
		if shardingKey == "" {
			shardingKey = "rand()"
		}
		facade := fmt.Sprintf("CREATE TABLE %s%s%s AS %s ENGINE = Distributed(%s, currentDatabase(), %s, %s)",
			ifNotExists(def.IfNotExists),
			QuoteIdentifier(def.Name),
			onCluster(def.Cluster),
			QuoteIdentifier(def.LocalName()),
			QuoteLiteral(def.Cluster),
			QuoteLiteral(def.LocalName()),
			shardingKey,
		)
		statements = append(statements, facade)
	}

	return statements, nil
}

// CreateTable provisions def. Statements run in order; the first failure
// stops the sequence since DDL cannot be rolled back.
func (c *Creator) CreateTable(ctx context.Context, def TableDefinition) error {
	statements, err := BuildCreateTable(def)
	if err != nil {
		return err
	}

	for _, stmt := range statements {
		c.logger.Debugf("Creating table: %s", stmt)
		if err := c.exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create table %s: %w", def.Name, err)
		}
	}

	c.logger.Infof("Table %s created", def.Name)
	return nil
}

func ifNotExists(enabled bool) string {
	if enabled {
		return "IF NOT EXISTS "
	}
	return ""
}

func onCluster(cluster string) string {
	if cluster == "" {
		return ""
	}
	return " ON CLUSTER " + QuoteIdentifier(cluster)
}

// QuoteIdentifier backquotes a table, column or cluster name.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

// QuoteLiteral renders value as a single-quoted SQL string.
func QuoteLiteral(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	return "'" + strings.ReplaceAll(value, "'", `\'`) + "'"
}
