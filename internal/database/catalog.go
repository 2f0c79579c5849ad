package database

import (
	"context"
	"fmt"

	"github.com/kadirbelkuyu/chkit/internal/schema"
)

var _ schema.Catalog = (*Connection)(nil)

func (c *Connection) Functions(ctx context.Context) ([]string, error) {
	result, err := c.Select(ctx, "SELECT name FROM system.functions WHERE origin = 'SQLUserDefined' ORDER BY name")
	if err != nil {
		return nil, err
	}
	return result.Column(0), nil
}

func (c *Connection) ShowCreateFunction(ctx context.Context, name string) (string, error) {
	result, err := c.Select(ctx,
		"SELECT create_query FROM system.functions WHERE origin = 'SQLUserDefined' AND name = ?", name)
	if err != nil {
		return "", err
	}
	if len(result.Rows) == 0 {
		return "", fmt.Errorf("function %s not found", name)
	}
	return result.String(0, 0), nil
}

// Tables lists tables and views of the configured database.
func (c *Connection) Tables(ctx context.Context) ([]string, error) {
	result, err := c.Select(ctx,
		"SELECT name FROM system.tables WHERE database = ? AND is_temporary = 0 ORDER BY name",
		c.GetDatabaseName())
	if err != nil {
		return nil, err
	}
	return result.Column(0), nil
}

// ShowCreateTable returns the live CREATE statement exactly as the server
// prints it.
func (c *Connection) ShowCreateTable(ctx context.Context, name string) (string, error) {
	stmt := fmt.Sprintf("SHOW CREATE TABLE %s.%s",
		schema.QuoteIdentifier(c.GetDatabaseName()), schema.QuoteIdentifier(name))

	result, err := c.Select(ctx, stmt)
	if err != nil {
		return "", err
	}
	if len(result.Rows) == 0 {
		return "", fmt.Errorf("no CREATE statement returned for %s", name)
	}
	return result.String(0, 0), nil
}

func (c *Connection) Columns(ctx context.Context, table string) ([]schema.Column, error) {
	c.mu.Lock()
	cached, ok := c.columns[table]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	result, err := c.Select(ctx, `
		SELECT name, type, default_kind, default_expression, comment
		FROM system.columns
		WHERE database = ? AND table = ?
		ORDER BY position`,
		c.GetDatabaseName(), table)
	if err != nil {
		return nil, err
	}

	columns := make([]schema.Column, 0, len(result.Rows))
	for i := range result.Rows {
		col := schema.ResolveType(result.String(i, 1))
		col.Name = result.String(i, 0)
		col.Comment = result.String(i, 4)
		if kind := result.String(i, 2); kind == "DEFAULT" {
			def := result.String(i, 3)
			col.Default = &def
		}
		columns = append(columns, col)
	}

	c.mu.Lock()
	c.columns[table] = columns
	c.mu.Unlock()

	return columns, nil
}

func (c *Connection) PrimaryKey(ctx context.Context, table string) (schema.PrimaryKey, error) {
	result, err := c.Select(ctx,
		"SELECT primary_key FROM system.tables WHERE database = ? AND name = ?",
		c.GetDatabaseName(), table)
	if err != nil {
		return schema.PrimaryKey{}, err
	}

	return schema.PrimaryKey{Columns: schema.SplitKeyExpression(result.String(0, 0))}, nil
}

func (c *Connection) TableOptions(ctx context.Context, table string) (schema.EngineOptions, error) {
	createSQL, err := c.ShowCreateTable(ctx, table)
	if err != nil {
		return schema.EngineOptions{}, err
	}
	return schema.ParseEngineOptions(schema.CollapseWhitespace(createSQL)), nil
}

func (c *Connection) Indexes(ctx context.Context, table string) ([]schema.Index, error) {
	result, err := c.Select(ctx, `
		SELECT name, expr, type, granularity
		FROM system.data_skipping_indices
		WHERE database = ? AND table = ?`,
		c.GetDatabaseName(), table)
	if err != nil {
		return nil, err
	}

	indexes := make([]schema.Index, 0, len(result.Rows))
	for i, row := range result.Rows {
		granularity, err := toInt(row[3])
		if err != nil {
			return nil, fmt.Errorf("invalid granularity of index %s: %w", result.String(i, 0), err)
		}
		indexes = append(indexes, schema.Index{
			Name:        result.String(i, 0),
			Expression:  result.String(i, 1),
			Type:        result.String(i, 2),
			Granularity: int(granularity),
		})
	}
	return indexes, nil
}

func (c *Connection) CheckConstraints(ctx context.Context, table string) ([]schema.CheckConstraint, error) {
	createSQL, err := c.ShowCreateTable(ctx, table)
	if err != nil {
		return nil, err
	}
	return schema.ParseCheckConstraints(schema.CollapseWhitespace(createSQL)), nil
}
