package schema_test

import (
	"context"
	"fmt"

	"github.com/kadirbelkuyu/chkit/internal/schema"
)

type fakeTable struct {
	createSQL string
	columns   []schema.Column
	pk        []string
	options   schema.EngineOptions
	indexes   []schema.Index
	checks    []schema.CheckConstraint
}

type fakeCatalog struct {
	functions map[string]string
	tables    map[string]fakeTable
	order     []string
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		functions: map[string]string{},
		tables:    map[string]fakeTable{},
	}
}

func (c *fakeCatalog) addTable(name string, t fakeTable) {
	c.tables[name] = t
	c.order = append(c.order, name)
}

func (c *fakeCatalog) Functions(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(c.functions))
	for name := range c.functions {
		names = append(names, name)
	}
	return names, nil
}

func (c *fakeCatalog) ShowCreateFunction(ctx context.Context, name string) (string, error) {
	body := c.functions[name]
	if body == "" {
		return "", fmt.Errorf("function %s is gone", name)
	}
	return body, nil
}

func (c *fakeCatalog) Tables(ctx context.Context) ([]string, error) {
	return append([]string(nil), c.order...), nil
}

func (c *fakeCatalog) ShowCreateTable(ctx context.Context, name string) (string, error) {
	t, ok := c.tables[name]
	if !ok || t.createSQL == "" {
		return "", fmt.Errorf("table %s not found", name)
	}
	return t.createSQL, nil
}

func (c *fakeCatalog) Columns(ctx context.Context, table string) ([]schema.Column, error) {
	return c.tables[table].columns, nil
}

func (c *fakeCatalog) PrimaryKey(ctx context.Context, table string) (schema.PrimaryKey, error) {
	return schema.PrimaryKey{Columns: c.tables[table].pk}, nil
}

func (c *fakeCatalog) TableOptions(ctx context.Context, table string) (schema.EngineOptions, error) {
	return c.tables[table].options, nil
}

func (c *fakeCatalog) Indexes(ctx context.Context, table string) ([]schema.Index, error) {
	return c.tables[table].indexes, nil
}

func (c *fakeCatalog) CheckConstraints(ctx context.Context, table string) ([]schema.CheckConstraint, error) {
	return c.tables[table].checks, nil
}

func column(name, sqlType string) schema.Column {
	col := schema.ResolveType(sqlType)
	col.Name = name
	return col
}

func columnWithDefault(name, sqlType, def string) schema.Column {
	col := column(name, sqlType)
	col.Default = &def
	return col
}
