package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kadirbelkuyu/chkit/pkg/logger"
)

type Extractor struct {
	catalog Catalog
	logger  *logger.Logger
}

func NewExtractor(catalog Catalog, logger *logger.Logger) *Extractor {
	return &Extractor{
		catalog: catalog,
		logger:  logger,
	}
}

// ExtractFunctions returns user-defined functions sorted by name. A function
// whose definition cannot be fetched is left out.
func (e *Extractor) ExtractFunctions(ctx context.Context) ([]Function, error) {
	names, err := e.catalog.Functions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query functions: %w", err)
	}
	sort.Strings(names)

	functions := make([]Function, 0, len(names))
	for _, name := range names {
		createSQL, err := e.catalog.ShowCreateFunction(ctx, name)
		if err != nil || strings.TrimSpace(createSQL) == "" {
			e.logger.Debugf("skipping function %s: definition unavailable", name)
			continue
		}
		functions = append(functions, Function{Name: name, Body: createSQL})
	}

	return functions, nil
}

// ExtractTable gathers everything the dumper needs about one table. The
// CREATE statement is passed in because the caller already fetched it to
// order tables.
func (e *Extractor) ExtractTable(ctx context.Context, name, createSQL string) (*Table, error) {
	e.logger.Debugf("extracting %s", name)

	table := &Table{
		Name:      name,
		CreateSQL: createSQL,
		Kind:      ClassifyStatement(createSQL),
	}

	if err := e.extractColumns(ctx, table); err != nil {
		return nil, err
	}

	if err := e.extractPrimaryKey(ctx, table); err != nil {
		return nil, err
	}

	if err := e.extractOptions(ctx, table); err != nil {
		return nil, err
	}

	if err := e.extractIndexes(ctx, table); err != nil {
		return nil, err
	}

	if err := e.extractChecks(ctx, table); err != nil {
		return nil, err
	}

	return table, nil
}

func (e *Extractor) extractColumns(ctx context.Context, table *Table) error {
	columns, err := e.catalog.Columns(ctx, table.Name)
	if err != nil {
		return fmt.Errorf("failed to query column metadata: %w", err)
	}
	table.Columns = columns
	return nil
}

func (e *Extractor) extractPrimaryKey(ctx context.Context, table *Table) error {
	pk, err := e.catalog.PrimaryKey(ctx, table.Name)
	if err != nil {
		return fmt.Errorf("failed to query primary key metadata: %w", err)
	}

	var columns []string
	for _, part := range pk.Columns {
		column, ok := KeyColumn(part)
		if !ok {
			e.logger.Debugf("key expression %s of %s is not a column, leaving it out", part, table.Name)
			continue
		}
		if !hasColumn(table.Columns, column) {
			return fmt.Errorf("primary key column %q not found in %s", column, table.Name)
		}
		columns = append(columns, column)
	}

	table.PrimaryKey = PrimaryKey{Columns: columns}
	return nil
}

func (e *Extractor) extractOptions(ctx context.Context, table *Table) error {
	options, err := e.catalog.TableOptions(ctx, table.Name)
	if err != nil {
		return fmt.Errorf("failed to query table options: %w", err)
	}
	table.Options = options
	return nil
}

func (e *Extractor) extractIndexes(ctx context.Context, table *Table) error {
	indexes, err := e.catalog.Indexes(ctx, table.Name)
	if err != nil {
		return fmt.Errorf("failed to query index metadata: %w", err)
	}
	table.Indexes = indexes
	return nil
}

func (e *Extractor) extractChecks(ctx context.Context, table *Table) error {
	checks, err := e.catalog.CheckConstraints(ctx, table.Name)
	if err != nil {
		return fmt.Errorf("failed to query check constraints: %w", err)
	}
	table.Checks = checks
	return nil
}

func hasColumn(columns []Column, name string) bool {
	for _, c := range columns {
		if c.Name == name {
			return true
		}
	}
	return false
}
