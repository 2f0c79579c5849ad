package schema

import "context"

type TableKind int

const (
	KindBase TableKind = iota
	KindView
	KindMaterializedView
)

func (k TableKind) IsView() bool {
	return k == KindView || k == KindMaterializedView
}

func (k TableKind) String() string {
	switch k {
	case KindView:
		return "view"
	case KindMaterializedView:
		return "materialized view"
	default:
		return "table"
	}
}

type Table struct {
	Name       string
	Kind       TableKind
	CreateSQL  string
	PrimaryKey PrimaryKey
	Options    EngineOptions
	Columns    []Column
	Indexes    []Index
	Checks     []CheckConstraint
}

// Column resolves ClickHouse's wrapper types (Nullable, LowCardinality,
// Array) into flags around a semantic Type. Type is empty when the raw type
// is not understood.
type Column struct {
	Name           string
	SQLType        string
	Type           string
	Nullable       bool
	Array          bool
	Unsigned       bool
	LowCardinality bool
	Limit          *int
	Precision      *int
	Scale          *int
	Default        *string
	Comment        string
}

// PrimaryKey holds zero, one or several column names.
type PrimaryKey struct {
	Columns []string
}

func (pk PrimaryKey) IsNone() bool      { return len(pk.Columns) == 0 }
func (pk PrimaryKey) IsSingle() bool    { return len(pk.Columns) == 1 }
func (pk PrimaryKey) IsComposite() bool { return len(pk.Columns) > 1 }

func (pk PrimaryKey) Contains(column string) bool {
	for _, c := range pk.Columns {
		if c == column {
			return true
		}
	}
	return false
}

// EngineOptions is what follows "ENGINE = " in a CREATE statement and, for
// views, the SELECT they are defined by.
type EngineOptions struct {
	Options string
	As      string
}

func (o EngineOptions) IsZero() bool {
	return o.Options == "" && o.As == ""
}

type Index struct {
	Name        string
	Expression  string
	Type        string
	Granularity int
}

type CheckConstraint struct {
	Name       string
	Expression string
}

type Function struct {
	Name string
	Body string
}

// Catalog is the introspection surface of a live database.
type Catalog interface {
	Functions(ctx context.Context) ([]string, error)
	ShowCreateFunction(ctx context.Context, name string) (string, error)
	Tables(ctx context.Context) ([]string, error)
	ShowCreateTable(ctx context.Context, name string) (string, error)
	Columns(ctx context.Context, table string) ([]Column, error)
	PrimaryKey(ctx context.Context, table string) (PrimaryKey, error)
	TableOptions(ctx context.Context, table string) (EngineOptions, error)
	Indexes(ctx context.Context, table string) ([]Index, error)
	CheckConstraints(ctx context.Context, table string) ([]CheckConstraint, error)
}
