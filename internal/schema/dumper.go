package schema

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kadirbelkuyu/chkit/pkg/logger"
)

// Mode selects how much engine-specific detail a dump carries.
type Mode int

const (
	// Simple treats views as plain tables and drops engine options so the
	// script can be loaded by a generic schema loader.
	Simple Mode = iota
	// Full keeps view flags, engine options, unsigned integers and audit
	// comments with the live CREATE statements.
	Full
)

func (m Mode) String() string {
	if m == Full {
		return "full"
	}
	return "simple"
}

// UnknownTypeError is raised for a column whose type cannot be expressed in
// the schema script.
type UnknownTypeError struct {
	Column  string
	SQLType string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type '%s' for column '%s'", e.SQLType, e.Column)
}

// TableResult is the outcome of dumping one table: either its rendered
// block or the error that stopped it.
type TableResult struct {
	Name  string
	Table *Table
	Text  string
	Err   error
}

func (r TableResult) Failed() bool {
	return r.Err != nil
}

type FunctionResult struct {
	Function Function
	Text     string
}

type Report struct {
	Mode      Mode
	Version   int64
	Functions []FunctionResult
	Tables    []TableResult
}

// Failed returns the tables that were replaced by an error annotation.
func (r *Report) Failed() []TableResult {
	var failed []TableResult
	for _, t := range r.Tables {
		if t.Failed() {
			failed = append(failed, t)
		}
	}
	return failed
}

// Script renders the whole schema definition.
func (r *Report) Script() string {
	var b strings.Builder

	writeHeader(&b, r.Mode, r.Version)

	for _, f := range r.Functions {
		b.WriteString(f.Text)
	}

	for _, t := range r.Tables {
		if t.Failed() {
			writeFailure(&b, t)
			continue
		}
		b.WriteString(t.Text)
	}

	b.WriteString("end\n")
	return b.String()
}

type Dumper struct {
	catalog   Catalog
	extractor *Extractor
	logger    *logger.Logger
	opts      *options
}

func NewDumper(catalog Catalog, logger *logger.Logger, opts ...Option) *Dumper {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Dumper{
		catalog:   catalog,
		extractor: NewExtractor(catalog, logger),
		logger:    logger,
		opts:      o,
	}
}

// Dump reflects the live database. Only failures to enumerate objects are
// returned as errors; a table that cannot be dumped is recorded in the
// report and the dump carries on.
func (d *Dumper) Dump(ctx context.Context, mode Mode) (*Report, error) {
	report := &Report{Mode: mode, Version: d.opts.version}

	functions, err := d.extractor.ExtractFunctions(ctx)
	if err != nil {
		return nil, err
	}
	for _, f := range functions {
		report.Functions = append(report.Functions, FunctionResult{
			Function: f,
			Text:     renderFunction(f, mode),
		})
	}

	names, err := d.catalog.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}

	statements := make(map[string]string, len(names))
	var candidates []string
	for _, name := range names {
		if d.opts.ignored(name) {
			continue
		}
		candidates = append(candidates, name)

		createSQL, err := d.catalog.ShowCreateTable(ctx, name)
		if err != nil {
			d.logger.Warnf("could not read CREATE statement of %s: %v", name, err)
			continue
		}
		statements[name] = CollapseWhitespace(createSQL)
	}

	for _, name := range SortTables(candidates, statements) {
		report.Tables = append(report.Tables, d.dumpTable(ctx, name, statements, mode))
	}

	d.logger.Infof("%d functions and %d tables dumped (%d failed)",
		len(report.Functions), len(report.Tables), len(report.Failed()))
	return report, nil
}

func (d *Dumper) dumpTable(ctx context.Context, name string, statements map[string]string, mode Mode) TableResult {
	result := TableResult{Name: name}

	createSQL, ok := statements[name]
	if !ok {
		result.Err = fmt.Errorf("CREATE statement of %s is unavailable", name)
		return result
	}

	table, err := d.extractor.ExtractTable(ctx, name, createSQL)
	if err != nil {
		result.Err = err
		return result
	}
	result.Table = table

	text, err := renderTable(table, mode)
	if err != nil {
		result.Err = err
		return result
	}
	result.Text = text
	return result
}

// SortTables orders base tables before views, each group by name.
// statements maps a table to its CREATE statement; tables without one sort
// as base tables.
func SortTables(names []string, statements map[string]string) []string {
	var tables, views []string
	for _, name := range names {
		if ClassifyStatement(statements[name]).IsView() {
			views = append(views, name)
		} else {
			tables = append(tables, name)
		}
	}
	sort.Strings(tables)
	sort.Strings(views)
	return append(tables, views...)
}

func writeHeader(b *strings.Builder, mode Mode, version int64) {
	task, module := "db", "ActiveRecord"
	if mode == Full {
		task, module = "clickhouse", "ClickhouseActiverecord"
	}

	b.WriteString("# This file is auto-generated from the current state of the database. Instead\n")
	b.WriteString("# of editing this file, please use the migrations feature to incrementally\n")
	b.WriteString("# modify your database, and then regenerate this schema definition.\n")
	b.WriteString("#\n")
	fmt.Fprintf(b, "# This file is the source used to define your schema when running `rails %s:schema:load`.\n", task)
	b.WriteString("# When creating a new database, loading the schema tends to be faster and is\n")
	b.WriteString("# potentially less error prone than running all of your migrations from scratch.\n")
	b.WriteString("#\n")
	b.WriteString("# It's strongly recommended that you check this file into your version control system.\n")
	b.WriteString("\n")

	params := ""
	if version > 0 {
		params = "version: " + formatVersion(version)
	}
	fmt.Fprintf(b, "%s::Schema.define(%s) do\n\n", module, params)
}

func writeFailure(b *strings.Builder, t TableResult) {
	fmt.Fprintf(b, "# Could not dump table %s because of following error\n", strconv.Quote(t.Name))
	for _, line := range strings.Split(t.Err.Error(), "\n") {
		fmt.Fprintf(b, "#   %s\n", line)
	}
	b.WriteString("\n")
}

// formatVersion groups a timestamp version as 2024_01_31_120000.
func formatVersion(version int64) string {
	s := strconv.FormatInt(version, 10)
	if len(s) != 14 {
		return s
	}
	return s[0:4] + "_" + s[4:6] + "_" + s[6:8] + "_" + s[8:]
}

func renderFunction(f Function, mode Mode) string {
	var b strings.Builder
	if mode == Full {
		fmt.Fprintf(&b, "  # FUNCTION: %s\n", f.Name)
		fmt.Fprintf(&b, "  # SQL: %s\n", f.Body)
	}
	fmt.Fprintf(&b, "  create_function %s, %s, force: true\n\n", strconv.Quote(f.Name), strconv.Quote(FunctionBody(f.Body)))
	return b.String()
}

func renderTable(table *Table, mode Mode) (string, error) {
	var b strings.Builder

	if mode == Full {
		fmt.Fprintf(&b, "  # TABLE: %s\n", table.Name)
		fmt.Fprintf(&b, "  # SQL: %s\n", StripReplicaEngine.Apply(table.CreateSQL))
	}

	fmt.Fprintf(&b, "  create_table %s", strconv.Quote(table.Name))

	pk := table.PrimaryKey
	switch {
	case pk.IsSingle():
		name := pk.Columns[0]
		if name != "id" {
			fmt.Fprintf(&b, ", primary_key: %s", strconv.Quote(name))
		}
		if spec := primaryKeySpec(findColumn(table.Columns, name)); spec != "" {
			b.WriteString(", " + spec)
		}
	case pk.IsComposite():
		fmt.Fprintf(&b, ", primary_key: %s", quoteList(pk.Columns))
	default:
		b.WriteString(", id: false")
	}

	if mode == Full {
		if table.Kind.IsView() {
			b.WriteString(", view: true")
		}
		if table.Kind == KindMaterializedView {
			b.WriteString(", materialized: true")
		}
		if opts := formatEngineOptions(table.Options); opts != "" {
			b.WriteString(", " + opts)
		}
	}

	b.WriteString(", force: :cascade do |t|\n")

	if mode == Simple || !table.Kind.IsView() {
		for _, col := range table.Columns {
			if !ValidType(col.Type) {
				return "", &UnknownTypeError{Column: col.Name, SQLType: col.SQLType}
			}
			if pk.IsSingle() && pk.Contains(col.Name) {
				continue
			}
			b.WriteString(renderColumn(col, mode))
		}
	}

	for _, idx := range table.Indexes {
		fmt.Fprintf(&b, "    t.index %s, name: %s, type: %s, granularity: %d\n",
			strconv.Quote(idx.Expression), strconv.Quote(idx.Name), strconv.Quote(idx.Type), idx.Granularity)
	}

	for _, check := range table.Checks {
		fmt.Fprintf(&b, "    t.check_constraint %s, name: %s\n",
			strconv.Quote(check.Expression), strconv.Quote(check.Name))
	}

	b.WriteString("  end\n\n")
	return b.String(), nil
}

func renderColumn(col Column, mode Mode) string {
	var b strings.Builder

	if col.Type == "enum" {
		fmt.Fprintf(&b, "    t.column %s, %s", strconv.Quote(col.Name), strconv.Quote(innerType(col.SQLType)))
	} else {
		fmt.Fprintf(&b, "    t.%s %s", col.Type, strconv.Quote(col.Name))
	}

	if spec := columnSpec(col, mode); len(spec) > 0 {
		b.WriteString(", " + strings.Join(spec, ", "))
	}
	b.WriteString("\n")
	return b.String()
}

func columnSpec(col Column, mode Mode) []string {
	var spec []string

	if mode == Full && col.Type == "integer" && unsignedInteger.MatchString(col.SQLType) {
		spec = append(spec, "unsigned: true")
	}
	if arrayWrapper.MatchString(col.SQLType) {
		spec = append(spec, "array: true")
	}
	if col.LowCardinality {
		spec = append(spec, "low_cardinality: true")
	}
	if col.Type != "float" {
		if col.Limit != nil {
			spec = append(spec, fmt.Sprintf("limit: %d", *col.Limit))
		}
		if col.Precision != nil {
			spec = append(spec, fmt.Sprintf("precision: %d", *col.Precision))
		}
		if col.Scale != nil {
			spec = append(spec, fmt.Sprintf("scale: %d", *col.Scale))
		}
	}
	if col.Default != nil {
		spec = append(spec, "default: "+formatDefault(*col.Default, mode))
	}
	if !col.Nullable {
		spec = append(spec, "null: false")
	}
	if col.Comment != "" {
		spec = append(spec, "comment: "+strconv.Quote(col.Comment))
	}

	return spec
}

var (
	numericLiteral = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	stringLiteral  = regexp.MustCompile(`^'((?:[^'\\]|\\.)*)'$`)
)

func formatDefault(expr string, mode Mode) string {
	expr = strings.TrimSpace(expr)

	if mode == Simple {
		if m := castedDefault.FindStringSubmatch(expr); m != nil {
			if numericLiteral.MatchString(m[1]) {
				return m[1]
			}
			return strconv.Quote(m[1])
		}
	}

	if numericLiteral.MatchString(expr) {
		return expr
	}
	if m := stringLiteral.FindStringSubmatch(expr); m != nil {
		return strconv.Quote(m[1])
	}
	return fmt.Sprintf("-> { %s }", strconv.Quote(expr))
}

// primaryKeySpec describes a single primary key column that is not the
// default UInt32/Int32 identity.
func primaryKeySpec(col *Column) string {
	if col == nil || (col.Type == "integer" && col.Limit == nil) {
		return ""
	}

	spec := []string{"id: :" + col.Type}
	if col.Limit != nil {
		spec = append(spec, fmt.Sprintf("limit: %d", *col.Limit))
	}
	if col.Precision != nil {
		spec = append(spec, fmt.Sprintf("precision: %d", *col.Precision))
	}
	if col.Scale != nil {
		spec = append(spec, fmt.Sprintf("scale: %d", *col.Scale))
	}
	return strings.Join(spec, ", ")
}

func formatEngineOptions(opts EngineOptions) string {
	if opts.IsZero() {
		return ""
	}

	var parts []string
	if opts.Options != "" {
		parts = append(parts, "options: "+strconv.Quote(StripReplicaOptions.Apply(opts.Options)))
	}
	if opts.As != "" {
		parts = append(parts, "as: "+strconv.Quote(opts.As))
	}
	return strings.Join(parts, ", ")
}

func findColumn(columns []Column, name string) *Column {
	for i := range columns {
		if columns[i].Name == name {
			return &columns[i]
		}
	}
	return nil
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
