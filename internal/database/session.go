package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// Session executes statements against one ClickHouse endpoint.
type Session interface {
	Exec(ctx context.Context, query string, args ...any) error
	Select(ctx context.Context, query string, args ...any) (*Result, error)
	Close() error
}

// Result holds a fully read result set. Raw is set instead of Rows when the
// server answered in a format the session does not decode.
type Result struct {
	Names []string
	Types []string
	Rows  [][]any
	Raw   []byte
}

// String returns the value at row/col as text, empty when out of range.
func (r *Result) String(row, col int) string {
	if r == nil || row >= len(r.Rows) || col >= len(r.Rows[row]) {
		return ""
	}
	return toString(r.Rows[row][col])
}

// Column returns every value of the col-th column as text.
func (r *Result) Column(col int) []string {
	if r == nil {
		return nil
	}
	values := make([]string, 0, len(r.Rows))
	for i := range r.Rows {
		values = append(values, r.String(i, col))
	}
	return values
}

// sqlSession runs on database/sql, shared by the clickhouse-go and the
// PostgreSQL wire drivers.
type sqlSession struct {
	db *sql.DB
	// bind interpolates arguments client-side for drivers that cannot.
	bind bool
}

func (s *sqlSession) Exec(ctx context.Context, query string, args ...any) error {
	query, args, err := s.prepare(query, args)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *sqlSession) Select(ctx context.Context, query string, args ...any) (*Result, error) {
	query, args, err := s.prepare(query, args)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to read column types: %w", err)
	}

	result := &Result{}
	for _, ct := range columnTypes {
		result.Names = append(result.Names, ct.Name())
		result.Types = append(result.Types, ct.DatabaseTypeName())
	}

	for rows.Next() {
		values := make([]any, len(columnTypes))
		pointers := make([]any, len(columnTypes))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}

	return result, rows.Err()
}

func (s *sqlSession) Close() error {
	return s.db.Close()
}

// Release drops idle pooled connections.
func (s *sqlSession) Release() {
	s.db.SetMaxIdleConns(0)
	s.db.SetMaxIdleConns(maxIdleConns)
}

func (s *sqlSession) prepare(query string, args []any) (string, []any, error) {
	if !s.bind || len(args) == 0 {
		return query, args, nil
	}
	bound, err := Bind(query, args...)
	if err != nil {
		return "", nil, err
	}
	return bound, nil, nil
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case *string:
		if val == nil {
			return ""
		}
		return *val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func toInt(v any) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case int:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint64:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case float64:
		return int64(val), nil
	default:
		return strconv.ParseInt(toString(v), 10, 64)
	}
}
