package migration_test

import (
	"context"
	"errors"
	"strings"

	"github.com/kadirbelkuyu/chkit/internal/database"
)

type fakeConn struct {
	tables   map[string]bool
	versions []string
	execs    []string
	cleared  int
	released int
	failOn   string
}

func newFakeConn() *fakeConn {
	return &fakeConn{tables: map[string]bool{}}
}

func (c *fakeConn) Exec(ctx context.Context, query string, args ...any) error {
	if c.failOn != "" && strings.Contains(query, c.failOn) {
		return errors.New("code: 47, unknown identifier")
	}
	c.execs = append(c.execs, query)

	if strings.HasPrefix(query, "CREATE TABLE IF NOT EXISTS `schema_migrations`") {
		c.tables["schema_migrations"] = true
	}
	if strings.HasPrefix(query, "INSERT INTO `schema_migrations`") {
		c.versions = append(c.versions, args[0].(string))
	}
	return nil
}

func (c *fakeConn) Select(ctx context.Context, query string, args ...any) (*database.Result, error) {
	result := &database.Result{Names: []string{"version"}, Types: []string{"String"}}
	if strings.Contains(query, "FROM `schema_migrations` FINAL") {
		for _, v := range c.versions {
			result.Rows = append(result.Rows, []any{v})
		}
	}
	return result, nil
}

func (c *fakeConn) TableExists(ctx context.Context, name string) (bool, error) {
	return c.tables[name], nil
}

func (c *fakeConn) ClearCache() {
	c.cleared++
}

func (c *fakeConn) ReleaseConnections() {
	c.released++
}

// statementsExecuted lists what migrations ran, leaving out bookkeeping.
func (c *fakeConn) statementsExecuted() []string {
	var out []string
	for _, q := range c.execs {
		if strings.Contains(q, "schema_migrations") || strings.Contains(q, "ar_internal_metadata") {
			continue
		}
		out = append(out, q)
	}
	return out
}

type fakeAdmin struct {
	calls     []string
	createErr error
}

func (a *fakeAdmin) CreateDatabase(ctx context.Context, name string) error {
	a.calls = append(a.calls, "create "+name)
	return a.createErr
}

func (a *fakeAdmin) DropDatabase(ctx context.Context, name string) error {
	a.calls = append(a.calls, "drop "+name)
	return nil
}

type fakeStore struct {
	created int
	values  map[string]string
}

func (s *fakeStore) Enabled() bool { return true }

func (s *fakeStore) CreateTable(ctx context.Context) error {
	s.created++
	return nil
}

func (s *fakeStore) Write(ctx context.Context, key, value string) error {
	if s.values == nil {
		s.values = map[string]string{}
	}
	s.values[key] = value
	return nil
}
