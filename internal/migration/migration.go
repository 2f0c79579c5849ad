package migration

import (
	"context"
	"fmt"
	"sort"

	"github.com/kadirbelkuyu/chkit/internal/schema"
)

// Migration is one forward step of the schema. Scope tags migrations that
// belong to a subsystem so a run can be limited to it.
type Migration struct {
	Version int64
	Name    string
	Scope   string
	Up      func(ctx context.Context, exec schema.Executor) error
}

func (m Migration) String() string {
	if m.Scope == "" {
		return fmt.Sprintf("%d_%s", m.Version, m.Name)
	}
	return fmt.Sprintf("%d_%s.%s", m.Version, m.Name, m.Scope)
}

// Statements builds an Up action running each statement in order.
func Statements(statements ...string) func(ctx context.Context, exec schema.Executor) error {
	return func(ctx context.Context, exec schema.Executor) error {
		for i, stmt := range statements {
			if err := exec.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("statement %d: %w", i+1, err)
			}
		}
		return nil
	}
}

// Source lists the migrations known to the application.
type Source interface {
	Migrations() ([]Migration, error)
}

// StaticSource serves migrations defined in code.
type StaticSource []Migration

func (s StaticSource) Migrations() ([]Migration, error) {
	migrations := append([]Migration(nil), s...)
	return migrations, sortMigrations(migrations)
}

// sortMigrations orders by version and rejects duplicates.
func sortMigrations(migrations []Migration) error {
	sort.SliceStable(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	for i := 1; i < len(migrations); i++ {
		if migrations[i].Version == migrations[i-1].Version {
			return fmt.Errorf("duplicate migration version %d: %s and %s",
				migrations[i].Version, migrations[i-1], migrations[i])
		}
	}
	return nil
}
