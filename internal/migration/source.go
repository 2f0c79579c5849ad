package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kadirbelkuyu/chkit/internal/backup"
)

// DirSource reads SQL migrations from a directory. Statements inside a file
// are separated like a structure file: a semicolon followed by a blank line.
type DirSource struct {
	Path string
}

func (s DirSource) Migrations() ([]Migration, error) {
	entries, err := os.ReadDir(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrations []Migration
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}

		version, name, scope, ok := ParseFilename(entry.Name())
		if !ok {
			return nil, fmt.Errorf("invalid migration file name: %s", entry.Name())
		}

		data, err := os.ReadFile(filepath.Join(s.Path, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		var statements []string
		for _, stmt := range backup.SplitStatements(string(data)) {
			stmt = strings.TrimRight(strings.TrimSpace(stmt), ";")
			if stmt != "" {
				statements = append(statements, stmt)
			}
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    name,
			Scope:   scope,
			Up:      Statements(statements...),
		})
	}

	return migrations, sortMigrations(migrations)
}
