package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/kadirbelkuyu/chkit/internal/schema"
	"github.com/kadirbelkuyu/chkit/pkg/progress"
)

// StatementDelimiter ends every statement of a structure file.
const StatementDelimiter = ";\n\n"

// StatementError reports the statement a replay stopped at.
type StatementError struct {
	Index     int
	Statement string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement %d failed: %v", e.Index+1, e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// Capture writes the live CREATE statement of every function, table and
// view so the file can rebuild the database with Replay.
func (s *structureService) Capture(ctx context.Context, options CaptureOptions) (*BackupMetadata, error) {
	start := time.Now()

	statements, err := s.collectStatements(ctx, options)
	if err != nil {
		return nil, err
	}

	outputPath, err := s.ensureOutputPath(options)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	for _, stmt := range statements {
		b.WriteString(stmt)
		b.WriteString(StatementDelimiter)
	}

	if err := os.WriteFile(outputPath, []byte(b.String()), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write structure file: %w", err)
	}

	s.log.Infof("%d statements written to %s", len(statements), outputPath)

	metadata, err := buildBackupMetadata(outputPath, start)
	if err != nil {
		return nil, err
	}
	metadata.Statements = len(statements)
	return metadata, nil
}

func (s *structureService) collectStatements(ctx context.Context, options CaptureOptions) ([]string, error) {
	functions, err := s.store.Functions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list functions: %w", err)
	}
	sort.Strings(functions)

	var statements []string
	for _, name := range functions {
		createSQL, err := s.store.ShowCreateFunction(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read function %s: %w", name, err)
		}
		statements = append(statements, strings.ReplaceAll(createSQL, `\n`, "\n"))
	}

	names, err := s.store.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	ignored := make(map[string]bool, len(options.IgnoreTables))
	for _, name := range options.IgnoreTables {
		ignored[name] = true
	}

	database := s.store.GetDatabaseName()
	tables := make(map[string]string)
	var kept []string
	for _, name := range names {
		if strings.Contains(name, ".inner") || ignored[name] {
			continue
		}

		createSQL, err := s.store.ShowCreateTable(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read table %s: %w", name, err)
		}
		tables[name] = schema.StripDatabase(createSQL, database)
		kept = append(kept, name)
	}

	for _, name := range schema.SortTables(kept, tables) {
		statements = append(statements, tables[name])
	}

	return statements, nil
}

// Replay runs every statement of a structure file in order and stops at
// the first failure.
func (s *structureService) Replay(ctx context.Context, options ReplayOptions) error {
	data, err := os.ReadFile(options.SourcePath)
	if err != nil {
		return fmt.Errorf("structure file not found: %w", err)
	}

	statements := SplitStatements(string(data))
	s.log.Infof("Loading %d statements from %s", len(statements), options.SourcePath)

	var bar *progress.Bar
	if options.ShowProgress {
		bar = progress.NewBar(int64(len(statements)), "Loading structure")
	}

	for i, stmt := range statements {
		s.log.Debugf("executing: %s", stmt)
		if err := s.store.Exec(ctx, stmt); err != nil {
			return &StatementError{Index: i, Statement: stmt, Err: err}
		}
		bar.Increment()
	}
	bar.Finish()

	return nil
}

// SplitStatements cuts a structure file into statements, dropping blank
// fragments.
func SplitStatements(content string) []string {
	var statements []string
	for _, fragment := range strings.Split(content, StatementDelimiter) {
		if strings.TrimSpace(fragment) == "" {
			continue
		}
		statements = append(statements, fragment)
	}
	return statements
}

func (s *structureService) ensureOutputPath(options CaptureOptions) (string, error) {
	outputPath := options.OutputPath
	if outputPath == "" {
		if err := os.MkdirAll("backup", 0o755); err != nil {
			return "", fmt.Errorf("failed to create backup directory: %w", err)
		}

		fileName := fmt.Sprintf("%s_%s.sql", s.store.GetDatabaseName(), time.Now().Format("20060102_150405"))
		return filepath.Join("backup", fileName), nil
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to prepare backup directory: %w", err)
	}
	return outputPath, nil
}
