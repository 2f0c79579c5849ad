package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/kadirbelkuyu/chkit/internal/backup"
	"github.com/kadirbelkuyu/chkit/internal/config"
	"github.com/kadirbelkuyu/chkit/internal/database"
	"github.com/kadirbelkuyu/chkit/internal/metadata"
	"github.com/kadirbelkuyu/chkit/internal/migration"
	"github.com/kadirbelkuyu/chkit/internal/profiles"
	"github.com/kadirbelkuyu/chkit/internal/schema"
	"github.com/kadirbelkuyu/chkit/pkg/interactive"
	"github.com/kadirbelkuyu/chkit/pkg/logger"
)

const (
	simpleSchemaFile = "db/schema.rb"
	fullSchemaFile   = "db/clickhouse_schema.rb"
)

// Service runs the CLI workflows. Prompts are read from in and reports are
// written to out.
type Service struct {
	in  io.Reader
	out io.Writer
}

func NewService() *Service {
	return NewServiceWith(os.Stdin, os.Stdout)
}

func NewServiceWith(in io.Reader, out io.Writer) *Service {
	return &Service{in: in, out: out}
}

type SchemaDumpOptions struct {
	Simple bool
	// File is the output path; "-" writes to out.
	File string
	// Pick asks for the database interactively.
	Pick bool
}

func (s *Service) Create(ctx context.Context, cfg *config.Config, verboseFlag bool) error {
	log := logger.NewLogger(verboseFlag)

	runner, cleanup, err := s.openRunner(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := runner.Create(ctx); err != nil {
		if errors.Is(err, migration.ErrDatabaseAlreadyExists) {
			fmt.Fprintf(s.out, "Database '%s' already exists\n", cfg.Database.Database)
			return nil
		}
		return fmt.Errorf("failed to create database: %w", err)
	}

	fmt.Fprintf(s.out, "Created database '%s' on %s\n", cfg.Database.Database, formatServerLabel(cfg))
	return nil
}

func (s *Service) Drop(ctx context.Context, cfg *config.Config, assumeYes, verboseFlag bool) error {
	log := logger.NewLogger(verboseFlag)

	if !assumeYes && !s.selector().ConfirmAction("drop", cfg.Database.Database) {
		log.Info("Operation cancelled by user.")
		return nil
	}

	runner, cleanup, err := s.openRunner(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := runner.Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop database: %w", err)
	}

	fmt.Fprintf(s.out, "Dropped database '%s'\n", cfg.Database.Database)
	return nil
}

func (s *Service) Purge(ctx context.Context, cfg *config.Config, assumeYes, verboseFlag bool) error {
	log := logger.NewLogger(verboseFlag)

	if !assumeYes && !s.selector().ConfirmAction("purge", cfg.Database.Database) {
		log.Info("Operation cancelled by user.")
		return nil
	}

	runner, cleanup, err := s.openRunner(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := runner.Purge(ctx); err != nil {
		return fmt.Errorf("failed to purge database: %w", err)
	}

	fmt.Fprintf(s.out, "Purged database '%s'\n", cfg.Database.Database)
	return nil
}

func (s *Service) Migrate(ctx context.Context, cfg *config.Config, controls config.Controls) error {
	log := logger.NewLogger(controls.Verbose)

	runner, cleanup, err := s.openRunner(ctx, cfg, log, !controls.Verbose)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := runner.Migrate(ctx, controls); err != nil {
		return err
	}

	version, err := runner.Version(ctx)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	fmt.Fprintf(s.out, "Schema version: %d\n", version)
	return nil
}

func (s *Service) SchemaDump(ctx context.Context, cfg *config.Config, options SchemaDumpOptions, verboseFlag bool) error {
	log := logger.NewLogger(verboseFlag)

	conn, err := s.connect(ctx, cfg, log, options.Pick)
	if err != nil {
		return err
	}
	defer conn.Close()

	version, err := currentVersion(ctx, conn, log)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	mode := schema.Full
	if options.Simple {
		mode = schema.Simple
	}

	dumper := schema.NewDumper(conn, log,
		schema.WithIgnoreTables(serviceTables(cfg)...),
		schema.WithVersion(version),
	)

	report, err := dumper.Dump(ctx, mode)
	if err != nil {
		return fmt.Errorf("schema dump failed: %w", err)
	}

	path := options.File
	if path == "" {
		path = defaultSchemaFile(mode)
	}
	if err := s.writeOutput(path, report.Script()); err != nil {
		return err
	}

	for _, failed := range report.Failed() {
		log.Warnf("table %s was not dumped: %v", failed.Name, failed.Err)
	}
	if path != "-" {
		fmt.Fprintf(s.out, "Schema of %s written to %s (%d tables, %d functions)\n",
			conn.GetDatabaseName(), path, len(report.Tables), len(report.Functions))
	}
	return nil
}

func (s *Service) StructureDump(ctx context.Context, cfg *config.Config, path string, pick, verboseFlag bool) error {
	log := logger.NewLogger(verboseFlag)
	log.Info("Starting structure dump...")

	conn, err := s.connect(ctx, cfg, log, pick)
	if err != nil {
		return err
	}
	defer conn.Close()

	service := backup.NewService(conn, log)
	meta, err := service.Capture(ctx, backup.CaptureOptions{
		OutputPath:   path,
		IgnoreTables: serviceTables(cfg),
	})
	if err != nil {
		return fmt.Errorf("failed to dump structure: %w", err)
	}

	fmt.Fprintln(s.out)
	fmt.Fprintln(s.out, "Structure dump completed successfully.")
	fmt.Fprintf(s.out, "File: %s\n", meta.Location)
	fmt.Fprintf(s.out, "Statements: %d\n", meta.Statements)
	fmt.Fprintf(s.out, "Size: %d bytes\n", meta.BackupSize)
	fmt.Fprintf(s.out, "Checksum: %s\n", shortChecksum(meta.Checksum))
	fmt.Fprintf(s.out, "Duration: %s\n", meta.CompletedAt.Sub(meta.StartedAt).Round(time.Millisecond))
	return nil
}

func (s *Service) StructureLoad(ctx context.Context, cfg *config.Config, path string, verboseFlag bool) error {
	log := logger.NewLogger(verboseFlag)
	log.Info("Starting structure load...")

	conn, err := database.NewConnection(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	service := backup.NewService(conn, log)
	if err := service.Replay(ctx, backup.ReplayOptions{SourcePath: path, ShowProgress: !verboseFlag}); err != nil {
		return fmt.Errorf("failed to load structure: %w", err)
	}

	fmt.Fprintln(s.out)
	fmt.Fprintf(s.out, "Structure loaded into %s.\n", conn.GetDatabaseName())
	return nil
}

func (s *Service) ListDatabases(ctx context.Context, cfg *config.Config) error {
	log := logger.NewLogger(false)

	conn, err := database.NewConnection(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	databases, err := backup.NewService(conn, log).ListDatabases(ctx)
	if err != nil {
		return fmt.Errorf("failed to list databases: %w", err)
	}

	fmt.Fprintf(s.out, "\nDatabases on %s (%s):\n", formatServerLabel(cfg), cfg.Database.Protocol)
	fmt.Fprintln(s.out, strings.Repeat("=", 36))
	for i, db := range databases {
		fmt.Fprintf(s.out, "%d. %s (Engine: %s, Tables: %d)\n", i+1, db.Name, displayValue(db.Engine, "n/a"), db.Tables)
	}
	fmt.Fprintf(s.out, "\nTotal databases: %d\n", len(databases))
	return nil
}

// Query runs one statement over the HTTP interface and prints the result.
func (s *Service) Query(ctx context.Context, cfg *config.Config, query string, verboseFlag bool) error {
	log := logger.NewLogger(verboseFlag)

	conn, err := database.NewHTTPConnection(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	result, err := conn.Select(ctx, query)
	if err != nil {
		return err
	}
	return printResult(s.out, result)
}

func (s *Service) Environments(manager *profiles.Manager) error {
	list, err := manager.List("")
	if err != nil {
		return fmt.Errorf("failed to list environments: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintf(s.out, "No environments found in %s\n", manager.Directory())
		return nil
	}

	w := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tENVIRONMENT\tPROTOCOL\tDATABASE\tMODIFIED")
	for _, p := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			p.Name,
			displayValue(p.Environment, "n/a"),
			p.Protocol,
			p.Database,
			p.Modified.Format("2006-01-02 15:04"),
		)
	}
	return w.Flush()
}

// SaveEnvironment stores cfg as a named profile for later --env use.
func (s *Service) SaveEnvironment(manager *profiles.Manager, alias string, cfg *config.Config, overwrite bool) error {
	profile, err := manager.Save(alias, cfg, overwrite)
	if err != nil {
		return fmt.Errorf("failed to save environment: %w", err)
	}
	fmt.Fprintf(s.out, "Saved environment %s (%s on %s) to %s\n",
		profile.Name, profile.Database, formatServerLabel(cfg), profile.Path)
	return nil
}

func (s *Service) DeleteEnvironment(manager *profiles.Manager, alias string, assumeYes bool) error {
	if !assumeYes && !s.selector().ConfirmAction("delete", "environment "+alias) {
		fmt.Fprintln(s.out, "Operation cancelled by user.")
		return nil
	}
	if err := manager.Delete(alias); err != nil {
		return fmt.Errorf("failed to delete environment: %w", err)
	}
	fmt.Fprintf(s.out, "Deleted environment %s\n", alias)
	return nil
}

func (s *Service) selector() *interactive.DatabaseSelector {
	return interactive.NewDatabaseSelectorWith(s.in, s.out)
}

// connect opens the configured database, or the one picked from the
// server's list when pick is set.
func (s *Service) connect(ctx context.Context, cfg *config.Config, log *logger.Logger, pick bool) (*database.Connection, error) {
	conn, err := database.NewConnection(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	if !pick {
		return conn, nil
	}

	databases, err := backup.NewService(conn, log).ListDatabases(ctx)
	conn.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to list databases: %w", err)
	}

	selected, err := s.selector().SelectDatabase(databases)
	if err != nil {
		return nil, fmt.Errorf("database selection failed: %w", err)
	}

	picked := *cfg
	picked.Database.Database = selected.Name
	return database.NewConnection(ctx, &picked, log)
}

// openRunner wires a migration runner: an admin connection on the default
// database and a lazy connection on the target one, which may not exist yet.
func (s *Service) openRunner(ctx context.Context, cfg *config.Config, log *logger.Logger, showProgress bool) (*migration.Runner, func(), error) {
	admin, err := database.NewConnection(ctx, cfg.AdminConfig(), log)
	if err != nil {
		return nil, nil, err
	}

	conn, err := database.Open(cfg, log)
	if err != nil {
		admin.Close()
		return nil, nil, err
	}

	metadataOpts := metadata.Options{
		Table:             cfg.Metadata.Table,
		Enabled:           !cfg.Metadata.Disabled,
		Distributed:       cfg.Metadata.Distributed,
		DistributedSuffix: cfg.Metadata.DistributedSuffix,
		Cluster:           cfg.Database.Cluster,
	}
	store := metadata.NewStore(conn, log, metadataOpts, metadataCapabilities(ctx, conn, metadataOpts, log))

	tracker := migration.NewTracker(conn, log, migration.TrackerOptions{
		Table:   cfg.Migrations.Table,
		Cluster: cfg.Database.Cluster,
	})

	runner := migration.NewRunner(admin, conn, migration.DirSource{Path: cfg.Migrations.Path}, tracker, store, log, migration.Options{
		Database:     cfg.Database.Database,
		Environment:  cfg.Environment,
		ShowProgress: showProgress,
	})

	cleanup := func() {
		conn.Close()
		admin.Close()
	}
	return runner, cleanup, nil
}

// metadataCapabilities asks the live table when there is one and falls
// back to what CreateTable would provision.
func metadataCapabilities(ctx context.Context, conn *database.Connection, opts metadata.Options, log *logger.Logger) metadata.Capabilities {
	if !opts.Enabled {
		return metadata.DefaultCapabilities()
	}

	local := localTableName(opts.Table, opts.Distributed, opts.DistributedSuffix)
	exists, err := conn.TableExists(ctx, local)
	if err != nil || !exists {
		return metadata.DefaultCapabilities()
	}

	caps, err := metadata.DetectCapabilities(ctx, conn, opts)
	if err != nil {
		log.Debugf("falling back to default metadata capabilities: %v", err)
		return metadata.DefaultCapabilities()
	}
	return caps
}

func currentVersion(ctx context.Context, conn *database.Connection, log *logger.Logger) (int64, error) {
	tracker := migration.NewTracker(conn, log, migration.TrackerOptions{Table: conn.Config.Migrations.Table})
	exists, err := conn.TableExists(ctx, tracker.TableName())
	if err != nil || !exists {
		return 0, err
	}
	return tracker.Current(ctx)
}

// serviceTables are the bookkeeping tables left out of dumps.
func serviceTables(cfg *config.Config) []string {
	tables := []string{cfg.Migrations.Table, cfg.Metadata.Table}
	if cfg.Metadata.Distributed {
		tables = append(tables, localTableName(cfg.Metadata.Table, true, cfg.Metadata.DistributedSuffix))
	}
	return tables
}

func localTableName(table string, distributed bool, suffix string) string {
	def := schema.TableDefinition{Name: table, Distributed: distributed, DistributedSuffix: suffix}
	return def.LocalName()
}

func defaultSchemaFile(mode schema.Mode) string {
	if mode == schema.Simple {
		return simpleSchemaFile
	}
	return fullSchemaFile
}

func (s *Service) writeOutput(path, content string) error {
	if path == "-" {
		_, err := io.WriteString(s.out, content)
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func printResult(out io.Writer, result *database.Result) error {
	if result.Raw != nil {
		_, err := out.Write(result.Raw)
		return err
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(result.Names, "\t"))
	if len(result.Types) > 0 {
		fmt.Fprintln(w, strings.Join(result.Types, "\t"))
	}
	for i := range result.Rows {
		cells := make([]string, len(result.Names))
		for j := range cells {
			cells[j] = result.String(i, j)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d rows\n", len(result.Rows))
	return nil
}

func shortChecksum(checksum string) string {
	if len(checksum) <= 16 {
		return checksum
	}
	return checksum[:16] + "..."
}

func formatServerLabel(cfg *config.Config) string {
	host := strings.TrimSpace(cfg.Database.Host)
	if host == "" {
		host = "localhost"
	}

	if cfg.Database.Port > 0 {
		return fmt.Sprintf("%s:%d", host, cfg.Database.Port)
	}

	return host
}

func displayValue(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
