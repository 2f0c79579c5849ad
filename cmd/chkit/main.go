package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kadirbelkuyu/chkit/internal/app"
	"github.com/kadirbelkuyu/chkit/internal/config"
	"github.com/kadirbelkuyu/chkit/internal/profiles"
)

const defaultProfilesDir = "configs"

var rootCmd = &cobra.Command{
	Use:   "chkit",
	Short: "ClickHouse schema and migration toolkit",
	Long:  `Create, migrate and dump ClickHouse databases, and inspect them over the native, HTTP or PostgreSQL wire protocols.`,
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the configured database and its bookkeeping tables",
	Args:  cobra.NoArgs,
	RunE:  runCreate,
}

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the configured database",
	Args:  cobra.NoArgs,
	RunE:  runDrop,
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Drop and recreate the configured database",
	Args:  cobra.NoArgs,
	RunE:  runPurge,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	Long:  `Apply pending migrations in version order. VERSION, SCOPE and VERBOSE are read from the environment unless the matching flag is given.`,
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

var schemaDumpCmd = &cobra.Command{
	Use:   "schema-dump",
	Short: "Write the schema definition script",
	Args:  cobra.NoArgs,
	RunE:  runSchemaDump,
}

var structureDumpCmd = &cobra.Command{
	Use:   "structure-dump <file>",
	Short: "Write the CREATE statements of the database to a file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStructureDump,
}

var structureLoadCmd = &cobra.Command{
	Use:   "structure-load <file>",
	Short: "Run the statements of a structure file",
	Args:  cobra.ExactArgs(1),
	RunE:  runStructureLoad,
}

var listDbCmd = &cobra.Command{
	Use:   "list-databases",
	Short: "List databases available on the server",
	Args:  cobra.NoArgs,
	RunE:  runListDatabases,
}

var queryCmd = &cobra.Command{
	Use:   "query <sql>",
	Short: "Run a query over the HTTP interface",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

var environmentsCmd = &cobra.Command{
	Use:   "environments",
	Short: "List saved environment profiles",
	Args:  cobra.NoArgs,
	RunE:  runEnvironments,
}

var environmentSaveCmd = &cobra.Command{
	Use:   "save [alias]",
	Short: "Save the loaded configuration as an environment profile",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runEnvironmentSave,
}

var environmentDeleteCmd = &cobra.Command{
	Use:   "delete <alias>",
	Short: "Delete an environment profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnvironmentDelete,
}

var workflowService = app.NewService()

var (
	configPath  string
	envName     string
	profilesDir string
	verbose     bool
	assumeYes   bool
	simpleDump  bool
	outputFile  string
	pickDB      bool
	overwrite   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the database configuration file")
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "Name of a saved environment profile")
	rootCmd.PersistentFlags().StringVar(&profilesDir, "profiles-dir", defaultProfilesDir, "Directory holding environment profiles")

	for _, cmd := range []*cobra.Command{createCmd, dropCmd, purgeCmd, schemaDumpCmd, structureDumpCmd, structureLoadCmd, queryCmd} {
		cmd.Flags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	}

	dropCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	purgeCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")

	migrateCmd.Flags().String("version", "", "Target version, same as VERSION")
	migrateCmd.Flags().String("scope", "", "Only run migrations of this scope, same as SCOPE")
	migrateCmd.Flags().String("verbose", "", "Set to false to silence migration output, same as VERBOSE")

	schemaDumpCmd.Flags().BoolVar(&simpleDump, "simple", false, "Write the portable simple format")
	schemaDumpCmd.Flags().StringVar(&outputFile, "file", "", "Output path, - for stdout")
	schemaDumpCmd.Flags().BoolVar(&pickDB, "pick", false, "Choose the database interactively")
	structureDumpCmd.Flags().BoolVar(&pickDB, "pick", false, "Choose the database interactively")

	environmentSaveCmd.Flags().BoolVar(&overwrite, "force", false, "Overwrite an existing profile")
	environmentDeleteCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Skip the confirmation prompt")
	environmentsCmd.AddCommand(environmentSaveCmd)
	environmentsCmd.AddCommand(environmentDeleteCmd)

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(schemaDumpCmd)
	rootCmd.AddCommand(structureDumpCmd)
	rootCmd.AddCommand(structureLoadCmd)
	rootCmd.AddCommand(listDbCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(environmentsCmd)

	cobra.OnInitialize(func() {
		rootCmd.SilenceUsage = true
		rootCmd.SilenceErrors = true
	})
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig resolves --env before --config.
func loadConfig() (*config.Config, error) {
	if strings.TrimSpace(envName) != "" {
		cfg, err := profiles.NewManager(profilesDir).Load(envName)
		if err != nil {
			return nil, fmt.Errorf("cannot load environment %s: %w", envName, err)
		}
		return cfg, nil
	}

	if strings.TrimSpace(configPath) == "" {
		return nil, fmt.Errorf("either --config or --env is required")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}
	return cfg, nil
}

// migrateControls layers the flags that were set over the environment.
func migrateControls(cmd *cobra.Command) config.Controls {
	v := config.NewControlsViper()
	overrideFromFlag(cmd, v, "version", config.KeyVersion)
	overrideFromFlag(cmd, v, "scope", config.KeyScope)
	overrideFromFlag(cmd, v, "verbose", config.KeyVerbose)
	return config.LoadControls(v)
}

func overrideFromFlag(cmd *cobra.Command, v *viper.Viper, flag, key string) {
	if !cmd.Flags().Changed(flag) {
		return
	}
	value, _ := cmd.Flags().GetString(flag)
	v.Set(key, value)
}

func runCreate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return workflowService.Create(cmd.Context(), cfg, verbose)
}

func runDrop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return workflowService.Drop(cmd.Context(), cfg, assumeYes, verbose)
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return workflowService.Purge(cmd.Context(), cfg, assumeYes, verbose)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return workflowService.Migrate(cmd.Context(), cfg, migrateControls(cmd))
}

func runSchemaDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return workflowService.SchemaDump(cmd.Context(), cfg, app.SchemaDumpOptions{
		Simple: simpleDump,
		File:   outputFile,
		Pick:   pickDB,
	}, verbose)
}

func runStructureDump(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	}
	return workflowService.StructureDump(cmd.Context(), cfg, path, pickDB, verbose)
}

func runStructureLoad(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return workflowService.StructureLoad(cmd.Context(), cfg, args[0], verbose)
}

func runListDatabases(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return workflowService.ListDatabases(cmd.Context(), cfg)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return workflowService.Query(cmd.Context(), cfg, args[0], verbose)
}

func runEnvironments(cmd *cobra.Command, args []string) error {
	return workflowService.Environments(profiles.NewManager(profilesDir))
}

func runEnvironmentSave(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	alias := ""
	if len(args) == 1 {
		alias = args[0]
	}
	return workflowService.SaveEnvironment(profiles.NewManager(profilesDir), alias, cfg, overwrite)
}

func runEnvironmentDelete(cmd *cobra.Command, args []string) error {
	return workflowService.DeleteEnvironment(profiles.NewManager(profilesDir), args[0], assumeYes)
}
