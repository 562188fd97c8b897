// Package commands implements the catalogd command line.
package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-catalog-backend/internal/config"
	"github.com/tbourn/go-catalog-backend/internal/sysutil"
)

// Version is stamped at build time with -ldflags "-X ...commands.Version=...".
var Version = "dev"

// app carries state shared by every subcommand once the root has loaded it.
type app struct {
	envFile string
	cfg     config.Config
}

// newRootCmd builds the command tree. Running the root without a subcommand
// serves the API.
func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "catalogd",
		Short: "Product catalog API server",
		Long: `catalogd serves the product catalog HTTP API: categories, groups,
products with images, attributes, comments and likes, plus account
registration and token auth.

Configuration comes from the environment, an optional .env file and an
optional CONFIG_FILE.

Examples:
  catalogd                                  # same as "catalogd serve"
  catalogd migrate                          # create or update tables
  catalogd createuser --username admin --email admin@example.com --staff`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Dotenv file to load before reading the environment")

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newCreateUserCmd(a),
	)
	return root
}

// load reads the dotenv file (a missing file is fine), the configuration,
// and sets up the global logger.
func (a *app) load() error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", a.envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	a.cfg = cfg
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
