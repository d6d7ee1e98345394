// Package cli holds the newspaper command line: the web server and its maintenance commands.
package cli

import (
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/cppla/newspaper/config"
	"github.com/cppla/newspaper/models"
	"github.com/cppla/newspaper/utils"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
}

// NewRootCommand creates the root command. Without a subcommand it serves the site.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "newspaper",
		Short:         "News portal with category newsletters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.ConfigFile != "" {
				return os.Setenv("CONFIG_FILE", opts.ConfigFile)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "config file (yaml or json)")

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewMigrateCommand())
	cmd.AddCommand(NewDigestCommand())
	cmd.AddCommand(NewCategoryCommand())
	cmd.AddCommand(NewGroupCommand())

	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		utils.Sugar.Error(err)
		_, _ = os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// bootstrap loads configuration, starts logging and opens the migrated database.
func bootstrap() (config.AppConfig, *gorm.DB, error) {
	cfg, err := config.LoadFrom(config.DefaultPaths()...)
	if err != nil {
		return cfg, nil, err
	}
	config.Set(cfg)

	if err := utils.InitLogger(cfg); err != nil {
		return cfg, nil, err
	}

	db, err := config.OpenDatabase(cfg.Database, cfg.Log.Level)
	if err != nil {
		return cfg, nil, err
	}
	if err := models.Migrate(db); err != nil {
		return cfg, nil, err
	}
	return cfg, db, nil
}
