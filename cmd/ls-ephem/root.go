package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/litescript/ls-ephem/internal/catalog"
	"github.com/litescript/ls-ephem/internal/config"
	"github.com/litescript/ls-ephem/internal/logging"
	"github.com/litescript/ls-ephem/internal/oem"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ls-ephem",
		Short: "Inspect and interpolate CCSDS orbit ephemeris messages",
		Long: "ls-ephem loads CCSDS Orbit Ephemeris Message (OEM) files and reports\n" +
			"segment summaries and interpolated state vectors at arbitrary epochs.",
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default .ls-ephem.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.Bool("allow-v2", false, "accept CCSDS_OEM_VERS = 2.0 files")
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("allow_version2", flags.Lookup("allow-v2"))

	root.AddCommand(
		newSummaryCmd(),
		newStateCmd(),
		newTableCmd(),
		newExportCmd(),
		newBrowseCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)
	return root
}

func initConfig(cmd *cobra.Command, _ []string) error {
	viper.SetEnvPrefix("LSEPHEM")
	viper.AutomaticEnv()

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		return nil
	}

	viper.SetConfigName(".ls-ephem")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
	}

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
	return nil
}

// app carries the resolved configuration and logger for one command run.
type app struct {
	cfg config.Config
	log *logging.Logger
}

func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(cfg.Level())
	log.SetOutput(cmd.ErrOrStderr())
	if log.Enabled(logging.LevelDebug) {
		log.Debug("config: %+v", cfg)
	}
	return &app{cfg: cfg, log: log}, nil
}

func (a *app) loadOptions() []oem.Option {
	return a.cfg.LoadOptions(a.log)
}

func (a *app) newCatalog() *catalog.Catalog {
	return catalog.New(catalog.Config{
		MaxEvents: a.cfg.MaxEvents,
		Options:   a.loadOptions(),
	}, a.log)
}
