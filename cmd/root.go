package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kris-hansen/stepwise/utils/catalog"
	"github.com/kris-hansen/stepwise/utils/config"
	"github.com/kris-hansen/stepwise/utils/logger"
	"github.com/kris-hansen/stepwise/utils/style"
)

// version is a placeholder for the version string, which will be set at build time.
var version string

var (
	cfgFile     string
	verbose     bool
	debug       bool
	logFormat   string
	catalogPath string
	secretsPath string
	noColor     bool
)

// Loaded in PersistentPreRunE and shared by every command.
var (
	appConfig *config.Config
	providers catalog.Catalog
	secrets   catalog.Secrets
	styler    *style.Styler
)

var rootCmd = &cobra.Command{
	Use:   "stepwise",
	Short: "Validate, format and compile YAML workflow definitions",
	Long: `Stepwise checks YAML workflow definitions before they reach the engine.

It validates the document against the workflow schema, checks every
{{ ... }} placeholder against what is in scope for its step, formats files
without losing comments, and converts workflows to and from the step tree
used by visual editors.

Getting Started:
  1. stepwise validate workflows/       Check every workflow in a directory
  2. stepwise format flow.yaml --write  Normalize key order in place
  3. stepwise deps flow.yaml            List secrets, providers and inputs used

Configuration is read from stepwise.yaml in the working directory or
~/.stepwise/stepwise.yaml, and STEPWISE_* environment variables.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		// Flags win over the config file.
		if cmd.Flags().Changed("log-format") {
			cfg.LogFormat = logFormat
		}
		if cmd.Flags().Changed("catalog") {
			cfg.Catalog = catalogPath
		}
		if cmd.Flags().Changed("secrets") {
			cfg.Secrets = secretsPath
		}
		cfg.Debug = cfg.Debug || debug
		appConfig = cfg

		logConfig := logger.DefaultConfig()
		logConfig.Debug = cfg.Debug || verbose
		if cfg.LogFormat != "" {
			logConfig.Format = cfg.LogFormat
		}
		logConfig.File = cfg.LogFile
		if err := logger.InitLogger(logConfig); err != nil {
			return err
		}
		if cfg.Source != "" {
			logger.Logger.Debugw("loaded configuration", "file", cfg.Source)
		}

		styleConfig := style.DefaultConfig(os.Stdout)
		if noColor {
			styleConfig.UseColors = false
		}
		styler = style.NewStyler(styleConfig)

		providers, secrets = nil, nil
		if cfg.Catalog != "" {
			if providers, err = catalog.LoadCatalog(cfg.Catalog); err != nil {
				return err
			}
			logger.Logger.Debugw("loaded provider catalog", "file", cfg.Catalog, "providers", len(providers))
		}
		if cfg.Secrets != "" {
			if secrets, err = catalog.LoadSecrets(cfg.Secrets); err != nil {
				return err
			}
			logger.Logger.Debugw("loaded secrets", "file", cfg.Secrets, "count", len(secrets))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./stepwise.yaml or ~/.stepwise/stepwise.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "human", "log format: human or json")
	rootCmd.PersistentFlags().StringVar(&catalogPath, "catalog", "", "provider catalog file (json, yaml or toml)")
	rootCmd.PersistentFlags().StringVar(&secretsPath, "secrets", "", "secret names file (json, yaml or toml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(versionCmd)
}

// getVersion returns the version string.
// Priority: build-time ldflags > VERSION file (for development)
func getVersion() string {
	if version != "" {
		return version
	}

	// go run . has no ldflags; fall back to the VERSION file next to go.mod.
	_, filename, _, ok := runtime.Caller(0)
	if ok {
		projectRoot := filepath.Dir(filepath.Dir(filename))
		content, err := os.ReadFile(filepath.Join(projectRoot, "VERSION"))
		if err == nil {
			return "v" + strings.TrimSpace(string(content)) + "-dev"
		}
	}

	return "unknown (build with: go build -ldflags \"-X 'github.com/kris-hansen/stepwise/cmd.version=vX.Y.Z'\")"
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "stepwise version: %s\n", getVersion())
	},
}

func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	err := rootCmd.Execute()
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "unknown command") {
			arg := strings.Trim(strings.TrimPrefix(errMsg, "unknown command"), `"`+` for "stepwise"`)
			// A bare file name most likely meant validate.
			if _, statErr := os.Stat(arg); statErr == nil {
				fmt.Fprintf(os.Stderr, "To check a file, use the 'validate' command:\n\n   stepwise validate %s\n\n", arg)
				os.Exit(1)
			}
		}
		if err != errFailed {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
