package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/kris-hansen/stepwise/utils/fileutil"
)

const (
	// AppName names the config file and directory.
	AppName = "stepwise"

	// EnvPrefix is the prefix of environment overrides, e.g. STEPWISE_STRICT.
	EnvPrefix = "STEPWISE"
)

// Config is the resolved tool configuration.
type Config struct {
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	// Catalog and Secrets point at provider catalog and secret files (JSON,
	// YAML or TOML). Empty means the matching checks are skipped.
	Catalog string `mapstructure:"catalog"`
	Secrets string `mapstructure:"secrets"`

	// Ignore holds gitignore style patterns skipped when linting directories.
	Ignore []string `mapstructure:"ignore"`

	// Strict makes warnings fail a lint run.
	Strict bool `mapstructure:"strict"`

	// Source is the config file that was read, empty when none was found.
	Source string `mapstructure:"-"`
}

// Load reads configuration from cfgFile, or from stepwise.yaml in the working
// directory or ~/.stepwise when cfgFile is empty. A missing file is not an
// error: defaults and STEPWISE_* environment variables still apply.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		path, err := fileutil.ExpandPath(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("failed to expand config path: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := fileutil.ExpandPath("~/." + AppName); err == nil {
			v.AddConfigPath(home)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	var source string
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		source = v.ConfigFileUsed()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.Source = source

	// Relative paths in a config file are relative to that file.
	base := ""
	if source != "" {
		base = filepath.Dir(source)
	}
	var err error
	if cfg.Catalog, err = resolve(base, cfg.Catalog); err != nil {
		return nil, err
	}
	if cfg.Secrets, err = resolve(base, cfg.Secrets); err != nil {
		return nil, err
	}
	if cfg.LogFile, err = resolve(base, cfg.LogFile); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")
	v.SetDefault("log_file", "")
	v.SetDefault("catalog", "")
	v.SetDefault("secrets", "")
	v.SetDefault("ignore", []string{})
	v.SetDefault("strict", false)
}

func resolve(base, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := fileutil.ExpandPath(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand %q: %w", path, err)
	}
	if base != "" && !filepath.IsAbs(expanded) {
		expanded = filepath.Join(base, expanded)
	}
	return expanded, nil
}
