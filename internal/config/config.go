// Package config loads yapi settings from defaults, an optional YAML file,
// YAPI_* environment variables and command-line flags, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides, e.g. YAPI_WORKERS.
	EnvPrefix = "YAPI"

	// keyDelimiter separates nested keys. Project names in versions
	// sections contain dots, so viper's default "." cannot be used.
	keyDelimiter = "::"
)

var (
	// ErrUnknownSection is returned by Config.Section for a missing section.
	ErrUnknownSection = errors.New("unknown versions section")

	// ErrVersionNotString is returned when a versions section holds a
	// number or other non-string value. YAML reads 1.10 as the number 1.1.
	ErrVersionNotString = errors.New("version must be a quoted string")
)

// BuildScript configures how setup.py build scripts are run.
type BuildScript struct {
	Interpreter string        `mapstructure:"interpreter"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Config holds the resolved settings.
type Config struct {
	Path        string      `mapstructure:"path"`
	Verbose     bool        `mapstructure:"verbose"`
	Quiet       bool        `mapstructure:"quiet"`
	IndexURLs   []string    `mapstructure:"index_urls"`
	FindLinks   []string    `mapstructure:"find_links"`
	SourceOnly  bool        `mapstructure:"source_only"`
	KeepTempDir bool        `mapstructure:"keep_tempdir"`
	SearchPath  []string    `mapstructure:"search_path"`
	Workers     int         `mapstructure:"workers"`
	BuildScript BuildScript `mapstructure:"build_script"`

	// Versions maps a section name to project -> version spec. Keys are
	// lowercased on load.
	Versions map[string]map[string]string `mapstructure:"versions"`
}

// DefaultConfig returns the settings used when nothing overrides them.
// IndexURLs stays empty so that callers can tell an explicitly configured
// index from the default one.
func DefaultConfig() *Config {
	return &Config{
		Path:       ".",
		SourceOnly: true,
		Workers:    4,
		BuildScript: BuildScript{
			Interpreter: "python3",
			Timeout:     30 * time.Second,
		},
	}
}

// FlagKeys maps command-line flag names onto configuration keys. Flags not
// present on a command are ignored.
var FlagKeys = map[string]string{
	"path":           "path",
	"verbose":        "verbose",
	"quiet":          "quiet",
	"index-url":      "index_urls",
	"find-links":     "find_links",
	"keep-tempdir":   "keep_tempdir",
	"workers":        "workers",
	"interpreter":    "build_script" + keyDelimiter + "interpreter",
	"script-timeout": "build_script" + keyDelimiter + "timeout",
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// ConfigFile is an optional YAML file. It must exist when set.
	ConfigFile string

	// Flags are bound through FlagKeys. Only flags set on the command line
	// override the other sources.
	Flags *pflag.FlagSet
}

// Load resolves the configuration.
func Load(opts LoadOptions) (*Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelimiter))

	defaults := DefaultConfig()
	v.SetDefault("path", defaults.Path)
	v.SetDefault("verbose", defaults.Verbose)
	v.SetDefault("quiet", defaults.Quiet)
	v.SetDefault("index_urls", defaults.IndexURLs)
	v.SetDefault("find_links", defaults.FindLinks)
	v.SetDefault("source_only", defaults.SourceOnly)
	v.SetDefault("keep_tempdir", defaults.KeepTempDir)
	v.SetDefault("search_path", defaults.SearchPath)
	v.SetDefault("workers", defaults.Workers)
	v.SetDefault("build_script"+keyDelimiter+"interpreter", defaults.BuildScript.Interpreter)
	v.SetDefault("build_script"+keyDelimiter+"timeout", defaults.BuildScript.Timeout)

	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", opts.ConfigFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelimiter, "_"))
	v.AutomaticEnv()

	if opts.Flags != nil {
		for name, key := range FlagKeys {
			flag := opts.Flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return nil, fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	if err := checkVersions(v.Get("versions")); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers)
	}
	if cfg.BuildScript.Timeout <= 0 {
		return nil, fmt.Errorf("build_script timeout must be positive, got %s", cfg.BuildScript.Timeout)
	}
	return &cfg, nil
}

// checkVersions rejects versions sections whose values are not strings,
// before weak decoding turns them into strings.
func checkVersions(raw interface{}) error {
	if raw == nil {
		return nil
	}
	sections, ok := raw.(map[string]interface{})
	if !ok {
		return fmt.Errorf("versions: expected a map of sections, got %T", raw)
	}
	for name, rawSection := range sections {
		section, ok := rawSection.(map[string]interface{})
		if !ok {
			return fmt.Errorf("versions %s: expected a map of projects, got %T", name, rawSection)
		}
		for project, value := range section {
			if _, ok := value.(string); !ok {
				return fmt.Errorf("%w: versions %s: %s = %v", ErrVersionNotString, name, project, value)
			}
		}
	}
	return nil
}

// Section returns the versions section called name.
func (c *Config) Section(name string) (map[string]string, error) {
	section, ok := c.Versions[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSection, name)
	}
	return section, nil
}
