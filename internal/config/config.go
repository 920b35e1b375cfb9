package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"codeberg.org/mutker/whistlectl/internal/errors"
	"codeberg.org/mutker/whistlectl/internal/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultRefresh        = 900000
	DefaultAPIURL         = "https://app.whistle.com/api/"
	DefaultLogLevel       = "info"
	DefaultConcurrency    = 1
	DefaultRequestTimeout = 30
	DefaultStateDBPath    = "/var/lib/whistlectl/state.db"
	DefaultStateBackupDir = "/var/lib/whistlectl/backups"
	DefaultRedisPrefix    = "whistle:item:"
	DefaultRedisChannel   = "whistle:updates"
	DefaultEnvPrefix      = "WHISTLECTL"

	configName = "whistlectl"
)

type StateConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	DBPath    string `mapstructure:"db_path"`
	BackupDir string `mapstructure:"backup_dir"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
	Channel  string `mapstructure:"channel"`
}

type Config struct {
	Username       string      `mapstructure:"username"`
	Password       string      `mapstructure:"password"`
	Refresh        int64       `mapstructure:"refresh"`
	APIURL         string      `mapstructure:"api_url"`
	Bindings       string      `mapstructure:"bindings"`
	LogLevel       string      `mapstructure:"log_level"`
	Concurrency    int         `mapstructure:"concurrency"`
	RequestTimeout int         `mapstructure:"request_timeout"`
	Listen         string      `mapstructure:"listen"`
	State          StateConfig `mapstructure:"state"`
	Redis          RedisConfig `mapstructure:"redis"`

	v *viper.Viper
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("bindings", "")
	v.SetDefault("listen", "")
	v.SetDefault("refresh", DefaultRefresh)
	v.SetDefault("api_url", DefaultAPIURL)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("request_timeout", DefaultRequestTimeout)
	v.SetDefault("state.enabled", false)
	v.SetDefault("state.db_path", DefaultStateDBPath)
	v.SetDefault("state.backup_dir", DefaultStateBackupDir)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", DefaultRedisPrefix)
	v.SetDefault("redis.channel", DefaultRedisChannel)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(configName, pflag.ContinueOnError)
	fs.String("config", "", "Path to the configuration file")
	fs.String("username", "", "Whistle account email")
	fs.String("password", "", "Whistle account password")
	fs.Int64("refresh", DefaultRefresh, "Refresh interval in milliseconds")
	fs.String("api-url", DefaultAPIURL, "Whistle API base URL")
	fs.String("bindings", "", "Path to the bindings definition file")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Int("concurrency", DefaultConcurrency, "Bindings refreshed in parallel")
	fs.Int("request-timeout", DefaultRequestTimeout, "Remote request timeout in seconds")
	fs.String("listen", "", "HTTP API listen address (disabled when empty)")

	return fs
}

// Load reads configuration from defaults, the config file, the environment
// and the command line, in increasing order of precedence.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		envPrefix: DefaultEnvPrefix,
		args:      os.Args[1:],
		dotEnv:    true,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	if o.dotEnv {
		// Missing .env is not an error; real environment wins over the file.
		_ = godotenv.Load()
	}

	fs := newFlagSet()
	if err := fs.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Flags use dashes, config keys use underscores
	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, bindErr)
	}

	configPath := o.configPath
	if flagPath, _ := fs.GetString("config"); flagPath != "" {
		configPath = flagPath
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	cfg := &Config{v: v}
	if err := cfg.unmarshal(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readConfigFile(v *viper.Viper, path string) error {
	errFactory := errors.New()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))
		if filepath.Ext(path) == "" {
			v.SetConfigType("toml")
		}
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", configName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		if path != "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

func (c *Config) unmarshal() error {
	errFactory := errors.New()

	if err := c.v.Unmarshal(c); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	return c.validate()
}

func (c *Config) validate() error {
	errFactory := errors.New()

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Refresh <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Refresh)
	}
	if c.Concurrency < 1 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "concurrency must be at least 1")
	}
	if c.RequestTimeout < 1 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "request_timeout must be at least 1 second")
	}
	if c.APIURL == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "api_url must be set")
	}
	if c.State.Enabled && c.State.DBPath == "" {
		return errFactory.WithMessage(errors.ErrMissingConfig, "state.db_path must be set when state is enabled")
	}

	return nil
}

// Validate checks if the current configuration is valid
func (c *Config) Validate() error {
	return c.validate()
}

// ConfigFile returns the path of the loaded configuration file, if any
func (c *Config) ConfigFile() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Watch re-reads the configuration file on every change and hands the
// freshly validated configuration to callback. Invalid reloads are dropped.
func (c *Config) Watch(ctx context.Context, callback func(*Config)) error {
	errFactory := errors.New()

	if c.v == nil || c.v.ConfigFileUsed() == "" {
		return errFactory.WithMessage(errors.ErrWatchConfig, "no configuration file to watch")
	}

	var mu sync.Mutex
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		mu.Lock()
		defer mu.Unlock()

		next := &Config{v: c.v}
		if err := next.unmarshal(); err != nil {
			return
		}
		callback(next)
	})
	c.v.WatchConfig()

	return nil
}

func (c *Config) GetCredentials() (string, string) {
	return c.Username, c.Password
}

func (c *Config) GetRefresh() int64 {
	return c.Refresh
}

func (c *Config) GetAPIURL() string {
	return c.APIURL
}

func (c *Config) GetBindingsFile() string {
	return c.Bindings
}

func (c *Config) GetLogLevel() string {
	return c.LogLevel
}

func (c *Config) GetConcurrency() int {
	return c.Concurrency
}

func (c *Config) GetListen() string {
	return c.Listen
}
