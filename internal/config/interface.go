package config

// Provider defines the interface for accessing configuration values
// All configuration values are immutable after initial loading unless
// Watch functionality is used
type Provider interface {
	// GetCredentials returns the Whistle account email and password
	GetCredentials() (username, password string)

	// GetRefresh returns the refresh interval in milliseconds
	GetRefresh() int64

	// GetAPIURL returns the base URL of the Whistle API
	GetAPIURL() string

	// GetBindingsFile returns the path to the bindings definition file
	GetBindingsFile() string

	// GetLogLevel returns the configured logging level
	GetLogLevel() string

	// GetConcurrency returns the number of bindings refreshed in parallel
	GetConcurrency() int

	// GetListen returns the HTTP API listen address, empty when disabled
	GetListen() string
}

// Option defines a configuration option that can be passed to Load
type Option func(*options) error

// options holds internal configuration options
type options struct {
	configPath string
	envPrefix  string
	args       []string
	dotEnv     bool
}

// WithConfigFile specifies an explicit configuration file path
func WithConfigFile(path string) Option {
	return func(o *options) error {
		o.configPath = path
		return nil
	}
}

// WithEnvPrefix specifies a custom environment variable prefix
// Default is "WHISTLECTL"
func WithEnvPrefix(prefix string) Option {
	return func(o *options) error {
		o.envPrefix = prefix
		return nil
	}
}

// WithArgs replaces os.Args[1:] as the command line to parse
func WithArgs(args []string) Option {
	return func(o *options) error {
		o.args = args
		return nil
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config
func WithDotEnv(enabled bool) Option {
	return func(o *options) error {
		o.dotEnv = enabled
		return nil
	}
}
