// Package config loads and validates the server's runtime configuration
// through viper, with live reload on the backing file and an additional
// flat key=value file format for parity with the original implementation's
// config reader.
package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	validator "github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the full set of server settings.
type Config struct {
	Address string `mapstructure:"address" validate:"required"`
	Port    int    `mapstructure:"port" validate:"required,min=1,max=65535"`
	Workers int    `mapstructure:"workers" validate:"min=1"`

	AssembleChunked bool `mapstructure:"assembleChunked"`

	MaxRequestLineLength int `mapstructure:"maxRequestLineLength" validate:"min=0"`
	MaxTotalHeaderBytes  int `mapstructure:"maxTotalHeaderBytes" validate:"min=0"`
	MaxBodySize          int `mapstructure:"maxBodySize" validate:"min=0"`

	LogLevel string `mapstructure:"logLevel" validate:"required"`
}

// AnyAddress is the sentinel that binds to every local interface.
const AnyAddress = "ANY"

func defaults() Config {
	return Config{
		Address:              AnyAddress,
		Port:                 8080,
		Workers:              4,
		AssembleChunked:      true,
		MaxRequestLineLength: 4096,
		MaxTotalHeaderBytes:  8192,
		MaxBodySize:          1000000,
		LogLevel:             "INFO",
	}
}

var validate = validator.New()

// Validate runs struct-tag validation plus the one rule validator can't
// express declaratively: Address must be ANY or a parseable IPv4/IPv6
// literal.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Address != AnyAddress {
		if !isIPLiteral(c.Address) {
			return fmt.Errorf("config: address %q is neither %q nor a parseable IP literal", c.Address, AnyAddress)
		}
	}
	return nil
}

// Watcher loads a Config from a file, watches it for changes, and
// republishes a validated snapshot on every change. Unlike the listening
// address (fixed once the engine starts), worker count and assembler
// limits are read fresh by callers that check Watcher.Current on each
// use.
type Watcher struct {
	v       *viper.Viper
	mu      sync.Mutex
	current atomic.Pointer[Config]
	onError func(error)
}

// NewWatcher loads path (format inferred from its extension; "properties"
// files use key=value lines, read by viper's built-in properties type), applies
// environment overrides under the PULSENET_ prefix, validates, and starts
// watching for subsequent edits.
func NewWatcher(path string, onError func(error)) (*Watcher, error) {
	return NewWatcherWithFlags(path, nil, onError)
}

// NewWatcherWithFlags is NewWatcher plus a bound *pflag.FlagSet whose
// explicitly-set flags take precedence over both the config file and
// environment variables, the same override order viper's BindPFlag
// establishes for any CLI.
func NewWatcherWithFlags(path string, flags *pflag.FlagSet, onError func(error)) (*Watcher, error) {
	v := viper.New()
	d := defaults()
	v.SetDefault("address", d.Address)
	v.SetDefault("port", d.Port)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("assembleChunked", d.AssembleChunked)
	v.SetDefault("maxRequestLineLength", d.MaxRequestLineLength)
	v.SetDefault("maxTotalHeaderBytes", d.MaxTotalHeaderBytes)
	v.SetDefault("maxBodySize", d.MaxBodySize)
	v.SetDefault("logLevel", d.LogLevel)

	v.SetEnvPrefix("PULSENET")
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: binding flags: %w", err)
		}
	}

	// A ".properties" file (flat key=value lines) is handled by viper's
	// built-in "properties" config type, backed by magiconair/properties,
	// giving parity with the original implementation's plain-text config
	// reader without a custom codec.
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	w := &Watcher{v: v, onError: onError}
	if err := w.reload(); err != nil {
		return nil, err
	}

	if path != "" {
		v.OnConfigChange(func(fsnotify.Event) {
			if err := w.reload(); err != nil && w.onError != nil {
				w.onError(err)
			}
		})
		v.WatchConfig()
	}
	return w, nil
}

func (w *Watcher) reload() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	var c Config
	if err := w.v.Unmarshal(&c); err != nil {
		return fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := c.Validate(); err != nil {
		return err
	}
	w.current.Store(&c)
	return nil
}

// Current returns the most recently validated snapshot.
func (w *Watcher) Current() Config {
	return *w.current.Load()
}

func isIPLiteral(s string) bool {
	return parseIP(s)
}
