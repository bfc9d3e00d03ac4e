// Package config loads Heaviside settings from a TOML file and
// HEAVISIDE_-prefixed environment variables.
//
// Precedence, lowest to highest: built-in defaults, the config file,
// environment variables. HEAVISIDE_HUB_ROUTE_FIELD overrides hub.route_field;
// list values such as receiver.allowed_origins take a comma-separated string.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/dshills/heaviside/internal/logging"
	"github.com/dshills/heaviside/internal/payload"
	"github.com/dshills/heaviside/internal/pubsub"
	"github.com/dshills/heaviside/internal/window"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "HEAVISIDE"

// ErrInvalidConfig is wrapped by validation failures.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds application configuration.
type Config struct {
	Hub       HubConfig       `mapstructure:"hub" toml:"hub"`
	Publisher PublisherConfig `mapstructure:"publisher" toml:"publisher"`
	Receiver  ReceiverConfig  `mapstructure:"receiver" toml:"receiver"`
	Logging   LoggingConfig   `mapstructure:"logging" toml:"logging"`
	Server    ServerConfig    `mapstructure:"server" toml:"server"`
	Script    ScriptConfig    `mapstructure:"script" toml:"script"`
}

// HubConfig holds dispatch settings.
type HubConfig struct {
	RouteField  string `mapstructure:"route_field" toml:"route_field"`
	PanicPolicy string `mapstructure:"panic_policy" toml:"panic_policy"`
}

// PublisherConfig holds cross-window publishing settings.
type PublisherConfig struct {
	// TargetOrigin is used when a post names none. "*" delivers to any
	// origin and should be narrowed for anything sensitive.
	TargetOrigin string `mapstructure:"target_origin" toml:"target_origin"`
}

// ReceiverConfig holds inbound message settings.
type ReceiverConfig struct {
	// AllowedOrigins restricts accepted sender origins. Empty accepts any.
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level" toml:"level"`
	Format string `mapstructure:"format" toml:"format"`
}

// ServerConfig holds WebSocket bridge settings.
type ServerConfig struct {
	Addr string `mapstructure:"addr" toml:"addr"`
	Path string `mapstructure:"path" toml:"path"`
	// Origin is the origin of the frame the bridge's peers post into.
	Origin string `mapstructure:"origin" toml:"origin"`
}

// ScriptConfig holds Lua script settings.
type ScriptConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Hub: HubConfig{
			RouteField:  payload.DefaultRouteField,
			PanicPolicy: pubsub.PanicIsolate.String(),
		},
		Publisher: PublisherConfig{
			TargetOrigin: window.WildcardOrigin,
		},
		Receiver: ReceiverConfig{
			AllowedOrigins: []string{},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: string(logging.FormatText),
		},
		Server: ServerConfig{
			Addr:   "127.0.0.1:8080",
			Path:   "/heaviside",
			Origin: "http://127.0.0.1:8080",
		},
	}
}

// DefaultPath returns the user config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "heaviside", "config.toml")
	}
	return filepath.Join(".", "heaviside.toml")
}

func newViper() *viper.Viper {
	v := viper.New()

	d := Default()
	v.SetDefault("hub.route_field", d.Hub.RouteField)
	v.SetDefault("hub.panic_policy", d.Hub.PanicPolicy)
	v.SetDefault("publisher.target_origin", d.Publisher.TargetOrigin)
	v.SetDefault("receiver.allowed_origins", d.Receiver.AllowedOrigins)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.path", d.Server.Path)
	v.SetDefault("server.origin", d.Server.Origin)
	v.SetDefault("script.path", d.Script.Path)

	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from path and the environment. An empty path
// falls back to HEAVISIDE_CONFIG, then DefaultPath. A missing file is not
// an error; a malformed one is.
func Load(path string) (Config, error) {
	v := newViper()

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "_CONFIG")
		explicit = path != ""
	}
	if !explicit {
		path = DefaultPath()
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound), errors.Is(err, os.ErrNotExist):
			if explicit {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		default:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if _, err := pubsub.ParsePanicPolicy(c.Hub.PanicPolicy); err != nil {
		return fmt.Errorf("%w: hub.panic_policy: %v", ErrInvalidConfig, err)
	}
	if _, err := window.NormalizeOrigin(c.Publisher.TargetOrigin); err != nil {
		return fmt.Errorf("%w: publisher.target_origin: %v", ErrInvalidConfig, err)
	}
	for _, o := range c.Receiver.AllowedOrigins {
		if _, err := window.NormalizeOrigin(o); err != nil {
			return fmt.Errorf("%w: receiver.allowed_origins: %v", ErrInvalidConfig, err)
		}
	}
	switch logging.Format(strings.ToLower(c.Logging.Format)) {
	case logging.FormatText, logging.FormatJSON:
	default:
		return fmt.Errorf("%w: logging.format: %q", ErrInvalidConfig, c.Logging.Format)
	}
	if c.Server.Path != "" && !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("%w: server.path must start with /", ErrInvalidConfig)
	}
	if c.Server.Origin == window.WildcardOrigin {
		return fmt.Errorf("%w: server.origin cannot be a wildcard", ErrInvalidConfig)
	}
	if _, err := window.NormalizeOrigin(c.Server.Origin); err != nil {
		return fmt.Errorf("%w: server.origin: %v", ErrInvalidConfig, err)
	}
	return nil
}

// HubOptions converts the hub, publisher and receiver sections.
func (c Config) HubOptions() ([]pubsub.HubOption, error) {
	policy, err := pubsub.ParsePanicPolicy(c.Hub.PanicPolicy)
	if err != nil {
		return nil, fmt.Errorf("%w: hub.panic_policy: %v", ErrInvalidConfig, err)
	}
	return []pubsub.HubOption{
		pubsub.WithRouteField(c.Hub.RouteField),
		pubsub.WithPanicPolicy(policy),
		pubsub.WithDefaultTargetOrigin(c.Publisher.TargetOrigin),
		pubsub.WithAllowedOrigins(c.Receiver.AllowedOrigins...),
	}, nil
}

// LogConfig converts the logging section.
func (c Config) LogConfig() logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = c.Logging.Level
	lc.Format = logging.Format(strings.ToLower(c.Logging.Format))
	return lc
}
