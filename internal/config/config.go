package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the config file inside the home directory.
const FileName = "config.yaml"

// Config is the runtime configuration. Values come from, in increasing
// precedence: defaults, <home>/config.yaml, PLEXIFY_* environment variables,
// then CLI flags applied by the caller.
type Config struct {
	Operator string       `mapstructure:"operator" yaml:"operator,omitempty"`
	APIKey   string       `mapstructure:"api_key" yaml:"api_key,omitempty"`
	DB       DBConfig     `mapstructure:"db" yaml:"db"`
	HTTP     HTTPConfig   `mapstructure:"http" yaml:"http"`
	GRPC     GRPCConfig   `mapstructure:"grpc" yaml:"grpc"`
	OTel     OTelConfig   `mapstructure:"otel" yaml:"otel"`
	Log      LogConfig    `mapstructure:"log" yaml:"log"`
	Notify   NotifyConfig `mapstructure:"notify" yaml:"notify"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"` // sqlite or postgres
	URL    string `mapstructure:"url" yaml:"url,omitempty"`
}

type HTTPConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// GRPCConfig holds the session service listen address; empty disables it.
type GRPCConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type OTelConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text or json
}

type NotifyConfig struct {
	SlackWebhookURL string `mapstructure:"slack_webhook_url" yaml:"slack_webhook_url,omitempty"`
	Journal         bool   `mapstructure:"journal" yaml:"journal,omitempty"` // append completions to <home>/journal.md
}

// Defaults.
const (
	DefaultHTTPPort = 3548
	DefaultGRPCAddr = "127.0.0.1:3549"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DB:   DBConfig{Driver: "sqlite"},
		HTTP: HTTPConfig{Port: DefaultHTTPPort},
		GRPC: GRPCConfig{Addr: DefaultGRPCAddr},
		OTel: OTelConfig{Enabled: true},
		Log:  LogConfig{Level: "info", Format: "text"},
	}
}

// Path returns <home>/config.yaml.
func Path(home string) string {
	return filepath.Join(home, FileName)
}

func newViper(home string) *viper.Viper {
	d := Default()
	v := viper.New()
	v.SetConfigFile(Path(home))
	v.SetConfigType("yaml")
	v.SetEnvPrefix("PLEXIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("operator", "")
	v.SetDefault("api_key", "")
	v.SetDefault("db.driver", d.DB.Driver)
	v.SetDefault("db.url", "")
	v.SetDefault("http.port", d.HTTP.Port)
	v.SetDefault("grpc.addr", d.GRPC.Addr)
	v.SetDefault("otel.enabled", d.OTel.Enabled)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("notify.slack_webhook_url", "")
	v.SetDefault("notify.journal", false)
	return v
}

// Load reads the configuration for home. A missing config file is not an error.
// db.url falls back to DATABASE_URL.
func Load(home string) (Config, error) {
	v := newViper(home)
	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, err
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	if c.DB.URL == "" {
		c.DB.URL = os.Getenv("DATABASE_URL")
	}
	c.Log.Level = strings.ToLower(c.Log.Level)
	c.Log.Format = strings.ToLower(c.Log.Format)
	return c, nil
}

// Save writes c to <home>/config.yaml.
func Save(home string, c Config) error {
	if err := os.MkdirAll(home, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(Path(home), data, 0o600)
}
