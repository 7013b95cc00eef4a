package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/vaultguard/internal/derive"
	"github.com/roach88/vaultguard/internal/engine"
	"github.com/roach88/vaultguard/internal/ir"
)

// EnvPrefix is the environment variable prefix; store.path is read from
// VAULTGUARD_STORE_PATH.
const EnvPrefix = "VAULTGUARD"

// Config is the processor configuration.
type Config struct {
	// Namespace seeds address derivation. Changing it moves every vault.
	Namespace string `mapstructure:"namespace" json:"namespace"`

	// PrivilegedAuthority is the hex identity allowed to close and reopen
	// vaults. Empty disables both ops.
	PrivilegedAuthority string `mapstructure:"privileged_authority" json:"privileged_authority"`

	AllowThirdPartyDeposit bool `mapstructure:"allow_third_party_deposit" json:"allow_third_party_deposit"`
	MaxBufferCapacity      int  `mapstructure:"max_buffer_capacity" json:"max_buffer_capacity"`

	Derivation DerivationConfig `mapstructure:"derivation" json:"derivation"`
	Store      StoreConfig      `mapstructure:"store" json:"store"`
	Log        LogConfig        `mapstructure:"log" json:"log"`
}

// DerivationConfig bounds the salt search.
type DerivationConfig struct {
	MaxSalt int `mapstructure:"max_salt" json:"max_salt"`
}

// StoreConfig locates the SQLite database.
type StoreConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Namespace:         engine.DefaultNamespace,
		MaxBufferCapacity: engine.DefaultMaxCapacity,
		Derivation:        DerivationConfig{MaxSalt: derive.DefaultMaxSalt},
		Store:             StoreConfig{Path: "vaultguard.db"},
		Log:               LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from path (or ./vaultguard.yaml when path is
// empty) and the environment, then validates it. A missing default file is
// not an error; a missing explicit path is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("vaultguard")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("namespace", d.Namespace)
	v.SetDefault("privileged_authority", d.PrivilegedAuthority)
	v.SetDefault("allow_third_party_deposit", d.AllowThirdPartyDeposit)
	v.SetDefault("max_buffer_capacity", d.MaxBufferCapacity)
	v.SetDefault("derivation.max_salt", d.Derivation.MaxSalt)
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Authority parses PrivilegedAuthority. Empty yields the zero key.
func (c *Config) Authority() (ir.Key, error) {
	if c.PrivilegedAuthority == "" {
		return ir.ZeroKey, nil
	}
	k, err := ir.ParseKey(c.PrivilegedAuthority)
	if err != nil {
		return ir.ZeroKey, fmt.Errorf("privileged_authority: %w", err)
	}
	return k, nil
}

// Deriver builds the address deriver for this configuration.
func (c *Config) Deriver() *derive.Deriver {
	return derive.New(derive.WithMaxSalt(uint8(c.Derivation.MaxSalt)))
}

// ProcessorOptions translates the configuration into engine options.
// Logger and metrics are left to the caller.
func (c *Config) ProcessorOptions() ([]engine.Option, error) {
	authority, err := c.Authority()
	if err != nil {
		return nil, err
	}
	return []engine.Option{
		engine.WithNamespace(c.Namespace),
		engine.WithAuthority(authority),
		engine.WithThirdPartyDeposit(c.AllowThirdPartyDeposit),
		engine.WithMaxCapacity(c.MaxBufferCapacity),
		engine.WithDeriver(c.Deriver()),
	}, nil
}

// NewLogger builds the slog logger described by c.Log, writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Log.Level)}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
