package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

const (
	EnvPrefix     = "GOCLASSROOM"
	defaultSecret = "default-secret-key-change-me"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.trustProxy", false)
	v.SetDefault("server.originPatterns", []string{})
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.auth.jwtSecret", defaultSecret)
	v.SetDefault("server.auth.cookie", "session-token")
	v.SetDefault("server.connectionLimit.maxPerIP", 0)
	v.SetDefault("server.connectionLimit.mode", "reject")
	v.SetDefault("transport.readTimeout", "0s")
	v.SetDefault("transport.pingInterval", "30s")
	v.SetDefault("transport.sendBuffer", 256)
	v.SetDefault("transport.maxMessageBytes", 1<<20)
	v.SetDefault("rooms.enforceHost", true)
	v.SetDefault("rooms.enforcePermission", false)
	v.SetDefault("limits.events", 0)
	v.SetDefault("limits.window", "1s")
	v.SetDefault("log.level", "info")
}

// Load reads configuration from defaults, an optional yaml file and
// environment variables, in increasing order of precedence. An empty path
// looks for config.yaml in the working directory.
func Load(logger *slog.Logger, path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		logger.Warn("Config file not found. ignoring error and relying on defaults/env vars")
	} else {
		logger.Info("Config file loaded", slog.String("file", v.ConfigFileUsed()))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Server.Auth.Enabled && cfg.Server.Auth.JWTSecret == defaultSecret {
		logger.Warn("Auth is enabled with the default JWT secret")
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Server.ConnectionLimit.Mode {
	case "reject", "cycle":
	default:
		errs = append(errs, fmt.Errorf("server.connectionLimit.mode must be reject or cycle, got %q", c.Server.ConnectionLimit.Mode))
	}
	if c.Server.Auth.Enabled && c.Server.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("server.auth.jwtSecret is required when auth is enabled"))
	}
	if c.Limits.Events > 0 && c.Limits.Window <= 0 {
		errs = append(errs, errors.New("limits.window must be positive when limits.events is set"))
	}
	if c.Transport.ReadTimeout < 0 || c.Transport.PingInterval < 0 || c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("transport timeouts cannot be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
