package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Rooms     RoomsConfig
	Limits    LimitsConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address         string
	TrustProxy      bool                  `mapstructure:"trustProxy"`
	OriginPatterns  []string              `mapstructure:"originPatterns"`
	ShutdownTimeout time.Duration         `mapstructure:"shutdownTimeout"`
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwtSecret"`
	Cookie    string `mapstructure:"cookie"`
}

type ConnectionLimitConfig struct {
	MaxPerIP int    `mapstructure:"maxPerIP"`
	Mode     string `mapstructure:"mode"` // "reject" or "cycle"
}

// field order matches transport.ConnectionConfig so one converts to the other.
type TransportConfig struct {
	ReadTimeout     time.Duration `mapstructure:"readTimeout"`
	PingInterval    time.Duration `mapstructure:"pingInterval"`
	SendBuffer      int           `mapstructure:"sendBuffer"`
	MaxMessageBytes int64         `mapstructure:"maxMessageBytes"`
}

type RoomsConfig struct {
	// only the recorded host may admit, kick or change permissions
	EnforceHost bool `mapstructure:"enforceHost"`
	// document events need the draw permission
	EnforcePermission bool `mapstructure:"enforcePermission"`
}

// per-connection event rate limit. Events <= 0 disables it.
type LimitsConfig struct {
	Events    int            `mapstructure:"events"`
	Window    time.Duration  `mapstructure:"window"`
	Overrides map[string]int `mapstructure:"overrides"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}
