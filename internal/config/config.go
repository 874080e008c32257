package config

import (
	"fmt"
	"time"

	"presencia_backend/internal/model"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Tracing   TracingConfig   `mapstructure:"tracing"`
	CORS      CORSConfig      `mapstructure:"cors"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Presence  PresenceConfig  `mapstructure:"presence"`

	// Runtime flags set from the command line, not the config file.
	ForceMigrate bool `mapstructure:"-"`
	MigrateOnly  bool `mapstructure:"-"`
}

type ServerConfig struct {
	Port string
	Mode string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	User      string
	Password  string
	DBName    string
	Charset   string
	ParseTime bool
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	ExpireTime time.Duration `mapstructure:"expire_hours"`
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type TracingConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	CollectorEndpoint string `mapstructure:"collector_endpoint"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	MaxRequests   int `mapstructure:"max_requests"`
	WindowMinutes int `mapstructure:"window_minutes"`
}

// PresenceConfig drives the timeout supervisor and the challenge subsystem.
// The transition rules are data, not code: ops can retune or disable them in
// config.yaml and the running process picks the change up via the watcher.
type PresenceConfig struct {
	SupervisorTickMinutes int                    `mapstructure:"supervisor_tick_minutes"`
	StaleSweepMinutes     int                    `mapstructure:"stale_sweep_minutes"`
	StaleAfterHours       int                    `mapstructure:"stale_after_hours"`
	ChallengeTimeLimitSec int                    `mapstructure:"challenge_time_limit_seconds"`
	Rules                 []model.TransitionRule `mapstructure:"rules"`
}

func (p PresenceConfig) SupervisorTick() time.Duration {
	return time.Duration(p.SupervisorTickMinutes) * time.Minute
}

func (p PresenceConfig) StaleSweepInterval() time.Duration {
	return time.Duration(p.StaleSweepMinutes) * time.Minute
}

func (p PresenceConfig) StaleThreshold() time.Duration {
	return time.Duration(p.StaleAfterHours) * time.Hour
}

// DefaultRules mirrors the table the product started with. licencia and
// desconectado carry no rule on purpose: those states never time out unless
// ops adds a rule for them.
func DefaultRules() []model.TransitionRule {
	return []model.TransitionRule{
		{FromState: model.StateActivo, ToState: model.StateAusente, TimeoutMinutes: 30, WarningMinutes: 25, Reason: "prolonged inactivity detected"},
		{FromState: model.StateBano, ToState: model.StateActivo, TimeoutMinutes: 15, WarningMinutes: 12, Reason: "restroom time limit exceeded"},
		{FromState: model.StateAlmuerzo, ToState: model.StateActivo, TimeoutMinutes: 90, WarningMinutes: 75, Reason: "lunch time limit exceeded"},
		{FromState: model.StateAusente, ToState: model.StateDesconectado, TimeoutMinutes: 60, WarningMinutes: 50, Reason: "prolonged absence, closing session"},
	}
}

func LoadConfig(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("PRESENCIA")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.dbname", "DATABASE_NAME")

	viper.BindEnv("jwt.secret", "JWT_SECRET")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")

	viper.BindEnv("server.mode", "SERVER_MODE")

	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.collector_endpoint", "TRACING_COLLECTOR_ENDPOINT")

	viper.SetDefault("presence.supervisor_tick_minutes", 2)
	viper.SetDefault("presence.stale_sweep_minutes", 60)
	viper.SetDefault("presence.stale_after_hours", 6)
	viper.SetDefault("presence.challenge_time_limit_seconds", 60)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.JWT.ExpireTime = cfg.JWT.ExpireTime * time.Hour

	if len(cfg.Presence.Rules) == 0 {
		cfg.Presence.Rules = DefaultRules()
	}
	for _, r := range cfg.Presence.Rules {
		if !r.FromState.Valid() || !r.ToState.Valid() {
			return nil, fmt.Errorf("presence rule references unknown state: %s -> %s", r.FromState, r.ToState)
		}
		if r.TimeoutMinutes <= 0 || r.WarningMinutes >= r.TimeoutMinutes {
			return nil, fmt.Errorf("presence rule for %s has invalid thresholds (warning %d, timeout %d)", r.FromState, r.WarningMinutes, r.TimeoutMinutes)
		}
	}

	if cfg.Server.Mode == "release" && len(cfg.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT secret is too short (%d chars), must be at least 32 characters in release mode", len(cfg.JWT.Secret))
	}

	return &cfg, nil
}
