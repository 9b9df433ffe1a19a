package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the runtime configuration of the server and the admin CLI.
type Config struct {
	Environment   string              `mapstructure:"environment"`
	HTTP          HTTPConfig          `mapstructure:"http"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Auth          AuthConfig          `mapstructure:"auth"`
	SLA           SLAConfig           `mapstructure:"sla"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Telegram      TelegramConfig      `mapstructure:"telegram"`
	Localization  LocalizationConfig  `mapstructure:"localization"`
}

type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Driver  string        `mapstructure:"driver"` // postgres | memory
	Timeout time.Duration `mapstructure:"timeout"`
}

type DatabaseConfig struct {
	DSN    string `mapstructure:"dsn"`
	LogSQL bool   `mapstructure:"log_sql"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	DevTokens bool          `mapstructure:"dev_tokens"`
}

type SLAConfig struct {
	DefaultWindow         time.Duration `mapstructure:"default_window"`
	ApproachingWindow     time.Duration `mapstructure:"approaching_window"`
	Schedule              string        `mapstructure:"schedule"`
	NotifyCitizenOnBreach bool          `mapstructure:"notify_citizen_on_breach"`
	EscalationRecipients  []string      `mapstructure:"escalation_recipients"`
	LockTTL               time.Duration `mapstructure:"lock_ttl"`
}

type AuditConfig struct {
	Capacity int `mapstructure:"capacity"`
}

type NotificationsConfig struct {
	Retention     time.Duration `mapstructure:"retention"`
	PurgeSchedule string        `mapstructure:"purge_schedule"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type LocalizationConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

// Load reads an optional .env file, an optional YAML file at path and the
// CIVICTRACK_* environment, in increasing order of precedence.
func Load(path string) (*Config, error) {
	// .env is optional; variables already in the environment win.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("CIVICTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	// Comma separated lists arrive from the environment as a single string.
	if len(cfg.SLA.EscalationRecipients) == 1 && strings.Contains(cfg.SLA.EscalationRecipients[0], ",") {
		cfg.SLA.EscalationRecipients = splitList(cfg.SLA.EscalationRecipients[0])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)

	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("storage.timeout", DefaultStoreTimeout)
	v.SetDefault("database.dsn", "host=localhost user=user password=password dbname=civictrack port=5432 sslmode=disable")
	v.SetDefault("database.log_sql", false)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "civictrack")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.dev_tokens", false)

	v.SetDefault("sla.default_window", DefaultSLAWindow)
	v.SetDefault("sla.approaching_window", DefaultApproachingWindow)
	v.SetDefault("sla.schedule", DefaultSweepSchedule)
	v.SetDefault("sla.notify_citizen_on_breach", true)
	v.SetDefault("sla.escalation_recipients", []string{})
	v.SetDefault("sla.lock_ttl", DefaultSweepLockTTL)

	v.SetDefault("audit.capacity", DefaultAuditCapacity)

	v.SetDefault("notifications.retention", DefaultNotificationRetention)
	v.SetDefault("notifications.purge_schedule", DefaultPurgeSchedule)

	v.SetDefault("telegram.token", "")
	v.SetDefault("localization.default_language", "en")
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret (CIVICTRACK_AUTH_JWT_SECRET) is required")
	}
	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Audit.Capacity <= 0 {
		return fmt.Errorf("audit.capacity must be positive, got %d", c.Audit.Capacity)
	}
	if c.SLA.ApproachingWindow <= 0 {
		return fmt.Errorf("sla.approaching_window must be positive, got %s", c.SLA.ApproachingWindow)
	}
	return nil
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
