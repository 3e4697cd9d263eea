package auth

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/kelseyhightower/envconfig"
)

// DefaultRole is the role every identity may register with without an
// invitation code.
const DefaultRole = "user"

// Config holds every option of the service. It is loaded once at startup
// and handed to each component.
type Config struct {
	SigningKey string        `envconfig:"signing_key" required:"true"`
	Issuer     string        `envconfig:"issuer" default:"go-tenant-auth"`
	Audience   []string      `envconfig:"audience"`
	AccessTTL  time.Duration `envconfig:"access_ttl" default:"900s"`
	RefreshTTL time.Duration `envconfig:"refresh_ttl" default:"604800s"`

	DBDriver string `envconfig:"db_driver" default:"sqlite"`
	DSN      string `envconfig:"dsn" default:"file:tenant-auth.db?cache=shared&_pragma=foreign_keys(1)"`

	CacheBackend   string        `envconfig:"cache_backend" default:"bolt"`
	CacheDir       string        `envconfig:"cache_dir" default:"./data/cache"`
	RedisAddr      string        `envconfig:"redis_addr" default:"localhost:6379"`
	RedisPassword  string        `envconfig:"redis_password"`
	RedisDB        int           `envconfig:"redis_db" default:"0"`
	LookupCacheTTL time.Duration `envconfig:"lookup_cache_ttl" default:"5m"`
	InvitationTTL  time.Duration `envconfig:"invitation_ttl" default:"1h"`

	HealthInterval time.Duration `envconfig:"health_interval" default:"10s"`
	ShutdownGrace  time.Duration `envconfig:"shutdown_grace" default:"15s"`

	CryptoWorkers     int `envconfig:"crypto_workers" default:"4"`
	ActivityQueueSize int `envconfig:"activity_queue_size" default:"256"`

	PasswordHasher string `envconfig:"password_hasher" default:"argon2id"`
	ArgonTime      uint32 `envconfig:"argon_time" default:"3"`
	ArgonMemoryKiB uint32 `envconfig:"argon_memory_kib" default:"65536"`
	ArgonThreads   uint8  `envconfig:"argon_threads" default:"1"`
	BcryptCost     int    `envconfig:"bcrypt_cost" default:"12"`

	RefreshCookieName   string `envconfig:"refresh_cookie_name" default:"refresh_token"`
	RefreshCookiePath   string `envconfig:"refresh_cookie_path" default:"/auth"`
	RefreshCookieSecure bool   `envconfig:"refresh_cookie_secure" default:"true"`

	OperatorSecret string `envconfig:"operator_secret"`
	HTTPAddr       string `envconfig:"http_addr" default:":8080"`
	TenantHeader   string `envconfig:"tenant_header" default:"X-Tenant"`

	LogLevel  string `envconfig:"log_level" default:"info"`
	LogFormat string `envconfig:"log_format" default:"json"`
}

// LoadConfig reads the configuration from the environment using prefix.
func LoadConfig(prefix string) (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process(prefix, cfg); err != nil {
		return nil, fmt.Errorf("issues with environment sourcing: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultConfig returns a Config with the documented defaults and the
// given signing key, mostly useful for tests and embedding.
func DefaultConfig(signingKey string) *Config {
	return &Config{
		SigningKey:          signingKey,
		Issuer:              "go-tenant-auth",
		AccessTTL:           900 * time.Second,
		RefreshTTL:          604800 * time.Second,
		DBDriver:            "sqlite",
		CacheBackend:        "bolt",
		CacheDir:            "./data/cache",
		LookupCacheTTL:      5 * time.Minute,
		InvitationTTL:       time.Hour,
		HealthInterval:      10 * time.Second,
		ShutdownGrace:       15 * time.Second,
		CryptoWorkers:       4,
		ActivityQueueSize:   256,
		PasswordHasher:      HasherArgon2id,
		ArgonTime:           3,
		ArgonMemoryKiB:      64 * 1024,
		ArgonThreads:        1,
		BcryptCost:          12,
		RefreshCookieName:   "refresh_token",
		RefreshCookiePath:   "/auth",
		RefreshCookieSecure: true,
		HTTPAddr:            ":8080",
		TenantHeader:        "X-Tenant",
		LogLevel:            "info",
		LogFormat:           "json",
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.AccessTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.RefreshTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.DBDriver, validation.In("sqlite", "postgres")),
		validation.Field(&c.CacheBackend, validation.In("bolt", "redis")),
		validation.Field(&c.InvitationTTL, validation.Required),
		validation.Field(&c.HealthInterval, validation.Required),
		validation.Field(&c.CryptoWorkers, validation.Required, validation.Min(1)),
		validation.Field(&c.ActivityQueueSize, validation.Required, validation.Min(1)),
		validation.Field(&c.PasswordHasher, validation.In(HasherArgon2id, HasherBcrypt)),
		validation.Field(&c.RefreshCookieName, validation.Required),
	)
	if err != nil {
		return NewValidationError(err)
	}
	return nil
}
