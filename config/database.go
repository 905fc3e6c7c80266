package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"casedesk"`
	Password string `env:"PASSWORD" envDefault:"casedesk"`
	Name     string `env:"NAME"     envDefault:"casedesk"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
}

// CacheConfig contains cache TTL configuration for derived read models.
type CacheConfig struct {
	// UnreadCountTTL is the TTL for cached per-user unread notification counts.
	UnreadCountTTL time.Duration `env:"CACHE_UNREAD_COUNT_TTL" envDefault:"5m"`

	// DashboardTTL is the TTL for cached per-org dashboard aggregates.
	DashboardTTL time.Duration `env:"CACHE_DASHBOARD_TTL" envDefault:"10m"`
}
