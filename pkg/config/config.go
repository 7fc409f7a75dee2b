package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Receiving    ReceivingConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"GOODSIN_APP_ENV" required:"true"`
	Port         string   `envconfig:"GOODSIN_APP_PORT" required:"true"`
	LogLevel     string   `envconfig:"GOODSIN_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"GOODSIN_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"GOODSIN_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"GOODSIN_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"GOODSIN_DB_DSN"`
	Driver string `envconfig:"GOODSIN_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"GOODSIN_DB_HOST"`
	LegacyPort     int    `envconfig:"GOODSIN_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"GOODSIN_DB_USER"`
	LegacyPassword string `envconfig:"GOODSIN_DB_PASSWORD"`
	LegacyName     string `envconfig:"GOODSIN_DB_NAME"`
	LegacySSLMode  string `envconfig:"GOODSIN_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"GOODSIN_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"GOODSIN_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"GOODSIN_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"GOODSIN_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the configured driver targets a local sqlite file.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"GOODSIN_REDIS_URL" required:"true"`
	Address      string        `envconfig:"GOODSIN_REDIS_ADDR"`
	Password     string        `envconfig:"GOODSIN_REDIS_PASSWORD"`
	DB           int           `envconfig:"GOODSIN_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"GOODSIN_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"GOODSIN_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"GOODSIN_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"GOODSIN_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"GOODSIN_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"GOODSIN_AUTO_MIGRATE" default:"false"`
	// RequireScanIdempotency rejects scan posts that omit Idempotency-Key.
	RequireScanIdempotency bool `envconfig:"GOODSIN_REQUIRE_SCAN_IDEMPOTENCY" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"GOODSIN_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	ReceivingTopic string `envconfig:"GOODSIN_PUBSUB_RECEIVING_TOPIC" default:"goodsin-receiving-events"`
	AuditTopic     string `envconfig:"GOODSIN_PUBSUB_AUDIT_TOPIC"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"GOODSIN_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"GOODSIN_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"GOODSIN_OUTBOX_MAX_ATTEMPTS" default:"10"`
	RetentionDays  int `envconfig:"GOODSIN_OUTBOX_RETENTION_DAYS" default:"30"`
}

type ReceivingConfig struct {
	RecentScanWindow time.Duration `envconfig:"GOODSIN_RECENT_SCAN_WINDOW" default:"15m"`
	CatalogCacheTTL  time.Duration `envconfig:"GOODSIN_CATALOG_CACHE_TTL" default:"10m"`
	ScanReplayTTL    time.Duration `envconfig:"GOODSIN_SCAN_REPLAY_TTL" default:"24h"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"GOODSIN_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"GOODSIN_CRON_LOCK_TTL" default:"4m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.IsSQLite() {
		return fmt.Errorf("%s is required when %s=%s", EnvDBDSN, EnvDBDriver, DriverSQLite)
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
