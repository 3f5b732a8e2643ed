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
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Inventory    InventoryConfig
	Checkout     CheckoutConfig
	Dashboard    DashboardConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if cfg.App.IsProd() && cfg.DB.IsSQLite() {
		return nil, fmt.Errorf("sqlite is not supported in %s", cfg.App.Env)
	}
	if err := cfg.Inventory.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"PAPSHOP_APP_ENV" required:"true"`
	Port         string `envconfig:"PAPSHOP_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"PAPSHOP_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"PAPSHOP_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"PAPSHOP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind        string   `envconfig:"PAPSHOP_SERVICE_KIND" default:"api"`
	CORSOrigins []string `envconfig:"PAPSHOP_CORS_ORIGINS" default:"http://localhost:3000"`
}

type DBConfig struct {
	DSN    string `envconfig:"PAPSHOP_DB_DSN"`
	Driver string `envconfig:"PAPSHOP_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"PAPSHOP_DB_HOST"`
	Port     int    `envconfig:"PAPSHOP_DB_PORT" default:"5432"`
	User     string `envconfig:"PAPSHOP_DB_USER"`
	Password string `envconfig:"PAPSHOP_DB_PASSWORD"`
	Name     string `envconfig:"PAPSHOP_DB_NAME"`
	SSLMode  string `envconfig:"PAPSHOP_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"PAPSHOP_SQLITE_PATH" default:"papshop.db"`

	MaxOpenConns    int           `envconfig:"PAPSHOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAPSHOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAPSHOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAPSHOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// LockTimeout bounds row lock waits inside a transaction (Postgres lock_timeout).
	LockTimeout time.Duration `envconfig:"PAPSHOP_DB_LOCK_TIMEOUT" default:"3s"`
}

func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"PAPSHOP_REDIS_URL"`
	Address      string        `envconfig:"PAPSHOP_REDIS_ADDR"`
	Password     string        `envconfig:"PAPSHOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAPSHOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAPSHOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAPSHOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAPSHOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAPSHOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAPSHOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any Redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type JWTConfig struct {
	Secret            string `envconfig:"PAPSHOP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PAPSHOP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PAPSHOP_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"PAPSHOP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"PAPSHOP_AUTO_MIGRATE" default:"false"`
}

type InventoryConfig struct {
	// LockBackend selects the product lock implementation: memory or redis.
	LockBackend string        `envconfig:"PAPSHOP_INVENTORY_LOCK_BACKEND" default:"memory"`
	LockTimeout time.Duration `envconfig:"PAPSHOP_INVENTORY_LOCK_TIMEOUT" default:"2s"`
	LockTTL     time.Duration `envconfig:"PAPSHOP_INVENTORY_LOCK_TTL" default:"30s"`
}

func (i InventoryConfig) validate() error {
	switch strings.ToLower(i.LockBackend) {
	case LockBackendMemory, LockBackendRedis:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvInventoryLockBackend, LockBackendMemory, LockBackendRedis)
	}
	if i.LockTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvInventoryLockTimeout)
	}
	return nil
}

type CheckoutConfig struct {
	MaxAttempts int           `envconfig:"PAPSHOP_CHECKOUT_MAX_ATTEMPTS" default:"3"`
	RetryBase   time.Duration `envconfig:"PAPSHOP_CHECKOUT_RETRY_BASE" default:"50ms"`
}

type DashboardConfig struct {
	CacheTTL time.Duration `envconfig:"PAPSHOP_DASHBOARD_CACHE_TTL" default:"30s"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"PAPSHOP_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"PAPSHOP_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic    string `envconfig:"PAPSHOP_PUBSUB_ORDERS_TOPIC" default:"papshop-orders"`
	InventoryTopic string `envconfig:"PAPSHOP_PUBSUB_INVENTORY_TOPIC" default:"papshop-inventory"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PAPSHOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PAPSHOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PAPSHOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type CronConfig struct {
	Interval      time.Duration `envconfig:"PAPSHOP_CRON_INTERVAL" default:"1h"`
	RetentionDays int           `envconfig:"PAPSHOP_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		db.Driver = DriverSQLite
	}
	if db.IsSQLite() {
		if db.DSN == "" {
			db.DSN = db.SQLitePath
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}
	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}
	db.DSN = u.String()
	return nil
}
