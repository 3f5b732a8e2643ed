package config

// EnvPrefix is handed to envconfig; every field carries an explicit tag.
const EnvPrefix = "PAPSHOP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	LockBackendMemory = "memory"
	LockBackendRedis  = "redis"
)

const (
	EnvAppEnv   = "PAPSHOP_APP_ENV"
	EnvPort     = "PAPSHOP_APP_PORT"
	EnvLogLevel = "PAPSHOP_LOG_LEVEL"

	EnvDBDSN    = "PAPSHOP_DB_DSN"
	EnvDBDriver = "PAPSHOP_DB_DRIVER"
	EnvDBHost   = "PAPSHOP_DB_HOST"
	EnvDBPort   = "PAPSHOP_DB_PORT"
	EnvDBUser   = "PAPSHOP_DB_USER"
	EnvDBPass   = "PAPSHOP_DB_PASSWORD"
	EnvDBName   = "PAPSHOP_DB_NAME"

	EnvRedisURL = "PAPSHOP_REDIS_URL"

	EnvJWTSecret  = "PAPSHOP_JWT_SECRET"
	EnvJWTIssuer  = "PAPSHOP_JWT_ISSUER"
	EnvJWTExpMins = "PAPSHOP_JWT_EXPIRATION_MINUTES"

	EnvUseSQLite   = "PAPSHOP_USE_SQLITE"
	EnvAutoMigrate = "PAPSHOP_AUTO_MIGRATE"

	EnvInventoryLockBackend = "PAPSHOP_INVENTORY_LOCK_BACKEND"
	EnvInventoryLockTimeout = "PAPSHOP_INVENTORY_LOCK_TIMEOUT"

	EnvCheckoutMaxAttempts = "PAPSHOP_CHECKOUT_MAX_ATTEMPTS"
	EnvDashboardCacheTTL   = "PAPSHOP_DASHBOARD_CACHE_TTL"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
