package config

// EnvPrefix is handed to envconfig; every field carries an explicit key so the
// prefix only matters for unnamed fields.
const EnvPrefix = "CLINICOPS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DefaultLedgerInstance = "default"

	SheetBackendSQL    = "sql"
	SheetBackendMemory = "memory"

	NotifierNone   = "none"
	NotifierHTTP   = "http"
	NotifierPubSub = "pubsub"
)

const (
	EnvAppEnv   = "CLINICOPS_APP_ENV"
	EnvPort     = "CLINICOPS_APP_PORT"
	EnvLogLevel = "CLINICOPS_LOG_LEVEL"

	EnvDBDSN  = "CLINICOPS_DB_DSN"
	EnvDBHost = "CLINICOPS_DB_HOST"
	EnvDBUser = "CLINICOPS_DB_USER"
	EnvDBName = "CLINICOPS_DB_NAME"

	EnvUseSQLite = "CLINICOPS_USE_SQLITE"
	EnvRedisURL  = "CLINICOPS_REDIS_URL"

	EnvLedgerInstances = "CLINICOPS_LEDGER_INSTANCES"
	EnvLedgerLockWait  = "CLINICOPS_LEDGER_LOCK_WAIT"

	EnvCacheNotifier         = "CLINICOPS_CACHE_NOTIFIER"
	EnvCacheInvalidationURL  = "CLINICOPS_CACHE_INVALIDATION_URL"
	EnvGCPProjectID          = "CLINICOPS_GCP_PROJECT_ID"
	EnvBigQueryShipmentTable = "CLINICOPS_BIGQUERY_SHIPMENTS_TABLE"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
