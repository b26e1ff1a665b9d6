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
	Ledger       LedgerConfig
	Mirror       MirrorConfig
	Cache        CacheConfig
	GCP          GCPConfig
	BigQuery     BigQueryConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if !cfg.FeatureFlags.UseSQLite {
		if err := cfg.DB.ensureDSN(); err != nil {
			return nil, err
		}
	}
	if err := cfg.Cache.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CLINICOPS_APP_ENV" required:"true"`
	Port         string `envconfig:"CLINICOPS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CLINICOPS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CLINICOPS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CLINICOPS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CLINICOPS_DB_DSN"`
	Driver string `envconfig:"CLINICOPS_DB_DRIVER" default:"postgres"`

	SQLitePath string `envconfig:"CLINICOPS_SQLITE_PATH" default:"clinicops.db"`

	LegacyHost     string `envconfig:"CLINICOPS_DB_HOST"`
	LegacyPort     int    `envconfig:"CLINICOPS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CLINICOPS_DB_USER"`
	LegacyPassword string `envconfig:"CLINICOPS_DB_PASSWORD"`
	LegacyName     string `envconfig:"CLINICOPS_DB_NAME"`
	LegacySSLMode  string `envconfig:"CLINICOPS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CLINICOPS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CLINICOPS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CLINICOPS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CLINICOPS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CLINICOPS_REDIS_URL"`
	Address      string        `envconfig:"CLINICOPS_REDIS_ADDR"`
	Password     string        `envconfig:"CLINICOPS_REDIS_PASSWORD"`
	DB           int           `envconfig:"CLINICOPS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CLINICOPS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CLINICOPS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CLINICOPS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CLINICOPS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CLINICOPS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"CLINICOPS_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"CLINICOPS_AUTO_MIGRATE" default:"false"`
}

// LedgerConfig controls the ledger instances served by this process.
type LedgerConfig struct {
	Instances      []string      `envconfig:"CLINICOPS_LEDGER_INSTANCES" default:"default"`
	SheetBackend   string        `envconfig:"CLINICOPS_LEDGER_SHEET_BACKEND" default:"sql"`
	LockWait       time.Duration `envconfig:"CLINICOPS_LEDGER_LOCK_WAIT" default:"10s"`
	LockTTL        time.Duration `envconfig:"CLINICOPS_LEDGER_LOCK_TTL" default:"30s"`
	CivilUTCOffset time.Duration `envconfig:"CLINICOPS_LEDGER_CIVIL_UTC_OFFSET" default:"9h"`
}

// DefaultInstance returns the first configured instance name.
func (l LedgerConfig) DefaultInstance() string {
	for _, name := range l.Instances {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			return trimmed
		}
	}
	return DefaultLedgerInstance
}

// InstanceNames returns the trimmed, de-duplicated instance list.
func (l LedgerConfig) InstanceNames() []string {
	seen := map[string]struct{}{}
	names := []string{}
	for _, name := range l.Instances {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		names = append(names, trimmed)
	}
	if len(names) == 0 {
		names = append(names, DefaultLedgerInstance)
	}
	return names
}

type MirrorConfig struct {
	Enabled   bool          `envconfig:"CLINICOPS_MIRROR_ENABLED" default:"true"`
	Workers   int           `envconfig:"CLINICOPS_MIRROR_WORKERS" default:"2"`
	QueueSize int           `envconfig:"CLINICOPS_MIRROR_QUEUE_SIZE" default:"256"`
	Timeout   time.Duration `envconfig:"CLINICOPS_MIRROR_TIMEOUT" default:"5s"`
	BatchSize int           `envconfig:"CLINICOPS_MIRROR_BATCH_SIZE" default:"200"`
}

// CacheConfig selects the cache invalidation notifier.
type CacheConfig struct {
	Notifier  string        `envconfig:"CLINICOPS_CACHE_NOTIFIER" default:"none"`
	URL       string        `envconfig:"CLINICOPS_CACHE_INVALIDATION_URL"`
	Token     string        `envconfig:"CLINICOPS_CACHE_INVALIDATION_TOKEN"`
	Timeout   time.Duration `envconfig:"CLINICOPS_CACHE_INVALIDATION_TIMEOUT" default:"3s"`
	Topic     string        `envconfig:"CLINICOPS_CACHE_INVALIDATION_TOPIC" default:"patient-cache-invalidations"`
	Workers   int           `envconfig:"CLINICOPS_CACHE_INVALIDATION_WORKERS" default:"2"`
	QueueSize int           `envconfig:"CLINICOPS_CACHE_INVALIDATION_QUEUE_SIZE" default:"256"`
}

// Kind returns the normalized notifier kind.
func (c CacheConfig) Kind() string {
	kind := strings.ToLower(strings.TrimSpace(c.Notifier))
	if kind == "" {
		return NotifierNone
	}
	return kind
}

func (c CacheConfig) validate() error {
	switch c.Kind() {
	case NotifierNone, NotifierPubSub:
		return nil
	case NotifierHTTP:
		if strings.TrimSpace(c.URL) == "" {
			return fmt.Errorf("%s is required when %s=%s", EnvCacheInvalidationURL, EnvCacheNotifier, NotifierHTTP)
		}
		return nil
	default:
		return fmt.Errorf("unsupported cache notifier %q", c.Notifier)
	}
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CLINICOPS_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CLINICOPS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CLINICOPS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type BigQueryConfig struct {
	Dataset        string `envconfig:"CLINICOPS_BIGQUERY_DATASET" default:"clinicops"`
	ShipmentsTable string `envconfig:"CLINICOPS_BIGQUERY_SHIPMENTS_TABLE" default:"shipment_exports"`
	// CreateTables creates missing export tables (day-partitioned on exported_at).
	CreateTables bool `envconfig:"CLINICOPS_BIGQUERY_CREATE_TABLES" default:"true"`
}

// Enabled reports whether the shipment export can reach BigQuery.
func (b BigQueryConfig) Enabled(gcp GCPConfig) bool {
	return strings.TrimSpace(gcp.ProjectID) != "" && strings.TrimSpace(b.Dataset) != ""
}

type CronConfig struct {
	Interval time.Duration `envconfig:"CLINICOPS_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"CLINICOPS_CRON_LOCK_TTL" default:"55m"`
	// JobTimeout caps one job run; keep it below LockTTL.
	JobTimeout time.Duration `envconfig:"CLINICOPS_CRON_JOB_TIMEOUT" default:"20m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
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
