package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	Collector     CollectorConfig
	Probe         ProbeConfig
	Sync          SyncConfig
	Upload        UploadConfig
	Notifications NotificationsConfig
	Eventing      EventingConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Sync.validate(); err != nil {
		return nil, err
	}
	if err := cfg.validateStaleWindow(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"WORKREPORT_APP_ENV" required:"true"`
	Port         string `envconfig:"WORKREPORT_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"WORKREPORT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"WORKREPORT_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"WORKREPORT_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"WORKREPORT_CORS_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"WORKREPORT_SERVICE_KIND" default:"agent"`
}

type DBConfig struct {
	Driver      string `envconfig:"WORKREPORT_DB_DRIVER" default:"sqlite"`
	DSN         string `envconfig:"WORKREPORT_DB_DSN"`
	AutoMigrate bool   `envconfig:"WORKREPORT_DB_AUTO_MIGRATE" default:"true"`

	LegacyHost     string `envconfig:"WORKREPORT_DB_HOST"`
	LegacyPort     int    `envconfig:"WORKREPORT_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"WORKREPORT_DB_USER"`
	LegacyPassword string `envconfig:"WORKREPORT_DB_PASSWORD"`
	LegacyName     string `envconfig:"WORKREPORT_DB_NAME"`
	LegacySSLMode  string `envconfig:"WORKREPORT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"WORKREPORT_DB_MAX_OPEN_CONNS" default:"4"`
	MaxIdleConns    int           `envconfig:"WORKREPORT_DB_MAX_IDLE_CONNS" default:"2"`
	ConnMaxLifetime time.Duration `envconfig:"WORKREPORT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"WORKREPORT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

// IsSQLite reports whether the outbox lives in an on-device sqlite file.
func (db DBConfig) IsSQLite() bool {
	return strings.EqualFold(db.Driver, DriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"WORKREPORT_REDIS_URL"`
	PoolSize     int           `envconfig:"WORKREPORT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"WORKREPORT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"WORKREPORT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"WORKREPORT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"WORKREPORT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a redis instance was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

type CollectorConfig struct {
	FormEndpoint   string        `envconfig:"WORKREPORT_COLLECTOR_FORM_ENDPOINT"`
	WebhookURL     string        `envconfig:"WORKREPORT_COLLECTOR_WEBHOOK_URL"`
	Secret         string        `envconfig:"WORKREPORT_COLLECTOR_SECRET"`
	Issuer         string        `envconfig:"WORKREPORT_COLLECTOR_ISSUER" default:"fieldreport"`
	TokenTTL       time.Duration `envconfig:"WORKREPORT_COLLECTOR_TOKEN_TTL" default:"5m"`
	RequestTimeout time.Duration `envconfig:"WORKREPORT_COLLECTOR_REQUEST_TIMEOUT" default:"30s"`
}

type ProbeConfig struct {
	URL      string        `envconfig:"WORKREPORT_PROBE_URL"`
	Timeout  time.Duration `envconfig:"WORKREPORT_PROBE_TIMEOUT" default:"3s"`
	Interval time.Duration `envconfig:"WORKREPORT_PROBE_INTERVAL" default:"5s"`
}

// Target returns the liveness URL, falling back to the documents webhook.
func (p ProbeConfig) Target(collector CollectorConfig) string {
	if p.URL != "" {
		return p.URL
	}
	return collector.WebhookURL
}

type SyncConfig struct {
	Concurrency      int           `envconfig:"WORKREPORT_SYNC_CONCURRENCY" default:"2"`
	MaxAttempts      int           `envconfig:"WORKREPORT_SYNC_MAX_ATTEMPTS" default:"0"`
	PeriodicInterval time.Duration `envconfig:"WORKREPORT_SYNC_PERIODIC_INTERVAL" default:"1m"`
	StaleAfter       time.Duration `envconfig:"WORKREPORT_SYNC_STALE_AFTER" default:"2m"`
	Transport        string        `envconfig:"WORKREPORT_SYNC_TRANSPORT" default:"local"`
}

func (s SyncConfig) validate() error {
	if s.Concurrency <= 0 {
		return fmt.Errorf("%s must be positive", EnvSyncWorkers)
	}
	if s.MaxAttempts < 0 {
		return fmt.Errorf("%s must not be negative", EnvSyncMax)
	}
	switch strings.ToLower(s.Transport) {
	case TransportLocal, TransportRedis:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvTransport, TransportLocal, TransportRedis)
	}
}

// validateStaleWindow keeps a syncing claim from being requeued while its
// probe and delivery can still be running.
func (c Config) validateStaleWindow() error {
	attempt := c.Collector.RequestTimeout + c.Probe.Timeout
	if c.Sync.StaleAfter <= attempt {
		return fmt.Errorf("%s (%s) must exceed %s + %s (%s)",
			EnvStaleAfter, c.Sync.StaleAfter, EnvReqTimeout, EnvProbeTimeout, attempt)
	}
	return nil
}

type UploadConfig struct {
	BatchSize  int           `envconfig:"WORKREPORT_UPLOAD_BATCH_SIZE" default:"5"`
	BatchPause time.Duration `envconfig:"WORKREPORT_UPLOAD_BATCH_PAUSE" default:"300ms"`
}

type NotificationsConfig struct {
	FeedSize int `envconfig:"WORKREPORT_NOTIFICATIONS_FEED_SIZE" default:"100"`
}

type EventingConfig struct {
	DeliveredTTL time.Duration `envconfig:"WORKREPORT_EVENTING_DELIVERED_TTL" default:"720h"`
}

func (db *DBConfig) ensureDSN() error {
	switch strings.ToLower(db.Driver) {
	case DriverSQLite:
		if db.DSN == "" {
			db.DSN = "file:fieldreport.db?_busy_timeout=5000&_journal_mode=WAL"
		}
		return nil
	case DriverPostgres:
	default:
		return fmt.Errorf("%s must be %q or %q", EnvDBDriver, DriverSQLite, DriverPostgres)
	}

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
