package config

const (
	EnvPrefix = "WORKREPORT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	TransportLocal = "local"
	TransportRedis = "redis"

	EnvAppEnv       = "WORKREPORT_APP_ENV"
	EnvPort         = "WORKREPORT_APP_PORT"
	EnvLogLevel     = "WORKREPORT_LOG_LEVEL"
	EnvServiceKind  = "WORKREPORT_SERVICE_KIND"
	EnvDBDriver     = "WORKREPORT_DB_DRIVER"
	EnvDBDSN        = "WORKREPORT_DB_DSN"
	EnvDBHost       = "WORKREPORT_DB_HOST"
	EnvDBUser       = "WORKREPORT_DB_USER"
	EnvDBName       = "WORKREPORT_DB_NAME"
	EnvRedisURL     = "WORKREPORT_REDIS_URL"
	EnvFormEndpoint = "WORKREPORT_COLLECTOR_FORM_ENDPOINT"
	EnvWebhookURL   = "WORKREPORT_COLLECTOR_WEBHOOK_URL"
	EnvProbeURL     = "WORKREPORT_PROBE_URL"
	EnvProbeTimeout = "WORKREPORT_PROBE_TIMEOUT"
	EnvReqTimeout   = "WORKREPORT_COLLECTOR_REQUEST_TIMEOUT"
	EnvStaleAfter   = "WORKREPORT_SYNC_STALE_AFTER"
	EnvSyncWorkers  = "WORKREPORT_SYNC_CONCURRENCY"
	EnvSyncMax      = "WORKREPORT_SYNC_MAX_ATTEMPTS"
	EnvTransport    = "WORKREPORT_SYNC_TRANSPORT"
	EnvBatchSize    = "WORKREPORT_UPLOAD_BATCH_SIZE"
)

// legacyDBEnvVars must all be set when postgres is selected without a DSN.
var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
