package config

const EnvPrefix = "GOODSIN"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	EnvAppEnv         = "GOODSIN_APP_ENV"
	EnvPort           = "GOODSIN_APP_PORT"
	EnvDBDSN          = "GOODSIN_DB_DSN"
	EnvDBDriver       = "GOODSIN_DB_DRIVER"
	EnvDBHost         = "GOODSIN_DB_HOST"
	EnvDBUser         = "GOODSIN_DB_USER"
	EnvDBName         = "GOODSIN_DB_NAME"
	EnvDBPassword     = "GOODSIN_DB_PASSWORD"
	EnvRedisURL       = "GOODSIN_REDIS_URL"
	EnvGCPProjectID   = "GOODSIN_GCP_PROJECT_ID"
	EnvReceivingTopic = "GOODSIN_PUBSUB_RECEIVING_TOPIC"
	EnvRecentScanWin  = "GOODSIN_RECENT_SCAN_WINDOW"
	EnvCronInterval   = "GOODSIN_CRON_INTERVAL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
