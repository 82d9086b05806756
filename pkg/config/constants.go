package config

const EnvPrefix = "ORDERFLOW"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	OutboxSinkPubSub = "pubsub"
	OutboxSinkKafka  = "kafka"
	OutboxSinkLog    = "log"
)

const (
	EnvAppEnv   = "ORDERFLOW_APP_ENV"
	EnvPort     = "ORDERFLOW_APP_PORT"
	EnvLogLevel = "ORDERFLOW_LOG_LEVEL"

	EnvDBDSN  = "ORDERFLOW_DB_DSN"
	EnvDBHost = "ORDERFLOW_DB_HOST"
	EnvDBUser = "ORDERFLOW_DB_USER"
	EnvDBName = "ORDERFLOW_DB_NAME"

	EnvRedisURL = "ORDERFLOW_REDIS_URL"

	EnvJWTSecret = "ORDERFLOW_JWT_SECRET"
	EnvJWTIssuer = "ORDERFLOW_JWT_ISSUER"

	EnvStripeAPIKey = "ORDERFLOW_STRIPE_API_KEY"
	EnvStripeSecret = "ORDERFLOW_STRIPE_SECRET"
	EnvStripeEnv    = "ORDERFLOW_STRIPE_ENV"

	EnvBalanceSessionTTL = "ORDERFLOW_BALANCE_SESSION_TTL"
	EnvOutboxSink        = "ORDERFLOW_OUTBOX_SINK"
	EnvKafkaBrokers      = "ORDERFLOW_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
