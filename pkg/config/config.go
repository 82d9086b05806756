package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	RateLimit    RateLimitConfig
	FeatureFlags FeatureFlagsConfig
	Stripe       StripeConfig
	Balance      BalanceConfig
	Shipping     ShippingConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	// Report every invalid section at once rather than one per boot.
	if err := multierr.Combine(cfg.DB.ensureDSN(), cfg.Stripe.validate(), cfg.Outbox.validate()); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ORDERFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"ORDERFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ORDERFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ORDERFLOW_LOG_WARN_STACK" default:"false"`
	PublicURL    string `envconfig:"ORDERFLOW_PUBLIC_URL" default:"http://localhost:3000"`
	CORSOrigins  string `envconfig:"ORDERFLOW_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// AllowedOrigins splits the comma-separated CORS origin list.
func (a AppConfig) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(a.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"ORDERFLOW_DB_DSN"`

	LegacyHost     string `envconfig:"ORDERFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"ORDERFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ORDERFLOW_DB_USER"`
	LegacyPassword string `envconfig:"ORDERFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"ORDERFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"ORDERFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ORDERFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ORDERFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ORDERFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"ORDERFLOW_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ORDERFLOW_REDIS_URL" required:"true"`
	PoolSize     int           `envconfig:"ORDERFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ORDERFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ORDERFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ORDERFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies access tokens minted by the identity provider.
type JWTConfig struct {
	Secret string `envconfig:"ORDERFLOW_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"ORDERFLOW_JWT_ISSUER" required:"true"`
}

type RateLimitConfig struct {
	TokenWindow time.Duration `envconfig:"ORDERFLOW_RATE_LIMIT_TOKEN_WINDOW" default:"1m"`
	TokenLimit  int           `envconfig:"ORDERFLOW_RATE_LIMIT_TOKEN_LIMIT" default:"30"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ORDERFLOW_AUTO_MIGRATE" default:"false"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"ORDERFLOW_STRIPE_API_KEY" required:"true"`
	Secret         string        `envconfig:"ORDERFLOW_STRIPE_SECRET" required:"true"`
	Env            string        `envconfig:"ORDERFLOW_STRIPE_ENV" default:"test"`
	RequestTimeout time.Duration `envconfig:"ORDERFLOW_STRIPE_REQUEST_TIMEOUT" default:"10s"`
	MaxRetries     uint64        `envconfig:"ORDERFLOW_STRIPE_MAX_RETRIES" default:"3"`
	RetryBase      time.Duration `envconfig:"ORDERFLOW_STRIPE_RETRY_BASE" default:"200ms"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

func (s StripeConfig) validate() error {
	switch s.Environment() {
	case "test", "live":
	default:
		return fmt.Errorf("%s must be test or live, got %q", EnvStripeEnv, s.Env)
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return fmt.Errorf("%s is required", EnvStripeAPIKey)
	}
	if strings.TrimSpace(s.Secret) == "" {
		return fmt.Errorf("%s is required", EnvStripeSecret)
	}
	return nil
}

type BalanceConfig struct {
	SessionTTL             time.Duration `envconfig:"ORDERFLOW_BALANCE_SESSION_TTL" default:"168h"`
	AllowAddressChange     bool          `envconfig:"ORDERFLOW_BALANCE_ALLOW_ADDRESS_CHANGE" default:"true"`
	AutoRequestOnFirstShip bool          `envconfig:"ORDERFLOW_BALANCE_AUTO_REQUEST_ON_SHIP" default:"true"`
}

// ShippingConfig drives the flat-rate quoter used when a balance session
// changes the destination address.
type ShippingConfig struct {
	DomesticCountry    string `envconfig:"ORDERFLOW_SHIPPING_DOMESTIC_COUNTRY" default:"US"`
	DomesticBaseCents  int64  `envconfig:"ORDERFLOW_SHIPPING_DOMESTIC_BASE_CENTS" default:"800"`
	IntlBaseCents      int64  `envconfig:"ORDERFLOW_SHIPPING_INTL_BASE_CENTS" default:"2500"`
	PerItemCents       int64  `envconfig:"ORDERFLOW_SHIPPING_PER_ITEM_CENTS" default:"150"`
	RemoteRegions      string `envconfig:"ORDERFLOW_SHIPPING_REMOTE_REGIONS" default:"AK,HI,PR"`
	RemoteSurchargeCts int64  `envconfig:"ORDERFLOW_SHIPPING_REMOTE_SURCHARGE_CENTS" default:"1200"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ORDERFLOW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ORDERFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ORDERFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName    string `envconfig:"ORDERFLOW_GCS_BUCKET_NAME"`
	PublicBaseURL string `envconfig:"ORDERFLOW_GCS_PUBLIC_BASE_URL" default:"https://storage.googleapis.com"`
	DocumentsPath string `envconfig:"ORDERFLOW_GCS_DOCUMENTS_PATH" default:"documents"`
}

type PubSubConfig struct {
	OrdersTopic string `envconfig:"ORDERFLOW_PUBSUB_ORDERS_TOPIC" default:"orderflow-order-events"`
}

type KafkaConfig struct {
	Brokers string `envconfig:"ORDERFLOW_KAFKA_BROKERS"`
	Topic   string `envconfig:"ORDERFLOW_KAFKA_TOPIC" default:"orderflow.order-events"`
}

// BrokerList splits the comma-separated broker list.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type OutboxConfig struct {
	Sink           string `envconfig:"ORDERFLOW_OUTBOX_SINK" default:"pubsub"`
	BatchSize      int    `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"ORDERFLOW_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"ORDERFLOW_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// CronConfig drives the maintenance worker.
type CronConfig struct {
	Interval            time.Duration `envconfig:"ORDERFLOW_CRON_INTERVAL" default:"1h"`
	UnpaidOrderTTL      time.Duration `envconfig:"ORDERFLOW_CRON_UNPAID_ORDER_TTL" default:"72h"`
	UnpaidOrderBatch    int           `envconfig:"ORDERFLOW_CRON_UNPAID_ORDER_BATCH" default:"200"`
	OutboxRetentionDays int           `envconfig:"ORDERFLOW_CRON_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (o OutboxConfig) validate() error {
	switch strings.ToLower(o.Sink) {
	case OutboxSinkPubSub, OutboxSinkKafka, OutboxSinkLog:
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s, %s", EnvOutboxSink, OutboxSinkPubSub, OutboxSinkKafka, OutboxSinkLog)
	}
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

// ToolConfig is the subset needed by offline tooling such as cmd/migrate,
// which must run without gateway or cache credentials.
type ToolConfig struct {
	App AppConfig
	DB  DBConfig
}

func LoadTool() (*ToolConfig, error) {
	var cfg ToolConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
