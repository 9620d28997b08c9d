package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "SEATSWAP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "SEATSWAP_DB_DSN"
	EnvDBHost = "SEATSWAP_DB_HOST"
	EnvDBUser = "SEATSWAP_DB_USER"
	EnvDBName = "SEATSWAP_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Checkout     CheckoutConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
	Sweeper      SweeperConfig
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
	Env          string `envconfig:"SEATSWAP_APP_ENV" required:"true"`
	Port         string `envconfig:"SEATSWAP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"SEATSWAP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SEATSWAP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"SEATSWAP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"SEATSWAP_DB_DSN"`
	Driver string `envconfig:"SEATSWAP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"SEATSWAP_DB_HOST"`
	LegacyPort     int    `envconfig:"SEATSWAP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"SEATSWAP_DB_USER"`
	LegacyPassword string `envconfig:"SEATSWAP_DB_PASSWORD"`
	LegacyName     string `envconfig:"SEATSWAP_DB_NAME"`
	LegacySSLMode  string `envconfig:"SEATSWAP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"SEATSWAP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"SEATSWAP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"SEATSWAP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"SEATSWAP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"SEATSWAP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"SEATSWAP_REDIS_ADDR"`
	Password     string        `envconfig:"SEATSWAP_REDIS_PASSWORD"`
	DB           int           `envconfig:"SEATSWAP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"SEATSWAP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"SEATSWAP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"SEATSWAP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"SEATSWAP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"SEATSWAP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"SEATSWAP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"SEATSWAP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"SEATSWAP_JWT_EXPIRATION_MINUTES" default:"60"`
}

// CheckoutConfig carries the tunables of the purchase path.
type CheckoutConfig struct {
	FeeBps         int           `envconfig:"SEATSWAP_CHECKOUT_FEE_BPS" default:"875"`
	ReservationTTL time.Duration `envconfig:"SEATSWAP_CHECKOUT_RESERVATION_TTL" default:"15m"`
	MaxTickets     int           `envconfig:"SEATSWAP_CHECKOUT_MAX_TICKETS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"SEATSWAP_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"SEATSWAP_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"SEATSWAP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"SEATSWAP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	OrdersTopic        string `envconfig:"SEATSWAP_PUBSUB_ORDERS_TOPIC" default:"ss-order-events"`
	OrdersSubscription string `envconfig:"SEATSWAP_PUBSUB_ORDERS_SUBSCRIPTION"`
}

type StripeConfig struct {
	APIKey string `envconfig:"SEATSWAP_STRIPE_API_KEY"`
	Secret string `envconfig:"SEATSWAP_STRIPE_SECRET"`
	Env    string `envconfig:"SEATSWAP_STRIPE_ENV" default:"test"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"SEATSWAP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"SEATSWAP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"SEATSWAP_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

// SweeperConfig drives the optional expired-reservation reclaim job.
type SweeperConfig struct {
	Interval  time.Duration `envconfig:"SEATSWAP_SWEEPER_INTERVAL" default:"1m"`
	BatchSize int           `envconfig:"SEATSWAP_SWEEPER_BATCH_SIZE" default:"100"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
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
