package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Provider ProviderConfig
	Breaker  BreakerConfig
	Poll     PollConfig
	Admin    AdminConfig
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
	Env          string `envconfig:"STARFALL_APP_ENV" required:"true"`
	Port         string `envconfig:"STARFALL_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"STARFALL_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"STARFALL_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"STARFALL_DB_DSN"`
	Driver string `envconfig:"STARFALL_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"STARFALL_DB_HOST"`
	LegacyPort     int    `envconfig:"STARFALL_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"STARFALL_DB_USER"`
	LegacyPassword string `envconfig:"STARFALL_DB_PASSWORD"`
	LegacyName     string `envconfig:"STARFALL_DB_NAME"`
	LegacySSLMode  string `envconfig:"STARFALL_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"STARFALL_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"STARFALL_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"STARFALL_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STARFALL_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	AutoMigrate bool `envconfig:"STARFALL_AUTO_MIGRATE" default:"false"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STARFALL_REDIS_URL" required:"true"`
	Address      string        `envconfig:"STARFALL_REDIS_ADDR"`
	Password     string        `envconfig:"STARFALL_REDIS_PASSWORD"`
	DB           int           `envconfig:"STARFALL_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STARFALL_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STARFALL_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STARFALL_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STARFALL_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"STARFALL_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// ProviderConfig describes the upstream generation provider.
type ProviderConfig struct {
	BaseURL        string        `envconfig:"STARFALL_PROVIDER_BASE_URL" required:"true"`
	APIKey         string        `envconfig:"STARFALL_PROVIDER_API_KEY" required:"true"`
	CallbackSecret string        `envconfig:"STARFALL_PROVIDER_CALLBACK_SECRET" required:"true"`
	CallbackURL    string        `envconfig:"STARFALL_PROVIDER_CALLBACK_URL"`
	SubmitTimeout  time.Duration `envconfig:"STARFALL_PROVIDER_SUBMIT_TIMEOUT" default:"20s"`
	MaxAttempts    int           `envconfig:"STARFALL_PROVIDER_MAX_ATTEMPTS" default:"3"`
	InitialBackoff time.Duration `envconfig:"STARFALL_PROVIDER_INITIAL_BACKOFF" default:"1s"`
	MaxBackoff     time.Duration `envconfig:"STARFALL_PROVIDER_MAX_BACKOFF" default:"10s"`
}

// AdminConfig guards the back-office endpoints. When the token is
// unset the admin surface rejects every request.
type AdminConfig struct {
	Token string `envconfig:"STARFALL_ADMIN_TOKEN"`
}

// BreakerConfig tunes the per-provider circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           `envconfig:"STARFALL_BREAKER_FAILURE_THRESHOLD" default:"5"`
	FailureWindow    time.Duration `envconfig:"STARFALL_BREAKER_FAILURE_WINDOW" default:"1m"`
	OpenDuration     time.Duration `envconfig:"STARFALL_BREAKER_OPEN_DURATION" default:"30s"`
}

// PollConfig tunes the polling fallback worker.
type PollConfig struct {
	Interval          time.Duration `envconfig:"STARFALL_POLL_INTERVAL" default:"1m"`
	ProcessingTimeout time.Duration `envconfig:"STARFALL_POLL_PROCESSING_TIMEOUT" default:"30m"`
	BatchSize         int           `envconfig:"STARFALL_POLL_BATCH_SIZE" default:"50"`
	LockTTL           time.Duration `envconfig:"STARFALL_POLL_LOCK_TTL" default:"5m"`
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
