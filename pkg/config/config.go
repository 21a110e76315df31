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
	JWT          JWTConfig
	ChangeFeed   ChangeFeedConfig
	Identity     IdentityConfig
	Cascade      CascadeConfig
	Sync         SyncConfig
	Cron         CronConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.ChangeFeed.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"HAULBID_APP_ENV" required:"true"`
	Port         string `envconfig:"HAULBID_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"HAULBID_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"HAULBID_LOG_WARN_STACK" default:"false"`
	LogFormat    string `envconfig:"HAULBID_LOG_FORMAT" default:"json"`

	CORSOrigins []string `envconfig:"HAULBID_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"HAULBID_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"HAULBID_DB_DSN"`
	Driver string `envconfig:"HAULBID_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"HAULBID_DB_HOST"`
	LegacyPort     int    `envconfig:"HAULBID_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"HAULBID_DB_USER"`
	LegacyPassword string `envconfig:"HAULBID_DB_PASSWORD"`
	LegacyName     string `envconfig:"HAULBID_DB_NAME"`
	LegacySSLMode  string `envconfig:"HAULBID_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"HAULBID_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"HAULBID_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"HAULBID_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"HAULBID_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	// SlowQuery logs statements slower than this at warn; zero disables it.
	SlowQuery time.Duration `envconfig:"HAULBID_DB_SLOW_QUERY" default:"250ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"HAULBID_REDIS_URL" required:"true"`
	Address      string        `envconfig:"HAULBID_REDIS_ADDR"`
	Password     string        `envconfig:"HAULBID_REDIS_PASSWORD"`
	DB           int           `envconfig:"HAULBID_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"HAULBID_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"HAULBID_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"HAULBID_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"HAULBID_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"HAULBID_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig holds the identity provider's signing parameters. Tokens are
// minted by the provider; this service only verifies them.
type JWTConfig struct {
	Secret    string `envconfig:"HAULBID_JWT_SECRET" required:"true"`
	Issuer    string `envconfig:"HAULBID_JWT_ISSUER" required:"true"`
	RoleClaim string `envconfig:"HAULBID_JWT_ADMIN_ROLE" default:"admin"`
}

const (
	ChangeFeedDriverRedis = "redis"
	ChangeFeedDriverNATS  = "nats"
	ChangeFeedDriverNone  = "none"
)

type ChangeFeedConfig struct {
	Driver        string        `envconfig:"HAULBID_CHANGEFEED_DRIVER" default:"redis"`
	ChannelPrefix string        `envconfig:"HAULBID_CHANGEFEED_PREFIX" default:"haulbid:changes"`
	NATSURL       string        `envconfig:"HAULBID_NATS_URL"`
	ReconnectWait time.Duration `envconfig:"HAULBID_CHANGEFEED_RECONNECT_WAIT" default:"2s"`
}

// NormalizedDriver returns the lower-cased driver name, defaulting to redis.
func (c ChangeFeedConfig) NormalizedDriver() string {
	driver := strings.ToLower(strings.TrimSpace(c.Driver))
	if driver == "" {
		return ChangeFeedDriverRedis
	}
	return driver
}

func (c ChangeFeedConfig) validate() error {
	switch c.NormalizedDriver() {
	case ChangeFeedDriverRedis, ChangeFeedDriverNone:
		return nil
	case ChangeFeedDriverNATS:
		if strings.TrimSpace(c.NATSURL) == "" {
			return fmt.Errorf("%s is required when %s=nats", EnvNATSURL, EnvChangeFeedDriver)
		}
		return nil
	}
	return fmt.Errorf("unsupported %s %q", EnvChangeFeedDriver, c.Driver)
}

// IdentityConfig points at the external identity provider's admin API. The
// service-role key is optional at boot; profile deletions fail without it.
type IdentityConfig struct {
	BaseURL        string        `envconfig:"HAULBID_IDENTITY_URL"`
	ServiceRoleKey string        `envconfig:"HAULBID_IDENTITY_SERVICE_ROLE_KEY"`
	Timeout        time.Duration `envconfig:"HAULBID_IDENTITY_TIMEOUT" default:"10s"`
}

// Configured reports whether elevated identity credentials are present.
func (c IdentityConfig) Configured() bool {
	return strings.TrimSpace(c.BaseURL) != "" && strings.TrimSpace(c.ServiceRoleKey) != ""
}

type CascadeConfig struct {
	Atomic bool `envconfig:"HAULBID_CASCADE_ATOMIC" default:"true"`

	// Destructive admin routes share one fixed-window limit.
	RateLimitWindow time.Duration `envconfig:"HAULBID_CASCADE_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitIP     int           `envconfig:"HAULBID_CASCADE_RATE_LIMIT_IP" default:"60"`
	RateLimitActor  int           `envconfig:"HAULBID_CASCADE_RATE_LIMIT_ACTOR" default:"30"`
}

type SyncConfig struct {
	ActiveInterval       time.Duration `envconfig:"HAULBID_SYNC_ACTIVE_INTERVAL" default:"15s"`
	ActivePushedInterval time.Duration `envconfig:"HAULBID_SYNC_ACTIVE_PUSHED_INTERVAL" default:"60s"`
	IdleInterval         time.Duration `envconfig:"HAULBID_SYNC_IDLE_INTERVAL" default:"60s"`
	TerminalInterval     time.Duration `envconfig:"HAULBID_SYNC_TERMINAL_INTERVAL" default:"60s"`
	BackgroundInterval   time.Duration `envconfig:"HAULBID_SYNC_BACKGROUND_INTERVAL" default:"300s"`
	IdleThreshold        time.Duration `envconfig:"HAULBID_SYNC_IDLE_THRESHOLD" default:"5m"`
	SendBuffer           int           `envconfig:"HAULBID_SYNC_SEND_BUFFER" default:"32"`
}

type CronConfig struct {
	// Interval drives auction expiry; reconciliation runs less often.
	Interval          time.Duration `envconfig:"HAULBID_CRON_INTERVAL" default:"1m"`
	ReconcileInterval time.Duration `envconfig:"HAULBID_CRON_RECONCILE_INTERVAL" default:"10m"`
	LockTTL           time.Duration `envconfig:"HAULBID_CRON_LOCK_TTL" default:"5m"`
	JobTimeout        time.Duration `envconfig:"HAULBID_CRON_JOB_TIMEOUT" default:"4m"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"HAULBID_AUTO_MIGRATE" default:"false"`
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
