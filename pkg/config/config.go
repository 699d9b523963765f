package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "NAFSI"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "NAFSI_DB_DSN"
	EnvDBHost = "NAFSI_DB_HOST"
	EnvDBUser = "NAFSI_DB_USER"
	EnvDBName = "NAFSI_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Password     PasswordConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
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
	Env          string `envconfig:"NAFSI_APP_ENV" required:"true"`
	Port         string `envconfig:"NAFSI_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"NAFSI_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"NAFSI_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"NAFSI_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"NAFSI_DB_DSN"`
	Driver string `envconfig:"NAFSI_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"NAFSI_DB_HOST"`
	LegacyPort     int    `envconfig:"NAFSI_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"NAFSI_DB_USER"`
	LegacyPassword string `envconfig:"NAFSI_DB_PASSWORD"`
	LegacyName     string `envconfig:"NAFSI_DB_NAME"`
	LegacySSLMode  string `envconfig:"NAFSI_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"NAFSI_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"NAFSI_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"NAFSI_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"NAFSI_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"NAFSI_REDIS_URL" required:"true"`
	Address      string        `envconfig:"NAFSI_REDIS_ADDR"`
	Password     string        `envconfig:"NAFSI_REDIS_PASSWORD"`
	DB           int           `envconfig:"NAFSI_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"NAFSI_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"NAFSI_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"NAFSI_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"NAFSI_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"NAFSI_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret                 string `envconfig:"NAFSI_JWT_SECRET" required:"true"`
	Issuer                 string `envconfig:"NAFSI_JWT_ISSUER" required:"true"`
	ExpirationMinutes      int    `envconfig:"NAFSI_JWT_EXPIRATION_MINUTES" required:"true"`
	RefreshTokenTTLMinutes int    `envconfig:"NAFSI_REFRESH_TOKEN_TTL_MINUTES" default:"43200"`
}

// RefreshTokenTTL returns the refresh token TTL configured in minutes.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	if j.RefreshTokenTTLMinutes <= 0 {
		return 0
	}
	return time.Duration(j.RefreshTokenTTLMinutes) * time.Minute
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"NAFSI_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"NAFSI_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"NAFSI_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"NAFSI_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"NAFSI_ARGON_KEY_LEN" default:"32"`
}

type FeatureFlagsConfig struct {
	AutoMigrate    bool `envconfig:"NAFSI_AUTO_MIGRATE" default:"false"`
	PublishNotices bool `envconfig:"NAFSI_PUBLISH_NOTIFICATIONS" default:"false"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"NAFSI_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	NotificationTopic        string `envconfig:"NAFSI_PUBSUB_NOTIFICATION_TOPIC" default:"nafsi-notification-events"`
	NotificationSubscription string `envconfig:"NAFSI_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"nafsi-notification-push"`
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
