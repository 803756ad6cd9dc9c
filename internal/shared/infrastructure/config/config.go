package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/saransh1220/blueprint-notify/internal/shared/infrastructure/database"
)

// EnvPrefix is prepended to every variable, e.g. NOTIFY_SERVER_PORT.
const EnvPrefix = "NOTIFY"

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"

	AuditNone  = "none"
	AuditLog   = "log"
	AuditRedis = "redis"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig            `envconfig:"SERVER"`
	Store    StoreConfig             `envconfig:"STORE"`
	Database database.PostgresConfig `envconfig:"DB"`
	Redis    database.RedisConfig    `envconfig:"REDIS"`
	Audit    AuditConfig             `envconfig:"AUDIT"`
	JWT      JWTConfig               `envconfig:"JWT"`
	Realtime RealtimeConfig          `envconfig:"REALTIME"`
	Log      LogConfig               `envconfig:"LOG"`
}

type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	AllowedOrigins  string        `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:4200"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Origins splits AllowedOrigins on commas.
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

type StoreConfig struct {
	Driver        string        `envconfig:"DRIVER" default:"memory"`
	DefaultLimit  int           `envconfig:"DEFAULT_LIMIT" default:"50"`
	MaxLimit      int           `envconfig:"MAX_LIMIT" default:"100"`
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
}

type AuditConfig struct {
	Sink   string `envconfig:"SINK" default:"log"`
	Stream string `envconfig:"STREAM" default:"notifications:audit"`
	Buffer int    `envconfig:"BUFFER" default:"1024"`
	MaxLen int64  `envconfig:"MAX_LEN" default:"100000"`
}

type JWTConfig struct {
	Secret string        `envconfig:"SECRET" default:"default-dev-secret"`
	Expiry time.Duration `envconfig:"EXPIRY" default:"24h"`
}

type RealtimeConfig struct {
	SendBuffer     int           `envconfig:"SEND_BUFFER" default:"256"`
	QueueSize      int           `envconfig:"QUEUE_SIZE" default:"1024"`
	WriteWait      time.Duration `envconfig:"WRITE_WAIT" default:"10s"`
	PongWait       time.Duration `envconfig:"PONG_WAIT" default:"60s"`
	MaxMessageSize int64         `envconfig:"MAX_MESSAGE_SIZE" default:"65536"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case StoreMemory, StorePostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.Audit.Sink {
	case AuditNone, AuditLog, AuditRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown audit sink %q", c.Audit.Sink))
	}
	if c.Store.DefaultLimit <= 0 || c.Store.MaxLimit <= 0 {
		errs = append(errs, errors.New("store limits must be positive"))
	}
	if c.Store.DefaultLimit > c.Store.MaxLimit {
		errs = append(errs, errors.New("store default limit exceeds max limit"))
	}
	if c.Store.SweepInterval <= 0 {
		errs = append(errs, errors.New("sweep interval must be positive"))
	}
	if c.JWT.Secret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if c.Realtime.SendBuffer <= 0 {
		errs = append(errs, errors.New("realtime send buffer must be positive"))
	}
	return errors.Join(errs...)
}
