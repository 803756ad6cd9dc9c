package database

import (
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresConfig holds Postgres connection configuration
type PostgresConfig struct {
	Host           string `envconfig:"HOST" default:"localhost"`
	Port           string `envconfig:"PORT" default:"5432"`
	User           string `envconfig:"USER" default:"postgres"`
	Password       string `envconfig:"PASSWORD"`
	DBName         string `envconfig:"NAME" default:"notify"`
	SSLMode        string `envconfig:"SSLMODE" default:"disable"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH"`
	AutoMigrate    bool   `envconfig:"AUTO_MIGRATE" default:"true"`
	MaxOpenConns   int    `envconfig:"MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns   int    `envconfig:"MAX_IDLE_CONNS" default:"10"`
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (c PostgresConfig) URL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%s", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": []string{c.SSLMode}}.Encode(),
	}
	return u.String()
}

// NewPostgresDB opens and pings a pooled connection.
func NewPostgresDB(cfg PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)
	return db, nil
}
