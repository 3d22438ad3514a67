package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"ERP_ADDR" envDefault:":8080"`
	UsersPrefix     string        `env:"ERP_USERS_PREFIX" envDefault:"/users"`
	ShutdownTimeout time.Duration `env:"ERP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"ERP_REQUEST_TIMEOUT" envDefault:"30s"`

	Log      LogConfig
	Auth     AuthConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Audit    AuditConfig
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

type AuthConfig struct {
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	JWTIssuer     string `env:"JWT_ISSUER" envDefault:"erp"`
	JWTAudience   string `env:"JWT_AUDIENCE" envDefault:"erp-api"`
	AdminRole     string `env:"ADMIN_ROLE" envDefault:"admin"`
}

// DatabaseConfig selects the postgres stores when URL is set.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
	TxTimeout       time.Duration `env:"DATABASE_TX_TIMEOUT" envDefault:"5s"`
}

// RedisConfig enables the user read cache when URL is set.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
	CacheTTL     time.Duration `env:"USER_CACHE_TTL" envDefault:"5m"`
}

// KafkaConfig enables audit fan-out when Brokers is non-empty.
type KafkaConfig struct {
	Brokers           []string `env:"KAFKA_BROKERS" envSeparator:","`
	AuditTopic        string   `env:"KAFKA_AUDIT_TOPIC" envDefault:"erp.lifecycle-events"`
	Partitions        int32    `env:"KAFKA_AUDIT_PARTITIONS" envDefault:"3"`
	ReplicationFactor int16    `env:"KAFKA_AUDIT_REPLICATION" envDefault:"1"`

	BreakerCooldown time.Duration `env:"KAFKA_BREAKER_COOLDOWN" envDefault:"30s"`
}

type AuditConfig struct {
	AsyncBuffer int `env:"AUDIT_ASYNC_BUFFER" envDefault:"1024"`
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	var cfg Server
	if err := env.Parse(&cfg); err != nil {
		return Server{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Server{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot start with.
func (c Server) Validate() error {
	if c.UsersPrefix == "" || c.UsersPrefix[0] != '/' {
		return fmt.Errorf("ERP_USERS_PREFIX must start with '/', got %q", c.UsersPrefix)
	}
	if c.Auth.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY must not be empty")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AuditTopic == "" {
		return fmt.Errorf("KAFKA_AUDIT_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}
