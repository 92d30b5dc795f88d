package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/caarlos0/env/v11"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/Layr-Labs/lamport-merkle-go/pkg/crypto"
)

// Environment variable names for the lamport CLI
const (
	EnvServerAddress   = "LAMPORT_SERVER_ADDRESS"
	EnvListenAddress   = "LAMPORT_LISTEN_ADDRESS"
	EnvHashFunction    = "LAMPORT_HASH_FUNCTION"
	EnvLeafCopies      = "LAMPORT_LEAF_COPIES"
	EnvPersistenceType = "LAMPORT_PERSISTENCE"
	EnvDataPath        = "LAMPORT_DATA_PATH"
	EnvRedisAddress    = "LAMPORT_REDIS_ADDRESS"
	EnvRedisPassword   = "LAMPORT_REDIS_PASSWORD"
	EnvRedisDB         = "LAMPORT_REDIS_DB"
	EnvRedisKeyPrefix  = "LAMPORT_REDIS_KEY_PREFIX"
	EnvSendAttempts    = "LAMPORT_SEND_ATTEMPTS"
	EnvRateLimit       = "LAMPORT_RATE_LIMIT"
	EnvRateBurst       = "LAMPORT_RATE_BURST"
	EnvMetricsAddress  = "LAMPORT_METRICS_ADDRESS"
	EnvDebug           = "LAMPORT_DEBUG"
)

type PersistenceType string

func (p PersistenceType) String() string {
	return string(p)
}

const (
	PersistenceMemory  PersistenceType = "memory"
	PersistenceBadger  PersistenceType = "badger"
	PersistenceLevelDB PersistenceType = "leveldb"
	PersistenceRedis   PersistenceType = "redis"
)

// SupportedPersistenceTypes lists every accepted LAMPORT_PERSISTENCE value
func SupportedPersistenceTypes() []PersistenceType {
	return []PersistenceType{PersistenceMemory, PersistenceBadger, PersistenceLevelDB, PersistenceRedis}
}

// Config is the complete configuration of the lamport CLI. Every field can
// be set from the environment and overridden by a command line flag.
type Config struct {
	// Peer the send command delivers messages to
	ServerAddress string `env:"LAMPORT_SERVER_ADDRESS" envDefault:"127.0.0.1:9999"`
	// Address the serve command listens on
	ListenAddress string `env:"LAMPORT_LISTEN_ADDRESS" envDefault:"127.0.0.1:9999"`

	HashFunction string `env:"LAMPORT_HASH_FUNCTION" envDefault:"sha256"`
	LeafCopies   int    `env:"LAMPORT_LEAF_COPIES" envDefault:"512"`

	PersistenceType PersistenceType `env:"LAMPORT_PERSISTENCE" envDefault:"memory"`
	DataPath        string          `env:"LAMPORT_DATA_PATH"`
	RedisAddress    string          `env:"LAMPORT_REDIS_ADDRESS"`
	RedisPassword   string          `env:"LAMPORT_REDIS_PASSWORD"`
	RedisDB         int             `env:"LAMPORT_REDIS_DB"`
	RedisKeyPrefix  string          `env:"LAMPORT_REDIS_KEY_PREFIX"`

	SendAttempts int     `env:"LAMPORT_SEND_ATTEMPTS" envDefault:"5"`
	RateLimit    float64 `env:"LAMPORT_RATE_LIMIT"`
	RateBurst    int     `env:"LAMPORT_RATE_BURST" envDefault:"1"`

	// MetricsAddress enables a Prometheus /metrics endpoint when set
	MetricsAddress string `env:"LAMPORT_METRICS_ADDRESS"`

	Debug bool `env:"LAMPORT_DEBUG"`
}

// LoadFromEnv builds a Config from defaults and LAMPORT_* environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.HashFunction = strings.ToLower(strings.TrimSpace(cfg.HashFunction))
	return cfg, nil
}

// Hasher resolves the configured hash function.
func (c *Config) Hasher() (crypto.Hasher, error) {
	return crypto.HasherByName(c.HashFunction)
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var allErrors field.ErrorList

	if _, err := crypto.HasherByName(c.HashFunction); err != nil {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("hashFunction"), c.HashFunction, crypto.SupportedHashers()))
	}
	if c.LeafCopies < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("leafCopies"), c.LeafCopies, "must be at least 1"))
	}

	for _, addr := range []struct {
		path  string
		value string
	}{
		{"serverAddress", c.ServerAddress},
		{"listenAddress", c.ListenAddress},
	} {
		if addr.value == "" {
			allErrors = append(allErrors, field.Required(field.NewPath(addr.path), "address is required"))
			continue
		}
		if _, _, err := net.SplitHostPort(addr.value); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath(addr.path), addr.value, err.Error()))
		}
	}

	switch c.PersistenceType {
	case PersistenceMemory:
	case PersistenceBadger, PersistenceLevelDB:
		if c.DataPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("dataPath"),
				fmt.Sprintf("dataPath is required for %s persistence", c.PersistenceType)))
		}
	case PersistenceRedis:
		if c.RedisAddress == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redisAddress"), "redisAddress is required for redis persistence"))
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redisDB"), c.RedisDB, "must be between 0 and 15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("persistence"), c.PersistenceType, SupportedPersistenceTypes()))
	}

	if c.SendAttempts < 1 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("sendAttempts"), c.SendAttempts, "must be at least 1"))
	}
	if c.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateLimit"), c.RateLimit, "must not be negative"))
	}
	if c.RateBurst < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rateBurst"), c.RateBurst, "must not be negative"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
