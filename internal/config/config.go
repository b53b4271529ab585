package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logger    LoggerConfig    `yaml:"logger"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Antifraud AntifraudConfig `yaml:"antifraud"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
	// LockTimeoutSeconds bounds advisory-lock acquisition and the
	// transaction it wraps on the create path.
	LockTimeoutSeconds int `yaml:"lock_timeout_seconds"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers        []string `yaml:"brokers"`
	CreatedTopic   string   `yaml:"created_topic"`
	StatusTopic    string   `yaml:"status_topic"`
	StatusGroup    string   `yaml:"status_group"`
	AntifraudGroup string   `yaml:"antifraud_group"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type AntifraudConfig struct {
	// Threshold is kept as a decimal string so config parsing never
	// goes through a float.
	Threshold string `yaml:"threshold"`
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override DSN password from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if cfg.Postgres.LockTimeoutSeconds <= 0 {
		cfg.Postgres.LockTimeoutSeconds = 5
	}
	if cfg.Antifraud.Threshold == "" {
		cfg.Antifraud.Threshold = "1000"
	}
	return &cfg, nil
}
