package types

import "time"

const (
	StoreRedis  = "redis"
	StoreMemory = "memory"

	DefaultHost = "127.0.0.1"
	DefaultPort = 6379
)

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Config struct {
	StoreType string `yaml:"store_type"`
	Memory    struct {
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
	} `yaml:"memory"`
	Redis RedisConfig `yaml:"redis"`
	// AtomicSet writes value and deadline with one command. Nil means true.
	AtomicSet *bool `yaml:"atomic_set"`
}

// WithDefaults returns a copy of c with every unset option filled in.
func (c Config) WithDefaults() Config {
	if c.StoreType == "" {
		c.StoreType = StoreRedis
	}
	if c.Redis.Host == "" {
		c.Redis.Host = DefaultHost
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = DefaultPort
	}
	if c.Memory.CleanupInterval <= 0 {
		c.Memory.CleanupInterval = time.Hour
	}
	return c
}
