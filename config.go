package authdb

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/minus-twelve/authdb/types"
)

const EnvPrefix = "AUTHDB_"

// envKeys maps variable names (without EnvPrefix) to config paths.
var envKeys = map[string]string{
	"STORE_TYPE":              "store_type",
	"ATOMIC_SET":              "atomic_set",
	"REDIS_HOST":              "redis.host",
	"REDIS_PORT":              "redis.port",
	"REDIS_PASSWORD":          "redis.password",
	"REDIS_DB":                "redis.db",
	"MEMORY_CLEANUP_INTERVAL": "memory.cleanup_interval",
}

// LoadConfig reads the YAML file at path, if any, then applies AUTHDB_*
// environment variables on top and fills the remaining defaults.
func LoadConfig(path string) (types.Config, error) {
	var cfg types.Config
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	transform := func(s string) string {
		return envKeys[strings.TrimPrefix(s, EnvPrefix)]
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", transform), nil); err != nil {
		return cfg, fmt.Errorf("load env: %w", err)
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "yaml"}); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg.WithDefaults(), nil
}
