// Package config loads typed configuration structs from environment variables.
//
// Each component of the lifecycle engine declares its own Config struct with
// `env` tags and loads it through the generic Load function. A .env file is
// read once per process if present, and every configuration type is parsed
// exactly once and cached, so components can load their config independently
// without coordinating startup order.
//
//	type CacheConfig struct {
//	    TTL      time.Duration `env:"CACHE_TTL" envDefault:"5m"`
//	    Capacity int           `env:"CACHE_CAPACITY" envDefault:"1000"`
//	}
//
//	var cfg CacheConfig
//	config.MustLoad(&cfg)
package config
