// Package config loads runtime configuration.
//
// The environment is authoritative; an optional YAML file (PITWALL_CONFIG)
// provides defaults for anything the environment leaves unset. Commands that
// don't touch a backend run fine with everything empty.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	// Document store.
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`

	// Raw archive object storage.
	RawBucket   string `yaml:"raw_bucket"`
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3SSL       bool   `yaml:"s3_ssl"`

	// Live fan-out; empty disables it.
	NATSURL string `yaml:"nats_url"`

	// Lifecycle coordinator; empty disables it.
	RedisAddr string `yaml:"redis_addr"`

	// Feed subscription token (optional, 4-day validity upstream).
	FeedToken string `yaml:"feed_token"`
}

// Load reads the optional config file, then overlays the environment.
func Load() (Config, error) {
	var cfg Config

	if path := os.Getenv("PITWALL_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	overlayString(&cfg.MongoURI, "PITWALL_MONGO_URI")
	overlayString(&cfg.MongoDatabase, "PITWALL_MONGO_DATABASE")
	overlayString(&cfg.RawBucket, "PITWALL_RAW_BUCKET")
	overlayString(&cfg.S3Endpoint, "PITWALL_S3_ENDPOINT")
	overlayString(&cfg.S3AccessKey, "PITWALL_S3_ACCESS_KEY")
	overlayString(&cfg.S3SecretKey, "PITWALL_S3_SECRET_KEY")
	overlayString(&cfg.NATSURL, "PITWALL_NATS_URL")
	overlayString(&cfg.RedisAddr, "PITWALL_REDIS_ADDR")
	overlayString(&cfg.FeedToken, "PITWALL_FEED_TOKEN")

	if v := os.Getenv("PITWALL_S3_SSL"); v != "" {
		ssl, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("parsing PITWALL_S3_SSL: %w", err)
		}
		cfg.S3SSL = ssl
	}

	return cfg, nil
}

func overlayString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
