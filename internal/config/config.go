// Package config loads service configuration from an optional YAML file
// with environment-variable overrides on top.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Stripe   Stripe   `yaml:"stripe"`
	S3       S3       `yaml:"s3"`
}

// Server holds the HTTP listener settings.
type Server struct {
	Addr string `yaml:"addr"`
}

// Database selects the store driver and its DSN. Driver is one of
// memory, sqlite, postgres.
type Database struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// Stripe holds the payment adapter settings. An empty APIKey disables the
// checkout-intent path.
type Stripe struct {
	APIKey     string `yaml:"api_key"`
	SuccessURL string `yaml:"success_url"`
	CancelURL  string `yaml:"cancel_url"`
}

// S3 holds the image upload settings. An empty Bucket disables uploads.
type S3 struct {
	Bucket string `yaml:"bucket"`
	Region string `yaml:"region"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		Server:   Server{Addr: ":8081"},
		Database: Database{Driver: "memory"},
		Stripe: Stripe{
			SuccessURL: "http://localhost:5173/ordersuccess",
			CancelURL:  "http://localhost:5173/ordercancel",
		},
		S3: S3{Region: "us-east-1"},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// given), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setenv(&cfg.Server.Addr, "MARKET_ADDR")
	setenv(&cfg.Database.Driver, "DATABASE_DRIVER")
	setenv(&cfg.Database.DSN, "DATABASE_DSN")
	setenv(&cfg.Stripe.APIKey, "STRIPE_API_KEY")
	setenv(&cfg.Stripe.SuccessURL, "STRIPE_SUCCESS_URL")
	setenv(&cfg.Stripe.CancelURL, "STRIPE_CANCEL_URL")
	setenv(&cfg.S3.Bucket, "AWS_S3_BUCKET")
	setenv(&cfg.S3.Region, "AWS_REGION")
}

func setenv(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
