// Package config loads registry configuration from the environment.
package config

import (
	"fmt"
	"net/url"

	"github.com/spf13/viper"
)

const minSecretLen = 16

// Database holds the connection parameters for the Postgres store.
type Database struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// DSN returns a postgres:// connection string for pgx.
func (d Database) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.Name,
	}
	return u.String()
}

// Config is the full runtime configuration of the registry.
type Config struct {
	Env          string
	JWTSecret    string
	Database     Database
	Port         int
	Host         string
	TrustProxy   bool
	SearchDebug  bool
	RateLimitRPS int
	CORSOrigins  []string
}

// IsProduction reports whether anti-fraud, quarantine transitions, and
// HTTPS endpoint enforcement are active.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("node_env", "development")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("database_host", "localhost")
	v.SetDefault("database_port", 5432)
	v.SetDefault("database_name", "agora")
	v.SetDefault("database_user", "agora")
	v.SetDefault("database_password", "agora")
	v.SetDefault("port", 3000)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("trust_proxy", true)
	v.SetDefault("search_debug", false)
	v.SetDefault("rate_limit_rps", 20)
	v.SetDefault("cors_origins", []string{"*"})

	cfg := &Config{
		Env:       v.GetString("node_env"),
		JWTSecret: v.GetString("jwt_secret"),
		Database: Database{
			Host:     v.GetString("database_host"),
			Port:     v.GetInt("database_port"),
			Name:     v.GetString("database_name"),
			User:     v.GetString("database_user"),
			Password: v.GetString("database_password"),
		},
		Port:         v.GetInt("port"),
		Host:         v.GetString("host"),
		TrustProxy:   v.GetBool("trust_proxy"),
		SearchDebug:  v.GetBool("search_debug"),
		RateLimitRPS: v.GetInt("rate_limit_rps"),
		CORSOrigins:  v.GetStringSlice("cors_origins"),
	}

	if len(cfg.JWTSecret) < minSecretLen {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d characters", minSecretLen)
	}
	return cfg, nil
}
