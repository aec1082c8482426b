// Package config loads the service configuration from config.yaml with
// environment overrides under the CATALOG_ prefix, e.g.
// CATALOG_DATABASE_HOST.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DSN renders the pgx connection string.
func (d Database) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type Server struct {
	Addr           string
	AllowedOrigins []string
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type Kafka struct {
	// Brokers empty disables the kafka sink; events go to the log sink only.
	Brokers []string
	Topic   string
}

type Secrets struct {
	// Key is the AES key material, at least 32 characters.
	Key string
}

type Config struct {
	Database Database
	Server   Server
	Redis    Redis
	Kafka    Kafka
	Secrets  Secrets
}

func defaults() Config {
	return Config{
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "admin",
			DBName:   "metacat",
			SSLMode:  "disable",
		},
		Server: Server{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Redis: Redis{
			Addr: "localhost:6379",
		},
		Kafka: Kafka{
			Topic: "catalog-change-events",
		},
	}
}

// Load reads config.yaml from configPath, falling back to defaults plus
// environment variables when the file is absent.
func Load(configPath string) (Config, error) {
	cfg := defaults()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{
		"database.host", "database.port", "database.user",
		"database.password", "database.dbname", "database.sslmode",
		"server.addr", "server.allowed_origins",
		"redis.addr", "redis.password", "redis.db",
		"kafka.brokers", "kafka.topic",
		"secrets.key",
	} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	}
	if v.IsSet("redis.addr") {
		cfg.Redis.Addr = v.GetString("redis.addr")
	}
	if v.IsSet("redis.password") {
		cfg.Redis.Password = v.GetString("redis.password")
	}
	if v.IsSet("redis.db") {
		cfg.Redis.DB = v.GetInt("redis.db")
	}
	if v.IsSet("kafka.brokers") {
		cfg.Kafka.Brokers = v.GetStringSlice("kafka.brokers")
	}
	if v.IsSet("kafka.topic") {
		cfg.Kafka.Topic = v.GetString("kafka.topic")
	}
	if v.IsSet("secrets.key") {
		cfg.Secrets.Key = v.GetString("secrets.key")
	}

	return cfg, nil
}
