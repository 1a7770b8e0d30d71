package configuration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const defaultConfigPath = "shared/config.dev.json"

type MongoConfig struct {
	Uri                     string `json:"uri"`
	Database                string `json:"database"`
	ConversationsCollection string `json:"conversationsCollection"`
	UsersCollection         string `json:"usersCollection"`
}

type RedisConfig struct {
	Url                 string `json:"url"`
	UserCacheTTLSeconds int    `json:"userCacheTTLSeconds"`
}

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	SocketPort     int      `json:"socket_port"`
	SocketRoute    string   `json:"socket_route"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type Config struct {
	ChatDatabase MongoConfig   `json:"mongo"`
	Redis        RedisConfig   `json:"redis"`
	Server       ServerConfig  `json:"server"`
	Log          LogConfig     `json:"log"`
	Metrics      MetricsConfig `json:"metrics"`
}

// ConfigPath returns CONFIG_PATH or the development default.
func ConfigPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return defaultConfigPath
}

// LoadConfig reads the JSON file at config_path, then lets the environment (and an optional
// .env file) override it.
func LoadConfig(config_path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	file, err := os.ReadFile(config_path)
	if err != nil {
		return nil, err
	}

	var config Config
	if err = json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("parse %s: %w", config_path, err)
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() error {
	setString(&c.ChatDatabase.Uri, "MONGO_URI")
	setString(&c.ChatDatabase.Database, "MONGO_DATABASE")
	setString(&c.Redis.Url, "REDIS_URL")
	setString(&c.Log.Level, "LOG_LEVEL")

	if err := setInt(&c.Server.AppPort, "APP_PORT"); err != nil {
		return err
	}
	if err := setInt(&c.Server.SocketPort, "SOCKET_PORT"); err != nil {
		return err
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.ChatDatabase.ConversationsCollection == "" {
		c.ChatDatabase.ConversationsCollection = "conversations"
	}
	if c.ChatDatabase.UsersCollection == "" {
		c.ChatDatabase.UsersCollection = "users"
	}
	if c.Server.SocketRoute == "" {
		c.Server.SocketRoute = "ws"
	}
	c.Server.SocketRoute = strings.TrimPrefix(c.Server.SocketRoute, "/")
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Redis.UserCacheTTLSeconds <= 0 {
		c.Redis.UserCacheTTLSeconds = 300
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate reports the first missing or out-of-range setting.
func (c *Config) Validate() error {
	switch {
	case c.ChatDatabase.Uri == "":
		return errors.New("config: mongo.uri is required")
	case c.ChatDatabase.Database == "":
		return errors.New("config: mongo.database is required")
	case c.Server.AppPort <= 0:
		return errors.New("config: server.app_port must be positive")
	case c.Server.SocketPort <= 0:
		return errors.New("config: server.socket_port must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("config: %s must be an integer: %w", key, err)
	}
	*dst = n
	return nil
}
