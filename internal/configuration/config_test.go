package configuration

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `{
	"mongo": {"uri": "mongodb://localhost:27017", "database": "pathshala"},
	"server": {"app_port": 5000, "socket_port": 8000}
}`

func TestLoadConfigAppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.ChatDatabase.ConversationsCollection != "conversations" || cfg.ChatDatabase.UsersCollection != "users" {
		t.Errorf("collections = %+v", cfg.ChatDatabase)
	}
	if cfg.Server.SocketRoute != "ws" || !reflect.DeepEqual(cfg.Server.AllowedOrigins, []string{"*"}) {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Redis.UserCacheTTLSeconds != 300 || cfg.Metrics.Path != "/metrics" {
		t.Errorf("redis/metrics defaults = %+v / %+v", cfg.Redis, cfg.Metrics)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("MONGO_URI", "mongodb://db:27017")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ChatDatabase.Uri != "mongodb://db:27017" || cfg.Server.AppPort != 9090 || cfg.Log.Level != "debug" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("origins = %v", cfg.Server.AllowedOrigins)
	}

	t.Setenv("SOCKET_PORT", "eight")
	if _, err := LoadConfig(writeConfig(t, minimalConfig)); err == nil || !strings.Contains(err.Error(), "SOCKET_PORT") {
		t.Errorf("err = %v, want a SOCKET_PORT error", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing uri", `{"mongo": {"database": "p"}, "server": {"app_port": 1, "socket_port": 2}}`, "mongo.uri"},
		{"missing database", `{"mongo": {"uri": "mongodb://x"}, "server": {"app_port": 1, "socket_port": 2}}`, "mongo.database"},
		{"missing port", `{"mongo": {"uri": "mongodb://x", "database": "p"}, "server": {"socket_port": 2}}`, "app_port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger(LogConfig{Level: "debug", Development: true}); err != nil {
		t.Errorf("dev logger: %v", err)
	}
	if _, err := NewLogger(LogConfig{Level: "chatty"}); err == nil {
		t.Errorf("unknown level accepted")
	}
}
