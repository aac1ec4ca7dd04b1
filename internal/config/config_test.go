package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"LISTNOTE_CONFIG", "LISTNOTE_STORAGE", "DATABASE_URL", "LISTNOTE_DB_INIT_SCHEMA",
	"LISTNOTE_LOCAL_PATH", "LISTNOTE_API_URL", "LISTNOTE_API_TOKEN", "REDIS_URL",
	"LISTNOTE_USER_ID", "LISTNOTE_USER_NAME", "LISTNOTE_PROJECT_ID", "LISTNOTE_PROJECT_NAME",
	"LISTNOTE_SAVE_INTERVAL_MS", "LISTNOTE_PROMPT_SECONDS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "listnote.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTNOTE_API_URL", "http://localhost:4000")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Backend != BackendAPI {
		t.Errorf("backend = %q, want %q", cfg.Storage.Backend, BackendAPI)
	}
	if cfg.Editor.SaveInterval != DefaultSaveInterval {
		t.Errorf("save interval = %v, want %v", cfg.Editor.SaveInterval, DefaultSaveInterval)
	}
	if cfg.Editor.PromptDuration != DefaultPromptDuration {
		t.Errorf("prompt duration = %v, want %v", cfg.Editor.PromptDuration, DefaultPromptDuration)
	}
	if cfg.User.Name != DefaultUserName {
		t.Errorf("user name = %q, want %q", cfg.User.Name, DefaultUserName)
	}
	if !strings.HasSuffix(cfg.Storage.LocalPath, "local.sqlite") {
		t.Errorf("local path = %q", cfg.Storage.LocalPath)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
[storage]
backend = "postgres"
database_url = "postgres://file"

[redis]
url = "redis://file:6379"

[user]
id = "u1"
name = "Ada"

[project]
id = "p1"
name = "Home"

[editor]
save_interval = "2s"
prompt_duration = "30s"
`)
	t.Setenv("LISTNOTE_CONFIG", path)
	t.Setenv("REDIS_URL", "redis://env:6379")
	t.Setenv("LISTNOTE_PROMPT_SECONDS", "15")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"backend", cfg.Storage.Backend, BackendPostgres},
		{"database url", cfg.Storage.DatabaseURL, "postgres://file"},
		{"redis url from env", cfg.Redis.URL, "redis://env:6379"},
		{"user id", cfg.User.ID, "u1"},
		{"user name", cfg.User.Name, "Ada"},
		{"project", cfg.Project, ProjectConfig{ID: "p1", Name: "Home"}},
		{"save interval", cfg.Editor.SaveInterval, 2 * time.Second},
		{"prompt duration from env", cfg.Editor.PromptDuration, 15 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestLoad_ExplicitPathWins(t *testing.T) {
	clearEnv(t)
	envPath := writeConfig(t, `[api]
url = "http://env-file"`)
	argPath := writeConfig(t, `[api]
url = "http://arg-file"`)
	t.Setenv("LISTNOTE_CONFIG", envPath)

	cfg, err := Load(argPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.API.URL != "http://arg-file" {
		t.Errorf("api url = %q, want http://arg-file", cfg.API.URL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		file    string
		wantErr string
	}{
		{
			name:    "api without url",
			wantErr: "api backend needs api.url",
		},
		{
			name:    "postgres without database",
			env:     map[string]string{"LISTNOTE_STORAGE": "postgres"},
			wantErr: "postgres backend needs storage.database_url",
		},
		{
			name:    "unknown backend",
			env:     map[string]string{"LISTNOTE_STORAGE": "s3"},
			wantErr: `unknown storage backend "s3"`,
		},
		{
			name:    "bad toml",
			file:    "[storage\n",
			wantErr: "loading config file",
		},
		{
			name:    "zero interval",
			env:     map[string]string{"LISTNOTE_API_URL": "http://x"},
			file:    "[editor]\nsave_interval = \"0s\"\n",
			wantErr: "editor.save_interval must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := ""
			if tt.file != "" {
				path = writeConfig(t, tt.file)
			}

			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}
