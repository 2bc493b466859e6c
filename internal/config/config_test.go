package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"dynq/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "dynq")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.LogDir != filepath.Join(wantData, "logs") {
		t.Fatalf("unexpected log dir: %q", cfg.Paths.LogDir)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7488" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Queue.MaxConcurrent != config.Default().Queue.MaxConcurrent {
		t.Fatalf("unexpected max concurrent: %d", cfg.Queue.MaxConcurrent)
	}
	if cfg.Queue.PriorityTiers {
		t.Fatal("expected priority tiers disabled by default")
	}
	if cfg.Queue.BatchSize != 50 {
		t.Fatalf("unexpected batch size: %d", cfg.Queue.BatchSize)
	}
	if cfg.QueueDBPath() != filepath.Join(wantData, "queue.db") {
		t.Fatalf("unexpected queue db path: %q", cfg.QueueDBPath())
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "dynq.toml")

	type environment struct {
		Name string `toml:"name"`
		URL  string `toml:"url"`
	}
	type payload struct {
		Queue struct {
			MaxConcurrent int  `toml:"max_concurrent"`
			PriorityTiers bool `toml:"priority_tiers"`
		} `toml:"queue"`
		Events struct {
			KafkaBrokers []string `toml:"kafka_brokers"`
		} `toml:"events"`
		Environments []environment `toml:"environments"`
	}
	custom := payload{}
	custom.Queue.MaxConcurrent = 5
	custom.Queue.PriorityTiers = true
	custom.Events.KafkaBrokers = []string{" broker-1:9092 ", ""}
	custom.Environments = []environment{{Name: "Target", URL: "https://crm.example.com/api/"}}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Queue.MaxConcurrent != 5 {
		t.Fatalf("expected max concurrent 5, got %d", cfg.Queue.MaxConcurrent)
	}
	if !cfg.Queue.PriorityTiers {
		t.Fatal("expected priority tiers enabled")
	}
	if len(cfg.Events.KafkaBrokers) != 1 || cfg.Events.KafkaBrokers[0] != "broker-1:9092" {
		t.Fatalf("expected trimmed broker list, got %v", cfg.Events.KafkaBrokers)
	}

	env, ok := cfg.Environment("target")
	if !ok {
		t.Fatal("expected environment lookup to be case-insensitive")
	}
	if env.URL != "https://crm.example.com/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", env.URL)
	}
	if env.TimeoutSeconds != 120 || env.MaxAttempts != 3 {
		t.Fatalf("expected environment defaults, got timeout=%d attempts=%d", env.TimeoutSeconds, env.MaxAttempts)
	}
}

func TestEnvironmentTokenFallsBackToEnv(t *testing.T) {
	t.Setenv("DYNQ_API_TOKEN", "env-token")
	configPath := filepath.Join(t.TempDir(), "dynq.toml")
	content := `
[[environments]]
name = "source"
url = "https://source.example.com"

[[environments]]
name = "target"
url = "https://target.example.com"
token = "file-token"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	source, _ := cfg.Environment("source")
	if source.Token != "env-token" {
		t.Fatalf("expected env fallback token, got %q", source.Token)
	}
	target, _ := cfg.Environment("target")
	if target.Token != "file-token" {
		t.Fatalf("expected file token to win, got %q", target.Token)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"zero_concurrency", "[queue]\nmax_concurrent = -1\n", "queue.max_concurrent"},
		{"bad_format", "[logging]\nformat = \"xml\"\n", "logging.format"},
		{"bad_level", "[logging]\nlevel = \"trace\"\n", "logging.level"},
		{"missing_env_name", "[[environments]]\nurl = \"https://a.example.com\"\n", "name must be set"},
		{"relative_url", "[[environments]]\nname = \"a\"\nurl = \"crm/api\"\n", "absolute URL"},
		{"unknown_key", "[queue]\nmax_concurent = 2\n", "unknown keys queue.max_concurent"},
		{"duplicate_env", "[[environments]]\nname = \"a\"\nurl = \"https://a.example.com\"\n[[environments]]\nname = \"A\"\nurl = \"https://b.example.com\"\n", "duplicate"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			configPath := filepath.Join(t.TempDir(), "dynq.toml")
			if err := os.WriteFile(configPath, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("write config: %v", err)
			}
			_, _, _, err := config.Load(configPath)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCreateSampleLoads(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected sample config to exist")
	}
	if _, ok := cfg.Environment("target"); !ok {
		t.Fatal("expected sample to define the target environment")
	}
}
