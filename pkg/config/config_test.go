package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Module.Name != "echo" {
		t.Errorf("module name = %q, want echo", cfg.Module.Name)
	}
	if cfg.Server.RPCPort != 9000 || cfg.Server.AdminPort != 8080 {
		t.Errorf("server ports = %d/%d", cfg.Server.RPCPort, cfg.Server.AdminPort)
	}
	if cfg.Kafka.CaptureTopic != "module-capture" {
		t.Errorf("capture topic = %q", cfg.Kafka.CaptureTopic)
	}
	if cfg.Registry.KeyPrefix != "pipeline:modules" {
		t.Errorf("registry key prefix = %q", cfg.Registry.KeyPrefix)
	}
	if cfg.Registry.TTL <= cfg.Registry.Interval {
		t.Errorf("registry ttl %v must exceed announce interval %v", cfg.Registry.TTL, cfg.Registry.Interval)
	}
	if cfg.Capture.Enabled || cfg.Registry.Enabled {
		t.Error("capture and registry must default to disabled")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
module:
  name: echo-staging
server:
  rpcPort: 9100
capture:
  enabled: true
  bufferSize: 50
registry:
  enabled: true
  interval: 10s
  ttl: 30s
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Module.Name != "echo-staging" {
		t.Errorf("module name = %q", cfg.Module.Name)
	}
	if cfg.Server.RPCPort != 9100 {
		t.Errorf("rpc port = %d", cfg.Server.RPCPort)
	}
	if !cfg.Capture.Enabled || cfg.Capture.BufferSize != 50 {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	if cfg.Registry.Interval != 10*time.Second || cfg.Registry.TTL != 30*time.Second {
		t.Errorf("registry = %+v", cfg.Registry)
	}
	// Unset fields keep their defaults.
	if cfg.Server.AdminPort != 8080 {
		t.Errorf("admin port = %d, want default 8080", cfg.Server.AdminPort)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ECHO_MODULE_NAME", "echo-env")
	t.Setenv("ECHO_SERVER_RPC_PORT", "9200")
	t.Setenv("ECHO_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("ECHO_CAPTURE_ENABLED", "true")
	t.Setenv("ECHO_LOGGING_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Module.Name != "echo-env" {
		t.Errorf("module name = %q", cfg.Module.Name)
	}
	if cfg.Server.RPCPort != 9200 {
		t.Errorf("rpc port = %d", cfg.Server.RPCPort)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[0] != "k1:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if !cfg.Capture.Enabled {
		t.Error("capture must be enabled via env")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %q", cfg.Logging.Level)
	}
}

func TestLoadRejectsEmptyModuleName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("module:\n  name: \"\"\n"), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "module.name") {
		t.Errorf("err = %v, want module.name validation error", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5432, Database: "pipeline",
		User: "svc", Password: "secret", SSLMode: "disable",
	}
	want := "host=db port=5432 user=svc password=secret dbname=pipeline sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
