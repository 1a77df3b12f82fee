package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MulticastGroup != "239.255.77.77" {
		t.Errorf("MulticastGroup = %s, want 239.255.77.77", cfg.MulticastGroup)
	}
	if cfg.MulticastPort != 7777 {
		t.Errorf("MulticastPort = %d, want 7777", cfg.MulticastPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.MetricsAddr != DefaultMetricsAddr {
		t.Errorf("MetricsAddr = %s, want %s", cfg.MetricsAddr, DefaultMetricsAddr)
	}
}

func TestLoadFromFileDefaults(t *testing.T) {
	cfg, err := LoadFromFile("/nonexistent/path.yaml")
	if err != nil {
		t.Fatalf("LoadFromFile should return defaults for missing file, got error: %v", err)
	}
	if cfg.MulticastPort != DefaultMulticastPort {
		t.Errorf("expected default MulticastPort %d, got %d", DefaultMulticastPort, cfg.MulticastPort)
	}
}

func TestLoadFromFileValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.yaml")

	yamlDoc := `
node_id: "test-node-42"
multicast_port: 9876
auto_join_rooms:
  - public_lobby
  - public_dev
log_level: debug
metrics_addr: "127.0.0.1:9191"
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.NodeID != "test-node-42" {
		t.Errorf("NodeID = %s, want test-node-42", cfg.NodeID)
	}
	if cfg.MulticastPort != 9876 {
		t.Errorf("MulticastPort = %d, want 9876", cfg.MulticastPort)
	}
	if len(cfg.AutoJoinRooms) != 2 || cfg.AutoJoinRooms[0] != "public_lobby" {
		t.Errorf("AutoJoinRooms = %v", cfg.AutoJoinRooms)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.MetricsAddr != "127.0.0.1:9191" {
		t.Errorf("MetricsAddr = %s", cfg.MetricsAddr)
	}
}

func TestLoadFromFileInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	os.WriteFile(path, []byte(":::invalid:::"), 0644)

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestEnvOverrides(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("QUIETMESH_NODE_ID", "env-node")
	t.Setenv("QUIETMESH_LOG_LEVEL", "debug")
	t.Setenv("QUIETMESH_METRICS_ADDR", "0.0.0.0:9292")

	cfg.ApplyEnvOverrides()

	if cfg.NodeID != "env-node" {
		t.Errorf("NodeID = %s, want env-node", cfg.NodeID)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.MetricsAddr != "0.0.0.0:9292" {
		t.Errorf("MetricsAddr = %s, want 0.0.0.0:9292", cfg.MetricsAddr)
	}
}

func TestValidateValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidateBadPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MulticastPort = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for port 0")
	}

	cfg.MulticastPort = 99999
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for port 99999")
	}
}

func TestValidateBadLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for invalid log level")
	}
}

func TestValidateEmptyRoomName(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoJoinRooms = []string{"public_ok", ""}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for empty room name")
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.yaml")

	orig := DefaultConfig()
	orig.NodeID = "save-test"
	orig.MulticastPort = 4242
	orig.AutoJoinRooms = []string{"public_news"}

	if err := orig.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if loaded.NodeID != "save-test" {
		t.Errorf("NodeID = %s, want save-test", loaded.NodeID)
	}
	if loaded.MulticastPort != 4242 {
		t.Errorf("MulticastPort = %d, want 4242", loaded.MulticastPort)
	}
	if len(loaded.AutoJoinRooms) != 1 || loaded.AutoJoinRooms[0] != "public_news" {
		t.Errorf("AutoJoinRooms = %v", loaded.AutoJoinRooms)
	}
}
