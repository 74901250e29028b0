package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Swind/go-task-scheduler/core"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

// TestLoad_OverridesDefaults verifies YAML values are layered over DefaultConfig
// Given: a file setting workers, producers and the task duration
// When: Load is called
// Then: set fields are overridden and unset fields keep their defaults
func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
pool:
  workers: 16
load:
  producers: 3
  task_duration: 2ms
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pool.Workers != 16 {
		t.Errorf("Pool.Workers = %d, want 16", cfg.Pool.Workers)
	}
	if cfg.Load.Producers != 3 {
		t.Errorf("Load.Producers = %d, want 3", cfg.Load.Producers)
	}
	if cfg.Load.TaskDuration != 2*time.Millisecond {
		t.Errorf("Load.TaskDuration = %v, want 2ms", cfg.Load.TaskDuration)
	}
	if cfg.Load.TasksPerProducer != 1000 {
		t.Errorf("Load.TasksPerProducer = %d, want default 1000", cfg.Load.TasksPerProducer)
	}
	if cfg.Pool.ID != "schedbench" {
		t.Errorf("Pool.ID = %q, want default schedbench", cfg.Pool.ID)
	}
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("SCHEDBENCH_METRICS_ADDR", "0.0.0.0:9999")
	path := writeConfig(t, "metrics:\n  enabled: true\n  addr: ${SCHEDBENCH_METRICS_ADDR}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "0.0.0.0:9999" {
		t.Errorf("Metrics = %+v, want enabled on 0.0.0.0:9999", cfg.Metrics)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "zero workers", body: "pool:\n  workers: 0\n"},
		{name: "negative producers", body: "load:\n  producers: -1\n"},
		{name: "malformed yaml", body: "pool: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.body)); err == nil {
				t.Fatal("Load succeeded, want error")
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load of missing file succeeded, want error")
	}
}

func TestConfig_Logger(t *testing.T) {
	cfg := DefaultConfig()
	if _, ok := cfg.Logger().(*core.DefaultLogger); !ok {
		t.Errorf("Logger() = %T, want *core.DefaultLogger", cfg.Logger())
	}
	cfg.Logging.Level = "off"
	if _, ok := cfg.Logger().(*core.NoOpLogger); !ok {
		t.Errorf("Logger() = %T, want *core.NoOpLogger", cfg.Logger())
	}
}
