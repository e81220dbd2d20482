package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pipeline.LengthKm != 20 || cfg.Pipeline.SensorIntervalKm != 1 {
		t.Errorf("Unexpected pipeline defaults: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.TickInterval != 3*time.Second {
		t.Errorf("Expected 3s tick, got %v", cfg.Pipeline.TickInterval)
	}
	if !cfg.Pipeline.AutoStart || cfg.Pipeline.AutoDetect {
		t.Errorf("Unexpected simulation flags: %+v", cfg.Pipeline)
	}
	if cfg.Redis.Enabled || cfg.Kafka.Enabled {
		t.Error("Integrations should be disabled by default")
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PIPELINE_LENGTH_KM", "5")
	t.Setenv("SENSOR_INTERVAL_KM", "0.5")
	t.Setenv("TICK_INTERVAL_MS", "250")
	t.Setenv("LEAK_AUTO_DETECT", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Pipeline.LengthKm != 5 || cfg.Pipeline.SensorIntervalKm != 0.5 {
		t.Errorf("Overrides not applied: %+v", cfg.Pipeline)
	}
	if cfg.Pipeline.TickInterval != 250*time.Millisecond {
		t.Errorf("Expected 250ms tick, got %v", cfg.Pipeline.TickInterval)
	}
	if !cfg.Pipeline.AutoDetect {
		t.Error("Expected auto detect enabled")
	}
	if len(cfg.Kafka.Brokers) != 2 {
		t.Errorf("Expected 2 brokers, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("TICK_INTERVAL_MS", "fast")
	t.Setenv("SIMULATION_AUTOSTART", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Pipeline.TickInterval != 3*time.Second || !cfg.Pipeline.AutoStart {
		t.Errorf("Malformed values should fall back to defaults: %+v", cfg.Pipeline)
	}
}

func TestLoad_RejectsInvalidPipeline(t *testing.T) {
	t.Setenv("SENSOR_INTERVAL_KM", "0")
	t.Setenv("TICK_INTERVAL_MS", "-5")

	if _, err := Load(); err == nil {
		t.Error("Expected validation error")
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "n", SSLMode: "disable"}
	want := "host=db port=5433 user=u password=p dbname=n sslmode=disable"
	if got := d.ConnectionString(); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}
