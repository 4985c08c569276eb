package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/salesintel/core/allocation"
	"github.com/kilianp07/salesintel/core/runlog"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `allocation:
  total_budget: 80
  per_entity_cap: 3
generator:
  customers: 200
  seed: 7
mqtt:
  enabled: true
  broker: "tcp://localhost:1883"
  client_id: "cli"
  username: "user"
  password: "pass"
  ack_topic: "salesintel/ack/+"
  ack_timeout: 3s
  use_tls: false
metrics:
  sinks:
    - type: "nop"
schedule:
  cron: "0 6 * * *"
logging:
  backend: sqlite
  path: runs.db
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"total_budget", cfg.Allocation.TotalBudget, 80},
		{"per_entity_cap", cfg.Allocation.PerEntityCap, 3},
		{"request_divisor", cfg.Allocation.RequestDivisor, allocation.DefaultRequestDivisor},
		{"customers", cfg.Generator.Customers, 200},
		{"seed", cfg.Generator.Seed, uint64(7)},
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "cli"},
		{"username", cfg.MQTT.Username, "user"},
		{"password", cfg.MQTT.Password, "pass"},
		{"ack_topic", cfg.MQTT.AckTopic, "salesintel/ack/+"},
		{"ack_timeout", cfg.MQTT.AckTimeout, 3 * time.Second},
		{"use_tls", cfg.MQTT.UseTLS, false},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"cron", cfg.Schedule.Cron, "0 6 * * *"},
		{"run_on_start", cfg.Schedule.RunOnStart, true},
		{"knowledge.dir", cfg.Knowledge.Dir, "knowledgedb"},
		{"knowledge.watch", cfg.Knowledge.Watch, true},
		{"server.addr", cfg.Server.Addr, ":8080"},
		{"logging.backend", cfg.Logging.Backend, runlog.BackendSQLite},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v", c.name, c.got)
		}
	}
	assert.Equal(t, 3*time.Second, cfg.Pipeline().AckTimeout)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, allocation.DefaultConfig(), cfg.Allocation)
	assert.Equal(t, 500, cfg.Generator.Customers)
	assert.Equal(t, "data/runs.jsonl", cfg.Logging.Path)
	assert.Equal(t, "gemini-2.5-flash", cfg.LLM.Model)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("K_ALLOCATION__TOTAL_BUDGET", "42")
	t.Setenv("K_SERVER__ADDR", ":9999")
	path := writeFile(t, "config.json", `{"allocation": {"total_budget": 10}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Allocation.TotalBudget)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoad_EnvZeroCapIsInvalid(t *testing.T) {
	t.Setenv("K_ALLOCATION__PER_ENTITY_CAP", "0")
	_, err := Load("")
	assert.ErrorIs(t, err, allocation.ErrInvalidArgument)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load(writeFile(t, "config.toml", ""))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "config.yaml", "allocation:\n  total_budget: -1\n"))
	assert.ErrorIs(t, err, allocation.ErrInvalidArgument)

	_, err = Load(writeFile(t, "config.yaml", "allocation:\n  per_entity_cap: 0\n"))
	assert.ErrorIs(t, err, allocation.ErrInvalidArgument)

	_, err = Load(writeFile(t, "config.yaml", "mqtt:\n  enabled: true\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "config.yaml", "logging:\n  backend: csv\n"))
	assert.Error(t, err)
}

func TestLoggingConfig_Open(t *testing.T) {
	c := LoggingConfig{Path: filepath.Join(t.TempDir(), "runs.jsonl")}
	c.SetDefaults()
	require.NoError(t, c.Validate())
	store, err := c.Open()
	require.NoError(t, err)
	defer store.Close()
	assert.IsType(t, &runlog.JSONLStore{}, store)
}
