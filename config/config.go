package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/salesintel/core/allocation"
	"github.com/kilianp07/salesintel/core/knowledge"
	"github.com/kilianp07/salesintel/core/metrics"
	"github.com/kilianp07/salesintel/core/pipeline"
	"github.com/kilianp07/salesintel/core/regression"
	"github.com/kilianp07/salesintel/core/scoring"
	"github.com/kilianp07/salesintel/core/synth"
	"github.com/kilianp07/salesintel/infra/llm"
	"github.com/kilianp07/salesintel/infra/monitoring"
	"github.com/kilianp07/salesintel/infra/mqtt"
)

type Config struct {
	Allocation allocation.Config       `json:"allocation"`
	Generator  synth.Config            `json:"generator"`
	Model      regression.Config       `json:"model"`
	Scoring    scoring.Weights         `json:"scoring"`
	Data       DataConfig              `json:"data"`
	Knowledge  KnowledgeConfig         `json:"knowledge"`
	LLM        llm.Config              `json:"llm"`
	Server     ServerConfig            `json:"server"`
	Schedule   ScheduleConfig          `json:"schedule"`
	MQTT       mqtt.Config             `json:"mqtt"`
	Metrics    metrics.Config          `json:"metrics"`
	Logging    LoggingConfig           `json:"logging"`
	Sentry     monitoring.SentryConfig `json:"sentry"`
}

// DataConfig locates the pipeline artifacts.
type DataConfig struct {
	// Dir is the root holding data/ and models/.
	Dir string `json:"dir"`
}

// KnowledgeConfig controls the knowledge base directory.
type KnowledgeConfig struct {
	Dir string `json:"dir"`
	// Truncate is the number of characters of each document sent to the
	// planner.
	Truncate int  `json:"truncate"`
	Watch    bool `json:"watch"`
	// Debounce coalesces file events before a reload.
	Debounce time.Duration `json:"debounce"`
}

// ServerConfig controls the dashboard API.
type ServerConfig struct {
	Addr string `json:"addr"`
	// TopK is the number of drivers shown in a waterfall.
	TopK int `json:"top_k"`
	// PlanDir receives generated pre-call plans.
	PlanDir string `json:"plan_dir"`
	// MetricsPath serves Prometheus metrics when the prometheus sink is
	// configured. Empty disables it.
	MetricsPath string `json:"metrics_path"`
	// MetricsAddr moves /metrics to a dedicated listener when set.
	MetricsAddr string `json:"metrics_addr"`
}

// ScheduleConfig controls pipeline refreshes.
type ScheduleConfig struct {
	// Cron is a standard five-field expression. Empty disables refreshes.
	Cron string `json:"cron"`
	// RunOnStart runs the pipeline when no artifacts exist yet.
	RunOnStart bool `json:"run_on_start"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	cfg := Config{
		Allocation: allocation.DefaultConfig(),
		Scoring:    scoring.DefaultWeights(),
		Data:       DataConfig{Dir: "."},
		Knowledge:  KnowledgeConfig{Dir: "knowledgedb", Truncate: knowledge.DefaultTruncate, Watch: true, Debounce: 200 * time.Millisecond},
		Server:     ServerConfig{Addr: ":8080", TopK: 5, PlanDir: "output", MetricsPath: "/metrics"},
		Schedule:   ScheduleConfig{RunOnStart: true},
	}
	cfg.Generator.SetDefaults()
	cfg.Model.SetDefaults()
	cfg.Logging.SetDefaults()
	return cfg
}

// Load reads path on top of the defaults and applies K_ environment
// overrides. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides: K_SECTION__KEY sets section.key.
	if err := k.Load(env.Provider("K_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills sections left empty by the file.
func (c *Config) SetDefaults() {
	c.Generator.SetDefaults()
	c.Model.SetDefaults()
	c.LLM.SetDefaults()
	c.MQTT.SetDefaults()
	c.Logging.SetDefaults()
	if c.Data.Dir == "" {
		c.Data.Dir = "."
	}
	if c.Knowledge.Truncate == 0 {
		c.Knowledge.Truncate = knowledge.DefaultTruncate
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	var errs []error
	check := func(section string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", section, err))
		}
	}
	check("allocation", c.Allocation.Validate())
	check("generator", c.Generator.Validate())
	check("model", c.Model.Validate())
	check("llm", c.LLM.Validate())
	check("mqtt", c.MQTT.Validate())
	check("logging", c.Logging.Validate())
	if c.Knowledge.Dir == "" {
		check("knowledge", errors.New("dir is required"))
	}
	if c.Server.Addr == "" {
		check("server", errors.New("addr is required"))
	}
	return errors.Join(errs...)
}

// Pipeline returns the run options derived from the configuration.
func (c Config) Pipeline() pipeline.Options {
	return pipeline.Options{
		Generator:  c.Generator,
		Model:      c.Model,
		Scoring:    c.Scoring,
		Allocation: c.Allocation,
		AckTimeout: c.MQTT.AckTimeout,
	}
}
