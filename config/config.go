package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/sunledger/api"
	"github.com/kilianp07/sunledger/core/metrics"
	"github.com/kilianp07/sunledger/infra/inverter"
	"github.com/kilianp07/sunledger/infra/monitoring"
	"github.com/kilianp07/sunledger/infra/mqtt"
)

type Config struct {
	Inverter   inverter.Config   `json:"inverter"`
	Battery    BatteryConfig     `json:"battery"`
	Tariff     TariffConfig      `json:"tariff"`
	Ledger     LedgerConfig      `json:"ledger"`
	Planner    PlannerConfig     `json:"planner"`
	MQTT       mqtt.Config       `json:"mqtt"`
	Metrics    metrics.Config    `json:"metrics"`
	API        api.Config        `json:"api"`
	Logging    LoggingConfig     `json:"logging"`
	Monitoring monitoring.Config `json:"monitoring"`
	Loop       LoopConfig        `json:"loop"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
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
	// Optional environment overrides, e.g. K_BATTERY__CAPACITY_KWH=10
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section with its defaults.
func (c *Config) SetDefaults() {
	c.Inverter.SetDefaults()
	c.Battery.SetDefaults()
	c.Tariff.SetDefaults()
	c.Ledger.SetDefaults()
	c.Planner.SetDefaults()
	c.MQTT.SetDefaults()
	c.API.SetDefaults()
	c.Logging.SetDefaults()
	c.Loop.SetDefaults()
}

// Validate checks every section and reports the first error.
func (c Config) Validate() error {
	validators := []func() error{
		c.Inverter.Validate,
		c.Battery.Validate,
		c.Tariff.Validate,
		c.Ledger.Validate,
		c.Planner.Validate,
		c.MQTT.Validate,
		c.API.Validate,
		c.Logging.Validate,
		c.Loop.Validate,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}
