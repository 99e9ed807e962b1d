package gateway

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type BudgetConfig struct {
	Limit         int `yaml:"limit"`
	WindowSeconds int `yaml:"window_seconds"`
}

type redisConfig struct {
	Addr    string `yaml:"addr"`
	Channel string `yaml:"channel"`
}

// FileConfig is the optional yaml overlay for the gateway.
type FileConfig struct {
	Origins []string                `yaml:"origins"`
	Redis   redisConfig             `yaml:"redis"`
	Budgets map[string]BudgetConfig `yaml:"budgets"`
}

// LoadFileConfig loads the overlay from path; an empty path yields the
// zero config.
func LoadFileConfig(path string) (FileConfig, error) {
	var cfg FileConfig
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// MergeBudgets applies the overlay onto the stock budgets. Unknown
// kinds in the overlay are ignored; zero limits keep the default.
func MergeBudgets(base Budgets, overlay map[string]BudgetConfig) Budgets {
	merged := make(Budgets, len(base))
	for kind, budget := range base {
		merged[kind] = budget
	}
	for name, override := range overlay {
		kind := EventKind(name)
		if _, known := capabilityFor(kind); !known {
			continue
		}
		budget := merged[kind]
		if override.Limit > 0 {
			budget.Limit = override.Limit
		}
		if override.WindowSeconds > 0 {
			budget.Window = time.Duration(override.WindowSeconds) * time.Second
		}
		merged[kind] = budget
	}
	return merged
}
