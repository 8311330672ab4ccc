package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

var validate = validator.New()

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, err
	}

	// apply defaults
	if err := cfg.Games.ApplyDefaults(cfg.Defaults); err != nil {
		return nil, err
	}

	// validate
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("struct validation failed: %w", err)
	}

	for code, game := range cfg.Games {
		if err := validate.Struct(game); err != nil {
			return nil, fmt.Errorf("game %s validation failed: %w", code, err)
		}
		if len(game.Constraints.MaxDup) > game.DupDepth {
			return nil, fmt.Errorf("game %s: max_dup has %d entries, dup_depth is %d",
				code, len(game.Constraints.MaxDup), game.DupDepth)
		}
		if _, err := game.SignatureFilter(); err != nil {
			return nil, fmt.Errorf("game %s: %w", code, err)
		}
	}

	return &cfg, nil
}
