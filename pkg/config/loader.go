package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML config file, expands environment references, decodes it,
// applies defaults and validates the result.
//
// An empty path yields a default (development) configuration built entirely
// from environment variables and profile defaults.
func Load(path string) (*Config, error) {
	if err := LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := decode(raw, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if env := os.Getenv("AXIAL_ENV"); env != "" && cfg.Environment == "" {
		cfg.Environment = Environment(env)
	}
	if key := os.Getenv("AXIAL_LLM_API_KEY"); key != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = key
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode parses YAML into a generic map, expands env references inside all
// string values, then decodes into Config via mapstructure so yaml tags and
// weak typing both apply.
func decode(raw []byte, cfg *Config) error {
	var tree map[string]interface{}
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return err
	}
	tree = expandTree(tree)

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(tree)
}

func expandTree(tree map[string]interface{}) map[string]interface{} {
	for key, value := range tree {
		tree[key] = expandValue(value)
	}
	return tree
}

func expandValue(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return expandEnvVars(v)
	case map[string]interface{}:
		return expandTree(v)
	case []interface{}:
		for i, item := range v {
			v[i] = expandValue(item)
		}
		return v
	default:
		return value
	}
}
