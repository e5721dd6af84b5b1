package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-trampoline/engine"
	"github.com/wippyai/wasm-trampoline/hostid"
)

// fileConfig is the optional -config file.
type fileConfig struct {
	Host      *hostid.Identity `yaml:"host"`
	Mode      string           `yaml:"mode" validate:"omitempty,oneof=auto compiled fallback"`
	Rules     string           `yaml:"rules"`
	Name      string           `yaml:"name"`
	Start     []string         `yaml:"start"`
	Engine    engine.Config    `yaml:"engine"`
	FlagCells uint32           `yaml:"flag_cells" validate:"lte=4096"`
}

var validate = validator.New()

func parseConfig(data []byte) (*fileConfig, error) {
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func loadConfig(path string) (*fileConfig, error) {
	if path == "" {
		return &fileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return parseConfig(data)
}
