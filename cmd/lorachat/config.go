package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arloliu/go-lora/lora"
	"github.com/arloliu/go-lora/serial"
)

// chatConfig holds the lorachat settings loaded from YAML.
type chatConfig struct {
	Port         string `yaml:"port"`
	BaudRate     int    `yaml:"baud"`
	AckTimeoutMS int    `yaml:"ack_timeout_ms"`
	MaxRetries   int    `yaml:"max_retries"`
}

// loadConfig reads the configuration from path. A missing file yields the
// defaults with no error so the CLI works from flags alone.
func loadConfig(path string) (*chatConfig, error) {
	cfg := &chatConfig{
		BaudRate:     serial.DefaultBaudRate,
		AckTimeoutMS: int(lora.DefaultAckTimeout.Milliseconds()),
		MaxRetries:   lora.DefaultMaxRetries,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
