package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the YAML-backed server configuration. Connection settings and
// secrets stay in the environment; the file carries the content knobs.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Questions struct {
		BankPath string `yaml:"bank_path"`
	} `yaml:"questions"`
	Gateway struct {
		JoinBaseURL string `yaml:"join_base_url"`
	} `yaml:"gateway"`
}

func defaultConfig() *Config {
	var config Config
	config.Server.Port = "8080"
	config.Questions.BankPath = "questions.yaml"
	config.Gateway.JoinBaseURL = "http://localhost:3000/join"
	return &config
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Warn().Str("path", path).Msg("config file not found, using defaults")
		return defaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
