package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Broker  BrokerConfig  `yaml:"broker"`
	Store   StoreConfig   `yaml:"store"`
	NATS    NATSConfig    `yaml:"nats"`
	Web     WebConfig     `yaml:"web"`
	Journal JournalConfig `yaml:"journal"`
	Roles   RolesConfig   `yaml:"roles"`
	Debug   bool          `yaml:"debug"`
}

type BrokerConfig struct {
	DelegationTTL time.Duration `yaml:"delegation_ttl"`
	ReapInterval  time.Duration `yaml:"reap_interval"`
}

type StoreConfig struct {
	DefaultTag string `yaml:"default_tag"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type WebConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

// RolesConfig maps semantic LLM roles to request defaults. The provider behind
// every role is the delegating one; the model id travels verbatim inside the
// delegation directive so the agent knows what to run.
type RolesConfig struct {
	Main     RoleConfig `yaml:"main"`
	Research RoleConfig `yaml:"research"`
	Fallback RoleConfig `yaml:"fallback"`
}

type RoleConfig struct {
	Model       string   `yaml:"model"`
	MaxTokens   int      `yaml:"max_tokens"`
	Temperature *float64 `yaml:"temperature"`
}

func defaults() Config {
	return Config{
		Broker: BrokerConfig{
			DelegationTTL: 30 * time.Minute,
			ReapInterval:  30 * time.Second,
		},
		Store: StoreConfig{
			DefaultTag: "master",
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Journal: JournalConfig{
			Path: "data/taskmaster.db",
		},
		Roles: RolesConfig{
			Main:     RoleConfig{Model: "claude-sonnet-4-5", MaxTokens: 64000},
			Research: RoleConfig{Model: "claude-sonnet-4-5", MaxTokens: 64000},
			Fallback: RoleConfig{Model: "claude-haiku-4-5", MaxTokens: 32000},
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("TASKMASTER_CONFIG")
	if path == "" {
		path = "config/taskmaster.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TASKMASTER_DELEGATION_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Broker.DelegationTTL = d
		}
	}
	if v := os.Getenv("TASKMASTER_DEFAULT_TAG"); v != "" {
		cfg.Store.DefaultTag = v
	}
	if v := os.Getenv("TASKMASTER_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("TASKMASTER_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("TASKMASTER_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv("TASKMASTER_DEBUG"); v != "" {
		cfg.Debug = v == "1" || v == "true"
	}
}
