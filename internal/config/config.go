package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	NATS      NATSConfig      `yaml:"nats"`
	Store     StoreConfig     `yaml:"store"`
	Web       WebConfig       `yaml:"web"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	GM        GMConfig        `yaml:"gm"`
	Vault     VaultConfig     `yaml:"vault"`
	Nodes     NodesConfig     `yaml:"nodes"`
}

type TelegramConfig struct {
	Token     string  `yaml:"token"`
	AllowFrom []int64 `yaml:"allow_from"`
	ChatID    int64   `yaml:"chat_id"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	// ProgressReport is a schedule document (cron, interval or once)
	// driving periodic task progress reports to the user.
	ProgressReport string `yaml:"progress_report"`
}

type GMConfig struct {
	// BaseTokenBudget is multiplied by the per-complexity factor when a
	// PM is appointed.
	BaseTokenBudget int64 `yaml:"base_token_budget"`
	// MaxReworkRounds bounds the review/rework cycle per task before the
	// GM abandons it.
	MaxReworkRounds int `yaml:"max_rework_rounds"`
	// AckTimeout is how long the GM waits for an assignment ack.
	AckTimeout time.Duration `yaml:"ack_timeout"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

type NodesConfig struct {
	// Backend selects how agent nodes are hosted: "nats" keeps agents
	// in-process behind NATS tunnels, "docker" launches a container per
	// node.
	Backend       string        `yaml:"backend"`
	Image         string        `yaml:"image"`
	MaxContainers int           `yaml:"max_containers"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
}

func defaults() Config {
	return Config{
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Store: StoreConfig{
			Path: "data/agency.db",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Scheduler: SchedulerConfig{
			PollInterval:   30 * time.Second,
			ProgressReport: `{"kind":"interval","interval_ms":7200000}`,
		},
		GM: GMConfig{
			BaseTokenBudget: 1_000_000,
			MaxReworkRounds: 3,
			AckTimeout:      30 * time.Second,
		},
		Nodes: NodesConfig{
			Backend:       "nats",
			Image:         "agency-node:latest",
			MaxContainers: 5,
			IdleTimeout:   30 * time.Minute,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("AGENCY_CONFIG")
	if path == "" {
		path = "config/agency.yaml"
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
	if v := os.Getenv("AGENCY_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("AGENCY_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("AGENCY_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("AGENCY_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("AGENCY_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("AGENCY_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
	if v := os.Getenv("AGENCY_NODES_BACKEND"); v != "" {
		cfg.Nodes.Backend = v
	}
}
