package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	ListenAddr   string              `json:"listen_addr" yaml:"listen_addr"`
	Database     DatabaseConfig      `json:"database" yaml:"database"`
	Auth         AuthConfig          `json:"auth" yaml:"auth"`
	Security     SecurityConfig      `json:"security" yaml:"security"`
	Completion   CompletionConfig    `json:"completion" yaml:"completion"`
	FieldService FieldServiceConfig  `json:"field_service" yaml:"field_service"`
	History      HistoryConfig       `json:"history" yaml:"history"`
	Observer     ObservabilityConfig `json:"observability" yaml:"observability"`
	Limits       RateLimitConfig     `json:"limits" yaml:"limits"`
}

type DatabaseConfig struct {
	DSN            string `json:"dsn" yaml:"dsn"`
	MaxConns       int32  `json:"max_conns" yaml:"max_conns"`
	MigrationsPath string `json:"migrations_path" yaml:"migrations_path"`
}

type AuthConfig struct {
	SessionTTL string `json:"session_ttl" yaml:"session_ttl"`
	CookieName string `json:"cookie_name" yaml:"cookie_name"`
}

type SecurityConfig struct {
	AdminToken string `json:"admin_token" yaml:"admin_token"`
}

type CompletionConfig struct {
	BaseURL    string `json:"base_url" yaml:"base_url"`
	APIKey     string `json:"api_key" yaml:"api_key"`
	Model      string `json:"model" yaml:"model"`
	TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`
	MaxTokens  int    `json:"max_tokens" yaml:"max_tokens"`
}

type FieldServiceConfig struct {
	BaseURL    string `json:"base_url" yaml:"base_url"`
	APIKey     string `json:"api_key" yaml:"api_key"`
	TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`
}

type HistoryConfig struct {
	SnapshotPath string `json:"snapshot_path" yaml:"snapshot_path"`
}

type ObservabilityConfig struct {
	OTLPEndpoint string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	ServiceName  string  `json:"service_name" yaml:"service_name"`
	SampleRatio  float64 `json:"sample_ratio" yaml:"sample_ratio"`
}

type RateLimitConfig struct {
	DiagnoseRPM int `json:"diagnose_rpm" yaml:"diagnose_rpm"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr: ":8080",
		Database: DatabaseConfig{
			MaxConns:       10,
			MigrationsPath: "./migrations",
		},
		Auth: AuthConfig{
			SessionTTL: "8h",
			CookieName: "hvac_session",
		},
		Completion: CompletionConfig{
			Model:      "gpt-4o-mini",
			TimeoutSec: 25,
			MaxTokens:  2048,
		},
		FieldService: FieldServiceConfig{
			TimeoutSec: 30,
		},
		Observer: ObservabilityConfig{
			ServiceName: "diag-api",
			SampleRatio: 1,
		},
		Limits: RateLimitConfig{
			DiagnoseRPM: 10,
		},
	}
}

func LoadServerConfig(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse json config: %w", err)
		}
	default:
		var yamlErr error
		if yamlErr = yaml.Unmarshal(data, &cfg); yamlErr == nil {
			break
		}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.New("config format not recognized (expected yaml/json)")
		}
	}
	normalizeConfig(&cfg)
	return cfg, nil
}

func normalizeConfig(cfg *ServerConfig) {
	if cfg == nil {
		return
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if strings.TrimSpace(cfg.Database.MigrationsPath) == "" {
		cfg.Database.MigrationsPath = "./migrations"
	}
	if strings.TrimSpace(cfg.Auth.CookieName) == "" {
		cfg.Auth.CookieName = "hvac_session"
	}
	if strings.TrimSpace(cfg.Auth.SessionTTL) == "" {
		cfg.Auth.SessionTTL = "8h"
	}
	if strings.TrimSpace(cfg.Completion.Model) == "" {
		cfg.Completion.Model = "gpt-4o-mini"
	}
	if cfg.Completion.TimeoutSec <= 0 {
		cfg.Completion.TimeoutSec = 25
	}
	if cfg.Completion.MaxTokens <= 0 {
		cfg.Completion.MaxTokens = 2048
	}
	if cfg.FieldService.TimeoutSec <= 0 {
		cfg.FieldService.TimeoutSec = 30
	}
	if cfg.Observer.SampleRatio <= 0 || cfg.Observer.SampleRatio > 1 {
		cfg.Observer.SampleRatio = 1
	}
	if strings.TrimSpace(cfg.Observer.ServiceName) == "" {
		cfg.Observer.ServiceName = "diag-api"
	}
	if cfg.Limits.DiagnoseRPM <= 0 {
		cfg.Limits.DiagnoseRPM = 10
	}
}
