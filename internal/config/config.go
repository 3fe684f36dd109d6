package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string        `json:"log_level" yaml:"log_level"`
	Ingest   IngestConfig  `json:"ingest" yaml:"ingest"`
	Rules    RulesConfig   `json:"rules" yaml:"rules"`
	API      APIConfig     `json:"api" yaml:"api"`
	Storage  StorageConfig `json:"storage" yaml:"storage"`
	Feed     FeedConfig    `json:"feed" yaml:"feed"`
	Alerts   AlertsConfig  `json:"alerts" yaml:"alerts"`
}

type IngestConfig struct {
	REST  RESTConfig  `json:"rest" yaml:"rest"`
	Kafka KafkaConfig `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

// RulesConfig carries the anomaly thresholds. Hours are local hour-of-day in
// the configured timezone, both bounds inclusive.
type RulesConfig struct {
	Timezone         string  `json:"timezone" yaml:"timezone"`
	OpenHourStart    int     `json:"open_hour_start" yaml:"open_hour_start"`
	OpenHourEnd      int     `json:"open_hour_end" yaml:"open_hour_end"`
	TemperatureLimit float64 `json:"temperature_limit" yaml:"temperature_limit"`
	StockWarnRatio   float64 `json:"stock_warn_ratio" yaml:"stock_warn_ratio"`
	StockCritRatio   float64 `json:"stock_crit_ratio" yaml:"stock_crit_ratio"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn"`
}

// FeedConfig controls the change-feed fan-out. The kafka mirror is optional;
// the in-process broker always runs.
type FeedConfig struct {
	Buffer int             `json:"buffer" yaml:"buffer"`
	Kafka  FeedKafkaConfig `json:"kafka" yaml:"kafka"`
}

type FeedKafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			REST:  RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka: KafkaConfig{Enabled: false},
		},
		Rules: RulesConfig{
			Timezone:         "UTC",
			OpenHourStart:    6,
			OpenHourEnd:      22,
			TemperatureLimit: 45,
			StockWarnRatio:   0.20,
			StockCritRatio:   0.10,
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Driver: "sqlite", DSN: "file:fuelwatch.db?_pragma=busy_timeout(5000)"},
		Feed:    FeedConfig{Buffer: 64, Kafka: FeedKafkaConfig{Enabled: false}},
		Alerts:  AlertsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Rules.Timezone == "" {
		cfg.Rules.Timezone = "UTC"
	}
	if cfg.Rules.TemperatureLimit <= 0 {
		cfg.Rules.TemperatureLimit = 45
	}
	if cfg.Rules.StockWarnRatio <= 0 {
		cfg.Rules.StockWarnRatio = 0.20
	}
	if cfg.Rules.StockCritRatio <= 0 {
		cfg.Rules.StockCritRatio = 0.10
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Feed.Buffer <= 0 {
		cfg.Feed.Buffer = 64
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Feed.Kafka.Enabled {
		if len(cfg.Feed.Kafka.Brokers) == 0 || cfg.Feed.Kafka.Topic == "" {
			return errors.New("feed.kafka requires brokers and topic")
		}
	}
	if cfg.Rules.OpenHourStart < 0 || cfg.Rules.OpenHourStart > 23 {
		return fmt.Errorf("rules.open_hour_start out of range: %d", cfg.Rules.OpenHourStart)
	}
	if cfg.Rules.OpenHourEnd < 0 || cfg.Rules.OpenHourEnd > 23 {
		return fmt.Errorf("rules.open_hour_end out of range: %d", cfg.Rules.OpenHourEnd)
	}
	if cfg.Rules.OpenHourStart > cfg.Rules.OpenHourEnd {
		return errors.New("rules.open_hour_start must not exceed rules.open_hour_end")
	}
	if cfg.Rules.StockCritRatio >= cfg.Rules.StockWarnRatio {
		return errors.New("rules.stock_crit_ratio must be below rules.stock_warn_ratio")
	}
	if _, err := time.LoadLocation(cfg.Rules.Timezone); err != nil {
		return fmt.Errorf("rules.timezone invalid: %w", err)
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Save(m.path, cfg); err != nil {
		return err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
