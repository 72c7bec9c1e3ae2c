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

	"vigil/internal/model"
)

type Config struct {
	LogLevel  string                   `json:"log_level" yaml:"log_level"`
	LogFormat string                   `json:"log_format" yaml:"log_format"`
	Streams   []model.StreamDescriptor `json:"streams" yaml:"streams"`
	Bus       BusConfig                `json:"bus" yaml:"bus"`
	Source    SourceConfig             `json:"source" yaml:"source"`
	Detection DetectionConfig          `json:"detection" yaml:"detection"`
	Analytics AnalyticsConfig          `json:"analytics" yaml:"analytics"`
	Storage   StorageConfig            `json:"storage" yaml:"storage"`
	Sinks     SinksConfig              `json:"sinks" yaml:"sinks"`
	API       APIConfig                `json:"api" yaml:"api"`
	Alerts    AlertsConfig             `json:"alerts" yaml:"alerts"`
}

type BusConfig struct {
	Capacity int `json:"capacity" yaml:"capacity"`
}

type SourceConfig struct {
	JoinTimeout      time.Duration `json:"join_timeout" yaml:"join_timeout"`
	Reconnect        bool          `json:"reconnect" yaml:"reconnect"`
	ReconnectBackoff time.Duration `json:"reconnect_backoff" yaml:"reconnect_backoff"`
	MaxBackoff       time.Duration `json:"max_backoff" yaml:"max_backoff"`
	FFmpegPath       string        `json:"ffmpeg_path" yaml:"ffmpeg_path"`
}

type DetectionConfig struct {
	DetectorURL         string        `json:"detector_url" yaml:"detector_url"`
	AnalyzerURL         string        `json:"analyzer_url" yaml:"analyzer_url"`
	BehaviourURL        string        `json:"behaviour_url" yaml:"behaviour_url"`
	CollectDemographics bool          `json:"collect_demographics" yaml:"collect_demographics"`
	BehaviourLabels     []string      `json:"behaviour_labels" yaml:"behaviour_labels"`
	ConfidenceThreshold float64       `json:"confidence_threshold" yaml:"confidence_threshold"`
	WindowSize          int           `json:"window_size" yaml:"window_size"`
	RequestTimeout      time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

type AnalyticsConfig struct {
	AggregationInterval time.Duration `json:"aggregation_interval" yaml:"aggregation_interval"`
	AlertCooldown       time.Duration `json:"alert_cooldown" yaml:"alert_cooldown"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type SinksConfig struct {
	Kafka KafkaConfig `json:"kafka" yaml:"kafka"`
	MQTT  MQTTConfig  `json:"mqtt" yaml:"mqtt"`
}

type KafkaConfig struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Brokers     []string `json:"brokers" yaml:"brokers"`
	StatsTopic  string   `json:"stats_topic" yaml:"stats_topic"`
	AlertsTopic string   `json:"alerts_topic" yaml:"alerts_topic"`
}

type MQTTConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	BrokerURL   string `json:"broker_url" yaml:"broker_url"`
	ClientID    string `json:"client_id" yaml:"client_id"`
	StatsTopic  string `json:"stats_topic" yaml:"stats_topic"`
	AlertsTopic string `json:"alerts_topic" yaml:"alerts_topic"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "json",
		Streams: []model.StreamDescriptor{
			{Name: "Webcam", Source: "/dev/video0", Enabled: true, SamplingRate: 1},
		},
		Bus: BusConfig{Capacity: 32},
		Source: SourceConfig{
			JoinTimeout:      2 * time.Second,
			Reconnect:        false,
			ReconnectBackoff: 1 * time.Second,
			MaxBackoff:       30 * time.Second,
			FFmpegPath:       "ffmpeg",
		},
		Detection: DetectionConfig{
			DetectorURL:         "http://127.0.0.1:8600",
			AnalyzerURL:         "http://127.0.0.1:8601",
			BehaviourURL:        "http://127.0.0.1:8602",
			CollectDemographics: true,
			BehaviourLabels:     []string{"shoplifting", "fainting", "smoking", "lost_child", "accident"},
			ConfidenceThreshold: 0.6,
			WindowSize:          16,
			RequestTimeout:      30 * time.Second,
		},
		Analytics: AnalyticsConfig{
			AggregationInterval: 600 * time.Second,
			AlertCooldown:       30 * time.Second,
		},
		Storage: StorageConfig{Enabled: true, Driver: "sqlite", DSN: "file:vigil.db?_pragma=busy_timeout(5000)"},
		Sinks: SinksConfig{
			Kafka: KafkaConfig{Enabled: false, StatsTopic: "vigil.stats", AlertsTopic: "vigil.alerts"},
			MQTT:  MQTTConfig{Enabled: false, ClientID: "vigil", StatsTopic: "vigil/stats", AlertsTopic: "vigil/alerts"},
		},
		API:    APIConfig{Enabled: true, Addr: ":8085"},
		Alerts: AlertsConfig{StoreLimit: 1000},
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
	if cfg.Bus.Capacity <= 0 {
		cfg.Bus.Capacity = 32
	}
	if cfg.Source.JoinTimeout <= 0 {
		cfg.Source.JoinTimeout = 2 * time.Second
	}
	if cfg.Source.ReconnectBackoff <= 0 {
		cfg.Source.ReconnectBackoff = 1 * time.Second
	}
	if cfg.Source.MaxBackoff <= 0 {
		cfg.Source.MaxBackoff = 30 * time.Second
	}
	if cfg.Source.FFmpegPath == "" {
		cfg.Source.FFmpegPath = "ffmpeg"
	}
	if cfg.Detection.ConfidenceThreshold <= 0 {
		cfg.Detection.ConfidenceThreshold = 0.6
	}
	if cfg.Detection.WindowSize <= 0 {
		cfg.Detection.WindowSize = 16
	}
	if cfg.Detection.RequestTimeout <= 0 {
		cfg.Detection.RequestTimeout = 30 * time.Second
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	for i := range cfg.Streams {
		if cfg.Streams[i].SamplingRate <= 0 {
			cfg.Streams[i].SamplingRate = 1
		}
	}
}

func Validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Streams))
	enabled := 0
	for _, s := range cfg.Streams {
		if s.Name == "" {
			return errors.New("streams entries require a name")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate stream name: %s", s.Name)
		}
		seen[s.Name] = true
		if s.Source == "" {
			return fmt.Errorf("stream %s requires a source", s.Name)
		}
		if s.SamplingRate < 1 {
			return fmt.Errorf("stream %s sampling_rate must be >= 1", s.Name)
		}
		if s.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		return errors.New("at least one enabled stream is required")
	}
	if cfg.Detection.DetectorURL == "" {
		return errors.New("detection.detector_url is required")
	}
	if cfg.Detection.CollectDemographics && cfg.Detection.AnalyzerURL == "" {
		return errors.New("detection.analyzer_url required when collect_demographics is true")
	}
	if len(cfg.Detection.BehaviourLabels) > 0 && cfg.Detection.BehaviourURL == "" {
		return errors.New("detection.behaviour_url required when behaviour_labels are set")
	}
	if cfg.Analytics.AggregationInterval < 0 {
		return errors.New("analytics.aggregation_interval must be >= 0")
	}
	if cfg.Storage.Enabled && cfg.Storage.Driver == "" {
		return errors.New("storage.driver required when storage.enabled is true")
	}
	if cfg.Sinks.Kafka.Enabled {
		if len(cfg.Sinks.Kafka.Brokers) == 0 || cfg.Sinks.Kafka.AlertsTopic == "" {
			return errors.New("sinks.kafka requires brokers and alerts_topic")
		}
	}
	if cfg.Sinks.MQTT.Enabled && cfg.Sinks.MQTT.BrokerURL == "" {
		return errors.New("sinks.mqtt.broker_url required when sinks.mqtt.enabled is true")
	}
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	return nil
}

// EnabledStreams returns the streams the pipeline should run.
func (c *Config) EnabledStreams() []model.StreamDescriptor {
	out := make([]model.StreamDescriptor, 0, len(c.Streams))
	for _, s := range c.Streams {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
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

// NewManagerFromConfig wraps an already-built config, used when no config
// file is given and defaults apply.
func NewManagerFromConfig(cfg *Config) *Manager {
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
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
	if m.path == "" {
		return m.Get(), nil
	}
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

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
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
