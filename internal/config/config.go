package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP struct {
		Port int `yaml:"port"`
	} `yaml:"http"`

	API struct {
		BaseURL         string `yaml:"base_url"`
		APIKey          string `yaml:"api_key"`
		APIExtra        string `yaml:"api_extra"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
		RatePerSecond   float64 `yaml:"rate_per_second"`
		RateBurst       int    `yaml:"rate_burst"`
	} `yaml:"api"`

	Webhook struct {
		EventURL       string `yaml:"event_url"`
		CheckUpdateURL string `yaml:"check_update_url"`
	} `yaml:"webhook"`

	Env struct {
		URL         string `yaml:"url"`
		ConfigToken string `yaml:"config_token"`
	} `yaml:"env"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Schedule struct {
		Timezone     string `yaml:"timezone"`
		WorkingHours string `yaml:"working_hours"` // "08:30-12:15,15:45-18:00"
		SlotMinutes  int    `yaml:"slot_minutes"`
		BusinessDays string `yaml:"business_days"` // ISO weekdays "1,2,3,4,5"
		VisibleDays  int    `yaml:"visible_days"`
	} `yaml:"schedule"`

	Sync struct {
		PollIntervalMS int `yaml:"poll_interval_ms"`
	} `yaml:"sync"`

	Prefs struct {
		Path          string `yaml:"path"`
		BackupDir     string `yaml:"backup_dir"`
		RetentionDays int    `yaml:"backup_retention_days"`
	} `yaml:"prefs"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if cfg.Prefs.Path != "" {
		if err = os.MkdirAll(filepath.Dir(cfg.Prefs.Path), 0o755); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Europe/Madrid"
	}
	if c.Schedule.WorkingHours == "" {
		c.Schedule.WorkingHours = "08:30-12:15,15:45-18:00"
	}
	if c.Schedule.SlotMinutes == 0 {
		c.Schedule.SlotMinutes = 45
	}
	if c.Schedule.BusinessDays == "" {
		c.Schedule.BusinessDays = "1,2,3,4,5"
	}
	if c.Schedule.VisibleDays == 0 {
		c.Schedule.VisibleDays = 7
	}
	if c.Sync.PollIntervalMS == 0 {
		c.Sync.PollIntervalMS = 10000
	}
	if c.Prefs.Path == "" {
		c.Prefs.Path = "data/prefs.db"
	}
}

func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Sync.PollIntervalMS) * time.Millisecond
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.API.CacheTTLSeconds) * time.Second
}
