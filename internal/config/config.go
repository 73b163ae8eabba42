package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "Asia/Tehran"

	configPathEnv     = "NEWSDESK_CONFIG"
	databasePathEnv   = "NEWSDESK_DB"
	httpAddrEnv       = "NEWSDESK_HTTP_ADDR"
	translationKeyEnv = "TRANSLATION_API_KEY"
	alertEmailKeyEnv  = "ALERT_EMAIL_API_KEY"
	alertSMSKeyEnv    = "ALERT_SMS_API_KEY"
	topicModelPathEnv = "TOPIC_MODEL_PATH"
)

// Config holds everything the pipeline needs across components.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Database    DatabaseConfig    `yaml:"database"`
	HTTP        HTTPConfig        `yaml:"http"`
	Timezone    string            `yaml:"timezone"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Scheduler   SchedulerConfig   `yaml:"scheduler"`
	Translation TranslationConfig `yaml:"translation"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Alerts      AlertConfig       `yaml:"alerts"`
	Monitoring  MonitoringConfig  `yaml:"monitoring"`

	location *time.Location
}

// LoggingConfig selects slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes the sqlite database location.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// HTTPConfig configures the read-model API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// FetchConfig bounds outbound source fetching.
type FetchConfig struct {
	Timeout       time.Duration `yaml:"-"`
	MaxCandidates int           `yaml:"maxCandidates"`
	UserAgent     string        `yaml:"userAgent"`
}

// UnmarshalYAML parses the timeout from a Go duration string ("20s").
func (f *FetchConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Timeout       string `yaml:"timeout"`
		MaxCandidates int    `yaml:"maxCandidates"`
		UserAgent     string `yaml:"userAgent"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	f.MaxCandidates = raw.MaxCandidates
	f.UserAgent = raw.UserAgent
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("fetch.timeout: %w", err)
		}
		f.Timeout = d
	}
	return nil
}

// SchedulerConfig defines the recurring job intervals.
type SchedulerConfig struct {
	IngestInterval  time.Duration `yaml:"-"`
	PublishInterval time.Duration `yaml:"-"`
	MonitorInterval time.Duration `yaml:"-"`
	TrendWindow     time.Duration `yaml:"-"`
	TrendSingleton  time.Duration `yaml:"-"`
}

// UnmarshalYAML parses the intervals from Go duration strings ("5m", "12h").
func (s *SchedulerConfig) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		IngestInterval  string `yaml:"ingestInterval"`
		PublishInterval string `yaml:"publishInterval"`
		MonitorInterval string `yaml:"monitorInterval"`
		TrendWindow     string `yaml:"trendWindow"`
		TrendSingleton  string `yaml:"trendSingleton"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	for _, f := range []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"scheduler.ingestInterval", raw.IngestInterval, &s.IngestInterval},
		{"scheduler.publishInterval", raw.PublishInterval, &s.PublishInterval},
		{"scheduler.monitorInterval", raw.MonitorInterval, &s.MonitorInterval},
		{"scheduler.trendWindow", raw.TrendWindow, &s.TrendWindow},
		{"scheduler.trendSingleton", raw.TrendSingleton, &s.TrendSingleton},
	} {
		if f.value == "" {
			continue
		}
		d, err := time.ParseDuration(f.value)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = d
	}
	return nil
}

// TranslationConfig wires the external provider and the daily budget.
type TranslationConfig struct {
	// Provider selects the configured backend; empty or "none" disables
	// translation entirely (a graceful no-op, not an error).
	Provider        string `yaml:"provider"`
	Endpoint        string `yaml:"endpoint"`
	Model           string `yaml:"model"`
	APIKey          string `yaml:"apiKey"`
	DailyTokenLimit int    `yaml:"dailyTokenLimit"`
	// ExhaustionPolicy: fallback | queue | skip.
	ExhaustionPolicy string `yaml:"exhaustionPolicy"`
}

// ClassifierConfig points at the optional learned topic model artifact.
type ClassifierConfig struct {
	ModelPath string `yaml:"modelPath"`
}

// AlertConfig groups outbound alert channels.
type AlertConfig struct {
	Email EmailConfig `yaml:"email"`
	SMS   SMSConfig   `yaml:"sms"`
}

// EmailConfig wires an HTTP email API.
type EmailConfig struct {
	Endpoint   string   `yaml:"endpoint"`
	APIKey     string   `yaml:"apiKey"`
	From       string   `yaml:"from"`
	Recipients []string `yaml:"recipients"`
}

// SMSConfig wires an HTTP SMS API.
type SMSConfig struct {
	Endpoint   string   `yaml:"endpoint"`
	APIKey     string   `yaml:"apiKey"`
	Recipients []string `yaml:"recipients"`
}

// MonitoringConfig sets the queue-depth alert thresholds.
type MonitoringConfig struct {
	WaitingThreshold int      `yaml:"waitingThreshold"`
	FailedThreshold  int      `yaml:"failedThreshold"`
	TrackedJobs      []string `yaml:"trackedJobs"`
}

// Location resolves the operating timezone. The translation budget window
// and scheduling decisions are anchored to it, not to UTC.
func (c *Config) Location() *time.Location {
	if c.location != nil {
		return c.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// Load reads YAML configuration (if present) and applies environment
// overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if raw, err := os.ReadFile(path); err != nil {
			log.Printf("config: cannot read %s: %v (falling back to defaults)", path, err)
		} else {
			var fileCfg Config
			if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
				log.Printf("config: cannot parse %s: %v (falling back to defaults)", path, err)
			} else {
				cfg = mergeConfig(cfg, fileCfg)
			}
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databasePathEnv); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv(translationKeyEnv); v != "" {
		c.Translation.APIKey = v
	}
	if v := os.Getenv(alertEmailKeyEnv); v != "" {
		c.Alerts.Email.APIKey = v
	}
	if v := os.Getenv(alertSMSKeyEnv); v != "" {
		c.Alerts.SMS.APIKey = v
	}
	if v := os.Getenv(topicModelPathEnv); v != "" {
		c.Classifier.ModelPath = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}
	if override.Database.Path != "" {
		base.Database = override.Database
	}
	if override.HTTP.Addr != "" {
		base.HTTP = override.HTTP
	}
	if override.Timezone != "" {
		base.Timezone = override.Timezone
	}

	if override.Fetch.Timeout > 0 {
		base.Fetch.Timeout = override.Fetch.Timeout
	}
	if override.Fetch.MaxCandidates > 0 {
		base.Fetch.MaxCandidates = override.Fetch.MaxCandidates
	}
	if override.Fetch.UserAgent != "" {
		base.Fetch.UserAgent = override.Fetch.UserAgent
	}

	if override.Scheduler.IngestInterval > 0 {
		base.Scheduler.IngestInterval = override.Scheduler.IngestInterval
	}
	if override.Scheduler.PublishInterval > 0 {
		base.Scheduler.PublishInterval = override.Scheduler.PublishInterval
	}
	if override.Scheduler.MonitorInterval > 0 {
		base.Scheduler.MonitorInterval = override.Scheduler.MonitorInterval
	}
	if override.Scheduler.TrendWindow > 0 {
		base.Scheduler.TrendWindow = override.Scheduler.TrendWindow
	}
	if override.Scheduler.TrendSingleton > 0 {
		base.Scheduler.TrendSingleton = override.Scheduler.TrendSingleton
	}

	if override.Translation.Provider != "" {
		base.Translation.Provider = override.Translation.Provider
	}
	if override.Translation.Endpoint != "" {
		base.Translation.Endpoint = override.Translation.Endpoint
	}
	if override.Translation.Model != "" {
		base.Translation.Model = override.Translation.Model
	}
	if override.Translation.APIKey != "" {
		base.Translation.APIKey = override.Translation.APIKey
	}
	if override.Translation.DailyTokenLimit > 0 {
		base.Translation.DailyTokenLimit = override.Translation.DailyTokenLimit
	}
	if override.Translation.ExhaustionPolicy != "" {
		base.Translation.ExhaustionPolicy = override.Translation.ExhaustionPolicy
	}

	if override.Classifier.ModelPath != "" {
		base.Classifier.ModelPath = override.Classifier.ModelPath
	}

	if override.Alerts.Email.Endpoint != "" {
		base.Alerts.Email = override.Alerts.Email
	}
	if override.Alerts.SMS.Endpoint != "" {
		base.Alerts.SMS = override.Alerts.SMS
	}

	if override.Monitoring.WaitingThreshold > 0 {
		base.Monitoring.WaitingThreshold = override.Monitoring.WaitingThreshold
	}
	if override.Monitoring.FailedThreshold > 0 {
		base.Monitoring.FailedThreshold = override.Monitoring.FailedThreshold
	}
	if len(override.Monitoring.TrackedJobs) > 0 {
		base.Monitoring.TrackedJobs = override.Monitoring.TrackedJobs
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{Path: "newsdesk.db"},
		HTTP:     HTTPConfig{Addr: ":8090"},
		Timezone: defaultTimezone,
		Fetch: FetchConfig{
			Timeout:       20 * time.Second,
			MaxCandidates: 25,
			UserAgent:     "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		},
		Scheduler: SchedulerConfig{
			IngestInterval:  5 * time.Minute,
			PublishInterval: 1 * time.Minute,
			MonitorInterval: 5 * time.Minute,
			TrendWindow:     12 * time.Hour,
			TrendSingleton:  30 * time.Minute,
		},
		Translation: TranslationConfig{
			Provider:         "none",
			Endpoint:         "https://api.openai.com/v1/chat/completions",
			Model:            "gpt-4o-mini",
			DailyTokenLimit:  200000,
			ExhaustionPolicy: "fallback",
		},
		Monitoring: MonitoringConfig{
			WaitingThreshold: 50,
			FailedThreshold:  10,
			TrackedJobs:      []string{"ingest", "publish-due", "revalidate", "refresh-trends", "monitor-health"},
		},
	}
}
