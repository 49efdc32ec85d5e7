package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration marks configuration problems that must abort a run before
// anything is written.
var ErrConfiguration = errors.New("configuration error")

type Config struct {
	YouTube    YouTubeConfig    `yaml:"youtube"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	NATS       NATSConfig       `yaml:"nats"`
	Email      EmailConfig      `yaml:"email"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type YouTubeConfig struct {
	APIKey       string `yaml:"api_key" env:"YOUTUBE_API_KEY"`
	ClientID     string `yaml:"client_id" env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `yaml:"client_secret" env:"GOOGLE_CLIENT_SECRET"`
	TokenFile    string `yaml:"token_file"`
	// RequestsPerSecond bounds calls to the Data API; Burst allows short spikes.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"DATABASE_PATH"`
}

type RedisConfig struct {
	Address  string        `yaml:"address" env:"REDIS_ADDRESS"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type NATSConfig struct {
	URL           string `yaml:"url" env:"NATS_URL"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type EmailConfig struct {
	SMTPServer string  `yaml:"smtp_server"`
	SMTPPort   int     `yaml:"smtp_port"`
	Username   string  `yaml:"username" env:"EMAIL_USERNAME"`
	Password   string  `yaml:"password" env:"EMAIL_PASSWORD"`
	FromEmail  string  `yaml:"from_email"`
	ToEmail    string  `yaml:"to_email"`
	TopGaps    int     `yaml:"top_gaps"`
	MinScore   float64 `yaml:"min_score"`
}

// Enabled reports whether a gap digest should be sent after scoring.
func (e EmailConfig) Enabled() bool {
	return e.ToEmail != "" && e.SMTPServer != ""
}

type PipelineConfig struct {
	// Candidate selection
	TrendingLimit     int           `yaml:"trending_limit"`
	TrendingLookback  time.Duration `yaml:"trending_lookback"`
	MaxChannels       int           `yaml:"max_channels"`
	UploadsPerChannel int           `yaml:"uploads_per_channel"`
	MaxCandidates     int           `yaml:"max_candidates"`
	TrackedChannels   []string      `yaml:"tracked_channels"`

	// Collection
	Concurrency int `yaml:"concurrency"`
	BatchSize   int `yaml:"batch_size"`

	// Aggregation
	Periods   []string `yaml:"periods"`
	MinVideos int      `yaml:"min_videos"`

	// Scoring
	SupplyWindow time.Duration `yaml:"supply_window"`
	ScorePeriod  string        `yaml:"score_period"`
}

type ScheduleConfig struct {
	Collect   string `yaml:"collect"`
	Aggregate string `yaml:"aggregate"`
	Score     string `yaml:"score"`
}

type MonitoringConfig struct {
	HealthPort int `yaml:"health_port"`
	// APIRateLimit caps read API requests per client IP per minute; 0 disables it.
	APIRateLimit int `yaml:"api_rate_limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads CONFIG_FILE (default config.yaml) after loading .env.
func Load() (*Config, error) {
	configFile := os.Getenv("CONFIG_FILE")
	if configFile == "" {
		configFile = "config.yaml"
	}
	return LoadFile(configFile)
}

// LoadFile reads the given YAML file, applies env overrides and defaults and
// validates the result.
func LoadFile(configFile string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	cfg := newConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.YouTube.APIKey, "YOUTUBE_API_KEY")
	setFromEnv(&c.YouTube.ClientID, "GOOGLE_CLIENT_ID")
	setFromEnv(&c.YouTube.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setFromEnv(&c.Database.Path, "DATABASE_PATH")
	setFromEnv(&c.Redis.Address, "REDIS_ADDRESS")
	setFromEnv(&c.Redis.Password, "REDIS_PASSWORD")
	setFromEnv(&c.NATS.URL, "NATS_URL")
	setFromEnv(&c.Email.Username, "EMAIL_USERNAME")
	setFromEnv(&c.Email.Password, "EMAIL_PASSWORD")

	if c.Monitoring.HealthPort == 0 {
		if port, err := strconv.Atoi(os.Getenv("HEALTH_PORT")); err == nil {
			c.Monitoring.HealthPort = port
		}
	}
}

// setFromEnv fills an empty field from the environment.
func setFromEnv(field *string, key string) {
	if *field == "" {
		*field = os.Getenv(key)
	}
}

// newConfig presets the settings where an explicit 0 turns a feature off.
// They are filled before decoding so only absent keys get the default.
func newConfig() Config {
	return Config{
		Pipeline: PipelineConfig{
			TrendingLimit:     100,
			MaxChannels:       10,
			UploadsPerChannel: 3,
		},
		Monitoring: MonitoringConfig{
			APIRateLimit: 120,
		},
	}
}

func (c *Config) applyDefaults() {
	if c.YouTube.TokenFile == "" {
		c.YouTube.TokenFile = "youtube_token.json"
	}
	if c.YouTube.RequestsPerSecond == 0 {
		c.YouTube.RequestsPerSecond = 5
	}
	if c.YouTube.Burst == 0 {
		c.YouTube.Burst = 5
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/trends.db"
	}
	if c.Redis.LockTTL == 0 {
		c.Redis.LockTTL = 30 * time.Minute
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "trends.stage"
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Email.TopGaps == 0 {
		c.Email.TopGaps = 10
	}

	p := &c.Pipeline
	if p.TrendingLookback == 0 {
		p.TrendingLookback = 24 * time.Hour
	}
	if p.MaxCandidates == 0 {
		p.MaxCandidates = 50
	}
	if p.Concurrency == 0 {
		p.Concurrency = 4
	}
	if p.BatchSize == 0 {
		p.BatchSize = 50
	}
	if len(p.Periods) == 0 {
		p.Periods = []string{"daily"}
	}
	if p.MinVideos == 0 {
		p.MinVideos = 3
	}
	if p.SupplyWindow == 0 {
		p.SupplyWindow = 30 * 24 * time.Hour
	}
	if p.ScorePeriod == "" {
		p.ScorePeriod = "daily"
	}

	if c.Monitoring.HealthPort == 0 {
		c.Monitoring.HealthPort = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	p := c.Pipeline
	if p.TrendingLimit < 0 || p.MaxChannels < 0 || p.UploadsPerChannel < 0 {
		return fmt.Errorf("pipeline caps must not be negative")
	}
	if p.MaxCandidates < 1 {
		return fmt.Errorf("pipeline.max_candidates must be at least 1")
	}
	if p.BatchSize < 1 || p.BatchSize > 50 {
		return fmt.Errorf("pipeline.batch_size must be between 1 and 50, got %d", p.BatchSize)
	}
	if p.Concurrency < 1 {
		return fmt.Errorf("pipeline.concurrency must be at least 1")
	}
	if p.MinVideos < 1 {
		return fmt.Errorf("pipeline.min_videos must be at least 1")
	}
	if c.Monitoring.APIRateLimit < 0 {
		return fmt.Errorf("monitoring.api_rate_limit must not be negative")
	}
	for _, period := range append(append([]string{}, p.Periods...), p.ScorePeriod) {
		switch period {
		case "daily", "weekly", "monthly":
		default:
			return fmt.Errorf("unknown period %q (want daily, weekly or monthly)", period)
		}
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"collect":   c.Schedule.Collect,
		"aggregate": c.Schedule.Aggregate,
		"score":     c.Schedule.Score,
	} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return fmt.Errorf("invalid schedule.%s %q: %w", name, spec, err)
		}
	}
	return nil
}

// ValidateCollector checks the provider credentials the collect stage needs.
// Either an API key or an OAuth client pair is required.
func (c *Config) ValidateCollector() error {
	if c.YouTube.APIKey != "" {
		return nil
	}
	if c.YouTube.ClientID == "" || c.YouTube.ClientSecret == "" {
		return fmt.Errorf("%w: YouTube credentials are required (set YOUTUBE_API_KEY, or GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET)", ErrConfiguration)
	}
	return nil
}
