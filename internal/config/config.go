package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const (
	DefaultCronSchedule = "0 0 8,15 * * 1-5"
	DefaultSMTPPort     = 587
	DefaultFromName     = "Reportes"
	DefaultSMTPService  = "Outlook365"
	DefaultAppURL       = "http://localhost:3000"
	TriggerPath         = "/api/cron"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Watermark WatermarkConfig `mapstructure:"watermark"`
	Log       LogConfig       `mapstructure:"log"`
	Settings  SettingsConfig  `mapstructure:"settings"`
	Report    ReportConfig    `mapstructure:"report"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Cron      CronConfig      `mapstructure:"cron"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeoutSeconds"`
}

type DatabaseConfig struct {
	// URL wins over the discrete fields when set.
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

const (
	WatermarkBackendPostgres = "postgres"
	WatermarkBackendRedis    = "redis"
)

type WatermarkConfig struct {
	Backend string `mapstructure:"backend"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

type SettingsConfig struct {
	Path     string        `mapstructure:"path"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// ReportConfig tunes the report engine and its trigger endpoint.
type ReportConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Token           string `mapstructure:"token"`
	Timezone        string `mapstructure:"timezone"`
	WeekStart       string `mapstructure:"week_start"`
	WeeklyThreshold int    `mapstructure:"weekly_threshold"`
	WeeklyStep      int    `mapstructure:"weekly_step"`
	CumulativeStep  int    `mapstructure:"cumulative_step"`
	SendConcurrency int    `mapstructure:"send_concurrency"`
	LinkBaseURL     string `mapstructure:"link_base_url"`
}

type SMTPConfig struct {
	// Service names a well-known provider whose host is used when Host is empty.
	Service   string        `mapstructure:"service"`
	Host      string        `mapstructure:"host"`
	Port      int           `mapstructure:"port"`
	UseSSL    bool          `mapstructure:"use_ssl"`
	User      string        `mapstructure:"user"`
	Password  string        `mapstructure:"password"`
	FromEmail string        `mapstructure:"from_email"`
	FromName  string        `mapstructure:"from_name"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// wellKnownSMTP maps provider names, lowercased without spaces, to their
// submission hosts.
var wellKnownSMTP = map[string]string{
	"outlook365": "smtp.office365.com",
	"office365":  "smtp.office365.com",
	"outlook":    "smtp-mail.outlook.com",
	"hotmail":    "smtp-mail.outlook.com",
	"gmail":      "smtp.gmail.com",
	"yahoo":      "smtp.mail.yahoo.com",
	"zoho":       "smtp.zoho.com",
	"sendgrid":   "smtp.sendgrid.net",
	"mailgun":    "smtp.mailgun.org",
}

// ResolvedHost returns the SMTP host: the configured host, else the host of
// the well-known service. An unknown service with no host is an error.
func (c SMTPConfig) ResolvedHost() (string, error) {
	if host := strings.TrimSpace(c.Host); host != "" {
		return host, nil
	}
	key := strings.ToLower(strings.Join(strings.Fields(c.Service), ""))
	if key == "" {
		return "", errors.New("no SMTP host or service configured")
	}
	host, ok := wellKnownSMTP[key]
	if !ok {
		return "", fmt.Errorf("unknown SMTP service %q and no SMTP host configured", c.Service)
	}
	return host, nil
}

// From returns the sender address: the configured from email, else the SMTP user.
func (c SMTPConfig) From() string {
	if c.FromEmail != "" {
		return c.FromEmail
	}
	return c.User
}

// DisplayName returns the sender name: the configured name, else the SMTP user, else "Reportes".
func (c SMTPConfig) DisplayName() string {
	switch {
	case c.FromName != "":
		return c.FromName
	case c.User != "":
		return c.User
	default:
		return DefaultFromName
	}
}

type CronConfig struct {
	Schedule      string        `mapstructure:"schedule"`
	URL           string        `mapstructure:"url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// legacyEnv are the environment variables the deployment has always used.
// They override the YAML file when set.
type legacyEnv struct {
	DailyReports    string `envconfig:"DAILY_REPORTS"`
	CronJobToken    string `envconfig:"CRON_JOB_TOKEN"`
	NextAuthSecret  string `envconfig:"NEXTAUTH_SECRET"`
	CronJobSchedule string `envconfig:"CRON_JOB_SCHEDULE"`
	CronJobURL      string `envconfig:"CRON_JOB_URL"`
	AppURL          string `envconfig:"APP_URL"`
	NextAuthURL     string `envconfig:"NEXTAUTH_URL"`
	SMTPHost        string `envconfig:"SMTP_HOST"`
	SMTPPort        string `envconfig:"SMTP_PORT"`
	SMTPUseSSL      string `envconfig:"SMTP_USE_SSL"`
	SMTPUser        string `envconfig:"SMTP_USER"`
	SMTPPass        string `envconfig:"SMTP_PASS"`
	SMTPFromEmail   string `envconfig:"SMTP_FROM_EMAIL"`
	SMTPFromName    string `envconfig:"SMTP_FROM_NAME"`
	SMTPService     string `envconfig:"NODEMAILER_SMTP_SERVICE"`
	SettingsPath    string `envconfig:"SETTINGS_PATH"`
	DatabaseURL     string `envconfig:"DATABASE_URL"`
	RedisURL        string `envconfig:"REDIS_URL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.timeoutSeconds", 60)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.key_prefix", "notebook")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("watermark.backend", WatermarkBackendPostgres)
	v.SetDefault("log.level", "info")
	v.SetDefault("settings.path", "./.local/settings")
	v.SetDefault("settings.cache_ttl", 5*time.Minute)
	v.SetDefault("report.timezone", "America/Argentina/Buenos_Aires")
	v.SetDefault("report.week_start", "sunday")
	v.SetDefault("report.weekly_threshold", 3)
	v.SetDefault("report.weekly_step", 3)
	v.SetDefault("report.cumulative_step", 3)
	v.SetDefault("report.send_concurrency", 5)
	v.SetDefault("smtp.service", DefaultSMTPService)
	v.SetDefault("smtp.port", DefaultSMTPPort)
	v.SetDefault("smtp.timeout", 30*time.Second)
	v.SetDefault("cron.schedule", DefaultCronSchedule)
	v.SetDefault("cron.timeout", 2*time.Minute)
	v.SetDefault("cron.retry_attempts", 3)
	v.SetDefault("cron.retry_delay", 10*time.Second)
	v.SetDefault("rate_limit.requests_per_second", 1.0)
	v.SetDefault("rate_limit.burst", 5)
}

// LoadConfig reads config.yaml from the given directories (or the usual
// ones), applies NOTEBOOK_* overrides, then overlays the legacy environment
// variables. A missing file is not an error: the service can run on
// environment variables alone.
func LoadConfig(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	v.SetEnvPrefix("NOTEBOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env legacyEnv
	if err := envconfig.Process("", &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	env.apply(&config)

	return &config, nil
}

func (e legacyEnv) apply(c *Config) {
	if e.DailyReports != "" {
		c.Report.Enabled = Truthy(e.DailyReports)
	}
	if token := firstNonEmpty(e.CronJobToken, e.NextAuthSecret); token != "" {
		c.Report.Token = token
	}
	if e.CronJobSchedule != "" {
		c.Cron.Schedule = e.CronJobSchedule
	}
	switch {
	case e.CronJobURL != "":
		c.Cron.URL = e.CronJobURL
	case c.Cron.URL == "":
		c.Cron.URL = strings.TrimRight(firstNonEmpty(e.AppURL, e.NextAuthURL, DefaultAppURL), "/") + TriggerPath
	}
	if c.Report.LinkBaseURL == "" {
		c.Report.LinkBaseURL = strings.TrimRight(firstNonEmpty(e.AppURL, e.NextAuthURL, DefaultAppURL), "/")
	}

	if e.SMTPHost != "" {
		c.SMTP.Host = e.SMTPHost
	}
	if e.SMTPPort != "" {
		if port, err := strconv.Atoi(strings.TrimSpace(e.SMTPPort)); err == nil {
			c.SMTP.Port = port
		} else {
			c.SMTP.Port = DefaultSMTPPort
		}
	}
	if e.SMTPUseSSL != "" {
		c.SMTP.UseSSL = Truthy(e.SMTPUseSSL)
	}
	if e.SMTPUser != "" {
		c.SMTP.User = e.SMTPUser
	}
	if e.SMTPPass != "" {
		c.SMTP.Password = e.SMTPPass
	}
	if e.SMTPFromEmail != "" {
		c.SMTP.FromEmail = e.SMTPFromEmail
	}
	if e.SMTPFromName != "" {
		c.SMTP.FromName = e.SMTPFromName
	}
	if e.SMTPService != "" {
		c.SMTP.Service = e.SMTPService
	}
	if e.SettingsPath != "" {
		c.Settings.Path = e.SettingsPath
	}
	if e.DatabaseURL != "" {
		c.Database.URL = e.DatabaseURL
	}
	if e.RedisURL != "" {
		c.Redis.URL = e.RedisURL
	}
}

// Truthy accepts true, on and yes, ignoring case and surrounding spaces.
func Truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "yes":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
