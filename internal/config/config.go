package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	Weather        WeatherConfig
	Orchestrator   OrchestratorConfig
	Notification   NotificationConfig
	Admin          AdminConfig
	CircuitBreaker CircuitBreakerConfig
}

type ServerConfig struct {
	Port                int           `mapstructure:"port"`
	ReadTimeoutSeconds  time.Duration `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds time.Duration `mapstructure:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Postgres      PostgresConfig
	Redis         RedisConfig
	MongoDB       MongoDBConfig
	RunMigrations bool `mapstructure:"run_migrations"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Brokers  []string         `mapstructure:"brokers"`
	GroupID  string           `mapstructure:"group_id"`
	DLQTopic string           `mapstructure:"dlq_topic"`
	Retry    BrokerRetryConfig `mapstructure:"retry"`
}

type BrokerRetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WeatherConfig drives the provider chain, the poll schedule and the
// signal detection thresholds. Thresholds are configuration, the
// signal-to-severity mapping is fixed domain knowledge.
type WeatherConfig struct {
	Providers    []ProviderConfig `mapstructure:"providers"`
	PollSchedule string           `mapstructure:"poll_schedule"`
	Districts    []string         `mapstructure:"districts"`
	SnapshotTTL  time.Duration    `mapstructure:"snapshot_ttl"`
	Thresholds   ThresholdsConfig `mapstructure:"thresholds"`
}

type ProviderConfig struct {
	Name      string `mapstructure:"name"`
	URL       string `mapstructure:"url"`
	APIKey    string `mapstructure:"api_key"`
	TimeoutMs int    `mapstructure:"timeout_ms"`
}

type ThresholdsConfig struct {
	HeavyRainMM        float64 `mapstructure:"heavy_rain_mm"`
	FloodRainMM        float64 `mapstructure:"flood_rain_mm"`
	HeatWaveCelsius    float64 `mapstructure:"heat_wave_celsius"`
	HighTempCelsius    float64 `mapstructure:"high_temp_celsius"`
	ColdWaveCelsius    float64 `mapstructure:"cold_wave_celsius"`
	FrostCelsius       float64 `mapstructure:"frost_celsius"`
	HighHumidityPct    float64 `mapstructure:"high_humidity_pct"`
	StrongWindKmh      float64 `mapstructure:"strong_wind_kmh"`
	StormWindKmh       float64 `mapstructure:"storm_wind_kmh"`
	DroughtDryDays     int     `mapstructure:"drought_dry_days"`
	HailProbabilityPct float64 `mapstructure:"hail_probability_pct"`
}

type OrchestratorConfig struct {
	CycleSchedule string `mapstructure:"cycle_schedule"`
	Enabled       bool   `mapstructure:"enabled"`
}

type NotificationConfig struct {
	Topic        string `mapstructure:"topic"`
	ReceiptTopic string `mapstructure:"receipt_topic"`
}

type AdminConfig struct {
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
