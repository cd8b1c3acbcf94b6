package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env      string
	HTTP     HTTPConfig
	DB       DBConfig
	Redis    RedisConfig
	Pipeline PipelineConfig
	Rollup   RollupConfig
	Logging  LoggingConfig
}

type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type PipelineConfig struct {
	Workers        int
	QueueSize      int
	LogSampleEvery int64
}

type RollupConfig struct {
	Interval      time.Duration
	WindowLag     time.Duration
	WindowSpan    time.Duration
	CompressAfter time.Duration
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, layered over an optional
// .env file. A config that fails validation is fatal at startup.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("env", "local")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "10s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.user", "fleet_user")
	v.SetDefault("db.password", "fleet_pass")
	v.SetDefault("db.name", "fleet_tracking")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 15)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.queue_size", 10000)
	v.SetDefault("pipeline.log_sample_every", 1000)
	v.SetDefault("rollup.interval", "1h")
	v.SetDefault("rollup.window_lag", "1h")
	v.SetDefault("rollup.window_span", "2h")
	v.SetDefault("rollup.compress_after", "168h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.AutomaticEnv()
	v.BindEnv("env", "ENV")
	v.BindEnv("http.addr", "HTTP_ADDR")
	v.BindEnv("http.read_timeout", "HTTP_READ_TIMEOUT")
	v.BindEnv("http.write_timeout", "HTTP_WRITE_TIMEOUT")
	v.BindEnv("http.shutdown_timeout", "HTTP_SHUTDOWN_TIMEOUT")
	v.BindEnv("db.host", "DB_HOST")
	v.BindEnv("db.port", "DB_PORT")
	v.BindEnv("db.user", "DB_USER")
	v.BindEnv("db.password", "DB_PASSWORD")
	v.BindEnv("db.name", "DB_NAME")
	v.BindEnv("db.sslmode", "DB_SSLMODE")
	v.BindEnv("db.max_conns", "DB_MAX_CONNS")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("pipeline.workers", "PIPELINE_WORKERS")
	v.BindEnv("pipeline.queue_size", "PIPELINE_QUEUE_SIZE")
	v.BindEnv("pipeline.log_sample_every", "PIPELINE_LOG_SAMPLE_EVERY")
	v.BindEnv("rollup.interval", "ROLLUP_INTERVAL")
	v.BindEnv("rollup.window_lag", "ROLLUP_WINDOW_LAG")
	v.BindEnv("rollup.window_span", "ROLLUP_WINDOW_SPAN")
	v.BindEnv("rollup.compress_after", "ROLLUP_COMPRESS_AFTER")
	v.BindEnv("logging.level", "LOG_LEVEL")
	v.BindEnv("logging.format", "LOG_FORMAT")

	cfg := &Config{
		Env: v.GetString("env"),
		HTTP: HTTPConfig{
			Addr:            v.GetString("http.addr"),
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		DB: DBConfig{
			Host:     v.GetString("db.host"),
			Port:     v.GetInt("db.port"),
			User:     v.GetString("db.user"),
			Password: v.GetString("db.password"),
			Name:     v.GetString("db.name"),
			SSLMode:  v.GetString("db.sslmode"),
			MaxConns: int32(v.GetInt("db.max_conns")),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Pipeline: PipelineConfig{
			Workers:        v.GetInt("pipeline.workers"),
			QueueSize:      v.GetInt("pipeline.queue_size"),
			LogSampleEvery: v.GetInt64("pipeline.log_sample_every"),
		},
		Rollup: RollupConfig{
			Interval:      v.GetDuration("rollup.interval"),
			WindowLag:     v.GetDuration("rollup.window_lag"),
			WindowSpan:    v.GetDuration("rollup.window_span"),
			CompressAfter: v.GetDuration("rollup.compress_after"),
		},
		Logging: LoggingConfig{
			Level:  v.GetString("logging.level"),
			Format: v.GetString("logging.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("HTTP_ADDR is required")
	}
	if c.DB.Host == "" || c.DB.Name == "" {
		return errors.New("DB_HOST and DB_NAME are required")
	}
	if c.Redis.Addr == "" {
		return errors.New("REDIS_ADDR is required")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be >= 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.QueueSize < 1 {
		return fmt.Errorf("PIPELINE_QUEUE_SIZE must be >= 1, got %d", c.Pipeline.QueueSize)
	}
	if c.Rollup.Interval <= 0 || c.Rollup.WindowSpan <= 0 {
		return errors.New("rollup interval and window span must be positive")
	}
	return nil
}
