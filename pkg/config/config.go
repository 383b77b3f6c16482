package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Realtime      RealtimeConfig
	Notifications NotificationsConfig
	Reports       ReportsConfig
	Dashboard     DashboardConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// RealtimeConfig tunes the websocket push channel for unread counts.
type RealtimeConfig struct {
	Enabled        bool
	RedisFanout    bool
	ChannelPrefix  string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	MaxConnPerUser int
}

// NotificationsConfig controls the guardian fan-out on grade/behaviour writes.
type NotificationsConfig struct {
	Enabled bool
}

// ReportsConfig controls term report rendering.
type ReportsConfig struct {
	Enabled        bool
	DefaultFormat  string
	MaxGradeRows   int
	AttendanceDays int
}

// DashboardConfig gates the role-shaped dashboard aggregates.
type DashboardConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Realtime = RealtimeConfig{
		Enabled:        v.GetBool("ENABLE_REALTIME"),
		RedisFanout:    v.GetBool("REALTIME_REDIS_FANOUT"),
		ChannelPrefix:  v.GetString("REALTIME_CHANNEL_PREFIX"),
		WriteTimeout:   parseDuration(v.GetString("REALTIME_WRITE_TIMEOUT"), 5*time.Second),
		PingInterval:   parseDuration(v.GetString("REALTIME_PING_INTERVAL"), 30*time.Second),
		MaxConnPerUser: v.GetInt("REALTIME_MAX_CONN_PER_USER"),
	}

	cfg.Notifications = NotificationsConfig{
		Enabled: v.GetBool("ENABLE_NOTIFICATIONS"),
	}

	cfg.Reports = ReportsConfig{
		Enabled:        v.GetBool("ENABLE_REPORTS"),
		DefaultFormat:  v.GetString("REPORTS_DEFAULT_FORMAT"),
		MaxGradeRows:   v.GetInt("REPORTS_MAX_GRADE_ROWS"),
		AttendanceDays: v.GetInt("REPORTS_ATTENDANCE_DAYS"),
	}

	cfg.Dashboard = DashboardConfig{
		Enabled: v.GetBool("ENABLE_DASHBOARD"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "kps_school")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_REALTIME", true)
	v.SetDefault("REALTIME_REDIS_FANOUT", false)
	v.SetDefault("REALTIME_CHANNEL_PREFIX", "user_")
	v.SetDefault("REALTIME_WRITE_TIMEOUT", "5s")
	v.SetDefault("REALTIME_PING_INTERVAL", "30s")
	v.SetDefault("REALTIME_MAX_CONN_PER_USER", 8)

	v.SetDefault("ENABLE_NOTIFICATIONS", true)

	v.SetDefault("ENABLE_REPORTS", true)
	v.SetDefault("REPORTS_DEFAULT_FORMAT", "pdf")
	v.SetDefault("REPORTS_MAX_GRADE_ROWS", 500)
	v.SetDefault("REPORTS_ATTENDANCE_DAYS", 100)

	v.SetDefault("ENABLE_DASHBOARD", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
