package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	GRPCPort           string
	HTTPPort           string
	LandmarkServiceURL string
	CORSOrigins        string

	MaxMessageSizeMB int
	LogLevel         string
	LogFormat        string
	Environment      string

	DBName      string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBSSLMode   string
	DBMaxConns  int
	AutoMigrate bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MQTTBroker      string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string

	NotificationStream  string
	NoFacePolicy        string
	CollaboratorTimeout time.Duration
}

func (p *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBPassword, p.DBName, p.DBSSLMode)
}

// DSNForLog is DSN with the password masked.
func (p *Config) DSNForLog() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=*** dbname=%s sslmode=%s",
		p.DBHost, p.DBPort, p.DBUser, p.DBName, p.DBSSLMode)
}

func (c *Config) IsDev() bool {
	return c.Environment == "dev"
}

// MQTTEnabled is false when no broker is configured; the alarm then only
// reaches the websocket client.
func (c *Config) MQTTEnabled() bool {
	return c.MQTTBroker != ""
}

// AllowedOrigins splits CORSOrigins.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// LoadConfig reads .env when present, then the process environment.
// The returned warnings are meant for the startup log.
func LoadConfig() (*Config, []string) {
	var warnings []string
	if err := godotenv.Load(); err != nil {
		warnings = append(warnings, "no .env file found, using system environment variables")
	}

	cfg := &Config{
		GRPCPort:           getEnv("GRPC_PORT", "50051"),
		HTTPPort:           getEnv("HTTP_PORT", "8081"),
		LandmarkServiceURL: getEnv("LANDMARK_SERVICE_URL", ""),
		CORSOrigins:        getEnv("CORS_ORIGINS", "*"),
		MaxMessageSizeMB:   getEnvInt("MAX_MESSAGE_SIZE_MB", 50),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		Environment:        getEnv("ENVIRONMENT", "production"),

		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "driveguard"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),
		DBMaxConns:  getEnvInt("DB_MAX_CONNS", 25),
		AutoMigrate: getEnvBool("DB_AUTO_MIGRATE", true),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MQTTBroker:      getEnv("MQTT_BROKER", ""),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "driveguard-backend"),
		MQTTUsername:    getEnv("MQTT_USERNAME", ""),
		MQTTPassword:    getEnv("MQTT_PASSWORD", ""),
		MQTTTopicPrefix: getEnv("MQTT_TOPIC_PREFIX", "driveguard"),

		NotificationStream:  getEnv("NOTIFICATION_STREAM", "driveguard:notifications"),
		NoFacePolicy:        getEnv("NO_FACE_POLICY", "hold"),
		CollaboratorTimeout: getEnvDuration("COLLABORATOR_TIMEOUT", 5*time.Second),
	}

	if cfg.DBPassword == "" {
		warnings = append(warnings, "DB_PASSWORD is not set")
	}
	if cfg.LandmarkServiceURL == "" {
		warnings = append(warnings, "LANDMARK_SERVICE_URL is not set, image frames will be rejected")
	}

	return cfg, warnings
}

func getEnv(key string, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if intVal, err := strconv.Atoi(v); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
