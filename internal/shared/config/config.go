package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	KurrentDB    KurrentDBConfig
	Auth         AuthConfig
	Clinic       ClinicConfig
	Triage       TriageConfig
	WhatsApp     WhatsAppConfig
	HIS          HISConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// KurrentDBConfig holds configuration for the clinical audit event store.
type KurrentDBConfig struct {
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

// ClinicConfig carries per-deployment clinic settings. Scheduling math is
// done in the clinic's civil timezone, never in server-local time.
type ClinicConfig struct {
	// Timezone is an IANA zone name, e.g. "Europe/Belgrade".
	Timezone string
	// SendHour is the civil hour of day at which follow-ups go out.
	SendHour int
	// AlertPhone receives doctor alerts when a clinician has no phone on file.
	AlertPhone string
}

// TriageConfig configures the external NLP triage collaborator.
type TriageConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Enabled bool
}

// WhatsAppConfig configures the Meta Cloud API message provider.
type WhatsAppConfig struct {
	PhoneNumberID string
	AccessToken   string
	VerifyToken   string
	// SendsPerSecond bounds outbound throughput against Cloud API limits.
	SendsPerSecond int
}

// HISConfig configures the legacy hospital information system adapter that
// imports completed surgeries from a clinic's SQL Server.
type HISConfig struct {
	Enabled      bool
	DSN          string
	PollInterval time.Duration
}

func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("SERVER_PORT", 8080),
			Env:  getEnv("ENV", "development"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "vigia"),
			Password: getEnv("DB_PASSWORD", "vigia"),
			Database: getEnv("DB_NAME", "vigia"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		KurrentDB: KurrentDBConfig{
			Host:     getEnv("KURRENTDB_HOST", "localhost"),
			Port:     getEnvInt("KURRENTDB_PORT", 2113),
			Insecure: getEnvBool("KURRENTDB_INSECURE", true),
			Username: getEnv("KURRENTDB_USERNAME", ""),
			Password: getEnv("KURRENTDB_PASSWORD", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-in-prod"),
		},
		Clinic: ClinicConfig{
			Timezone:   getEnv("CLINIC_TIMEZONE", "Europe/Belgrade"),
			SendHour:   getEnvInt("CLINIC_SEND_HOUR", 10),
			AlertPhone: getEnv("CLINIC_ALERT_PHONE", ""),
		},
		Triage: TriageConfig{
			URL:     getEnv("TRIAGE_NLP_URL", "http://localhost:5005"),
			APIKey:  getEnv("TRIAGE_NLP_API_KEY", ""),
			Timeout: getEnvDuration("TRIAGE_NLP_TIMEOUT", 10*time.Second),
			Enabled: getEnvBool("TRIAGE_NLP_ENABLED", true),
		},
		WhatsApp: WhatsAppConfig{
			PhoneNumberID:  getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
			AccessToken:    getEnv("WHATSAPP_ACCESS_TOKEN", ""),
			VerifyToken:    getEnv("WHATSAPP_VERIFY_TOKEN", ""),
			SendsPerSecond: getEnvInt("WHATSAPP_SENDS_PER_SECOND", 20),
		},
		HIS: HISConfig{
			Enabled:      getEnvBool("HIS_ENABLED", false),
			DSN:          getEnv("HIS_DSN", ""),
			PollInterval: getEnvDuration("HIS_POLL_INTERVAL", 5*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
