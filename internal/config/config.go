package config

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Security modes for mail server connections.
const (
	SecurityTLS      = "tls"
	SecuritySTARTTLS = "starttls"
	SecurityNone     = "none"
)

type Config struct {
	Environment         string
	EncryptionKeyBase64 string
	JWTSecret           string
	DBHost              string
	DBPort              string
	DBUsername          string
	DBPassword          string
	DBName              string
	DBSSLMode           string
	Port                string
	Timezone            string

	IMAPHost     string
	IMAPPort     string
	IMAPSecurity string
	SMTPHost     string
	SMTPPort     string
	SMTPSecurity string

	IMAPConnectTimeout time.Duration
	IMAPLogoutTimeout  time.Duration
	InboxBatchSize     int

	// Ranked folder name candidates, tried in order when resolving live folders.
	SentFolders  []string
	TrashFolders []string

	WSMaxConnectionsPerUser int
}

func NewConfig() (*Config, error) {
	env := os.Getenv("CQMAIL_ENV")
	if env == "" {
		env = "development"
	}

	if env == "development" {
		if err := godotenv.Load(); err != nil {
			fmt.Println("Warning: .env file not found, using environment variables")
		}
	}

	config := &Config{
		Environment:         env,
		EncryptionKeyBase64: os.Getenv("CQMAIL_ENCRYPTION_KEY_BASE64"),
		JWTSecret:           os.Getenv("CQMAIL_JWT_SECRET"),
		DBHost:              getEnvOrDefault("CQMAIL_DB_HOST", "localhost"),
		DBPort:              getEnvOrDefault("CQMAIL_DB_PORT", "5432"),
		DBUsername:          getEnvOrDefault("CQMAIL_DB_USER", "cqmail"),
		DBPassword:          os.Getenv("CQMAIL_DB_PASSWORD"),
		DBName:              getEnvOrDefault("CQMAIL_DB_NAME", "cqmail"),
		DBSSLMode:           getEnvOrDefault("CQMAIL_DB_SSLMODE", "disable"),
		Port:                getEnvOrDefault("PORT", "8080"),
		Timezone:            getEnvOrDefault("TZ", "UTC"),
		IMAPHost:            os.Getenv("CQMAIL_IMAP_HOST"),
		IMAPPort:            getEnvOrDefault("CQMAIL_IMAP_PORT", "993"),
		IMAPSecurity:        strings.ToLower(getEnvOrDefault("CQMAIL_IMAP_SECURITY", SecurityTLS)),
		SMTPHost:            os.Getenv("CQMAIL_SMTP_HOST"),
		SMTPPort:            getEnvOrDefault("CQMAIL_SMTP_PORT", "587"),
		SMTPSecurity:        strings.ToLower(getEnvOrDefault("CQMAIL_SMTP_SECURITY", SecuritySTARTTLS)),
		SentFolders:         getListOrDefault("CQMAIL_SENT_FOLDERS", "Sent,Sent Mail,Sent Items,[Gmail]/Sent Mail"),
		TrashFolders:        getListOrDefault("CQMAIL_TRASH_FOLDERS", "Trash,Deleted Items,Deleted Messages,[Gmail]/Trash"),
	}

	var err error
	if config.IMAPConnectTimeout, err = getDurationOrDefault("CQMAIL_IMAP_CONNECT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if config.IMAPLogoutTimeout, err = getDurationOrDefault("CQMAIL_IMAP_LOGOUT_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if config.InboxBatchSize, err = getIntOrDefault("CQMAIL_INBOX_BATCH_SIZE", 20); err != nil {
		return nil, err
	}
	if config.WSMaxConnectionsPerUser, err = getIntOrDefault("CQMAIL_WS_MAX_PER_USER", 10); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.EncryptionKeyBase64 == "" {
		return fmt.Errorf("CQMAIL_ENCRYPTION_KEY_BASE64 is required")
	}

	key, err := base64.StdEncoding.DecodeString(c.EncryptionKeyBase64)
	if err != nil {
		return fmt.Errorf("CQMAIL_ENCRYPTION_KEY_BASE64 is not valid base64: %w", err)
	}
	if len(key) != 32 {
		return fmt.Errorf("CQMAIL_ENCRYPTION_KEY_BASE64 must decode to 32 bytes, got %d", len(key))
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("CQMAIL_JWT_SECRET is required")
	}

	if c.DBPassword == "" {
		return fmt.Errorf("CQMAIL_DB_PASSWORD is required")
	}

	if c.IMAPHost == "" {
		return fmt.Errorf("CQMAIL_IMAP_HOST is required")
	}

	if c.SMTPHost == "" {
		return fmt.Errorf("CQMAIL_SMTP_HOST is required")
	}

	if c.IMAPSecurity != SecurityTLS && c.IMAPSecurity != SecurityNone {
		return fmt.Errorf("CQMAIL_IMAP_SECURITY must be %q or %q, got %q", SecurityTLS, SecurityNone, c.IMAPSecurity)
	}

	switch c.SMTPSecurity {
	case SecurityTLS, SecuritySTARTTLS, SecurityNone:
	default:
		return fmt.Errorf("CQMAIL_SMTP_SECURITY must be %q, %q or %q, got %q", SecurityTLS, SecuritySTARTTLS, SecurityNone, c.SMTPSecurity)
	}

	if c.IMAPConnectTimeout <= 0 || c.IMAPLogoutTimeout <= 0 {
		return fmt.Errorf("IMAP timeouts must be positive")
	}

	if c.InboxBatchSize <= 0 {
		return fmt.Errorf("CQMAIL_INBOX_BATCH_SIZE must be positive, got %d", c.InboxBatchSize)
	}

	if len(c.SentFolders) == 0 || len(c.TrashFolders) == 0 {
		return fmt.Errorf("sent and trash folder candidates must not be empty")
	}

	return nil
}

func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.QueryEscape(c.DBUsername),
		url.QueryEscape(c.DBPassword),
		c.DBHost,
		c.DBPort,
		c.DBName,
		c.DBSSLMode,
	)
}

// IMAPAddress returns host:port of the IMAP server.
func (c *Config) IMAPAddress() string {
	return c.IMAPHost + ":" + c.IMAPPort
}

// SMTPAddress returns host:port of the SMTP server.
func (c *Config) SMTPAddress() string {
	return c.SMTPHost + ":" + c.SMTPPort
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// getListOrDefault splits a comma-separated value, dropping empty entries.
func getListOrDefault(key, defaultValue string) []string {
	raw := getEnvOrDefault(key, defaultValue)
	var list []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
