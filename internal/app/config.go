package app

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	ListenAddr string
	LogLevel   string

	DBDSN string

	// EncryptionKey decodes AILABS_ENCRYPTION_KEY (base64, 32 bytes).
	EncryptionKey []byte

	ProviderTimeoutSecs int
	RatePerMinute       int

	CORSOrigins []string

	OTELEnabled  bool
	OTELEndpoint string
}

func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr: getEnv("AILABS_LISTEN_ADDR", ":8080"),
		LogLevel:   getEnv("AILABS_LOG_LEVEL", "info"),
		DBDSN:      getEnv("AILABS_DB_DSN", "file:ailabs.sqlite"),

		ProviderTimeoutSecs: getEnvInt("AILABS_PROVIDER_TIMEOUT_SECS", 60),
		RatePerMinute:       getEnvInt("AILABS_RATE_PER_MINUTE", 10),

		CORSOrigins: getEnvStringSlice("AILABS_CORS_ORIGINS", nil),

		OTELEnabled:  getEnvBool("AILABS_OTEL_ENABLED", false),
		OTELEndpoint: getEnv("AILABS_OTEL_ENDPOINT", "localhost:4318"),
	}

	raw := os.Getenv("AILABS_ENCRYPTION_KEY")
	if raw == "" {
		return Config{}, fmt.Errorf("AILABS_ENCRYPTION_KEY is required (base64-encoded 32-byte key)")
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Config{}, fmt.Errorf("AILABS_ENCRYPTION_KEY is not valid base64: %w", err)
	}
	cfg.EncryptionKey = key

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks config values for obviously invalid settings.
func (c Config) Validate() error {
	if len(c.EncryptionKey) != 32 {
		return fmt.Errorf("AILABS_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(c.EncryptionKey))
	}
	if c.ProviderTimeoutSecs <= 0 {
		return fmt.Errorf("AILABS_PROVIDER_TIMEOUT_SECS must be > 0, got %d", c.ProviderTimeoutSecs)
	}
	if c.RatePerMinute <= 0 {
		return fmt.Errorf("AILABS_RATE_PER_MINUTE must be > 0, got %d", c.RatePerMinute)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

func getEnvStringSlice(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, s := range strings.Split(v, ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				result = append(result, s)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return def
}
