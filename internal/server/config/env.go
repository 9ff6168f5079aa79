package config

import (
	"errors"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from the given .env files (default ".env")
// into the process environment without overriding ones already set.
// Missing files are not an error.
func LoadDotEnv(files ...string) error {
	err := godotenv.Load(files...)
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// parseEnv overlays environment variables onto config. Unset or
// unparseable numeric values keep the current setting.
func parseEnv(config *Config, getenv func(string) string) {
	envString(getenv, "LISTEN_ADDR", &config.ListenAddr)
	envString(getenv, "DATABASE_URL", &config.DatabaseDSN)
	envString(getenv, "JWT_SECRET", &config.SecretKey)
	envDuration(getenv, "TOKEN_VALIDITY", &config.TokenValidity)
	envString(getenv, "AUTH_PASSWORD", &config.AuthPassword)
	envString(getenv, "ANTHROPIC_API_KEY", &config.AnthropicAPIKey)
	envString(getenv, "ANTHROPIC_BASE_URL", &config.AnthropicBaseURL)
	envString(getenv, "UTILITY_MODEL", &config.UtilityModel)
	envString(getenv, "OPENAI_API_KEY", &config.OpenAIAPIKey)
	envString(getenv, "BLOB_BACKEND", &config.BlobBackend)
	envString(getenv, "S3_ACCESS_KEY", &config.S3RootUser)
	envString(getenv, "S3_SECRET_KEY", &config.S3RootPassword)
	envString(getenv, "S3_BUCKET", &config.S3Bucket)
	envString(getenv, "S3_REGION", &config.S3Region)
	envString(getenv, "S3_ENDPOINT", &config.S3BaseEndpoint)
	envDuration(getenv, "QUEUE_POLL_INTERVAL", &config.QueuePollInterval)
	envInt(getenv, "QUEUE_BATCH_SIZE", &config.QueueBatchSize)
	envDuration(getenv, "QUEUE_VISIBILITY_TIMEOUT", &config.QueueVisibilityTimeout)
	envInt(getenv, "QUEUE_MAX_ATTEMPTS", &config.QueueMaxAttempts)
	envDuration(getenv, "ARCHIVE_CLAIM_TTL", &config.ArchiveClaimTTL)
	envInt(getenv, "ARCHIVE_IDLE_DAYS", &config.ArchiveIdleDays)
	envString(getenv, "BACKUP_PASSPHRASE", &config.BackupPassphrase)
	envDuration(getenv, "SHUTDOWN_TIMEOUT", &config.ShutdownTimeout)
	envString(getenv, "LOG_LEVEL", &config.LogLevel)
	envString(getenv, "LOG_FILE", &config.LogFile)
}

func envString(getenv func(string) string, key string, dst *string) {
	if v := getenv(key); v != "" {
		*dst = v
	}
}

func envInt(getenv func(string) string, key string, dst *int) {
	if v := getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(getenv func(string) string, key string, dst *time.Duration) {
	if v := getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
