package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/njarm23/ClaudeMemories/internal/flagx"
	"github.com/njarm23/ClaudeMemories/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// either strings such as "6h" or integer nanoseconds. Zero values leave the
// current setting untouched.
type JsonConfig struct {
	ListenAddr             string         `json:"listen_addr"`
	DatabaseDSN            string         `json:"database_dsn"`
	SecretKey              string         `json:"secret_key"`
	TokenValidity          timex.Duration `json:"token_validity"`
	AuthPassword           string         `json:"auth_password"`
	AnthropicAPIKey        string         `json:"anthropic_api_key"`
	AnthropicBaseURL       string         `json:"anthropic_base_url"`
	UtilityModel           string         `json:"utility_model"`
	OpenAIAPIKey           string         `json:"openai_api_key"`
	BlobBackend            string         `json:"blob_backend"`
	S3RootUser             string         `json:"s3_root_user"`
	S3RootPassword         string         `json:"s3_root_password"`
	S3Bucket               string         `json:"s3_bucket"`
	S3Region               string         `json:"s3_region"`
	S3BaseEndpoint         string         `json:"s3_base_endpoint"`
	QueuePollInterval      timex.Duration `json:"queue_poll_interval"`
	QueueBatchSize         int            `json:"queue_batch_size"`
	QueueVisibilityTimeout timex.Duration `json:"queue_visibility_timeout"`
	QueueMaxAttempts       int            `json:"queue_max_attempts"`
	ArchiveClaimTTL        timex.Duration `json:"archive_claim_ttl"`
	ArchiveIdleDays        int            `json:"archive_idle_days"`
	BackupPassphrase       string         `json:"backup_passphrase"`
	ShutdownTimeout        timex.Duration `json:"shutdown_timeout"`
	LogLevel               string         `json:"log_level"`
	LogFile                string         `json:"log_file"`
}

// parseJson overlays the file named by -c/-config onto config. A missing
// flag means no file; an unreadable file or invalid JSON panics, since the
// process cannot start with a config it was told to use.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigFilePath(args)
	if path == "" {
		return
	}

	file, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.ListenAddr, c.ListenAddr)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.TokenValidity, c.TokenValidity)
	setString(&config.AuthPassword, c.AuthPassword)
	setString(&config.AnthropicAPIKey, c.AnthropicAPIKey)
	setString(&config.AnthropicBaseURL, c.AnthropicBaseURL)
	setString(&config.UtilityModel, c.UtilityModel)
	setString(&config.OpenAIAPIKey, c.OpenAIAPIKey)
	setString(&config.BlobBackend, c.BlobBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setDuration(&config.QueuePollInterval, c.QueuePollInterval)
	setInt(&config.QueueBatchSize, c.QueueBatchSize)
	setDuration(&config.QueueVisibilityTimeout, c.QueueVisibilityTimeout)
	setInt(&config.QueueMaxAttempts, c.QueueMaxAttempts)
	setDuration(&config.ArchiveClaimTTL, c.ArchiveClaimTTL)
	setInt(&config.ArchiveIdleDays, c.ArchiveIdleDays)
	setString(&config.BackupPassphrase, c.BackupPassphrase)
	setDuration(&config.ShutdownTimeout, c.ShutdownTimeout)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.LogFile, c.LogFile)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration != 0 {
		*dst = v.Duration
	}
}
