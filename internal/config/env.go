package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables that override the YAML file
const (
	EnvWorkDir        = "SEOLOOP_WORK_DIR"
	EnvDatabasePath   = "SEOLOOP_DB"
	EnvConcurrency    = "SEOLOOP_CONCURRENCY"
	EnvRepoTimeout    = "SEOLOOP_REPO_TIMEOUT"
	EnvMaxFixes       = "SEOLOOP_MAX_FIXES"
	EnvWindowDays     = "SEOLOOP_WINDOW_DAYS"
	EnvTimeZone       = "SEOLOOP_TIME_ZONE"
	EnvAIModel        = "SEOLOOP_AI_MODEL"
	EnvImageModel     = "SEOLOOP_IMAGE_MODEL"
	EnvSMTPHost       = "SEOLOOP_SMTP_HOST"
	EnvSMTPPort       = "SEOLOOP_SMTP_PORT"
	EnvSMTPUser       = "SEOLOOP_SMTP_USER"
	EnvSMTPPassword   = "SEOLOOP_SMTP_PASSWORD"
	EnvSMTPFrom       = "SEOLOOP_SMTP_FROM"
	EnvSMTPTo         = "SEOLOOP_SMTP_TO"
	EnvRedisURL       = "REDIS_URL"
	EnvAnthropicKey   = "ANTHROPIC_API_KEY"
	EnvOpenAIKey      = "OPENAI_API_KEY"
	EnvGoogleCredFile = "GOOGLE_APPLICATION_CREDENTIALS"
)

// applyEnv overlays environment variables on the loaded file.
func (c *Config) applyEnv() error {
	var err error

	c.WorkDir = parseEnvString(EnvWorkDir, c.WorkDir)
	c.DatabasePath = parseEnvString(EnvDatabasePath, c.DatabasePath)
	c.TimeZone = parseEnvString(EnvTimeZone, c.TimeZone)
	c.RedisURL = parseEnvString(EnvRedisURL, c.RedisURL)

	if c.Concurrency, err = parseEnvInt(EnvConcurrency, c.Concurrency); err != nil {
		return err
	}
	if c.MaxFixesPerRun, err = parseEnvInt(EnvMaxFixes, c.MaxFixesPerRun); err != nil {
		return err
	}
	if c.MeasurementWindowDays, err = parseEnvInt(EnvWindowDays, c.MeasurementWindowDays); err != nil {
		return err
	}
	if c.RepoTimeout, err = parseEnvDuration(EnvRepoTimeout, c.RepoTimeout); err != nil {
		return err
	}

	c.AI.APIKey = parseEnvString(EnvAnthropicKey, c.AI.APIKey)
	c.AI.Model = parseEnvString(EnvAIModel, c.AI.Model)
	c.Images.APIKey = parseEnvString(EnvOpenAIKey, c.Images.APIKey)
	c.Images.Model = parseEnvString(EnvImageModel, c.Images.Model)
	c.Analytics.CredentialsFile = parseEnvString(EnvGoogleCredFile, c.Analytics.CredentialsFile)

	c.Email.Host = parseEnvString(EnvSMTPHost, c.Email.Host)
	c.Email.Username = parseEnvString(EnvSMTPUser, c.Email.Username)
	c.Email.Password = parseEnvString(EnvSMTPPassword, c.Email.Password)
	c.Email.From = parseEnvString(EnvSMTPFrom, c.Email.From)
	if c.Email.Port, err = parseEnvInt(EnvSMTPPort, c.Email.Port); err != nil {
		return err
	}
	if to := os.Getenv(EnvSMTPTo); to != "" {
		c.Email.To = splitList(to)
	}

	return nil
}

// parseEnvInt parses an integer from environment variable or returns default
func parseEnvInt(key string, defaultValue int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue, nil
	}

	parsed, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q (must be an integer)", key, val)
	}

	return parsed, nil
}

// parseEnvDuration accepts Go durations ("90s", "15m") or a bare number of seconds
func parseEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue, nil
	}

	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q (must be a duration)", key, val)
	}
	return d, nil
}

// parseEnvString returns environment variable value or default
func parseEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
