/**
 * @description
 * Configuration management for the lifecycle service. Settings load from
 * environment variables with defaults for every schedule, window, and retry
 * knob; only credentials and endpoints have no default.
 */
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the lifecycle service.
type Config struct {
	ServerPort           string `mapstructure:"SERVER_PORT"`
	DatabaseURL          string `mapstructure:"DATABASE_URL"`
	RabbitMQURL          string `mapstructure:"RABBITMQ_URL"`
	InternalAPIKey       string `mapstructure:"INTERNAL_API_KEY"`
	ClerkJWKSURL         string `mapstructure:"CLERK_JWKS_URL"`
	BillingAPIURL        string `mapstructure:"BILLING_API_URL"`
	BillingAPIKey        string `mapstructure:"BILLING_API_KEY"`
	BillingWebhookSecret string `mapstructure:"BILLING_WEBHOOK_SECRET"`

	GracePeriodDays          int `mapstructure:"GRACE_PERIOD_DAYS"`
	AutoConfirmDays          int `mapstructure:"AUTO_CONFIRM_DAYS"`
	DonationDueSoonDays      int `mapstructure:"DONATION_DUE_SOON_DAYS"`
	DefaultDueWindowDays     int `mapstructure:"DEFAULT_DUE_WINDOW_DAYS"`
	MaxMissedBeforeCancel    int `mapstructure:"MAX_MISSED_BEFORE_CANCEL"`
	VerificationRemindDays   int `mapstructure:"VERIFICATION_REMIND_DAYS"`
	VerificationEscalateDays int `mapstructure:"VERIFICATION_ESCALATE_DAYS"`
	VerificationResolveDays  int `mapstructure:"VERIFICATION_RESOLVE_DAYS"`
	SweepWorkerCount         int `mapstructure:"SWEEP_WORKER_COUNT"`

	RetryMaxAttempts         int `mapstructure:"RETRY_MAX_ATTEMPTS"`
	RetryInitialDelaySeconds int `mapstructure:"RETRY_INITIAL_DELAY_SECONDS"`
	RetryMaxDelaySeconds     int `mapstructure:"RETRY_MAX_DELAY_SECONDS"`

	GraceSweepSchedule         string `mapstructure:"GRACE_SWEEP_SCHEDULE"`
	PaymentSweepSchedule       string `mapstructure:"PAYMENT_SWEEP_SCHEDULE"`
	DonationSweepSchedule      string `mapstructure:"DONATION_SWEEP_SCHEDULE"`
	ReimbursementSweepSchedule string `mapstructure:"REIMBURSEMENT_SWEEP_SCHEDULE"`
	VerificationSweepSchedule  string `mapstructure:"VERIFICATION_SWEEP_SCHEDULE"`
}

// RetryInitialDelay returns the configured initial backoff as a duration.
func (c *Config) RetryInitialDelay() time.Duration {
	return time.Duration(c.RetryInitialDelaySeconds) * time.Second
}

// RetryMaxDelay returns the configured backoff cap as a duration.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelaySeconds) * time.Second
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8086")
	viper.SetDefault("GRACE_PERIOD_DAYS", 7)
	viper.SetDefault("AUTO_CONFIRM_DAYS", 7)
	viper.SetDefault("DONATION_DUE_SOON_DAYS", 3)
	viper.SetDefault("DEFAULT_DUE_WINDOW_DAYS", 7)
	viper.SetDefault("MAX_MISSED_BEFORE_CANCEL", 3)
	viper.SetDefault("VERIFICATION_REMIND_DAYS", 3)
	viper.SetDefault("VERIFICATION_ESCALATE_DAYS", 5)
	viper.SetDefault("VERIFICATION_RESOLVE_DAYS", 7)
	viper.SetDefault("SWEEP_WORKER_COUNT", 4)
	viper.SetDefault("RETRY_MAX_ATTEMPTS", 3)
	viper.SetDefault("RETRY_INITIAL_DELAY_SECONDS", 5)
	viper.SetDefault("RETRY_MAX_DELAY_SECONDS", 60)
	viper.SetDefault("GRACE_SWEEP_SCHEDULE", "15 * * * *")      // Hourly at :15.
	viper.SetDefault("PAYMENT_SWEEP_SCHEDULE", "30 2 * * *")    // Daily at 02:30 UTC.
	viper.SetDefault("DONATION_SWEEP_SCHEDULE", "0 3 * * *")    // Daily at 03:00 UTC.
	viper.SetDefault("REIMBURSEMENT_SWEEP_SCHEDULE", "45 2 * * *")
	viper.SetDefault("VERIFICATION_SWEEP_SCHEDULE", "0 */6 * * *")
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	keys := []string{
		"SERVER_PORT", "DATABASE_URL", "RABBITMQ_URL", "INTERNAL_API_KEY",
		"CLERK_JWKS_URL", "BILLING_API_URL", "BILLING_API_KEY", "BILLING_WEBHOOK_SECRET",
		"GRACE_PERIOD_DAYS", "AUTO_CONFIRM_DAYS", "DONATION_DUE_SOON_DAYS",
		"DEFAULT_DUE_WINDOW_DAYS", "MAX_MISSED_BEFORE_CANCEL",
		"VERIFICATION_REMIND_DAYS", "VERIFICATION_ESCALATE_DAYS", "VERIFICATION_RESOLVE_DAYS",
		"SWEEP_WORKER_COUNT", "RETRY_MAX_ATTEMPTS", "RETRY_INITIAL_DELAY_SECONDS",
		"RETRY_MAX_DELAY_SECONDS", "GRACE_SWEEP_SCHEDULE", "PAYMENT_SWEEP_SCHEDULE",
		"DONATION_SWEEP_SCHEDULE", "REIMBURSEMENT_SWEEP_SCHEDULE", "VERIFICATION_SWEEP_SCHEDULE",
	}
	for _, k := range keys {
		_ = viper.BindEnv(k)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
