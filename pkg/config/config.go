package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
)

// Config holds the configuration of the tester
type Config struct {
	Port           string
	MetricsAPIKey  string
	Slack          SlackConfig
	Stellar        StellarConfig
	CircuitBreaker CircuitBreakerConfig
	LoggerConfig   LoggerConfig
	Tester         *TesterConfig
}

// SlackConfig holds the operator notification settings
type SlackConfig struct {
	Token    string
	Disabled bool
}

// StellarConfig holds the tester accounts and Horizon endpoints
type StellarConfig struct {
	MainnetSecret  string
	TestnetSecret  string
	MainnetHorizon string
	TestnetHorizon string
	TxValidity     time.Duration
	MaxFee         int64
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	Enabled        bool
	Threshold      int
	WindowDuration time.Duration
	ResetTimeout   time.Duration
}

// LoggerConfig holds the configuration for logging
type LoggerConfig struct {
	Level    logger.Level
	Coloring bool
}

// LoadConfig loads the configuration from environment variables and the tester file
func LoadConfig() (*Config, error) {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	port, err := GetEnvPort()
	if err != nil {
		return nil, err
	}

	slackDisabled, err := GetEnvSlackDisabled()
	if err != nil {
		return nil, err
	}

	slackToken, err := GetEnvSlackToken(slackDisabled)
	if err != nil {
		return nil, err
	}

	mainnetSecret, err := GetEnvStellarSecret(true)
	if err != nil {
		return nil, err
	}

	testnetSecret, err := GetEnvStellarSecret(false)
	if err != nil {
		return nil, err
	}

	mainnetHorizon, err := GetEnvHorizonURL(true)
	if err != nil {
		return nil, err
	}

	testnetHorizon, err := GetEnvHorizonURL(false)
	if err != nil {
		return nil, err
	}

	txValidity, err := GetEnvStellarTxValidity()
	if err != nil {
		return nil, err
	}

	maxFee, err := GetEnvStellarMaxFee()
	if err != nil {
		return nil, err
	}

	cbEnabled, err := GetEnvCircuitBreakerEnabled()
	if err != nil {
		return nil, err
	}

	cbThreshold, err := GetEnvCircuitBreakerThreshold()
	if err != nil {
		return nil, err
	}

	cbWindow, err := GetEnvCircuitBreakerWindow()
	if err != nil {
		return nil, err
	}

	cbReset, err := GetEnvCircuitBreakerReset()
	if err != nil {
		return nil, err
	}

	logLevel, err := GetEnvLogLevel()
	if err != nil {
		return nil, err
	}

	logColoring, err := GetEnvLogColoring()
	if err != nil {
		return nil, err
	}

	tester, err := LoadTesterFile(GetEnvTesterConfigFile())
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:          port,
		MetricsAPIKey: GetEnvMetricsAPIKey(),
		Slack: SlackConfig{
			Token:    slackToken,
			Disabled: slackDisabled,
		},
		Stellar: StellarConfig{
			MainnetSecret:  mainnetSecret,
			TestnetSecret:  testnetSecret,
			MainnetHorizon: mainnetHorizon,
			TestnetHorizon: testnetHorizon,
			TxValidity:     txValidity,
			MaxFee:         maxFee,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:        cbEnabled,
			Threshold:      cbThreshold,
			WindowDuration: cbWindow,
			ResetTimeout:   cbReset,
		},
		LoggerConfig: LoggerConfig{
			Level:    logLevel,
			Coloring: logColoring,
		},
		Tester: tester,
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks settings that span the environment and the tester file
func validateConfig(cfg *Config) error {
	if cfg.Tester == nil {
		return fmt.Errorf("tester config is required")
	}
	if len(cfg.Tester.Vaults) == 0 {
		return fmt.Errorf("at least one tested vault is required")
	}
	if !cfg.Slack.Disabled && cfg.Slack.Token == "" {
		return fmt.Errorf("SLACK_WEB_HOOK_TOKEN environment variable is required")
	}
	return nil
}
