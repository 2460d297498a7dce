package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/speedrun-hq/spacewalk-tester/pkg/logger"
	"github.com/stellar/go/keypair"
)

const (
	// DefaultPort is the port of the status server
	DefaultPort = "5000"

	// DefaultTesterConfigFile is the tester file read when TESTER_CONFIG_FILE is unset
	DefaultTesterConfigFile = "config.json"

	// DefaultCircuitBreakerEnabled defines whether the circuit breaker is enabled
	DefaultCircuitBreakerEnabled = true

	// DefaultCircuitBreakerThreshold is the number of failed cycles before a network is skipped
	DefaultCircuitBreakerThreshold = 3

	// DefaultCircuitBreakerWindow is the window in which failed cycles are counted
	DefaultCircuitBreakerWindow = 6 * time.Hour

	// DefaultCircuitBreakerReset is how long a tripped network is skipped
	DefaultCircuitBreakerReset = 2 * time.Hour

	// DefaultStellarTxValidityMinutes bounds the validity window of a payment
	DefaultStellarTxValidityMinutes = 30

	// DefaultStellarMaxFee caps the base fee in stroops
	DefaultStellarMaxFee = 100000

	// DefaultHorizonMainnet is the public Horizon of the Stellar mainnet
	DefaultHorizonMainnet = "https://horizon.stellar.org"

	// DefaultHorizonTestnet is the public Horizon of the Stellar testnet
	DefaultHorizonTestnet = "https://horizon-testnet.stellar.org"

	// DefaultLogLevel is used when LOG_LEVEL is unset
	DefaultLogLevel = logger.InfoLevel

	// DefaultLogColoring defines whether network prefixes are colored
	DefaultLogColoring = true
)

// GetEnvPort returns the status server port from environment variables
func GetEnvPort() (string, error) {
	port := os.Getenv("PORT")
	if port == "" {
		return DefaultPort, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return "", fmt.Errorf("invalid PORT value: %s, must be a valid integer", port)
	}
	return port, nil
}

// GetEnvTesterConfigFile returns the path of the tester file
func GetEnvTesterConfigFile() string {
	path := os.Getenv("TESTER_CONFIG_FILE")
	if path == "" {
		return DefaultTesterConfigFile
	}
	return path
}

// GetEnvStellarSecret returns the validated secret seed of the tester account
func GetEnvStellarSecret(mainnet bool) (string, error) {
	name := "STELLAR_ACCOUNT_SECRET_TESTNET"
	if mainnet {
		name = "STELLAR_ACCOUNT_SECRET_MAINNET"
	}

	secret := os.Getenv(name)
	if secret == "" {
		return "", fmt.Errorf("%s environment variable is required", name)
	}
	if _, err := keypair.ParseFull(secret); err != nil {
		return "", fmt.Errorf("invalid %s value: must be a Stellar secret seed", name)
	}
	return secret, nil
}

// GetEnvSlackDisabled returns whether operator notifications are turned off
func GetEnvSlackDisabled() (bool, error) {
	return getEnvBool("SLACK_DISABLED", false)
}

// GetEnvSlackToken returns the webhook token; it is only required when Slack is enabled
func GetEnvSlackToken(disabled bool) (string, error) {
	token := os.Getenv("SLACK_WEB_HOOK_TOKEN")
	if token == "" && !disabled {
		return "", fmt.Errorf("SLACK_WEB_HOOK_TOKEN environment variable is required unless SLACK_DISABLED=true")
	}
	return token, nil
}

// GetEnvMetricsAPIKey returns the key protecting control and metrics endpoints.
// An empty key leaves them open.
func GetEnvMetricsAPIKey() string {
	return os.Getenv("METRICS_API_KEY")
}

// GetEnvLogLevel returns the log level from environment variables
func GetEnvLogLevel() (logger.Level, error) {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return DefaultLogLevel, nil
	}

	parsed, err := logger.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("invalid LOG_LEVEL value: %s, must be one of debug, info, notice, error", level)
	}
	return parsed, nil
}

// GetEnvLogColoring returns whether log coloring is enabled
func GetEnvLogColoring() (bool, error) {
	return getEnvBool("LOG_COLORING", DefaultLogColoring)
}

// GetEnvCircuitBreakerEnabled returns whether the circuit breaker is enabled from environment variables
func GetEnvCircuitBreakerEnabled() (bool, error) {
	return getEnvBool("CIRCUIT_BREAKER_ENABLED", DefaultCircuitBreakerEnabled)
}

// GetEnvCircuitBreakerThreshold returns the circuit breaker threshold from environment variables
func GetEnvCircuitBreakerThreshold() (int, error) {
	threshold := os.Getenv("CIRCUIT_BREAKER_THRESHOLD")
	if threshold == "" {
		return DefaultCircuitBreakerThreshold, nil
	}

	thresholdInt, err := strconv.Atoi(threshold)
	if err != nil {
		return 0, fmt.Errorf("invalid CIRCUIT_BREAKER_THRESHOLD value: %s, must be an integer", threshold)
	}
	if thresholdInt <= 0 {
		return 0, fmt.Errorf("CIRCUIT_BREAKER_THRESHOLD must be greater than 0")
	}
	return thresholdInt, nil
}

// GetEnvCircuitBreakerWindow returns the circuit breaker window duration from environment variables
func GetEnvCircuitBreakerWindow() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_WINDOW", DefaultCircuitBreakerWindow)
}

// GetEnvCircuitBreakerReset returns the circuit breaker reset timeout from environment variables
func GetEnvCircuitBreakerReset() (time.Duration, error) {
	return getEnvDuration("CIRCUIT_BREAKER_RESET", DefaultCircuitBreakerReset)
}

// GetEnvStellarTxValidity returns how long a built payment stays valid
func GetEnvStellarTxValidity() (time.Duration, error) {
	minutes := os.Getenv("STELLAR_TX_VALIDITY_MINUTES")
	if minutes == "" {
		return DefaultStellarTxValidityMinutes * time.Minute, nil
	}

	n, err := strconv.Atoi(minutes)
	if err != nil {
		return 0, fmt.Errorf("invalid STELLAR_TX_VALIDITY_MINUTES value: %s, must be an integer", minutes)
	}
	if n <= 0 {
		return 0, fmt.Errorf("STELLAR_TX_VALIDITY_MINUTES must be greater than 0")
	}
	return time.Duration(n) * time.Minute, nil
}

// GetEnvStellarMaxFee returns the base fee cap in stroops
func GetEnvStellarMaxFee() (int64, error) {
	maxFee := os.Getenv("STELLAR_MAX_FEE")
	if maxFee == "" {
		return DefaultStellarMaxFee, nil
	}

	n, err := strconv.ParseInt(maxFee, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid STELLAR_MAX_FEE value: %s, must be an integer", maxFee)
	}
	if n < 100 {
		return 0, fmt.Errorf("STELLAR_MAX_FEE must be at least 100 stroops")
	}
	return n, nil
}

// GetEnvHorizonURL returns the Horizon endpoint of the Stellar mainnet or testnet
func GetEnvHorizonURL(mainnet bool) (string, error) {
	name, fallback := "STELLAR_HORIZON_TESTNET", DefaultHorizonTestnet
	if mainnet {
		name, fallback = "STELLAR_HORIZON_MAINNET", DefaultHorizonMainnet
	}

	endpoint := os.Getenv(name)
	if endpoint == "" {
		return fallback, nil
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return "", fmt.Errorf("invalid %s value: %s, must be a valid URL", name, endpoint)
	}
	return strings.TrimRight(endpoint, "/"), nil
}

func getEnvBool(name string, fallback bool) (bool, error) {
	value := os.Getenv(name)
	switch value {
	case "":
		return fallback, nil
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid %s value: %s, must be 'true' or 'false'", name, value)
}

func getEnvDuration(name string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value: %s, must be a valid duration string", name, value)
	}
	return parsed, nil
}
