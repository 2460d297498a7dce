package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/speedrun-hq/spacewalk-tester/pkg/models"
	"github.com/speedrun-hq/spacewalk-tester/pkg/stellar"
	"github.com/spf13/viper"
)

// TesterFile is the raw structure of the tester config file
type TesterFile struct {
	CompletionWindowMinutes          int              `mapstructure:"completionWindowMinutes"`
	IssueConfirmationTimeoutMinutes  int              `mapstructure:"issueConfirmationTimeoutMinutes"`
	RedeemConfirmationTimeoutMinutes int              `mapstructure:"redeemConfirmationTimeoutMinutes"`
	BridgedAmount                    string           `mapstructure:"bridgedAmount"`
	TestDelayIntervalMinutes         int              `mapstructure:"testDelayIntervalMinutes"`
	ParachainSecrets                 []SecretEntry    `mapstructure:"parachainSecrets"`
	Networks                         []NetworkEntry   `mapstructure:"networks"`
	AssetDecimals                    map[string]int32 `mapstructure:"assetDecimals"`
}

// SecretEntry is the signing secret of one network
type SecretEntry struct {
	NetworkName string `mapstructure:"networkName"`
	URI         string `mapstructure:"uri"`
}

// NetworkEntry is one network with the vaults tested on it
type NetworkEntry struct {
	Name           string       `mapstructure:"name"`
	WSS            string       `mapstructure:"wss"`
	StellarMainnet bool         `mapstructure:"stellarMainnet"`
	TestedVaults   []VaultEntry `mapstructure:"testedVaults"`
}

// VaultEntry is a vault id as written in the file plus its Stellar account
type VaultEntry struct {
	ID             map[string]any `mapstructure:"id"`
	StellarAccount string         `mapstructure:"stellarAccount"`
}

// TesterConfig is the validated tester file
type TesterConfig struct {
	CompletionWindow time.Duration
	IssueTimeout     time.Duration
	RedeemTimeout    time.Duration
	RetestInterval   time.Duration
	BridgedAmount    *big.Int
	Networks         []models.NetworkConfig
	Vaults           []models.VaultUnderTest
	Secrets          map[string]string
	Decimals         stellar.Decimals
}

// LoadTesterFile reads and validates the tester file at path
func LoadTesterFile(path string) (*TesterConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read tester config %s: %w", path, err)
	}

	var file TesterFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tester config: %w", err)
	}
	return file.Build()
}

// Build validates the file and resolves it into domain types
func (f *TesterFile) Build() (*TesterConfig, error) {
	if f.CompletionWindowMinutes <= 0 {
		return nil, fmt.Errorf("completionWindowMinutes must be greater than 0")
	}
	if f.TestDelayIntervalMinutes <= 0 {
		return nil, fmt.Errorf("testDelayIntervalMinutes must be greater than 0")
	}
	if f.IssueConfirmationTimeoutMinutes < 0 || f.RedeemConfirmationTimeoutMinutes < 0 {
		return nil, fmt.Errorf("confirmation timeouts must not be negative")
	}

	amount, err := parseAmount(f.BridgedAmount)
	if err != nil {
		return nil, fmt.Errorf("invalid bridgedAmount: %w", err)
	}

	cfg := &TesterConfig{
		CompletionWindow: minutes(f.CompletionWindowMinutes),
		IssueTimeout:     minutes(f.IssueConfirmationTimeoutMinutes),
		RedeemTimeout:    minutes(f.RedeemConfirmationTimeoutMinutes),
		RetestInterval:   minutes(f.TestDelayIntervalMinutes),
		BridgedAmount:    amount,
		Secrets:          make(map[string]string),
		Decimals:         make(stellar.Decimals),
	}
	// confirmation timeouts fall back to the completion window
	if cfg.IssueTimeout == 0 {
		cfg.IssueTimeout = cfg.CompletionWindow
	}
	if cfg.RedeemTimeout == 0 {
		cfg.RedeemTimeout = cfg.CompletionWindow
	}

	for _, s := range f.ParachainSecrets {
		cfg.Secrets[s.NetworkName] = s.URI
	}

	if len(f.Networks) == 0 {
		return nil, fmt.Errorf("at least one network is required")
	}
	seen := make(map[string]bool)
	for _, n := range f.Networks {
		if n.Name == "" || n.WSS == "" {
			return nil, fmt.Errorf("every network needs a name and a wss endpoint")
		}
		if seen[n.Name] {
			return nil, fmt.Errorf("network %s is configured twice", n.Name)
		}
		seen[n.Name] = true
		if cfg.Secrets[n.Name] == "" {
			return nil, fmt.Errorf("URI for network %s is undefined", n.Name)
		}

		network := models.NetworkConfig{Name: n.Name, WSS: n.WSS, StellarMainnet: n.StellarMainnet}
		cfg.Networks = append(cfg.Networks, network)

		for i, vault := range n.TestedVaults {
			id, err := models.ParseVaultID(vault.ID)
			if err != nil {
				return nil, fmt.Errorf("network %s vault %d: %w", n.Name, i, err)
			}
			if _, err := models.StellarKeyFromAddress(vault.StellarAccount); err != nil {
				return nil, fmt.Errorf("network %s vault %d: invalid stellarAccount %q", n.Name, i, vault.StellarAccount)
			}
			if _, err := stellar.Asset(id.Wrapped); err != nil {
				return nil, fmt.Errorf("network %s vault %d: %w", n.Name, i, err)
			}
			cfg.Vaults = append(cfg.Vaults, models.VaultUnderTest{
				ID:             id,
				StellarAccount: vault.StellarAccount,
				Network:        network,
			})
		}
	}

	for key, n := range f.AssetDecimals {
		if n < 0 || n > 38 {
			return nil, fmt.Errorf("assetDecimals %s: %d is out of range", key, n)
		}
		cfg.Decimals[decimalsKey(key)] = n
	}

	return cfg, nil
}

// decimalsKey restores the case of a decimals table key. The config loader
// lowercases map keys while Stellar codes and issuers are upper case.
func decimalsKey(key string) string {
	if strings.EqualFold(key, "native") {
		return "native"
	}
	return strings.ToUpper(key)
}

func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return nil, fmt.Errorf("amount is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, err
	}
	if !d.IsInteger() || d.Sign() <= 0 {
		return nil, fmt.Errorf("%s must be a positive integer in the ledger's smallest unit", raw)
	}
	return d.BigInt(), nil
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
