package sso4337

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartaccount-sso/sso4337-go/mechanisms/evm/erc4337"
)

// envPrefix is the prefix every SDKConfig environment variable carries.
const envPrefix = "SSO4337_"

// SDKConfig is the SDK's top-level runtime configuration: which chain to
// talk to, how to reach it, which bundler/paymaster backends to use, and how
// verbosely to log. It never holds a private key or other signing secret —
// callers wire signers (package signers/evm, signers/webauthn) separately.
type SDKConfig struct {
	ChainID    int64
	RPCURL     string
	EntryPoint common.Address
	Bundler    erc4337.BundlerConfig
	Paymaster  *erc4337.PaymasterConfig
	GasFees    GasFeeOverrides
	LogLevel   string

	loadErr error
}

// GasFeeOverrides replaces the C9 pipeline's built-in default fee constants
// when non-zero. A zero field leaves the pipeline's own default in effect.
type GasFeeOverrides struct {
	MaxPriorityFeePerGas *common.Hash
	MaxFeePerGas         *common.Hash
}

// configFile mirrors SDKConfig's JSON/YAML-file shape. Fields are strings at
// this layer because addresses and hashes arrive as hex text on disk; they
// are parsed and validated when merged into an SDKConfig.
type configFile struct {
	ChainID    int64  `json:"chainId" yaml:"chainId"`
	RPCURL     string `json:"rpcUrl" yaml:"rpcUrl"`
	EntryPoint string `json:"entryPoint" yaml:"entryPoint"`
	BundlerURL string `json:"bundlerUrl" yaml:"bundlerUrl"`
	Paymaster  *struct {
		Address string `json:"address" yaml:"address"`
		URL     string `json:"url" yaml:"url"`
		Type    string `json:"type" yaml:"type"`
	} `json:"paymaster" yaml:"paymaster"`
	LogLevel string `json:"logLevel" yaml:"logLevel"`
}

// ConfigOption overrides one field of the config LoadConfig builds, applied
// after the environment and optional file are merged.
type ConfigOption func(*SDKConfig)

// WithChainID overrides the chain ID.
func WithChainID(chainID int64) ConfigOption {
	return func(c *SDKConfig) { c.ChainID = chainID }
}

// WithRPCURL overrides the JSON-RPC URL used for on-chain reads.
func WithRPCURL(url string) ConfigOption {
	return func(c *SDKConfig) { c.RPCURL = url }
}

// WithEntryPoint overrides the EntryPoint contract address.
func WithEntryPoint(addr common.Address) ConfigOption {
	return func(c *SDKConfig) { c.EntryPoint = addr }
}

// WithBundlerURL overrides the bundler's JSON-RPC URL.
func WithBundlerURL(url string) ConfigOption {
	return func(c *SDKConfig) { c.Bundler.BundlerURL = url }
}

// WithLogLevel overrides the structured-logging verbosity ("debug", "info",
// "warn", or "error").
func WithLogLevel(level string) ConfigOption {
	return func(c *SDKConfig) { c.LogLevel = level }
}

// WithConfigFile merges a JSON or YAML file's contents in before opts are
// applied. A missing file is an error; an absent WithConfigFile call is not
// — env vars alone are a complete configuration.
func WithConfigFile(path string) ConfigOption {
	return func(c *SDKConfig) {
		data, err := os.ReadFile(path)
		if err != nil {
			c.loadErr = &ConfigError{Field: "ConfigFile", Err: fmt.Errorf("read %q: %w", path, err)}
			return
		}
		var file configFile
		if err := json.Unmarshal(data, &file); err != nil {
			c.loadErr = &ConfigError{Field: "ConfigFile", Err: fmt.Errorf("parse %q: %w", path, err)}
			return
		}
		mergeConfigFile(c, file)
	}
}

func mergeConfigFile(c *SDKConfig, file configFile) {
	if file.ChainID != 0 {
		c.ChainID = file.ChainID
	}
	if file.RPCURL != "" {
		c.RPCURL = file.RPCURL
	}
	if file.EntryPoint != "" {
		c.EntryPoint = common.HexToAddress(file.EntryPoint)
	}
	if file.BundlerURL != "" {
		c.Bundler.BundlerURL = file.BundlerURL
	}
	if file.LogLevel != "" {
		c.LogLevel = file.LogLevel
	}
	if file.Paymaster != nil {
		c.Paymaster = &erc4337.PaymasterConfig{
			Address: common.HexToAddress(file.Paymaster.Address),
			URL:     file.Paymaster.URL,
			Type:    erc4337.PaymasterType(file.Paymaster.Type),
		}
	}
}

// LoadConfig builds an SDKConfig from SSO4337_-prefixed environment
// variables, then applies opts in order (WithConfigFile included, so a file
// passed as an option can still be overridden by a later WithXxx call).
// LoadConfig never reads a private key; it returns a descriptive error and a
// nil config — never a partially-filled one — on any validation failure.
func LoadConfig(opts ...ConfigOption) (*SDKConfig, error) {
	cfg := &SDKConfig{
		Bundler:  erc4337.BundlerConfig{},
		LogLevel: "info",
	}

	if v := os.Getenv(envPrefix + "CHAIN_ID"); v != "" {
		chainID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, &ConfigError{Field: "ChainID", Err: fmt.Errorf("%sCHAIN_ID=%q: %w", envPrefix, v, err)}
		}
		cfg.ChainID = chainID
	}
	cfg.RPCURL = os.Getenv(envPrefix + "RPC_URL")
	if v := os.Getenv(envPrefix + "ENTRY_POINT"); v != "" {
		cfg.EntryPoint = common.HexToAddress(v)
	}
	cfg.Bundler.BundlerURL = os.Getenv(envPrefix + "BUNDLER_URL")
	if v := os.Getenv(envPrefix + "PAYMASTER_ADDRESS"); v != "" {
		cfg.Paymaster = &erc4337.PaymasterConfig{
			Address: common.HexToAddress(v),
			URL:     os.Getenv(envPrefix + "PAYMASTER_URL"),
			Type:    erc4337.PaymasterType(os.Getenv(envPrefix + "PAYMASTER_TYPE")),
		}
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	for _, opt := range opts {
		opt(cfg)
		if cfg.loadErr != nil {
			return nil, cfg.loadErr
		}
	}

	cfg.Bundler.ChainID = cfg.ChainID
	cfg.Bundler.EntryPoint = cfg.EntryPoint

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *SDKConfig) validate() error {
	if c.ChainID == 0 {
		return &ConfigError{Field: "ChainID", Err: fmt.Errorf("%sCHAIN_ID is required", envPrefix)}
	}
	if !erc4337.IsSupportedChain(c.ChainID) {
		return &ConfigError{Field: "ChainID", Err: fmt.Errorf("chain ID %d is not a supported chain", c.ChainID)}
	}
	if c.RPCURL == "" {
		return &ConfigError{Field: "RPCURL", Err: fmt.Errorf("%sRPC_URL is required", envPrefix)}
	}
	if c.EntryPoint == (common.Address{}) {
		return &ConfigError{Field: "EntryPoint", Err: fmt.Errorf("%sENTRY_POINT is required", envPrefix)}
	}
	if c.Bundler.BundlerURL == "" {
		return &ConfigError{Field: "Bundler.BundlerURL", Err: fmt.Errorf("%sBUNDLER_URL is required", envPrefix)}
	}
	return nil
}
