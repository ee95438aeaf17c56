// Command print-config loads the SDK's environment-driven configuration and
// dumps it to stdout as JSON. It exists for operators to sanity-check a
// deployment's SSO4337_* environment variables without writing Go code; it
// must not import signer or bundler logic beyond config loading and display.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"

	sso4337 "github.com/smartaccount-sso/sso4337-go"
)

// redactedConfig mirrors sso4337.SDKConfig's JSON shape but passes every URL
// through redactURL first, so API keys embedded as query parameters never
// reach stdout.
type redactedConfig struct {
	ChainID    int64                  `json:"chainId"`
	RPCURL     string                 `json:"rpcUrl"`
	EntryPoint string                 `json:"entryPoint"`
	Bundler    redactedBundlerConfig  `json:"bundler"`
	Paymaster  *redactedPaymasterInfo `json:"paymaster,omitempty"`
	LogLevel   string                 `json:"logLevel"`
}

type redactedBundlerConfig struct {
	BundlerURL string `json:"bundlerUrl"`
	EntryPoint string `json:"entryPoint,omitempty"`
	ChainID    int64  `json:"chainId"`
}

type redactedPaymasterInfo struct {
	Address string `json:"address"`
	URL     string `json:"url,omitempty"`
	Type    string `json:"type"`
}

// sensitiveQueryParams lists the query parameter names known to carry API
// keys or tokens across the bundler/paymaster providers this SDK talks to
// (Pimlico's "apikey", Biconomy/Stackup's "api-key"/"token").
var sensitiveQueryParams = []string{"apikey", "api_key", "api-key", "token", "key"}

// redactURL blanks out any sensitive query parameter value in rawURL,
// leaving the host and path visible so the printed config still identifies
// which provider is configured. An unparseable URL is returned unchanged
// rather than discarded, since print-config is a read-only diagnostic.
func redactURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	redacted := false
	for _, param := range sensitiveQueryParams {
		if q.Has(param) {
			q.Set(param, "REDACTED")
			redacted = true
		}
	}
	if redacted {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func run(args []string, stdout, stderr *os.File) int {
	fs := flag.NewFlagSet("print-config", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configFile := fs.String("config", "", "optional path to a JSON config file merged before env overrides")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	var opts []sso4337.ConfigOption
	if *configFile != "" {
		opts = append(opts, sso4337.WithConfigFile(*configFile))
	}

	cfg, err := sso4337.LoadConfig(opts...)
	if err != nil {
		fmt.Fprintf(stderr, "print-config: %v\n", err)
		return 1
	}

	out := redactedConfig{
		ChainID:    cfg.ChainID,
		RPCURL:     redactURL(cfg.RPCURL),
		EntryPoint: cfg.EntryPoint.Hex(),
		Bundler: redactedBundlerConfig{
			BundlerURL: redactURL(cfg.Bundler.BundlerURL),
			EntryPoint: cfg.Bundler.EntryPoint.Hex(),
			ChainID:    cfg.Bundler.ChainID,
		},
		LogLevel: cfg.LogLevel,
	}
	if cfg.Paymaster != nil {
		out.Paymaster = &redactedPaymasterInfo{
			Address: cfg.Paymaster.Address.Hex(),
			URL:     redactURL(cfg.Paymaster.URL),
			Type:    string(cfg.Paymaster.Type),
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "print-config: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
