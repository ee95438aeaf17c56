package sso4337

import (
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		envPrefix + "CHAIN_ID",
		envPrefix + "RPC_URL",
		envPrefix + "ENTRY_POINT",
		envPrefix + "BUNDLER_URL",
		envPrefix + "PAYMASTER_ADDRESS",
		envPrefix + "PAYMASTER_URL",
		envPrefix + "PAYMASTER_TYPE",
		envPrefix + "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envPrefix+"CHAIN_ID", "84532")
	t.Setenv(envPrefix+"RPC_URL", "https://sepolia.base.org")
	t.Setenv(envPrefix+"ENTRY_POINT", "0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	t.Setenv(envPrefix+"BUNDLER_URL", "https://bundler.example/rpc")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.ChainID != 84532 {
		t.Errorf("ChainID = %d, want 84532", cfg.ChainID)
	}
	if cfg.RPCURL != "https://sepolia.base.org" {
		t.Errorf("RPCURL = %q", cfg.RPCURL)
	}
	if cfg.Bundler.BundlerURL != "https://bundler.example/rpc" {
		t.Errorf("Bundler.BundlerURL = %q", cfg.Bundler.BundlerURL)
	}
	if cfg.Bundler.ChainID != cfg.ChainID {
		t.Errorf("Bundler.ChainID = %d, want %d", cfg.Bundler.ChainID, cfg.ChainID)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want default \"info\"", cfg.LogLevel)
	}
}

func TestLoadConfig_MissingRequiredField(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envPrefix+"CHAIN_ID", "84532")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected error when RPC URL/entry point/bundler URL are unset")
	}
	var cfgErr *ConfigError
	if !asConfigError(err, &cfgErr) {
		t.Errorf("error = %v, want *ConfigError", err)
	}
}

func TestLoadConfig_UnsupportedChain(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envPrefix+"CHAIN_ID", "999999999")
	t.Setenv(envPrefix+"RPC_URL", "https://example/rpc")
	t.Setenv(envPrefix+"ENTRY_POINT", "0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	t.Setenv(envPrefix+"BUNDLER_URL", "https://bundler.example/rpc")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected error for an unsupported chain ID")
	}
}

func TestLoadConfig_OptionsOverrideEnv(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(envPrefix+"CHAIN_ID", "84532")
	t.Setenv(envPrefix+"RPC_URL", "https://sepolia.base.org")
	t.Setenv(envPrefix+"ENTRY_POINT", "0x0000000071727De22E5E9d8BAf0edAc6f37da032")
	t.Setenv(envPrefix+"BUNDLER_URL", "https://bundler.example/rpc")

	cfg, err := LoadConfig(WithRPCURL("https://override.example/rpc"), WithLogLevel("debug"))
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.RPCURL != "https://override.example/rpc" {
		t.Errorf("RPCURL = %q, want override to take effect", cfg.RPCURL)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want \"debug\"", cfg.LogLevel)
	}
}

func TestLoadConfig_ConfigFileMissing(t *testing.T) {
	clearConfigEnv(t)
	_, err := LoadConfig(WithConfigFile("/nonexistent/path/config.json"))
	if err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestLoadConfig_ConfigFileMerged(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	path := dir + "/config.json"
	contents := `{
		"chainId": 84532,
		"rpcUrl": "https://sepolia.base.org",
		"entryPoint": "0x0000000071727De22E5E9d8BAf0edAc6f37da032",
		"bundlerUrl": "https://bundler.example/rpc",
		"paymaster": {"address": "0x00427edf0c3c3bd42188ab4c907759942abebd93", "type": "sponsoring"}
	}`
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadConfig(WithConfigFile(path))
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.ChainID != 84532 {
		t.Errorf("ChainID = %d, want 84532", cfg.ChainID)
	}
	if cfg.Paymaster == nil {
		t.Fatal("expected Paymaster to be populated from the config file")
	}
	wantAddr := common.HexToAddress("0x00427edf0c3c3bd42188ab4c907759942abebd93")
	if cfg.Paymaster.Address != wantAddr {
		t.Errorf("Paymaster.Address = %s, want %s", cfg.Paymaster.Address.Hex(), wantAddr.Hex())
	}
}

func asConfigError(err error, target **ConfigError) bool {
	if ce, ok := err.(*ConfigError); ok {
		*target = ce
		return true
	}
	return false
}
