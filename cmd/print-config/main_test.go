package main

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

func withEnv(t *testing.T, kv map[string]string) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
}

func captureOutput(t *testing.T, fn func(stdout, stderr *os.File)) (string, string) {
	t.Helper()
	outR, outW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	fn(outW, errW)
	outW.Close()
	errW.Close()

	var outBuf, errBuf bytes.Buffer
	outBuf.ReadFrom(outR)
	errBuf.ReadFrom(errR)
	return outBuf.String(), errBuf.String()
}

func TestRun_PrintsRedactedConfig(t *testing.T) {
	withEnv(t, map[string]string{
		"SSO4337_CHAIN_ID":    "84532",
		"SSO4337_RPC_URL":     "https://sepolia.base.org",
		"SSO4337_ENTRY_POINT": "0x0000000071727De22E5E9d8BAf0edAc6f37da032",
		"SSO4337_BUNDLER_URL": "https://api.pimlico.io/v2/base-sepolia/rpc?apikey=supersecret",
	})

	var code int
	stdout, stderr := captureOutput(t, func(stdout, stderr *os.File) {
		code = run(nil, stdout, stderr)
	})
	if code != 0 {
		t.Fatalf("run() exit code = %d, stderr = %q", code, stderr)
	}
	if bytes.Contains([]byte(stdout), []byte("supersecret")) {
		t.Fatalf("stdout leaked the API key: %s", stdout)
	}

	var out redactedConfig
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, stdout)
	}
	if out.ChainID != 84532 {
		t.Errorf("ChainID = %d, want 84532", out.ChainID)
	}
	if out.Bundler.BundlerURL != "https://api.pimlico.io/v2/base-sepolia/rpc?apikey=REDACTED" {
		t.Errorf("BundlerURL = %q", out.Bundler.BundlerURL)
	}
}

func TestRun_ExitsNonZeroOnInvalidConfig(t *testing.T) {
	withEnv(t, map[string]string{
		"SSO4337_CHAIN_ID":    "",
		"SSO4337_RPC_URL":     "",
		"SSO4337_ENTRY_POINT": "",
		"SSO4337_BUNDLER_URL": "",
	})

	var code int
	_, stderr := captureOutput(t, func(stdout, stderr *os.File) {
		code = run(nil, stdout, stderr)
	})
	if code == 0 {
		t.Fatal("expected non-zero exit code for missing required config")
	}
	if len(stderr) == 0 {
		t.Fatal("expected an error message on stderr")
	}
}

func TestRedactURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"https://bundler.example/rpc", "https://bundler.example/rpc"},
		{"https://api.pimlico.io/v2/base/rpc?apikey=abc123", "https://api.pimlico.io/v2/base/rpc?apikey=REDACTED"},
		{"https://bundler.example/rpc?token=xyz&chain=base", "https://bundler.example/rpc?chain=base&token=REDACTED"},
	}
	for _, c := range cases {
		if got := redactURL(c.in); got != c.want {
			t.Errorf("redactURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
