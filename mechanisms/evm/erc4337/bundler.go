package erc4337

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// BackoffConfig controls the bounded exponential backoff with jitter used by
// WaitForReceipt between bundler polls.
type BackoffConfig struct {
	Base       time.Duration
	Multiplier float64
	MaxDelay   time.Duration
	Jitter     time.Duration
	Attempts   int
}

// DefaultBackoff is used by every bundler client unless overridden.
var DefaultBackoff = BackoffConfig{
	Base:       1000 * time.Millisecond,
	Multiplier: 2,
	MaxDelay:   10000 * time.Millisecond,
	Jitter:     100 * time.Millisecond,
	Attempts:   5,
}

func (b BackoffConfig) delay(attempt int) time.Duration {
	scaled := float64(b.Base) * pow(b.Multiplier, attempt)
	capped := time.Duration(scaled)
	if capped > b.MaxDelay {
		capped = b.MaxDelay
	}
	if b.Jitter > 0 {
		capped += time.Duration(rand.Int63n(int64(b.Jitter) + 1))
	}
	return capped
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// GenericBundlerClient is a generic eth_* JSON-RPC bundler client, the
// fallback backend when no named provider integration applies.
type GenericBundlerClient struct {
	bundlerURL string
	entryPoint common.Address
	chainID    int64
	requestID  int
	httpClient *http.Client
	backoff    BackoffConfig
}

// NewBundlerClient creates a new generic bundler client.
func NewBundlerClient(config BundlerConfig) *GenericBundlerClient {
	entryPoint := config.EntryPoint
	if entryPoint == (common.Address{}) {
		entryPoint = common.HexToAddress(EntryPointV07Address)
	}

	return &GenericBundlerClient{
		bundlerURL: config.BundlerURL,
		entryPoint: entryPoint,
		chainID:    config.ChainID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		backoff:    DefaultBackoff,
	}
}

// SendUserOperation submits a UserOperation to the bundler.
func (c *GenericBundlerClient) SendUserOperation(ctx context.Context, userOp *UserOperation, entryPoint common.Address) (common.Hash, error) {
	params := packUserOpForRPC(userOp)

	var result string
	if err := c.rpcCall(ctx, BundlerMethods.SendUserOperation, []interface{}{params, entryPoint.Hex()}, &result); err != nil {
		return common.Hash{}, err
	}

	return common.HexToHash(result), nil
}

// EstimateUserOperationGas estimates gas for a UserOperation.
func (c *GenericBundlerClient) EstimateUserOperationGas(ctx context.Context, userOp *UserOperation, entryPoint common.Address) (*GasEstimate, error) {
	params := packUserOpForRPC(userOp)

	var result struct {
		VerificationGasLimit          string `json:"verificationGasLimit"`
		CallGasLimit                  string `json:"callGasLimit"`
		PreVerificationGas            string `json:"preVerificationGas"`
		PaymasterVerificationGasLimit string `json:"paymasterVerificationGasLimit,omitempty"`
		PaymasterPostOpGasLimit       string `json:"paymasterPostOpGasLimit,omitempty"`
	}

	if err := c.rpcCall(ctx, BundlerMethods.EstimateUserOperationGas, []interface{}{params, entryPoint.Hex()}, &result); err != nil {
		return nil, &EstimationFailedError{Cause: err}
	}

	estimate := &GasEstimate{
		VerificationGasLimit: hexToBigInt(result.VerificationGasLimit),
		CallGasLimit:         hexToBigInt(result.CallGasLimit),
		PreVerificationGas:   hexToBigInt(result.PreVerificationGas),
	}

	if result.PaymasterVerificationGasLimit != "" {
		estimate.PaymasterVerificationGasLimit = hexToBigInt(result.PaymasterVerificationGasLimit)
	}
	if result.PaymasterPostOpGasLimit != "" {
		estimate.PaymasterPostOpGasLimit = hexToBigInt(result.PaymasterPostOpGasLimit)
	}

	return estimate, nil
}

// GetUserOperationByHash retrieves a previously submitted UserOperation by
// its hash, or nil if the bundler has not seen it.
func (c *GenericBundlerClient) GetUserOperationByHash(ctx context.Context, hash common.Hash) (*UserOperation, error) {
	var result struct {
		UserOperation map[string]interface{} `json:"userOperation"`
		EntryPoint    string                 `json:"entryPoint"`
	}

	if err := c.rpcCall(ctx, BundlerMethods.GetUserOperationByHash, []interface{}{hash.Hex()}, &result); err != nil {
		return nil, err
	}

	if result.UserOperation == nil {
		return nil, nil
	}

	return parseUserOp(result.UserOperation), nil
}

// GetUserOperationReceipt retrieves the receipt for a UserOperation, or nil
// if it has not landed yet.
func (c *GenericBundlerClient) GetUserOperationReceipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error) {
	var result struct {
		UserOpHash    string `json:"userOpHash"`
		Sender        string `json:"sender"`
		Nonce         string `json:"nonce"`
		Paymaster     string `json:"paymaster,omitempty"`
		ActualGasCost string `json:"actualGasCost"`
		ActualGasUsed string `json:"actualGasUsed"`
		Success       bool   `json:"success"`
		Reason        string `json:"reason,omitempty"`
		Receipt       struct {
			TransactionHash string `json:"transactionHash"`
			BlockNumber     string `json:"blockNumber"`
			BlockHash       string `json:"blockHash"`
		} `json:"receipt"`
	}

	if err := c.rpcCall(ctx, BundlerMethods.GetUserOperationReceipt, []interface{}{hash.Hex()}, &result); err != nil {
		return nil, err
	}

	if result.UserOpHash == "" {
		return nil, nil
	}

	receipt := &UserOperationReceipt{
		UserOpHash:    common.HexToHash(result.UserOpHash),
		Sender:        common.HexToAddress(result.Sender),
		Nonce:         hexToBigInt(result.Nonce),
		ActualGasCost: hexToBigInt(result.ActualGasCost),
		ActualGasUsed: hexToBigInt(result.ActualGasUsed),
		Success:       result.Success,
		Reason:        result.Reason,
		Receipt: TransactionReceipt{
			TransactionHash: common.HexToHash(result.Receipt.TransactionHash),
			BlockNumber:     hexToBigInt(result.Receipt.BlockNumber),
			BlockHash:       common.HexToHash(result.Receipt.BlockHash),
		},
	}

	if result.Paymaster != "" && result.Paymaster != "0x" {
		paymaster := common.HexToAddress(result.Paymaster)
		receipt.Paymaster = &paymaster
	}

	return receipt, nil
}

// GetSupportedEntryPoints returns supported EntryPoint addresses.
func (c *GenericBundlerClient) GetSupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var result []string
	if err := c.rpcCall(ctx, BundlerMethods.SupportedEntryPoints, []interface{}{}, &result); err != nil {
		return nil, err
	}

	addresses := make([]common.Address, len(result))
	for i, addr := range result {
		addresses[i] = common.HexToAddress(addr)
	}

	return addresses, nil
}

// WaitForReceipt polls for a UserOperation receipt using bounded exponential
// backoff with jitter (delay_k = min(base*multiplier^k, max) + U(0, jitter)),
// stopping after backoff.Attempts polls or when ctx is cancelled.
func (c *GenericBundlerClient) WaitForReceipt(ctx context.Context, hash common.Hash) (*UserOperationReceipt, error) {
	for attempt := 0; attempt < c.backoff.Attempts; attempt++ {
		receipt, err := c.GetUserOperationReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff.delay(attempt)):
		}
	}

	return nil, &ReceiptTimeoutError{UserOpHash: hash, Attempts: c.backoff.Attempts}
}

// packUserOpForRPC renders a UserOperation as the unpacked hex-field object
// the bundler JSON-RPC methods expect.
func packUserOpForRPC(userOp *UserOperation) map[string]interface{} {
	params := map[string]interface{}{
		"sender":               userOp.Sender.Hex(),
		"nonce":                bigIntToHex(userOp.Nonce),
		"callData":             bytesToHex(userOp.CallData),
		"callGasLimit":         bigIntToHex(userOp.CallGasLimit),
		"verificationGasLimit": bigIntToHex(userOp.VerificationGasLimit),
		"preVerificationGas":   bigIntToHex(userOp.PreVerificationGas),
		"maxFeePerGas":         bigIntToHex(userOp.MaxFeePerGas),
		"maxPriorityFeePerGas": bigIntToHex(userOp.MaxPriorityFeePerGas),
		"signature":            bytesToHex(userOp.Signature),
	}

	if userOp.Factory != nil {
		params["factory"] = userOp.Factory.Hex()
		params["factoryData"] = bytesToHex(userOp.FactoryData)
	}
	if userOp.Paymaster != nil {
		params["paymaster"] = userOp.Paymaster.Hex()
		params["paymasterVerificationGasLimit"] = bigIntToHex(userOp.PaymasterVerificationGasLimit)
		params["paymasterPostOpGasLimit"] = bigIntToHex(userOp.PaymasterPostOpGasLimit)
		params["paymasterData"] = bytesToHex(userOp.PaymasterData)
	}

	return params
}

// rpcCall makes a JSON-RPC call to the bundler.
func (c *GenericBundlerClient) rpcCall(ctx context.Context, method string, params []interface{}, result interface{}) error {
	c.requestID++

	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      c.requestID,
		"method":  method,
		"params":  params,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal bundler request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.bundlerURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build bundler request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &RPCTransportError{Endpoint: c.bundlerURL, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &RPCTransportError{Endpoint: c.bundlerURL, Cause: fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))}
	}

	var response struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Code    int             `json:"code"`
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data,omitempty"`
		} `json:"error"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("decode bundler response: %w", err)
	}

	if response.Error != nil {
		return &BundlerRejectedError{Code: response.Error.Code, Message: response.Error.Message, Data: response.Error.Data}
	}

	if result != nil && len(response.Result) > 0 {
		if err := json.Unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("unmarshal bundler result: %w", err)
		}
	}

	return nil
}

// parseUserOp reconstructs a UserOperation from a bundler's
// eth_getUserOperationByHash JSON map, mirroring the unpacked v0.7/v0.8
// wire fields packUserOpForRPC sends.
func parseUserOp(data map[string]interface{}) *UserOperation {
	userOp := &UserOperation{}

	if sender, ok := data["sender"].(string); ok {
		userOp.Sender = common.HexToAddress(sender)
	}
	if nonce, ok := data["nonce"].(string); ok {
		userOp.Nonce = hexToBigInt(nonce)
	}
	if callData, ok := data["callData"].(string); ok {
		userOp.CallData = hexToBytes(callData)
	}
	if callGasLimit, ok := data["callGasLimit"].(string); ok {
		userOp.CallGasLimit = hexToBigInt(callGasLimit)
	}
	if verificationGasLimit, ok := data["verificationGasLimit"].(string); ok {
		userOp.VerificationGasLimit = hexToBigInt(verificationGasLimit)
	}
	if preVerificationGas, ok := data["preVerificationGas"].(string); ok {
		userOp.PreVerificationGas = hexToBigInt(preVerificationGas)
	}
	if maxFeePerGas, ok := data["maxFeePerGas"].(string); ok {
		userOp.MaxFeePerGas = hexToBigInt(maxFeePerGas)
	}
	if maxPriorityFeePerGas, ok := data["maxPriorityFeePerGas"].(string); ok {
		userOp.MaxPriorityFeePerGas = hexToBigInt(maxPriorityFeePerGas)
	}
	if factory, ok := data["factory"].(string); ok && factory != "" && factory != "0x" {
		addr := common.HexToAddress(factory)
		userOp.Factory = &addr
	}
	if factoryData, ok := data["factoryData"].(string); ok {
		userOp.FactoryData = hexToBytes(factoryData)
	}
	if paymaster, ok := data["paymaster"].(string); ok && paymaster != "" && paymaster != "0x" {
		addr := common.HexToAddress(paymaster)
		userOp.Paymaster = &addr
	}
	if pmVerifGas, ok := data["paymasterVerificationGasLimit"].(string); ok && pmVerifGas != "" {
		userOp.PaymasterVerificationGasLimit = hexToBigInt(pmVerifGas)
	}
	if pmPostOpGas, ok := data["paymasterPostOpGasLimit"].(string); ok && pmPostOpGas != "" {
		userOp.PaymasterPostOpGasLimit = hexToBigInt(pmPostOpGas)
	}
	if paymasterData, ok := data["paymasterData"].(string); ok {
		userOp.PaymasterData = hexToBytes(paymasterData)
	}
	if signature, ok := data["signature"].(string); ok {
		userOp.Signature = hexToBytes(signature)
	}

	return userOp
}

// Helper functions.

func bigIntToHex(n *big.Int) string {
	if n == nil {
		return "0x0"
	}
	return "0x" + n.Text(16)
}

func bytesToHex(b []byte) string {
	if len(b) == 0 {
		return "0x"
	}
	return "0x" + hex.EncodeToString(b)
}

func hexToBigInt(s string) *big.Int {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return big.NewInt(0)
	}
	n := new(big.Int)
	n.SetString(s, 16)
	return n
}

func hexToBytes(s string) []byte {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil
	}
	b, _ := hex.DecodeString(s)
	return b
}
