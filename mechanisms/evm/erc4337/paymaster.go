package erc4337

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// sponsorshipResult is the common shape every named paymaster's sponsorship
// RPC returns: either the v0.7 unpacked fields or a v0.6 packed fallback.
type sponsorshipResult struct {
	PaymasterAndData             string `json:"paymasterAndData,omitempty"`
	Paymaster                    string `json:"paymaster,omitempty"`
	PaymasterVerificationGasLimit string `json:"paymasterVerificationGasLimit,omitempty"`
	PaymasterPostOpGasLimit      string `json:"paymasterPostOpGasLimit,omitempty"`
	PaymasterData                string `json:"paymasterData,omitempty"`
	// CallGasLimit/VerificationGasLimit/PreVerificationGas let a paymaster
	// override gas estimates it disagrees with (step 5 of the send pipeline).
	CallGasLimit         string `json:"callGasLimit,omitempty"`
	VerificationGasLimit string `json:"verificationGasLimit,omitempty"`
	PreVerificationGas   string `json:"preVerificationGas,omitempty"`
}

// mergeSponsorship returns a copy of userOp with the paymaster's response
// fields overlaid: paymaster address, its gas limits, paymasterData, and any
// gas/fee fields the paymaster chose to override.
func mergeSponsorship(userOp *UserOperation, result sponsorshipResult) *UserOperation {
	merged := *userOp

	switch {
	case result.Paymaster != "":
		paymaster := common.HexToAddress(result.Paymaster)
		merged.Paymaster = &paymaster
		if result.PaymasterVerificationGasLimit != "" {
			merged.PaymasterVerificationGasLimit = hexToBigInt(result.PaymasterVerificationGasLimit)
		}
		if result.PaymasterPostOpGasLimit != "" {
			merged.PaymasterPostOpGasLimit = hexToBigInt(result.PaymasterPostOpGasLimit)
		}
		if result.PaymasterData != "" {
			merged.PaymasterData = hexToBytes(result.PaymasterData)
		}
	case result.PaymasterAndData != "" && result.PaymasterAndData != "0x":
		data := hexToBytes(result.PaymasterAndData)
		if len(data) >= 20 {
			paymaster := common.BytesToAddress(data[:20])
			merged.Paymaster = &paymaster
		}
		if len(data) >= 52 {
			merged.PaymasterVerificationGasLimit = new(big.Int).SetBytes(data[20:36])
			merged.PaymasterPostOpGasLimit = new(big.Int).SetBytes(data[36:52])
			merged.PaymasterData = data[52:]
		} else if len(data) > 20 {
			merged.PaymasterData = data[20:]
		}
	}

	if result.CallGasLimit != "" {
		merged.CallGasLimit = hexToBigInt(result.CallGasLimit)
	}
	if result.VerificationGasLimit != "" {
		merged.VerificationGasLimit = hexToBigInt(result.VerificationGasLimit)
	}
	if result.PreVerificationGas != "" {
		merged.PreVerificationGas = hexToBigInt(result.PreVerificationGas)
	}

	return &merged
}

func paymasterRPCCall(ctx context.Context, client *http.Client, url string, headers map[string]string, requestID int, method string, params []interface{}, result interface{}) error {
	request := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      requestID,
		"method":  method,
		"params":  params,
	}

	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal paymaster request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build paymaster request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &RPCTransportError{Endpoint: url, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return &RPCTransportError{Endpoint: url, Cause: fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))}
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
		return fmt.Errorf("decode paymaster response: %w", err)
	}
	if response.Error != nil {
		return &BundlerRejectedError{Code: response.Error.Code, Message: response.Error.Message, Data: response.Error.Data}
	}
	if result != nil && len(response.Result) > 0 {
		if err := json.Unmarshal(response.Result, result); err != nil {
			return fmt.Errorf("unmarshal paymaster result: %w", err)
		}
	}
	return nil
}

// PimlicoPaymasterConfig contains configuration for the Pimlico paymaster.
type PimlicoPaymasterConfig struct {
	APIKey              string
	ChainID             int64
	PaymasterURL        string
	EntryPoint          common.Address
	SponsorshipPolicyID string
}

// PimlicoPaymaster sponsors UserOperations via Pimlico's pm_sponsorUserOperation.
type PimlicoPaymaster struct {
	chainID             int64
	paymasterURL        string
	entryPoint          common.Address
	sponsorshipPolicyID string
	httpClient          *http.Client
	requestID           int
}

// NewPimlicoPaymaster creates a new Pimlico paymaster client.
func NewPimlicoPaymaster(config PimlicoPaymasterConfig) *PimlicoPaymaster {
	paymasterURL := config.PaymasterURL
	if paymasterURL == "" {
		network := pimlicoNetwork(config.ChainID)
		paymasterURL = fmt.Sprintf("https://api.pimlico.io/v2/%s/rpc?apikey=%s", network, config.APIKey)
	}
	entryPoint := config.EntryPoint
	if entryPoint == (common.Address{}) {
		entryPoint = common.HexToAddress(EntryPointV07Address)
	}
	return &PimlicoPaymaster{
		chainID:             config.ChainID,
		paymasterURL:        paymasterURL,
		entryPoint:          entryPoint,
		sponsorshipPolicyID: config.SponsorshipPolicyID,
		httpClient:          &http.Client{Timeout: 30 * time.Second},
	}
}

// SponsorUserOperation implements PaymasterClient.
func (p *PimlicoPaymaster) SponsorUserOperation(ctx context.Context, userOp *UserOperation, chainID int64, entryPoint common.Address) (*UserOperation, error) {
	params := []interface{}{packUserOpForRPC(userOp), entryPoint.Hex()}
	if p.sponsorshipPolicyID != "" {
		params = append(params, map[string]string{"sponsorshipPolicyId": p.sponsorshipPolicyID})
	}

	p.requestID++
	var result sponsorshipResult
	if err := paymasterRPCCall(ctx, p.httpClient, p.paymasterURL, nil, p.requestID, "pm_sponsorUserOperation", params, &result); err != nil {
		return nil, err
	}
	return mergeSponsorship(userOp, result), nil
}

// BiconomyPaymasterConfig contains configuration for the Biconomy paymaster.
type BiconomyPaymasterConfig struct {
	APIKey       string
	ChainID      int64
	PaymasterURL string
	Mode         string // "sponsored" or "erc20"
}

// BiconomyPaymaster sponsors UserOperations via Biconomy's paymaster RPC.
type BiconomyPaymaster struct {
	apiKey       string
	chainID      int64
	paymasterURL string
	mode         string
	httpClient   *http.Client
	requestID    int
}

// NewBiconomyPaymaster creates a new Biconomy paymaster client.
func NewBiconomyPaymaster(config BiconomyPaymasterConfig) *BiconomyPaymaster {
	return &BiconomyPaymaster{
		apiKey:       config.APIKey,
		chainID:      config.ChainID,
		paymasterURL: config.PaymasterURL,
		mode:         config.Mode,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// SponsorUserOperation implements PaymasterClient.
func (p *BiconomyPaymaster) SponsorUserOperation(ctx context.Context, userOp *UserOperation, chainID int64, entryPoint common.Address) (*UserOperation, error) {
	request := map[string]interface{}{
		"userOperation": packUserOpForRPC(userOp),
		"entryPoint":    entryPoint.Hex(),
		"chainId":       chainID,
		"mode":          p.mode,
	}

	p.requestID++
	headers := map[string]string{"x-api-key": p.apiKey}
	var result sponsorshipResult
	if err := paymasterRPCCall(ctx, p.httpClient, p.paymasterURL, headers, p.requestID, "pm_sponsorUserOperation", []interface{}{request}, &result); err != nil {
		return nil, err
	}
	return mergeSponsorship(userOp, result), nil
}

// StackupPaymasterConfig contains configuration for the Stackup paymaster.
type StackupPaymasterConfig struct {
	APIKey       string
	ChainID      int64
	PaymasterURL string
	Type         string
}

// StackupPaymaster sponsors UserOperations via Stackup's pm_getPaymasterStubData.
type StackupPaymaster struct {
	apiKey       string
	chainID      int64
	paymasterURL string
	pmType       string
	httpClient   *http.Client
	requestID    int
}

// NewStackupPaymaster creates a new Stackup paymaster client.
func NewStackupPaymaster(config StackupPaymasterConfig) *StackupPaymaster {
	return &StackupPaymaster{
		apiKey:       config.APIKey,
		chainID:      config.ChainID,
		paymasterURL: config.PaymasterURL,
		pmType:       config.Type,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// SponsorUserOperation implements PaymasterClient.
func (p *StackupPaymaster) SponsorUserOperation(ctx context.Context, userOp *UserOperation, chainID int64, entryPoint common.Address) (*UserOperation, error) {
	context := map[string]interface{}{}
	if p.pmType != "" {
		context["type"] = p.pmType
	}

	p.requestID++
	headers := map[string]string{"Authorization": "Bearer " + p.apiKey}
	var result sponsorshipResult
	params := []interface{}{packUserOpForRPC(userOp), entryPoint.Hex(), fmt.Sprintf("0x%x", chainID), context}
	if err := paymasterRPCCall(ctx, p.httpClient, p.paymasterURL, headers, p.requestID, "pm_getPaymasterStubData", params, &result); err != nil {
		return nil, err
	}
	return mergeSponsorship(userOp, result), nil
}
