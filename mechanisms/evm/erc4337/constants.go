package erc4337

import (
	"math/big"
)

// DefaultGasLimits contains default gas limits for UserOperations before
// bundler estimation overwrites them.
var DefaultGasLimits = GasEstimate{
	VerificationGasLimit:          big.NewInt(150000),
	CallGasLimit:                  big.NewInt(100000),
	PreVerificationGas:            big.NewInt(50000),
	PaymasterVerificationGasLimit: big.NewInt(50000),
	PaymasterPostOpGasLimit:       big.NewInt(50000),
}

// DefaultMaxPriorityFeePerGas and DefaultMaxFeePerGas are the fallback fee
// values used when no fee oracle is wired in: 2 gwei priority fee and a max
// fee comfortably above current base-fee norms.
var (
	DefaultMaxPriorityFeePerGas = big.NewInt(0x77359400) // 2,000,000,000
	DefaultMaxFeePerGas         = big.NewInt(0x82e08afe) // 2,195,000,062
)

// VerificationGasInflationNum/Denom inflate a bundler's verification gas
// estimate by 6/5 to absorb variance between simulation and execution,
// mirroring the safety margin bundlers themselves apply to callGasLimit.
const (
	VerificationGasInflationNum   = 6
	VerificationGasInflationDenom = 5
)

// MaxBlockRange bounds a single eth_getLogs scan when reconstructing session
// or guardian state from on-chain events, so a long-lived account never
// forces an unbounded log fetch.
const MaxBlockRange = 100_000

// BundlerMethods contains the standard bundler JSON-RPC method names.
var BundlerMethods = struct {
	SendUserOperation        string
	EstimateUserOperationGas string
	GetUserOperationByHash   string
	GetUserOperationReceipt  string
	SupportedEntryPoints     string
	ChainID                  string
	PimlicoGasPrice          string
}{
	SendUserOperation:        "eth_sendUserOperation",
	EstimateUserOperationGas: "eth_estimateUserOperationGas",
	GetUserOperationByHash:   "eth_getUserOperationByHash",
	GetUserOperationReceipt:  "eth_getUserOperationReceipt",
	SupportedEntryPoints:     "eth_supportedEntryPoints",
	ChainID:                  "eth_chainId",
	PimlicoGasPrice:          "pimlico_getUserOperationGasPrice",
}

// PaymasterType represents the type of paymaster.
type PaymasterType string

const (
	PaymasterTypeNone       PaymasterType = "none"
	PaymasterTypeVerifying  PaymasterType = "verifying"
	PaymasterTypeToken      PaymasterType = "token"
	PaymasterTypeSponsoring PaymasterType = "sponsoring"
)

// PackAccountGasLimits packs verification and call gas limits into bytes32.
func PackAccountGasLimits(verificationGasLimit, callGasLimit *big.Int) [32]byte {
	var result [32]byte
	verificationBytes := verificationGasLimit.Bytes()
	copy(result[16-len(verificationBytes):16], verificationBytes)
	callBytes := callGasLimit.Bytes()
	copy(result[32-len(callBytes):32], callBytes)
	return result
}

// UnpackAccountGasLimits unpacks account gas limits from bytes32.
func UnpackAccountGasLimits(packed [32]byte) (verificationGasLimit, callGasLimit *big.Int) {
	verificationGasLimit = new(big.Int).SetBytes(packed[:16])
	callGasLimit = new(big.Int).SetBytes(packed[16:])
	return
}

// PackGasFees packs max priority fee and max fee per gas into bytes32.
func PackGasFees(maxPriorityFeePerGas, maxFeePerGas *big.Int) [32]byte {
	var result [32]byte
	priorityBytes := maxPriorityFeePerGas.Bytes()
	copy(result[16-len(priorityBytes):16], priorityBytes)
	maxBytes := maxFeePerGas.Bytes()
	copy(result[32-len(maxBytes):32], maxBytes)
	return result
}

// UnpackGasFees unpacks gas fees from bytes32.
func UnpackGasFees(packed [32]byte) (maxPriorityFeePerGas, maxFeePerGas *big.Int) {
	maxPriorityFeePerGas = new(big.Int).SetBytes(packed[:16])
	maxFeePerGas = new(big.Int).SetBytes(packed[16:])
	return
}

// SupportedChains lists the chain IDs the bundled backends (generic + Pimlico
// bundler, Pimlico/Biconomy/Stackup paymasters) are known to serve.
var SupportedChains = []int64{
	1,        // Ethereum Mainnet
	11155111, // Ethereum Sepolia
	8453,     // Base
	84532,    // Base Sepolia
	10,       // Optimism
	42161,    // Arbitrum One
	137,      // Polygon
}

// IsSupportedChain checks if a chain ID is in SupportedChains.
func IsSupportedChain(chainID int64) bool {
	for _, id := range SupportedChains {
		if id == chainID {
			return true
		}
	}
	return false
}
