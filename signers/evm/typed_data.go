package evm

import (
	"context"
	"crypto/ecdsa"
	"encoding/binary"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/smartaccount-sso/sso4337-go/mechanisms/evm/erc4337"
)

// TypedDataDomain is an EIP-712 domain separator's input fields.
type TypedDataDomain struct {
	Name              string
	Version           string
	ChainID           int64
	VerifyingContract common.Address
}

// TypedDataField is one field of an EIP-712 struct type definition.
type TypedDataField struct {
	Name string
	Type string
}

// TypedDataSigner signs EIP-712 typed data with a plain secp256k1 key, both
// directly (plain-EOA verification) and wrapped in the nested TypedDataSign
// envelope ERC-1271 smart-account verification requires.
type TypedDataSigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewTypedDataSigner builds a TypedDataSigner from a hex-encoded private key.
func NewTypedDataSigner(privateKeyHex string) (*TypedDataSigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, &erc4337.InvalidPrivateKeyError{Cause: err}
	}
	return &TypedDataSigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}

// Address returns the signer's address.
func (s *TypedDataSigner) Address() common.Address {
	return s.address
}

// SignTypedData signs an EIP-712 struct directly: digest =
// keccak256(0x19 0x01 ‖ domainSeparator ‖ structHash), producing a plain
// 65-byte (r, s, v) signature suitable for ecrecover/EOA verification.
func (s *TypedDataSigner) SignTypedData(
	ctx context.Context,
	domain TypedDataDomain,
	types map[string][]TypedDataField,
	primaryType string,
	message map[string]interface{},
) ([]byte, error) {
	digest, _, _, err := hashTypedData(domain, types, primaryType, message)
	if err != nil {
		return nil, err
	}
	return signDigest(s.privateKey, digest)
}

// SignTypedDataSign signs message under the nested TypedDataSign envelope an
// ERC-1271 smart account verifies: the account's own EIP-712 domain
// (outerDomain) wraps a synthetic "TypedDataSign" struct whose sole field,
// contents, carries the inner message's struct hash. The returned bytes are
//
//	sig(65) ‖ outerDomainSeparator(32) ‖ innerStructHash(32) ‖
//	innerEncodedType(bytes) ‖ innerEncodedTypeLen(uint16 BE)
//
// letting the verifying contract reconstruct and check the inner digest
// against the outer signature without the SDK needing to know the account's
// verification logic.
func (s *TypedDataSigner) SignTypedDataSign(
	ctx context.Context,
	outerDomain TypedDataDomain,
	innerTypes map[string][]TypedDataField,
	innerPrimaryType string,
	innerMessage map[string]interface{},
) ([]byte, error) {
	_, innerStructHash, innerEncodedType, err := hashTypedData(outerDomain, innerTypes, innerPrimaryType, innerMessage)
	if err != nil {
		return nil, err
	}

	outerTypes := map[string][]TypedDataField{
		"TypedDataSign": {{Name: "contents", Type: "bytes32"}},
	}
	outerMessage := map[string]interface{}{
		"contents": innerStructHash,
	}
	outerDigest, _, _, err := hashTypedData(outerDomain, outerTypes, "TypedDataSign", outerMessage)
	if err != nil {
		return nil, err
	}

	sig, err := signDigest(s.privateKey, outerDigest)
	if err != nil {
		return nil, err
	}

	outerDomainSeparator, err := domainSeparator(outerDomain)
	if err != nil {
		return nil, err
	}

	typeLen := make([]byte, 2)
	binary.BigEndian.PutUint16(typeLen, uint16(len(innerEncodedType)))

	result := make([]byte, 0, len(sig)+32+32+len(innerEncodedType)+2)
	result = append(result, sig...)
	result = append(result, outerDomainSeparator[:]...)
	result = append(result, innerStructHash[:]...)
	result = append(result, innerEncodedType...)
	result = append(result, typeLen...)
	return result, nil
}

func toAPITypes(domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) apitypes.TypedData {
	typedData := apitypes.TypedData{
		Types:       make(apitypes.Types),
		PrimaryType: primaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(big.NewInt(domain.ChainID)),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: message,
	}

	for typeName, fields := range types {
		typedFields := make([]apitypes.Type, len(fields))
		for i, field := range fields {
			typedFields[i] = apitypes.Type{Name: field.Name, Type: field.Type}
		}
		typedData.Types[typeName] = typedFields
	}

	if _, exists := typedData.Types["EIP712Domain"]; !exists {
		typedData.Types["EIP712Domain"] = []apitypes.Type{
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		}
	}

	return typedData
}

// hashTypedData computes the EIP-712 signing digest, the raw struct hash
// (without the domain), and the primary type's encodeType string.
func hashTypedData(domain TypedDataDomain, types map[string][]TypedDataField, primaryType string, message map[string]interface{}) (digest common.Hash, structHash common.Hash, encodedType []byte, err error) {
	typedData := toAPITypes(domain, types, primaryType, message)

	structHashBytes, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return common.Hash{}, common.Hash{}, nil, err
	}

	domainSeparatorBytes, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, common.Hash{}, nil, err
	}

	rawData := []byte{0x19, 0x01}
	rawData = append(rawData, domainSeparatorBytes...)
	rawData = append(rawData, structHashBytes...)

	return common.BytesToHash(crypto.Keccak256(rawData)),
		common.BytesToHash(structHashBytes),
		[]byte(typedData.EncodeType(primaryType)),
		nil
}

func domainSeparator(domain TypedDataDomain) (common.Hash, error) {
	typedData := toAPITypes(domain, nil, "EIP712Domain", nil)
	separator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, err
	}
	return common.BytesToHash(separator), nil
}

func signDigest(privateKey *ecdsa.PrivateKey, digest common.Hash) ([]byte, error) {
	signature, err := crypto.Sign(digest.Bytes(), privateKey)
	if err != nil {
		return nil, err
	}
	signature[64] += 27
	return signature, nil
}
