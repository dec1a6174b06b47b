package auth

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer produces the EIP-712 CLOB auth attestation the exchange expects in
// the POLY_* request headers.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID int64
}

const authMessage = "This message attests that I control the given wallet"

var (
	domainNameHash    = crypto.Keccak256Hash([]byte("ClobAuthDomain"))
	domainVersionHash = crypto.Keccak256Hash([]byte("1"))
	domainTypeHash    = crypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId)"))
	authTypeHash      = crypto.Keccak256Hash([]byte("ClobAuth(address address,string timestamp,uint256 nonce,string message)"))

	bytes32Ty = mustABIType("bytes32")
	addressTy = mustABIType("address")
	uint256Ty = mustABIType("uint256")
)

func mustABIType(t string) abi.Type {
	ty, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return ty
}

func NewSigner(hexKey string, chainID int64) (*Signer, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chainID: chainID,
	}, nil
}

func (s *Signer) Address() common.Address { return s.address }

// Headers returns the POLY_* auth headers for one request.
func (s *Signer) Headers(now time.Time, nonce uint64) (map[string]string, error) {
	ts := now.Unix()
	sig, err := s.sign(ts, nonce)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"POLY_ADDRESS":   s.address.Hex(),
		"POLY_SIGNATURE": sig,
		"POLY_TIMESTAMP": strconv.FormatInt(ts, 10),
		"POLY_NONCE":     strconv.FormatUint(nonce, 10),
	}, nil
}

func (s *Signer) sign(timestamp int64, nonce uint64) (string, error) {
	domainSeparator, err := domainHash(s.chainID)
	if err != nil {
		return "", err
	}
	// Dynamic string fields are encoded as keccak256 of their value.
	args := abi.Arguments{
		{Type: bytes32Ty},
		{Type: addressTy},
		{Type: bytes32Ty},
		{Type: uint256Ty},
		{Type: bytes32Ty},
	}
	encoded, err := args.Pack(
		authTypeHash,
		s.address,
		crypto.Keccak256Hash([]byte(strconv.FormatInt(timestamp, 10))),
		new(big.Int).SetUint64(nonce),
		crypto.Keccak256Hash([]byte(authMessage)),
	)
	if err != nil {
		return "", err
	}
	structHash := crypto.Keccak256Hash(encoded)
	raw := make([]byte, 0, 2+32+32)
	raw = append(raw, 0x19, 0x01)
	raw = append(raw, domainSeparator.Bytes()...)
	raw = append(raw, structHash.Bytes()...)
	digest := crypto.Keccak256Hash(raw)

	sig, err := crypto.Sign(digest.Bytes(), s.key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return "0x" + common.Bytes2Hex(sig), nil
}

func domainHash(chainID int64) (common.Hash, error) {
	args := abi.Arguments{
		{Type: bytes32Ty},
		{Type: bytes32Ty},
		{Type: bytes32Ty},
		{Type: uint256Ty},
	}
	encoded, err := args.Pack(domainTypeHash, domainNameHash, domainVersionHash, big.NewInt(chainID))
	if err != nil {
		return common.Hash{}, err
	}
	return crypto.Keccak256Hash(encoded), nil
}
