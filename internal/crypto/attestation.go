package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/alanyoungcy/polyoracle/internal/domain"
)

// Domain parameters of the attestation typed data.
const (
	DomainName    = "PolyOracle"
	DomainVersion = "1"
)

var (
	// EIP712Domain(string name,string version,uint256 chainId)
	eip712DomainTypeHash = ethcrypto.Keccak256(
		[]byte("EIP712Domain(string name,string version,uint256 chainId)"),
	)

	resolutionTypeHash = ethcrypto.Keccak256(
		[]byte("Resolution(string marketId,string runId,string category,string outcome,uint256 confidenceBps,string settlementAction,uint256 resolvedAt,bytes32 reasoningHash)"),
	)
)

// ErrBadSignature is returned when an attestation does not verify.
var ErrBadSignature = errors.New("crypto: attestation signature mismatch")

// Signer attests resolution results as EIP-712 typed data so the reporting
// layer can verify them before submission.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	chainID    int64
	domainSep  []byte // cached EIP-712 domain separator hash
}

// NewSigner creates a Signer from a hex-encoded secp256k1 private key and
// the chain ID the reports target (137 for Polygon mainnet).
func NewSigner(privateKeyHex string, chainID int64) (*Signer, error) {
	keyHex := strings.TrimPrefix(privateKeyHex, "0x")
	pk, err := ethcrypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("crypto/signer: invalid private key: %w", err)
	}

	return &Signer{
		privateKey: pk,
		address:    ethcrypto.PubkeyToAddress(pk.PublicKey),
		chainID:    chainID,
		domainSep:  domainSeparator(chainID),
	}, nil
}

// Address returns the Ethereum address derived from the signer's private key.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign implements domain.ResultSigner.
func (s *Signer) Sign(result domain.ResolutionResult) (domain.Attestation, error) {
	digest := Digest(result, s.chainID)

	sig, err := ethcrypto.Sign(digest, s.privateKey)
	if err != nil {
		return domain.Attestation{}, fmt.Errorf("crypto/signer: signing: %w", err)
	}
	// go-ethereum returns v in {0,1}; EIP-712 expects v in {27,28}.
	if sig[64] < 27 {
		sig[64] += 27
	}

	return domain.Attestation{
		Signer:    s.address.Hex(),
		ChainID:   s.chainID,
		Digest:    "0x" + hex.EncodeToString(digest),
		Signature: "0x" + hex.EncodeToString(sig),
	}, nil
}

// Verify recovers the signer of result's attestation and checks it matches
// the claimed address and the recomputed digest.
func Verify(result domain.ResolutionResult) error {
	att := result.Attestation
	if att == nil {
		return fmt.Errorf("%w: result %s carries no attestation", ErrBadSignature, result.MarketID)
	}
	sig, err := hex.DecodeString(strings.TrimPrefix(att.Signature, "0x"))
	if err != nil || len(sig) != 65 {
		return fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	digest := Digest(result, att.ChainID)
	if "0x"+hex.EncodeToString(digest) != strings.ToLower(att.Digest) {
		return fmt.Errorf("%w: digest does not match result", ErrBadSignature)
	}

	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if got := ethcrypto.PubkeyToAddress(*pub); got != common.HexToAddress(att.Signer) {
		return fmt.Errorf("%w: recovered %s, claimed %s", ErrBadSignature, got.Hex(), att.Signer)
	}
	return nil
}

// Digest computes the EIP-712 digest of result for chainID. The attestation
// field itself is not covered.
func Digest(result domain.ResolutionResult, chainID int64) []byte {
	return eip712Hash(domainSeparator(chainID), resolutionStructHash(result))
}

func resolutionStructHash(r domain.ResolutionResult) []byte {
	confidenceBps := int64(math.Round(domain.ClampConfidence(r.Confidence) * 10_000))
	return ethcrypto.Keccak256(
		concatBytes(
			resolutionTypeHash,
			ethcrypto.Keccak256([]byte(r.MarketID)),
			ethcrypto.Keccak256([]byte(r.RunID)),
			ethcrypto.Keccak256([]byte(r.Category)),
			ethcrypto.Keccak256([]byte(r.Outcome)),
			bigIntTo32Bytes(big.NewInt(confidenceBps)),
			ethcrypto.Keccak256([]byte(r.SettlementAction)),
			bigIntTo32Bytes(big.NewInt(r.ResolvedAt.Unix())),
			ethcrypto.Keccak256([]byte(r.Reasoning)),
		),
	)
}

// domainSeparator returns keccak256(abi.encode(typeHash, nameHash, versionHash, chainId)).
func domainSeparator(chainID int64) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			eip712DomainTypeHash,
			ethcrypto.Keccak256([]byte(DomainName)),
			ethcrypto.Keccak256([]byte(DomainVersion)),
			bigIntTo32Bytes(big.NewInt(chainID)),
		),
	)
}

// eip712Hash computes the final EIP-712 digest:
//
//	keccak256("\x19\x01" || domainSeparator || structHash)
func eip712Hash(domainSep, structHash []byte) []byte {
	return ethcrypto.Keccak256(
		concatBytes(
			[]byte{0x19, 0x01},
			domainSep,
			structHash,
		),
	)
}

// bigIntTo32Bytes returns a 32-byte big-endian representation of n.
func bigIntTo32Bytes(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= 32 {
		return b[:32]
	}
	padded := make([]byte, 32)
	copy(padded[32-len(b):], b)
	return padded
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
