// Package crypto manages the oracle signing key and attests resolution
// results with EIP-712 signatures.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/pbkdf2"
)

// Key file parameters. Version 1 files carry no address; they are still
// accepted on read.
const (
	keyFileVersion   = 2
	pbkdf2Iterations = 480_000
	saltLen          = 16
)

// ErrNoKey is returned by LoadKey when no key source is configured.
var ErrNoKey = errors.New("crypto: no oracle key configured")

// oracleKeyFile is the on-disk format written by keygen. Binary fields are
// base64 (standard encoding).
type oracleKeyFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address,omitempty"`
	KDF        string `json:"kdf,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig lists the places LoadKey looks for the oracle key. A raw key
// wins over the encrypted file.
type KeyConfig struct {
	RawPrivateKey    string
	EncryptedKeyPath string
	KeyPassword      string
}

// EncryptKey seals a hex secp256k1 key under password and returns the key
// file contents. The file records the key's address.
func EncryptKey(privateKeyHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto: password must not be empty")
	}
	pk, err := parseKey(privateKeyHex)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: read salt: %w", err)
	}
	aead, err := keyAEAD(password, salt, pbkdf2Iterations)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto: read nonce: %w", err)
	}

	address := ethcrypto.PubkeyToAddress(pk.PublicKey).Hex()
	// The address is sealed as associated data.
	sealed := aead.Seal(nil, nonce, ethcrypto.FromECDSA(pk), []byte(address))

	return json.MarshalIndent(oracleKeyFile{
		Version:    keyFileVersion,
		Address:    address,
		KDF:        "pbkdf2-sha256",
		Iterations: pbkdf2Iterations,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	}, "", "  ")
}

// DecryptKey opens a key file and returns the hex key without 0x.
func DecryptKey(raw []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto: password must not be empty")
	}

	var f oracleKeyFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", fmt.Errorf("crypto: decode key file: %w", err)
	}
	var ad []byte
	switch f.Version {
	case 1:
	case keyFileVersion:
		ad = []byte(f.Address)
	default:
		return "", fmt.Errorf("crypto: unsupported key file version %d", f.Version)
	}

	var salt, nonce, sealed []byte
	for _, field := range []struct {
		name string
		in   string
		out  *[]byte
	}{
		{"salt", f.Salt, &salt},
		{"nonce", f.Nonce, &nonce},
		{"ciphertext", f.Ciphertext, &sealed},
	} {
		b, err := base64.StdEncoding.DecodeString(field.in)
		if err != nil {
			return "", fmt.Errorf("crypto: decode %s: %w", field.name, err)
		}
		*field.out = b
	}

	iterations := f.Iterations
	if iterations == 0 {
		iterations = pbkdf2Iterations
	}
	aead, err := keyAEAD(password, salt, iterations)
	if err != nil {
		return "", err
	}
	if len(nonce) != aead.NonceSize() {
		return "", fmt.Errorf("crypto: nonce is %d bytes, want %d", len(nonce), aead.NonceSize())
	}
	plain, err := aead.Open(nil, nonce, sealed, ad)
	if err != nil {
		return "", fmt.Errorf("crypto: open key file (wrong password?): %w", err)
	}

	return hex.EncodeToString(plain), nil
}

// LoadKey returns the oracle key as hex without 0x, from the raw key when
// set and otherwise from the encrypted key file.
func LoadKey(cfg KeyConfig) (string, error) {
	switch {
	case cfg.RawPrivateKey != "":
		k := strings.TrimPrefix(cfg.RawPrivateKey, "0x")
		if _, err := hex.DecodeString(k); err != nil {
			return "", fmt.Errorf("crypto: raw oracle key is not hex: %w", err)
		}
		return k, nil
	case cfg.EncryptedKeyPath != "":
		raw, err := os.ReadFile(cfg.EncryptedKeyPath)
		if err != nil {
			return "", fmt.Errorf("crypto: read key file: %w", err)
		}
		return DecryptKey(raw, cfg.KeyPassword)
	default:
		return "", ErrNoKey
	}
}

// GenerateKey creates a fresh secp256k1 oracle key, encrypts it with
// password and returns the key file and the key's address.
func GenerateKey(password string) ([]byte, string, error) {
	pk, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, "", fmt.Errorf("crypto: generate key: %w", err)
	}
	blob, err := EncryptKey(hex.EncodeToString(ethcrypto.FromECDSA(pk)), password)
	if err != nil {
		return nil, "", err
	}
	return blob, ethcrypto.PubkeyToAddress(pk.PublicKey).Hex(), nil
}

func parseKey(privateKeyHex string) (*ecdsa.PrivateKey, error) {
	pk, err := ethcrypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid oracle key: %w", err)
	}
	return pk, nil
}

// keyAEAD derives the AES-256-GCM cipher for a key file.
func keyAEAD(password string, salt []byte, iterations int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New))
	if err != nil {
		return nil, fmt.Errorf("crypto: key cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: key cipher: %w", err)
	}
	return aead, nil
}
