package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"runtime"

	"golang.org/x/crypto/argon2"
)

// aesEncryptor encrypts credential material at rest with AES-256-GCM.
type aesEncryptor struct {
	key []byte
}

// argon2id parameters for key derivation.
// Memory: 64MB, Iterations: 1, Parallelism: 4, Key: 32 bytes.
const (
	kdfMemory      = 64 * 1024
	kdfIterations  = 1
	kdfParallelism = 4
	kdfKeyLength   = 32
)

// kdfSalt is a fixed application salt: the key material itself is the
// secret (env var or machine identity), the salt only domain-separates
// this derivation from other uses of the same material.
var kdfSalt = []byte("switchboard/vault/v1")

// newEncryptor derives the vault key with argon2id.
// Priority: SWITCHBOARD_VAULT_KEY env var > machine-derived key.
func newEncryptor() (*aesEncryptor, error) {
	material := os.Getenv("SWITCHBOARD_VAULT_KEY")
	if material == "" {
		material = deriveMachineKey()
	}

	key := argon2.IDKey([]byte(material), kdfSalt, kdfIterations, kdfMemory, kdfParallelism, kdfKeyLength)
	return &aesEncryptor{key: key}, nil
}

// newEncryptorWithKey creates an encryptor with a specific key (for testing).
func newEncryptorWithKey(key []byte) (*aesEncryptor, error) {
	if len(key) != 32 {
		return nil, errors.New("key must be 32 bytes for AES-256")
	}
	return &aesEncryptor{key: key}, nil
}

func (e *aesEncryptor) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (e *aesEncryptor) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(e.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, body := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, body, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// deriveMachineKey builds machine-specific key material from available
// identifiers. Basic protection without requiring user configuration.
func deriveMachineKey() string {
	material := "switchboard-default-key"

	if hostname, err := os.Hostname(); err == nil {
		material += hostname
	}
	if home, err := os.UserHomeDir(); err == nil {
		material += home
	}
	material += runtime.GOOS + runtime.GOARCH

	return material
}
