package ks

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"fmt"
)

const (
	// KeySize is the AES-128 key length in bytes.
	KeySize = 16
	// BlockSize is the AES block length in bytes.
	BlockSize = aes.BlockSize
	// DigestSize is the SHA-1 output length in bytes.
	DigestSize = sha1.Size
)

// IV is the fixed initialization vector the service expects. It is public and provides
// no secrecy.
var IV = [BlockSize]byte{
	0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22,
	0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22, 0x22,
}

// Digest returns the SHA-1 digest of data. SHA-1 is required for interoperability.
func Digest(data []byte) [DigestSize]byte {
	return sha1.Sum(data)
}

// Encrypt zero-pads plaintext to a multiple of BlockSize and encrypts it with
// AES-128-CBC. plaintext is not modified.
func Encrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}

	padded := zeroPad(plaintext)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

// Decrypt reverses Encrypt. The zero padding is left in place; the caller knows
// where its payload ends.
func Decrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := newBlock(key, iv)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) == 0 || len(ciphertext)%BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of %d", ErrCrypto, len(ciphertext), BlockSize)
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// DeriveKey returns the AES key for secret: the first KeySize bytes of SHA1(secret).
func DeriveKey(secret string) []byte {
	sum := Digest([]byte(secret))
	key := make([]byte, KeySize)
	copy(key, sum[:KeySize])
	return key
}

func newBlock(key, iv []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", ErrCrypto, KeySize, len(key))
	}
	if len(iv) != BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes, got %d", ErrCrypto, BlockSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return block, nil
}

func zeroPad(data []byte) []byte {
	n := len(data)
	if rem := n % BlockSize; rem != 0 {
		n += BlockSize - rem
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}
