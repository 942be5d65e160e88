// Package cryptoauth builds the vendor Authorization header: a local
// timestamp, AES-256-CBC encrypted under a build-time key+IV, PKCS7
// padded, then base64-encoded.
package cryptoauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

const (
	KeySize = 32 // 256-bit key for AES-256
	IVSize  = 16 // 128-bit IV for AES

	// timestampLayout is the wire format the vendor expects: YYYYMMDDHHMMSS.
	timestampLayout = "20060102150405"
)

// buildKey and buildIV are the build-time embedded key+IV pair. The
// vendor's real values aren't present in this tree's retrieval pack;
// these placeholders keep the header well-formed and round-trippable.
// Swapping in the real vendor-observed bytes only requires editing
// these two arrays.
var (
	buildKey = [KeySize]byte{
		0x3c, 0x9e, 0x11, 0x47, 0x5a, 0xd2, 0x8b, 0x60,
		0x94, 0x1f, 0xc7, 0x33, 0x5e, 0xa8, 0x0d, 0x76,
		0x21, 0xb4, 0x99, 0x0e, 0x58, 0xfa, 0x3d, 0x62,
		0xc1, 0x86, 0x4b, 0x0a, 0xe9, 0x75, 0x2f, 0xd0,
	}
	buildIV = [IVSize]byte{
		0x7a, 0x2d, 0x91, 0xe4, 0x0c, 0x58, 0xb3, 0x67,
		0xf1, 0x4a, 0x86, 0x20, 0xd9, 0x3e, 0x55, 0xab,
	}
)

// GenerateKey generates a random 256-bit key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return key, nil
}

// GenerateIV generates a random 128-bit IV.
func GenerateIV() ([]byte, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	return iv, nil
}

// pkcs7Pad applies PKCS7 padding to the data.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padText := make([]byte, padding)
	for i := range padText {
		padText[i] = byte(padding)
	}
	return append(append([]byte{}, data...), padText...)
}

// pkcs7Unpad removes PKCS7 padding, verifying every padding byte.
func pkcs7Unpad(data []byte) ([]byte, error) {
	length := len(data)
	if length == 0 {
		return nil, fmt.Errorf("invalid padding: empty data")
	}
	padding := int(data[length-1])
	if padding > length || padding > aes.BlockSize || padding == 0 {
		return nil, fmt.Errorf("invalid padding size: %d", padding)
	}
	for i := 0; i < padding; i++ {
		if data[length-1-i] != byte(padding) {
			return nil, fmt.Errorf("invalid padding byte at position %d: expected %d, got %d", i, padding, data[length-1-i])
		}
	}
	return data[:length-padding], nil
}

// Encrypt performs a single-shot AES-256-CBC encryption with PKCS7 padding.
// The Authorization header's plaintext (a 14-byte timestamp) is small
// enough that streaming buys nothing, unlike the teacher's file-oriented
// EncryptFile.
func Encrypt(plaintext, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, nil
}

// Decrypt reverses Encrypt.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("iv must be %d bytes, got %d", IVSize, len(iv))
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length (%d) is not a multiple of the AES block size", len(ciphertext))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)
	return pkcs7Unpad(plaintext)
}

// EncodeBase64 encodes bytes to a base64 string.
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a base64 string to bytes.
func DecodeBase64(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}

// AuthorizationHeader computes the `Authorization: Basic <value>` header
// value for the given moment: format as YYYYMMDDHHMMSS local wall time,
// AES-256-CBC+PKCS7 encrypt under the build-time key+IV, base64-encode.
// The timestamp is never cached; callers recompute per request.
func AuthorizationHeader(now time.Time) (string, error) {
	timestamp := now.Format(timestampLayout)
	ciphertext, err := Encrypt([]byte(timestamp), buildKey[:], buildIV[:])
	if err != nil {
		return "", fmt.Errorf("encrypt timestamp: %w", err)
	}
	return "Basic " + EncodeBase64(ciphertext), nil
}
