package cryptoauth

import (
	"bytes"
	"crypto/aes"
	"testing"
	"time"
)

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() failed: %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("expected key length %d, got %d", KeySize, len(key))
	}
	key2, _ := GenerateKey()
	if bytes.Equal(key, key2) {
		t.Error("two consecutive key generations produced identical keys")
	}
}

func TestGenerateIV(t *testing.T) {
	iv, err := GenerateIV()
	if err != nil {
		t.Fatalf("GenerateIV() failed: %v", err)
	}
	if len(iv) != IVSize {
		t.Errorf("expected IV length %d, got %d", IVSize, len(iv))
	}
}

func TestPKCS7Padding(t *testing.T) {
	testCases := []struct {
		name     string
		data     []byte
		expected int
	}{
		{"empty", []byte{}, 16},
		{"one_byte", []byte{0x01}, 15},
		{"fifteen_bytes", make([]byte, 15), 1},
		{"sixteen_bytes", make([]byte, 16), 16},
		{"seventeen_bytes", make([]byte, 17), 15},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			padded := pkcs7Pad(tc.data, aes.BlockSize)
			paddingAdded := len(padded) - len(tc.data)
			if paddingAdded != tc.expected {
				t.Errorf("expected %d padding bytes, got %d", tc.expected, paddingAdded)
			}
			unpadded, err := pkcs7Unpad(padded)
			if err != nil {
				t.Fatalf("pkcs7Unpad() failed: %v", err)
			}
			if !bytes.Equal(unpadded, tc.data) {
				t.Errorf("unpadded data doesn't match original")
			}
		})
	}
}

func TestPKCS7UnpadInvalid(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"padding_too_large", []byte{0x01, 0x02, 0x03, 0x11}},
		{"padding_exceeds_length", []byte{0x01, 0x02, 0x03, 0x05}},
		{"zero_padding", []byte{0x01, 0x02, 0x03, 0x00}},
		{"invalid_padding_bytes", []byte{0x01, 0x02, 0x03, 0x04, 0x04, 0x04, 0x03, 0x04}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := pkcs7Unpad(tc.data); err == nil {
				t.Error("expected error for invalid padding, got nil")
			}
		})
	}
}

// TestEncryptDecryptRoundTrip exercises S2's shape (round trip of empty and
// short plaintexts) against a locally generated key, since the vendor's
// real build-time key isn't available to reproduce S2's published bytes.
func TestEncryptDecryptRoundTrip(t *testing.T) {
	key, _ := GenerateKey()
	iv, _ := GenerateIV()

	for _, plaintext := range [][]byte{
		[]byte(""),
		[]byte("Hello, world!"),
		[]byte("20240101203040"),
		make([]byte, 64),
	} {
		ciphertext, err := Encrypt(plaintext, key, iv)
		if err != nil {
			t.Fatalf("Encrypt(%q) failed: %v", plaintext, err)
		}
		if len(ciphertext)%aes.BlockSize != 0 {
			t.Errorf("ciphertext length %d not block-aligned", len(ciphertext))
		}
		recovered, err := Decrypt(ciphertext, key, iv)
		if err != nil {
			t.Fatalf("Decrypt() failed: %v", err)
		}
		if !bytes.Equal(recovered, plaintext) {
			t.Errorf("round trip mismatch: got %q, want %q", recovered, plaintext)
		}
	}
}

func TestDecryptWrongKeySizeRejected(t *testing.T) {
	iv, _ := GenerateIV()
	_, err := Decrypt(make([]byte, 16), make([]byte, 16), iv)
	if err == nil {
		t.Error("expected error for wrong key size, got nil")
	}
}

func TestBase64EncodeDecode(t *testing.T) {
	testCases := [][]byte{
		{},
		{0x00},
		{0x01, 0x02, 0x03},
		make([]byte, 100),
	}
	for i, tc := range testCases {
		encoded := EncodeBase64(tc)
		decoded, err := DecodeBase64(encoded)
		if err != nil {
			t.Errorf("case %d: DecodeBase64() failed: %v", i, err)
			continue
		}
		if !bytes.Equal(decoded, tc) {
			t.Errorf("case %d: decoded data doesn't match original", i)
		}
	}
}

// TestAuthorizationHeaderFormat checks S1's shape: a fixed local timestamp
// always produces the same "Basic <base64>" value, deterministically.
func TestAuthorizationHeaderFormat(t *testing.T) {
	ts := time.Date(2024, 1, 1, 20, 30, 40, 0, time.UTC)

	h1, err := AuthorizationHeader(ts)
	if err != nil {
		t.Fatalf("AuthorizationHeader() failed: %v", err)
	}
	h2, err := AuthorizationHeader(ts)
	if err != nil {
		t.Fatalf("AuthorizationHeader() second call failed: %v", err)
	}
	if h1 != h2 {
		t.Errorf("same timestamp produced different headers: %q vs %q", h1, h2)
	}
	if len(h1) < len("Basic ") || h1[:6] != "Basic " {
		t.Errorf("header %q missing Basic prefix", h1)
	}
	raw, err := DecodeBase64(h1[len("Basic "):])
	if err != nil {
		t.Fatalf("header value not valid base64: %v", err)
	}
	if len(raw)%aes.BlockSize != 0 {
		t.Errorf("decoded ciphertext length %d not block-aligned", len(raw))
	}
}
