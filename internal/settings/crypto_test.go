package settings

import (
	"bytes"
	"testing"
)

func TestCryptoEncryptDecrypt(t *testing.T) {
	crypto := NewCrypto("test-passphrase")
	plaintext := []byte(`{"internal_api_key":"k-123"}`)

	ciphertext, err := crypto.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Contains(ciphertext, []byte("k-123")) {
		t.Error("Encrypt() leaked plaintext")
	}

	decrypted, err := crypto.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

func TestCryptoDefaultPassphrase(t *testing.T) {
	a := NewCrypto("")
	b := NewCrypto(defaultPassphrase)

	ciphertext, err := a.Encrypt([]byte("test data"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if _, err := b.Decrypt(ciphertext); err != nil {
		t.Errorf("empty passphrase should fall back to the default: %v", err)
	}
}

func TestCryptoWrongPassphrase(t *testing.T) {
	ciphertext, err := NewCrypto("passphrase1").Encrypt([]byte("secret data"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := NewCrypto("passphrase2").Decrypt(ciphertext); err != errDecrypt {
		t.Errorf("Decrypt() with wrong passphrase = %v, want errDecrypt", err)
	}
}

func TestCryptoDecryptInvalidData(t *testing.T) {
	crypto := NewCrypto("test")

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"too short", []byte{1, 2, 3, 4, 5}},
		{"salt only", make([]byte, saltSize)},
		{"random garbage", []byte("this is not encrypted data at all")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := crypto.Decrypt(tt.data); err == nil {
				t.Errorf("Decrypt(%s) should return error", tt.name)
			}
		})
	}
}

func TestCryptoFreshSaltAndNonce(t *testing.T) {
	crypto := NewCrypto("test")
	plaintext := []byte("test data")

	c1, _ := crypto.Encrypt(plaintext)
	c2, _ := crypto.Encrypt(plaintext)
	if bytes.Equal(c1, c2) {
		t.Error("two encryptions of the same data produced identical ciphertext")
	}
}

func TestCryptoTampering(t *testing.T) {
	crypto := NewCrypto("test")
	ciphertext, _ := crypto.Encrypt([]byte("test data"))

	tampered := append([]byte(nil), ciphertext...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := crypto.Decrypt(tampered); err == nil {
		t.Error("Decrypt() of tampered data should return error")
	}
}
