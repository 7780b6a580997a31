// Package crypto implements the two archive cipher suites.
//
// v1 is the legacy suite: PBKDF2-HMAC-SHA256 key derivation feeding
// AES-256-CBC with an encrypt-then-MAC HMAC-SHA256 trailer. It is kept for
// reading old archives only.
//
// v2 is the current suite: Argon2id key derivation feeding AES-256-GCM.
// All new archives are written with v2.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"

	"termbackup/internal/tbkerr"
)

// v1 parameters.
const (
	PBKDF2Iterations = 600_000
	SaltLength       = 32
	aesKeyLength     = 32
	hmacKeyLength    = 32
	ivLength         = 16
	hmacLength       = 32
)

// v2 parameters.
const (
	Argon2Memory      = 65536 // KiB
	Argon2Time        = 3
	Argon2Parallelism = 4
	Argon2KeyLength   = 32
	Argon2SaltLength  = 32
	GCMNonceLength    = 12
)

// DeriveKeys derives the v1 AES and HMAC keys from a passphrase and salt.
func DeriveKeys(password string, salt []byte) (aesKey, hmacKey []byte) {
	derived := pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, aesKeyLength+hmacKeyLength, sha256.New)
	return derived[:aesKeyLength], derived[aesKeyLength:]
}

// DeriveKeyArgon2id derives the v2 AES key from a passphrase and salt with the
// given parameters.
func DeriveKeyArgon2id(password string, salt []byte, memory uint32, timeCost uint32, parallelism uint8) []byte {
	return argon2.IDKey([]byte(password), salt, timeCost, memory, parallelism, Argon2KeyLength)
}

// Encrypt encrypts data with the v1 suite. It returns a fresh salt and IV,
// the PKCS#7 padded CBC ciphertext, and the HMAC over iv||ciphertext.
func Encrypt(data []byte, password string) (salt, iv, ciphertext, mac []byte, err error) {
	salt = make([]byte, SaltLength)
	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, nil, nil, tbkerr.Wrap(tbkerr.KindCrypto, err, "generate salt")
	}
	iv = make([]byte, ivLength)
	if _, err = io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, nil, nil, tbkerr.Wrap(tbkerr.KindCrypto, err, "generate iv")
	}

	aesKey, hmacKey := DeriveKeys(password, salt)

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, nil, nil, nil, tbkerr.Wrap(tbkerr.KindCrypto, err, "init cipher")
	}

	padded := padPKCS7(data, aes.BlockSize)
	ciphertext = make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	h := hmac.New(sha256.New, hmacKey)
	h.Write(iv)
	h.Write(ciphertext)
	mac = h.Sum(nil)

	return salt, iv, ciphertext, mac, nil
}

// Decrypt verifies the v1 HMAC and decrypts the ciphertext. The HMAC is
// checked before any decryption happens.
func Decrypt(password string, salt, iv, ciphertext, mac []byte) ([]byte, error) {
	aesKey, hmacKey := DeriveKeys(password, salt)

	h := hmac.New(sha256.New, hmacKey)
	h.Write(iv)
	h.Write(ciphertext)
	if subtle.ConstantTimeCompare(h.Sum(nil), mac) != 1 {
		return nil, tbkerr.New(tbkerr.KindCrypto, "HMAC verification failed").
			WithHint("the passphrase is wrong or the archive has been tampered with")
	}

	if len(iv) != ivLength {
		return nil, tbkerr.New(tbkerr.KindCrypto, "invalid iv length %d", len(iv))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, tbkerr.New(tbkerr.KindCrypto, "ciphertext length %d is not a multiple of the block size", len(ciphertext))
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindCrypto, err, "init cipher")
	}
	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	plaintext, err := unpadPKCS7(padded, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// EncryptV2 encrypts data with the v2 suite using default Argon2id
// parameters. The returned ciphertext has the 16-byte GCM tag appended.
func EncryptV2(data []byte, password string) (salt, nonce, ciphertext []byte, err error) {
	salt = make([]byte, Argon2SaltLength)
	if _, err = io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, nil, tbkerr.Wrap(tbkerr.KindCrypto, err, "generate salt")
	}
	nonce = make([]byte, GCMNonceLength)
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, nil, tbkerr.Wrap(tbkerr.KindCrypto, err, "generate nonce")
	}

	key := DeriveKeyArgon2id(password, salt, Argon2Memory, Argon2Time, Argon2Parallelism)
	aead, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}

	ciphertext = aead.Seal(nil, nonce, data, nil)
	return salt, nonce, ciphertext, nil
}

// DecryptV2 decrypts v2 ciphertext with explicit Argon2id parameters, as
// recorded in the archive header.
func DecryptV2(password string, salt, nonce, ciphertext []byte, memory uint32, timeCost uint32, parallelism uint8) ([]byte, error) {
	key := DeriveKeyArgon2id(password, salt, memory, timeCost, parallelism)
	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, tbkerr.New(tbkerr.KindCrypto, "authentication failed").
			WithHint("the passphrase is wrong or the archive has been tampered with")
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindCrypto, err, "init cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindCrypto, err, "init gcm")
	}
	return aead, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padding)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padding)
	}
	return padded
}

func unpadPKCS7(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, tbkerr.New(tbkerr.KindCrypto, "invalid padded length %d", len(data))
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, tbkerr.New(tbkerr.KindCrypto, "invalid padding")
	}
	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, tbkerr.New(tbkerr.KindCrypto, "invalid padding")
		}
	}
	return data[:len(data)-padding], nil
}
