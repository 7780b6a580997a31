// Package signing provides optional Ed25519 signatures over backup archives.
//
// The public key is stored as a PEM-encoded PKIX block. The private key seed
// is sealed with the same Argon2id + AES-256-GCM envelope the archives use,
// in a small binary container, since the x509 package cannot write encrypted
// PKCS#8.
package signing

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"

	"termbackup/internal/crypto"
	"termbackup/internal/tbkerr"
)

// SignatureLength is the size of an Ed25519 signature.
const SignatureLength = ed25519.SignatureSize

var sealedMagic = []byte("TBKS")

// Keypair locates the two key files on disk.
type Keypair struct {
	PrivatePath string
	PublicPath  string
}

// Exists reports whether both key files are present.
func (k Keypair) Exists() bool {
	if _, err := os.Stat(k.PrivatePath); err != nil {
		return false
	}
	_, err := os.Stat(k.PublicPath)
	return err == nil
}

// Generate creates a new Ed25519 keypair, sealing the private seed with the
// password. Existing keys are not overwritten.
func (k Keypair) Generate(password string) error {
	if k.Exists() {
		return tbkerr.New(tbkerr.KindCrypto, "signing keypair already exists").
			WithHint("remove the existing key files to generate a new pair")
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tbkerr.Wrap(tbkerr.KindCrypto, err, "generate signing key")
	}

	sealed, err := sealSeed(priv.Seed(), password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(k.PrivatePath, sealed, 0o600); err != nil {
		return tbkerr.Wrap(tbkerr.KindCrypto, err, "write signing key")
	}

	pkix, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return tbkerr.Wrap(tbkerr.KindCrypto, err, "encode public key")
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: pkix}
	if err := os.WriteFile(k.PublicPath, pem.EncodeToMemory(block), 0o600); err != nil {
		return tbkerr.Wrap(tbkerr.KindCrypto, err, "write public key")
	}
	return nil
}

// Sign returns the Ed25519 signature over the file at path, unsealing the
// private key with the password.
func (k Keypair) Sign(path, password string) ([]byte, error) {
	sealed, err := os.ReadFile(k.PrivatePath)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindCrypto, err, "read signing key").
			WithHint("run 'termbackup generate-key' to create a signing keypair")
	}
	seed, err := unsealSeed(sealed, password)
	if err != nil {
		return nil, err
	}
	priv := ed25519.NewKeyFromSeed(seed)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindCrypto, err, "read archive for signing")
	}
	return ed25519.Sign(priv, data), nil
}

// Verify checks the signature over the file at path against the public key.
func (k Keypair) Verify(path string, signature []byte) (bool, error) {
	pub, err := k.PublicKey()
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, tbkerr.Wrap(tbkerr.KindCrypto, err, "read archive for verification")
	}
	return ed25519.Verify(pub, data, signature), nil
}

// PublicKey loads the PEM-encoded public key.
func (k Keypair) PublicKey() (ed25519.PublicKey, error) {
	pemData, err := os.ReadFile(k.PublicPath)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindCrypto, err, "read public key")
	}
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, tbkerr.New(tbkerr.KindCrypto, "public key file is not PEM encoded")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindCrypto, err, "parse public key")
	}
	pub, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, tbkerr.New(tbkerr.KindCrypto, "public key is not an Ed25519 key")
	}
	return pub, nil
}

// sealSeed wraps the seed in the v2 envelope: magic, version, salt, nonce,
// then the GCM ciphertext.
func sealSeed(seed []byte, password string) ([]byte, error) {
	salt, nonce, ciphertext, err := crypto.EncryptV2(seed, password)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Write(sealedMagic)
	buf.WriteByte(1)
	buf.Write(salt)
	buf.Write(nonce)
	buf.Write(ciphertext)
	return buf.Bytes(), nil
}

func unsealSeed(sealed []byte, password string) ([]byte, error) {
	headerLen := len(sealedMagic) + 1 + crypto.Argon2SaltLength + crypto.GCMNonceLength
	if len(sealed) < headerLen || !bytes.Equal(sealed[:len(sealedMagic)], sealedMagic) {
		return nil, tbkerr.New(tbkerr.KindCrypto, "signing key file is corrupted")
	}
	if sealed[len(sealedMagic)] != 1 {
		return nil, tbkerr.New(tbkerr.KindCrypto, "unsupported signing key version")
	}
	offset := len(sealedMagic) + 1
	salt := sealed[offset : offset+crypto.Argon2SaltLength]
	offset += crypto.Argon2SaltLength
	nonce := sealed[offset : offset+crypto.GCMNonceLength]
	offset += crypto.GCMNonceLength

	seed, err := crypto.DecryptV2(password, salt, nonce, sealed[offset:],
		crypto.Argon2Memory, crypto.Argon2Time, crypto.Argon2Parallelism)
	if err != nil {
		return nil, err
	}
	if len(seed) != ed25519.SeedSize {
		return nil, tbkerr.New(tbkerr.KindCrypto, "unsealed signing key has the wrong size")
	}
	return seed, nil
}
