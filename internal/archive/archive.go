// Package archive implements the .tbk binary archive format.
//
// Two versions exist on the wire. TBK1 is the legacy container around the
// v1 cipher suite and is read-only. TBK2 wraps the v2 suite and is what all
// new archives use. The payload of both is a gzipped tar holding
// manifest.json plus the manifest's files.
package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"termbackup/internal/crypto"
	"termbackup/internal/manifest"
	"termbackup/internal/tbkerr"
)

var (
	magicV1 = []byte("TBK1")
	magicV2 = []byte("TBK2")
)

const (
	versionV1 = 1
	versionV2 = 2

	kdfArgon2id  = 0x02
	cipherAESGCM = 0x02

	hmacTrailerLen = 32
)

// Header is the parsed fixed-size prefix of a .tbk archive.
type Header struct {
	Version     int
	KDF         string
	Iterations  uint32 // v1
	MemoryCost  uint32 // v2
	TimeCost    uint16 // v2
	Parallelism uint8  // v2
	Salt        []byte
	IVOrNonce   []byte
	PayloadLen  uint64
	HeaderSize  int64
}

// Create builds a TBK2 archive at archivePath from the manifest's files under
// sourceDir, encrypted with the given passphrase.
func Create(archivePath, sourceDir string, m *manifest.Manifest, password string, compressionLevel int) error {
	payload, err := buildPayload(sourceDir, m, compressionLevel)
	if err != nil {
		return err
	}
	return writeSealed(archivePath, payload, password)
}

// Seal compresses a raw tar payload and writes it as a TBK2 archive. It is
// used when re-encrypting an existing payload, such as during key rotation.
func Seal(archivePath string, tarPayload []byte, password string, compressionLevel int) error {
	compressed, err := compress(tarPayload, compressionLevel)
	if err != nil {
		return err
	}
	return writeSealed(archivePath, compressed, password)
}

func writeSealed(archivePath string, gzPayload []byte, password string) error {
	salt, nonce, ciphertext, err := crypto.EncryptV2(gzPayload, password)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.Write(magicV2)
	buf.WriteByte(versionV2)
	buf.WriteByte(kdfArgon2id)
	binary.Write(&buf, binary.BigEndian, uint32(crypto.Argon2Memory))
	binary.Write(&buf, binary.BigEndian, uint16(crypto.Argon2Time))
	buf.WriteByte(crypto.Argon2Parallelism)
	buf.WriteByte(byte(len(salt)))
	buf.Write(salt)
	buf.WriteByte(byte(len(nonce)))
	buf.Write(nonce)
	buf.WriteByte(cipherAESGCM)
	binary.Write(&buf, binary.BigEndian, uint64(len(ciphertext)))
	buf.Write(ciphertext)

	if err := os.WriteFile(archivePath, buf.Bytes(), 0o600); err != nil {
		return tbkerr.Wrap(tbkerr.KindArchive, err, "write archive")
	}
	return nil
}

func buildPayload(sourceDir string, m *manifest.Manifest, compressionLevel int) ([]byte, error) {
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)

	manifestBytes, err := m.EncodeCanonical()
	if err != nil {
		return nil, err
	}
	if err := tw.WriteHeader(&tar.Header{
		Name: "manifest.json",
		Mode: 0o644,
		Size: int64(len(manifestBytes)),
	}); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "write manifest entry")
	}
	if _, err := tw.Write(manifestBytes); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "write manifest entry")
	}

	for _, meta := range m.Files {
		if err := addFile(tw, sourceDir, meta); err != nil {
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "finalize tar")
	}
	return compress(tarBuf.Bytes(), compressionLevel)
}

func compress(data []byte, compressionLevel int) ([]byte, error) {
	var gzBuf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&gzBuf, compressionLevel)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "init gzip")
	}
	if _, err := gz.Write(data); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "compress payload")
	}
	if err := gz.Close(); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "compress payload")
	}
	return gzBuf.Bytes(), nil
}

func addFile(tw *tar.Writer, sourceDir string, meta manifest.FileMetadata) error {
	path := filepath.Join(sourceDir, filepath.FromSlash(meta.RelativePath))
	info, err := os.Stat(path)
	if err != nil {
		// Files can vanish between scan and pack; skip them like the
		// manifest never promised they would still exist.
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return tbkerr.Wrap(tbkerr.KindArchive, err, "stat %s", meta.RelativePath)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return tbkerr.Wrap(tbkerr.KindArchive, err, "tar header for %s", meta.RelativePath)
	}
	hdr.Name = meta.RelativePath

	if err := tw.WriteHeader(hdr); err != nil {
		return tbkerr.Wrap(tbkerr.KindArchive, err, "write entry %s", meta.RelativePath)
	}

	f, err := os.Open(path)
	if err != nil {
		return tbkerr.Wrap(tbkerr.KindArchive, err, "open %s", meta.RelativePath)
	}
	defer f.Close()
	if _, err := io.Copy(tw, f); err != nil {
		return tbkerr.Wrap(tbkerr.KindArchive, err, "write entry %s", meta.RelativePath)
	}
	return nil
}

// ReadHeader parses the header of a .tbk archive, auto-detecting the version.
func ReadHeader(archivePath string) (*Header, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "open archive")
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := io.ReadFull(f, magic); err != nil {
		return nil, badMagic(magic)
	}
	switch {
	case bytes.Equal(magic, magicV1):
		return readV1Header(f)
	case bytes.Equal(magic, magicV2):
		return readV2Header(f)
	default:
		return nil, badMagic(magic)
	}
}

func badMagic(magic []byte) error {
	return tbkerr.New(tbkerr.KindArchive, "not a valid .tbk archive (magic bytes: %q)", magic).
		WithHint("this file may be corrupted or not a termbackup archive")
}

func readV1Header(r io.Reader) (*Header, error) {
	var fixed struct {
		Version    uint8
		Iterations uint32
		SaltLen    uint8
	}
	if err := binary.Read(r, binary.BigEndian, &fixed); err != nil {
		return nil, truncated(err)
	}
	if fixed.Version != versionV1 {
		return nil, tbkerr.New(tbkerr.KindArchive, "unsupported v1 archive version %d", fixed.Version)
	}

	salt := make([]byte, fixed.SaltLen)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, truncated(err)
	}
	var ivLen uint8
	if err := binary.Read(r, binary.BigEndian, &ivLen); err != nil {
		return nil, truncated(err)
	}
	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(r, iv); err != nil {
		return nil, truncated(err)
	}
	var payloadLen uint64
	if err := binary.Read(r, binary.BigEndian, &payloadLen); err != nil {
		return nil, truncated(err)
	}

	return &Header{
		Version:    1,
		KDF:        "pbkdf2",
		Iterations: fixed.Iterations,
		Salt:       salt,
		IVOrNonce:  iv,
		PayloadLen: payloadLen,
		HeaderSize: int64(4 + 1 + 4 + 1 + int(fixed.SaltLen) + 1 + int(ivLen) + 8),
	}, nil
}

func readV2Header(r io.Reader) (*Header, error) {
	var fixed struct {
		Version     uint8
		KDFAlgo     uint8
		MemoryCost  uint32
		TimeCost    uint16
		Parallelism uint8
		SaltLen     uint8
	}
	if err := binary.Read(r, binary.BigEndian, &fixed); err != nil {
		return nil, truncated(err)
	}
	if fixed.Version != versionV2 {
		return nil, tbkerr.New(tbkerr.KindArchive, "unsupported v2 archive version %d", fixed.Version)
	}

	salt := make([]byte, fixed.SaltLen)
	if _, err := io.ReadFull(r, salt); err != nil {
		return nil, truncated(err)
	}
	var nonceLen uint8
	if err := binary.Read(r, binary.BigEndian, &nonceLen); err != nil {
		return nil, truncated(err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := io.ReadFull(r, nonce); err != nil {
		return nil, truncated(err)
	}
	var tail struct {
		CipherSuite uint8
		PayloadLen  uint64
	}
	if err := binary.Read(r, binary.BigEndian, &tail); err != nil {
		return nil, truncated(err)
	}

	kdf := fmt.Sprintf("unknown(%d)", fixed.KDFAlgo)
	if fixed.KDFAlgo == kdfArgon2id {
		kdf = "argon2id"
	}

	return &Header{
		Version:     2,
		KDF:         kdf,
		MemoryCost:  fixed.MemoryCost,
		TimeCost:    fixed.TimeCost,
		Parallelism: fixed.Parallelism,
		Salt:        salt,
		IVOrNonce:   nonce,
		PayloadLen:  tail.PayloadLen,
		HeaderSize:  int64(4 + 1 + 1 + 4 + 2 + 1 + 1 + int(fixed.SaltLen) + 1 + int(nonceLen) + 1 + 8),
	}, nil
}

func truncated(err error) error {
	return tbkerr.Wrap(tbkerr.KindArchive, err, "truncated archive header")
}

// ReadPayload decrypts and decompresses the archive payload, returning the
// raw tar bytes.
func ReadPayload(archivePath, password string, hdr *Header) ([]byte, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "open archive")
	}
	defer f.Close()

	if _, err := f.Seek(hdr.HeaderSize, io.SeekStart); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "seek payload")
	}
	ciphertext := make([]byte, hdr.PayloadLen)
	if _, err := io.ReadFull(f, ciphertext); err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "read payload")
	}

	var plaintext []byte
	switch hdr.Version {
	case 1:
		mac := make([]byte, hmacTrailerLen)
		if _, err := io.ReadFull(f, mac); err != nil {
			return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "read hmac trailer")
		}
		plaintext, err = crypto.Decrypt(password, hdr.Salt, hdr.IVOrNonce, ciphertext, mac)
	case 2:
		plaintext, err = crypto.DecryptV2(password, hdr.Salt, hdr.IVOrNonce, ciphertext,
			hdr.MemoryCost, uint32(hdr.TimeCost), hdr.Parallelism)
	default:
		return nil, tbkerr.New(tbkerr.KindArchive, "unsupported archive version %d", hdr.Version)
	}
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(plaintext))
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "decompression failed").
			WithHint("the archive may be corrupted")
	}
	defer gz.Close()
	tarBytes, err := io.ReadAll(gz)
	if err != nil {
		return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "decompression failed").
			WithHint("the archive may be corrupted")
	}
	return tarBytes, nil
}

// Entry describes one file inside a decrypted payload.
type Entry struct {
	Name string
	Size int64
	Mode int64
}

// Entries lists the files in a decrypted tar payload, excluding
// manifest.json.
func Entries(tarBytes []byte) ([]Entry, error) {
	tr := tar.NewReader(bytes.NewReader(tarBytes))
	var entries []Entry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "read tar")
		}
		if hdr.Name == "manifest.json" || hdr.Typeflag == tar.TypeDir {
			continue
		}
		entries = append(entries, Entry{Name: hdr.Name, Size: hdr.Size, Mode: hdr.Mode})
	}
	return entries, nil
}

// SafePath resolves a tar member name under targetDir and reports whether it
// stays inside the directory. Absolute names and traversal via ".." are
// rejected.
func SafePath(name, targetDir string) (string, bool) {
	if filepath.IsAbs(name) {
		return "", false
	}
	target := filepath.Join(targetDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(targetDir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

// ExtractManifest pulls manifest.json out of a decrypted tar payload.
func ExtractManifest(tarBytes []byte) (*manifest.Manifest, error) {
	tr := tar.NewReader(bytes.NewReader(tarBytes))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "read tar")
		}
		if hdr.Name != "manifest.json" {
			continue
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, tbkerr.Wrap(tbkerr.KindArchive, err, "read manifest entry")
		}
		return manifest.Decode(data)
	}
	return nil, tbkerr.New(tbkerr.KindArchive, "archive has no manifest.json")
}
