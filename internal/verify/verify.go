package verify

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"

	"github.com/open-edge-platform/pkg-installer/internal/utils/logger"
)

// ChecksumError reports a downloaded archive whose digest differs from the
// descriptor.
type ChecksumError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("SHA256 mismatch for %s\nExpected: %s\n  Actual: %s", e.Path, e.Expected, e.Actual)
}

// SignatureError reports a failed OpenPGP signature check.
type SignatureError struct {
	Path string
	Err  error
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("signature verification failed for %s: %v", e.Path, e.Err)
}

func (e *SignatureError) Unwrap() error { return e.Err }

// SHA256File returns the lowercase hex SHA-256 digest of the file at path.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum compares the file digest with expected. Hex case is ignored.
func VerifyChecksum(path, expected string) error {
	log := logger.Logger()

	expected = strings.ToLower(strings.TrimSpace(expected))
	if expected == "" {
		return fmt.Errorf("no checksum declared for %s", path)
	}

	actual, err := SHA256File(path)
	if err != nil {
		return err
	}
	if actual != expected {
		return &ChecksumError{Path: path, Expected: expected, Actual: actual}
	}
	log.Debugf("checksum ok for %s: %s", path, actual)
	return nil
}

// VerifySignature checks a detached OpenPGP signature over archivePath.
// Both the signature and the public key may be armored or binary.
func VerifySignature(archivePath, signaturePath, keyPath string) error {
	log := logger.Logger()

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("reading public key %s: %w", keyPath, err)
	}
	keyring, err := readKeyRing(keyData)
	if err != nil {
		return &SignatureError{Path: archivePath, Err: fmt.Errorf("parsing public key: %w", err)}
	}

	sigData, err := os.ReadFile(signaturePath)
	if err != nil {
		return fmt.Errorf("reading signature %s: %w", signaturePath, err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", archivePath, err)
	}
	defer archive.Close()

	var signer *openpgp.Entity
	if isArmored(sigData) {
		signer, err = openpgp.CheckArmoredDetachedSignature(keyring, archive, bytes.NewReader(sigData), nil)
	} else {
		signer, err = openpgp.CheckDetachedSignature(keyring, archive, bytes.NewReader(sigData), nil)
	}
	if err != nil {
		return &SignatureError{Path: archivePath, Err: err}
	}

	for name := range signer.Identities {
		log.Infof("good signature on %s from %s", archivePath, name)
		break
	}
	return nil
}

func readKeyRing(data []byte) (openpgp.EntityList, error) {
	if isArmored(data) {
		return openpgp.ReadArmoredKeyRing(bytes.NewReader(data))
	}
	return openpgp.ReadKeyRing(bytes.NewReader(data))
}

func isArmored(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if !bytes.HasPrefix(trimmed, []byte("-----BEGIN PGP")) {
		return false
	}
	_, err := armor.Decode(bytes.NewReader(trimmed))
	return err == nil
}
