// Package gpg signs emitted index documents with an OpenPGP key and
// verifies existing detached signatures.
package gpg

import (
	"errors"
	"fmt"
	"os"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

const (
	maxKeyFileSize = 1024 * 1024      // armored keys are a few KB
	maxSignedSize  = 64 * 1024 * 1024 // index documents
	keyFileMode    = 0600
)

var (
	ErrNotPrivateKey   = errors.New("key has no private material")
	ErrKeyRevoked      = errors.New("key is revoked")
	ErrEmptyKeyRing    = errors.New("no keys in keyring")
	ErrBadSignature    = errors.New("signature verification failed")
	ErrInsecureKeyFile = errors.New("key file has insecure permissions")
)

// Signer produces armored detached signatures with one private key.
type Signer struct {
	keyRing     *crypto.KeyRing
	fingerprint string
	verifier    KeyRing
}

// NewSigner unlocks an armored private key. passphrase may be empty for
// unprotected keys.
func NewSigner(armoredKey string, passphrase []byte) (*Signer, error) {
	if armoredKey == "" {
		return nil, fmt.Errorf("armored key cannot be empty")
	}
	key, err := crypto.NewKeyFromArmored(armoredKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PGP key: %w", err)
	}
	if !key.IsPrivate() {
		return nil, ErrNotPrivateKey
	}
	if key.IsRevoked() {
		return nil, ErrKeyRevoked
	}

	locked, err := key.IsLocked()
	if err != nil {
		return nil, fmt.Errorf("failed to inspect key: %w", err)
	}
	if locked {
		key, err = key.Unlock(passphrase)
		if err != nil {
			return nil, fmt.Errorf("failed to unlock key: %w", err)
		}
	}

	public, err := key.GetArmoredPublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to export public key: %w", err)
	}
	keyRing, err := crypto.NewKeyRing(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create keyring: %w", err)
	}
	verifier, err := LoadKeyRingFromStrings([]string{public})
	if err != nil {
		return nil, err
	}
	return &Signer{
		keyRing:     keyRing,
		fingerprint: key.GetFingerprint(),
		verifier:    verifier,
	}, nil
}

// LoadSigner reads an armored private key file. The file must not be
// readable by other users.
func LoadSigner(path string, passphrase []byte) (*Signer, error) {
	if err := validateKeyFile(path, true); err != nil {
		return nil, fmt.Errorf("invalid key file '%s': %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return NewSigner(string(data), passphrase)
}

// SignDetached returns an armored detached signature over data.
func (s *Signer) SignDetached(data []byte) ([]byte, error) {
	sig, err := s.keyRing.SignDetached(crypto.NewPlainMessage(data))
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	armored, err := sig.GetArmored()
	if err != nil {
		return nil, fmt.Errorf("failed to armor signature: %w", err)
	}
	return []byte(armored + "\n"), nil
}

// Fingerprint returns the signing key's fingerprint.
func (s *Signer) Fingerprint() string {
	return s.fingerprint
}

// VerifyDetached checks that signature was made by this signer's key
// over message.
func (s *Signer) VerifyDetached(message, signature []byte) error {
	return s.verifier.VerifyDetached(message, signature)
}

// KeyRing verifies detached signatures.
type KeyRing interface {
	VerifyDetached(message []byte, signature []byte) error
}

// RealKeyRing implements KeyRing with gopenpgp.
type RealKeyRing struct {
	keyRing *crypto.KeyRing
}

// VerifyDetached checks an armored or binary detached signature.
func (rk *RealKeyRing) VerifyDetached(message []byte, signature []byte) error {
	if rk == nil || rk.keyRing == nil {
		return ErrEmptyKeyRing
	}

	pgpSignature, err := crypto.NewPGPSignatureFromArmored(string(signature))
	if err != nil {
		// Try binary format if armored fails
		pgpSignature = crypto.NewPGPSignature(signature)
	}

	if err := rk.keyRing.VerifyDetached(crypto.NewPlainMessage(message), pgpSignature, crypto.GetUnixTime()); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

// LoadKeyRingFromStrings builds a keyring from ASCII-armored public keys.
func LoadKeyRingFromStrings(armoredKeys []string) (KeyRing, error) {
	if len(armoredKeys) == 0 {
		return nil, fmt.Errorf("no armored keys provided")
	}

	var keyRing *crypto.KeyRing
	for i, armoredKey := range armoredKeys {
		key, err := crypto.NewKeyFromArmored(armoredKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse armored key string at index %d: %w", i, err)
		}
		if key.IsRevoked() {
			return nil, fmt.Errorf("invalid key at index %d: %w", i, ErrKeyRevoked)
		}
		if keyRing == nil {
			if keyRing, err = crypto.NewKeyRing(key); err != nil {
				return nil, fmt.Errorf("failed to create keyring: %w", err)
			}
			continue
		}
		if err := keyRing.AddKey(key); err != nil {
			return nil, fmt.Errorf("failed to add key to keyring: %w", err)
		}
	}
	return &RealKeyRing{keyRing: keyRing}, nil
}

// LoadKeyRingFromFile reads one armored public key file.
func LoadKeyRingFromFile(path string) (KeyRing, error) {
	if err := validateKeyFile(path, false); err != nil {
		return nil, fmt.Errorf("invalid key file '%s': %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}
	return LoadKeyRingFromStrings([]string{string(data)})
}

// VerifyDetachedSignature verifies the detached signature at sigFilePath
// over the file at dataFilePath.
func VerifyDetachedSignature(keyRing KeyRing, dataFilePath string, sigFilePath string) error {
	if keyRing == nil {
		return fmt.Errorf("keyring cannot be nil")
	}

	data, err := readBounded(dataFilePath, maxSignedSize)
	if err != nil {
		return fmt.Errorf("failed to read data file: %w", err)
	}
	sig, err := readBounded(sigFilePath, maxKeyFileSize)
	if err != nil {
		return fmt.Errorf("failed to read signature file: %w", err)
	}
	return keyRing.VerifyDetached(data, sig)
}

func readBounded(path string, limit int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > limit {
		return nil, fmt.Errorf("%s exceeds maximum allowed size of %d bytes", path, limit)
	}
	return os.ReadFile(path)
}

// validateKeyFile checks size and, for private keys, that the file is
// owner-only.
func validateKeyFile(filePath string, private bool) error {
	fileInfo, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to access key file: %w", err)
	}
	if fileInfo.Size() > maxKeyFileSize {
		return fmt.Errorf("key file exceeds maximum allowed size of %d bytes", maxKeyFileSize)
	}
	if perm := fileInfo.Mode().Perm(); private && perm&^keyFileMode != 0 {
		return fmt.Errorf("%w: expected %o, got %o", ErrInsecureKeyFile, keyFileMode, perm)
	}
	return nil
}
