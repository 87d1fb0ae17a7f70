package cryptoutils

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ruteri/heirloom/interfaces"
	"github.com/ruteri/heirloom/sharing"
	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/hkdf"
)

// EscrowPrefix marks an obfuscated escrow share.
const EscrowPrefix = "esc1."

const escrowInfo = "heirloom escrow share v1"

// ErrInvalidEscrowEncoding is returned when an escrow blob cannot be decoded.
var ErrInvalidEscrowEncoding = errors.New("invalid escrow share encoding")

// ObfuscateEscrowShare reversibly encodes the share placed in less-trusted
// custody (file metadata, third-party store).
//
// This is obfuscation, NOT encryption. The keystream is derived from the
// content ID, which is public, so anyone holding the blob and the ID recovers
// the share. It only keeps the share from being recognisable at a glance.
// Confidentiality of a single share comes from the threshold scheme.
func ObfuscateEscrowShare(share interfaces.Share, id interfaces.ContentID) (string, error) {
	if err := sharing.ValidateShare(share); err != nil {
		return "", err
	}

	masked, err := xorKeystream([]byte(share), id)
	if err != nil {
		return "", err
	}

	return EscrowPrefix + base64.RawURLEncoding.EncodeToString(masked), nil
}

// DeobfuscateEscrowShare reverses ObfuscateEscrowShare. The recovered share
// must match the share format, which also catches a wrong content ID.
func DeobfuscateEscrowShare(blob string, id interfaces.ContentID) (interfaces.Share, error) {
	encoded, ok := strings.CutPrefix(blob, EscrowPrefix)
	if !ok {
		return "", fmt.Errorf("%w: missing %q prefix", ErrInvalidEscrowEncoding, EscrowPrefix)
	}

	masked, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEscrowEncoding, err)
	}

	plain, err := xorKeystream(masked, id)
	if err != nil {
		return "", err
	}

	share := interfaces.Share(plain)
	if err := sharing.ValidateShare(share); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEscrowEncoding, err)
	}
	return share, nil
}

func xorKeystream(data []byte, id interfaces.ContentID) ([]byte, error) {
	material := make([]byte, chacha20.KeySize+chacha20.NonceSize)
	kdf := hkdf.New(sha256.New, id.Bytes(), nil, []byte(escrowInfo))
	if _, err := io.ReadFull(kdf, material); err != nil {
		return nil, fmt.Errorf("failed to derive escrow keystream: %w", err)
	}

	cipher, err := chacha20.NewUnauthenticatedCipher(material[:chacha20.KeySize], material[chacha20.KeySize:])
	if err != nil {
		return nil, fmt.Errorf("failed to initialise keystream: %w", err)
	}

	out := make([]byte, len(data))
	cipher.XORKeyStream(out, data)
	return out, nil
}
