package interfaces

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ContentID is a 32-byte identifier of a protected secret.
//
// It is generated randomly when a secret is protected. It is never derived from
// the secret itself, since a hash of a password is a guessing oracle.
type ContentID [32]byte

// NewContentIDFromBytes creates a content ID from a 32-byte slice.
func NewContentIDFromBytes(source []byte) (ContentID, error) {
	if len(source) != 32 {
		return ContentID{}, errors.New("invalid ContentID conversion from bytes: incorrect length")
	}

	var id ContentID
	copy(id[:], source)
	return id, nil
}

// NewContentIDFromHex parses a 64-character hex string, with or without 0x prefix.
func NewContentIDFromHex(source string) (ContentID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ContentID{}, errors.New("invalid content ID length: hex string must be 64 characters")
	}

	idBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ContentID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewContentIDFromBytes(idBytes)
}

// NewRandomContentID generates a fresh content ID from a cryptographically secure source.
func NewRandomContentID() (ContentID, error) {
	var id ContentID
	if _, err := rand.Read(id[:]); err != nil {
		return ContentID{}, fmt.Errorf("could not generate content ID: %w", err)
	}
	return id, nil
}

// String returns lowercase hex representation.
func (id ContentID) String() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns raw 32 bytes.
func (id ContentID) Bytes() []byte {
	return id[:]
}

// Equal compares two content IDs.
func (id ContentID) Equal(other ContentID) bool {
	return bytes.Equal(id[:], other[:])
}

// IsZero reports whether the ID was never set.
func (id ContentID) IsZero() bool {
	return id == ContentID{}
}

// Share is one fragment of a split secret in its transport encoding:
// "80" + one hex digit index (1-3) + lowercase hex field data.
//
// A Share is self-describing (its index is recoverable from the encoding) but
// not self-validating: corruption is only detected when two shares are combined.
type Share string

// String returns the encoded share.
func (s Share) String() string {
	return string(s)
}

// IsEmpty reports whether the share carries no data at all.
func (s Share) IsEmpty() bool {
	return len(s) == 0
}

// WalletAddress is a 20-byte Ethereum account address registered by a secret owner.
type WalletAddress [20]byte

// NewWalletAddressFromBytes creates a wallet address from a 20-byte slice.
func NewWalletAddressFromBytes(addr []byte) (WalletAddress, error) {
	if len(addr) != 20 {
		return WalletAddress{}, errors.New("invalid address length: must be 20 bytes")
	}

	var res WalletAddress
	copy(res[:], addr)
	return res, nil
}

// NewWalletAddressFromHex parses a 40-character hex address, with or without 0x prefix.
func NewWalletAddressFromHex(addr string) (WalletAddress, error) {
	clean := strings.TrimPrefix(addr, "0x")
	if len(clean) != 40 {
		return WalletAddress{}, errors.New("invalid address length: hex string must be 40 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return WalletAddress{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewWalletAddressFromBytes(addrBytes)
}

// String returns the hex string representation of the address.
func (addr WalletAddress) String() string {
	return hex.EncodeToString(addr[:])
}

// IsZero reports whether no address is registered.
func (addr WalletAddress) IsZero() bool {
	return addr == WalletAddress{}
}
