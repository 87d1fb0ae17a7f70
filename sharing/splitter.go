package sharing

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/hashicorp/vault/shamir"
	"github.com/ruteri/heirloom/interfaces"
)

const (
	// TotalShares is the number of shares produced by Split.
	TotalShares = 3

	// Threshold is the number of shares needed to reconstruct a secret.
	Threshold = 2

	// MinSecretLength is the shortest secret Split accepts, in bytes.
	MinSecretLength = 8

	// checksumLength is the size of the integrity tag appended to the secret
	// before splitting.
	checksumLength = 4
)

// Split divides secret into three shares such that any two reconstruct it and
// any single share reveals nothing about it.
//
// Each byte of secret||checksum is the constant term of a random degree-1
// polynomial over GF(2^8), evaluated at x = 1, 2, 3. Shares differ on every
// call, even for the same secret.
func Split(secret []byte) ([TotalShares]interfaces.Share, error) {
	return SplitWithReader(secret, rand.Reader)
}

// SplitWithReader is Split with an explicit randomness source. Only tests
// should pass anything other than crypto/rand.Reader.
func SplitWithReader(secret []byte, random io.Reader) ([TotalShares]interfaces.Share, error) {
	var shares [TotalShares]interfaces.Share

	if len(secret) < MinSecretLength {
		return shares, fmt.Errorf("%w: %d bytes, need at least %d", interfaces.ErrSecretTooShort, len(secret), MinSecretLength)
	}

	payload := withChecksum(secret)
	defer wipeBytes(payload)

	slopes := make([]byte, len(payload))
	defer wipeBytes(slopes)
	if _, err := io.ReadFull(random, slopes); err != nil {
		return shares, fmt.Errorf("failed to read randomness: %w", err)
	}

	for i := range shares {
		x := uint8(i + 1)
		data := make([]byte, len(payload))
		for j := range payload {
			data[j] = evaluate(payload[j], slopes[j], x)
		}

		share, err := EncodeShare(i+1, data)
		wipeBytes(data)
		if err != nil {
			return shares, err
		}
		shares[i] = share
	}

	return shares, nil
}

// Reconstruct recovers the secret from two shares with different indices.
//
// It fails with ErrMissingShare if either share is empty, ErrInvalidShareFormat
// if either does not match the transport encoding, and ErrReconstructionFailed
// if the shares share an index, differ in length, or combine into data whose
// integrity checksum does not match. A corrupted pair never yields a value.
func Reconstruct(a, b interfaces.Share) ([]byte, error) {
	if a.IsEmpty() || b.IsEmpty() {
		return nil, interfaces.ErrMissingShare
	}

	indexA, dataA, err := ParseShare(a)
	if err != nil {
		return nil, err
	}
	defer wipeBytes(dataA)

	indexB, dataB, err := ParseShare(b)
	if err != nil {
		return nil, err
	}
	defer wipeBytes(dataB)

	if indexA == indexB {
		return nil, fmt.Errorf("%w: both shares carry index %d", interfaces.ErrReconstructionFailed, indexA)
	}
	if len(dataA) != len(dataB) {
		return nil, fmt.Errorf("%w: share lengths differ", interfaces.ErrReconstructionFailed)
	}
	if len(dataA) <= checksumLength {
		return nil, fmt.Errorf("%w: share too short", interfaces.ErrReconstructionFailed)
	}

	partA := append(bytes.Clone(dataA), uint8(indexA))
	partB := append(bytes.Clone(dataB), uint8(indexB))
	defer wipeBytes(partA)
	defer wipeBytes(partB)

	payload, err := shamir.Combine([][]byte{partA, partB})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrReconstructionFailed, err)
	}
	defer wipeBytes(payload)

	secret, ok := verifyChecksum(payload)
	if !ok {
		return nil, fmt.Errorf("%w: integrity check failed", interfaces.ErrReconstructionFailed)
	}
	return secret, nil
}

// withChecksum returns secret || sha256(secret)[:checksumLength] in a fresh buffer.
func withChecksum(secret []byte) []byte {
	sum := sha256.Sum256(secret)
	payload := make([]byte, 0, len(secret)+checksumLength)
	payload = append(payload, secret...)
	return append(payload, sum[:checksumLength]...)
}

// verifyChecksum splits payload and checks its tag. The returned secret is a copy.
func verifyChecksum(payload []byte) ([]byte, bool) {
	body := payload[:len(payload)-checksumLength]
	tag := payload[len(payload)-checksumLength:]
	sum := sha256.Sum256(body)
	if subtle.ConstantTimeCompare(sum[:checksumLength], tag) != 1 {
		return nil, false
	}
	return bytes.Clone(body), true
}

// Securely wipe data from memory
func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
