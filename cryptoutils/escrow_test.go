package cryptoutils

import (
	"strings"
	"testing"

	"github.com/ruteri/heirloom/interfaces"
	"github.com/ruteri/heirloom/sharing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscrowObfuscation_RoundTrip(t *testing.T) {
	shares, err := sharing.Split([]byte("CorrectHorse1"))
	require.NoError(t, err)

	id, err := interfaces.NewRandomContentID()
	require.NoError(t, err)

	blob, err := ObfuscateEscrowShare(shares[2], id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(blob, EscrowPrefix))
	assert.NotContains(t, blob, shares[2].String())

	recovered, err := DeobfuscateEscrowShare(blob, id)
	require.NoError(t, err)
	assert.Equal(t, shares[2], recovered)

	// deterministic for the same share and id
	again, err := ObfuscateEscrowShare(shares[2], id)
	require.NoError(t, err)
	assert.Equal(t, blob, again)
}

func TestEscrowObfuscation_WrongContentID(t *testing.T) {
	shares, err := sharing.Split([]byte("CorrectHorse1"))
	require.NoError(t, err)

	blob, err := ObfuscateEscrowShare(shares[2], interfaces.ContentID{1})
	require.NoError(t, err)

	_, err = DeobfuscateEscrowShare(blob, interfaces.ContentID{2})
	assert.ErrorIs(t, err, ErrInvalidEscrowEncoding)
	assert.ErrorIs(t, err, interfaces.ErrInvalidShareFormat)
}

func TestEscrowObfuscation_InvalidInput(t *testing.T) {
	_, err := ObfuscateEscrowShare("nope", interfaces.ContentID{})
	assert.ErrorIs(t, err, interfaces.ErrInvalidShareFormat)

	_, err = DeobfuscateEscrowShare("plain-text", interfaces.ContentID{})
	assert.ErrorIs(t, err, ErrInvalidEscrowEncoding)

	_, err = DeobfuscateEscrowShare(EscrowPrefix+"***", interfaces.ContentID{})
	assert.ErrorIs(t, err, ErrInvalidEscrowEncoding)
}
