package flags

import (
	"testing"

	"github.com/ruteri/heirloom/escalation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolicy(t *testing.T) {
	policy, err := ParsePolicy([]string{"email:3:3", " phone:2:2"})
	require.NoError(t, err)
	assert.Equal(t, escalation.DefaultPolicy(), policy)

	for _, specs := range [][]string{
		nil,
		{"email:3"},
		{"email:three:3"},
		{"email:3:x"},
		{"fax:1:1"},
		{"email:0:3"},
	} {
		_, err := ParsePolicy(specs)
		assert.Error(t, err, specs)
	}
}

func TestParseHeaders(t *testing.T) {
	headers, err := ParseHeaders([]string{"Authorization=Bearer abc=", "X-Env = prod"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Authorization": "Bearer abc=", "X-Env": " prod"}, headers)

	_, err = ParseHeaders([]string{"no-separator"})
	assert.Error(t, err)
	_, err = ParseHeaders([]string{"=value"})
	assert.Error(t, err)
}
