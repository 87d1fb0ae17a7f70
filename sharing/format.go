package sharing

import (
	"encoding/hex"
	"fmt"
	"regexp"

	"github.com/ruteri/heirloom/interfaces"
)

// SchemeTag prefixes every encoded share.
const SchemeTag = "80"

var shareFormat = regexp.MustCompile(`^80([1-3])((?:[0-9a-f]{2})+)$`)

// EncodeShare renders the transport encoding of a share.
func EncodeShare(index int, data []byte) (interfaces.Share, error) {
	if index < 1 || index > TotalShares {
		return "", fmt.Errorf("%w: index %d out of range", interfaces.ErrInvalidShareFormat, index)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty share data", interfaces.ErrInvalidShareFormat)
	}
	return interfaces.Share(fmt.Sprintf("%s%x%s", SchemeTag, index, hex.EncodeToString(data))), nil
}

// ParseShare validates a share and returns its index and raw field data.
func ParseShare(share interfaces.Share) (int, []byte, error) {
	m := shareFormat.FindStringSubmatch(string(share))
	if m == nil {
		return 0, nil, fmt.Errorf("%w: %q", interfaces.ErrInvalidShareFormat, truncate(string(share)))
	}

	data, err := hex.DecodeString(m[2])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidShareFormat, err)
	}

	return int(m[1][0] - '0'), data, nil
}

// ValidateShare checks the format contract without decoding.
func ValidateShare(share interfaces.Share) error {
	if !shareFormat.MatchString(string(share)) {
		return fmt.Errorf("%w: %q", interfaces.ErrInvalidShareFormat, truncate(string(share)))
	}
	return nil
}

// ShareIndex returns the index embedded in a valid share.
func ShareIndex(share interfaces.Share) (int, error) {
	if err := ValidateShare(share); err != nil {
		return 0, err
	}
	return int(share[2] - '0'), nil
}

// truncate keeps error messages from echoing whole shares into logs.
func truncate(s string) string {
	if len(s) <= 8 {
		return s
	}
	return s[:8] + "..."
}
