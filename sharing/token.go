package sharing

import (
	"fmt"
	"strings"

	"github.com/ruteri/heirloom/interfaces"
)

// TokenPrefix marks an offline-transfer token. The version digit changes if the
// layout ever does.
const TokenPrefix = "HEIRLOOM1:"

const tokenDelimiter = ":"

// FormatToken packs a share and the content ID it protects into one string
// suitable for a QR code or a printed recovery card:
//
//	HEIRLOOM1:<64 hex content id>:<share>
func FormatToken(share interfaces.Share, id interfaces.ContentID) (string, error) {
	if err := ValidateShare(share); err != nil {
		return "", err
	}
	return TokenPrefix + id.String() + tokenDelimiter + share.String(), nil
}

// ParseToken is the inverse of FormatToken. Any deviation from the layout fails
// with ErrInvalidTokenFormat; partial results are never returned.
func ParseToken(token string) (interfaces.Share, interfaces.ContentID, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(token), TokenPrefix)
	if !ok {
		return "", interfaces.ContentID{}, fmt.Errorf("%w: missing %q prefix", interfaces.ErrInvalidTokenFormat, TokenPrefix)
	}

	idHex, shareStr, ok := strings.Cut(rest, tokenDelimiter)
	if !ok {
		return "", interfaces.ContentID{}, fmt.Errorf("%w: missing delimiter", interfaces.ErrInvalidTokenFormat)
	}
	if strings.HasPrefix(idHex, "0x") {
		return "", interfaces.ContentID{}, fmt.Errorf("%w: content id must not carry 0x prefix", interfaces.ErrInvalidTokenFormat)
	}

	id, err := interfaces.NewContentIDFromHex(idHex)
	if err != nil {
		return "", interfaces.ContentID{}, fmt.Errorf("%w: %w", interfaces.ErrInvalidTokenFormat, err)
	}

	share := interfaces.Share(shareStr)
	if err := ValidateShare(share); err != nil {
		return "", interfaces.ContentID{}, fmt.Errorf("%w: %w", interfaces.ErrInvalidTokenFormat, err)
	}

	return share, id, nil
}
