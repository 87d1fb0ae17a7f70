package storage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ruteri/heirloom/interfaces"
)

var keySegment = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateKey checks that a key is a non-empty slash-separated path whose
// segments are plain names. Relative segments ("." and "..") are rejected so
// that file-backed stores cannot escape their base directory.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", interfaces.ErrInvalidKey)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "." || segment == ".." || !keySegment.MatchString(segment) {
			return fmt.Errorf("%w: %q", interfaces.ErrInvalidKey, key)
		}
	}
	return nil
}

// JoinKey builds a key from segments.
func JoinKey(segments ...string) string {
	return strings.Join(segments, "/")
}
