// Package sharing implements 2-of-3 threshold secret sharing for a single
// secret and the text encodings its shares travel in.
//
// # Splitting
//
// Split turns a secret of at least MinSecretLength bytes into three shares.
// Any two reconstruct the secret exactly; one reveals nothing. A 4-byte
// SHA-256 tag is appended to the secret before splitting so that Reconstruct
// rejects corrupted or mismatched shares instead of returning garbage.
//
// Interpolation is delegated to github.com/hashicorp/vault/shamir. Shares are
// evaluated at the fixed x-coordinates 1, 2 and 3, which double as the share
// index in the encoding.
//
// # Encodings
//
// A share is "80" + index digit + lowercase hex data:
//
//	801c3a1...   share 1
//	802f07e...   share 2
//
// An offline-transfer token adds the content ID of the protected secret:
//
//	HEIRLOOM1:<content id>:<share>
//
// All functions in this package are pure and safe for concurrent use.
package sharing
