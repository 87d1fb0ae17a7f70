// Package cryptoutils obfuscates the escrow share before it leaves the service.
//
// The escrow blob is "esc1." followed by base64url of the share XORed with a
// ChaCha20 keystream whose key is derived with HKDF-SHA256 from the content ID.
// Anyone holding the content ID can undo it: this keeps the share from being
// recognized at rest, it is not encryption.
package cryptoutils
