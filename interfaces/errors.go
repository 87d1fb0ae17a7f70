package interfaces

import "errors"

// Cryptographic and format errors. These are always returned to the caller and
// must never be swallowed: they mean programmer error or a corrupted share.
var (
	// ErrSecretTooShort is returned when a secret is shorter than the minimum length.
	ErrSecretTooShort = errors.New("secret too short")

	// ErrInvalidShareFormat is returned when a share string does not match
	// "80" + index(1-3) + lowercase hex data.
	ErrInvalidShareFormat = errors.New("invalid share format")

	// ErrMissingShare is returned when reconstruction is attempted with an empty share.
	ErrMissingShare = errors.New("missing share")

	// ErrReconstructionFailed is returned when two shares do not combine into a
	// consistent secret (duplicate index, length mismatch or failed integrity check).
	ErrReconstructionFailed = errors.New("reconstruction failed")

	// ErrInvalidTokenFormat is returned when an offline-transfer token cannot be parsed.
	ErrInvalidTokenFormat = errors.New("invalid token format")
)

// Operational errors. The scheduler recovers from these locally and retries on
// the next tick.
var (
	// ErrMessagingFailure is returned when a messenger could not dispatch a message.
	ErrMessagingFailure = errors.New("messaging failure")

	// ErrBackendUnavailable is returned when a storage backend is not accessible.
	// This could be due to network issues, authentication failures, or service outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrStoreUnavailable is the escalation-facing name for ErrBackendUnavailable.
	ErrStoreUnavailable = ErrBackendUnavailable
)

var (
	// ErrStateConflict is returned internally when a transition is requested on a
	// terminal entity. Callers treat it as a no-op.
	ErrStateConflict = errors.New("escalation already terminal")

	// ErrConcurrentUpdate is returned when an entity changed in the store after
	// it was loaded. Callers reload and try again.
	ErrConcurrentUpdate = errors.New("escalation changed concurrently")

	// ErrContentNotFound is returned when a key is absent from a storage backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrEntityNotFound is returned when an escalation entity does not exist.
	ErrEntityNotFound = errors.New("escalation not found")

	// ErrReleaseNotAuthorized is returned when the escrow share is requested for
	// an escalation that has not reached release authorization.
	ErrReleaseNotAuthorized = errors.New("release not authorized")

	// ErrInvalidSignature is returned when an owner response signature does not
	// recover to the registered wallet address.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrInvalidLocationURI is returned when a storage location URI is malformed or unsupported.
	// URIs must follow the format: [scheme]://[auth@]host[:port][/path][?params]
	ErrInvalidLocationURI = errors.New("invalid storage location URI")

	// ErrInvalidKey is returned when a storage key contains empty, relative or
	// otherwise unsafe path segments.
	ErrInvalidKey = errors.New("invalid storage key")
)
