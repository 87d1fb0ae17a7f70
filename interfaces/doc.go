// Package interfaces defines core interfaces and types for the heirloom
// dead man's switch, separating interface definitions from implementations.
//
// # Storage Interfaces
//
// StorageBackend: keyed blob storage with get/put/delete/list across multiple
// backend types (memory, file, S3, IPFS, Vault).
//
// StorageBackendFactory: Creates storage backends from URI strings and manages
// multi-backend configurations for redundant storage.
//
// # Messaging Interfaces
//
// Messenger: delivers a verification Message to the secret owner over a Channel
// (email or phone). The escalation machine only selects the channel and stage;
// transports own the payload format.
//
// # Types
//
//   - ContentID: 32-byte random identifier of a protected secret
//   - Share: transport encoding of a single secret share
//   - WalletAddress: owner account used to sign liveness responses
//
// # Errors
//
// The error taxonomy (ErrSecretTooShort, ErrInvalidShareFormat, ErrMissingShare,
// ErrReconstructionFailed, ErrInvalidTokenFormat, ErrMessagingFailure,
// ErrStoreUnavailable, ErrStateConflict) is shared by all packages. Callers
// compare with errors.Is.
package interfaces
