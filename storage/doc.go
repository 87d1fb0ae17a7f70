// Package storage provides keyed blob storage with pluggable backends and the
// ShareStore adapter used to retain shares and escalation records.
//
// Backends implement interfaces.StorageBackend:
//
//   - MemoryBackend for tests and single-node development
//   - FileBackend for local disk, with atomic replace on write
//   - S3Backend for Amazon S3 or compatible object storage
//   - VaultBackend for HashiCorp Vault KV v2 mounts
//   - IPFSBackend for the mutable file system of an IPFS node
//   - MultiStorageBackend aggregating any of the above
//
// # Storage URI Format
//
// Backends are created by StorageBackendFactory from URIs:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Examples:
//
//   - memory://dev
//   - file:///var/lib/heirloom
//   - s3://bucket-name/prefix/?region=us-west-2&endpoint=http://minio:9000
//   - ipfs://localhost:5001/heirloom?timeout=30s
//   - vault://vault.example.com:8200/secret/heirloom?token_env=VAULT_TOKEN
//
// Vault tokens are read from the environment variable named by token_env
// (VAULT_TOKEN by default) so that URIs can be logged.
//
// # Keys
//
// Keys are slash-separated paths of plain segments ([A-Za-z0-9._-]+), for
// example "shares/3f1c..." or "events/<entity>/<event>". Writes are
// last-write-wins and there is no compare-and-swap. Backends report a missing
// key as interfaces.ErrContentNotFound and an outage as an error wrapping
// interfaces.ErrBackendUnavailable.
//
// # Multi-Backend Storage
//
// MultiStorageBackend writes to every available backend and succeeds if one
// accepted the write. Reads return the first backend that has the key. List
// returns the union of keys.
//
// # Usage Example
//
//	factory := storage.NewStorageBackendFactory(logger)
//	backend, err := factory.BackendFromURIs([]string{
//	    "file:///var/lib/heirloom",
//	    "s3://heirloom-backup/prod?region=eu-west-1",
//	})
//	if err != nil {
//	    log.Fatalf("Failed to create backend: %v", err)
//	}
//
//	shares := storage.NewShareStore(backend, logger)
//	if err := shares.Put(ctx, id.String(), share); err != nil {
//	    log.Fatalf("Failed to store share: %v", err)
//	}
package storage
