// Package escrow places the three shares of a protected secret into their
// custodies and hands them back out.
//
// Protect splits a secret into three shares:
//   - share 1 is retained by the service in the ShareStore under the content ID
//   - share 2 is returned to the caller as an offline beneficiary token
//   - share 3 is obfuscated and stored in the escrow backend
//
// The escrow share leaves custody only through ReleaseShare, which requires an
// escalation in release_authorized. A beneficiary then recovers the secret from
// their token plus the released share, without the service ever holding two
// shares in the same place.
package escrow
