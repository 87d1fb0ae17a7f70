/*
Package api holds the wire types and server configuration shared by the HTTP
handlers and their clients.

The handlers live in subpackages:

  - escalationhandler - claims, heartbeats, owner responses, escrow release and
    secret protection
  - sharehandler - direct access to the retained share store

Each subpackage ships a Handler with RegisterRoutes(chi.Router) and a Client
speaking the same JSON shapes. Failures are returned as {"error": "..."} with
a status derived from the interfaces error taxonomy:

  - 400 for malformed requests, short secrets and invalid shares
  - 401 for a signature that does not recover to the registered wallet
  - 404 for unknown escalations or content
  - 409 for release before authorization and terminal escalations
  - 503 when a storage backend is unavailable

Clients map non-2xx responses back to *StatusError.
*/
package api
