// Package escalationhandler exposes claims, heartbeats and escrow release over
// HTTP.
//
// Routes:
//   - POST /api/claims - file a claim (escalation.ClaimRequest)
//   - POST /api/heartbeats - arm a heartbeat (escalation.HeartbeatRequest)
//   - GET  /api/escalations/{id} - current entity
//   - GET  /api/escalations/{id}/events - audit trail
//   - POST /api/escalations/{id}/checkin - owner check-in; on an escalating
//     entity whose owner registered a wallet, use respond instead
//   - POST /api/escalations/{id}/respond - owner response signed by the registered wallet
//   - POST /api/escalations/{id}/reject - end an escalation without release
//   - GET  /api/escalations/{id}/release - escrow share, once release is authorized
//   - POST /api/secrets - split and place a secret in custody, registering its
//     owner (api.ProtectRequest)
//   - DELETE /api/secrets/{content_id} - forget both custodial shares
//
// Claims and heartbeats name only the content ID of a protected secret; the
// owner contacts and wallet come from its registration. Unknown content IDs
// yield 404.
//
// Authentication is left to the deployment in front of the service.
package escalationhandler
