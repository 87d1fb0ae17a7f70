package api

import (
	"fmt"

	"github.com/ruteri/heirloom/escalation"
	"github.com/ruteri/heirloom/interfaces"
)

// RespondRequest carries an owner's proof of life: a hex-encoded 65-byte
// personal_sign signature of escalation.ResponseMessage(id).
type RespondRequest struct {
	Signature string `json:"signature"`
}

type RejectRequest struct {
	Reason string `json:"reason"`
}

// EscalationResponse wraps an entity with the message its owner signs to respond.
type EscalationResponse struct {
	Entity          *escalation.Entity `json:"entity"`
	ResponseMessage string             `json:"response_message"`
}

type EventsResponse struct {
	EntityID string             `json:"entity_id"`
	Events   []escalation.Event `json:"events"`
}

// ReleaseResponse hands out the escrow share of a release-authorized escalation.
type ReleaseResponse struct {
	EntityID    string           `json:"entity_id"`
	ContentID   string           `json:"content_id"`
	EscrowShare interfaces.Share `json:"escrow_share"`
}

// ProtectRequest carries a secret to split, sent as text, and the owner that
// claims and heartbeats for it will contact.
type ProtectRequest struct {
	Secret string                  `json:"secret"`
	Owner  escalation.OwnerRequest `json:"owner"`
}

type ShareRequest struct {
	Share interfaces.Share `json:"share"`
}

type ShareResponse struct {
	Key   string           `json:"key"`
	Share interfaces.Share `json:"share"`
}

type ShareListResponse struct {
	Keys []string `json:"keys"`
}

type ProtectResponse struct {
	ContentID        string `json:"content_id"`
	BeneficiaryToken string `json:"beneficiary_token"`
	RetainedKey      string `json:"retained_key"`
	EscrowKey        string `json:"escrow_key"`
}

// StatusError is returned by API clients for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}
