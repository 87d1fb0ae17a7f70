package interfaces

import "context"

// Channel is the communication channel a verification stage uses.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// Valid reports whether the channel is one of the supported channels.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelPhone
}

// EscalationKind distinguishes what armed an escalation.
type EscalationKind string

const (
	// KindClaim is an escalation started by a beneficiary filing a claim.
	KindClaim EscalationKind = "claim"
	// KindHeartbeat is an escalation started by a missed owner check-in.
	KindHeartbeat EscalationKind = "heartbeat"
)

// Valid reports whether the kind is known.
func (k EscalationKind) Valid() bool {
	return k == KindClaim || k == KindHeartbeat
}

// Message is a single verification request sent to the secret owner.
// Messengers format transport-specific payloads from it.
type Message struct {
	Channel     Channel        `json:"channel"`
	Recipient   string         `json:"recipient"`
	EntityID    string         `json:"entity_id"`
	Kind        EscalationKind `json:"kind"`
	Stage       int            `json:"stage"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
}

// Messenger delivers verification messages. Implementations must honour ctx
// deadlines; failures are wrapped with ErrMessagingFailure.
type Messenger interface {
	Send(ctx context.Context, msg Message) error
}
