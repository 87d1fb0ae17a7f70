package escalation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ruteri/heirloom/interfaces"
)

// Contacts are the owner's addresses per channel.
type Contacts struct {
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty" validate:"omitempty,e164"`
}

// For returns the recipient for channel, or "" if none is registered.
func (c Contacts) For(channel interfaces.Channel) string {
	switch channel {
	case interfaces.ChannelEmail:
		return c.Email
	case interfaces.ChannelPhone:
		return c.Phone
	}
	return ""
}

// Entity tracks one owner/secret pairing through the verification protocol.
// It is either a claim (filed by a beneficiary) or a heartbeat (armed by the
// owner and activated by a missed check-in).
type Entity struct {
	ID             string
	Kind           interfaces.EscalationKind
	OwnerRef       string
	BeneficiaryRef string
	Contacts       Contacts
	OwnerWallet    interfaces.WalletAddress
	ContentID      interfaces.ContentID

	State State

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version counts saves. A save is accepted only if the stored record still
	// carries the version the entity was loaded with.
	Version int64

	// RespondedAt is set when the owner signals a response. It is applied by
	// the next tick.
	RespondedAt time.Time

	// Heartbeats only.
	LastCheckIn     time.Time
	CheckInInterval time.Duration
	PreviousID      string
}

func (e *Entity) Status() Status {
	if e.State == nil {
		return StatusArmed
	}
	return e.State.Status()
}

func (e *Entity) Terminal() bool {
	return e.State != nil && e.State.Terminal()
}

// CheckInDeadline is when an armed heartbeat starts escalating.
func (e *Entity) CheckInDeadline() time.Time {
	return e.LastCheckIn.Add(e.CheckInInterval)
}

// Overdue reports whether an armed heartbeat missed its check-in at now.
func (e *Entity) Overdue(now time.Time) bool {
	if e.Kind != interfaces.KindHeartbeat || e.Status() != StatusArmed || e.CheckInInterval <= 0 {
		return false
	}
	return !now.Before(e.CheckInDeadline())
}

func (e *Entity) clone() *Entity {
	c := *e
	return &c
}

type entityRecord struct {
	ID               string                    `json:"id"`
	Kind             interfaces.EscalationKind `json:"kind"`
	OwnerRef         string                    `json:"owner_ref"`
	BeneficiaryRef   string                    `json:"beneficiary_ref,omitempty"`
	Contacts         Contacts                  `json:"contacts"`
	OwnerWallet      string                    `json:"owner_wallet,omitempty"`
	ContentID        string                    `json:"content_id"`
	State            stateRecord               `json:"state"`
	CreatedAt        time.Time                 `json:"created_at"`
	UpdatedAt        time.Time                 `json:"updated_at"`
	Version          int64                     `json:"version"`
	RespondedAt      *time.Time                `json:"responded_at,omitempty"`
	LastCheckIn      *time.Time                `json:"last_check_in,omitempty"`
	CheckInIntervalS int64                     `json:"check_in_interval_seconds,omitempty"`
	PreviousID       string                    `json:"previous_id,omitempty"`
}

func (e Entity) MarshalJSON() ([]byte, error) {
	rec := entityRecord{
		ID:               e.ID,
		Kind:             e.Kind,
		OwnerRef:         e.OwnerRef,
		BeneficiaryRef:   e.BeneficiaryRef,
		Contacts:         e.Contacts,
		ContentID:        e.ContentID.String(),
		State:            encodeState(e.State),
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
		Version:          e.Version,
		CheckInIntervalS: int64(e.CheckInInterval / time.Second),
		PreviousID:       e.PreviousID,
	}
	if !e.OwnerWallet.IsZero() {
		rec.OwnerWallet = "0x" + e.OwnerWallet.String()
	}
	if !e.RespondedAt.IsZero() {
		rec.RespondedAt = timePtr(e.RespondedAt)
	}
	if !e.LastCheckIn.IsZero() {
		rec.LastCheckIn = timePtr(e.LastCheckIn)
	}
	return json.Marshal(rec)
}

// UnmarshalJSON rejects records that do not describe a valid state, so that a
// corrupted store entry is never evaluated.
func (e *Entity) UnmarshalJSON(data []byte) error {
	var rec entityRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	if rec.ID == "" {
		return fmt.Errorf("entity without id")
	}
	if !rec.Kind.Valid() {
		return fmt.Errorf("entity %s: unknown kind %q", rec.ID, rec.Kind)
	}

	state, err := decodeState(rec.State)
	if err != nil {
		return fmt.Errorf("entity %s: %w", rec.ID, err)
	}

	contentID, err := interfaces.NewContentIDFromHex(rec.ContentID)
	if err != nil {
		return fmt.Errorf("entity %s: %w", rec.ID, err)
	}

	var wallet interfaces.WalletAddress
	if rec.OwnerWallet != "" {
		wallet, err = interfaces.NewWalletAddressFromHex(rec.OwnerWallet)
		if err != nil {
			return fmt.Errorf("entity %s: %w", rec.ID, err)
		}
	}

	*e = Entity{
		ID:              rec.ID,
		Kind:            rec.Kind,
		OwnerRef:        rec.OwnerRef,
		BeneficiaryRef:  rec.BeneficiaryRef,
		Contacts:        rec.Contacts,
		OwnerWallet:     wallet,
		ContentID:       contentID,
		State:           state,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
		Version:         rec.Version,
		CheckInInterval: time.Duration(rec.CheckInIntervalS) * time.Second,
		PreviousID:      rec.PreviousID,
	}
	if rec.RespondedAt != nil {
		e.RespondedAt = *rec.RespondedAt
	}
	if rec.LastCheckIn != nil {
		e.LastCheckIn = *rec.LastCheckIn
	}
	return nil
}

// EventType names what an Event records.
type EventType string

const (
	EventArmed               EventType = "armed"
	EventActivated           EventType = "activated"
	EventCheckIn             EventType = "check_in"
	EventMessageSent         EventType = "message_sent"
	EventDispatchFailed      EventType = "dispatch_failed"
	EventStageAdvanced       EventType = "stage_advanced"
	EventResponseRecorded    EventType = "response_recorded"
	EventOwnerConfirmedAlive EventType = "owner_confirmed_alive"
	EventReleaseAuthorized   EventType = "release_authorized"
	EventRejected            EventType = "rejected"
	EventRearmed             EventType = "rearmed"
)

// Event is an append-only audit record of a transition or dispatch.
type Event struct {
	ID       string         `json:"id"`
	EntityID string         `json:"entity_id"`
	At       time.Time      `json:"at"`
	Type     EventType      `json:"type"`
	Detail   map[string]any `json:"detail,omitempty"`
}
