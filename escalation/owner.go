package escalation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ruteri/heirloom/interfaces"
)

// Owner is registered when a secret is protected. Claims and heartbeats for
// the secret take the owner's contacts and wallet from here, never from the
// party filing them.
type Owner struct {
	ContentID   interfaces.ContentID
	OwnerRef    string
	Contacts    Contacts
	OwnerWallet interfaces.WalletAddress
	CreatedAt   time.Time
}

// OwnerRequest describes the owner of a secret being protected.
type OwnerRequest struct {
	OwnerRef    string   `json:"owner_ref" validate:"required,max=256"`
	Contacts    Contacts `json:"contacts"`
	OwnerWallet string   `json:"owner_wallet,omitempty" validate:"omitempty,eth_addr"`
}

type ownerRecord struct {
	ContentID   string    `json:"content_id"`
	OwnerRef    string    `json:"owner_ref"`
	Contacts    Contacts  `json:"contacts"`
	OwnerWallet string    `json:"owner_wallet,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (o Owner) MarshalJSON() ([]byte, error) {
	rec := ownerRecord{
		ContentID: o.ContentID.String(),
		OwnerRef:  o.OwnerRef,
		Contacts:  o.Contacts,
		CreatedAt: o.CreatedAt,
	}
	if !o.OwnerWallet.IsZero() {
		rec.OwnerWallet = "0x" + o.OwnerWallet.String()
	}
	return json.Marshal(rec)
}

func (o *Owner) UnmarshalJSON(data []byte) error {
	var rec ownerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	id, err := interfaces.NewContentIDFromHex(rec.ContentID)
	if err != nil {
		return fmt.Errorf("owner: %w", err)
	}

	var wallet interfaces.WalletAddress
	if rec.OwnerWallet != "" {
		wallet, err = interfaces.NewWalletAddressFromHex(rec.OwnerWallet)
		if err != nil {
			return fmt.Errorf("owner of %s: %w", id, err)
		}
	}

	*o = Owner{
		ContentID:   id,
		OwnerRef:    rec.OwnerRef,
		Contacts:    rec.Contacts,
		OwnerWallet: wallet,
		CreatedAt:   rec.CreatedAt,
	}
	return nil
}
