package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/heirloom/interfaces"
)

// ErrInvalidRequest is returned when a claim or heartbeat request fails validation.
var ErrInvalidRequest = errors.New("invalid escalation request")

// ClaimRequest is filed by a beneficiary who believes the owner is gone. The
// owner's contacts are the ones registered when the secret was protected.
type ClaimRequest struct {
	ContentID      string `json:"content_id" validate:"required,len=64,hexadecimal"`
	BeneficiaryRef string `json:"beneficiary_ref" validate:"required,max=256"`
}

// HeartbeatRequest arms a heartbeat that escalates when the owner stops checking in.
type HeartbeatRequest struct {
	ContentID           string `json:"content_id" validate:"required,len=64,hexadecimal"`
	BeneficiaryRef      string `json:"beneficiary_ref,omitempty" validate:"max=256"`
	CheckInIntervalDays int    `json:"check_in_interval_days" validate:"min=1,max=3650"`
}

// ContactChecker rejects contacts that cannot be reached before an owner is
// registered with them.
type ContactChecker interface {
	CheckEmail(ctx context.Context, address string) error
}

// maxUpdateAttempts bounds how often an owner or beneficiary action is retried
// against an entity that keeps changing underneath it.
const maxUpdateAttempts = 3

// Service is the entry point for owners and beneficiaries. It loads entities,
// delegates to the Machine, and hides StateConflict: acting on a terminal
// entity returns it unchanged.
type Service struct {
	machine  *Machine
	repo     Repository
	log      *slog.Logger
	contacts ContactChecker
}

func NewService(machine *Machine, repo Repository, log *slog.Logger) *Service {
	return &Service{machine: machine, repo: repo, log: log}
}

// WithContactChecker makes owner registration check the owner's email with c.
func (s *Service) WithContactChecker(c ContactChecker) *Service {
	s.contacts = c
	return s
}

// CheckOwner reports whether req could be registered: every channel the
// policy uses has a contact and the email is reachable.
func (s *Service) CheckOwner(ctx context.Context, req OwnerRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validate.Struct(req.Contacts); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	for _, channel := range s.machine.Policy().Channels() {
		if req.Contacts.For(channel) == "" {
			return fmt.Errorf("%w: no %s contact for a stage that uses it", ErrInvalidRequest, channel)
		}
	}

	if s.contacts != nil && req.Contacts.Email != "" {
		if err := s.contacts.CheckEmail(ctx, req.Contacts.Email); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	return nil
}

// RegisterOwner records the owner of a protected secret. A secret has one
// owner; registering it again fails with ErrStateConflict.
func (s *Service) RegisterOwner(ctx context.Context, id interfaces.ContentID, req OwnerRequest) (*Owner, error) {
	if err := s.CheckOwner(ctx, req); err != nil {
		return nil, err
	}

	o := &Owner{
		ContentID: id,
		OwnerRef:  req.OwnerRef,
		Contacts:  req.Contacts,
		CreatedAt: s.machine.clock.Now(),
	}
	if req.OwnerWallet != "" {
		addr, err := interfaces.NewWalletAddressFromHex(req.OwnerWallet)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
		o.OwnerWallet = addr
	}

	_, err := s.repo.LoadOwner(ctx, id)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: %s already has an owner", interfaces.ErrStateConflict, id)
	case !errors.Is(err, interfaces.ErrContentNotFound):
		return nil, err
	}

	if err := s.repo.SaveOwner(ctx, o); err != nil {
		return nil, err
	}

	s.log.Info("Owner registered",
		slog.String("content_id", id.String()),
		slog.String("owner_ref", o.OwnerRef))
	return o, nil
}

// ForgetOwner removes the owner registration of a secret. Later claims and
// heartbeats for it fail with ErrContentNotFound.
func (s *Service) ForgetOwner(ctx context.Context, id interfaces.ContentID) error {
	return s.repo.DeleteOwner(ctx, id)
}

// FileClaim creates a claim and activates it immediately. The first message
// goes out on the next scheduler run.
func (s *Service) FileClaim(ctx context.Context, req ClaimRequest) (*Entity, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	e, err := s.newEntity(ctx, interfaces.KindClaim, req.ContentID, req.BeneficiaryRef)
	if err != nil {
		return nil, err
	}

	armed, err := s.machine.Arm(ctx, e)
	if err != nil {
		return nil, err
	}
	active, err := s.machine.Activate(ctx, armed)
	if err != nil {
		return nil, err
	}

	s.log.Info("Claim filed",
		slog.String("entity_id", active.ID),
		slog.String("owner_ref", active.OwnerRef),
		slog.String("beneficiary_ref", active.BeneficiaryRef))
	return active, nil
}

// ArmHeartbeat creates an armed heartbeat whose first deadline is one
// interval from now.
func (s *Service) ArmHeartbeat(ctx context.Context, req HeartbeatRequest) (*Entity, error) {
	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	e, err := s.newEntity(ctx, interfaces.KindHeartbeat, req.ContentID, req.BeneficiaryRef)
	if err != nil {
		return nil, err
	}
	e.CheckInInterval = time.Duration(req.CheckInIntervalDays) * 24 * time.Hour

	armed, err := s.machine.Arm(ctx, e)
	if err != nil {
		return nil, err
	}

	s.log.Info("Heartbeat armed",
		slog.String("entity_id", armed.ID),
		slog.Time("deadline", armed.CheckInDeadline()))
	return armed, nil
}

// CheckIn renews an armed heartbeat. On an escalating entity it counts as an
// owner response and needs a signature if the owner registered a wallet.
func (s *Service) CheckIn(ctx context.Context, id string) (*Entity, error) {
	return s.update(ctx, id, func(e *Entity) (*Entity, error) {
		return s.respond(ctx, e, "check_in", false)
	})
}

// Respond records an owner response. It takes effect on the next tick. An
// escalating entity whose owner registered a wallet only accepts
// RespondWithSignature.
func (s *Service) Respond(ctx context.Context, id string) (*Entity, error) {
	return s.update(ctx, id, func(e *Entity) (*Entity, error) {
		return s.respond(ctx, e, "owner", false)
	})
}

// RespondWithSignature records an owner response proven by a signature of
// ResponseMessage(id) from the owner's registered wallet.
func (s *Service) RespondWithSignature(ctx context.Context, id string, signature []byte) (*Entity, error) {
	return s.update(ctx, id, func(e *Entity) (*Entity, error) {
		if err := VerifyResponseSignature(e.ID, signature, e.OwnerWallet); err != nil {
			s.log.Warn("Rejected owner response", slog.String("entity_id", e.ID), "err", err)
			return nil, err
		}
		return s.respond(ctx, e, "wallet_signature", true)
	})
}

func (s *Service) respond(ctx context.Context, e *Entity, source string, signed bool) (*Entity, error) {
	if e.Status() == StatusArmed && e.Kind == interfaces.KindHeartbeat {
		return s.machine.CheckIn(ctx, e)
	}
	if e.Status() == StatusActive && !signed && !e.OwnerWallet.IsZero() {
		return nil, fmt.Errorf("%w: entity %s needs a response signed by the owner wallet", interfaces.ErrInvalidSignature, e.ID)
	}

	updated, err := s.machine.RecordResponse(ctx, e, source)
	if errors.Is(err, interfaces.ErrStateConflict) {
		s.log.Debug("Response on settled entity ignored",
			slog.String("entity_id", e.ID),
			slog.String("status", string(e.Status())))
		return e, nil
	}
	return updated, err
}

// Reject ends a non-terminal entity. Rejecting a terminal entity is a no-op.
func (s *Service) Reject(ctx context.Context, id, reason string) (*Entity, error) {
	return s.update(ctx, id, func(e *Entity) (*Entity, error) {
		updated, err := s.machine.Reject(ctx, e, reason)
		if errors.Is(err, interfaces.ErrStateConflict) {
			return e, nil
		}
		return updated, err
	})
}

// update loads the entity and applies fn, loading it again if it changed
// before fn's result was saved.
func (s *Service) update(ctx context.Context, id string, fn func(*Entity) (*Entity, error)) (*Entity, error) {
	for attempt := 1; ; attempt++ {
		e, err := s.repo.Load(ctx, id)
		if err != nil {
			return nil, err
		}

		updated, err := fn(e)
		if !errors.Is(err, interfaces.ErrConcurrentUpdate) || attempt == maxUpdateAttempts {
			return updated, err
		}
		s.log.Debug("Entity changed during update, retrying",
			slog.String("entity_id", id),
			slog.Int("attempt", attempt))
	}
}

func (s *Service) Get(ctx context.Context, id string) (*Entity, error) {
	return s.repo.Load(ctx, id)
}

func (s *Service) Events(ctx context.Context, id string) ([]Event, error) {
	if _, err := s.repo.Load(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Events(ctx, id)
}

// newEntity builds an entity for a protected secret from its registered owner.
func (s *Service) newEntity(ctx context.Context, kind interfaces.EscalationKind, contentID, beneficiaryRef string) (*Entity, error) {
	id, err := interfaces.NewContentIDFromHex(contentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	owner, err := s.repo.LoadOwner(ctx, id)
	if err != nil {
		return nil, err
	}

	return &Entity{
		Kind:           kind,
		OwnerRef:       owner.OwnerRef,
		BeneficiaryRef: beneficiaryRef,
		Contacts:       owner.Contacts,
		OwnerWallet:    owner.OwnerWallet,
		ContentID:      id,
	}, nil
}
