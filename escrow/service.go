package escrow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/heirloom/cryptoutils"
	"github.com/ruteri/heirloom/escalation"
	"github.com/ruteri/heirloom/interfaces"
	"github.com/ruteri/heirloom/metrics"
	"github.com/ruteri/heirloom/sharing"
	"github.com/ruteri/heirloom/storage"
)

// EscrowNamespace is the key prefix of obfuscated escrow shares.
const EscrowNamespace = "escrow/"

// Protection describes where the shares of a protected secret went.
type Protection struct {
	ContentID interfaces.ContentID `json:"content_id"`
	// BeneficiaryToken carries share 2 and is not stored anywhere by the service.
	BeneficiaryToken string `json:"beneficiary_token"`
	RetainedKey      string `json:"retained_key"`
	EscrowKey        string `json:"escrow_key"`
}

// OwnerRegistry records who owns a protected secret. Claims and heartbeats
// are only accepted for registered secrets.
type OwnerRegistry interface {
	CheckOwner(ctx context.Context, req escalation.OwnerRequest) error
	RegisterOwner(ctx context.Context, id interfaces.ContentID, req escalation.OwnerRequest) (*escalation.Owner, error)
	ForgetOwner(ctx context.Context, id interfaces.ContentID) error
}

type Service struct {
	shares  *storage.ShareStore
	escrow  interfaces.StorageBackend
	owners  OwnerRegistry
	log     *slog.Logger
	metrics *metrics.Recorder
}

// NewService creates an escrow service. Retained shares go to shares, escrow
// blobs to escrow; the two should not be the same physical store.
func NewService(shares *storage.ShareStore, escrow interfaces.StorageBackend, owners OwnerRegistry, log *slog.Logger, rec *metrics.Recorder) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{shares: shares, escrow: escrow, owners: owners, log: log, metrics: rec}
}

// Protect splits secret under a fresh content ID, stores the retained and
// escrow shares and registers owner for it. Nothing is kept if any step fails.
func (s *Service) Protect(ctx context.Context, secret []byte, owner escalation.OwnerRequest) (_ *Protection, err error) {
	defer func() { s.metrics.EscrowOperation("protect", err) }()

	if err := s.owners.CheckOwner(ctx, owner); err != nil {
		return nil, err
	}

	id, err := interfaces.NewRandomContentID()
	if err != nil {
		return nil, err
	}

	shares, err := sharing.Split(secret)
	if err != nil {
		return nil, err
	}

	token, err := sharing.FormatToken(shares[1], id)
	if err != nil {
		return nil, err
	}
	blob, err := cryptoutils.ObfuscateEscrowShare(shares[2], id)
	if err != nil {
		return nil, err
	}

	retainedKey := id.String()
	if err := s.shares.Put(ctx, retainedKey, shares[0]); err != nil {
		return nil, err
	}

	escrowKey := escrowKey(id)
	if err := s.escrow.Put(ctx, escrowKey, []byte(blob)); err != nil {
		if cleanupErr := s.shares.Delete(ctx, retainedKey); cleanupErr != nil {
			s.log.Error("Failed to remove retained share after escrow failure",
				slog.String("content_id", id.String()),
				"err", cleanupErr)
		}
		return nil, fmt.Errorf("failed to store escrow share: %w", err)
	}

	if _, err := s.owners.RegisterOwner(ctx, id, owner); err != nil {
		if cleanupErr := s.deleteShares(ctx, id); cleanupErr != nil {
			s.log.Error("Failed to remove shares after owner registration failure",
				slog.String("content_id", id.String()),
				"err", cleanupErr)
		}
		return nil, err
	}

	s.log.Info("Secret protected",
		slog.String("content_id", id.String()),
		slog.String("escrow_backend", s.escrow.Name()))

	return &Protection{
		ContentID:        id,
		BeneficiaryToken: token,
		RetainedKey:      storage.SharesNamespace + retainedKey,
		EscrowKey:        escrowKey,
	}, nil
}

// ReleaseShare returns the escrow share of the secret an escalation protects,
// but only once the escalation authorized release.
func (s *Service) ReleaseShare(ctx context.Context, e *escalation.Entity) (_ interfaces.Share, err error) {
	defer func() { s.metrics.EscrowOperation("release", err) }()

	if e.Status() != escalation.StatusReleaseAuthorized {
		return "", fmt.Errorf("%w: escalation %s is %s", interfaces.ErrReleaseNotAuthorized, e.ID, e.Status())
	}

	blob, err := s.escrow.Get(ctx, escrowKey(e.ContentID))
	if err != nil {
		return "", fmt.Errorf("failed to load escrow share for %s: %w", e.ContentID, err)
	}

	share, err := cryptoutils.DeobfuscateEscrowShare(string(blob), e.ContentID)
	if err != nil {
		return "", err
	}

	s.log.Info("Escrow share released",
		slog.String("entity_id", e.ID),
		slog.String("content_id", e.ContentID.String()))
	return share, nil
}

// Recover reconstructs a secret from a beneficiary token and the released
// escrow share. It touches no storage.
func Recover(token string, escrowShare interfaces.Share) ([]byte, error) {
	share, _, err := sharing.ParseToken(token)
	if err != nil {
		return nil, err
	}
	return sharing.Reconstruct(share, escrowShare)
}

// Recover reconstructs from a token and escrow share and records the outcome.
func (s *Service) Recover(token string, escrowShare interfaces.Share) (_ []byte, err error) {
	defer func() { s.metrics.EscrowOperation("recover", err) }()
	return Recover(token, escrowShare)
}

// RecoverWithRetained reconstructs a secret from a beneficiary token and the
// share retained by the service, for an owner restoring their own secret.
func (s *Service) RecoverWithRetained(ctx context.Context, token string) (_ []byte, err error) {
	defer func() { s.metrics.EscrowOperation("recover_retained", err) }()

	share, id, err := sharing.ParseToken(token)
	if err != nil {
		return nil, err
	}

	retained, err := s.shares.Get(ctx, id.String())
	if err != nil {
		return nil, err
	}
	return sharing.Reconstruct(retained, share)
}

// Forget deletes both shares held by the service and the owner registration.
// Without them the secret can no longer be recovered from the beneficiary
// token alone, and no new claim can be filed for it.
func (s *Service) Forget(ctx context.Context, id interfaces.ContentID) (err error) {
	defer func() { s.metrics.EscrowOperation("forget", err) }()

	err = errors.Join(
		s.deleteShares(ctx, id),
		s.owners.ForgetOwner(ctx, id),
	)
	if err != nil {
		return err
	}

	s.log.Info("Secret forgotten", slog.String("content_id", id.String()))
	return nil
}

func (s *Service) deleteShares(ctx context.Context, id interfaces.ContentID) error {
	return errors.Join(
		s.shares.Delete(ctx, id.String()),
		s.escrow.Delete(ctx, escrowKey(id)),
	)
}

func escrowKey(id interfaces.ContentID) string {
	return EscrowNamespace + id.String()
}
