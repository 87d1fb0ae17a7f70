package escalation

import (
	"context"
	"crypto/sha256"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ruteri/heirloom/interfaces"
	"github.com/ruteri/heirloom/storage"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var testContentID = "6b86b273ff34fce19d6b804eff5a3f5747ada4eaa22f1d49c01e52ddb7875b4b"

var testContacts = Contacts{Email: "owner@example.com", Phone: "+14155550123"}

type mockMessenger struct {
	mock.Mock
}

func (m *mockMessenger) Send(ctx context.Context, msg interfaces.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	clock     *clock.Mock
	backend   *storage.MemoryBackend
	repo      *StoreRepository
	messenger *mockMessenger
	machine   *Machine
	service   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewMock()
	clk.Set(t0)

	backend := storage.NewMemoryBackend("escalation")
	repo := NewStoreRepository(backend, discardLogger())
	messenger := &mockMessenger{}

	machine, err := NewMachine(DefaultPolicy(), repo, messenger, clk, discardLogger(), nil)
	require.NoError(t, err)

	return &fixture{
		clock:     clk,
		backend:   backend,
		repo:      repo,
		messenger: messenger,
		machine:   machine,
		service:   NewService(machine, repo, discardLogger()),
	}
}

// contentFor names the secret protected for an owner with contacts c.
func contentFor(c Contacts) interfaces.ContentID {
	return interfaces.ContentID(sha256.Sum256([]byte(c.Email + c.Phone)))
}

// protect registers an owner with contacts for contentFor(contacts), unless
// one already is.
func (f *fixture) protect(t *testing.T, contacts Contacts) interfaces.ContentID {
	t.Helper()
	ctx := context.Background()
	id := contentFor(contacts)
	if _, err := f.repo.LoadOwner(ctx, id); err == nil {
		return id
	}
	_, err := f.service.RegisterOwner(ctx, id, OwnerRequest{OwnerRef: "owner-1", Contacts: contacts})
	require.NoError(t, err)
	return id
}

func (f *fixture) fileClaim(t *testing.T, contacts Contacts) *Entity {
	t.Helper()
	id := f.protect(t, contacts)
	e, err := f.service.FileClaim(context.Background(), ClaimRequest{
		ContentID:      id.String(),
		BeneficiaryRef: "beneficiary-1",
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) armHeartbeat(t *testing.T, intervalDays int) *Entity {
	t.Helper()
	id := f.protect(t, testContacts)
	hb, err := f.service.ArmHeartbeat(context.Background(), HeartbeatRequest{
		ContentID:           id.String(),
		CheckInIntervalDays: intervalDays,
	})
	require.NoError(t, err)
	return hb
}

func (f *fixture) reload(t *testing.T, id string) *Entity {
	t.Helper()
	e, err := f.repo.Load(context.Background(), id)
	require.NoError(t, err)
	return e
}

func (f *fixture) at(offset time.Duration) {
	f.clock.Set(t0.Add(offset))
}

func sentTo(channel interfaces.Channel, stage, attempt int) interface{} {
	return mock.MatchedBy(func(msg interfaces.Message) bool {
		return msg.Channel == channel && msg.Stage == stage && msg.Attempt == attempt
	})
}

func eventTypes(events []Event) []EventType {
	out := make([]EventType, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}
