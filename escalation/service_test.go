package escalation

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/heirloom/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestService_FileClaimValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.protect(t, testContacts)

	valid := ClaimRequest{
		ContentID:      id.String(),
		BeneficiaryRef: "beneficiary-1",
	}

	tests := []struct {
		name   string
		mutate func(*ClaimRequest)
	}{
		{"missing beneficiary", func(r *ClaimRequest) { r.BeneficiaryRef = "" }},
		{"short content id", func(r *ClaimRequest) { r.ContentID = "abcd" }},
		{"non-hex content id", func(r *ClaimRequest) { r.ContentID = strings.Repeat("zz", 32) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := f.service.FileClaim(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	e, err := f.service.FileClaim(ctx, valid)
	require.NoError(t, err)
	assert.Equal(t, interfaces.KindClaim, e.Kind)
	assert.Equal(t, ActiveStatus(1), e.Status())
	assert.Equal(t, id, e.ContentID)

	events, err := f.service.Events(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, []EventType{EventArmed, EventActivated}, eventTypes(events))
}

func TestService_ClaimsNeedRegisteredOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.FileClaim(ctx, ClaimRequest{ContentID: testContentID, BeneficiaryRef: "beneficiary-1"})
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	_, err = f.service.ArmHeartbeat(ctx, HeartbeatRequest{ContentID: testContentID, CheckInIntervalDays: 30})
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	entities, err := f.repo.ListByStatus(ctx, ActiveStatus(1))
	require.NoError(t, err)
	assert.Empty(t, entities)

	id, err := interfaces.NewContentIDFromHex(testContentID)
	require.NoError(t, err)
	_, err = f.service.RegisterOwner(ctx, id, OwnerRequest{OwnerRef: "owner-7", Contacts: testContacts})
	require.NoError(t, err)

	// contacts are the registered ones
	e, err := f.service.FileClaim(ctx, ClaimRequest{ContentID: testContentID, BeneficiaryRef: "beneficiary-1"})
	require.NoError(t, err)
	assert.Equal(t, "owner-7", e.OwnerRef)
	assert.Equal(t, testContacts, e.Contacts)
	assert.True(t, e.OwnerWallet.IsZero())

	require.NoError(t, f.service.ForgetOwner(ctx, id))
	_, err = f.service.FileClaim(ctx, ClaimRequest{ContentID: testContentID, BeneficiaryRef: "beneficiary-2"})
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)
}

func TestService_RegisterOwnerValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := contentFor(testContacts)

	valid := OwnerRequest{OwnerRef: "owner-1", Contacts: testContacts}

	tests := []struct {
		name   string
		mutate func(*OwnerRequest)
	}{
		{"missing owner", func(r *OwnerRequest) { r.OwnerRef = "" }},
		{"bad email", func(r *OwnerRequest) { r.Contacts.Email = "not-an-email" }},
		{"bad phone", func(r *OwnerRequest) { r.Contacts.Phone = "555-0100" }},
		{"no phone for phone stage", func(r *OwnerRequest) { r.Contacts.Phone = "" }},
		{"bad wallet", func(r *OwnerRequest) { r.OwnerWallet = "0x1234" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			_, err := f.service.RegisterOwner(ctx, id, req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}

	_, err := f.repo.LoadOwner(ctx, id)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	o, err := f.service.RegisterOwner(ctx, id, valid)
	require.NoError(t, err)
	assert.Equal(t, t0, o.CreatedAt)

	// a secret keeps its first owner
	_, err = f.service.RegisterOwner(ctx, id, OwnerRequest{OwnerRef: "intruder", Contacts: testContacts})
	assert.ErrorIs(t, err, interfaces.ErrStateConflict)
	registered, err := f.repo.LoadOwner(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", registered.OwnerRef)
}

func TestService_RespondWithSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	wallet := strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	id := contentFor(testContacts)
	_, err = f.service.RegisterOwner(ctx, id, OwnerRequest{OwnerRef: "owner-1", Contacts: testContacts, OwnerWallet: wallet})
	require.NoError(t, err)
	e, err := f.service.FileClaim(ctx, ClaimRequest{ContentID: id.String(), BeneficiaryRef: "beneficiary-1"})
	require.NoError(t, err)

	sign := func(msg string) []byte {
		sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
		require.NoError(t, err)
		return sig
	}

	// signature over another entity's message
	_, err = f.service.RespondWithSignature(ctx, e.ID, sign(ResponseMessage("someone-else")))
	assert.ErrorIs(t, err, interfaces.ErrInvalidSignature)

	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	forged, err := crypto.Sign(accounts.TextHash([]byte(ResponseMessage(e.ID))), other)
	require.NoError(t, err)
	_, err = f.service.RespondWithSignature(ctx, e.ID, forged)
	assert.ErrorIs(t, err, interfaces.ErrInvalidSignature)

	_, err = f.service.RespondWithSignature(ctx, e.ID, []byte{1, 2, 3})
	assert.ErrorIs(t, err, interfaces.ErrInvalidSignature)

	// with a wallet registered, unsigned responses are refused
	_, err = f.service.Respond(ctx, e.ID)
	assert.ErrorIs(t, err, interfaces.ErrInvalidSignature)
	_, err = f.service.CheckIn(ctx, e.ID)
	assert.ErrorIs(t, err, interfaces.ErrInvalidSignature)
	assert.True(t, f.reload(t, e.ID).RespondedAt.IsZero())

	// wallets sign with v in {27, 28}
	sig := sign(ResponseMessage(e.ID))
	sig[64] += 27
	responded, err := f.service.RespondWithSignature(ctx, e.ID, sig)
	require.NoError(t, err)
	assert.Equal(t, t0, responded.RespondedAt)

	events, err := f.service.Events(ctx, e.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, EventResponseRecorded, last.Type)
	assert.Equal(t, "wallet_signature", last.Detail["source"])
}

func TestService_RespondWithoutWallet(t *testing.T) {
	f := newFixture(t)
	e := f.fileClaim(t, testContacts)

	_, err := f.service.RespondWithSignature(context.Background(), e.ID, make([]byte, 65))
	assert.ErrorIs(t, err, interfaces.ErrInvalidSignature)
}

func TestService_TerminalEntitiesIgnoreActions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.fileClaim(t, testContacts)

	rejected, err := f.service.Reject(ctx, e.ID, "filed by mistake")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status())

	again, err := f.service.Respond(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, rejected.State, again.State)
	assert.True(t, again.RespondedAt.IsZero())

	again, err = f.service.Reject(ctx, e.ID, "twice")
	require.NoError(t, err)
	assert.Equal(t, Rejected{At: t0, Reason: "filed by mistake"}, again.State)
}

func TestService_CheckIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.messenger.On("Send", mock.Anything, mock.Anything).Return(nil)

	hb := f.armHeartbeat(t, 14)

	f.at(10 * day)
	hb, err := f.service.CheckIn(ctx, hb.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusArmed, hb.Status())
	assert.Equal(t, t0.Add(24*day), hb.CheckInDeadline())

	// once escalating, a check-in is a response
	f.at(24 * day)
	hb, err = f.machine.Activate(ctx, hb)
	require.NoError(t, err)
	hb, err = f.service.CheckIn(ctx, hb.ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(24*day), hb.RespondedAt)
}

func TestService_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Get(ctx, "7d1f1f4e-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, interfaces.ErrEntityNotFound)

	_, err = f.service.Events(ctx, "../entities")
	assert.ErrorIs(t, err, interfaces.ErrEntityNotFound)

	_, err = f.service.Respond(ctx, "missing")
	assert.ErrorIs(t, err, interfaces.ErrEntityNotFound)
}

type mockContactChecker struct {
	mock.Mock
}

func (m *mockContactChecker) CheckEmail(ctx context.Context, address string) error {
	return m.Called(ctx, address).Error(0)
}

func TestService_ContactChecker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	checker := &mockContactChecker{}
	checker.On("CheckEmail", mock.Anything, "owner@example.com").Return(nil).Once()
	checker.On("CheckEmail", mock.Anything, "owner@gone.example").Return(errors.New("no mail exchanger")).Once()
	f.service.WithContactChecker(checker)

	_ = f.fileClaim(t, testContacts)

	gone := Contacts{Email: "owner@gone.example", Phone: testContacts.Phone}
	_, err := f.service.RegisterOwner(ctx, contentFor(gone), OwnerRequest{OwnerRef: "owner-2", Contacts: gone})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	checker.AssertExpectations(t)
}
