package escalation

import (
	"encoding/json"
	"testing"

	"github.com/ruteri/heirloom/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_Stage(t *testing.T) {
	tests := []struct {
		status Status
		stage  int
		ok     bool
	}{
		{ActiveStatus(1), 1, true},
		{"stage12_active", 12, true},
		{"stage0_active", 0, false},
		{"stage-1_active", 0, false},
		{"stagex_active", 0, false},
		{"stage1", 0, false},
		{StatusArmed, 0, false},
		{StatusRejected, 0, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			stage, ok := tt.status.Stage()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.stage, stage)
			assert.Equal(t, tt.ok || tt.status == StatusArmed || tt.status.Terminal(), tt.status.Valid())
		})
	}
}

func TestEntity_JSONRoundTrip(t *testing.T) {
	contentID, err := interfaces.NewContentIDFromHex(testContentID)
	require.NoError(t, err)
	wallet, err := interfaces.NewWalletAddressFromHex("0x8ba1f109551bd432803012645ac136ddd64dba72")
	require.NoError(t, err)

	states := []State{
		Armed{},
		Active{Stage: 1},
		Active{Stage: 2, Attempts: 1, LastSentAt: t0.Add(9 * day)},
		ReleaseAuthorized{At: t0.Add(13 * day)},
		OwnerConfirmedAlive{At: t0.Add(day)},
		Rejected{At: t0, Reason: "duplicate"},
	}

	for _, state := range states {
		t.Run(string(state.Status()), func(t *testing.T) {
			e := Entity{
				ID:              "0190c6d2-7b3e-7000-8000-000000000001",
				Kind:            interfaces.KindHeartbeat,
				OwnerRef:        "owner-1",
				Contacts:        testContacts,
				OwnerWallet:     wallet,
				ContentID:       contentID,
				State:           state,
				CreatedAt:       t0,
				UpdatedAt:       t0.Add(day),
				LastCheckIn:     t0,
				CheckInInterval: 30 * day,
			}

			data, err := json.Marshal(e)
			require.NoError(t, err)

			var decoded Entity
			require.NoError(t, json.Unmarshal(data, &decoded))
			assert.Equal(t, e.State, decoded.State)
			assert.Equal(t, e.OwnerWallet, decoded.OwnerWallet)
			assert.Equal(t, e.ContentID, decoded.ContentID)
			assert.Equal(t, e.CheckInDeadline(), decoded.CheckInDeadline())
			assert.True(t, decoded.RespondedAt.IsZero())
		})
	}
}

func TestEntity_RejectsCorruptRecords(t *testing.T) {
	base := func(state string) string {
		return `{"id":"e1","kind":"claim","content_id":"` + testContentID + `","state":` + state + `}`
	}

	tests := []struct {
		name string
		data string
	}{
		{"unknown status", base(`{"status":"paused"}`)},
		{"terminal without time", base(`{"status":"release_authorized"}`)},
		{"stage mismatch", base(`{"status":"stage1_active","stage":2}`)},
		{"negative attempts", base(`{"status":"stage1_active","attempts":-1}`)},
		{"unknown kind", `{"id":"e1","kind":"will","content_id":"` + testContentID + `","state":{"status":"armed"}}`},
		{"missing id", `{"kind":"claim","content_id":"` + testContentID + `","state":{"status":"armed"}}`},
		{"bad content id", `{"id":"e1","kind":"claim","content_id":"zz","state":{"status":"armed"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var e Entity
			assert.Error(t, json.Unmarshal([]byte(tt.data), &e))
		})
	}

	var e Entity
	require.NoError(t, json.Unmarshal([]byte(base(`{"status":"stage2_active","attempts":1}`)), &e))
	assert.Equal(t, Active{Stage: 2, Attempts: 1}, e.State)
}

func TestPolicy(t *testing.T) {
	p := DefaultPolicy()
	require.NoError(t, p.Validate())
	assert.Equal(t, 13*day, p.Window())
	assert.Equal(t, []interfaces.Channel{interfaces.ChannelEmail, interfaces.ChannelPhone}, p.Channels())

	stage, ok := p.Stage(2)
	require.True(t, ok)
	assert.Equal(t, interfaces.ChannelPhone, stage.Channel)
	assert.Equal(t, 2*day, stage.Interval())

	_, ok = p.Stage(0)
	assert.False(t, ok)
	_, ok = p.Stage(3)
	assert.False(t, ok)

	invalid := []Policy{
		{},
		{Stages: []StageConfig{{Channel: "pigeon", MaxAttempts: 1, IntervalDays: 1}}},
		{Stages: []StageConfig{{Channel: interfaces.ChannelEmail, MaxAttempts: 0, IntervalDays: 1}}},
		{Stages: []StageConfig{{Channel: interfaces.ChannelEmail, MaxAttempts: 1, IntervalDays: 0}}},
	}
	for _, p := range invalid {
		assert.Error(t, p.Validate())
	}
}
