package escalation

import (
	"testing"
	"time"

	"github.com/ruteri/heirloom/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeEntity(stage, attempts int, lastSent time.Time) *Entity {
	return &Entity{
		ID:    "e1",
		Kind:  interfaces.KindClaim,
		State: Active{Stage: stage, Attempts: attempts, LastSentAt: lastSent},
	}
}

func TestEvaluate_FirstAttemptIsDue(t *testing.T) {
	d := Evaluate(DefaultPolicy(), activeEntity(1, 0, time.Time{}), t0)

	assert.Empty(t, d.Transitions)
	require.NotNil(t, d.Dispatch)
	assert.Equal(t, Dispatch{Stage: 1, Channel: interfaces.ChannelEmail, Attempt: 1, MaxAttempts: 3}, *d.Dispatch)
	assert.Equal(t, Active{Stage: 1}, d.State)
}

func TestEvaluate_IntervalGate(t *testing.T) {
	e := activeEntity(1, 1, t0)

	assert.True(t, Evaluate(DefaultPolicy(), e, t0).NoOp())
	assert.True(t, Evaluate(DefaultPolicy(), e, t0.Add(day)).NoOp())
	assert.True(t, Evaluate(DefaultPolicy(), e, t0.Add(3*day-time.Second)).NoOp())

	d := Evaluate(DefaultPolicy(), e, t0.Add(3*day))
	require.NotNil(t, d.Dispatch)
	assert.Equal(t, 2, d.Dispatch.Attempt)
}

func TestEvaluate_ExhaustedStageAdvancesWithFreshCounters(t *testing.T) {
	e := activeEntity(1, 3, t0.Add(6*day))

	// the last attempt gets its full interval before the stage counts as exhausted
	assert.True(t, Evaluate(DefaultPolicy(), e, t0.Add(8*day)).NoOp())

	d := Evaluate(DefaultPolicy(), e, t0.Add(9*day))
	require.Len(t, d.Transitions, 1)
	assert.Equal(t, Active{Stage: 1, Attempts: 3, LastSentAt: t0.Add(6 * day)}, d.Transitions[0].From)
	assert.Equal(t, Active{Stage: 2, Attempts: 0}, d.Transitions[0].To)
	assert.Equal(t, ActiveStatus(2), d.State.Status())

	require.NotNil(t, d.Dispatch)
	assert.Equal(t, Dispatch{Stage: 2, Channel: interfaces.ChannelPhone, Attempt: 1, MaxAttempts: 2}, *d.Dispatch)
}

func TestEvaluate_FinalStageAuthorizesRelease(t *testing.T) {
	now := t0.Add(13 * day)
	d := Evaluate(DefaultPolicy(), activeEntity(2, 2, t0.Add(11*day)), now)

	require.Len(t, d.Transitions, 1)
	assert.Equal(t, ReleaseAuthorized{At: now}, d.State)
	assert.Nil(t, d.Dispatch)
}

func TestEvaluate_StaleCountersAfterPolicyChange(t *testing.T) {
	policy := Policy{Stages: []StageConfig{
		{Channel: interfaces.ChannelEmail, MaxAttempts: 1, IntervalDays: 1},
		{Channel: interfaces.ChannelPhone, MaxAttempts: 1, IntervalDays: 1},
	}}

	// stage 1 counters from a policy that allowed more attempts
	d := Evaluate(policy, activeEntity(1, 4, t0), t0.Add(2*day))

	require.Len(t, d.Transitions, 1)
	assert.Equal(t, Active{Stage: 2}, d.State)
	require.NotNil(t, d.Dispatch)
}

func TestEvaluate_StageBeyondShortenedPolicyRestartsLastStage(t *testing.T) {
	policy := Policy{Stages: []StageConfig{
		{Channel: interfaces.ChannelEmail, MaxAttempts: 1, IntervalDays: 1},
		{Channel: interfaces.ChannelPhone, MaxAttempts: 2, IntervalDays: 1},
	}}

	// stage 5 of a longer policy, with its counters used up
	d := Evaluate(policy, activeEntity(5, 3, t0.Add(-10*day)), t0)

	require.Len(t, d.Transitions, 1)
	assert.Equal(t, Active{Stage: 5, Attempts: 3, LastSentAt: t0.Add(-10 * day)}, d.Transitions[0].From)
	assert.Equal(t, Active{Stage: 2}, d.Transitions[0].To)
	assert.Equal(t, Active{Stage: 2}, d.State)
	require.NotNil(t, d.Dispatch)
	assert.Equal(t, Dispatch{Stage: 2, Channel: interfaces.ChannelPhone, Attempt: 1, MaxAttempts: 2}, *d.Dispatch)

	// the restarted stage runs its full course before release
	d = Evaluate(policy, activeEntity(2, 1, t0), t0.Add(day))
	require.NotNil(t, d.Dispatch)
	assert.Equal(t, 2, d.Dispatch.Attempt)
	assert.Equal(t, StatusReleaseAuthorized, Evaluate(policy, activeEntity(2, 2, t0), t0.Add(day)).State.Status())
}

func TestEvaluate_ResponseOverridesCounters(t *testing.T) {
	for _, e := range []*Entity{
		activeEntity(1, 0, time.Time{}),
		activeEntity(1, 3, t0),
		activeEntity(2, 2, t0.Add(-30*day)),
	} {
		e.RespondedAt = t0.Add(-time.Minute)
		d := Evaluate(DefaultPolicy(), e, t0)

		assert.Equal(t, OwnerConfirmedAlive{At: t0}, d.State)
		assert.Nil(t, d.Dispatch)
		require.Len(t, d.Transitions, 1)
	}
}

func TestEvaluate_TerminalAndArmed(t *testing.T) {
	for _, state := range []State{
		ReleaseAuthorized{At: t0},
		OwnerConfirmedAlive{At: t0},
		Rejected{At: t0, Reason: "duplicate"},
	} {
		e := &Entity{ID: "e1", State: state, RespondedAt: t0}
		d := Evaluate(DefaultPolicy(), e, t0.Add(100*day))
		assert.True(t, d.Conflict)
		assert.True(t, d.NoOp())
		assert.Equal(t, state, d.State)
	}

	d := Evaluate(DefaultPolicy(), &Entity{ID: "e1", State: Armed{}}, t0)
	assert.False(t, d.Conflict)
	assert.True(t, d.NoOp())
}
