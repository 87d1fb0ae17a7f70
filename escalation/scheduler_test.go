package escalation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ruteri/heirloom/interfaces"
	"github.com/ruteri/heirloom/metrics"
	"github.com/ruteri/heirloom/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(f *fixture, repo Repository) *Scheduler {
	return NewScheduler(f.machine, repo, f.clock, SchedulerConfig{EntityTimeout: time.Second}, discardLogger(), nil)
}

func toRecipient(recipient string) interface{} {
	return mock.MatchedBy(func(msg interfaces.Message) bool { return msg.Recipient == recipient })
}

func TestScheduler_ContinuesAfterEntityFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	broken := Contacts{Email: "bounces@example.com", Phone: "+14155550100"}
	f.messenger.On("Send", mock.Anything, toRecipient("bounces@example.com")).Return(interfaces.ErrMessagingFailure)
	f.messenger.On("Send", mock.Anything, toRecipient(testContacts.Email)).Return(nil)

	first := f.fileClaim(t, broken)
	second := f.fileClaim(t, testContacts)

	stats, err := newTestScheduler(f, f.repo).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, RunStats{Evaluated: 2, Dispatched: 1, Failed: 1}, stats)

	assert.Equal(t, Active{Stage: 1}, f.reload(t, first.ID).State)
	assert.Equal(t, Active{Stage: 1, Attempts: 1, LastSentAt: t0}, f.reload(t, second.ID).State)
}

func TestScheduler_RepeatedRunsDoNotDoubleSend(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.messenger.On("Send", mock.Anything, mock.Anything).Return(nil)

	e := f.fileClaim(t, testContacts)
	scheduler := newTestScheduler(f, f.repo)

	for i := 0; i < 3; i++ {
		_, err := scheduler.RunOnce(ctx)
		require.NoError(t, err)
	}
	f.messenger.AssertNumberOfCalls(t, "Send", 1)

	// a second process sharing the store sees the same state
	other := newTestScheduler(f, NewStoreRepository(f.backend, discardLogger()))
	_, err := other.RunOnce(ctx)
	require.NoError(t, err)
	f.messenger.AssertNumberOfCalls(t, "Send", 1)

	f.at(3 * day)
	stats, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dispatched)
	assert.Equal(t, 2, f.reload(t, e.ID).State.(Active).Attempts)
}

func TestScheduler_AdvancedEntityIsNotResentInSameRun(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.messenger.On("Send", mock.Anything, mock.Anything).Return(nil)

	e := f.fileClaim(t, testContacts)
	e.State = Active{Stage: 1, Attempts: 3, LastSentAt: t0}
	require.NoError(t, f.repo.Save(ctx, e))

	f.at(3 * day)
	stats, err := newTestScheduler(f, f.repo).RunOnce(ctx)
	require.NoError(t, err)

	// evaluated once in the stage 1 pass and once more in the stage 2 pass
	assert.Equal(t, 2, stats.Evaluated)
	assert.Equal(t, 1, stats.Dispatched)
	f.messenger.AssertNumberOfCalls(t, "Send", 1)
	assert.Equal(t, Active{Stage: 2, Attempts: 1, LastSentAt: t0.Add(3 * day)}, f.reload(t, e.ID).State)
}

func TestScheduler_ActivatesOverdueHeartbeats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.messenger.On("Send", mock.Anything, mock.Anything).Return(nil)

	hb := f.armHeartbeat(t, 7)

	scheduler := newTestScheduler(f, f.repo)

	f.at(6 * day)
	stats, err := scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Activated)
	assert.Equal(t, StatusArmed, f.reload(t, hb.ID).Status())

	f.at(7 * day)
	stats, err = scheduler.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Activated)
	assert.Equal(t, 1, stats.Dispatched)
	assert.Equal(t, Active{Stage: 1, Attempts: 1, LastSentAt: t0.Add(7 * day)}, f.reload(t, hb.ID).State)
}

func TestScheduler_StopsBetweenEntitiesOnCancel(t *testing.T) {
	f := newFixture(t)
	f.fileClaim(t, testContacts)
	f.fileClaim(t, testContacts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestScheduler(f, f.repo).RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	f.messenger.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)

	assert.ErrorIs(t, newTestScheduler(f, f.repo).Run(ctx), context.Canceled)
}

func TestScheduler_SkipsOverlappingRun(t *testing.T) {
	f := newFixture(t)
	scheduler := newTestScheduler(f, f.repo)

	scheduler.running.Store(true)
	stats, err := scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Skipped)

	scheduler.running.Store(false)
	stats, err = scheduler.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, stats.Skipped)
}

// flakyBackend fails List for one prefix.
type flakyBackend struct {
	*storage.MemoryBackend
	failPrefix string
}

func (b *flakyBackend) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix == b.failPrefix {
		return nil, errors.Join(interfaces.ErrStoreUnavailable, errors.New("read timeout"))
	}
	return b.MemoryBackend.List(ctx, prefix)
}

func TestScheduler_StoreOutageIsNotFatal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.messenger.On("Send", mock.Anything, mock.Anything).Return(nil)
	e := f.fileClaim(t, testContacts)

	flaky := &flakyBackend{MemoryBackend: f.backend, failPrefix: "index/armed/"}
	stats, err := newTestScheduler(f, NewStoreRepository(flaky, discardLogger())).RunOnce(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Dispatched)
	assert.Equal(t, 1, f.reload(t, e.ID).State.(Active).Attempts)
}

func TestScheduler_PicksUpStagesBeyondPolicy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.messenger.On("Send", mock.Anything, mock.Anything).Return(nil)

	// left in stage 4 by a policy with more stages
	e := f.fileClaim(t, testContacts)
	e.State = Active{Stage: 4, Attempts: 3, LastSentAt: t0.Add(-10 * day)}
	require.NoError(t, f.repo.Save(ctx, e))

	stats, err := newTestScheduler(f, f.repo).RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dispatched)

	assert.Equal(t, Active{Stage: 2, Attempts: 1, LastSentAt: t0}, f.reload(t, e.ID).State)
	f.messenger.AssertCalled(t, "Send", mock.Anything, sentTo(interfaces.ChannelPhone, 2, 1))
}

func TestScheduler_RunDurationFollowsClock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.fileClaim(t, testContacts)

	// delivering the message takes two seconds of scheduler time
	f.messenger.On("Send", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		f.clock.Add(2 * time.Second)
	}).Return(nil)

	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder("heirloom", reg)
	require.NoError(t, err)
	scheduler := NewScheduler(f.machine, f.repo, f.clock, SchedulerConfig{EntityTimeout: time.Minute}, discardLogger(), rec)

	_, err = scheduler.RunOnce(ctx)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	var found bool
	for _, family := range families {
		if family.GetName() != "heirloom_scheduler_run_duration_seconds" {
			continue
		}
		found = true
		h := family.GetMetric()[0].GetHistogram()
		assert.Equal(t, uint64(1), h.GetSampleCount())
		assert.Equal(t, 2.0, h.GetSampleSum())
	}
	assert.True(t, found)
}
