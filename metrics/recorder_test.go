package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder("github.com/ruteri/heirloom", reg)
	require.NoError(t, err)

	r.MessageSent("email", 1)
	r.MessageSent("email", 1)
	r.DispatchFailed("phone")
	r.Transition("stage1_active", "stage2_active")
	r.SchedulerRun("completed", 150*time.Millisecond)
	r.SchedulerRun("skipped", 0)
	r.EntityError()
	r.SetEntityCount("stage1_active", 4)
	r.EscrowOperation("release", nil)
	r.EscrowOperation("release", errors.New("denied"))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.messagesSent.WithLabelValues("email", "stage1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.dispatchFailures.WithLabelValues("phone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("stage1_active", "stage2_active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.schedulerRuns.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.entityErrors))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.activeEntities.WithLabelValues("stage1_active")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.escrowOps.WithLabelValues("release", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.schedulerDuration))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.MessageSent("email", 1)
		r.DispatchFailed("email")
		r.Transition("armed", "stage1_active")
		r.SchedulerRun("completed", time.Second)
		r.EntityError()
		r.SetEntityCount("armed", 1)
		r.EscrowOperation("protect", nil)
	})
}

func TestMetricsServer_Handler(t *testing.T) {
	srv, err := New("heirloom", "127.0.0.1:0")
	require.NoError(t, err)

	srv.Recorder().MessageSent("phone", 2)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `heirloom_escalation_messages_sent_total{channel="phone",stage="stage2"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
