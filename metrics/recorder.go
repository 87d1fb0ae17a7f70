package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the application metrics. All methods are safe on a nil
// receiver so that components can run without metrics wired.
type Recorder struct {
	messagesSent      *prometheus.CounterVec
	dispatchFailures  *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	schedulerRuns     *prometheus.CounterVec
	schedulerDuration prometheus.Histogram
	entityErrors      prometheus.Counter
	activeEntities    *prometheus.GaugeVec
	escrowOps         *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	ns := sanitizeNamespace(namespace)

	r := &Recorder{
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "escalation_messages_sent_total",
			Help:      "Escalation messages successfully dispatched.",
		}, []string{"channel", "stage"}),
		dispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "escalation_dispatch_failures_total",
			Help:      "Escalation messages the messenger failed to dispatch.",
		}, []string{"channel"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "escalation_transitions_total",
			Help:      "Escalation state transitions.",
		}, []string{"from", "to"}),
		schedulerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "scheduler_runs_total",
			Help:      "Scheduler runs by outcome.",
		}, []string{"outcome"}),
		schedulerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "scheduler_run_duration_seconds",
			Help:      "Duration of scheduler runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		entityErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "scheduler_entity_errors_total",
			Help:      "Per-entity errors during scheduler runs.",
		}),
		activeEntities: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "escalation_entities",
			Help:      "Entities seen by the last scheduler run, by status.",
		}, []string{"status"}),
		escrowOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "escrow_operations_total",
			Help:      "Escrow operations by type and outcome.",
		}, []string{"operation", "outcome"}),
	}

	for _, c := range []prometheus.Collector{
		r.messagesSent, r.dispatchFailures, r.transitions, r.schedulerRuns,
		r.schedulerDuration, r.entityErrors, r.activeEntities, r.escrowOps,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Recorder) MessageSent(channel string, stage int) {
	if r == nil {
		return
	}
	r.messagesSent.WithLabelValues(channel, stageLabel(stage)).Inc()
}

func (r *Recorder) DispatchFailed(channel string) {
	if r == nil {
		return
	}
	r.dispatchFailures.WithLabelValues(channel).Inc()
}

func (r *Recorder) Transition(from, to string) {
	if r == nil {
		return
	}
	r.transitions.WithLabelValues(from, to).Inc()
}

// SchedulerRun records one run. outcome is "completed", "cancelled" or "skipped".
func (r *Recorder) SchedulerRun(outcome string, took time.Duration) {
	if r == nil {
		return
	}
	r.schedulerRuns.WithLabelValues(outcome).Inc()
	if outcome != "skipped" {
		r.schedulerDuration.Observe(took.Seconds())
	}
}

func (r *Recorder) EntityError() {
	if r == nil {
		return
	}
	r.entityErrors.Inc()
}

func (r *Recorder) SetEntityCount(status string, n int) {
	if r == nil {
		return
	}
	r.activeEntities.WithLabelValues(status).Set(float64(n))
}

func (r *Recorder) EscrowOperation(operation string, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.escrowOps.WithLabelValues(operation, outcome).Inc()
}

func stageLabel(stage int) string {
	return "stage" + strconv.Itoa(stage)
}

// sanitizeNamespace turns a package path into a metric namespace.
func sanitizeNamespace(ns string) string {
	if idx := strings.LastIndex(ns, "/"); idx >= 0 {
		ns = ns[idx+1:]
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, ns)
}
