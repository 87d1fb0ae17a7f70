package escalation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/ruteri/heirloom/interfaces"
	"github.com/ruteri/heirloom/metrics"
)

// Machine applies escalation decisions: it dispatches messages, persists the
// resulting state and records events. It holds no per-entity state.
type Machine struct {
	policy    Policy
	repo      Repository
	messenger interfaces.Messenger
	clock     clock.Clock
	log       *slog.Logger
	metrics   *metrics.Recorder
}

func NewMachine(policy Policy, repo Repository, messenger interfaces.Messenger, clk clock.Clock, log *slog.Logger, rec *metrics.Recorder) (*Machine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Machine{
		policy:    policy,
		repo:      repo,
		messenger: messenger,
		clock:     clk,
		log:       log,
		metrics:   rec,
	}, nil
}

func (m *Machine) Policy() Policy {
	return m.policy
}

// maxTickAttempts bounds how often Tick re-evaluates an entity that keeps
// changing underneath it.
const maxTickAttempts = 3

// Tick evaluates the stored entity with e's ID at the current time and applies
// the decision. It returns the entity as persisted. A failed dispatch is
// returned as an error wrapping ErrMessagingFailure; any stage advance decided
// before it is still saved. Terminal entities are returned unchanged.
//
// If the entity is changed by someone else while a message is being sent, the
// save is refused and the entity is evaluated again from the store. An owner
// response or rejection recorded meanwhile therefore wins. At most one message
// is sent per entity and call.
func (m *Machine) Tick(ctx context.Context, e *Entity) (*Entity, error) {
	now := m.clock.Now()

	var sent *Dispatch
	for attempt := 1; ; attempt++ {
		current, err := m.repo.Load(ctx, e.ID)
		if err != nil {
			return e, err
		}

		updated, dispatched, err := m.tick(ctx, current, now, sent)
		if dispatched != nil {
			sent = dispatched
		}
		if !errors.Is(err, interfaces.ErrConcurrentUpdate) || attempt == maxTickAttempts {
			return updated, err
		}
		m.log.Info("Entity changed during evaluation, evaluating again",
			slog.String("entity_id", e.ID),
			slog.Int("attempt", attempt))
	}
}

// tick applies one evaluation of e. sent is a dispatch already delivered
// earlier in the same Tick; it is recorded instead of being sent again. The
// returned dispatch is the one delivered, if any.
func (m *Machine) tick(ctx context.Context, e *Entity, now time.Time, sent *Dispatch) (*Entity, *Dispatch, error) {
	decision := Evaluate(m.policy, e, now)

	if decision.Conflict {
		m.log.Debug("Entity already terminal", slog.String("entity_id", e.ID), slog.String("status", string(e.Status())))
		return e, nil, nil
	}

	d := decision.Dispatch
	if d != nil && sent != nil && *d != *sent {
		// one message per call; the next run sends this one
		d = nil
	}
	if len(decision.Transitions) == 0 && d == nil {
		return e, nil, nil
	}

	updated := e.clone()
	updated.State = decision.State

	var events []Event
	for _, t := range decision.Transitions {
		events = append(events, m.transitionEvent(e, t, now))
	}

	var dispatched *Dispatch
	var dispatchErr error
	if d != nil {
		msg := interfaces.Message{
			Channel:     d.Channel,
			Recipient:   e.Contacts.For(d.Channel),
			EntityID:    e.ID,
			Kind:        e.Kind,
			Stage:       d.Stage,
			Attempt:     d.Attempt,
			MaxAttempts: d.MaxAttempts,
		}

		detail := map[string]any{
			"stage":   d.Stage,
			"channel": string(d.Channel),
			"attempt": d.Attempt,
		}

		var err error
		if sent == nil {
			err = m.messenger.Send(ctx, msg)
		}
		if err != nil {
			if !errors.Is(err, interfaces.ErrMessagingFailure) {
				err = fmt.Errorf("%w: %w", interfaces.ErrMessagingFailure, err)
			}
			dispatchErr = err
			detail["error"] = err.Error()
			events = append(events, newEvent(e.ID, EventDispatchFailed, now, detail))
			m.metrics.DispatchFailed(string(d.Channel))
			m.log.Warn("Failed to dispatch verification message",
				slog.String("entity_id", e.ID),
				slog.Int("stage", d.Stage),
				slog.String("channel", string(d.Channel)),
				"err", err)
		} else {
			dispatched = d
			updated.State = applyDispatch(updated.State, now)
			events = append(events, newEvent(e.ID, EventMessageSent, now, detail))
			if sent == nil {
				m.metrics.MessageSent(string(d.Channel), d.Stage)
				m.log.Info("Dispatched verification message",
					slog.String("entity_id", e.ID),
					slog.Int("stage", d.Stage),
					slog.String("channel", string(d.Channel)),
					slog.Int("attempt", d.Attempt))
			}
		}
	}

	if len(decision.Transitions) == 0 && dispatchErr != nil {
		// nothing changed; keep the stored record as is
		if err := m.repo.AppendEvents(ctx, events...); err != nil {
			m.log.Warn("Failed to record events", slog.String("entity_id", e.ID), "err", err)
		}
		return e, nil, dispatchErr
	}

	updated.UpdatedAt = now
	if err := m.repo.Save(ctx, updated); err != nil {
		return e, dispatched, errors.Join(err, dispatchErr)
	}
	if err := m.repo.AppendEvents(ctx, events...); err != nil {
		m.log.Warn("Failed to record events", slog.String("entity_id", e.ID), "err", err)
	}

	for _, t := range decision.Transitions {
		m.metrics.Transition(string(t.From.Status()), string(t.To.Status()))
	}

	if _, confirmed := updated.State.(OwnerConfirmedAlive); confirmed && updated.Kind == interfaces.KindHeartbeat {
		if _, err := m.rearm(ctx, updated, now); err != nil {
			m.log.Error("Failed to re-arm heartbeat", slog.String("entity_id", updated.ID), "err", err)
		}
	}

	return updated, dispatched, dispatchErr
}

func (m *Machine) transitionEvent(e *Entity, t Transition, now time.Time) Event {
	detail := map[string]any{
		"from": string(t.From.Status()),
		"to":   string(t.To.Status()),
	}

	typ := EventStageAdvanced
	switch to := t.To.(type) {
	case ReleaseAuthorized:
		typ = EventReleaseAuthorized
		m.log.Info("Release authorized", slog.String("entity_id", e.ID))
	case OwnerConfirmedAlive:
		typ = EventOwnerConfirmedAlive
		detail["responded_at"] = e.RespondedAt
		m.log.Info("Owner confirmed alive", slog.String("entity_id", e.ID))
	case Active:
		detail["stage"] = to.Stage
		m.log.Info("Escalation advanced",
			slog.String("entity_id", e.ID),
			slog.String("from", string(t.From.Status())),
			slog.String("to", string(to.Status())))
	}
	return newEvent(e.ID, typ, now, detail)
}

// Arm persists a new entity in the armed state.
func (m *Machine) Arm(ctx context.Context, e *Entity) (*Entity, error) {
	now := m.clock.Now()

	created := e.clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	created.State = Armed{}
	created.CreatedAt = now
	created.UpdatedAt = now
	if created.Kind == interfaces.KindHeartbeat && created.LastCheckIn.IsZero() {
		created.LastCheckIn = now
	}

	if err := m.repo.Save(ctx, created); err != nil {
		return nil, err
	}

	detail := map[string]any{"kind": string(created.Kind)}
	if created.PreviousID != "" {
		detail["previous_id"] = created.PreviousID
	}
	if err := m.repo.AppendEvents(ctx, newEvent(created.ID, EventArmed, now, detail)); err != nil {
		m.log.Warn("Failed to record events", slog.String("entity_id", created.ID), "err", err)
	}
	return created, nil
}

// Activate moves an armed entity into the first verification stage. Active
// entities are returned unchanged; terminal ones yield ErrStateConflict.
func (m *Machine) Activate(ctx context.Context, e *Entity) (*Entity, error) {
	switch e.State.(type) {
	case Armed, nil:
	case Active:
		return e, nil
	default:
		return e, interfaces.ErrStateConflict
	}

	now := m.clock.Now()
	updated := e.clone()
	updated.State = Active{Stage: 1}
	updated.UpdatedAt = now

	if err := m.repo.Save(ctx, updated); err != nil {
		return e, err
	}
	if err := m.repo.AppendEvents(ctx, newEvent(e.ID, EventActivated, now, map[string]any{"kind": string(e.Kind)})); err != nil {
		m.log.Warn("Failed to record events", slog.String("entity_id", e.ID), "err", err)
	}
	m.metrics.Transition(string(StatusArmed), string(updated.Status()))

	m.log.Info("Escalation activated", slog.String("entity_id", e.ID), slog.String("kind", string(e.Kind)))
	return updated, nil
}

// CheckIn renews the deadline of an armed heartbeat.
func (m *Machine) CheckIn(ctx context.Context, e *Entity) (*Entity, error) {
	if e.Kind != interfaces.KindHeartbeat || e.Status() != StatusArmed {
		return e, interfaces.ErrStateConflict
	}

	now := m.clock.Now()
	updated := e.clone()
	updated.LastCheckIn = now
	updated.UpdatedAt = now

	if err := m.repo.Save(ctx, updated); err != nil {
		return e, err
	}
	detail := map[string]any{"next_deadline": updated.CheckInDeadline()}
	if err := m.repo.AppendEvents(ctx, newEvent(e.ID, EventCheckIn, now, detail)); err != nil {
		m.log.Warn("Failed to record events", slog.String("entity_id", e.ID), "err", err)
	}
	return updated, nil
}

// RecordResponse notes that the owner responded. The next Tick confirms the
// owner alive. Only active entities accept a response.
func (m *Machine) RecordResponse(ctx context.Context, e *Entity, source string) (*Entity, error) {
	if _, ok := e.State.(Active); !ok {
		return e, interfaces.ErrStateConflict
	}
	if !e.RespondedAt.IsZero() {
		return e, nil
	}

	now := m.clock.Now()
	updated := e.clone()
	updated.RespondedAt = now
	updated.UpdatedAt = now

	if err := m.repo.Save(ctx, updated); err != nil {
		return e, err
	}
	if err := m.repo.AppendEvents(ctx, newEvent(e.ID, EventResponseRecorded, now, map[string]any{"source": source})); err != nil {
		m.log.Warn("Failed to record events", slog.String("entity_id", e.ID), "err", err)
	}
	return updated, nil
}

// Reject terminates a non-terminal entity without release.
func (m *Machine) Reject(ctx context.Context, e *Entity, reason string) (*Entity, error) {
	if e.Terminal() {
		return e, interfaces.ErrStateConflict
	}

	now := m.clock.Now()
	updated := e.clone()
	updated.State = Rejected{At: now, Reason: reason}
	updated.UpdatedAt = now

	if err := m.repo.Save(ctx, updated); err != nil {
		return e, err
	}
	detail := map[string]any{"from": string(e.Status()), "reason": reason}
	if err := m.repo.AppendEvents(ctx, newEvent(e.ID, EventRejected, now, detail)); err != nil {
		m.log.Warn("Failed to record events", slog.String("entity_id", e.ID), "err", err)
	}
	m.metrics.Transition(string(e.Status()), string(StatusRejected))
	return updated, nil
}

// rearm starts a fresh heartbeat for an owner that confirmed being alive.
func (m *Machine) rearm(ctx context.Context, confirmed *Entity, now time.Time) (*Entity, error) {
	next := &Entity{
		Kind:            interfaces.KindHeartbeat,
		OwnerRef:        confirmed.OwnerRef,
		BeneficiaryRef:  confirmed.BeneficiaryRef,
		Contacts:        confirmed.Contacts,
		OwnerWallet:     confirmed.OwnerWallet,
		ContentID:       confirmed.ContentID,
		CheckInInterval: confirmed.CheckInInterval,
		LastCheckIn:     now,
		PreviousID:      confirmed.ID,
	}

	created, err := m.Arm(ctx, next)
	if err != nil {
		return nil, err
	}

	if err := m.repo.AppendEvents(ctx, newEvent(confirmed.ID, EventRearmed, now, map[string]any{"next_id": created.ID})); err != nil {
		m.log.Warn("Failed to record events", slog.String("entity_id", confirmed.ID), "err", err)
	}
	m.log.Info("Heartbeat re-armed", slog.String("entity_id", confirmed.ID), slog.String("next_id", created.ID))
	return created, nil
}
