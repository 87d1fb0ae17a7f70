package escalation

import (
	"time"

	"github.com/ruteri/heirloom/interfaces"
)

// Transition is one state change decided by Evaluate.
type Transition struct {
	From State
	To   State
}

// Dispatch asks for one verification message.
type Dispatch struct {
	Stage       int
	Channel     interfaces.Channel
	Attempt     int
	MaxAttempts int
}

// Decision is what must happen to an entity at a given instant.
//
// State is the state after all transitions and before the dispatch. If the
// dispatch succeeds the caller increments its attempt counter and records
// the send time; if it fails State is kept as is.
type Decision struct {
	State       State
	Transitions []Transition
	Dispatch    *Dispatch

	// Conflict is set when the entity was already terminal.
	Conflict bool
}

// NoOp reports whether nothing needs to happen.
func (d Decision) NoOp() bool {
	return len(d.Transitions) == 0 && d.Dispatch == nil
}

// Evaluate decides the next step for e at now. It has no side effects.
//
//  1. Terminal entities are left alone.
//  2. A pending owner response confirms the owner alive, whatever the counters.
//  3. A stage whose attempts are used up, and whose last attempt has had its
//     full interval to be answered, advances to the next stage with fresh
//     counters; the last stage advances to release authorization. This
//     repeats within the same evaluation.
//  4. If the stage never sent a message, or its interval elapsed since the
//     last one, a message is due.
//
// An entity in a stage the policy no longer has is moved to the last stage
// with fresh counters.
//
// Armed entities are not escalating and evaluate to a no-op.
func Evaluate(policy Policy, e *Entity, now time.Time) Decision {
	if e.Terminal() {
		return Decision{State: e.State, Conflict: true}
	}

	active, ok := e.State.(Active)
	if !ok {
		return Decision{State: e.State}
	}

	if !e.RespondedAt.IsZero() {
		confirmed := OwnerConfirmedAlive{At: now}
		return Decision{
			State:       confirmed,
			Transitions: []Transition{{From: active, To: confirmed}},
		}
	}

	var transitions []Transition
	if last := len(policy.Stages); active.Stage > last {
		// The policy was shortened: restart the last stage rather than skip it.
		restarted := Active{Stage: last}
		transitions = append(transitions, Transition{From: active, To: restarted})
		active = restarted
	}

	for {
		cfg, _ := policy.Stage(active.Stage)
		if !stageExhausted(cfg, active, now) {
			break
		}

		if active.Stage == len(policy.Stages) {
			released := ReleaseAuthorized{At: now}
			transitions = append(transitions, Transition{From: active, To: released})
			return Decision{State: released, Transitions: transitions}
		}

		next := Active{Stage: active.Stage + 1}
		transitions = append(transitions, Transition{From: active, To: next})
		active = next
	}

	decision := Decision{State: active, Transitions: transitions}

	cfg, _ := policy.Stage(active.Stage)
	if active.NeverSent() || !now.Before(active.LastSentAt.Add(cfg.Interval())) {
		decision.Dispatch = &Dispatch{
			Stage:       active.Stage,
			Channel:     cfg.Channel,
			Attempt:     active.Attempts + 1,
			MaxAttempts: cfg.MaxAttempts,
		}
	}
	return decision
}

func stageExhausted(cfg StageConfig, active Active, now time.Time) bool {
	if active.Attempts < cfg.MaxAttempts {
		return false
	}
	if active.NeverSent() {
		return true
	}
	return !now.Before(active.LastSentAt.Add(cfg.Interval()))
}

// applyDispatch records a successful send on the decided state.
func applyDispatch(state State, now time.Time) State {
	active, ok := state.(Active)
	if !ok {
		return state
	}
	active.Attempts++
	active.LastSentAt = now
	return active
}
