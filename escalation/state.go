package escalation

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Status is the coarse, persisted outcome of an entity.
type Status string

const (
	StatusArmed               Status = "armed"
	StatusReleaseAuthorized   Status = "release_authorized"
	StatusOwnerConfirmedAlive Status = "owner_confirmed_alive"
	StatusRejected            Status = "rejected"
)

// ActiveStatus returns the status of a 1-based verification stage, e.g. "stage1_active".
func ActiveStatus(stage int) Status {
	return Status(fmt.Sprintf("stage%d_active", stage))
}

// Stage returns the stage number for an active status.
func (s Status) Stage() (int, bool) {
	raw, ok := strings.CutPrefix(string(s), "stage")
	if !ok {
		return 0, false
	}
	raw, ok = strings.CutSuffix(raw, "_active")
	if !ok {
		return 0, false
	}
	stage, err := strconv.Atoi(raw)
	if err != nil || stage < 1 {
		return 0, false
	}
	return stage, true
}

func (s Status) Terminal() bool {
	switch s {
	case StatusReleaseAuthorized, StatusOwnerConfirmedAlive, StatusRejected:
		return true
	}
	return false
}

func (s Status) Valid() bool {
	if s == StatusArmed || s.Terminal() {
		return true
	}
	_, ok := s.Stage()
	return ok
}

// State is the current state of an entity. It is one of Armed, Active,
// ReleaseAuthorized, OwnerConfirmedAlive or Rejected, each carrying only the
// fields valid in that state.
type State interface {
	Status() Status
	Terminal() bool
	state()
}

// Armed entities are configured but not yet escalating.
type Armed struct{}

// Active is a verification stage in progress. A zero LastSentAt means no
// message was sent in this stage yet.
type Active struct {
	Stage      int
	Attempts   int
	LastSentAt time.Time
}

type ReleaseAuthorized struct {
	At time.Time
}

type OwnerConfirmedAlive struct {
	At time.Time
}

type Rejected struct {
	At     time.Time
	Reason string
}

func (Armed) Status() Status               { return StatusArmed }
func (a Active) Status() Status            { return ActiveStatus(a.Stage) }
func (ReleaseAuthorized) Status() Status   { return StatusReleaseAuthorized }
func (OwnerConfirmedAlive) Status() Status { return StatusOwnerConfirmedAlive }
func (Rejected) Status() Status            { return StatusRejected }

func (Armed) Terminal() bool               { return false }
func (Active) Terminal() bool              { return false }
func (ReleaseAuthorized) Terminal() bool   { return true }
func (OwnerConfirmedAlive) Terminal() bool { return true }
func (Rejected) Terminal() bool            { return true }

func (Armed) state()               {}
func (Active) state()              {}
func (ReleaseAuthorized) state()   {}
func (OwnerConfirmedAlive) state() {}
func (Rejected) state()            {}

// NeverSent reports whether no message was dispatched in the current stage.
func (a Active) NeverSent() bool {
	return a.LastSentAt.IsZero()
}

// stateRecord is the persisted form of a State.
type stateRecord struct {
	Status     Status     `json:"status"`
	Stage      int        `json:"stage,omitempty"`
	Attempts   int        `json:"attempts,omitempty"`
	LastSentAt *time.Time `json:"last_sent_at,omitempty"`
	At         *time.Time `json:"at,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

func encodeState(s State) stateRecord {
	switch st := s.(type) {
	case Active:
		rec := stateRecord{Status: st.Status(), Stage: st.Stage, Attempts: st.Attempts}
		if !st.LastSentAt.IsZero() {
			rec.LastSentAt = timePtr(st.LastSentAt)
		}
		return rec
	case ReleaseAuthorized:
		return stateRecord{Status: StatusReleaseAuthorized, At: timePtr(st.At)}
	case OwnerConfirmedAlive:
		return stateRecord{Status: StatusOwnerConfirmedAlive, At: timePtr(st.At)}
	case Rejected:
		return stateRecord{Status: StatusRejected, At: timePtr(st.At), Reason: st.Reason}
	default:
		return stateRecord{Status: StatusArmed}
	}
}

func decodeState(rec stateRecord) (State, error) {
	switch rec.Status {
	case StatusArmed:
		return Armed{}, nil
	case StatusReleaseAuthorized:
		if rec.At == nil {
			return nil, fmt.Errorf("state %s without timestamp", rec.Status)
		}
		return ReleaseAuthorized{At: *rec.At}, nil
	case StatusOwnerConfirmedAlive:
		if rec.At == nil {
			return nil, fmt.Errorf("state %s without timestamp", rec.Status)
		}
		return OwnerConfirmedAlive{At: *rec.At}, nil
	case StatusRejected:
		if rec.At == nil {
			return nil, fmt.Errorf("state %s without timestamp", rec.Status)
		}
		return Rejected{At: *rec.At, Reason: rec.Reason}, nil
	}

	stage, ok := rec.Status.Stage()
	if !ok {
		return nil, fmt.Errorf("unknown status %q", rec.Status)
	}
	if rec.Stage != 0 && rec.Stage != stage {
		return nil, fmt.Errorf("status %s disagrees with stage %d", rec.Status, rec.Stage)
	}
	if rec.Attempts < 0 {
		return nil, fmt.Errorf("negative attempt count %d", rec.Attempts)
	}

	active := Active{Stage: stage, Attempts: rec.Attempts}
	if rec.LastSentAt != nil {
		active.LastSentAt = *rec.LastSentAt
	}
	return active, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}
