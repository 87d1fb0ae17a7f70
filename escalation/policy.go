package escalation

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ruteri/heirloom/interfaces"
)

var validate = validator.New()

// StageConfig configures one verification stage.
type StageConfig struct {
	Channel      interfaces.Channel `json:"channel" validate:"required,oneof=email phone"`
	MaxAttempts  int                `json:"max_attempts" validate:"min=1,max=100"`
	IntervalDays int                `json:"interval_days" validate:"min=1,max=365"`
}

// Interval is the minimum time between two attempts of the stage.
func (s StageConfig) Interval() time.Duration {
	return time.Duration(s.IntervalDays) * 24 * time.Hour
}

// MaxStages is the most stages a Policy may have.
const MaxStages = 9

// Policy is the ordered list of verification stages. Exhausting the last
// stage authorizes release.
type Policy struct {
	Stages []StageConfig `json:"stages" validate:"required,min=1,max=9,dive"`
}

// DefaultPolicy is three emails three days apart, then two phone calls two
// days apart.
func DefaultPolicy() Policy {
	return Policy{
		Stages: []StageConfig{
			{Channel: interfaces.ChannelEmail, MaxAttempts: 3, IntervalDays: 3},
			{Channel: interfaces.ChannelPhone, MaxAttempts: 2, IntervalDays: 2},
		},
	}
}

func (p Policy) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid escalation policy: %w", err)
	}
	return nil
}

// Stage returns the configuration of a 1-based stage.
func (p Policy) Stage(stage int) (StageConfig, bool) {
	if stage < 1 || stage > len(p.Stages) {
		return StageConfig{}, false
	}
	return p.Stages[stage-1], true
}

// Channels returns the distinct channels the policy uses, in stage order.
func (p Policy) Channels() []interfaces.Channel {
	seen := make(map[interfaces.Channel]bool)
	var out []interfaces.Channel
	for _, s := range p.Stages {
		if !seen[s.Channel] {
			seen[s.Channel] = true
			out = append(out, s.Channel)
		}
	}
	return out
}

// Window is the longest time an entity can spend in active stages before
// release is authorized, assuming every dispatch succeeds on time.
func (p Policy) Window() time.Duration {
	var total time.Duration
	for _, s := range p.Stages {
		total += time.Duration(s.MaxAttempts) * s.Interval()
	}
	return total
}
