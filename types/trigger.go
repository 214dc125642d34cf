package types

import (
	"fmt"
	"strings"
	"time"
)

// TriggerType names the rule that decides when a job fires next.
type TriggerType string

const (
	TriggerCron     TriggerType = "CRON"
	TriggerInterval TriggerType = "INTERVAL"
	TriggerOneTime  TriggerType = "ONE_TIME"
)

func (t TriggerType) String() string {
	return string(t)
}

// Trigger is a closed union of CronTrigger, IntervalTrigger and OneTimeTrigger.
type Trigger interface {
	Type() TriggerType
	String() string
	isTrigger()
}

// CronTrigger fires on a standard five field cron expression.
type CronTrigger struct {
	Expression string
}

// IntervalTrigger fires Minutes after the previous run completed.
type IntervalTrigger struct {
	Minutes int
}

// OneTimeTrigger fires once at At.
type OneTimeTrigger struct {
	At time.Time
}

func (CronTrigger) Type() TriggerType     { return TriggerCron }
func (IntervalTrigger) Type() TriggerType { return TriggerInterval }
func (OneTimeTrigger) Type() TriggerType  { return TriggerOneTime }

func (t CronTrigger) String() string     { return "cron(" + t.Expression + ")" }
func (t IntervalTrigger) String() string { return fmt.Sprintf("every(%dm)", t.Minutes) }
func (t OneTimeTrigger) String() string  { return "at(" + t.At.UTC().Format(time.RFC3339) + ")" }

func (CronTrigger) isTrigger()     {}
func (IntervalTrigger) isTrigger() {}
func (OneTimeTrigger) isTrigger()  {}

// Interval returns the trigger period as a duration.
func (t IntervalTrigger) Interval() time.Duration {
	return time.Duration(t.Minutes) * time.Minute
}

// NewTrigger builds a Trigger from its flat, persisted representation.
// Only the fields required by triggerType are read; a missing one is an error.
func NewTrigger(triggerType TriggerType, cronExpression string, intervalMinutes int, scheduledAt *time.Time) (Trigger, error) {
	switch TriggerType(strings.ToUpper(string(triggerType))) {
	case TriggerCron:
		expr := strings.TrimSpace(cronExpression)
		if expr == "" {
			return nil, fmt.Errorf("cronExpression is required for %s triggers", TriggerCron)
		}
		return CronTrigger{Expression: expr}, nil
	case TriggerInterval:
		if intervalMinutes <= 0 {
			return nil, fmt.Errorf("intervalMinutes must be > 0 for %s triggers, got %d", TriggerInterval, intervalMinutes)
		}
		return IntervalTrigger{Minutes: intervalMinutes}, nil
	case TriggerOneTime:
		if scheduledAt == nil || scheduledAt.IsZero() {
			return nil, fmt.Errorf("scheduledAt is required for %s triggers", TriggerOneTime)
		}
		return OneTimeTrigger{At: *scheduledAt}, nil
	case "":
		return nil, fmt.Errorf("triggerType is required")
	default:
		return nil, fmt.Errorf("unknown triggerType %q", triggerType)
	}
}

// TriggerColumns is the flat form of a Trigger used by stores.
type TriggerColumns struct {
	Type            TriggerType
	CronExpression  *string
	IntervalMinutes *int
	ScheduledAt     *time.Time
}

// TriggerFields splits t into persisted columns. Unused columns stay nil.
func TriggerFields(t Trigger) TriggerColumns {
	switch v := t.(type) {
	case CronTrigger:
		expr := v.Expression
		return TriggerColumns{Type: TriggerCron, CronExpression: &expr}
	case IntervalTrigger:
		m := v.Minutes
		return TriggerColumns{Type: TriggerInterval, IntervalMinutes: &m}
	case OneTimeTrigger:
		at := v.At
		return TriggerColumns{Type: TriggerOneTime, ScheduledAt: &at}
	default:
		return TriggerColumns{}
	}
}

// ToTrigger is the inverse of TriggerFields.
func (c TriggerColumns) ToTrigger() (Trigger, error) {
	var expr string
	if c.CronExpression != nil {
		expr = *c.CronExpression
	}
	var minutes int
	if c.IntervalMinutes != nil {
		minutes = *c.IntervalMinutes
	}
	return NewTrigger(c.Type, expr, minutes, c.ScheduledAt)
}
