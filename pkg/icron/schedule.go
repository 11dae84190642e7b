package icron

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Parser accepts an optional seconds field and descriptors such as "@every 10s".
var Parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour |
	cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New returns a cron runner that understands the same expressions as Parser.
func New() *cron.Cron {
	return cron.New(cron.WithParser(Parser))
}

type TriggerInfo struct {
	Expression    string
	Next          time.Time
	TimeUntilNext time.Duration
}

// GetTriggerInfo reports when expr fires next after refTime.
func GetTriggerInfo(expr string, refTime time.Time) (*TriggerInfo, error) {
	schedule, err := Parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression: %w", err)
	}
	next := schedule.Next(refTime)
	return &TriggerInfo{
		Expression:    expr,
		Next:          next,
		TimeUntilNext: next.Sub(refTime),
	}, nil
}

// Every registers fn on c under expr and returns the entry id.
func Every(c *cron.Cron, expr string, fn func()) (cron.EntryID, error) {
	if _, err := Parser.Parse(expr); err != nil {
		return 0, fmt.Errorf("invalid cron expression: %w", err)
	}
	return c.AddFunc(expr, fn)
}
