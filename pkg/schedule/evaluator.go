// Package schedule computes cron fire times and runs the centralized poller
// that turns due schedules into trigger events.
package schedule

import (
	"time"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/robfig/cron/v3"
)

// Evaluator resolves standard 5-field cron expressions to concrete fire
// times. All computation is done in UTC.
type Evaluator struct {
	parser cron.Parser
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// NextRunAt returns the first fire time strictly after the reference time.
// An invalid expression is a configuration error.
func (e *Evaluator) NextRunAt(cronExpression string, after time.Time) (time.Time, error) {
	parsed, err := e.parser.Parse(cronExpression)
	if err != nil {
		return time.Time{}, models.NewConfigurationError("cron", err.Error())
	}

	return parsed.Next(after.UTC()), nil
}

// Validate checks that the expression parses without computing anything.
func (e *Evaluator) Validate(cronExpression string) error {
	if _, err := e.parser.Parse(cronExpression); err != nil {
		return models.NewConfigurationError("cron", err.Error())
	}

	return nil
}

// IsDue reports whether a schedule with the given next fire time should fire
// at now. A zero nextDueAt never fires.
func (e *Evaluator) IsDue(nextDueAt, now time.Time) bool {
	return !nextDueAt.IsZero() && !nextDueAt.After(now)
}
