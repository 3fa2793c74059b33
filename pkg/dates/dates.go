// Package dates parses natural-language date expressions into concrete
// ranges. The rest of the system depends only on this contract, not on the
// parsing engine.
package dates

import (
	"fmt"
	"regexp"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// BusinessHourStart is the default start hour applied to date-only input
// when scheduling. Policy choice, documented per deployment.
const BusinessHourStart = 10

// DateRange is a parsed date query.
type DateRange struct {
	Start   time.Time
	End     time.Time
	HasTime bool
}

var timeOfDay = regexp.MustCompile(`(?i)\b(\d{1,2}(:\d{2})?\s*(am|pm)|\d{1,2}:\d{2}|noon|midnight)\b`)

// Parser wraps the natural-language rule engine.
type Parser struct {
	w *when.Parser
}

// NewParser creates a parser with the English and common rule sets.
func NewParser() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w}
}

// ParseDateQuery extracts a date range from text in the given timezone.
// Returns nil when the text carries no date expression.
//
// Date-only input ("tomorrow") yields the whole day with HasTime=false;
// input with a clock time ("8am tomorrow") yields a one-hour slot starting
// at that time.
func (p *Parser) ParseDateQuery(text string, tz string, now time.Time) (*DateRange, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	base := now.In(loc)

	result, err := p.w.Parse(text, base)
	if err != nil {
		return nil, fmt.Errorf("date parse failed: %w", err)
	}
	if result == nil {
		return nil, nil
	}

	t := result.Time.In(loc)
	hasTime := timeOfDay.MatchString(text)

	if hasTime {
		return &DateRange{Start: t, End: t.Add(time.Hour), HasTime: true}, nil
	}

	dayStart := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	return &DateRange{Start: dayStart, End: dayStart.Add(24 * time.Hour)}, nil
}

// SchedulingStart returns the concrete start instant for a parsed range:
// the parsed time when present, otherwise the business-hours default on
// that day.
func SchedulingStart(r *DateRange) time.Time {
	if r.HasTime {
		return r.Start
	}
	return r.Start.Add(BusinessHourStart * time.Hour)
}

// DayBounds returns the enclosing day of an instant in its location.
func DayBounds(t time.Time) (time.Time, time.Time) {
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return start, start.Add(24 * time.Hour)
}
