package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"highlight_courier/internal/domain"
)

// Recurrence says how often delivery cycles fire.
type Recurrence string

const (
	RecurrenceDaily  Recurrence = "daily"
	RecurrenceWeekly Recurrence = "weekly"
	RecurrenceManual Recurrence = "manual"
)

// TriggerConfig is the user-facing schedule: a time of day plus a recurrence
// unit. Weekday only matters for weekly recurrence.
type TriggerConfig struct {
	Recurrence Recurrence
	TimeOfDay  string // "HH:MM"
	Weekday    string
}

var weekdays = map[string]int{
	"sunday":    0,
	"monday":    1,
	"tuesday":   2,
	"wednesday": 3,
	"thursday":  4,
	"friday":    5,
	"saturday":  6,
}

// Schedule compiles the config into a cron schedule. Manual recurrence
// yields a nil schedule: nothing ever fires on its own.
func (c TriggerConfig) Schedule() (cron.Schedule, error) {
	if c.Recurrence == RecurrenceManual {
		return nil, nil
	}

	hour, minute, err := parseTimeOfDay(c.TimeOfDay)
	if err != nil {
		return nil, err
	}

	var spec string
	switch c.Recurrence {
	case RecurrenceDaily:
		spec = fmt.Sprintf("%d %d * * *", minute, hour)
	case RecurrenceWeekly:
		dow, ok := weekdays[strings.ToLower(c.Weekday)]
		if !ok {
			return nil, domain.NewScheduling("unknown weekday %q", c.Weekday)
		}
		spec = fmt.Sprintf("%d %d * * %d", minute, hour, dow)
	default:
		return nil, domain.NewScheduling("unknown recurrence %q", c.Recurrence)
	}

	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, domain.NewScheduling("compile schedule %q: %v", spec, err)
	}
	return schedule, nil
}

// NextTrigger computes the next firing strictly after now. If the configured
// time already passed today it rolls to the next valid day. ok is false for
// manual recurrence.
func (c TriggerConfig) NextTrigger(now time.Time) (next time.Time, ok bool, err error) {
	schedule, err := c.Schedule()
	if err != nil {
		return time.Time{}, false, err
	}
	if schedule == nil {
		return time.Time{}, false, nil
	}
	return schedule.Next(now), true, nil
}

func parseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, domain.NewScheduling("unparseable time of day %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, domain.NewScheduling("unparseable time of day %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, domain.NewScheduling("unparseable time of day %q", s)
	}
	return hour, minute, nil
}
