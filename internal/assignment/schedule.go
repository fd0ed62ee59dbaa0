package assignment

import (
	"fmt"
	"strings"
	"time"

	"github.com/spec-kit/civic-requests/internal/domain"
)

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// everyDay matches shifts that repeat daily.
const everyDay = "daily"

func parseDay(day string) (time.Weekday, bool, error) {
	key := strings.ToLower(strings.TrimSpace(day))
	if key == everyDay || key == "*" {
		return 0, true, nil
	}
	wd, ok := dayNames[key]
	if !ok {
		return 0, false, fmt.Errorf("unknown day %q", day)
	}
	return wd, false, nil
}

// parseClock returns minutes since midnight for "HH:MM". "24:00" is accepted as end of day.
func parseClock(value string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(strings.TrimSpace(value), "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	if h < 0 || h > 24 || m < 0 || m > 59 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	return h*60 + m, nil
}

// ValidateSchedule rejects shifts with unknown days or malformed times.
func ValidateSchedule(s domain.Schedule) error {
	for i, shift := range s.Shifts {
		if _, _, err := parseDay(shift.Day); err != nil {
			return fmt.Errorf("shift %d: %w", i, err)
		}
		if _, err := parseClock(shift.Start); err != nil {
			return fmt.Errorf("shift %d start: %w", i, err)
		}
		if _, err := parseClock(shift.End); err != nil {
			return fmt.Errorf("shift %d end: %w", i, err)
		}
	}
	return nil
}

// OnShift reports whether the schedule covers now in loc. A shift whose end
// is before its start runs past midnight into the next day; equal start and
// end cover the whole day. Malformed shifts never match.
func OnShift(s domain.Schedule, now time.Time, loc *time.Location) bool {
	if loc != nil {
		now = now.In(loc)
	}
	minute := now.Hour()*60 + now.Minute()
	today := now.Weekday()
	yesterday := (today + 6) % 7

	for _, shift := range s.Shifts {
		day, daily, err := parseDay(shift.Day)
		if err != nil {
			continue
		}
		start, err := parseClock(shift.Start)
		if err != nil {
			continue
		}
		end, err := parseClock(shift.End)
		if err != nil {
			continue
		}
		startsToday := daily || day == today
		startedYesterday := daily || day == yesterday

		switch {
		case start == end:
			if startsToday {
				return true
			}
		case start < end:
			if startsToday && minute >= start && minute < end {
				return true
			}
		default:
			if startsToday && minute >= start {
				return true
			}
			if startedYesterday && minute < end {
				return true
			}
		}
	}
	return false
}
