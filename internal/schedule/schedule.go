// Package schedule evaluates weekly recurring test windows.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/umadex/umadex-backend/internal/apperror"
)

// lookahead is how many days past today are searched for the next window.
const lookahead = 7

var (
	ErrInvalidTimezone = apperror.New(apperror.KindValidation, "INVALID_TIMEZONE", "unknown timezone")
	ErrInvalidClock    = apperror.New(apperror.KindValidation, "INVALID_TIME", "time must be HH:MM")
	ErrInvalidWeekday  = apperror.New(apperror.KindValidation, "INVALID_WEEKDAY", "unknown weekday")
	ErrInvalidWindow   = apperror.New(apperror.KindValidation, "INVALID_WINDOW", "window end must be after its start")
)

// Window is a daily time range repeated on the given weekdays. Start and
// End are local "HH:MM" strings.
type Window struct {
	Days  []string `json:"days"`
	Start string   `json:"start_time"`
	End   string   `json:"end_time"`
}

type Schedule struct {
	Windows  []Window `json:"windows"`
	Timezone string   `json:"timezone"`
	IsActive bool     `json:"is_active"`
}

// TimeUntil is a coarse countdown to the next window.
type TimeUntil struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
}

type Availability struct {
	Allowed          bool       `json:"allowed"`
	CurrentWindowEnd *time.Time `json:"current_window_end,omitempty"`
	NextWindow       *time.Time `json:"next_window,omitempty"`
	TimeUntil        *TimeUntil `json:"time_until,omitempty"`
	Message          string     `json:"message"`
}

type window struct {
	days       map[time.Weekday]bool
	start, end int // minutes since midnight
}

// Check decides whether a test may be taken at now. A nil or inactive
// schedule always allows access.
func Check(s *Schedule, now time.Time) (Availability, error) {
	if s == nil || !s.IsActive || len(s.Windows) == 0 {
		return Availability{Allowed: true, Message: "Test is available"}, nil
	}

	loc, err := LoadLocation(s.Timezone)
	if err != nil {
		return Availability{}, err
	}
	windows, err := compile(s.Windows)
	if err != nil {
		return Availability{}, err
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	// A time 10:00:30 is past a 10:00 end.
	exact := local.Second() == 0 && local.Nanosecond() == 0

	for _, w := range windows {
		if !w.days[local.Weekday()] {
			continue
		}
		if minute >= w.start && (minute < w.end || (minute == w.end && exact)) {
			end := at(local, 0, w.end, loc)
			return Availability{
				Allowed:          true,
				CurrentWindowEnd: &end,
				Message:          fmt.Sprintf("Test is available until %s", end.Format("15:04")),
			}, nil
		}
	}

	var next *time.Time
	for offset := 0; offset <= lookahead; offset++ {
		day := at(local, offset, 0, loc)
		for _, w := range windows {
			if !w.days[day.Weekday()] {
				continue
			}
			candidate := at(local, offset, w.start, loc)
			if candidate.After(now) && (next == nil || candidate.Before(*next)) {
				c := candidate
				next = &c
			}
		}
		if next != nil {
			break
		}
	}

	if next == nil {
		return Availability{Allowed: false, Message: "No testing window is scheduled in the next 7 days"}, nil
	}

	until := next.Sub(now)
	tu := &TimeUntil{Hours: int(until.Hours()), Minutes: int(until.Minutes()) % 60}
	return Availability{
		Allowed:    false,
		NextWindow: next,
		TimeUntil:  tu,
		Message:    fmt.Sprintf("Test opens in %d hours and %d minutes", tu.Hours, tu.Minutes),
	}, nil
}

// Validate checks every window and the timezone.
func Validate(s Schedule) error {
	if _, err := LoadLocation(s.Timezone); err != nil {
		return err
	}
	_, err := compile(s.Windows)
	return err
}

func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, ErrInvalidTimezone.Withf("%q", name)
	}
	return loc, nil
}

func compile(ws []Window) ([]window, error) {
	out := make([]window, 0, len(ws))
	for _, w := range ws {
		start, err := ParseClock(w.Start)
		if err != nil {
			return nil, err
		}
		end, err := ParseClock(w.End)
		if err != nil {
			return nil, err
		}
		if end <= start {
			return nil, ErrInvalidWindow.Withf("%s-%s", w.Start, w.End)
		}
		days := make(map[time.Weekday]bool, len(w.Days))
		for _, d := range w.Days {
			wd, err := ParseWeekday(d)
			if err != nil {
				return nil, err
			}
			days[wd] = true
		}
		out = append(out, window{days: days, start: start, end: end})
	}
	return out, nil
}

// at returns the local date offset days after t at the given minute.
func at(t time.Time, offsetDays, minute int, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+offsetDays, minute/60, minute%60, 0, 0, loc)
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, ErrInvalidClock.Withf("%q", s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, ErrInvalidClock.Withf("%q", s)
	}
	return h*60 + m, nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekday accepts English day names or three-letter abbreviations.
func ParseWeekday(s string) (time.Weekday, error) {
	if wd, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]; ok {
		return wd, nil
	}
	return 0, ErrInvalidWeekday.Withf("%q", s)
}
