package birthday

import (
	"fmt"
	"sync"
	"time"
)

// LocalTime is the wall-clock breakdown of an instant in some timezone.
type LocalTime struct {
	Year  int
	Month time.Month
	Day   int
	Hour  int // 0-23
}

// Resolver converts instants to local calendar time through the timezone
// database. Loaded locations are cached.
type Resolver struct {
	mu        sync.RWMutex
	locations map[string]*time.Location
}

func NewResolver() *Resolver {
	return &Resolver{locations: make(map[string]*time.Location)}
}

// Location loads the named IANA zone.
func (r *Resolver) Location(timezone string) (*time.Location, error) {
	r.mu.RLock()
	loc, ok := r.locations[timezone]
	r.mu.RUnlock()
	if ok {
		return loc, nil
	}

	// LoadLocation maps "" to UTC and "Local" to the host zone, neither of
	// which is a zone name anyone can register with.
	if timezone == "" || timezone == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, timezone)
	}

	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, timezone)
	}

	r.mu.Lock()
	r.locations[timezone] = loc
	r.mu.Unlock()

	return loc, nil
}

// Resolve returns the local date and hour of instant in timezone.
func (r *Resolver) Resolve(timezone string, instant time.Time) (LocalTime, error) {
	loc, err := r.Location(timezone)
	if err != nil {
		return LocalTime{}, err
	}

	local := instant.In(loc)
	year, month, day := local.Date()
	return LocalTime{
		Year:  year,
		Month: month,
		Day:   day,
		Hour:  local.Hour(),
	}, nil
}

// ValidateTimezone checks that timezone names a known IANA zone.
func ValidateTimezone(timezone string) error {
	_, err := NewResolver().Location(timezone)
	return err
}

// IsBirthday returns true if local falls on the given birthday. February 29th
// birthdays are observed on February 28th in non-leap years.
func IsBirthday(month, day uint, local LocalTime) bool {
	if int(month) == int(local.Month) && int(day) == local.Day {
		return true
	}
	return month == 2 && day == 29 &&
		local.Month == time.February && local.Day == 28 &&
		!isLeap(local.Year)
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}

// ObservedDay returns the day of month a birthday falls on in year.
func ObservedDay(month, day uint, year int) int {
	if month == 2 && day == 29 && !isLeap(year) {
		return 28
	}
	return int(day)
}

// NextBirthday returns the start of the birthday that is in progress at now,
// or of the next one, in timezone.
func (r *Resolver) NextBirthday(timezone string, month, day uint, now time.Time) (time.Time, error) {
	loc, err := r.Location(timezone)
	if err != nil {
		return time.Time{}, err
	}

	year := now.In(loc).Year()
	for y := year - 1; y <= year+1; y++ {
		start := time.Date(y, time.Month(month), ObservedDay(month, day, y), 0, 0, 0, 0, loc)
		end := time.Date(y, time.Month(month), ObservedDay(month, day, y)+1, 0, 0, 0, 0, loc)
		if end.After(now) {
			return start, nil
		}
	}
	return time.Time{}, fmt.Errorf("no birthday on %d-%02d after %s", month, day, now)
}
