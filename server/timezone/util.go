// Package timezone provides the calendar-day utilities behind freshness markers.
//
// Freshness is tracked per local calendar day, not per elapsed duration, so every
// marker is computed in an explicit *time.Location.
package timezone

import (
	"fmt"
	"time"
)

// DayLayout is the format of a calendar-day marker.
const DayLayout = "2006-01-02"

// Default location constants
var (
	// UTC is the coordinated universal time timezone
	UTC = time.UTC

	// Local is the local timezone
	Local = time.Local
)

// ParseTimezone parses an IANA timezone identifier (e.g., "Europe/London").
// An empty identifier means the host's local zone.
// If the timezone is invalid, returns Local and an error.
func ParseTimezone(tz string) (*time.Location, error) {
	switch tz {
	case "":
		return Local, nil
	case "UTC":
		return UTC, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return Local, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	return loc, nil
}

// DayMarker returns the calendar day of t in the given timezone, e.g. "2024-01-31".
func DayMarker(t time.Time, tz *time.Location) string {
	if tz == nil {
		tz = Local
	}
	return t.In(tz).Format(DayLayout)
}

// ParseDayMarker parses a marker produced by DayMarker as midnight in tz.
func ParseDayMarker(marker string, tz *time.Location) (time.Time, error) {
	if tz == nil {
		tz = Local
	}
	return time.ParseInLocation(DayLayout, marker, tz)
}

// Common timezone constants
const (
	// TimezoneUTC is the UTC timezone identifier
	TimezoneUTC = "UTC"

	// TimezoneAmericaNewYork is the Eastern Time timezone
	TimezoneAmericaNewYork = "America/New_York"

	// TimezoneEuropeLondon is the GMT/BST timezone
	TimezoneEuropeLondon = "Europe/London"

	// TimezoneAustraliaSydney is the AEST/AEDT timezone
	TimezoneAustraliaSydney = "Australia/Sydney"
)
