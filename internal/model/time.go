package model

import "time"

// LegacyTimeLayout is the datetime-string format of the pre-31 schema's
// last_updated / last_changed columns. Values are stored in UTC.
const LegacyTimeLayout = "2006-01-02 15:04:05.000000"

// TS converts a time to the modern schema's epoch-seconds representation.
func TS(t time.Time) float64 {
	if t.IsZero() {
		return 0
	}
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromTS converts modern epoch seconds back to a UTC time.
func FromTS(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}

// FormatLegacy renders a time as a legacy datetime column value.
func FormatLegacy(t time.Time) string {
	return t.UTC().Format(LegacyTimeLayout)
}

// ParseLegacy parses a legacy datetime column value. The zero time is
// returned for an empty string.
func ParseLegacy(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(LegacyTimeLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
