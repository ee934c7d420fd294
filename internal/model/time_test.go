package model

import (
	"testing"
	"time"
)

func TestTSRoundTrip(t *testing.T) {
	orig := time.Date(2026, 8, 1, 12, 30, 45, 0, time.UTC)
	got := FromTS(TS(orig))
	if !got.Equal(orig) {
		t.Errorf("round trip: got %v, want %v", got, orig)
	}
}

func TestTSZero(t *testing.T) {
	if ts := TS(time.Time{}); ts != 0 {
		t.Errorf("TS(zero) = %v, want 0", ts)
	}
}

func TestLegacyRoundTrip(t *testing.T) {
	orig := time.Date(2022, 3, 15, 8, 0, 0, 250000000, time.UTC)
	formatted := FormatLegacy(orig)
	if formatted != "2022-03-15 08:00:00.250000" {
		t.Errorf("FormatLegacy = %q", formatted)
	}
	parsed, err := ParseLegacy(formatted)
	if err != nil {
		t.Fatalf("ParseLegacy: %v", err)
	}
	if !parsed.Equal(orig) {
		t.Errorf("round trip: got %v, want %v", parsed, orig)
	}
}

func TestLegacyFormatSortsChronologically(t *testing.T) {
	// Window predicates on the legacy schema compare datetime strings, so
	// string order must agree with time order.
	earlier := FormatLegacy(time.Date(2022, 3, 15, 8, 0, 0, 0, time.UTC))
	later := FormatLegacy(time.Date(2022, 3, 15, 8, 0, 1, 0, time.UTC))
	if !(earlier < later) {
		t.Errorf("%q should sort before %q", earlier, later)
	}
}

func TestParseLegacyEmpty(t *testing.T) {
	got, err := ParseLegacy("")
	if err != nil {
		t.Fatalf("ParseLegacy(\"\"): %v", err)
	}
	if !got.IsZero() {
		t.Errorf("got %v, want zero time", got)
	}
}

func TestDomain(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"sensor.temp", "sensor"},
		{"climate.living_room", "climate"},
		{"nodot", "nodot"},
		{"a.b.c", "a"},
	}
	for _, tc := range cases {
		if got := Domain(tc.in); got != tc.want {
			t.Errorf("Domain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
