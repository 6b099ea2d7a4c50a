package schedule

import (
	"strings"
	"testing"
	"time"
)

func TestNewRejectsInvalidCombos(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		interval float64
		cron     string
		wantErr  string
	}{
		{"both set", 5, "0 0 * * *", "mutually exclusive"},
		{"neither set", 0, "", "required"},
		{"negative interval", -5, "", "positive"},
		{"sub-second interval", 0.001, "", "at least one second"},
		{"bad cron", 0, "not a cron", "invalid cron expression"},
		{"six fields", 0, "0 0 0 * * *", "invalid cron expression"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tc.interval, tc.cron)
			if err == nil {
				t.Fatalf("New(%v, %q): expected error", tc.interval, tc.cron)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestNewInterval(t *testing.T) {
	t.Parallel()

	s, err := New(1.5, "")
	if err != nil {
		t.Fatal(err)
	}
	if s.Kind != KindInterval {
		t.Fatalf("kind = %v, want interval", s.Kind)
	}
	if s.Every != 90*time.Second {
		t.Fatalf("every = %v, want 90s", s.Every)
	}
}

func TestIntervalNextAfterIsAdditive(t *testing.T) {
	t.Parallel()

	s := MustNew(10, "")
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	got := s.NextAfter(base)
	if want := base.Add(10 * time.Minute); !got.Equal(want) {
		t.Fatalf("NextAfter = %v, want %v", got, want)
	}
}

func TestCronNextAfterIsStrictlyAfter(t *testing.T) {
	t.Parallel()

	s := MustNew(0, "0 0 * * *")
	midnight := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	// Exactly on the boundary: the next activation is tomorrow, not now.
	got := s.NextAfter(midnight)
	if want := midnight.AddDate(0, 0, 1); !got.Equal(want) {
		t.Fatalf("NextAfter(midnight) = %v, want %v", got, want)
	}

	got = s.NextAfter(midnight.Add(13 * time.Hour))
	if want := midnight.AddDate(0, 0, 1); !got.Equal(want) {
		t.Fatalf("NextAfter(13:00) = %v, want %v", got, want)
	}
}

func TestCronDescriptor(t *testing.T) {
	t.Parallel()

	s := MustNew(0, "@hourly")
	base := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)
	if got, want := s.NextAfter(base), base.Add(30*time.Minute); !got.Equal(want) {
		t.Fatalf("NextAfter = %v, want %v", got, want)
	}
}

func TestCronRespectsLocation(t *testing.T) {
	t.Parallel()

	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable:", err)
	}
	s := MustNew(0, "0 0 * * *")
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, loc)
	got := s.NextAfter(base)
	if got.Hour() != 0 || !got.Equal(time.Date(2025, 3, 2, 0, 0, 0, 0, loc)) {
		t.Fatalf("NextAfter in %v = %v, want local midnight", loc, got)
	}
}

func TestMinInterval(t *testing.T) {
	t.Parallel()

	tick := 30 * time.Second
	if got := MustNew(10, "").MinInterval(tick); got != 10*time.Minute {
		t.Fatalf("interval MinInterval = %v, want 10m", got)
	}
	if got := MustNew(0, "* * * * *").MinInterval(tick); got != tick {
		t.Fatalf("cron MinInterval = %v, want tick %v", got, tick)
	}
}

func TestString(t *testing.T) {
	t.Parallel()

	if got := MustNew(5, "").String(); got != "every 5m0s" {
		t.Fatalf("String = %q", got)
	}
	if got := MustNew(0, "0 0 * * *").String(); got != "cron: 0 0 * * *" {
		t.Fatalf("String = %q", got)
	}
}
