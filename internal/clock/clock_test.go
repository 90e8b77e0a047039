package clock

import (
	"testing"
	"time"
)

func TestSessionBoundsUTC_WinterOffsets(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// A Wednesday in January: London is on GMT (UTC+0), New York on EST
	// (UTC-5).
	date := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	open, close, err := c.SessionBoundsUTC(date)
	if err != nil {
		t.Fatalf("SessionBoundsUTC() error = %v", err)
	}

	wantOpen := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	wantClose := time.Date(2025, 1, 15, 22, 0, 0, 0, time.UTC)
	if !open.Equal(wantOpen) {
		t.Errorf("open = %v, want %v", open, wantOpen)
	}
	if !close.Equal(wantClose) {
		t.Errorf("close = %v, want %v", close, wantClose)
	}
}

func TestSessionBoundsUTC_SummerOffsetsDifferFromWinter(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	winter := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)
	summer := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)

	winterOpen, winterClose, err := c.SessionBoundsUTC(winter)
	if err != nil {
		t.Fatalf("SessionBoundsUTC(winter) error = %v", err)
	}
	summerOpen, summerClose, err := c.SessionBoundsUTC(summer)
	if err != nil {
		t.Fatalf("SessionBoundsUTC(summer) error = %v", err)
	}

	if winterOpen.Equal(summerOpen) {
		t.Error("London daylight saving should shift the open hour in UTC between January and July")
	}
	if winterClose.Equal(summerClose) {
		t.Error("New York daylight saving should shift the close hour in UTC between January and July")
	}
}

func TestSessionBoundsUTC_CloseAlwaysAfterOpen(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for _, month := range []time.Month{time.January, time.March, time.July, time.November} {
		date := time.Date(2025, month, 10, 0, 0, 0, 0, time.UTC)
		open, close, err := c.SessionBoundsUTC(date)
		if err != nil {
			t.Fatalf("SessionBoundsUTC(%v) error = %v", month, err)
		}
		if !close.After(open) {
			t.Errorf("month %v: close %v should be after open %v", month, close, open)
		}
	}
}

func TestIsTradeable_WithinSessionOnWeekday(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	// Noon UTC on a January Wednesday falls inside the 08:00-22:00 UTC
	// session window.
	ts := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	if !c.IsTradeable(ts) {
		t.Error("expected midday Wednesday bar to be tradeable")
	}
}

func TestIsTradeable_RejectsWeekend(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	saturday := time.Date(2025, 1, 18, 12, 0, 0, 0, time.UTC)
	if c.IsTradeable(saturday) {
		t.Error("expected Saturday bar to be rejected as untradeable")
	}
}

func TestIsTradeable_RejectsBeforeOpen(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := time.Date(2025, 1, 15, 3, 0, 0, 0, time.UTC) // 03:00 UTC, well before 08:00 open
	if c.IsTradeable(ts) {
		t.Error("expected pre-open bar to be rejected as untradeable")
	}
}

func TestIsTradeable_RejectsAfterClose(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := time.Date(2025, 1, 15, 23, 0, 0, 0, time.UTC) // 23:00 UTC, after 22:00 close
	if c.IsTradeable(ts) {
		t.Error("expected post-close bar to be rejected as untradeable")
	}
}

func TestIsTradeable_BoundaryInstantsAreInclusive(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	open := time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC)
	close := time.Date(2025, 1, 15, 22, 0, 0, 0, time.UTC)
	if !c.IsTradeable(open) {
		t.Error("expected the opening instant itself to be tradeable")
	}
	if !c.IsTradeable(close) {
		t.Error("expected the closing instant itself to be tradeable")
	}
}
