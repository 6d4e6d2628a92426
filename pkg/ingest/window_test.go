package ingest

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestResolveWindow(t *testing.T) {
	// 03:00 UTC on March 2nd is still March 1st in New York.
	now := time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC)
	ny := DefaultLocation()

	start := date(2024, 1, 1)
	end := date(2024, 1, 31)
	late := date(2024, 2, 1)

	tests := []struct {
		name      string
		start     *time.Time
		end       *time.Time
		loc       *time.Location
		lookback  int
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{
			name:      "defaults in new york",
			loc:       ny,
			lookback:  7,
			wantStart: date(2024, 2, 23),
			wantEnd:   date(2024, 3, 1),
		},
		{
			name:      "defaults in utc",
			loc:       time.UTC,
			lookback:  7,
			wantStart: date(2024, 2, 24),
			wantEnd:   date(2024, 3, 2),
		},
		{
			name:      "zero lookback uses default",
			loc:       ny,
			lookback:  0,
			wantStart: date(2024, 2, 23),
			wantEnd:   date(2024, 3, 1),
		},
		{
			name:      "explicit bounds",
			start:     &start,
			end:       &end,
			loc:       ny,
			wantStart: start,
			wantEnd:   end,
		},
		{
			name:      "explicit start only",
			start:     &start,
			loc:       ny,
			wantStart: start,
			wantEnd:   date(2024, 3, 1),
		},
		{
			name:    "start after end",
			start:   &late,
			end:     &end,
			loc:     ny,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := ResolveWindow(tt.start, tt.end, now, tt.loc, tt.lookback)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ResolveWindow() = %v, want error", w)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveWindow() unexpected error: %v", err)
			}
			if !w.Start.Equal(tt.wantStart) {
				t.Errorf("Start = %s, want %s", w.StartDate(), tt.wantStart.Format(DateLayout))
			}
			if !w.End.Equal(tt.wantEnd) {
				t.Errorf("End = %s, want %s", w.EndDate(), tt.wantEnd.Format(DateLayout))
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2023-08-01")
	if err != nil {
		t.Fatalf("ParseDate() failed: %v", err)
	}
	if !got.Equal(date(2023, 8, 1)) {
		t.Errorf("ParseDate() = %v, want 2023-08-01", got)
	}

	if got, err := ParseDate(""); got != nil || err != nil {
		t.Errorf("ParseDate(\"\") = %v, %v; want nil, nil", got, err)
	}

	if _, err := ParseDate("08/01/2023"); err == nil {
		t.Error("ParseDate() expected error for non-ISO date")
	}
}

func TestWindow_String(t *testing.T) {
	w := Window{Start: date(2023, 8, 1), End: date(2023, 9, 1)}
	if got := w.String(); got != "2023-08-01..2023-09-01" {
		t.Errorf("String() = %q, want 2023-08-01..2023-09-01", got)
	}
}
