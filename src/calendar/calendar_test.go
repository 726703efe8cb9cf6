package calendar

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"pocketsync-server/src/models"
)

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func intPtr(n int) *int { return &n }

func TestAdvanceMonths(t *testing.T) {
	tests := []struct {
		name string
		in   civil.Date
		n    int
		want civil.Date
	}{
		{"leap year clamp", date(2024, time.January, 31), 1, date(2024, time.February, 29)},
		{"non leap clamp", date(2023, time.January, 31), 1, date(2023, time.February, 28)},
		{"no clamp needed", date(2023, time.January, 15), 1, date(2023, time.February, 15)},
		{"year rollover", date(2023, time.December, 15), 1, date(2024, time.January, 15)},
		{"thirty day month", date(2023, time.March, 31), 1, date(2023, time.April, 30)},
		{"twelve months from leap day", date(2024, time.February, 29), 12, date(2025, time.February, 28)},
		{"backwards", date(2023, time.March, 31), -1, date(2023, time.February, 28)},
		{"backwards across year", date(2024, time.January, 10), -2, date(2023, time.November, 10)},
		{"zero", date(2024, time.May, 5), 0, date(2024, time.May, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AdvanceMonths(tt.in, tt.n); got != tt.want {
				t.Errorf("AdvanceMonths(%s, %d) = %s, want %s", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestExpandOccurrences_MonthlyDoesNotDrift(t *testing.T) {
	got := ExpandOccurrences(date(2024, time.January, 31), nil, models.FrequencyMonthly, date(2024, time.April, 30), nil)
	want := []civil.Date{
		date(2024, time.January, 31),
		date(2024, time.February, 29),
		date(2024, time.March, 31),
		date(2024, time.April, 30),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d occurrences %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("occurrence %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestExpandOccurrences_StopConditions(t *testing.T) {
	start := date(2026, time.March, 2)
	end := date(2026, time.March, 23)

	tests := []struct {
		name     string
		freq     models.Frequency
		endDate  *civil.Date
		rangeEnd civil.Date
		fixed    *int
		want     int
	}{
		{"weekly to range end", models.FrequencyWeekly, nil, date(2026, time.March, 31), nil, 5},
		{"weekly stops at end date", models.FrequencyWeekly, &end, date(2026, time.December, 31), nil, 4},
		{"fixed count wins over range", models.FrequencyWeekly, nil, date(2026, time.December, 31), intPtr(2), 2},
		{"bi-weekly", models.FrequencyBiWeekly, nil, date(2026, time.March, 31), nil, 3},
		{"yearly", models.FrequencyYearly, nil, date(2029, time.March, 1), nil, 3},
		{"zero fixed count means uncapped", models.FrequencyMonthly, nil, date(2026, time.May, 2), intPtr(0), 3},
		{"unknown frequency", models.Frequency("fortnightly"), nil, date(2026, time.December, 31), nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExpandOccurrences(start, tt.endDate, tt.freq, tt.rangeEnd, tt.fixed)
			if len(got) != tt.want {
				t.Errorf("got %d occurrences %v, want %d", len(got), got, tt.want)
			}
		})
	}
}

func TestExpandOccurrences_IsRestartable(t *testing.T) {
	a := ExpandOccurrences(date(2026, time.January, 31), nil, models.FrequencyMonthly, date(2026, time.December, 31), nil)
	b := ExpandOccurrences(date(2026, time.January, 31), nil, models.FrequencyMonthly, date(2026, time.December, 31), nil)
	if len(a) != 12 || len(a) != len(b) {
		t.Fatalf("expected 12 identical occurrences, got %d and %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("expansion not deterministic at %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestRemainingOccurrences_FixedCountTakesPrecedence(t *testing.T) {
	end := date(2040, time.January, 1)
	got := RemainingOccurrences(date(2026, time.January, 1), &end, models.FrequencyMonthly, date(2026, time.January, 1), intPtr(3))
	if got != 3 {
		t.Errorf("RemainingOccurrences = %d, want 3", got)
	}
}

func TestRemainingOccurrences_OpenEndedIsZero(t *testing.T) {
	got := RemainingOccurrences(date(2026, time.January, 1), nil, models.FrequencyMonthly, date(2026, time.January, 1), nil)
	if got != 0 {
		t.Errorf("RemainingOccurrences = %d, want 0", got)
	}
}

func TestRemainingOccurrences_CountsFromAsOf(t *testing.T) {
	end := date(2026, time.June, 1)
	got := RemainingOccurrences(date(2026, time.January, 1), &end, models.FrequencyMonthly, date(2026, time.March, 15), nil)
	if got != 3 {
		t.Errorf("RemainingOccurrences = %d, want 3 (Apr, May, Jun)", got)
	}
}

func TestRemainingOccurrences_GraceWindow(t *testing.T) {
	end := date(2026, time.January, 20)
	// Jan 26 lies inside the seven day grace window after the end date.
	got := RemainingOccurrences(date(2026, time.January, 5), &end, models.FrequencyWeekly, date(2026, time.January, 10), nil)
	if got != 3 {
		t.Errorf("RemainingOccurrences = %d, want 3 (Jan 12, 19, 26)", got)
	}
}

func TestNextWeekday(t *testing.T) {
	// 2026-02-20 is a Friday.
	fri := date(2026, time.February, 20)
	if got := NextWeekday(fri, time.Friday); got != fri {
		t.Errorf("NextWeekday(Friday) = %s, want same day", got)
	}
	if got := NextWeekday(date(2026, time.February, 21), time.Friday); got != date(2026, time.February, 27) {
		t.Errorf("NextWeekday(Saturday) = %s, want 2026-02-27", got)
	}
}

func TestMonthBounds(t *testing.T) {
	first, last := MonthBounds(date(2024, time.February, 10))
	if first != date(2024, time.February, 1) || last != date(2024, time.February, 29) {
		t.Errorf("MonthBounds = %s..%s", first, last)
	}
}
