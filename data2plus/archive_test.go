package data2plus

import (
	"testing"
	"time"
)

func TestDeriveDayYieldSkipsGaps(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	samples := []totalDaySample{
		{time: base, totalYield: 1000},
		{time: base.Add(24 * time.Hour), totalYield: 1010},
		{time: base.Add(4 * 24 * time.Hour), totalYield: 1030},
	}

	got := deriveDayYield(samples)
	if len(got) != 1 {
		t.Fatalf("got %d entries, want 1 (the 3-day gap should be skipped): %+v", len(got), got)
	}
	if got[0].DayYield != 10 {
		t.Fatalf("DayYield = %d, want 10", got[0].DayYield)
	}
	if !got[0].Date.Equal(base.Add(24 * time.Hour)) {
		t.Fatalf("Date = %v, want %v", got[0].Date, base.Add(24*time.Hour))
	}
}

func TestDeriveDayYieldFewerThanTwoSamples(t *testing.T) {
	if got := deriveDayYield(nil); got != nil {
		t.Fatalf("deriveDayYield(nil) = %v, want nil", got)
	}
	if got := deriveDayYield([]totalDaySample{{time: time.Now(), totalYield: 1}}); got != nil {
		t.Fatalf("deriveDayYield(1 sample) = %v, want nil", got)
	}
}

func TestDeriveDayYieldAllGapsConsistentLength(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	samples := make([]totalDaySample, 0, 5)
	gaps := 0
	for i, gapHours := range []int{24, 24, 72, 24} {
		if i == 0 {
			samples = append(samples, totalDaySample{time: base, totalYield: 1000})
		}
		prev := samples[len(samples)-1]
		next := totalDaySample{time: prev.time.Add(time.Duration(gapHours) * time.Hour), totalYield: prev.totalYield + 10}
		samples = append(samples, next)
		if gapHours >= 48 {
			gaps++
		}
	}

	got := deriveDayYield(samples)
	if want := len(samples) - 1 - gaps; len(got) != want {
		t.Fatalf("got %d entries, want %d (len=%d gaps=%d)", len(got), want, len(samples), gaps)
	}
}
