package agent

import (
	"strings"
	"testing"
	"time"

	"github.com/havenapp/haven/pkg/storage"
)

func day(offset int) time.Time {
	return time.Now().AddDate(0, 0, offset)
}

func TestComputeIndicators_MissedCheckInStreak(t *testing.T) {
	points := []storage.MetricPoint{
		{Name: "checkin", Day: day(-6), Value: 1},
		{Name: "checkin", Day: day(-5), Value: 1},
		// Nothing for the last four days.
	}

	got := ComputeIndicators(points, 14, time.Now())
	found := false
	for _, ind := range got {
		if strings.Contains(ind, "Check-in missed 4 consecutive days") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected missed check-in indicator, got %v", got)
	}
}

func TestComputeIndicators_NoStreakWhenCheckedInYesterday(t *testing.T) {
	points := []storage.MetricPoint{
		{Name: "checkin", Day: day(-1), Value: 1},
	}
	for _, ind := range ComputeIndicators(points, 14, time.Now()) {
		if strings.Contains(ind, "Check-in missed") {
			t.Fatalf("unexpected streak indicator: %v", ind)
		}
	}
}

func TestComputeIndicators_MoodTrendingDown(t *testing.T) {
	points := []storage.MetricPoint{
		{Name: "mood", Day: day(-8), Value: 8},
		{Name: "mood", Day: day(-6), Value: 7},
		{Name: "mood", Day: day(-4), Value: 4},
		{Name: "mood", Day: day(-2), Value: 3},
		{Name: "checkin", Day: day(-1), Value: 1},
	}

	got := ComputeIndicators(points, 14, time.Now())
	found := false
	for _, ind := range got {
		if strings.Contains(ind, "Mood trending down") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected mood trend indicator, got %v", got)
	}
}

func TestComputeIndicators_StableMoodNoTrend(t *testing.T) {
	points := []storage.MetricPoint{
		{Name: "mood", Day: day(-8), Value: 6},
		{Name: "mood", Day: day(-6), Value: 6},
		{Name: "mood", Day: day(-4), Value: 6},
		{Name: "mood", Day: day(-2), Value: 7},
		{Name: "checkin", Day: day(-1), Value: 1},
	}
	for _, ind := range ComputeIndicators(points, 14, time.Now()) {
		if strings.Contains(ind, "Mood trending down") {
			t.Fatalf("unexpected trend indicator: %v", ind)
		}
	}
}

func TestComputeIndicators_UrgeCount(t *testing.T) {
	points := []storage.MetricPoint{
		{Name: "urge", Day: day(-3), Value: 1},
		{Name: "urge", Day: day(-2), Value: 1},
		{Name: "urge", Day: day(-1), Value: 1},
		{Name: "checkin", Day: day(-1), Value: 1},
	}

	got := ComputeIndicators(points, 14, time.Now())
	found := false
	for _, ind := range got {
		if strings.Contains(ind, "3 urges logged") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected urge indicator, got %v", got)
	}
}

func TestComputeIndicators_EmptyInput(t *testing.T) {
	if got := ComputeIndicators(nil, 14, time.Now()); len(got) != 0 {
		t.Fatalf("expected no indicators on empty input, got %v", got)
	}
}
