package agent

import (
	"fmt"
	"sort"
	"time"

	"github.com/havenapp/haven/pkg/storage"
)

// ComputeIndicators derives early-warning signals from the habit time
// series. Pure aggregation over day-bucketed records, no search.
func ComputeIndicators(points []storage.MetricPoint, windowDays int, now time.Time) []string {
	if windowDays <= 0 {
		windowDays = 14
	}

	byName := make(map[string]map[string]float64)
	for _, p := range points {
		day := dayKey(p.Day)
		if byName[p.Name] == nil {
			byName[p.Name] = make(map[string]float64)
		}
		byName[p.Name][day] = p.Value
	}

	var out []string
	// A user with no check-in history yet has nothing to miss.
	if len(byName["checkin"]) > 0 {
		if streak := missedStreak(byName["checkin"], now); streak >= 2 {
			out = append(out, fmt.Sprintf("Check-in missed %d consecutive days", streak))
		}
	}
	if trend, ok := moodTrend(points); ok && trend < -0.5 {
		out = append(out, fmt.Sprintf("Mood trending down over the last %d days", windowDays))
	}
	if urges := countEntries(points, "urge"); urges >= 3 {
		out = append(out, fmt.Sprintf("%d urges logged in the last %d days", urges, windowDays))
	}
	return out
}

func dayKey(t time.Time) string {
	return t.Local().Format("2006-01-02")
}

// missedStreak counts consecutive days without an entry, walking back from
// yesterday. The current day is not counted as missed while it is still in
// progress.
func missedStreak(days map[string]float64, now time.Time) int {
	streak := 0
	for i := 1; i <= 30; i++ {
		day := dayKey(now.AddDate(0, 0, -i))
		if _, ok := days[day]; ok {
			break
		}
		streak++
	}
	return streak
}

// moodTrend compares the mean of the older half of mood entries against the
// newer half. Needs at least 4 entries to say anything.
func moodTrend(points []storage.MetricPoint) (float64, bool) {
	var mood []storage.MetricPoint
	for _, p := range points {
		if p.Name == "mood" {
			mood = append(mood, p)
		}
	}
	if len(mood) < 4 {
		return 0, false
	}
	sort.SliceStable(mood, func(i, j int) bool { return mood[i].Day.Before(mood[j].Day) })

	half := len(mood) / 2
	older := mean(mood[:half])
	newer := mean(mood[half:])
	return newer - older, true
}

func mean(points []storage.MetricPoint) float64 {
	if len(points) == 0 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Value
	}
	return sum / float64(len(points))
}

func countEntries(points []storage.MetricPoint, name string) int {
	n := 0
	for _, p := range points {
		if p.Name == name {
			n++
		}
	}
	return n
}
