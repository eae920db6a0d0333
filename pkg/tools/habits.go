package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/havenapp/haven/pkg/storage"
)

// HabitSummaryTool summarizes the recent habit time series for the model.
type HabitSummaryTool struct {
	metrics storage.MetricsSource
	window  int
}

func NewHabitSummaryTool(metrics storage.MetricsSource, windowDays int) *HabitSummaryTool {
	if windowDays <= 0 {
		windowDays = 14
	}
	return &HabitSummaryTool{metrics: metrics, window: windowDays}
}

func (t *HabitSummaryTool) Name() string { return "habit_summary" }

func (t *HabitSummaryTool) Description() string {
	return "Summarize the user's tracked habit metrics (mood, check-ins, urges) over the recent window."
}

func (t *HabitSummaryTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"days": map[string]interface{}{
				"type":        "number",
				"description": "Number of days to look back (default 14)",
			},
		},
	}
}

func (t *HabitSummaryTool) Execute(ctx context.Context, args map[string]interface{}) *ToolResult {
	days := t.window
	if raw, ok := args["days"].(float64); ok && raw >= 1 {
		days = int(raw)
	}

	now := time.Now()
	from := now.AddDate(0, 0, -days)
	points, err := t.metrics.GetMetrics(ctx, from, now)
	if err != nil {
		return ErrorResult("failed to load habit metrics").WithError(err)
	}
	if len(points) == 0 {
		return NewResult(fmt.Sprintf("No habit data recorded in the last %d days.", days))
	}

	byName := make(map[string][]storage.MetricPoint)
	for _, p := range points {
		byName[p.Name] = append(byName[p.Name], p)
	}
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "Habit summary, last %d days:\n", days)
	for _, name := range names {
		series := byName[name]
		var sum float64
		for _, p := range series {
			sum += p.Value
		}
		avg := sum / float64(len(series))
		latest := series[len(series)-1]
		fmt.Fprintf(&b, "- %s: %d entries, avg %.1f, latest %.1f on %s\n",
			name, len(series), avg, latest.Value, latest.Day.Format("Jan 2"))
	}
	return NewResult(strings.TrimRight(b.String(), "\n"))
}
