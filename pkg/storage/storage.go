package storage

import (
	"context"
	"time"
)

// MemoryEntry is one free-text historical item (journal lines, saved
// memories, notable conversation moments) available to context recall.
type MemoryEntry struct {
	ID        string
	Content   string
	CreatedAt time.Time
}

// MetricPoint is one day-bucketed habit-tracking observation. Value is
// 0/1 for boolean habits and a scalar for scored ones (mood 1..10).
type MetricPoint struct {
	Name  string
	Day   time.Time
	Value float64
}

// MemorySource lists recall candidates, newest first.
type MemorySource interface {
	ListMemories(ctx context.Context, limit int) ([]MemoryEntry, error)
	AddMemory(ctx context.Context, content string, at time.Time) error
}

// MetricsSource reads and appends the habit time series.
type MetricsSource interface {
	GetMetrics(ctx context.Context, from, to time.Time) ([]MetricPoint, error)
	AppendMetric(ctx context.Context, point MetricPoint) error
}

// FactsSource reads the user's static profile facts.
type FactsSource interface {
	GetFacts(ctx context.Context) ([]string, error)
	AddFact(ctx context.Context, fact string) error
}
