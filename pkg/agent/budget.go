package agent

// ContextBudget allocates the turn's token budget across the context
// window's slices.
type ContextBudget struct {
	TotalTokens     int
	FactTokens      int
	RecentTokens    int
	MemoryTokens    int
	IndicatorTokens int
}

// DeriveContextBudget splits a total token budget: recent conversation gets
// the lion's share, memory recall next, facts and indicators the rest.
func DeriveContextBudget(total int) ContextBudget {
	if total <= 0 {
		total = 4096
	}
	facts := total * 15 / 100
	recent := total * 50 / 100
	memory := total * 25 / 100
	indicators := total - facts - recent - memory
	if memory < 256 {
		memory = 256
		if recent > 1024 {
			recent -= 256
		}
	}
	return ContextBudget{
		TotalTokens:     total,
		FactTokens:      facts,
		RecentTokens:    recent,
		MemoryTokens:    memory,
		IndicatorTokens: indicators,
	}
}

// estimateTokens approximates token count as characters over four. The
// budget is a ceiling, not an exact accounting, so a rough estimate that
// errs high is fine.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
