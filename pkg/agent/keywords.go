package agent

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/havenapp/haven/pkg/storage"
)

// stopwords are stripped before keyword matching. Plain data so the set can
// be tuned without touching control flow.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
	"you": {}, "all": {}, "can": {}, "had": {}, "her": {}, "was": {},
	"one": {}, "our": {}, "out": {}, "has": {}, "have": {}, "him": {},
	"his": {}, "how": {}, "its": {}, "may": {}, "new": {}, "now": {},
	"old": {}, "see": {}, "two": {}, "way": {}, "who": {}, "did": {},
	"get": {}, "let": {}, "say": {}, "she": {}, "too": {}, "use": {},
	"that": {}, "this": {}, "with": {}, "from": {}, "they": {},
	"will": {}, "would": {}, "there": {}, "their": {}, "what": {},
	"about": {}, "which": {}, "when": {}, "were": {}, "been": {},
	"more": {}, "very": {}, "just": {}, "like": {}, "some": {},
	"them": {}, "then": {}, "than": {}, "into": {}, "could": {},
	"because": {}, "really": {}, "today": {}, "feel": {}, "feeling": {},
	"felt": {}, "want": {}, "going": {}, "dont": {}, "cant": {},
	"know": {}, "think": {}, "being": {}, "right": {},
	"still": {}, "even": {}, "much": {}, "also": {},
}

// themes groups related vocabulary; a theme is active when any of its words
// appears among the extracted keywords.
var themes = map[string][]string{
	"craving":       {"craving", "urge", "tempted", "drink", "drinking", "using", "relapse", "relapsed", "slip", "slipped"},
	"mood":          {"sad", "down", "anxious", "angry", "lonely", "depressed", "hopeless", "overwhelmed", "stressed"},
	"sleep":         {"sleep", "insomnia", "tired", "exhausted", "awake", "nightmare"},
	"relationships": {"wife", "husband", "partner", "friend", "family", "mother", "father", "boss", "coworker"},
	"progress":      {"sober", "sobriety", "streak", "milestone", "proud", "progress", "meeting", "sponsor"},
}

// ExtractKeywords lowercases the message, strips punctuation and stopwords,
// and returns unique tokens of at least 3 characters in first-seen order.
func ExtractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
	})

	seen := make(map[string]struct{})
	var out []string
	for _, field := range fields {
		token := strings.Trim(field, "'")
		if len(token) < 3 {
			continue
		}
		if _, stop := stopwords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
	}
	return out
}

// DetectThemes returns the themes whose vocabulary overlaps the keywords,
// sorted for stable output.
func DetectThemes(keywords []string) []string {
	kwSet := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		kwSet[kw] = struct{}{}
	}

	var active []string
	for name, vocab := range themes {
		for _, word := range vocab {
			if _, ok := kwSet[word]; ok {
				active = append(active, name)
				break
			}
		}
	}
	sort.Strings(active)
	return active
}

type scoredMemory struct {
	entry storage.MemoryEntry
	score float64
}

// scoreMemory counts keyword hits at full weight and theme-vocabulary hits
// at half weight.
func scoreMemory(content string, keywords, activeThemes []string) float64 {
	lowered := strings.ToLower(content)

	var score float64
	for _, kw := range keywords {
		if strings.Contains(lowered, kw) {
			score++
		}
	}
	for _, theme := range activeThemes {
		for _, word := range themes[theme] {
			if strings.Contains(lowered, word) {
				score += 0.5
			}
		}
	}
	return score
}

// selectMemories ranks candidates by score then recency, deduplicates by
// content prefix, caps the list, and truncates each entry to charBudget at a
// sentence boundary when one exists.
func selectMemories(entries []storage.MemoryEntry, keywords, activeThemes []string, entryCap, charBudget int) []string {
	if len(keywords) == 0 && len(activeThemes) == 0 {
		return nil
	}

	var scored []scoredMemory
	for _, entry := range entries {
		s := scoreMemory(entry.Content, keywords, activeThemes)
		if s <= 0 {
			continue
		}
		scored = append(scored, scoredMemory{entry: entry, score: s})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].entry.CreatedAt.After(scored[j].entry.CreatedAt)
	})

	seenPrefix := make(map[string]struct{})
	var out []string
	for _, sm := range scored {
		if len(out) >= entryCap {
			break
		}
		prefix := dedupPrefix(sm.entry.Content)
		if _, dup := seenPrefix[prefix]; dup {
			continue
		}
		seenPrefix[prefix] = struct{}{}
		out = append(out, truncateAtSentence(sm.entry.Content, charBudget))
	}
	return out
}

func dedupPrefix(content string) string {
	normalized := strings.ToLower(strings.TrimSpace(content))
	if len(normalized) > 40 {
		normalized = normalized[:runeBoundary(normalized, 40)]
	}
	return normalized
}

// runeBoundary walks max back to the nearest rune start so slicing never
// splits a multi-byte character.
func runeBoundary(s string, max int) int {
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return max
}

// truncateAtSentence cuts text to at most max characters, preferring the
// last sentence end inside the budget.
func truncateAtSentence(text string, max int) string {
	text = strings.TrimSpace(text)
	if max <= 0 || len(text) <= max {
		return text
	}
	cut := text[:runeBoundary(text, max)]
	best := -1
	for _, sep := range []string{". ", "! ", "? "} {
		if idx := strings.LastIndex(cut, sep); idx > best {
			best = idx + 1
		}
	}
	if best > 0 {
		return strings.TrimSpace(cut[:best])
	}
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "..."
}
