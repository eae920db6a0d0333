package safety

import "regexp"

// tier owns the cue vocabulary for one severity level. Tiers are evaluated
// highest-first; the tables below are plain data so the vocabulary can be
// tuned without touching the gate's control flow.
type tier struct {
	level    CrisisLevel
	phrases  []string
	patterns []*regexp.Regexp
}

var defaultTiers = []tier{
	{
		level: LevelEmergency,
		phrases: []string{
			"kill myself",
			"killing myself",
			"end my life",
			"ending my life",
			"want to die",
			"wanna die",
			"better off dead",
			"suicide",
			"suicidal",
			"take my own life",
			"end it all",
			"no reason to keep living",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bhurt(ing)? myself\b`),
			regexp.MustCompile(`\bharm(ing)? myself\b`),
			regexp.MustCompile(`\b(don'?t|do not) want to (be alive|live|wake up)\b`),
			regexp.MustCompile(`\bgoodbye (forever|everyone)\b`),
		},
	},
	{
		level: LevelUrgent,
		phrases: []string{
			"can't go on",
			"cant go on",
			"can't do this anymore",
			"cant do this anymore",
			"no way out",
			"nothing matters anymore",
			"everyone would be better without me",
			"giving up completely",
			"overdose",
			"overdosed",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\brelapsed? (hard|badly|again and again)\b`),
			regexp.MustCompile(`\b(took|taking) (too many|a lot of) pills\b`),
		},
	},
	{
		level: LevelConcern,
		phrases: []string{
			"hopeless",
			"worthless",
			"hate myself",
			"can't cope",
			"cant cope",
			"falling apart",
			"relapsed",
			"i relapsed",
			"drinking again",
			"using again",
			"broke my sobriety",
			"no one cares",
			"completely alone",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\bwhat'?s the point\b`),
			regexp.MustCompile(`\bgave? in (to|and) (the )?(drink|drinking|using)\b`),
		},
	},
	{
		level: LevelMonitor,
		phrases: []string{
			"tempted to drink",
			"tempted to use",
			"craving",
			"cravings",
			"urge to drink",
			"urge to use",
			"really struggling",
			"having a hard time",
			"can't sleep",
			"cant sleep",
			"so stressed",
			"overwhelmed",
			"anxious all day",
			"want a drink",
		},
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\btempted\b`),
			regexp.MustCompile(`\bslipp(ed|ing)\b`),
		},
	},
}
