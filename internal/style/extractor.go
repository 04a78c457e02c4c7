// Package style infers a user's writing voice incrementally from their
// brainstorming replies. Extract and Merge are pure: replaying the same
// ordered turn sequence always yields the same profile.
package style

import (
	"sort"
	"strings"
	"unicode"

	"github.com/shubh-37/postpilot/internal/models"
)

const (
	// emaCap bounds the moving-average divisor so late turns still
	// contribute at least 1/emaCap of the new estimate.
	emaCap = 8

	// maxPhrases is the number of characteristic phrases retained.
	maxPhrases = 12

	// maxPhrasesPerTurn bounds how many phrases one turn may contribute.
	maxPhrasesPerTurn = 6
)

// fillers are common spoken-register phrases worth tracking even when they
// appear only once in a turn.
var fillers = []string{
	"to be honest", "at the end of the day", "i think", "i feel like",
	"you know", "kind of", "sort of", "honestly", "basically", "actually",
	"literally", "for sure", "no cap", "tbh", "imo",
}

var casualMarkers = []string{
	"gonna", "wanna", "gotta", "yeah", "yep", "nah", "lol", "haha", "kinda",
	"sorta", "stuff", "cool", "awesome", "super",
}

// Signal is the incremental style evidence extracted from one utterance.
type Signal struct {
	AvgSentenceLength  float64
	Casualness         float64
	ExclamationDensity float64
	EllipsisDensity    float64
	QuestionDensity    float64
	EmojiFrequency     float64
	LowercaseTendency  float64
	ListPreference     float64
	Phrases            []models.PhraseCount

	// Degenerate marks turns too small to carry signal (empty or a single
	// word). Degenerate signals merge with zero weight.
	Degenerate bool
}

// Extract computes the style signal carried by a single utterance.
func Extract(text string) Signal {
	trimmed := strings.TrimSpace(text)
	words := strings.Fields(trimmed)
	if len(words) < 2 {
		return Signal{Degenerate: true}
	}

	sentences := splitSentences(trimmed)
	nSentences := float64(len(sentences))
	nWords := float64(len(words))

	sig := Signal{
		AvgSentenceLength:  nWords / nSentences,
		ExclamationDensity: float64(strings.Count(trimmed, "!")) / nSentences,
		EllipsisDensity:    float64(strings.Count(trimmed, "...")+strings.Count(trimmed, "…")) / nSentences,
		QuestionDensity:    float64(strings.Count(trimmed, "?")) / nSentences,
		EmojiFrequency:     float64(countEmoji(trimmed)) / nWords,
		LowercaseTendency:  lowercaseTendency(sentences),
		ListPreference:     listPreference(trimmed),
		Phrases:            extractPhrases(trimmed),
	}
	sig.Casualness = casualness(trimmed, sig)
	return sig
}

// Merge folds a signal into the prior profile. Scalars move by a bounded
// exponential moving average: new = old + (signal-old)/min(turnIndex, cap),
// so early turns move the estimate fast and later turns stabilize it.
// Degenerate signals return the prior profile untouched. The returned
// profile is always a fresh value; the prior is never mutated.
func Merge(prior *models.StyleProfile, sig Signal, turnIndex int) *models.StyleProfile {
	if sig.Degenerate || turnIndex <= 0 {
		return prior
	}

	div := turnIndex
	if div > emaCap {
		div = emaCap
	}
	w := 1.0 / float64(div)

	next := &models.StyleProfile{
		TurnsSeen:          prior.TurnsSeen + 1,
		AvgSentenceLength:  ema(prior.AvgSentenceLength, sig.AvgSentenceLength, w),
		Casualness:         ema(prior.Casualness, sig.Casualness, w),
		ExclamationDensity: ema(prior.ExclamationDensity, sig.ExclamationDensity, w),
		EllipsisDensity:    ema(prior.EllipsisDensity, sig.EllipsisDensity, w),
		QuestionDensity:    ema(prior.QuestionDensity, sig.QuestionDensity, w),
		EmojiFrequency:     ema(prior.EmojiFrequency, sig.EmojiFrequency, w),
		LowercaseTendency:  ema(prior.LowercaseTendency, sig.LowercaseTendency, w),
		ListPreference:     ema(prior.ListPreference, sig.ListPreference, w),
		Phrases:            mergePhrases(prior.Phrases, sig.Phrases),
	}
	return next
}

func ema(old, sig, w float64) float64 {
	return old + (sig-old)*w
}

func mergePhrases(prior []models.PhraseCount, observed []models.PhraseCount) []models.PhraseCount {
	counts := make(map[string]int, len(prior)+len(observed))
	for _, pc := range prior {
		counts[pc.Phrase] = pc.Count
	}
	for _, pc := range observed {
		counts[pc.Phrase] += pc.Count
	}

	merged := make([]models.PhraseCount, 0, len(counts))
	for phrase, count := range counts {
		merged = append(merged, models.PhraseCount{Phrase: phrase, Count: count})
	}
	// Count descending, then lexicographic, so ranking is deterministic.
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Count != merged[j].Count {
			return merged[i].Count > merged[j].Count
		}
		return merged[i].Phrase < merged[j].Phrase
	})
	if len(merged) > maxPhrases {
		merged = merged[:maxPhrases]
	}
	return merged
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			// Swallow runs of terminators ("!!", "...") as one boundary.
			for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
				i++
				current.WriteRune(runes[i])
			}
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	if len(sentences) == 0 {
		sentences = []string{text}
	}
	return sentences
}

func countEmoji(text string) int {
	n := 0
	for _, r := range text {
		if (r >= 0x1F300 && r <= 0x1FAFF) || (r >= 0x2600 && r <= 0x27BF) {
			n++
		}
	}
	return n
}

func lowercaseTendency(sentences []string) float64 {
	lower := 0
	counted := 0
	for _, s := range sentences {
		for _, r := range s {
			if unicode.IsLetter(r) {
				counted++
				if unicode.IsLower(r) {
					lower++
				}
				break
			}
		}
	}
	if counted == 0 {
		return 0
	}
	return float64(lower) / float64(counted)
}

func listPreference(text string) float64 {
	lines := strings.Split(text, "\n")
	nonEmpty := 0
	listLines := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		nonEmpty++
		if strings.HasPrefix(line, "-") || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "•") {
			listLines++
			continue
		}
		if len(line) > 2 && line[0] >= '1' && line[0] <= '9' && (line[1] == '.' || line[1] == ')') {
			listLines++
		}
	}
	if nonEmpty == 0 {
		return 0
	}
	return float64(listLines) / float64(nonEmpty)
}

func casualness(text string, sig Signal) float64 {
	lowered := strings.ToLower(text)
	words := strings.Fields(lowered)
	markers := 0
	for _, w := range words {
		w = strings.Trim(w, ".,!?…\"'")
		for _, m := range casualMarkers {
			if w == m {
				markers++
				break
			}
		}
		if strings.Contains(w, "'") { // contractions: don't, I'm, we're
			markers++
		}
	}
	score := float64(markers)/float64(len(words))*3 + sig.EmojiFrequency*2 + sig.LowercaseTendency*0.3
	if score > 1 {
		score = 1
	}
	return score
}

// extractPhrases collects short characteristic phrases: known fillers that
// appear at all, plus any word bigram repeated within the turn.
func extractPhrases(text string) []models.PhraseCount {
	lowered := strings.ToLower(text)
	var out []models.PhraseCount

	for _, f := range fillers {
		if n := strings.Count(lowered, f); n > 0 {
			out = append(out, models.PhraseCount{Phrase: f, Count: n})
		}
	}

	words := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
	bigrams := make(map[string]int)
	for i := 0; i+1 < len(words); i++ {
		bigrams[words[i]+" "+words[i+1]]++
	}
	repeated := make([]models.PhraseCount, 0)
	for bg, n := range bigrams {
		if n >= 2 {
			repeated = append(repeated, models.PhraseCount{Phrase: bg, Count: n})
		}
	}
	sort.Slice(repeated, func(i, j int) bool {
		if repeated[i].Count != repeated[j].Count {
			return repeated[i].Count > repeated[j].Count
		}
		return repeated[i].Phrase < repeated[j].Phrase
	})
	out = append(out, repeated...)

	if len(out) > maxPhrasesPerTurn {
		out = out[:maxPhrasesPerTurn]
	}
	return out
}
