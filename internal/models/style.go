package models

// PhraseCount is a characteristic phrase with its observed frequency.
type PhraseCount struct {
	Phrase string `json:"phrase"`
	Count  int    `json:"count"`
}

// StyleProfile is the inferred summary of a user's writing voice. It is
// created empty at session start and replaced (never mutated in place) after
// every user turn, so concurrent readers always see a consistent snapshot.
type StyleProfile struct {
	TurnsSeen          int           `json:"turns_seen"`
	AvgSentenceLength  float64       `json:"avg_sentence_length"` // words per sentence
	Casualness         float64       `json:"casualness"`          // 0 formal .. 1 casual
	ExclamationDensity float64       `json:"exclamation_density"` // per sentence
	EllipsisDensity    float64       `json:"ellipsis_density"`
	QuestionDensity    float64       `json:"question_density"`
	EmojiFrequency     float64       `json:"emoji_frequency"` // per word
	LowercaseTendency  float64       `json:"lowercase_tendency"`
	ListPreference     float64       `json:"list_preference"` // fraction of lines that are list items
	Phrases            []PhraseCount `json:"phrases"`         // most frequent first, bounded
}

// NewStyleProfile returns the empty profile used at session start.
func NewStyleProfile() *StyleProfile {
	return &StyleProfile{Phrases: []PhraseCount{}}
}

// TopPhrases returns up to n characteristic phrases, most frequent first.
func (p *StyleProfile) TopPhrases(n int) []string {
	if n > len(p.Phrases) {
		n = len(p.Phrases)
	}
	out := make([]string, 0, n)
	for _, pc := range p.Phrases[:n] {
		out = append(out, pc.Phrase)
	}
	return out
}
