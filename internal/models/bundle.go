package models

import (
	"time"

	"github.com/google/uuid"
)

// Section names a pipeline stage may contribute to a bundle.
const (
	SectionBrief            = "brief"
	SectionStyleProfile     = "styleProfile"
	SectionHookOptions      = "hookOptions"
	SectionStructureOutline = "structureOutline"
	SectionFinalContent     = "finalContent"
)

// BundleSection is one named contribution to a ContextBundle. Every section
// records the stage that produced it and when, so a bundle can be audited
// and replayed.
type BundleSection struct {
	Name      string         `json:"name"`
	Stage     string         `json:"stage"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
	Revision  int            `json:"revision"`
}

// ContextBundle is the versioned, append-only ledger handed between pipeline
// stages. Bundles are treated as immutable snapshots: the handoff protocol in
// internal/bundle always returns a new bundle and callers act on the latest
// returned value.
type ContextBundle struct {
	ID         string          `json:"id"`
	Topic      string          `json:"topic"`
	Transcript []Turn          `json:"transcript"` // raw session turns, consumed by the brainstorm stage
	Version    int             `json:"version"`
	Sections   []BundleSection `json:"sections"`
}

// NewContextBundle creates an empty bundle for a topic.
func NewContextBundle(topic string, transcript []Turn) *ContextBundle {
	return &ContextBundle{
		ID:         uuid.New().String(),
		Topic:      topic,
		Transcript: transcript,
		Version:    1,
		Sections:   []BundleSection{},
	}
}

// Section looks up a section by name.
func (b *ContextBundle) Section(name string) (BundleSection, bool) {
	for _, s := range b.Sections {
		if s.Name == name {
			return s, true
		}
	}
	return BundleSection{}, false
}

// HasSection reports whether a section exists.
func (b *ContextBundle) HasSection(name string) bool {
	_, ok := b.Section(name)
	return ok
}

// Clone returns a deep copy of the bundle.
func (b *ContextBundle) Clone() *ContextBundle {
	c := *b
	c.Transcript = make([]Turn, len(b.Transcript))
	copy(c.Transcript, b.Transcript)
	c.Sections = make([]BundleSection, len(b.Sections))
	for i, s := range b.Sections {
		sc := s
		sc.Payload = make(map[string]any, len(s.Payload))
		for k, v := range s.Payload {
			sc.Payload[k] = v
		}
		c.Sections[i] = sc
	}
	return &c
}
