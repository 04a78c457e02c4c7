package models

import (
	"time"

	"github.com/google/uuid"
)

// SessionState tracks where a brainstorming session is in its lifecycle.
type SessionState string

const (
	SessionInitiated    SessionState = "initiated"
	SessionQuestioning  SessionState = "questioning"
	SessionAwaitingStop SessionState = "awaiting_explicit_stop"
	SessionCompleted    SessionState = "completed"
	SessionCancelled    SessionState = "cancelled"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one utterance in a session. Turns are append-only; Index is the
// monotonically increasing position used for replay.
type Turn struct {
	Index     int       `json:"index"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FocusArea is one of the fixed topics the brainstorming dialogue must probe.
type FocusArea string

const (
	FocusHookPreference        FocusArea = "hook_preference"
	FocusAudienceAndPainPoints FocusArea = "audience_and_pain_points"
	FocusUniqueAngle           FocusArea = "unique_angle"
	FocusKeyMessage            FocusArea = "key_message"
	FocusPersonalStory         FocusArea = "personal_story"
	FocusSupportingData        FocusArea = "supporting_data"
	FocusStylePreference       FocusArea = "style_preference"
)

// AllFocusAreas returns the fixed enumeration in priority order. Uncovered
// areas are probed in this order.
func AllFocusAreas() []FocusArea {
	return []FocusArea{
		FocusHookPreference,
		FocusAudienceAndPainPoints,
		FocusUniqueAngle,
		FocusKeyMessage,
		FocusPersonalStory,
		FocusSupportingData,
		FocusStylePreference,
	}
}

// Session represents one user's brainstorming interaction.
type Session struct {
	ID                string             `json:"id"`
	InitialIdea       string             `json:"initial_idea"`
	Turns             []Turn             `json:"turns"`
	CoveredFocusAreas map[FocusArea]bool `json:"covered_focus_areas"`
	StyleProfile      *StyleProfile      `json:"style_profile"`
	State             SessionState       `json:"state"`
	Version           int64              `json:"version"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// NewSession creates a session seeded with the initial idea.
func NewSession(initialIdea string) *Session {
	return &Session{
		ID:                uuid.New().String(),
		InitialIdea:       initialIdea,
		Turns:             []Turn{},
		CoveredFocusAreas: make(map[FocusArea]bool),
		StyleProfile:      NewStyleProfile(),
		State:             SessionInitiated,
		CreatedAt:         time.Now(),
	}
}

// Clone returns a deep copy. The style profile pointer is shared because
// profiles are replaced, never mutated in place.
func (s *Session) Clone() *Session {
	c := *s
	c.Turns = make([]Turn, len(s.Turns))
	copy(c.Turns, s.Turns)
	c.CoveredFocusAreas = make(map[FocusArea]bool, len(s.CoveredFocusAreas))
	for k, v := range s.CoveredFocusAreas {
		c.CoveredFocusAreas[k] = v
	}
	return &c
}

// Covered returns the covered focus areas in priority order.
func (s *Session) Covered() []FocusArea {
	var out []FocusArea
	for _, fa := range AllFocusAreas() {
		if s.CoveredFocusAreas[fa] {
			out = append(out, fa)
		}
	}
	return out
}

// Uncovered returns the focus areas not yet addressed, in priority order.
func (s *Session) Uncovered() []FocusArea {
	var out []FocusArea
	for _, fa := range AllFocusAreas() {
		if !s.CoveredFocusAreas[fa] {
			out = append(out, fa)
		}
	}
	return out
}

// UserTurnCount counts turns spoken by the user.
func (s *Session) UserTurnCount() int {
	n := 0
	for _, t := range s.Turns {
		if t.Speaker == SpeakerUser {
			n++
		}
	}
	return n
}

// NextTurnIndex is the index the next appended turn will receive.
func (s *Session) NextTurnIndex() int {
	return len(s.Turns)
}
