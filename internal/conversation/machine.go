// Package conversation drives one brainstorming session from Initiated to
// Completed or Cancelled. The machine is cooperative: it advances only when
// a user turn or cancellation arrives, and every mutation is committed
// atomically: a failed generation call leaves the session untouched and
// resumable.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shubh-37/postpilot/internal/bundle"
	"github.com/shubh-37/postpilot/internal/generation"
	"github.com/shubh-37/postpilot/internal/models"
	"github.com/shubh-37/postpilot/internal/style"
)

var (
	// ErrGenerationUnavailable means the generation capability failed past
	// the retry bound. The session is left exactly as it was.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrInvalidTransition means the operation does not apply to the
	// session's current state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrEmptyTurn rejects blank user input.
	ErrEmptyTurn = errors.New("empty turn text")
)

// stopPhrases end the session regardless of coverage when a user turn
// matches one after normalization.
var stopPhrases = map[string]bool{
	"done": true, "stop": true, "enough": true, "that's enough": true,
	"thats enough": true, "i'm done": true, "im done": true,
	"let's stop": true, "lets stop": true, "finish": true,
	"wrap it up": true, "no more questions": true,
}

// IsStopSignal reports whether a user turn is an explicit stop instruction.
func IsStopSignal(text string) bool {
	normalized := strings.ToLower(strings.TrimSpace(text))
	normalized = strings.TrimRight(normalized, ".!?")
	return stopPhrases[normalized]
}

// Config holds the completion thresholds and retry policy.
type Config struct {
	MinQuestions int // minimum user turns before coverage can complete a session
	MinCoverage  int // minimum covered focus areas
	MaxTurns     int // hard bound on user turns; forces completion
	MaxRetries   int // generation retry bound
	RetryBackoff time.Duration
}

// DefaultConfig matches the tuning the bot ships with.
func DefaultConfig() Config {
	return Config{
		MinQuestions: 4,
		MinCoverage:  4,
		MaxTurns:     12,
		MaxRetries:   3,
		RetryBackoff: 2 * time.Second,
	}
}

// Machine runs sessions against a generation capability.
type Machine struct {
	gen generation.Generator
	cfg Config
}

// NewMachine creates a conversation machine.
func NewMachine(gen generation.Generator, cfg Config) *Machine {
	return &Machine{gen: gen, cfg: cfg}
}

// TurnResult is what a submitted turn produced: either the next question or
// a completed session's context bundle.
type TurnResult struct {
	NextQuestion string
	Completed    bool
	Bundle       *models.ContextBundle
}

// Start produces the first question and moves the session to Questioning.
func (m *Machine) Start(ctx context.Context, s *models.Session) (string, error) {
	if s.State != models.SessionInitiated {
		return "", fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.State)
	}

	question, err := m.generateQuestion(ctx, s, s.Uncovered())
	if err != nil {
		return "", err
	}

	s.Turns = append(s.Turns, models.Turn{
		Index:     s.NextTurnIndex(),
		Speaker:   models.SpeakerAssistant,
		Text:      question,
		Timestamp: time.Now(),
	})
	m.logTransition(s, models.SessionInitiated, models.SessionQuestioning)
	s.State = models.SessionQuestioning
	return question, nil
}

// SubmitUserTurn appends a user turn, folds it into the style profile and
// coverage set, and either asks the next question or completes the session.
// All effects are computed on a working copy and committed only when the
// whole step succeeds, so a generation failure never mutates the session.
func (m *Machine) SubmitUserTurn(ctx context.Context, s *models.Session, text string) (*TurnResult, error) {
	if s.State != models.SessionQuestioning && s.State != models.SessionAwaitingStop {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.State)
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyTurn
	}

	work := s.Clone()
	userTurns := work.UserTurnCount() + 1
	work.Turns = append(work.Turns, models.Turn{
		Index:     work.NextTurnIndex(),
		Speaker:   models.SpeakerUser,
		Text:      text,
		Timestamp: time.Now(),
	})
	work.StyleProfile = style.Merge(work.StyleProfile, style.Extract(text), userTurns)
	for _, fa := range MatchFocusAreas(text) {
		work.CoveredFocusAreas[fa] = true
	}

	stop := IsStopSignal(text) || s.State == models.SessionAwaitingStop
	coverageMet := len(work.Covered()) >= m.cfg.MinCoverage && userTurns >= m.cfg.MinQuestions
	turnBoundHit := userTurns >= m.cfg.MaxTurns

	if stop || coverageMet || turnBoundHit {
		work.State = models.SessionCompleted
		b, err := m.buildBundle(work)
		if err != nil {
			return nil, err
		}
		m.logTransition(work, s.State, models.SessionCompleted)
		*s = *work
		return &TurnResult{Completed: true, Bundle: b}, nil
	}

	uncovered := work.Uncovered()
	nextState := models.SessionQuestioning
	if len(uncovered) == 0 {
		// Everything is covered but the turn minimum is not met: nothing
		// left to probe, so ask one closing question and complete on
		// whatever comes back.
		nextState = models.SessionAwaitingStop
	}

	question, err := m.generateQuestion(ctx, work, uncovered)
	if err != nil {
		return nil, err
	}

	work.Turns = append(work.Turns, models.Turn{
		Index:     work.NextTurnIndex(),
		Speaker:   models.SpeakerAssistant,
		Text:      question,
		Timestamp: time.Now(),
	})
	m.logTransition(work, s.State, nextState)
	work.State = nextState
	*s = *work
	return &TurnResult{NextQuestion: question}, nil
}

// RequestStop completes the session on an explicit out-of-band stop (the
// caller API, as opposed to a stop phrase typed as a turn). The stop is
// recorded as a user turn so the completion invariant stays auditable.
func (m *Machine) RequestStop(s *models.Session) (*models.ContextBundle, error) {
	if s.State != models.SessionQuestioning && s.State != models.SessionAwaitingStop {
		return nil, fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.State)
	}

	work := s.Clone()
	work.Turns = append(work.Turns, models.Turn{
		Index:     work.NextTurnIndex(),
		Speaker:   models.SpeakerUser,
		Text:      "stop",
		Timestamp: time.Now(),
	})
	work.State = models.SessionCompleted
	b, err := m.buildBundle(work)
	if err != nil {
		return nil, err
	}
	m.logTransition(work, s.State, models.SessionCompleted)
	*s = *work
	return b, nil
}

// Cancel moves a non-terminal session to Cancelled.
func (m *Machine) Cancel(s *models.Session) error {
	if s.State == models.SessionCompleted || s.State == models.SessionCancelled {
		return fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.State)
	}
	m.logTransition(s, s.State, models.SessionCancelled)
	s.State = models.SessionCancelled
	return nil
}

// buildBundle seeds the context bundle a completed session hands to the
// pipeline: the raw transcript plus the styleProfile section.
func (m *Machine) buildBundle(s *models.Session) (*models.ContextBundle, error) {
	b := models.NewContextBundle(s.InitialIdea, s.Turns)
	payload := map[string]any{
		"description": generation.StyleDescription(s.StyleProfile),
		"phrases":     s.StyleProfile.TopPhrases(6),
		"turns_seen":  s.StyleProfile.TurnsSeen,
	}
	b, err := bundle.Append(b, "brainstorm-conversation", models.SectionStyleProfile, payload, []string{"description"})
	if err != nil {
		return nil, fmt.Errorf("failed to seed bundle: %w", err)
	}
	return b, nil
}

// generateQuestion calls the generation capability with bounded retry and
// backoff. Only transient failures are retried; cancellation is observed
// between attempts.
func (m *Machine) generateQuestion(ctx context.Context, s *models.Session, uncovered []models.FocusArea) (string, error) {
	req := generation.Request{
		Kind:      generation.PromptQuestion,
		Session:   s,
		Uncovered: uncovered,
	}

	var lastErr error
	for attempt := 0; attempt <= m.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, ctx.Err())
			case <-time.After(m.cfg.RetryBackoff * time.Duration(attempt)):
			}
			log.Printf("🔁 session %s: retrying question generation (attempt %d)", s.ID, attempt+1)
		}

		text, err := m.gen.Generate(ctx, req)
		if err == nil {
			return strings.TrimSpace(text), nil
		}
		lastErr = err
		if !generation.Retryable(err) {
			break
		}
	}
	return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, lastErr)
}

func (m *Machine) logTransition(s *models.Session, from, to models.SessionState) {
	log.Printf("🧭 session %s turn %d: %s → %s (covered %d/%d)",
		s.ID, s.NextTurnIndex(), from, to, len(s.Covered()), len(models.AllFocusAreas()))
}
