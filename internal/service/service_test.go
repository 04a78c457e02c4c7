package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubh-37/postpilot/internal/conversation"
	"github.com/shubh-37/postpilot/internal/generation"
	"github.com/shubh-37/postpilot/internal/models"
	"github.com/shubh-37/postpilot/internal/pipeline"
	"github.com/shubh-37/postpilot/internal/store"
)

// svcGen answers every prompt kind with plausible canned text and can inject
// failures for one kind.
type svcGen struct {
	mu        sync.Mutex
	failKind  generation.PromptKind
	failErr   error
	questions int
}

func (g *svcGen) setFailure(kind generation.PromptKind, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failKind = kind
	g.failErr = err
}

func (g *svcGen) Generate(ctx context.Context, req generation.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if req.Kind == g.failKind && g.failErr != nil {
		return "", g.failErr
	}

	switch req.Kind {
	case generation.PromptQuestion:
		g.questions++
		return fmt.Sprintf("question %d", g.questions), nil
	case generation.PromptBrief:
		return "TOPIC: Rest as strategy\nAUDIENCE: Founders\nKEY MESSAGES:\n1. Burnout compounds\nRESEARCH NOTES:\nSurvey data.", nil
	case generation.PromptHooks:
		return "===HOOK 1===\nStop romanticizing the grind.\n===HOOK 2===\nRest is a strategy.", nil
	case generation.PromptStructure:
		return "OUTLINE:\n1. Hook\n2. Story\n3. Takeaway", nil
	case generation.PromptContent:
		return "Stop romanticizing the grind. Rest is a strategy.", nil
	}
	return "", generation.ErrInvalid
}

func newTestService(gen generation.Generator) *Service {
	cfg := conversation.Config{
		MinQuestions: 4, MinCoverage: 4, MaxTurns: 12,
		MaxRetries: 1, RetryBackoff: time.Millisecond,
	}
	machine := conversation.NewMachine(gen, cfg)
	orch := pipeline.NewOrchestrator(gen, pipeline.Config{
		MaxRetries: 1, RetryBackoff: time.Millisecond,
	})
	return New(store.NewMemoryStore(), machine, orch)
}

// completedSession drives a session through four focus-covering turns and
// returns its id plus the completed bundle.
func completedSession(t *testing.T, svc *Service) (string, *models.ContextBundle) {
	t.Helper()
	ctx := context.Background()

	started, err := svc.StartSession(ctx, "rest makes founders more productive")
	require.NoError(t, err)

	turns := []string{
		"I want the hook to grab attention with a bold claim.",
		"My audience is startup founders who struggle with burnout.",
		"The main point is that rest makes you more productive.",
		"When I took a week off last year, my output doubled.",
	}
	var result *conversation.TurnResult
	for _, text := range turns {
		result, err = svc.SubmitUserTurn(ctx, started.SessionID, text)
		require.NoError(t, err)
	}
	require.True(t, result.Completed)
	require.NotNil(t, result.Bundle)
	return started.SessionID, result.Bundle
}

func TestStartSession_PersistsAndReturnsQuestion(t *testing.T) {
	svc := newTestService(&svcGen{})

	res, err := svc.StartSession(context.Background(), "an idea")
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.NotEmpty(t, res.FirstQuestion)

	s, err := svc.GetSession(context.Background(), res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionQuestioning, s.State)
	assert.Equal(t, int64(1), s.Version)
}

func TestStartSession_NothingPersistedOnGenerationFailure(t *testing.T) {
	gen := &svcGen{}
	gen.setFailure(generation.PromptQuestion, generation.ErrTimeout)
	svc := newTestService(gen)

	_, err := svc.StartSession(context.Background(), "an idea")
	assert.ErrorIs(t, err, conversation.ErrGenerationUnavailable)
}

func TestSubmitUserTurn_UnknownSession(t *testing.T) {
	svc := newTestService(&svcGen{})

	_, err := svc.SubmitUserTurn(context.Background(), "missing", "hello there")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBrainstormToPost_EndToEnd(t *testing.T) {
	svc := newTestService(&svcGen{})
	ctx := context.Background()

	sessionID, b := completedSession(t, svc)

	s, err := svc.GetSession(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, s.State)

	runID, err := svc.StartPipeline(ctx, b, sessionID)
	require.NoError(t, err)

	run, err := svc.GetRunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunAwaitingUserApproval, run.State)
	assert.True(t, run.Bundle.HasSection(models.SectionStructureOutline))

	require.NoError(t, svc.ReviseStructure(ctx, runID, map[string]any{
		"outline": "1. Story first\n2. Then the claim",
	}))
	assert.ErrorIs(t, svc.ReviseStructure(ctx, runID, map[string]any{
		"outline": "another edit",
	}), pipeline.ErrInvalidTransition)

	require.NoError(t, svc.ApproveStructure(ctx, runID))

	run, err = svc.GetRunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, run.State)

	content, ok := run.Bundle.Section(models.SectionFinalContent)
	require.True(t, ok)
	assert.NotEmpty(t, content.Payload["text"])

	outline, _ := run.Bundle.Section(models.SectionStructureOutline)
	assert.Equal(t, 2, outline.Revision)
}

func TestSubmitUserTurn_ConcurrentTurnsAllLand(t *testing.T) {
	svc := newTestService(&svcGen{})
	ctx := context.Background()

	started, err := svc.StartSession(ctx, "an idea")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	texts := []string{
		"thinking about tone and voice here",
		"maybe something about my experience",
	}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.SubmitUserTurn(ctx, started.SessionID, texts[i])
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	s, err := svc.GetSession(ctx, started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, 2, s.UserTurnCount(), "neither turn is lost")
	assert.Len(t, s.Turns, 5, "first question + 2 user turns + 2 questions")
}

func TestStartPipeline_FailedRunIsInspectable(t *testing.T) {
	gen := &svcGen{}
	svc := newTestService(gen)
	ctx := context.Background()

	sessionID, b := completedSession(t, svc)

	gen.setFailure(generation.PromptBrief, generation.ErrTimeout)
	failedID, err := svc.StartPipeline(ctx, b, sessionID)
	require.Error(t, err)
	require.NotEmpty(t, failedID, "run id is returned even on failure")

	failed, err := svc.GetRunStatus(ctx, failedID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, failed.State)
	assert.NotEmpty(t, failed.FailureReason)
	assert.True(t, failed.Bundle.HasSection(models.SectionStyleProfile))

	// A fresh run over the same bundle is independent of the failed one.
	gen.setFailure("", nil)
	freshID, err := svc.StartPipeline(ctx, b, sessionID)
	require.NoError(t, err)
	assert.NotEqual(t, failedID, freshID)

	fresh, err := svc.GetRunStatus(ctx, freshID)
	require.NoError(t, err)
	assert.Equal(t, models.RunAwaitingUserApproval, fresh.State)

	failed, err = svc.GetRunStatus(ctx, failedID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, failed.State)
}

func TestApproveStructure_FailureStatePersists(t *testing.T) {
	gen := &svcGen{}
	svc := newTestService(gen)
	ctx := context.Background()

	sessionID, b := completedSession(t, svc)
	runID, err := svc.StartPipeline(ctx, b, sessionID)
	require.NoError(t, err)

	gen.setFailure(generation.PromptContent, generation.ErrTimeout)
	err = svc.ApproveStructure(ctx, runID)
	require.Error(t, err)

	run, loadErr := svc.GetRunStatus(ctx, runID)
	require.NoError(t, loadErr)
	assert.Equal(t, models.RunFailed, run.State)
}

func TestRequestExplicitStop(t *testing.T) {
	svc := newTestService(&svcGen{})
	ctx := context.Background()

	started, err := svc.StartSession(ctx, "an idea")
	require.NoError(t, err)

	b, err := svc.RequestExplicitStop(ctx, started.SessionID)
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, b.HasSection(models.SectionStyleProfile))

	s, err := svc.GetSession(ctx, started.SessionID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, s.State)
}

func TestCancelSession(t *testing.T) {
	svc := newTestService(&svcGen{})
	ctx := context.Background()

	started, err := svc.StartSession(ctx, "an idea")
	require.NoError(t, err)

	require.NoError(t, svc.CancelSession(ctx, started.SessionID))

	_, err = svc.SubmitUserTurn(ctx, started.SessionID, "too late now")
	assert.ErrorIs(t, err, conversation.ErrInvalidTransition)
}

func TestCancelRun(t *testing.T) {
	svc := newTestService(&svcGen{})
	ctx := context.Background()

	sessionID, b := completedSession(t, svc)
	runID, err := svc.StartPipeline(ctx, b, sessionID)
	require.NoError(t, err)

	require.NoError(t, svc.CancelRun(ctx, runID))

	run, err := svc.GetRunStatus(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunAborted, run.State)

	assert.ErrorIs(t, svc.ApproveStructure(ctx, runID), pipeline.ErrInvalidTransition)
}
