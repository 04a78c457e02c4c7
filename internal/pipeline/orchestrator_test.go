package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shubh-37/postpilot/internal/bundle"
	"github.com/shubh-37/postpilot/internal/generation"
	"github.com/shubh-37/postpilot/internal/models"
)

const (
	briefResponse = `TOPIC: Rest as a productivity strategy
AUDIENCE: Startup founders running on fumes
KEY MESSAGES:
1. Burnout compounds quietly
2. Recovery is a skill, not a reward
RESEARCH NOTES:
Founder survey data on working hours.`

	hooksResponse = `===HOOK 1===
Stop romanticizing the grind.
===HOOK 2===
I took a week off and shipped more than ever.
===HOOK 3===
Rest is a strategy, not a reward.`

	structureResponse = `OUTLINE:
1. Hook with the contrarian claim
2. Personal story
3. The data
4. Takeaway and CTA`

	contentResponse = `Stop romanticizing the grind.

Last year I took a full week off and my output doubled.

Rest is a strategy. Treat it like one.`
)

// stageGen answers each prompt kind with a canned response and can inject
// failures for one kind.
type stageGen struct {
	failKind  generation.PromptKind
	failErr   error
	failCount int
	calls     map[generation.PromptKind]int
}

func newStageGen() *stageGen {
	return &stageGen{calls: make(map[generation.PromptKind]int)}
}

func (g *stageGen) Generate(ctx context.Context, req generation.Request) (string, error) {
	g.calls[req.Kind]++
	if req.Kind == g.failKind && g.failCount != 0 {
		if g.failCount > 0 {
			g.failCount--
		}
		return "", g.failErr
	}
	switch req.Kind {
	case generation.PromptBrief:
		return briefResponse, nil
	case generation.PromptHooks:
		return hooksResponse, nil
	case generation.PromptStructure:
		return structureResponse, nil
	case generation.PromptContent:
		return contentResponse, nil
	}
	return "", generation.ErrInvalid
}

func testPipelineConfig() Config {
	return Config{MaxRetries: 2, RetryBackoff: time.Millisecond}
}

// seedBundle builds what a completed brainstorm session hands to the pipeline.
func seedBundle(t *testing.T) *models.ContextBundle {
	t.Helper()
	b := models.NewContextBundle("rest and productivity", []models.Turn{
		{Index: 0, Speaker: models.SpeakerAssistant, Text: "What's the idea?"},
		{Index: 1, Speaker: models.SpeakerUser, Text: "Rest makes founders more productive."},
	})
	b, err := bundle.Append(b, "brainstorm-conversation", models.SectionStyleProfile,
		map[string]any{"description": "casual, short sentences", "turns_seen": 4},
		[]string{"description"})
	require.NoError(t, err)
	return b
}

func TestStart_RunsToApprovalCheckpoint(t *testing.T) {
	o := NewOrchestrator(newStageGen(), testPipelineConfig())

	run, err := o.Start(context.Background(), seedBundle(t), "sess-1")
	require.NoError(t, err)

	assert.Equal(t, models.RunAwaitingUserApproval, run.State)
	assert.Equal(t, 3, run.StageIndex)
	assert.True(t, run.Bundle.HasSection(models.SectionBrief))
	assert.True(t, run.Bundle.HasSection(models.SectionHookOptions))
	assert.True(t, run.Bundle.HasSection(models.SectionStructureOutline))
	assert.False(t, run.Bundle.HasSection(models.SectionFinalContent))

	brief, _ := run.Bundle.Section(models.SectionBrief)
	assert.Equal(t, "Rest as a productivity strategy", brief.Payload["topic"])
	assert.Len(t, brief.Payload["key_messages"], 2)

	hooks, _ := run.Bundle.Section(models.SectionHookOptions)
	assert.Len(t, hooks.Payload["options"], 3)
}

func TestApprove_FinishesRun(t *testing.T) {
	o := NewOrchestrator(newStageGen(), testPipelineConfig())
	run, err := o.Start(context.Background(), seedBundle(t), "sess-1")
	require.NoError(t, err)

	require.NoError(t, o.Approve(context.Background(), run))

	assert.Equal(t, models.RunSucceeded, run.State)
	content, ok := run.Bundle.Section(models.SectionFinalContent)
	require.True(t, ok)
	assert.Contains(t, content.Payload["text"], "Rest is a strategy")
}

func TestApprove_RejectsWrongState(t *testing.T) {
	o := NewOrchestrator(newStageGen(), testPipelineConfig())
	run, err := o.Start(context.Background(), seedBundle(t), "sess-1")
	require.NoError(t, err)
	require.NoError(t, o.Approve(context.Background(), run))

	assert.ErrorIs(t, o.Approve(context.Background(), run), ErrInvalidTransition)
}

func TestOnStage_FiresPerCompletedStage(t *testing.T) {
	var seen []string
	cfg := testPipelineConfig()
	cfg.OnStage = func(run *models.PipelineRun, stageName string) {
		seen = append(seen, stageName)
	}
	o := NewOrchestrator(newStageGen(), cfg)

	run, err := o.Start(context.Background(), seedBundle(t), "sess-1")
	require.NoError(t, err)
	require.NoError(t, o.Approve(context.Background(), run))

	assert.Equal(t, []string{StageBrainstorm, StageHook, StageStructure, StageContentWriting}, seen)
}

func TestStart_TransientFailureRecovered(t *testing.T) {
	gen := newStageGen()
	gen.failKind = generation.PromptHooks
	gen.failErr = generation.ErrRateLimited
	gen.failCount = 2
	o := NewOrchestrator(gen, testPipelineConfig())

	run, err := o.Start(context.Background(), seedBundle(t), "sess-1")
	require.NoError(t, err)

	assert.Equal(t, models.RunAwaitingUserApproval, run.State)
	assert.Equal(t, 3, gen.calls[generation.PromptHooks])
}

func TestStart_RetryBoundExhaustedPreservesBundle(t *testing.T) {
	gen := newStageGen()
	gen.failKind = generation.PromptHooks
	gen.failErr = generation.ErrTimeout
	gen.failCount = -1
	o := NewOrchestrator(gen, testPipelineConfig())

	run, err := o.Start(context.Background(), seedBundle(t), "sess-1")
	require.ErrorIs(t, err, ErrGenerationUnavailable)

	assert.Equal(t, models.RunFailed, run.State)
	assert.NotEmpty(t, run.FailureReason)
	// The brief stage completed before the failure and stays in the bundle.
	assert.True(t, run.Bundle.HasSection(models.SectionBrief))
	assert.Equal(t, 1, run.StageIndex)
}

func TestStart_SchemaViolationIsNotRetried(t *testing.T) {
	gen := newStageGen()
	gen.failKind = generation.PromptHooks
	gen.failErr = generation.ErrInvalid
	gen.failCount = -1
	o := NewOrchestrator(gen, testPipelineConfig())

	run, err := o.Start(context.Background(), seedBundle(t), "sess-1")
	require.ErrorIs(t, err, generation.ErrInvalid)

	assert.Equal(t, models.RunFailed, run.State)
	assert.Equal(t, 1, gen.calls[generation.PromptHooks], "fatal errors fail fast")
}

func TestStart_MissingInputSectionFails(t *testing.T) {
	o := NewOrchestrator(newStageGen(), testPipelineConfig())

	bare := models.NewContextBundle("rest and productivity", nil)
	run, err := o.Start(context.Background(), bare, "sess-1")

	require.ErrorIs(t, err, bundle.ErrSchemaViolation)
	assert.Equal(t, models.RunFailed, run.State)
	assert.Contains(t, run.FailureReason, models.SectionStyleProfile)
}

func TestStart_UnparseableOutputIsSchemaViolation(t *testing.T) {
	gen := newStageGen()
	o := NewOrchestrator(&malformedHookGen{inner: gen}, testPipelineConfig())

	run, err := o.Start(context.Background(), seedBundle(t), "sess-1")
	require.ErrorIs(t, err, bundle.ErrSchemaViolation)
	assert.Equal(t, models.RunFailed, run.State)
}

// malformedHookGen answers the hook stage with text carrying no hook markers.
type malformedHookGen struct {
	inner generation.Generator
}

func (g *malformedHookGen) Generate(ctx context.Context, req generation.Request) (string, error) {
	if req.Kind == generation.PromptHooks {
		return "here are some ideas without the expected format", nil
	}
	return g.inner.Generate(ctx, req)
}

func TestStart_FreshRunAfterFailure(t *testing.T) {
	seed := seedBundle(t)

	gen := newStageGen()
	gen.failKind = generation.PromptBrief
	gen.failErr = generation.ErrTimeout
	gen.failCount = -1
	failed, err := NewOrchestrator(gen, testPipelineConfig()).Start(context.Background(), seed, "sess-1")
	require.Error(t, err)
	require.Equal(t, models.RunFailed, failed.State)

	// The seed bundle is untouched, so a fresh run over it works once
	// generation recovers, and the failed run keeps its record.
	fresh, err := NewOrchestrator(newStageGen(), testPipelineConfig()).Start(context.Background(), seed, "sess-1")
	require.NoError(t, err)

	assert.NotEqual(t, failed.ID, fresh.ID)
	assert.Equal(t, models.RunAwaitingUserApproval, fresh.State)
	assert.Equal(t, models.RunFailed, failed.State)
	assert.Len(t, seed.Sections, 1)
}

func TestRevise_OncePerRun(t *testing.T) {
	o := NewOrchestrator(newStageGen(), testPipelineConfig())
	run, err := o.Start(context.Background(), seedBundle(t), "sess-1")
	require.NoError(t, err)
	before := run.Bundle.Version

	err = o.Revise(run, map[string]any{"outline": "1. Story first\n2. Then the claim"})
	require.NoError(t, err)

	assert.True(t, run.StructureRevised)
	assert.Equal(t, before+1, run.Bundle.Version)
	section, _ := run.Bundle.Section(models.SectionStructureOutline)
	assert.Equal(t, 2, section.Revision)
	assert.Equal(t, "1. Story first\n2. Then the claim", section.Payload["outline"])

	err = o.Revise(run, map[string]any{"outline": "another edit"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The revised outline can still be approved.
	require.NoError(t, o.Approve(context.Background(), run))
	assert.Equal(t, models.RunSucceeded, run.State)
}

func TestRevise_RejectedOutsideCheckpoint(t *testing.T) {
	o := NewOrchestrator(newStageGen(), testPipelineConfig())

	run := models.NewPipelineRun(seedBundle(t), "sess-1")
	err := o.Revise(run, map[string]any{"outline": "whatever"})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRevise_InvalidPayloadDoesNotConsumeRevision(t *testing.T) {
	o := NewOrchestrator(newStageGen(), testPipelineConfig())
	run, err := o.Start(context.Background(), seedBundle(t), "sess-1")
	require.NoError(t, err)

	err = o.Revise(run, map[string]any{"outline": ""})
	require.ErrorIs(t, err, bundle.ErrSchemaViolation)
	assert.False(t, run.StructureRevised)

	require.NoError(t, o.Revise(run, map[string]any{"outline": "1. fixed"}))
}

func TestCancel_AbortsAndPreservesBundle(t *testing.T) {
	o := NewOrchestrator(newStageGen(), testPipelineConfig())
	run, err := o.Start(context.Background(), seedBundle(t), "sess-1")
	require.NoError(t, err)
	version := run.Bundle.Version

	require.NoError(t, o.Cancel(run))
	assert.Equal(t, models.RunAborted, run.State)
	assert.Equal(t, version, run.Bundle.Version)

	assert.ErrorIs(t, o.Cancel(run), ErrInvalidTransition)
}

// cancelDuringGen cancels the context while a chosen stage's generation call
// is in flight, then lets the call return successfully.
type cancelDuringGen struct {
	inner  generation.Generator
	kind   generation.PromptKind
	cancel context.CancelFunc
}

func (g *cancelDuringGen) Generate(ctx context.Context, req generation.Request) (string, error) {
	if req.Kind == g.kind {
		g.cancel()
	}
	return g.inner.Generate(ctx, req)
}

func TestAdvance_CancellationDiscardsInFlightResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &cancelDuringGen{inner: newStageGen(), kind: generation.PromptHooks, cancel: cancel}
	o := NewOrchestrator(gen, testPipelineConfig())

	run, err := o.Start(ctx, seedBundle(t), "sess-1")
	require.Error(t, err)

	assert.Equal(t, models.RunAborted, run.State)
	assert.True(t, run.Bundle.HasSection(models.SectionBrief))
	assert.False(t, run.Bundle.HasSection(models.SectionHookOptions),
		"the hook result arrived after cancellation and must be dropped")
	assert.Equal(t, 1, run.StageIndex)
}

func TestAdvance_ContextCancellationAborts(t *testing.T) {
	o := NewOrchestrator(newStageGen(), testPipelineConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := o.Start(ctx, seedBundle(t), "sess-1")
	require.Error(t, err)
	assert.Equal(t, models.RunAborted, run.State)
	assert.Equal(t, 0, run.StageIndex)
}
