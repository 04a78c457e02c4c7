// Package pipeline runs the ordered stage sequence against one context
// bundle. Stages are idempotent with respect to their declared inputs, so
// transient failures retry the same stage with the same bundle; fatal
// failures stop the run with the last bundle version intact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shubh-37/postpilot/internal/bundle"
	"github.com/shubh-37/postpilot/internal/generation"
	"github.com/shubh-37/postpilot/internal/models"
)

var (
	// ErrGenerationUnavailable means a stage exhausted the retry bound on
	// transient generation failures.
	ErrGenerationUnavailable = errors.New("generation unavailable")

	// ErrInvalidTransition means the operation does not apply to the
	// run's current state.
	ErrInvalidTransition = errors.New("invalid transition")
)

// Config holds the retry policy and an optional progress hook called after
// each completed stage.
type Config struct {
	MaxRetries   int
	RetryBackoff time.Duration
	OnStage      func(run *models.PipelineRun, stageName string)
}

// DefaultConfig matches the tuning the bot ships with.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, RetryBackoff: 2 * time.Second}
}

// Orchestrator advances pipeline runs through the stage list.
type Orchestrator struct {
	gen    generation.Generator
	stages []Stage
	cfg    Config
}

// NewOrchestrator creates an orchestrator over the default stage list.
func NewOrchestrator(gen generation.Generator, cfg Config) *Orchestrator {
	return &Orchestrator{gen: gen, stages: DefaultStages(), cfg: cfg}
}

// Start creates a fresh run bound to the bundle and advances it to the
// approval checkpoint (or a terminal state).
func (o *Orchestrator) Start(ctx context.Context, b *models.ContextBundle, sessionID string) (*models.PipelineRun, error) {
	run := models.NewPipelineRun(b, sessionID)
	log.Printf("🚀 pipeline run %s started (bundle %s)", run.ID, b.ID)
	err := o.Advance(ctx, run)
	return run, err
}

// Advance executes stages from the run's current position until it hits the
// approval checkpoint, finishes, or fails. The run always holds the last
// bundle version reached, whatever the outcome.
func (o *Orchestrator) Advance(ctx context.Context, run *models.PipelineRun) error {
	if run.State != models.RunRunning {
		return fmt.Errorf("%w: run is %s", ErrInvalidTransition, run.State)
	}

	for run.StageIndex < len(o.stages) {
		if ctx.Err() != nil {
			run.State = models.RunAborted
			log.Printf("🛑 pipeline run %s aborted at stage %d", run.ID, run.StageIndex)
			return fmt.Errorf("run aborted: %w", ctx.Err())
		}

		stage := o.stages[run.StageIndex]
		for _, required := range stage.Requires {
			if !run.Bundle.HasSection(required) {
				run.State = models.RunFailed
				run.FailureReason = fmt.Sprintf("stage %s: missing input section %q", stage.Name, required)
				return fmt.Errorf("%w: stage %s requires section %q", bundle.ErrSchemaViolation, stage.Name, required)
			}
		}

		text, err := o.runStage(ctx, run, stage)
		if err != nil {
			if ctx.Err() != nil {
				run.State = models.RunAborted
				log.Printf("🛑 pipeline run %s aborted during stage %s", run.ID, stage.Name)
				return fmt.Errorf("run aborted: %w", ctx.Err())
			}
			run.State = models.RunFailed
			run.FailureReason = err.Error()
			log.Printf("❌ pipeline run %s failed at stage %s: %v", run.ID, stage.Name, err)
			return err
		}

		// Cancellation during the call discards the in-flight result: the
		// section is never appended.
		if ctx.Err() != nil {
			run.State = models.RunAborted
			log.Printf("🛑 pipeline run %s aborted during stage %s", run.ID, stage.Name)
			return fmt.Errorf("run aborted: %w", ctx.Err())
		}

		payload := stage.Parse(text)
		next, err := bundle.Append(run.Bundle, stage.Name, stage.Produces, payload, stage.Fields)
		if err != nil {
			run.State = models.RunFailed
			run.FailureReason = err.Error()
			log.Printf("❌ pipeline run %s: stage %s produced invalid output: %v", run.ID, stage.Name, err)
			return err
		}

		run.Bundle = next
		run.StageIndex++
		log.Printf("✅ pipeline run %s: stage %s complete (bundle v%d)", run.ID, stage.Name, next.Version)
		if o.cfg.OnStage != nil {
			o.cfg.OnStage(run, stage.Name)
		}

		if stage.Produces == models.SectionStructureOutline {
			run.State = models.RunAwaitingUserApproval
			log.Printf("⏸ pipeline run %s awaiting structure approval", run.ID)
			return nil
		}
	}

	run.State = models.RunSucceeded
	log.Printf("🎉 pipeline run %s succeeded (bundle v%d)", run.ID, run.Bundle.Version)
	return nil
}

// Approve releases the checkpoint after the structure stage and resumes the
// remaining stages.
func (o *Orchestrator) Approve(ctx context.Context, run *models.PipelineRun) error {
	if run.State != models.RunAwaitingUserApproval {
		return fmt.Errorf("%w: run is %s", ErrInvalidTransition, run.State)
	}
	log.Printf("👍 pipeline run %s: structure approved", run.ID)
	run.State = models.RunRunning
	return o.Advance(ctx, run)
}

// Revise replaces the structure outline with user edits. It is permitted
// only while the run awaits approval and exactly once per run; the run stays
// at the checkpoint so the revised outline can still be approved.
func (o *Orchestrator) Revise(run *models.PipelineRun, payload map[string]any) error {
	if run.State != models.RunAwaitingUserApproval {
		return fmt.Errorf("%w: run is %s", ErrInvalidTransition, run.State)
	}
	if run.StructureRevised {
		return fmt.Errorf("%w: structure already revised once", ErrInvalidTransition)
	}

	next, err := bundle.Revise(run.Bundle, models.SectionStructureOutline, payload, structureFields(o.stages))
	if err != nil {
		return err
	}

	run.Bundle = next
	run.StructureRevised = true
	log.Printf("✏️ pipeline run %s: structure revised (bundle v%d)", run.ID, next.Version)
	return nil
}

// Cancel moves a non-terminal run to Aborted, preserving the bundle as-is.
func (o *Orchestrator) Cancel(run *models.PipelineRun) error {
	switch run.State {
	case models.RunSucceeded, models.RunFailed, models.RunAborted:
		return fmt.Errorf("%w: run is %s", ErrInvalidTransition, run.State)
	}
	run.State = models.RunAborted
	log.Printf("🛑 pipeline run %s cancelled", run.ID)
	return nil
}

// runStage calls the generation capability for one stage with bounded retry
// and backoff on transient failures.
func (o *Orchestrator) runStage(ctx context.Context, run *models.PipelineRun, stage Stage) (string, error) {
	req := generation.Request{Kind: stage.Kind, Bundle: run.Bundle}

	var lastErr error
	for attempt := 0; attempt <= o.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, ctx.Err())
			case <-time.After(o.cfg.RetryBackoff * time.Duration(attempt)):
			}
			log.Printf("🔁 pipeline run %s: retrying stage %s (attempt %d)", run.ID, stage.Name, attempt+1)
		}

		text, err := o.gen.Generate(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !generation.Retryable(err) {
			return "", fmt.Errorf("stage %s: %w", stage.Name, err)
		}
	}
	return "", fmt.Errorf("stage %s: %w: %v", stage.Name, ErrGenerationUnavailable, lastErr)
}
