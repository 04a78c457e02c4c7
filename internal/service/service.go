// Package service is the caller-facing API every transport adapter uses. It
// owns the session/run store, serializes mutations per entity, and retries
// optimistic-concurrency conflicts against fresh state.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shubh-37/postpilot/internal/conversation"
	"github.com/shubh-37/postpilot/internal/models"
	"github.com/shubh-37/postpilot/internal/pipeline"
	"github.com/shubh-37/postpilot/internal/store"
)

// conflictRetries bounds how often an operation is replayed against fresh
// state after a store-level version conflict.
const conflictRetries = 3

// Service wires the conversation machine and pipeline orchestrator to the
// store.
type Service struct {
	store   store.Store
	machine *conversation.Machine
	orch    *pipeline.Orchestrator
	locks   *keyedMutex
}

// New creates the service.
func New(st store.Store, machine *conversation.Machine, orch *pipeline.Orchestrator) *Service {
	return &Service{
		store:   st,
		machine: machine,
		orch:    orch,
		locks:   newKeyedMutex(),
	}
}

// StartSessionResult is what starting a session returns to the transport.
type StartSessionResult struct {
	SessionID     string
	FirstQuestion string
}

// StartSession creates a session for the initial idea and produces the
// first question. Nothing is persisted if question generation fails.
func (svc *Service) StartSession(ctx context.Context, initialIdea string) (*StartSessionResult, error) {
	if initialIdea == "" {
		return nil, fmt.Errorf("%w: initial idea required", conversation.ErrEmptyTurn)
	}

	s := models.NewSession(initialIdea)
	question, err := svc.machine.Start(ctx, s)
	if err != nil {
		return nil, err
	}

	if err := svc.store.CreateSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	log.Printf("💡 session %s started: %q", s.ID, initialIdea)
	return &StartSessionResult{SessionID: s.ID, FirstQuestion: question}, nil
}

// SubmitUserTurn advances the session by one turn. The result carries either
// the next question or, on completion, the populated context bundle.
func (svc *Service) SubmitUserTurn(ctx context.Context, sessionID, text string) (*conversation.TurnResult, error) {
	unlock := svc.locks.lock(sessionID)
	defer unlock()

	var result *conversation.TurnResult
	err := svc.withSession(ctx, sessionID, func(s *models.Session) error {
		var err error
		result, err = svc.machine.SubmitUserTurn(ctx, s, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RequestExplicitStop completes the session regardless of coverage and
// returns its context bundle.
func (svc *Service) RequestExplicitStop(ctx context.Context, sessionID string) (*models.ContextBundle, error) {
	unlock := svc.locks.lock(sessionID)
	defer unlock()

	var b *models.ContextBundle
	err := svc.withSession(ctx, sessionID, func(s *models.Session) error {
		var err error
		b, err = svc.machine.RequestStop(s)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CancelSession moves a session to Cancelled.
func (svc *Service) CancelSession(ctx context.Context, sessionID string) error {
	unlock := svc.locks.lock(sessionID)
	defer unlock()

	return svc.withSession(ctx, sessionID, func(s *models.Session) error {
		return svc.machine.Cancel(s)
	})
}

// GetSession returns the session's current snapshot.
func (svc *Service) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	return svc.store.LoadSession(ctx, sessionID)
}

// StartPipeline creates a fresh run over the bundle and drives it to the
// approval checkpoint. The run id is returned even when a stage fails: the
// run record then holds the Failed state and the last bundle version
// reached. Re-invoking with the same bundle always produces a new run.
func (svc *Service) StartPipeline(ctx context.Context, b *models.ContextBundle, sessionID string) (string, error) {
	run := models.NewPipelineRun(b.Clone(), sessionID)
	if err := svc.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("failed to persist run: %w", err)
	}

	unlock := svc.locks.lock(run.ID)
	defer unlock()

	advErr := svc.orch.Advance(ctx, run)
	if err := svc.saveRun(ctx, run); err != nil {
		return run.ID, err
	}
	return run.ID, advErr
}

// ApproveStructure releases the checkpoint and runs the remaining stages.
func (svc *Service) ApproveStructure(ctx context.Context, runID string) error {
	unlock := svc.locks.lock(runID)
	defer unlock()

	return svc.withRun(ctx, runID, func(r *models.PipelineRun) error {
		// Approve advances through content writing; the run is saved in
		// whatever state it lands in, including Failed.
		err := svc.orch.Approve(ctx, r)
		if errors.Is(err, pipeline.ErrInvalidTransition) {
			return err
		}
		if saveErr := svc.saveRun(ctx, r); saveErr != nil {
			return saveErr
		}
		if err != nil {
			return err
		}
		return errSaved
	})
}

// ReviseStructure applies one-time user edits to the structure outline.
func (svc *Service) ReviseStructure(ctx context.Context, runID string, edits map[string]any) error {
	unlock := svc.locks.lock(runID)
	defer unlock()

	return svc.withRun(ctx, runID, func(r *models.PipelineRun) error {
		return svc.orch.Revise(r, edits)
	})
}

// CancelRun aborts a run, preserving the bundle for inspection.
func (svc *Service) CancelRun(ctx context.Context, runID string) error {
	unlock := svc.locks.lock(runID)
	defer unlock()

	return svc.withRun(ctx, runID, func(r *models.PipelineRun) error {
		return svc.orch.Cancel(r)
	})
}

// GetRunStatus returns the run's state together with its latest bundle.
func (svc *Service) GetRunStatus(ctx context.Context, runID string) (*models.PipelineRun, error) {
	return svc.store.LoadRun(ctx, runID)
}

// errSaved signals withRun that the mutation already persisted itself.
var errSaved = errors.New("already saved")

// withSession loads the session, applies the mutation, and saves. A version
// conflict replays the whole operation against the reloaded state.
func (svc *Service) withSession(ctx context.Context, id string, fn func(*models.Session) error) error {
	for attempt := 0; attempt < conflictRetries; attempt++ {
		s, err := svc.store.LoadSession(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}
		err = svc.store.SaveSession(ctx, s)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		log.Printf("⚠️ session %s: save conflict, retrying against fresh state", id)
	}
	return store.ErrConflict
}

func (svc *Service) withRun(ctx context.Context, id string, fn func(*models.PipelineRun) error) error {
	for attempt := 0; attempt < conflictRetries; attempt++ {
		r, err := svc.store.LoadRun(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(r); err != nil {
			if errors.Is(err, errSaved) {
				return nil
			}
			return err
		}
		err = svc.store.SaveRun(ctx, r)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return err
		}
		log.Printf("⚠️ run %s: save conflict, retrying against fresh state", id)
	}
	return store.ErrConflict
}

func (svc *Service) saveRun(ctx context.Context, r *models.PipelineRun) error {
	if err := svc.store.SaveRun(ctx, r); err != nil {
		return fmt.Errorf("failed to persist run: %w", err)
	}
	return nil
}
