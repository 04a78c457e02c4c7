// Package generation wraps the external text-generation capability. The
// rest of the system treats it as an opaque, fallible call: prompt+context
// in, text out.
package generation

import (
	"context"
	"errors"

	"github.com/shubh-37/postpilot/internal/models"
)

// PromptKind selects which prompt a request should use.
type PromptKind string

const (
	PromptQuestion  PromptKind = "question"
	PromptBrief     PromptKind = "brief"
	PromptHooks     PromptKind = "hooks"
	PromptStructure PromptKind = "structure"
	PromptContent   PromptKind = "content"
)

// Generation failure taxonomy. Timeout and RateLimited are transient and
// safe to retry; Invalid is not.
var (
	ErrTimeout     = errors.New("generation timeout")
	ErrRateLimited = errors.New("generation rate limited")
	ErrInvalid     = errors.New("generation request invalid")
)

// Retryable reports whether a generation error is transient.
func Retryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited)
}

// Request carries the context a prompt kind needs. Question requests use the
// session and the uncovered focus areas; stage requests use the bundle.
type Request struct {
	Kind      PromptKind
	Session   *models.Session
	Uncovered []models.FocusArea
	Bundle    *models.ContextBundle
}

// Generator is the opaque generation capability. Implementations must honor
// ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}
