// Package bundle enforces the handoff contract between pipeline stages.
// Bundles are immutable snapshots: Append and Revise return a new bundle and
// callers must act on the latest returned value.
package bundle

import (
	"errors"
	"fmt"
	"time"

	"github.com/shubh-37/postpilot/internal/models"
)

var (
	// ErrSchemaViolation means a stage payload is missing a required field
	// or attempted to write a section that already exists.
	ErrSchemaViolation = errors.New("schema violation")

	// ErrInvalidRevision means a revision was attempted on a section that
	// is not the one-time-revisable structure outline.
	ErrInvalidRevision = errors.New("invalid revision")
)

// Append adds a named section produced by stageName. It fails with
// ErrSchemaViolation if the payload is missing any required field or if the
// section already exists; sections are never silently overwritten.
func Append(b *models.ContextBundle, stageName, sectionName string, payload map[string]any, required []string) (*models.ContextBundle, error) {
	if b.HasSection(sectionName) {
		return nil, fmt.Errorf("%w: section %q already written", ErrSchemaViolation, sectionName)
	}
	if err := validate(payload, required); err != nil {
		return nil, fmt.Errorf("stage %s: %w", stageName, err)
	}

	next := b.Clone()
	next.Version++
	next.Sections = append(next.Sections, models.BundleSection{
		Name:      sectionName,
		Stage:     stageName,
		Payload:   payload,
		CreatedAt: time.Now(),
		Revision:  1,
	})
	return next, nil
}

// Revise replaces the structure-outline section with an edited payload. Only
// that section is revisable; the once-per-run and run-state constraints are
// enforced by the orchestrator, which owns the run.
func Revise(b *models.ContextBundle, stageName string, payload map[string]any, required []string) (*models.ContextBundle, error) {
	if stageName != models.SectionStructureOutline {
		return nil, fmt.Errorf("%w: section %q is not revisable", ErrInvalidRevision, stageName)
	}
	if !b.HasSection(models.SectionStructureOutline) {
		return nil, fmt.Errorf("%w: no structure outline to revise", ErrInvalidRevision)
	}
	if err := validate(payload, required); err != nil {
		return nil, err
	}

	next := b.Clone()
	next.Version++
	for i := range next.Sections {
		if next.Sections[i].Name == models.SectionStructureOutline {
			next.Sections[i].Payload = payload
			next.Sections[i].CreatedAt = time.Now()
			next.Sections[i].Revision++
		}
	}
	return next, nil
}

func validate(payload map[string]any, required []string) error {
	for _, field := range required {
		v, ok := payload[field]
		if !ok {
			return fmt.Errorf("%w: missing field %q", ErrSchemaViolation, field)
		}
		switch val := v.(type) {
		case string:
			if val == "" {
				return fmt.Errorf("%w: empty field %q", ErrSchemaViolation, field)
			}
		case []string:
			if len(val) == 0 {
				return fmt.Errorf("%w: empty field %q", ErrSchemaViolation, field)
			}
		case []any:
			if len(val) == 0 {
				return fmt.Errorf("%w: empty field %q", ErrSchemaViolation, field)
			}
		case nil:
			return fmt.Errorf("%w: nil field %q", ErrSchemaViolation, field)
		}
	}
	return nil
}
