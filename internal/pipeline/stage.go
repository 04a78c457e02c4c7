package pipeline

import (
	"github.com/shubh-37/postpilot/internal/generation"
	"github.com/shubh-37/postpilot/internal/models"
)

// Stage names in execution order.
const (
	StageBrainstorm     = "brainstorm"
	StageHook           = "hook"
	StageStructure      = "structure"
	StageContentWriting = "content_writing"
)

// Stage describes one pipeline step as data: what sections it needs, what
// section it produces, and the fields that section must carry. The
// orchestrator walks the list; adding or reordering stages does not touch
// its logic.
type Stage struct {
	Name     string
	Kind     generation.PromptKind
	Requires []string // sections that must already exist in the bundle
	Produces string   // section this stage appends
	Fields   []string // required payload fields of the produced section
	Parse    func(string) map[string]any
}

// DefaultStages is the ordered stage list for a post-creation run. The
// brainstorm stage distills the session transcript into the brief; the
// structure stage is followed by the user-approval checkpoint.
func DefaultStages() []Stage {
	return []Stage{
		{
			Name:     StageBrainstorm,
			Kind:     generation.PromptBrief,
			Requires: []string{models.SectionStyleProfile},
			Produces: models.SectionBrief,
			Fields:   []string{"topic", "audience", "key_messages", "research_notes"},
			Parse:    generation.ParseBrief,
		},
		{
			Name:     StageHook,
			Kind:     generation.PromptHooks,
			Requires: []string{models.SectionBrief},
			Produces: models.SectionHookOptions,
			Fields:   []string{"options"},
			Parse:    generation.ParseHooks,
		},
		{
			Name:     StageStructure,
			Kind:     generation.PromptStructure,
			Requires: []string{models.SectionBrief, models.SectionHookOptions},
			Produces: models.SectionStructureOutline,
			Fields:   []string{"outline"},
			Parse:    generation.ParseOutline,
		},
		{
			Name:     StageContentWriting,
			Kind:     generation.PromptContent,
			Requires: []string{models.SectionBrief, models.SectionHookOptions, models.SectionStructureOutline},
			Produces: models.SectionFinalContent,
			Fields:   []string{"text"},
			Parse:    generation.ParseContent,
		},
	}
}

// structureFields returns the required fields of the structure section, used
// to validate revision payloads.
func structureFields(stages []Stage) []string {
	for _, st := range stages {
		if st.Produces == models.SectionStructureOutline {
			return st.Fields
		}
	}
	return []string{"outline"}
}
