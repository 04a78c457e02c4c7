package generation

import (
	"fmt"
	"strings"

	"github.com/shubh-37/postpilot/internal/models"
)

// focusGuidance tells the question prompt what each uncovered area should
// probe for.
var focusGuidance = map[models.FocusArea]string{
	models.FocusHookPreference:        "what kind of opening line would grab their audience (bold claim, question, story, stat)",
	models.FocusAudienceAndPainPoints: "who the post is for and what problem or frustration it speaks to",
	models.FocusUniqueAngle:           "what perspective or take makes this different from what everyone else writes",
	models.FocusKeyMessage:            "the single takeaway a reader should walk away with",
	models.FocusPersonalStory:         "a personal experience, anecdote, or moment that makes this real",
	models.FocusSupportingData:        "numbers, results, or concrete examples that back the point up",
	models.FocusStylePreference:       "how they want the post to sound (tone, length, formatting)",
}

// BuildPrompt renders the prompt for a request kind.
func BuildPrompt(req Request) (string, error) {
	switch req.Kind {
	case PromptQuestion:
		if req.Session == nil {
			return "", fmt.Errorf("%w: question prompt needs a session", ErrInvalid)
		}
		return questionPrompt(req.Session, req.Uncovered), nil
	case PromptBrief:
		if req.Bundle == nil {
			return "", fmt.Errorf("%w: brief prompt needs a bundle", ErrInvalid)
		}
		return briefPrompt(req.Bundle), nil
	case PromptHooks:
		if req.Bundle == nil {
			return "", fmt.Errorf("%w: hooks prompt needs a bundle", ErrInvalid)
		}
		return hooksPrompt(req.Bundle), nil
	case PromptStructure:
		if req.Bundle == nil {
			return "", fmt.Errorf("%w: structure prompt needs a bundle", ErrInvalid)
		}
		return structurePrompt(req.Bundle), nil
	case PromptContent:
		if req.Bundle == nil {
			return "", fmt.Errorf("%w: content prompt needs a bundle", ErrInvalid)
		}
		return contentPrompt(req.Bundle), nil
	default:
		return "", fmt.Errorf("%w: unknown prompt kind %q", ErrInvalid, req.Kind)
	}
}

func questionPrompt(s *models.Session, uncovered []models.FocusArea) string {
	var transcript string
	for _, t := range s.Turns {
		transcript += fmt.Sprintf("\n%s: %s", t.Speaker, t.Text)
	}

	var probes string
	for i, fa := range uncovered {
		probes += fmt.Sprintf("\n%d. %s", i+1, focusGuidance[fa])
	}
	if probes == "" {
		probes = "\n1. anything else the user wants in the post before drafting starts"
	}

	return fmt.Sprintf(`You are brainstorming a LinkedIn post with a user. Their initial idea:
"%s"

Conversation so far:%s

Topics still to explore, in priority order:%s

Ask ONE short, conversational follow-up question about the highest-priority
unexplored topic. Do not summarize, do not ask multiple questions, do not
number the question. Respond with the question text only.`, s.InitialIdea, transcript, probes)
}

func briefPrompt(b *models.ContextBundle) string {
	var transcript string
	for _, t := range b.Transcript {
		transcript += fmt.Sprintf("\n%s: %s", t.Speaker, t.Text)
	}

	return fmt.Sprintf(`You are distilling a brainstorming conversation into a content brief for a
LinkedIn post about: "%s"

Conversation:%s

Respond in this exact format:
TOPIC: [one-line topic statement]
AUDIENCE: [who this post is for and what pain point it addresses]
KEY MESSAGES:
1. [message 1]
2. [message 2]
3. [message 3]
RESEARCH NOTES:
[2-3 sentences of supporting context, data points, or examples mentioned in the conversation]`, b.Topic, transcript)
}

func hooksPrompt(b *models.ContextBundle) string {
	brief, _ := b.Section(models.SectionBrief)

	return fmt.Sprintf(`You are writing opening hooks for a LinkedIn post.

Brief:
Topic: %s
Audience: %s
Key messages: %s

%s

Write 3 different hooks (1-2 lines each, no hashtags):
- Hook 1: bold claim or contrarian take
- Hook 2: question or curiosity gap
- Hook 3: personal story opener

Format your response as:
===HOOK 1===
[hook text]

===HOOK 2===
[hook text]

===HOOK 3===
[hook text]`,
		payloadString(brief.Payload, "topic"),
		payloadString(brief.Payload, "audience"),
		strings.Join(payloadStrings(brief.Payload, "key_messages"), "; "),
		styleInstruction(b))
}

func structurePrompt(b *models.ContextBundle) string {
	brief, _ := b.Section(models.SectionBrief)
	hooks, _ := b.Section(models.SectionHookOptions)

	return fmt.Sprintf(`You are designing the structure of a LinkedIn post.

Topic: %s
Audience: %s
Key messages: %s
Hook options:
%s

%s

Design the post layout as an ordered outline. Respond in this exact format:
OUTLINE:
1. [section: what it covers]
2. [section: what it covers]
3. [section: what it covers]
4. [section: what it covers]`,
		payloadString(brief.Payload, "topic"),
		payloadString(brief.Payload, "audience"),
		strings.Join(payloadStrings(brief.Payload, "key_messages"), "; "),
		numberedList(payloadStrings(hooks.Payload, "options")),
		styleInstruction(b))
}

func contentPrompt(b *models.ContextBundle) string {
	brief, _ := b.Section(models.SectionBrief)
	hooks, _ := b.Section(models.SectionHookOptions)
	outline, _ := b.Section(models.SectionStructureOutline)

	return fmt.Sprintf(`You are ghostwriting the final LinkedIn post. It must read exactly like the
user wrote it themselves.

Topic: %s
Audience: %s
Key messages: %s
Research notes: %s

Approved structure:
%s

Hook options (pick the strongest, adapt freely):
%s

%s

Write the complete post. 150-300 words, short paragraphs, line breaks for
readability, end with engagement. Respond with the post text only.`,
		payloadString(brief.Payload, "topic"),
		payloadString(brief.Payload, "audience"),
		strings.Join(payloadStrings(brief.Payload, "key_messages"), "; "),
		payloadString(brief.Payload, "research_notes"),
		payloadString(outline.Payload, "outline"),
		numberedList(payloadStrings(hooks.Payload, "options")),
		styleInstruction(b))
}

// StyleDescription renders a profile as writing instructions. It is written
// into the bundle's styleProfile section so downstream stages do not need
// the profile struct.
func StyleDescription(p *models.StyleProfile) string {
	if p == nil || p.TurnsSeen == 0 {
		return "No style signal captured yet. Write naturally and conversationally."
	}

	var b strings.Builder
	if p.Casualness > 0.5 {
		b.WriteString("Casual, spoken register. ")
	} else if p.Casualness < 0.2 {
		b.WriteString("Polished, professional register. ")
	} else {
		b.WriteString("Conversational but professional. ")
	}

	if p.AvgSentenceLength < 9 {
		b.WriteString("Short, punchy sentences. ")
	} else if p.AvgSentenceLength > 18 {
		b.WriteString("Longer, flowing sentences. ")
	}

	if p.ExclamationDensity > 0.3 {
		b.WriteString("Uses exclamation marks freely. ")
	}
	if p.EllipsisDensity > 0.15 {
		b.WriteString("Trails off with ellipses sometimes. ")
	}
	if p.EmojiFrequency > 0.01 {
		b.WriteString("Sprinkles in the occasional emoji. ")
	}
	if p.LowercaseTendency > 0.6 {
		b.WriteString("Often starts sentences lowercase. ")
	}
	if p.ListPreference > 0.3 {
		b.WriteString("Likes bullet-point lists. ")
	}

	if phrases := p.TopPhrases(4); len(phrases) > 0 {
		b.WriteString(fmt.Sprintf("Characteristic phrases: %s.", strings.Join(phrases, ", ")))
	}
	return strings.TrimSpace(b.String())
}

func styleInstruction(b *models.ContextBundle) string {
	sec, ok := b.Section(models.SectionStyleProfile)
	if !ok {
		return "Style: write naturally and conversationally."
	}
	return "Style: " + payloadString(sec.Payload, "description")
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	if s, ok := payload[key].(string); ok {
		return s
	}
	return ""
}

// payloadStrings reads a string list from a payload. Lists arrive as
// []string when built in-process and as []any after a JSON round trip
// through the store.
func payloadStrings(payload map[string]any, key string) []string {
	if payload == nil {
		return nil
	}
	switch v := payload[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func numberedList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, item))
	}
	return strings.TrimRight(b.String(), "\n")
}
