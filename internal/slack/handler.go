package slack

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/slack-go/slack/slackevents"

	"github.com/shubh-37/postpilot/internal/conversation"
	"github.com/shubh-37/postpilot/internal/models"
	"github.com/shubh-37/postpilot/internal/service"
)

// threadState tracks what a Slack thread is currently driving: first a
// brainstorming session, later the pipeline run it produced.
type threadState struct {
	SessionID string
	RunID     string
}

type MessageHandler struct {
	client          *Client
	svc             *service.Service
	progress        *ProgressNotifier
	approvalHandler *ApprovalHandler

	mu      sync.Mutex
	threads map[string]threadState // channel:threadTS -> state
}

func NewMessageHandler(client *Client, svc *service.Service, progress *ProgressNotifier, approvalHandler *ApprovalHandler) *MessageHandler {
	return &MessageHandler{
		client:          client,
		svc:             svc,
		progress:        progress,
		approvalHandler: approvalHandler,
		threads:         make(map[string]threadState),
	}
}

func threadKey(channelID, threadTS string) string {
	return channelID + ":" + threadTS
}

func (h *MessageHandler) trackThread(channelID, threadTS string, state threadState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.threads[threadKey(channelID, threadTS)] = state
}

// threadFor returns a snapshot; the pipeline goroutine may update the stored
// state concurrently, so callers never hold a reference into the map.
func (h *MessageHandler) threadFor(channelID, threadTS string) (threadState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.threads[threadKey(channelID, threadTS)]
	return state, ok
}

// setThreadRun records the run a thread's session produced. No-op when the
// thread was never tracked (or was dropped).
func (h *MessageHandler) setThreadRun(channelID, threadTS, runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := threadKey(channelID, threadTS)
	state, ok := h.threads[key]
	if !ok {
		return
	}
	state.RunID = runID
	h.threads[key] = state
}

// HandleAppMention routes bot mentions: create, status, cancel, help.
func (h *MessageHandler) HandleAppMention(ctx context.Context, event *slackevents.AppMentionEvent) error {
	text := strings.TrimSpace(strings.Replace(event.Text, "<@"+h.client.GetBotID()+">", "", 1))
	lowered := strings.ToLower(text)

	switch {
	case strings.HasPrefix(lowered, "help"):
		return h.sendHelpMessage(event.Channel)

	case strings.HasPrefix(lowered, "create") || strings.HasPrefix(lowered, "brainstorm"):
		idea := strings.TrimSpace(text[strings.Index(lowered, " ")+1:])
		if !strings.Contains(text, " ") || idea == "" {
			return h.client.SendMessage(event.Channel, "Please share an idea: `@PostPilot create [your content idea]`")
		}
		return h.startSession(ctx, event.Channel, event.TimeStamp, idea)

	case strings.HasPrefix(lowered, "status"):
		return h.handleStatus(ctx, event.Channel, h.mentionThreadTS(event))

	case strings.HasPrefix(lowered, "cancel"):
		return h.handleCancel(ctx, event.Channel, h.mentionThreadTS(event))

	default:
		// Any other mention text is treated as a content idea.
		if text == "" {
			return h.sendHelpMessage(event.Channel)
		}
		return h.startSession(ctx, event.Channel, event.TimeStamp, text)
	}
}

func (h *MessageHandler) mentionThreadTS(event *slackevents.AppMentionEvent) string {
	if event.ThreadTimeStamp != "" {
		return event.ThreadTimeStamp
	}
	return event.TimeStamp
}

// HandleMessage processes thread replies: user turns while brainstorming,
// revision requests while the run awaits approval.
func (h *MessageHandler) HandleMessage(ctx context.Context, event *slackevents.MessageEvent) error {
	if event.BotID != "" || event.User == h.client.GetBotID() {
		return nil
	}
	if event.SubType != "" {
		return nil
	}
	if strings.TrimSpace(event.Text) == "" {
		return nil
	}
	if event.ThreadTimeStamp == "" {
		return nil
	}

	state, ok := h.threadFor(event.Channel, event.ThreadTimeStamp)
	if !ok {
		return nil
	}

	text := strings.TrimSpace(event.Text)
	if state.RunID != "" {
		lowered := strings.ToLower(text)
		if strings.HasPrefix(lowered, "revise") {
			return h.handleRevise(ctx, event.Channel, event.ThreadTimeStamp, state.RunID, text)
		}
		return nil
	}

	return h.handleUserTurn(ctx, event.Channel, event.ThreadTimeStamp, state.SessionID, text)
}

func (h *MessageHandler) startSession(ctx context.Context, channelID, threadTS, idea string) error {
	result, err := h.svc.StartSession(ctx, idea)
	if err != nil {
		log.Printf("❌ Failed to start session: %v", err)
		return h.client.SendThreadMessage(channelID, threadTS, "❌ Couldn't start brainstorming. Please try again.")
	}

	h.trackThread(channelID, threadTS, threadState{SessionID: result.SessionID})

	message := fmt.Sprintf("🎯 *Let's develop:* %s\n\nAnswer my questions in this thread. Say `done` whenever you want me to start drafting.\n\n🤔 %s",
		idea, result.FirstQuestion)
	return h.client.SendThreadMessage(channelID, threadTS, message)
}

func (h *MessageHandler) handleUserTurn(ctx context.Context, channelID, threadTS, sessionID, text string) error {
	result, err := h.svc.SubmitUserTurn(ctx, sessionID, text)
	if errors.Is(err, conversation.ErrGenerationUnavailable) {
		return h.client.SendThreadMessage(channelID, threadTS, "⚠️ I couldn't come up with the next question right now. Your answer wasn't lost. Just send it again in a moment.")
	}
	if errors.Is(err, conversation.ErrInvalidTransition) {
		return h.client.SendThreadMessage(channelID, threadTS, "This brainstorm has already wrapped up. Mention me with `create [idea]` to start a new one.")
	}
	if err != nil {
		log.Printf("❌ Failed to submit turn: %v", err)
		return h.client.SendThreadMessage(channelID, threadTS, "❌ Something went wrong. Please try again.")
	}

	if !result.Completed {
		return h.client.SendThreadMessage(channelID, threadTS, "🤔 "+result.NextQuestion)
	}

	h.client.SendThreadMessage(channelID, threadTS, "✅ *Brainstorming complete!* Kicking off the writing pipeline...")
	go h.runPipeline(channelID, threadTS, sessionID, result.Bundle)
	return nil
}

// runPipeline drives a run to the structure-approval checkpoint and posts
// the outline for review. It runs in its own goroutine because stages call
// the generation capability.
func (h *MessageHandler) runPipeline(channelID, threadTS, sessionID string, b *models.ContextBundle) {
	ctx := context.Background()
	h.progress.Watch(sessionID, channelID, threadTS)

	runID, err := h.svc.StartPipeline(ctx, b, sessionID)
	if runID != "" {
		h.setThreadRun(channelID, threadTS, runID)
	}
	if err != nil {
		log.Printf("❌ Pipeline run failed: %v", err)
		h.client.SendThreadMessage(channelID, threadTS, "❌ The writing pipeline failed partway. Everything produced so far is saved. Use `status` to inspect it, or mention me with `create` to retry.")
		return
	}

	h.postStructureForReview(ctx, channelID, threadTS, runID)
}

// postStructureForReview shows the outline and wires up the approval
// reactions.
func (h *MessageHandler) postStructureForReview(ctx context.Context, channelID, threadTS, runID string) {
	run, err := h.svc.GetRunStatus(ctx, runID)
	if err != nil {
		log.Printf("❌ Failed to load run %s: %v", runID, err)
		return
	}

	outline := ""
	if sec, ok := run.Bundle.Section(models.SectionStructureOutline); ok {
		if s, ok := sec.Payload["outline"].(string); ok {
			outline = s
		}
	}

	message := "🏗 *Proposed post structure:*\n\n" + outline + "\n\n"
	message += "• React with ✅ to approve and write the final post\n"
	message += "• Reply `revise: [your changes]` to adjust it (once)\n"
	message += "• React with ❌ to abort"

	messageTS, err := h.client.SendThreadMessageAndGetTS(channelID, threadTS, message)
	if err != nil {
		log.Printf("❌ Failed to post structure: %v", err)
		return
	}
	h.approvalHandler.StoreStructureMessage(messageTS, runID, channelID, threadTS)
}

func (h *MessageHandler) handleRevise(ctx context.Context, channelID, threadTS, runID, text string) error {
	edits := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(text, "revise:"), "revise"))
	edits = strings.TrimSpace(strings.TrimPrefix(edits, ":"))
	if edits == "" {
		return h.client.SendThreadMessage(channelID, threadTS, "Please include the changes: `revise: [edited outline]`")
	}

	err := h.svc.ReviseStructure(ctx, runID, map[string]any{"outline": edits})
	if err != nil {
		log.Printf("❌ Failed to revise structure: %v", err)
		return h.client.SendThreadMessage(channelID, threadTS, "❌ Couldn't apply the revision. The outline can only be revised once, while it's waiting for approval.")
	}

	h.postStructureForReview(ctx, channelID, threadTS, runID)
	return nil
}

func (h *MessageHandler) handleStatus(ctx context.Context, channelID, threadTS string) error {
	state, ok := h.threadFor(channelID, threadTS)
	if !ok {
		return h.client.SendMessage(channelID, "📊 No active session in this thread. Mention me with `create [idea]` to start one!")
	}

	if state.RunID != "" {
		run, err := h.svc.GetRunStatus(ctx, state.RunID)
		if err != nil {
			return h.client.SendThreadMessage(channelID, threadTS, "❌ Failed to fetch run status")
		}
		message := fmt.Sprintf("📊 *Pipeline run:* %s\n*Bundle version:* %d\n*Sections:* %d",
			run.State, run.Bundle.Version, len(run.Bundle.Sections))
		if run.FailureReason != "" {
			message += "\n*Failure:* " + run.FailureReason
		}
		return h.client.SendThreadMessage(channelID, threadTS, message)
	}

	s, err := h.svc.GetSession(ctx, state.SessionID)
	if err != nil {
		return h.client.SendThreadMessage(channelID, threadTS, "❌ Failed to fetch session status")
	}
	message := fmt.Sprintf("📊 *Brainstorming:* %s\n*Turns:* %d\n*Focus areas covered:* %d/%d",
		s.State, s.UserTurnCount(), len(s.Covered()), len(models.AllFocusAreas()))
	return h.client.SendThreadMessage(channelID, threadTS, message)
}

func (h *MessageHandler) handleCancel(ctx context.Context, channelID, threadTS string) error {
	state, ok := h.threadFor(channelID, threadTS)
	if !ok {
		return h.client.SendMessage(channelID, "📊 Nothing to cancel in this thread.")
	}

	var err error
	if state.RunID != "" {
		err = h.svc.CancelRun(ctx, state.RunID)
	} else {
		err = h.svc.CancelSession(ctx, state.SessionID)
	}
	if err != nil {
		return h.client.SendThreadMessage(channelID, threadTS, "❌ Couldn't cancel. It may already be finished.")
	}
	return h.client.SendThreadMessage(channelID, threadTS, "🛑 Cancelled. Everything produced so far is kept for inspection.")
}

func (h *MessageHandler) sendHelpMessage(channelID string) error {
	helpText := `*PostPilot*

I turn rough ideas into LinkedIn posts that sound like you.

*Commands:*
- \@PostPilot create [idea] - Start a brainstorming session
- \@PostPilot status - Show session/pipeline progress (in thread)
- \@PostPilot cancel - Cancel the session or run (in thread)
- \@PostPilot help - Show this help

*Workflow:*
1. Mention me with your idea
2. Answer my questions in the thread (say ` + "`done`" + ` anytime)
3. I draft a brief, hooks, and a structure
4. Approve the structure with ✅ (or ` + "`revise: ...`" + ` once)
5. Receive your final post, written in your voice!`

	return h.client.SendMessage(channelID, helpText)
}
