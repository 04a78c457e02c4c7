package slack

import (
	"context"
	"log"
	"sync"

	"github.com/slack-go/slack/slackevents"

	"github.com/shubh-37/postpilot/internal/models"
	"github.com/shubh-37/postpilot/internal/service"
)

// structureRef ties a posted structure message back to its run and thread.
type structureRef struct {
	RunID     string
	ChannelID string
	ThreadTS  string
}

type ApprovalHandler struct {
	client *Client
	svc    *service.Service

	mu         sync.Mutex
	structures map[string]structureRef // messageTS -> run
}

func NewApprovalHandler(client *Client, svc *service.Service) *ApprovalHandler {
	return &ApprovalHandler{
		client:     client,
		svc:        svc,
		structures: make(map[string]structureRef),
	}
}

// StoreStructureMessage records which run a structure message belongs to.
func (h *ApprovalHandler) StoreStructureMessage(messageTS, runID, channelID, threadTS string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.structures[messageTS] = structureRef{RunID: runID, ChannelID: channelID, ThreadTS: threadTS}
	log.Printf("📌 Stored structure message mapping: %s -> %s", messageTS, runID)
}

// HandleReaction processes reactions on structure messages.
func (h *ApprovalHandler) HandleReaction(ctx context.Context, event *slackevents.ReactionAddedEvent) error {
	h.mu.Lock()
	ref, exists := h.structures[event.Item.Timestamp]
	h.mu.Unlock()
	if !exists {
		return nil
	}

	switch event.Reaction {
	case "white_check_mark", "heavy_check_mark", "✅":
		return h.approveStructure(ctx, ref)
	case "x", "❌":
		return h.abortRun(ctx, ref)
	}

	return nil
}

// approveStructure releases the checkpoint and delivers the final post.
func (h *ApprovalHandler) approveStructure(ctx context.Context, ref structureRef) error {
	log.Printf("✅ Approving structure for run %s", ref.RunID)
	h.client.SendThreadMessage(ref.ChannelID, ref.ThreadTS, "✍️ Structure approved! Writing the final post...")

	if err := h.svc.ApproveStructure(ctx, ref.RunID); err != nil {
		log.Printf("❌ Failed to approve structure for run %s: %v", ref.RunID, err)
		return h.client.SendThreadMessage(ref.ChannelID, ref.ThreadTS, "❌ The final writing stage failed. Use `status` to inspect the run.")
	}

	run, err := h.svc.GetRunStatus(ctx, ref.RunID)
	if err != nil {
		log.Printf("⚠️ Failed to load run %s: %v", ref.RunID, err)
		return err
	}

	return h.client.SendThreadMessage(ref.ChannelID, ref.ThreadTS, formatFinalPost(run))
}

func (h *ApprovalHandler) abortRun(ctx context.Context, ref structureRef) error {
	log.Printf("🛑 Aborting run %s via reaction", ref.RunID)
	if err := h.svc.CancelRun(ctx, ref.RunID); err != nil {
		log.Printf("⚠️ Failed to cancel run %s: %v", ref.RunID, err)
	}
	return h.client.SendThreadMessage(ref.ChannelID, ref.ThreadTS, "🛑 Run aborted. The bundle is kept for inspection.")
}

func formatFinalPost(run *models.PipelineRun) string {
	text := ""
	if sec, ok := run.Bundle.Section(models.SectionFinalContent); ok {
		if s, ok := sec.Payload["text"].(string); ok {
			text = s
		}
	}

	message := "🎉 *Your LinkedIn post is ready!*\n"
	message += "_Original idea: " + run.Bundle.Topic + "_\n\n"
	message += "━━━━━━━━━━━━━━━━━━\n\n"
	message += text + "\n\n"
	message += "━━━━━━━━━━━━━━━━━━\n\n"
	message += "🚀 Mention me with `create [idea]` to write another one!"
	return message
}
