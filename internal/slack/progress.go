package slack

import (
	"fmt"
	"log"
	"sync"

	"github.com/shubh-37/postpilot/internal/models"
	"github.com/shubh-37/postpilot/internal/pipeline"
)

var stageLabels = map[string]string{
	pipeline.StageBrainstorm:     "🧠 Brainstorm distilled into a brief",
	pipeline.StageHook:           "🎣 Hooks generated",
	pipeline.StageStructure:      "🏗 Structure designed",
	pipeline.StageContentWriting: "✍️ Final post written",
}

// ProgressNotifier posts a progress line into the originating thread as the
// orchestrator completes each stage. Threads are registered by session id
// before the pipeline starts.
type ProgressNotifier struct {
	client  *Client
	mu      sync.Mutex
	threads map[string]threadRef // sessionID -> thread
}

type threadRef struct {
	ChannelID string
	ThreadTS  string
}

func NewProgressNotifier(client *Client) *ProgressNotifier {
	return &ProgressNotifier{
		client:  client,
		threads: make(map[string]threadRef),
	}
}

// Watch registers where progress for a session's pipeline should be posted.
func (p *ProgressNotifier) Watch(sessionID, channelID, threadTS string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.threads[sessionID] = threadRef{ChannelID: channelID, ThreadTS: threadTS}
}

// Notify implements the orchestrator's OnStage hook.
func (p *ProgressNotifier) Notify(run *models.PipelineRun, stageName string) {
	p.mu.Lock()
	ref, ok := p.threads[run.SessionID]
	p.mu.Unlock()
	if !ok {
		return
	}

	label, ok := stageLabels[stageName]
	if !ok {
		label = fmt.Sprintf("✅ Stage %s complete", stageName)
	}

	if err := p.client.SendThreadMessage(ref.ChannelID, ref.ThreadTS, label); err != nil {
		log.Printf("⚠️ Failed to send progress update: %v", err)
	}
}
