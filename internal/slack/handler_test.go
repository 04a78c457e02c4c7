package slack

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The pipeline goroutine records the run id while event goroutines keep
// reading the same thread's state; both sides must go through the handler's
// lock and never share a reference.
func TestThreadState_ConcurrentRunAssignment(t *testing.T) {
	h := NewMessageHandler(nil, nil, nil, nil)
	h.trackThread("C1", "100.200", threadState{SessionID: "sess-1"})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.setThreadRun("C1", "100.200", "run-1")
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			if state, ok := h.threadFor("C1", "100.200"); ok && state.RunID != "" {
				return
			}
		}
	}()
	wg.Wait()

	state, ok := h.threadFor("C1", "100.200")
	require.True(t, ok)
	assert.Equal(t, "sess-1", state.SessionID)
	assert.Equal(t, "run-1", state.RunID)
}

func TestThreadFor_ReturnsSnapshot(t *testing.T) {
	h := NewMessageHandler(nil, nil, nil, nil)
	h.trackThread("C1", "100.200", threadState{SessionID: "sess-1"})

	state, ok := h.threadFor("C1", "100.200")
	require.True(t, ok)
	state.RunID = "local-edit"

	fresh, ok := h.threadFor("C1", "100.200")
	require.True(t, ok)
	assert.Empty(t, fresh.RunID, "mutating a snapshot must not touch the tracked state")
}

func TestSetThreadRun_UnknownThreadIsNoop(t *testing.T) {
	h := NewMessageHandler(nil, nil, nil, nil)

	h.setThreadRun("C1", "100.200", "run-1")

	_, ok := h.threadFor("C1", "100.200")
	assert.False(t, ok)
}
