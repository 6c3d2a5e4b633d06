package hooks

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/soyeahso/triage/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandHandler_ReceivesPayload(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "payload.json")
	envOut := filepath.Join(dir, "event.txt")

	h := CommandHandler(config.HookEntry{Command: "cat > " + out + "; printf %s \"$TRIAGE_EVENT\" > " + envOut})
	err := h(context.Background(), Payload{Event: EventRunFinished, Data: map[string]any{"outcome": "completed"}})
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var p Payload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, EventRunFinished, p.Event)
	assert.Equal(t, "completed", p.Data["outcome"])

	ev, err := os.ReadFile(envOut)
	require.NoError(t, err)
	assert.Equal(t, EventRunFinished, string(ev))
}

func TestCommandHandler_Failure(t *testing.T) {
	h := CommandHandler(config.HookEntry{Command: "echo nope >&2; exit 3"})
	err := h(context.Background(), Payload{Event: EventAfterTriage})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestCommandHandler_Timeout(t *testing.T) {
	h := CommandHandler(config.HookEntry{Command: "sleep 5", Timeout: 50})
	err := h(context.Background(), Payload{Event: EventAfterTriage})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestManager_RegisterConfig(t *testing.T) {
	m := testManager()
	require.NoError(t, m.RegisterConfig(config.HooksConfig{
		RunFinished: []config.HookEntry{{Command: "notify-send done"}},
		AfterTriage: []config.HookEntry{{Command: "true"}, {Command: "logger triage"}},
	}))

	assert.Equal(t, []Registration{
		{Event: EventRunFinished, Name: "notify-send done"},
		{Event: EventAfterTriage, Name: "true"},
		{Event: EventAfterTriage, Name: "logger triage"},
	}, m.Registered())
}

func TestManager_RegisterConfigRuns(t *testing.T) {
	out := filepath.Join(t.TempDir(), "event")
	m := testManager()
	require.NoError(t, m.RegisterConfig(config.HooksConfig{
		AfterTriage: []config.HookEntry{{Command: "printf %s \"$TRIAGE_EVENT\" > " + out}},
	}))

	m.Emit(context.Background(), EventAfterTriage, map[string]any{"outcome": "completed"})

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, EventAfterTriage, string(data))
}
