package agentapi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/credential"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectsBackend(t *testing.T) {
	cred := &credential.Credential{Kind: credential.KindAPIKey, APIKey: "k"}

	svc, err := New(config.ServiceConfig{Backend: config.BackendFoundry, Endpoint: "https://example.test/api/projects/p"}, cred, silentLog())
	require.NoError(t, err)
	assert.Equal(t, "foundry", svc.Name())

	svc, err = New(config.ServiceConfig{Backend: config.BackendOpenAI}, cred, silentLog())
	require.NoError(t, err)
	assert.Equal(t, "openai", svc.Name())

	_, err = New(config.ServiceConfig{Backend: "bedrock"}, cred, silentLog())
	assert.Error(t, err)

	_, err = New(config.ServiceConfig{Backend: config.BackendFoundry}, nil, silentLog())
	assert.Error(t, err)
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []string
}

func (o *recordingObserver) ObserveRequest(op, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seen = append(o.seen, op+":"+status)
}

func TestInstrumentReportsEveryCall(t *testing.T) {
	obs := &recordingObserver{}
	mock := &MockService{
		DeleteAgentFunc: func(ctx context.Context, id string) error {
			return &ServiceError{Op: "delete agent", Status: 404}
		},
		ListMessagesFunc: func(ctx context.Context, threadID string) ([]domain.Message, error) {
			return nil, errors.New("boom")
		},
	}
	svc := Instrument(mock, obs)
	ctx := context.Background()

	_, _ = svc.CreateAgent(ctx, domain.AgentSpec{Name: "a"})
	_ = svc.DeleteAgent(ctx, "a")
	_, _ = svc.ListMessages(ctx, "t")

	assert.Equal(t, []string{"create_agent:ok", "delete_agent:404", "list_messages:error"}, obs.seen)
	assert.Equal(t, "mock", svc.Name())
}

func TestInstrumentNilObserver(t *testing.T) {
	mock := &MockService{}
	assert.Same(t, Service(mock), Instrument(mock, nil))
}
