package agentapi

import (
	"context"
	"fmt"
	"time"

	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/credential"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/logging"
)

// New builds the backend named by cfg.Backend.
func New(cfg config.ServiceConfig, cred *credential.Credential, log *logging.Logger) (Service, error) {
	if cred == nil {
		return nil, fmt.Errorf("agentapi: no credential")
	}

	switch cfg.Backend {
	case config.BackendFoundry, "":
		return NewFoundryClient(FoundryOptions{
			Endpoint:          cfg.Endpoint,
			APIVersion:        cfg.APIVersion,
			Timeout:           cfg.RequestTimeout,
			MaxRetries:        cfg.MaxRetries,
			RequestsPerSecond: cfg.RequestsPerSecond,
			TokenSource:       cred.Source,
			APIKey:            cred.APIKey,
		}, log)

	case config.BackendOpenAI:
		return NewOpenAIClient(OpenAIOptions{
			APIKey:     cred.APIKey,
			BaseURL:    cfg.Endpoint,
			Timeout:    cfg.RequestTimeout,
			MaxRetries: cfg.MaxRetries,
		}, log)

	default:
		return nil, fmt.Errorf("agentapi: unknown backend %q", cfg.Backend)
	}
}

// Observer receives one callback per service call.
type Observer interface {
	ObserveRequest(op, status string, elapsed time.Duration)
}

// Instrument wraps svc so every call is reported to obs.
func Instrument(svc Service, obs Observer) Service {
	if obs == nil {
		return svc
	}
	return &instrumented{next: svc, obs: obs}
}

type instrumented struct {
	next Service
	obs  Observer
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	s.obs.ObserveRequest(op, StatusLabel(err), time.Since(start))
}

func (s *instrumented) Name() string { return s.next.Name() }

func (s *instrumented) CreateAgent(ctx context.Context, spec domain.AgentSpec) (domain.Agent, error) {
	start := time.Now()
	a, err := s.next.CreateAgent(ctx, spec)
	s.observe("create_agent", start, err)
	return a, err
}

func (s *instrumented) DeleteAgent(ctx context.Context, id string) error {
	start := time.Now()
	err := s.next.DeleteAgent(ctx, id)
	s.observe("delete_agent", start, err)
	return err
}

func (s *instrumented) CreateThread(ctx context.Context) (domain.Thread, error) {
	start := time.Now()
	th, err := s.next.CreateThread(ctx)
	s.observe("create_thread", start, err)
	return th, err
}

func (s *instrumented) DeleteThread(ctx context.Context, id string) error {
	start := time.Now()
	err := s.next.DeleteThread(ctx, id)
	s.observe("delete_thread", start, err)
	return err
}

func (s *instrumented) CreateMessage(ctx context.Context, threadID, role, content string) (domain.Message, error) {
	start := time.Now()
	m, err := s.next.CreateMessage(ctx, threadID, role, content)
	s.observe("create_message", start, err)
	return m, err
}

func (s *instrumented) ListMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	start := time.Now()
	msgs, err := s.next.ListMessages(ctx, threadID)
	s.observe("list_messages", start, err)
	return msgs, err
}

func (s *instrumented) CreateRun(ctx context.Context, threadID, agentID string) (domain.Run, error) {
	start := time.Now()
	r, err := s.next.CreateRun(ctx, threadID, agentID)
	s.observe("create_run", start, err)
	return r, err
}

func (s *instrumented) GetRun(ctx context.Context, threadID, runID string) (domain.Run, error) {
	start := time.Now()
	r, err := s.next.GetRun(ctx, threadID, runID)
	s.observe("get_run", start, err)
	return r, err
}

func (s *instrumented) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (domain.Run, error) {
	start := time.Now()
	r, err := s.next.SubmitToolOutputs(ctx, threadID, runID, outputs)
	s.observe("submit_tool_outputs", start, err)
	return r, err
}
