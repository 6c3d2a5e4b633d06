package agentapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/logging"
	"github.com/soyeahso/triage/internal/version"
)

// OpenAIOptions configures an OpenAIClient.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string // empty uses the public endpoint
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIClient implements Service over the OpenAI Assistants beta API.
// Only function tools are supported; connected agents are a hosted-project feature.
type OpenAIClient struct {
	client openai.Client
	log    *logging.Logger
}

// NewOpenAIClient creates an openai-go backed Service.
func NewOpenAIClient(opts OpenAIOptions, log *logging.Logger) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("openai: api key is required")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(opts.MaxRetries),
		option.WithHeader("User-Agent", version.UserAgent()),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}

	return &OpenAIClient{
		client: openai.NewClient(reqOpts...),
		log:    log.Sub("agentapi.openai"),
	}, nil
}

// Name returns the backend name.
func (c *OpenAIClient) Name() string { return "openai" }

func (c *OpenAIClient) CreateAgent(ctx context.Context, spec domain.AgentSpec) (domain.Agent, error) {
	params := openai.BetaAssistantNewParams{
		Model:        openai.ChatModel(spec.Model),
		Name:         openai.String(spec.Name),
		Instructions: openai.String(spec.Instructions),
	}
	for _, t := range spec.Tools {
		if t.Kind != domain.ToolFunction {
			return domain.Agent{}, fmt.Errorf("create agent %s: openai backend does not support %s tools", spec.Name, t.Kind)
		}
		fn, err := toOpenAIFunction(t)
		if err != nil {
			return domain.Agent{}, fmt.Errorf("create agent %s: %w", spec.Name, err)
		}
		params.Tools = append(params.Tools, openai.AssistantToolUnionParam{
			OfFunction: &openai.FunctionToolParam{Function: fn},
		})
	}

	a, err := c.client.Beta.Assistants.New(ctx, params)
	if err != nil {
		return domain.Agent{}, wrapOpenAIError("create agent", err)
	}

	c.log.Info().Str("agent", a.ID).Str("name", a.Name).Int("tools", len(spec.Tools)).Msg("agent created")
	return domain.Agent{
		ID:           a.ID,
		Model:        a.Model,
		Name:         a.Name,
		Instructions: a.Instructions,
		Tools:        spec.Tools,
		CreatedAt:    unixTime(a.CreatedAt),
	}, nil
}

func (c *OpenAIClient) DeleteAgent(ctx context.Context, id string) error {
	if _, err := c.client.Beta.Assistants.Delete(ctx, id); err != nil {
		return wrapOpenAIError("delete agent", err)
	}
	c.log.Info().Str("agent", id).Msg("agent deleted")
	return nil
}

func (c *OpenAIClient) CreateThread(ctx context.Context) (domain.Thread, error) {
	th, err := c.client.Beta.Threads.New(ctx, openai.BetaThreadNewParams{})
	if err != nil {
		return domain.Thread{}, wrapOpenAIError("create thread", err)
	}
	c.log.Info().Str("thread", th.ID).Msg("thread created")
	return domain.Thread{ID: th.ID, CreatedAt: unixTime(th.CreatedAt)}, nil
}

func (c *OpenAIClient) DeleteThread(ctx context.Context, id string) error {
	if _, err := c.client.Beta.Threads.Delete(ctx, id); err != nil {
		return wrapOpenAIError("delete thread", err)
	}
	c.log.Info().Str("thread", id).Msg("thread deleted")
	return nil
}

func (c *OpenAIClient) CreateMessage(ctx context.Context, threadID, role, content string) (domain.Message, error) {
	params := openai.BetaThreadMessageNewParams{
		Role:    openai.BetaThreadMessageNewParamsRole(role),
		Content: openai.BetaThreadMessageNewParamsContentUnion{OfString: openai.String(content)},
	}
	m, err := c.client.Beta.Threads.Messages.New(ctx, threadID, params)
	if err != nil {
		return domain.Message{}, wrapOpenAIError("create message", err)
	}
	c.log.Debug().Str("thread", threadID).Str("message", m.ID).Msg("message created")
	return messageFromOpenAI(*m), nil
}

func (c *OpenAIClient) ListMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	iter := c.client.Beta.Threads.Messages.ListAutoPaging(ctx, threadID, openai.BetaThreadMessageListParams{
		Order: openai.BetaThreadMessageListParamsOrderAsc,
	})
	var out []domain.Message
	for iter.Next() {
		out = append(out, messageFromOpenAI(iter.Current()))
	}
	if err := iter.Err(); err != nil {
		return nil, wrapOpenAIError("list messages", err)
	}
	return out, nil
}

func (c *OpenAIClient) CreateRun(ctx context.Context, threadID, agentID string) (domain.Run, error) {
	r, err := c.client.Beta.Threads.Runs.New(ctx, threadID, openai.BetaThreadRunNewParams{AssistantID: agentID})
	if err != nil {
		return domain.Run{}, wrapOpenAIError("create run", err)
	}
	c.log.Info().Str("thread", threadID).Str("run", r.ID).Str("status", string(r.Status)).Msg("run created")
	return runFromOpenAI(*r), nil
}

func (c *OpenAIClient) GetRun(ctx context.Context, threadID, runID string) (domain.Run, error) {
	r, err := c.client.Beta.Threads.Runs.Get(ctx, threadID, runID)
	if err != nil {
		return domain.Run{}, wrapOpenAIError("get run", err)
	}
	return runFromOpenAI(*r), nil
}

func (c *OpenAIClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (domain.Run, error) {
	params := openai.BetaThreadRunSubmitToolOutputsParams{}
	for _, o := range outputs {
		params.ToolOutputs = append(params.ToolOutputs, openai.BetaThreadRunSubmitToolOutputsParamsToolOutput{
			ToolCallID: openai.String(o.ToolCallID),
			Output:     openai.String(o.Output),
		})
	}
	r, err := c.client.Beta.Threads.Runs.SubmitToolOutputs(ctx, threadID, runID, params)
	if err != nil {
		return domain.Run{}, wrapOpenAIError("submit tool outputs", err)
	}
	return runFromOpenAI(*r), nil
}

func toOpenAIFunction(t domain.Tool) (openai.FunctionDefinitionParam, error) {
	fn := openai.FunctionDefinitionParam{Name: t.Name}
	if t.Description != "" {
		fn.Description = openai.String(t.Description)
	}
	if len(t.Parameters) > 0 {
		var params openai.FunctionParameters
		if err := json.Unmarshal(t.Parameters, &params); err != nil {
			return fn, fmt.Errorf("tool %s: parameters: %w", t.Name, err)
		}
		fn.Parameters = params
	}
	return fn, nil
}

func messageFromOpenAI(m openai.Message) domain.Message {
	var parts []string
	for _, c := range m.Content {
		if c.Type == "text" {
			parts = append(parts, c.Text.Value)
		}
	}
	return domain.Message{
		ID:        m.ID,
		ThreadID:  m.ThreadID,
		Role:      string(m.Role),
		Content:   strings.Join(parts, "\n"),
		AgentID:   m.AssistantID,
		RunID:     m.RunID,
		CreatedAt: unixTime(m.CreatedAt),
	}
}

func runFromOpenAI(r openai.Run) domain.Run {
	out := domain.Run{
		ID:          r.ID,
		ThreadID:    r.ThreadID,
		AgentID:     r.AssistantID,
		Status:      domain.RunStatus(r.Status),
		CreatedAt:   unixTime(r.CreatedAt),
		CompletedAt: unixTime(r.CompletedAt),
		Usage: domain.Usage{
			PromptTokens:     int(r.Usage.PromptTokens),
			CompletionTokens: int(r.Usage.CompletionTokens),
		},
	}
	if r.LastError.Message != "" {
		out.LastError = &domain.RunError{Code: string(r.LastError.Code), Message: r.LastError.Message}
	}
	for _, tc := range r.RequiredAction.SubmitToolOutputs.ToolCalls {
		out.RequiredAction = append(out.RequiredAction, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

// wrapOpenAIError converts openai-go API errors into ServiceError so callers
// can classify them the same way for every backend.
func wrapOpenAIError(op string, err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &ServiceError{
			Op:      op,
			Status:  apiErr.StatusCode,
			Code:    apiErr.Code,
			Message: apiErr.Message,
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
