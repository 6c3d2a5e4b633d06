package agentapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/logging"
	"github.com/soyeahso/triage/internal/version"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

// FoundryOptions configures a FoundryClient.
type FoundryOptions struct {
	Endpoint          string
	APIVersion        string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64 // <= 0 disables pacing

	// Exactly one of TokenSource or APIKey authenticates requests.
	TokenSource oauth2.TokenSource
	APIKey      string

	// RetryWaitMin and RetryWaitMax bound the transport's backoff.
	// Zero values use 250ms and 5s.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// FoundryClient is a REST client for an Assistants-compatible project endpoint.
type FoundryClient struct {
	base       *url.URL
	apiVersion string
	tokens     oauth2.TokenSource
	apiKey     string
	http       *retryablehttp.Client
	limiter    *rate.Limiter
	log        *logging.Logger
}

// NewFoundryClient creates a REST backend rooted at opts.Endpoint.
func NewFoundryClient(opts FoundryOptions, log *logging.Logger) (*FoundryClient, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("foundry: endpoint is required")
	}
	base, err := url.Parse(strings.TrimSuffix(opts.Endpoint, "/"))
	if err != nil {
		return nil, fmt.Errorf("foundry: invalid endpoint: %w", err)
	}
	if opts.TokenSource == nil && opts.APIKey == "" {
		return nil, fmt.Errorf("foundry: a token source or api key is required")
	}

	c := &FoundryClient{
		base:       base,
		apiVersion: opts.APIVersion,
		tokens:     opts.TokenSource,
		apiKey:     opts.APIKey,
		log:        log.Sub("agentapi.foundry"),
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.MaxRetries
	rc.RetryWaitMin = opts.RetryWaitMin
	if rc.RetryWaitMin == 0 {
		rc.RetryWaitMin = 250 * time.Millisecond
	}
	rc.RetryWaitMax = opts.RetryWaitMax
	if rc.RetryWaitMax == 0 {
		rc.RetryWaitMax = 5 * time.Second
	}
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = leveledLogger{c.log}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.CheckRetry = checkRetry
	c.http = rc

	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	} else {
		c.limiter = rate.NewLimiter(rate.Inf, 1)
	}

	return c, nil
}

// Name returns the backend name.
func (c *FoundryClient) Name() string { return "foundry" }

// CreateAgent sends POST /assistants.
func (c *FoundryClient) CreateAgent(ctx context.Context, spec domain.AgentSpec) (domain.Agent, error) {
	body := wireAgentRequest{
		Model:        spec.Model,
		Name:         spec.Name,
		Instructions: spec.Instructions,
	}
	for _, t := range spec.Tools {
		if err := t.Validate(); err != nil {
			return domain.Agent{}, fmt.Errorf("create agent %s: %w", spec.Name, err)
		}
		body.Tools = append(body.Tools, toWireTool(t))
	}

	var resp wireAgent
	if err := c.do(ctx, "create agent", http.MethodPost, "/assistants", nil, body, &resp); err != nil {
		return domain.Agent{}, err
	}

	agent := resp.toDomain()
	// The service echoes connected tools without their descriptions; keep what we sent.
	agent.Tools = spec.Tools
	c.log.Info().Str("agent", agent.ID).Str("name", agent.Name).Int("tools", len(agent.Tools)).Msg("agent created")
	return agent, nil
}

// DeleteAgent sends DELETE /assistants/{id}.
func (c *FoundryClient) DeleteAgent(ctx context.Context, id string) error {
	if err := c.do(ctx, "delete agent", http.MethodDelete, "/assistants/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return err
	}
	c.log.Info().Str("agent", id).Msg("agent deleted")
	return nil
}

// CreateThread sends POST /threads.
func (c *FoundryClient) CreateThread(ctx context.Context) (domain.Thread, error) {
	var resp wireThread
	if err := c.do(ctx, "create thread", http.MethodPost, "/threads", nil, struct{}{}, &resp); err != nil {
		return domain.Thread{}, err
	}
	c.log.Info().Str("thread", resp.ID).Msg("thread created")
	return domain.Thread{ID: resp.ID, CreatedAt: unixTime(resp.CreatedAt)}, nil
}

// DeleteThread sends DELETE /threads/{id}.
func (c *FoundryClient) DeleteThread(ctx context.Context, id string) error {
	if err := c.do(ctx, "delete thread", http.MethodDelete, "/threads/"+url.PathEscape(id), nil, nil, nil); err != nil {
		return err
	}
	c.log.Info().Str("thread", id).Msg("thread deleted")
	return nil
}

// CreateMessage sends POST /threads/{id}/messages.
func (c *FoundryClient) CreateMessage(ctx context.Context, threadID, role, content string) (domain.Message, error) {
	body := map[string]string{"role": role, "content": content}
	var resp wireMessage
	if err := c.do(ctx, "create message", http.MethodPost, threadPath(threadID, "messages"), nil, body, &resp); err != nil {
		return domain.Message{}, err
	}
	c.log.Debug().Str("thread", threadID).Str("message", resp.ID).Msg("message created")
	return resp.toDomain(), nil
}

// ListMessages pages through GET /threads/{id}/messages in ascending order.
func (c *FoundryClient) ListMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	var out []domain.Message
	query := url.Values{"order": {"asc"}}
	for {
		var page wireMessageList
		if err := c.do(ctx, "list messages", http.MethodGet, threadPath(threadID, "messages"), query, nil, &page); err != nil {
			return nil, err
		}
		for _, m := range page.Data {
			out = append(out, m.toDomain())
		}
		if !page.HasMore || page.LastID == "" {
			break
		}
		query.Set("after", page.LastID)
	}
	c.log.Debug().Str("thread", threadID).Int("count", len(out)).Msg("messages listed")
	return out, nil
}

// CreateRun sends POST /threads/{id}/runs.
func (c *FoundryClient) CreateRun(ctx context.Context, threadID, agentID string) (domain.Run, error) {
	body := map[string]string{"assistant_id": agentID}
	var resp wireRun
	if err := c.do(ctx, "create run", http.MethodPost, threadPath(threadID, "runs"), nil, body, &resp); err != nil {
		return domain.Run{}, err
	}
	c.log.Info().Str("thread", threadID).Str("run", resp.ID).Str("status", resp.Status).Msg("run created")
	return resp.toDomain(), nil
}

// GetRun sends GET /threads/{id}/runs/{run}.
func (c *FoundryClient) GetRun(ctx context.Context, threadID, runID string) (domain.Run, error) {
	var resp wireRun
	if err := c.do(ctx, "get run", http.MethodGet, threadPath(threadID, "runs", runID), nil, nil, &resp); err != nil {
		return domain.Run{}, err
	}
	return resp.toDomain(), nil
}

// SubmitToolOutputs sends POST /threads/{id}/runs/{run}/submit_tool_outputs.
func (c *FoundryClient) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (domain.Run, error) {
	body := wireToolOutputs{}
	for _, o := range outputs {
		body.ToolOutputs = append(body.ToolOutputs, wireToolOutput{ToolCallID: o.ToolCallID, Output: o.Output})
	}
	var resp wireRun
	if err := c.do(ctx, "submit tool outputs", http.MethodPost, threadPath(threadID, "runs", runID, "submit_tool_outputs"), nil, body, &resp); err != nil {
		return domain.Run{}, err
	}
	c.log.Debug().Str("run", runID).Int("outputs", len(outputs)).Msg("tool outputs submitted")
	return resp.toDomain(), nil
}

// do sends one request and decodes a 2xx JSON response into out (if non-nil).
func (c *FoundryClient) do(ctx context.Context, op, method, path string, query url.Values, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	u := *c.base
	u.Path = c.base.Path + path
	q := url.Values{}
	for k, vs := range query {
		q[k] = vs
	}
	if c.apiVersion != "" {
		q.Set("api-version", c.apiVersion)
	}
	u.RawQuery = q.Encode()

	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
	}

	var body any
	if payload != nil {
		body = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(req.Request); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	c.log.Debug().
		Str("op", op).
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("agent service request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeServiceError(op, resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%s: failed to parse response: %w", op, err)
	}
	return nil
}

func (c *FoundryClient) authorize(req *http.Request) error {
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
		return nil
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("acquire token: %w", err)
	}
	tok.SetAuthHeader(req)
	return nil
}

func decodeServiceError(op string, status int, body []byte) *ServiceError {
	svcErr := &ServiceError{Op: op, Status: status}
	var env wireErrorEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		svcErr.Code = env.Error.Code
		svcErr.Message = env.Error.Message
		return svcErr
	}
	svcErr.Message = strings.TrimSpace(string(body))
	if len(svcErr.Message) > 512 {
		svcErr.Message = svcErr.Message[:512]
	}
	return svcErr
}

func threadPath(threadID string, parts ...string) string {
	p := "/threads/" + url.PathEscape(threadID)
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

// leveledLogger routes retryablehttp's logging into zerolog. Retry chatter is debug-level.
// checkRetry applies the default policy to GET and DELETE. Any other method
// creates something remotely, so it is only retried on 429, which the service
// returns before doing any work. A 5xx or a dropped connection may come after
// the create succeeded, and a retry would leak the first resource.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if resp != nil && resp.Request != nil {
		switch resp.Request.Method {
		case http.MethodGet, http.MethodDelete:
		default:
			return resp.StatusCode == http.StatusTooManyRequests, nil
		}
	} else if err != nil {
		var uerr *url.Error
		// net/http reports the method as "Get", "Post" and so on.
		if errors.As(err, &uerr) && !strings.EqualFold(uerr.Op, http.MethodGet) && !strings.EqualFold(uerr.Op, http.MethodDelete) {
			return false, nil
		}
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

type leveledLogger struct{ log *logging.Logger }

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.log.Warn().Fields(kv).Msg(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.log.Warn().Fields(kv).Msg(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.log.Debug().Fields(kv).Msg(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.log.Trace().Fields(kv).Msg(msg) }
