package triage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/triage/internal/domain"
)

// runToCompletion waits for run and, whenever it stops in requires_action,
// answers its tool calls and keeps waiting. At most Poll.MaxToolRounds rounds
// of tool calls are answered; after that the requires_action outcome stands.
// Every wait, including the specialists consulted for tool calls, shares one
// poll timeout measured from the start.
func (d *Driver) runToCompletion(ctx context.Context, tr *tracker, triageID string, run domain.Run, specialists map[domain.Role]domain.Agent) (PollResult, int, error) {
	start := time.Now()
	deadline := d.poller.Deadline(start)
	var total PollResult
	rounds := 0

	for {
		pr, err := d.poller.WaitUntil(ctx, run, deadline)
		total.Run = pr.Run
		total.Outcome = pr.Outcome
		total.Attempts += pr.Attempts
		total.Elapsed = time.Since(start)
		if err != nil || pr.Outcome != domain.OutcomeRequiresAction {
			return total, rounds, err
		}

		calls := pr.Run.RequiredAction
		if len(calls) == 0 {
			return total, rounds, fmt.Errorf("run %s requires action but reported no tool calls", pr.Run.ID)
		}
		if rounds >= d.opts.Poll.MaxToolRounds {
			d.log.Warn().Str("run", pr.Run.ID).Int("rounds", rounds).Msg("tool round limit reached")
			return total, rounds, nil
		}
		rounds++

		d.log.Info().Int("toolCalls", len(calls)).Int("round", rounds).Msg("executing tool calls")
		outputs := d.executeToolCalls(ctx, tr, triageID, calls, specialists, deadline)

		run, err = d.svc.SubmitToolOutputs(ctx, pr.Run.ThreadID, pr.Run.ID, outputs)
		if err != nil {
			return total, rounds, fmt.Errorf("submitting tool outputs: %w", err)
		}
		if run.ThreadID == "" {
			run.ThreadID = pr.Run.ThreadID
		}
	}
}

// toolResult holds the outcome of a single tool call.
type toolResult struct {
	Call   domain.ToolCall
	Output string
	Err    error
}

// executeToolCalls answers each call by consulting the specialist the tool
// names. Failures become the tool's output so the coordinator can carry on.
func (d *Driver) executeToolCalls(ctx context.Context, tr *tracker, triageID string, calls []domain.ToolCall, specialists map[domain.Role]domain.Agent, deadline time.Time) []domain.ToolOutput {
	results := make([]toolResult, 0, len(calls))
	for _, call := range calls {
		def, ok := d.catalog.Get(call.Name)
		if !ok {
			results = append(results, toolResult{Call: call, Err: fmt.Errorf("unknown tool: %s", call.Name)})
			continue
		}
		agent, ok := specialists[def.Role]
		if !ok {
			results = append(results, toolResult{Call: call, Err: fmt.Errorf("no %s agent", def.Role)})
			continue
		}

		d.log.Debug().Str("tool", call.Name).Str("agent", agent.ID).Msg("executing tool")
		content := parseTicketArgs(call.Arguments, call.Arguments)
		out, err := d.consult(ctx, tr, triageID, agent, content, deadline)
		results = append(results, toolResult{Call: call, Output: out, Err: err})
	}
	return formatToolOutputs(results)
}

// consult runs agent on a scratch thread holding content and returns its reply.
func (d *Driver) consult(ctx context.Context, tr *tracker, triageID string, agent domain.Agent, content string, deadline time.Time) (string, error) {
	thread, err := d.createThread(ctx, triageID, tr, "tool:"+agent.Name)
	if err != nil {
		return "", err
	}
	if _, err := d.svc.CreateMessage(ctx, thread.ID, domain.RoleUser, content); err != nil {
		return "", fmt.Errorf("posting to %s: %w", agent.Name, err)
	}
	run, err := d.svc.CreateRun(ctx, thread.ID, agent.ID)
	if err != nil {
		return "", fmt.Errorf("starting %s: %w", agent.Name, err)
	}
	if run.ThreadID == "" {
		run.ThreadID = thread.ID
	}
	pr, err := d.poller.WaitUntil(ctx, run, deadline)
	if err != nil {
		return "", fmt.Errorf("waiting on %s: %w", agent.Name, err)
	}
	if !pr.Outcome.Succeeded() {
		return "", fmt.Errorf("%s run ended %s", agent.Name, pr.Outcome)
	}
	msgs, err := d.svc.ListMessages(ctx, thread.ID)
	if err != nil {
		return "", fmt.Errorf("reading %s reply: %w", agent.Name, err)
	}
	replies := domain.AssistantReplies(msgs)
	if len(replies) == 0 {
		return "", fmt.Errorf("%s gave no reply", agent.Name)
	}
	return strings.Join(replies, "\n"), nil
}

func formatToolOutputs(results []toolResult) []domain.ToolOutput {
	outputs := make([]domain.ToolOutput, len(results))
	for i, r := range results {
		out := r.Output
		if r.Err != nil {
			out = "Error: " + r.Err.Error()
		}
		outputs[i] = domain.ToolOutput{ToolCallID: r.Call.ID, Output: out}
	}
	return outputs
}
