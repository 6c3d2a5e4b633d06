package triage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/soyeahso/triage/internal/agentapi"
	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/hooks"
	"github.com/soyeahso/triage/internal/metrics"
	"github.com/soyeahso/triage/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const coordinatorName = "Support Ticket Triage Agent"

func testDriver(t *testing.T, svc agentapi.Service, mutate ...func(*Options)) *Driver {
	t.Helper()
	opts := Options{Model: "gpt-4o", Poll: fastPoll()}
	for _, m := range mutate {
		m(&opts)
	}
	d, err := NewDriver(svc, opts, silentLog())
	require.NoError(t, err)
	return d
}

func opsOf(calls []agentapi.Call, op string) []agentapi.Call {
	var out []agentapi.Call
	for _, c := range calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func TestNewDriverRequiresModel(t *testing.T) {
	_, err := NewDriver(agentapi.NewFakeService(), Options{}, silentLog())
	assert.Error(t, err)
}

func TestTriage_HappyPath(t *testing.T) {
	fake := agentapi.NewFakeService()
	fake.Scripts[coordinatorName] = []domain.RunStatus{domain.RunInProgress, domain.RunInProgress, domain.RunCompleted}
	fake.Replies[coordinatorName] = []string{"Priority: Critical. Team: Technical Support. Effort: 4 hours."}
	d := testDriver(t, fake)

	ticket := domain.SampleTicket()
	res, err := d.Triage(context.Background(), ticket)
	require.NoError(t, err)

	// Exactly four agents created, specialists first, and four deleted.
	calls := fake.Calls()
	creates := opsOf(calls, "CreateAgent")
	require.Len(t, creates, 4)
	assert.Equal(t, []string{"Ticket Prioritization Agent"}, creates[0].Args)
	assert.Equal(t, []string{coordinatorName}, creates[3].Args)
	assert.Len(t, opsOf(calls, "DeleteAgent"), 4)
	assert.Len(t, opsOf(calls, "CreateThread"), 1)
	assert.Len(t, opsOf(calls, "DeleteThread"), 1)
	assert.Empty(t, fake.LiveAgents())
	assert.Empty(t, fake.LiveThreads())

	// Agents are deleted in creation order, then the thread.
	var deletes []string
	for _, c := range calls {
		if c.Op == "DeleteAgent" || c.Op == "DeleteThread" {
			deletes = append(deletes, c.Args[0])
		}
	}
	require.Len(t, res.Agents, 4)
	assert.Equal(t, []string{res.Agents[0].ID, res.Agents[1].ID, res.Agents[2].ID, res.Agents[3].ID, res.ThreadID}, deletes)

	// The coordinator's tools point at the specialists.
	coord := res.Agents[3]
	require.Len(t, coord.Tools, 3)
	for i, tool := range coord.Tools {
		assert.Equal(t, domain.ToolConnectedAgent, tool.Kind)
		assert.Equal(t, res.Agents[i].ID, tool.AgentID)
	}

	// The run was polled until it left the pending states.
	assert.Equal(t, domain.OutcomeCompleted, res.Outcome)
	assert.Equal(t, domain.RunCompleted, res.Run.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.Len(t, opsOf(calls, "GetRun"), 3)

	// The transcript holds the ticket and the reply.
	require.Len(t, res.Transcript, 2)
	assert.Equal(t, domain.RoleUser, res.Transcript[0].Role)
	assert.Contains(t, res.Transcript[0].Content, ticket.Description)
	assert.Contains(t, res.Transcript[0].Content, "Please triage this support ticket")
	assert.Equal(t, []string{"Priority: Critical. Team: Technical Support. Effort: 4 hours."}, res.Replies)

	assert.Equal(t, 5, res.Deleted)
	assert.NoError(t, res.CleanupErr)
	assert.NotEmpty(t, res.TriageID)
	assert.Equal(t, "fake", res.Backend)
}

func TestTriage_FailedRunStillPrintsAndCleansUp(t *testing.T) {
	fake := agentapi.NewFakeService()
	fake.Scripts[coordinatorName] = []domain.RunStatus{domain.RunInProgress, domain.RunFailed}
	d := testDriver(t, fake)

	res, err := d.Triage(context.Background(), domain.SampleTicket())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	require.NotNil(t, res.Run.LastError)
	assert.Equal(t, 1, fake.CallCount("ListMessages"))
	assert.Empty(t, res.Replies)
	assert.Len(t, res.Transcript, 1)
	assert.Equal(t, 4, fake.CallCount("DeleteAgent"))
	assert.Empty(t, fake.LiveAgents())
	assert.Empty(t, fake.LiveThreads())
}

func TestTriage_NoRepliesStillCleansUp(t *testing.T) {
	fake := agentapi.NewFakeService()
	d := testDriver(t, fake)

	res, err := d.Triage(context.Background(), domain.SampleTicket())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, res.Outcome)
	assert.Empty(t, res.Replies)
	assert.Equal(t, 4, fake.CallCount("DeleteAgent"))
	assert.Empty(t, fake.LiveAgents())
}

func TestTriage_PollBudgetExhausted(t *testing.T) {
	fake := agentapi.NewFakeService()
	fake.Scripts[coordinatorName] = []domain.RunStatus{domain.RunInProgress}
	d := testDriver(t, fake, func(o *Options) { o.Poll.MaxAttempts = 3 })

	res, err := d.Triage(context.Background(), domain.SampleTicket())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeTimedOut, res.Outcome)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, 1, fake.CallCount("ListMessages"))
	assert.Empty(t, fake.LiveAgents())
	assert.Empty(t, fake.LiveThreads())
}

func TestTriage_CancelledContextStillCleansUp(t *testing.T) {
	fake := agentapi.NewFakeService()
	fake.Scripts[coordinatorName] = []domain.RunStatus{domain.RunInProgress}
	ctx, cancel := context.WithCancel(context.Background())
	fake.FailFunc = func(op string, n int) error {
		if op == "GetRun" && n == 2 {
			cancel()
		}
		return nil
	}
	d := testDriver(t, fake)

	res, err := d.Triage(ctx, domain.SampleTicket())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, domain.OutcomeTimedOut, res.Outcome)
	assert.Equal(t, 4, fake.CallCount("DeleteAgent"))
	assert.Empty(t, fake.LiveAgents())
	assert.Empty(t, fake.LiveThreads())
}

func TestTriage_AgentCreateFailureCleansUpPartial(t *testing.T) {
	boom := errors.New("quota exceeded")
	fake := agentapi.NewFakeService()
	fake.FailFunc = func(op string, n int) error {
		if op == "CreateAgent" && n == 3 {
			return boom
		}
		return nil
	}
	d := testDriver(t, fake)

	res, err := d.Triage(context.Background(), domain.SampleTicket())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "estimation")
	require.NotNil(t, res)
	assert.Len(t, res.Agents, 2)
	assert.Equal(t, 2, fake.CallCount("DeleteAgent"))
	assert.Zero(t, fake.CallCount("CreateThread"))
	assert.Zero(t, fake.CallCount("DeleteThread"))
	assert.Empty(t, fake.LiveAgents())
}

func TestTriage_RunCreateFailureCleansUpEverything(t *testing.T) {
	fake := agentapi.NewFakeService()
	fake.FailFunc = func(op string, n int) error {
		if op == "CreateRun" {
			return &agentapi.ServiceError{Op: "create run", Status: 400, Message: "bad assistant"}
		}
		return nil
	}
	d := testDriver(t, fake)

	_, err := d.Triage(context.Background(), domain.SampleTicket())
	require.Error(t, err)
	assert.Zero(t, fake.CallCount("GetRun"))
	assert.Empty(t, fake.LiveAgents())
	assert.Empty(t, fake.LiveThreads())
}

func TestTriage_CleanupToleratesNotFoundAndReportsFailures(t *testing.T) {
	fake := agentapi.NewFakeService()
	fake.FailFunc = func(op string, n int) error {
		switch {
		case op == "DeleteAgent" && n == 1:
			return &agentapi.ServiceError{Op: "delete agent", Status: 404}
		case op == "DeleteAgent" && n == 2:
			return &agentapi.ServiceError{Op: "delete agent", Status: 500, Message: "oops"}
		}
		return nil
	}
	var failures []string
	var mu sync.Mutex
	hm := hooks.NewManager(silentLog())
	require.NoError(t, hm.On(hooks.EventCleanupFailed, "test", func(_ context.Context, p hooks.Payload) error {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, p.Data["kind"].(string))
		return nil
	}))
	d := testDriver(t, fake, func(o *Options) { o.Hooks = hm })

	res, err := d.Triage(context.Background(), domain.SampleTicket())
	require.NoError(t, err, "cleanup errors do not mask the triage result")
	require.Error(t, res.CleanupErr)
	assert.Contains(t, res.CleanupError, "oops")
	assert.Equal(t, 4, res.Deleted, "404 counts as deleted, the 500 does not")
	assert.Equal(t, 4, fake.CallCount("DeleteAgent"), "later deletes still run")
	assert.Equal(t, 1, fake.CallCount("DeleteThread"))
	assert.Equal(t, []string{store.KindAgent}, failures)
}

func TestTriage_KeepSkipsCleanup(t *testing.T) {
	fake := agentapi.NewFakeService()
	d := testDriver(t, fake, func(o *Options) { o.Keep = true })

	res, err := d.Triage(context.Background(), domain.SampleTicket())
	require.NoError(t, err)
	assert.True(t, res.Kept)
	assert.Zero(t, fake.CallCount("DeleteAgent"))
	assert.Len(t, fake.LiveAgents(), 4)
	assert.Len(t, fake.LiveThreads(), 1)
}

func TestTriage_InvalidTicket(t *testing.T) {
	fake := agentapi.NewFakeService()
	d := testDriver(t, fake)

	res, err := d.Triage(context.Background(), domain.Ticket{Subject: "only a subject"})
	assert.Error(t, err)
	assert.Nil(t, res)
	assert.Empty(t, fake.Calls())
}

func TestTriage_TicketTokenLimit(t *testing.T) {
	fake := agentapi.NewFakeService()
	d := testDriver(t, fake, func(o *Options) { o.MaxTicketTokens = 10 })

	res, err := d.Triage(context.Background(), domain.SampleTicket())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "over the limit of 10")
	assert.Nil(t, res)
	assert.Empty(t, fake.Calls())

	d = testDriver(t, fake, func(o *Options) { o.MaxTicketTokens = 8000 })
	res, err = d.Triage(context.Background(), domain.SampleTicket())
	require.NoError(t, err)
	assert.Greater(t, res.TicketTokens, 10)
}

func TestCountTokens(t *testing.T) {
	assert.Equal(t, 2, countTokens("hello world"))
	assert.Zero(t, countTokens(""))
}

func TestTriage_FunctionModeDispatchesToSpecialists(t *testing.T) {
	fake := agentapi.NewFakeService()
	fake.Scripts[coordinatorName] = []domain.RunStatus{domain.RunRequiresAction, domain.RunInProgress, domain.RunCompleted}
	fake.ToolCalls[coordinatorName] = []domain.ToolCall{
		{ID: "call_p", Name: "prioritize_ticket", Arguments: `{"ticket_content":"db is down"}`},
		{ID: "call_a", Name: "assign_ticket", Arguments: `{"ticket_content":"db is down"}`},
		{ID: "call_x", Name: "summon_dragon", Arguments: `{}`},
	}
	fake.Replies["Ticket Prioritization Agent"] = []string{"Critical"}
	fake.Replies["Ticket Assignment Agent"] = []string{"Technical Support"}
	fake.Replies[coordinatorName] = []string{"Critical, Technical Support"}
	d := testDriver(t, fake, func(o *Options) { o.ToolsMode = config.ToolsFunction })

	res, err := d.Triage(context.Background(), domain.SampleTicket())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, res.Outcome)
	assert.Equal(t, 1, res.ToolRounds)
	assert.Equal(t, []string{"Critical, Technical Support"}, res.Replies)

	for _, tool := range res.Agents[3].Tools {
		assert.Equal(t, domain.ToolFunction, tool.Kind)
	}

	outputs := fake.ToolOutputs(res.Run.ID)
	require.Len(t, outputs, 3)
	assert.Equal(t, domain.ToolOutput{ToolCallID: "call_p", Output: "Critical"}, outputs[0])
	assert.Equal(t, domain.ToolOutput{ToolCallID: "call_a", Output: "Technical Support"}, outputs[1])
	assert.Contains(t, outputs[2].Output, "unknown tool")

	// Main thread plus two scratch threads, all deleted.
	assert.Equal(t, 3, fake.CallCount("CreateThread"))
	assert.Equal(t, 3, fake.CallCount("DeleteThread"))
	assert.Empty(t, fake.LiveThreads())
	assert.Empty(t, fake.LiveAgents())
}

func TestTriage_FunctionModeSharesPollTimeout(t *testing.T) {
	fake := agentapi.NewFakeService()
	fake.Scripts[coordinatorName] = []domain.RunStatus{domain.RunRequiresAction, domain.RunInProgress}
	fake.ToolCalls[coordinatorName] = []domain.ToolCall{
		{ID: "call_p", Name: "prioritize_ticket", Arguments: `{"ticket_content":"x"}`},
		{ID: "call_a", Name: "assign_ticket", Arguments: `{"ticket_content":"x"}`},
		{ID: "call_e", Name: "estimate_effort", Arguments: `{"ticket_content":"x"}`},
	}
	for _, name := range []string{"Ticket Prioritization Agent", "Ticket Assignment Agent", "Effort Estimation Agent"} {
		fake.Scripts[name] = []domain.RunStatus{domain.RunInProgress}
	}
	d := testDriver(t, fake, func(o *Options) {
		o.ToolsMode = config.ToolsFunction
		o.Poll.Timeout = 300 * time.Millisecond
	})

	start := time.Now()
	res, err := d.Triage(context.Background(), domain.SampleTicket())
	require.NoError(t, err)
	// Three stuck specialists and the coordinator would take 1.2s with a
	// timeout per wait.
	assert.Less(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, domain.OutcomeTimedOut, res.Outcome)

	outputs := fake.ToolOutputs(res.Run.ID)
	require.Len(t, outputs, 3)
	for _, o := range outputs {
		assert.Contains(t, o.Output, "timed_out")
	}
	assert.Empty(t, fake.LiveThreads())
	assert.Empty(t, fake.LiveAgents())
}

func TestTriage_FunctionModeToolRoundLimit(t *testing.T) {
	fake := agentapi.NewFakeService()
	fake.Scripts[coordinatorName] = []domain.RunStatus{domain.RunRequiresAction}
	fake.ToolCalls[coordinatorName] = []domain.ToolCall{{ID: "call_e", Name: "estimate_effort", Arguments: `{"ticket_content":"x"}`}}
	fake.Replies["Effort Estimation Agent"] = []string{"4 hours"}
	d := testDriver(t, fake, func(o *Options) {
		o.ToolsMode = config.ToolsFunction
		o.Poll.MaxToolRounds = 2
	})

	res, err := d.Triage(context.Background(), domain.SampleTicket())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRequiresAction, res.Outcome)
	assert.Equal(t, 2, res.ToolRounds)
	assert.Equal(t, 2, fake.CallCount("SubmitToolOutputs"))
	assert.Empty(t, fake.LiveThreads())
}

func TestTriage_RecordsLedgerAndHistory(t *testing.T) {
	db, err := store.Open(":memory:", silentLog())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fake := agentapi.NewFakeService()
	fake.Replies[coordinatorName] = []string{"Critical"}
	d := testDriver(t, fake, func(o *Options) {
		o.Ledger = db
		o.Endpoint = "https://example.services.ai.azure.com/api/projects/demo"
	})

	res, err := d.Triage(context.Background(), domain.SampleTicket())
	require.NoError(t, err)

	ctx := context.Background()
	resources, err := db.ResourcesForTriage(ctx, res.TriageID)
	require.NoError(t, err)
	assert.Len(t, resources, 5)
	for _, r := range resources {
		assert.NotNil(t, r.DeletedAt, "%s %s should be marked deleted", r.Kind, r.RemoteID)
		assert.Equal(t, "fake", r.Backend)
		assert.Equal(t, "https://example.services.ai.azure.com/api/projects/demo", r.Endpoint)
	}

	outstanding, err := db.Outstanding(ctx)
	require.NoError(t, err)
	assert.Empty(t, outstanding)

	rec, err := db.GetTriage(ctx, res.TriageID)
	require.NoError(t, err)
	assert.Equal(t, "completed", rec.Outcome)
	assert.Equal(t, "Critical", rec.Reply)
	assert.Equal(t, "Critical Database Connection Issue", rec.Subject)
	assert.Equal(t, res.ThreadID, rec.ThreadID)
	assert.NotNil(t, rec.FinishedAt)
}

func TestTriage_KeepLeavesLedgerOutstanding(t *testing.T) {
	db, err := store.Open(":memory:", silentLog())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	d := testDriver(t, agentapi.NewFakeService(), func(o *Options) {
		o.Ledger = db
		o.Keep = true
	})
	_, err = d.Triage(context.Background(), domain.SampleTicket())
	require.NoError(t, err)

	outstanding, err := db.Outstanding(context.Background())
	require.NoError(t, err)
	assert.Len(t, outstanding, 5)
	assert.Equal(t, store.KindAgent, outstanding[0].Kind)
	assert.Equal(t, store.KindThread, outstanding[4].Kind)
}

func TestTriage_EmitsHooks(t *testing.T) {
	hm := hooks.NewManager(silentLog())
	var events []string
	for _, ev := range hooks.AllEvents {
		require.NoError(t, hm.On(ev, "recorder", func(_ context.Context, p hooks.Payload) error {
			events = append(events, p.Event)
			return nil
		}))
	}
	var finished hooks.Payload
	require.NoError(t, hm.On(hooks.EventRunFinished, "capture", func(_ context.Context, p hooks.Payload) error {
		finished = p
		return nil
	}))

	d := testDriver(t, agentapi.NewFakeService(), func(o *Options) { o.Hooks = hm })
	res, err := d.Triage(context.Background(), domain.SampleTicket())
	require.NoError(t, err)

	assert.Equal(t, []string{
		hooks.EventBeforeTriage,
		hooks.EventAgentsCreated,
		hooks.EventRunFinished,
		hooks.EventAfterTriage,
	}, events)
	assert.Equal(t, "completed", finished.Data["outcome"])
	assert.Equal(t, res.ThreadID, finished.Data["threadId"])
}

func TestTriage_RecordsMetrics(t *testing.T) {
	rec := metrics.New()
	fake := agentapi.NewFakeService()
	fake.FailFunc = func(op string, n int) error {
		if op == "DeleteThread" {
			return &agentapi.ServiceError{Op: "delete thread", Status: 500}
		}
		return nil
	}
	svc := agentapi.Instrument(fake, rec)
	d := testDriver(t, svc, func(o *Options) { o.Metrics = rec })

	_, err := d.Triage(context.Background(), domain.SampleTicket())
	require.NoError(t, err)

	expected := `
# HELP triage_runs_total Finished triage runs by outcome
# TYPE triage_runs_total counter
triage_runs_total{outcome="completed"} 1
# HELP triage_cleanup_failures_total Remote resources that could not be deleted, by kind
# TYPE triage_cleanup_failures_total counter
triage_cleanup_failures_total{kind="thread"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected),
		"triage_runs_total", "triage_cleanup_failures_total"))

	n, err := testutil.GatherAndCount(rec.Registry(), "triage_api_requests_total")
	require.NoError(t, err)
	assert.Positive(t, n)
}
