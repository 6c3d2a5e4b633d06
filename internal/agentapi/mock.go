package agentapi

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/soyeahso/triage/internal/domain"
)

// MockService is a test double for Service. Nil funcs return zero values.
type MockService struct {
	BackendName           string
	CreateAgentFunc       func(ctx context.Context, spec domain.AgentSpec) (domain.Agent, error)
	DeleteAgentFunc       func(ctx context.Context, id string) error
	CreateThreadFunc      func(ctx context.Context) (domain.Thread, error)
	DeleteThreadFunc      func(ctx context.Context, id string) error
	CreateMessageFunc     func(ctx context.Context, threadID, role, content string) (domain.Message, error)
	ListMessagesFunc      func(ctx context.Context, threadID string) ([]domain.Message, error)
	CreateRunFunc         func(ctx context.Context, threadID, agentID string) (domain.Run, error)
	GetRunFunc            func(ctx context.Context, threadID, runID string) (domain.Run, error)
	SubmitToolOutputsFunc func(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (domain.Run, error)
}

func (m *MockService) Name() string {
	if m.BackendName == "" {
		return "mock"
	}
	return m.BackendName
}

func (m *MockService) CreateAgent(ctx context.Context, spec domain.AgentSpec) (domain.Agent, error) {
	if m.CreateAgentFunc != nil {
		return m.CreateAgentFunc(ctx, spec)
	}
	return domain.Agent{ID: "asst_" + spec.Name, Model: spec.Model, Name: spec.Name, Instructions: spec.Instructions, Tools: spec.Tools}, nil
}

func (m *MockService) DeleteAgent(ctx context.Context, id string) error {
	if m.DeleteAgentFunc != nil {
		return m.DeleteAgentFunc(ctx, id)
	}
	return nil
}

func (m *MockService) CreateThread(ctx context.Context) (domain.Thread, error) {
	if m.CreateThreadFunc != nil {
		return m.CreateThreadFunc(ctx)
	}
	return domain.Thread{ID: "thread_mock"}, nil
}

func (m *MockService) DeleteThread(ctx context.Context, id string) error {
	if m.DeleteThreadFunc != nil {
		return m.DeleteThreadFunc(ctx, id)
	}
	return nil
}

func (m *MockService) CreateMessage(ctx context.Context, threadID, role, content string) (domain.Message, error) {
	if m.CreateMessageFunc != nil {
		return m.CreateMessageFunc(ctx, threadID, role, content)
	}
	return domain.Message{ID: "msg_mock", ThreadID: threadID, Role: role, Content: content}, nil
}

func (m *MockService) ListMessages(ctx context.Context, threadID string) ([]domain.Message, error) {
	if m.ListMessagesFunc != nil {
		return m.ListMessagesFunc(ctx, threadID)
	}
	return nil, nil
}

func (m *MockService) CreateRun(ctx context.Context, threadID, agentID string) (domain.Run, error) {
	if m.CreateRunFunc != nil {
		return m.CreateRunFunc(ctx, threadID, agentID)
	}
	return domain.Run{ID: "run_mock", ThreadID: threadID, AgentID: agentID, Status: domain.RunQueued}, nil
}

func (m *MockService) GetRun(ctx context.Context, threadID, runID string) (domain.Run, error) {
	if m.GetRunFunc != nil {
		return m.GetRunFunc(ctx, threadID, runID)
	}
	return domain.Run{ID: runID, ThreadID: threadID, Status: domain.RunCompleted}, nil
}

func (m *MockService) SubmitToolOutputs(ctx context.Context, threadID, runID string, outputs []domain.ToolOutput) (domain.Run, error) {
	if m.SubmitToolOutputsFunc != nil {
		return m.SubmitToolOutputsFunc(ctx, threadID, runID, outputs)
	}
	return domain.Run{ID: runID, ThreadID: threadID, Status: domain.RunInProgress}, nil
}

// Call is one recorded FakeService invocation.
type Call struct {
	Op   string
	Args []string
}

// FakeService is an in-memory agent service. Runs walk a scripted list of
// statuses, one step per GetRun, and completed runs append canned replies.
// Every call is recorded.
type FakeService struct {
	// Scripts maps agent names to the statuses GetRun reports in turn; the
	// last status repeats. Agents without a script use DefaultScript.
	Scripts       map[string][]domain.RunStatus
	DefaultScript []domain.RunStatus

	// Replies maps agent names to the assistant messages added when their run completes.
	Replies map[string][]string

	// ToolCalls maps agent names to the calls reported while their run requires action.
	ToolCalls map[string][]domain.ToolCall

	// FailFunc, when set, is consulted before every call with the operation
	// name and its 1-based call count. A non-nil result is returned as the error.
	FailFunc func(op string, n int) error

	mu      sync.Mutex
	agents  map[string]domain.Agent
	threads map[string][]domain.Message
	runs    map[string]*fakeRun
	calls   []Call
	counts  map[string]int
	outputs map[string][]domain.ToolOutput
}

type fakeRun struct {
	run       domain.Run
	agentName string
	pos       int
	replied   bool
}

// NewFakeService returns a FakeService whose runs go in_progress then completed.
func NewFakeService() *FakeService {
	return &FakeService{
		Scripts:       make(map[string][]domain.RunStatus),
		DefaultScript: []domain.RunStatus{domain.RunInProgress, domain.RunCompleted},
		Replies:       make(map[string][]string),
		ToolCalls:     make(map[string][]domain.ToolCall),
		agents:        make(map[string]domain.Agent),
		threads:       make(map[string][]domain.Message),
		runs:          make(map[string]*fakeRun),
		counts:        make(map[string]int),
		outputs:       make(map[string][]domain.ToolOutput),
	}
}

func (f *FakeService) Name() string { return "fake" }

// record notes a call and returns the injected failure for it, if any. Callers hold f.mu.
func (f *FakeService) record(op string, args ...string) error {
	f.calls = append(f.calls, Call{Op: op, Args: args})
	f.counts[op]++
	if f.FailFunc != nil {
		return f.FailFunc(op, f.counts[op])
	}
	return nil
}

func fakeID(prefix string) string {
	return prefix + "_" + uuid.NewString()[:8]
}

func notFound(op, kind, id string) error {
	return &ServiceError{Op: op, Status: 404, Code: "not_found", Message: fmt.Sprintf("no such %s: %s", kind, id)}
}

func (f *FakeService) CreateAgent(_ context.Context, spec domain.AgentSpec) (domain.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateAgent", spec.Name); err != nil {
		return domain.Agent{}, err
	}
	a := domain.Agent{
		ID:           fakeID("asst"),
		Model:        spec.Model,
		Name:         spec.Name,
		Instructions: spec.Instructions,
		Tools:        spec.Tools,
	}
	f.agents[a.ID] = a
	return a, nil
}

func (f *FakeService) DeleteAgent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteAgent", id); err != nil {
		return err
	}
	if _, ok := f.agents[id]; !ok {
		return notFound("delete agent", "agent", id)
	}
	delete(f.agents, id)
	return nil
}

func (f *FakeService) CreateThread(_ context.Context) (domain.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateThread"); err != nil {
		return domain.Thread{}, err
	}
	id := fakeID("thread")
	f.threads[id] = nil
	return domain.Thread{ID: id}, nil
}

func (f *FakeService) DeleteThread(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteThread", id); err != nil {
		return err
	}
	if _, ok := f.threads[id]; !ok {
		return notFound("delete thread", "thread", id)
	}
	delete(f.threads, id)
	return nil
}

func (f *FakeService) CreateMessage(_ context.Context, threadID, role, content string) (domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateMessage", threadID, role); err != nil {
		return domain.Message{}, err
	}
	if _, ok := f.threads[threadID]; !ok {
		return domain.Message{}, notFound("create message", "thread", threadID)
	}
	m := domain.Message{ID: fakeID("msg"), ThreadID: threadID, Role: role, Content: content}
	f.threads[threadID] = append(f.threads[threadID], m)
	return m, nil
}

func (f *FakeService) ListMessages(_ context.Context, threadID string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListMessages", threadID); err != nil {
		return nil, err
	}
	msgs, ok := f.threads[threadID]
	if !ok {
		return nil, notFound("list messages", "thread", threadID)
	}
	return append([]domain.Message(nil), msgs...), nil
}

func (f *FakeService) CreateRun(_ context.Context, threadID, agentID string) (domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateRun", threadID, agentID); err != nil {
		return domain.Run{}, err
	}
	if _, ok := f.threads[threadID]; !ok {
		return domain.Run{}, notFound("create run", "thread", threadID)
	}
	agent, ok := f.agents[agentID]
	if !ok {
		return domain.Run{}, notFound("create run", "agent", agentID)
	}
	r := &fakeRun{
		run:       domain.Run{ID: fakeID("run"), ThreadID: threadID, AgentID: agentID, Status: domain.RunQueued},
		agentName: agent.Name,
	}
	f.runs[r.run.ID] = r
	return r.run, nil
}

func (f *FakeService) GetRun(_ context.Context, threadID, runID string) (domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetRun", threadID, runID); err != nil {
		return domain.Run{}, err
	}
	r, ok := f.runs[runID]
	if !ok || r.run.ThreadID != threadID {
		return domain.Run{}, notFound("get run", "run", runID)
	}

	script, ok := f.Scripts[r.agentName]
	if !ok {
		script = f.DefaultScript
	}
	switch {
	case r.pos < len(script):
		r.run.Status = script[r.pos]
		r.pos++
	case len(script) > 0:
		r.run.Status = script[len(script)-1]
	}

	r.run.RequiredAction = nil
	switch r.run.Status {
	case domain.RunCompleted:
		if !r.replied {
			r.replied = true
			for _, text := range f.Replies[r.agentName] {
				f.threads[threadID] = append(f.threads[threadID], domain.Message{
					ID: fakeID("msg"), ThreadID: threadID, Role: domain.RoleAssistant,
					Content: text, AgentID: r.run.AgentID, RunID: runID,
				})
			}
		}
	case domain.RunRequiresAction:
		r.run.RequiredAction = append([]domain.ToolCall(nil), f.ToolCalls[r.agentName]...)
	case domain.RunFailed:
		r.run.LastError = &domain.RunError{Code: "server_error", Message: "scripted failure"}
	}
	return r.run, nil
}

func (f *FakeService) SubmitToolOutputs(_ context.Context, threadID, runID string, outputs []domain.ToolOutput) (domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("SubmitToolOutputs", threadID, runID); err != nil {
		return domain.Run{}, err
	}
	r, ok := f.runs[runID]
	if !ok || r.run.ThreadID != threadID {
		return domain.Run{}, notFound("submit tool outputs", "run", runID)
	}
	f.outputs[runID] = append(f.outputs[runID], outputs...)
	r.run.Status = domain.RunInProgress
	r.run.RequiredAction = nil
	return r.run, nil
}

// Calls returns every recorded call in order.
func (f *FakeService) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallCount returns how many times op was invoked.
func (f *FakeService) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op]
}

// LiveAgents returns the ids of agents not yet deleted.
func (f *FakeService) LiveAgents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.agents))
	for id := range f.agents {
		ids = append(ids, id)
	}
	return ids
}

// LiveThreads returns the ids of threads not yet deleted.
func (f *FakeService) LiveThreads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.threads))
	for id := range f.threads {
		ids = append(ids, id)
	}
	return ids
}

// Agent returns a live agent by id.
func (f *FakeService) Agent(id string) (domain.Agent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agents[id]
	return a, ok
}

// ToolOutputs returns what was submitted for a run.
func (f *FakeService) ToolOutputs(runID string) []domain.ToolOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ToolOutput(nil), f.outputs[runID]...)
}

// Seed registers an agent or thread id as existing, as if created by an
// earlier process. kind is "agent" or "thread".
func (f *FakeService) Seed(kind, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch kind {
	case "agent":
		f.agents[id] = domain.Agent{ID: id, Name: id}
	case "thread":
		f.threads[id] = nil
	}
}
