package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soyeahso/triage/internal/agentapi"
	"github.com/soyeahso/triage/internal/config"
	"github.com/soyeahso/triage/internal/domain"
	"github.com/soyeahso/triage/internal/hooks"
	"github.com/soyeahso/triage/internal/logging"
	"github.com/soyeahso/triage/internal/metrics"
	"github.com/soyeahso/triage/internal/store"
)

// defaultCleanupTimeout bounds the deletes issued after a triage.
const defaultCleanupTimeout = 30 * time.Second

// Options configures a Driver. Ledger, Hooks and Metrics are optional.
type Options struct {
	Model           string
	ToolsMode       string // config.ToolsConnected or config.ToolsFunction
	Poll            config.PollConfig
	Roster          Roster       // nil uses DefaultRoster
	Catalog         *ToolCatalog // nil uses DefaultCatalog
	Keep            bool         // leave remote resources in place
	CleanupTimeout  time.Duration
	MaxTicketTokens int    // refuse longer ticket prompts; 0 means no limit
	Endpoint        string // recorded in the ledger so cleanup targets the same project

	Ledger  *store.DB
	Hooks   *hooks.Manager
	Metrics *metrics.Recorder
}

// Result is everything a triage produced.
type Result struct {
	TriageID     string           `json:"triageId"`
	Backend      string           `json:"backend"`
	Ticket       domain.Ticket    `json:"ticket"`
	TicketTokens int              `json:"ticketTokens"`
	Agents       []domain.Agent   `json:"agents"`
	ThreadID     string           `json:"threadId,omitempty"`
	Run          domain.Run       `json:"run"`
	Outcome      domain.Outcome   `json:"outcome,omitempty"`
	Transcript   []domain.Message `json:"transcript"`
	Replies      []string         `json:"replies"`
	Attempts     int              `json:"attempts"`
	ToolRounds   int              `json:"toolRounds,omitempty"`
	Duration     time.Duration    `json:"duration"`
	Kept         bool             `json:"kept,omitempty"`
	Deleted      int              `json:"deleted"`
	CleanupError string           `json:"cleanupError,omitempty"`
	CleanupErr   error            `json:"-"`
}

// Driver runs the triage procedure against an agent service.
type Driver struct {
	svc     agentapi.Service
	opts    Options
	roster  Roster
	catalog *ToolCatalog
	poller  *Poller
	log     *logging.Logger
}

// NewDriver creates a driver. svc should already be instrumented if metrics
// for individual requests are wanted.
func NewDriver(svc agentapi.Service, opts Options, log *logging.Logger) (*Driver, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("triage: model is required")
	}
	if opts.ToolsMode == "" {
		opts.ToolsMode = config.ToolsConnected
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = defaultCleanupTimeout
	}
	if opts.Poll.MaxToolRounds <= 0 {
		opts.Poll.MaxToolRounds = config.Defaults().Poll.MaxToolRounds
	}

	roster := opts.Roster
	if roster == nil {
		roster = DefaultRoster()
	}
	if err := roster.Validate(); err != nil {
		return nil, err
	}
	catalog := opts.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	return &Driver{
		svc:     svc,
		opts:    opts,
		roster:  roster,
		catalog: catalog,
		poller:  NewPoller(svc, opts.Poll, opts.Metrics, log),
		log:     log.Sub("triage.driver"),
	}, nil
}

// created is a remote resource this triage is responsible for deleting.
type created struct {
	kind string
	id   string
	name string
}

// tracker remembers created resources in creation order.
type tracker struct {
	agents  []created
	threads []created
}

// Triage creates the agent team, posts the ticket on a new thread, runs the
// coordinator, waits for it and collects the transcript. Every resource that
// was created is deleted before returning, whether or not the triage
// succeeded. The returned Result is non-nil whenever the ticket was accepted,
// even when err is set, and holds whatever was gathered.
func (d *Driver) Triage(ctx context.Context, ticket domain.Ticket) (res *Result, err error) {
	if err := ticket.Validate(); err != nil {
		return nil, err
	}
	tokens := countTokens(ticket.Prompt())
	if d.opts.MaxTicketTokens > 0 && tokens > d.opts.MaxTicketTokens {
		return nil, fmt.Errorf("ticket is %d tokens, over the limit of %d", tokens, d.opts.MaxTicketTokens)
	}

	start := time.Now()
	res = &Result{TriageID: uuid.NewString(), Backend: d.svc.Name(), Ticket: ticket, TicketTokens: tokens}
	tr := &tracker{}
	log := d.log.With("triage", res.TriageID)

	d.startHistory(ctx, res)
	d.opts.Hooks.Emit(ctx, hooks.EventBeforeTriage, map[string]any{
		"triageId": res.TriageID,
		"subject":  ticket.Subject,
	})

	defer func() {
		if d.opts.Keep {
			res.Kept = true
			log.Warn().Int("agents", len(tr.agents)).Int("threads", len(tr.threads)).Msg("keeping remote resources")
		} else {
			res.Deleted, res.CleanupErr = d.cleanup(ctx, res.TriageID, tr)
			if res.CleanupErr != nil {
				res.CleanupError = res.CleanupErr.Error()
			}
		}
		res.Duration = time.Since(start)
		d.finishHistory(ctx, res, err)
		d.opts.Hooks.Emit(context.WithoutCancel(ctx), hooks.EventAfterTriage, map[string]any{
			"triageId": res.TriageID,
			"threadId": res.ThreadID,
			"outcome":  string(res.Outcome),
			"replies":  len(res.Replies),
			"error":    errString(err),
		})
		log.Info().Str("outcome", string(res.Outcome)).Dur("duration", res.Duration).Msg("triage finished")
	}()

	// Specialists first; the coordinator's tools point at them.
	specialists := make(map[domain.Role]domain.Agent)
	for _, m := range d.roster.Specialists() {
		agent, err := d.createAgent(ctx, res, tr, m, nil)
		if err != nil {
			return res, err
		}
		specialists[m.Role] = agent
	}

	tools, err := d.catalog.Build(d.opts.ToolsMode, specialists)
	if err != nil {
		return res, err
	}
	coordMember, _ := d.roster.Member(domain.RoleTriage)
	coordinator, err := d.createAgent(ctx, res, tr, coordMember, tools)
	if err != nil {
		return res, err
	}
	d.opts.Hooks.Emit(ctx, hooks.EventAgentsCreated, map[string]any{
		"triageId": res.TriageID,
		"agents":   agentIDs(res.Agents),
	})

	thread, err := d.createThread(ctx, res.TriageID, tr, "triage")
	if err != nil {
		return res, err
	}
	res.ThreadID = thread.ID

	if _, err := d.svc.CreateMessage(ctx, thread.ID, domain.RoleUser, ticket.Prompt()); err != nil {
		return res, fmt.Errorf("posting ticket: %w", err)
	}

	run, err := d.svc.CreateRun(ctx, thread.ID, coordinator.ID)
	if err != nil {
		return res, fmt.Errorf("starting run: %w", err)
	}
	if run.ThreadID == "" {
		run.ThreadID = thread.ID
	}
	res.Run = run

	pr, rounds, pollErr := d.runToCompletion(ctx, tr, res.TriageID, run, specialists)
	res.Run = pr.Run
	res.Outcome = pr.Outcome
	res.Attempts = pr.Attempts
	res.ToolRounds = rounds
	d.opts.Metrics.ObserveRun(string(pr.Outcome), pr.Elapsed, pr.Run.Usage.PromptTokens, pr.Run.Usage.CompletionTokens)
	d.opts.Hooks.Emit(ctx, hooks.EventRunFinished, map[string]any{
		"triageId": res.TriageID,
		"threadId": thread.ID,
		"runId":    pr.Run.ID,
		"outcome":  string(pr.Outcome),
		"attempts": pr.Attempts,
	})

	if pr.Outcome.Succeeded() {
		log.Info().Str("run", pr.Run.ID).Int("attempts", pr.Attempts).Msg("run completed")
	} else {
		ev := log.Warn().Str("run", pr.Run.ID).Str("outcome", string(pr.Outcome)).Int("attempts", pr.Attempts)
		if pr.Run.LastError != nil {
			ev = ev.Str("lastError", pr.Run.LastError.Message)
		}
		ev.Msg("run did not complete")
	}

	// Whatever the outcome, show what the thread holds. A cancelled ctx still
	// gets a short window to fetch it.
	listCtx, cancel := detached(ctx, d.opts.CleanupTimeout)
	defer cancel()
	msgs, listErr := d.svc.ListMessages(listCtx, thread.ID)
	if listErr != nil {
		listErr = fmt.Errorf("listing messages: %w", listErr)
	}
	res.Transcript = msgs
	res.Replies = domain.AssistantReplies(msgs)

	return res, errors.Join(pollErr, listErr)
}

func (d *Driver) createAgent(ctx context.Context, res *Result, tr *tracker, m Member, tools []domain.Tool) (domain.Agent, error) {
	agent, err := d.svc.CreateAgent(ctx, m.spec(d.opts.Model, tools))
	if err != nil {
		return domain.Agent{}, fmt.Errorf("creating %s agent: %w", m.Role, err)
	}
	tr.agents = append(tr.agents, created{kind: store.KindAgent, id: agent.ID, name: agent.Name})
	res.Agents = append(res.Agents, agent)
	d.record(ctx, res.TriageID, store.KindAgent, agent.ID, agent.Name)
	d.log.Info().Str("role", string(m.Role)).Str("agent", agent.ID).Msg("created agent")
	return agent, nil
}

func (d *Driver) createThread(ctx context.Context, triageID string, tr *tracker, purpose string) (domain.Thread, error) {
	thread, err := d.svc.CreateThread(ctx)
	if err != nil {
		return domain.Thread{}, fmt.Errorf("creating %s thread: %w", purpose, err)
	}
	tr.threads = append(tr.threads, created{kind: store.KindThread, id: thread.ID, name: purpose})
	d.record(ctx, triageID, store.KindThread, thread.ID, purpose)
	return thread, nil
}

// cleanup deletes agents in creation order, then threads. A 404 counts as
// deleted. It runs on a context detached from ctx's cancellation.
func (d *Driver) cleanup(ctx context.Context, triageID string, tr *tracker) (int, error) {
	ctx, cancel := detached(ctx, d.opts.CleanupTimeout)
	defer cancel()

	var errs []error
	deleted := 0
	for _, r := range append(append([]created{}, tr.agents...), tr.threads...) {
		var err error
		if r.kind == store.KindAgent {
			err = d.svc.DeleteAgent(ctx, r.id)
		} else {
			err = d.svc.DeleteThread(ctx, r.id)
		}
		if err != nil && !agentapi.IsNotFound(err) {
			d.log.Error().Err(err).Str("kind", r.kind).Str("id", r.id).Msg("cleanup failed")
			d.opts.Metrics.IncCleanupFailure(r.kind)
			d.opts.Hooks.Emit(ctx, hooks.EventCleanupFailed, map[string]any{
				"triageId": triageID,
				"kind":     r.kind,
				"id":       r.id,
				"error":    err.Error(),
			})
			errs = append(errs, fmt.Errorf("deleting %s %s: %w", r.kind, r.id, err))
			continue
		}
		deleted++
		if d.opts.Ledger != nil {
			if err := d.opts.Ledger.MarkDeleted(ctx, r.kind, r.id); err != nil {
				d.log.Warn().Err(err).Str("id", r.id).Msg("ledger update failed")
			}
		}
	}
	return deleted, errors.Join(errs...)
}

func (d *Driver) record(ctx context.Context, triageID, kind, id, name string) {
	if d.opts.Ledger == nil {
		return
	}
	err := d.opts.Ledger.Record(context.WithoutCancel(ctx), store.Resource{
		TriageID: triageID,
		Kind:     kind,
		RemoteID: id,
		Name:     name,
		Backend:  d.svc.Name(),
		Endpoint: d.opts.Endpoint,
	})
	if err != nil {
		d.log.Warn().Err(err).Str("id", id).Msg("ledger record failed")
	}
}

func (d *Driver) startHistory(ctx context.Context, res *Result) {
	if d.opts.Ledger == nil {
		return
	}
	err := d.opts.Ledger.StartTriage(ctx, store.TriageRecord{
		ID:        res.TriageID,
		Subject:   res.Ticket.Subject,
		Body:      res.Ticket.Text(),
		Backend:   res.Backend,
		Model:     d.opts.Model,
		StartedAt: time.Now(),
	})
	if err != nil {
		d.log.Warn().Err(err).Msg("history start failed")
	}
}

func (d *Driver) finishHistory(ctx context.Context, res *Result, triageErr error) {
	if d.opts.Ledger == nil {
		return
	}
	err := d.opts.Ledger.FinishTriage(context.WithoutCancel(ctx), store.TriageRecord{
		ID:               res.TriageID,
		ThreadID:         res.ThreadID,
		RunID:            res.Run.ID,
		Outcome:          string(res.Outcome),
		Reply:            strings.Join(res.Replies, "\n\n"),
		Attempts:         res.Attempts,
		PromptTokens:     res.Run.Usage.PromptTokens,
		CompletionTokens: res.Run.Usage.CompletionTokens,
		Error:            errString(errors.Join(triageErr, res.CleanupErr)),
	})
	if err != nil {
		d.log.Warn().Err(err).Msg("history finish failed")
	}
}

// detached returns a context that ignores ctx's cancellation but keeps its
// values, bounded by timeout.
func detached(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func agentIDs(agents []domain.Agent) []string {
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	return ids
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
