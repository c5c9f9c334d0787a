package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mtzanidakis/taskmaster/internal/channel"
)

// Wrapper interposes on every tool execution. It is the only component that
// mutates the interaction registry: it creates a pending record when a
// wrapped tool returns a delegation signal, and it resolves or rejects the
// record when the agent's completion envelope comes back through the broker
// tool. Command cores and savers never see the registry.
type Wrapper struct {
	registry   *Registry
	channel    *channel.Local
	savers     *SaverRegistry
	events     EventSink
	defaultTag string
	log        *slog.Logger

	// background dispatches and saver runs, drained on shutdown and by tests
	bg sync.WaitGroup
}

func NewWrapper(reg *Registry, ch *channel.Local, savers *SaverRegistry, events EventSink, defaultTag string, log *slog.Logger) *Wrapper {
	if events == nil {
		events = nopSink{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Wrapper{
		registry:   reg,
		channel:    ch,
		savers:     savers,
		events:     events,
		defaultTag: defaultTag,
		log:        log,
	}
}

// Register installs the tool on the channel behind the wrapper.
func (w *Wrapper) Register(t channel.Tool) error {
	return w.channel.Register(w.Wrap(t))
}

// Drain waits for in-flight directive dispatches and saver runs. Shutdown
// and test helper.
func (w *Wrapper) Drain() {
	w.bg.Wait()
}

func (w *Wrapper) Wrap(t channel.Tool) channel.Tool {
	execute := t.Execute
	wrapped := t
	wrapped.Execute = func(ctx context.Context, inv channel.Invocation) (any, error) {
		result, err := execute(ctx, inv)
		if err != nil {
			return result, err
		}

		// Agent callback path: the broker tool produced a completion
		// envelope for an interaction this process owns.
		if env := asCompletionEnvelope(result); env != nil {
			return w.handleAgentCallback(env)
		}

		if pending, ok := DetectDelegationSignal(result); ok {
			return w.handleDelegation(ctx, t.Name, inv, result, pending)
		}

		return result, nil
	}
	return wrapped
}

// handleDelegation implements the host side: validate, insert the pending
// record, then dispatch the directive in the background. The caller gets the
// wrapped tool's result back unchanged; the delegation signal is part of the
// interface contract with whoever drives the agent.
func (w *Wrapper) handleDelegation(ctx context.Context, toolName string, inv channel.Invocation, result any, pending PendingInteraction) (any, error) {
	if pending.InteractionID == "" {
		return nil, Errorf(CodeInvalidBrokerArgs, "delegation signal from %s carries no interactionId", toolName)
	}
	if _, ok := w.channel.Lookup(ToolName); !ok {
		return nil, Errorf(CodeDispatchFailed, "broker tool %s is not registered", ToolName)
	}

	rec := newRecord(pending.InteractionID, toolName, inv.Args, inv.Session, pending.DelegatedCallDetails)
	if err := w.registry.Insert(rec); err != nil {
		return nil, Errorf(CodeDispatchFailed, "%v", err)
	}
	w.emit(rec, StateDispatching, "")

	// The record must be in the registry before the directive leaves the
	// process, otherwise a fast agent callback races the insert.
	bgCtx := context.WithoutCancel(ctx)
	w.bg.Add(1)
	go func() {
		defer w.bg.Done()
		w.dispatchDirective(bgCtx, rec, inv.Session)
	}()

	return result, nil
}

func (w *Wrapper) dispatchDirective(ctx context.Context, rec *Record, sess channel.Session) {
	args := map[string]any{
		"interactionId":        rec.InteractionID,
		"delegatedCallDetails": rec.Details,
		"projectRoot":          sess.ProjectRoot,
	}

	result, err := w.channel.Invoke(ctx, ToolName, args, sess)
	if err != nil {
		w.failDispatch(rec, fmt.Sprintf("directive dispatch: %v", err))
		return
	}

	var env DirectiveEnvelope
	if rerr := remarshal(result, &env); rerr != nil || env.Status != StatusPendingAgentAction {
		w.failDispatch(rec, fmt.Sprintf("unexpected broker status %q", env.Status))
		return
	}

	w.emit(rec, StateAwaitingAgent, "")
}

func (w *Wrapper) failDispatch(rec *Record, detail string) {
	// The record may already be gone if the agent answered before the
	// dispatch result came back; in that case there is nothing to reject.
	taken, ok := w.registry.Take(rec.InteractionID)
	if !ok {
		return
	}
	err := Errorf(CodeDispatchFailed, "%s", detail)
	taken.Reject(err)
	w.emit(rec, StateFailed, detail)
	w.log.Error("delegation dispatch failed", "interaction", rec.InteractionID, "detail", detail)
}

// handleAgentCallback implements the agent side: match the interaction,
// resolve or reject the record, kick off the saver, and acknowledge. The ack
// never waits on the saver; persistence has its own failure domain.
func (w *Wrapper) handleAgentCallback(env *CompletionEnvelope) (any, error) {
	rec, ok := w.registry.Take(env.InteractionID)
	if !ok {
		return nil, Errorf(CodeUnknownInteraction, "no pending interaction %s", env.InteractionID)
	}

	if env.Status == StatusResponseError {
		err := agentError(env.Err)
		rec.Reject(err)
		w.emit(rec, StateFailed, err.Message)
		return &AckEnvelope{Status: StatusResponseProcessed, InteractionID: env.InteractionID}, nil
	}

	tagInfo := RecoverTagInfo(rec.Details.RequestParameters, w.defaultTag)
	resolved := &ResolvedResult{
		MainResult:    env.FinalLLMOutput,
		TelemetryData: nil,
		TagInfo:       tagInfo,
	}
	rec.Resolve(resolved)
	w.emit(rec, StateCompleted, "")

	w.bg.Add(1)
	go func() {
		defer w.bg.Done()
		w.runSaver(rec, resolved)
	}()

	return &AckEnvelope{Status: StatusResponseProcessed, InteractionID: env.InteractionID}, nil
}

func (w *Wrapper) runSaver(rec *Record, resolved *ResolvedResult) {
	saver, ok := w.savers.Resolve(rec.OriginalToolName, rec.Details.OriginalCommand)
	if !ok {
		w.emit(rec, StateSaverFailed, "no saver registered")
		w.log.Error("no saver for delegated command",
			"interaction", rec.InteractionID,
			"tool", rec.OriginalToolName,
			"command", rec.Details.OriginalCommand)
		return
	}

	in := SaverInput{
		InteractionID: rec.InteractionID,
		Output:        resolved.MainResult,
		OriginalArgs:  rec.OriginalToolArgs,
		Details:       rec.Details,
		TagInfo:       resolved.TagInfo,
		Session:       rec.Session,
		Log:           w.log.With("interaction", rec.InteractionID, "saver", rec.OriginalToolName),
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := saver(ctx, in); err != nil {
		w.emit(rec, StateSaverFailed, err.Error())
		w.log.Error("saver failed", "interaction", rec.InteractionID, "error", err)
		return
	}
	w.emit(rec, StateSaverCompleted, "")
}

// Expire rejects and removes every record older than ttl. Called by the
// reaper.
func (w *Wrapper) Expire(ttl time.Duration) int {
	expired := w.registry.TakeExpired(ttl, time.Now())
	for _, rec := range expired {
		rec.Reject(Errorf(CodeInteractionTimeout,
			"no agent response for interaction %s within %s", rec.InteractionID, ttl))
		w.emit(rec, StateExpired, ttl.String())
		w.log.Warn("interaction expired", "interaction", rec.InteractionID, "command", rec.Details.OriginalCommand)
	}
	return len(expired)
}

func (w *Wrapper) emit(rec *Record, state, detail string) {
	w.events.InteractionEvent(Event{
		InteractionID: rec.InteractionID,
		State:         state,
		Command:       rec.Details.OriginalCommand,
		Detail:        detail,
		Time:          time.Now(),
	})
}

func asCompletionEnvelope(result any) *CompletionEnvelope {
	switch v := result.(type) {
	case *CompletionEnvelope:
		return v
	case CompletionEnvelope:
		return &v
	case map[string]any:
		if src, _ := v["toolResponseSource"].(string); src == SourceAgentToHost {
			var env CompletionEnvelope
			if err := remarshal(v, &env); err == nil {
				return &env
			}
		}
	}
	return nil
}

func agentError(details map[string]any) *Error {
	msg := "agent reported an LLM failure"
	if details != nil {
		if m, ok := details["message"].(string); ok && m != "" {
			msg = m
		}
	}
	return Errorf(CodeAgentReportedError, "%s", msg)
}
