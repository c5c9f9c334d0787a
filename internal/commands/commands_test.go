package commands

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/mtzanidakis/taskmaster/internal/broker"
	"github.com/mtzanidakis/taskmaster/internal/channel"
	"github.com/mtzanidakis/taskmaster/internal/config"
	"github.com/mtzanidakis/taskmaster/internal/provider"
	"github.com/mtzanidakis/taskmaster/internal/taskstore"
)

type recorder struct {
	mu     sync.Mutex
	events []broker.Event
}

func (r *recorder) InteractionEvent(ev broker.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) has(state string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.State == state {
			return true
		}
	}
	return false
}

type host struct {
	root    string
	channel *channel.Local
	wrapper *broker.Wrapper
	stores  *taskstore.Cache
	events  *recorder
}

func newHost(t *testing.T) *host {
	t.Helper()

	h := &host{
		root:    t.TempDir(),
		channel: channel.NewLocal(slog.Default()),
		stores:  taskstore.NewCache("master"),
		events:  &recorder{},
	}

	savers := broker.NewSaverRegistry()
	h.wrapper = broker.NewWrapper(broker.NewRegistry(), h.channel, savers, h.events, "master", slog.Default())

	roles := provider.NewRoles(config.RolesConfig{
		Main:     config.RoleConfig{Model: "claude-sonnet-4-5", MaxTokens: 64000},
		Research: config.RoleConfig{Model: "claude-sonnet-4-5", MaxTokens: 64000},
		Fallback: config.RoleConfig{Model: "claude-haiku-4-5", MaxTokens: 32000},
	}, provider.NewDelegating())

	if err := h.wrapper.Register(broker.Tool()); err != nil {
		t.Fatalf("register broker tool: %v", err)
	}
	if err := New(h.stores, roles).RegisterAll(h.wrapper, savers); err != nil {
		t.Fatalf("register commands: %v", err)
	}
	return h
}

func (h *host) invoke(t *testing.T, name string, args map[string]any) any {
	t.Helper()
	result, err := h.channel.Invoke(context.Background(), name, args,
		channel.Session{ProjectRoot: h.root})
	if err != nil {
		t.Fatalf("invoke %s: %v", name, err)
	}
	return result
}

// delegate invokes a command, asserts it produced a delegation signal, waits
// for the directive dispatch and returns the interaction id.
func (h *host) delegate(t *testing.T, name string, args map[string]any) (string, *broker.DelegationSignal) {
	t.Helper()
	result := h.invoke(t, name, args)
	sig, ok := result.(*broker.DelegationSignal)
	if !ok || !sig.NeedsAgentDelegation {
		t.Fatalf("%s did not delegate, got %#v", name, result)
	}
	h.wrapper.Drain()
	return sig.PendingInteraction.InteractionID, sig
}

// respond plays the agent: it posts the completion envelope and waits for the
// saver to finish.
func (h *host) respond(t *testing.T, interactionID string, data any) {
	t.Helper()
	result := h.invoke(t, broker.ToolName, map[string]any{
		"interactionId":    interactionID,
		"agentLLMResponse": map[string]any{"status": "success", "data": data},
		"projectRoot":      h.root,
	})
	ack, ok := result.(*broker.AckEnvelope)
	if !ok || ack.Status != broker.StatusResponseProcessed {
		t.Fatalf("expected processed ack, got %#v", result)
	}
	h.wrapper.Drain()
}

func (h *host) store() *taskstore.Store {
	return h.stores.Get(h.root)
}

func (h *host) seed(t *testing.T, tag string, tasks ...taskstore.Task) {
	t.Helper()
	err := h.store().Mutate(tag, func(td *taskstore.TagData) error {
		td.Tasks = append(td.Tasks, tasks...)
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestParseRequirementsRoundTrip(t *testing.T) {
	h := newHost(t)

	prd := filepath.Join(h.root, "prd.md")
	if err := os.WriteFile(prd, []byte("# Product\nBuild the thing."), 0o644); err != nil {
		t.Fatal(err)
	}

	id, sig := h.delegate(t, "parse-requirements", map[string]any{
		"input":    prd,
		"numTasks": float64(3),
	})
	details := sig.PendingInteraction.DelegatedCallDetails
	if details.OriginalCommand != "parse-prd" || details.ServiceType != provider.ServiceGenerateObject {
		t.Errorf("wrong directive: %+v", details)
	}
	if details.RequestParameters["numTasks"] != 3 {
		t.Errorf("numTasks hint missing: %v", details.RequestParameters)
	}

	h.respond(t, id, map[string]any{
		"tasks": []any{
			map[string]any{"id": float64(1), "title": "A", "description": "a", "status": "pending", "dependencies": []any{}},
			map[string]any{"id": float64(2), "title": "B", "description": "b", "status": "pending", "dependencies": []any{float64(1)}},
			map[string]any{"id": float64(3), "title": "C", "description": "c", "status": "pending", "dependencies": []any{}},
		},
		"metadata": map[string]any{"projectName": "demo"},
	})

	td, err := h.store().ReadTag("master")
	if err != nil {
		t.Fatalf("read tag: %v", err)
	}
	if td == nil || len(td.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %+v", td)
	}
	for _, name := range []string{"task_001.txt", "task_002.txt", "task_003.txt"} {
		if _, err := os.Stat(filepath.Join(h.store().TasksDir(), name)); err != nil {
			t.Errorf("derived file %s missing: %v", name, err)
		}
	}
}

func TestUpdateTaskAppendProtectsCompletedSubtask(t *testing.T) {
	h := newHost(t)
	h.seed(t, "master", taskstore.Task{
		ID: 5, Title: "Feature", Description: "d", Status: taskstore.StatusPending,
		Dependencies: []int{},
		Subtasks: []taskstore.Subtask{
			{ID: 1, Title: "first", Status: taskstore.StatusPending},
			{ID: 2, Title: "second", Details: "OLD", Status: taskstore.StatusDone},
		},
	})

	id, sig := h.delegate(t, "update-task", map[string]any{
		"id":     float64(5),
		"append": true,
		"prompt": "note",
	})
	if sig.PendingInteraction.DelegatedCallDetails.ServiceType != provider.ServiceGenerateText {
		t.Errorf("append mode must delegate as text: %+v", sig.PendingInteraction.DelegatedCallDetails)
	}

	h.respond(t, id, "extra context")

	td, _ := h.store().ReadTag("master")
	task := taskstore.FindTask(td, 5)
	if !strings.Contains(task.Details, "extra context") || !strings.Contains(task.Details, "<info added on") {
		t.Errorf("note not appended: %q", task.Details)
	}
	if sub := taskstore.FindSubtask(task, 2); sub.Details != "OLD" {
		t.Errorf("completed subtask modified: %q", sub.Details)
	}
	if sub := taskstore.FindSubtask(task, 1); sub.Title != "first" || sub.Status != taskstore.StatusPending {
		t.Errorf("pending subtask changed: %+v", sub)
	}
}

func TestExpandTaskHintRecovery(t *testing.T) {
	h := newHost(t)
	h.seed(t, "master", taskstore.Task{
		ID: 7, Title: "Big", Description: "d", Status: taskstore.StatusPending,
		Dependencies: []int{},
		Subtasks: []taskstore.Subtask{
			{ID: 1, Title: "done already", Status: taskstore.StatusDone},
			{ID: 2, Title: "in flight", Status: taskstore.StatusPending},
		},
	})

	id, sig := h.delegate(t, "expand-task", map[string]any{
		"id":  float64(7),
		"num": float64(3),
	})
	params := sig.PendingInteraction.DelegatedCallDetails.RequestParameters
	if params["nextSubtaskId"] != 3 || params["numSubtasksForAgent"] != 3 {
		t.Fatalf("expansion hints wrong: %v", params)
	}

	h.respond(t, id, []any{
		map[string]any{"title": "s1", "description": "x"},
		map[string]any{"title": "s2", "description": "y"},
		map[string]any{"title": "s3", "description": "z"},
	})

	td, _ := h.store().ReadTag("master")
	task := taskstore.FindTask(td, 7)
	if len(task.Subtasks) != 5 {
		t.Fatalf("expected 5 subtasks, got %d", len(task.Subtasks))
	}
	gotIDs := []int{task.Subtasks[2].ID, task.Subtasks[3].ID, task.Subtasks[4].ID}
	for i, want := range []int{3, 4, 5} {
		if gotIDs[i] != want {
			t.Errorf("new subtask %d has id %d, want %d", i, gotIDs[i], want)
		}
	}
	if task.Subtasks[0].Title != "done already" || task.Subtasks[1].Title != "in flight" {
		t.Error("pre-existing subtasks disturbed")
	}
}

func TestAddTaskIDCollisionRefused(t *testing.T) {
	h := newHost(t)

	id, sig := h.delegate(t, "add-task", map[string]any{
		"prompt":       "build the login page",
		"dependencies": "",
		"priority":     "high",
	})
	params := sig.PendingInteraction.DelegatedCallDetails.RequestParameters
	if params["newTaskId"] != 1 || params["userPriority"] != "high" {
		t.Fatalf("add-task hints wrong: %v", params)
	}

	// The id gets taken while the agent is thinking.
	h.seed(t, "master", taskstore.Task{
		ID: 1, Title: "squatter", Description: "d", Status: taskstore.StatusPending, Dependencies: []int{},
	})

	h.respond(t, id, map[string]any{"title": "Login page", "description": "d"})

	if !h.events.has(broker.StateSaverFailed) {
		t.Error("expected saver_failed on id collision")
	}
	td, _ := h.store().ReadTag("master")
	if len(td.Tasks) != 1 || td.Tasks[0].Title != "squatter" {
		t.Errorf("collision must not overwrite, got %+v", td.Tasks)
	}
}

func TestAddTaskSuccess(t *testing.T) {
	h := newHost(t)
	h.seed(t, "master", taskstore.Task{
		ID: 1, Title: "existing", Description: "d", Status: taskstore.StatusPending, Dependencies: []int{},
	})

	id, sig := h.delegate(t, "add-task", map[string]any{
		"prompt":       "add caching",
		"dependencies": "1",
	})
	if sig.PendingInteraction.DelegatedCallDetails.RequestParameters["newTaskId"] != 2 {
		t.Fatalf("expected newTaskId 2: %v", sig.PendingInteraction.DelegatedCallDetails.RequestParameters)
	}

	h.respond(t, id, map[string]any{"title": "Caching layer", "description": "redis", "details": "use redis"})

	td, _ := h.store().ReadTag("master")
	task := taskstore.FindTask(td, 2)
	if task == nil || task.Title != "Caching layer" || task.Priority != "medium" {
		t.Fatalf("task not composed: %+v", task)
	}
	if len(task.Dependencies) != 1 || task.Dependencies[0] != 1 {
		t.Errorf("user dependencies not applied: %v", task.Dependencies)
	}
}

func TestBulkUpdateAliasAndMissingIDs(t *testing.T) {
	h := newHost(t)
	h.seed(t, "master",
		taskstore.Task{ID: 1, Title: "done", Description: "d", Status: taskstore.StatusDone, Dependencies: []int{}},
		taskstore.Task{ID: 2, Title: "two", Description: "d", Status: taskstore.StatusPending, Dependencies: []int{}},
		taskstore.Task{ID: 3, Title: "three", Description: "d", Status: taskstore.StatusPending, Dependencies: []int{}},
	)

	id, sig := h.delegate(t, "update", map[string]any{
		"from":   float64(2),
		"prompt": "switch to gRPC",
	})
	if sig.PendingInteraction.DelegatedCallDetails.OriginalCommand != "update-tasks" {
		t.Fatalf("bulk update must delegate as update-tasks: %+v", sig.PendingInteraction.DelegatedCallDetails)
	}

	h.respond(t, id, []any{
		map[string]any{"id": float64(2), "title": "two grpc", "description": "d", "status": "pending", "dependencies": []any{}},
		map[string]any{"id": float64(3), "title": "three grpc", "description": "d", "status": "pending", "dependencies": []any{}},
		map[string]any{"id": float64(9), "title": "ghost", "description": "d", "status": "pending", "dependencies": []any{}},
	})

	if !h.events.has(broker.StateSaverCompleted) {
		t.Error("bulk saver should resolve through the update-tasks alias")
	}
	td, _ := h.store().ReadTag("master")
	if taskstore.FindTask(td, 2).Title != "two grpc" || taskstore.FindTask(td, 3).Title != "three grpc" {
		t.Error("bulk update not applied")
	}
	if taskstore.FindTask(td, 9) != nil {
		t.Error("unknown id must not be created")
	}
	if taskstore.FindTask(td, 1).Title != "done" {
		t.Error("completed task must stay untouched")
	}
}

func TestUpdateSubtaskAppend(t *testing.T) {
	h := newHost(t)
	h.seed(t, "master", taskstore.Task{
		ID: 4, Title: "t", Description: "d", Status: taskstore.StatusPending, Dependencies: []int{},
		Subtasks: []taskstore.Subtask{{ID: 1, Title: "s", Description: "sub", Status: taskstore.StatusPending}},
	})

	id, _ := h.delegate(t, "update-subtask", map[string]any{
		"id":     "4.1",
		"prompt": "short note",
	})
	h.respond(t, id, "implementation detail discovered")

	td, _ := h.store().ReadTag("master")
	sub := taskstore.FindSubtask(taskstore.FindTask(td, 4), 1)
	if !strings.Contains(sub.Details, "implementation detail discovered") {
		t.Errorf("details not appended: %q", sub.Details)
	}
	if !strings.Contains(sub.Description, "[Updated:") {
		t.Errorf("short prompt should stamp description: %q", sub.Description)
	}
}

func TestResearchSaveToFileAndTask(t *testing.T) {
	h := newHost(t)
	h.seed(t, "master",
		taskstore.Task{ID: 1, Title: "open", Description: "d", Status: taskstore.StatusPending, Dependencies: []int{}},
		taskstore.Task{ID: 2, Title: "closed", Description: "d", Status: taskstore.StatusDone, Dependencies: []int{}},
	)

	id, sig := h.delegate(t, "research", map[string]any{
		"query":      "Which queue fits our workload?",
		"saveTo":     "1",
		"saveToFile": true,
	})
	if sig.PendingInteraction.DelegatedCallDetails.Role != provider.RoleResearch {
		t.Errorf("research must use the research role: %+v", sig.PendingInteraction.DelegatedCallDetails)
	}

	h.respond(t, id, "NATS JetStream fits best.")

	entries, err := os.ReadDir(h.store().ResearchDir())
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one research doc, got %v err=%v", entries, err)
	}
	if !strings.Contains(entries[0].Name(), "which-queue-fits-our-workload") {
		t.Errorf("unexpected doc name %s", entries[0].Name())
	}

	td, _ := h.store().ReadTag("master")
	if !strings.Contains(taskstore.FindTask(td, 1).Details, "NATS JetStream fits best.") {
		t.Error("research not appended to task")
	}
}

func TestResearchSkipsCompletedTarget(t *testing.T) {
	h := newHost(t)
	h.seed(t, "master",
		taskstore.Task{ID: 2, Title: "closed", Description: "d", Details: "FROZEN", Status: taskstore.StatusDone, Dependencies: []int{}},
	)

	id, _ := h.delegate(t, "research", map[string]any{
		"query":  "anything",
		"saveTo": "2",
	})
	h.respond(t, id, "result")

	td, _ := h.store().ReadTag("master")
	if taskstore.FindTask(td, 2).Details != "FROZEN" {
		t.Error("completed target must not be appended to")
	}
}

func TestAnalyzeComplexityMergeOnScopedIDs(t *testing.T) {
	h := newHost(t)
	h.seed(t, "master",
		taskstore.Task{ID: 1, Title: "one", Description: "d", Status: taskstore.StatusPending, Dependencies: []int{}},
		taskstore.Task{ID: 2, Title: "two", Description: "d", Status: taskstore.StatusPending, Dependencies: []int{}},
	)

	// Full analysis first.
	id, _ := h.delegate(t, "analyze-complexity", map[string]any{})
	h.respond(t, id, `[{"taskId":1,"taskTitle":"one","complexityScore":3,"recommendedSubtasks":2},
		{"taskId":2,"taskTitle":"two","complexityScore":8,"recommendedSubtasks":6}]`)

	// Scoped re-analysis of task 2 merges into the existing report.
	id, _ = h.delegate(t, "analyze-complexity", map[string]any{"ids": "2"})
	h.respond(t, id, `[{"taskId":2,"taskTitle":"two","complexityScore":5,"recommendedSubtasks":3}]`)

	report, err := h.store().ReadReport("master")
	if err != nil || report == nil {
		t.Fatalf("read report: %v", err)
	}
	if len(report.ComplexityAnalysis) != 2 {
		t.Fatalf("expected merged report with 2 items, got %d", len(report.ComplexityAnalysis))
	}
	for _, item := range report.ComplexityAnalysis {
		if item.TaskID == 2 && item.ComplexityScore != 5 {
			t.Errorf("task 2 not re-scored: %+v", item)
		}
	}
}

func TestParseRequirementsRefusesOverwrite(t *testing.T) {
	h := newHost(t)
	h.seed(t, "master", taskstore.Task{ID: 1, Title: "t", Description: "d", Status: taskstore.StatusPending, Dependencies: []int{}})

	prd := filepath.Join(h.root, "prd.md")
	if err := os.WriteFile(prd, []byte("doc"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := h.channel.Invoke(context.Background(), "parse-requirements",
		map[string]any{"input": prd}, channel.Session{ProjectRoot: h.root})
	if err == nil || !strings.Contains(err.Error(), "force") {
		t.Errorf("expected overwrite refusal, got %v", err)
	}
}
