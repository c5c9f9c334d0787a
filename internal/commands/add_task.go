package commands

import (
	"context"
	"fmt"

	"github.com/mtzanidakis/taskmaster/internal/broker"
	"github.com/mtzanidakis/taskmaster/internal/channel"
	"github.com/mtzanidakis/taskmaster/internal/provider"
	"github.com/mtzanidakis/taskmaster/internal/taskstore"
)

const addTaskSystem = `You are drafting one new development task from a request.
Return a JSON object with title, description, details, testStrategy and
dependencies (ids of existing tasks this depends on).`

func (c *Commands) addTaskTool() channel.Tool {
	return channel.Tool{
		Name:        "add-task",
		Description: "Add a new task drafted from a prompt.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt":       map[string]any{"type": "string", "description": "What the task should cover."},
				"dependencies": map[string]any{"type": "string", "description": "Comma-separated ids the task depends on."},
				"priority":     map[string]any{"type": "string", "description": "high, medium or low."},
				"research":     map[string]any{"type": "boolean"},
				"tag":          map[string]any{"type": "string"},
			},
			"required": []string{"prompt"},
		},
		Execute: func(ctx context.Context, inv channel.Invocation) (any, error) {
			prompt := argString(inv.Args, "prompt")
			if prompt == "" {
				return nil, fmt.Errorf("prompt is required")
			}

			store := c.stores.Get(inv.Session.ProjectRoot)
			tag := store.ResolveTag(argString(inv.Args, "tag"))

			// The new id is fixed before delegation so concurrent adds to the
			// same tag cannot collide silently; the saver refuses if the id
			// is taken by the time the agent answers.
			td, err := store.ReadTag(tag)
			if err != nil {
				return nil, err
			}
			newID := 1
			if td != nil {
				newID = taskstore.NextTaskID(td)
			}

			deps := argIntSlice(inv.Args, "dependencies")
			priority := argString(inv.Args, "priority")

			role := c.role(argBool(inv.Args, "research"))
			req, err := c.roles.BuildRequest(role, []provider.Message{
				{Role: "system", Content: addTaskSystem},
				{Role: "user", Content: "Draft a task for: " + prompt},
			})
			if err != nil {
				return nil, err
			}
			req.ObjectName = "task"

			p, err := c.roles.Provider(role)
			if err != nil {
				return nil, err
			}
			res, err := p.GenerateObject(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("draft task: %w", err)
			}

			if res.Delegated() {
				return delegationSignal(res.Delegation, "add-task", role, map[string]any{
					"newTaskId":        newID,
					"userDependencies": deps,
					"userPriority":     priority,
					"tagInfo":          broker.TagInfo{Tag: tag},
				})
			}

			return c.composeNewTask(res.Object, newID, deps, priority, tag, inv)
		},
	}
}

// saveNewTask composes the task from the agent's draft plus the hints fixed
// at delegation time. An id collision is a hard refusal.
func (c *Commands) saveNewTask(_ context.Context, in broker.SaverInput) error {
	newID, ok := argInt(in.Details.RequestParameters, "newTaskId")
	if !ok {
		return fmt.Errorf("directive carries no newTaskId hint")
	}
	deps := argIntSlice(in.Details.RequestParameters, "userDependencies")
	priority := argString(in.Details.RequestParameters, "userPriority")

	_, err := c.composeNewTask(in.Output, newID, deps, priority, in.TagInfo.Tag, channel.Invocation{
		Args:    in.OriginalArgs,
		Session: in.Session,
		Log:     in.Log,
	})
	return err
}

func (c *Commands) composeNewTask(payload any, newID int, userDeps []int, userPriority, tag string, inv channel.Invocation) (any, error) {
	var draft taskstore.Task
	if err := decodePayload(payload, &draft); err != nil {
		return nil, fmt.Errorf("task draft payload: %w", err)
	}
	if draft.Title == "" {
		return nil, fmt.Errorf("task draft missing title")
	}

	task := taskstore.Task{
		ID:           newID,
		Title:        draft.Title,
		Description:  draft.Description,
		Details:      draft.Details,
		TestStrategy: draft.TestStrategy,
		Priority:     userPriority,
		Dependencies: userDeps,
		Status:       taskstore.StatusPending,
	}
	if task.Priority == "" {
		if draft.Priority != "" {
			task.Priority = draft.Priority
		} else {
			task.Priority = "medium"
		}
	}
	if len(task.Dependencies) == 0 && len(draft.Dependencies) > 0 {
		task.Dependencies = draft.Dependencies
	}
	if task.Dependencies == nil {
		task.Dependencies = []int{}
	}

	store := c.stores.Get(inv.Session.ProjectRoot)
	err := store.Mutate(tag, func(td *taskstore.TagData) error {
		if taskstore.FindTask(td, newID) != nil {
			return fmt.Errorf("task id %d already exists in tag %s", newID, tag)
		}
		td.Tasks = append(td.Tasks, task)
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv.Log.Info("added task", "task", newID, "tag", tag)
	return map[string]any{"task": newID, "title": task.Title}, nil
}
