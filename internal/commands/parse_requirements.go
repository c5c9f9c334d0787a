package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mtzanidakis/taskmaster/internal/broker"
	"github.com/mtzanidakis/taskmaster/internal/channel"
	"github.com/mtzanidakis/taskmaster/internal/provider"
	"github.com/mtzanidakis/taskmaster/internal/taskstore"
)

const parseRequirementsSystem = `You are generating a development task list from a requirements document.
Return a JSON object with a "tasks" array and a "metadata" object. Each task has
id, title, description, details, testStrategy, priority, dependencies and status "pending".
Ids start at 1 and dependencies only reference earlier ids.`

// parseRequirementsTool turns a requirements document into the tag's task
// list. Original command name on the wire is parse-prd.
func (c *Commands) parseRequirementsTool() channel.Tool {
	return channel.Tool{
		Name:        "parse-requirements",
		Description: "Parse a requirements document into tasks.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"input":    map[string]any{"type": "string", "description": "Path to the requirements document."},
				"numTasks": map[string]any{"type": "integer", "description": "How many top-level tasks to generate."},
				"force":    map[string]any{"type": "boolean", "description": "Overwrite existing tasks in the tag."},
				"research": map[string]any{"type": "boolean"},
				"tag":      map[string]any{"type": "string"},
			},
			"required": []string{"input"},
		},
		Execute: func(ctx context.Context, inv channel.Invocation) (any, error) {
			store := c.stores.Get(inv.Session.ProjectRoot)
			tag := store.ResolveTag(argString(inv.Args, "tag"))

			input := argString(inv.Args, "input")
			if input == "" {
				return nil, fmt.Errorf("input document path is required")
			}
			content, err := os.ReadFile(input)
			if err != nil {
				return nil, fmt.Errorf("read requirements document: %w", err)
			}

			td, err := store.ReadTag(tag)
			if err != nil {
				return nil, err
			}
			if td != nil && len(td.Tasks) > 0 && !argBool(inv.Args, "force") {
				return nil, fmt.Errorf("tag %s already has %d tasks, pass force to overwrite", tag, len(td.Tasks))
			}

			numTasks, ok := argInt(inv.Args, "numTasks")
			if !ok || numTasks <= 0 {
				numTasks = 10
			}

			role := c.role(argBool(inv.Args, "research"))
			req, err := c.roles.BuildRequest(role, []provider.Message{
				{Role: "system", Content: parseRequirementsSystem},
				{Role: "user", Content: fmt.Sprintf("Generate %d tasks from this document:\n\n%s", numTasks, content)},
			})
			if err != nil {
				return nil, err
			}
			req.ObjectName = "tasks"

			p, err := c.roles.Provider(role)
			if err != nil {
				return nil, err
			}
			res, err := p.GenerateObject(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("generate tasks: %w", err)
			}

			if res.Delegated() {
				return delegationSignal(res.Delegation, "parse-prd", role, map[string]any{
					"numTasks": numTasks,
					"tagInfo":  broker.TagInfo{Tag: tag},
				})
			}

			return c.importTasks(res.Object, tag, inv)
		},
	}
}

type importedTasks struct {
	Tasks    []taskstore.Task `json:"tasks"`
	Metadata map[string]any   `json:"metadata"`
}

// saveImportedTasks writes the agent-produced task collection and regenerates
// the derived files. Payload is either the object itself or a JSON string
// containing it.
func (c *Commands) saveImportedTasks(_ context.Context, in broker.SaverInput) error {
	_, err := c.importTasks(in.Output, in.TagInfo.Tag, channel.Invocation{
		Args:    in.OriginalArgs,
		Session: in.Session,
		Log:     in.Log,
	})
	return err
}

func (c *Commands) importTasks(payload any, tag string, inv channel.Invocation) (any, error) {
	var parsed importedTasks
	if err := decodePayload(payload, &parsed); err != nil {
		return nil, fmt.Errorf("tasks payload: %w", err)
	}
	if len(parsed.Tasks) == 0 {
		return nil, fmt.Errorf("tasks payload contains no tasks")
	}

	for i := range parsed.Tasks {
		if parsed.Tasks[i].ID == 0 {
			parsed.Tasks[i].ID = i + 1
		}
		if parsed.Tasks[i].Status == "" {
			parsed.Tasks[i].Status = taskstore.StatusPending
		}
		if parsed.Tasks[i].Dependencies == nil {
			parsed.Tasks[i].Dependencies = []int{}
		}
	}

	store := c.stores.Get(inv.Session.ProjectRoot)
	err := store.Mutate(tag, func(td *taskstore.TagData) error {
		td.Tasks = parsed.Tasks
		if td.Metadata.Description == "" {
			td.Metadata.Description = "Tasks generated from requirements"
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	inv.Log.Info("imported tasks", "tag", tag, "count", len(parsed.Tasks))
	return map[string]any{
		"imported": len(parsed.Tasks),
		"tag":      tag,
		"savedAt":  time.Now().UTC().Format(time.RFC3339),
	}, nil
}
