package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/mtzanidakis/taskmaster/internal/broker"
	"github.com/mtzanidakis/taskmaster/internal/channel"
	"github.com/mtzanidakis/taskmaster/internal/provider"
	"github.com/mtzanidakis/taskmaster/internal/taskstore"
)

const researchSystem = `You are researching a technical question for a development project.
Answer thoroughly in Markdown. Cite concrete versions and sources where relevant.`

func (c *Commands) researchTool() channel.Tool {
	return channel.Tool{
		Name:        "research",
		Description: "Run a research query; optionally save the result to a document or a task.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":      map[string]any{"type": "string", "description": "The research question."},
				"saveTo":     map[string]any{"type": "string", "description": "Task or subtask id to append the result to."},
				"saveToFile": map[string]any{"type": "boolean", "description": "Write the result under .taskmaster/docs/research."},
				"tag":        map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		},
		Execute: func(ctx context.Context, inv channel.Invocation) (any, error) {
			query := argString(inv.Args, "query")
			if query == "" {
				return nil, fmt.Errorf("query is required")
			}

			store := c.stores.Get(inv.Session.ProjectRoot)
			tag := store.ResolveTag(argString(inv.Args, "tag"))

			req, err := c.roles.BuildRequest(provider.RoleResearch, []provider.Message{
				{Role: "system", Content: researchSystem},
				{Role: "user", Content: query},
			})
			if err != nil {
				return nil, err
			}

			p, err := c.roles.Provider(provider.RoleResearch)
			if err != nil {
				return nil, err
			}
			res, err := p.GenerateText(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("research: %w", err)
			}

			if res.Delegated() {
				return delegationSignal(res.Delegation, "research", provider.RoleResearch, map[string]any{
					"query":      query,
					"saveTo":     argString(inv.Args, "saveTo"),
					"saveToFile": argBool(inv.Args, "saveToFile"),
					"tagInfo":    broker.TagInfo{Tag: tag},
				})
			}

			return c.persistResearch(res.Text, query, argString(inv.Args, "saveTo"),
				argBool(inv.Args, "saveToFile"), tag, inv)
		},
	}
}

func (c *Commands) saveResearch(_ context.Context, in broker.SaverInput) error {
	query := argString(in.Details.RequestParameters, "query")
	saveTo := argString(in.Details.RequestParameters, "saveTo")
	saveToFile := argBool(in.Details.RequestParameters, "saveToFile")

	_, err := c.persistResearch(in.Output, query, saveTo, saveToFile, in.TagInfo.Tag, channel.Invocation{
		Args:    in.OriginalArgs,
		Session: in.Session,
		Log:     in.Log,
	})
	return err
}

func (c *Commands) persistResearch(payload any, query, saveTo string, saveToFile bool, tag string, inv channel.Invocation) (any, error) {
	text := textPayload(payload)
	if text == "" {
		return nil, fmt.Errorf("empty research payload")
	}

	store := c.stores.Get(inv.Session.ProjectRoot)
	result := map[string]any{"query": query}

	if saveToFile {
		path, err := store.WriteResearchDoc(query, text, time.Now().UTC())
		if err != nil {
			return nil, err
		}
		result["docPath"] = path
		inv.Log.Info("research document written", "path", path)
	}

	if saveTo != "" {
		taskID, subtaskID, hasSub, err := parseItemID(saveTo)
		if err != nil {
			return nil, err
		}
		skipped := false
		err = store.Mutate(tag, func(td *taskstore.TagData) error {
			task := taskstore.FindTask(td, taskID)
			if task == nil {
				return fmt.Errorf("task %d not found in tag %s", taskID, tag)
			}
			if hasSub {
				sub := taskstore.FindSubtask(task, subtaskID)
				if sub == nil {
					return fmt.Errorf("subtask %s not found", saveTo)
				}
				if taskstore.IsCompleted(sub.Status) || taskstore.IsCompleted(task.Status) {
					inv.Log.Warn("target completed, research not appended", "target", saveTo)
					skipped = true
					return nil
				}
				sub.Details = appendTimestamped(sub.Details, "Research: "+query+"\n\n"+text)
				return nil
			}
			if taskstore.IsCompleted(task.Status) {
				inv.Log.Warn("target completed, research not appended", "target", saveTo)
				skipped = true
				return nil
			}
			task.Details = appendTimestamped(task.Details, "Research: "+query+"\n\n"+text)
			return nil
		})
		if err != nil {
			return nil, err
		}
		result["savedTo"] = saveTo
		result["skipped"] = skipped
	}

	return result, nil
}
