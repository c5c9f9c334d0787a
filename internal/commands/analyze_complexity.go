package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mtzanidakis/taskmaster/internal/broker"
	"github.com/mtzanidakis/taskmaster/internal/channel"
	"github.com/mtzanidakis/taskmaster/internal/provider"
	"github.com/mtzanidakis/taskmaster/internal/taskstore"
)

const analyzeComplexitySystem = `You are scoring development tasks by implementation complexity.
Return a JSON array; one object per task with taskId, taskTitle, complexityScore (1-10),
recommendedSubtasks, expansionPrompt and reasoning.`

func (c *Commands) analyzeComplexityTool() channel.Tool {
	return channel.Tool{
		Name:        "analyze-complexity",
		Description: "Analyze task complexity and recommend expansion.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"ids":       map[string]any{"type": "string", "description": "Comma-separated task ids to analyze; all tasks when empty."},
				"threshold": map[string]any{"type": "number", "description": "Score above which expansion is recommended."},
				"research":  map[string]any{"type": "boolean"},
				"tag":       map[string]any{"type": "string"},
			},
		},
		Execute: func(ctx context.Context, inv channel.Invocation) (any, error) {
			store := c.stores.Get(inv.Session.ProjectRoot)
			tag := store.ResolveTag(argString(inv.Args, "tag"))

			td, err := store.ReadTag(tag)
			if err != nil {
				return nil, err
			}
			if td == nil || len(td.Tasks) == 0 {
				return nil, fmt.Errorf("no tasks to analyze in tag %s", tag)
			}

			ids := argIntSlice(inv.Args, "ids")
			selected := selectTasks(td.Tasks, ids)
			if len(selected) == 0 {
				return nil, fmt.Errorf("no matching tasks for ids %v", ids)
			}

			threshold := 5.0
			if v, ok := inv.Args["threshold"].(float64); ok && v > 0 {
				threshold = v
			}

			var sb strings.Builder
			for _, t := range selected {
				fmt.Fprintf(&sb, "- %d: %s — %s\n", t.ID, t.Title, t.Description)
			}

			research := argBool(inv.Args, "research")
			role := c.role(research)
			req, err := c.roles.BuildRequest(role, []provider.Message{
				{Role: "system", Content: analyzeComplexitySystem},
				{Role: "user", Content: "Analyze these tasks:\n\n" + sb.String()},
			})
			if err != nil {
				return nil, err
			}

			p, err := c.roles.Provider(role)
			if err != nil {
				return nil, err
			}
			res, err := p.GenerateText(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("analyze complexity: %w", err)
			}

			if res.Delegated() {
				return delegationSignal(res.Delegation, "analyze-complexity", role, map[string]any{
					"ids":          ids,
					"threshold":    threshold,
					"usedResearch": research,
					"tagInfo":      broker.TagInfo{Tag: tag},
				})
			}

			return c.writeComplexityReport(res.Text, tag, ids, threshold, research, inv)
		},
	}
}

// saveComplexityReport merges the analysis into the tag's report when the
// original call was scoped to specific ids, otherwise overwrites it.
func (c *Commands) saveComplexityReport(_ context.Context, in broker.SaverInput) error {
	ids := argIntSlice(in.Details.RequestParameters, "ids")
	threshold := 5.0
	if v, ok := in.Details.RequestParameters["threshold"].(float64); ok && v > 0 {
		threshold = v
	}
	research := argBool(in.Details.RequestParameters, "usedResearch")

	_, err := c.writeComplexityReport(in.Output, in.TagInfo.Tag, ids, threshold, research, channel.Invocation{
		Args:    in.OriginalArgs,
		Session: in.Session,
		Log:     in.Log,
	})
	return err
}

func (c *Commands) writeComplexityReport(payload any, tag string, ids []int, threshold float64, research bool, inv channel.Invocation) (any, error) {
	var items []taskstore.ComplexityItem
	if err := decodePayload(payload, &items); err != nil {
		var wrapped struct {
			ComplexityAnalysis []taskstore.ComplexityItem `json:"complexityAnalysis"`
		}
		if werr := decodePayload(payload, &wrapped); werr != nil {
			return nil, fmt.Errorf("complexity payload: %w", err)
		}
		items = wrapped.ComplexityAnalysis
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("complexity payload contains no analysis items")
	}

	store := c.stores.Get(inv.Session.ProjectRoot)
	meta := taskstore.ReportMeta{
		GeneratedAt:    time.Now().UTC(),
		TasksAnalyzed:  len(items),
		ThresholdScore: threshold,
		UsedResearch:   research,
	}

	var report *taskstore.ComplexityReport
	if len(ids) > 0 {
		existing, err := store.ReadReport(tag)
		if err != nil {
			return nil, err
		}
		report = taskstore.MergeReport(existing, items, meta)
	} else {
		report = &taskstore.ComplexityReport{Meta: meta, ComplexityAnalysis: items}
	}

	if err := store.WriteReport(tag, report); err != nil {
		return nil, err
	}

	inv.Log.Info("complexity report written", "tag", tag, "items", len(report.ComplexityAnalysis))
	return map[string]any{"analyzed": len(items), "reportPath": store.ReportPath(tag)}, nil
}

func selectTasks(tasks []taskstore.Task, ids []int) []taskstore.Task {
	if len(ids) == 0 {
		return tasks
	}
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []taskstore.Task
	for _, t := range tasks {
		if want[t.ID] {
			out = append(out, t)
		}
	}
	return out
}
