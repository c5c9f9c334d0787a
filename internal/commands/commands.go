// Package commands holds the task-management command cores and their paired
// savers. Every core that needs an LLM goes through a role-resolved provider
// and, when the call comes back as a delegation, returns the pending
// interaction signal for the wrapper to pick up. The saver runs when the
// agent's response is matched back to the interaction.
package commands

import (
	"fmt"

	"github.com/mtzanidakis/taskmaster/internal/broker"
	"github.com/mtzanidakis/taskmaster/internal/provider"
	"github.com/mtzanidakis/taskmaster/internal/taskstore"
)

type Commands struct {
	stores *taskstore.Cache
	roles  *provider.Roles
}

func New(stores *taskstore.Cache, roles *provider.Roles) *Commands {
	return &Commands{stores: stores, roles: roles}
}

// RegisterAll installs every tool behind the wrapper and every saver in the
// table. Each delegating command has exactly one saver; the bulk update
// command registers under its command alias.
func (c *Commands) RegisterAll(w *broker.Wrapper, savers *broker.SaverRegistry) error {
	tools := c.Tools()
	for _, t := range tools {
		if err := w.Register(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Name, err)
		}
	}

	for command, saver := range map[string]broker.Saver{
		"parse-requirements": c.saveImportedTasks,
		"expand-task":        c.saveExpandedSubtasks,
		"analyze-complexity": c.saveComplexityReport,
		"update-task":        c.saveUpdatedTask,
		"update-subtask":     c.saveSubtaskDetails,
		"update-tasks":       c.saveBulkUpdate, // alias target for the "update" tool
		"add-task":           c.saveNewTask,
		"research":           c.saveResearch,
	} {
		if err := savers.Register(command, saver); err != nil {
			return err
		}
	}
	return nil
}

// role resolves which semantic role a command uses.
func (c *Commands) role(research bool) string {
	if research {
		return provider.RoleResearch
	}
	return provider.RoleMain
}

// delegationSignal packages a provider delegation plus command hints into the
// canonical signal shape. The hints are opaque to the agent but come back
// verbatim for the saver.
func delegationSignal(d *provider.Delegation, originalCommand, role string, hints map[string]any) (*broker.DelegationSignal, error) {
	params := map[string]any{}
	if err := remarshal(d.Request, &params); err != nil {
		return nil, fmt.Errorf("encode request parameters: %w", err)
	}
	for k, v := range hints {
		params[k] = v
	}

	return &broker.DelegationSignal{
		NeedsAgentDelegation: true,
		PendingInteraction: broker.NewPendingInteraction(d.InteractionID, broker.DelegatedCallDetails{
			OriginalCommand:   originalCommand,
			Role:              role,
			ServiceType:       d.ServiceType,
			RequestParameters: params,
		}),
	}, nil
}
