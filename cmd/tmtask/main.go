// tmtask is a small operator CLI over a project's task store. It reads and
// writes the store directly; no running daemon is required.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mtzanidakis/taskmaster/internal/taskstore"
)

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	flags := parseArgs(os.Args[2:])
	root := flags["root"]
	if root == "" {
		root = "."
	}
	store := taskstore.New(root, flags["tag"])

	var err error
	switch os.Args[1] {
	case "list":
		err = runList(store, flags)
	case "show":
		err = runShow(store, flags)
	case "set-status":
		err = runSetStatus(store, flags)
	default:
		usage()
	}
	if err != nil {
		fatal("%v", err)
	}
}

func runList(store *taskstore.Store, flags map[string]string) error {
	td, err := store.ReadTag(flags["tag"])
	if err != nil {
		return err
	}
	if td == nil || len(td.Tasks) == 0 {
		fmt.Println("No tasks.")
		return nil
	}
	for _, t := range td.Tasks {
		fmt.Println(formatTaskLine(&t))
	}
	return nil
}

func runShow(store *taskstore.Store, flags map[string]string) error {
	id := flags["id"]
	if id == "" {
		return fmt.Errorf("--id is required")
	}
	td, err := store.ReadTag(flags["tag"])
	if err != nil {
		return err
	}
	if td == nil {
		return fmt.Errorf("no tasks in tag")
	}

	var taskID, subID int
	hasSub := strings.Contains(id, ".")
	if hasSub {
		if _, err := fmt.Sscanf(id, "%d.%d", &taskID, &subID); err != nil {
			return fmt.Errorf("invalid id %q", id)
		}
	} else if _, err := fmt.Sscanf(id, "%d", &taskID); err != nil {
		return fmt.Errorf("invalid id %q", id)
	}

	task := taskstore.FindTask(td, taskID)
	if task == nil {
		return fmt.Errorf("task %d not found", taskID)
	}
	if !hasSub {
		fmt.Println(formatTaskLine(task))
		if task.Details != "" {
			fmt.Println(task.Details)
		}
		for _, st := range task.Subtasks {
			fmt.Printf("  %d.%d [%s] %s\n", task.ID, st.ID, st.Status, st.Title)
		}
		return nil
	}

	sub := taskstore.FindSubtask(task, subID)
	if sub == nil {
		return fmt.Errorf("subtask %s not found", id)
	}
	fmt.Printf("%d.%d [%s] %s\n", taskID, sub.ID, sub.Status, sub.Title)
	if sub.Details != "" {
		fmt.Println(sub.Details)
	}
	return nil
}

func runSetStatus(store *taskstore.Store, flags map[string]string) error {
	id, status := flags["id"], flags["status"]
	if id == "" || status == "" {
		return fmt.Errorf("--id and --status are required")
	}

	var taskID, subID int
	hasSub := strings.Contains(id, ".")
	if hasSub {
		if _, err := fmt.Sscanf(id, "%d.%d", &taskID, &subID); err != nil {
			return fmt.Errorf("invalid id %q", id)
		}
	} else if _, err := fmt.Sscanf(id, "%d", &taskID); err != nil {
		return fmt.Errorf("invalid id %q", id)
	}

	return store.Mutate(flags["tag"], func(td *taskstore.TagData) error {
		task := taskstore.FindTask(td, taskID)
		if task == nil {
			return fmt.Errorf("task %d not found", taskID)
		}
		if hasSub {
			sub := taskstore.FindSubtask(task, subID)
			if sub == nil {
				return fmt.Errorf("subtask %s not found", id)
			}
			sub.Status = status
			return nil
		}
		task.Status = status
		return nil
	})
}

func formatTaskLine(t *taskstore.Task) string {
	line := fmt.Sprintf("%3d [%s] %s", t.ID, t.Status, t.Title)
	if len(t.Subtasks) > 0 {
		done := 0
		for _, st := range t.Subtasks {
			if taskstore.IsCompleted(st.Status) {
				done++
			}
		}
		line += fmt.Sprintf(" (%d/%d subtasks)", done, len(t.Subtasks))
	}
	return line
}

func parseArgs(args []string) map[string]string {
	result := make(map[string]string)
	for i := 0; i < len(args); i++ {
		if len(args[i]) > 2 && args[i][:2] == "--" && i+1 < len(args) {
			result[args[i][2:]] = args[i+1]
			i++
		}
	}
	return result
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  tmtask list [--root <dir>] [--tag <tag>]")
	fmt.Fprintln(os.Stderr, "  tmtask show --id <id> [--root <dir>] [--tag <tag>]")
	fmt.Fprintln(os.Stderr, "  tmtask set-status --id <id> --status <status> [--root <dir>] [--tag <tag>]")
	os.Exit(1)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
