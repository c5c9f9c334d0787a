package taskstore

import "time"

// Task statuses recognized by the store. Anything else is carried verbatim.
const (
	StatusPending    = "pending"
	StatusInProgress = "in-progress"
	StatusDone       = "done"
	StatusCompleted  = "completed"
	StatusDeferred   = "deferred"
	StatusCancelled  = "cancelled"
)

type Task struct {
	ID           int       `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Details      string    `json:"details,omitempty"`
	TestStrategy string    `json:"testStrategy,omitempty"`
	Priority     string    `json:"priority,omitempty"`
	Dependencies []int     `json:"dependencies"`
	Status       string    `json:"status"`
	Subtasks     []Subtask `json:"subtasks,omitempty"`
}

type Subtask struct {
	ID           int    `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Details      string `json:"details,omitempty"`
	TestStrategy string `json:"testStrategy,omitempty"`
	Status       string `json:"status"`
	Dependencies []int  `json:"dependencies,omitempty"`
}

type Metadata struct {
	Created     time.Time `json:"created"`
	Updated     time.Time `json:"updated"`
	Description string    `json:"description,omitempty"`
}

// TagData is one named slice of the store: an ordered task list plus metadata.
type TagData struct {
	Tasks    []Task   `json:"tasks"`
	Metadata Metadata `json:"metadata"`
}

// TaggedFile is the canonical on-disk shape: tag name → tag data.
type TaggedFile map[string]*TagData

// IsCompleted reports whether a status marks an item as finished. Finished
// items are never overwritten by savers.
func IsCompleted(status string) bool {
	return status == StatusDone || status == StatusCompleted
}

// FindTask returns a pointer into the tag's task slice, or nil.
func FindTask(td *TagData, id int) *Task {
	for i := range td.Tasks {
		if td.Tasks[i].ID == id {
			return &td.Tasks[i]
		}
	}
	return nil
}

// FindSubtask returns a pointer into the task's subtask slice, or nil.
func FindSubtask(t *Task, id int) *Subtask {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == id {
			return &t.Subtasks[i]
		}
	}
	return nil
}

// NextTaskID returns one past the highest task id in the tag.
func NextTaskID(td *TagData) int {
	max := 0
	for _, t := range td.Tasks {
		if t.ID > max {
			max = t.ID
		}
	}
	return max + 1
}

// NextSubtaskID returns one past the highest subtask id on the task.
func NextSubtaskID(t *Task) int {
	max := 0
	for _, st := range t.Subtasks {
		if st.ID > max {
			max = st.ID
		}
	}
	return max + 1
}
