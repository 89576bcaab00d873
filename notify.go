package autolite

import (
	"fmt"
	"strings"
)

// Notifier delivers a message to recipients.
type Notifier interface {
	Notify(recipients []string, subject, body string) error
}

// StateChange is a state transition of a task, as it is notified.
type StateChange struct {
	Task       string
	From       TaskState
	To         TaskState
	Log        string
	Note       string
	Recipients []string
}

// Subject is the notification subject of the change.
func (c StateChange) Subject() string {
	return fmt.Sprintf("autolite: %s %s -> %s", c.Task, c.From, c.To)
}

// Body is the notification body of the change.
func (c StateChange) Body() string {
	b := &strings.Builder{}
	fmt.Fprintf(b, "task: %s\n", c.Task)
	fmt.Fprintf(b, "state: %s -> %s\n", c.From, c.To)
	if c.Log != "" {
		fmt.Fprintf(b, "log: %s\n", c.Log)
	}
	if c.Note != "" {
		fmt.Fprintf(b, "\n%s\n", c.Note)
	}
	return b.String()
}
