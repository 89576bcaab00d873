package autolite

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Schedule is how often a task should run.
type Schedule int

const (
	ScheduleNever = Schedule(iota)
	ScheduleDaily
	ScheduleHourly
	ScheduleContinuous

	// ScheduleInherit makes the task use the nearest parent's schedule.
	ScheduleInherit
)

// Schedules are schedules an operator can set directly.
var Schedules = []Schedule{ScheduleDaily, ScheduleHourly, ScheduleContinuous, ScheduleNever}

// String represents Schedule as string.
func (s Schedule) String() string {
	return map[Schedule]string{
		ScheduleNever:      "never",
		ScheduleDaily:      "daily",
		ScheduleHourly:     "hourly",
		ScheduleContinuous: "continuous",
		ScheduleInherit:    inheritMark,
	}[s]
}

// ParseSchedule parses a stored schedule.
// Empty string is a valid value and means the task never runs by itself.
func ParseSchedule(s string) (Schedule, error) {
	switch s {
	case "", "never":
		return ScheduleNever, nil
	case "daily":
		return ScheduleDaily, nil
	case "hourly":
		return ScheduleHourly, nil
	case "continuous":
		return ScheduleContinuous, nil
	case inheritMark:
		return ScheduleInherit, nil
	}
	return ScheduleNever, fmt.Errorf("unknown schedule: %q", s)
}

// Value implements driver.Valuer.
func (s Schedule) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *Schedule) Scan(v interface{}) error {
	str, err := scanString(v)
	if err != nil {
		return fmt.Errorf("scan schedule: %w", err)
	}
	*s, err = ParseSchedule(str)
	return err
}

// TaskState is a task state.
type TaskState int

const (
	TaskPending = TaskState(iota)
	TaskRunning
	TaskFailed
)

// TaskStates are all the task states, in the order they are reported.
var TaskStates = []TaskState{TaskPending, TaskRunning, TaskFailed}

// String represents TaskState as string.
func (s TaskState) String() string {
	return map[TaskState]string{
		TaskPending: "pending",
		TaskRunning: "running",
		TaskFailed:  "failed",
	}[s]
}

// ParseTaskState parses a stored task state.
func ParseTaskState(s string) (TaskState, error) {
	for _, st := range TaskStates {
		if st.String() == s {
			return st, nil
		}
	}
	return TaskPending, fmt.Errorf("unknown task state: %q", s)
}

// Value implements driver.Valuer.
func (s TaskState) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *TaskState) Scan(v interface{}) error {
	str, err := scanString(v)
	if err != nil {
		return fmt.Errorf("scan state: %w", err)
	}
	*s, err = ParseTaskState(str)
	return err
}

const inheritMark = "<inherit>"

// Attr is a task field which could be delegated to the parent task.
type Attr struct {
	Text    string
	Inherit bool
}

// Literal returns an Attr holding v.
func Literal(v string) Attr {
	return Attr{Text: v}
}

// Inherited returns an Attr which takes its value from the parent.
func Inherited() Attr {
	return Attr{Inherit: true}
}

// ParseAttr parses a stored field.
func ParseAttr(s string) Attr {
	if s == inheritMark {
		return Inherited()
	}
	return Literal(s)
}

func (a Attr) String() string {
	if a.Inherit {
		return inheritMark
	}
	return a.Text
}

// Value implements driver.Valuer.
func (a Attr) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements sql.Scanner.
func (a *Attr) Scan(v interface{}) error {
	str, err := scanString(v)
	if err != nil {
		return fmt.Errorf("scan attr: %w", err)
	}
	*a = ParseAttr(str)
	return nil
}

const (
	onceMark = "<once>"

	// lastLayout is how LastRun.Time is stored.
	lastLayout = "2006-01-02 15:04:05.000000"

	// lastParseLayout also accepts timestamps without fractional seconds.
	lastParseLayout = "2006-01-02 15:04:05.999999999"
)

// LastRun marks when a task has started lastly.
// Once is set for a one-shot task. It will be deleted after its first success.
type LastRun struct {
	Time time.Time
	Once bool
}

// ParseLastRun parses a stored last run marker, like
// "2021-03-04 05:06:07.000000", "<once>" or both of them.
func ParseLastRun(s string) (LastRun, error) {
	l := LastRun{}
	if strings.HasSuffix(s, onceMark) {
		l.Once = true
		s = strings.TrimSuffix(s, onceMark)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return l, nil
	}
	t, err := time.ParseInLocation(lastParseLayout, s, time.Local)
	if err != nil {
		return l, fmt.Errorf("invalid last run: %q", s)
	}
	l.Time = t
	return l, nil
}

func (l LastRun) String() string {
	s := ""
	if !l.Time.IsZero() {
		s = l.Time.Local().Format(lastLayout)
	}
	if l.Once {
		s += onceMark
	}
	return s
}

// Value implements driver.Valuer.
func (l LastRun) Value() (driver.Value, error) {
	return l.String(), nil
}

// Scan implements sql.Scanner.
func (l *LastRun) Scan(v interface{}) error {
	str, err := scanString(v)
	if err != nil {
		return fmt.Errorf("scan last: %w", err)
	}
	*l, err = ParseLastRun(str)
	return err
}

// Resources are tags a task should hold exclusively while running.
type Resources []string

// ParseResources parses space separated resource tags.
func ParseResources(s string) Resources {
	f := strings.Fields(s)
	if len(f) == 0 {
		return nil
	}
	return Resources(f)
}

func (r Resources) String() string {
	return strings.Join(r, " ")
}

// HoldsAny reports whether r contains any of the tags.
func (r Resources) HoldsAny(tags []string) bool {
	for _, tag := range tags {
		for _, res := range r {
			if res == tag {
				return true
			}
		}
	}
	return false
}

// Overlaps reports whether r and o share a tag.
func (r Resources) Overlaps(o Resources) bool {
	return r.HoldsAny(o)
}

// Value implements driver.Valuer.
func (r Resources) Value() (driver.Value, error) {
	return r.String(), nil
}

// Scan implements sql.Scanner.
func (r *Resources) Scan(v interface{}) error {
	str, err := scanString(v)
	if err != nil {
		return fmt.Errorf("scan resources: %w", err)
	}
	*r = ParseResources(str)
	return nil
}

func scanString(v interface{}) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return "", fmt.Errorf("unexpected type %T", v)
}

// Task is a named, schedulable job.
//
// Tasks form a forest through Parent. Schedule, Command, Condition and Email
// could be inherited from the parent. Use Resolver to get their real values.
type Task struct {
	// Name is unique among tasks and cannot be changed after creation.
	Name string

	// Parent is the name of the containing task.
	// It is empty when the task is a root task.
	Parent string

	Schedule Schedule
	State    TaskState

	// Command is a shell command to run.
	Command Attr

	// Condition is a shell command checked before the task starts.
	// The task starts only when it exits with 0. Empty condition is always true.
	Condition Attr

	// Email is comma separated recipients of the task's state changes.
	Email Attr

	Resources Resources

	// Log is a path of the task's run log.
	Log string

	Last LastRun

	// Pid is the process id of the running command.
	// It is zero when the task is not running.
	Pid int
}

// Pending indicates the task is waiting for its next run.
func (t *Task) Pending() bool {
	return t.State == TaskPending
}

// Running indicates the task's command is running.
func (t *Task) Running() bool {
	return t.State == TaskRunning
}

// Failed indicates the task's last run has failed or timed out.
func (t *Task) Failed() bool {
	return t.State == TaskFailed
}

// Once indicates the task is a one-shot task.
func (t *Task) Once() bool {
	return t.Last.Once
}

// Expired reports whether the task has started more than timeout before now.
// Zero timeout never expires.
func (t *Task) Expired(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 || t.Last.Time.IsZero() {
		return false
	}
	return now.Sub(t.Last.Time) > timeout
}

// Ready reports whether a task is due at now.
// s is the task's schedule after inheritance is resolved.
func Ready(t *Task, s Schedule, now time.Time) bool {
	if t.State != TaskPending || t.Last.Once {
		return false
	}
	last := t.Last.Time
	switch s {
	case ScheduleContinuous:
		return true
	case ScheduleDaily:
		if last.IsZero() {
			return true
		}
		return dayOf(now).After(dayOf(last.In(now.Location())))
	case ScheduleHourly:
		if last.IsZero() {
			return true
		}
		return hourOf(now).After(last)
	}
	// never, or unresolved inherit.
	return false
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func hourOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}

// TaskFields are field names of a task, in display order.
var TaskFields = []string{"name", "parent", "schedule", "state", "command", "condition", "resources", "email", "last", "log", "pid"}

// Fields returns the task's fields as they are stored.
func (t *Task) Fields() map[string]string {
	pid := ""
	if t.Pid != 0 {
		pid = strconv.Itoa(t.Pid)
	}
	return map[string]string{
		"name":      t.Name,
		"parent":    t.Parent,
		"schedule":  t.Schedule.String(),
		"state":     t.State.String(),
		"command":   t.Command.String(),
		"condition": t.Condition.String(),
		"resources": t.Resources.String(),
		"email":     t.Email.String(),
		"last":      t.Last.String(),
		"log":       t.Log,
		"pid":       pid,
	}
}

// String represents the task as its non-empty fields.
func (t *Task) String() string {
	return fieldsString(t.Fields(), TaskFields)
}

// MarshalJSON implements json.Marshaler.
func (t *Task) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Fields())
}

// MarshalYAML implements yaml.Marshaler.
func (t *Task) MarshalYAML() (interface{}, error) {
	return t.Fields(), nil
}

func fieldsString(m map[string]string, order []string) string {
	parts := make([]string, 0, len(order))
	for _, k := range order {
		if m[k] == "" {
			continue
		}
		parts = append(parts, k+": "+m[k])
	}
	return strings.Join(parts, ", ")
}
