package autolite

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// TaskOptions are optional parts of a TaskManager.
type TaskOptions struct {
	// Notifier receives task state changes. Nil Notifier drops them.
	Notifier Notifier

	// Shell runs conditions and commands.
	Shell *Shell

	// LogRoot is a directory task logs are created in.
	LogRoot string

	Logger logrus.FieldLogger

	// Now returns the current time. It is time.Now when nil.
	Now func() time.Time
}

// TaskManager creates, reads and changes tasks.
// Every state change of a task goes through it.
type TaskManager struct {
	tasks    TaskService
	systems  SystemService
	resolver *Resolver
	walker   *Walker
	notifier Notifier
	shell    *Shell
	logRoot  string
	log      logrus.FieldLogger
	now      func() time.Time

	// terminate terminates a process and its descendants.
	terminate func(pid int) error
}

// NewTaskManager creates a new TaskManager.
func NewTaskManager(services Services, opt TaskOptions) *TaskManager {
	m := &TaskManager{
		tasks:     services.TaskService(),
		systems:   services.SystemService(),
		notifier:  opt.Notifier,
		shell:     opt.Shell,
		logRoot:   opt.LogRoot,
		log:       opt.Logger,
		now:       opt.Now,
		terminate: terminateTree,
	}
	if m.shell == nil {
		m.shell = &Shell{}
	}
	if m.log == nil {
		m.log = logrus.StandardLogger()
	}
	if m.now == nil {
		m.now = time.Now
	}
	m.resolver = NewResolver(m.tasks)
	m.walker = NewWalker(m.tasks)
	return m
}

// Resolver returns the resolver of the manager's tasks.
func (m *TaskManager) Resolver() *Resolver {
	return m.resolver
}

// Walker returns the walker of the manager's tasks.
func (m *TaskManager) Walker() *Walker {
	return m.walker
}

// TaskSpec describes a new task.
type TaskSpec struct {
	Name string

	// Inherit is a parent task name. When it is set, schedule and email
	// inherit from the parent, and so do command and condition unless they are set.
	Inherit string

	// Schedule overrides the schedule. Nil means never, or inherit.
	Schedule *Schedule

	Command   string
	Condition string
	Email     string
	Resources Resources

	// Once makes a one-shot task.
	Once bool
}

// Create creates a pending task from spec.
func (m *TaskManager) Create(spec TaskSpec) (*Task, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("task name required")
	}
	t := &Task{
		Name:      spec.Name,
		State:     TaskPending,
		Command:   Literal(spec.Command),
		Condition: Literal(spec.Condition),
		Email:     Literal(spec.Email),
		Resources: spec.Resources,
		Last:      LastRun{Once: spec.Once},
		Log:       m.logPath(spec.Name),
	}
	if spec.Inherit != "" {
		p, err := m.tasks.GetTask(spec.Inherit)
		if err != nil {
			return nil, err
		}
		t.Parent = p.Name
		t.Schedule = ScheduleInherit
		if spec.Command == "" {
			t.Command = Inherited()
		}
		if spec.Condition == "" {
			t.Condition = Inherited()
		}
		if spec.Email == "" {
			t.Email = Inherited()
		}
	}
	if spec.Schedule != nil {
		t.Schedule = *spec.Schedule
	}
	err := m.tasks.AddTask(t)
	if err != nil {
		return nil, err
	}
	m.log.WithField("task", t.Name).Infof("created task: %v", t)
	return t, nil
}

func (m *TaskManager) logPath(name string) string {
	if m.logRoot == "" {
		return ""
	}
	return filepath.Join(m.logRoot, name+".log")
}

// Get reads a task.
func (m *TaskManager) Get(name string) (*Task, error) {
	return m.tasks.GetTask(name)
}

// ListFilter filters tasks for listing.
type ListFilter struct {
	Name string

	// Ancestor limits the tasks to descendants of the task.
	Ancestor string

	State *TaskState

	// Holding keeps tasks holding any of the resource tags.
	Holding []string

	// NotHolding drops tasks holding any of the resource tags.
	NotHolding []string
}

// List finds tasks matched with the filter.
// Tasks are ordered by name, or in walk order when Ancestor is set.
func (m *TaskManager) List(f ListFilter) ([]*Task, error) {
	var tasks []*Task
	if f.Ancestor != "" {
		if _, err := m.tasks.GetTask(f.Ancestor); err != nil {
			return nil, err
		}
		visits, err := m.walker.All(f.Ancestor)
		if err != nil {
			return nil, err
		}
		tf := TaskFilter{Name: f.Name, State: f.State}
		for _, v := range visits {
			if tf.Match(v.Task) {
				tasks = append(tasks, v.Task)
			}
		}
	} else {
		var err error
		tasks, err = m.tasks.FindTasks(TaskFilter{Name: f.Name, State: f.State})
		if err != nil {
			return nil, err
		}
	}
	result := make([]*Task, 0, len(tasks))
	for _, t := range tasks {
		if len(f.Holding) != 0 && !t.Resources.HoldsAny(f.Holding) {
			continue
		}
		if t.Resources.HoldsAny(f.NotHolding) {
			continue
		}
		result = append(result, t)
	}
	return result, nil
}

// Update sets fields of a task at once.
// State, last run, log and pid are owned by the state machine,
// and cannot be set with it.
func (m *TaskManager) Update(u TaskUpdater) error {
	if u.State != nil || u.Last != nil || u.Pid != nil || u.Log != nil {
		return fmt.Errorf("cannot set state fields of a task directly: %v", u.Name)
	}
	if u.Empty() {
		return fmt.Errorf("unexpected empty attrs to set for task: %v", u.Name)
	}
	if u.Parent != nil && *u.Parent != "" {
		if *u.Parent == u.Name {
			return fmt.Errorf("task cannot be a parent of itself: %v", u.Name)
		}
		if _, err := m.tasks.GetTask(*u.Parent); err != nil {
			return err
		}
	}
	err := m.tasks.UpdateTask(u)
	if err != nil {
		return err
	}
	m.log.WithField("task", u.Name).Info("updated task")
	return nil
}

// Delete deletes a task. Its subtasks become root tasks in walks.
func (m *TaskManager) Delete(name string) error {
	t, err := m.tasks.GetTask(name)
	if err != nil {
		return err
	}
	if t.Running() {
		m.log.WithField("task", name).Warn("deleting a running task")
	}
	err = m.tasks.DeleteTask(name)
	if err != nil {
		return err
	}
	m.log.WithField("task", name).Info("deleted task")
	return nil
}

// Reset makes a failed task pending again.
// A task in any other state than failed needs force.
// Resetting a pending task is a no-op with a warning.
func (m *TaskManager) Reset(name string, force bool) error {
	t, err := m.tasks.GetTask(name)
	if err != nil {
		return err
	}
	if t.Pending() {
		return errorf(ErrWarning, "task %s already pending", name)
	}
	if !force && !t.Failed() {
		return errorf(ErrPrecondition, "task %s must be failed before reset", name)
	}
	return m.transit(t, TaskUpdater{State: ptrTaskState(TaskPending), Pid: ptrInt(0)})
}

// AbortOptions controls an abort.
type AbortOptions struct {
	// Yes skips the confirmation.
	Yes bool

	// Confirm asks the operator whether to abort.
	// Abort is refused when it is nil or returns false, unless Yes is set.
	Confirm func(prompt string) bool
}

// Abort terminates a running task's process and fails the task.
func (m *TaskManager) Abort(name string, opt AbortOptions) error {
	t, err := m.tasks.GetTask(name)
	if err != nil {
		return err
	}
	if !t.Running() {
		return errorf(ErrPrecondition, "task %s is not running: %s", name, t.State)
	}
	if !opt.Yes {
		prompt := fmt.Sprintf("abort running task %s?", name)
		if opt.Confirm == nil || !opt.Confirm(prompt) {
			return errorf(ErrPrecondition, "abort of %s is not confirmed", name)
		}
	}
	log := m.log.WithField("task", name)
	if t.Pid != 0 {
		err := m.terminate(t.Pid)
		if err != nil {
			log.WithField("pid", t.Pid).Warnf("terminate: %v", err)
		}
	}
	log.Info("aborted")
	return m.transit(t, TaskUpdater{State: ptrTaskState(TaskFailed), Pid: ptrInt(0)})
}

// begin changes a pending or failed task to running.
// The task's last run will be now, and keeps being a one-shot task if it was.
func (m *TaskManager) begin(t *Task) (*Task, error) {
	if t.Running() {
		return nil, errorf(ErrPrecondition, "task %s is already running", t.Name)
	}
	last := LastRun{Time: m.now(), Once: t.Last.Once}
	err := m.transit(t, TaskUpdater{State: ptrTaskState(TaskRunning), Last: &last})
	if err != nil {
		return nil, err
	}
	return m.tasks.GetTask(t.Name)
}

// setPid records the process id of a running task.
func (m *TaskManager) setPid(name string, pid int) error {
	return m.tasks.UpdateTask(TaskUpdater{Name: name, Pid: &pid})
}

// succeed applies a successful exit of the task's command.
// A one-shot task is deleted, others become pending.
func (m *TaskManager) succeed(name string) error {
	t, err := m.tasks.GetTask(name)
	if err != nil {
		return err
	}
	if t.Once() {
		err := m.tasks.DeleteTask(name)
		if err != nil {
			return err
		}
		m.log.WithField("task", name).Info("one-shot task done, deleted")
		m.notify(t, t.State, TaskPending, "the one-shot task is done and deleted.")
		return nil
	}
	return m.transit(t, TaskUpdater{State: ptrTaskState(TaskPending), Pid: ptrInt(0)})
}

// skip applies exit code 126 of the task's command.
// The task becomes pending with an empty last run, so it is ready right away.
func (m *TaskManager) skip(name string) error {
	t, err := m.tasks.GetTask(name)
	if err != nil {
		return err
	}
	return m.transit(t, TaskUpdater{
		State: ptrTaskState(TaskPending),
		Last:  ptrLastRun(LastRun{Once: t.Last.Once}),
		Pid:   ptrInt(0),
	})
}

// fail applies a failed or timed out run of the task.
func (m *TaskManager) fail(name string) error {
	t, err := m.tasks.GetTask(name)
	if err != nil {
		return err
	}
	return m.transit(t, TaskUpdater{State: ptrTaskState(TaskFailed), Pid: ptrInt(0)})
}

// transit updates t with u in the store, and notifies if the state changed.
// u.State should be set.
func (m *TaskManager) transit(t *Task, u TaskUpdater) error {
	u.Name = t.Name
	err := m.tasks.UpdateTask(u)
	if err != nil {
		return err
	}
	from, to := t.State, *u.State
	if from == to {
		return nil
	}
	m.log.WithFields(logrus.Fields{"task": t.Name, "from": from.String(), "to": to.String()}).Info("state changed")
	m.notify(t, from, to, "")
	return nil
}

// notify sends a state change of t to the notifier.
// Failure of it doesn't affect the task.
func (m *TaskManager) notify(t *Task, from, to TaskState, note string) {
	if m.notifier == nil {
		return
	}
	log := m.log.WithField("task", t.Name)
	email, err := m.resolver.Email(t)
	if err != nil {
		log.Debugf("no recipients: %v", err)
	}
	ch := StateChange{
		Task:       t.Name,
		From:       from,
		To:         to,
		Log:        t.Log,
		Note:       note,
		Recipients: splitRecipients(email),
	}
	err = m.notifier.Notify(ch.Recipients, ch.Subject(), ch.Body())
	if err != nil {
		log.Warnf("notify: %v", err)
	}
}

func splitRecipients(s string) []string {
	rs := make([]string, 0)
	for _, r := range strings.Split(s, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			rs = append(rs, r)
		}
	}
	return rs
}
