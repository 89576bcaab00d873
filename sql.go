package autolite

// Services gives access to the record store.
type Services interface {
	TaskService() TaskService
	SystemService() SystemService
}

// TaskService is an interface which let us use sqlite.TaskService.
//
// Implementations return an error wrapping ErrNotFound for a missing task,
// and ErrExists when adding a task with a name already taken.
// They should not raise other kinds of errors defined in this package.
type TaskService interface {
	AddTask(*Task) error
	GetTask(name string) (*Task, error)
	FindTasks(TaskFilter) ([]*Task, error)
	UpdateTask(TaskUpdater) error
	DeleteTask(name string) error
}

// TaskFilter is a filter for searching tasks.
// Zero value matches all tasks.
type TaskFilter struct {
	Name   string
	Parent *string
	State  *TaskState
}

// Match reports whether t passes the filter.
func (f TaskFilter) Match(t *Task) bool {
	if f.Name != "" && t.Name != f.Name {
		return false
	}
	if f.Parent != nil && t.Parent != *f.Parent {
		return false
	}
	if f.State != nil && t.State != *f.State {
		return false
	}
	return true
}

// TaskUpdater has information for updating a task.
// Only non-nil fields are updated, and they are updated at once.
type TaskUpdater struct {
	Name      string
	Parent    *string
	Schedule  *Schedule
	State     *TaskState
	Command   *Attr
	Condition *Attr
	Email     *Attr
	Resources *Resources
	Log       *string
	Last      *LastRun
	Pid       *int
}

// Empty reports whether the updater has nothing to update.
func (u TaskUpdater) Empty() bool {
	return u.Parent == nil && u.Schedule == nil && u.State == nil &&
		u.Command == nil && u.Condition == nil && u.Email == nil &&
		u.Resources == nil && u.Log == nil && u.Last == nil && u.Pid == nil
}

// Apply applies the updater to t.
func (u TaskUpdater) Apply(t *Task) {
	if u.Parent != nil {
		t.Parent = *u.Parent
	}
	if u.Schedule != nil {
		t.Schedule = *u.Schedule
	}
	if u.State != nil {
		t.State = *u.State
	}
	if u.Command != nil {
		t.Command = *u.Command
	}
	if u.Condition != nil {
		t.Condition = *u.Condition
	}
	if u.Email != nil {
		t.Email = *u.Email
	}
	if u.Resources != nil {
		t.Resources = *u.Resources
	}
	if u.Log != nil {
		t.Log = *u.Log
	}
	if u.Last != nil {
		t.Last = *u.Last
	}
	if u.Pid != nil {
		t.Pid = *u.Pid
	}
}

// SystemService is an interface which let us use sqlite.SystemService.
// It follows the same error rules with TaskService.
type SystemService interface {
	AddSystem(*System) error
	GetSystem(name string) (*System, error)
	FindSystems(SystemFilter) ([]*System, error)
	UpdateSystem(SystemUpdater) error
	DeleteSystem(name string) error

	// SwapSystemUser changes the system's user in a single step,
	// only when the user is still from. It reports whether it changed.
	SwapSystemUser(name, from, to string) (bool, error)
}

// SystemFilter is a filter for searching systems.
type SystemFilter struct {
	Name string
	User *string
}

// Match reports whether s passes the filter.
func (f SystemFilter) Match(s *System) bool {
	if f.Name != "" && s.Name != f.Name {
		return false
	}
	if f.User != nil && s.User != *f.User {
		return false
	}
	return true
}

// SystemUpdater has information for updating a system.
type SystemUpdater struct {
	Name      string
	IP        *string
	Installer *string
	Cleaner   *string
	Monitor   *string
	Config    *string
	User      *string
	Comment   *string
}

// Empty reports whether the updater has nothing to update.
func (u SystemUpdater) Empty() bool {
	return u.IP == nil && u.Installer == nil && u.Cleaner == nil &&
		u.Monitor == nil && u.Config == nil && u.User == nil && u.Comment == nil
}

// Apply applies the updater to s.
func (u SystemUpdater) Apply(s *System) {
	if u.IP != nil {
		s.IP = *u.IP
	}
	if u.Installer != nil {
		s.Installer = *u.Installer
	}
	if u.Cleaner != nil {
		s.Cleaner = *u.Cleaner
	}
	if u.Monitor != nil {
		s.Monitor = *u.Monitor
	}
	if u.Config != nil {
		s.Config = *u.Config
	}
	if u.User != nil {
		s.User = *u.User
	}
	if u.Comment != nil {
		s.Comment = *u.Comment
	}
}
