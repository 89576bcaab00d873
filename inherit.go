package autolite

import "time"

// Resolver finds real values of inherited task fields.
//
// It reads the parent chain from the store on every call.
// Other operators could change the chain at any time, so nothing is cached.
type Resolver struct {
	tasks TaskService
}

// NewResolver creates a new Resolver.
func NewResolver(tasks TaskService) *Resolver {
	return &Resolver{tasks: tasks}
}

// owner walks up from t and returns the first task which doesn't inherit the field.
// It fails when the chain ends, or loops, while the field still inherits.
func (r *Resolver) owner(t *Task, field string, inherits func(*Task) bool) (*Task, error) {
	seen := map[string]bool{t.Name: true}
	tt := t
	for inherits(tt) {
		if tt.Parent == "" {
			return nil, errorf(ErrInherit, "missing parent for inherit: %s.%s", tt.Name, field)
		}
		if seen[tt.Parent] {
			return nil, errorf(ErrInherit, "inherit loop at %s: %s.%s", tt.Parent, t.Name, field)
		}
		seen[tt.Parent] = true
		p, err := r.tasks.GetTask(tt.Parent)
		if err != nil {
			return nil, err
		}
		tt = p
	}
	return tt, nil
}

// Schedule resolves the task's schedule.
func (r *Resolver) Schedule(t *Task) (Schedule, error) {
	o, err := r.owner(t, "schedule", func(t *Task) bool { return t.Schedule == ScheduleInherit })
	if err != nil {
		return ScheduleNever, err
	}
	return o.Schedule, nil
}

// Command resolves the task's command.
func (r *Resolver) Command(t *Task) (string, error) {
	return r.attr(t, "command", func(t *Task) Attr { return t.Command })
}

// Condition resolves the task's condition.
func (r *Resolver) Condition(t *Task) (string, error) {
	return r.attr(t, "condition", func(t *Task) Attr { return t.Condition })
}

// Email resolves the task's email recipients.
func (r *Resolver) Email(t *Task) (string, error) {
	return r.attr(t, "email", func(t *Task) Attr { return t.Email })
}

func (r *Resolver) attr(t *Task, field string, get func(*Task) Attr) (string, error) {
	o, err := r.owner(t, field, func(t *Task) bool { return get(t).Inherit })
	if err != nil {
		return "", err
	}
	return get(o).Text, nil
}

// Ready resolves the task's schedule and reports whether it is due at now.
func (r *Resolver) Ready(t *Task, now time.Time) (bool, error) {
	if !t.Pending() || t.Once() {
		// don't bother walking up.
		return false, nil
	}
	s, err := r.Schedule(t)
	if err != nil {
		return false, err
	}
	return Ready(t, s, now), nil
}
