package autolite

import "fmt"

// ShouldEqualTask checks that given two tasks are equal and raises an error
// about which parts are different between two.
// It considers the first is 'got' and the second is 'want'.
// Last run times are compared with Equal, so a task read back from
// a store matches the one written even when its location differs.
func ShouldEqualTask(got, want *Task) error {
	if got == nil && want == nil {
		return nil
	}
	if got == nil {
		return fmt.Errorf("only got is nil")
	}
	if want == nil {
		return fmt.Errorf("only want is nil")
	}
	if got.Name != want.Name {
		return fmt.Errorf("Name: got %v, want %v", got.Name, want.Name)
	}
	if got.Parent != want.Parent {
		return fmt.Errorf("Parent: got %v, want %v", got.Parent, want.Parent)
	}
	if got.Schedule != want.Schedule {
		return fmt.Errorf("Schedule: got %v, want %v", got.Schedule, want.Schedule)
	}
	if got.State != want.State {
		return fmt.Errorf("State: got %v, want %v", got.State, want.State)
	}
	if got.Command != want.Command {
		return fmt.Errorf("Command: got %v, want %v", got.Command, want.Command)
	}
	if got.Condition != want.Condition {
		return fmt.Errorf("Condition: got %v, want %v", got.Condition, want.Condition)
	}
	if got.Email != want.Email {
		return fmt.Errorf("Email: got %v, want %v", got.Email, want.Email)
	}
	if got.Resources.String() != want.Resources.String() {
		return fmt.Errorf("Resources: got %v, want %v", got.Resources, want.Resources)
	}
	if got.Log != want.Log {
		return fmt.Errorf("Log: got %v, want %v", got.Log, want.Log)
	}
	if got.Last.Once != want.Last.Once {
		return fmt.Errorf("Last.Once: got %v, want %v", got.Last.Once, want.Last.Once)
	}
	if !got.Last.Time.Equal(want.Last.Time) {
		return fmt.Errorf("Last.Time: got %v, want %v", got.Last.Time, want.Last.Time)
	}
	if got.Pid != want.Pid {
		return fmt.Errorf("Pid: got %v, want %v", got.Pid, want.Pid)
	}
	return nil
}

// ShouldEqualSystem checks that given two systems are equal, like ShouldEqualTask.
func ShouldEqualSystem(got, want *System) error {
	if got == nil && want == nil {
		return nil
	}
	if got == nil {
		return fmt.Errorf("only got is nil")
	}
	if want == nil {
		return fmt.Errorf("only want is nil")
	}
	gf, wf := got.Fields(), want.Fields()
	for _, k := range SystemFields {
		if gf[k] != wf[k] {
			return fmt.Errorf("%s: got %v, want %v", k, gf[k], wf[k])
		}
	}
	return nil
}
