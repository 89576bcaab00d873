package autolite

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func dueNames(tasks []*Task) []string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	return names
}

func TestSchedulerDue(t *testing.T) {
	env := newTestEnv(t)
	m := env.tasks
	addTasks(t, m.tasks,
		&Task{Name: "a", State: TaskPending, Schedule: ScheduleContinuous, Resources: Resources{"gpu"}},
		&Task{Name: "a.1", Parent: "a", State: TaskPending, Schedule: ScheduleInherit},
		&Task{Name: "b", State: TaskPending, Schedule: ScheduleContinuous, Resources: Resources{"gpu"}},
		&Task{Name: "c", State: TaskRunning, Schedule: ScheduleContinuous, Resources: Resources{"disk"}},
		&Task{Name: "d", State: TaskPending, Schedule: ScheduleContinuous, Resources: Resources{"disk"}},
		&Task{Name: "e", State: TaskPending, Schedule: ScheduleContinuous, Resources: Resources{"lab"}},
		&Task{Name: "f", State: TaskPending, Schedule: ScheduleNever},
		&Task{Name: "g", State: TaskPending, Schedule: ScheduleContinuous, Last: LastRun{Once: true}},
		&Task{Name: "h", State: TaskPending, Schedule: ScheduleInherit},
	)
	systems := m.systems
	if err := systems.AddSystem(&System{Name: "lab", User: "alice"}); err != nil {
		t.Fatal(err)
	}
	s := NewScheduler(m, NewSupervisor(m), time.Second, 0)
	due, err := s.Due(env.now)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a", "a.1"}
	if got := dueNames(due); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSchedulerCycle(t *testing.T) {
	env := newTestEnv(t)
	m := env.tasks
	hourly := ScheduleHourly
	_, err := m.Create(TaskSpec{Name: "t1", Schedule: &hourly, Command: "true"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = m.Create(TaskSpec{Name: "t2", Schedule: &hourly, Command: "exit 1"})
	if err != nil {
		t.Fatal(err)
	}
	sv := NewSupervisor(m)
	s := NewScheduler(m, sv, 10*time.Millisecond, 0)
	ctx := context.Background()
	_, err = s.Cycle(ctx)
	if err != nil {
		t.Fatal(err)
	}
	serveAll(t, sv, 0)
	cases := []struct {
		name string
		want TaskState
	}{
		{name: "t1", want: TaskPending},
		{name: "t2", want: TaskFailed},
	}
	for i, c := range cases {
		task, err := m.Get(c.name)
		if err != nil {
			t.Fatalf("%d: %v", i, err)
		}
		if task.State != c.want {
			t.Fatalf("%d: got %v, want %v", i, task.State, c.want)
		}
		if !task.Last.Time.Equal(env.now) {
			t.Fatalf("%d: last: got %v, want %v", i, task.Last.Time, env.now)
		}
	}
	// t1 already ran in this hour.
	due, err := s.Due(env.now)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 0 {
		t.Fatalf("got %v, want none", dueNames(due))
	}
	env.now = env.now.Add(time.Hour)
	due, err = s.Due(env.now)
	if err != nil {
		t.Fatal(err)
	}
	if got := dueNames(due); !reflect.DeepEqual(got, []string{"t1"}) {
		t.Fatalf("got %v, want [t1]", got)
	}
}

func TestSchedulerRecover(t *testing.T) {
	env := newTestEnv(t)
	m := env.tasks
	addTasks(t, m.tasks,
		// no process could have a negative pid.
		&Task{Name: "gone", State: TaskRunning, Pid: -1},
		&Task{Name: "fine", State: TaskPending},
	)
	s := NewScheduler(m, NewSupervisor(m), time.Second, 0)
	if err := s.Recover(); err != nil {
		t.Fatal(err)
	}
	task, err := m.Get("gone")
	if err != nil {
		t.Fatal(err)
	}
	if task.State != TaskFailed {
		t.Fatalf("got %v, want failed", task.State)
	}
}
