package autolite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// serveAll serves until every process is done with.
func serveAll(t *testing.T, s *Supervisor, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for s.Serve(timeout) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("processes didn't finish in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSupervisorExitCodes(t *testing.T) {
	env := newTestEnv(t)
	m := env.tasks
	addTasks(t, m.tasks,
		&Task{Name: "ok", State: TaskPending, Command: Literal("true")},
		&Task{Name: "skip", State: TaskPending, Command: Literal("exit 126"), Last: LastRun{Time: env.now.Add(-time.Hour)}},
		&Task{Name: "bad", State: TaskPending, Command: Literal("exit 3")},
		&Task{Name: "cond", State: TaskPending, Command: Literal("true"), Condition: Literal("false")},
		&Task{Name: "once", State: TaskPending, Command: Literal("true"), Last: LastRun{Once: true}},
		&Task{Name: "env", State: TaskPending, Command: Literal(`test "$AUTOLITE_TASK_NAME" = env`)},
	)
	s := NewSupervisor(m)
	ctx := context.Background()
	cases := []struct {
		name      string
		started   bool
		wantState TaskState
		wantLast  bool
		deleted   bool
	}{
		{name: "ok", started: true, wantState: TaskPending, wantLast: true},
		{name: "skip", started: true, wantState: TaskPending, wantLast: false},
		{name: "bad", started: true, wantState: TaskFailed, wantLast: true},
		{name: "cond", started: false, wantState: TaskPending, wantLast: false},
		{name: "once", started: true, deleted: true},
		{name: "env", started: true, wantState: TaskPending, wantLast: true},
	}
	for i, c := range cases {
		started, err := s.Start(ctx, c.name)
		if err != nil {
			t.Fatalf("%d: %v", i, err)
		}
		if started != c.started {
			t.Fatalf("%d: started: got %v, want %v", i, started, c.started)
		}
	}
	serveAll(t, s, 0)
	for i, c := range cases {
		task, err := m.Get(c.name)
		if c.deleted {
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("%d: got %v, want deleted", i, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%d: %v", i, err)
		}
		if task.State != c.wantState {
			t.Fatalf("%d: state: got %v, want %v", i, task.State, c.wantState)
		}
		if got := task.Last.Time.Equal(env.now); got != c.wantLast {
			t.Fatalf("%d: last is now: got %v, want %v", i, got, c.wantLast)
		}
		if task.Pid != 0 {
			t.Fatalf("%d: pid should be cleared: %v", i, task.Pid)
		}
	}
}

func TestSupervisorStartRunning(t *testing.T) {
	env := newTestEnv(t)
	m := env.tasks
	addTasks(t, m.tasks, &Task{Name: "t", State: TaskRunning, Command: Literal("true")})
	s := NewSupervisor(m)
	_, err := s.Start(context.Background(), "t")
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("got %v, want ErrPrecondition", err)
	}
	_, err = s.Start(context.Background(), "nobody")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestSupervisorTimeout(t *testing.T) {
	cases := []struct {
		timeout   time.Duration
		wantState TaskState
		wantLeft  int
	}{
		{timeout: 5 * time.Second, wantState: TaskFailed, wantLeft: 0},
		{timeout: 0, wantState: TaskRunning, wantLeft: 1},
	}
	for i, c := range cases {
		env := newTestEnv(t)
		m := env.tasks
		addTasks(t, m.tasks, &Task{Name: "sleep", State: TaskPending, Command: Literal("sleep 30")})
		s := NewSupervisor(m)
		_, err := s.Start(context.Background(), "sleep")
		if err != nil {
			t.Fatalf("%d: %v", i, err)
		}
		started := env.now.Add(-6 * time.Second)
		err = m.tasks.UpdateTask(TaskUpdater{Name: "sleep", Last: &LastRun{Time: started}})
		if err != nil {
			t.Fatalf("%d: %v", i, err)
		}
		left := s.Serve(c.timeout)
		if left != c.wantLeft {
			t.Fatalf("%d: left: got %v, want %v", i, left, c.wantLeft)
		}
		task, err := m.Get("sleep")
		if err != nil {
			t.Fatalf("%d: %v", i, err)
		}
		if task.State != c.wantState {
			t.Fatalf("%d: state: got %v, want %v", i, task.State, c.wantState)
		}
		if left != 0 {
			if err := s.Terminate("sleep"); err != nil {
				t.Fatalf("%d: %v", i, err)
			}
			serveAll(t, s, 0)
		}
	}
}

func TestSupervisorLog(t *testing.T) {
	env := newTestEnv(t)
	m := env.tasks
	_, err := m.Create(TaskSpec{Name: "t1", Command: "echo hello $AUTOLITE_TASK_NAME; echo oops >&2"})
	if err != nil {
		t.Fatal(err)
	}
	s := NewSupervisor(m)
	for run := 0; run < 2; run++ {
		_, err = s.Start(context.Background(), "t1")
		if err != nil {
			t.Fatal(err)
		}
		state, err := s.Wait(context.Background(), "t1", 10*time.Millisecond, 0)
		if err != nil {
			t.Fatal(err)
		}
		if state != TaskPending {
			t.Fatalf("got %v, want pending", state)
		}
	}
	task, err := m.Get("t1")
	if err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(task.Log)
	if err != nil {
		t.Fatal(err)
	}
	log := string(data)
	if n := strings.Count(log, "hello t1\n"); n != 2 {
		t.Fatalf("log should be appended twice, got %d:\n%s", n, log)
	}
	if !strings.Contains(log, "oops\n") {
		t.Fatalf("log should have stderr:\n%s", log)
	}
}

func TestSupervisorTimeoutKillsIgnoringTerm(t *testing.T) {
	defer func(d time.Duration) { termGrace = d }(termGrace)
	termGrace = 200 * time.Millisecond

	env := newTestEnv(t)
	m := env.tasks
	addTasks(t, m.tasks, &Task{Name: "stubborn", State: TaskPending, Command: Literal("trap '' TERM; echo ready; sleep 30; echo done")})
	s := NewSupervisor(m)
	_, err := s.Start(context.Background(), "stubborn")
	if err != nil {
		t.Fatal(err)
	}
	// the trap should be set before the timeout.
	logPath := filepath.Join(env.logRoot, "stubborn.log")
	deadline := time.Now().Add(5 * time.Second)
	for {
		data, _ := os.ReadFile(logPath)
		if strings.Contains(string(data), "ready\n") {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("task didn't get ready:\n%s", data)
		}
		time.Sleep(10 * time.Millisecond)
	}
	task, err := m.Get("stubborn")
	if err != nil {
		t.Fatal(err)
	}
	root, err := process.NewProcess(int32(task.Pid))
	if err != nil {
		t.Fatal(err)
	}
	pids := make([]int, 0)
	for _, p := range collect(root) {
		pids = append(pids, int(p.Pid))
	}

	err = m.tasks.UpdateTask(TaskUpdater{Name: "stubborn", Last: &LastRun{Time: env.now.Add(-6 * time.Second)}})
	if err != nil {
		t.Fatal(err)
	}
	left := s.Serve(5 * time.Second)
	if left != 0 {
		t.Fatalf("left: got %v, want 0", left)
	}
	task, err = m.Get("stubborn")
	if err != nil {
		t.Fatal(err)
	}
	if task.State != TaskFailed {
		t.Fatalf("state: got %v, want failed", task.State)
	}
	for _, pid := range pids {
		if alive(pid) {
			t.Fatalf("process %d is alive after timeout", pid)
		}
	}
}

func TestSupervisorTerminateFails(t *testing.T) {
	env := newTestEnv(t)
	m := env.tasks
	// exits 0 on TERM, but the task should still fail.
	addTasks(t, m.tasks, &Task{Name: "t", State: TaskPending, Command: Literal("trap 'exit 0' TERM; while true; do sleep 0.05; done")})
	s := NewSupervisor(m)
	_, err := s.Start(context.Background(), "t")
	if err != nil {
		t.Fatal(err)
	}
	err = s.Terminate("t")
	if err != nil {
		t.Fatal(err)
	}
	serveAll(t, s, 0)
	task, err := m.Get("t")
	if err != nil {
		t.Fatal(err)
	}
	if task.State != TaskFailed {
		t.Fatalf("state: got %v, want failed", task.State)
	}
}
