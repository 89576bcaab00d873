package autolite

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

// Supervisor starts task commands and watches them until they exit.
// It is not a daemon. The caller drives it by calling Serve periodically.
type Supervisor struct {
	sync.Mutex

	tasks *TaskManager
	log   logrus.FieldLogger

	// procs are supervised processes, keyed by task name.
	procs map[string]*taskProc
}

// taskProc is a running command of a task.
type taskProc struct {
	task string
	run  xid.ID
	cmd  *exec.Cmd
	logf *os.File

	// done is closed when the command exited. code is valid after that.
	done chan struct{}
	code int

	// stopped is set when the supervisor terminated the process.
	stopped bool
}

// killWait is how long stop waits for a killed process to be reaped.
const killWait = time.Second

func (p *taskProc) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// NewSupervisor creates a new Supervisor running commands of tasks.
func NewSupervisor(tasks *TaskManager) *Supervisor {
	return &Supervisor{
		tasks: tasks,
		log:   tasks.log,
		procs: make(map[string]*taskProc),
	}
}

// Start runs the task's command when the task's condition holds.
// It reports whether the command was spawned.
//
// The task turns into running before its command is spawned.
// A command which cannot be spawned is treated as if it exited with 126.
func (s *Supervisor) Start(ctx context.Context, name string) (bool, error) {
	s.Lock()
	_, ok := s.procs[name]
	s.Unlock()
	if ok {
		return false, errorf(ErrPrecondition, "task %s is already supervised", name)
	}
	m := s.tasks
	t, err := m.tasks.GetTask(name)
	if err != nil {
		return false, err
	}
	if t.Running() {
		return false, errorf(ErrPrecondition, "task %s is already running", name)
	}
	log := s.log.WithField("task", name)
	cond, err := m.resolver.Condition(t)
	if err != nil {
		return false, err
	}
	command, err := m.resolver.Command(t)
	if err != nil {
		return false, err
	}
	taskEnv := "AUTOLITE_TASK_NAME=" + name
	ok, err = m.shell.True(ctx, cond, taskEnv)
	if err != nil {
		return false, err
	}
	if !ok {
		log.Debug("condition is not met")
		return false, nil
	}
	t, err = m.begin(t)
	if err != nil {
		return false, err
	}
	run := xid.New()
	log = log.WithField("run", run.String())
	logf, err := s.openLog(t)
	if err != nil {
		if ferr := m.fail(name); ferr != nil {
			log.Error(ferr)
		}
		return false, err
	}
	fmt.Fprintf(logf, "=== %s run %s\n", t.Last.Time.Format(lastLayout), run)

	// The command shouldn't be killed with ctx. It outlives the caller
	// until it exits or times out in Serve.
	cmd := m.shell.Command(context.Background(), command, taskEnv, "AUTOLITE_RUN_ID="+run.String())
	cmd.Stdout = logf
	cmd.Stderr = logf
	p := &taskProc{
		task: name,
		run:  run,
		cmd:  cmd,
		logf: logf,
		done: make(chan struct{}),
	}
	err = cmd.Start()
	if err != nil {
		log.Warnf("cannot spawn: %v", err)
		fmt.Fprintf(logf, "cannot spawn: %v\n", err)
		p.code = ExitCannotExecute
		close(p.done)
	} else {
		go func() {
			code, err := exitCode(cmd.Wait())
			if err != nil {
				log.Warn(err)
			}
			p.code = code
			close(p.done)
		}()
		err = m.setPid(name, cmd.Process.Pid)
		if err != nil {
			log.Warnf("record pid: %v", err)
		}
		log.WithField("pid", cmd.Process.Pid).Info("started")
	}
	s.Lock()
	s.procs[name] = p
	s.Unlock()
	return true, nil
}

func (s *Supervisor) openLog(t *Task) (*os.File, error) {
	path := t.Log
	if path == "" {
		path = s.tasks.logPath(t.Name)
	}
	if path == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
}

// Serve checks every supervised process once.
// Exited ones are applied to their tasks. Running ones are terminated
// and fail when their tasks started more than timeout ago.
// It waits only for the processes it terminates, for a bounded time.
// Zero timeout means no timeout.
//
// It returns the number of processes still being supervised.
func (s *Supervisor) Serve(timeout time.Duration) int {
	s.Lock()
	defer s.Unlock()
	names := make([]string, 0, len(s.procs))
	for name := range s.procs {
		names = append(names, name)
	}
	sort.Strings(names)
	now := s.tasks.now()
	for _, name := range names {
		p := s.procs[name]
		if s.serve(p, now, timeout) {
			p.logf.Close()
			delete(s.procs, name)
		}
	}
	return len(s.procs)
}

// serve applies the process's status to its task. It reports whether
// the process is done with.
//
// A timed out or terminated process is killed again on every call
// until it exited. Its task keeps running until then.
func (s *Supervisor) serve(p *taskProc, now time.Time, timeout time.Duration) bool {
	m := s.tasks
	log := s.log.WithFields(logrus.Fields{"task": p.task, "run": p.run.String()})
	if !p.exited() {
		t, err := m.tasks.GetTask(p.task)
		if err != nil {
			log.Warnf("supervised task: %v", err)
			return false
		}
		if !p.stopped && !t.Expired(now, timeout) {
			return false
		}
		if !p.stopped {
			log.Warnf("timed out after %v", now.Sub(t.Last.Time))
			fmt.Fprintf(p.logf, "timed out after %v\n", timeout)
		}
		s.stop(p)
		if !p.exited() {
			log.Warn("still alive after kill")
			return false
		}
	}
	log = log.WithField("exit", p.code)
	var err error
	switch {
	case p.stopped:
		log.Warn("terminated")
		err = m.fail(p.task)
	case p.code == 0:
		log.Info("succeeded")
		err = m.succeed(p.task)
	case p.code == ExitCannotExecute:
		log.Info("skipped")
		err = m.skip(p.task)
	default:
		log.Warn("failed")
		err = m.fail(p.task)
	}
	if err != nil {
		log.Error(err)
	}
	return true
}

// stop terminates the process tree of p, and waits for the process
// to exit for at most killWait after that.
func (s *Supervisor) stop(p *taskProc) {
	p.stopped = true
	if p.cmd.Process == nil {
		return
	}
	err := terminateTree(p.cmd.Process.Pid)
	if err != nil {
		s.log.WithField("task", p.task).Debugf("terminate tree: %v", err)
		p.cmd.Process.Kill()
	}
	select {
	case <-p.done:
	case <-time.After(killWait):
	}
}

// Terminate terminates the supervised process of a task.
// The task will fail when the next Serve sees the process exited,
// whatever its exit code is.
func (s *Supervisor) Terminate(name string) error {
	s.Lock()
	defer s.Unlock()
	p, ok := s.procs[name]
	if !ok {
		return errorf(ErrPrecondition, "task %s is not supervised", name)
	}
	s.stop(p)
	return nil
}

// Supervising reports whether the task's process is supervised.
func (s *Supervisor) Supervising(name string) bool {
	s.Lock()
	defer s.Unlock()
	_, ok := s.procs[name]
	return ok
}

// Len returns the number of supervised processes.
func (s *Supervisor) Len() int {
	s.Lock()
	defer s.Unlock()
	return len(s.procs)
}

// Wait serves until the task's process is done with, checking every interval.
// It returns the task's state after that. A deleted one-shot task reports pending.
func (s *Supervisor) Wait(ctx context.Context, name string, interval, timeout time.Duration) (TaskState, error) {
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		s.Serve(timeout)
		if !s.Supervising(name) {
			break
		}
		select {
		case <-ctx.Done():
			return TaskRunning, ctx.Err()
		case <-tick.C:
		}
	}
	t, err := s.tasks.tasks.GetTask(name)
	if err != nil {
		if IsReferential(err) {
			return TaskPending, nil
		}
		return TaskFailed, err
	}
	return t.State, nil
}
