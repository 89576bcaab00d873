package autolite

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler starts ready tasks and serves them periodically.
type Scheduler struct {
	tasks      *TaskManager
	supervisor *Supervisor
	systems    SystemService
	log        logrus.FieldLogger

	// Interval is the duration between cycles.
	Interval time.Duration

	// Timeout is the duration after that a running task is terminated.
	// Zero means no timeout.
	Timeout time.Duration
}

// NewScheduler creates a new Scheduler.
func NewScheduler(tasks *TaskManager, supervisor *Supervisor, interval, timeout time.Duration) *Scheduler {
	return &Scheduler{
		tasks:      tasks,
		supervisor: supervisor,
		systems:    tasks.systems,
		log:        tasks.log,
		Interval:   interval,
		Timeout:    timeout,
	}
}

// Due finds tasks to start at now, in walk order of the task forest.
//
// A ready task is left out when one of its resource tags is held by
// a running task, or by a task that is found due earlier,
// or names a system held by somebody.
func (s *Scheduler) Due(now time.Time) ([]*Task, error) {
	running, err := s.tasks.tasks.FindTasks(TaskFilter{State: ptrTaskState(TaskRunning)})
	if err != nil {
		return nil, err
	}
	held := make(Resources, 0)
	for _, t := range running {
		held = append(held, t.Resources...)
	}
	systems, err := s.systems.FindSystems(SystemFilter{})
	if err != nil {
		return nil, err
	}
	locked := make([]string, 0)
	for _, sys := range systems {
		if !sys.Free() {
			locked = append(locked, sys.Name)
		}
	}
	visits, err := s.tasks.walker.All("")
	if err != nil {
		return nil, err
	}
	due := make([]*Task, 0)
	for _, v := range visits {
		t := v.Task
		log := s.log.WithField("task", t.Name)
		ready, err := s.tasks.resolver.Ready(t, now)
		if err != nil {
			log.Warn(err)
			continue
		}
		if !ready {
			continue
		}
		if t.Resources.Overlaps(held) {
			log.Debugf("waiting for resources: %v", t.Resources)
			continue
		}
		if t.Resources.HoldsAny(locked) {
			log.Debugf("waiting for systems: %v", t.Resources)
			continue
		}
		held = append(held, t.Resources...)
		due = append(due, t)
	}
	return due, nil
}

// Cycle starts due tasks, then serves the supervised ones once.
// It returns the number of tasks still running.
func (s *Scheduler) Cycle(ctx context.Context) (int, error) {
	due, err := s.Due(s.tasks.now())
	if err != nil {
		return s.supervisor.Serve(s.Timeout), err
	}
	for _, t := range due {
		_, err := s.supervisor.Start(ctx, t.Name)
		if err != nil {
			s.log.WithField("task", t.Name).Errorf("start: %v", err)
		}
	}
	return s.supervisor.Serve(s.Timeout), nil
}

// Run runs cycles every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	err := s.Recover()
	if err != nil {
		return err
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Second
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		n, err := s.Cycle(ctx)
		if err != nil {
			s.log.Errorf("cycle: %v", err)
		}
		s.log.WithField("running", n).Trace("cycle done")
		select {
		case <-ctx.Done():
			s.log.Infof("stopping with %d running tasks", s.supervisor.Len())
			return nil
		case <-tick.C:
		}
	}
}

// Recover fails running tasks whose processes are gone.
// It is for tasks left running by a previous scheduler which stopped
// before the tasks finished. Tasks with a live process are left alone,
// since they could be supervised by another process.
func (s *Scheduler) Recover() error {
	running, err := s.tasks.tasks.FindTasks(TaskFilter{State: ptrTaskState(TaskRunning)})
	if err != nil {
		return err
	}
	for _, t := range running {
		if s.supervisor.Supervising(t.Name) {
			continue
		}
		log := s.log.WithFields(logrus.Fields{"task": t.Name, "pid": t.Pid})
		if alive(t.Pid) {
			log.Warn("running task is not supervised by this scheduler")
			continue
		}
		log.Warn("running task has no process, failing it")
		err := s.tasks.fail(t.Name)
		if err != nil {
			return err
		}
	}
	return nil
}
