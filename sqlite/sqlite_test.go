package sqlite

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/imagvfx/autolite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServices(t *testing.T) *Services {
	t.Helper()
	db, err := Create(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "cannot create db")
	t.Cleanup(func() { db.Close() })
	return NewServices(db)
}

func TestTaskService(t *testing.T) {
	ts := newTestServices(t).TaskService()
	last := time.Date(2021, 3, 4, 5, 6, 7, 8000, time.Local)
	tasks := []*autolite.Task{
		{
			Name:      "a",
			Schedule:  autolite.ScheduleDaily,
			State:     autolite.TaskPending,
			Command:   autolite.Literal("echo hi"),
			Email:     autolite.Literal("a@b.c"),
			Resources: autolite.Resources{"gpu", "disk"},
			Log:       "/tmp/a.log",
		},
		{
			Name:      "b",
			Parent:    "a",
			Schedule:  autolite.ScheduleInherit,
			State:     autolite.TaskRunning,
			Command:   autolite.Inherited(),
			Condition: autolite.Literal("test -e /tmp"),
			Email:     autolite.Inherited(),
			Last:      autolite.LastRun{Time: last, Once: true},
			Pid:       42,
		},
	}
	for _, task := range tasks {
		require.NoError(t, ts.AddTask(task))
	}
	err := ts.AddTask(tasks[0])
	assert.True(t, errors.Is(err, autolite.ErrExists), "add twice: %v", err)

	for i, want := range tasks {
		got, err := ts.GetTask(want.Name)
		require.NoError(t, err)
		if err := autolite.ShouldEqualTask(got, want); err != nil {
			t.Fatalf("%d: %v", i, err)
		}
	}
	_, err = ts.GetTask("nobody")
	assert.True(t, errors.Is(err, autolite.ErrNotFound))

	parent := "a"
	found, err := ts.FindTasks(autolite.TaskFilter{Parent: &parent})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "b", found[0].Name)

	running := autolite.TaskRunning
	found, err = ts.FindTasks(autolite.TaskFilter{State: &running})
	require.NoError(t, err)
	require.Len(t, found, 1)

	failed := autolite.TaskFailed
	pid := 0
	require.NoError(t, ts.UpdateTask(autolite.TaskUpdater{Name: "b", State: &failed, Pid: &pid}))
	got, err := ts.GetTask("b")
	require.NoError(t, err)
	assert.Equal(t, autolite.TaskFailed, got.State)
	assert.Equal(t, 0, got.Pid)
	assert.True(t, got.Last.Once)

	err = ts.UpdateTask(autolite.TaskUpdater{Name: "nobody", State: &failed})
	assert.True(t, errors.Is(err, autolite.ErrNotFound))
	assert.Error(t, ts.UpdateTask(autolite.TaskUpdater{Name: "b"}))

	require.NoError(t, ts.DeleteTask("a"))
	err = ts.DeleteTask("a")
	assert.True(t, errors.Is(err, autolite.ErrNotFound))
	// subtasks survive.
	_, err = ts.GetTask("b")
	assert.NoError(t, err)
}

func TestSystemService(t *testing.T) {
	ss := newTestServices(t).SystemService()
	want := &autolite.System{Name: "sys", IP: "10.0.0.1", Installer: "make install", Comment: "lab"}
	require.NoError(t, ss.AddSystem(want))
	assert.True(t, errors.Is(ss.AddSystem(want), autolite.ErrExists))

	got, err := ss.GetSystem("sys")
	require.NoError(t, err)
	require.NoError(t, autolite.ShouldEqualSystem(got, want))

	user := "alice"
	require.NoError(t, ss.UpdateSystem(autolite.SystemUpdater{Name: "sys", User: &user}))
	held, err := ss.FindSystems(autolite.SystemFilter{User: &user})
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "alice", held[0].User)

	require.NoError(t, ss.DeleteSystem("sys"))
	_, err = ss.GetSystem("sys")
	assert.True(t, errors.Is(err, autolite.ErrNotFound))
}

func TestInitDrop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Create(path)
	require.NoError(t, err)
	defer db.Close()
	ts := NewTaskService(db)
	require.NoError(t, ts.AddTask(&autolite.Task{Name: "a"}))

	require.NoError(t, Init(db, false))
	all, err := ts.FindTasks(autolite.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, Init(db, true))
	all, err = ts.FindTasks(autolite.TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 0)
}

func TestRunTaskOnSqlite(t *testing.T) {
	services := newTestServices(t)
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	m := autolite.NewTaskManager(services, autolite.TaskOptions{
		LogRoot: t.TempDir(),
		Logger:  log,
	})
	_, err := m.Create(autolite.TaskSpec{Name: "t1", Command: "true"})
	require.NoError(t, err)
	s := autolite.NewSupervisor(m)
	started, err := s.Start(context.Background(), "t1")
	require.NoError(t, err)
	require.True(t, started)
	state, err := s.Wait(context.Background(), "t1", 10*time.Millisecond, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, autolite.TaskPending, state)
	got, err := m.Get("t1")
	require.NoError(t, err)
	assert.False(t, got.Last.Time.IsZero())
	assert.Equal(t, 0, got.Pid)
}

func TestSwapSystemUser(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	// two handles on a db, like two operators' processes.
	dbs := make([]*SystemService, 2)
	for i := range dbs {
		db, err := Create(path)
		require.NoError(t, err)
		defer db.Close()
		dbs[i] = NewSystemService(db)
	}
	require.NoError(t, dbs[0].AddSystem(&autolite.System{Name: "sys"}))

	const n = 8
	won := make(chan string, n)
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := fmt.Sprintf("user%d", i)
			ok, err := dbs[i%2].SwapSystemUser("sys", "", user)
			if err != nil {
				errs <- err
				return
			}
			if ok {
				won <- user
			}
		}(i)
	}
	wg.Wait()
	close(won)
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	winners := make([]string, 0)
	for u := range won {
		winners = append(winners, u)
	}
	require.Len(t, winners, 1)
	got, err := dbs[1].GetSystem("sys")
	require.NoError(t, err)
	assert.Equal(t, winners[0], got.User)

	ok, err := dbs[0].SwapSystemUser("sys", "nobody", "")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = dbs[0].SwapSystemUser("sys", winners[0], "")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = dbs[0].SwapSystemUser("nosys", "", "alice")
	assert.True(t, errors.Is(err, autolite.ErrNotFound))
}
