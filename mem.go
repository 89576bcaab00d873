package autolite

import (
	"fmt"
	"sort"
	"sync"
)

// MemServices keeps tasks and systems in memory.
// We need this for testing.
type MemServices struct {
	ts *MemTaskService
	ss *MemSystemService
}

// NewMemServices creates a new empty MemServices.
func NewMemServices() *MemServices {
	return &MemServices{
		ts: &MemTaskService{tasks: make(map[string]Task)},
		ss: &MemSystemService{systems: make(map[string]System)},
	}
}

func (s *MemServices) TaskService() TaskService {
	return s.ts
}

func (s *MemServices) SystemService() SystemService {
	return s.ss
}

// MemTaskService is a TaskService keeping tasks in a map.
// It stores copies, so a Task read from it never changes behind the caller.
type MemTaskService struct {
	sync.Mutex
	tasks map[string]Task
}

func (s *MemTaskService) AddTask(t *Task) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.tasks[t.Name]; ok {
		return Exists("tasks", t.Name)
	}
	s.tasks[t.Name] = copyTask(t)
	return nil
}

func (s *MemTaskService) GetTask(name string) (*Task, error) {
	s.Lock()
	defer s.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return nil, NotFound("tasks", name)
	}
	c := copyTask(&t)
	return &c, nil
}

// FindTasks returns tasks matched with the filter, ordered by name.
func (s *MemTaskService) FindTasks(f TaskFilter) ([]*Task, error) {
	s.Lock()
	defer s.Unlock()
	tasks := make([]*Task, 0)
	for _, t := range s.tasks {
		if !f.Match(&t) {
			continue
		}
		c := copyTask(&t)
		tasks = append(tasks, &c)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks, nil
}

func (s *MemTaskService) UpdateTask(u TaskUpdater) error {
	if u.Empty() {
		return fmt.Errorf("need at least one parameter to update")
	}
	s.Lock()
	defer s.Unlock()
	t, ok := s.tasks[u.Name]
	if !ok {
		return NotFound("tasks", u.Name)
	}
	u.Apply(&t)
	s.tasks[u.Name] = copyTask(&t)
	return nil
}

func (s *MemTaskService) DeleteTask(name string) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.tasks[name]; !ok {
		return NotFound("tasks", name)
	}
	delete(s.tasks, name)
	return nil
}

func copyTask(t *Task) Task {
	c := *t
	if t.Resources != nil {
		c.Resources = append(Resources(nil), t.Resources...)
	}
	return c
}

// MemSystemService is a SystemService keeping systems in a map.
type MemSystemService struct {
	sync.Mutex
	systems map[string]System
}

func (s *MemSystemService) AddSystem(sys *System) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.systems[sys.Name]; ok {
		return Exists("systems", sys.Name)
	}
	s.systems[sys.Name] = *sys
	return nil
}

func (s *MemSystemService) GetSystem(name string) (*System, error) {
	s.Lock()
	defer s.Unlock()
	sys, ok := s.systems[name]
	if !ok {
		return nil, NotFound("systems", name)
	}
	return &sys, nil
}

// FindSystems returns systems matched with the filter, ordered by name.
func (s *MemSystemService) FindSystems(f SystemFilter) ([]*System, error) {
	s.Lock()
	defer s.Unlock()
	systems := make([]*System, 0)
	for _, sys := range s.systems {
		sys := sys
		if f.Match(&sys) {
			systems = append(systems, &sys)
		}
	}
	sort.Slice(systems, func(i, j int) bool { return systems[i].Name < systems[j].Name })
	return systems, nil
}

func (s *MemSystemService) UpdateSystem(u SystemUpdater) error {
	if u.Empty() {
		return fmt.Errorf("need at least one parameter to update")
	}
	s.Lock()
	defer s.Unlock()
	sys, ok := s.systems[u.Name]
	if !ok {
		return NotFound("systems", u.Name)
	}
	u.Apply(&sys)
	s.systems[u.Name] = sys
	return nil
}

func (s *MemSystemService) SwapSystemUser(name, from, to string) (bool, error) {
	s.Lock()
	defer s.Unlock()
	sys, ok := s.systems[name]
	if !ok {
		return false, NotFound("systems", name)
	}
	if sys.User != from {
		return false, nil
	}
	sys.User = to
	s.systems[name] = sys
	return true, nil
}

func (s *MemSystemService) DeleteSystem(name string) error {
	s.Lock()
	defer s.Unlock()
	if _, ok := s.systems[name]; !ok {
		return NotFound("systems", name)
	}
	delete(s.systems, name)
	return nil
}
