package autolite

import (
	"github.com/imagvfx/autolite/lib/container"
)

// Visit is a task met while walking the task forest.
// Depth is 0 for the children of the walk's root.
type Visit struct {
	Task  *Task
	Depth int
}

// Walker walks the task forest depth first.
type Walker struct {
	tasks TaskService
}

// NewWalker creates a new Walker.
func NewWalker(tasks TaskService) *Walker {
	return &Walker{tasks: tasks}
}

// Walk returns a new walk over descendants of parent, in pre-order.
// Empty parent walks the whole forest. Tasks whose parent doesn't exist
// are treated as roots of the forest.
//
// The walk is lazy. It reads the children of a task from the store
// right before it descends into them.
func (w *Walker) Walk(parent string) *Walk {
	return &Walk{
		tasks:     w.tasks,
		root:      parent,
		ancestors: container.NewUniqueStack(),
	}
}

// All walks descendants of parent and returns them all.
func (w *Walker) All(parent string) ([]Visit, error) {
	visits := make([]Visit, 0)
	walk := w.Walk(parent)
	for walk.Next() {
		visits = append(visits, walk.Visit())
	}
	return visits, walk.Err()
}

// Walk is a single traversal of the task forest.
//
// A task which is already one of the ancestors on the current path
// is skipped with its subtree. It makes the walk finish even when
// the parent links have a cycle, while the tasks in the cycle could
// be missing from the walk.
type Walk struct {
	tasks     TaskService
	root      string
	started   bool
	frames    []*walkFrame
	ancestors *container.UniqueStack
	cur       Visit
	err       error
}

// walkFrame holds children of a task which are not visited yet.
type walkFrame struct {
	owner    string
	children []*Task
	i        int
}

// Next advances the walk to the next task.
// It returns false when the walk is over or an error occurred.
func (w *Walk) Next() bool {
	if w.err != nil {
		return false
	}
	if !w.started {
		w.started = true
		roots, err := w.roots()
		if err != nil {
			w.err = err
			return false
		}
		w.push(w.root, roots)
	}
	if w.cur.Task != nil {
		// descend into the task visited last.
		t := w.cur.Task
		w.cur = Visit{}
		children, err := w.children(t.Name)
		if err != nil {
			w.err = err
			return false
		}
		w.push(t.Name, children)
	}
	for len(w.frames) != 0 {
		f := w.frames[len(w.frames)-1]
		if f.i >= len(f.children) {
			w.pop()
			continue
		}
		t := f.children[f.i]
		f.i++
		if w.ancestors.Has(t.Name) {
			continue
		}
		w.cur = Visit{Task: t, Depth: len(w.frames) - 1}
		return true
	}
	return false
}

// Visit returns the current task of the walk.
func (w *Walk) Visit() Visit {
	return w.cur
}

// Err returns the first error occurred while walking.
func (w *Walk) Err() error {
	return w.err
}

func (w *Walk) push(owner string, children []*Task) {
	if owner != "" {
		w.ancestors.Push(owner)
	}
	w.frames = append(w.frames, &walkFrame{owner: owner, children: children})
}

func (w *Walk) pop() {
	f := w.frames[len(w.frames)-1]
	w.frames = w.frames[:len(w.frames)-1]
	if f.owner != "" {
		w.ancestors.Pop()
	}
}

func (w *Walk) roots() ([]*Task, error) {
	if w.root != "" {
		return w.children(w.root)
	}
	all, err := w.tasks.FindTasks(TaskFilter{})
	if err != nil {
		return nil, err
	}
	exists := make(map[string]bool, len(all))
	for _, t := range all {
		exists[t.Name] = true
	}
	roots := make([]*Task, 0)
	for _, t := range all {
		if t.Parent == "" || !exists[t.Parent] {
			roots = append(roots, t)
		}
	}
	return roots, nil
}

func (w *Walk) children(name string) ([]*Task, error) {
	return w.tasks.FindTasks(TaskFilter{Parent: &name})
}
