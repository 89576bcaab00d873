package autolite

import (
	"encoding/json"
)

// Lineage is a task with its subtasks, as a tree.
type Lineage struct {
	Task     *Task
	Subtasks []*Lineage

	// Summary counts descendants of the task per state, and all of them as "total".
	// It is nil for a task without subtasks.
	Summary map[string]int
}

// Lineage returns the subtask trees of parent.
// When parent is not empty, the result is a single tree rooted at parent.
// Otherwise it is the whole forest.
func (m *TaskManager) Lineage(parent string) ([]*Lineage, error) {
	var top *Lineage
	if parent != "" {
		p, err := m.tasks.GetTask(parent)
		if err != nil {
			return nil, err
		}
		top = &Lineage{Task: p}
	}
	roots := make([]*Lineage, 0)
	// path[d] is the latest tree at depth d.
	path := make([]*Lineage, 0)
	walk := m.walker.Walk(parent)
	for walk.Next() {
		v := walk.Visit()
		l := &Lineage{Task: v.Task}
		path = path[:v.Depth]
		if v.Depth == 0 {
			roots = append(roots, l)
		} else {
			up := path[v.Depth-1]
			up.Subtasks = append(up.Subtasks, l)
		}
		path = append(path, l)
	}
	if err := walk.Err(); err != nil {
		return nil, err
	}
	if top != nil {
		top.Subtasks = roots
		top.summarize()
		if top.Summary == nil {
			top.Summary = map[string]int{"total": 0}
		}
		return []*Lineage{top}, nil
	}
	for _, l := range roots {
		l.summarize()
	}
	return roots, nil
}

func (l *Lineage) summarize() {
	if len(l.Subtasks) == 0 {
		return
	}
	sum := map[string]int{"total": len(l.Subtasks)}
	for _, sub := range l.Subtasks {
		sum[sub.Task.State.String()]++
		sub.summarize()
		for k, n := range sub.Summary {
			sum[k] += n
		}
	}
	l.Summary = sum
}

// Map represents the lineage as the task's fields with
// "~subtasks" and "~summary" when it has subtasks.
func (l *Lineage) Map() map[string]interface{} {
	m := make(map[string]interface{})
	for k, v := range l.Task.Fields() {
		m[k] = v
	}
	if l.Summary != nil {
		subs := make([]map[string]interface{}, 0, len(l.Subtasks))
		for _, sub := range l.Subtasks {
			subs = append(subs, sub.Map())
		}
		m["~subtasks"] = subs
		m["~summary"] = l.Summary
	}
	return m
}

// MarshalJSON implements json.Marshaler.
func (l *Lineage) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Map())
}

// MarshalYAML implements yaml.Marshaler.
func (l *Lineage) MarshalYAML() (interface{}, error) {
	return l.Map(), nil
}
