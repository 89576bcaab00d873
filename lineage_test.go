package autolite

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestLineage(t *testing.T) {
	env := newTestEnv(t)
	m := env.tasks
	addTasks(t, m.tasks,
		&Task{Name: "a", State: TaskPending},
		&Task{Name: "a.1", Parent: "a", State: TaskFailed},
		&Task{Name: "a.1.x", Parent: "a.1", State: TaskRunning},
		&Task{Name: "a.2", Parent: "a", State: TaskPending},
		&Task{Name: "b", State: TaskPending},
	)
	ls, err := m.Lineage("")
	if err != nil {
		t.Fatal(err)
	}
	if len(ls) != 2 {
		t.Fatalf("roots: got %d, want 2", len(ls))
	}
	a := ls[0]
	want := map[string]int{"total": 3, "failed": 1, "pending": 1, "running": 1}
	if !reflect.DeepEqual(a.Summary, want) {
		t.Fatalf("a summary: got %v, want %v", a.Summary, want)
	}
	if got := a.Subtasks[0].Summary; !reflect.DeepEqual(got, map[string]int{"total": 1, "running": 1}) {
		t.Fatalf("a.1 summary: got %v", got)
	}
	if ls[1].Summary != nil {
		t.Fatalf("b should have no summary: %v", ls[1].Summary)
	}

	ls, err = m.Lineage("b")
	if err != nil {
		t.Fatal(err)
	}
	if len(ls) != 1 || ls[0].Task.Name != "b" {
		t.Fatalf("got %v", ls)
	}
	if !reflect.DeepEqual(ls[0].Summary, map[string]int{"total": 0}) {
		t.Fatalf("b summary: got %v", ls[0].Summary)
	}

	ls, err = m.Lineage("a")
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(ls)
	if err != nil {
		t.Fatal(err)
	}
	var got []map[string]interface{}
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	subs, ok := got[0]["~subtasks"].([]interface{})
	if !ok || len(subs) != 2 {
		t.Fatalf("~subtasks: got %v", got[0]["~subtasks"])
	}
	if got[0]["name"] != "a" {
		t.Fatalf("name: got %v", got[0]["name"])
	}
}
