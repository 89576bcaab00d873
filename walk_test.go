package autolite

import (
	"reflect"
	"testing"
)

func visitNames(visits []Visit) []string {
	names := make([]string, len(visits))
	for i, v := range visits {
		names[i] = v.Task.Name
	}
	return names
}

func visitDepths(visits []Visit) []int {
	depths := make([]int, len(visits))
	for i, v := range visits {
		depths[i] = v.Depth
	}
	return depths
}

func TestWalk(t *testing.T) {
	svc := NewMemServices()
	ts := svc.TaskService()
	addTasks(t, ts,
		&Task{Name: "render"},
		&Task{Name: "render.diffuse", Parent: "render"},
		&Task{Name: "render.diffuse.1", Parent: "render.diffuse"},
		&Task{Name: "render.spec", Parent: "render"},
		&Task{Name: "sim"},
		&Task{Name: "lost", Parent: "deleted"},
	)
	w := NewWalker(ts)
	cases := []struct {
		parent     string
		wantNames  []string
		wantDepths []int
	}{
		{
			parent:     "",
			wantNames:  []string{"lost", "render", "render.diffuse", "render.diffuse.1", "render.spec", "sim"},
			wantDepths: []int{0, 0, 1, 2, 1, 0},
		},
		{
			parent:     "render",
			wantNames:  []string{"render.diffuse", "render.diffuse.1", "render.spec"},
			wantDepths: []int{0, 1, 0},
		},
		{
			parent:     "sim",
			wantNames:  []string{},
			wantDepths: []int{},
		},
	}
	for i, c := range cases {
		visits, err := w.All(c.parent)
		if err != nil {
			t.Fatalf("%d: %v", i, err)
		}
		if got := visitNames(visits); !reflect.DeepEqual(got, c.wantNames) {
			t.Fatalf("%d: names: got %v, want %v", i, got, c.wantNames)
		}
		if got := visitDepths(visits); !reflect.DeepEqual(got, c.wantDepths) {
			t.Fatalf("%d: depths: got %v, want %v", i, got, c.wantDepths)
		}
	}
}

func TestWalkCycle(t *testing.T) {
	svc := NewMemServices()
	ts := svc.TaskService()
	// a -> b -> c -> a
	addTasks(t, ts,
		&Task{Name: "a", Parent: "c"},
		&Task{Name: "b", Parent: "a"},
		&Task{Name: "c", Parent: "b"},
	)
	w := NewWalker(ts)
	visits, err := w.All("a")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"b", "c"}
	if got := visitNames(visits); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	// Every task of the cycle has an existing parent, so none is a root.
	visits, err = w.All("")
	if err != nil {
		t.Fatal(err)
	}
	if len(visits) != 0 {
		t.Fatalf("got %v, want none", visitNames(visits))
	}
}
