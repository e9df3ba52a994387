package main

import (
	"testing"

	"github.com/eeks-rt/eeks"
)

func TestMemWorldComponentRoundTrip(t *testing.T) {
	w := newMemWorld()
	if err := w.RegisterComponent("Position"); err != nil {
		t.Fatal(err)
	}
	if err := w.LoadRawComponent("Position", eeks.RawStorage{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	raw, err := w.ComponentRawMut("Position")
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) != 3 || raw[0] != 1 {
		t.Fatalf("ComponentRawMut = %v, want [1 2 3]", raw)
	}
}

func TestMemWorldRejectsDuplicateComponent(t *testing.T) {
	w := newMemWorld()
	if err := w.RegisterComponent("Position"); err != nil {
		t.Fatal(err)
	}
	err := w.RegisterComponent("Position")
	if err == nil {
		t.Fatal("expected an error registering a duplicate component id")
	}
	if _, ok := err.(*eeks.DuplicateStorageError); !ok {
		t.Fatalf("error = %T, want *eeks.DuplicateStorageError", err)
	}
}

func TestMemWorldCommandListsRegisteredComponents(t *testing.T) {
	w := newMemWorld()
	if err := w.RegisterComponent("Velocity"); err != nil {
		t.Fatal(err)
	}
	if err := w.RegisterComponent("Position"); err != nil {
		t.Fatal(err)
	}
	got, err := w.Command([]string{"component", "list"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Position, Velocity" {
		t.Fatalf("Command(component list) = %q, want %q", got, "Position, Velocity")
	}
}

func TestSortedGroups(t *testing.T) {
	workloads := map[string]*eeks.Workload{
		"render": {},
		"tick":   {},
		"input":  {},
	}
	got := sortedGroups(workloads)
	want := []string{"input", "render", "tick"}
	if len(got) != len(want) {
		t.Fatalf("sortedGroups = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sortedGroups = %v, want %v", got, want)
		}
	}
}
