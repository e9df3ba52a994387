package workload_test

import (
	"testing"

	"github.com/eeks-rt/eeks"
	"github.com/eeks-rt/eeks/internal/workload"
	"github.com/google/go-cmp/cmp"
)

func sys(group, id string, runAfter, runBefore []string) eeks.SystemDescriptor {
	return eeks.SystemDescriptor{Group: group, ID: id, RunAfter: runAfter, RunBefore: runBefore}
}

func TestRunAfterChain(t *testing.T) {
	systems := []eeks.SystemDescriptor{
		sys("tick", "a_sys", nil, nil),
		sys("tick", "b_sys", []string{"a_sys"}, nil),
	}
	workloads, err := workload.Compile(systems)
	if err != nil {
		t.Fatal(err)
	}
	wl := workloads["tick"]
	got := stageIDs(wl)
	want := [][]string{{"a_sys"}, {"b_sys"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stages mismatch (-want +got):\n%s", diff)
	}
}

func TestRunBeforeInvertsOrder(t *testing.T) {
	systems := []eeks.SystemDescriptor{
		sys("tick", "a_sys", nil, nil),
		sys("tick", "b_sys", nil, []string{"a_sys"}),
	}
	workloads, err := workload.Compile(systems)
	if err != nil {
		t.Fatal(err)
	}
	got := stageIDs(workloads["tick"])
	want := [][]string{{"b_sys"}, {"a_sys"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("stages mismatch (-want +got):\n%s", diff)
	}
}

func TestIndependentSystemsShareAStage(t *testing.T) {
	systems := []eeks.SystemDescriptor{
		sys("tick", "a_sys", nil, nil),
		sys("tick", "b_sys", nil, nil),
	}
	workloads, err := workload.Compile(systems)
	if err != nil {
		t.Fatal(err)
	}
	wl := workloads["tick"]
	if len(wl.Stages) != 1 || len(wl.Stages[0]) != 2 {
		t.Fatalf("expected one stage with both systems, got %v", wl.Stages)
	}
}

func TestCycleIsDiagnosed(t *testing.T) {
	systems := []eeks.SystemDescriptor{
		sys("tick", "a_sys", []string{"b_sys"}, nil),
		sys("tick", "b_sys", []string{"a_sys"}, nil),
	}
	_, err := workload.Compile(systems)
	if err == nil {
		t.Fatal("expected a cycle error, got nil")
	}
	cycle, ok := err.(*eeks.CycleInWorkloadError)
	if !ok {
		t.Fatalf("error type = %T, want *eeks.CycleInWorkloadError", err)
	}
	if cycle.Group != "tick" || len(cycle.Residual) != 2 {
		t.Fatalf("unexpected cycle error: %+v", cycle)
	}
}

func TestDuplicateSystemIDInSameGroup(t *testing.T) {
	systems := []eeks.SystemDescriptor{
		sys("tick", "dup", nil, nil),
		sys("tick", "dup", nil, nil),
	}
	_, err := workload.Compile(systems)
	if err == nil {
		t.Fatal("expected a duplicate id error, got nil")
	}
	if _, ok := err.(*eeks.DuplicateStorageError); !ok {
		t.Fatalf("error type = %T, want *eeks.DuplicateStorageError", err)
	}
}

func TestGroupsCompileIndependently(t *testing.T) {
	systems := []eeks.SystemDescriptor{
		sys("tick", "a", nil, nil),
		sys("render", "b", nil, nil),
	}
	workloads, err := workload.Compile(systems)
	if err != nil {
		t.Fatal(err)
	}
	if len(workloads) != 2 {
		t.Fatalf("got %d workloads, want 2", len(workloads))
	}
}

func stageIDs(wl *eeks.Workload) [][]string {
	out := make([][]string, len(wl.Stages))
	for i, stage := range wl.Stages {
		for _, idx := range stage {
			out[i] = append(out[i], wl.Systems[idx].Descriptor.ID)
		}
	}
	return out
}
