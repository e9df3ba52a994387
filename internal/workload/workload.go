// Package workload implements the workload compiler (spec.md §4.8):
// gathering systems tagged with a group, resolving their run_after/
// run_before constraints into a dependency list, and topologically
// layering each group into parallel-eligible stages.
package workload

import (
	"github.com/eeks-rt/eeks"
)

// Compile partitions systems by Group (preserving the caller's gather
// order, which must already be stable per spec.md §4.8's determinism
// requirement) and compiles each group independently.
func Compile(systems []eeks.SystemDescriptor) (map[string]*eeks.Workload, error) {
	var order []string
	byGroup := make(map[string][]eeks.SystemDescriptor)
	for _, s := range systems {
		if _, ok := byGroup[s.Group]; !ok {
			order = append(order, s.Group)
		}
		byGroup[s.Group] = append(byGroup[s.Group], s)
	}

	out := make(map[string]*eeks.Workload, len(order))
	for _, group := range order {
		wl, err := compileGroup(group, byGroup[group])
		if err != nil {
			return nil, err
		}
		out[group] = wl
	}
	return out, nil
}

// compileGroup builds one group's dependency list and layers it into
// stages, following spec.md §4.8 steps 1-4 exactly.
func compileGroup(group string, descs []eeks.SystemDescriptor) (*eeks.Workload, error) {
	n := len(descs)
	idIndex := make(map[string]int, n)
	for i, d := range descs {
		if prev, dup := idIndex[d.ID]; dup {
			return nil, &eeks.DuplicateStorageError{
				StorageID: d.ID,
				First:     descs[prev].Group + "#" + descs[prev].ID,
				Second:    group + "#" + d.ID,
			}
		}
		idIndex[d.ID] = i
	}

	// deps[i] holds the indices of the systems i must run after: its own
	// declared run_after, plus, for every other system j that names i in
	// its run_before, j's index (spec.md §4.8 step 2, "the dual").
	// An id with no match in this group resolves to -1, a sentinel index
	// that never appears in any stage and so can never be "satisfied" —
	// the layering loop naturally reports it as a residual dependency,
	// the same diagnostic path an actual cycle takes.
	depNames := make([][]string, n)
	deps := make([][]int, n)
	for i, d := range descs {
		for _, after := range d.RunAfter {
			idx, ok := idIndex[after]
			if !ok {
				idx = -1
			}
			deps[i] = append(deps[i], idx)
			depNames[i] = append(depNames[i], after)
		}
	}
	for j, d := range descs {
		for _, before := range d.RunBefore {
			i, ok := idIndex[before]
			if !ok || i == j {
				continue
			}
			deps[i] = append(deps[i], j)
			depNames[i] = append(depNames[i], descs[j].ID)
		}
	}

	stages, err := layer(group, descs, deps, depNames)
	if err != nil {
		return nil, err
	}

	wsystems := make([]eeks.WorkloadSystem, n)
	for i, d := range descs {
		wsystems[i] = eeks.WorkloadSystem{Descriptor: d, Deps: deps[i]}
	}
	return &eeks.Workload{Group: group, Systems: wsystems, Stages: stages}, nil
}

// layer implements spec.md §4.8 step 3: initialize stages = [[]];
// repeatedly scan the unplaced queue for a system all of whose dependency
// indices appear in some earlier stage (not the current one); append it
// to the current stage. When no candidate is found, open a new stage if
// the current one is non-empty; otherwise the group contains a cycle.
func layer(group string, descs []eeks.SystemDescriptor, deps [][]int, depNames [][]string) ([][]int, error) {
	n := len(descs)
	queue := make([]int, n)
	for i := range queue {
		queue[i] = i
	}
	stages := [][]int{{}}

	satisfied := func(i int) bool {
		for _, stage := range stages[:len(stages)-1] {
			for _, x := range stage {
				if x == i {
					return true
				}
			}
		}
		return false
	}

	for len(queue) > 0 {
		placed := -1
		for qi, i := range queue {
			ready := true
			for _, d := range deps[i] {
				if !satisfied(d) {
					ready = false
					break
				}
			}
			if ready {
				placed = qi
				break
			}
		}

		if placed >= 0 {
			i := queue[placed]
			queue = append(queue[:placed], queue[placed+1:]...)
			last := len(stages) - 1
			stages[last] = append(stages[last], i)
			continue
		}

		if len(stages[len(stages)-1]) == 0 {
			residual := make(map[string][]string, len(queue))
			for _, i := range queue {
				var waiting []string
				for k, d := range deps[i] {
					if !satisfied(d) {
						waiting = append(waiting, depNames[i][k])
					}
				}
				residual[descs[i].ID] = waiting
			}
			return nil, &eeks.CycleInWorkloadError{Group: group, Residual: residual}
		}
		stages = append(stages, nil)
	}

	return stages, nil
}
