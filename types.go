package eeks

import "time"

// DirtyLevel classifies an extension relative to its cached artifact.
// The partial order is Clean < Reload < Rebuild; a Rebuild implies a
// subsequent Reload (spec.md §3).
type DirtyLevel int

const (
	Clean DirtyLevel = iota
	Reload
	Rebuild
)

func (d DirtyLevel) String() string {
	switch d {
	case Clean:
		return "Clean"
	case Reload:
		return "Reload"
	case Rebuild:
		return "Rebuild"
	default:
		return "DirtyLevel(?)"
	}
}

// Less reports whether d is strictly below other in the Clean < Reload <
// Rebuild partial order.
func (d DirtyLevel) Less(other DirtyLevel) bool { return d < other }

// NativeExtension is the in-memory record for an extension backed by a
// native dynamic library (spec.md §3 "Extension (native)").
type NativeExtension struct {
	Name string

	// SourcePath is empty for a precompiled, source-less extension.
	SourcePath string
	// InWorkspace is true when the extension is a member of the root
	// build workspace (governs where the builder looks for the artifact
	// and whether it participates in batched compilation).
	InWorkspace bool
	// ArtifactPath is the expected built-artifact location.
	ArtifactPath string

	// Library is nil until the extension is activated.
	Library *NativeLibrary

	// ReadAt is the in-memory library's artifact modification time at the
	// moment it was last mapped, used by the dirty analyzer to short-
	// circuit an already-live extension back to Clean.
	ReadAt time.Time

	// LoadDependencies are the names returned by N_info, consulted by the
	// dependency-driven loader to order (re)activation.
	LoadDependencies []string

	// StorageComponents and StorageResources are the snapshot of the
	// component/resource ids this extension currently has registered in the
	// world, present only while active.
	StorageComponents []string
	StorageResources  []string
}

// Active reports whether the extension currently has a mapped library —
// the invariant spec.md §3 states: active ⇔ library handle present ⇔
// storage ids recorded.
func (e *NativeExtension) Active() bool { return e.Library != nil }

// NativeLibrary is the in-memory handle to a mapped dynamic library plus
// the systems it declared at map time.
type NativeLibrary struct {
	Path    string
	Systems []SystemDescriptor

	// close is an optional extra teardown hook that Close runs after it has
	// cleared Systems. nativeloader leaves it nil: Go's plugin package
	// cannot actually unmap a shared object (documented platform
	// limitation, see DESIGN.md), so clearing Systems is all the teardown
	// there is, and no invoker from this generation is reachable after a
	// hard reload.
	close func()
}

// Close clears this library's invokers before any subsequent step (e.g.
// process exit) tears down the underlying mapping, mirroring the
// teardown-before-unmap ordering spec.md §4.6 step 4 requires.
func (l *NativeLibrary) Close() {
	l.Systems = nil
	if l.close != nil {
		l.close()
	}
}

// ScriptedExtension is the in-memory record for a scripted extension
// module (spec.md §3 "Extension (scripted)").
type ScriptedExtension struct {
	Name       string
	SourcePath string

	// Module is nil until the extension is loaded.
	Module *ScriptModule
	// ReadAt is the source file's modification time at the moment it was
	// last compiled into Module.
	ReadAt time.Time
}

// Loaded reports whether the scripted extension currently has a compiled
// module installed in the interpreter.
func (e *ScriptedExtension) Loaded() bool { return e.Module != nil }

// ScriptModule is a compiled, installed scripted extension: its systems
// and the command names it exports.
type ScriptModule struct {
	Systems  []SystemDescriptor
	Commands []string
}

// WorkloadSystem pairs a gathered system descriptor with the indices (into
// the same group's Systems slice) of the systems it depends on.
type WorkloadSystem struct {
	Descriptor SystemDescriptor
	Deps       []int
}

// Workload is one named group's compiled run plan: an ordered system list
// plus a layering of that list into parallel-eligible stages, where stage
// k's members depend only on members of stages strictly earlier than k
// (spec.md §3 "Workload").
type Workload struct {
	Group   string
	Systems []WorkloadSystem
	Stages  [][]int
}

// PendingExtension names one extension still queued for (re)activation and
// whether that activation is a hard reload.
type PendingExtension struct {
	Name       string
	HardReload bool
}

// LoadStatus is the progress snapshot published to an Observer on every
// state change during a reload pass (spec.md §3 "Load status snapshot").
type LoadStatus struct {
	Pending   []PendingExtension
	Completed []string
}

// Observer receives a LoadStatus on every forward-progress state change
// during reload(); it is invoked synchronously and in monotonic order
// (spec.md §5).
type Observer func(LoadStatus)
