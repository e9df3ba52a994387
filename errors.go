package eeks

import "golang.org/x/xerrors"

// DiscoveryError reports that an extension directory could not be turned
// into an ExtensionEntry: its manifest is missing, unreadable, or missing
// required fields. Discovery of other extensions continues regardless.
type DiscoveryError struct {
	Path   string
	Reason string
}

func (e *DiscoveryError) Error() string {
	return xerrors.Errorf("discover %s: %s", e.Path, e.Reason).Error()
}

// DirtyProbeError reports that a dependency manifest (the build tool's
// per-artifact .d file) could not be read while deep-checking an
// extension's dirty level. Callers should treat the extension as Rebuild
// and retry on the next pass.
type DirtyProbeError struct {
	Extension string
	Err       error
}

func (e *DirtyProbeError) Error() string {
	return xerrors.Errorf("probe dep manifest for %s: %w", e.Extension, e.Err).Error()
}

func (e *DirtyProbeError) Unwrap() error { return e.Err }

// BuildFailed reports that the external build tool exited non-zero.
type BuildFailed struct {
	Extension     string
	ExitCode      int
	StderrExcerpt string
}

func (e *BuildFailed) Error() string {
	return xerrors.Errorf("build %s: exit code %d: %s", e.Extension, e.ExitCode, e.StderrExcerpt).Error()
}

// SymbolMissing reports that a required native entry-point symbol could not
// be resolved in a mapped dynamic library.
type SymbolMissing struct {
	Extension string
	Symbol    string
	Err       error
}

func (e *SymbolMissing) Error() string {
	return xerrors.Errorf("resolve symbol %s in %s: %w", e.Symbol, e.Extension, e.Err).Error()
}

func (e *SymbolMissing) Unwrap() error { return e.Err }

// DuplicateStorageError reports that two extensions contributed the same
// component or resource storage id.
type DuplicateStorageError struct {
	StorageID string
	First     string
	Second    string
}

func (e *DuplicateStorageError) Error() string {
	return xerrors.Errorf("storage id %q contributed by both %s and %s", e.StorageID, e.First, e.Second).Error()
}

// CycleInWorkloadError reports that a group's systems could not be
// topologically layered. Residual holds the ids of the systems that were
// never satisfied, each paired with the ids of the dependencies it was
// still waiting on.
type CycleInWorkloadError struct {
	Group     string
	Residual  map[string][]string
}

func (e *CycleInWorkloadError) Error() string {
	return xerrors.Errorf("cycle in workload %q among %d systems", e.Group, len(e.Residual)).Error()
}

// LayoutMismatchError documents (but is never raised by this package) the
// contract violation of restoring a storage's bytes into a layout-
// incompatible replacement type. The core has no way to detect this; authors
// who change a component or resource's in-memory layout must use a
// serializing migration path instead of raw surrender/restore.
type LayoutMismatchError struct {
	StorageID string
}

func (e *LayoutMismatchError) Error() string {
	return xerrors.Errorf("storage %q: layout mismatch across reload (undetectable, documented contract violation)", e.StorageID).Error()
}
