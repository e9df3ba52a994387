// Package manifest reads an extension's build manifest: the file that
// declares its name, its declared load-dependency names, and whether it is
// a member of the root build workspace.
//
// The manifest is expressed in the go.mod grammar (a "module" line plus
// "require" lines) and parsed with golang.org/x/mod/modfile, which the
// teacher repository already depends on for an unrelated purpose. Reusing
// it here means a hand-rolled manifest parser never has to be written or
// maintained.
package manifest

import (
	"os"

	"golang.org/x/mod/modfile"
	"golang.org/x/xerrors"
)

// workspaceSentinel is the require path used to mark workspace membership;
// it is filtered out of Dependencies before being returned to callers.
const workspaceSentinel = "eeks.internal/workspace"

// Manifest is the parsed contents of one extension's build manifest.
type Manifest struct {
	// Name is the extension's name, extracted from the manifest's module
	// directive. Must be globally unique (spec.md §3).
	Name string
	// Dependencies are the declared load-dependency names (spec.md §3,
	// "declared load-dependency names").
	Dependencies []string
	// Workspace reports whether this extension is a member of the root
	// build workspace, governing which build path the builder takes
	// (spec.md §6).
	Workspace bool
}

// Read parses the manifest file at path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &discoveryReadError{path: path, err: err}
	}
	f, err := modfile.Parse(path, data, nil)
	if err != nil {
		return nil, xerrors.Errorf("parse manifest %s: %w", path, err)
	}
	if f.Module == nil || f.Module.Mod.Path == "" {
		return nil, xerrors.Errorf("manifest %s: missing module directive (extension name)", path)
	}

	m := &Manifest{Name: f.Module.Mod.Path}
	for _, req := range f.Require {
		if req.Mod.Path == workspaceSentinel {
			m.Workspace = true
			continue
		}
		m.Dependencies = append(m.Dependencies, req.Mod.Path)
	}
	return m, nil
}

type discoveryReadError struct {
	path string
	err  error
}

func (e *discoveryReadError) Error() string {
	return xerrors.Errorf("read manifest %s: %w", e.path, e.err).Error()
}

func (e *discoveryReadError) Unwrap() error { return e.err }
