// Package nativeloader implements the native loader (spec.md §4.4): mapping
// a dynamic library into the process with the stdlib plugin package and
// resolving its three well-known entry-point symbols.
//
// Go's plugin package is the only mechanism in the example pack's domain
// that can satisfy the storage surrender/restore protocol (spec.md §4.6):
// the withdrawn bytes must be reinstalled into the very same address space
// the replacement library maps into, which an RPC-style plugin framework
// (the kind seen elsewhere in the pack) cannot provide since its plugins
// run in a separate process.
package nativeloader

import (
	"plugin"
	"strings"
	"unicode"

	"github.com/eeks-rt/eeks"
	"golang.org/x/xerrors"
)

// Open maps the dynamic library at path and resolves its three entry-point
// symbols. The extension's declared name governs the expected symbol
// names: spec.md's "N_info / N_systems / N_load" convention is adapted to
// Go's requirement that a plugin's looked-up symbols be exported
// identifiers, so a name "foo" resolves symbols "FooInfo", "FooSystems"
// and "FooLoad".
func Open(path, name string) (*Handle, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("open native library %s: %w", path, err)
	}

	infoSym, err := p.Lookup(symbolName(name, "Info"))
	if err != nil {
		return nil, &eeks.SymbolMissing{Extension: name, Symbol: symbolName(name, "Info"), Err: err}
	}
	info, ok := infoSym.(func() []string)
	if !ok {
		return nil, &eeks.SymbolMissing{Extension: name, Symbol: symbolName(name, "Info"), Err: xerrors.Errorf("unexpected signature %T", infoSym)}
	}

	systemsSym, err := p.Lookup(symbolName(name, "Systems"))
	if err != nil {
		return nil, &eeks.SymbolMissing{Extension: name, Symbol: symbolName(name, "Systems"), Err: err}
	}
	systemsFn, ok := systemsSym.(func(*eeks.SystemsCollector))
	if !ok {
		return nil, &eeks.SymbolMissing{Extension: name, Symbol: symbolName(name, "Systems"), Err: xerrors.Errorf("unexpected signature %T", systemsSym)}
	}

	loadSym, err := p.Lookup(symbolName(name, "Load"))
	if err != nil {
		return nil, &eeks.SymbolMissing{Extension: name, Symbol: symbolName(name, "Load"), Err: err}
	}
	loadFn, ok := loadSym.(func(*eeks.StorageCollector) error)
	if !ok {
		return nil, &eeks.SymbolMissing{Extension: name, Symbol: symbolName(name, "Load"), Err: xerrors.Errorf("unexpected signature %T", loadSym)}
	}

	return &Handle{name: name, path: path, info: info, systemsFn: systemsFn, loadFn: loadFn}, nil
}

// Handle is a mapped native library's three resolved entry points.
type Handle struct {
	name, path string
	info       func() []string
	systemsFn  func(*eeks.SystemsCollector)
	loadFn     func(*eeks.StorageCollector) error
}

// Info calls N_info, returning the extension's declared load-dependency
// names (spec.md §4.4).
func (h *Handle) Info() []string { return h.info() }

// Systems calls N_systems and returns the enumerated descriptors.
func (h *Handle) Systems() []eeks.SystemDescriptor {
	var systems []eeks.SystemDescriptor
	h.systemsFn(eeks.NewSystemsCollector(&systems))
	return systems
}

// Load calls N_load against collector, registering components/resources
// and spawning any initial entities (spec.md §4.4).
func (h *Handle) Load(collector *eeks.StorageCollector) error {
	return h.loadFn(collector)
}

// ToLibrary assembles the NativeLibrary record the core tracks from this
// handle's path and the given systems, leaving its close hook unset: Go's
// plugin package cannot actually unmap a shared object (a documented
// platform limitation), so NativeLibrary.Close only severs the invoker
// closures, matching the teardown-before-unmap ordering spec.md §4.6 step 4
// relies on for anything that observes the handle afterward.
func (h *Handle) ToLibrary(systems []eeks.SystemDescriptor) *eeks.NativeLibrary {
	lib := &eeks.NativeLibrary{Path: h.path, Systems: systems}
	return lib
}

// symbolName derives the Go-exported symbol name a native extension named
// name must export for entry point suffix ("Info", "Systems", "Load").
func symbolName(name, suffix string) string {
	return exportedCase(name) + suffix
}

// exportedCase upper-cases the first rune of name and strips any
// separators a crate/module name might use (-, _), title-casing the
// segment that follows each one, so "image-loader" becomes "ImageLoader".
func exportedCase(name string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range name {
		if r == '-' || r == '_' {
			upperNext = true
			continue
		}
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
