package eeks

import "runtime"

// HostFamily identifies one of the three recognized host families for
// native dynamic library naming.
type HostFamily int

const (
	// HostLinux names libraries libN.so.
	HostLinux HostFamily = iota
	// HostDarwin names libraries libN.dylib.
	HostDarwin
	// HostWindows names libraries N.dll.
	HostWindows
)

// dylibMatrix is the suffix/prefix pair for each recognized host family, in
// the order spec.md §6 lists them: libN.so, libN.dylib, N.dll.
var dylibMatrix = map[HostFamily]struct{ prefix, suffix string }{
	HostLinux:   {"lib", ".so"},
	HostDarwin:  {"lib", ".dylib"},
	HostWindows: {"", ".dll"},
}

// CurrentHostFamily maps runtime.GOOS to one of the three recognized host
// families. Any other GOOS is a fatal configuration error for native
// extension loading; callers should treat it as unsupported rather than
// guess at a naming scheme.
func CurrentHostFamily() (HostFamily, bool) {
	switch runtime.GOOS {
	case "linux":
		return HostLinux, true
	case "darwin":
		return HostDarwin, true
	case "windows":
		return HostWindows, true
	default:
		return 0, false
	}
}

// DylibName returns the platform-specific file name for a native extension
// named extensionName (e.g. "foo" -> "libfoo.so" on Linux).
func DylibName(family HostFamily, extensionName string) string {
	m := dylibMatrix[family]
	return m.prefix + extensionName + m.suffix
}

// DylibSuffix returns only the suffix (e.g. ".so") for family, used when
// scanning <cwd>/extensions/*.{dylib-suffix} for precompiled extensions.
func DylibSuffix(family HostFamily) string {
	return dylibMatrix[family].suffix
}

// ScriptSuffix is the recognized file extension for scripted extension
// modules under <cwd>/extensions/*.{script-suffix}.
const ScriptSuffix = ".lua"
