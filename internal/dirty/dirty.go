// Package dirty implements the dirty-detection subsystem (spec.md §4.1):
// deciding, per extension, whether a source change requires a rebuild, a
// re-link, or no action at all.
package dirty

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eeks-rt/eeks"
	"golang.org/x/xerrors"
)

// Target is the set of filesystem facts the analyzer needs about one
// extension; it does not itself know about NativeExtension so it can be
// unit tested against bare paths.
type Target struct {
	// Name identifies the extension in a DirtyProbeError raised along the
	// dep-manifest-read failure path; it plays no role in the analysis
	// itself.
	Name string
	// ManifestPath is the extension's build manifest; always present for a
	// source extension. Empty for a precompiled, source-less extension.
	SourcePath   string
	ManifestPath string
	// ArtifactPath is the expected built artifact file.
	ArtifactPath string
	// DepFilePath is the build tool's per-artifact dependency manifest
	// (spec.md §4.1), consulted only when deepChecking is enabled.
	DepFilePath string
	// ReadAt is the in-memory library's last-mapped timestamp, non-nil
	// only for an already-active extension.
	ReadAt *time.Time
}

// Analyze computes the dirty level and its representative timestamp for
// one extension, following spec.md §4.1 exactly. now is injected so tests
// can control the Clean-override boundary.
func Analyze(logger *log.Logger, t Target, deepChecking bool, now time.Time) (eeks.DirtyLevel, time.Time, error) {
	if logger == nil {
		logger = log.Default()
	}

	var (
		srcMod    time.Time
		haveSrc   bool
		buildMod  time.Time
		haveBuild bool
	)

	if t.SourcePath != "" {
		m, err := srcFilesLastModified(t.SourcePath, t.ManifestPath)
		if err != nil {
			return 0, time.Time{}, xerrors.Errorf("src_mod for %s: %w", t.SourcePath, err)
		}
		srcMod, haveSrc = m, true

		if deepChecking && t.DepFilePath != "" {
			depMod, err := depFileLastModified(t.DepFilePath)
			if err != nil {
				probeErr := &eeks.DirtyProbeError{Extension: t.Name, Err: err}
				logger.Printf("dirty: forcing Rebuild: %v", probeErr)
				return eeks.Rebuild, now, nil
			}
			if depMod.After(srcMod) {
				srcMod = depMod
			}
		}
	}

	if fi, err := os.Stat(t.ArtifactPath); err == nil {
		buildMod, haveBuild = fi.ModTime(), true
	} else if !os.IsNotExist(err) {
		return 0, time.Time{}, xerrors.Errorf("stat artifact %s: %w", t.ArtifactPath, err)
	}

	var (
		level eeks.DirtyLevel
		ts    time.Time
	)
	switch {
	case haveSrc && haveBuild:
		if srcMod.After(buildMod) {
			level, ts = eeks.Rebuild, srcMod
		} else {
			level, ts = eeks.Reload, buildMod
		}
	case haveSrc:
		level, ts = eeks.Rebuild, srcMod
	case haveBuild:
		level, ts = eeks.Reload, buildMod
	default:
		return 0, time.Time{}, xerrors.Errorf("extension has neither source nor artifact (fatal configuration error)")
	}

	if t.ReadAt != nil && ts.Before(*t.ReadAt) {
		level, ts = eeks.Clean, *t.ReadAt
	}

	return level, ts, nil
}

// srcFilesLastModified returns the max modification time across every
// file under <src>/src plus the manifest file itself (spec.md §4.1).
func srcFilesLastModified(srcPath, manifestPath string) (time.Time, error) {
	var latest time.Time
	seen := false

	walkRoot := filepath.Join(srcPath, "src")
	err := filepath.WalkDir(walkRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !seen || info.ModTime().After(latest) {
			latest, seen = info.ModTime(), true
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}

	if manifestPath != "" {
		info, err := os.Stat(manifestPath)
		if err != nil {
			return time.Time{}, err
		}
		if !seen || info.ModTime().After(latest) {
			latest, seen = info.ModTime(), true
		}
	}

	if !seen {
		return time.Time{}, xerrors.Errorf("no files found under %s", walkRoot)
	}
	return latest, nil
}

// depFileLastModified reads a .d-style dependency manifest (the format
// make/cc emit: "target: dep1 dep2 ...") and returns the max modification
// time across every path listed after the first colon.
func depFileLastModified(path string) (time.Time, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return time.Time{}, xerrors.Errorf("read %s: %w", path, err)
	}
	_, after, ok := strings.Cut(string(contents), ": ")
	if !ok {
		return time.Time{}, xerrors.Errorf("%s: missing ': ' separator", path)
	}
	after = strings.TrimRight(after, "\n")
	fields := strings.Fields(strings.ReplaceAll(after, "\\\n", " "))
	if len(fields) == 0 {
		return time.Time{}, xerrors.Errorf("%s: no dependent files listed", path)
	}

	var latest time.Time
	seen := false
	for _, p := range fields {
		info, err := os.Stat(p)
		if err != nil {
			return time.Time{}, xerrors.Errorf("stat dep %s: %w", p, err)
		}
		if !seen || info.ModTime().After(latest) {
			latest, seen = info.ModTime(), true
		}
	}
	return latest, nil
}
