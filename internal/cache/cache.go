// Package cache implements the artifact cache (spec.md §4.3): one directory
// per extension holding at most one built-artifact file, named by the
// nanosecond build timestamp that produced it, written atomically so a
// crash mid-build never leaves a half-written artifact in place for the
// loader to map.
package cache

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio"
	"golang.org/x/xerrors"
)

// Cache is the artifact store rooted at Root (typically Config.CacheRoot).
type Cache struct {
	Root string
}

// New returns a Cache rooted at root.
func New(root string) *Cache {
	return &Cache{Root: root}
}

// dir is the per-extension directory, created on first use.
func (c *Cache) dir(name string) string {
	return filepath.Join(c.Root, name)
}

// Lookup returns the current cached artifact's path and the timestamp
// encoded in its name, or ok=false if nothing is cached yet for name.
// It enforces the "at most one artifact file per directory" invariant by
// surfacing an error if more than one candidate is found, which can only
// happen if something outside this package wrote into the cache directory.
func (c *Cache) Lookup(name string) (path string, builtAt time.Time, ok bool, err error) {
	entries, err := os.ReadDir(c.dir(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", time.Time{}, false, nil
		}
		return "", time.Time{}, false, xerrors.Errorf("cache lookup %s: %w", name, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	switch len(names) {
	case 0:
		return "", time.Time{}, false, nil
	case 1:
		// fall through
	default:
		sort.Strings(names)
		return "", time.Time{}, false, xerrors.Errorf("cache corrupt for %s: expected at most one artifact, found %v", name, names)
	}

	ts, err := parseArtifactName(names[0])
	if err != nil {
		return "", time.Time{}, false, xerrors.Errorf("cache corrupt for %s: %w", name, err)
	}
	return filepath.Join(c.dir(name), names[0]), ts, true, nil
}

// Hit reports whether name has a cached artifact whose recorded build
// timestamp is at least as new as sourceModTime (spec.md §4.3): a cache
// entry built before the source it should cover is not a hit, even though
// it exists.
func (c *Cache) Hit(name string, sourceModTime time.Time) (path string, builtAt time.Time, ok bool, err error) {
	path, builtAt, ok, err = c.Lookup(name)
	if err != nil || !ok {
		return "", time.Time{}, false, err
	}
	if builtAt.Before(sourceModTime) {
		return "", time.Time{}, false, nil
	}
	return path, builtAt, true, nil
}

// Insert atomically replaces name's cached artifact with the contents read
// from src, under a name derived from builtAt, and removes any previously
// cached file for name. The new path is returned.
func (c *Cache) Insert(name string, src io.Reader, builtAt time.Time, suffix string) (string, error) {
	dir := c.dir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", xerrors.Errorf("mkdir %s: %w", dir, err)
	}

	dest := filepath.Join(dir, artifactName(builtAt, suffix))
	f, err := renameio.TempFile("", dest)
	if err != nil {
		return "", xerrors.Errorf("cache insert %s: %w", name, err)
	}
	defer f.Cleanup()

	if _, err := io.Copy(f, src); err != nil {
		return "", xerrors.Errorf("cache insert %s: %w", name, err)
	}
	if err := f.CloseAtomicallyReplace(); err != nil {
		return "", xerrors.Errorf("cache insert %s: %w", name, err)
	}

	if err := c.pruneExcept(name, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// pruneExcept removes every file under name's directory other than keep,
// restoring the "at most one artifact" invariant after a successful insert.
func (c *Cache) pruneExcept(name, keep string) error {
	entries, err := os.ReadDir(c.dir(name))
	if err != nil {
		return xerrors.Errorf("prune %s: %w", name, err)
	}
	for _, e := range entries {
		p := filepath.Join(c.dir(name), e.Name())
		if p == keep || e.IsDir() {
			continue
		}
		if err := os.Remove(p); err != nil {
			return xerrors.Errorf("prune %s: %w", name, err)
		}
	}
	return nil
}

// artifactName encodes builtAt as a nanosecond epoch so successive builds
// of the same extension always sort and atomically replace in build order.
func artifactName(builtAt time.Time, suffix string) string {
	return strconv.FormatInt(builtAt.UnixNano(), 10) + suffix
}

func parseArtifactName(base string) (time.Time, error) {
	stem := base
	if i := strings.IndexByte(base, '.'); i >= 0 {
		stem = base[:i]
	}
	nanos, err := strconv.ParseInt(stem, 10, 64)
	if err != nil {
		return time.Time{}, xerrors.Errorf("artifact name %q: not a nanosecond timestamp: %w", base, err)
	}
	return time.Unix(0, nanos), nil
}
