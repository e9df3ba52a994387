// Package registry implements discovery, the reload orchestrator, and the
// command router (spec.md §4.7, §6): the top-level object that ties the
// dirty analyzer, builder, artifact cache, native and script loaders, the
// storage surrender/restore protocol and the workload compiler together
// into one reload pass.
package registry

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/exp/slices"
	"golang.org/x/xerrors"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/eeks-rt/eeks"
	"github.com/eeks-rt/eeks/internal/build"
	"github.com/eeks-rt/eeks/internal/cache"
	"github.com/eeks-rt/eeks/internal/dirty"
	"github.com/eeks-rt/eeks/internal/fetch"
	"github.com/eeks-rt/eeks/internal/manifest"
	"github.com/eeks-rt/eeks/internal/nativeloader"
	"github.com/eeks-rt/eeks/internal/scriptloader"
	"github.com/eeks-rt/eeks/internal/storage"
	"github.com/eeks-rt/eeks/internal/workload"
)

// manifestFileName is the build manifest a source extension's directory
// must contain. spec.md never names the file (only its grammar, which
// internal/manifest parses); this runtime looks for it under this name,
// mirroring the teacher's fixed "build.textproto" convention for packages.
const manifestFileName = "extension.mod"

// remoteSuffix names the sidecar file declaring a precompiled extension's
// GitHub release source. spec.md never names this file either; it holds
// plain "repo=/tag=/asset=" key=value lines, parsed by
// parseRemoteDescriptor.
const remoteSuffix = ".remote"

// Registry owns every discovered extension record, the compiled
// workloads, and the collaborators a reload pass needs.
type Registry struct {
	World   eeks.World
	Config  eeks.Config
	Logger  *log.Logger
	Cache   *cache.Cache
	Builder *build.Builder
	Scripts *scriptloader.Loader

	// Observer, if set, receives a LoadStatus snapshot on every forward-
	// progress step of Reload (spec.md §4.7 step 2 and per-item emits).
	Observer eeks.Observer

	// Workloads holds the most recently compiled run plan, keyed by group.
	Workloads map[string]*eeks.Workload

	natives     map[string]*eeks.NativeExtension
	nativeOrder []string // discovery order, for deterministic Discover output
	scripts     map[string]*eeks.ScriptedExtension
	scriptOrder []string // registration order, for command-router fallthrough

	core []eeks.SystemDescriptor // statically linked core systems (spec.md §4.8)
}

// New constructs a Registry. Builder and Scripts are created here since
// both need process-wide state (the builder's cache root, the single
// shared Lua interpreter) that must not be duplicated across callers.
func New(cfg eeks.Config, world eeks.World, logger *log.Logger) (*Registry, error) {
	if logger == nil {
		logger = log.Default()
	}
	c := cache.New(cfg.CacheRoot)
	b, err := build.New(c, cfg, logger)
	if err != nil {
		return nil, xerrors.Errorf("registry: %w", err)
	}
	return &Registry{
		World:   world,
		Config:  cfg,
		Logger:  logger,
		Cache:   c,
		Builder: b,
		Scripts: scriptloader.New(),

		natives: make(map[string]*eeks.NativeExtension),
		scripts: make(map[string]*eeks.ScriptedExtension),
	}, nil
}

// Close tears down the shared Lua interpreter. Call once, at process
// exit.
func (r *Registry) Close() {
	r.Scripts.Close()
}

// AddCoreSystem registers a statically linked core system (spec.md §4.8,
// "the union over all loaded native extensions, scripted modules, and
// statically linked core systems"). Core systems are gathered in the
// order they are added here.
func (r *Registry) AddCoreSystem(desc eeks.SystemDescriptor) {
	r.core = append(r.core, desc)
}

// Discover scans Config.ExtensionsRoot for the three recognized extension
// shapes (spec.md §6): a subdirectory containing a build manifest is a
// native source extension; a file named "*<dylib-suffix>" is a
// precompiled native extension; a file named "*.lua" is a scripted
// extension. A directory whose manifest cannot be read is skipped with a
// DiscoveryError logged, not a fatal error for the whole pass.
//
// Before the scan proper, fetchRemotes resolves every "*.remote" sidecar
// (spec.md §3, "precompiled, source-less extension" backed by a GitHub
// release) into a plain precompiled artifact sitting in ExtensionsRoot, so
// the directory is re-listed afterward and the fetched file is picked up
// by the ordinary precompiled-extension branch below like any other.
func (r *Registry) Discover(ctx context.Context) error {
	family, ok := eeks.CurrentHostFamily()
	if !ok {
		return xerrors.Errorf("discover: unsupported host")
	}
	suffix := eeks.DylibSuffix(family)

	r.fetchRemotes(ctx)

	entries, err := os.ReadDir(r.Config.ExtensionsRoot)
	if err != nil {
		return xerrors.Errorf("discover: read %s: %w", r.Config.ExtensionsRoot, err)
	}

	for _, e := range entries {
		name := e.Name()
		path := filepath.Join(r.Config.ExtensionsRoot, name)

		switch {
		case e.IsDir():
			mpath := filepath.Join(path, manifestFileName)
			m, err := manifest.Read(mpath)
			if err != nil {
				r.Logger.Printf("%v", &eeks.DiscoveryError{Path: path, Reason: err.Error()})
				continue
			}
			r.addNative(&eeks.NativeExtension{
				Name:             m.Name,
				SourcePath:       path,
				InWorkspace:      m.Workspace,
				ArtifactPath:     r.expectedArtifactPath(m.Name, m.Workspace, family),
				LoadDependencies: m.Dependencies,
			})

		case strings.HasSuffix(name, suffix) && name != suffix:
			r.addNative(&eeks.NativeExtension{
				Name:         stripDylibAffixes(family, name, suffix),
				ArtifactPath: path,
			})

		case strings.HasSuffix(name, eeks.ScriptSuffix) && name != eeks.ScriptSuffix:
			r.addScript(&eeks.ScriptedExtension{
				Name:       strings.TrimSuffix(name, eeks.ScriptSuffix),
				SourcePath: path,
			})
		}
	}
	return nil
}

// remoteDescriptor is one "*.remote" sidecar's parsed contents.
type remoteDescriptor struct {
	repo  string
	tag   string
	asset string
}

// parseRemoteDescriptor reads "key=value" lines (repo=, tag=, asset=) out
// of path, trimming whitespace around keys and values and ignoring lines
// without an "=" (including blank lines) and unknown keys.
func parseRemoteDescriptor(path string) (remoteDescriptor, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return remoteDescriptor{}, xerrors.Errorf("read %s: %w", path, err)
	}
	var d remoteDescriptor
	for _, line := range strings.Split(string(contents), "\n") {
		line = strings.TrimSpace(line)
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "repo":
			d.repo = strings.TrimSpace(val)
		case "tag":
			d.tag = strings.TrimSpace(val)
		case "asset":
			d.asset = strings.TrimSpace(val)
		}
	}
	if d.repo == "" || d.tag == "" || d.asset == "" {
		return remoteDescriptor{}, xerrors.Errorf("%s: needs repo=, tag= and asset= lines", path)
	}
	return d, nil
}

// fetchRemotes resolves every "*.remote" sidecar under ExtensionsRoot into
// a precompiled artifact before the directory is scanned, downloading a
// fresh copy only when the release asset is newer than what's already on
// disk (fetch.Fetcher.FetchIfNewer). A sidecar that cannot be read or
// fetched logs a DiscoveryError and is skipped — it never fails the whole
// pass, matching Discover's treatment of a bad native-source manifest.
func (r *Registry) fetchRemotes(ctx context.Context) {
	matches, err := filepath.Glob(filepath.Join(r.Config.ExtensionsRoot, "*"+remoteSuffix))
	if err != nil {
		r.Logger.Printf("discover: glob %s: %v", remoteSuffix, err)
		return
	}
	for _, path := range matches {
		desc, err := parseRemoteDescriptor(path)
		if err != nil {
			r.Logger.Printf("%v", &eeks.DiscoveryError{Path: path, Reason: err.Error()})
			continue
		}
		f, err := fetch.New(ctx, desc.repo, r.Config.FetchToken)
		if err != nil {
			r.Logger.Printf("%v", &eeks.DiscoveryError{Path: path, Reason: err.Error()})
			continue
		}
		dest := filepath.Join(r.Config.ExtensionsRoot, desc.asset)
		fetchedPath, fetched, err := f.FetchIfNewer(ctx, desc.tag, desc.asset, dest)
		if err != nil {
			r.Logger.Printf("%v", &eeks.DiscoveryError{Path: path, Reason: err.Error()})
			continue
		}
		if fetched {
			r.Logger.Printf("discover: fetched newer release asset %s -> %s", desc.asset, fetchedPath)
		}
	}
}

func (r *Registry) addNative(ext *eeks.NativeExtension) {
	if _, exists := r.natives[ext.Name]; !exists {
		r.nativeOrder = append(r.nativeOrder, ext.Name)
	}
	r.natives[ext.Name] = ext
}

func (r *Registry) addScript(ext *eeks.ScriptedExtension) {
	if _, exists := r.scripts[ext.Name]; !exists {
		r.scriptOrder = append(r.scriptOrder, ext.Name)
	}
	r.scripts[ext.Name] = ext
}

// expectedArtifactPath mirrors spec.md §6's build-output location matrix:
// a workspace member's artifact lands at <cwd>/target/debug/..., a
// standalone extension's at <extension-path>/target/debug/....
func (r *Registry) expectedArtifactPath(name string, workspace bool, family eeks.HostFamily) string {
	fname := eeks.DylibName(family, name)
	if workspace {
		cwd := filepath.Dir(r.Config.ExtensionsRoot)
		return filepath.Join(cwd, "target", "debug", fname)
	}
	return filepath.Join(r.Config.ExtensionsRoot, name, "target", "debug", fname)
}

// stripDylibAffixes recovers an extension's bare name from a precompiled
// artifact's file name, e.g. "libfoo.so" -> "foo" on Linux/Darwin,
// "foo.dll" -> "foo" on Windows. It duplicates host.go's own prefix
// convention rather than importing it, since DylibName has no published
// inverse.
func stripDylibAffixes(family eeks.HostFamily, filename, suffix string) string {
	name := strings.TrimSuffix(filename, suffix)
	if family != eeks.HostWindows {
		name = strings.TrimPrefix(name, "lib")
	}
	return name
}

// pendingNative pairs a queued native extension with the dirty level that
// queued it (spec.md §4.7 step 1) and the representative timestamp
// dirty.Analyze computed alongside that level.
type pendingNative struct {
	ext   *eeks.NativeExtension
	level eeks.DirtyLevel
	ts    time.Time
}

// Reload runs one full reload pass (spec.md §4.7 steps 1-6). It returns
// the first fatal error encountered, per spec.md §7: a failed pass leaves
// already-activated extensions exactly as they were and emits no further
// snapshots.
func (r *Registry) Reload(ctx context.Context) error {
	if _, ok := eeks.CurrentHostFamily(); !ok {
		return xerrors.Errorf("reload: unsupported host")
	}

	pending, err := r.dirtyNatives()
	if err != nil {
		return err
	}
	pendingScripts, err := r.dirtyScripts()
	if err != nil {
		return err
	}
	if len(pending) == 0 && len(pendingScripts) == 0 {
		return nil
	}

	r.emit(pending, pendingScripts, nil)

	if err := r.batchRebuild(ctx, pending); err != nil {
		return err
	}

	order, err := loadOrder(extractExts(pending))
	if err != nil {
		return xerrors.Errorf("reload: %w", err)
	}

	var completed []string
	for _, idx := range order {
		q := pending[idx]
		if err := r.activate(ctx, q.ext, q.level, q.ts); err != nil {
			return xerrors.Errorf("reload: activate %s: %w", q.ext.Name, err)
		}
		completed = append(completed, q.ext.Name)
		r.emit(pending, pendingScripts, completed)
	}

	for _, name := range pendingScripts {
		if err := r.reloadScript(name); err != nil {
			return xerrors.Errorf("reload: %w", err)
		}
		completed = append(completed, name)
		r.emit(pending, pendingScripts, completed)
	}

	workloads, err := workload.Compile(r.gather())
	if err != nil {
		return xerrors.Errorf("reload: compile workloads: %w", err)
	}
	r.Workloads = workloads
	return nil
}

// dirtyNatives computes the dirty level of every discovered native
// extension and returns those strictly above Clean (spec.md §4.7 step 1).
func (r *Registry) dirtyNatives() ([]pendingNative, error) {
	now := time.Now()
	var pending []pendingNative
	for _, name := range r.nativeOrder {
		ext := r.natives[name]

		var readAt *time.Time
		if ext.Active() {
			t := ext.ReadAt
			readAt = &t
		}
		target := dirty.Target{
			Name:         ext.Name,
			SourcePath:   ext.SourcePath,
			ManifestPath: manifestPathFor(ext),
			ArtifactPath: ext.ArtifactPath,
			DepFilePath:  depFilePathFor(ext),
			ReadAt:       readAt,
		}
		level, ts, err := dirty.Analyze(r.Logger, target, r.Config.DeepChecking, now)
		if err != nil {
			return nil, xerrors.Errorf("reload: dirty analysis for %s: %w", name, err)
		}
		if level == eeks.Clean {
			continue
		}
		pending = append(pending, pendingNative{ext: ext, level: level, ts: ts})
	}
	return pending, nil
}

// dirtyScripts collects script extensions whose on-disk modification
// exceeds their in-memory read time (spec.md §4.7 step 1, second
// sentence).
func (r *Registry) dirtyScripts() ([]string, error) {
	var names []string
	for _, name := range r.scriptOrder {
		s := r.scripts[name]
		info, err := os.Stat(s.SourcePath)
		if err != nil {
			return nil, xerrors.Errorf("stat %s: %w", s.SourcePath, err)
		}
		if !s.Loaded() || info.ModTime().After(s.ReadAt) {
			names = append(names, name)
		}
	}
	return names, nil
}

// batchRebuild implements spec.md §4.7 step 3: when batching is enabled
// and more than one queued workspace member needs a full Rebuild, compile
// them together now, then downgrade each batched member's level to Reload
// in place so the per-extension activate loop below resolves it from the
// cache batchRebuild just populated instead of invoking the builder a
// second time (spec.md §4.7 step 3, "do not individually re-invoke the
// builder for those below"; §8 scenario 6). This mirrors the original's
// own re-evaluation of dirty_level after its batched `cargo build --all`
// (_examples/original_source/eeks/src/lib.rs:772-786,446): by the time the
// per-extension path runs, the artifact is already fresh, so it degrades
// to a plain Reload rather than rebuilding.
func (r *Registry) batchRebuild(ctx context.Context, pending []pendingNative) error {
	if !r.Config.Batched {
		return nil
	}
	var idxs []int
	for i, q := range pending {
		if q.level == eeks.Rebuild && q.ext.InWorkspace {
			idxs = append(idxs, i)
		}
	}
	if len(idxs) < 2 {
		return nil
	}
	r.Logger.Printf("reload: batching %d workspace rebuilds into one compile pass", len(idxs))
	for _, i := range idxs {
		q := pending[i]
		req := build.Request{
			Name:         q.ext.Name,
			SourcePath:   q.ext.SourcePath,
			ManifestPath: manifestPathFor(q.ext),
			InWorkspace:  true,
		}
		if _, _, err := r.Builder.Build(ctx, req); err != nil {
			return err
		}
		pending[i].level = eeks.Reload
	}
	return nil
}

// activate performs spec.md §4.6's full surrender/drop/build-or-map/load/
// restore sequence for one queued native extension.
func (r *Registry) activate(ctx context.Context, ext *eeks.NativeExtension, level eeks.DirtyLevel, ts time.Time) error {
	var snap *storage.Snapshot
	if ext.Active() {
		var err error
		snap, err = storage.Surrender(r.World, ext)
		if err != nil {
			return err
		}
		ext.Library.Close()
		ext.Library = nil
	}

	artifactPath, builtAt, err := r.resolveArtifact(ctx, ext, level, ts)
	if err != nil {
		return err
	}

	handle, err := nativeloader.Open(artifactPath, ext.Name)
	if err != nil {
		return err
	}
	systems := handle.Systems()
	deps := handle.Info()

	collector := eeks.NewStorageCollector(r.World)
	if err := handle.Load(collector); err != nil {
		return err
	}
	components, resources := collector.Storages()

	ext.Library = handle.ToLibrary(systems)
	ext.ArtifactPath = artifactPath
	ext.ReadAt = builtAt
	ext.LoadDependencies = deps
	ext.StorageComponents = components
	ext.StorageResources = resources

	if snap != nil {
		if err := storage.Restore(r.World, ext.Name, snap); err != nil {
			return err
		}
	}
	return nil
}

// resolveArtifact returns the artifact this activation should map: a fresh
// build for Rebuild, or the already-cached/on-disk artifact for Reload. ts
// is the representative timestamp dirty.Analyze computed for this
// extension (for a source extension settling on Reload, the artifact's own
// last-seen modification time); for a member downgraded by a batched
// rebuild (see batchRebuild) it is the source timestamp, so the cache
// entry batchRebuild just wrote is found via Cache.Hit (spec.md §4.3).
// When Cache.Hit finds no entry at least this fresh, the artifact at
// ext.ArtifactPath is mapped if it exists.
func (r *Registry) resolveArtifact(ctx context.Context, ext *eeks.NativeExtension, level eeks.DirtyLevel, ts time.Time) (string, time.Time, error) {
	if level == eeks.Rebuild {
		if ext.SourcePath == "" {
			return "", time.Time{}, xerrors.Errorf("%s: Rebuild requested for a source-less extension", ext.Name)
		}
		return r.Builder.Build(ctx, build.Request{
			Name:         ext.Name,
			SourcePath:   ext.SourcePath,
			ManifestPath: manifestPathFor(ext),
			InWorkspace:  ext.InWorkspace,
		})
	}
	if ext.SourcePath != "" {
		if path, at, ok, err := r.Cache.Hit(ext.Name, ts); err == nil && ok {
			return path, at, nil
		}
	}
	fi, err := os.Stat(ext.ArtifactPath)
	if err != nil {
		return "", time.Time{}, xerrors.Errorf("%s: stat artifact: %w", ext.Name, err)
	}
	return ext.ArtifactPath, fi.ModTime(), nil
}

// reloadScript implements spec.md §4.5's "reload is equivalent to
// unload-then-load" for one scripted extension.
func (r *Registry) reloadScript(name string) error {
	s := r.scripts[name]
	r.Scripts.Unload(name)
	mod, err := r.Scripts.Load(name, s.SourcePath)
	if err != nil {
		return err
	}
	info, err := os.Stat(s.SourcePath)
	if err != nil {
		return xerrors.Errorf("stat %s: %w", s.SourcePath, err)
	}
	s.Module, s.ReadAt = mod, info.ModTime()
	return nil
}

// emit publishes a LoadStatus snapshot reflecting completed against the
// full pending set (spec.md §3 "Load status snapshot", §5 "Ordering
// guarantees").
func (r *Registry) emit(pending []pendingNative, pendingScripts []string, completed []string) {
	if r.Observer == nil {
		return
	}
	done := make(map[string]bool, len(completed))
	for _, name := range completed {
		done[name] = true
	}
	status := eeks.LoadStatus{Completed: append([]string(nil), completed...)}
	for _, q := range pending {
		if done[q.ext.Name] {
			continue
		}
		status.Pending = append(status.Pending, eeks.PendingExtension{Name: q.ext.Name, HardReload: true})
	}
	for _, name := range pendingScripts {
		if done[name] {
			continue
		}
		status.Pending = append(status.Pending, eeks.PendingExtension{Name: name, HardReload: false})
	}
	r.Observer(status)
}

// gather assembles the full system list the workload compiler consumes,
// in the deterministic order spec.md §4.8 requires: native extensions by
// name, then statically linked core systems in registration order, then
// scripted extensions by name.
func (r *Registry) gather() []eeks.SystemDescriptor {
	var out []eeks.SystemDescriptor

	names := append([]string(nil), r.nativeOrder...)
	slices.SortFunc(names, func(a, b string) bool { return a < b })
	for _, name := range names {
		ext := r.natives[name]
		if ext.Active() {
			out = append(out, ext.Library.Systems...)
		}
	}

	out = append(out, r.core...)

	scriptNames := append([]string(nil), r.scriptOrder...)
	slices.SortFunc(scriptNames, func(a, b string) bool { return a < b })
	for _, name := range scriptNames {
		s := r.scripts[name]
		if s.Loaded() {
			out = append(out, s.Module.Systems...)
		}
	}

	return out
}

// Command routes one command's tokens (spec.md §6): "component" and
// "resource" forward verbatim to the world; any other token is searched
// across scripted extensions' declared command lists, in registration
// order, and the first match wins (spec.md §4 supplemented-features
// note on command routing's fallthrough-order behavior).
func (r *Registry) Command(ctx context.Context, tokens []string) (string, error) {
	if len(tokens) == 0 {
		return "", xerrors.Errorf("command: empty token sequence")
	}
	switch tokens[0] {
	case "component", "resource":
		return r.World.Command(tokens)
	}
	for _, name := range r.scriptOrder {
		s := r.scripts[name]
		if s.Loaded() && slices.Contains(s.Module.Commands, tokens[0]) && r.Scripts.HasCommand(name, tokens[0]) {
			return r.Scripts.InvokeCommand(ctx, name, tokens[0], r.World, tokens[1:])
		}
	}
	return "", xerrors.Errorf("command: no extension declares %q", tokens[0])
}

func extractExts(pending []pendingNative) []*eeks.NativeExtension {
	out := make([]*eeks.NativeExtension, len(pending))
	for i, q := range pending {
		out[i] = q.ext
	}
	return out
}

func manifestPathFor(ext *eeks.NativeExtension) string {
	if ext.SourcePath == "" {
		return ""
	}
	return filepath.Join(ext.SourcePath, manifestFileName)
}

// depFilePathFor returns the build tool's per-artifact dependency
// manifest path if one actually exists on disk, so dirty analysis's deep
// check only engages where the Go toolchain's build actually left one —
// unlike the cc-style `.d` file spec.md §4.1 assumes, `go build` does not
// emit one by default, so this is best-effort (see DESIGN.md).
func depFilePathFor(ext *eeks.NativeExtension) string {
	if ext.ArtifactPath == "" {
		return ""
	}
	candidate := ext.ArtifactPath + ".d"
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// loadNode is a DAG node wrapping a queued extension's index, following
// the teacher's internal/batch.go node pattern (a small ID()-returning
// struct, rather than gonum's bare int64 node).
type loadNode struct {
	id  int64
	ext *eeks.NativeExtension
}

func (n *loadNode) ID() int64 { return n.id }

// loadOrder sorts queued into an activation order that respects each
// extension's declared load dependencies (spec.md §4.7, "ordering within
// step 4 should respect declared load dependencies... a topological order
// over the queue is required; cycles... are a fatal configuration
// error"). gonum's topo.Sort both validates acyclicity and (like the
// teacher's cycle-breaking pass in internal/batch.go) reports the
// unorderable component for diagnostics; the actual order returned is
// then computed by a second, index-stable pass so that two runs over the
// same queue always activate extensions in the same order.
func loadOrder(queued []*eeks.NativeExtension) ([]int, error) {
	n := len(queued)
	index := make(map[string]int, n)
	nodes := make([]*loadNode, n)
	for i, ext := range queued {
		index[ext.Name] = i
		nodes[i] = &loadNode{id: int64(i), ext: ext}
	}

	g := simple.NewDirectedGraph()
	for _, nd := range nodes {
		g.AddNode(nd)
	}
	deps := make([][]int, n)
	for i, ext := range queued {
		for _, dep := range ext.LoadDependencies {
			j, ok := index[dep]
			if !ok || j == i {
				continue
			}
			deps[i] = append(deps[i], j)
			g.SetEdge(g.NewEdge(nodes[j], nodes[i]))
		}
	}

	if _, err := topo.Sort(g); err != nil {
		uo, ok := err.(topo.Unorderable)
		if !ok {
			return nil, err
		}
		residual := make(map[string][]string)
		for _, component := range uo {
			for _, gn := range component {
				ext := gn.(*loadNode).ext
				residual[ext.Name] = ext.LoadDependencies
			}
		}
		return nil, &eeks.CycleInWorkloadError{Group: "load-order", Residual: residual}
	}

	placed := make([]bool, n)
	order := make([]int, 0, n)
	for len(order) < n {
		progressed := false
		for i := 0; i < n; i++ {
			if placed[i] {
				continue
			}
			ready := true
			for _, d := range deps[i] {
				if !placed[d] {
					ready = false
					break
				}
			}
			if ready {
				placed[i] = true
				order = append(order, i)
				progressed = true
			}
		}
		if !progressed {
			// Unreachable: topo.Sort above already proved the graph acyclic.
			return nil, xerrors.Errorf("load order: no progress despite acyclic graph")
		}
	}
	return order, nil
}
