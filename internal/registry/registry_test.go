package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/eeks-rt/eeks"
)

// fakeWorld is a minimal in-memory eeks.World, good enough to exercise
// discovery/command routing/reload without a real ECS backing it.
type fakeWorld struct {
	components map[string]eeks.RawStorage
	resources  map[string]eeks.RawStorage
	commands   []string
}

func newFakeWorld() *fakeWorld {
	return &fakeWorld{components: map[string]eeks.RawStorage{}, resources: map[string]eeks.RawStorage{}}
}

func (w *fakeWorld) RegisterComponent(id string) error {
	w.components[id] = eeks.RawStorage{}
	return nil
}
func (w *fakeWorld) InsertResource(id string, value interface{}) error { return nil }
func (w *fakeWorld) SpawnEntity() (eeks.EntityID, error)               { return 0, nil }
func (w *fakeWorld) UnregisterComponent(id string) (eeks.RawStorage, error) {
	raw := w.components[id]
	delete(w.components, id)
	return raw, nil
}
func (w *fakeWorld) RemoveResource(id string) (eeks.RawStorage, error) {
	raw := w.resources[id]
	delete(w.resources, id)
	return raw, nil
}
func (w *fakeWorld) ComponentRawMut(id string) (eeks.RawStorage, error) { return w.components[id], nil }
func (w *fakeWorld) ResourceRawMut(id string) (eeks.RawStorage, error)  { return w.resources[id], nil }
func (w *fakeWorld) LoadRawComponent(id string, raw eeks.RawStorage) error {
	w.components[id] = raw
	return nil
}
func (w *fakeWorld) LoadRawResource(id string, raw eeks.RawStorage) error {
	w.resources[id] = raw
	return nil
}
func (w *fakeWorld) Command(tokens []string) (string, error) {
	w.commands = append(w.commands, tokens[0])
	return "ok:" + tokens[0], nil
}

func newTestRegistry(t *testing.T, extensionsRoot string) *Registry {
	t.Helper()
	cfg := eeks.Config{
		ExtensionsRoot: extensionsRoot,
		CacheRoot:      filepath.Join(t.TempDir(), "cache"),
		Batched:        true,
		DeepChecking:   true,
	}
	r, err := New(cfg, newFakeWorld(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestDiscoverFindsAllThreeExtensionShapes(t *testing.T) {
	root := t.TempDir()
	extRoot := filepath.Join(root, "extensions")

	// Native source extension: a subdirectory with a manifest.
	srcDir := filepath.Join(extRoot, "terrain")
	if err := os.MkdirAll(filepath.Join(srcDir, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, manifestFileName), []byte("module terrain\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Precompiled native extension.
	if err := os.MkdirAll(extRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(extRoot, "libphysics.so"), []byte("fake"), 0o644); err != nil {
		t.Fatal(err)
	}

	// Scripted extension.
	if err := os.WriteFile(filepath.Join(extRoot, "greeter.lua"), []byte("return {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newTestRegistry(t, extRoot)
	if err := r.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if _, ok := r.natives["terrain"]; !ok {
		t.Errorf("Discover did not find the native source extension %q", "terrain")
	}
	phys, ok := r.natives["physics"]
	if !ok {
		t.Fatalf("Discover did not find the precompiled extension, got natives: %v", r.natives)
	}
	if phys.SourcePath != "" {
		t.Errorf("precompiled extension got a SourcePath: %q", phys.SourcePath)
	}
	if _, ok := r.scripts["greeter"]; !ok {
		t.Errorf("Discover did not find the scripted extension %q", "greeter")
	}
}

func TestDiscoverSkipsExtensionWithBadManifest(t *testing.T) {
	root := t.TempDir()
	extRoot := filepath.Join(root, "extensions")
	bad := filepath.Join(extRoot, "broken")
	if err := os.MkdirAll(bad, 0o755); err != nil {
		t.Fatal(err)
	}
	// No manifest file at all.

	r := newTestRegistry(t, extRoot)
	if err := r.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(r.natives) != 0 {
		t.Errorf("Discover registered an extension with no manifest: %v", r.natives)
	}
}

func TestLoadOrderRespectsDeclaredDependencies(t *testing.T) {
	a := &eeks.NativeExtension{Name: "a"}
	b := &eeks.NativeExtension{Name: "b", LoadDependencies: []string{"a"}}
	c := &eeks.NativeExtension{Name: "c", LoadDependencies: []string{"b"}}

	order, err := loadOrder([]*eeks.NativeExtension{c, b, a})
	if err != nil {
		t.Fatalf("loadOrder: %v", err)
	}
	queued := []*eeks.NativeExtension{c, b, a}
	var names []string
	for _, idx := range order {
		names = append(names, queued[idx].Name)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, names); diff != "" {
		t.Fatalf("loadOrder order mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadOrderDetectsCycle(t *testing.T) {
	a := &eeks.NativeExtension{Name: "a", LoadDependencies: []string{"b"}}
	b := &eeks.NativeExtension{Name: "b", LoadDependencies: []string{"a"}}

	_, err := loadOrder([]*eeks.NativeExtension{a, b})
	if err == nil {
		t.Fatal("loadOrder did not report a cycle between a and b")
	}
	if _, ok := err.(*eeks.CycleInWorkloadError); !ok {
		t.Fatalf("loadOrder error = %T, want *eeks.CycleInWorkloadError", err)
	}
}

func TestCommandRoutesComponentAndResourceToWorld(t *testing.T) {
	root := t.TempDir()
	r := newTestRegistry(t, filepath.Join(root, "extensions"))
	fw := r.World.(*fakeWorld)

	if _, err := r.Command(context.Background(), []string{"component", "Position"}); err != nil {
		t.Fatal(err)
	}
	if len(fw.commands) != 1 || fw.commands[0] != "component" {
		t.Fatalf("Command did not forward to the world: %v", fw.commands)
	}
}

func TestCommandFallsThroughScriptedExtensionsInRegistrationOrder(t *testing.T) {
	root := t.TempDir()
	extRoot := filepath.Join(root, "extensions")
	if err := os.MkdirAll(extRoot, 0o755); err != nil {
		t.Fatal(err)
	}

	first := filepath.Join(extRoot, "first.lua")
	second := filepath.Join(extRoot, "second.lua")
	if err := os.WriteFile(first, []byte(`
local M = {}
function M.systems() end
function M.greet(world) return "first" end
M.commands = {"greet"}
return M
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(second, []byte(`
local M = {}
function M.systems() end
function M.greet(world) return "second" end
M.commands = {"greet"}
return M
`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newTestRegistry(t, extRoot)
	if err := r.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	result, err := r.Command(context.Background(), []string{"greet"})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	// Discover walks os.ReadDir's lexical order, so "first.lua" registers
	// before "second.lua" and wins the fallthrough.
	if result != "first" {
		t.Fatalf("Command result = %q, want %q (first match in registration order)", result, "first")
	}
}

func TestGatherOrdersNativeCoreThenScriptedByName(t *testing.T) {
	root := t.TempDir()
	r := newTestRegistry(t, filepath.Join(root, "extensions"))

	r.addNative(&eeks.NativeExtension{
		Name:    "zeta",
		Library: &eeks.NativeLibrary{Systems: []eeks.SystemDescriptor{{Group: "tick", ID: "zeta.sys"}}},
	})
	r.addNative(&eeks.NativeExtension{
		Name:    "alpha",
		Library: &eeks.NativeLibrary{Systems: []eeks.SystemDescriptor{{Group: "tick", ID: "alpha.sys"}}},
	})
	r.AddCoreSystem(eeks.SystemDescriptor{Group: "tick", ID: "core.sys"})
	r.addScript(&eeks.ScriptedExtension{
		Name:   "beta",
		Module: &eeks.ScriptModule{Systems: []eeks.SystemDescriptor{{Group: "tick", ID: "beta.sys"}}},
	})

	gathered := r.gather()
	var ids []string
	for _, d := range gathered {
		ids = append(ids, d.ID)
	}
	if diff := cmp.Diff([]string{"alpha.sys", "zeta.sys", "core.sys", "beta.sys"}, ids); diff != "" {
		t.Fatalf("gather order mismatch (-want +got):\n%s", diff)
	}
}

func TestReloadCompilesWorkloadsFromScriptedSystemsOnly(t *testing.T) {
	root := t.TempDir()
	extRoot := filepath.Join(root, "extensions")
	if err := os.MkdirAll(extRoot, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(extRoot, "mover.lua"), []byte(`
local M = {}
function M.systems()
	finalize_system(new_system("tick", "mover.move"))
end
function M.move(world) return "" end
return M
`), 0o644); err != nil {
		t.Fatal(err)
	}

	r := newTestRegistry(t, extRoot)
	if err := r.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	wl, ok := r.Workloads["tick"]
	if !ok {
		t.Fatalf("Reload did not compile a %q workload, got: %v", "tick", r.Workloads)
	}
	if len(wl.Systems) != 1 || wl.Systems[0].Descriptor.ID != "mover.move" {
		t.Fatalf("unexpected workload systems: %+v", wl.Systems)
	}

	// A second reload with nothing changed on disk should be a no-op:
	// the script's ReadAt is already current.
	if err := r.Reload(context.Background()); err != nil {
		t.Fatalf("second Reload: %v", err)
	}
}
