package storage_test

import (
	"testing"

	"github.com/eeks-rt/eeks"
	"github.com/eeks-rt/eeks/internal/storage"
	"golang.org/x/xerrors"
)

// fakeWorld is an in-memory eeks.World good enough to exercise the
// surrender/restore round trip without a real ECS backing it.
type fakeWorld struct {
	components map[string]eeks.RawStorage
	resources  map[string]eeks.RawStorage
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
	raw, ok := w.components[id]
	if !ok {
		return nil, xerrors.Errorf("no such component %s", id)
	}
	delete(w.components, id)
	return raw, nil
}
func (w *fakeWorld) RemoveResource(id string) (eeks.RawStorage, error) {
	raw, ok := w.resources[id]
	if !ok {
		return nil, xerrors.Errorf("no such resource %s", id)
	}
	delete(w.resources, id)
	return raw, nil
}
func (w *fakeWorld) ComponentRawMut(id string) (eeks.RawStorage, error) {
	w.components[id] = eeks.RawStorage{}
	return w.components[id], nil
}
func (w *fakeWorld) ResourceRawMut(id string) (eeks.RawStorage, error) {
	w.resources[id] = eeks.RawStorage{}
	return w.resources[id], nil
}
func (w *fakeWorld) LoadRawComponent(id string, raw eeks.RawStorage) error {
	if _, ok := w.components[id]; !ok {
		return xerrors.Errorf("component %s not registered before load", id)
	}
	w.components[id] = raw
	return nil
}
func (w *fakeWorld) LoadRawResource(id string, raw eeks.RawStorage) error {
	if _, ok := w.resources[id]; !ok {
		return xerrors.Errorf("resource %s not registered before load", id)
	}
	w.resources[id] = raw
	return nil
}
func (w *fakeWorld) Command(tokens []string) (string, error) { return "", nil }

func TestSurrenderThenRestoreRoundTripsBytes(t *testing.T) {
	w := newFakeWorld()
	want := eeks.RawStorage{0xAB, 0xCD}
	w.components["Foo"] = want

	ext := &eeks.NativeExtension{Name: "foo", StorageComponents: []string{"Foo"}}
	snap, err := storage.Surrender(w, ext)
	if err != nil {
		t.Fatal(err)
	}
	if _, stillThere := w.components["Foo"]; stillThere {
		t.Fatal("surrender left the component registered in the world")
	}

	// Replacement library re-registers a fresh, empty storage under the
	// same id before restore overwrites it.
	if err := w.RegisterComponent("Foo"); err != nil {
		t.Fatal(err)
	}
	if err := storage.Restore(w, "foo", snap); err != nil {
		t.Fatal(err)
	}

	got := w.components["Foo"]
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("restored bytes = %v, want %v", got, want)
	}
}

func TestSurrenderPropagatesWorldError(t *testing.T) {
	w := newFakeWorld()
	ext := &eeks.NativeExtension{Name: "foo", StorageComponents: []string{"missing"}}
	if _, err := storage.Surrender(w, ext); err == nil {
		t.Fatal("expected an error surrendering a storage id the world never registered")
	}
}
