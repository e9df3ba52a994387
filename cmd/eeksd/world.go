package main

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/xerrors"

	"github.com/eeks-rt/eeks"
)

// memWorld is a bare in-memory eeks.World: component and resource storages
// are just named byte slices, with no query support of their own. It
// exists only so cmd/eeksd has something concrete to drive the registry
// and dispatch engine against; a real host ECS owns the actual storages
// (spec.md §1, "the core only needs to register storages... everything
// else about component storage, queries, and entity allocation is out of
// scope").
type memWorld struct {
	mu         sync.Mutex
	components map[string]eeks.RawStorage
	resources  map[string]eeks.RawStorage
	nextEntity eeks.EntityID
}

func newMemWorld() *memWorld {
	return &memWorld{
		components: make(map[string]eeks.RawStorage),
		resources:  make(map[string]eeks.RawStorage),
	}
}

func (w *memWorld) RegisterComponent(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.components[id]; exists {
		return &eeks.DuplicateStorageError{StorageID: id, First: id, Second: id}
	}
	w.components[id] = eeks.RawStorage{}
	return nil
}

func (w *memWorld) InsertResource(id string, value interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.resources[id]; exists {
		return &eeks.DuplicateStorageError{StorageID: id, First: id, Second: id}
	}
	w.resources[id] = eeks.RawStorage{}
	return nil
}

func (w *memWorld) SpawnEntity() (eeks.EntityID, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextEntity++
	return w.nextEntity, nil
}

func (w *memWorld) UnregisterComponent(id string) (eeks.RawStorage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	raw, ok := w.components[id]
	if !ok {
		return nil, xerrors.Errorf("memWorld: no such component %q", id)
	}
	delete(w.components, id)
	return raw, nil
}

func (w *memWorld) RemoveResource(id string) (eeks.RawStorage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	raw, ok := w.resources[id]
	if !ok {
		return nil, xerrors.Errorf("memWorld: no such resource %q", id)
	}
	delete(w.resources, id)
	return raw, nil
}

func (w *memWorld) ComponentRawMut(id string) (eeks.RawStorage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	raw, ok := w.components[id]
	if !ok {
		return nil, xerrors.Errorf("memWorld: no such component %q", id)
	}
	return raw, nil
}

func (w *memWorld) ResourceRawMut(id string) (eeks.RawStorage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	raw, ok := w.resources[id]
	if !ok {
		return nil, xerrors.Errorf("memWorld: no such resource %q", id)
	}
	return raw, nil
}

func (w *memWorld) LoadRawComponent(id string, raw eeks.RawStorage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.components[id]; !ok {
		return xerrors.Errorf("memWorld: component %q not registered before load", id)
	}
	w.components[id] = raw
	return nil
}

func (w *memWorld) LoadRawResource(id string, raw eeks.RawStorage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.resources[id]; !ok {
		return xerrors.Errorf("memWorld: resource %q not registered before load", id)
	}
	w.resources[id] = raw
	return nil
}

// Command implements the "component"/"resource" verbatim forwarding
// spec.md §6 describes: "component list" / "resource list" report the
// currently registered ids, sorted for reproducible output.
func (w *memWorld) Command(tokens []string) (string, error) {
	if len(tokens) < 2 || tokens[1] != "list" {
		return "", xerrors.Errorf("memWorld: usage: %s list", tokens[0])
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	var ids map[string]eeks.RawStorage
	switch tokens[0] {
	case "component":
		ids = w.components
	case "resource":
		ids = w.resources
	default:
		return "", xerrors.Errorf("memWorld: unknown command %q", tokens[0])
	}

	names := make([]string, 0, len(ids))
	for id := range ids {
		names = append(names, id)
	}
	sort.Strings(names)
	return strings.Join(names, ", "), nil
}
