// Package storage implements the storage surrender/restore protocol
// (spec.md §4.6): withdrawing a native extension's component and resource
// storages as opaque bytes before a hard reload drops its library, and
// reinstalling them once the replacement library has registered fresh,
// empty storages under the same ids.
package storage

import (
	"github.com/eeks-rt/eeks"
	"golang.org/x/xerrors"
)

// Snapshot holds the withdrawn bytes for one extension's storages, keyed
// by storage id, across the window between Surrender and Restore.
type Snapshot struct {
	Components map[string]eeks.RawStorage
	Resources  map[string]eeks.RawStorage
}

// Surrender withdraws every storage ext currently has registered
// (spec.md §4.6 steps 1-3), severing each from its drop glue. Call this
// before dropping ext's library handle.
func Surrender(world eeks.World, ext *eeks.NativeExtension) (*Snapshot, error) {
	snap := &Snapshot{
		Components: make(map[string]eeks.RawStorage, len(ext.StorageComponents)),
		Resources:  make(map[string]eeks.RawStorage, len(ext.StorageResources)),
	}
	for _, id := range ext.StorageComponents {
		raw, err := world.UnregisterComponent(id)
		if err != nil {
			return nil, xerrors.Errorf("surrender component %s for %s: %w", id, ext.Name, err)
		}
		snap.Components[id] = raw
	}
	for _, id := range ext.StorageResources {
		raw, err := world.RemoveResource(id)
		if err != nil {
			return nil, xerrors.Errorf("surrender resource %s for %s: %w", id, ext.Name, err)
		}
		snap.Resources[id] = raw
	}
	return snap, nil
}

// Restore overwrites the freshly-registered (empty) storages the
// replacement library's N_load call created with the withdrawn bytes
// (spec.md §4.6 step 6). Call this once the new library is mapped and
// loaded against world.
func Restore(world eeks.World, extName string, snap *Snapshot) error {
	for id, raw := range snap.Components {
		if _, err := world.ComponentRawMut(id); err != nil {
			return xerrors.Errorf("restore component %s for %s: %w", id, extName, err)
		}
		if err := world.LoadRawComponent(id, raw); err != nil {
			return xerrors.Errorf("restore component %s for %s: %w", id, extName, err)
		}
	}
	for id, raw := range snap.Resources {
		if _, err := world.ResourceRawMut(id); err != nil {
			return xerrors.Errorf("restore resource %s for %s: %w", id, extName, err)
		}
		if err := world.LoadRawResource(id, raw); err != nil {
			return xerrors.Errorf("restore resource %s for %s: %w", id, extName, err)
		}
	}
	return nil
}
