package eeks

import "context"

// RawStorage is an opaque byte blob severed from its drop glue — the
// representation used to move a component or resource storage across a
// hard reload without the defining code present (spec.md §4.6).
type RawStorage []byte

// EntityID identifies a spawned entity. The core never inspects its value;
// it is only ever round-tripped through World.
type EntityID uint64

// World is the minimal surface the core consumes from the externally
// owned ECS world. Everything else about component storage, queries, and
// entity allocation is out of scope (spec.md §1) — the core only needs to
// register storages, withdraw/reinstall them across a hard reload, and
// forward top-level commands.
type World interface {
	// RegisterComponent declares a new component storage under storageID.
	// Called from StorageCollector.Component during N_load.
	RegisterComponent(storageID string) error
	// InsertResource inserts a resource value under storageID.
	InsertResource(storageID string, value interface{}) error
	// SpawnEntity allocates a new entity, used by extensions that seed
	// initial entities at load time.
	SpawnEntity() (EntityID, error)

	// UnregisterComponent withdraws a component storage, severing it from
	// its drop glue and returning the raw bytes (spec.md §4.6 step 2-3).
	UnregisterComponent(storageID string) (RawStorage, error)
	// RemoveResource withdraws a resource storage the same way.
	RemoveResource(storageID string) (RawStorage, error)

	// ComponentRawMut returns a raw mutable handle to a freshly registered
	// (empty) component storage, for overwriting with withdrawn bytes
	// (spec.md §4.6 step 6).
	ComponentRawMut(storageID string) (RawStorage, error)
	// ResourceRawMut is the resource-storage equivalent of ComponentRawMut.
	ResourceRawMut(storageID string) (RawStorage, error)
	// LoadRawComponent overwrites the storage at storageID with raw,
	// skipping constructor logic.
	LoadRawComponent(storageID string, raw RawStorage) error
	// LoadRawResource is the resource-storage equivalent of LoadRawComponent.
	LoadRawResource(storageID string, raw RawStorage) error

	// Command forwards a "component" or "resource" command verbatim to the
	// world (spec.md §6); all other keywords are routed to scripted
	// command handlers instead.
	Command(tokens []string) (string, error)
}

// Invoker is the opaque callable a system descriptor carries: given a
// context and a handle to the world, it runs the system once. Native
// invokers close over a function pointer pinned in a mapped library's
// address space; scripted invokers are indirected through the interpreter.
type Invoker func(ctx context.Context, world World) error

// SystemDescriptor is the cross-language system descriptor shape spec.md
// §3 and §4.8 describe: native and scripted systems share this exact
// shape, so the workload compiler never branches on origin.
type SystemDescriptor struct {
	Group     string
	ID        string
	RunAfter  []string
	RunBefore []string
	Invoke    Invoker
}

// StorageCollector is the object interface N_load receives to register
// components and resources and spawn initial entities. Every call also
// records the storage id contributed, so the caller can read them back
// with Storages once loading finishes.
type StorageCollector struct {
	world      World
	components []string
	resources  []string
}

// NewStorageCollector wraps world for one load call.
func NewStorageCollector(world World) *StorageCollector {
	return &StorageCollector{world: world}
}

// Component registers a component storage under storageID and records it
// as contributed by the in-progress load.
func (c *StorageCollector) Component(storageID string) error {
	if err := c.world.RegisterComponent(storageID); err != nil {
		return err
	}
	c.components = append(c.components, storageID)
	return nil
}

// Resource inserts a resource value under storageID and records it as
// contributed by the in-progress load.
func (c *StorageCollector) Resource(storageID string, value interface{}) error {
	if err := c.world.InsertResource(storageID, value); err != nil {
		return err
	}
	c.resources = append(c.resources, storageID)
	return nil
}

// SpawnEntity allocates a new entity in the wrapped world.
func (c *StorageCollector) SpawnEntity() (EntityID, error) {
	return c.world.SpawnEntity()
}

// Storages returns the (components, resources) ids accumulated by this
// collector, to be attached to the owning extension record.
func (c *StorageCollector) Storages() (components, resources []string) {
	return c.components, c.resources
}

// SystemBuilder accumulates a single system descriptor's ordering
// constraints before it is finalized into the collector's list.
type SystemBuilder struct {
	desc SystemDescriptor
}

// RunsAfter appends to this system's run_after set.
func (b *SystemBuilder) RunsAfter(ids ...string) *SystemBuilder {
	b.desc.RunAfter = append(b.desc.RunAfter, ids...)
	return b
}

// RunsBefore appends to this system's run_before set.
func (b *SystemBuilder) RunsBefore(ids ...string) *SystemBuilder {
	b.desc.RunBefore = append(b.desc.RunBefore, ids...)
	return b
}

// WithInvoker sets the opaque callable that runs this system once.
func (b *SystemBuilder) WithInvoker(fn Invoker) *SystemBuilder {
	b.desc.Invoke = fn
	return b
}

// Descriptor returns the accumulated descriptor.
func (b *SystemBuilder) Descriptor() SystemDescriptor { return b.desc }

// SystemsCollector is the object interface N_systems (and a script
// module's systems() hook) receives to enumerate system descriptors. A
// builder obtained from Add or New is only appended to the collector's
// list once it is passed to Finalize; the script loader installs New and
// Finalize as two separate interpreter globals (spec.md §4.5) because Lua
// collects ordering constraints across several statements before the
// descriptor is complete.
type SystemsCollector struct {
	systems *[]SystemDescriptor
}

// NewSystemsCollector wraps a destination slice for one load/systems() call.
func NewSystemsCollector(dest *[]SystemDescriptor) *SystemsCollector {
	return &SystemsCollector{systems: dest}
}

// Add starts a new system builder for (group, id). It behaves exactly like
// New: nothing is appended until the builder is passed to Finalize.
func (c *SystemsCollector) Add(group, id string) *SystemBuilder {
	return &SystemBuilder{desc: SystemDescriptor{Group: group, ID: id}}
}

// New starts a system builder without appending it yet.
func (c *SystemsCollector) New(group, id string) *SystemBuilder {
	return &SystemBuilder{desc: SystemDescriptor{Group: group, ID: id}}
}

// Finalize appends a builder's accumulated descriptor to the collector's
// list.
func (c *SystemsCollector) Finalize(b *SystemBuilder) {
	*c.systems = append(*c.systems, b.Descriptor())
}
