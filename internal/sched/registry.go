package sched

import (
	"sync"

	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/logging"
)

// MaxPlugins is the number of registry slots.
const MaxPlugins = 16

// Validator is an extra registration check installed by the embedder. It
// runs after the built-in descriptor validation.
type Validator func(Descriptor, Plugin) error

type regEntry struct {
	desc   Descriptor
	plugin Plugin
}

// Registry is the fixed-capacity plugin registry. It is safe for
// concurrent use.
type Registry struct {
	mu         sync.Mutex
	log        *logging.Logger
	entries    map[StrategyID]*regEntry
	order      []StrategyID
	validators []Validator
}

// NewRegistry creates an empty Registry.
func NewRegistry(log *logging.Logger) *Registry {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Registry{
		log:     log.WithComponent("registry"),
		entries: make(map[StrategyID]*regEntry),
	}
}

// RegisterValidator installs an extra registration check. Validators apply
// to registrations made after installation.
func (r *Registry) RegisterValidator(v Validator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.validators = append(r.validators, v)
}

// Register adds a plugin under its descriptor. The descriptor's checksum
// and identity are validated, then any installed validators run.
func (r *Registry) Register(p Plugin, d Descriptor) error {
	if p == nil {
		return errors.NewRegistryError("plugin must not be nil", errors.ErrInvalidInput)
	}
	if err := d.Validate(); err != nil {
		return errors.NewRegistryError("descriptor validation failed", err).
			WithScheduler(d.Name)
	}
	if p.ID() != d.ID {
		return errors.NewRegistryError("descriptor ID does not match plugin", errors.ErrInvalidInput).
			WithScheduler(d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.entries[d.ID]; dup {
		return errors.NewRegistryError("duplicate registration", errors.ErrSchedulerExists).
			WithScheduler(d.Name)
	}
	if len(r.entries) >= MaxPlugins {
		return errors.NewRegistryError("no free registry slot", errors.ErrRegistryFull).
			WithScheduler(d.Name)
	}

	for _, v := range r.validators {
		if err := v(d, p); err != nil {
			return errors.NewRegistryError("validator rejected plugin", err).
				WithScheduler(d.Name)
		}
	}

	r.entries[d.ID] = &regEntry{desc: d, plugin: p}
	r.order = append(r.order, d.ID)
	r.log.Info("scheduler registered",
		"strategy", d.Name, "id", uint16(d.ID), "version", d.Version)
	return nil
}

// Unregister removes a plugin from the registry.
func (r *Registry) Unregister(id StrategyID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return errors.NewNotFoundError("scheduler", id.String())
	}
	delete(r.entries, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.log.Info("scheduler unregistered", "strategy", e.desc.Name)
	return nil
}

// Get returns the plugin registered under the given ID.
func (r *Registry) Get(id StrategyID) (Plugin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, errors.NewNotFoundError("scheduler", id.String())
	}
	return e.plugin, nil
}

// Describe returns the descriptor registered under the given ID.
func (r *Registry) Describe(id StrategyID) (Descriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Descriptor{}, errors.NewNotFoundError("scheduler", id.String())
	}
	return e.desc, nil
}

// Registered reports whether a strategy ID has a plugin.
func (r *Registry) Registered(id StrategyID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[id]
	return ok
}

// List returns the registered descriptors in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].desc)
	}
	return out
}

// Len returns the number of registered plugins.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
