package sched

import (
	"sync"

	"github.com/microkernel-labs/schedswap/internal/clock"
	"github.com/microkernel-labs/schedswap/internal/errors"
	"github.com/microkernel-labs/schedswap/internal/logging"
	"github.com/microkernel-labs/schedswap/internal/task"
)

// CoreStats counts core-level activity.
type CoreStats struct {
	Activations   uint64
	Registrations uint64
	TicksHandled  uint64
}

// Core owns the registry and the active strategy. It is constructed once
// and injected wherever scheduling decisions are made; there is no package
// level instance.
type Core struct {
	mu  sync.Mutex
	log *logging.Logger

	registry *Registry
	ctx      *Context

	active      Plugin
	activatedAt uint64

	stats CoreStats
}

// CoreOption configures a Core.
type CoreOption func(*Core)

// WithLogger sets the core's logger.
func WithLogger(log *logging.Logger) CoreOption {
	return func(c *Core) {
		c.log = log.WithComponent("core")
	}
}

// NewCore creates a Core whose plugins share the given clock and task
// table.
func NewCore(clk clock.Clock, tasks *task.Table, opts ...CoreOption) *Core {
	c := &Core{
		log: logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registry = NewRegistry(c.log)
	c.ctx = &Context{
		Clock: clk,
		Log:   c.log,
		Tasks: tasks,
	}
	return c
}

// Registry returns the plugin registry.
func (c *Core) Registry() *Registry {
	return c.registry
}

// Context returns the plugin runtime context.
func (c *Core) Context() *Context {
	return c.ctx
}

// Register registers and initializes a plugin in one step.
func (c *Core) Register(p Plugin, d Descriptor) error {
	if err := c.registry.Register(p, d); err != nil {
		return err
	}
	if err := p.Init(c.ctx); err != nil {
		// Roll the registration back so a broken plugin is not offered
		_ = c.registry.Unregister(d.ID)
		return errors.NewRegistryError("plugin init failed", err).WithScheduler(d.Name)
	}

	c.mu.Lock()
	c.stats.Registrations++
	c.mu.Unlock()
	return nil
}

// Unregister removes a plugin. The active plugin cannot be removed.
func (c *Core) Unregister(id StrategyID) error {
	c.mu.Lock()
	if c.active != nil && c.active.ID() == id {
		c.mu.Unlock()
		return errors.NewRegistryError("cannot unregister the active scheduler", errors.ErrSchedulerActive).
			WithScheduler(id.String())
	}
	c.mu.Unlock()
	return c.registry.Unregister(id)
}

// Activate performs a cold activation of the given strategy. It is only
// valid when no scheduler is active; live replacement goes through the
// switch controller.
func (c *Core) Activate(id StrategyID) error {
	p, err := c.registry.Get(id)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != nil {
		return errors.NewRegistryError("a scheduler is already active", errors.ErrSchedulerActive).
			WithScheduler(c.active.Name())
	}
	if err := p.Start(); err != nil {
		return errors.NewRegistryError("plugin start failed", err).WithScheduler(p.Name())
	}

	c.active = p
	c.activatedAt = c.ctx.Clock.Micros()
	c.stats.Activations++
	c.log.Info("scheduler activated", "strategy", p.Name())
	return nil
}

// Adopt installs an already-started plugin as the active strategy. Used by
// the switch controller during the activation phase of a transaction; all
// validation and migration has happened by then.
func (c *Core) Adopt(p Plugin) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = p
	c.activatedAt = c.ctx.Clock.Micros()
	c.stats.Activations++
}

// Active returns the active plugin, or nil.
func (c *Core) Active() Plugin {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ActiveID returns the active strategy ID, or StrategyNone.
func (c *Core) ActiveID() StrategyID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return StrategyNone
	}
	return c.active.ID()
}

// ActivatedAt returns the microsecond timestamp of the last activation.
func (c *Core) ActivatedAt() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activatedAt
}

// Tick forwards a clock tick to the active plugin.
func (c *Core) Tick(now uint64) {
	c.mu.Lock()
	p := c.active
	c.stats.TicksHandled++
	c.mu.Unlock()

	if p != nil {
		p.Tick(now)
	}
}

// Shutdown stops the active plugin, if any.
func (c *Core) Shutdown() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil {
		return nil
	}
	if err := c.active.Stop(); err != nil {
		return err
	}
	c.log.Info("scheduler deactivated", "strategy", c.active.Name())
	c.active = nil
	return nil
}

// Stats returns a copy of the core counters.
func (c *Core) Stats() CoreStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
