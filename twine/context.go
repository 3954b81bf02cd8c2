// Package twine holds the process-wide execution state (C2) and the
// handler registry (C3) in one package: handler function types take a
// *Context parameter, and Context holds a *Registry, so splitting them
// would create an import cycle. This mirrors the single C library
// (libtwine) the reference implementation groups both concerns into.
package twine

import (
	"sync"
	"sync/atomic"

	"twine.work/common"
	"twine.work/config"
)

// Assignment is a cluster shard assignment: this node is worker Index
// of Total, a partition of a named workload (GLOSSARY: "Cluster assignment").
type Assignment struct {
	Index int
	Total int
}

// ClusterHandle is the contract Context needs from a coordinator (C8):
// the current assignment, and a channel that receives a new one
// whenever membership changes. Implemented by package cluster; defined
// here (rather than imported) so twine never depends on cluster.
type ClusterHandle interface {
	Assignment() Assignment
	Changes() <-chan Assignment
}

// staticCluster is the zero-value ClusterHandle: a single unpartitioned
// worker. Used when no coordinator has been installed.
type staticCluster struct{}

func (staticCluster) Assignment() Assignment   { return Assignment{Index: 0, Total: 1} }
func (staticCluster) Changes() <-chan Assignment { return nil }

// World is the RDF world handle Context exposes to handlers. knakk/rdf
// is stateless (no shared parser/namespace table to own), so World
// carries no fields; it exists so call sites have a stable "RDF world
// handle" to reach through, and so a future stateful RDF library could
// be substituted without changing Context's shape.
type World struct{}

// Context owns every long-lived resource: logger, config accessor,
// RDF world, SPARQL/S3/SQL handles, the plug-in registry, the cluster
// handle, and the currently-executing job. Contexts may be nested —
// WithJob returns a child that shares everything except the active
// job, so a bulk-import CLI can scope per-record logging without
// disturbing the parent.
type Context struct {
	parent   *Context
	logger   *common.ContextLogger
	config   *config.Accessor
	registry *Registry
	world    World
	cluster  ClusterHandle
	job      *Job

	shuttingDown atomic.Bool

	mu             sync.Mutex
	attachedOwners []string
}

// New creates the root Context. cluster may be nil, in which case a
// single-worker static assignment is reported.
func New(cfg *config.Accessor, registry *Registry, cluster ClusterHandle) *Context {
	if cluster == nil {
		cluster = staticCluster{}
	}
	return &Context{
		logger:   common.NewContextLogger(nil, nil),
		config:   cfg,
		registry: registry,
		cluster:  cluster,
	}
}

// Logger returns the leveled, variadic logging contract (§4.1).
func (c *Context) Logger() *common.ContextLogger {
	if c.job != nil {
		return c.job.Logger()
	}
	return c.logger
}

// Config returns the config-get contract: string/int/bool/enumerate-all.
func (c *Context) Config() *config.Accessor { return c.config }

// Registry returns the handler registry.
func (c *Context) Registry() *Registry { return c.registry }

// World returns the RDF world handle.
func (c *Context) World() World { return c.world }

// Cluster returns this context's cluster handle.
func (c *Context) Cluster() ClusterHandle { return c.cluster }

// Job returns the currently-executing job, or nil outside of dispatch.
func (c *Context) Job() *Job { return c.job }

// WithJob returns a child context scoped to job; everything else
// (config, registry, cluster, world) is shared with the parent. The
// child is "current" for the duration of the call that holds it; it
// is never stored back onto the parent.
func (c *Context) WithJob(job *Job) *Context {
	return &Context{
		parent:   c,
		logger:   c.logger,
		config:   c.config,
		registry: c.registry,
		world:    c.world,
		cluster:  c.cluster,
		job:      job,
	}
}

// Parent returns the context this one was nested from, or nil at the root.
func (c *Context) Parent() *Context { return c.parent }

// RequestShutdown flags the context as shutting down; the dispatch loop
// observes this at message boundaries and stops pulling new work.
func (c *Context) RequestShutdown() { c.shuttingDown.Store(true) }

// ShuttingDown reports whether RequestShutdown has been called on this
// context or any ancestor.
func (c *Context) ShuttingDown() bool {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if ctx.shuttingDown.Load() {
			return true
		}
	}
	return false
}

// RecordAttach notes that owner successfully attached, so Detach can
// later unwind every owner in reverse registration order.
func (c *Context) RecordAttach(owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attachedOwners = append(c.attachedOwners, owner)
}

// DetachAll detaches every recorded owner in reverse registration
// order, as required when the context is destroyed at process exit.
func (c *Context) DetachAll() {
	c.mu.Lock()
	owners := append([]string(nil), c.attachedOwners...)
	c.attachedOwners = nil
	c.mu.Unlock()

	for i := len(owners) - 1; i >= 0; i-- {
		c.registry.Detach(owners[i])
	}
}
