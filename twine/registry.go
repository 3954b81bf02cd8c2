package twine

import (
	"strings"
	"sync"

	"twine.work/graph"
	"twine.work/twineerr"
)

// InputFunc parses a message body into one or more named graphs,
// typically driving them through the workflow pipeline itself.
type InputFunc func(ctx *Context, mime string, data []byte, subject string) error

// BulkFunc consumes a prefix of a growing byte buffer during bulk
// import. It returns the number of bytes consumed from the front of
// data; 0 means "need more data", and data may be empty exactly once,
// at end-of-stream, to let the handler finalise.
type BulkFunc func(ctx *Context, mime string, data []byte) (consumed int, err error)

// ProcessorFunc operates on a single graph as one stage of the pipeline.
type ProcessorFunc func(ctx *Context, g *graph.Graph) error

// UpdateFunc is invoked directly by the CLI's update mode with an
// operator-supplied identifier; there is no message and no ack/reject.
type UpdateFunc func(ctx *Context, name, identifier string) error

type inputEntry struct {
	owner       string
	mime        string
	description string
	fn          InputFunc
}

type bulkEntry struct {
	owner       string
	mime        string
	description string
	fn          BulkFunc
}

type processorEntry struct {
	owner string
	name  string
	fn    ProcessorFunc
}

type updateEntry struct {
	owner string
	name  string
	fn    UpdateFunc
}

// Registry is the typed handler table described by C3: four disjoint
// kinds (input, bulk, processor, update), each keyed and resolved
// independently. Mutated only during plug-in attach/detach (or via the
// internal flag for the workflow initialiser's own built-ins); read-only
// during dispatch.
type Registry struct {
	mu         sync.RWMutex
	inputs     []inputEntry
	bulks      []bulkEntry
	processors []processorEntry
	updates    []updateEntry

	attaching map[string]bool
}

// NewRegistry returns an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{attaching: make(map[string]bool)}
}

// InternalOwner is the owner token used by the workflow initialiser
// itself to register the built-in processors (sparql-get, sparql-put,
// s3-get, s3-put, dump-nquads, pre:cache-filter), the rulebase update
// handler and the core RDF input/bulk handlers, bypassing the attach-scope
// requirement placed on ordinary plug-ins.
const InternalOwner = "__internal__"

// BeginAttach opens a registration scope for owner; registration calls
// for this owner are rejected outside of a scope opened this way (or
// made under the internal owner token).
func (r *Registry) BeginAttach(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attaching[owner] = true
}

// EndAttach closes the registration scope for owner.
func (r *Registry) EndAttach(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attaching, owner)
}

func (r *Registry) canRegister(owner string) bool {
	if owner == InternalOwner {
		return true
	}
	return r.attaching[owner]
}

func normalizeMime(mime string) string {
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// RegisterInput registers an input handler for mime, owned by owner.
func (r *Registry) RegisterInput(owner, mime, description string, fn InputFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.canRegister(owner) {
		return twineerr.Newf(twineerr.BadConfig, "registry.RegisterInput", "owner %q attempted registration outside its attach scope", owner)
	}
	r.inputs = append(r.inputs, inputEntry{owner: owner, mime: normalizeMime(mime), description: description, fn: fn})
	return nil
}

// RegisterBulk registers a bulk handler for mime, owned by owner.
func (r *Registry) RegisterBulk(owner, mime, description string, fn BulkFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.canRegister(owner) {
		return twineerr.Newf(twineerr.BadConfig, "registry.RegisterBulk", "owner %q attempted registration outside its attach scope", owner)
	}
	r.bulks = append(r.bulks, bulkEntry{owner: owner, mime: normalizeMime(mime), description: description, fn: fn})
	return nil
}

// RegisterProcessor registers a named processor, owned by owner. The
// workflow initialiser uses the internal owner token for the built-ins.
func (r *Registry) RegisterProcessor(owner, name string, fn ProcessorFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.canRegister(owner) {
		return twineerr.Newf(twineerr.BadConfig, "registry.RegisterProcessor", "owner %q attempted registration outside its attach scope", owner)
	}
	r.processors = append(r.processors, processorEntry{owner: owner, name: strings.ToLower(name), fn: fn})
	return nil
}

// RegisterUpdate registers a named update handler, owned by owner.
func (r *Registry) RegisterUpdate(owner, name string, fn UpdateFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.canRegister(owner) {
		return twineerr.Newf(twineerr.BadConfig, "registry.RegisterUpdate", "owner %q attempted registration outside its attach scope", owner)
	}
	r.updates = append(r.updates, updateEntry{owner: owner, name: strings.ToLower(name), fn: fn})
	return nil
}

// InputExists reports whether any input handler is registered for mime.
func (r *Registry) InputExists(mime string) bool {
	_, ok := r.ResolveInput(mime)
	return ok
}

// ProcessorExists reports whether any processor is registered under name.
func (r *Registry) ProcessorExists(name string) bool {
	_, ok := r.ResolveProcessor(name)
	return ok
}

// ResolveInput returns the first registered input handler whose MIME
// matches, ignoring parameters and case.
func (r *Registry) ResolveInput(mime string) (InputFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := normalizeMime(mime)
	for _, e := range r.inputs {
		if e.mime == want {
			return e.fn, true
		}
	}
	return nil, false
}

// ResolveBulk returns the first registered bulk handler whose MIME matches.
func (r *Registry) ResolveBulk(mime string) (BulkFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := normalizeMime(mime)
	for _, e := range r.bulks {
		if e.mime == want {
			return e.fn, true
		}
	}
	return nil, false
}

// ResolveProcessor returns the first registered processor for name (case-insensitive).
func (r *Registry) ResolveProcessor(name string) (ProcessorFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := strings.ToLower(name)
	for _, e := range r.processors {
		if e.name == want {
			return e.fn, true
		}
	}
	return nil, false
}

// ResolveUpdate returns the first registered update handler for name.
func (r *Registry) ResolveUpdate(name string) (UpdateFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	want := strings.ToLower(name)
	for _, e := range r.updates {
		if e.name == want {
			return e.fn, true
		}
	}
	return nil, false
}

// ProcessorsWithPrefix returns, in registration order, the names of
// every processor whose name begins with prefix — the mechanism behind
// the pre/post pseudo-processors.
func (r *Registry) ProcessorsWithPrefix(prefix string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for _, e := range r.processors {
		if strings.HasPrefix(e.name, prefix) {
			names = append(names, e.name)
		}
	}
	return names
}

// Detach removes every entry owned by owner, in all four tables.
func (r *Registry) Detach(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inputs = filterOwner(r.inputs, owner, func(e inputEntry) string { return e.owner })
	r.bulks = filterOwner(r.bulks, owner, func(e bulkEntry) string { return e.owner })
	r.processors = filterOwner(r.processors, owner, func(e processorEntry) string { return e.owner })
	r.updates = filterOwner(r.updates, owner, func(e updateEntry) string { return e.owner })
	delete(r.attaching, owner)
}

func filterOwner[T any](entries []T, owner string, ownerOf func(T) string) []T {
	out := entries[:0:0]
	for _, e := range entries {
		if ownerOf(e) != owner {
			out = append(out, e)
		}
	}
	return out
}
