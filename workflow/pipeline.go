// Package workflow implements the processor pipeline (C5): a configured
// ordered list of processor names run against a graph, plus the
// built-in processors (sparql-get, sparql-put, s3-get, s3-put,
// dump-nquads, pre, post) that make the pipeline useful without any
// plug-in at all. Grounded on the reference codebase's workflow package
// (an ordered action-graph executor) for the "run named steps in order,
// abort on first failure" shape, retargeted from a JSON-LD action graph
// onto a flat processor-name list per §4.3.
package workflow

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knakk/rdf"

	"twine.work/cachepred"
	"twine.work/common"
	"twine.work/dispatch"
	"twine.work/graph"
	"twine.work/index"
	"twine.work/storage"
	"twine.work/twine"
	"twine.work/twineerr"
)

// DefaultPipeline is used when configuration yields an empty processor list.
var DefaultPipeline = []string{"sparql-get", "pre", "sparql-put", "post"}

// ParsePipeline splits a comma- or whitespace-separated processor list,
// skipping empty elements, and falls back to DefaultPipeline if the
// result is empty.
func ParsePipeline(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	var names []string
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f != "" {
			names = append(names, strings.ToLower(f))
		}
	}
	if len(names) == 0 {
		return append([]string(nil), DefaultPipeline...)
	}
	return names
}

// Pipeline is a resolved, ready-to-run ordered sequence of processors.
// Resolving every name up front means an unknown processor name fails
// at configuration time, not per message, per §4.3 step 1.
type Pipeline struct {
	names []string
	fns   []twine.ProcessorFunc
}

// Compile resolves every name in names against registry, failing fast
// on the first that isn't registered. "pre" and "post" resolve to
// synthetic fan-out stages (see fanOutStage below) rather than a
// registry lookup, since they are pseudo-processors.
func Compile(registry *twine.Registry, names []string) (*Pipeline, error) {
	p := &Pipeline{names: names}
	for _, name := range names {
		switch name {
		case "pre":
			p.fns = append(p.fns, fanOutStage(registry, "pre:"))
		case "post":
			p.fns = append(p.fns, fanOutStage(registry, "post:"))
		default:
			fn, ok := registry.ResolveProcessor(name)
			if !ok {
				return nil, twineerr.Newf(twineerr.BadConfig, "workflow.Compile", "unknown processor %q in pipeline", name)
			}
			p.fns = append(p.fns, fn)
		}
	}
	return p, nil
}

// fanOutStage builds the pre/post pseudo-processor: every processor
// whose name starts with prefix, invoked in registration order: first
// failure aborts (same contract as the outer pipeline).
func fanOutStage(registry *twine.Registry, prefix string) twine.ProcessorFunc {
	return func(ctx *twine.Context, g *graph.Graph) error {
		for _, name := range registry.ProcessorsWithPrefix(prefix) {
			fn, ok := registry.ResolveProcessor(name)
			if !ok {
				continue
			}
			if err := fn(ctx, g); err != nil {
				return twineerr.Newf(twineerr.Unknown, "workflow.fanOut", "%s: %v", name, err)
			}
		}
		return nil
	}
}

// Run executes every stage against g in order; on the first non-nil
// error it aborts and returns that error, wrapped with the stage name
// and keeping its twineerr kind, without attempting to undo any earlier
// stage's side effects, per §4.3 step 2.
func (p *Pipeline) Run(ctx *twine.Context, g *graph.Graph) error {
	for i, fn := range p.fns {
		if err := fn(ctx, g); err != nil {
			return twineerr.New(twineerr.KindOf(err), "workflow.Run", fmt.Errorf("stage %q: %w", p.names[i], err))
		}
	}
	return nil
}

// Names returns the resolved, ordered stage names (useful for logging).
func (p *Pipeline) Names() []string { return append([]string(nil), p.names...) }

// ProcessRDF is the legacy "hand me an already-typed RDF buffer, skip
// handler resolution" entry point: a caller that already knows its MIME
// type (a bulk tool, say) can drive a document through the pipeline
// directly instead of going through a registered input handler, for one
// of the core RDF formats RegisterRDFHandlers also wires into the
// registry. subject is used exactly as an input handler would use it:
// the graph URI for single-graph formats, or the default-graph URI for
// documents with no explicit fourth term/enclosing block.
func (p *Pipeline) ProcessRDF(ctx *twine.Context, mime string, data []byte, subject string) error {
	switch mime {
	case "application/n-triples":
		return single(p, graph.ParseNTriples)(ctx, mime, data, subject)
	case "text/turtle":
		return single(p, graph.ParseTurtle)(ctx, mime, data, subject)
	case "application/n-quads":
		return quadInput(p, graph.ParseNQuads)(ctx, mime, data, subject)
	case "application/trig":
		return quadInput(p, graph.ParseTriG)(ctx, mime, data, subject)
	default:
		return twineerr.Newf(twineerr.BadConfig, "workflow.ProcessRDF", "unsupported content type %q for ProcessRDF", mime)
	}
}

// ProcessStream is ProcessRDF's streaming counterpart, for a bulk tool
// that already knows its MIME type and wants to drive a large document
// through the pipeline a line at a time rather than reading it whole
// into memory: it drives one of the two core bulk handlers directly
// via dispatch.RunBulk's growing-buffer contract, bypassing registry
// resolution exactly as ProcessRDF does for the whole-document formats.
func (p *Pipeline) ProcessStream(ctx *twine.Context, mime string, r io.Reader) error {
	var fn twine.BulkFunc
	switch mime {
	case "application/n-triples":
		fn = lineBulk(p, graph.ParseNTriples)
	case "application/n-quads":
		fn = lineQuadBulk(p)
	default:
		return twineerr.Newf(twineerr.BadConfig, "workflow.ProcessStream", "unsupported content type %q for ProcessStream", mime)
	}
	return dispatch.RunBulkWith(ctx, mime, r, fn)
}

// Builtins bundles the external collaborators the built-in processors
// round-trip a graph through.
type Builtins struct {
	SPARQL *storage.SPARQLClient
	Store  *storage.ObjectStore
	Index  *index.Writer

	// CachePred is the cached-predicates set the pre:cache-filter stage
	// consults; nil disables that stage (every triple passes through).
	CachePred *cachepred.Set
	// RulebasePath is the on-disk rulebase file `pre:cache-filter` was
	// seeded from, if any; the "rulebase" update handler reloads this
	// path when the operator-supplied identifier is empty.
	RulebasePath string
}

// RegisterBuiltins registers sparql-get, sparql-put, s3-get, s3-put,
// dump-nquads, pre:cache-filter, and the "rulebase" update handler under
// the internal owner token, so the workflow initialiser (not a plug-in)
// owns them and they survive any plug-in's Detach.
func RegisterBuiltins(registry *twine.Registry, b Builtins) error {
	registry.BeginAttach(twine.InternalOwner)
	defer registry.EndAttach(twine.InternalOwner)

	if err := registry.RegisterProcessor(twine.InternalOwner, "sparql-get", sparqlGet(b.SPARQL)); err != nil {
		return err
	}
	if err := registry.RegisterProcessor(twine.InternalOwner, "sparql-put", sparqlPut(b.SPARQL)); err != nil {
		return err
	}
	if err := registry.RegisterProcessor(twine.InternalOwner, "s3-get", s3Get(b.Store)); err != nil {
		return err
	}
	if err := registry.RegisterProcessor(twine.InternalOwner, "s3-put", s3Put(b.Store, b.Index)); err != nil {
		return err
	}
	if err := registry.RegisterProcessor(twine.InternalOwner, "dump-nquads", dumpNQuads()); err != nil {
		return err
	}
	if b.CachePred != nil {
		if err := registry.RegisterProcessor(twine.InternalOwner, "pre:cache-filter", cacheFilter(b.CachePred)); err != nil {
			return err
		}
		if err := registry.RegisterUpdate(twine.InternalOwner, "rulebase", rulebaseUpdate(b.CachePred, b.RulebasePath)); err != nil {
			return err
		}
	}
	return nil
}

// cacheFilter strips every triple whose predicate the cached-predicates
// set doesn't allow through, implementing the pre-filter stage §3's
// "cached predicates set" describes. Registered under the "pre:" prefix
// so Compile's fan-out stage runs it automatically wherever "pre"
// appears in a configured pipeline.
func cacheFilter(set *cachepred.Set) twine.ProcessorFunc {
	return func(ctx *twine.Context, g *graph.Graph) error {
		out := make([]rdf.Triple, 0, len(g.Current))
		for _, t := range g.Current {
			pred, ok := t.Pred.(rdf.IRI)
			if ok && !set.Allows(pred.String()) {
				continue
			}
			out = append(out, t)
		}
		g.Current = out
		return nil
	}
}

// rulebaseUpdate reloads the cached-predicates rulebase file, merging
// any newly-listed predicates into set. The CLI's update mode passes
// the operator-supplied identifier as path; an empty identifier reloads
// defaultPath, the file the set was originally seeded from.
func rulebaseUpdate(set *cachepred.Set, defaultPath string) twine.UpdateFunc {
	return func(ctx *twine.Context, name, identifier string) error {
		path := identifier
		if path == "" {
			path = defaultPath
		}
		if path == "" {
			return twineerr.New(twineerr.BadConfig, "workflow.rulebaseUpdate", fmt.Errorf("no rulebase file configured; pass one as the update identifier or set *:rulebase"))
		}
		return set.LoadFile(path)
	}
}

func sparqlGet(client *storage.SPARQLClient) twine.ProcessorFunc {
	return func(ctx *twine.Context, g *graph.Graph) error {
		body, ok, err := client.GetGraph(g.URI())
		if err != nil {
			return err
		}
		if !ok {
			g.Prior = nil
			return nil
		}
		triples, err := graph.ParseNTriples(body)
		if err != nil {
			return err
		}
		g.Prior = triples
		return nil
	}
}

func sparqlPut(client *storage.SPARQLClient) twine.ProcessorFunc {
	return func(ctx *twine.Context, g *graph.Graph) error {
		body := graph.SerializeNTriples(g.Current)
		return client.PutGraph(g.URI(), body, "text/turtle")
	}
}

func s3Get(store *storage.ObjectStore) twine.ProcessorFunc {
	return func(ctx *twine.Context, g *graph.Graph) error {
		data, ok, err := store.Get(context.Background(), g.URI())
		if err != nil {
			return err
		}
		if !ok {
			g.Prior = nil
			return nil
		}
		triples, err := graph.ParseNTriples(data)
		if err != nil {
			return err
		}
		g.Prior = triples
		return nil
	}
}

func s3Put(store *storage.ObjectStore, idx *index.Writer) twine.ProcessorFunc {
	return func(ctx *twine.Context, g *graph.Graph) error {
		body := graph.SerializeNTriples(g.Current)
		if err := store.Put(context.Background(), g.URI(), body, "application/n-triples"); err != nil {
			return err
		}
		if idx == nil {
			return nil
		}
		if err := idx.Rebuild(g); err != nil {
			return err
		}
		return nil
	}
}

func dumpNQuads() twine.ProcessorFunc {
	return func(ctx *twine.Context, g *graph.Graph) error {
		data := graph.SerializeNQuads(g.URI(), g.Current)
		if _, err := fmt.Fprint(os.Stdout, string(data)); err != nil {
			return err
		}
		common.Logger.WithField("graph", g.URI()).Debug("dumped n-quads")
		return nil
	}
}
