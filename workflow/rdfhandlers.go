package workflow

import (
	"strings"

	"github.com/knakk/rdf"

	"twine.work/graph"
	"twine.work/twine"
	"twine.work/twineerr"
)

// RegisterRDFHandlers registers the core input handlers that turn a raw
// RDF document into one or more graphs and run pipeline over each,
// and bulk handlers that do the same line-at-a-time for n-triples/
// n-quads. These are core, not plug-in, handlers: every deployment
// needs at least one way to get a document into the pipeline, the same
// way the reference codebase's own n-triples/n-quads/turtle readers
// ship with the library rather than as a loadable module. A plug-in
// may still register additional formats (or override these, since
// ResolveInput takes the first match registered).
func RegisterRDFHandlers(registry *twine.Registry, pipeline *Pipeline) error {
	registry.BeginAttach(twine.InternalOwner)
	defer registry.EndAttach(twine.InternalOwner)

	if err := registry.RegisterInput(twine.InternalOwner, "application/n-triples", "N-Triples", single(pipeline, graph.ParseNTriples)); err != nil {
		return err
	}
	if err := registry.RegisterInput(twine.InternalOwner, "text/turtle", "Turtle", single(pipeline, graph.ParseTurtle)); err != nil {
		return err
	}
	if err := registry.RegisterInput(twine.InternalOwner, "application/n-quads", "N-Quads", quadInput(pipeline, graph.ParseNQuads)); err != nil {
		return err
	}
	if err := registry.RegisterInput(twine.InternalOwner, "application/trig", "TriG", quadInput(pipeline, graph.ParseTriG)); err != nil {
		return err
	}

	if err := registry.RegisterBulk(twine.InternalOwner, "application/n-triples", "N-Triples, one statement per line", lineBulk(pipeline, graph.ParseNTriples)); err != nil {
		return err
	}
	if err := registry.RegisterBulk(twine.InternalOwner, "application/n-quads", "N-Quads, one statement per line", lineQuadBulk(pipeline)); err != nil {
		return err
	}
	return nil
}

// single builds the single-graph input handler shared by N-Triples and
// Turtle: the whole document becomes one graph named by the message's
// subject.
func single(pipeline *Pipeline, parse func([]byte) ([]rdf.Triple, error)) twine.InputFunc {
	return func(ctx *twine.Context, mime string, data []byte, subject string) error {
		triples, err := parse(data)
		if err != nil {
			return twineerr.New(twineerr.ParseFailure, "workflow.single", err)
		}
		g, err := graph.New(subject)
		if err != nil {
			return err
		}
		g.Current = triples
		return pipeline.Run(ctx, g)
	}
}

// quadInput handles a multi-graph document (N-Quads or TriG): statements
// are grouped by graph URI and the pipeline runs once per distinct
// graph, in the order each graph first appears, per the "two graphs,
// two pipeline runs in document order" requirement. subject is used as
// the graph URI for any statement in the document's default graph (no
// fourth term/no enclosing block).
func quadInput(pipeline *Pipeline, parse func([]byte) ([]graph.NQuadLine, error)) twine.InputFunc {
	return func(ctx *twine.Context, mime string, data []byte, subject string) error {
		lines, err := parse(data)
		if err != nil {
			return twineerr.New(twineerr.ParseFailure, "workflow.quadInput", err)
		}
		order, byGraph := groupByGraph(lines, subject)
		for _, uri := range order {
			g, err := graph.New(uri)
			if err != nil {
				return err
			}
			g.Current = byGraph[uri]
			if err := pipeline.Run(ctx, g); err != nil {
				return err
			}
		}
		return nil
	}
}

func groupByGraph(lines []graph.NQuadLine, defaultSubject string) ([]string, map[string][]rdf.Triple) {
	order := make([]string, 0, 4)
	byGraph := make(map[string][]rdf.Triple)
	for _, line := range lines {
		uri := line.Graph
		if uri == "" {
			uri = defaultSubject
		}
		if _, seen := byGraph[uri]; !seen {
			order = append(order, uri)
		}
		byGraph[uri] = append(byGraph[uri], line.Triple)
	}
	return order, byGraph
}

// lineBulk adapts a whole-document parser to the bulk contract by
// feeding it one line at a time: each line is a complete N-Triples
// statement. There's no per-line subject, so every statement
// bulk-imported this way accumulates into one graph, flushed at end of
// stream. The accumulator lives in the closure, so this assumes one
// bulk import per process lifetime (true for the import tool, which
// exits after each file); a long-lived process reusing this handler
// across two bulk imports would see the first import's statements leak
// into the second.
func lineBulk(pipeline *Pipeline, parse func([]byte) ([]rdf.Triple, error)) twine.BulkFunc {
	var current *graph.Graph
	return func(ctx *twine.Context, mime string, data []byte) (int, error) {
		if current == nil {
			g, err := graph.New("bulk:" + mime)
			if err != nil {
				return 0, err
			}
			current = g
		}
		if len(data) == 0 {
			return 0, pipeline.Run(ctx, current)
		}
		idx := indexNewline(data)
		if idx < 0 {
			return 0, nil
		}
		triples, err := parse(data[:idx])
		if err != nil {
			return 0, err
		}
		current.Current = append(current.Current, triples...)
		return idx + 1, nil
	}
}

// lineQuadBulk is lineBulk's N-Quads counterpart: each line carries its
// own graph URI, so statements are bucketed per graph as they stream in
// and every bucket's pipeline run happens at the final (zero-length)
// finalising call, in first-seen order. Same one-import-per-process
// assumption as lineBulk.
func lineQuadBulk(pipeline *Pipeline) twine.BulkFunc {
	order := make([]string, 0, 4)
	byGraph := make(map[string][]rdf.Triple)
	return func(ctx *twine.Context, mime string, data []byte) (int, error) {
		if len(data) == 0 {
			for _, uri := range order {
				g, err := graph.New(uri)
				if err != nil {
					return 0, err
				}
				g.Current = byGraph[uri]
				if err := pipeline.Run(ctx, g); err != nil {
					return 0, err
				}
			}
			return 0, nil
		}
		idx := indexNewline(data)
		if idx < 0 {
			return 0, nil
		}
		lines, err := graph.ParseNQuads(data[:idx])
		if err != nil {
			return 0, err
		}
		for _, line := range lines {
			uri := line.Graph
			if uri == "" {
				uri = "bulk:application/n-quads"
			}
			if _, seen := byGraph[uri]; !seen {
				order = append(order, uri)
			}
			byGraph[uri] = append(byGraph[uri], line.Triple)
		}
		return idx + 1, nil
	}
}

func indexNewline(data []byte) int {
	return strings.IndexByte(string(data), '\n')
}
