// Command/plugin rdfplugin is the illustrative plug-in named in the
// reference codebase's plug-ins/ directory (Anansi, Geonames, RDF,
// XSLT): it exercises the loader's Attach/Detach contract end to end
// without pulling in any format-specific dependency the example pack
// doesn't already provide. Built with `go build -buildmode=plugin` into
// a .so named by its `<app>:plugin` config entry.
//
// It registers two things: an application/n-triples input handler that
// takes precedence over the core one (the loader attaches plug-ins
// before the core RDF handlers are registered, and ResolveInput returns
// the first match), and a pre:normalise-literals processor that trims
// leading/trailing whitespace from literal values. The pre stage runs
// its processors in registration order, so this one runs after
// pre:cache-filter, which the built-ins register before any plug-in is
// attached.
package main

import (
	"regexp"
	"strings"

	"github.com/knakk/rdf"

	"twine.work/graph"
	"twine.work/twine"
	"twine.work/twineerr"
	"twine.work/workflow"
)

// pluginOwner is this plug-in's registry owner token. The loader opens
// an attach scope keyed by the name its configuration assigns the
// plug-in (`<app>:plugin=rdfplugin`), so this must match that name
// exactly for any Register* call below to be accepted.
const pluginOwner = "rdfplugin"

// Attach is the symbol plugin.Loader looks up; called once within this
// plug-in's attach scope.
func Attach(ctx *twine.Context) error {
	registry := ctx.Registry()

	if err := registry.RegisterProcessor(pluginOwner, "pre:normalise-literals", normaliseLiterals()); err != nil {
		return err
	}

	names := workflow.ParsePipeline(ctx.Config().GetString("*", "workflow", ""))
	pipeline, err := workflow.Compile(registry, names)
	if err != nil {
		return err
	}
	return registry.RegisterInput(pluginOwner, "application/n-triples", "N-Triples (rdfplugin)", ntriplesInput(pipeline))
}

// Detach is optional cleanup; this plug-in holds no resources beyond
// its registry entries, which Registry.Detach already removes.
func Detach(ctx *twine.Context) error { return nil }

func ntriplesInput(pipeline *workflow.Pipeline) twine.InputFunc {
	return func(ctx *twine.Context, mime string, data []byte, subject string) error {
		triples, err := graph.ParseNTriples(data)
		if err != nil {
			return twineerr.New(twineerr.ParseFailure, "rdfplugin.ntriplesInput", err)
		}
		g, err := graph.New(subject)
		if err != nil {
			return err
		}
		g.Current = triples
		return pipeline.Run(ctx, g)
	}
}

// literalPattern matches the first quoted literal in a serialized
// N-Triples statement line, capturing its interior so whitespace can be
// trimmed without disturbing the surrounding language tag or datatype
// IRI suffix.
var literalPattern = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)

// normaliseLiterals trims leading/trailing whitespace from every
// literal object in a graph, illustrating a pre-stage processor a
// plug-in might contribute. It re-serializes and re-parses each
// trimmed triple through N-Triples rather than reaching into the RDF
// library's literal internals, the same round-trip graph.ParseNQuads
// already relies on for its own term reconstruction.
func normaliseLiterals() twine.ProcessorFunc {
	return func(ctx *twine.Context, g *graph.Graph) error {
		out := make([]rdf.Triple, 0, len(g.Current))
		for _, t := range g.Current {
			if t.Obj.Type() != rdf.TermLiteral {
				out = append(out, t)
				continue
			}
			line := t.Serialize(rdf.NTriples)
			trimmed := trimLiteralWhitespace(line)
			if trimmed == line {
				out = append(out, t)
				continue
			}
			reparsed, err := graph.ParseNTriples([]byte(trimmed))
			if err != nil || len(reparsed) != 1 {
				out = append(out, t)
				continue
			}
			out = append(out, reparsed[0])
		}
		g.Current = out
		return nil
	}
}

func trimLiteralWhitespace(line string) string {
	loc := literalPattern.FindStringSubmatchIndex(line)
	if loc == nil {
		return line
	}
	content := line[loc[2]:loc[3]]
	trimmed := strings.TrimSpace(content)
	if trimmed == content {
		return line
	}
	return line[:loc[2]] + trimmed + line[loc[3]:]
}
