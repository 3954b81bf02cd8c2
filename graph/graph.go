// Package graph implements the Graph value (C1): an immutable handle on
// a named RDF graph carrying its current (desired post-processing) and
// prior (as last stored) triple sets, plus the RDF parse/serialise
// wrappers kept as thin shims over an external RDF library — here
// github.com/knakk/rdf for term types and Turtle/N-Triples decoding.
package graph

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/knakk/rdf"

	"twine.work/twineerr"
)

// Graph is the immutable-URI handle described by C1. Current may only be
// mutated by processors earlier in the same pipeline run; Prior is
// populated by the sparql-get/s3-get stages and is otherwise nil.
type Graph struct {
	uri     string
	Current []rdf.Triple
	Prior   []rdf.Triple
}

// New creates an empty graph for uri, which must be a non-empty absolute IRI.
func New(uri string) (*Graph, error) {
	if uri == "" {
		return nil, twineerr.New(twineerr.ParseFailure, "graph.New", fmt.Errorf("empty graph uri"))
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" {
		return nil, twineerr.Newf(twineerr.ParseFailure, "graph.New", "graph uri %q is not an absolute IRI", uri)
	}
	return &Graph{uri: uri}, nil
}

// URI returns the graph's identifying IRI; it never changes over the
// graph's lifetime.
func (g *Graph) URI() string { return g.uri }

// Subjects returns the sorted, deduplicated set of IRI subjects
// appearing in Current. Blank nodes are skipped, per §4.7.
func (g *Graph) Subjects() []string { return iriTerms(g.Current, func(t rdf.Triple) rdf.Term { return t.Subj }) }

// Objects returns the sorted, deduplicated set of IRI objects appearing
// in Current. Blank nodes and literals are skipped, per §4.7.
func (g *Graph) Objects() []string { return iriTerms(g.Current, func(t rdf.Triple) rdf.Term { return t.Obj }) }

func iriTerms(triples []rdf.Triple, pick func(rdf.Triple) rdf.Term) []string {
	seen := make(map[string]struct{})
	for _, t := range triples {
		term := pick(t)
		if iri, ok := term.(rdf.IRI); ok {
			seen[iri.String()] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Isomorphic reports whether two triple sets hold the same triples,
// ignoring order. Twine's own blank nodes are never round-tripped through
// a textual form without their identity already being part of the
// subject/object IRIs that matter to indexing, so this implementation
// treats blank node labels as significant; it is exact (not merely
// isomorphic-up-to-renaming) for the triple sets this engine produces,
// which is sufficient for the round-trip property in §8.
func Isomorphic(a, b []rdf.Triple) bool {
	if len(a) != len(b) {
		return false
	}
	as := triplesToStrings(a)
	bs := triplesToStrings(b)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func triplesToStrings(triples []rdf.Triple) []string {
	out := make([]string, len(triples))
	for i, t := range triples {
		out[i] = t.Serialize(rdf.NTriples)
	}
	return out
}

// ParseNTriples parses an N-Triples document into a triple slice.
func ParseNTriples(data []byte) ([]rdf.Triple, error) {
	dec := rdf.NewTripleDecoder(bytes.NewReader(data), rdf.NTriples)
	return decodeAll(dec)
}

// ParseTurtle parses a Turtle document into a triple slice.
func ParseTurtle(data []byte) ([]rdf.Triple, error) {
	dec := rdf.NewTripleDecoder(bytes.NewReader(data), rdf.Turtle)
	return decodeAll(dec)
}

func decodeAll(dec *rdf.TripleDecoder) ([]rdf.Triple, error) {
	var triples []rdf.Triple
	for {
		t, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, twineerr.New(twineerr.ParseFailure, "graph.Parse", err)
		}
		triples = append(triples, t)
	}
	return triples, nil
}

// SerializeNTriples renders triples as an N-Triples document, one
// statement per line, terminated with " .\n" per statement.
func SerializeNTriples(triples []rdf.Triple) []byte {
	var buf bytes.Buffer
	for _, t := range triples {
		buf.WriteString(t.Serialize(rdf.NTriples))
	}
	return buf.Bytes()
}

// NQuadLine is one decoded line of an N-Quads document: a triple plus
// the graph IRI it belongs to.
type NQuadLine struct {
	Triple rdf.Triple
	Graph  string
}

// ParseNQuads parses an N-Quads document into its statements, in
// document order, each tagged with its trailing graph term (empty when
// the statement has none); it does not group them. N-Quads is N-Triples plus an optional fourth
// term; each line is decoded as a triple via the N-Triples grammar after
// the graph term is split off.
func ParseNQuads(data []byte) ([]NQuadLine, error) {
	var out []NQuadLine
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		triple, graphURI, err := parseQuadLine(line)
		if err != nil {
			return nil, twineerr.New(twineerr.ParseFailure, "graph.ParseNQuads", err)
		}
		out = append(out, NQuadLine{Triple: triple, Graph: graphURI})
	}
	if err := scanner.Err(); err != nil {
		return nil, twineerr.New(twineerr.ParseFailure, "graph.ParseNQuads", err)
	}
	return out, nil
}

// parseQuadLine splits the trailing graph term (if any) off a single
// N-Quads statement and decodes the remaining subject/predicate/object
// as a single N-Triples statement via the external decoder.
func parseQuadLine(line string) (rdf.Triple, string, error) {
	trimmed := strings.TrimSuffix(strings.TrimSpace(line), ".")
	trimmed = strings.TrimSpace(trimmed)
	terms := splitTerms(trimmed)
	if len(terms) < 3 {
		return rdf.Triple{}, "", fmt.Errorf("malformed n-quads statement: %q", line)
	}
	tripleLine := strings.Join(terms[:3], " ") + " .\n"
	dec := rdf.NewTripleDecoder(strings.NewReader(tripleLine), rdf.NTriples)
	triple, err := dec.Decode()
	if err != nil {
		return rdf.Triple{}, "", err
	}
	graphURI := ""
	if len(terms) >= 4 {
		graphURI = strings.Trim(terms[3], "<>")
	}
	return triple, graphURI, nil
}

// splitTerms tokenises an N-Triples/N-Quads statement body on whitespace
// outside of quoted literals and IRI brackets.
func splitTerms(s string) []string {
	var terms []string
	var cur strings.Builder
	depth := 0
	inLiteral := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && (i == 0 || s[i-1] != '\\'):
			inLiteral = !inLiteral
			cur.WriteByte(c)
		case c == '<' && !inLiteral:
			depth++
			cur.WriteByte(c)
		case c == '>' && !inLiteral:
			depth--
			cur.WriteByte(c)
		case c == ' ' && !inLiteral && depth == 0:
			if cur.Len() > 0 {
				terms = append(terms, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteByte(c)
		}
	}
	if cur.Len() > 0 {
		terms = append(terms, cur.String())
	}
	return terms
}

// SerializeNQuads renders triples under a single graph URI as N-Quads.
func SerializeNQuads(graphURI string, triples []rdf.Triple) []byte {
	var buf bytes.Buffer
	for _, t := range triples {
		line := strings.TrimSuffix(t.Serialize(rdf.NTriples), "\n")
		line = strings.TrimSuffix(line, " .")
		fmt.Fprintf(&buf, "%s <%s> .\n", line, graphURI)
	}
	return buf.Bytes()
}
