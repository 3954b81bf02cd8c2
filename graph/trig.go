package graph

import (
	"fmt"
	"strings"

	"twine.work/twineerr"
)

// ParseTriG parses a (block-form) TriG document into the same
// graph-tagged triple slice ParseNQuads produces. knakk/rdf has no
// native TriG decoder, so this splits the document into
// `<graph-iri> { ... }` blocks by brace matching and runs the existing
// Turtle decoder over each block's interior; statements outside any
// block belong to the default graph (Graph == ""). This covers the
// common block-per-graph TriG shape; it does not implement TriG's full
// grammar (no nested graph blocks, no `GRAPH` keyword variant). Each
// block's interior is decoded on its own, so prefixes declared outside
// a block do not apply inside it.
func ParseTriG(data []byte) ([]NQuadLine, error) {
	text := string(data)
	var out []NQuadLine
	var defaultGraphStatements strings.Builder

	i := 0
	for i < len(text) {
		brace := strings.IndexByte(text[i:], '{')
		if brace < 0 {
			defaultGraphStatements.WriteString(text[i:])
			break
		}
		brace += i

		label := ""
		if fields := strings.Fields(text[i:brace]); len(fields) > 0 {
			label = fields[len(fields)-1]
		}
		defaultGraphStatements.WriteString(stripTrailingGraphLabel(text[i:brace], label))

		end, err := matchingBrace(text, brace)
		if err != nil {
			return nil, twineerr.New(twineerr.ParseFailure, "graph.ParseTriG", err)
		}
		block := text[brace+1 : end]

		triples, err := ParseTurtle([]byte(block))
		if err != nil {
			return nil, twineerr.New(twineerr.ParseFailure, "graph.ParseTriG", fmt.Errorf("graph block %q: %w", label, err))
		}
		graphURI := strings.Trim(strings.TrimPrefix(label, "GRAPH"), " <>")
		for _, t := range triples {
			out = append(out, NQuadLine{Triple: t, Graph: graphURI})
		}

		i = end + 1
	}

	if defaultGraphStatements.Len() > 0 {
		triples, err := ParseTurtle([]byte(defaultGraphStatements.String()))
		if err != nil {
			return nil, twineerr.New(twineerr.ParseFailure, "graph.ParseTriG", fmt.Errorf("default graph: %w", err))
		}
		for _, t := range triples {
			out = append(out, NQuadLine{Triple: t, Graph: ""})
		}
	}

	return out, nil
}

// stripTrailingGraphLabel returns everything in s except a trailing
// graph-name token (the part matched as label before an opening brace),
// so prefix declarations preceding a graph block are still fed to the
// default-graph parse.
func stripTrailingGraphLabel(s, label string) string {
	if label == "" {
		return s
	}
	idx := strings.LastIndex(s, label)
	if idx < 0 {
		return s
	}
	return s[:idx]
}

// matchingBrace returns the index of the '}' matching the '{' at open,
// tracking nested braces and skipping brace characters inside quoted
// string literals.
func matchingBrace(s string, open int) (int, error) {
	depth := 0
	inLiteral := false
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' && (i == 0 || s[i-1] != '\\'):
			inLiteral = !inLiteral
		case inLiteral:
			continue
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unterminated graph block starting at offset %d", open)
}
