package cli

import (
	"path/filepath"
	"strings"
)

// mimeByExtension maps a file extension (without the leading dot) to
// the content type the import tool passes to the input/bulk handler
// resolver, per §6's inference table.
var mimeByExtension = map[string]string{
	"trig": "application/trig",
	"nq":   "application/n-quads",
	"ttl":  "text/turtle",
	"rdf":  "application/rdf+xml",
	"nt":   "application/n-triples",
	"xml":  "text/xml",
	"html": "text/html",
	"json": "application/json",
	"txt":  "text/plain",
}

// inferMIME returns the content type for path's extension, or "" if the
// extension is unrecognised.
func inferMIME(path string) string {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	return mimeByExtension[strings.ToLower(ext)]
}
