// Package storage implements the external HTTP collaborators the
// workflow engine's built-in processors round-trip graphs through: the
// SPARQL 1.1 graph-store endpoint and an S3-compatible object store.
// Grounded on the reference codebase's GraphDB HTTP client
// (db/graphdb.go), adapted from file-export/import flows to direct
// byte-buffer get/put against the Twine graph-store contract.
package storage

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"twine.work/twineerr"
)

// SPARQLConfig names the three independently-configurable endpoints
// §6 requires: query, update, and graph-store (RESTful data).
type SPARQLConfig struct {
	QueryEndpoint  string
	UpdateEndpoint string
	DataEndpoint   string
	Username       string
	Password       string
	Timeout        time.Duration
}

// SPARQLClient is the consumed SPARQL HTTP interface: graph-store
// GET/PUT plus a raw SELECT passthrough for callers that need bindings
// rather than a triple document.
type SPARQLClient struct {
	cfg    SPARQLConfig
	client *http.Client
}

// NewSPARQLClient builds a client over cfg; a zero Timeout defaults to 30s.
func NewSPARQLClient(cfg SPARQLConfig) *SPARQLClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SPARQLClient{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (c *SPARQLClient) authenticate(req *http.Request) {
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}
}

// GetGraph fetches every triple in the named graph from the RESTful
// graph-store endpoint as N-Triples. This is semantically equivalent to
// `SELECT * WHERE { GRAPH <uri> { ?s ?p ?o } }` without requiring a
// SPARQL-results-JSON binding parser: the graph-store GET returns the
// same triple set as a document. A missing graph (404) is reported via
// ok=false rather than an error, so sparql-get can treat it as "empty
// prior" per §4.3's "never fails on empty graph" contract.
func (c *SPARQLClient) GetGraph(graphURI string) (body []byte, ok bool, err error) {
	endpoint := fmt.Sprintf("%s?graph=%s", c.cfg.DataEndpoint, url.QueryEscape(graphURI))
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, twineerr.New(twineerr.UpstreamFailure, "sparql.GetGraph", err)
	}
	req.Header.Set("Accept", "application/n-triples")
	c.authenticate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, false, twineerr.New(twineerr.UpstreamFailure, "sparql.GetGraph", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false, twineerr.Newf(twineerr.UpstreamFailure, "sparql.GetGraph", "unexpected status %d fetching graph %s", resp.StatusCode, graphURI)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, twineerr.New(twineerr.UpstreamFailure, "sparql.GetGraph", err)
	}
	return data, true, nil
}

// PutGraph replaces the named graph's content with body (N-Triples or
// Turtle) via the graph-store PUT contract: `PUT <data>?graph=<uri>`.
// Any non-2xx response is a failure, a deliberate tightening of the
// fire-and-forget behaviour some ported code paths used to have, which
// discarded the HTTP status entirely.
func (c *SPARQLClient) PutGraph(graphURI string, body []byte, contentType string) error {
	endpoint := fmt.Sprintf("%s?graph=%s", c.cfg.DataEndpoint, url.QueryEscape(graphURI))
	req, err := http.NewRequest(http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return twineerr.New(twineerr.UpstreamFailure, "sparql.PutGraph", err)
	}
	req.Header.Set("Content-Type", contentType)
	c.authenticate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return twineerr.New(twineerr.UpstreamFailure, "sparql.PutGraph", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return twineerr.Newf(twineerr.UpstreamFailure, "sparql.PutGraph", "unexpected status %d putting graph %s", resp.StatusCode, graphURI)
	}
	return nil
}

// Query issues a raw SPARQL 1.1 query against the query endpoint and
// returns the response body unparsed, for callers that need direct
// access to SPARQL-results-JSON or similar.
func (c *SPARQLClient) Query(query string) ([]byte, error) {
	form := url.Values{"query": {query}}
	req, err := http.NewRequest(http.MethodPost, c.cfg.QueryEndpoint, bytes.NewReader([]byte(form.Encode())))
	if err != nil {
		return nil, twineerr.New(twineerr.UpstreamFailure, "sparql.Query", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")
	c.authenticate(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, twineerr.New(twineerr.UpstreamFailure, "sparql.Query", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, twineerr.Newf(twineerr.UpstreamFailure, "sparql.Query", "unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
