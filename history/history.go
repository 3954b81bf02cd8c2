// Package history implements the optional CouchDB job-history sink
// named in the DOMAIN STACK: when configured, every dispatch outcome is
// written as a document alongside (not instead of) the structured log
// line dispatch already emits, giving operators an audit trail they can
// query with CouchDB's own tooling. Grounded on the reference
// codebase's db/couchdb.go kivik wiring (kivik.New("couch", url),
// client.DBExists, client.DB), trimmed from its full flow-process
// document store down to one write-only outcome sink.
package history

import (
	"context"
	"time"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
	"github.com/google/uuid"

	"twine.work/twineerr"
)

// Outcome is one recorded dispatch result: a graph (or bulk record)
// processed to either success or a terminal failure.
type Outcome struct {
	MIME     string    `json:"mime"`
	Subject  string    `json:"subject"`
	Address  string    `json:"address"`
	Outcome  string    `json:"outcome"`
	Error    string    `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Sink writes Outcomes to a CouchDB database, creating it on first use
// if absent.
type Sink struct {
	db *kivik.DB
}

// NewSink connects to url and ensures database exists, creating it if
// this is the first run against a fresh CouchDB instance.
func NewSink(ctx context.Context, url, database string) (*Sink, error) {
	client, err := kivik.New("couch", url)
	if err != nil {
		return nil, twineerr.New(twineerr.BadConfig, "history.NewSink", err)
	}
	exists, err := client.DBExists(ctx, database)
	if err != nil {
		return nil, twineerr.New(twineerr.UpstreamFailure, "history.NewSink", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, database); err != nil {
			return nil, twineerr.New(twineerr.UpstreamFailure, "history.NewSink", err)
		}
	}
	return &Sink{db: client.DB(database)}, nil
}

// Record writes one outcome document, keyed by a fresh UUID so
// concurrent writers never collide.
func (s *Sink) Record(ctx context.Context, o Outcome) error {
	if _, err := s.db.Put(ctx, uuid.NewString(), o); err != nil {
		return twineerr.New(twineerr.UpstreamFailure, "history.Record", err)
	}
	return nil
}
