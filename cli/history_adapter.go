package cli

import (
	"context"

	"twine.work/dispatch"
	"twine.work/history"
)

// historySink adapts a *history.Sink to dispatch.HistoryRecorder: the
// two packages disagree on field names (dispatch.HistoryEntry has no
// Address, history.Outcome does) so the conversion lives here rather
// than forcing either package to know about the other's shape.
type historySink struct {
	sink *history.Sink
}

func (h historySink) Record(ctx context.Context, e dispatch.HistoryEntry) error {
	return h.sink.Record(ctx, history.Outcome{
		MIME:     e.MIME,
		Subject:  e.Subject,
		Outcome:  e.Outcome,
		Error:    e.Error,
		Duration: e.Duration,
	})
}
