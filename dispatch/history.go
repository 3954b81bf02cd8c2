package dispatch

import (
	"context"
	"time"
)

// HistoryEntry is one recorded dispatch outcome, independent of any
// particular sink implementation.
type HistoryEntry struct {
	MIME     string
	Subject  string
	Outcome  string // "ack" or "reject"
	Error    string
	Duration time.Duration
}

// HistoryRecorder is the optional audit-trail sink a Loop records every
// outcome to, parallel to (not replacing) its structured log line.
// Defined here rather than depending on a concrete history package
// directly, so dispatch never has to know CouchDB exists; package
// history's Sink records a history.Outcome instead, so cli's historySink
// adapter converts each entry before handing it on.
type HistoryRecorder interface {
	Record(ctx context.Context, e HistoryEntry) error
}

// SetHistory installs a recorder; nil (the default) disables recording.
func (l *Loop) SetHistory(h HistoryRecorder) {
	l.history = h
}

func (l *Loop) recordHistory(entry HistoryEntry) {
	if l.history == nil {
		return
	}
	if err := l.history.Record(context.Background(), entry); err != nil {
		l.ctx.Logger().WithError(err).Warn("failed to record job history")
	}
}
