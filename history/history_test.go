package history

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSinkRejectsUnparsableURL(t *testing.T) {
	_, err := NewSink(context.Background(), "://not-a-url", "twine_history")
	require.Error(t, err)
}

func TestOutcomeSerializesDurationAndOmitsEmptyError(t *testing.T) {
	o := Outcome{
		MIME:     "application/n-triples",
		Subject:  "http://example.org/graph/1",
		Outcome:  "ack",
		Duration: 150 * time.Millisecond,
	}

	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"error"`)

	var decoded Outcome
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, o.MIME, decoded.MIME)
	assert.Equal(t, o.Subject, decoded.Subject)
	assert.Equal(t, o.Outcome, decoded.Outcome)
	assert.Equal(t, o.Duration, decoded.Duration)
}

func TestOutcomeKeepsErrorWhenSet(t *testing.T) {
	o := Outcome{
		MIME:    "text/turtle",
		Subject: "http://example.org/graph/2",
		Outcome: "reject",
		Error:   "no handler registered",
	}

	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Contains(t, string(data), "no handler registered")
}
