package dispatch

import (
	"io"

	"twine.work/twine"
	"twine.work/twineerr"
)

// defaultBulkChunk is how much the growing buffer is extended by on
// each read when the handler reports it needs more data.
const defaultBulkChunk = 64 * 1024

// RunBulk drives a registered bulk handler over r to completion,
// implementing the growing-buffer contract of §4.4: consumed==0 means
// "need more data" (more is read and the handler retried); consumed<0
// or consumed>len(buf) is a protocol violation; on EOF the handler is
// called once more with any residual bytes, then once with a
// zero-length buffer so it can finalise.
func RunBulk(ctx *twine.Context, mime string, r io.Reader) error {
	fn, ok := ctx.Registry().ResolveBulk(mime)
	if !ok {
		return twineerr.Newf(twineerr.NoHandler, "dispatch.RunBulk", "no bulk handler registered for %q", mime)
	}
	return RunBulkWith(ctx, mime, r, fn)
}

// RunBulkWith drives fn directly over r to completion under the same
// growing-buffer contract as RunBulk, for callers that already have a
// twine.BulkFunc in hand and want to skip registry resolution (the
// legacy "hand me a parsed stream" entry point workflow.Pipeline's
// ProcessStream exposes).
func RunBulkWith(ctx *twine.Context, mime string, r io.Reader, fn twine.BulkFunc) error {
	var buf []byte
	chunk := make([]byte, defaultBulkChunk)
	eof := false

	for {
		if ctx.ShuttingDown() {
			return twineerr.New(twineerr.Transient, "dispatch.RunBulk", errShutdown)
		}

		if !eof && len(buf) == 0 {
			n, err := r.Read(chunk)
			buf = append(buf, chunk[:n]...)
			if err == io.EOF {
				eof = true
			} else if err != nil {
				return twineerr.New(twineerr.UpstreamFailure, "dispatch.RunBulk", err)
			}
		}

		consumed, err := fn(ctx, mime, buf)
		if err != nil {
			return twineerr.Newf(twineerr.ParseFailure, "dispatch.RunBulk", "bulk handler failed: %v", err)
		}
		if consumed < 0 || consumed > len(buf) {
			return twineerr.Newf(twineerr.ProtocolViolation, "dispatch.RunBulk", "bulk handler consumed %d of %d buffered bytes", consumed, len(buf))
		}

		if consumed == 0 {
			if eof {
				if len(buf) == 0 {
					return nil
				}
				// Residual bytes the handler declined to consume at
				// EOF: one more flush call, then the zero-length
				// finaliser call below.
				if _, err := fn(ctx, mime, buf); err != nil {
					return twineerr.Newf(twineerr.ParseFailure, "dispatch.RunBulk", "bulk handler failed on EOF flush: %v", err)
				}
				buf = nil
				if _, err := fn(ctx, mime, nil); err != nil {
					return twineerr.Newf(twineerr.ParseFailure, "dispatch.RunBulk", "bulk handler failed to finalise: %v", err)
				}
				return nil
			}
			n, err := r.Read(chunk)
			buf = append(buf, chunk[:n]...)
			if err == io.EOF {
				eof = true
			} else if err != nil {
				return twineerr.New(twineerr.UpstreamFailure, "dispatch.RunBulk", err)
			}
			continue
		}

		buf = buf[consumed:]
		if eof && len(buf) == 0 {
			if _, err := fn(ctx, mime, nil); err != nil {
				return twineerr.Newf(twineerr.ParseFailure, "dispatch.RunBulk", "bulk handler failed to finalise: %v", err)
			}
			return nil
		}
	}
}

type shutdownError struct{}

func (shutdownError) Error() string { return "shutdown requested during bulk import" }

var errShutdown = shutdownError{}
