package provider

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"modelfetch/pkg/progress"
)

// DefaultChunkSize is the write granularity at which transfers emit progress.
const DefaultChunkSize = 1024

// Emit publishes one snapshot. It returns false once the transfer has been
// cancelled, after which the producer must stop without emitting again.
type Emit func(progress.Snapshot) bool

// Stream carries the progress of one transfer. Receive from C until it is
// closed, then call Err for the outcome.
type Stream struct {
	C    <-chan progress.Snapshot
	err  error
	done chan struct{}
}

// NewStream runs fn on its own goroutine and exposes what it emits.
// The error fn returns becomes the stream's Err.
func NewStream(ctx context.Context, fn func(emit Emit) error) *Stream {
	ch := make(chan progress.Snapshot)
	s := &Stream{C: ch, done: make(chan struct{})}

	emit := func(snap progress.Snapshot) bool {
		if ctx.Err() != nil {
			return false
		}
		select {
		case ch <- snap:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(s.done)
		s.err = fn(emit)
		close(ch)
	}()
	return s
}

// FailedStream returns a closed stream that reports err.
func FailedStream(err error) *Stream {
	ch := make(chan progress.Snapshot)
	close(ch)
	done := make(chan struct{})
	close(done)
	return &Stream{C: ch, err: err, done: done}
}

// Err blocks until the transfer has finished and returns its error.
// A cancelled transfer reports the context error.
func (s *Stream) Err() error {
	<-s.done
	return s.err
}

// Drain consumes the stream, passing every snapshot to fn, and returns Err.
func (s *Stream) Drain(fn func(progress.Snapshot)) error {
	for snap := range s.C {
		if fn != nil {
			fn(snap)
		}
	}
	return s.Err()
}

// writeBody copies body to destination in chunkSize pieces, emitting one
// snapshot per chunk and a final complete snapshot. The context is checked
// before the file is opened, before the body is read and before every write.
func writeBody(ctx context.Context, rawURL string, body io.Reader, destination string, total int64, chunkSize int, emit Emit) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.Create(destination)
	if err != nil {
		return &TransferError{URL: rawURL, Err: err}
	}
	defer f.Close()

	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, chunkSize)
	start := time.Now()
	var written int64
	for {
		n, rerr := fill(body, buf)
		if n > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := f.Write(buf[:n]); err != nil {
				return &TransferError{URL: rawURL, Err: err}
			}
			written += int64(n)

			elapsed := time.Since(start).Seconds()
			var rate float64
			if elapsed > 0 {
				rate = float64(written) / elapsed
			}
			if !emit(progress.Snapshot{BytesReady: written, BytesTotal: total, SpeedRate: rate, Elapsed: elapsed}) {
				return ctx.Err()
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			if err := ctx.Err(); err != nil {
				return err
			}
			return &TransferError{URL: rawURL, Err: rerr}
		}
	}

	if total > 0 && written < total {
		return &TransferError{URL: rawURL, Err: fmt.Errorf("short body, got %d of %d bytes: %w", written, total, io.ErrUnexpectedEOF)}
	}
	if err := f.Close(); err != nil {
		return &TransferError{URL: rawURL, Err: fmt.Errorf("close %s: %w", destination, err)}
	}
	if !emit(progress.Snapshot{BytesReady: written, BytesTotal: written}) {
		return ctx.Err()
	}
	return nil
}

// fill reads into buf until it is full or the body returns an error. Only
// io.EOF marks the end of the body; a dropped connection surfaces as
// io.ErrUnexpectedEOF and must fail the transfer.
func fill(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
