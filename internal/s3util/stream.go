package s3util

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// errAborted is recorded when a caller closes a streaming upload with a nil
// error via CloseWithError.
var errAborted = errors.New("streaming upload aborted")

// StreamingUpload is a writable sink backed by an S3 multipart upload.
// Bytes written are forwarded through a pipe to the uploader as they arrive;
// the total size never needs to be known. Wait blocks until the upload has
// completed or failed.
//
// The first error recorded, whether from the caller (CloseWithError) or from
// the transport, is the one Wait returns. Writes after a failure return that
// error without reaching the uploader.
type StreamingUpload struct {
	key     string
	pw      *io.PipeWriter
	done    chan struct{}
	written atomic.Int64

	mu  sync.Mutex
	err error
}

// OpenStreamingUpload starts a multipart upload to key and returns its sink.
// The upload runs until the sink is closed, aborted, or ctx is cancelled.
func (s *Streamer) OpenStreamingUpload(ctx context.Context, key, contentType string) *StreamingUpload {
	pr, pw := io.Pipe()
	u := &StreamingUpload{
		key:  key,
		pw:   pw,
		done: make(chan struct{}),
	}

	input := s.putInput(key, contentType)
	input.Body = pr

	go func() {
		defer close(u.done)
		start := time.Now()

		_, err := s.uploader.Upload(ctx, input)
		if err != nil {
			u.fail(&UploadError{Key: key, Err: err})
			// Unblock any writer still waiting on the pipe.
			pr.CloseWithError(u.Err())
			return
		}
		pr.Close()

		log.Info().
			Str("key", key).
			Int64("bytes", u.written.Load()).
			Dur("elapsed", time.Since(start)).
			Msg("Streaming upload complete")
	}()

	return u
}

// Key returns the destination object key.
func (u *StreamingUpload) Key() string {
	return u.key
}

// Written returns the number of bytes accepted by the sink so far.
func (u *StreamingUpload) Written() int64 {
	return u.written.Load()
}

// Write forwards p to the upload.
func (u *StreamingUpload) Write(p []byte) (int, error) {
	if err := u.Err(); err != nil {
		return 0, err
	}
	n, err := u.pw.Write(p)
	u.written.Add(int64(n))
	if err != nil {
		if first := u.Err(); first != nil {
			return n, first
		}
		return n, err
	}
	return n, nil
}

// Close signals end of data. The upload completes asynchronously; call Wait.
func (u *StreamingUpload) Close() error {
	return u.pw.Close()
}

// CloseWithError aborts the upload. err becomes the result of Wait unless an
// earlier error was already recorded.
func (u *StreamingUpload) CloseWithError(err error) {
	if err == nil {
		err = errAborted
	}
	u.fail(err)
	u.pw.CloseWithError(u.Err())
}

// Wait blocks until the upload goroutine finishes and returns the first
// recorded error.
func (u *StreamingUpload) Wait() error {
	<-u.done
	return u.Err()
}

// Err returns the first recorded error, if any.
func (u *StreamingUpload) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.err
}

func (u *StreamingUpload) fail(err error) {
	u.mu.Lock()
	if u.err == nil {
		u.err = err
	}
	u.mu.Unlock()
}
