package completion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
)

const doneMarker = "[DONE]"

// Frame is one `data:` line of a streaming response.
type Frame struct {
	Data []byte
	Done bool
}

// Decoder splits a byte stream into data frames. A line split across reads is
// held back and completed by the next Feed.
type Decoder struct {
	partial []byte
}

// Feed consumes chunk and returns every frame whose line is now complete.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.partial = append(d.partial, chunk...)

	var frames []Frame
	for {
		i := bytes.IndexByte(d.partial, '\n')
		if i < 0 {
			break
		}
		line := d.partial[:i]
		d.partial = d.partial[i+1:]

		if f, ok := parseLine(line); ok {
			frames = append(frames, f)
		}
	}

	// Compact so the retained tail does not pin the whole buffer.
	if len(d.partial) == 0 {
		d.partial = nil
	} else {
		d.partial = append([]byte(nil), d.partial...)
	}
	return frames
}

// Flush returns a frame for a trailing line that had no newline.
func (d *Decoder) Flush() (Frame, bool) {
	line := d.partial
	d.partial = nil
	return parseLine(line)
}

func parseLine(line []byte) (Frame, bool) {
	line = bytes.TrimRight(line, "\r")
	if len(bytes.TrimSpace(line)) == 0 || line[0] == ':' {
		return Frame{}, false
	}
	data, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return Frame{}, false
	}
	data = bytes.TrimSpace(data)
	if string(data) == doneMarker {
		return Frame{Done: true}, true
	}
	return Frame{Data: append([]byte(nil), data...)}, true
}

// errStop ends Decode early without reporting an error.
var errStop = errors.New("stop decoding")

// Decode reads r until EOF, a Done frame, or ctx cancellation, invoking fn for
// every frame in order. Returning errStop from fn ends decoding cleanly.
func Decode(ctx context.Context, r io.Reader, fn func(Frame) error) error {
	var dec Decoder
	buf := make([]byte, 4096)

	emit := func(frames []Frame) (bool, error) {
		for _, f := range frames {
			if err := fn(f); err != nil {
				if errors.Is(err, errStop) {
					return true, nil
				}
				return true, err
			}
			if f.Done {
				return true, nil
			}
		}
		return false, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			if stop, err := emit(dec.Feed(buf[:n])); stop {
				return err
			}
		}

		if errors.Is(readErr, io.EOF) {
			if f, ok := dec.Flush(); ok {
				_, err := emit([]Frame{f})
				return err
			}
			return nil
		}
		if readErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("failed to read stream: %w", readErr)
		}
	}
}
