// Package relay turns the upstream's newline-delimited JSON chat
// stream into ordered client events and persists the outcome.
package relay

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"ollamaweb/internal/ollama"
)

// ErrResponseTooLong means the accumulated assistant text passed the
// configured cap and the stream was abandoned.
var ErrResponseTooLong = errors.New("upstream response exceeds size cap")

// Decoder reads one upstream chat stream frame by frame. Frames are
// JSON objects separated by newlines; lines that fail to parse are
// skipped so a single garbled frame does not kill the stream.
type Decoder struct {
	r       *bufio.Reader
	max     int64
	total   int64
	skipped int
	text    strings.Builder
}

func NewDecoder(r io.Reader, maxBytes int64) *Decoder {
	return &Decoder{r: bufio.NewReader(r), max: maxBytes}
}

// Next returns the next content delta from the stream. done is true
// exactly once, on the frame the upstream marks final; delta may be
// non-empty on that same frame. After an error or done the decoder
// must not be used again.
func (d *Decoder) Next() (delta string, done bool, err error) {
	for {
		line, readErr := d.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)

		if len(line) > 0 {
			var frame ollama.ChatResponse
			if jsonErr := json.Unmarshal(line, &frame); jsonErr != nil {
				// Malformed frame: drop it and keep reading.
				d.skipped++
				if readErr != nil {
					return "", false, d.eof(readErr)
				}
				continue
			}
			if frame.Error != "" {
				return "", false, fmt.Errorf("upstream: %s", frame.Error)
			}

			delta = frame.Message.Content
			if delta != "" {
				d.total += int64(len(delta))
				if d.max > 0 && d.total > d.max {
					return "", false, ErrResponseTooLong
				}
				d.text.WriteString(delta)
			}
			if frame.Done {
				return delta, true, nil
			}
			if delta != "" {
				return delta, false, nil
			}
			// Keep-alive frame with no content; fall through.
		}

		if readErr != nil {
			return "", false, d.eof(readErr)
		}
	}
}

// Text returns everything accumulated so far, including deltas from
// the frame that reported an error mid-read.
func (d *Decoder) Text() string { return d.text.String() }

// Skipped reports how many malformed lines were dropped.
func (d *Decoder) Skipped() int { return d.skipped }

func (d *Decoder) eof(readErr error) error {
	if errors.Is(readErr, io.EOF) {
		// The upstream hung up without a done frame.
		return io.ErrUnexpectedEOF
	}
	return readErr
}
