// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// DoneSentinel is the payload that marks the end of a completion stream.
const DoneSentinel = "[DONE]"

// MaxLineSize is the largest line the decoder will buffer. Longer lines are
// discarded while they are read and counted as skipped frames.
const MaxLineSize = 1 << 20

const readBufferSize = 32 * 1024

// previewSize bounds the payload kept for logging a skipped frame.
const previewSize = 120

var dataPrefix = []byte("data:")

// =============================================================================
// ERRORS
// =============================================================================

// FrameError describes a frame that could not be decoded.
type FrameError struct {
	Line    int
	Payload string
	Err     error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("line %d: malformed frame: %v", e.Line, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// =============================================================================
// DECODER
// =============================================================================

// Stats counts what the decoder has seen so far.
type Stats struct {
	Lines     int
	Frames    int
	Fragments int
	Skipped   int
	DoneSeen  bool
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used for skipped frames.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithShapes overrides the delta extraction order.
func WithShapes(shapes ...Shape) Option {
	return func(d *Decoder) {
		if len(shapes) > 0 {
			d.shapes = shapes
		}
	}
}

// Decoder turns an event stream into text fragments.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	reader *bufio.Reader
	shapes []Shape
	logger *slog.Logger

	line  []byte
	text  strings.Builder
	stats Stats
	eof   bool
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	d := &Decoder{
		reader: bufio.NewReaderSize(r, readBufferSize),
		shapes: DefaultShapes,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next non-empty fragment. It returns io.EOF once the
// underlying reader is exhausted; any other error comes from the reader.
// Frames after the [DONE] sentinel are still read until EOF.
func (d *Decoder) Next() (string, error) {
	for !d.eof {
		line, oversized, err := d.readLine()
		if err != nil && err != io.EOF {
			return "", err
		}
		if err == io.EOF {
			d.eof = true
		}
		if len(line) == 0 {
			continue
		}
		if fragment, ok := d.processLine(line, oversized); ok {
			return fragment, nil
		}
	}
	return "", io.EOF
}

// readLine reads through the next newline. A line longer than MaxLineSize
// is reported as oversized and only its first previewSize bytes are kept.
// The returned slice is reused by the next call.
func (d *Decoder) readLine() ([]byte, bool, error) {
	d.line = d.line[:0]
	oversized := false
	for {
		chunk, err := d.reader.ReadSlice('\n')
		switch {
		case oversized:
		case len(d.line)+len(chunk) > MaxLineSize:
			oversized = true
			if len(d.line) >= previewSize {
				d.line = d.line[:previewSize]
			} else {
				d.line = append(d.line, chunk[:min(previewSize-len(d.line), len(chunk))]...)
			}
		default:
			d.line = append(d.line, chunk...)
		}
		if err != bufio.ErrBufferFull {
			return d.line, oversized, err
		}
	}
}

// All returns the remaining fragments as a lazy sequence. The sequence ends
// after EOF or after yielding a read error.
func (d *Decoder) All() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			fragment, err := d.Next()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(fragment, nil) {
				return
			}
		}
	}
}

// Text returns every fragment decoded so far, concatenated.
func (d *Decoder) Text() string {
	return d.text.String()
}

// Stats returns the decoder counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

func (d *Decoder) processLine(line []byte, oversized bool) (string, bool) {
	d.stats.Lines++
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return "", false
	}

	payload, ok := framePayload(line)
	if !ok {
		return "", false
	}
	d.stats.Frames++

	if string(payload) == DoneSentinel {
		d.stats.DoneSeen = true
		return "", false
	}

	if oversized {
		d.skip(payload, fmt.Errorf("frame exceeds %d bytes", MaxLineSize))
		return "", false
	}

	frame, err := ParseFrame(payload)
	if err != nil {
		d.skip(payload, err)
		return "", false
	}
	if len(frame.Error) > 0 && string(frame.Error) != "null" {
		d.logger.Warn("stream frame carried an error", "line", d.stats.Lines, "error", string(frame.Error))
	}

	delta, shape, ok := Extract(frame, d.shapes)
	if !ok {
		return "", false
	}
	d.text.WriteString(delta)
	d.stats.Fragments++
	d.logger.Debug("stream fragment", "shape", shape.String(), "bytes", len(delta))
	return delta, true
}

func (d *Decoder) skip(payload []byte, err error) {
	d.stats.Skipped++
	preview := string(payload)
	if len(preview) > previewSize {
		preview = preview[:previewSize]
	}
	d.logger.Warn("skipping stream frame", "error", &FrameError{Line: d.stats.Lines, Payload: preview, Err: err})
}

// framePayload returns the payload of a "data:" line, without the optional
// single space after the colon.
func framePayload(line []byte) ([]byte, bool) {
	if !bytes.HasPrefix(line, dataPrefix) {
		return nil, false
	}
	payload := line[len(dataPrefix):]
	payload = bytes.TrimPrefix(payload, []byte(" "))
	return bytes.TrimSpace(payload), true
}
