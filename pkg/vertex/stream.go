package vertex

import (
	"bytes"
	"encoding/json"
	"fmt"

	"enginectl/pkg/engine"
)

// lineSplitter turns arbitrarily chunked newline-delimited JSON into events.
type lineSplitter struct {
	buf []byte
	fn  engine.EventHandler
}

func newLineSplitter(fn engine.EventHandler) *lineSplitter {
	return &lineSplitter{fn: fn}
}

// Write consumes a chunk, emitting every complete line.
func (s *lineSplitter) Write(chunk []byte) error {
	s.buf = append(s.buf, chunk...)
	for {
		i := bytes.IndexByte(s.buf, '\n')
		if i < 0 {
			return nil
		}
		line := s.buf[:i]
		s.buf = s.buf[i+1:]
		if err := s.emit(line); err != nil {
			return err
		}
	}
}

// Flush emits a trailing line that had no newline.
func (s *lineSplitter) Flush() error {
	line := s.buf
	s.buf = nil
	return s.emit(line)
}

func (s *lineSplitter) emit(line []byte) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	if !json.Valid(line) {
		return fmt.Errorf("malformed stream event: %q", truncate(line, 120))
	}
	ev := make(json.RawMessage, len(line))
	copy(ev, line)
	return s.fn(ev)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
