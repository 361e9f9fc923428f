package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Format selects how results are written.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatAuto Format = "auto"
)

// ParseFormat resolves s. An empty value means text; auto picks text on a
// terminal and JSON otherwise.
func ParseFormat(s string, isTerminal bool) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText, "":
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatAuto:
		if isTerminal {
			return FormatText, nil
		}
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or auto)", s)
	}
}

type printer struct {
	w      io.Writer
	format Format
}

func (p *printer) text() bool {
	return p.format != FormatJSON
}

func (p *printer) line(format string, args ...any) {
	fmt.Fprintf(p.w, format+"\n", args...)
}

func (p *printer) json(v any) error {
	enc := json.NewEncoder(p.w)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func (p *printer) raw(data []byte) {
	_, _ = p.w.Write(data)
	_, _ = p.w.Write([]byte("\n"))
}
