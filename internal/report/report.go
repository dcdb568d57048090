// Package report renders built histories for people and tools.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Sumatoshi-tech/jseries/internal/model"
)

// Format selects a report renderer.
type Format string

// Supported formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatHTML Format = "html"
)

// ErrUnknownFormat is returned for unsupported format names.
var ErrUnknownFormat = errors.New("unknown report format")

// Formats lists the supported formats.
func Formats() []Format {
	return []Format{FormatText, FormatJSON, FormatYAML, FormatHTML}
}

// ParseFormat resolves a format name case-insensitively. Empty means text.
func ParseFormat(name string) (Format, error) {
	if strings.TrimSpace(name) == "" {
		return FormatText, nil
	}

	for _, f := range Formats() {
		if strings.EqualFold(string(f), strings.TrimSpace(name)) {
			return f, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Write renders h to w in the given format.
func Write(w io.Writer, h *model.History, format Format) error {
	switch format {
	case FormatText, "":
		return WriteText(w, h)
	case FormatJSON:
		return WriteJSON(w, h)
	case FormatYAML:
		return WriteYAML(w, h)
	case FormatHTML:
		return WriteHTML(w, h)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}
