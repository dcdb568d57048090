package report

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/jseries/internal/model"
)

// WriteJSON exports the full history in its flat form.
func WriteJSON(w io.Writer, h *model.History) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if err := enc.Encode(h.Data()); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

// WriteYAML exports the full history in its flat form.
func WriteYAML(w io.Writer, h *model.History) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(h.Data()); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	return enc.Close()
}
