// Package report persists the assembled funnel report as the dashboard's
// JSON artifact.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"vcfunnel/internal/funnel"
)

// WriteJSON writes the report to outputPath, creating parent directories as
// needed. The document is encoded in full before the file is touched, so an
// encoding failure never leaves a truncated artifact behind.
func WriteJSON(report *funnel.Report, outputPath string) error {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)

	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write report file: %w", err)
	}

	return nil
}

// ReadJSON loads a previously written artifact, mainly for inspection and
// round-trip verification.
func ReadJSON(path string) (*funnel.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report file: %w", err)
	}

	var report funnel.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report file: %w", err)
	}
	return &report, nil
}
