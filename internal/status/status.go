// Package status publishes and reads the LED service status document.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/renameio/v2"

	"github.com/wavealert/wavealert360/internal/alert"
)

// Document is the JSON the LED service overwrites on every monitor tick.
// Consumers (dashboard, supervisor freshness checks, tests) read but never
// write it.
type Document struct {
	PID               int         `json:"pid"`
	HardwareAvailable bool        `json:"hardware_available"`
	CurrentLevel      alert.Level `json:"current_level"`
	LastUpdated       time.Time   `json:"last_updated"`
}

// Writer publishes status documents to a fixed path.
type Writer struct {
	path string
}

// NewWriter creates a status writer.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Publish overwrites the status document atomically.
func (w *Writer) Publish(doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	if err := renameio.WriteFile(w.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	return nil
}

// Read loads the status document at path.
func Read(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &doc, nil
}

// FreshWithin reports whether the document at path was updated within the
// given window. A missing or corrupt document is not fresh.
func FreshWithin(path string, window time.Duration, now time.Time) bool {
	doc, err := Read(path)
	if err != nil {
		return false
	}
	return now.Sub(doc.LastUpdated) <= window
}
