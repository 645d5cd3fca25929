// Package notify carries engine notifications between processes sharing a
// data directory. The MCP server writes one file per committed change; the
// web server watches the directory and forwards each one to its websocket
// hub.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/scrypster/agentmemory/internal/engine"
)

// fileSuffix marks complete notification files. Writers create a temporary
// file and rename it, so readers never see partial content.
const fileSuffix = ".event"

// Dir returns the notification directory under dataPath.
func Dir(dataPath string) string {
	return filepath.Join(dataPath, "events")
}

// Writer emits notification files to a shared directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a writer that emits to Dir(dataPath).
func NewWriter(dataPath string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: Dir(dataPath), logger: logger}
}

// Write persists n as a notification file. Safe for concurrent use.
func (w *Writer) Write(n engine.Notification) error {
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("notify: encode: %w", err)
	}

	name := fmt.Sprintf("%d-%s", time.Now().UnixNano(), sanitizeID(n.EventID))
	tmp, err := os.CreateTemp(w.dir, name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("notify: create: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("notify: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("notify: close: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(w.dir, name+fileSuffix))
}

// Notify is an engine notifier. Failures are logged and dropped; the change
// itself is already committed.
func (w *Writer) Notify(n engine.Notification) {
	if err := w.Write(n); err != nil {
		w.logger.Warn("notify: failed to write notification", "type", n.Type, "event_id", n.EventID, "error", err)
	}
}

// sanitizeID replaces characters unsafe for filenames.
func sanitizeID(id string) string {
	out := []byte(id)
	for i, c := range out {
		if c == '/' || c == ':' || c == '\\' {
			out[i] = '_'
		}
	}
	return string(out)
}
