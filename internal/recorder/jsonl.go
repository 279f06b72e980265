package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// jsonlWriter appends one JSON document per line, syncing after every
// write so a crash loses at most the line in flight.
type jsonlWriter struct {
	mu   sync.Mutex
	file *os.File
}

func openJSONL(path string) (*jsonlWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("recorder: open %s: %w", path, err)
	}
	return &jsonlWriter{file: f}, nil
}

func (w *jsonlWriter) Append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("recorder: encode record: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("recorder: append record: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("recorder: sync record: %w", err)
	}
	return nil
}

func (w *jsonlWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// appendRecovery writes a single record to the recovery file, creating it
// on first use. Used when the primary sink keeps failing.
func appendRecovery(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("recorder: encode recovery record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("recorder: open recovery file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("recorder: append recovery record: %w", err)
	}
	return f.Sync()
}
