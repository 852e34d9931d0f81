// Package snapshot appends an operator-auditable JSON-lines catalogue of
// vector-store snapshots, one record per line.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Record is one catalogued vector-store snapshot.
type Record struct {
	Name       string    `json:"name"`
	Location   string    `json:"location"`
	CreatedAt  time.Time `json:"created_at"`
	SizeBytes  int64     `json:"size_bytes"`
	RecordedAt time.Time `json:"recorded_at"`
	Note       string    `json:"note,omitempty"`
}

// Catalogue appends Records to a JSON-lines file. Safe for concurrent use.
type Catalogue struct {
	mu   sync.Mutex
	path string
}

// Open returns a Catalogue backed by path, creating the file on first
// Append if it does not yet exist.
func Open(path string) *Catalogue {
	return &Catalogue{path: path}
}

// Append writes rec as one JSON line, stamping RecordedAt if the caller left
// it zero.
func (c *Catalogue) Append(rec Record) error {
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("snapshot: marshaling record: %w", err)
	}
	line = append(line, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("snapshot: opening catalogue: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("snapshot: writing record: %w", err)
	}
	return nil
}

// ReadAll loads every record in the catalogue, in append order, for
// operator auditing tools. Missing file returns an empty slice, not an
// error: a catalogue that has never been written to is a normal starting
// state.
func (c *Catalogue) ReadAll() ([]Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("snapshot: reading catalogue: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var out []Record
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, fmt.Errorf("snapshot: decoding record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}
