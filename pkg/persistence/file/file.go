// Package file provides file-based persistence for workflows, run history,
// and counters. Each workflow and run is one JSON document on disk.
package file

import (
	"context"
	"os"
	"strings"
)

// Persistence implements the persistence surface on the local file system.
type Persistence struct {
	root     string
	history  *RunHistory
	counters *CounterStore
}

// NewPersistence creates a file persistence rooted at the given directory,
// accepting either a plain path or a file:// URL.
func NewPersistence(root string) (*Persistence, error) {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	for _, dir := range []string{cleanRoot, cleanRoot + "/workflows", cleanRoot + "/runs"} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	return &Persistence{
		root:     cleanRoot,
		history:  NewRunHistory(cleanRoot),
		counters: NewCounterStore(cleanRoot),
	}, nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(p.root); err != nil {
		return err
	}

	return nil
}
