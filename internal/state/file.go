package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gantry-io/gantry/internal/ir"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// File stores the state snapshot in a YAML file. Every upsert or remove
// rewrites the snapshot; single-entry writes are serialized by an internal
// lock so concurrent operations never interleave partial writes.
type File struct {
	path string
	mu   sync.Mutex
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Load(ctx context.Context) (map[ir.ID]*ir.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, err := f.read()
	if err != nil {
		return nil, err
	}
	out := make(map[ir.ID]*ir.Entry, len(snap.Entries))
	for _, e := range snap.Entries {
		out[e.ID()] = e
	}
	return out, nil
}

func (f *File) Upsert(ctx context.Context, id ir.ID, entry *ir.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, err := f.read()
	if err != nil {
		return err
	}
	replaced := false
	for i, e := range snap.Entries {
		if e.ID() == id {
			snap.Entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		snap.Entries = append(snap.Entries, entry)
	}
	return f.write(snap)
}

func (f *File) Remove(ctx context.Context, id ir.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, err := f.read()
	if err != nil {
		return err
	}
	for i, e := range snap.Entries {
		if e.ID() == id {
			snap.Entries = append(snap.Entries[:i], snap.Entries[i+1:]...)
			return f.write(snap)
		}
	}
	return nil
}

func (f *File) read() (*ir.Snapshot, error) {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return &ir.Snapshot{Version: 1, Lineage: uuid.NewString()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state file %s: %w", f.path, err)
	}
	raw, err = DecryptState(raw)
	if err != nil {
		return nil, err
	}
	var snap ir.Snapshot
	if err := yaml.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("parse state file %s: %w", f.path, err)
	}
	return &snap, nil
}

func (f *File) write(snap *ir.Snapshot) error {
	snap.Serial++
	raw, err := yaml.Marshal(snap)
	if err != nil {
		return fmt.Errorf("serialize state: %w", err)
	}
	raw, err = EncryptState(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	if err := os.WriteFile(f.path, raw, 0o600); err != nil {
		return fmt.Errorf("write state file %s: %w", f.path, err)
	}
	return nil
}

// Lock acquires a lock file next to the state to prevent concurrent runs.
func (f *File) Lock() error {
	lockPath := f.lockPath()
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}

	if info, err := os.Stat(lockPath); err == nil {
		// A lock older than 10 minutes is considered stale.
		if time.Since(info.ModTime()) > 10*time.Minute {
			os.Remove(lockPath)
		} else {
			return fmt.Errorf("state is locked by another process (lock file: %s); "+
				"remove the lock file manually if this is an error", lockPath)
		}
	}

	content := fmt.Sprintf("pid=%d\ntime=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := os.WriteFile(lockPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("create lock file: %w", err)
	}
	return nil
}

// Unlock releases the lock file.
func (f *File) Unlock() error {
	if err := os.Remove(f.lockPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

func (f *File) lockPath() string {
	return f.path + ".lock"
}
