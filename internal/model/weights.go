package model

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
)

// Current schema version - increment when BundlePayload format changes.
const bundleSchemaVersion uint16 = 1

// BundlePayload is the on-disk msgpack form of a weights bundle. Tensor data
// is stored raw, little-endian, keyed by the manifest's data keys.
type BundlePayload struct {
	Schema  uint16
	Tensors map[string][]byte
}

// Bundle holds decoded weight data keyed by data key.
type Bundle struct {
	mu      sync.RWMutex
	tensors map[string][]byte
}

// Lookup returns the raw bytes for a data key.
func (b *Bundle) Lookup(key string) ([]byte, bool) {
	if b == nil {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.tensors[key]
	return data, ok
}

// LoadBundle reads the weights bundle and checks every weight declared by the
// manifest against it: the entry must exist and its byte length must match
// the declared tensor type. Checks run in parallel, one per weight.
func LoadBundle(m *Manifest) (*Bundle, error) {
	f, err := os.Open(m.BundlePath())
	if err != nil {
		return nil, fmt.Errorf("model: open weights bundle: %w", err)
	}
	// Close error on a read-only handle is not actionable.
	defer func() { _ = f.Close() }()

	var payload BundlePayload
	dec := msgpack.NewDecoder(f)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("model: decode weights bundle: %w", err)
	}
	if payload.Schema != bundleSchemaVersion {
		return nil, fmt.Errorf("model: weights bundle schema %d, want %d", payload.Schema, bundleSchemaVersion)
	}

	b := &Bundle{tensors: payload.Tensors}
	if b.tensors == nil {
		b.tensors = make(map[string][]byte)
	}

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for _, w := range m.Weights {
		w := w
		g.Go(func() error {
			ty, err := w.Type()
			if err != nil {
				return fmt.Errorf("weight %q: %w", w.Name, err)
			}
			data, ok := b.Lookup(w.Data)
			if !ok {
				return fmt.Errorf("weight %q: bundle has no entry %q", w.Name, w.Data)
			}
			if len(data) != ty.SizeInBytes() {
				return fmt.Errorf("weight %q: bundle entry %q is %d bytes, want %d",
					w.Name, w.Data, len(data), ty.SizeInBytes())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	return b, nil
}

// WriteBundle serializes a weights bundle, used by tooling and tests.
func WriteBundle(path string, tensors map[string][]byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "bundle-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(f.Name())
	}()
	enc := msgpack.NewEncoder(f)
	if err := enc.Encode(&BundlePayload{Schema: bundleSchemaVersion, Tensors: tensors}); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}
