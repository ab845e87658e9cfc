// Package model loads a compilable model: a TOML manifest describing
// placeholders, weights and ops, plus a msgpack bundle holding the trained
// weight data.
package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/jygan/glow/internal/tensor"
)

// Manifest mirrors the TOML model description.
type Manifest struct {
	Path string `toml:"-"`
	Name string `toml:"name"`

	Placeholders []PlaceholderDecl `toml:"placeholder"`
	Weights      []WeightDecl      `toml:"weight"`
	Ops          []OpDecl          `toml:"op"`
}

// PlaceholderDecl declares a caller-provided tensor (input or output).
type PlaceholderDecl struct {
	Name  string `toml:"name"`
	DType string `toml:"dtype"`
	Dims  []int  `toml:"dims"`
}

// WeightDecl declares a trained weight tensor. Data names the bundle entry
// holding its contents; Mutable marks weights the caller may retrain.
type WeightDecl struct {
	Name    string `toml:"name"`
	DType   string `toml:"dtype"`
	Dims    []int  `toml:"dims"`
	Data    string `toml:"data"`
	Mutable bool   `toml:"mutable"`
}

// OpDecl declares one graph operation. Dims is only used by reshape and
// gives the target shape. Save ops write into their first input and declare
// no output.
type OpDecl struct {
	Kind   string   `toml:"kind"`
	Inputs []string `toml:"inputs"`
	Output string   `toml:"output"`
	Dims   []int    `toml:"dims"`
}

// LoadManifest reads and validates a model manifest.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	if _, err := toml.DecodeFile(path, &m); err != nil {
		return nil, fmt.Errorf("model: decode %s: %w", path, err)
	}
	m.Path = path
	if m.Name == "" {
		base := filepath.Base(path)
		m.Name = base[:len(base)-len(filepath.Ext(base))]
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("model: %s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	seen := make(map[string]struct{})
	declare := func(name string) error {
		if name == "" {
			return fmt.Errorf("tensor with empty name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate tensor name %q", name)
		}
		seen[name] = struct{}{}
		return nil
	}
	for _, p := range m.Placeholders {
		if err := declare(p.Name); err != nil {
			return err
		}
		if _, err := p.Type(); err != nil {
			return fmt.Errorf("placeholder %q: %w", p.Name, err)
		}
	}
	for _, w := range m.Weights {
		if err := declare(w.Name); err != nil {
			return err
		}
		if _, err := w.Type(); err != nil {
			return fmt.Errorf("weight %q: %w", w.Name, err)
		}
		if w.Data == "" {
			return fmt.Errorf("weight %q: missing data key", w.Name)
		}
	}
	for i, op := range m.Ops {
		if op.Kind == "" {
			return fmt.Errorf("op %d: missing kind", i)
		}
		if op.Kind == "save" {
			if op.Output != "" {
				return fmt.Errorf("op %d (save): save declares no output", i)
			}
		} else {
			if op.Output == "" {
				return fmt.Errorf("op %d (%s): missing output", i, op.Kind)
			}
			if err := declare(op.Output); err != nil {
				return fmt.Errorf("op %d (%s): %w", i, op.Kind, err)
			}
		}
		for _, in := range op.Inputs {
			if _, ok := seen[in]; !ok {
				return fmt.Errorf("op %d (%s): unknown input %q", i, op.Kind, in)
			}
		}
	}
	return nil
}

// Type resolves the declared tensor type.
func (p PlaceholderDecl) Type() (tensor.Type, error) {
	return declType(p.DType, p.Dims)
}

// Type resolves the declared tensor type.
func (w WeightDecl) Type() (tensor.Type, error) {
	return declType(w.DType, w.Dims)
}

func declType(dtype string, dims []int) (tensor.Type, error) {
	elem, err := tensor.ParseElemKind(dtype)
	if err != nil {
		return tensor.Type{}, err
	}
	if len(dims) == 0 {
		return tensor.Type{}, fmt.Errorf("missing dims")
	}
	for _, d := range dims {
		if d <= 0 {
			return tensor.Type{}, fmt.Errorf("non-positive dim %d", d)
		}
	}
	return tensor.NewType(elem, dims...), nil
}

// BundlePath returns the weights bundle path next to the manifest:
// <manifest-without-ext>.weights.mp.
func (m *Manifest) BundlePath() string {
	ext := filepath.Ext(m.Path)
	return m.Path[:len(m.Path)-len(ext)] + ".weights.mp"
}

// HasBundle reports whether the weights bundle exists on disk.
func (m *Manifest) HasBundle() bool {
	_, err := os.Stat(m.BundlePath())
	return err == nil
}
