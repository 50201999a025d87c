// Package authschemes holds the registry of externally contributed
// data-source authentication schemes. A scheme registered here takes over
// credential validation and encryption for its auth type; the built-in policy
// wrappers pass such records through untouched.
package authschemes

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// CredentialField describes one field of a scheme's credential shape.
type CredentialField struct {
	Name     string `json:"name" yaml:"name"`
	Required bool   `json:"required" yaml:"required"`
	Secret   bool   `json:"secret" yaml:"secret"`
}

// Scheme is one registered authentication scheme. Credentials is opaque to
// the policy core; it exists so the owning plugin and the admin UI agree on
// the expected shape.
type Scheme struct {
	Name        string            `json:"name" yaml:"name"`
	DisplayName string            `json:"display_name" yaml:"display_name"`
	Credentials []CredentialField `json:"credentials" yaml:"credentials"`
}

// Registry is a read-only-at-call-time scheme lookup. Registration happens at
// startup; the policy layer only reads.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]Scheme
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Scheme{}}
}

func (r *Registry) Register(s Scheme) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("auth scheme name required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[s.Name]; exists {
		return fmt.Errorf("auth scheme %q already registered", s.Name)
	}
	r.byName[s.Name] = s
	return nil
}

func (r *Registry) Lookup(name string) (Scheme, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byName[name]
	return s, ok
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	return out
}

// LoadDir walks dir and registers every scheme spec found in .yaml, .yml or
// .json files. A missing or empty dir yields an empty registry.
func LoadDir(dir string) (*Registry, error) {
	reg := NewRegistry()
	if dir == "" {
		return reg, nil
	}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var s Scheme
		if ext == ".json" {
			if err := json.Unmarshal(b, &s); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(b, &s); err != nil {
				return fmt.Errorf("%s: yaml parse: %w", path, err)
			}
		}
		if s.Name == "" {
			return nil
		}
		return reg.Register(s)
	})
	return reg, err
}
