package automation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Registry holds the newest version of every connector by name.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]*Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]*Connector)}
}

// LoadDir parses every *.toml file in dir. A missing directory yields an empty registry;
// any invalid file fails the whole load.
func LoadDir(dir string) (*Registry, error) {
	r := NewRegistry()
	files, err := filepath.Glob(filepath.Join(dir, "*.toml"))
	if err != nil {
		return nil, fmt.Errorf("list connectors failed: %w", err)
	}
	var errs []error
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(file), err))
			continue
		}
		c, err := Parse(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(file), err))
			continue
		}
		r.Register(c)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register keeps c unless a higher version with the same name is already present.
func (r *Registry) Register(c *Connector) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.connectors[c.Name]; ok && existing.Version >= c.Version {
		return false
	}
	r.connectors[c.Name] = c
	return true
}

func (r *Registry) Get(name string) (*Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[name]
	return c, ok
}

func (r *Registry) List() []*Connector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Connector, 0, len(r.connectors))
	for _, c := range r.connectors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
