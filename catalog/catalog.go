// Package catalog keeps the named flow specs known to the process and loads
// extra definitions from disk.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tluyben/crmflow/flow"
	"github.com/tluyben/crmflow/types"
	"gopkg.in/yaml.v2"
)

// Catalog maps flow names to compiled specs.
type Catalog struct {
	mu    sync.RWMutex
	specs map[string]*flow.Spec
}

// New returns a catalog holding specs.
func New(specs ...*flow.Spec) (*Catalog, error) {
	c := &Catalog{specs: make(map[string]*flow.Spec, len(specs))}
	for _, s := range specs {
		if err := c.Register(s); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds spec. Names must be unique.
func (c *Catalog) Register(spec *flow.Spec) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.specs[spec.Name()]; ok {
		return fmt.Errorf("flow %s already registered", spec.Name())
	}
	c.specs[spec.Name()] = spec
	return nil
}

// Get looks up a spec by name.
func (c *Catalog) Get(name string) (*flow.Spec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.specs[name]
	return s, ok
}

// Names returns the registered flow names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.specs))
	for name := range c.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the registered specs sorted by name.
func (c *Catalog) Specs() []*flow.Spec {
	names := c.Names()
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*flow.Spec, 0, len(names))
	for _, name := range names {
		out = append(out, c.specs[name])
	}
	return out
}

// LoadDir compiles and registers every .yml, .yaml and .json definition
// under dir and returns how many flows were added.
func (c *Catalog) LoadDir(dir string) (int, error) {
	added := 0
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !isDefinition(path) {
			return nil
		}
		defs, err := LoadFile(path)
		if err != nil {
			return err
		}
		for _, def := range defs {
			spec, err := flow.NewSpec(def)
			if err != nil {
				return fmt.Errorf("error loading flow from %s: %w", path, err)
			}
			if err := c.Register(spec); err != nil {
				return fmt.Errorf("error loading flow from %s: %w", path, err)
			}
			added++
		}
		return nil
	})
	return added, err
}

// LoadFile reads the flow definitions in one file. A file holds either a
// single flow or a top-level "flows" list.
func LoadFile(path string) ([]types.Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading file %s: %w", path, err)
	}
	defs, err := Decode(data, strings.EqualFold(filepath.Ext(path), ".json"))
	if err != nil {
		return nil, fmt.Errorf("error parsing file %s: %w", path, err)
	}
	return defs, nil
}

// Decode parses flow definitions from YAML, or JSON when isJSON is set.
func Decode(data []byte, isJSON bool) ([]types.Flow, error) {
	unmarshal := yaml.UnmarshalStrict
	if isJSON {
		unmarshal = json.Unmarshal
	}

	var list struct {
		Flows []types.Flow `yaml:"flows" json:"flows"`
	}
	if err := unmarshal(data, &list); err == nil && len(list.Flows) > 0 {
		return list.Flows, nil
	}

	var single types.Flow
	if err := unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []types.Flow{single}, nil
}

func isDefinition(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml", ".json":
		return true
	}
	return false
}
