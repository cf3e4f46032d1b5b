// Package scenario holds the generation catalog (intents, domains, personas
// and query styles) and samples scenarios from it.
package scenario

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/haasonsaas/routergen/internal/record"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Intent is a class of user request and the tool that serves it. An empty
// Tool means the request is answered directly.
type Intent struct {
	Name        string          `yaml:"name"`
	Tool        record.ToolName `yaml:"tool"`
	Weight      float64         `yaml:"weight"`
	Description string          `yaml:"description"`
}

// DirectAnswer reports whether the intent expects a complete output.
func (i Intent) DirectAnswer() bool { return i.Tool == "" }

// Style is a way of phrasing a query.
type Style struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Examples    []string `yaml:"examples"`
}

// Catalog is everything the sampler draws from.
type Catalog struct {
	Intents  []Intent `yaml:"intents"`
	Domains  []string `yaml:"domains"`
	Personas []string `yaml:"personas"`
	Styles   []Style  `yaml:"styles"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// DefaultCatalog returns the embedded catalog. Callers must not modify it.
func DefaultCatalog() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = ParseCatalog(defaultCatalogYAML)
	})
	return defaultCatalog, defaultErr
}

// LoadCatalog reads a catalog file. An empty path yields the embedded one.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// ParseCatalog decodes and validates catalog YAML. Unknown keys are errors.
func ParseCatalog(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks that every list is populated and every intent is usable.
func (c *Catalog) Validate() error {
	var errs []error
	if len(c.Intents) == 0 {
		errs = append(errs, errors.New("catalog: no intents"))
	}
	seen := make(map[string]bool)
	for i, in := range c.Intents {
		if in.Name == "" {
			errs = append(errs, fmt.Errorf("catalog: intent %d has no name", i))
		}
		if seen[in.Name] {
			errs = append(errs, fmt.Errorf("catalog: duplicate intent %q", in.Name))
		}
		seen[in.Name] = true
		if in.Weight <= 0 {
			errs = append(errs, fmt.Errorf("catalog: intent %q needs a positive weight", in.Name))
		}
		if in.Tool != "" && !knownTool(in.Tool) {
			errs = append(errs, fmt.Errorf("catalog: intent %q uses unknown tool %q", in.Name, in.Tool))
		}
	}
	if len(c.Domains) == 0 {
		errs = append(errs, errors.New("catalog: no domains"))
	}
	if len(c.Personas) == 0 {
		errs = append(errs, errors.New("catalog: no personas"))
	}
	if len(c.Styles) == 0 {
		errs = append(errs, errors.New("catalog: no styles"))
	}
	styles := make(map[string]bool)
	for _, s := range c.Styles {
		if s.Name == "" || styles[s.Name] {
			errs = append(errs, fmt.Errorf("catalog: style name %q is empty or duplicated", s.Name))
		}
		styles[s.Name] = true
	}
	return errors.Join(errs...)
}

// Style returns the style with the given name.
func (c *Catalog) Style(name string) (Style, bool) {
	for _, s := range c.Styles {
		if s.Name == name {
			return s, true
		}
	}
	return Style{}, false
}

// Intent returns the intent with the given name.
func (c *Catalog) Intent(name string) (Intent, bool) {
	for _, in := range c.Intents {
		if in.Name == name {
			return in, true
		}
	}
	return Intent{}, false
}

func knownTool(name record.ToolName) bool {
	for _, t := range record.ToolNames {
		if t == name {
			return true
		}
	}
	return false
}
