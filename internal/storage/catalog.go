package storage

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/thenexusengine/tne_vpaid/internal/vpaid"
	"gopkg.in/yaml.v3"
)

// catalogFile is the YAML layout of a creative catalog
type catalogFile struct {
	Creatives []*Creative `yaml:"creatives"`
}

// Catalog is a read-only set of creatives loaded from a YAML file. It serves
// sessions when no database is configured and seeds the database when one is.
type Catalog struct {
	creatives map[string]*Creative
	order     []string
}

// LoadCatalog reads and validates a catalog file
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read creative catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog validates every creative the way CreativeStore.Create does
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode creative catalog: %w", err)
	}

	cat := &Catalog{creatives: make(map[string]*Creative, len(file.Creatives))}
	for i, c := range file.Creatives {
		if c == nil || c.ID == "" {
			return nil, fmt.Errorf("catalog entry %d: missing id", i)
		}
		if _, dup := cat.creatives[c.ID]; dup {
			return nil, fmt.Errorf("catalog entry %d: %w: %s", i, ErrCreativeExists, c.ID)
		}
		if _, err := vpaid.ParseCreativeParams(c.CreativeData()); err != nil {
			return nil, fmt.Errorf("catalog entry %s: %w", c.ID, err)
		}
		if _, ok := vpaid.ParseVariant(c.Variant); !ok {
			return nil, fmt.Errorf("catalog entry %s: %w: %q", c.ID, ErrInvalidVariant, c.Variant)
		}
		if c.Status == "" {
			c.Status = "active"
		}
		cat.creatives[c.ID] = c
		cat.order = append(cat.order, c.ID)
	}
	return cat, nil
}

// Get returns a copy of an active creative, or nil, nil when none matches
func (c *Catalog) Get(_ context.Context, id string) (*Creative, error) {
	cr, ok := c.creatives[id]
	if !ok || cr.Status != "active" {
		return nil, nil
	}
	cp := *cr
	return &cp, nil
}

// List returns the active creatives in file order
func (c *Catalog) List(ctx context.Context) ([]*Creative, error) {
	out := make([]*Creative, 0, len(c.order))
	for _, id := range c.order {
		if cr, _ := c.Get(ctx, id); cr != nil {
			out = append(out, cr)
		}
	}
	return out, nil
}

// Len returns the number of creatives in the catalog, archived ones included
func (c *Catalog) Len() int {
	return len(c.order)
}

// creativeCreator is the write side of CreativeStore
type creativeCreator interface {
	Create(ctx context.Context, c *Creative) error
}

// Seed writes every active catalog creative to store. Creatives that already
// exist are left untouched.
func (c *Catalog) Seed(ctx context.Context, store creativeCreator) (int, error) {
	created := 0
	all, _ := c.List(ctx)
	for _, cr := range all {
		err := store.Create(ctx, cr)
		if errors.Is(err, ErrCreativeExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("seed creative %s: %w", cr.ID, err)
		}
		created++
	}
	return created, nil
}
