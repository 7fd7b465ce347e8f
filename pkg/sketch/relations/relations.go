// Package relations holds the grammatical-relation catalog: the named
// patterns a word sketch is organized by. Catalogs load from YAML; a
// built-in default covers the common sketch relations so the engine is
// usable without a configuration file.
package relations

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/sketch/pkg/sketch/pattern"
)

// Relation describes one grammatical relation between a headword and a
// collocate. HeadIndex and CollocateIndex are 1-based indices into the
// pattern's element sequence. A relation with an empty Pattern counts plain
// positional co-occurrence within Window during precomputation.
type Relation struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	HeadPOS        string `yaml:"head_pos"`
	CollocatePOS   string `yaml:"collocate_pos"`
	Pattern        string `yaml:"pattern"`
	HeadIndex      int    `yaml:"head_index"`
	CollocateIndex int    `yaml:"collocate_index"`
	Window         int    `yaml:"window"`
	Dual           bool   `yaml:"dual"`
	Exploration    bool   `yaml:"exploration"`
}

// Validate checks the relation's structural invariants: a parseable
// pattern, distinct in-range head and collocate indices, and a positive
// window for window-only relations.
func (r Relation) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("relation without id")
	}
	if r.Pattern == "" {
		if r.Window <= 0 {
			return fmt.Errorf("relation %s: window-based relation needs a positive window", r.ID)
		}
		return nil
	}
	parsed, err := pattern.Parse(r.Pattern)
	if err != nil {
		return fmt.Errorf("relation %s: %w", r.ID, err)
	}
	elems := len(parsed.Alternatives[0].Elements)
	for _, alt := range parsed.Alternatives[1:] {
		if n := len(alt.Elements); n < elems {
			elems = n
		}
	}
	if r.HeadIndex < 1 || r.HeadIndex > elems {
		return fmt.Errorf("relation %s: head index %d outside pattern elements", r.ID, r.HeadIndex)
	}
	if r.CollocateIndex < 1 || r.CollocateIndex > elems {
		return fmt.Errorf("relation %s: collocate index %d outside pattern elements", r.ID, r.CollocateIndex)
	}
	if r.HeadIndex == r.CollocateIndex {
		return fmt.Errorf("relation %s: head and collocate indices must differ", r.ID)
	}
	return nil
}

// WindowBased reports whether the relation counts plain positional
// co-occurrence instead of matching a pattern.
func (r Relation) WindowBased() bool { return r.Pattern == "" }

// Catalog is a validated set of relations addressable by id.
type Catalog struct {
	Relations []Relation
	byID      map[string]int
}

// NewCatalog validates and indexes a relation list.
func NewCatalog(rels []Relation) (*Catalog, error) {
	c := &Catalog{Relations: rels, byID: make(map[string]int, len(rels))}
	for i, r := range rels {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, fmt.Errorf("duplicate relation id %s", r.ID)
		}
		c.byID[r.ID] = i
	}
	return c, nil
}

// Load reads a catalog from a YAML file of the form:
//
//	relations:
//	  - id: adj_mod
//	    name: adjective modifier
//	    pattern: "[tag=JJ] [tag=NN]"
//	    head_index: 2
//	    collocate_index: 1
//	    window: 1
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load relation catalog: %w", err)
	}
	var doc struct {
		Relations []Relation `yaml:"relations"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse relation catalog: %w", err)
	}
	return NewCatalog(doc.Relations)
}

// Get returns the relation registered under id.
func (c *Catalog) Get(id string) (Relation, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Relation{}, false
	}
	return c.Relations[i], true
}

// Default returns the built-in catalog of common sketch relations.
func Default() *Catalog {
	c, err := NewCatalog([]Relation{
		{
			ID:             "adj_mod",
			Name:           "adjective modifier",
			HeadPOS:        "noun",
			CollocatePOS:   "adj",
			Pattern:        "[pos_group=adj]:1 [pos_group=noun]:2",
			HeadIndex:      2,
			CollocateIndex: 1,
			Window:         1,
			Dual:           true,
		},
		{
			ID:             "noun_comp",
			Name:           "noun compound",
			HeadPOS:        "noun",
			CollocatePOS:   "noun",
			Pattern:        "[pos_group=noun]:1 [pos_group=noun]:2",
			HeadIndex:      2,
			CollocateIndex: 1,
			Window:         1,
		},
		{
			ID:             "pred_adj",
			Name:           "predicate adjective",
			HeadPOS:        "noun",
			CollocatePOS:   "adj",
			Pattern:        "[pos_group=noun]:1 [lemma=be|seem|prove|appear|become] [pos_group=adj]:2",
			HeadIndex:      1,
			CollocateIndex: 3,
		},
		{
			ID:             "verb_obj",
			Name:           "object of verb",
			HeadPOS:        "noun",
			CollocatePOS:   "verb",
			Pattern:        "[pos_group=verb]:1 [pos_group=det]{0,1} [pos_group=adj]{0,2} [pos_group=noun]:2",
			HeadIndex:      4,
			CollocateIndex: 1,
			Window:         4,
			Dual:           true,
		},
		{
			ID:          "near",
			Name:        "co-occurs near",
			Window:      5,
			Dual:        true,
			Exploration: true,
		},
	})
	if err != nil {
		panic(err) // built-in catalog must validate
	}
	return c
}
