// Package catalog holds the curated contract catalog: per-contract
// metadata, function references and related resources, keyed by
// "author/slug" identifiers.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when an identifier has no catalog entry
var ErrNotFound = errors.New("catalog entry not found")

// FunctionRef describes one contract function surfaced in the detail view
type FunctionRef struct {
	Name        string `yaml:"name" json:"name"`
	Signature   string `yaml:"signature" json:"signature"`
	Description string `yaml:"description" json:"description"`
}

// Resource is an external link related to a contract
type Resource struct {
	Title string `yaml:"title" json:"title"`
	URL   string `yaml:"url" json:"url"`
}

// ContentBlock is one documentation block on the detail page. Tag
// selects the rendering element; blocks with an unrecognized tag are
// dropped at load time.
type ContentBlock struct {
	Tag  string `yaml:"tag" json:"tag"`
	Body string `yaml:"content" json:"content"`
}

// contentTags are the block tags the detail view knows how to render
var contentTags = map[string]bool{
	"h1": true,
	"h2": true,
	"p":  true,
	"ul": true,
}

// Record is one catalog entry
type Record struct {
	Author         string         `yaml:"author" json:"author"`
	Slug           string         `yaml:"slug" json:"slug"`
	Version        string         `yaml:"version" json:"version"`
	Name           string         `yaml:"name" json:"name"`
	Description    string         `yaml:"description" json:"description"`
	Content        []ContentBlock `yaml:"content" json:"content"`
	WriteFunctions []FunctionRef  `yaml:"write_functions" json:"writeFunctions"`
	ReadFunctions  []FunctionRef  `yaml:"read_functions" json:"readFunctions"`
	Resources      []Resource     `yaml:"resources" json:"resources"`

	// Path keys the raw source lookup against the source service. It
	// is independent of the identifier; records without one fall back
	// to the slug.
	Path string `yaml:"path" json:"path"`
}

// Identifier returns the "author/slug" key for the record
func (r Record) Identifier() string {
	return r.Author + "/" + r.Slug
}

// Store resolves catalog identifiers to records
type Store interface {
	Lookup(identifier string) (Record, error)
	All() []Record
}

// memoryStore is a Store backed by an in-memory map
type memoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	order   []string
}

// NewStore builds a Store from a set of records
func NewStore(records []Record) (Store, error) {
	store := &memoryStore{records: make(map[string]Record, len(records))}
	for _, rec := range records {
		if rec.Author == "" || rec.Slug == "" {
			return nil, fmt.Errorf("catalog record %q missing author or slug", rec.Name)
		}
		id := rec.Identifier()
		if _, exists := store.records[id]; exists {
			return nil, fmt.Errorf("duplicate catalog identifier %q", id)
		}
		if rec.Path == "" {
			rec.Path = rec.Slug
		}
		rec.Content = filterContent(rec.Content)
		store.records[id] = rec
		store.order = append(store.order, id)
	}
	return store, nil
}

// filterContent keeps only blocks with a recognized tag, preserving
// their order
func filterContent(blocks []ContentBlock) []ContentBlock {
	if len(blocks) == 0 {
		return blocks
	}
	kept := make([]ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if contentTags[b.Tag] {
			kept = append(kept, b)
		}
	}
	return kept
}

// LoadStore reads a YAML catalog file into a Store
func LoadStore(path string) (Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}

	var file struct {
		Contracts []Record `yaml:"contracts"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file: %w", err)
	}

	return NewStore(file.Contracts)
}

// Lookup resolves an "author/slug" identifier. Unknown identifiers
// return ErrNotFound.
func (s *memoryStore) Lookup(identifier string) (Record, error) {
	identifier = strings.TrimSpace(identifier)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[identifier]
	if !ok {
		return Record{}, fmt.Errorf("%q: %w", identifier, ErrNotFound)
	}
	return rec, nil
}

// All returns every record in file order
func (s *memoryStore) All() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}
