package kb

import (
	"fmt"
	"slices"
	"strings"
)

// Entry is a known issue in the knowledge base (immutable value object).
type Entry struct {
	id                string
	title             string
	symptoms          []string
	recommendedAction string
}

// New validates and creates an Entry.
func New(id, title string, symptoms []string, recommendedAction string) (Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Entry{}, fmt.Errorf("kb entry ID is required")
	}
	if len(id) > 256 {
		return Entry{}, fmt.Errorf("kb entry ID too long (max 256)")
	}

	return Entry{
		id:                id,
		title:             title,
		symptoms:          slices.Clone(symptoms),
		recommendedAction: recommendedAction,
	}, nil
}

// ID returns the stable entry identifier.
func (e *Entry) ID() string { return e.id }

// Title returns the human-readable issue title.
func (e *Entry) Title() string { return e.title }

// Symptoms returns the ordered symptom phrases.
func (e *Entry) Symptoms() []string { return e.symptoms }

// RecommendedAction returns the canned remediation text.
func (e *Entry) RecommendedAction() string { return e.recommendedAction }

// Text is the string fed to the embedder for this entry: "title. symptom symptom ...".
func (e *Entry) Text() string {
	return e.title + ". " + strings.Join(e.symptoms, " ")
}

// Catalog is the ordered, read-only set of entries loaded at startup.
type Catalog struct {
	entries []Entry
}

// NewCatalog builds a catalog, rejecting duplicate IDs.
func NewCatalog(entries []Entry) (*Catalog, error) {
	seen := make(map[string]struct{}, len(entries))
	for i := range entries {
		id := entries[i].ID()
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("duplicate kb entry ID %q", id)
		}
		seen[id] = struct{}{}
	}
	return &Catalog{entries: slices.Clone(entries)}, nil
}

// Entries returns entries in source order.
func (c *Catalog) Entries() []Entry { return c.entries }

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }
