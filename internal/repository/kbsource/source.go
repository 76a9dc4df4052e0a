// Package kbsource loads the static knowledge base catalog.
package kbsource

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/triage/internal/domain/kb"
)

// ErrEmptyKB is returned when the source contains no entries.
var ErrEmptyKB = errors.New("knowledge base is empty")

type record struct {
	ID                string   `json:"id" yaml:"id"`
	Title             string   `json:"title" yaml:"title"`
	Symptoms          []string `json:"symptoms" yaml:"symptoms"`
	RecommendedAction string   `json:"recommended_action" yaml:"recommended_action"`
}

// Load reads a KB file. Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func Load(path string) (*kb.Catalog, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read kb %s: %w", path, err)
	}

	var recs []record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &recs)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&recs)
	}
	if err != nil {
		return nil, fmt.Errorf("parse kb %s: %w", path, err)
	}

	return build(recs)
}

// build converts raw records into a validated catalog.
func build(recs []record) (*kb.Catalog, error) {
	if len(recs) == 0 {
		return nil, ErrEmptyKB
	}

	entries := make([]kb.Entry, 0, len(recs))
	for i, r := range recs {
		e, err := kb.New(r.ID, r.Title, r.Symptoms, r.RecommendedAction)
		if err != nil {
			return nil, fmt.Errorf("kb entry #%d: %w", i, err)
		}
		entries = append(entries, e)
	}

	cat, err := kb.NewCatalog(entries)
	if err != nil {
		return nil, fmt.Errorf("build kb catalog: %w", err)
	}
	return cat, nil
}
