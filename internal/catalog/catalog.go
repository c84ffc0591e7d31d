// Copyright (C) 2026 Flomentum Health
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalog holds the Reference Catalog: the in-memory,
// reload-on-change store of biomarker definitions, synonyms, unit
// conversions and reference ranges. The catalog is process-global and
// read-mostly -- readers observe one atomically-swapped snapshot for the
// duration of a single normalisation call.
package catalog

import (
	"strings"
	"sync/atomic"

	"github.com/flomentum/vitalscore/internal/model"
)

// snapshot is one immutable, fully-indexed view of the catalog. A reload
// builds a new snapshot and swaps it in atomically; in-flight readers keep
// using the snapshot they already loaded.
type snapshot struct {
	biomarkers map[string]model.Biomarker
	// synonymIndex maps a lower-cased label to the biomarker id(s) it
	// could refer to, in catalog declaration order (first wins on an
	// ambiguous label, matching the deterministic load-order tie-break
	//).
	synonymIndex map[string][]string
	conversions  map[string][]model.UnitConversion // keyed by biomarker id
	ranges       map[string][]model.ReferenceRange  // keyed by biomarker id
}

func emptySnapshot() *snapshot {
	return &snapshot{
		biomarkers:   map[string]model.Biomarker{},
		synonymIndex: map[string][]string{},
		conversions:  map[string][]model.UnitConversion{},
		ranges:       map[string][]model.ReferenceRange{},
	}
}

// Catalog is the process-wide Reference Catalog. The zero value is not
// usable; construct with New.
type Catalog struct {
	current atomic.Pointer[snapshot]
}

// New returns an empty, swappable Catalog. Call Load or Reload to populate it.
func New() *Catalog {
	c := &Catalog{}
	c.current.Store(emptySnapshot())
	return c
}

// Reload atomically replaces the catalog contents. It never mutates the
// snapshot readers are currently using.
func (c *Catalog) Reload(file CatalogFile) {
	snap := emptySnapshot()
	for _, b := range file.Biomarkers {
		snap.biomarkers[b.Id] = b
	}
	for _, s := range file.Synonyms {
		label := strings.ToLower(s.Label)
		snap.synonymIndex[label] = append(snap.synonymIndex[label], s.BiomarkerId)
	}
	for _, conv := range file.Conversions {
		snap.conversions[conv.BiomarkerId] = append(snap.conversions[conv.BiomarkerId], conv)
	}
	for _, r := range file.Ranges {
		snap.ranges[r.BiomarkerId] = append(snap.ranges[r.BiomarkerId], r)
	}
	c.current.Store(snap)
}

// Biomarker looks up a biomarker by its stable id.
func (c *Catalog) Biomarker(id string) (model.Biomarker, bool) {
	b, ok := c.current.Load().biomarkers[id]
	return b, ok
}

// ResolveName looks up a free-text biomarker label (case-insensitive) and
// returns the biomarker it resolves to. An ambiguous label (matched by more
// than one biomarker) resolves to the first one declared in the catalog
// file, the same deterministic-source-priority rule reference-range
// selection uses.
func (c *Catalog) ResolveName(name string) (model.Biomarker, bool) {
	snap := c.current.Load()
	ids, ok := snap.synonymIndex[strings.ToLower(strings.TrimSpace(name))]
	if !ok || len(ids) == 0 {
		return model.Biomarker{}, false
	}
	b, ok := snap.biomarkers[ids[0]]
	return b, ok
}

// Conversions returns every unit-conversion edge declared for a biomarker.
func (c *Catalog) Conversions(biomarkerId string) []model.UnitConversion {
	return c.current.Load().conversions[biomarkerId]
}

// Ranges returns every reference range declared for a biomarker.
func (c *Catalog) Ranges(biomarkerId string) []model.ReferenceRange {
	return c.current.Load().ranges[biomarkerId]
}

// CatalogFile is the on-disk representation loaded/reloaded from YAML.
type CatalogFile struct {
	Biomarkers  []model.Biomarker        `yaml:"biomarkers"`
	Synonyms    []model.Synonym          `yaml:"synonyms"`
	Conversions []model.UnitConversion   `yaml:"conversions"`
	Ranges      []model.ReferenceRange   `yaml:"ranges"`
}
