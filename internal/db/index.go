package db

import (
	"errors"
	"fmt"
	"regexp"
)

// FieldKind is the FT.CREATE schema keyword of a hash field.
type FieldKind string

const (
	KindTag     FieldKind = "TAG"
	KindNumeric FieldKind = "NUMERIC"
	KindVector  FieldKind = "VECTOR"
)

// CosineDistance is the only metric chunk vectors are indexed with; they are
// unit-normalized before they reach the store.
const CosineDistance = "COSINE"

// HNSW holds the graph parameters of a vector field. Zero values leave the
// server defaults in place.
type HNSW struct {
	Dim         int
	M           int
	EFConstruct int
}

// IndexField is one attribute of an FT index schema. Vector is set only for KindVector.
type IndexField struct {
	Name   string
	Kind   FieldKind
	Vector *HNSW
}

// IndexDefinition describes an FT index over the hashes under Prefixes.
type IndexDefinition struct {
	Name     string
	Prefixes []string
	Fields   []IndexField
}

var identRe = regexp.MustCompile(`^[A-Za-z0-9_:-]+$`)

// IsValidIdentifier reports whether s is usable as an index name or key segment.
func IsValidIdentifier(s string) bool { return identRe.MatchString(s) }

// NewIndex starts an index definition; chain field adders and finish with Build.
func NewIndex(name string, prefixes ...string) *IndexDefinition {
	return &IndexDefinition{Name: name, Prefixes: prefixes}
}

// Tag adds exact-match fields.
func (d *IndexDefinition) Tag(names ...string) *IndexDefinition {
	for _, n := range names {
		d.Fields = append(d.Fields, IndexField{Name: n, Kind: KindTag})
	}
	return d
}

// Numeric adds range-queryable fields.
func (d *IndexDefinition) Numeric(names ...string) *IndexDefinition {
	for _, n := range names {
		d.Fields = append(d.Fields, IndexField{Name: n, Kind: KindNumeric})
	}
	return d
}

// Vector adds an HNSW float32 vector field compared by cosine distance.
func (d *IndexDefinition) Vector(name string, p HNSW) *IndexDefinition {
	d.Fields = append(d.Fields, IndexField{Name: name, Kind: KindVector, Vector: &p})
	return d
}

// Build validates the definition and returns it.
func (d *IndexDefinition) Build() (*IndexDefinition, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate rejects definitions FT.CREATE would refuse or misinterpret.
func (d *IndexDefinition) Validate() error {
	if !IsValidIdentifier(d.Name) {
		return fmt.Errorf("index name %q: must match %s", d.Name, identRe)
	}
	if len(d.Fields) == 0 {
		return errors.New("index needs at least one field")
	}
	seen := make(map[string]bool, len(d.Fields))
	for _, f := range d.Fields {
		switch {
		case f.Name == "":
			return errors.New("index field without a name")
		case seen[f.Name]:
			return fmt.Errorf("duplicate index field %q", f.Name)
		case f.Kind == KindVector && (f.Vector == nil || f.Vector.Dim <= 0):
			return fmt.Errorf("vector field %q needs a positive dimension", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}
