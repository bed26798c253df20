// Package schema describes the shape of translatable documents.
//
// A content type (Schema with a UID) and a component (Schema with a
// component ref) share the same representation: an ordered list of
// attributes. Order matters because it drives segment order, and segment
// order has to be stable between runs for resumable translation.
package schema

import (
	"fmt"
	"sort"
)

// Kind is the attribute type name as it appears in schema files.
type Kind string

const (
	KindString      Kind = "string"
	KindText        Kind = "text"
	KindRichText    Kind = "richtext"
	KindBlocks      Kind = "blocks"
	KindJSON        Kind = "json"
	KindMedia       Kind = "media"
	KindRelation    Kind = "relation"
	KindComponent   Kind = "component"
	KindDynamicZone Kind = "dynamiczone"

	KindInteger     Kind = "integer"
	KindDecimal     Kind = "decimal"
	KindBoolean     Kind = "boolean"
	KindDate        Kind = "date"
	KindDateTime    Kind = "datetime"
	KindEnumeration Kind = "enumeration"
	KindUID         Kind = "uid"
	KindEmail       Kind = "email"
)

// IsText reports whether values of this kind are translated as a whole.
func (k Kind) IsText() bool {
	return k == KindString || k == KindText || k == KindRichText
}

// Attribute is one named field of a schema.
type Attribute struct {
	Name string `yaml:"-" json:"name"`
	Type Kind   `yaml:"type" json:"type"`
	// Component is the nested schema ref for component attributes.
	Component string `yaml:"component,omitempty" json:"component,omitempty"`
	// Components lists the allowed refs of a dynamic zone.
	Components []string `yaml:"components,omitempty" json:"components,omitempty"`
	Repeatable bool     `yaml:"repeatable,omitempty" json:"repeatable,omitempty"`
	Multiple   bool     `yaml:"multiple,omitempty" json:"multiple,omitempty"`
	Localized  bool     `yaml:"localized,omitempty" json:"localized,omitempty"`
}

// Schema is a content type or a component.
type Schema struct {
	UID        string
	Localized  bool
	Attributes []Attribute
}

// Attribute looks up an attribute by name.
func (s *Schema) Attribute(name string) (Attribute, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return Attribute{}, false
}

// LocalizedAttributes returns the attributes flagged for localization, in order.
func (s *Schema) LocalizedAttributes() []Attribute {
	var out []Attribute
	for _, a := range s.Attributes {
		if a.Localized {
			out = append(out, a)
		}
	}
	return out
}

// Registry resolves content types and components by identifier.
type Registry interface {
	Schema(uid string) (*Schema, bool)
	Component(ref string) (*Schema, bool)
}

// Catalog is an in-memory Registry.
type Catalog struct {
	types      map[string]*Schema
	components map[string]*Schema
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		types:      make(map[string]*Schema),
		components: make(map[string]*Schema),
	}
}

// AddType registers a content type. A duplicate UID is an error.
func (c *Catalog) AddType(s *Schema) error {
	if s.UID == "" {
		return fmt.Errorf("content type without uid")
	}
	if _, dup := c.types[s.UID]; dup {
		return fmt.Errorf("duplicate content type %q", s.UID)
	}
	c.types[s.UID] = s
	return nil
}

// AddComponent registers a component under ref.
func (c *Catalog) AddComponent(ref string, s *Schema) error {
	if ref == "" {
		return fmt.Errorf("component without ref")
	}
	if _, dup := c.components[ref]; dup {
		return fmt.Errorf("duplicate component %q", ref)
	}
	if s.UID == "" {
		s.UID = ref
	}
	c.components[ref] = s
	return nil
}

func (c *Catalog) Schema(uid string) (*Schema, bool) {
	s, ok := c.types[uid]
	return s, ok
}

func (c *Catalog) Component(ref string) (*Schema, bool) {
	s, ok := c.components[ref]
	return s, ok
}

// Types returns the registered content type UIDs, sorted.
func (c *Catalog) Types() []string {
	out := make([]string, 0, len(c.types))
	for uid := range c.types {
		out = append(out, uid)
	}
	sort.Strings(out)
	return out
}

// Components returns the registered component refs, sorted.
func (c *Catalog) Components() []string {
	out := make([]string, 0, len(c.components))
	for ref := range c.components {
		out = append(out, ref)
	}
	sort.Strings(out)
	return out
}
