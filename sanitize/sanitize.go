// Package sanitize removes instance identity from owned sub-records.
//
// A translated document is written into a different target entity, which
// does not own the source's component instances. Sending their ids back
// makes the host reject the write, so every component and dynamic-zone
// record loses its identity fields. Media and relation references point
// at independent resources and keep theirs.
package sanitize

import (
	"github.com/minios-linux/doclate/docpath"
	"github.com/minios-linux/doclate/schema"
)

// IdentityFields are removed from every owned sub-record.
var IdentityFields = []string{"id", "createdAt", "updatedAt", "publishedAt", "createdBy", "updatedBy"}

// Strip returns a copy of doc with identity fields removed from every
// record reachable through component and dynamic-zone attributes.
// The top-level record itself is left alone.
func Strip(s *schema.Schema, reg schema.Registry, doc map[string]any) map[string]any {
	out := docpath.CloneMap(doc)
	if out == nil {
		return make(map[string]any)
	}
	attributes(s, reg, out)
	return out
}

func attributes(s *schema.Schema, reg schema.Registry, rec map[string]any) {
	for _, attr := range s.Attributes {
		v, ok := rec[attr.Name]
		if !ok || v == nil {
			continue
		}
		switch attr.Type {
		case schema.KindComponent:
			sub, _ := reg.Component(attr.Component)
			forEachRecord(v, func(r map[string]any) { record(sub, reg, r) })
		case schema.KindDynamicZone:
			forEachRecord(v, func(r map[string]any) {
				ref, _ := r["__component"].(string)
				sub, _ := reg.Component(ref)
				record(sub, reg, r)
			})
		}
	}
}

// record strips r in place. A nil schema still loses its identity
// fields; there is just nothing known to recurse into.
func record(s *schema.Schema, reg schema.Registry, r map[string]any) {
	for _, f := range IdentityFields {
		delete(r, f)
	}
	if s != nil {
		attributes(s, reg, r)
	}
}

func forEachRecord(v any, fn func(map[string]any)) {
	switch t := v.(type) {
	case map[string]any:
		fn(t)
	case []any:
		for _, el := range t {
			if r, ok := el.(map[string]any); ok {
				fn(r)
			}
		}
	}
}
