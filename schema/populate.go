package schema

// Populate builds the nested populate spec a document source needs to
// return every sub-record, union member and media reference reachable
// from s. Recursion stops when a component ref is already open on the
// current branch; the cyclic attribute is then requested shallowly.
func Populate(s *Schema, reg Registry) map[string]any {
	return populate(s, reg, nil)
}

func populate(s *Schema, reg Registry, open []string) map[string]any {
	out := make(map[string]any)
	for _, attr := range s.Attributes {
		switch attr.Type {
		case KindMedia, KindRelation:
			out[attr.Name] = true
		case KindComponent:
			out[attr.Name] = populateRef(attr.Component, reg, open)
		case KindDynamicZone:
			on := make(map[string]any, len(attr.Components))
			for _, ref := range attr.Components {
				on[ref] = populateRef(ref, reg, open)
			}
			out[attr.Name] = map[string]any{"on": on}
		}
	}
	return out
}

func populateRef(ref string, reg Registry, open []string) any {
	for _, o := range open {
		if o == ref {
			return true
		}
	}
	sub, ok := reg.Component(ref)
	if !ok {
		return true
	}
	nested := populate(sub, reg, append(open[:len(open):len(open)], ref))
	if len(nested) == 0 {
		return true
	}
	return map[string]any{"populate": nested}
}
