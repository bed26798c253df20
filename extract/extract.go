// Package extract walks a document against its schema and collects the
// translatable text leaves as addressable segments.
//
// Only top-level attributes flagged as localized are visited. Inside
// components and dynamic zones every attribute is visited, because the
// localized flag only exists on the owning content type.
package extract

import (
	"sort"
	"strconv"
	"strings"

	"github.com/minios-linux/doclate/docpath"
	"github.com/minios-linux/doclate/schema"
)

// Segment is one translatable string and its address in the document.
type Segment struct {
	ID   string       `json:"id"`
	Path docpath.Path `json:"path"`
	Text string       `json:"text"`
}

// Options controls which attribute kinds are walked.
type Options struct {
	// IncludeJSON walks free-form json attributes and emits every string in them.
	IncludeJSON bool
}

// mediaTextFields are the only keys translated on a media reference.
var mediaTextFields = []string{"alternativeText", "caption"}

type walker struct {
	reg  schema.Registry
	opts Options
	segs []Segment
}

// Walk returns the segments of doc in attribute order. Segment IDs are
// assigned sequentially and are only meaningful for this call.
func Walk(s *schema.Schema, reg schema.Registry, doc map[string]any, opts Options) []Segment {
	w := &walker{reg: reg, opts: opts}
	for _, attr := range s.LocalizedAttributes() {
		v, ok := doc[attr.Name]
		if !ok || v == nil {
			continue
		}
		w.attribute(attr, v, docpath.Path{docpath.Key(attr.Name)}, nil)
	}
	return w.segs
}

func (w *walker) emit(p docpath.Path, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	w.segs = append(w.segs, Segment{
		ID:   "s" + strconv.Itoa(len(w.segs)),
		Path: p,
		Text: text,
	})
}

func (w *walker) attribute(attr schema.Attribute, v any, p docpath.Path, open []string) {
	switch {
	case attr.Type.IsText():
		if s, ok := v.(string); ok {
			w.emit(p, s)
		}
	case attr.Type == schema.KindBlocks:
		w.blocks(v, p)
	case attr.Type == schema.KindJSON:
		if w.opts.IncludeJSON {
			w.json(v, p)
		}
	case attr.Type == schema.KindMedia:
		w.media(v, p)
	case attr.Type == schema.KindComponent:
		w.component(attr.Component, v, p, open)
	case attr.Type == schema.KindDynamicZone:
		w.dynamicZone(v, p, open)
	}
}

// blocks emits only values stored under a key literally named "text".
func (w *walker) blocks(v any, p docpath.Path) {
	switch t := v.(type) {
	case []any:
		for i, el := range t {
			w.blocks(el, p.Append(docpath.Index(i)))
		}
	case map[string]any:
		for _, k := range sortedKeys(t) {
			val := t[k]
			if s, ok := val.(string); ok {
				if k == "text" {
					w.emit(p.Append(docpath.Key(k)), s)
				}
				continue
			}
			w.blocks(val, p.Append(docpath.Key(k)))
		}
	}
}

func (w *walker) json(v any, p docpath.Path) {
	switch t := v.(type) {
	case string:
		w.emit(p, t)
	case []any:
		for i, el := range t {
			w.json(el, p.Append(docpath.Index(i)))
		}
	case map[string]any:
		for _, k := range sortedKeys(t) {
			w.json(t[k], p.Append(docpath.Key(k)))
		}
	}
}

// media handles a bare reference, a list of references, and the
// {data: ref | [refs]} envelope some sources wrap relations in.
func (w *walker) media(v any, p docpath.Path) {
	switch t := v.(type) {
	case []any:
		for i, el := range t {
			if ref, ok := el.(map[string]any); ok {
				w.mediaRef(ref, p.Append(docpath.Index(i)))
			}
		}
	case map[string]any:
		if data, ok := t["data"]; ok {
			switch data.(type) {
			case map[string]any, []any:
				w.media(data, p.Append(docpath.Key("data")))
				return
			case nil:
				return
			}
		}
		w.mediaRef(t, p)
	}
}

func (w *walker) mediaRef(ref map[string]any, p docpath.Path) {
	for _, k := range mediaTextFields {
		if s, ok := ref[k].(string); ok {
			w.emit(p.Append(docpath.Key(k)), s)
		}
	}
}

func (w *walker) component(ref string, v any, p docpath.Path, open []string) {
	sub, open, ok := w.enter(ref, open)
	if !ok {
		return
	}
	switch t := v.(type) {
	case map[string]any:
		w.record(sub, t, p, open)
	case []any:
		for i, el := range t {
			if rec, ok := el.(map[string]any); ok {
				w.record(sub, rec, p.Append(docpath.Index(i)), open)
			}
		}
	}
}

func (w *walker) dynamicZone(v any, p docpath.Path, open []string) {
	items, ok := v.([]any)
	if !ok {
		return
	}
	for i, el := range items {
		rec, ok := el.(map[string]any)
		if !ok {
			continue
		}
		ref, _ := rec["__component"].(string)
		sub, branch, ok := w.enter(ref, open)
		if !ok {
			continue
		}
		w.record(sub, rec, p.Append(docpath.Index(i)), branch)
	}
}

// enter resolves ref and pushes it on the branch stack. It refuses refs
// that are unknown or already open on this branch.
func (w *walker) enter(ref string, open []string) (*schema.Schema, []string, bool) {
	if ref == "" {
		return nil, open, false
	}
	for _, o := range open {
		if o == ref {
			return nil, open, false
		}
	}
	sub, ok := w.reg.Component(ref)
	if !ok {
		return nil, open, false
	}
	return sub, append(open[:len(open):len(open)], ref), true
}

func (w *walker) record(s *schema.Schema, rec map[string]any, p docpath.Path, open []string) {
	for _, attr := range s.Attributes {
		v, ok := rec[attr.Name]
		if !ok || v == nil {
			continue
		}
		w.attribute(attr, v, p.Append(docpath.Key(attr.Name)), open)
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
