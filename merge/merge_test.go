package merge

import (
	"reflect"
	"testing"

	"github.com/minios-linux/doclate/docpath"
	"github.com/minios-linux/doclate/extract"
	"github.com/minios-linux/doclate/schema"
)

func fixture(t *testing.T) (*schema.Schema, *schema.Catalog, map[string]any) {
	t.Helper()
	cat := schema.NewCatalog()
	if err := cat.AddComponent("shared.feature", &schema.Schema{Attributes: []schema.Attribute{
		{Name: "title", Type: schema.KindString},
		{Name: "content", Type: schema.KindText},
		{Name: "icon", Type: schema.KindMedia},
	}}); err != nil {
		t.Fatal(err)
	}
	s := &schema.Schema{Attributes: []schema.Attribute{
		{Name: "title", Type: schema.KindString, Localized: true},
		{Name: "features", Type: schema.KindComponent, Component: "shared.feature", Repeatable: true, Localized: true},
		{Name: "views", Type: schema.KindInteger, Localized: true},
	}}
	doc := map[string]any{
		"title": "Hello",
		"views": 12.0,
		"features": []any{
			map[string]any{"id": 7.0, "title": "A", "content": "A1", "icon": map[string]any{"id": 2.0}},
			map[string]any{"id": 8.0, "title": "B", "content": "B1"},
		},
	}
	return s, cat, doc
}

func TestApplyEmptyTranslationsIsNoop(t *testing.T) {
	s, cat, doc := fixture(t)
	segs := extract.Walk(s, cat, doc, extract.Options{})

	got := Apply(doc, segs, map[string]string{})
	if !reflect.DeepEqual(got, doc) {
		t.Fatalf("no-op merge changed document:\n%#v", got)
	}
}

func TestApplyReplacesEveryExtractedString(t *testing.T) {
	s, cat, doc := fixture(t)
	segs := extract.Walk(s, cat, doc, extract.Options{})

	tr := make(map[string]string, len(segs))
	for _, seg := range segs {
		tr[seg.ID] = "T:" + seg.Text
	}
	got := Apply(doc, segs, tr)

	for _, seg := range segs {
		v, _ := docpath.Get(got, seg.Path)
		if v != "T:"+seg.Text {
			t.Fatalf("%s = %v, want %q", seg.Path, v, "T:"+seg.Text)
		}
	}
	if got["views"] != 12.0 {
		t.Fatalf("non-text sibling changed: %v", got["views"])
	}
	icon, _ := docpath.Get(got, docpath.Parse("features.0.icon.id"))
	if icon != 2.0 {
		t.Fatalf("media reference changed: %v", icon)
	}

	if doc["title"] != "Hello" {
		t.Fatal("input document was mutated")
	}
}

func TestApplyReportsDrift(t *testing.T) {
	s, cat, doc := fixture(t)
	segs := extract.Walk(s, cat, doc, extract.Options{})

	drifted := docpath.CloneMap(doc)
	drifted["features"] = []any{drifted["features"].([]any)[0]}

	tr := make(map[string]string)
	for _, seg := range segs {
		tr[seg.ID] = "x"
	}
	got, dropped := ApplyReport(drifted, segs, tr)

	if len(dropped) != 2 {
		t.Fatalf("dropped = %d, want 2", len(dropped))
	}
	for _, d := range dropped {
		if d.Path[1] != docpath.Index(1) {
			t.Fatalf("unexpected dropped path %s", d.Path)
		}
	}
	if len(got["features"].([]any)) != 1 {
		t.Fatal("merge must not recreate missing containers")
	}
}
