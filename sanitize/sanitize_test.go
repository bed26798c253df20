package sanitize

import (
	"reflect"
	"testing"

	"github.com/minios-linux/doclate/schema"
)

func catalog(t *testing.T) *schema.Catalog {
	t.Helper()
	cat := schema.NewCatalog()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(cat.AddComponent("shared.nested", &schema.Schema{Attributes: []schema.Attribute{
		{Name: "title", Type: schema.KindString},
	}}))
	must(cat.AddComponent("shared.seo", &schema.Schema{Attributes: []schema.Attribute{
		{Name: "metaTitle", Type: schema.KindString},
		{Name: "nested", Type: schema.KindComponent, Component: "shared.nested"},
		{Name: "image", Type: schema.KindMedia},
		{Name: "author", Type: schema.KindRelation},
	}}))
	return cat
}

func TestStripNestedSubRecords(t *testing.T) {
	s := &schema.Schema{Attributes: []schema.Attribute{
		{Name: "seo", Type: schema.KindComponent, Component: "shared.seo"},
	}}
	doc := map[string]any{
		"id": 1.0,
		"seo": map[string]any{
			"id":        10.0,
			"metaTitle": "Hello",
			"nested":    map[string]any{"id": 11.0, "title": "Nested"},
		},
	}

	got := Strip(s, catalog(t), doc)
	want := map[string]any{
		"id": 1.0,
		"seo": map[string]any{
			"metaTitle": "Hello",
			"nested":    map[string]any{"title": "Nested"},
		},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Strip =\n%#v\nwant\n%#v", got, want)
	}
	if doc["seo"].(map[string]any)["id"] != 10.0 {
		t.Fatal("input document was mutated")
	}
}

func TestStripKeepsReferenceIDs(t *testing.T) {
	s := &schema.Schema{Attributes: []schema.Attribute{
		{Name: "seo", Type: schema.KindComponent, Component: "shared.seo", Repeatable: true},
		{Name: "cover", Type: schema.KindMedia},
	}}
	doc := map[string]any{
		"cover": map[string]any{"id": 5.0, "createdAt": "2024-01-01"},
		"seo": []any{map[string]any{
			"id":        3.0,
			"createdAt": "2024-01-01",
			"updatedBy": map[string]any{"id": 1.0},
			"image":     map[string]any{"id": 9.0, "createdAt": "2024-01-01"},
			"author":    map[string]any{"id": 4.0},
		}},
	}

	got := Strip(s, catalog(t), doc)
	seo := got["seo"].([]any)[0].(map[string]any)
	for _, f := range IdentityFields {
		if _, ok := seo[f]; ok {
			t.Fatalf("field %q not removed", f)
		}
	}
	if seo["image"].(map[string]any)["id"] != 9.0 || seo["image"].(map[string]any)["createdAt"] == nil {
		t.Fatal("media reference lost its identity")
	}
	if seo["author"].(map[string]any)["id"] != 4.0 {
		t.Fatal("relation reference lost its id")
	}
	if got["cover"].(map[string]any)["id"] != 5.0 {
		t.Fatal("top-level media id removed")
	}
}

func TestStripDynamicZone(t *testing.T) {
	s := &schema.Schema{Attributes: []schema.Attribute{
		{Name: "blocks", Type: schema.KindDynamicZone, Components: []string{"shared.seo"}},
	}}
	doc := map[string]any{"blocks": []any{
		map[string]any{"__component": "shared.seo", "id": 1.0, "nested": map[string]any{"id": 2.0, "title": "x"}},
		map[string]any{"__component": "unknown.ref", "id": 3.0, "publishedAt": "now"},
	}}

	got := Strip(s, catalog(t), doc)
	want := map[string]any{"blocks": []any{
		map[string]any{"__component": "shared.seo", "nested": map[string]any{"title": "x"}},
		map[string]any{"__component": "unknown.ref"},
	}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Strip =\n%#v\nwant\n%#v", got, want)
	}
}
