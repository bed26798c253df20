package schema

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestLoadDirPreservesAttributeOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "article.yaml", `uid: api::article.article
localized: true
attributes:
  zeta: {type: string, localized: true}
  alpha: {type: richtext, localized: true}
  slug: {type: uid}
  seo: {type: component, component: shared.seo, localized: true}
`)
	writeFile(t, dir, "components/shared.yml", `component: shared.seo
attributes:
  metaTitle: {type: string}
---
component: shared.quote
attributes:
  body: {type: text}
`)

	cat, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	s, ok := cat.Schema("api::article.article")
	if !ok {
		t.Fatal("article type not registered")
	}
	var names []string
	for _, a := range s.Attributes {
		names = append(names, a.Name)
	}
	if want := []string{"zeta", "alpha", "slug", "seo"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("attribute order = %v, want %v", names, want)
	}
	if !s.Localized {
		t.Fatal("localized flag lost")
	}
	if got := len(s.LocalizedAttributes()); got != 3 {
		t.Fatalf("localized attributes = %d, want 3", got)
	}

	if got := cat.Components(); !reflect.DeepEqual(got, []string{"shared.quote", "shared.seo"}) {
		t.Fatalf("components = %v", got)
	}
	if c, _ := cat.Component("shared.seo"); c.UID != "shared.seo" {
		t.Fatalf("component uid = %q", c.UID)
	}
}

func TestLoadDirErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
		wantErr string
	}{
		{"no key", "attributes:\n  a: {type: string}\n", "uid or component"},
		{"missing type", "uid: x\nattributes:\n  a: {localized: true}\n", "has no type"},
		{"component without ref", "uid: x\nattributes:\n  a: {type: component}\n", "no component ref"},
		{"attributes not mapping", "uid: x\nattributes: [a, b]\n", "must be a mapping"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "s.yaml", tc.content)
			_, err := LoadDir(dir)
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestDuplicateType(t *testing.T) {
	cat := NewCatalog()
	if err := cat.AddType(&Schema{UID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := cat.AddType(&Schema{UID: "a"}); err == nil {
		t.Fatal("expected duplicate error")
	}
}

func TestPopulateStopsOnCycles(t *testing.T) {
	cat := NewCatalog()
	_ = cat.AddComponent("menu.item", &Schema{Attributes: []Attribute{
		{Name: "label", Type: KindString},
		{Name: "children", Type: KindComponent, Component: "menu.item", Repeatable: true},
		{Name: "icon", Type: KindMedia},
	}})
	_ = cat.AddComponent("blocks.hero", &Schema{Attributes: []Attribute{
		{Name: "title", Type: KindString},
	}})
	page := &Schema{UID: "api::page.page", Attributes: []Attribute{
		{Name: "title", Type: KindString, Localized: true},
		{Name: "menu", Type: KindComponent, Component: "menu.item", Localized: true},
		{Name: "body", Type: KindDynamicZone, Components: []string{"blocks.hero", "menu.item"}, Localized: true},
		{Name: "cover", Type: KindMedia},
		{Name: "author", Type: KindRelation},
	}}

	got := Populate(page, cat)
	want := map[string]any{
		"menu": map[string]any{"populate": map[string]any{
			"children": true,
			"icon":     true,
		}},
		"body": map[string]any{"on": map[string]any{
			"blocks.hero": true,
			"menu.item": map[string]any{"populate": map[string]any{
				"children": true,
				"icon":     true,
			}},
		}},
		"cover":  true,
		"author": true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Populate =\n%#v\nwant\n%#v", got, want)
	}
}
