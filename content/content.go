// Package content reads and writes localized documents.
//
// Dir keeps one JSON file per document locale:
//
//	<root>/<type>/<document>/<locale>.json
//
// Type identifiers such as "api::article.article" are used verbatim as
// directory names.
package content

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minios-linux/doclate/docpath"
	"github.com/minios-linux/doclate/schema"
)

// ErrNotFound is returned when a document does not exist in a locale.
var ErrNotFound = errors.New("document not found")

// Source fetches one locale of a document. populate is the relation
// spec built by schema.Populate; sources that always return fully
// populated documents may ignore it.
type Source interface {
	FetchLocalized(ctx context.Context, typeID, documentID, locale string, populate map[string]any) (map[string]any, error)
}

// Dir is a Source backed by a directory tree of JSON files.
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at root.
func NewDir(root string) *Dir {
	return &Dir{root: root}
}

// Root returns the directory the documents live in.
func (d *Dir) Root() string { return d.root }

func checkName(what, name string) error {
	if name == "" {
		return fmt.Errorf("empty %s", what)
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid %s %q", what, name)
	}
	return nil
}

func (d *Dir) path(typeID, documentID, locale string) (string, error) {
	for _, c := range []struct{ what, name string }{
		{"type", typeID}, {"document id", documentID}, {"locale", locale},
	} {
		if err := checkName(c.what, c.name); err != nil {
			return "", err
		}
	}
	return filepath.Join(d.root, typeID, documentID, locale+".json"), nil
}

// FetchLocalized reads a document. Files hold documents already
// populated, so populate is not consulted.
func (d *Dir) FetchLocalized(ctx context.Context, typeID, documentID, locale string, populate map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := d.path(typeID, documentID, locale)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s/%s (%s)", ErrNotFound, typeID, documentID, locale)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	return doc, nil
}

// Save writes a document locale atomically (temp file + rename).
func (d *Dir) Save(ctx context.Context, typeID, documentID, locale string, doc map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := d.path(typeID, documentID, locale)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".doc-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming into %s: %w", path, err)
	}
	return nil
}

// Documents lists the document ids stored for a type, sorted.
func (d *Dir) Documents(typeID string) ([]string, error) {
	if err := checkName("type", typeID); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(d.root, typeID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Locales lists the locales a document exists in, sorted.
func (d *Dir) Locales(typeID, documentID string) ([]string, error) {
	if _, err := d.path(typeID, documentID, "x"); err != nil {
		return nil, err
	}
	matches, err := filepath.Glob(filepath.Join(d.root, typeID, documentID, "*.json"))
	if err != nil {
		return nil, err
	}
	locales := make([]string, 0, len(matches))
	for _, m := range matches {
		locales = append(locales, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	sort.Strings(locales)
	return locales, nil
}

// PickLocalized returns a copy of doc holding only the top-level
// attributes s marks as localized.
func PickLocalized(s *schema.Schema, doc map[string]any) map[string]any {
	out := make(map[string]any)
	for _, attr := range s.LocalizedAttributes() {
		if v, ok := doc[attr.Name]; ok {
			out[attr.Name] = docpath.Clone(v)
		}
	}
	return out
}
