package schema

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// schemaFile is the on-disk form of one schema document. Attributes are
// kept as a raw node so mapping order survives decoding.
type schemaFile struct {
	UID        string    `yaml:"uid"`
	Component  string    `yaml:"component"`
	Localized  bool      `yaml:"localized"`
	Attributes yaml.Node `yaml:"attributes"`
}

// LoadDir reads every *.yaml / *.yml file under dir (recursively) into a
// new Catalog. A file may hold several YAML documents separated by "---".
//
// Content type document:
//
//	uid: api::article.article
//	localized: true
//	attributes:
//	  title: {type: string, localized: true}
//	  seo:   {type: component, component: shared.seo, localized: true}
//
// Component document:
//
//	component: shared.seo
//	attributes:
//	  metaTitle: {type: string}
func LoadDir(dir string) (*Catalog, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning schema dir %s: %w", dir, err)
	}
	sort.Strings(files)

	cat := NewCatalog()
	for _, path := range files {
		if err := loadFile(cat, path); err != nil {
			return nil, err
		}
	}
	return cat, nil
}

func loadFile(cat *Catalog, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	for {
		var doc schemaFile
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		s, err := doc.build()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		switch {
		case doc.UID != "" && doc.Component != "":
			return fmt.Errorf("%s: document declares both uid and component", path)
		case doc.UID != "":
			err = cat.AddType(s)
		case doc.Component != "":
			err = cat.AddComponent(doc.Component, s)
		default:
			return fmt.Errorf("%s: document needs a uid or component key", path)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
	}
}

func (f *schemaFile) build() (*Schema, error) {
	s := &Schema{UID: f.UID, Localized: f.Localized}
	node := &f.Attributes
	if node.Kind == 0 {
		return s, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("attributes must be a mapping (line %d)", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var attr Attribute
		if err := node.Content[i+1].Decode(&attr); err != nil {
			return nil, fmt.Errorf("attribute %q: %w", name, err)
		}
		attr.Name = name
		if attr.Type == "" {
			return nil, fmt.Errorf("attribute %q has no type", name)
		}
		if attr.Type == KindComponent && attr.Component == "" {
			return nil, fmt.Errorf("component attribute %q has no component ref", name)
		}
		s.Attributes = append(s.Attributes, attr)
	}
	return s, nil
}
