package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/doclate/langmeta"
)

// ProjectFileName is the project file name. Besides the settings read by
// Load it may declare translation targets for "doclate sync".
const ProjectFileName = ".doclate.yaml"

// ProjectFile is the targets section of .doclate.yaml.
type ProjectFile struct {
	// Locales is the default target locale list for all targets.
	Locales []string `yaml:"locales,omitempty"`
	// SourceLocale is the source locale (default "en").
	SourceLocale string `yaml:"source_locale,omitempty"`
	// Targets is the list of translation targets.
	Targets []Target `yaml:"targets"`
}

// Target describes documents of one content type to keep translated.
type Target struct {
	// Name is a human-readable label shown in logs.
	Name string `yaml:"name"`
	// Type is the content type UID, e.g. "api::article.article".
	Type string `yaml:"type"`
	// Documents lists document ids; empty means every stored document.
	Documents []string `yaml:"documents,omitempty"`
	// SourceLocale overrides the project source locale.
	SourceLocale string `yaml:"source_locale,omitempty"`
	// Locales overrides the project target locales.
	Locales []string `yaml:"locales,omitempty"`
	// Instructions are passed to the backend with every chunk.
	Instructions string `yaml:"instructions,omitempty"`
	// IncludeJSON also translates strings in json attributes.
	IncludeJSON bool `yaml:"include_json,omitempty"`
}

// LoadProjectFile loads and validates the targets of .doclate.yaml in
// rootDir. Returns nil if the file does not exist.
func LoadProjectFile(rootDir string) (*ProjectFile, error) {
	path := filepath.Join(rootDir, ProjectFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var pf ProjectFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if pf.SourceLocale == "" {
		pf.SourceLocale = "en"
	}

	seen := make(map[string]bool)
	for i := range pf.Targets {
		t := &pf.Targets[i]

		if t.Name == "" {
			return nil, fmt.Errorf("%s: target #%d has no name", path, i+1)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("%s: duplicate target name %q", path, t.Name)
		}
		seen[t.Name] = true
		if t.Type == "" {
			return nil, fmt.Errorf("%s: target %q has no type", path, t.Name)
		}

		// Inherit project defaults
		if len(t.Locales) == 0 {
			t.Locales = pf.Locales
		}
		if t.SourceLocale == "" {
			t.SourceLocale = pf.SourceLocale
		}

		if len(t.Locales) == 0 {
			return nil, fmt.Errorf("%s: target %q has no locales", path, t.Name)
		}
		for _, loc := range t.Locales {
			if langmeta.Canonical(loc) == langmeta.Canonical(t.SourceLocale) {
				return nil, fmt.Errorf("%s: target %q lists its source locale %q as a target", path, t.Name, loc)
			}
		}
	}

	return &pf, nil
}

// DocumentLister enumerates stored documents of a content type.
type DocumentLister interface {
	Documents(typeID string) ([]string, error)
}

// Job is one document translated into one locale.
type Job struct {
	Target       string
	TypeID       string
	DocumentID   string
	SourceLocale string
	TargetLocale string
	Instructions string
	IncludeJSON  bool
}

// Jobs expands every target into per-document, per-locale jobs. Targets
// without explicit documents are expanded with l.
func (pf *ProjectFile) Jobs(l DocumentLister) ([]Job, error) {
	var jobs []Job
	for _, t := range pf.Targets {
		docs := t.Documents
		if len(docs) == 0 {
			found, err := l.Documents(t.Type)
			if err != nil {
				return nil, fmt.Errorf("listing documents of %s: %w", t.Type, err)
			}
			docs = found
		}
		for _, doc := range docs {
			for _, loc := range t.Locales {
				jobs = append(jobs, Job{
					Target:       t.Name,
					TypeID:       t.Type,
					DocumentID:   doc,
					SourceLocale: t.SourceLocale,
					TargetLocale: loc,
					Instructions: t.Instructions,
					IncludeJSON:  t.IncludeJSON,
				})
			}
		}
	}
	return jobs, nil
}

// AllLocales returns the deduplicated union of all target locales.
func (pf *ProjectFile) AllLocales() []string {
	seen := make(map[string]bool)
	var all []string
	for _, t := range pf.Targets {
		for _, loc := range t.Locales {
			if !seen[loc] {
				seen[loc] = true
				all = append(all, loc)
			}
		}
	}
	sort.Strings(all)
	return all
}
