// Package filestore keeps cache buckets as YAML files on disk.
//
// A bucket key such as "translation-cache:v1:ab" maps to the file
// <dir>/translation-cache/v1/ab.yaml:
//
//	version: 1
//	entries:
//	  ab12...: Hallo Welt
//
// Writes go to a temporary file that is renamed over the bucket, so a
// crash never leaves a half-written bucket behind. Same-bucket updates
// are serialized inside the process only; two processes sharing one
// directory should use the sql store instead.
package filestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/minios-linux/doclate/store/keylock"
)

// FormatVersion is the bucket file format version.
const FormatVersion = 1

const fileExt = ".yaml"

// bucketFile is the on-disk layout of one bucket.
type bucketFile struct {
	Version int               `yaml:"version"`
	Entries map[string]string `yaml:"entries"`
}

// Store is a directory of bucket files.
type Store struct {
	dir   string
	locks keylock.Locker
}

// New returns a store rooted at dir. The directory is created lazily.
func New(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(key string) (string, error) {
	parts := strings.Split(key, ":")
	for _, p := range parts {
		if p == "" || p == "." || p == ".." || strings.ContainsAny(p, `/\`) {
			return "", fmt.Errorf("invalid bucket key %q", key)
		}
	}
	parts[len(parts)-1] += fileExt
	return filepath.Join(append([]string{s.dir}, parts...)...), nil
}

func (s *Store) load(path string) (*bucketFile, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &bucketFile{Version: FormatVersion, Entries: map[string]string{}}, false, nil
		}
		return nil, false, fmt.Errorf("reading %s: %w", path, err)
	}
	var bf bucketFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return nil, false, fmt.Errorf("parsing %s: %w", path, err)
	}
	if bf.Entries == nil {
		bf.Entries = map[string]string{}
	}
	return &bf, true, nil
}

func (s *Store) save(path string, bf *bucketFile) error {
	bf.Version = FormatVersion
	data, err := yaml.Marshal(bf)
	if err != nil {
		return fmt.Errorf("marshaling bucket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating bucket directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".bucket-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

func (s *Store) Get(_ context.Context, key string) (map[string]string, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, false, err
	}
	bf, ok, err := s.load(path)
	if err != nil || !ok {
		return nil, false, err
	}
	return bf.Entries, true, nil
}

func (s *Store) Update(_ context.Context, key string, fn func(map[string]string)) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	unlock := s.locks.Lock(key)
	defer unlock()

	bf, _, err := s.load(path)
	if err != nil {
		return err
	}
	fn(bf.Entries)
	return s.save(path, bf)
}

func (s *Store) Reset(_ context.Context, key string) (bool, error) {
	path, err := s.path(key)
	if err != nil {
		return false, err
	}
	unlock := s.locks.Lock(key)
	defer unlock()

	bf, ok, err := s.load(path)
	if err != nil || !ok || len(bf.Entries) == 0 {
		return false, err
	}
	bf.Entries = map[string]string{}
	if err := s.save(path, bf); err != nil {
		return false, err
	}
	return true, nil
}

// Stats returns the number of bucket files and entries under the root.
func (s *Store) Stats() (buckets, entries int, err error) {
	err = filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == s.dir {
				return filepath.SkipDir
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != fileExt {
			return nil
		}
		bf, ok, err := s.load(path)
		if err != nil {
			return err
		}
		if ok {
			buckets++
			entries += len(bf.Entries)
		}
		return nil
	})
	return buckets, entries, err
}
