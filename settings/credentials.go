// Package settings provides unified storage for doclate user settings,
// including backend credentials and translation prompts.
//
// All settings are stored in the XDG data directory:
//
//	$XDG_DATA_HOME/doclate/  (default: ~/.local/share/doclate/)
//
// Files stored:
//   - auth.json     API keys and endpoints per backend
//   - prompts.json  system prompts (customizable by user)
//
// auth.json is a JSON object keyed by backend ID. File permissions are
// 0600 (owner read/write only).
//
// Lookup order for API keys:
//  1. --api-key flag (highest priority)
//  2. DOCLATE_API_KEY environment variable
//  3. This credential store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	dataDirName = "doclate"
	fileName    = "auth.json"
)

// Info is the entry stored per backend in auth.json.
type Info struct {
	// Type is always "api" for now.
	Type string `json:"type"`
	Key  string `json:"key,omitempty"`

	// Endpoint and model overrides (custom-openai, ollama)
	BaseURL string `json:"baseUrl,omitempty"`
	Model   string `json:"model,omitempty"`
}

// IsAPI returns true if this is an API key entry.
func (i *Info) IsAPI() bool {
	return i.Type == "api"
}

// Store holds all backend credentials, keyed by backend ID.
type Store map[string]*Info

// ---------------------------------------------------------------------------
// File path
// ---------------------------------------------------------------------------

// dataDir returns the XDG data directory for doclate.
// Respects $XDG_DATA_HOME (falls back to ~/.local/share).
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json file path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// DataDir returns the doclate data directory path.
func DataDir() (string, error) {
	return dataDir()
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store from disk.
// Returns an empty store if the file doesn't exist or is invalid.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}

	var store Store
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save writes the credential store to disk with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Get / Set / Remove
// ---------------------------------------------------------------------------

// Get returns the entry for a backend, or nil if not found.
func Get(backendID string) *Info {
	return Load()[backendID]
}

// Set stores an entry for a backend (upsert).
func Set(backendID string, info *Info) error {
	store := Load()
	store[backendID] = info
	return Save(store)
}

// Remove deletes credentials for a backend.
func Remove(backendID string) error {
	store := Load()
	if _, ok := store[backendID]; !ok {
		return nil
	}
	delete(store, backendID)
	return Save(store)
}

// RemoveAll removes all stored credentials.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing auth file: %w", err)
	}
	return nil
}

// SetAPIKey stores an API key for a backend, keeping any stored
// endpoint and model.
func SetAPIKey(backendID, key string) error {
	store := Load()
	info := store[backendID]
	if info == nil {
		info = &Info{}
	}
	info.Type = "api"
	info.Key = key
	store[backendID] = info
	return Save(store)
}

// GetAPIKey retrieves the stored API key for a backend.
func GetAPIKey(backendID string) string {
	info := Get(backendID)
	if info == nil || !info.IsAPI() {
		return ""
	}
	return info.Key
}

// GetBaseURL retrieves the stored base URL for a backend.
func GetBaseURL(backendID string) string {
	if info := Get(backendID); info != nil {
		return info.BaseURL
	}
	return ""
}

// GetModel retrieves the stored model for a backend.
func GetModel(backendID string) string {
	if info := Get(backendID); info != nil {
		return info.Model
	}
	return ""
}

// MaskKey returns a masked version of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
