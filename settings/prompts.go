package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// PromptDefault is the prompts.json key of the translation system prompt.
const PromptDefault = "default"

// PromptsConfig holds the system prompts loaded from prompts.json.
type PromptsConfig struct {
	Prompts map[string]string `json:"prompts"`
}

// Prompt returns the named prompt, or "" when it is not set.
func (c *PromptsConfig) Prompt(name string) string {
	if c == nil {
		return ""
	}
	return c.Prompts[name]
}

// PromptsFilePath returns the path to the prompts.json file.
func PromptsFilePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prompts.json"), nil
}

// LoadPrompts reads prompts from path. A missing file is not an error
// and yields nil.
func LoadPrompts(path string) (*PromptsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var config PromptsConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	return &config, nil
}

// WritePrompts writes prompts to path as formatted JSON.
func WritePrompts(path string, prompts map[string]string) error {
	data, err := json.MarshalIndent(PromptsConfig{Prompts: prompts}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling prompts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating prompts directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing prompts file: %w", err)
	}
	return nil
}

// LoadPromptsFromDefaultLocation loads prompts.json from the data
// directory, creating it from defaults when it does not exist yet.
// It returns the file path alongside the loaded prompts.
func LoadPromptsFromDefaultLocation(defaults map[string]string) (*PromptsConfig, string, error) {
	path, err := PromptsFilePath()
	if err != nil {
		return nil, "", fmt.Errorf("cannot determine prompts file path: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := WritePrompts(path, defaults); err != nil {
			return nil, "", fmt.Errorf("creating default prompts file: %w", err)
		}
	}

	config, err := LoadPrompts(path)
	if err != nil {
		return nil, "", err
	}
	return config, path, nil
}
