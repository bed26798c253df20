package backend

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var markdownCodeBlock = regexp.MustCompile("(?s)```[A-Za-z0-9_-]*\\s*(.*?)\\s*```")

// ParseSegments recovers the {"segments":[{"id","text"}]} payload from a
// model answer. It tries, in order: the whole answer, the first fenced
// code block, and the span from the first '{' to the last '}'. Entries
// whose id or text is not a string are dropped.
func ParseSegments(content string) ([]Item, error) {
	content = strings.TrimSpace(content)
	candidates := []string{content}
	if m := markdownCodeBlock.FindStringSubmatch(content); len(m) > 1 {
		candidates = append(candidates, m[1])
	}
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		candidates = append(candidates, content[start:end+1])
	}

	for _, c := range candidates {
		if items, ok := decodeSegments(c); ok {
			return items, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrMalformedOutput, truncate(content, 300))
}

func decodeSegments(s string) ([]Item, bool) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal([]byte(s), &envelope); err != nil {
		return nil, false
	}
	raw, ok := envelope["segments"]
	if !ok {
		return nil, false
	}
	var entries []any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, false
	}

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		obj, ok := e.(map[string]any)
		if !ok {
			continue
		}
		id, idOK := obj["id"].(string)
		text, textOK := obj["text"].(string)
		if !idOK || !textOK {
			continue
		}
		items = append(items, Item{ID: id, Text: text})
	}
	return items, true
}
