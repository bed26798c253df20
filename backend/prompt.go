package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/minios-linux/doclate/langmeta"
)

// DefaultSystemPrompt is used unless Config.SystemPrompt overrides it.
const DefaultSystemPrompt = `You are a professional translator localizing the content of a website or application into {{targetLang}}.

INPUT:
- You receive a JSON object with a "segments" array. Each segment has an "id" and a "text".
- Segments are fields of one structured document (titles, descriptions, rich text, captions).

RULES:
- Translate only the "text" of each segment into {{targetLang}}.
- Never change, drop, merge, split or invent ids. Return exactly one segment per input segment.
- Preserve HTML tags, Markdown syntax, URLs, e-mail addresses and placeholders ({name}, {{var}}, %s, :param) exactly.
- Preserve leading and trailing whitespace and line breaks.
- Keep brand names and product names unchanged.
- Translate for natural, fluent {{targetLang}}, not word for word.

OUTPUT:
Return ONLY strict JSON of the form {"segments":[{"id":"...","text":"..."}]}.
No explanations, no markdown code fences.`

// SystemPrompt expands template (or DefaultSystemPrompt when empty) for
// the target locale.
func SystemPrompt(template, targetLocale string) string {
	if strings.TrimSpace(template) == "" {
		template = DefaultSystemPrompt
	}
	return strings.ReplaceAll(template, "{{targetLang}}", langmeta.DisplayName(targetLocale))
}

type promptPayload struct {
	SourceLocale string `json:"sourceLocale"`
	TargetLocale string `json:"targetLocale"`
	Segments     []Item `json:"segments"`
}

// UserPrompt renders the batch: optional custom instructions followed by
// the serialized segments.
func UserPrompt(req Request) (string, error) {
	var payload bytes.Buffer
	enc := json.NewEncoder(&payload)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(promptPayload{
		SourceLocale: req.SourceLocale,
		TargetLocale: req.TargetLocale,
		Segments:     req.Items,
	}); err != nil {
		return "", fmt.Errorf("encoding batch: %w", err)
	}

	var b strings.Builder
	if instr := strings.TrimSpace(req.Instructions); instr != "" {
		b.WriteString("Additional instructions:\n")
		b.WriteString(instr)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Translate these %d segments from %s to %s:\n\n",
		len(req.Items), langmeta.DisplayName(req.SourceLocale), langmeta.DisplayName(req.TargetLocale))
	b.Write(bytes.TrimRight(payload.Bytes(), "\n"))
	return b.String(), nil
}
