// Package merge writes translated segments back into a document.
//
// The input tree is never modified: Apply works on a deep copy, so the
// orchestrator can merge the same source document several times.
package merge

import (
	"github.com/minios-linux/doclate/docpath"
	"github.com/minios-linux/doclate/extract"
)

// Apply returns a copy of doc with every translated segment written at
// its path. Segments without a translation keep their source text.
// Segments whose parent container no longer exists are skipped.
func Apply(doc map[string]any, segs []extract.Segment, translations map[string]string) map[string]any {
	out, _ := ApplyReport(doc, segs, translations)
	return out
}

// ApplyReport is Apply that also returns the translated segments it
// could not place because their path no longer resolves.
func ApplyReport(doc map[string]any, segs []extract.Segment, translations map[string]string) (map[string]any, []extract.Segment) {
	out := docpath.CloneMap(doc)
	if out == nil {
		out = make(map[string]any)
	}

	var dropped []extract.Segment
	for _, seg := range segs {
		text, ok := translations[seg.ID]
		if !ok {
			continue
		}
		if !docpath.Set(out, seg.Path, text) {
			dropped = append(dropped, seg)
		}
	}
	return out, dropped
}
