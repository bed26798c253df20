package translate

import (
	"unicode/utf8"

	"github.com/minios-linux/doclate/extract"
)

// Chunk packs segments into batches, left to right. A batch is closed
// when the next segment would make it hold more than maxCount segments,
// or, once it holds at least one segment, more than maxChars characters.
// An oversized segment becomes a batch of its own; nothing is split or
// dropped. A non-positive limit disables that bound.
func Chunk(segs []extract.Segment, maxCount, maxChars int) [][]extract.Segment {
	var (
		chunks [][]extract.Segment
		cur    []extract.Segment
		chars  int
	)
	for _, seg := range segs {
		n := utf8.RuneCountInString(seg.Text)
		full := maxCount > 0 && len(cur)+1 > maxCount
		long := maxChars > 0 && len(cur) > 0 && chars+n > maxChars
		if full || long {
			chunks = append(chunks, cur)
			cur, chars = nil, 0
		}
		cur = append(cur, seg)
		chars += n
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}
