package translate

import (
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/minios-linux/doclate/extract"
)

func segsOf(texts ...string) []extract.Segment {
	out := make([]extract.Segment, len(texts))
	for i, t := range texts {
		out[i] = extract.Segment{ID: "s" + strconv.Itoa(i), Text: t}
	}
	return out
}

func flatten(chunks [][]extract.Segment) []extract.Segment {
	var out []extract.Segment
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

func TestChunkBounds(t *testing.T) {
	cases := []struct {
		name     string
		texts    []string
		maxCount int
		maxChars int
		want     []int // batch sizes
	}{
		{"empty", nil, 3, 10, nil},
		{"count bound", []string{"a", "b", "c", "d", "e"}, 2, 100, []int{2, 2, 1}},
		{"char bound", []string{"aaaa", "bbbb", "cccc"}, 10, 8, []int{2, 1}},
		{"oversized alone", []string{"a", strings.Repeat("x", 20), "b"}, 10, 5, []int{1, 1, 1}},
		{"oversized first", []string{strings.Repeat("x", 20), "b", "c"}, 10, 5, []int{1, 2}},
		{"runes not bytes", []string{"äääää", "ööööö"}, 10, 10, []int{2}},
		{"no limits", []string{"a", "b", "c"}, 0, 0, []int{3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			segs := segsOf(tc.texts...)
			chunks := Chunk(segs, tc.maxCount, tc.maxChars)
			if len(chunks) != len(tc.want) {
				t.Fatalf("got %d chunks, want %d", len(chunks), len(tc.want))
			}
			for i, c := range chunks {
				if len(c) != tc.want[i] {
					t.Fatalf("chunk %d has %d segments, want %d", i, len(c), tc.want[i])
				}
			}
		})
	}
}

func TestChunkProperties(t *testing.T) {
	var texts []string
	for i := 0; i < 57; i++ {
		texts = append(texts, strings.Repeat("w", (i*7)%23+1))
	}
	segs := segsOf(texts...)

	for _, limits := range [][2]int{{1, 1}, {3, 20}, {5, 50}, {100, 30}, {4, 1000}} {
		maxCount, maxChars := limits[0], limits[1]
		chunks := Chunk(segs, maxCount, maxChars)

		back := flatten(chunks)
		if len(back) != len(segs) {
			t.Fatalf("limits %v: reconstruction has %d segments, want %d", limits, len(back), len(segs))
		}
		for i := range segs {
			if back[i].ID != segs[i].ID {
				t.Fatalf("limits %v: order broken at %d", limits, i)
			}
		}
		for i, c := range chunks {
			if len(c) == 0 || len(c) > maxCount {
				t.Fatalf("limits %v: chunk %d has %d segments", limits, i, len(c))
			}
			chars := 0
			for _, s := range c {
				chars += utf8.RuneCountInString(s.Text)
			}
			if chars > maxChars && len(c) != 1 {
				t.Fatalf("limits %v: chunk %d has %d chars in %d segments", limits, i, chars, len(c))
			}
		}
	}
}
