// Package chunker splits page text into overlapping, paragraph-aligned
// segments.
//
// Offsets are rune offsets into the page's reconstructed stream: the
// non-empty paragraphs of the page, trimmed and joined by a single space.
// For every segment, stream[CharStart:CharEnd] equals Text. A segment that
// starts with an overlap seed begins inside the previous segment's span.
package chunker

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 600
	DefaultChunkOverlap = 80
)

var blankLine = regexp.MustCompile(`\n[ \t\r\f\v]*\n`)

// Segment is one chunk of a page.
type Segment struct {
	PageNumber int
	Text       string
	CharStart  int
	CharEnd    int
}

// Split chunks pageText. A chunk never exceeds chunkSize runes unless it is
// a single paragraph longer than chunkSize, which is emitted whole. The
// overlap seed is shortened when the full seed would push the next chunk
// over chunkSize.
func Split(pageText string, pageNumber, chunkSize, overlap int) []Segment {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}

	paragraphs := Paragraphs(pageText)
	if len(paragraphs) == 0 {
		return nil
	}

	var (
		segments []Segment
		buf      []rune
		bufStart int
		pos      int
	)
	emit := func() {
		if seg, ok := makeSegment(pageNumber, buf, bufStart); ok {
			segments = append(segments, seg)
		}
	}

	for _, para := range paragraphs {
		p := []rune(para)
		switch {
		case len(buf) == 0:
			buf = append(buf[:0:0], p...)
			bufStart = pos
		case len(buf)+1+len(p) > chunkSize:
			emit()
			seedLen := overlap
			if seedLen > len(buf) {
				seedLen = len(buf)
			}
			// size bound wins; a long enough paragraph gets no seed at all
			if room := chunkSize - len(p) - 1; seedLen > room {
				seedLen = room
			}
			if seedLen > 0 {
				seed := buf[len(buf)-seedLen:]
				next := make([]rune, 0, seedLen+1+len(p))
				next = append(next, seed...)
				next = append(next, ' ')
				next = append(next, p...)
				buf = next
				bufStart = pos - 1 - seedLen
			} else {
				buf = append(buf[:0:0], p...)
				bufStart = pos
			}
		default:
			buf = append(buf, ' ')
			buf = append(buf, p...)
		}
		pos += len(p) + 1
	}
	if len(buf) > 0 {
		emit()
	}
	return segments
}

// Paragraphs returns the trimmed, non-empty blank-line separated paragraphs
// of text in order.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := blankLine.Split(text, -1)
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// Stream returns the reconstructed stream that segment offsets refer to.
func Stream(pageText string) string {
	return strings.Join(Paragraphs(pageText), " ")
}

func makeSegment(pageNumber int, buf []rune, start int) (Segment, bool) {
	lead := 0
	for lead < len(buf) && unicode.IsSpace(buf[lead]) {
		lead++
	}
	end := len(buf)
	for end > lead && unicode.IsSpace(buf[end-1]) {
		end--
	}
	if end <= lead {
		return Segment{}, false
	}
	return Segment{
		PageNumber: pageNumber,
		Text:       string(buf[lead:end]),
		CharStart:  start + lead,
		CharEnd:    start + end,
	}, true
}
