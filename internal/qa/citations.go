package qa

import (
	"regexp"
	"strconv"

	"docqa/internal/model"
	"docqa/internal/retriever"
)

var citationPattern = regexp.MustCompile(`\[p\.\s*(\d+)\]`)

// Citation points at the evidence chunk backing a cited page.
type Citation struct {
	PageNumber int
	CharStart  *int
	CharEnd    *int
	ChunkID    uint
}

// ExtractCitations scans answer for [p. N] markers in order of appearance.
// Each page is kept once, at its first marker, and is mapped to the first
// chunk in evidence (rank order) on that page. Pages with no such chunk are
// dropped.
func ExtractCitations(answer string, evidence []retriever.Evidence) []Citation {
	matches := citationPattern.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[int]struct{}, len(matches))
	var out []Citation
	for _, m := range matches {
		page, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if _, ok := seen[page]; ok {
			continue
		}
		seen[page] = struct{}{}

		for _, ev := range evidence {
			if ev.PageNumber != page {
				continue
			}
			start, end := ev.CharStart, ev.CharEnd
			out = append(out, Citation{
				PageNumber: page,
				CharStart:  &start,
				CharEnd:    &end,
				ChunkID:    ev.ChunkID,
			})
			break
		}
	}
	return out
}

func toModelCitations(citations []Citation) []model.Citation {
	out := make([]model.Citation, len(citations))
	for i, c := range citations {
		out[i] = model.Citation{
			PageNumber: c.PageNumber,
			CharStart:  c.CharStart,
			CharEnd:    c.CharEnd,
		}
	}
	return out
}
