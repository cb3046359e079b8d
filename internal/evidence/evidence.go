// Package evidence renders ranked chunks into the bounded block of sources
// that is handed to the language model.
package evidence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"docqa/internal/retriever"
)

const (
	DefaultMaxChunks   = 6
	DefaultBudgetChars = 6000
)

var (
	ErrEmptyEvidence  = errors.New("no evidence to compose")
	ErrBudgetTooSmall = errors.New("evidence budget cannot hold a single source")
)

type Options struct {
	MaxChunks   int
	BudgetChars int
}

// Pack is the rendered evidence block and the chunks it contains, in the
// order they were numbered.
type Pack struct {
	Text   string
	Chunks []retriever.Evidence
}

// Compose picks the best MaxChunks chunks by score and renders each as
//
//	[Source i, p. N]
//	<text>
//
// joined by a newline. The block never exceeds BudgetChars runes: trailing
// (lowest-ranked) sources are dropped first and a lone source that is still
// too long has its text cut.
func Compose(chunks []retriever.Evidence, opts Options) (Pack, error) {
	if len(chunks) == 0 {
		return Pack{}, ErrEmptyEvidence
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = DefaultMaxChunks
	}
	if opts.BudgetChars <= 0 {
		opts.BudgetChars = DefaultBudgetChars
	}

	ranked := make([]retriever.Evidence, len(chunks))
	copy(ranked, chunks)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > opts.MaxChunks {
		ranked = ranked[:opts.MaxChunks]
	}

	var (
		blocks []string
		used   int
	)
	for i, chunk := range ranked {
		block := renderBlock(i+1, chunk.PageNumber, chunk.Text)
		size := utf8.RuneCountInString(block)
		if len(blocks) > 0 {
			size++ // joiner
		}
		if used+size > opts.BudgetChars {
			break
		}
		blocks = append(blocks, block)
		used += size
	}

	if len(blocks) == 0 {
		top := ranked[0]
		room := opts.BudgetChars - utf8.RuneCountInString(renderBlock(1, top.PageNumber, ""))
		if room <= 0 {
			return Pack{}, fmt.Errorf("%w: budget %d", ErrBudgetTooSmall, opts.BudgetChars)
		}
		top.Text = truncateRunes(top.Text, room)
		return Pack{Text: renderBlock(1, top.PageNumber, top.Text), Chunks: []retriever.Evidence{top}}, nil
	}

	return Pack{
		Text:   strings.Join(blocks, "\n"),
		Chunks: ranked[:len(blocks)],
	}, nil
}

func renderBlock(index, page int, text string) string {
	return fmt.Sprintf("[Source %d, p. %d]\n%s\n", index, page, text)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
