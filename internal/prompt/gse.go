package prompt

import (
	"fmt"
	"sync"

	"github.com/go-ego/gse"
)

// GseTagger tags Chinese text with the embedded gse dictionary. The
// dictionary is loaded once; Tag is safe for concurrent use.
type GseTagger struct {
	mu  sync.Mutex
	seg gse.Segmenter
}

func NewGseTagger() (*GseTagger, error) {
	t := &GseTagger{}
	if err := t.seg.LoadDictEmbed(); err != nil {
		return nil, fmt.Errorf("load gse dictionary: %w", err)
	}
	return t, nil
}

func (t *GseTagger) Tag(text string) []Token {
	t.mu.Lock()
	segs := t.seg.Pos(text)
	t.mu.Unlock()

	out := make([]Token, 0, len(segs))
	for _, s := range segs {
		out = append(out, Token{Text: s.Text, Pos: s.Pos})
	}
	return out
}
