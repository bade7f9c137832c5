package prompt

import (
	"strings"

	"moyun-danqing/internal/style"
)

// NegativePrompt lists what the image service must never draw.
const NegativePrompt = "text, watermark, signature, seal, stamp, " +
	"calligraphy, inscription, border, frame, " +
	"letters, symbols, characters, mark, logo"

const (
	constraintClause = "绝对禁止出现任何文字、印章、题跋、署名、符号"
	qualityClause    = "8K高清,无瑕疵,无文字"
	bannedClause     = "文字=禁止，印章=禁止，题跋=禁止"

	keywordSeparator = "+"
)

type Token struct {
	Text string
	Pos  string
}

// Tagger segments text into words annotated with a part-of-speech tag using
// the jieba tag set ("n", "ns", "a", "ad", ...).
type Tagger interface {
	Tag(text string) []Token
}

type Prompt struct {
	Text     string
	Keywords []string
}

func (p Prompt) KeywordLine() string {
	return strings.Join(p.Keywords, keywordSeparator)
}

type Builder struct {
	tagger Tagger
}

func NewBuilder(tagger Tagger) *Builder {
	return &Builder{tagger: tagger}
}

func (b *Builder) Build(poem string, profile style.Profile) Prompt {
	keywords := b.Keywords(poem)

	var sb strings.Builder
	sb.WriteString("[主题]")
	sb.WriteString(poem)
	sb.WriteString("\n[风格]")
	sb.WriteString(profile.Descriptor)
	sb.WriteString("\n[要求]")
	sb.WriteString(constraintClause)
	sb.WriteString("\n[质量]")
	sb.WriteString(qualityClause)
	sb.WriteString("\n[违禁品]")
	sb.WriteString(bannedClause)
	sb.WriteString("\n[关键词]")
	sb.WriteString(strings.Join(keywords, keywordSeparator))

	return Prompt{
		Text:     sb.String(),
		Keywords: keywords,
	}
}

// Keywords keeps nouns and adjectives in order of first appearance.
func (b *Builder) Keywords(poem string) []string {
	if b.tagger == nil {
		return nil
	}

	var out []string
	seen := make(map[string]struct{})
	for _, tok := range b.tagger.Tag(poem) {
		word := strings.TrimSpace(tok.Text)
		if word == "" || !isSalient(tok.Pos) {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		out = append(out, word)
	}
	return out
}

func isSalient(pos string) bool {
	pos = strings.ToLower(strings.TrimSpace(pos))
	return strings.HasPrefix(pos, "n") || strings.HasPrefix(pos, "a")
}
