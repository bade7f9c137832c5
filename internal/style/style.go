package style

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownStyle = errors.New("unknown style")

type Style string

const (
	InkWash   Style = "ink-wash"
	BlueGreen Style = "blue-green"
	FineBrush Style = "fine-brush"
)

// Profile is the immutable set of generation parameters behind a Style.
type Profile struct {
	Style         Style
	Label         string
	Hint          string
	Descriptor    string
	APIStyle      string // empty when the provider should pick
	Steps         int
	GuidanceScale float64
}

var order = []Style{InkWash, BlueGreen, FineBrush}

var profiles = map[Style]Profile{
	InkWash: {
		Style:         InkWash,
		Label:         "水墨",
		Hint:          "水墨画注重意境和神韵",
		Descriptor:    "水墨渲染，淡墨皴擦，宣纸纹理，留白意境",
		APIStyle:      "traditional_chinese_ink",
		Steps:         70,
		GuidanceScale: 8.5,
	},
	BlueGreen: {
		Style:         BlueGreen,
		Label:         "青绿",
		Hint:          "青绿山水画强调色彩和装饰性",
		Descriptor:    "青绿山水，石青石绿设色，金碧辉煌，工笔重彩",
		Steps:         80,
		GuidanceScale: 9.0,
	},
	FineBrush: {
		Style:         FineBrush,
		Label:         "工笔",
		Hint:          "工笔画追求细节和真实感",
		Descriptor:    "工笔重彩，三矾九染，勾线精细，绢本设色",
		Steps:         85,
		GuidanceScale: 9.5,
	},
}

func Default() Style {
	return InkWash
}

// Parse accepts the canonical key ("ink-wash") or the Chinese label ("水墨").
func Parse(value string) (Style, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.ReplaceAll(v, "_", "-")
	for _, s := range order {
		p := profiles[s]
		if v == string(s) || v == p.Label {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStyle, value)
}

func Lookup(s Style) (Profile, bool) {
	p, ok := profiles[s]
	return p, ok
}

// MustProfile panics on a Style that did not come from Parse or the constants.
func MustProfile(s Style) Profile {
	p, ok := profiles[s]
	if !ok {
		panic(fmt.Sprintf("style: no profile for %q", string(s)))
	}
	return p
}

func All() []Profile {
	out := make([]Profile, 0, len(order))
	for _, s := range order {
		out = append(out, profiles[s])
	}
	return out
}

func (s Style) Valid() bool {
	_, ok := profiles[s]
	return ok
}

func (s Style) String() string {
	return string(s)
}

func (s Style) Label() string {
	if p, ok := profiles[s]; ok {
		return p.Label
	}
	return string(s)
}
