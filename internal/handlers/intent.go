package handlers

import (
	"strings"

	"moyun-danqing/internal/style"
)

// splitStyleDirective recognises a one-off style prefix such as
// "工笔：孤舟蓑笠翁" or "#ink-wash 孤舟蓑笠翁". The prefix must name a
// known style; anything else is left as part of the poem.
func splitStyleDirective(text string) (style.Style, string, bool) {
	t := strings.TrimSpace(text)

	if strings.HasPrefix(t, "#") {
		head, rest, found := strings.Cut(strings.TrimPrefix(t, "#"), " ")
		if !found {
			return "", text, false
		}
		st, err := style.Parse(head)
		if err != nil {
			return "", text, false
		}
		return st, strings.TrimSpace(rest), true
	}

	for _, sep := range []string{"：", ":"} {
		head, rest, found := strings.Cut(t, sep)
		if !found {
			continue
		}
		st, err := style.Parse(head)
		if err != nil {
			continue
		}
		return st, strings.TrimSpace(rest), true
	}

	return "", text, false
}
