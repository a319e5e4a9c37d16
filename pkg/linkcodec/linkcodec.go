// Package linkcodec moves URLs out of free text into a side list of links,
// leaving positional [LINK:n] placeholders behind.
package linkcodec

import (
	"regexp"
	"strconv"
	"strings"
)

// Link is a URL extracted from a piece of text.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// A URL runs until whitespace, an angle bracket or a quote. The character before the
// scheme is not inspected: quoted and tag-adjacent URLs are extracted like any other.
var (
	urlPattern         = regexp.MustCompile(`https?://[^\s<>"']+`)
	placeholderPattern = regexp.MustCompile(`\[LINK:(\d+)\]`)
)

const placeholderPrefix = "[LINK:"

// Placeholder returns the token that stands in for links[index].
func Placeholder(index int) string {
	return placeholderPrefix + strconv.Itoa(index) + "]"
}

// Encode replaces every URL in text with a placeholder pointing into links.
// Existing entries in links are reused by exact URL match; new URLs are appended.
// The returned slice is a copy, the input is not modified.
func Encode(text string, links []Link) (string, []Link) {
	out := make([]Link, len(links))
	copy(out, links)

	matches := urlPattern.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		return text, out
	}

	index := make(map[string]int, len(out)+len(matches))
	for i, l := range out {
		if _, seen := index[l.URL]; !seen {
			index[l.URL] = i
		}
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		// Placeholders never contain a scheme, so this only guards against a
		// pathological URL that was glued onto a placeholder prefix.
		if strings.HasSuffix(text[:start], placeholderPrefix) {
			continue
		}
		url := text[start:end]
		i, ok := index[url]
		if !ok {
			i = len(out)
			out = append(out, Link{URL: url, Text: url})
			index[url] = i
		}
		b.WriteString(text[last:start])
		b.WriteString(Placeholder(i))
		last = end
	}
	b.WriteString(text[last:])
	return b.String(), out
}

// Decode substitutes placeholders with their URLs. Placeholders without a matching
// link are left as they are.
func Decode(text string, links []Link) string {
	if len(links) == 0 || !strings.Contains(text, placeholderPrefix) {
		return text
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(token string) string {
		sub := placeholderPattern.FindStringSubmatch(token)
		i, err := strconv.Atoi(sub[1])
		if err != nil || i < 0 || i >= len(links) {
			return token
		}
		return links[i].URL
	})
}

// Normalize encodes text that may mix raw URLs with placeholders produced earlier,
// and drops links no longer referenced, renumbering placeholders to match.
func Normalize(text string, links []Link) (string, []Link) {
	encoded, all := Encode(text, links)

	used := placeholderPattern.FindAllStringSubmatch(encoded, -1)
	if len(used) == 0 {
		return encoded, []Link{}
	}

	remap := make(map[int]int, len(used))
	compact := make([]Link, 0, len(used))
	for _, sub := range used {
		i, err := strconv.Atoi(sub[1])
		if err != nil || i >= len(all) {
			continue
		}
		if _, done := remap[i]; done {
			continue
		}
		remap[i] = len(compact)
		compact = append(compact, all[i])
	}

	rewritten := placeholderPattern.ReplaceAllStringFunc(encoded, func(token string) string {
		sub := placeholderPattern.FindStringSubmatch(token)
		i, err := strconv.Atoi(sub[1])
		if err != nil {
			return token
		}
		if j, ok := remap[i]; ok {
			return Placeholder(j)
		}
		return token
	})
	return rewritten, compact
}
