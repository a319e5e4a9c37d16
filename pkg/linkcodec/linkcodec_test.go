package linkcodec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		text     string
		distinct int
	}{
		{name: "no links", text: "tighten the cut at the intro", distinct: 0},
		{name: "single", text: "reference: https://example.com/a", distinct: 1},
		{name: "repeated", text: "see https://x.io/ref and again https://x.io/ref !", distinct: 1},
		{name: "several", text: "https://a.com/1 vs http://b.com/2\nalso https://c.com/3?q=1#t", distinct: 3},
		{name: "quoted", text: `use "https://a.com/q" and <https://b.com/t>`, distinct: 2},
		{name: "prefix of another", text: "https://a.com/x then https://a.com/xy", distinct: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, links := Encode(tc.text, nil)
			assert.Len(t, links, tc.distinct)
			assert.NotContains(t, encoded, "://")
			assert.Equal(t, tc.text, Decode(encoded, links))
		})
	}
}

func TestEncodeSharesPlaceholderForRepeatedURL(t *testing.T) {
	encoded, links := Encode("a https://x.io b https://x.io", nil)
	require.Len(t, links, 1)
	assert.Equal(t, "a [LINK:0] b [LINK:0]", encoded)
	assert.Equal(t, Link{URL: "https://x.io", Text: "https://x.io"}, links[0])
}

func TestEncodeIsIdempotent(t *testing.T) {
	encoded, links := Encode("watch https://v.io/1 and https://v.io/2", nil)
	again, againLinks := Encode(encoded, links)
	assert.Equal(t, encoded, again)
	assert.Equal(t, links, againLinks)
}

func TestEncodeReusesExistingLinks(t *testing.T) {
	existing := []Link{{URL: "https://old.io", Text: "https://old.io"}}
	encoded, links := Encode("[LINK:0] plus https://new.io and https://old.io", existing)
	require.Len(t, links, 2)
	assert.Equal(t, "[LINK:0] plus [LINK:1] and [LINK:0]", encoded)
	assert.Len(t, existing, 1)
}

func TestDecodeLeavesUnknownPlaceholders(t *testing.T) {
	assert.Equal(t, "x [LINK:3]", Decode("x [LINK:3]", []Link{{URL: "https://a"}}))
	assert.Equal(t, "[LINK:0]", Decode("[LINK:0]", nil))
}

func TestNormalizeDropsUnusedLinks(t *testing.T) {
	links := []Link{{URL: "https://gone.io", Text: "https://gone.io"}, {URL: "https://kept.io", Text: "https://kept.io"}}
	text, compact := Normalize("keep [LINK:1] add https://fresh.io", links)
	require.Len(t, compact, 2)
	assert.Equal(t, "keep [LINK:0] add [LINK:1]", text)
	assert.Equal(t, "https://kept.io", compact[0].URL)
	assert.Equal(t, "https://fresh.io", compact[1].URL)
	assert.Equal(t, "keep https://kept.io add https://fresh.io", Decode(text, compact))
}
