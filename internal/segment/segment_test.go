package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/contextual-epub-translator/internal/markup"
)

func parseDoc(t *testing.T, id, body string) *markup.Document {
	t.Helper()
	doc, err := markup.Parse(id, []byte(body))
	require.NoError(t, err)
	return doc
}

func unitTexts(units []Unit) []string {
	texts := make([]string, len(units))
	for i, u := range units {
		texts[i] = u.Text
	}
	return texts
}

func TestSegmentEmitsReadingOrder(t *testing.T) {
	doc := parseDoc(t, "ch1", `<body><h1>Title</h1><p>First paragraph.</p><p>Second paragraph.</p></body>`)
	units := Segment(doc, Config{})

	assert.Equal(t, []string{"Title", "First paragraph.", "Second paragraph."}, unitTexts(units))
	for _, u := range units {
		assert.Equal(t, "ch1", u.Ref.Doc)
		assert.Equal(t, 1, u.Ref.Spans)
	}
}

func TestSegmentSkipsUntranslatableText(t *testing.T) {
	doc := parseDoc(t, "d", `<body>
<p>keep me</p>
<style>p { color: red; }</style>
<pre><code>x := 1</code></pre>
<p>***</p>
<p>。」</p>
</body>`)
	units := Segment(doc, Config{})
	assert.Equal(t, []string{"keep me"}, unitTexts(units))
}

func TestSegmentMergesAdjacentSiblingText(t *testing.T) {
	doc := parseDoc(t, "d", `<p>one&#160;two</p>`)

	// Count the sibling text nodes the parser produced; the decoder may
	// or may not split character data around the entity reference.
	var textNodes []int
	for i, n := range doc.Nodes {
		if n.Kind == markup.KindText {
			textNodes = append(textNodes, i)
		}
	}
	require.NotEmpty(t, textNodes)

	units := Segment(doc, Config{})
	require.Len(t, units, 1)
	assert.Equal(t, "one two", units[0].Text)
	assert.Equal(t, textNodes[0], units[0].Ref.Node)
	assert.Len(t, units[0].Ref.Merged, len(textNodes)-1)
}

func TestSegmentDoesNotMergeAcrossElements(t *testing.T) {
	doc := parseDoc(t, "d", `<p>before <em>inner</em> after</p>`)
	units := Segment(doc, Config{})
	assert.Equal(t, []string{"before ", "inner", " after"}, unitTexts(units))
	for _, u := range units {
		assert.Empty(t, u.Ref.Merged)
	}
}

func TestSegmentSplitsOversizeNode(t *testing.T) {
	sentence := "これは長い文章です。"
	text := strings.Repeat(sentence, 10)
	doc := parseDoc(t, "d", `<p>`+text+`</p>`)

	units := Segment(doc, Config{MaxUnitSize: 25})
	require.Greater(t, len(units), 1)

	var rejoined strings.Builder
	for i, u := range units {
		assert.Equal(t, i, u.Ref.Span)
		assert.Equal(t, len(units), u.Ref.Spans)
		assert.LessOrEqual(t, len([]rune(u.Text)), 25)
		// Each part except possibly the last ends at a sentence boundary.
		if i < len(units)-1 {
			assert.True(t, strings.HasSuffix(u.Text, "。"), "part %d: %q", i, u.Text)
		}
		rejoined.WriteString(u.Text)
	}
	assert.Equal(t, text, rejoined.String())
}

func TestSegmentHardCutsWhenNoBoundary(t *testing.T) {
	text := strings.Repeat("あ", 50)
	doc := parseDoc(t, "d", `<p>`+text+`</p>`)

	units := Segment(doc, Config{MaxUnitSize: 20})
	require.Len(t, units, 3)

	var rejoined strings.Builder
	for _, u := range units {
		rejoined.WriteString(u.Text)
	}
	assert.Equal(t, text, rejoined.String())
}

func TestSegmentEmitsAttributeUnits(t *testing.T) {
	doc := parseDoc(t, "d", `<body><img src="x.jpg" alt="A cat" title="Cover"/><img src="y.jpg" alt="***"/></body>`)
	units := Segment(doc, Config{})

	require.Len(t, units, 2)
	assert.Equal(t, "A cat", units[0].Text)
	assert.Equal(t, "alt", units[0].Ref.Attr)
	assert.Equal(t, "Cover", units[1].Text)
	assert.Equal(t, "title", units[1].Ref.Attr)
}

func TestSegmentContextWindow(t *testing.T) {
	doc := parseDoc(t, "d", `<body><p>alpha</p><p>beta</p><p>gamma</p></body>`)
	units := Segment(doc, Config{ContextWindow: 7})

	require.Len(t, units, 3)
	assert.Equal(t, "", units[0].Context)
	assert.Equal(t, "alpha", units[1].Context)
	// Trimmed to the trailing 7 runes of "alphabeta".
	assert.Equal(t, "habeta", units[2].Context[len(units[2].Context)-6:])
	assert.LessOrEqual(t, len([]rune(units[2].Context)), 7)
}

func TestSegmentStripRubyBeforeSegmenting(t *testing.T) {
	doc := parseDoc(t, "d", `<p><ruby>見当<rt>けんとう</rt></ruby>がつかぬ。</p>`)
	markup.StripRuby(doc)
	units := Segment(doc, Config{})

	texts := unitTexts(units)
	assert.Contains(t, texts, "見当")
	assert.Contains(t, texts, "がつかぬ。")
	assert.NotContains(t, texts, "けんとう")
}

func TestSplitSentencesKeepsClosingMarks(t *testing.T) {
	text := "「短い。」「もう一つ。」"
	parts := splitSentences(text, 7)
	require.Len(t, parts, 2)
	assert.Equal(t, "「短い。」", parts[0])
	assert.Equal(t, "「もう一つ。」", parts[1])
}
