package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeElements(t *testing.T) {
	t.Run("section heading carries forward", func(t *testing.T) {
		out := NormalizeElements([]Element{
			{Type: ElementNarrativeText, Text: "preamble"},
			{Type: ElementTitle, Text: "Shipping"},
			{Type: ElementNarrativeText, Text: "ships in two days"},
			{Type: ElementTitle, Text: "Returns"},
			{Type: ElementListItem, Text: "unopened items only"},
		})
		require.Len(t, out, 5)
		assert.Empty(t, out[0].SectionHeading)
		assert.Equal(t, "Shipping", out[1].SectionHeading)
		assert.Equal(t, "Shipping", out[2].SectionHeading)
		assert.Equal(t, "Returns", out[3].SectionHeading)
		assert.Equal(t, "Returns", out[4].SectionHeading)
	})

	t.Run("empty elements are dropped", func(t *testing.T) {
		out := NormalizeElements([]Element{
			{Type: ElementNarrativeText, Text: "  \n "},
			{Type: ElementNarrativeText, Text: "kept"},
		})
		require.Len(t, out, 1)
		assert.Equal(t, "kept", out[0].Text)
	})

	t.Run("text is trimmed", func(t *testing.T) {
		out := NormalizeElements([]Element{{Type: ElementTitle, Text: "  FAQ  "}})
		require.Len(t, out, 1)
		assert.Equal(t, "FAQ", out[0].Text)
	})

	t.Run("structured table renders to markdown", func(t *testing.T) {
		out := NormalizeElements([]Element{{
			Type:      ElementTable,
			TableRows: [][]string{{"Plan", "Price"}, {"Basic", "$5"}, {"Pro", "$20"}},
		}})
		require.Len(t, out, 1)
		assert.Equal(t, "| Plan | Price |\n| --- | --- |\n| Basic | $5 |\n| Pro | $20 |", out[0].Text)
	})

	t.Run("unstructured table gets the text prefix", func(t *testing.T) {
		out := NormalizeElements([]Element{{Type: ElementTable, Text: "Plan Price Basic $5"}})
		require.Len(t, out, 1)
		assert.Equal(t, "Table:\nPlan Price Basic $5", out[0].Text)
	})

	t.Run("empty table is dropped", func(t *testing.T) {
		assert.Empty(t, NormalizeElements([]Element{{Type: ElementTable}}))
	})
}
