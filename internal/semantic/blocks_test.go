package semantic

// Test Plan for the block parser:
//
// 1. Extracts typed blocks with attributes, content and line locations
// 2. Auto-generates ids as <type>-<parentId>-<seq>
// 3. Errors: unknown type, nested blocks, unclosed start, close without
//    start, empty content — all with line numbers
// 4. Warnings only surface with Debug

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockParserExtraction(t *testing.T) {
	t.Parallel()

	text := `# Notes

::decision{id="d1" importance="high" owner="ann"}
Ship the new planner behind a flag.
Roll out gradually.
::

Some prose between blocks.

::outcome{}
Latency dropped 40%.
::
`
	res := NewBlockParser(BlockParserOptions{}).Parse(text, "doc-7")
	require.Empty(t, res.Errors)
	require.Len(t, res.Blocks, 2)

	decision := res.Blocks[0]
	assert.Equal(t, "decision", decision.Type)
	assert.Equal(t, "d1", decision.ID)
	assert.Equal(t, "high", decision.Importance)
	assert.Equal(t, "ann", decision.Attributes["owner"])
	assert.Equal(t, "Ship the new planner behind a flag.\nRoll out gradually.", decision.Content)
	assert.Equal(t, [2]int{3, 6}, decision.Location)
	assert.Equal(t, "doc-7", decision.ParentID)

	outcome := res.Blocks[1]
	assert.Equal(t, "outcome", outcome.Type)
	assert.Equal(t, "outcome-doc-7-1", outcome.ID, "missing ids are generated as <type>-<parentId>-<seq>")
	assert.Equal(t, [2]int{10, 12}, outcome.Location)
}

func TestBlockParserErrors(t *testing.T) {
	t.Parallel()

	t.Run("unknown type", func(t *testing.T) {
		t.Parallel()
		res := NewBlockParser(BlockParserOptions{}).Parse("::mystery{}\ncontent\n::", "p")
		// The failed open never registers, so the close on line 3 also reports.
		require.Len(t, res.Errors, 2)
		assert.Equal(t, 1, res.Errors[0].Line)
		assert.Contains(t, res.Errors[0].Message, `unknown block type "mystery"`)
		assert.Empty(t, res.Blocks)
	})

	t.Run("nested blocks", func(t *testing.T) {
		t.Parallel()
		res := NewBlockParser(BlockParserOptions{}).Parse(
			"::decision{}\nouter\n::quote{}\ninner\n::", "p")
		found := false
		for _, e := range res.Errors {
			if e.Line == 3 {
				assert.Contains(t, e.Message, "nested block")
				found = true
			}
		}
		assert.True(t, found, "nested open must be reported with its line")
	})

	t.Run("unclosed block", func(t *testing.T) {
		t.Parallel()
		res := NewBlockParser(BlockParserOptions{}).Parse("::theme{}\nno close", "p")
		require.Len(t, res.Errors, 1)
		assert.Equal(t, 1, res.Errors[0].Line)
		assert.Contains(t, res.Errors[0].Message, "unclosed theme block")
	})

	t.Run("close without start", func(t *testing.T) {
		t.Parallel()
		res := NewBlockParser(BlockParserOptions{}).Parse("just prose\n::", "p")
		require.Len(t, res.Errors, 1)
		assert.Equal(t, 2, res.Errors[0].Line)
		assert.Contains(t, res.Errors[0].Message, "close without a matching start")
	})

	t.Run("empty content", func(t *testing.T) {
		t.Parallel()
		res := NewBlockParser(BlockParserOptions{}).Parse("::quote{}\n\n::", "p")
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0].Message, "empty quote block")
		assert.Empty(t, res.Blocks)
	})
}

func TestBlockParserWarnings(t *testing.T) {
	t.Parallel()

	quiet := NewBlockParser(BlockParserOptions{}).Parse("no blocks here", "p")
	assert.Empty(t, quiet.Warnings, "warnings are suppressed without debug")

	verbose := NewBlockParser(BlockParserOptions{Debug: true}).Parse("no blocks here", "p")
	assert.NotEmpty(t, verbose.Warnings)
}
