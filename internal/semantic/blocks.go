package semantic

import (
	"fmt"
	"regexp"
	"strings"
)

// Block is one typed inline block extracted from markdown-ish text:
//
//	::decision{id="d1" importance="high"}
//	We will ship the new planner behind a flag.
//	::
type Block struct {
	Type       string
	ID         string
	Importance string
	Attributes map[string]string
	Content    string
	Location   [2]int // [startLine, endLine], 1-based
	ParentID   string
}

// BlockParseError is a structural problem found while parsing, anchored
// to a line number.
type BlockParseError struct {
	Line    int
	Message string
}

func (e BlockParseError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Message)
}

// BlockParserOptions tunes parsing.
type BlockParserOptions struct {
	// Debug keeps informational warnings in the result; errors are
	// always reported.
	Debug bool
}

// BlockParseResult carries the extracted blocks plus any problems.
type BlockParseResult struct {
	Blocks   []Block
	Errors   []BlockParseError
	Warnings []string
}

var blockTypes = map[string]struct{}{
	"decision":     {},
	"outcome":      {},
	"quote":        {},
	"theme":        {},
	"principle":    {},
	"example":      {},
	"anti-pattern": {},
}

var (
	blockOpenRe = regexp.MustCompile(`^::([a-z][a-z-]*)\{(.*)\}\s*$`)
	blockAttrRe = regexp.MustCompile(`(\w[\w-]*)="([^"]*)"`)
)

// BlockParser extracts typed inline blocks from text.
type BlockParser struct {
	opts BlockParserOptions
}

// NewBlockParser builds a parser.
func NewBlockParser(opts BlockParserOptions) *BlockParser {
	return &BlockParser{opts: opts}
}

// Parse scans the text line by line. Blocks never nest; an open block
// must be closed by a bare "::" line and must carry non-empty content.
// Missing ids are generated as <type>-<parentID>-<seq>.
func (p *BlockParser) Parse(text, parentID string) *BlockParseResult {
	result := &BlockParseResult{}
	lines := strings.Split(text, "\n")

	var (
		current  *Block
		content  []string
		openLine int
		seq      int
	)

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimRight(line, " \t")

		if trimmed == "::" {
			if current == nil {
				result.Errors = append(result.Errors, BlockParseError{
					Line:    lineNo,
					Message: "block close without a matching start",
				})
				continue
			}
			body := strings.TrimSpace(strings.Join(content, "\n"))
			if body == "" {
				result.Errors = append(result.Errors, BlockParseError{
					Line:    openLine,
					Message: fmt.Sprintf("empty %s block", current.Type),
				})
			} else {
				current.Content = body
				current.Location = [2]int{openLine, lineNo}
				if current.ID == "" {
					seq++
					current.ID = fmt.Sprintf("%s-%s-%d", current.Type, parentID, seq)
				}
				result.Blocks = append(result.Blocks, *current)
			}
			current = nil
			content = nil
			continue
		}

		if m := blockOpenRe.FindStringSubmatch(trimmed); m != nil {
			if current != nil {
				result.Errors = append(result.Errors, BlockParseError{
					Line:    lineNo,
					Message: fmt.Sprintf("nested block %q inside %q", m[1], current.Type),
				})
				continue
			}
			blockType := m[1]
			if _, ok := blockTypes[blockType]; !ok {
				result.Errors = append(result.Errors, BlockParseError{
					Line:    lineNo,
					Message: fmt.Sprintf("unknown block type %q", blockType),
				})
				continue
			}
			attrs := map[string]string{}
			for _, kv := range blockAttrRe.FindAllStringSubmatch(m[2], -1) {
				attrs[kv[1]] = kv[2]
			}
			current = &Block{
				Type:       blockType,
				ID:         attrs["id"],
				Importance: attrs["importance"],
				Attributes: attrs,
				ParentID:   parentID,
			}
			openLine = lineNo
			continue
		}

		if current != nil {
			content = append(content, line)
		}
	}

	if current != nil {
		result.Errors = append(result.Errors, BlockParseError{
			Line:    openLine,
			Message: fmt.Sprintf("unclosed %s block", current.Type),
		})
	}

	if p.opts.Debug && len(result.Blocks) == 0 && len(result.Errors) == 0 {
		result.Warnings = append(result.Warnings, "no blocks found")
	}
	return result
}
