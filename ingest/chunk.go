package ingest

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// Chunking parameters, in cl100k_base tokens. These are part of the external
// contract: changing them (or the tokenizer) silently changes stored chunk
// boundaries.
const (
	targetChunkTokens = 450
	hardMaxTokens     = 500
	overlapTokens     = 50
	mergeMinTokens    = 100
)

type (
	// Codec is the tokenizer surface the chunker needs. Satisfied by
	// tokenizer.Codec.
	Codec interface {
		Count(text string) int
		Encode(text string) []int
		Decode(ids []int) string
	}

	// Chunk is one retrieval unit. Summary and Questions are filled by the
	// metadata enrichment stage and may stay empty.
	Chunk struct {
		ID             string
		Text           string
		TokenCount     int
		ElementType    ElementType
		SectionHeading string
		Summary        string
		Questions      []string
	}

	// Chunker groups normalized elements into token-bounded chunks.
	Chunker struct {
		codec Codec
	}

	// block is an intermediate grouping unit. Atomic blocks are emitted on
	// their own; non-atomic blocks may be concatenated with neighbors in the
	// same section.
	block struct {
		text    string
		etype   ElementType
		section string
		atomic  bool
		table   bool
	}
)

// NewChunker builds a chunker over the given tokenizer.
func NewChunker(codec Codec) (*Chunker, error) {
	if codec == nil {
		return nil, errors.New("codec is required")
	}
	return &Chunker{codec: codec}, nil
}

// Chunk applies the structural rules in order: tables are never split, a
// title binds to the single immediately-following non-title element, runs of
// list items merge into one bullet block. Everything else buffers within its
// section and flushes on section change, on atomic blocks, or when the next
// block would push the buffer past the hard max.
func (c *Chunker) Chunk(elements []Element) []Chunk {
	blocks := buildBlocks(elements)

	var (
		chunks    []Chunk
		buf       []block
		bufTokens int
	)
	flush := func() {
		if len(buf) == 0 {
			return
		}
		texts := make([]string, len(buf))
		for i, b := range buf {
			texts[i] = b.text
		}
		head := buf[0]
		chunks = append(chunks, c.emit(strings.Join(texts, "\n\n"), head.etype, head.section)...)
		buf, bufTokens = nil, 0
	}

	for _, b := range blocks {
		if b.atomic {
			flush()
			if b.table {
				// Exactly one chunk, regardless of size.
				chunks = append(chunks, c.newChunk(b.text, b.etype, b.section))
			} else {
				chunks = append(chunks, c.emit(b.text, b.etype, b.section)...)
			}
			continue
		}
		n := c.codec.Count(b.text)
		if len(buf) > 0 && (b.section != buf[0].section || bufTokens+n > hardMaxTokens) {
			flush()
		}
		buf = append(buf, b)
		bufTokens += n
	}
	flush()
	return chunks
}

// emit produces one chunk, window-splitting when the text alone exceeds the
// hard max: windows of hardMaxTokens tokens sharing overlapTokens between
// consecutive windows.
func (c *Chunker) emit(text string, etype ElementType, section string) []Chunk {
	if c.codec.Count(text) <= hardMaxTokens {
		return []Chunk{c.newChunk(text, etype, section)}
	}
	ids := c.codec.Encode(text)
	step := hardMaxTokens - overlapTokens
	var out []Chunk
	for start := 0; start < len(ids); start += step {
		end := start + hardMaxTokens
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, c.newChunk(c.codec.Decode(ids[start:end]), etype, section))
		if end == len(ids) {
			break
		}
	}
	return out
}

func (c *Chunker) newChunk(text string, etype ElementType, section string) Chunk {
	return Chunk{
		ID:             uuid.NewString(),
		Text:           text,
		TokenCount:     c.codec.Count(text),
		ElementType:    etype,
		SectionHeading: section,
	}
}

func buildBlocks(elements []Element) []block {
	var (
		blocks  []block
		pending *Element // title awaiting its companion block
	)
	prepend := func(text string) string {
		if pending == nil {
			return text
		}
		text = pending.Text + "\n\n" + text
		pending = nil
		return text
	}
	for i := 0; i < len(elements); i++ {
		el := elements[i]
		switch el.Type {
		case ElementTitle:
			if pending != nil {
				// Consecutive titles: the earlier one stands alone.
				blocks = append(blocks, block{text: pending.Text, etype: ElementTitle, section: pending.SectionHeading, atomic: true})
			}
			pending = &elements[i]
		case ElementTable:
			blocks = append(blocks, block{text: prepend(el.Text), etype: ElementTable, section: el.SectionHeading, atomic: true, table: true})
		case ElementListItem:
			items := []string{"• " + el.Text}
			for i+1 < len(elements) && elements[i+1].Type == ElementListItem {
				i++
				items = append(items, "• "+elements[i].Text)
			}
			blocks = append(blocks, block{text: prepend(strings.Join(items, "\n")), etype: ElementListItem, section: el.SectionHeading, atomic: true})
		default:
			atomic := pending != nil
			blocks = append(blocks, block{text: prepend(el.Text), etype: el.Type, section: el.SectionHeading, atomic: atomic})
		}
	}
	if pending != nil {
		blocks = append(blocks, block{text: pending.Text, etype: ElementTitle, section: pending.SectionHeading, atomic: true})
	}
	return blocks
}
