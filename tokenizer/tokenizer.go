// Package tokenizer wraps the cl100k_base byte-pair encoding. Chunk sizes,
// overlap windows, and usage counters are all measured in cl100k_base
// tokens; changing the encoding is a breaking change for stored chunk
// boundaries.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Codec counts, encodes, and decodes text under a fixed encoding.
type Codec struct {
	enc *tiktoken.Tiktoken
}

// NewCL100K loads the cl100k_base encoding.
func NewCL100K() (*Codec, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("load cl100k_base encoding: %w", err)
	}
	return &Codec{enc: enc}, nil
}

// Count returns the number of tokens in text.
func (c *Codec) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Encode returns the token ids for text.
func (c *Codec) Encode(text string) []int {
	return c.enc.Encode(text, nil, nil)
}

// Decode reassembles text from token ids.
func (c *Codec) Decode(ids []int) string {
	return c.enc.Decode(ids)
}
