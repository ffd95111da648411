package codec

import (
	"fmt"
	"os"
	"sync"

	"github.com/eliben/go-sentencepiece"
)

var processors sync.Map

// NewProcessor loads a SentencePiece model, reusing an already loaded
// processor for the same path.
func NewProcessor(modelPath string) (*sentencepiece.Processor, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("tokenizer model path is empty")
	}
	if p, ok := processors.Load(modelPath); ok {
		return p.(*sentencepiece.Processor), nil
	}
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("tokenizer model not found at %s", modelPath)
	}
	proc, err := sentencepiece.NewProcessorFromPath(modelPath)
	if err != nil {
		return nil, err
	}
	p, _ := processors.LoadOrStore(modelPath, proc)
	return p.(*sentencepiece.Processor), nil
}

// Tokenizer turns text into int64 token ids for integer model inputs.
type Tokenizer struct {
	processor *sentencepiece.Processor
}

func NewTokenizer(modelPath string) (*Tokenizer, error) {
	proc, err := NewProcessor(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load SentencePiece processor: %w", err)
	}
	return &Tokenizer{processor: proc}, nil
}

func (t *Tokenizer) Encode(text string) []int64 {
	tokens := t.processor.Encode(text)

	ids := make([]int64, len(tokens))
	for i, token := range tokens {
		ids[i] = int64(token.ID)
	}
	return ids
}

// EncodePadded encodes text into exactly n ids, truncating or zero padding,
// and returns the matching attention mask.
func (t *Tokenizer) EncodePadded(text string, n int) (ids, mask []int64) {
	return Pad(t.Encode(text), n)
}

// Pad copies ids into a slice of length n and marks the copied positions
// with 1 in mask.
func Pad(ids []int64, n int) (padded, mask []int64) {
	padded = make([]int64, n)
	mask = make([]int64, n)
	for i := 0; i < n && i < len(ids); i++ {
		padded[i] = ids[i]
		mask[i] = 1
	}
	return padded, mask
}
