package codec

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPad(t *testing.T) {
	ids, mask := Pad([]int64{5, 6, 7}, 5)
	assert.Equal(t, []int64{5, 6, 7, 0, 0}, ids)
	assert.Equal(t, []int64{1, 1, 1, 0, 0}, mask)

	ids, mask = Pad([]int64{5, 6, 7}, 2)
	assert.Equal(t, []int64{5, 6}, ids)
	assert.Equal(t, []int64{1, 1}, mask)
}

func TestNewProcessorErrors(t *testing.T) {
	_, err := NewProcessor("")
	assert.Error(t, err)

	_, err = NewTokenizer(filepath.Join(t.TempDir(), "missing.model"))
	assert.Error(t, err)
}

func TestTokenizer(t *testing.T) {
	path := os.Getenv("MODELPATH")
	if path == "" {
		t.Skip("MODELPATH not set")
	}
	tok, err := NewTokenizer(path)
	require.NoError(t, err)

	ids := tok.Encode("hello world")
	require.NotEmpty(t, ids)

	padded, mask := tok.EncodePadded("hello world", len(ids)+3)
	assert.Equal(t, ids, padded[:len(ids)])
	assert.Equal(t, int64(0), mask[len(ids)])

	again, err := NewProcessor(path)
	require.NoError(t, err)
	assert.Same(t, tok.processor, again)
}
