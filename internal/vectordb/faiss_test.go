//go:build faiss

package vectordb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeVector(t *testing.T) {
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, normalizeVector([]float32{3, 4}), 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, normalizeVector(zero))
}

// TestFaissMatchesFlat 两种后端的排序一致
func TestFaissMatchesFlat(t *testing.T) {
	chunks := makeChunks("cats are mammals", "dogs are mammals", "rust is a metal")
	embedder := newVocabEmbedder(animalVocab...)
	query := embedder.embed("what are cats")

	flat, err := Build(context.Background(), chunks, embedder)
	require.NoError(t, err)
	fidx, err := Build(context.Background(), chunks, embedder, WithBackend("faiss"))
	require.NoError(t, err)
	defer fidx.Close()
	assert.Equal(t, "faiss", fidx.Backend())

	want, err := flat.Search(query, 3)
	require.NoError(t, err)
	got, err := fidx.Search(query, 3)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Chunk.ID, got[i].Chunk.ID)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-4)
	}
}
