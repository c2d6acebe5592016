package vectordb

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vocabEmbedder 按固定词表生成词袋向量
type vocabEmbedder struct {
	vocab []string
	err   error
	calls int
}

func newVocabEmbedder(vocab ...string) *vocabEmbedder {
	return &vocabEmbedder{vocab: vocab}
}

func (e *vocabEmbedder) embed(text string) []float32 {
	vec := make([]float32, len(e.vocab))
	for _, word := range strings.Fields(strings.ToLower(text)) {
		for i, v := range e.vocab {
			if v == word {
				vec[i]++
			}
		}
	}
	return vec
}

func (e *vocabEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func makeChunks(texts ...string) []Chunk {
	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{ID: i, Content: t}
	}
	return chunks
}

var animalVocab = []string{"cats", "dogs", "rust", "are", "is", "a", "mammals", "metal", "what"}

func TestBuildAndSearchRanking(t *testing.T) {
	embedder := newVocabEmbedder(animalVocab...)
	idx, err := Build(context.Background(),
		makeChunks("cats are mammals", "dogs are mammals", "rust is a metal"), embedder)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
	assert.Equal(t, len(animalVocab), idx.Dimension())
	assert.Equal(t, "memory", idx.Backend())

	results, err := idx.Search(embedder.embed("what are cats"), 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "cats are mammals", results[0].Chunk.Content)
	assert.Equal(t, "rust is a metal", results[2].Chunk.Content)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearchK(t *testing.T) {
	embedder := newVocabEmbedder(animalVocab...)
	idx, err := Build(context.Background(),
		makeChunks("cats are mammals", "dogs are mammals", "rust is a metal"), embedder)
	require.NoError(t, err)
	query := embedder.embed("dogs")

	results, err := idx.Search(query, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(query, -1)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = idx.Search(query, 10)
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Equal(t, "dogs are mammals", results[0].Chunk.Content)

	results, err = idx.Search(query, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Chunk.ID)
}

func TestSearchTiesKeepInsertionOrder(t *testing.T) {
	embedder := newVocabEmbedder("x", "y")
	chunks := []Chunk{
		{ID: 7, Content: "x"},
		{ID: 3, Content: "x"},
		{ID: 5, Content: "y"},
		{ID: 1, Content: "x"},
	}
	idx, err := Build(context.Background(), chunks, embedder)
	require.NoError(t, err)

	results, err := idx.Search([]float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, []int{7, 3, 1, 5}, []int{
		results[0].Chunk.ID, results[1].Chunk.ID, results[2].Chunk.ID, results[3].Chunk.ID,
	})

	results, err = idx.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, results[0].Chunk.ID)
	assert.Equal(t, 3, results[1].Chunk.ID)
}

func TestSearchDimensionMismatch(t *testing.T) {
	embedder := newVocabEmbedder("x", "y")
	idx, err := Build(context.Background(), makeChunks("x"), embedder)
	require.NoError(t, err)

	_, err = idx.Search([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = idx.Search(nil, 1)
	assert.ErrorIs(t, err, ErrEmptyVector)
}

func TestBuildFailures(t *testing.T) {
	ctx := context.Background()

	_, err := Build(ctx, nil, newVocabEmbedder("x"))
	var buildErr *IndexBuildError
	require.ErrorAs(t, err, &buildErr)
	assert.ErrorIs(t, err, ErrNoChunks)

	failing := newVocabEmbedder("x")
	failing.err = errors.New("provider down")
	_, err = Build(ctx, makeChunks("x", "x"), failing)
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, 2, buildErr.Chunks)
	assert.Contains(t, err.Error(), "provider down")

	_, err = Build(ctx, makeChunks("x", "  "), newVocabEmbedder("x"))
	require.ErrorAs(t, err, &buildErr)

	_, err = Build(ctx, makeChunks("x"), newVocabEmbedder("x"), WithBackend("nope"))
	require.ErrorAs(t, err, &buildErr)
	assert.Contains(t, err.Error(), "unsupported index backend")
}

// raggedEmbedder 返回维度不一致的向量
type raggedEmbedder struct{}

func (raggedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, i+1)
	}
	return out, nil
}

// shortEmbedder 少返回一条向量
type shortEmbedder struct{}

func (shortEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	return make([][]float32, len(texts)-1), nil
}

func TestBuildRejectsBadVectors(t *testing.T) {
	ctx := context.Background()
	var buildErr *IndexBuildError

	_, err := Build(ctx, makeChunks("a", "b"), raggedEmbedder{})
	require.ErrorAs(t, err, &buildErr)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = Build(ctx, makeChunks("a", "b"), shortEmbedder{})
	require.ErrorAs(t, err, &buildErr)
}

func TestDistanceTypes(t *testing.T) {
	embedder := newVocabEmbedder("x", "y")
	chunks := makeChunks("x", "y", "x y")

	for _, dt := range []DistanceType{Cosine, DotProduct, Euclidean} {
		t.Run(string(dt), func(t *testing.T) {
			idx, err := Build(context.Background(), chunks, embedder, WithDistance(dt))
			require.NoError(t, err)

			results, err := idx.Search([]float32{0, 1}, 3)
			require.NoError(t, err)
			require.Len(t, results, 3)
			assert.NotEqual(t, "x", results[0].Chunk.Content)
			assert.Equal(t, "x", results[2].Chunk.Content)
		})
	}
}

func TestParseDistanceType(t *testing.T) {
	dt, err := ParseDistanceType("")
	require.NoError(t, err)
	assert.Equal(t, Cosine, dt)

	dt, err = ParseDistanceType("l2")
	require.NoError(t, err)
	assert.Equal(t, Euclidean, dt)

	_, err = ParseDistanceType("manhattan")
	assert.Error(t, err)
}

func TestIndexIsImmutable(t *testing.T) {
	embedder := newVocabEmbedder("x", "y")
	chunks := makeChunks("x", "y")
	idx, err := Build(context.Background(), chunks, embedder)
	require.NoError(t, err)

	chunks[0].Content = "changed"
	got := idx.Chunks()
	assert.Equal(t, "x", got[0].Content)

	got[1].Content = "changed"
	assert.Equal(t, "y", idx.Chunks()[1].Content)

	snap := idx.Snapshot()
	assert.Equal(t, 2, snap.Dimension)
	assert.Len(t, snap.Vectors, 2)
	assert.Len(t, snap.Chunks, 2)
	assert.NoError(t, idx.Close())
}

func TestParallelSearchMatchesSerial(t *testing.T) {
	texts := make([]string, parallelThreshold+17)
	for i := range texts {
		switch i % 3 {
		case 0:
			texts[i] = "x"
		case 1:
			texts[i] = "x y"
		default:
			texts[i] = "y y y"
		}
	}
	embedder := newVocabEmbedder("x", "y")
	idx, err := Build(context.Background(), makeChunks(texts...), embedder)
	require.NoError(t, err)

	results, err := idx.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, r := range results {
		assert.Equal(t, "x", r.Chunk.Content)
		assert.Equal(t, i*3, r.Chunk.ID)
	}
}

func TestComputeDistance(t *testing.T) {
	d, err := ComputeDistance([]float32{1, 0}, []float32{1, 0}, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 0, d, 1e-6)

	d, err = ComputeDistance([]float32{1, 0}, []float32{0, 0}, Cosine)
	require.NoError(t, err)
	assert.InDelta(t, 1, d, 1e-6)

	d, err = ComputeDistance([]float32{0, 0}, []float32{3, 4}, Euclidean)
	require.NoError(t, err)
	assert.InDelta(t, 5, d, 1e-6)

	_, err = ComputeDistance([]float32{1}, []float32{1, 2}, Cosine)
	assert.ErrorIs(t, err, ErrInvalidDimension)

	_, err = ComputeDistance([]float32{1}, []float32{1}, "bogus")
	assert.Error(t, err)
}
