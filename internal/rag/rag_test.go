package rag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tjfontaine/rag-chat-proxy/internal/api/openai"
	"github.com/tjfontaine/rag-chat-proxy/internal/storage/memory"
)

func TestCleanText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"control chars", "a\x00b\x07c\x7Fd", "abcd"},
		{"keeps newlines", "line1\r\nline2", "line1\r\nline2"},
		{"collapses spaces", "a  \t\t b", "a b"},
		{"hyphenation", "rehabili-\n  tation", "rehabilitation"},
		{"blank lines", "a\n\n\n\nb", "a\n\nb"},
		{"nfkc", "ﬁnal ①", "final 1"},
		{"trims", "  \n text \n ", "text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanText(tt.in))
		})
	}
}

func TestChunkText(t *testing.T) {
	t.Run("window and overlap", func(t *testing.T) {
		text := strings.Repeat("a", 10) + strings.Repeat("b", 10)
		chunks, err := ChunkText(text, ChunkOptions{MaxLength: 10, Overlap: 2})
		require.NoError(t, err)
		// starts at 0, 8, 16
		require.Len(t, chunks, 3)
		assert.Equal(t, strings.Repeat("a", 10), chunks[0])
		assert.Equal(t, "aabbbbbbbb", chunks[1])
		assert.Equal(t, "bbbb", chunks[2])
	})

	t.Run("defaults", func(t *testing.T) {
		text := strings.Repeat("x", 5000)
		chunks, err := ChunkText(text, ChunkOptions{})
		require.NoError(t, err)
		// starts at 0, 2000, 4000
		require.Len(t, chunks, 3)
		assert.Len(t, chunks[0], DefaultChunkMaxLength)
		assert.Len(t, chunks[2], 1000)
	})

	t.Run("drops blank windows", func(t *testing.T) {
		chunks, err := ChunkText("abc"+strings.Repeat(" ", 20), ChunkOptions{MaxLength: 5, Overlap: 0})
		require.NoError(t, err)
		assert.Equal(t, []string{"abc"}, chunks)
	})

	t.Run("counts characters not bytes", func(t *testing.T) {
		chunks, err := ChunkText("ééééé", ChunkOptions{MaxLength: 3, Overlap: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"ééé", "ééé", "é"}, chunks)
	})

	t.Run("empty text", func(t *testing.T) {
		chunks, err := ChunkText("", DefaultChunkOptions())
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("overlap not below max", func(t *testing.T) {
		_, err := ChunkText("abc", ChunkOptions{MaxLength: 5, Overlap: 5})
		assert.Error(t, err)
	})
}

func TestFormatPassages(t *testing.T) {
	got := FormatPassages([]Passage{
		{Text: "first", Source: "a.pdf", ChunkIndex: 0},
		{Text: "  ", Source: "skip.pdf", ChunkIndex: 9},
		{Text: "second", ChunkIndex: 3},
	})
	want := "[Document: a.pdf | Chunk 0]\nfirst\n\n---\n\n[Document: Unknown | Chunk 3]\nsecond"
	assert.Equal(t, want, got)
	assert.Equal(t, "", FormatPassages(nil))
}

func TestExtractText(t *testing.T) {
	text, err := ExtractText("notes.MD", []byte("# Title"))
	require.NoError(t, err)
	assert.Equal(t, "# Title", text)

	_, err = ExtractText("image.png", []byte{0x89})
	assert.ErrorIs(t, err, ErrUnsupportedDocument)

	_, err = ExtractText("broken.pdf", []byte("not a pdf"))
	assert.Error(t, err)

	assert.True(t, SupportedExtension("a.pdf"))
	assert.False(t, SupportedExtension("a.docx"))
}

type fakeEmbedder struct {
	calls atomic.Int32
	err   error
}

// Embed maps each text to a vector counting a few marker words.
func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		lower := strings.ToLower(t)
		out[i] = []float32{
			float32(strings.Count(lower, "spine")),
			float32(strings.Count(lower, "diet")),
			0.01,
		}
	}
	return out, nil
}

func TestIndexer_IndexDocument(t *testing.T) {
	store := memory.New()
	embedder := &fakeEmbedder{}
	ix := &Indexer{Store: store, Embedder: embedder, Chunking: ChunkOptions{MaxLength: 40, Overlap: 10}}
	ctx := context.Background()

	text := "Spine surgery recovery requires rest.\n\n\n\nDiet matters during recovery as well."
	res := ix.IndexDocument(ctx, Document{StudyID: "spineai", Source: "studies/spineai/rag_files/guide.txt", Data: []byte(text)})
	require.True(t, res.Success, res.Error)
	assert.Greater(t, res.ChunksIndexed, 1)
	assert.Equal(t, int32(1), embedder.calls.Load())

	docs, err := store.ListDocuments(ctx, "spineai")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, res.ChunksIndexed, docs[0].Chunks)

	// Re-indexing replaces rather than appends.
	res = ix.IndexDocument(ctx, Document{StudyID: "spineai", Source: "studies/spineai/rag_files/guide.txt", Data: []byte("short")})
	require.True(t, res.Success)
	docs, _ = store.ListDocuments(ctx, "spineai")
	assert.Equal(t, 1, docs[0].Chunks)
}

func TestIndexer_Failures(t *testing.T) {
	ctx := context.Background()

	ix := &Indexer{Store: memory.New()}
	res := ix.IndexDocument(ctx, Document{StudyID: "s", Source: "a.exe", Data: []byte("x")})
	assert.False(t, res.Success)
	assert.Equal(t, 0, res.ChunksIndexed)
	assert.Contains(t, res.Error, "unsupported")

	ix = &Indexer{Store: memory.New(), Embedder: &fakeEmbedder{err: errors.New("quota")}}
	res = ix.IndexDocument(ctx, Document{StudyID: "s", Source: "a.txt", Data: []byte("hello")})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "quota")

	ix = &Indexer{Store: memory.New(), Chunking: ChunkOptions{MaxLength: 10, Overlap: 20}}
	res = ix.IndexDocument(ctx, Document{StudyID: "s", Source: "a.txt", Data: []byte("hello")})
	assert.False(t, res.Success)

	res = ix.IndexFile(ctx, "s", filepath.Join(t.TempDir(), "missing.txt"), "missing.txt")
	assert.False(t, res.Success)
}

func TestIndexer_IndexFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("Lumbar support tips."), 0o644))

	store := memory.New()
	ix := &Indexer{Store: store}
	res := ix.IndexFile(context.Background(), "spineai", path, "spineai/rag_files/notes.md")
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, res.ChunksIndexed)
}

func TestRetriever_Modes(t *testing.T) {
	store := memory.New()
	embedder := &fakeEmbedder{}
	ctx := context.Background()

	ix := &Indexer{Store: store, Embedder: embedder}
	require.True(t, ix.IndexDocument(ctx, Document{StudyID: "s", Source: "spine.txt", Data: []byte("spine spine exercises")}).Success)
	require.True(t, ix.IndexDocument(ctx, Document{StudyID: "s", Source: "diet.txt", Data: []byte("diet plan")}).Success)
	require.True(t, ix.IndexDocument(ctx, Document{StudyID: "other", Source: "o.txt", Data: []byte("spine elsewhere")}).Success)

	fts := &Retriever{Store: store, StudyID: "s", Mode: ModeFTS}
	passages, err := fts.Retrieve(ctx, "spine exercises", 5)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "spine.txt", passages[0].Source)

	vec := &Retriever{Store: store, Embedder: embedder, StudyID: "s", Mode: ModeVector}
	passages, err = vec.Retrieve(ctx, "what diet?", 1)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Equal(t, "diet.txt", passages[0].Source)

	_, err = (&Retriever{Store: store, Mode: ModeVector}).Retrieve(ctx, "q", 1)
	assert.Error(t, err)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeFTS, m)

	m, err = ParseMode("vector")
	require.NoError(t, err)
	assert.Equal(t, ModeVector, m)

	_, err = ParseMode("graph")
	assert.Error(t, err)
}

func TestOpenAIEmbedder_Batches(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/embeddings", r.URL.Path)

		var req openai.EmbeddingRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-3-small", req.Model)

		resp := openai.EmbeddingResponse{Object: "list"}
		// Answer out of order to exercise index mapping.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, openai.Embedding{
				Index:     i,
				Embedding: []float32{float32(len(req.Input[i]))},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	e := &OpenAIEmbedder{
		Client:    openai.NewClient("test-key", openai.WithBaseURL(server.URL)),
		BatchSize: 2,
	}
	vectors, err := e.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	require.NoError(t, err)
	require.Len(t, vectors, 5)
	for i, v := range vectors {
		assert.Equal(t, float32(i+1), v[0])
	}
	assert.Equal(t, int32(3), requests.Load())
}
