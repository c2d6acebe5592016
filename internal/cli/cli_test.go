package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyerfyer/pdf-chat/internal/memory"
	"github.com/fyerfyer/pdf-chat/internal/services"
	"github.com/fyerfyer/pdf-chat/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConversation 记录提问并返回固定回答
type fakeConversation struct {
	mem       *memory.ConversationMemory
	questions []string
	failOn    string
}

func newFakeConversation() *fakeConversation {
	return &fakeConversation{mem: memory.New()}
}

func (f *fakeConversation) Ask(_ context.Context, question string) (*services.Answer, error) {
	f.questions = append(f.questions, question)
	if question == f.failOn {
		return nil, errors.New("provider unavailable")
	}
	answer := "answer to " + question
	if _, _, err := f.mem.AppendExchange(question, answer); err != nil {
		return nil, err
	}
	return &services.Answer{
		Question: question,
		Answer:   answer,
		Sources:  []vectordb.SearchResult{{Chunk: vectordb.Chunk{Content: "cats   purr\nloudly"}, Score: 0.9}},
	}, nil
}

func (f *fakeConversation) History() []memory.Turn { return f.mem.History() }

func (f *fakeConversation) Reset() { f.mem.Reset() }

func TestREPL(t *testing.T) {
	conv := newFakeConversation()
	conv.failOn = "broken?"
	in := strings.NewReader("what do cats do?\n\n:history\nbroken?\n:reset\n:history\n:quit\nnever asked\n")
	var out bytes.Buffer

	require.NoError(t, runREPL(context.Background(), conv, in, &out, true))

	assert.Equal(t, []string{"what do cats do?", "broken?"}, conv.questions)
	text := out.String()
	assert.Contains(t, text, "answer to what do cats do?")
	assert.Contains(t, text, "[1] score=0.900 cats purr loudly")
	assert.Contains(t, text, "0 user: what do cats do?")
	assert.Contains(t, text, "1 assistant: answer to what do cats do?")
	assert.Contains(t, text, "error: provider unavailable")
	assert.Contains(t, text, "Conversation cleared.")
	assert.Contains(t, text, "(no conversation yet)")
	assert.Empty(t, conv.History())
}

func TestREPLStopsAtEOF(t *testing.T) {
	conv := newFakeConversation()
	var out bytes.Buffer
	require.NoError(t, runREPL(context.Background(), conv, strings.NewReader("hello"), &out, false))
	assert.Equal(t, []string{"hello"}, conv.questions)
	assert.NotContains(t, out.String(), "score=")
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtractCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "document:\n  chunk_size: 30\n  chunk_overlap: 5\nlog:\n  format: text\n")
	doc := writeFile(t, dir, "pets.txt", "cats purr when happy\ndogs bark at the mailman\nparrots talk\n")

	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"extract", "--config", cfgPath, "--chunks", doc})

	require.NoError(t, root.Execute())
	text := out.String()
	assert.Contains(t, text, "cats purr when happy")
	assert.Contains(t, text, "--- chunk 0 offset=0")
	assert.Contains(t, text, "documents=1 pages=1")
	assert.Contains(t, text, "chunk_size=30 overlap=5")
}

func TestExtractCommandErrors(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeFile(t, dir, "config.yaml", "log:\n  format: text\n")

	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"extract", "--config", cfgPath, filepath.Join(dir, "notes.docx")})
	assert.Error(t, root.Execute())

	root = NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"extract", "--config", cfgPath})
	assert.Error(t, root.Execute(), "at least one file is required")
}
