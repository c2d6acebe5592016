package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndHistory(t *testing.T) {
	m := New()
	assert.Equal(t, 0, m.Len())
	assert.Empty(t, m.History())

	q, err := m.Append(RoleUser, "what are cats?")
	require.NoError(t, err)
	assert.Equal(t, 0, q.Index)

	a, err := m.Append(RoleAssistant, "mammals")
	require.NoError(t, err)
	assert.Equal(t, 1, a.Index)

	history := m.History()
	require.Len(t, history, 2)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, "mammals", history[1].Content)
	assert.False(t, history[0].CreatedAt.IsZero())
}

func TestHistoryIsACopy(t *testing.T) {
	m := New()
	_, _, err := m.AppendExchange("q", "a")
	require.NoError(t, err)

	history := m.History()
	history[0].Content = "changed"
	_ = append(history, Turn{Content: "extra"})

	assert.Equal(t, "q", m.History()[0].Content)
	assert.Equal(t, 2, m.Len())
}

func TestAppendExchangeIsAtomic(t *testing.T) {
	m := New()

	_, _, err := m.AppendExchange("question", "")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Equal(t, 0, m.Len())

	q, a, err := m.AppendExchange("question", "answer")
	require.NoError(t, err)
	assert.Equal(t, 0, q.Index)
	assert.Equal(t, 1, a.Index)
	assert.Equal(t, RoleUser, q.Role)
	assert.Equal(t, RoleAssistant, a.Role)
}

func TestAppendValidation(t *testing.T) {
	m := New()

	_, err := m.Append("system", "x")
	assert.Error(t, err)

	_, err = m.Append(RoleUser, "")
	assert.ErrorIs(t, err, ErrEmptyContent)

	assert.Equal(t, 0, m.Len())
}

func TestReset(t *testing.T) {
	m := New()
	_, _, err := m.AppendExchange("q1", "a1")
	require.NoError(t, err)

	m.Reset()
	assert.Equal(t, 0, m.Len())

	q, err := m.Append(RoleUser, "q2")
	require.NoError(t, err)
	assert.Equal(t, 0, q.Index)
}

func TestConcurrentExchangesStayPaired(t *testing.T) {
	m := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = m.AppendExchange("q", "a")
		}()
	}
	wg.Wait()

	history := m.History()
	require.Len(t, history, 100)
	for i, turn := range history {
		assert.Equal(t, i, turn.Index)
		if i%2 == 0 {
			assert.Equal(t, RoleUser, turn.Role)
		} else {
			assert.Equal(t, RoleAssistant, turn.Role)
		}
	}
}
