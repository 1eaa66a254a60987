package artifact

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/hupe1980/prospectmesh/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_SaveGetIsolation(t *testing.T) {
	s := NewMemoryStore()
	data := []byte("hello")
	require.NoError(t, s.Save("acme", "acme:v1", data))

	data[0] = 'H'
	out, err := s.Get("acme", "acme:v1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))

	out[0] = 'x'
	out2, err := s.Get("acme", "acme:v1")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out2))
}

func TestMemoryStore_ListAndDelete(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Save("acme", "acme:v2", []byte("2")))
	require.NoError(t, s.Save("acme", "acme:v1", []byte("1")))

	keys, err := s.List("acme")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme:v1", "acme:v2"}, keys)

	require.NoError(t, s.Delete("acme", "acme:v1"))
	_, err = s.Get("acme", "acme:v1")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, s.Delete("acme", "acme:v1"), core.ErrNotFound)

	keys, err = s.List("unknown")
	require.NoError(t, err)
	assert.Empty(t, keys)

	s.Clear()
	keys, _ = s.List("acme")
	assert.Empty(t, keys)
}

func TestMemoryStore_Concurrent(t *testing.T) {
	s := NewMemoryStore()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("k%d", i%5)
			assert.NoError(t, s.Save("p", key, []byte{byte(i)}))
			_, _ = s.Get("p", key)
		}(i)
	}
	wg.Wait()

	keys, err := s.List("p")
	require.NoError(t, err)
	assert.Len(t, keys, 5)
}

func TestProposal_SaveLoad(t *testing.T) {
	s := NewMemoryStore()

	_, ok, err := LoadProposal(s, "acme", "acme:v1")
	require.NoError(t, err)
	assert.False(t, ok)

	sent := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	p := core.Proposal{Key: "acme:v1", DraftVersion: 1, To: "ceo@acme.com", ThreadID: "t-1", MessageID: "m-1", ICS: "BEGIN:VCALENDAR", SentAt: sent}
	require.NoError(t, SaveProposal(s, "acme", p))

	got, ok, err := LoadProposal(s, "acme", "acme:v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m-1", got.MessageID)
	assert.True(t, got.SentAt.Equal(sent))

	ics, err := Attachment(s, "acme", "acme:v1")
	require.NoError(t, err)
	assert.Equal(t, "BEGIN:VCALENDAR", ics)

	assert.Error(t, SaveProposal(s, "acme", core.Proposal{}))
}
