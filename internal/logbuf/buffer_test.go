package logbuf

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_AppendAndRead(t *testing.T) {
	b := New(DefaultCapacity)

	b.Append(Entry{ID: "p1", Chunk: "hello"})
	b.Append(Entry{ID: "p1", Chunk: "world"})

	entries := b.Read("p1")
	require.Len(t, entries, 2)
	assert.Equal(t, "hello", entries[0].Chunk)
	assert.Equal(t, "world", entries[1].Chunk)
	assert.Equal(t, StreamStdout, entries[0].Stream)
	assert.False(t, entries[0].Timestamp.IsZero())
}

func TestBuffer_ReadMissing(t *testing.T) {
	b := New(DefaultCapacity)

	entries := b.Read("nonexistent")
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestBuffer_KeepsLastEntriesInOrder(t *testing.T) {
	b := New(DefaultCapacity)

	total := DefaultCapacity*2 + 37
	for i := 0; i < total; i++ {
		b.Append(Entry{ID: "p1", Chunk: fmt.Sprintf("%d", i)})
		assert.LessOrEqual(t, b.Len("p1"), DefaultCapacity)
	}

	entries := b.Read("p1")
	require.Len(t, entries, DefaultCapacity)
	first := total - DefaultCapacity
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("%d", first+i), e.Chunk)
	}
}

func TestBuffer_ReadIsACopy(t *testing.T) {
	b := New(3)

	b.Append(Entry{ID: "p1", Chunk: "a"})
	snapshot := b.Read("p1")

	b.Append(Entry{ID: "p1", Chunk: "b"})
	b.Append(Entry{ID: "p1", Chunk: "c"})
	b.Append(Entry{ID: "p1", Chunk: "d"})

	require.Len(t, snapshot, 1)
	assert.Equal(t, "a", snapshot[0].Chunk)
}

func TestBuffer_TimestampsNonDecreasing(t *testing.T) {
	b := New(DefaultCapacity)
	now := time.Now()

	b.Append(Entry{ID: "p1", Chunk: "late", Timestamp: now})
	got := b.Append(Entry{ID: "p1", Chunk: "early", Timestamp: now.Add(-time.Second)})

	assert.Equal(t, now, got.Timestamp)
	entries := b.Read("p1")
	assert.False(t, entries[1].Timestamp.Before(entries[0].Timestamp))
}

func TestBuffer_ClearAndDrop(t *testing.T) {
	b := New(DefaultCapacity)

	b.Append(Entry{ID: "p1", Chunk: "x"})
	b.Append(Entry{ID: "p2", Chunk: "y"})

	b.Clear("p1")
	assert.Empty(t, b.Read("p1"))
	assert.Len(t, b.Read("p2"), 1)

	assert.True(t, b.Drop("p2"))
	assert.False(t, b.Drop("p2"))
	assert.Empty(t, b.Read("p2"))
}

func TestBuffer_ProcessesAreIsolated(t *testing.T) {
	b := New(2)

	b.Append(Entry{ID: "p1", Chunk: "1"})
	b.Append(Entry{ID: "p1", Chunk: "2"})
	b.Append(Entry{ID: "p1", Chunk: "3"})
	b.Append(Entry{ID: "p2", Chunk: "a"})

	assert.Len(t, b.Read("p1"), 2)
	assert.Len(t, b.Read("p2"), 1)
}

func TestBuffer_ConcurrentAppend(t *testing.T) {
	b := New(DefaultCapacity)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				b.Append(Entry{ID: "p1", Chunk: "x"})
				b.Read("p1")
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, DefaultCapacity, b.Len("p1"))
}

func TestBuffer_SequenceFollowsAppendOrder(t *testing.T) {
	b := New(2)
	now := time.Now()

	first := b.Append(Entry{ID: "p1", Chunk: "a", Timestamp: now})
	second := b.Append(Entry{ID: "p1", Chunk: "b", Timestamp: now})
	assert.Equal(t, first.Timestamp, second.Timestamp)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)

	// eviction and Clear keep numbering
	b.Append(Entry{ID: "p1", Chunk: "c"})
	entries := b.Read("p1")
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(2), entries[0].Seq)
	assert.Equal(t, uint64(3), entries[1].Seq)

	b.Clear("p1")
	assert.Equal(t, uint64(4), b.Append(Entry{ID: "p1", Chunk: "d"}).Seq)

	assert.Equal(t, uint64(1), b.Append(Entry{ID: "p2", Chunk: "x"}).Seq)
}
