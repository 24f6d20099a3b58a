package notifykit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchQueuePushPop(t *testing.T) {
	t.Parallel()
	q := newBatchQueue(2, nil)

	q.Push(Batch{NewCreate("/a", ObjectFile)})
	batch, ok, eos := q.Pop(time.Second)
	require.True(t, ok)
	assert.False(t, eos)
	assert.Len(t, batch, 1)
}

func TestBatchQueueDropsOldestOnOverflow(t *testing.T) {
	t.Parallel()
	q := newBatchQueue(2, nil)

	q.Push(Batch{NewCreate("/1", ObjectFile)})
	q.Push(Batch{NewCreate("/2", ObjectFile)})
	q.Push(Batch{NewCreate("/3", ObjectFile)})

	assert.Equal(t, int64(1), q.Dropped())

	b, ok, _ := q.Pop(time.Second)
	require.True(t, ok)
	assert.Equal(t, "/2", b[0].Path, "the oldest batch was dropped, not the newest")
}

func TestBatchQueuePopTimesOutWhenEmpty(t *testing.T) {
	t.Parallel()
	q := newBatchQueue(4, nil)

	start := time.Now()
	_, ok, eos := q.Pop(30 * time.Millisecond)
	assert.False(t, ok)
	assert.False(t, eos)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestBatchQueueCloseReportsEndOfStreamOnceDrained(t *testing.T) {
	t.Parallel()
	q := newBatchQueue(4, nil)
	q.Push(Batch{NewCreate("/a", ObjectFile)})
	q.Close()

	_, ok, eos := q.Pop(time.Second)
	assert.True(t, ok)
	assert.False(t, eos, "closed but not yet drained")

	_, ok, eos = q.Pop(time.Second)
	assert.False(t, ok)
	assert.True(t, eos)
}

func TestBatchQueuePopWakesOnPush(t *testing.T) {
	t.Parallel()
	q := newBatchQueue(4, nil)

	done := make(chan Batch, 1)
	go func() {
		b, ok, _ := q.Pop(time.Second)
		if ok {
			done <- b
		}
	}()

	time.Sleep(20 * time.Millisecond)
	q.Push(Batch{NewCreate("/a", ObjectFile)})

	select {
	case b := <-done:
		assert.Len(t, b, 1)
	case <-time.After(time.Second):
		t.Fatal("Pop never woke up after Push")
	}
}
