package notifykit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerCreateThenDeleteCancels(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(100 * time.Millisecond)

	base := time.Now()
	d.Push(RawEvent{Kind: RawCreate, Path: "/a", Time: base})
	d.Push(RawEvent{Kind: RawDelete, Path: "/a", Time: base.Add(time.Millisecond)})

	assert.Equal(t, 0, d.Pending())
	assert.Nil(t, d.Flush(base.Add(time.Second)))
}

func TestDebouncerCreateThenModifyDataKeepsCreateOnly(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(100 * time.Millisecond)

	base := time.Now()
	d.Push(RawEvent{Kind: RawCreate, Path: "/a", Object: ObjectFile, Time: base})
	d.Push(RawEvent{Kind: RawModifyData, Path: "/a", DataType: DataContent, Time: base.Add(time.Millisecond)})

	batch := d.Flush(base.Add(time.Second))
	require.Len(t, batch, 1)
	assert.Equal(t, KindCreate, batch[0].Kind)
}

func TestDebouncerRepeatedModifyDataMerges(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(100 * time.Millisecond)

	base := time.Now()
	d.Push(RawEvent{Kind: RawModifyData, Path: "/a", DataType: DataContent, Time: base})
	d.Push(RawEvent{Kind: RawModifyData, Path: "/a", DataType: DataSize, Time: base.Add(time.Millisecond)})

	assert.Equal(t, 1, d.Pending())
	batch := d.Flush(base.Add(time.Second))
	require.Len(t, batch, 1)
	_, dt, ok := batch[0].AsModifyData()
	require.True(t, ok)
	assert.Equal(t, DataSize, dt, "latest data type wins")
}

func TestDebouncerRenameChainCollapses(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(100 * time.Millisecond)

	base := time.Now()
	d.Push(RawEvent{Kind: RawRename, OldPath: "/a", NewPath: "/b", Time: base})
	d.Push(RawEvent{Kind: RawRename, OldPath: "/b", NewPath: "/c", Time: base.Add(time.Millisecond)})

	batch := d.Flush(base.Add(time.Second))
	require.Len(t, batch, 1)
	old, nw, ok := batch[0].AsRename()
	require.True(t, ok)
	assert.Equal(t, "/a", old)
	assert.Equal(t, "/c", nw)
}

func TestDebouncerRenameChainBackToOriginalDrops(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(100 * time.Millisecond)

	base := time.Now()
	d.Push(RawEvent{Kind: RawRename, OldPath: "/a", NewPath: "/b", Time: base})
	d.Push(RawEvent{Kind: RawRename, OldPath: "/b", NewPath: "/a", Time: base.Add(time.Millisecond)})

	assert.Equal(t, 0, d.Pending())
	assert.Nil(t, d.Flush(base.Add(time.Second)))
}

func TestDebouncerOverflowInvalidatesPendingAndWinsAlone(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(100 * time.Millisecond)

	base := time.Now()
	d.Push(RawEvent{Kind: RawCreate, Path: "/root/a", Time: base})
	d.Push(RawEvent{Kind: RawModifyData, Path: "/root/b", Time: base})
	d.Push(RawEvent{Kind: RawOverflow, Path: "/root", Time: base})

	assert.Equal(t, 0, d.Pending(), "overflow clears every pending entry under the root")

	batch := d.Flush(base)
	require.Len(t, batch, 1)
	assert.Equal(t, KindModifyUnknown, batch[0].Kind)
	assert.Equal(t, "/root", batch[0].Path)
}

func TestDebouncerFlushRespectsWindow(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(100 * time.Millisecond)

	base := time.Now()
	d.Push(RawEvent{Kind: RawCreate, Path: "/a", Time: base})

	assert.Nil(t, d.Flush(base.Add(50*time.Millisecond)), "not ready yet")

	batch := d.Flush(base.Add(150 * time.Millisecond))
	require.Len(t, batch, 1)
}

func TestDebouncerOrderingIsFirstObservation(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(100 * time.Millisecond)

	base := time.Now()
	d.Push(RawEvent{Kind: RawCreate, Path: "/z", Time: base})
	d.Push(RawEvent{Kind: RawCreate, Path: "/a", Time: base.Add(time.Millisecond)})

	batch := d.Flush(base.Add(time.Second))
	require.Len(t, batch, 2)
	assert.Equal(t, "/z", batch[0].Path)
	assert.Equal(t, "/a", batch[1].Path)
}

func TestDebouncerIndependentPathsDoNotCoalesce(t *testing.T) {
	t.Parallel()
	d := NewDebouncer(100 * time.Millisecond)

	base := time.Now()
	d.Push(RawEvent{Kind: RawModifyData, Path: "/a", Time: base})
	d.Push(RawEvent{Kind: RawModifyData, Path: "/b", Time: base})

	batch := d.Flush(base.Add(time.Second))
	assert.Len(t, batch, 2)
}
