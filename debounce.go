package notifykit

import (
	"container/list"
	"time"
)

// pendingKey identifies one coalescing slot. Rename entries are keyed
// by their chain's original OldPath, which never changes as the chain
// collapses (see renameTail below); every other kind is keyed by
// (Kind, Path).
type pendingKey struct {
	kind Kind
	path string
}

type pendingEntry struct {
	key       pendingKey
	event     Event
	firstSeen time.Time
	lastSeen  time.Time
}

// Debouncer coalesces RawEvents into deduplicated, ordered Batches
// flushed on a tick, per spec §4.C. It owns no goroutine of its own;
// the Engine's producer goroutine drives Push and Flush.
type Debouncer struct {
	window time.Duration

	order   *list.List // of *pendingEntry, insertion order
	byKey   map[pendingKey]*list.Element
	renameTail map[string]*list.Element // current NewPath of a pending rename chain -> element

	overflow []Event // root overflow sentinels awaiting their own, exclusive batch
}

// NewDebouncer builds a Debouncer with the given debounce window.
func NewDebouncer(window time.Duration) *Debouncer {
	return &Debouncer{
		window:     window,
		order:      list.New(),
		byKey:      make(map[pendingKey]*list.Element),
		renameTail: make(map[string]*list.Element),
	}
}

// Push folds one RawEvent into the pending set, applying the
// coalescing rules of spec §4.C.
func (d *Debouncer) Push(re RawEvent) {
	now := re.Time
	if now.IsZero() {
		now = time.Now()
	}

	switch re.Kind {
	case RawOverflow:
		d.handleOverflow(re.Path, now)
		return
	case RawRename:
		d.pushRename(re.OldPath, re.NewPath, now)
		return
	case RawCreate:
		d.upsert(pendingKey{KindCreate, re.Path}, NewCreate(re.Path, re.Object), now)
		return
	case RawDelete:
		// Create then Delete of the same path: both removed (rule 1).
		if el, ok := d.byKey[pendingKey{KindCreate, re.Path}]; ok {
			d.removeElement(el)
			return
		}
		d.upsert(pendingKey{KindDelete, re.Path}, NewDelete(re.Path, re.Object), now)
		return
	case RawModifyData:
		// Create then ModifyData of the same path: keep Create only (rule 2).
		if el, ok := d.byKey[pendingKey{KindCreate, re.Path}]; ok {
			el.Value.(*pendingEntry).lastSeen = now
			return
		}
		if el, ok := d.byKey[pendingKey{KindModifyData, re.Path}]; ok {
			entry := el.Value.(*pendingEntry)
			entry.event.DataType = re.DataType // merge: latest data_type
			entry.lastSeen = now               // keep firstSeen (earliest timestamp)
			return
		}
		d.upsert(pendingKey{KindModifyData, re.Path}, NewModifyData(re.Path, re.DataType), now)
		return
	case RawModifyMetadata:
		if el, ok := d.byKey[pendingKey{KindCreate, re.Path}]; ok {
			el.Value.(*pendingEntry).lastSeen = now
			return
		}
		d.upsert(pendingKey{KindModifyMetadata, re.Path}, NewModifyMetadata(re.Path, re.MetadataType), now)
		return
	case RawModifyOther:
		d.upsert(pendingKey{KindModifyOther, re.Path}, NewModifyOther(re.Path), now)
		return
	case RawModifyUnknown:
		d.upsert(pendingKey{KindModifyUnknown, re.Path}, NewModifyUnknown(re.Path), now)
		return
	case RawAccess:
		d.upsert(pendingKey{KindAccess, re.Path}, NewAccess(re.Path, re.AccessType, re.AccessMode), now)
		return
	}
}

// upsert inserts a new pending entry or refreshes lastSeen on an
// existing one under the same key, without reordering it (insertion
// order is first-observation order, per §4.C tie-breaks).
func (d *Debouncer) upsert(key pendingKey, event Event, now time.Time) {
	if el, ok := d.byKey[key]; ok {
		el.Value.(*pendingEntry).lastSeen = now
		return
	}
	entry := &pendingEntry{key: key, event: event, firstSeen: now, lastSeen: now}
	el := d.order.PushBack(entry)
	d.byKey[key] = el
}

// pushRename implements the Rename(a,b)+Rename(b,c) -> Rename(a,c)
// collapse of §4.C, dropping the pair entirely if a == c.
func (d *Debouncer) pushRename(oldPath, newPath string, now time.Time) {
	if el, ok := d.renameTail[oldPath]; ok {
		entry := el.Value.(*pendingEntry)
		delete(d.renameTail, oldPath)
		a := entry.event.OldPath
		if a == newPath {
			d.removeElement(el)
			return
		}
		entry.event.NewPath = newPath
		entry.lastSeen = now
		key := pendingKey{KindRename, a}
		entry.key = key
		d.byKey[key] = el
		d.renameTail[newPath] = el
		return
	}

	key := pendingKey{KindRename, oldPath}
	entry := &pendingEntry{key: key, event: NewRename(oldPath, newPath), firstSeen: now, lastSeen: now}
	el := d.order.PushBack(entry)
	d.byKey[key] = el
	d.renameTail[newPath] = el
}

// handleOverflow invalidates every pending entry under root and queues
// a single ModifyUnknown sentinel to be emitted alone on the next
// flush, per §4.C.
func (d *Debouncer) handleOverflow(root string, now time.Time) {
	var next *list.Element
	for el := d.order.Front(); el != nil; el = next {
		next = el.Next()
		entry := el.Value.(*pendingEntry)
		if eventUnderRoot(entry.event, root) {
			d.removeElement(el)
		}
	}
	d.overflow = append(d.overflow, NewModifyUnknown(root))
	_ = now
}

func eventUnderRoot(e Event, root string) bool {
	for _, p := range e.Paths() {
		if underRoot(p, root) {
			return true
		}
	}
	return false
}

func (d *Debouncer) removeElement(el *list.Element) {
	entry := el.Value.(*pendingEntry)
	delete(d.byKey, entry.key)
	if entry.event.Kind == KindRename {
		if tail, ok := d.renameTail[entry.event.NewPath]; ok && tail == el {
			delete(d.renameTail, entry.event.NewPath)
		}
	}
	d.order.Remove(el)
}

// Flush returns the batch of entries ready at `now` (those whose
// lastSeen+window has elapsed), in insertion order, removing them from
// the pending set. A pending overflow sentinel always wins and is
// returned alone, per §4.C. Returns nil if there is nothing to emit.
func (d *Debouncer) Flush(now time.Time) Batch {
	if len(d.overflow) > 0 {
		sentinel := d.overflow[0]
		d.overflow = d.overflow[1:]
		return Batch{sentinel}
	}

	var batch Batch
	var next *list.Element
	for el := d.order.Front(); el != nil; el = next {
		next = el.Next()
		entry := el.Value.(*pendingEntry)
		if entry.lastSeen.Add(d.window).After(now) {
			continue
		}
		batch = append(batch, entry.event)
		d.removeElement(el)
	}
	if len(batch) == 0 {
		return nil
	}
	return batch
}

// Pending reports how many coalescing slots are currently open, for
// diagnostics and tests.
func (d *Debouncer) Pending() int {
	return d.order.Len()
}
