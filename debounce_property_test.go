//go:build property

package notifykit

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDebouncerProperties validates the coalescing invariants of
// spec §8 against randomly generated event streams. Time is supplied
// explicitly to Push/Flush, so these properties run deterministically
// without real sleeps.
func TestDebouncerProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.Rng.Seed(4242)
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	window := 100 * time.Millisecond
	base := time.Unix(0, 0)

	properties.Property("a flushed batch is never empty and carries no duplicate events", prop.ForAll(
		func(n int) bool {
			d := NewDebouncer(window)
			for i := 0; i < n; i++ {
				d.Push(RawEvent{
					Kind: RawModifyData,
					Path: fmt.Sprintf("/p%d", i%5),
					Time: base,
				})
			}
			batch := d.Flush(base.Add(window * 2))
			if n == 0 {
				return batch == nil
			}
			if batch == nil {
				return false
			}
			seen := make(map[Event]bool, len(batch))
			for _, e := range batch {
				if seen[e] {
					return false
				}
				seen[e] = true
			}
			return len(batch) > 0
		},
		gen.IntRange(0, 30),
	))

	properties.Property("nothing flushes before its debounce window elapses", prop.ForAll(
		func(elapsedMs int) bool {
			d := NewDebouncer(window)
			d.Push(RawEvent{Kind: RawCreate, Path: "/a", Time: base})

			elapsed := time.Duration(elapsedMs) * time.Millisecond
			batch := d.Flush(base.Add(elapsed))
			if elapsed < window {
				return batch == nil
			}
			return len(batch) == 1
		},
		gen.IntRange(0, 200),
	))

	properties.Property("a chain of renames collapses to first-old -> last-new, or drops if they match", prop.ForAll(
		func(chainLen int) bool {
			d := NewDebouncer(window)
			names := make([]string, chainLen+1)
			for i := range names {
				names[i] = fmt.Sprintf("/n%d", i)
			}
			for i := 0; i < chainLen; i++ {
				d.Push(RawEvent{Kind: RawRename, OldPath: names[i], NewPath: names[i+1], Time: base})
			}
			batch := d.Flush(base.Add(window * 2))
			if names[0] == names[chainLen] {
				return batch == nil
			}
			if len(batch) != 1 {
				return false
			}
			old, nw, ok := batch[0].AsRename()
			return ok && old == names[0] && nw == names[chainLen]
		},
		gen.IntRange(1, 12),
	))

	properties.Property("an overflow sentinel always flushes alone, ahead of anything pending", prop.ForAll(
		func(pendingCount int) bool {
			d := NewDebouncer(window)
			for i := 0; i < pendingCount; i++ {
				d.Push(RawEvent{Kind: RawCreate, Path: fmt.Sprintf("/root/f%d", i), Time: base})
			}
			d.Push(RawEvent{Kind: RawOverflow, Path: "/root", Time: base})

			batch := d.Flush(base.Add(window * 2))
			return len(batch) == 1 && batch[0].Kind == KindModifyUnknown
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
