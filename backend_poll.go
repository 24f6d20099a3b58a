package notifykit

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

// pollBackend is the polling fallback (§4.B "Backend selection"): used
// when force_polling is set, and as the native backend on platforms
// without a dedicated adapter (backend_other.go). A path the native
// backend refuses is reported as an error, not retried here. It has no
// rename primitive at all, so renames always surface as an
// unpaired Delete(old) followed by a later Create(new), forwarded
// unchanged exactly as §4.B.1 describes for backends lacking cookies.
//
// Grounded on the teacher's own AIX/plan9 polling.go, generalized to
// any OS and wrapped by recursiveBackend for recursive roots.
type pollBackend struct {
	delay time.Duration
	dbg   *debugChannel

	mu    sync.Mutex
	roots map[string]WatchOptions
	snaps map[string]map[string]os.FileInfo // watched dir -> entry name -> last-seen info

	out    chan RawEvent
	errOut chan error
	done   chan struct{}
}

func newPollBackend(delay time.Duration, dbg *debugChannel) Backend {
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	return newRecursiveBackend(&pollBackend{
		delay: delay,
		dbg:   dbg,
		roots: make(map[string]WatchOptions),
		snaps: make(map[string]map[string]os.FileInfo),
	}, dbg)
}

func (b *pollBackend) Start(paths map[string]WatchOptions, _ time.Duration) (<-chan RawEvent, <-chan error, error) {
	b.out = make(chan RawEvent, 4096)
	b.errOut = make(chan error, 16)
	b.done = make(chan struct{})

	for path, opts := range paths {
		if err := b.Add(path, opts); err != nil {
			return nil, nil, err
		}
	}

	go b.pollLoop()
	return b.out, b.errOut, nil
}

func (b *pollBackend) Add(path string, opts WatchOptions) error {
	path = filepath.Clean(path)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return wrapPathNotFound(path)
		}
		if os.IsPermission(err) {
			return wrapPermissionDenied(path, err)
		}
		return wrapBackendError("stat", err)
	}
	if !info.IsDir() {
		return wrapUnsupported(path, "polling backend only watches directories directly")
	}

	snap, err := b.snapshot(path)
	if err != nil {
		return wrapBackendError("readdir", err)
	}

	b.mu.Lock()
	b.roots[path] = opts
	b.snaps[path] = snap
	b.mu.Unlock()
	return nil
}

func (b *pollBackend) Remove(path string) error {
	b.mu.Lock()
	delete(b.roots, path)
	delete(b.snaps, path)
	b.mu.Unlock()
	return nil
}

func (b *pollBackend) Shutdown() error {
	close(b.done)
	return nil
}

func (b *pollBackend) snapshot(dir string) (map[string]os.FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	snap := make(map[string]os.FileInfo, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		snap[entry.Name()] = info
	}
	return snap, nil
}

func (b *pollBackend) pollLoop() {
	defer close(b.out)
	defer close(b.errOut)

	ticker := time.NewTicker(b.delay)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
			b.scanAll()
		}
	}
}

func (b *pollBackend) scanAll() {
	b.mu.Lock()
	dirs := make([]string, 0, len(b.snaps))
	for dir := range b.snaps {
		dirs = append(dirs, dir)
	}
	b.mu.Unlock()

	for _, dir := range dirs {
		b.scanOne(dir)
	}
}

func (b *pollBackend) scanOne(dir string) {
	next, err := b.snapshot(dir)
	if err != nil {
		if b.dbg != nil {
			b.dbg.backendError("poll readdir", err)
		}
		return
	}

	b.mu.Lock()
	prev, ok := b.snaps[dir]
	if !ok {
		b.mu.Unlock()
		return
	}
	b.snaps[dir] = next
	b.mu.Unlock()

	for name, info := range next {
		full := filepath.Join(dir, name)
		prevInfo, existed := prev[name]
		if !existed {
			object := ObjectFile
			if info.IsDir() {
				object = ObjectDir
			}
			b.out <- RawEvent{Kind: RawCreate, Path: full, Object: object, Time: time.Now()}
			continue
		}
		if info.ModTime() != prevInfo.ModTime() || info.Size() != prevInfo.Size() {
			b.out <- RawEvent{Kind: RawModifyData, Path: full, DataType: DataContent, Time: time.Now()}
		}
		if info.Mode() != prevInfo.Mode() {
			b.out <- RawEvent{Kind: RawModifyMetadata, Path: full, MetadataType: MetadataPermissions, Time: time.Now()}
		}
	}
	for name, info := range prev {
		if _, stillExists := next[name]; !stillExists {
			object := ObjectFile
			if info.IsDir() {
				object = ObjectDir
			}
			b.out <- RawEvent{Kind: RawDelete, Path: filepath.Join(dir, name), Object: object, Time: time.Now()}
		}
	}
}
