//go:build darwin || freebsd || openbsd || netbsd || dragonfly

package notifykit

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/roma-glushko/notifykit/internal"
	"golang.org/x/sys/unix"
)

// kqueueBackend wraps a single kqueue instance. kqueue requires one
// open file descriptor per watched path (directory or file), and has
// no native rename-pairing primitive: NOTE_RENAME fires on the old
// descriptor only, with no new name attached. Per §4.B.1 this backend
// therefore forwards renames unchanged, as Delete(old) followed
// eventually by a Create(new) the directory listen picks up.
type kqueueBackend struct {
	kq int

	mu    sync.Mutex
	fds   map[string]int // watched path -> open fd
	paths map[int]string // fd -> watched path

	out    chan RawEvent
	errOut chan error
	done   chan struct{}
}

func newNativeBackend(_ time.Duration, dbg *debugChannel) Backend {
	return newRecursiveBackend(&kqueueBackend{
		fds:   make(map[string]int),
		paths: make(map[int]string),
	}, dbg)
}

func (b *kqueueBackend) Start(paths map[string]WatchOptions, _ time.Duration) (<-chan RawEvent, <-chan error, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, nil, wrapBackendError("kqueue", err)
	}
	b.kq = kq
	b.out = make(chan RawEvent, 4096)
	b.errOut = make(chan error, 16)
	b.done = make(chan struct{})

	for path, opts := range paths {
		if err := b.Add(path, opts); err != nil {
			return nil, nil, err
		}
	}

	go b.readLoop()
	return b.out, b.errOut, nil
}

const kqueueNoteMask = unix.NOTE_DELETE | unix.NOTE_WRITE | unix.NOTE_EXTEND |
	unix.NOTE_ATTRIB | unix.NOTE_RENAME | unix.NOTE_LINK

func (b *kqueueBackend) Add(path string, _ WatchOptions) error {
	path = filepath.Clean(path)
	fd, err := unix.Open(path, unix.O_NONBLOCK|unix.O_RDONLY, 0)
	if err != nil {
		if err == unix.ENOENT {
			return wrapPathNotFound(path)
		}
		if err == unix.EACCES {
			return wrapPermissionDenied(path, err)
		}
		return wrapBackendError("open", err)
	}

	kevs := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_VNODE,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
		Fflags: kqueueNoteMask,
	}}
	if _, err := unix.Kevent(b.kq, kevs, nil, nil); err != nil {
		unix.Close(fd)
		return wrapBackendError("kevent register", err)
	}

	b.mu.Lock()
	b.fds[path] = fd
	b.paths[fd] = path
	b.mu.Unlock()
	return nil
}

func (b *kqueueBackend) Remove(path string) error {
	b.mu.Lock()
	fd, ok := b.fds[path]
	if ok {
		delete(b.fds, path)
		delete(b.paths, fd)
	}
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return unix.Close(fd)
}

func (b *kqueueBackend) Shutdown() error {
	close(b.done)
	return unix.Close(b.kq)
}

func (b *kqueueBackend) readLoop() {
	defer close(b.out)
	defer close(b.errOut)

	events := make([]unix.Kevent_t, 16)
	for {
		n, err := internal.IgnoringEINTR(func() (int, error) {
			return unix.Kevent(b.kq, nil, events, nil)
		})
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			b.errOut <- wrapBackendError("kevent wait", err)
			return
		}

		for i := 0; i < n; i++ {
			ev := events[i]
			b.mu.Lock()
			path, known := b.paths[int(ev.Ident)]
			b.mu.Unlock()
			if !known {
				continue
			}
			b.translate(path, ev.Fflags)
		}
	}
}

func (b *kqueueBackend) translate(path string, fflags uint32) {
	info, statErr := os.Lstat(path)
	object := ObjectFile
	if statErr == nil && info.IsDir() {
		object = ObjectDir
	}

	switch {
	case fflags&unix.NOTE_DELETE != 0:
		b.out <- RawEvent{Kind: RawDelete, Path: path, Object: object, Time: time.Now()}
	case fflags&unix.NOTE_RENAME != 0:
		// No new name is available from kqueue; forward unchanged and
		// let the directory-level watch observe the corresponding Create.
		b.out <- RawEvent{Kind: RawDelete, Path: path, Object: object, Time: time.Now()}
	case fflags&(unix.NOTE_WRITE|unix.NOTE_EXTEND) != 0:
		if object == ObjectDir {
			b.scanDirForCreates(path)
		} else {
			b.out <- RawEvent{Kind: RawModifyData, Path: path, DataType: DataContent, Time: time.Now()}
		}
	case fflags&unix.NOTE_ATTRIB != 0:
		b.out <- RawEvent{Kind: RawModifyMetadata, Path: path, MetadataType: MetadataOther, Time: time.Now()}
	}
}

// scanDirForCreates diffs a watched directory's listing against the
// set of paths we already hold watches for, emitting RawCreate for any
// new entry. kqueue reports a directory write when its contents
// change but, unlike inotify, never names the entry.
func (b *kqueueBackend) scanDirForCreates(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if _, watched := b.fds[full]; watched {
			continue
		}
		object := ObjectFile
		if entry.IsDir() {
			object = ObjectDir
		}
		b.out <- RawEvent{Kind: RawCreate, Path: full, Object: object, Time: time.Now()}
	}
}
