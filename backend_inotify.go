//go:build linux && !appengine

package notifykit

import (
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"github.com/roma-glushko/notifykit/internal"
	"golang.org/x/sys/unix"
)

// inotifyBackend wraps a single inotify instance. It watches individual
// directories only; recursion is synthesized by recursiveBackend.
//
// Rename pairing (§4.B.1): inotify splits a rename into IN_MOVED_FROM
// and IN_MOVED_TO sharing a cookie. pending tracks the FROM half
// until either its matching TO arrives (within the debounce window,
// emitted as a single RawRename) or the window expires (forwarded
// unchanged as a RawDelete).
type inotifyBackend struct {
	fd       int
	debounce time.Duration
	dbg      *debugChannel

	mu    sync.Mutex
	wds   map[int]string // watch descriptor -> path
	paths map[string]int // path -> watch descriptor

	pendingMu sync.Mutex
	pending   map[uint32]*pendingMove

	out    chan RawEvent
	errOut chan error
	done   chan struct{}
}

type pendingMove struct {
	path  string
	timer *time.Timer
}

func newNativeBackend(_ time.Duration, dbg *debugChannel) Backend {
	return newRecursiveBackend(&inotifyBackend{
		dbg:     dbg,
		wds:     make(map[int]string),
		paths:   make(map[string]int),
		pending: make(map[uint32]*pendingMove),
	}, dbg)
}

func (b *inotifyBackend) Start(paths map[string]WatchOptions, debounce time.Duration) (<-chan RawEvent, <-chan error, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, nil, wrapBackendError("inotify_init1", err)
	}
	b.fd = fd
	b.debounce = debounce
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

const inotifyMask = unix.IN_CREATE | unix.IN_DELETE | unix.IN_DELETE_SELF |
	unix.IN_MODIFY | unix.IN_ATTRIB | unix.IN_MOVED_FROM | unix.IN_MOVED_TO |
	unix.IN_MOVE_SELF | unix.IN_Q_OVERFLOW | unix.IN_ACCESS | unix.IN_OPEN | unix.IN_CLOSE

func (b *inotifyBackend) Add(path string, _ WatchOptions) error {
	path = filepath.Clean(path)
	wd, err := unix.InotifyAddWatch(b.fd, path, inotifyMask)
	if err != nil {
		if err == unix.ENOENT {
			return wrapPathNotFound(path)
		}
		if err == unix.EACCES {
			// CAP_DAC_OVERRIDE lets root bypass file permission bits
			// entirely, so a failure despite holding it means the path is
			// genuinely unreadable (e.g. a restrictive ACL), worth a
			// louder diagnostic than the ordinary "some other user's
			// files" case ignore_permission_errors exists for.
			if hasOverride, capErr := internal.HasDACOverride(); capErr == nil && hasOverride && b.dbg != nil {
				b.dbg.backendError("inotify_add_watch: EACCES despite CAP_DAC_OVERRIDE", err)
			}
			return wrapPermissionDenied(path, err)
		}
		return wrapBackendError("inotify_add_watch", err)
	}
	b.mu.Lock()
	b.wds[wd] = path
	b.paths[path] = wd
	b.mu.Unlock()
	return nil
}

func (b *inotifyBackend) Remove(path string) error {
	b.mu.Lock()
	wd, ok := b.paths[path]
	if ok {
		delete(b.paths, path)
		delete(b.wds, wd)
	}
	b.mu.Unlock()
	if !ok {
		return nil
	}
	_, err := unix.InotifyRmWatch(b.fd, uint32(wd))
	return err
}

func (b *inotifyBackend) Shutdown() error {
	close(b.done)
	return unix.Close(b.fd)
}

// readLoop adapts raw inotify_event structs (variable length, name
// suffix) into RawEvents. Grounded on the teacher's own
// backend_inotify.go readEvents loop, simplified to this engine's
// RawEvent shape.
func (b *inotifyBackend) readLoop() {
	defer close(b.out)
	defer close(b.errOut)

	var buf [unix.SizeofInotifyEvent * 4096]byte
	for {
		n, err := internal.IgnoringEINTR(func() (int, error) {
			return unix.Read(b.fd, buf[:])
		})
		if err != nil {
			select {
			case <-b.done:
				return
			default:
			}
			b.errOut <- wrapBackendError("inotify read", err)
			return
		}
		if n < unix.SizeofInotifyEvent {
			continue
		}

		var offset uint32
		for offset <= uint32(n)-unix.SizeofInotifyEvent {
			raw := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			nameLen := raw.Len

			b.mu.Lock()
			dir, known := b.wds[int(raw.Wd)]
			b.mu.Unlock()

			var name string
			if nameLen > 0 {
				name = stringFromBytes(buf[offset+unix.SizeofInotifyEvent : offset+unix.SizeofInotifyEvent+nameLen])
			}

			if known {
				full := dir
				if name != "" {
					full = filepath.Join(dir, name)
				}
				b.handleEvent(full, raw.Mask, raw.Cookie, dir)
			}

			offset += unix.SizeofInotifyEvent + nameLen
		}
	}
}

func stringFromBytes(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

func (b *inotifyBackend) handleEvent(path string, mask, cookie uint32, root string) {
	if mask&unix.IN_Q_OVERFLOW != 0 {
		b.out <- RawEvent{Kind: RawOverflow, Path: root, Time: time.Now()}
		return
	}

	object := ObjectFile
	if mask&unix.IN_ISDIR != 0 {
		object = ObjectDir
	}

	switch {
	case mask&unix.IN_MOVED_FROM != 0 && cookie != 0:
		b.trackMoveFrom(path, cookie)
		return
	case mask&unix.IN_MOVED_TO != 0 && cookie != 0:
		if old, ok := b.resolveMoveTo(cookie); ok {
			b.out <- RawEvent{Kind: RawRename, OldPath: old, NewPath: path, Time: time.Now()}
			return
		}
		b.out <- RawEvent{Kind: RawCreate, Path: path, Object: object, Time: time.Now()}
		return
	case mask&unix.IN_CREATE != 0:
		b.out <- RawEvent{Kind: RawCreate, Path: path, Object: object, Time: time.Now()}
	case mask&(unix.IN_DELETE|unix.IN_DELETE_SELF) != 0:
		b.out <- RawEvent{Kind: RawDelete, Path: path, Object: object, Time: time.Now()}
	case mask&unix.IN_MODIFY != 0:
		b.out <- RawEvent{Kind: RawModifyData, Path: path, DataType: DataContent, Time: time.Now()}
	case mask&unix.IN_ATTRIB != 0:
		b.out <- RawEvent{Kind: RawModifyMetadata, Path: path, MetadataType: MetadataOther, Time: time.Now()}
	case mask&unix.IN_MOVE_SELF != 0:
		b.out <- RawEvent{Kind: RawModifyUnknown, Path: path, Time: time.Now()}
	case mask&unix.IN_OPEN != 0:
		b.out <- RawEvent{Kind: RawAccess, Path: path, AccessType: AccessOpen, Time: time.Now()}
	case mask&unix.IN_CLOSE != 0:
		b.out <- RawEvent{Kind: RawAccess, Path: path, AccessType: AccessClose, Time: time.Now()}
	case mask&unix.IN_ACCESS != 0:
		b.out <- RawEvent{Kind: RawAccess, Path: path, AccessType: AccessRead, AccessMode: ModeRead, Time: time.Now()}
	}
}

func (b *inotifyBackend) trackMoveFrom(path string, cookie uint32) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	pm := &pendingMove{path: path}
	pm.timer = time.AfterFunc(b.debounce, func() {
		b.pendingMu.Lock()
		cur, ok := b.pending[cookie]
		if ok && cur == pm {
			delete(b.pending, cookie)
		}
		b.pendingMu.Unlock()
		if ok && cur == pm {
			// the TO half never arrived in time; forward the FROM half
			// unchanged, per §4.B.1.
			b.out <- RawEvent{Kind: RawDelete, Path: path, Time: time.Now()}
		}
	})
	b.pending[cookie] = pm
}

func (b *inotifyBackend) resolveMoveTo(cookie uint32) (string, bool) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	pm, ok := b.pending[cookie]
	if !ok {
		return "", false
	}
	delete(b.pending, cookie)
	pm.timer.Stop()
	return pm.path, true
}
