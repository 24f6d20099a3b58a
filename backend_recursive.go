package notifykit

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// recursiveBackend wraps a Backend that can only watch individual
// directories (inotify, kqueue, the polling fallback) and synthesizes
// recursive watching on top of it: it walks the tree at watch time,
// installs a watch on every directory found, and installs a watch on
// every new directory a Create(Dir) event reveals - during the same
// raw-event-handling step, before the event is forwarded - per spec
// §4.B point 2.
//
// Backends with native recursion (Windows' ReadDirectoryChangesW) skip
// this wrapper; see backend_windows.go.
type recursiveBackend struct {
	inner Backend
	dbg   *debugChannel

	mu    sync.Mutex
	roots map[string]WatchOptions // watch root -> options it was registered with
	dirOf map[string]string       // watched directory -> the root that owns it

	out    chan RawEvent
	errOut chan error
}

func newRecursiveBackend(inner Backend, dbg *debugChannel) *recursiveBackend {
	return &recursiveBackend{
		inner: inner,
		dbg:   dbg,
		roots: make(map[string]WatchOptions),
		dirOf: make(map[string]string),
	}
}

// walkAndInstall installs a watch on root and, if recursive, every
// subdirectory. Per-subtree permission errors are suppressed when
// opts.IgnorePermissionErrors is set; otherwise the first one aborts
// the walk and is returned.
func (b *recursiveBackend) walkAndInstall(root string, opts WatchOptions) error {
	if !opts.Recursive {
		if err := b.inner.Add(root, opts); err != nil {
			return err
		}
		b.dirOf[root] = root
		return nil
	}

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsPermission(err) {
				if opts.IgnorePermissionErrors {
					return filepath.SkipDir
				}
				return wrapPermissionDenied(path, err)
			}
			return err
		}
		if !info.IsDir() {
			return nil
		}
		if err := b.inner.Add(path, WatchOptions{Recursive: false, IgnorePermissionErrors: opts.IgnorePermissionErrors}); err != nil {
			var denied *ErrPermissionDenied
			if os.IsPermission(err) || errors.As(err, &denied) {
				if opts.IgnorePermissionErrors {
					return filepath.SkipDir
				}
				return wrapPermissionDenied(path, err)
			}
			return err
		}
		b.dirOf[path] = root
		return nil
	})
}

func (b *recursiveBackend) Start(paths map[string]WatchOptions, debounce time.Duration) (<-chan RawEvent, <-chan error, error) {
	b.mu.Lock()
	for root, opts := range paths {
		if err := b.walkAndInstall(root, opts); err != nil {
			b.mu.Unlock()
			return nil, nil, err
		}
		b.roots[root] = opts
	}
	b.mu.Unlock()

	// The wrapped backend only ever sees individual directories, never
	// the original recursive roots, since we've already expanded them.
	innerCh, innerErrCh, err := b.inner.Start(nil, debounce)
	if err != nil {
		return nil, nil, err
	}

	b.out = make(chan RawEvent, 256)
	b.errOut = make(chan error, 16)
	go b.pump(innerCh, innerErrCh)

	return b.out, b.errOut, nil
}

func (b *recursiveBackend) pump(innerCh <-chan RawEvent, innerErrCh <-chan error) {
	defer close(b.out)
	defer close(b.errOut)

	for {
		select {
		case re, ok := <-innerCh:
			if !ok {
				return
			}
			if re.Kind == RawCreate && re.Object == ObjectDir {
				b.mu.Lock()
				root, tracked := b.dirOf[filepath.Dir(re.Path)]
				if tracked {
					opts := b.roots[root]
					if opts.Recursive {
						if err := b.inner.Add(re.Path, WatchOptions{IgnorePermissionErrors: opts.IgnorePermissionErrors}); err == nil {
							b.dirOf[re.Path] = root
						} else if !opts.IgnorePermissionErrors && b.dbg != nil {
							b.dbg.backendError("install watch on new subdirectory", err)
						}
					}
				}
				b.mu.Unlock()
			}
			b.out <- re
		case err, ok := <-innerErrCh:
			if !ok {
				continue
			}
			b.errOut <- err
		}
	}
}

func (b *recursiveBackend) Add(path string, opts WatchOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.walkAndInstall(path, opts); err != nil {
		return err
	}
	b.roots[path] = opts
	return nil
}

func (b *recursiveBackend) Remove(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var firstErr error
	for dir, root := range b.dirOf {
		if root == path {
			if err := b.inner.Remove(dir); err != nil && firstErr == nil {
				firstErr = err
			}
			delete(b.dirOf, dir)
		}
	}
	delete(b.roots, path)
	return firstErr
}

func (b *recursiveBackend) Shutdown() error {
	return b.inner.Shutdown()
}
