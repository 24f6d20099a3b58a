package notifykit

import "time"

// RawKind identifies the shape of a RawEvent. It is a superset of Kind:
// backends forward rename halves they could not pair, and raise a
// synthetic overflow marker the debouncer turns into ModifyUnknown.
type RawKind uint8

const (
	RawCreate RawKind = iota
	RawDelete
	RawRename
	RawModifyData
	RawModifyMetadata
	RawModifyOther
	RawModifyUnknown
	RawAccess
	// RawOverflow signals that the backend's kernel buffer overran and
	// some events under Path (a watch root) were lost.
	RawOverflow
)

func (k RawKind) String() string {
	switch k {
	case RawCreate:
		return "Create"
	case RawDelete:
		return "Delete"
	case RawRename:
		return "Rename"
	case RawModifyData:
		return "ModifyData"
	case RawModifyMetadata:
		return "ModifyMetadata"
	case RawModifyOther:
		return "ModifyOther"
	case RawModifyUnknown:
		return "ModifyUnknown"
	case RawAccess:
		return "Access"
	default:
		return "Overflow"
	}
}

// RawEvent is emitted by a Backend. Rename pairing (§4.B.1) has already
// been attempted by the backend by the time a RawEvent reaches the
// debouncer; RawRename carries both paths, and an unresolved rename
// half is forwarded as a plain RawCreate/RawDelete.
type RawEvent struct {
	Kind RawKind

	Path    string
	OldPath string
	NewPath string

	Object       ObjectKind
	DataType     DataType
	MetadataType MetadataType
	AccessType   AccessType
	AccessMode   AccessMode

	// Cookie correlates a rename-from/rename-to pair before the backend
	// has resolved them into a single RawRename. It never reaches the
	// debouncer attached to anything but an already-resolved RawRename,
	// or 0.
	Cookie uint32

	Time time.Time
}

// WatchOptions configures how a Backend observes one path.
type WatchOptions struct {
	Recursive              bool
	IgnorePermissionErrors bool
}

// Backend abstracts one OS notification source (or the polling
// fallback) behind a uniform interface. Implementations live in
// backend_inotify.go, backend_kqueue.go, backend_windows.go and
// backend_poll.go, gated by build tags the way the teacher gates its
// own per-OS files.
type Backend interface {
	// Start begins watching paths and returns a channel of raw events.
	// The channel is closed after Shutdown returns.
	Start(paths map[string]WatchOptions, debounce time.Duration) (<-chan RawEvent, <-chan error, error)
	// Add registers an additional path without restarting the backend.
	Add(path string, opts WatchOptions) error
	// Remove unregisters a path. Unknown paths are a no-op.
	Remove(path string) error
	// Shutdown releases all OS resources and stops emitting events.
	Shutdown() error
}

// newBackend picks the adapter for the current configuration: the
// preferred native source, or the polling fallback when forcePolling
// is set. Per-OS files provide newNativeBackend.
func newBackend(forcePolling bool, pollDelay time.Duration, dbg *debugChannel) Backend {
	if forcePolling {
		return newPollBackend(pollDelay, dbg)
	}
	return newNativeBackend(pollDelay, dbg)
}
