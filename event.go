// Package notifykit provides a cross-platform filesystem-notification
// engine: a background notification loop, a debouncer/coalescer, a
// bounded multi-consumer event pipeline, and a typed event model with
// filtering rules.
package notifykit

import "fmt"

// Kind identifies which variant an Event carries. Every Kind has its
// own set of meaningful attributes; see the field docs on Event.
type Kind uint8

const (
	// KindCreate reports a new file, directory, or other object.
	KindCreate Kind = iota
	// KindDelete reports the removal of a path.
	KindDelete
	// KindRename reports that OldPath now lives at NewPath.
	KindRename
	// KindModifyData reports a change to a file's content or size.
	KindModifyData
	// KindModifyMetadata reports a change to permissions, ownership or timestamps.
	KindModifyMetadata
	// KindModifyOther reports a modification the backend can't classify further.
	KindModifyOther
	// KindModifyUnknown reports a modification the backend lost details about,
	// including the synthetic event raised after a kernel buffer overflow.
	KindModifyUnknown
	// KindAccess reports a read/open/close without content modification.
	KindAccess
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "Create"
	case KindDelete:
		return "Delete"
	case KindRename:
		return "Rename"
	case KindModifyData:
		return "ModifyData"
	case KindModifyMetadata:
		return "ModifyMetadata"
	case KindModifyOther:
		return "ModifyOther"
	case KindModifyUnknown:
		return "ModifyUnknown"
	case KindAccess:
		return "Access"
	default:
		return "Unknown"
	}
}

// ObjectKind classifies the filesystem object a Create/Delete event refers to.
type ObjectKind uint8

const (
	ObjectFile ObjectKind = iota
	ObjectDir
	ObjectOther
	ObjectUnknown
)

func (o ObjectKind) String() string {
	switch o {
	case ObjectFile:
		return "File"
	case ObjectDir:
		return "Dir"
	case ObjectOther:
		return "Other"
	default:
		return "Unknown"
	}
}

// DataType classifies a ModifyData event.
type DataType uint8

const (
	DataContent DataType = iota
	DataSize
	DataOther
)

func (d DataType) String() string {
	switch d {
	case DataContent:
		return "Content"
	case DataSize:
		return "Size"
	default:
		return "Other"
	}
}

// MetadataType classifies a ModifyMetadata event.
type MetadataType uint8

const (
	MetadataPermissions MetadataType = iota
	MetadataOwnership
	MetadataTimestamp
	MetadataAccessTime
	MetadataWriteTime
	MetadataOther
)

func (m MetadataType) String() string {
	switch m {
	case MetadataPermissions:
		return "Permissions"
	case MetadataOwnership:
		return "Ownership"
	case MetadataTimestamp:
		return "Timestamp"
	case MetadataAccessTime:
		return "AccessTime"
	case MetadataWriteTime:
		return "WriteTime"
	default:
		return "Other"
	}
}

// AccessType classifies an Access event's action.
type AccessType uint8

const (
	AccessRead AccessType = iota
	AccessOpen
	AccessClose
	AccessOther
)

func (a AccessType) String() string {
	switch a {
	case AccessRead:
		return "Read"
	case AccessOpen:
		return "Open"
	case AccessClose:
		return "Close"
	default:
		return "Other"
	}
}

// AccessMode classifies the capability exercised by an Access event.
type AccessMode uint8

const (
	ModeRead AccessMode = iota
	ModeWrite
	ModeExecute
	ModeOther
)

func (m AccessMode) String() string {
	switch m {
	case ModeRead:
		return "Read"
	case ModeWrite:
		return "Write"
	case ModeExecute:
		return "Execute"
	default:
		return "Other"
	}
}

// Event is a single filesystem change. It is a value type: two Events
// are equal iff every attribute is equal, which in Go means Event is a
// plain comparable struct and callers may use == or testify's Equal.
//
// Only the fields relevant to Kind are meaningful; constructors below
// set exactly those and zero the rest, so two events built through the
// same constructor with the same arguments always compare equal.
type Event struct {
	Kind Kind

	Path    string // Create, Delete, ModifyData, ModifyMetadata, ModifyOther, ModifyUnknown, Access
	OldPath string // Rename
	NewPath string // Rename

	Object       ObjectKind   // Create, Delete
	DataType     DataType     // ModifyData
	MetadataType MetadataType // ModifyMetadata
	AccessType   AccessType   // Access
	AccessMode   AccessMode   // Access
}

// NewCreate builds a Create event.
func NewCreate(path string, object ObjectKind) Event {
	return Event{Kind: KindCreate, Path: path, Object: object}
}

// NewDelete builds a Delete event.
func NewDelete(path string, object ObjectKind) Event {
	return Event{Kind: KindDelete, Path: path, Object: object}
}

// NewRename builds a Rename event.
func NewRename(oldPath, newPath string) Event {
	return Event{Kind: KindRename, OldPath: oldPath, NewPath: newPath}
}

// NewModifyData builds a ModifyData event.
func NewModifyData(path string, dataType DataType) Event {
	return Event{Kind: KindModifyData, Path: path, DataType: dataType}
}

// NewModifyMetadata builds a ModifyMetadata event.
func NewModifyMetadata(path string, metadataType MetadataType) Event {
	return Event{Kind: KindModifyMetadata, Path: path, MetadataType: metadataType}
}

// NewModifyOther builds a ModifyOther event.
func NewModifyOther(path string) Event {
	return Event{Kind: KindModifyOther, Path: path}
}

// NewModifyUnknown builds a ModifyUnknown event, also used as the
// synthetic sentinel raised after a backend buffer overflow.
func NewModifyUnknown(path string) Event {
	return Event{Kind: KindModifyUnknown, Path: path}
}

// NewAccess builds an Access event.
func NewAccess(path string, accessType AccessType, accessMode AccessMode) Event {
	return Event{Kind: KindAccess, Path: path, AccessType: accessType, AccessMode: accessMode}
}

// AsCreate destructures a Create/Delete event in declaration order.
// ok is false if e is not of that Kind.
func (e Event) AsCreate() (path string, object ObjectKind, ok bool) {
	if e.Kind != KindCreate && e.Kind != KindDelete {
		return "", 0, false
	}
	return e.Path, e.Object, true
}

// AsRename destructures a Rename event in declaration order.
func (e Event) AsRename() (oldPath, newPath string, ok bool) {
	if e.Kind != KindRename {
		return "", "", false
	}
	return e.OldPath, e.NewPath, true
}

// AsModifyData destructures a ModifyData event in declaration order.
func (e Event) AsModifyData() (path string, dataType DataType, ok bool) {
	if e.Kind != KindModifyData {
		return "", 0, false
	}
	return e.Path, e.DataType, true
}

// AsModifyMetadata destructures a ModifyMetadata event in declaration order.
func (e Event) AsModifyMetadata() (path string, metadataType MetadataType, ok bool) {
	if e.Kind != KindModifyMetadata {
		return "", 0, false
	}
	return e.Path, e.MetadataType, true
}

// AsAccess destructures an Access event in declaration order.
func (e Event) AsAccess() (path string, accessType AccessType, accessMode AccessMode, ok bool) {
	if e.Kind != KindAccess {
		return "", 0, 0, false
	}
	return e.Path, e.AccessType, e.AccessMode, true
}

// Paths returns every path this event carries, for code that doesn't
// care about the event's kind (filtering, logging, root matching).
func (e Event) Paths() []string {
	if e.Kind == KindRename {
		return []string{e.OldPath, e.NewPath}
	}
	return []string{e.Path}
}

func (e Event) String() string {
	switch e.Kind {
	case KindRename:
		return fmt.Sprintf("Rename(%s -> %s)", e.OldPath, e.NewPath)
	case KindCreate, KindDelete:
		return fmt.Sprintf("%s(%s, %s)", e.Kind, e.Path, e.Object)
	case KindModifyData:
		return fmt.Sprintf("ModifyData(%s, %s)", e.Path, e.DataType)
	case KindModifyMetadata:
		return fmt.Sprintf("ModifyMetadata(%s, %s)", e.Path, e.MetadataType)
	case KindAccess:
		return fmt.Sprintf("Access(%s, %s, %s)", e.Path, e.AccessType, e.AccessMode)
	default:
		return fmt.Sprintf("%s(%s)", e.Kind, e.Path)
	}
}

// Batch is a non-empty, ordered sequence of Events flushed together by
// one debouncer tick. Within a batch no two events are byte-equal and
// ordering reflects the producer's observation order.
type Batch []Event
