package job

import (
	"fmt"
	"time"
)

// Kind is the operation a job performs.
type Kind int

const (
	Copy Kind = iota
	Move
	Delete
)

var kindNames = [...]string{
	Copy:   "copy",
	Move:   "move",
	Delete: "delete",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// EntryType identifies the kind of filesystem entry.
type EntryType int

const (
	File EntryType = iota
	Dir
	Symlink
	Other
)

var entryTypeNames = [...]string{
	File:    "file",
	Dir:     "dir",
	Symlink: "symlink",
	Other:   "other",
}

func (t EntryType) String() string {
	if int(t) < len(entryTypeNames) {
		return entryTypeNames[t]
	}
	return "unknown"
}

// ParseEntryType is the inverse of EntryType.String.
func ParseEntryType(s string) (EntryType, error) {
	for t, name := range entryTypeNames {
		if name == s {
			return EntryType(t), nil
		}
	}
	return 0, fmt.Errorf("unknown entry type %q", s)
}

// Entry is a single file, directory or symlink tracked through a job.
type Entry struct {
	ModTime time.Time
	// Path is absolute and expressed in display space (archive paths are
	// not yet mapped to their mount points).
	Path    string
	Message string
	// Target is the destination chosen the first time the entry was
	// encountered; it is reused verbatim when the entry is resumed.
	Target      string
	// Source, when set, is where the content is read from instead of Path.
	// A copy onto itself reads from the original after it was renamed aside.
	Source      string
	ID          int64
	JobID       int64
	Size        int64
	Mode        uint32
	UID         uint32
	GID         uint32
	Type        EntryType
	Status      Status
	TargetIsDir bool
}

// IsDir reports whether the entry is a directory.
func (e Entry) IsDir() bool { return e.Type == Dir }

// Settled reports whether the entry needs no further processing.
func (e Entry) Settled() bool { return e.Status.Terminal() }

// DirCompletion is the post-order record for a directory: ownership,
// permissions and (for moves) source removal are applied only after every
// descendant has been handled.
type DirCompletion struct {
	Message string
	Source  string
	Target  string
	Entry   Entry
	ID      int64
	Status  Status
	NewDir  bool
}

// RenameBarrier rewrites every descendant target under Existing to live
// under Replacement instead.
type RenameBarrier struct {
	Existing    string
	Replacement string
}

// Covers reports whether target is the renamed directory or falls under it.
func (b RenameBarrier) Covers(target string) bool {
	return IsWithin(target, b.Existing)
}

// Rewrite maps target from the existing prefix to the replacement prefix.
func (b RenameBarrier) Rewrite(target string) string {
	return b.Replacement + target[len(b.Existing):]
}

// SkipBarrier marks a whole source subtree as handled. When Skipped is
// false the subtree was dealt with as a unit (a directory moved by rename)
// and descendants are Done; otherwise they are Skipped.
type SkipBarrier struct {
	Prefix  string
	Skipped bool
}

// Covers reports whether path is the barrier's own directory or falls
// under it. The directory itself is covered so a barrier recorded before
// its directory settled still settles it on resume.
func (b SkipBarrier) Covers(path string) bool {
	return IsWithin(path, b.Prefix)
}

// Job is one user-initiated copy, move or delete.
type Job struct {
	CreatedAt  time.Time
	Cwd        string
	Dest       string
	Archives   []ArchiveMount
	ID         int64
	Kind       Kind
	OnConflict OnConflict
	Status     JobStatus
	// ReplaceFirstPath is computed once on the first run and persisted so
	// that resumed runs map targets identically.
	ReplaceFirstPath *bool
}

// ArchiveMount is one entry of the archive mapping in effect when the job
// was created.
type ArchiveMount struct {
	Archive string `json:"archive"`
	Mount   string `json:"mount"`
}
