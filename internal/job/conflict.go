package job

import (
	"fmt"
	"strings"
)

// OnConflict is the policy applied when a transfer target already exists.
type OnConflict int

const (
	Overwrite OnConflict = iota
	Skip
	RenameExisting
	RenameCopy
)

var onConflictNames = [...]string{
	Overwrite:      "overwrite",
	Skip:           "skip",
	RenameExisting: "rename-existing",
	RenameCopy:     "rename-copy",
}

func (c OnConflict) String() string {
	if int(c) < len(onConflictNames) {
		return onConflictNames[c]
	}
	return "unknown"
}

// Renames reports whether the policy keeps both files.
func (c OnConflict) Renames() bool {
	return c == RenameExisting || c == RenameCopy
}

// ParseOnConflict accepts the names returned by String; underscores are
// treated as dashes.
func ParseOnConflict(s string) (OnConflict, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-")
	for c, name := range onConflictNames {
		if name == norm {
			return OnConflict(c), nil
		}
	}
	return 0, fmt.Errorf("unknown conflict policy %q (use overwrite, skip, rename-existing or rename-copy)", s)
}

// OnConflictNames lists the accepted policy names.
func OnConflictNames() []string {
	return append([]string(nil), onConflictNames[:]...)
}
