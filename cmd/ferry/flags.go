package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bamsammich/ferry/internal/job"
)

// conflictFlag is a pflag.Value restricted to the conflict policy names.
type conflictFlag struct {
	policy job.OnConflict
}

func (f *conflictFlag) String() string { return f.policy.String() }
func (*conflictFlag) Type() string     { return "policy" }

func (f *conflictFlag) Set(val string) error {
	p, err := job.ParseOnConflict(val)
	if err != nil {
		return err
	}
	f.policy = p
	return nil
}

// archiveFlag collects repeated --archive-map ARCHIVE=MOUNT pairs, in the
// order given. Later pairs take precedence for nested archives.
type archiveFlag struct {
	mounts []job.ArchiveMount
}

func (f *archiveFlag) String() string {
	parts := make([]string, len(f.mounts))
	for i, m := range f.mounts {
		parts[i] = m.Archive + "=" + m.Mount
	}
	return strings.Join(parts, ",")
}

func (*archiveFlag) Type() string { return "archive=mount" }

func (f *archiveFlag) Set(val string) error {
	archive, mount, ok := strings.Cut(val, "=")
	if !ok || archive == "" || mount == "" {
		return fmt.Errorf("expected ARCHIVE=MOUNT, got %q", val)
	}
	a, err := filepath.Abs(archive)
	if err != nil {
		return err
	}
	m, err := filepath.Abs(mount)
	if err != nil {
		return err
	}
	f.mounts = append(f.mounts, job.ArchiveMount{Archive: a, Mount: m})
	return nil
}
