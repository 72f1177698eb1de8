package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bamsammich/ferry/internal/archive"
	"github.com/bamsammich/ferry/internal/event"
	"github.com/bamsammich/ferry/internal/job"
)

// ScanConfig controls scanner behavior.
type ScanConfig struct {
	Mapper   archive.Mapper
	Control  <-chan event.Signal
	Progress *event.Latest[ScanProgress]
	// Paths are the top-level entries, absolute and in display space.
	Paths []string
	// ReadMetadata records size, times, mode and ownership. Deletion does
	// not need them and leaves it off.
	ReadMetadata bool
}

// ScanProgress is the snapshot published while scanning.
type ScanProgress struct {
	Current string
	Files   int64
	Bytes   int64
	// Sized is false when metadata is not read and Bytes means nothing.
	Sized bool
}

// ScanError is a directory that could not be listed.
type ScanError struct {
	Path    string
	Message string
}

// ScanResult is the flat inventory produced by Scan.
type ScanResult struct {
	Entries []job.Entry
	Errors  []ScanError
	// Skipped lists the subtrees dropped by a Skip signal.
	Skipped []string
	Aborted bool
}

type visit int

const (
	visitOK visit = iota
	visitSkip
	visitAbort
)

type scanner struct {
	cfg      ScanConfig
	ctl      control
	throttle *event.Throttle
	res      ScanResult
	files    int64
	bytes    int64
}

// Scan walks cfg.Paths depth-first, directory contents in name order, and
// returns every entry found. Control is polled before each filesystem
// step: Abort keeps only the top-level entries scanned completely, Skip
// drops the directory being listed (or, between top-level entries, the
// next one). A canceled context is treated as Abort.
func Scan(ctx context.Context, cfg ScanConfig) ScanResult {
	cfg.Mapper = archive.OrIdentity(cfg.Mapper)
	s := &scanner{
		cfg:      cfg,
		throttle: event.NewThrottle(event.ProgressInterval),
	}
	s.ctl = control{ctx: ctx, signals: cfg.Control}

	for _, p := range cfg.Paths {
		v := s.poll()
		if v == visitSkip {
			s.res.Skipped = append(s.res.Skipped, p)
			continue
		}
		if v == visitAbort || s.descend(p) == visitAbort {
			s.res.Aborted = true
			break
		}
	}

	cfg.Progress.Publish(s.snapshot(""))
	return s.res
}

// descend visits path and undoes everything it added if the subtree was
// skipped or the scan aborted.
func (s *scanner) descend(path string) visit {
	mark, files, bytes := len(s.res.Entries), s.files, s.bytes

	v := s.visit(path)
	switch v {
	case visitSkip:
		s.res.Skipped = append(s.res.Skipped, path)
	case visitAbort:
	default:
		return v
	}
	s.res.Entries = s.res.Entries[:mark]
	s.files, s.bytes = files, bytes
	if v == visitSkip {
		return visitOK
	}
	return v
}

func (s *scanner) visit(path string) visit {
	info, err := os.Lstat(archive.ActualParent(s.cfg.Mapper, path))
	if err != nil {
		s.res.Entries = append(s.res.Entries, job.Entry{
			Path:    path,
			Status:  job.Error,
			Message: fmt.Sprintf("(dirscan) %v", err),
		})
		return visitOK
	}

	e := newEntry(path, info, s.cfg.ReadMetadata)
	idx := len(s.res.Entries)
	s.res.Entries = append(s.res.Entries, e)
	s.files++
	s.bytes += e.Size
	if e.Type != job.Dir {
		return visitOK
	}

	s.throttle.Do(func() { s.cfg.Progress.Publish(s.snapshot(path)) })

	dirents, err := os.ReadDir(s.cfg.Mapper.Actual(path))
	if err != nil {
		msg := err.Error()
		s.res.Errors = append(s.res.Errors, ScanError{Path: path, Message: msg})
		s.res.Entries[idx].Status = job.Error
		s.res.Entries[idx].Message = "(dirscan) " + msg
		return visitOK
	}

	for _, d := range dirents {
		if v := s.poll(); v != visitOK {
			return v
		}
		if v := s.descend(filepath.Join(path, d.Name())); v != visitOK {
			return v
		}
	}
	return visitOK
}

func (s *scanner) poll() visit {
	kind, err := s.ctl.next()
	switch {
	case err != nil, kind == event.Abort:
		return visitAbort
	case kind == event.Skip:
		return visitSkip
	}
	return visitOK
}

func (s *scanner) snapshot(current string) ScanProgress {
	return ScanProgress{
		Current: current,
		Files:   s.files,
		Bytes:   s.bytes,
		Sized:   s.cfg.ReadMetadata,
	}
}
