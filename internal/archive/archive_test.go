package archive_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bamsammich/ferry/internal/archive"
	"github.com/bamsammich/ferry/internal/job"
)

func TestTable_ActualAndDisplay(t *testing.T) {
	tbl := archive.NewTable([]job.ArchiveMount{
		{Archive: "/home/u/a.zip", Mount: "/tmp/m1"},
		{Archive: "/home/u/a.zip/inner.tar", Mount: "/tmp/m2"},
	})

	tests := []struct {
		display string
		actual  string
	}{
		{display: "/home/u/a.zip", actual: "/tmp/m1"},
		{display: "/home/u/a.zip/dir/f", actual: "/tmp/m1/dir/f"},
		{display: "/home/u/a.zip/inner.tar/x", actual: "/tmp/m2/x"},
		{display: "/home/u/other", actual: "/home/u/other"},
		{display: "/home/u/a.zipper", actual: "/home/u/a.zipper"},
	}
	for _, tt := range tests {
		t.Run(tt.display, func(t *testing.T) {
			assert.Equal(t, tt.actual, tbl.Actual(tt.display))
			assert.Equal(t, tt.display, tbl.Display(tt.actual))
		})
	}
}

func TestActualParent(t *testing.T) {
	tbl := archive.NewTable([]job.ArchiveMount{{Archive: "/a.zip", Mount: "/tmp/m"}})

	// The archive file itself stays unmapped; its children map.
	assert.Equal(t, "/a.zip", archive.ActualParent(tbl, "/a.zip"))
	assert.Equal(t, "/tmp/m/f", archive.ActualParent(tbl, "/a.zip/f"))
	assert.Equal(t, "/a.zip/f", archive.DisplayParent(tbl, "/tmp/m/f"))
}

func TestIdentity(t *testing.T) {
	m := archive.OrIdentity(nil)
	assert.Equal(t, "/x/y", m.Actual("/x/y"))
	assert.Equal(t, "/x/y", m.Display("/x/y"))
}
