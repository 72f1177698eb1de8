package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Collector tracks job progress using lock-free atomic counters. Elapsed
// time excludes suspended intervals: the engine shifts the start time
// forward by however long it was suspended.
type Collector struct {
	filesDone    atomic.Int64
	filesFailed  atomic.Int64
	filesSkipped atomic.Int64
	bytesDone    atomic.Int64
	bytesTotal   atomic.Int64
	filesTotal   atomic.Int64

	// Guards startTime and the ring buffer. The ring is written only by
	// the presenter's Tick(), not by the engine.
	mu         sync.Mutex
	startTime  time.Time
	throughput [ringSize]int64 // bytes delta per tick
	ringIdx    int
	ringCount  int
	lastBytes  int64
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// SetTotals records the inventory size (called once before the run).
func (c *Collector) SetTotals(files, bytes int64) {
	c.filesTotal.Store(files)
	c.bytesTotal.Store(bytes)
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	FilesDone    int64
	FilesFailed  int64
	FilesSkipped int64
	BytesDone    int64
	BytesTotal   int64
	FilesTotal   int64
	Elapsed      time.Duration
	ETA          time.Duration
}

func (c *Collector) AddFilesDone(n int64)    { c.filesDone.Add(n) }
func (c *Collector) AddFilesFailed(n int64)  { c.filesFailed.Add(n) }
func (c *Collector) AddFilesSkipped(n int64) { c.filesSkipped.Add(n) }

// AddBytesDone adds n (possibly negative, when a partial copy is thrown
// away) to the byte counter.
func (c *Collector) AddBytesDone(n int64) { c.bytesDone.Add(n) }

// Snapshot returns a point-in-time read of all counters.
func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		FilesDone:    c.filesDone.Load(),
		FilesFailed:  c.filesFailed.Load(),
		FilesSkipped: c.filesSkipped.Load(),
		BytesDone:    c.bytesDone.Load(),
		BytesTotal:   c.bytesTotal.Load(),
		FilesTotal:   c.filesTotal.Load(),
		Elapsed:      c.Elapsed(),
		ETA:          c.ETA(),
	}
}

// Shift moves the start time forward by d so that a suspended interval
// does not count towards elapsed time or throughput.
func (c *Collector) Shift(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	c.startTime = c.startTime.Add(d)
	c.mu.Unlock()
}

// Tick snapshots the byte delta into the ring buffer. Called 1/sec by the presenter.
func (c *Collector) Tick() {
	current := c.bytesDone.Load()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.throughput[c.ringIdx] = current - c.lastBytes
	c.lastBytes = current
	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n ticks.
func (c *Collector) RollingSpeed(seconds int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(seconds, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum int64
	for i := range count {
		sum += c.throughput[(c.ringIdx-1-i+ringSize)%ringSize]
	}
	return float64(sum) / float64(count)
}

// SparklineData returns up to n per-tick byte deltas, oldest first.
func (c *Collector) SparklineData(n int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := min(n, c.ringCount)
	out := make([]float64, count)
	for i := range count {
		out[count-1-i] = float64(c.throughput[(c.ringIdx-1-i+ringSize)%ringSize])
	}
	return out
}

// Speed returns the rolling speed when the presenter ticks, and the
// average over the whole (unsuspended) run otherwise.
func (c *Collector) Speed() float64 {
	if s := c.RollingSpeed(10); s > 0 {
		return s
	}
	elapsed := c.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(c.bytesDone.Load()) / elapsed
}

// ETA estimates remaining time from Speed and the remaining bytes.
func (c *Collector) ETA() time.Duration {
	remaining := c.bytesTotal.Load() - c.bytesDone.Load()
	if remaining <= 0 {
		return 0
	}
	speed := c.Speed()
	if speed <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) / speed * float64(time.Second))
}

// Elapsed returns time since collector creation minus suspended time.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Since(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"done=%d/%d failed=%d skipped=%d bytes=%d/%d",
		s.FilesDone, s.FilesTotal, s.FilesFailed, s.FilesSkipped,
		s.BytesDone, s.BytesTotal,
	)
}

// FormatBytes returns a human-readable byte count.
func FormatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}
