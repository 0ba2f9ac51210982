// Package coordinator turns an integration request into tasks, dispatches
// them to discovered workers in rounds and sums the partial results.
package coordinator

import (
	"math"

	"github.com/tutu-network/riemann/internal/domain"
)

const (
	// ChunkWidth is the fixed width of every task except possibly the last.
	// Task sizing does not depend on the number of workers.
	ChunkWidth = 10.0

	// MaxTasks caps the number of chunks a single run may produce.
	MaxTasks = 1 << 20
)

// ChunkCount returns how many chunks Partition would slice [start, end) into
// before dropping chunks lost to rounding.
func ChunkCount(start, end, width float64) float64 {
	if !(start < end) {
		return 0
	}
	if !(width > 0) {
		width = ChunkWidth
	}
	return math.Ceil((end - start) / width)
}

// Partition splits [start, end) into consecutive chunks of the given width,
// each carrying step. The last chunk is clipped to end. start >= end yields
// no tasks. A non-positive width falls back to ChunkWidth.
//
// Chunk bounds are computed as start + i*width rather than by accumulation,
// so adjacent chunks share their boundary exactly. At magnitudes where
// width is below the spacing of float64 values a bound can round onto its
// predecessor; such empty chunks are dropped.
func Partition(start, end, step, width float64) []domain.Task {
	if !(start < end) {
		return nil
	}
	if !(width > 0) {
		width = ChunkWidth
	}

	var tasks []domain.Task
	for i := 0; ; i++ {
		lo := start + float64(i)*width
		if lo >= end {
			break
		}
		hi := min(start+float64(i+1)*width, end)
		if !(lo < hi) {
			continue
		}
		tasks = append(tasks, domain.Task{Start: lo, End: hi, Step: step})
	}
	return tasks
}
