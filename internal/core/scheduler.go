package core

import "github.com/3cpo-dev/saltamt/internal/household"

// Chunk splits items into chunks of at most size.
func Chunk[T any](items []T, size int) [][]T {
	if size <= 0 {
		return [][]T{items}
	}
	var chunks [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[i:end])
	}
	return chunks
}

// block is one engine call of a chunked sweep or grid. Offsets locate its
// points within the full axes.
type block struct {
	axes    []household.Axis
	offsets []int
}

// planBlocks splits every axis into pieces of at most size points and
// returns the cross product of the pieces.
func planBlocks(axes []household.Axis, size int) []block {
	blocks := []block{{}}
	for _, a := range axes {
		var next []block
		for _, b := range blocks {
			offset := 0
			for _, part := range household.SplitAxis(a, size) {
				nb := block{
					axes:    append(append([]household.Axis{}, b.axes...), part),
					offsets: append(append([]int{}, b.offsets...), offset),
				}
				next = append(next, nb)
				offset += part.Count
			}
		}
		blocks = next
	}
	return blocks
}
