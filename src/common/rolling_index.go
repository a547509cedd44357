package common

import "strconv"

// RollingIndex is a bounded, gap-free window of items keyed by consecutive
// indexes. When the window is full, the oldest half is dropped.
type RollingIndex[T any] struct {
	name      string
	size      int
	lastIndex uint64
	empty     bool
	items     []T
}

// NewRollingIndex ...
func NewRollingIndex[T any](name string, size int) *RollingIndex[T] {
	return &RollingIndex[T]{
		name:  name,
		size:  size,
		items: make([]T, 0, 2*size),
		empty: true,
	}
}

// LastIndex returns the index of the most recent item and false if the window
// is empty.
func (r *RollingIndex[T]) LastIndex() (uint64, bool) {
	return r.lastIndex, !r.empty
}

func (r *RollingIndex[T]) oldest() uint64 {
	return r.lastIndex - uint64(len(r.items)) + 1
}

// GetItem ...
func (r *RollingIndex[T]) GetItem(index uint64) (T, error) {
	var zero T
	if r.empty || index > r.lastIndex {
		return zero, NewStoreErr(r.name, KeyNotFound, strconv.FormatUint(index, 10))
	}
	if index < r.oldest() {
		return zero, NewStoreErr(r.name, TooLate, strconv.FormatUint(index, 10))
	}
	return r.items[index-r.oldest()], nil
}

// Set appends an item at lastIndex+1 or replaces an item still in the window.
func (r *RollingIndex[T]) Set(item T, index uint64) error {
	//the first item fixes the starting index
	if r.empty {
		r.items = append(r.items, item)
		r.lastIndex = index
		r.empty = false
		return nil
	}

	if index > r.lastIndex+1 {
		return NewStoreErr(r.name, SkippedIndex, strconv.FormatUint(index, 10))
	}

	if index == r.lastIndex+1 {
		if len(r.items) >= 2*r.size {
			r.Roll()
		}
		r.items = append(r.items, item)
		r.lastIndex = index
		return nil
	}

	if index < r.oldest() {
		return NewStoreErr(r.name, TooLate, strconv.FormatUint(index, 10))
	}

	r.items[index-r.oldest()] = item

	return nil
}

// Roll drops the oldest half of the window.
func (r *RollingIndex[T]) Roll() {
	newList := make([]T, 0, 2*r.size)
	newList = append(newList, r.items[r.size:]...)
	r.items = newList
}
