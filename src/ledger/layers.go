package ledger

// layers is a copy-on-write map. Frozen levels, oldest first, are shared
// between world states and never written again. Writes go to the private top
// level. Levels are merged as they are frozen so that a map of n keys has
// O(log n) of them.
type layers[V any] struct {
	frozen []map[string]V
	top    map[string]V
	n      int
}

func newLayers[V any]() layers[V] {
	return layers[V]{top: make(map[string]V)}
}

func (l *layers[V]) get(k string) (V, bool) {
	if v, ok := l.top[k]; ok {
		return v, true
	}
	for i := len(l.frozen) - 1; i >= 0; i-- {
		if v, ok := l.frozen[i][k]; ok {
			return v, true
		}
	}
	var zero V
	return zero, false
}

func (l *layers[V]) has(k string) bool {
	_, ok := l.get(k)
	return ok
}

func (l *layers[V]) set(k string, v V) {
	if !l.has(k) {
		l.n++
	}
	l.top[k] = v
}

// drop removes a key written to the top level only, to undo its creation.
func (l *layers[V]) drop(k string) {
	if _, ok := l.top[k]; !ok {
		return
	}
	delete(l.top, k)
	if !l.has(k) {
		l.n--
	}
}

func (l *layers[V]) size() int {
	return l.n
}

// inTop reports whether k was written since the last freeze.
func (l *layers[V]) inTop(k string) bool {
	_, ok := l.top[k]
	return ok
}

// child returns layers sharing every level of l, l's top level included.
// l must not be written to afterwards. child only reads l.
func (l *layers[V]) child() layers[V] {
	frozen := make([]map[string]V, len(l.frozen), len(l.frozen)+1)
	copy(frozen, l.frozen)
	if len(l.top) > 0 {
		frozen = append(frozen, l.top)
	}

	// merge while the newest level is at least half the size of the one
	// before it. Merged levels are new maps: the old ones stay shared.
	for len(frozen) > 1 {
		last, prev := frozen[len(frozen)-1], frozen[len(frozen)-2]
		if 2*len(last) < len(prev) {
			break
		}
		merged := make(map[string]V, len(prev)+len(last))
		for k, v := range prev {
			merged[k] = v
		}
		for k, v := range last {
			merged[k] = v
		}
		frozen = append(frozen[:len(frozen)-2], merged)
	}

	return layers[V]{
		frozen: frozen,
		top:    make(map[string]V),
		n:      l.n,
	}
}
