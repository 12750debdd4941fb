package live

// Key identifies a chat message for completeness sampling.
type Key struct {
	UID  uint64
	Text string
}

// Window keeps the most recent distinct chat keys, evicting the oldest when
// full. It is not safe for concurrent use; the connector actor owns it.
type Window struct {
	capacity int
	order    []Key
	index    map[Key]struct{}
}

func NewWindow(capacity int) *Window {
	if capacity <= 0 {
		capacity = DefaultWindowSize
	}
	return &Window{
		capacity: capacity,
		order:    make([]Key, 0, capacity),
		index:    make(map[Key]struct{}, capacity),
	}
}

// Add inserts k. A key already present is left where it is.
func (w *Window) Add(k Key) {
	if _, ok := w.index[k]; ok {
		return
	}
	if len(w.order) == w.capacity {
		oldest := w.order[0]
		delete(w.index, oldest)
		copy(w.order, w.order[1:])
		w.order = w.order[:len(w.order)-1]
	}
	w.order = append(w.order, k)
	w.index[k] = struct{}{}
}

func (w *Window) Contains(k Key) bool {
	_, ok := w.index[k]
	return ok
}

func (w *Window) Len() int {
	return len(w.order)
}

func (w *Window) Reset() {
	w.order = w.order[:0]
	clear(w.index)
}

// MatchRatio returns the percentage of snapshot keys present in the window.
// ok is false for an empty snapshot.
func (w *Window) MatchRatio(snapshot []Key) (ratio float64, ok bool) {
	if len(snapshot) == 0 {
		return 0, false
	}
	matched := 0
	for _, k := range snapshot {
		if w.Contains(k) {
			matched++
		}
	}
	return float64(matched) / float64(len(snapshot)) * 100, true
}
