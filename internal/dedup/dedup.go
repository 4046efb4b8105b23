package dedup

import "sync"

// HighWaterMark tracks the highest message id already accounted for on one
// mailbox. It only moves forward; ids at or below the mark are old news.
// State lives in memory, so a restart re-baselines to the current inbox.
type HighWaterMark struct {
	mu  sync.Mutex
	id  uint32
	set bool
}

// Baseline records the newest id present when a connection is (re)opened.
// Messages up to it are never announced. Ids below the current mark are
// ignored.
func (h *HighWaterMark) Baseline(id uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.set || id > h.id {
		h.id = id
		h.set = true
	}
}

// IsNew reports whether id lies beyond the mark.
func (h *HighWaterMark) IsNew(id uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.set || id > h.id
}

// Advance moves the mark to id if id is new and reports whether it moved.
// Callers emit an event only when Advance returns true.
func (h *HighWaterMark) Advance(id uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.set && id <= h.id {
		return false
	}
	h.id = id
	h.set = true
	return true
}

// Value returns the current mark and whether one has been set.
func (h *HighWaterMark) Value() (uint32, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.id, h.set
}

// Max returns the largest id in ids, or false when ids is empty.
func Max(ids []uint32) (uint32, bool) {
	if len(ids) == 0 {
		return 0, false
	}
	m := ids[0]
	for _, id := range ids[1:] {
		if id > m {
			m = id
		}
	}
	return m, true
}
