package brightness

import (
	"math"
	"sort"
	"time"
)

// confirmWindow holds back reads that contradict a value known to be in flight.
type confirmWindow struct {
	target int
	expiry time.Time
}

// Bus is the controller's record of one display's DDC channel.
type Bus struct {
	ID int

	MaxRaw  int // 0 until the first successful read
	Current *int
	Target  *int

	Inflight      bool
	InflightSince time.Time
	BackoffUntil  time.Time
	RetryBudget   int

	PendingConfirm *confirmWindow

	// Written is the percent of the last completed write still waiting for
	// a read; the same value is not written again until one arrives.
	Written   *int
	WrittenAt time.Time

	PollSuspendUntil time.Time
	LastReadAt       time.Time

	confirmScheduled bool
	kickPending      bool
}

func (b *Bus) settled() bool {
	return b.Target == nil
}

func (b *Bus) inBackoff(now time.Time) bool {
	return now.Before(b.BackoffUntil)
}

func (b *Bus) clearInflight() {
	b.Inflight = false
	b.InflightSince = time.Time{}
}

// BusStatus is a copy of one Bus record for diagnostics.
type BusStatus struct {
	ID             int    `json:"id"`
	MaxRaw         int    `json:"max_raw"`
	Current        *int   `json:"current,omitempty"`
	Target         *int   `json:"target,omitempty"`
	Inflight       bool   `json:"inflight"`
	BackoffUntil   string `json:"backoff_until,omitempty"`
	RetryBudget    int    `json:"retry_budget"`
	PendingConfirm *int   `json:"pending_confirm,omitempty"`
}

func (b *Bus) status() BusStatus {
	st := BusStatus{
		ID:          b.ID,
		MaxRaw:      b.MaxRaw,
		Current:     copyInt(b.Current),
		Target:      copyInt(b.Target),
		Inflight:    b.Inflight,
		RetryBudget: b.RetryBudget,
	}
	if !b.BackoffUntil.IsZero() {
		st.BackoffUntil = b.BackoffUntil.Format(time.RFC3339Nano)
	}
	if b.PendingConfirm != nil {
		st.PendingConfirm = copyInt(&b.PendingConfirm.target)
	}
	return st
}

// busStore owns every Bus record. Known buses are only ever added.
type busStore struct {
	byID  map[int]*Bus
	order []int
}

func newBusStore() *busStore {
	return &busStore{byID: make(map[int]*Bus)}
}

func (s *busStore) get(id int) (*Bus, bool) {
	b, ok := s.byID[id]
	return b, ok
}

// union adds ids not yet known and returns the newly added ones.
func (s *busStore) union(ids []int) []int {
	var added []int
	for _, id := range ids {
		if _, ok := s.byID[id]; ok {
			continue
		}
		s.byID[id] = &Bus{ID: id}
		s.order = append(s.order, id)
		added = append(added, id)
	}
	if len(added) > 0 {
		sort.Ints(s.order)
	}
	return added
}

func (s *busStore) ids() []int {
	return append([]int(nil), s.order...)
}

func (s *busStore) each(fn func(*Bus)) {
	for _, id := range s.order {
		fn(s.byID[id])
	}
}

func (s *busStore) primary() (*Bus, bool) {
	if len(s.order) == 0 {
		return nil, false
	}
	return s.byID[s.order[0]], true
}

func (s *busStore) anyInflight() bool {
	for _, b := range s.byID {
		if b.Inflight {
			return true
		}
	}
	return false
}

func clampPercent(p int) int {
	return max(0, min(100, p))
}

func percentToRaw(pct, maxRaw int) int {
	raw := int(math.Round(float64(pct) / 100 * float64(maxRaw)))
	return max(0, min(maxRaw, raw))
}

func rawToPercent(raw, maxRaw int) int {
	return clampPercent(int(math.Round(float64(raw) / float64(maxRaw) * 100)))
}

func copyInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func intPtr(v int) *int { return &v }
