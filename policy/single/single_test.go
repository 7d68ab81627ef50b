package single

import "testing"

// --- test doubles ---

// mockHooks simulates a shard whose list holds `size` entries; the
// first `expired` entries counted from the tail are past their TTL.
type mockHooks struct {
	size    int
	cap     int
	expired int

	removeCalls   int
	expiredChecks int
}

func (h *mockHooks) Overloaded() bool { return h.size > h.cap }
func (h *mockHooks) TailExpired() bool {
	h.expiredChecks++
	return h.size > 0 && h.expired > 0
}
func (h *mockHooks) RemoveTail(expiredOnly bool) bool {
	h.removeCalls++
	if h.size == 0 || (expiredOnly && h.expired == 0) {
		return false
	}
	h.size--
	if h.expired > 0 {
		h.expired--
	}
	return true
}

// --- tests ---

// A pass removes at most one entry for overload even when far over capacity.
func TestSingle_OneOverloadRemovalPerPass(t *testing.T) {
	t.Parallel()

	h := &mockHooks{size: 10, cap: 2}
	p := New().New(h)

	if got := p.Pass(); got != 1 {
		t.Fatalf("Pass removed %d, want 1", got)
	}
	if h.size != 9 {
		t.Fatalf("size = %d, want 9", h.size)
	}
}

// Overload and expiry are independent triggers: both can fire in one pass.
func TestSingle_OverloadThenExpired(t *testing.T) {
	t.Parallel()

	h := &mockHooks{size: 5, cap: 4, expired: 3}
	p := New().New(h)

	if got := p.Pass(); got != 2 {
		t.Fatalf("Pass removed %d, want 2", got)
	}
	if h.size != 3 {
		t.Fatalf("size = %d, want 3", h.size)
	}
}

// Within capacity and nothing expired: no removal attempts at all.
func TestSingle_Idle(t *testing.T) {
	t.Parallel()

	h := &mockHooks{size: 2, cap: 4}
	p := New().New(h)

	if got := p.Pass(); got != 0 {
		t.Fatalf("Pass removed %d, want 0", got)
	}
	if h.removeCalls != 0 {
		t.Fatalf("RemoveTail called %d times on an idle shard", h.removeCalls)
	}
	if h.expiredChecks != 1 {
		t.Fatalf("TailExpired checked %d times, want 1", h.expiredChecks)
	}
}
