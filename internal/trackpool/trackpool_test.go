package trackpool

import "testing"

func TestAllocateFillThenOverflow(t *testing.T) {
	t.Parallel()

	p := New[int](2, 4)
	if id := p.Allocate(); id != 1 {
		t.Errorf("first Allocate() = %d, want 1", id)
	}
	if id := p.Allocate(); id != 2 {
		t.Errorf("second Allocate() = %d, want 2", id)
	}
	if id := p.Allocate(); id != 0 {
		t.Errorf("third Allocate() on saturated pool = %d, want 0", id)
	}
}

func TestReleaseUnknownID(t *testing.T) {
	t.Parallel()

	p := New[int](2, 4)
	if p.Release(999) {
		t.Error("Release() of unknown id should return false")
	}
}

func TestReleaseFreesSlotForReuse(t *testing.T) {
	t.Parallel()

	p := New[int](1, 4)
	id := p.Allocate()
	if !p.Release(id) {
		t.Fatal("Release() of live id should return true")
	}
	if got := p.Allocate(); got == 0 {
		t.Error("Allocate() after Release() should succeed again")
	}
}

func TestClearAllResetsIDCounter(t *testing.T) {
	t.Parallel()

	p := New[int](4, 4)
	p.Allocate()
	p.Allocate()
	p.Allocate()

	p.ClearAll()

	if got := p.LiveCount(); got != 0 {
		t.Errorf("LiveCount() after ClearAll() = %d, want 0", got)
	}
	if id := p.Allocate(); id != 1 {
		t.Errorf("Allocate() after ClearAll() = %d, want 1", id)
	}
}

// TestPropertyIDMapAndFreeListPartitionSlots encodes P1: after every
// command, |id_map| + |free_list| == N, and the two sets of slot indices
// are disjoint.
func TestPropertyIDMapAndFreeListPartitionSlots(t *testing.T) {
	t.Parallel()

	const n = 5
	p := New[int](n, 4)

	ids := make([]uint32, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, p.Allocate())
	}
	// Release every other track to exercise a mixed occupied/free state.
	for i, id := range ids {
		if i%2 == 0 {
			p.Release(id)
		}
	}

	occupied := make(map[int]bool)
	for _, slot := range p.idToSlot {
		occupied[slot] = true
	}
	free := make(map[int]bool)
	for _, slot := range p.freeList {
		free[slot] = true
	}

	if len(occupied)+len(free) != n {
		t.Fatalf("occupied(%d) + free(%d) != N(%d)", len(occupied), len(free), n)
	}
	for slot := range occupied {
		if free[slot] {
			t.Errorf("slot %d present in both occupied and free sets", slot)
		}
	}
}

// TestPropertyIDsMonotonicUntilClear encodes P3: issued ids strictly
// increase until a ClearAll resets the counter, and no id is reused
// without an intervening ClearAll.
func TestPropertyIDsMonotonicUntilClear(t *testing.T) {
	t.Parallel()

	p := New[int](8, 4)
	seen := make(map[uint32]bool)
	var last uint32
	for i := 0; i < 8; i++ {
		id := p.Allocate()
		if id <= last {
			t.Fatalf("Allocate() returned %d, not strictly greater than previous %d", id, last)
		}
		if seen[id] {
			t.Fatalf("id %d reused without an intervening ClearAll", id)
		}
		seen[id] = true
		last = id
	}

	p.ClearAll()
	if id := p.Allocate(); id != 1 {
		t.Errorf("Allocate() after ClearAll() = %d, want reset to 1", id)
	}
}

func TestZeroIsNeverIssued(t *testing.T) {
	t.Parallel()

	p := New[int](3, 4)
	for i := 0; i < 3; i++ {
		if id := p.Allocate(); id == 0 {
			t.Error("Allocate() issued the reserved sentinel 0 while capacity remained")
		}
	}
}

func TestLookupReflectsOccupancy(t *testing.T) {
	t.Parallel()

	p := New[int](2, 4)
	id := p.Allocate()
	if _, ok := p.Lookup(id); !ok {
		t.Error("Lookup() of live id should succeed")
	}
	p.Release(id)
	if _, ok := p.Lookup(id); ok {
		t.Error("Lookup() of released id should fail")
	}
}
