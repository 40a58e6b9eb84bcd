package bufpool

import "testing"

func TestReservedWriteAdvancesCursor(t *testing.T) {
	p := New(1024)
	slab1, off1 := p.ReservedWrite(100)
	if off1 != 0 {
		t.Fatalf("expected first reservation at offset 0, got %d", off1)
	}
	slab2, off2 := p.ReservedWrite(50)
	if slab1 != slab2 {
		t.Fatalf("expected same slab for back-to-back reservations")
	}
	if off2 != 100 {
		t.Fatalf("expected second reservation at offset 100, got %d", off2)
	}
}

func TestLowWaterSwapsSlab(t *testing.T) {
	p := New(200)
	slab1, _ := p.ReservedWrite(100)
	// Remaining is 100, still above LowWater(128)? No: 200-100=100 < 128,
	// so the NEXT reservation should see a swapped slab already.
	slab2, off2 := p.ReservedWrite(10)
	if slab1 == slab2 {
		t.Fatalf("expected slab swap once remaining capacity fell below LowWater")
	}
	if off2 != 0 {
		t.Fatalf("expected fresh slab reservation at offset 0, got %d", off2)
	}
}

func TestOldSlabStaysValidAfterSwap(t *testing.T) {
	p := New(200)
	slab1, off1 := p.ReservedWrite(100)
	copy(slab1.Bytes[off1:off1+100], make([]byte, 100))
	_, _ = p.ReservedWrite(10) // forces a swap per LowWater
	// slab1 must still be readable; its storage was never reused.
	if len(slab1.Bytes) != 200 {
		t.Fatalf("old slab storage was mutated/discarded unexpectedly")
	}
}

func TestOversizedRequestAllocatesPrivateSlab(t *testing.T) {
	p := New(64)
	slab := p.Ensure(1000)
	if len(slab.Bytes) < 1000 {
		t.Fatalf("expected oversized private slab, got len=%d", len(slab.Bytes))
	}
}

func TestReservedWriteOversizedAllocatesPrivateSlab(t *testing.T) {
	p := New(64)
	slab, offset := p.ReservedWrite(1000)
	if offset != 0 {
		t.Fatalf("expected oversized reservation at offset 0, got %d", offset)
	}
	if len(slab.Bytes) < 1000 {
		t.Fatalf("expected oversized private slab, got len=%d", len(slab.Bytes))
	}
	// A second oversized reservation must not reuse or resize the first
	// slab's backing array out from under an earlier caller.
	slab2, _ := p.ReservedWrite(1000)
	if slab == slab2 {
		t.Fatalf("expected a fresh private slab per oversized reservation")
	}
}

func TestRewindReturnsSpaceWhenStillCurrent(t *testing.T) {
	p := New(1024)
	slab, _ := p.ReservedWrite(100)
	p.Rewind(slab, 100)
	_, off := p.ReservedWrite(10)
	if off != 0 {
		t.Fatalf("expected rewind to free the reserved space, got offset %d", off)
	}
}

func TestRewindNoopAfterSlabReplaced(t *testing.T) {
	p := New(200)
	slab, _ := p.ReservedWrite(100)
	_, _ = p.ReservedWrite(10) // swaps to a new slab
	// Rewinding the old, no-longer-current slab must not panic or corrupt
	// the new slab's cursor.
	p.Rewind(slab, 100)
	_, off := p.ReservedWrite(5)
	if off != 10 {
		t.Fatalf("expected new slab cursor unaffected by stale rewind, got %d", off)
	}
}
