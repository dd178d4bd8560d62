package slab

import "testing"

const testRecSize = 16

func encodeU64(v uint64) func([]byte) {
	return func(dst []byte) { putLE64(dst[0:8], v) }
}

func TestVecPushGetRemoveRecycle(t *testing.T) {
	a := NewAlloc(4)
	v, err := NewVec(a, 0, testRecSize)
	if err != nil {
		t.Fatalf("NewVec: %v", err)
	}

	h1, err := v.Push(encodeU64(111))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	h2, err := v.Push(encodeU64(222))
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if v.Len() != 2 {
		t.Fatalf("len = %d, want 2", v.Len())
	}

	rec, err := v.Get(h1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := le64(rec[0:8]); got != 111 {
		t.Fatalf("got %d want 111", got)
	}

	if err := v.Remove(h1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if v.Len() != 1 {
		t.Fatalf("len after remove = %d, want 1", v.Len())
	}

	h3, err := v.Push(encodeU64(333))
	if err != nil {
		t.Fatalf("push after remove: %v", err)
	}
	if h3 != h1 {
		t.Fatalf("expected recycled handle %d, got %d", h1, h3)
	}

	rec2, err := v.Get(h2)
	if err != nil {
		t.Fatalf("get h2: %v", err)
	}
	if got := le64(rec2[0:8]); got != 222 {
		t.Fatalf("h2 corrupted: got %d want 222", got)
	}
}

func TestVecCapacityExhausted(t *testing.T) {
	// One page, tiny records: itemsPerPage = (PageSize-8)/16.
	a := NewAlloc(1)
	v, err := NewVec(a, 0, testRecSize)
	if err != nil {
		t.Fatalf("NewVec: %v", err)
	}
	perPage := int((PageSize - 8) / testRecSize)
	for i := 0; i < perPage; i++ {
		if _, err := v.Push(encodeU64(uint64(i))); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if _, err := v.Push(encodeU64(999)); err == nil {
		t.Fatalf("expected capacity error once pages are exhausted")
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	a := NewAlloc(2)
	v, err := NewVec(a, 3, testRecSize)
	if err != nil {
		t.Fatalf("NewVec: %v", err)
	}
	h, err := v.Push(encodeU64(42))
	if err != nil {
		t.Fatalf("push: %v", err)
	}

	blob, err := a.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	b := &Alloc{}
	if err := b.UnmarshalBinary(blob); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	v2 := OpenVec(b, 3)
	rec, err := v2.Get(h)
	if err != nil {
		t.Fatalf("get after round-trip: %v", err)
	}
	if got := le64(rec[0:8]); got != 42 {
		t.Fatalf("got %d want 42 after round-trip", got)
	}
	if b.AllocItems(3) != 1 {
		t.Fatalf("alloc_items mismatch after round-trip: %d", b.AllocItems(3))
	}
}
