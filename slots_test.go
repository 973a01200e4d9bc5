package teximage

import "testing"

func TestSlotTableAllocateAppends(t *testing.T) {
	st := newSlotTable(4)
	h1, err := st.allocate(PixelF32x4, &ImageRecord{DebugName: "a"})
	if err != nil {
		t.Fatalf("allocate 1: %v", err)
	}
	h2, err := st.allocate(PixelF32x4, &ImageRecord{DebugName: "b"})
	if err != nil {
		t.Fatalf("allocate 2: %v", err)
	}
	if h1 == h2 {
		t.Fatalf("expected distinct handles, got %v twice", h1)
	}
	kind1, slot1 := DecodeHandle(h1)
	kind2, slot2 := DecodeHandle(h2)
	if kind1 != PixelF32x4 || kind2 != PixelF32x4 {
		t.Fatalf("expected kind PixelF32x4 for both, got %v %v", kind1, kind2)
	}
	if slot1 != 0 || slot2 != 1 {
		t.Fatalf("expected slots 0,1 got %d,%d", slot1, slot2)
	}
}

func TestSlotTableReusesFreedSlot(t *testing.T) {
	st := newSlotTable(4)
	h1, _ := st.allocate(PixelU8, &ImageRecord{DebugName: "a"})
	st.free(h1)
	h2, err := st.allocate(PixelU8, &ImageRecord{DebugName: "b"})
	if err != nil {
		t.Fatalf("allocate after free: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("expected freed slot reused: h1=%v h2=%v", h1, h2)
	}
	if r := st.lookup(h2); r == nil || r.DebugName != "b" {
		t.Fatalf("expected reused slot to hold new record, got %+v", r)
	}
}

func TestSlotTableCapExceeded(t *testing.T) {
	st := newSlotTable(2)
	if _, err := st.allocate(PixelU8, &ImageRecord{}); err != nil {
		t.Fatalf("allocate 1: %v", err)
	}
	if _, err := st.allocate(PixelU8, &ImageRecord{}); err != nil {
		t.Fatalf("allocate 2: %v", err)
	}
	if _, err := st.allocate(PixelU8, &ImageRecord{}); err == nil {
		t.Fatal("expected ErrCapExceeded, got nil")
	} else if err != ErrCapExceeded {
		t.Fatalf("expected ErrCapExceeded, got %v", err)
	}
}

func TestSlotTableCapIsGlobalAcrossKinds(t *testing.T) {
	st := newSlotTable(1)
	if _, err := st.allocate(PixelU8, &ImageRecord{}); err != nil {
		t.Fatalf("allocate U8: %v", err)
	}
	if _, err := st.allocate(PixelF32, &ImageRecord{}); err != ErrCapExceeded {
		t.Fatalf("expected the cap to sum across kinds, got %v", err)
	}
}

func TestSlotTableLookupInvalid(t *testing.T) {
	st := newSlotTable(4)
	if r := st.lookup(InvalidHandle); r != nil {
		t.Fatalf("expected nil for invalid handle, got %+v", r)
	}
	h := EncodeHandle(PixelU8, 9)
	if r := st.lookup(h); r != nil {
		t.Fatalf("expected nil for out-of-range slot, got %+v", r)
	}
}

func TestSlotTableFindByIdentity(t *testing.T) {
	st := newSlotTable(4)
	id := ImageIdentity{Path: "foo.png"}
	want, _ := st.allocate(PixelU8x4, &ImageRecord{Identity: id})
	got, rec := st.find(id)
	if got != want {
		t.Fatalf("find returned handle %v, want %v", got, want)
	}
	if rec == nil || !rec.Identity.Equal(id) {
		t.Fatalf("find returned wrong record: %+v", rec)
	}
}

func TestSlotTableFindMiss(t *testing.T) {
	st := newSlotTable(4)
	st.allocate(PixelU8x4, &ImageRecord{Identity: ImageIdentity{Path: "a.png"}})
	h, rec := st.find(ImageIdentity{Path: "b.png"})
	if h != InvalidHandle || rec != nil {
		t.Fatalf("expected miss, got handle=%v rec=%+v", h, rec)
	}
}

func TestSlotTableTotalRecords(t *testing.T) {
	st := newSlotTable(4)
	if st.totalRecords() != 0 {
		t.Fatalf("expected 0 records initially, got %d", st.totalRecords())
	}
	h1, _ := st.allocate(PixelU8, &ImageRecord{})
	st.allocate(PixelF32, &ImageRecord{})
	if st.totalRecords() != 2 {
		t.Fatalf("expected 2 records, got %d", st.totalRecords())
	}
	st.free(h1)
	if st.totalRecords() != 1 {
		t.Fatalf("expected 1 record after free, got %d", st.totalRecords())
	}
}

func TestSlotTableForEachStopsEarly(t *testing.T) {
	st := newSlotTable(4)
	st.allocate(PixelU8, &ImageRecord{DebugName: "a"})
	st.allocate(PixelU8, &ImageRecord{DebugName: "b"})
	count := 0
	st.forEach(func(h Handle, r *ImageRecord) bool {
		count++
		return false
	})
	if count != 1 {
		t.Fatalf("expected forEach to stop after 1 call, got %d", count)
	}
}
