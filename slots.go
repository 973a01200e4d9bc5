package teximage

// slotTable holds, for every PixelKind, a dynamic vector of record
// slots. A nil entry marks a free slot available for in-place reuse;
// allocate never grows a vector past TexNumMax once it is exhausted of
// free slots — spec's Invariant 3 is "the cap is a hard failure, never
// an eviction trigger."
type slotTable struct {
	vectors  [numPixelKinds][]*ImageRecord
	texNumMax int
}

const numPixelKinds = 8

func newSlotTable(texNumMax int) *slotTable {
	return &slotTable{texNumMax: texNumMax}
}

// allocate reuses the first empty slot in kind's vector if one exists,
// otherwise appends a new slot. TexNumMax bounds the sum of live
// records across every PixelKind vector, not any one vector alone
// (spec §4.B: total_records() sums per-type counters against a single
// TEX_NUM_MAX). It returns the resulting handle with rec installed.
func (t *slotTable) allocate(kind PixelKind, rec *ImageRecord) (Handle, error) {
	v := t.vectors[kind]
	for i, r := range v {
		if r == nil {
			v[i] = rec
			return EncodeHandle(kind, i), nil
		}
	}
	if t.totalRecords() >= t.texNumMax {
		return InvalidHandle, ErrCapExceeded
	}
	t.vectors[kind] = append(v, rec)
	return EncodeHandle(kind, len(v)), nil
}

// lookup returns the record at h, or nil if h decodes to an
// out-of-range or freed slot.
func (t *slotTable) lookup(h Handle) *ImageRecord {
	if !h.IsValid() {
		return nil
	}
	kind, slot := DecodeHandle(h)
	if !kind.IsValid() {
		return nil
	}
	v := t.vectors[kind]
	if slot < 0 || slot >= len(v) {
		return nil
	}
	return v[slot]
}

// free clears the slot at h in place, leaving it available for reuse
// by a future allocate call against the same PixelKind.
func (t *slotTable) free(h Handle) {
	if !h.IsValid() {
		return
	}
	kind, slot := DecodeHandle(h)
	v := t.vectors[kind]
	if slot < 0 || slot >= len(v) {
		return
	}
	v[slot] = nil
}

// totalRecords returns the number of live (non-nil) records across all
// PixelKind vectors.
func (t *slotTable) totalRecords() int {
	n := 0
	for _, v := range t.vectors {
		for _, r := range v {
			if r != nil {
				n++
			}
		}
	}
	return n
}

// forEach invokes fn for every live record, along with its handle.
// fn returning false stops iteration early.
func (t *slotTable) forEach(fn func(Handle, *ImageRecord) bool) {
	for kind := PixelKind(0); int(kind) < numPixelKinds; kind++ {
		for slot, r := range t.vectors[kind] {
			if r == nil {
				continue
			}
			if !fn(EncodeHandle(kind, slot), r) {
				return
			}
		}
	}
}

// find scans every vector for a record whose Identity equals id,
// returning its handle and record, or (InvalidHandle, nil) if none match.
func (t *slotTable) find(id ImageIdentity) (Handle, *ImageRecord) {
	var found Handle = InvalidHandle
	var foundRec *ImageRecord
	t.forEach(func(h Handle, r *ImageRecord) bool {
		if r.Identity.Equal(id) {
			found, foundRec = h, r
			return false
		}
		return true
	})
	return found, foundRec
}
