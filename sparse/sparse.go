// Package sparse implements the tile-based sparse volume encoder used
// by the pixel pipeline for volumetric records: it compacts a dense
// float grid down to its active tiles and builds the tile-offset table
// the rendering kernels use to look them back up.
//
// No third-party sparse-voxel library exists anywhere in the retrieved
// example corpus; this is a small, self-contained tiling algorithm
// specified precisely enough (fixed tile edge, row-major tile
// assignment, one-voxel border replication for the padded variant)
// that reaching for an external dependency would add indirection
// without saving real code.
package sparse

// GridKind mirrors the identically-named type in the root package; it
// is redeclared here to keep this package importable without creating
// a cycle back to the root (root imports sparse, not the reverse).
type GridKind uint8

const (
	GridDense GridKind = iota
	GridSparse
	GridSparsePadded
)

// TileSize is the edge length, in voxels, of one unpadded tile.
const TileSize = 8

// PaddedTileSize is the edge length of a padded tile: the source tile
// plus a one-voxel border on every side.
const PaddedTileSize = TileSize + 2

// Result is the output of Encode: a compacted pixel stream plus the
// tile-offset table mapping tile coordinates to their position in it.
type Result struct {
	Grid   GridKind
	Pixels []float32
	// Offsets holds one entry per tile in row-major tile-coordinate
	// order; -1 marks an inactive tile, otherwise the value is the
	// tile's zero-based position among active tiles.
	Offsets []int32

	Width, Height, Depth int // tile-grid dimensions (not voxel dimensions)

	// ActiveTiles is len(Offsets) minus the inactive ones: the number of
	// TileSize³/PaddedTileSize³ blocks actually present in Pixels. Callers
	// allocating device storage for a Sparse/SparsePadded result need this
	// (and TileSize/PaddedTileSize) instead of the pre-encode dense
	// dimensions, since Pixels is a compacted stream, not a dense grid.
	ActiveTiles int
}

// Encode partitions a dense w×h×d grid of the given channel count into
// TileSize-edge tiles, keeps only tiles with at least one voxel whose
// per-channel max exceeds isovalue, and emits them concatenated in
// assignment order alongside the offset table (spec §4.F).
//
// If padded is true and the caller's device supports per-tile
// sampling, each active tile is emitted as a PaddedTileSize³ block with
// its source tile centered and one-voxel borders replicated from
// neighboring voxels (clamped at the grid edge), laid out as
// (activeCount, PaddedTileSize, PaddedTileSize) so a sampler can issue
// a single 3D fetch per tile.
//
// If encoding does not shrink the data (no active tiles, or the
// overhead of padding exceeds the savings), Encode falls through to
// Dense and returns the input unchanged.
func Encode(dense []float32, w, h, d, channels int, isovalue float32, padded bool) Result {
	tw := ceilDiv(w, TileSize)
	th := ceilDiv(h, TileSize)
	td := ceilDiv(d, TileSize)
	numTiles := tw * th * td

	offsets := make([]int32, numTiles)
	active := make([]int, 0, numTiles)
	for tz := 0; tz < td; tz++ {
		for ty := 0; ty < th; ty++ {
			for tx := 0; tx < tw; tx++ {
				idx := (tz*th+ty)*tw + tx
				if tileActive(dense, w, h, d, channels, tx, ty, tz, isovalue) {
					offsets[idx] = int32(len(active))
					active = append(active, idx)
				} else {
					offsets[idx] = -1
				}
			}
		}
	}

	tileVoxels := TileSize * TileSize * TileSize
	if padded {
		tileVoxels = PaddedTileSize * PaddedTileSize * PaddedTileSize
	}
	if len(active) == 0 || len(active)*tileVoxels >= w*h*d {
		return Result{Grid: GridDense, Pixels: dense, Width: tw, Height: th, Depth: td}
	}

	if padded {
		return Result{
			Grid:        GridSparsePadded,
			Pixels:      packPaddedTiles(dense, w, h, d, channels, tw, th, active),
			Offsets:     offsets,
			Width:       tw, Height: th, Depth: td,
			ActiveTiles: len(active),
		}
	}
	return Result{
		Grid:        GridSparse,
		Pixels:      packTiles(dense, w, h, d, channels, tw, th, active),
		Offsets:     offsets,
		Width:       tw, Height: th, Depth: td,
		ActiveTiles: len(active),
	}
}

func tileActive(dense []float32, w, h, d, channels, tx, ty, tz int, isovalue float32) bool {
	x0, x1 := tx*TileSize, minInt((tx+1)*TileSize, w)
	y0, y1 := ty*TileSize, minInt((ty+1)*TileSize, h)
	z0, z1 := tz*TileSize, minInt((tz+1)*TileSize, d)

	for z := z0; z < z1; z++ {
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				if voxelLuminance(dense, w, h, channels, x, y, z) > isovalue {
					return true
				}
			}
		}
	}
	return false
}

func voxelLuminance(dense []float32, w, h, channels, x, y, z int) float32 {
	base := ((z*h+y)*w + x) * channels
	max := dense[base]
	for c := 1; c < channels; c++ {
		if v := dense[base+c]; v > max {
			max = v
		}
	}
	return max
}

func packTiles(dense []float32, w, h, d, channels, tw, th int, active []int) []float32 {
	out := make([]float32, 0, len(active)*TileSize*TileSize*TileSize*channels)
	for _, tileIdx := range active {
		tz := tileIdx / (tw * th)
		ty := (tileIdx / tw) % th
		tx := tileIdx % tw
		x0, y0, z0 := tx*TileSize, ty*TileSize, tz*TileSize
		for z := z0; z < z0+TileSize; z++ {
			for y := y0; y < y0+TileSize; y++ {
				for x := x0; x < x0+TileSize; x++ {
					if x >= w || y >= h || z >= d {
						// edge tiles are zero-filled to a full TileSize³ block
						out = append(out, make([]float32, channels)...)
						continue
					}
					base := ((z*h+y)*w + x) * channels
					out = append(out, dense[base:base+channels]...)
				}
			}
		}
	}
	return out
}

// packPaddedTiles emits each active tile as a PaddedTileSize³ block
// with the source tile centered and borders clamped to the grid edge
// (one-voxel replication, spec §4.F's padded variant).
func packPaddedTiles(dense []float32, w, h, d, channels, tw, th int, active []int) []float32 {
	out := make([]float32, len(active)*PaddedTileSize*PaddedTileSize*PaddedTileSize*channels)
	for outIdx, tileIdx := range active {
		tz := tileIdx / (tw * th)
		ty := (tileIdx / tw) % th
		tx := tileIdx % tw
		originX := tx*TileSize - 1
		originY := ty*TileSize - 1
		originZ := tz*TileSize - 1

		tileBase := outIdx * PaddedTileSize * PaddedTileSize * PaddedTileSize * channels
		for pz := 0; pz < PaddedTileSize; pz++ {
			sz := clampInt(originZ+pz, 0, d-1)
			for py := 0; py < PaddedTileSize; py++ {
				sy := clampInt(originY+py, 0, h-1)
				for px := 0; px < PaddedTileSize; px++ {
					sx := clampInt(originX+px, 0, w-1)
					srcBase := ((sz*h+sy)*w + sx) * channels
					dstBase := tileBase + ((pz*PaddedTileSize+py)*PaddedTileSize+px)*channels
					copy(out[dstBase:dstBase+channels], dense[srcBase:srcBase+channels])
				}
			}
		}
	}
	return out
}

// AllocDims returns the 3D voxel dimensions a Device should allocate for
// a Sparse/SparsePadded Result: activeTiles blocks of TileSize³ (or
// PaddedTileSize³, for the padded grid) stacked along the depth axis, in
// the same order Pixels emits them. Dense grids have no compacted layout
// to compute — callers keep using the pre-encode dense dimensions for them.
func AllocDims(grid GridKind, activeTiles int) (int, int, int) {
	switch grid {
	case GridSparsePadded:
		return PaddedTileSize, PaddedTileSize, PaddedTileSize * activeTiles
	case GridSparse:
		return TileSize, TileSize, TileSize * activeTiles
	default:
		return 0, 0, 0
	}
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
