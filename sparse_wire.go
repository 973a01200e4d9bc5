package teximage

import "github.com/gogpu/teximage/sparse"

func init() {
	sparseEncodeHook = func(pixels []float32, w, h, d, channels int, isovalue float32, padded bool) (sparseResult, GridKind, error) {
		r := sparse.Encode(pixels, w, h, d, channels, isovalue, padded)
		grid := sparseGridKind(r.Grid)
		allocW, allocH, allocD := sparse.AllocDims(r.Grid, r.ActiveTiles)
		return sparseResult{pixels: r.Pixels, info: r.Offsets, allocW: allocW, allocH: allocH, allocD: allocD}, grid, nil
	}
}

func sparseGridKind(g sparse.GridKind) GridKind {
	switch g {
	case sparse.GridSparse:
		return GridSparse
	case sparse.GridSparsePadded:
		return GridSparsePadded
	default:
		return GridDense
	}
}
