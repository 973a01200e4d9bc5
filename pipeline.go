package teximage

import (
	"math"
	"sync"
)

// magenta is the 1x1 placeholder substituted for any record whose
// pixel pipeline fails after it has committed to a working buffer
// (spec §4.E): R=1,G=0,B=1,A=1, an obviously-wrong color the shaders
// will never mistake for real data.
var magenta = [4]float32{1, 0, 1, 1}

// pipelineInputs bundles everything the pixel pipeline needs to
// process one dirty record, beyond the collaborators already resolved
// onto the Manager/Coordinator.
type pipelineInputs struct {
	rec       *ImageRecord
	reader    ImageReader
	colorspace ColorSpace
	device    Device
	deviceInfo DeviceInfo

	// deviceMu, when set, is taken only around the final alloc/copy step
	// (spec §5: decoding and transforms run unserialized on local
	// buffers; only device allocation, memcpy, and copy_to_device are
	// globally serialized under the Coordinator's single device mutex).
	deviceMu *sync.Mutex

	// onDecodeError, when set, is called with the underlying failure
	// just before a magenta placeholder masks it from the record's
	// caller (spec's open question on surfacing DecodeFailed via a
	// diagnostics channel; see ManagerOptions.OnDecodeError).
	onDecodeError func(error)
}

func (in pipelineInputs) reportDecodeError(err error) {
	if in.onDecodeError != nil {
		in.onDecodeError(err)
	}
}

func (in pipelineInputs) lockDevice() {
	if in.deviceMu != nil {
		in.deviceMu.Lock()
	}
}

func (in pipelineInputs) unlockDevice() {
	if in.deviceMu != nil {
		in.deviceMu.Unlock()
	}
}

// runPixelPipeline executes spec §4.E's ten steps for one dirty,
// non-builtin, non-external-volume record, returning the finished
// DeviceBuffer or installing a magenta placeholder on failure.
func runPixelPipeline(in pipelineInputs) (*DeviceBuffer, error) {
	rec := in.rec
	meta := rec.Metadata

	channels := meta.Channels
	if channels < 1 || channels > 4 {
		in.reportDecodeError(ErrDecodeFailed)
		return placeholderBuffer(in)
	}

	associateAlpha := rec.Identity.Alpha.wantsAssociatedAlpha()

	w, h, d := meta.Width, meta.Height, meta.Depth
	if d < 1 {
		d = 1
	}
	targetChannels := channels
	if targetChannels == 2 || targetChannels == 3 {
		targetChannels = 4
	}

	staging := in.deviceInfo.TextureLimit > 0 && meta.MaxDim() > in.deviceInfo.TextureLimit

	buf := make([]float32, w*h*d*targetChannels)

	if err := readPixels(in.reader, rec.Identity.Path, meta.Kind, associateAlpha, buf, channels, targetChannels, w, h, d); err != nil {
		in.reportDecodeError(err)
		return placeholderBuffer(in)
	}

	if targetChannels == 4 && channels != 4 {
		expandToRGBA(buf, channels, w*h*d)
	}

	if rec.Identity.Alpha == AlphaIgnore && targetChannels == 4 {
		overrideAlpha(buf, w*h*d)
	}

	if in.colorspace != nil && meta.Colorspace != "" && !isRawOrSRGB(meta.Colorspace) {
		if err := in.colorspace.ToSceneLinear(meta.Colorspace, buf, w, h, d, targetChannels, meta.CompressAsSRGB); err != nil {
			in.reportDecodeError(err)
			return placeholderBuffer(in)
		}
	}

	if meta.IsFloat {
		finiteGuard(buf, targetChannels)
	}

	outW, outH, outD := w, h, d
	if staging {
		scale := downscaleFactor(meta.MaxDim(), in.deviceInfo.TextureLimit)
		buf, outW, outH, outD = downscale(buf, w, h, d, targetChannels, scale)
	}

	if rec.IsVolume && meta.Depth > 1 {
		encoded, grid, err := encodeSparseIfVolume(in, buf, outW, outH, outD, targetChannels)
		if err == nil && grid != GridDense {
			if dbuf, err := finalizeDeviceBuffer(in, encoded.pixels, encoded.allocW, encoded.allocH, encoded.allocD, w, h, d, grid, encoded.info); err == nil {
				return dbuf, nil
			} else {
				in.reportDecodeError(err)
				return placeholderBuffer(in)
			}
		}
	}

	dbuf, err := finalizeDeviceBuffer(in, buf, outW, outH, outD, w, h, d, GridDense, nil)
	if err != nil {
		in.reportDecodeError(err)
		return placeholderBuffer(in)
	}
	return dbuf, nil
}

type sparseResult struct {
	pixels []float32
	info   []int32

	// allocW/allocH/allocD are the actual voxel dimensions the compacted
	// pixels stream occupies (tile count * tile edge along depth), not
	// the pre-encode dense dimensions — the device allocation for a
	// Sparse/SparsePadded grid must match the data it's about to receive,
	// not the volume it was compacted from.
	allocW, allocH, allocD int
}

// sparseEncodeHook is the single seam through which the pipeline calls
// the sparse package's tile encoder; sparse_wire.go sets it in init()
// to wrap sparse.Encode and sparse.AllocDims. While it is nil,
// encodeSparseIfVolume reports GridDense.
var sparseEncodeHook func(pixels []float32, w, h, d, channels int, isovalue float32, padded bool) (sparseResult, GridKind, error)

func encodeSparseIfVolume(in pipelineInputs, buf []float32, w, h, d, channels int) (sparseResult, GridKind, error) {
	if sparseEncodeHook == nil {
		return sparseResult{}, GridDense, nil
	}
	return sparseEncodeHook(buf, w, h, d, channels, in.rec.Isovalue, in.deviceInfo.SupportsPaddedTiles)
}

func isRawOrSRGB(name string) bool {
	switch name {
	case "raw", "", "sRGB", "srgb":
		return true
	default:
		return false
	}
}

// readPixels decodes into a temporary strided-by-components buffer
// when the source has more components than the pipeline keeps, then
// scatters the first dstStride of them into dst; otherwise it reads straight
// into dst. 2D sources are requested scanline-reversed by the reader;
// volumes read straight-through — that distinction is the ImageReader
// implementation's responsibility, not the pipeline's.
func readPixels(reader ImageReader, path string, kind PixelKind, associateAlpha bool, dst []float32, srcChannels, dstStride, w, h, d int) error {
	if reader == nil {
		return ErrDecoderUnavailable
	}
	if srcChannels <= dstStride {
		return reader.ReadImage(path, kind, associateAlpha, dst[:w*h*d*srcChannels])
	}
	tmp := make([]float32, w*h*d*srcChannels)
	if err := reader.ReadImage(path, kind, associateAlpha, tmp); err != nil {
		return err
	}
	n := w * h * d
	for i := 0; i < n; i++ {
		copy(dst[i*dstStride:i*dstStride+dstStride], tmp[i*srcChannels:i*srcChannels+dstStride])
	}
	return nil
}

// expandToRGBA widens buf in place from srcChannels-per-pixel to
// 4-per-pixel, iterating back-to-front so the in-place expansion never
// overwrites a source pixel before it is read (spec §4.E step 4).
func expandToRGBA(buf []float32, srcChannels, numPixels int) {
	for i := numPixels - 1; i >= 0; i-- {
		srcOff := i * srcChannels
		dstOff := i * 4
		switch srcChannels {
		case 1:
			l := buf[srcOff]
			buf[dstOff+0] = l
			buf[dstOff+1] = l
			buf[dstOff+2] = l
			buf[dstOff+3] = 1
		case 2:
			l, a := buf[srcOff], buf[srcOff+1]
			buf[dstOff+0] = l
			buf[dstOff+1] = l
			buf[dstOff+2] = l
			buf[dstOff+3] = a
		case 3:
			r, g, b := buf[srcOff], buf[srcOff+1], buf[srcOff+2]
			buf[dstOff+0] = r
			buf[dstOff+1] = g
			buf[dstOff+2] = b
			buf[dstOff+3] = 1
		}
	}
}

// expandCMYK converts a 4-component CMYK scanline, already resident in
// buf, into RGBA in place (spec §4.E step 4's CMYK branch).
// runPixelPipeline does not call it, and only tests do; the default
// imageio reader converts CMYK JPEGs to RGB itself.
func expandCMYK(buf []float32, numPixels int) {
	for i := 0; i < numPixels; i++ {
		off := i * 4
		c, m, y, k := buf[off+0], buf[off+1], buf[off+2], buf[off+3]
		buf[off+0] = (1 - c) * (1 - k)
		buf[off+1] = (1 - m) * (1 - k)
		buf[off+2] = (1 - y) * (1 - k)
		buf[off+3] = 1
	}
}

func overrideAlpha(buf []float32, numPixels int) {
	for i := 0; i < numPixels; i++ {
		buf[i*4+3] = 1
	}
}

// finiteGuard zeros all channels of any pixel containing a non-finite
// value (spec §4.E step 7), preventing hue artifacts from a single
// runaway channel.
func finiteGuard(buf []float32, channels int) {
	n := len(buf) / channels
	for i := 0; i < n; i++ {
		off := i * channels
		bad := false
		for c := 0; c < channels; c++ {
			v := buf[off+c]
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				bad = true
				break
			}
		}
		if bad {
			for c := 0; c < channels; c++ {
				buf[off+c] = 0
			}
		}
	}
}

// downscaleFactor picks the smallest k such that maxDim * 0.5^k <= limit.
func downscaleFactor(maxDim, limit int) float64 {
	scale := 1.0
	for float64(maxDim)*scale > float64(limit) {
		scale *= 0.5
	}
	return scale
}

// downscale box-filters buf (w*h*d*channels) down by scale,
// mirroring the teacher's mipmap box-filter averaging, generalized to
// volumes by averaging over the z-neighborhood too.
func downscale(buf []float32, w, h, d, channels int, scale float64) ([]float32, int, int, int) {
	nw := maxInt(1, int(float64(w)*scale+0.5))
	nh := maxInt(1, int(float64(h)*scale+0.5))
	nd := maxInt(1, int(float64(d)*scale+0.5))
	if nw == w && nh == h && nd == d {
		return buf, w, h, d
	}

	out := make([]float32, nw*nh*nd*channels)
	for z := 0; z < nd; z++ {
		sz0, sz1 := sampleRange(z, nd, d)
		for y := 0; y < nh; y++ {
			sy0, sy1 := sampleRange(y, nh, h)
			for x := 0; x < nw; x++ {
				sx0, sx1 := sampleRange(x, nw, w)
				for c := 0; c < channels; c++ {
					sum := float32(0)
					count := 0
					for sz := sz0; sz < sz1; sz++ {
						for sy := sy0; sy < sy1; sy++ {
							for sx := sx0; sx < sx1; sx++ {
								idx := ((sz*h+sy)*w+sx)*channels + c
								sum += buf[idx]
								count++
							}
						}
					}
					out[((z*nh+y)*nw+x)*channels+c] = sum / float32(maxInt(1, count))
				}
			}
		}
	}
	return out, nw, nh, nd
}

func sampleRange(dst, dstN, srcN int) (int, int) {
	lo := dst * srcN / dstN
	hi := (dst + 1) * srcN / dstN
	if hi <= lo {
		hi = lo + 1
	}
	if hi > srcN {
		hi = srcN
	}
	return lo, hi
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// finalizeDeviceBuffer implements step 10: allocate the actual output
// buffer, upload the working buffer's bytes, tag the pre-sparse dense
// dimensions, and return it; the caller attaches it to the record.
func finalizeDeviceBuffer(in pipelineInputs, buf []float32, outW, outH, outD, denseW, denseH, denseD int, grid GridKind, infoTable []int32) (*DeviceBuffer, error) {
	kind := in.rec.Metadata.Kind
	if in.device == nil {
		return nil, ErrAllocFailed
	}
	payload := encodeFloats(kind, buf)

	var infoBytes []byte
	if infoTable != nil {
		infoBytes = make([]byte, len(infoTable)*4)
		for i, v := range infoTable {
			u := uint32(v)
			infoBytes[i*4+0] = byte(u)
			infoBytes[i*4+1] = byte(u >> 8)
			infoBytes[i*4+2] = byte(u >> 16)
			infoBytes[i*4+3] = byte(u >> 24)
		}
	}

	in.lockDevice()
	defer in.unlockDevice()

	mem, err := in.device.Alloc(in.rec.DebugName, kind, [3]int{outW, outH, outD})
	if err != nil {
		return nil, ErrAllocFailed
	}
	if err := in.device.CopyToDevice(mem, payload); err != nil {
		return nil, ErrAllocFailed
	}

	dbuf := &DeviceBuffer{
		Main:       mem,
		Grid:       grid,
		DenseWidth: denseW, DenseHeight: denseH, DenseDepth: denseD,
	}
	if infoBytes != nil {
		infoMem, err := in.device.Alloc(in.rec.DebugName+"_info", PixelU8, [3]int{len(infoBytes), 1, 1})
		if err == nil {
			if err := in.device.CopyToDevice(infoMem, infoBytes); err == nil {
				dbuf.Info = infoMem
			}
		}
	}
	return dbuf, nil
}

// encodeFloats quantizes a float32 working buffer into kind's device
// byte layout, channel by channel, via the Pixel Type Matrix.
func encodeFloats(kind PixelKind, buf []float32) []byte {
	out := make([]byte, 0, len(buf)*kind.ElemBytes())
	for _, v := range buf {
		out = append(out, CastFromFloat(kind, v)...)
	}
	return out
}

// placeholderBuffer installs the 1x1 magenta placeholder and reports
// success to the caller: the record is marked loaded and the handle
// stays valid even though its pixels are wrong (spec §4.E's failure policy).
func placeholderBuffer(in pipelineInputs) (*DeviceBuffer, error) {
	kind := in.rec.Metadata.Kind
	Logger().Warn("pixel pipeline: installing magenta placeholder", "path", in.rec.Identity.Path, "name", in.rec.DebugName)
	if in.device == nil {
		return nil, ErrAllocFailed
	}
	payload := encodeFloats(kind, magenta[:kind.Channels()])

	in.lockDevice()
	defer in.unlockDevice()

	mem, err := in.device.Alloc(in.rec.DebugName, kind, [3]int{1, 1, 1})
	if err != nil {
		return nil, ErrAllocFailed
	}
	if err := in.device.CopyToDevice(mem, payload); err != nil {
		return nil, ErrAllocFailed
	}
	return &DeviceBuffer{Main: mem, Grid: GridDense, DenseWidth: 1, DenseHeight: 1, DenseDepth: 1}, nil
}
