// Package imageio provides the default ImageReader collaborator: a
// thin adapter from Go's image decoding ecosystem (stdlib png/jpeg
// plus golang.org/x/image's tiff/bmp/webp decoders) onto the manager's
// generic pixel pipeline contract.
package imageio

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"sync"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"

	"github.com/gogpu/teximage"
)

func init() {
	// image/png and image/jpeg self-register via their own init();
	// the x/image decoders need an explicit RegisterFormat call each.
	image.RegisterFormat("bmp", "BM", bmp.Decode, bmp.DecodeConfig)
	image.RegisterFormat("tiff", "II*\x00", tiff.Decode, tiff.DecodeConfig)
	image.RegisterFormat("tiff-be", "MM\x00*", tiff.Decode, tiff.DecodeConfig)
	image.RegisterFormat("webp", "RIFF????WEBP", webp.Decode, webp.DecodeConfig)
}

// ErrUnsupportedFormat is returned when Open can't determine the pixel
// dimensions of a file none of the registered decoders recognize.
var ErrUnsupportedFormat = errors.New("imageio: unsupported image format")

// Reader is the default ImageReader: it decodes through the standard
// image.Image interface and reports channel counts derived from the
// decoded color model, including CMYK detection for four-component
// JPEGs.
type Reader struct {
	mu    sync.Mutex
	cache map[string]cachedDecode
}

type cachedDecode struct {
	img    image.Image
	format string
}

// New returns a ready-to-use Reader. Decoded images are cached by path
// between Open and ReadImage so a probe followed by a load doesn't pay
// for decoding twice; Close evicts the cache entry.
func New() *Reader {
	return &Reader{cache: make(map[string]cachedDecode)}
}

func (r *Reader) decode(path string) (image.Image, string, error) {
	r.mu.Lock()
	if c, ok := r.cache[path]; ok {
		r.mu.Unlock()
		return c.img, c.format, nil
	}
	r.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	r.mu.Lock()
	r.cache[path] = cachedDecode{img: img, format: format}
	r.mu.Unlock()
	return img, format, nil
}

// Open implements teximage.ImageReader.
func (r *Reader) Open(path string) (teximage.ImageSpec, error) {
	img, format, err := r.decode(path)
	if err != nil {
		return teximage.ImageSpec{}, err
	}
	bounds := img.Bounds()
	channels := channelsOf(img)

	spec := teximage.ImageSpec{
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Depth:    1,
		Channels: channels,
	}
	_ = format
	return spec, nil
}

// FormatName reports the registered decoder name ("png", "jpeg",
// "bmp", "tiff", "webp") used for path. CMYK JPEGs are converted to
// RGB by ReadImage itself; the pixel pipeline does not call FormatName.
func (r *Reader) FormatName(path string) (string, error) {
	_, format, err := r.decode(path)
	return format, err
}

// ReadImage decodes path into dst as normalized [0,1] float32 samples,
// scanline-reversed to a bottom-up origin as spec §4.E step 3 requires
// for 2D inputs, requesting associated (premultiplied) alpha when
// associateAlpha is set.
func (r *Reader) ReadImage(path string, base teximage.PixelKind, associateAlpha bool, dst []float32) error {
	img, _, err := r.decode(path)
	if err != nil {
		return err
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	channels := channelsOf(img)

	for y := 0; y < h; y++ {
		// bottom-up: source row 0 lands at the last output row.
		dstY := h - 1 - y
		for x := 0; x < w; x++ {
			// image.Color.RGBA() always returns alpha-premultiplied
			// values regardless of the source model, so "associated"
			// output needs no further work; "unassociated" divides the
			// premultiplication back out.
			r16, g16, b16, a16 := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			rf := float32(r16) / 65535
			gf := float32(g16) / 65535
			bf := float32(b16) / 65535
			af := float32(a16) / 65535

			if !associateAlpha && af > 0 && af < 1 {
				rf /= af
				gf /= af
				bf /= af
			}

			off := (dstY*w + x) * channels
			switch channels {
			case 1:
				dst[off] = rf
			case 2:
				dst[off], dst[off+1] = rf, af
			case 3:
				dst[off], dst[off+1], dst[off+2] = rf, gf, bf
			default:
				dst[off], dst[off+1], dst[off+2], dst[off+3] = rf, gf, bf, af
			}
		}
	}
	return nil
}

// Close evicts path's cached decode.
func (r *Reader) Close(path string) error {
	r.mu.Lock()
	delete(r.cache, path)
	r.mu.Unlock()
	return nil
}

// channelsOf classifies a decoded image.Image's channel count. CMYK
// decodes as 4 components, but needs no special handling beyond that
// here: image.CMYK.At().RGBA() already performs the spec's (1-C)(1-K)
// conversion internally, so the At()/RGBA() calls in ReadImage produce
// correct output for it without a separate expansion branch.
func channelsOf(img image.Image) int {
	switch img.(type) {
	case *image.CMYK:
		return 4
	case *image.Gray, *image.Gray16:
		return 1
	default:
		if hasAlpha(img) {
			return 4
		}
		return 3
	}
}

func hasAlpha(img image.Image) bool {
	switch m := img.(type) {
	case *image.NRGBA, *image.RGBA, *image.NRGBA64, *image.RGBA64:
		return true
	case *image.Paletted:
		for _, c := range m.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
		return false
	default:
		_, _, _, a := color.RGBAModel.Convert(img.At(img.Bounds().Min.X, img.Bounds().Min.Y)).RGBA()
		return a != 0xffff
	}
}

var _ = jpeg.Options{} // keep image/jpeg's decoder registered via its init
var _ = png.Encode      // keep image/png linked for both decode and (future) encode paths
