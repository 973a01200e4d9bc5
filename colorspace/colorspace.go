// Package colorspace provides the default ColorSpace collaborator: sRGB
// linearization built on the internal/color transfer functions, plus
// Unicode case-folded name normalization so scene-declared strings like
// "sRGB", "SRGB", or "Raw" all resolve to the same bucket regardless of
// the exporting application's casing convention.
package colorspace

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/gogpu/teximage/internal/color"
)

// caseFolder backs normalize's comparison: scene files come from exporters
// on every OS and locale, so colorspace names arrive in every casing a
// human or a DCC tool's locale settings can produce ("sRGB", "SRGB",
// "srgb", "Non-Color", "NON-COLOR", ...). cases.Fold is the Unicode-aware
// caseless-matching transform x/text recommends for exactly this
// comparison, rather than ASCII-only strings.ToLower.
var caseFolder = cases.Fold()

// Space is the default ColorSpace implementation.
type Space struct {
	// DataChannels names colorspaces that must never be gamma-converted
	// (normal maps, masks, ID passes).
	DataChannels map[string]bool
}

// New returns a Space with the standard data-channel names registered.
func New() *Space {
	return &Space{
		DataChannels: map[string]bool{
			"Non-Color": true,
			"Raw":       true,
			"Data":      true,
		},
	}
}

// DetectKnown normalizes colorspace to one of "raw", "sRGB", or a
// preserved named transform, per spec §4.C step 5's default rules:
// an empty name defaults to sRGB for 8-bit formats and raw for
// float/half formats (HDR file formats are conventionally
// scene-linear already).
func (s *Space) DetectKnown(colorspace, format string, isHDR bool) string {
	norm := normalize(colorspace)
	switch norm {
	case "":
		if isHDR {
			return "raw"
		}
		return "sRGB"
	case "raw", "non-color", "data":
		return "raw"
	case "srgb":
		return "sRGB"
	default:
		return colorspace
	}
}

// IsData reports whether colorspace names a non-color data channel.
func (s *Space) IsData(colorspace string) bool {
	if s.DataChannels[colorspace] {
		return true
	}
	switch normalize(colorspace) {
	case "raw", "non-color", "data":
		return true
	default:
		return false
	}
}

// ToSceneLinear converts buf in place from colorspace into scene-linear
// values. Raw, empty and data colorspaces are left untouched; sRGB is
// converted per channel through the scalar color.SRGBToLinear curve,
// and any other named colorspace runs through the same sRGB curve as a
// best-effort default, since no broader color-management
// engine exists in this module — callers that need a real ACES/OCIO
// pipeline should wrap ToSceneLinear at a higher layer.
func (s *Space) ToSceneLinear(colorspace string, buf []float32, w, h, d, channels int, compressAsSRGB bool) error {
	norm := normalize(colorspace)
	if norm == "raw" || norm == "" {
		return nil
	}
	if s.IsData(colorspace) {
		return nil
	}

	n := w * h * d
	colorChannels := channels
	if colorChannels > 3 {
		colorChannels = 3 // alpha is never gamma-converted
	}
	for i := 0; i < n; i++ {
		base := i * channels
		for c := 0; c < colorChannels; c++ {
			buf[base+c] = color.SRGBToLinear(buf[base+c])
		}
	}
	return nil
}

func normalize(s string) string {
	return caseFolder.String(strings.TrimSpace(s))
}
