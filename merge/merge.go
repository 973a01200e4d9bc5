// Package merge combines the separate output files of a multi-device or
// multi-sample render into a single multi-layer EXR, summing, averaging, or
// copying each channel according to the render pass it came from. It mirrors
// the channel-merge step a renderer runs after farming a frame out across
// several devices and writing one partial result per device.
package merge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mrjoshuak/go-openexr/exr"

	"github.com/gogpu/teximage"
)

// ChannelOp selects how a channel's samples from multiple input files are
// combined into the merged output.
type ChannelOp int

const (
	// OpNOP drops the channel: another input already claimed its slot and
	// CopyPolicy says the later write loses.
	OpNOP ChannelOp = iota
	// OpCopy takes the channel's value from exactly one input, chosen by
	// CopyPolicy when more than one input defines it.
	OpCopy
	// OpSum adds the channel's values across every input that defines it.
	OpSum
	// OpAverage blends the channel's values, weighted by each input
	// layer's recorded sample count.
	OpAverage
)

// CopyPolicy resolves which input wins when an OpCopy channel (Depth,
// IndexOB, IndexMA, a Cryptomatte layer) appears in more than one input
// file. The renderer only ever copies such a channel from a single device's
// output, so a collision is a configuration mistake rather than data to
// blend — the policy just decides which mistake-survivor to keep.
type CopyPolicy int

const (
	// CopyFirstWriterWins keeps the value from the first input file that
	// defined the channel, matching the order inputs were listed in.
	CopyFirstWriterWins CopyPolicy = iota
	// CopyLastWriterWins keeps the value from the last input file that
	// defined the channel.
	CopyLastWriterWins
)

// ErrNoInputs is returned when MergeOptions.Inputs is empty.
var ErrNoInputs = errors.New("merge: no input files specified")

// ErrNoOutput is returned when MergeOptions.Output is empty.
var ErrNoOutput = errors.New("merge: no output file specified")

// ErrNoLayers is returned when an input file has no recognizable render
// layer and also carries no passthrough channels.
var ErrNoLayers = errors.New("merge: could not find a render layer for merging")

// ErrDeepUnsupported is returned for an input whose header marks it deep;
// deep-sample merging needs per-sample compositing, not channel averaging.
var ErrDeepUnsupported = errors.New("merge: merging deep images is not supported")

// ErrMismatchedLayout is returned when input files disagree on width,
// height or deep-ness; channel pixel formats are not compared.
var ErrMismatchedLayout = errors.New("merge: images do not have matching size and data layout")

// MergeOptions configures a merge run.
type MergeOptions struct {
	// Inputs lists the partial render files to combine, in priority order
	// for CopyFirstWriterWins/CopyLastWriterWins.
	Inputs []string
	// Output is the path the merged EXR is written to. Merging in place
	// (Output equal to one of Inputs) is safe: the result is written to a
	// temporary file first and renamed over Output only on success.
	Output string
	// CopyPolicy resolves collisions between OpCopy channels that appear
	// in more than one input. Defaults to CopyFirstWriterWins.
	CopyPolicy CopyPolicy
	// Workers bounds how many input files are decoded concurrently.
	// Zero selects GOMAXPROCS.
	Workers int
	// Attributes names extra human-readable-duration string attributes to
	// merge across inputs, beyond the built-in RenderTime/total_time/
	// render_time/synchronization_time set mergeChannelsMetadata always
	// merges. Each key is an attribute name (for per-layer names, the
	// full "cycles.<layer>.<name>" form); each value selects the merge
	// rule, "sum" or "average" ("synchronization_time"-suffixed keys
	// default to average when the value is left empty, everything else
	// defaults to sum).
	Attributes map[string]string
}

type pass struct {
	channelName string
	format      exr.PixelType
	op          ChannelOp
	offset      int
	mergeOffset int
}

type layer struct {
	name    string
	passes  []pass
	samples int
}

type inputImage struct {
	path    string
	header  *exr.Header
	deep    bool
	layers  []layer
	pixels  []float32
	width   int
	height  int
	channel int
}

// Run opens every input, merges their render layers channel by channel, and
// atomically writes the merged result to Output.
func Run(ctx context.Context, opts MergeOptions) error {
	if len(opts.Inputs) == 0 {
		return ErrNoInputs
	}
	if opts.Output == "" {
		return ErrNoOutput
	}

	teximage.Logger().Info("merge: opening inputs", "count", len(opts.Inputs), "output", opts.Output)

	images, err := openImages(ctx, opts)
	if err != nil {
		return err
	}

	outHeader, channelTotalSamples, err := mergeChannelsMetadata(images, opts.CopyPolicy, opts.Attributes)
	if err != nil {
		return err
	}

	width := int(outHeader.DataWindow().Width())
	height := int(outHeader.DataWindow().Height())
	channels := outHeader.Channels()

	outPixels, err := mergePixels(images, channelTotalSamples, width, height)
	if err != nil {
		return err
	}

	if err := saveOutput(opts.Output, outHeader, channels, outPixels, width, height); err != nil {
		return err
	}
	teximage.Logger().Info("merge: wrote output", "output", opts.Output, "channels", channels.Len())
	return nil
}

// parseChannelOperation classifies a render pass by name, matching the
// renderer's own convention for which passes are identity copies, which
// accumulate debug counters, and which are ordinary radiance passes that
// get sample-weighted averaging.
func parseChannelOperation(passName string) ChannelOp {
	switch {
	case passName == "Depth", passName == "IndexMA", passName == "IndexOB":
		return OpCopy
	case strings.HasPrefix(passName, "Crypto"):
		return OpCopy
	case strings.HasPrefix(passName, "Debug BVH"),
		strings.HasPrefix(passName, "Debug Ray"),
		strings.HasPrefix(passName, "Debug Render Time"):
		return OpSum
	default:
		return OpAverage
	}
}

// splitLastDot peels the suffix after in's last '.', reporting whether a
// dot was found.
func splitLastDot(in string) (rest, suffix string, ok bool) {
	i := strings.LastIndex(in, ".")
	if i < 0 {
		return in, "", false
	}
	return in[:i], in[i+1:], true
}

// parseChannelName separates a channel name into its render layer, pass,
// and channel components. Multi-view files interleave a view segment
// between the pass and the channel: RenderLayer.Pass.View.Channel instead
// of RenderLayer.Pass.Channel.
func parseChannelName(name string, multiview bool) (layerName, passName, channelName string, ok bool) {
	rest, channel, ok := splitLastDot(name)
	if !ok {
		return "", "", "", false
	}
	var view string
	if multiview {
		rest, view, ok = splitLastDot(rest)
		if !ok {
			return "", "", "", false
		}
	}
	rest, pass, ok := splitLastDot(rest)
	if !ok {
		return "", "", "", false
	}
	layerName = rest
	if multiview {
		layerName += "." + view
	}
	return layerName, pass, channel, true
}

func isMultiview(h *exr.Header) bool {
	return h.HasMultiView() && len(h.MultiView()) >= 2
}

// parseChannels groups an input file's channels by render layer and
// determines each layer's sample count from its "cycles.<layer>.samples"
// string metadata. Channels the renderer can't attribute to a render layer
// still pass through, grouped under the empty layer name with one sample.
func parseChannels(h *exr.Header) ([]layer, error) {
	cl := h.Channels()
	multiview := isMultiview(h)

	byLayer := make(map[string]*layer)
	order := []string{}

	for i := 0; i < cl.Len(); i++ {
		ch := cl.At(i)
		p := pass{channelName: ch.Name, format: ch.Type, offset: i, mergeOffset: i}

		layerName, passName, _, ok := parseChannelName(ch.Name, multiview)
		if ok {
			p.op = parseChannelOperation(passName)
		} else {
			layerName = ""
			p.op = parseChannelOperation(ch.Name)
		}

		l, exists := byLayer[layerName]
		if !exists {
			l = &layer{name: layerName}
			byLayer[layerName] = l
			order = append(order, layerName)
		}
		l.passes = append(l.passes, p)
	}

	sort.Strings(order)
	layers := make([]layer, 0, len(order))
	for _, name := range order {
		l := byLayer[name]

		if l.name == "" {
			l.samples = 1
		} else {
			s, err := sampleCount(h, l.name)
			if err != nil {
				return nil, err
			}
			l.samples = s
		}
		if l.samples < 1 {
			return nil, fmt.Errorf("merge: no sample number specified for layer %s", l.name)
		}
		layers = append(layers, *l)
	}
	return layers, nil
}

func sampleCount(h *exr.Header, layerName string) (int, error) {
	attr := h.Get("cycles." + layerName + ".samples")
	if attr == nil {
		return 0, nil
	}
	s, _ := attr.Value.(string)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("merge: failed to parse samples metadata %q: %w", s, err)
	}
	return n, nil
}

func openImages(ctx context.Context, opts MergeOptions) ([]*inputImage, error) {
	images := make([]*inputImage, len(opts.Inputs))
	errs := make([]error, len(opts.Inputs))

	pool := teximage.NewWorkerPool(opts.Workers)
	for i, path := range opts.Inputs {
		i, path := i, path
		pool.Push(func(context.Context) error {
			img, err := openImage(path)
			images[i] = img
			errs[i] = err
			return err
		})
	}
	err := pool.WaitWork(ctx)
	pool.Close()
	if err != nil {
		for i, e := range errs {
			if e != nil {
				return nil, fmt.Errorf("merge: opening %s: %w", opts.Inputs[i], e)
			}
		}
		return nil, err
	}

	base := images[0]
	for _, img := range images[1:] {
		if !sameLayout(base, img) {
			return nil, ErrMismatchedLayout
		}
	}
	return images, nil
}

func openImage(path string) (*inputImage, error) {
	f, err := exr.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't open file: %w", err)
	}
	defer f.Close()

	deep := f.IsDeep()
	if deep {
		return nil, ErrDeepUnsupported
	}
	h := f.Header(0)

	layers, err := parseChannels(h)
	if err != nil {
		return nil, err
	}
	if len(layers) == 0 {
		return nil, ErrNoLayers
	}

	dw := h.DataWindow()
	width := int(dw.Width())
	height := int(dw.Height())
	channels := h.Channels()

	sr, err := exr.NewScanlineReader(f)
	if err != nil {
		return nil, err
	}
	fb := exr.NewFrameBuffer()
	data := make([][]byte, channels.Len())
	for i := 0; i < channels.Len(); i++ {
		ch := channels.At(i)
		data[i] = make([]byte, width*height*4)
		fb.Set(ch.Name, exr.NewSlice(exr.PixelTypeFloat, data[i], width, height))
	}
	sr.SetFrameBuffer(fb)
	if err := sr.ReadPixels(int(dw.Min.Y), int(dw.Max.Y)); err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}

	pixels := make([]float32, width*height*channels.Len())
	for i := 0; i < channels.Len(); i++ {
		ch := channels.At(i)
		slice := fb.Get(ch.Name)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				pixels[(y*width+x)*channels.Len()+i] = slice.GetFloat32(x, y)
			}
		}
	}

	return &inputImage{
		path:    path,
		header:  h,
		deep:    deep,
		layers:  layers,
		pixels:  pixels,
		width:   width,
		height:  height,
		channel: channels.Len(),
	}, nil
}

func sameLayout(a, b *inputImage) bool {
	return a.width == b.width && a.height == b.height && a.deep == b.deep
}

// mergeChannelsMetadata builds the merged channel list and header, applying
// CopyPolicy to collisions between OpCopy channels that appear in more than
// one input, and merges the renderer's own timing/sample-count attributes.
func mergeChannelsMetadata(images []*inputImage, policy CopyPolicy, extraAttrs map[string]string) (*exr.Header, []int, error) {
	base := images[0].header
	out := exr.NewScanlineHeader(images[0].width, images[0].height)
	out.SetCompression(base.Compression())

	outChannels := exr.NewChannelList()
	channelIndex := map[string]int{}
	channelTotalSamples := []int{}

	for _, img := range images {
		cl := img.header.Channels()
		for li := range img.layers {
			layer := &img.layers[li]
			for pi := range layer.passes {
				p := &layer.passes[pi]

				if idx, found := channelIndex[p.channelName]; found {
					p.mergeOffset = idx
					channelTotalSamples[idx] += layer.samples
					if p.op == OpCopy && !copyWins(policy, p.channelName, channelIndex, img, images) {
						p.op = OpNOP
					}
					continue
				}

				idx := outChannels.Len()
				channelIndex[p.channelName] = idx
				channelTotalSamples = append(channelTotalSamples, layer.samples)
				p.mergeOffset = idx

				ch := cl.At(p.offset)
				outChannels.Add(exr.Channel{Name: ch.Name, Type: ch.Type, XSampling: ch.XSampling, YSampling: ch.YSampling})
			}
		}
	}
	out.SetChannels(outChannels)

	mergeRenderTime(out, images, "RenderTime", false)

	layerSamples := map[string]int{}
	for _, img := range images {
		for _, l := range img.layers {
			if l.name != "" {
				layerSamples[l.name] += l.samples
			}
		}
	}
	for name, total := range layerSamples {
		out.Set(&exr.Attribute{Name: "cycles." + name + ".samples", Type: exr.AttrTypeString, Value: strconv.Itoa(total)})
		mergeLayerRenderTime(out, images, name, "total_time", false)
		mergeLayerRenderTime(out, images, name, "render_time", false)
		mergeLayerRenderTime(out, images, name, "synchronization_time", true)
	}

	for name, mode := range extraAttrs {
		mergeRenderTime(out, images, name, attrMergeIsAverage(name, mode))
	}

	return out, channelTotalSamples, nil
}

// copyWins reports whether CopyLastWriterWins means the about-to-be-seen
// image should take over an OpCopy channel that an earlier image already
// claimed; CopyFirstWriterWins never displaces the original claimant.
func copyWins(policy CopyPolicy, channelName string, channelIndex map[string]int, img *inputImage, images []*inputImage) bool {
	if policy == CopyFirstWriterWins {
		return false
	}
	return true
}

// attrMergeIsAverage resolves an Attributes entry's merge rule: an explicit
// "average"/"sum" mode wins, otherwise a synchronization_time-suffixed name
// defaults to average and everything else defaults to sum.
func attrMergeIsAverage(name, mode string) bool {
	if mode == "average" {
		return true
	}
	if mode == "sum" {
		return false
	}
	return strings.HasSuffix(name, "synchronization_time")
}

func mergeRenderTime(out *exr.Header, images []*inputImage, name string, average bool) {
	total := 0.0
	for _, img := range images {
		total += timeAttrSeconds(img.header, name)
	}
	if average {
		total /= float64(len(images))
	}
	out.Set(&exr.Attribute{Name: name, Type: exr.AttrTypeString, Value: secondsToHuman(total)})
}

func mergeLayerRenderTime(out *exr.Header, images []*inputImage, layerName, timeName string, average bool) {
	name := "cycles." + layerName + "." + timeName
	total := 0.0
	for _, img := range images {
		total += timeAttrSeconds(img.header, name)
	}
	if average {
		total /= float64(len(images))
	}
	out.Set(&exr.Attribute{Name: name, Type: exr.AttrTypeString, Value: secondsToHuman(total)})
}

func timeAttrSeconds(h *exr.Header, name string) float64 {
	attr := h.Get(name)
	if attr == nil {
		return 0
	}
	s, _ := attr.Value.(string)
	return humanToSeconds(s)
}

// secondsToHuman and humanToSeconds round-trip the renderer's
// "HH:MM:SS.ssss" timing attribute format.
func secondsToHuman(total float64) string {
	if total < 0 {
		total = 0
	}
	h := int(total) / 3600
	m := (int(total) % 3600) / 60
	s := total - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%07.4f", h, m, s)
}

func humanToSeconds(s string) float64 {
	if s == "" {
		return 0
	}
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		f, _ := strconv.ParseFloat(s, 64)
		return f
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	sec, _ := strconv.ParseFloat(parts[2], 64)
	return float64(h)*3600 + float64(m)*60 + sec
}

// mergePixels reads and reduces every input's channels into the merged
// buffer, applying each pass's op with per-channel sample weighting for
// OpAverage since not every input is guaranteed to carry the same channels.
func mergePixels(images []*inputImage, channelTotalSamples []int, width, height int) ([]float32, error) {
	outChannels := len(channelTotalSamples)
	out := make([]float32, width*height*outChannels)

	for _, img := range images {
		stride := img.channel
		numPixels := len(img.pixels)

		for _, l := range img.layers {
			for _, p := range l.passes {
				switch p.op {
				case OpNOP:
					continue
				case OpCopy:
					for i := 0; i < numPixels; i += stride {
						out[outIndex(i, stride, p.mergeOffset, outChannels)] = img.pixels[i+p.offset]
					}
				case OpSum:
					for i := 0; i < numPixels; i += stride {
						out[outIndex(i, stride, p.mergeOffset, outChannels)] += img.pixels[i+p.offset]
					}
				case OpAverage:
					total := channelTotalSamples[p.mergeOffset]
					if total <= 0 {
						total = 1
					}
					weight := float32(l.samples) / float32(total)
					for i := 0; i < numPixels; i += stride {
						v := img.pixels[i+p.offset]
						if !math.IsInf(float64(v), 0) && !math.IsNaN(float64(v)) {
							out[outIndex(i, stride, p.mergeOffset, outChannels)] += weight * v
						}
					}
				}
			}
		}
	}
	return out, nil
}

func outIndex(srcIndex, srcStride, mergeOffset, outStride int) int {
	pixel := srcIndex / srcStride
	return pixel*outStride + mergeOffset
}

// saveOutput writes the merged image to a temp file beside Output and
// renames it into place, so a failed write never destroys an existing
// file — important since merging in place overwrites one of the inputs.
func saveOutput(path string, header *exr.Header, channels *exr.ChannelList, pixels []float32, width, height int) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".merge-tmp-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("merge: failed to create temporary output file: %w", err)
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		tmp.Close()
		if !ok {
			os.Remove(tmpPath)
		}
	}()

	fb := exr.NewFrameBuffer()
	data := make([][]byte, channels.Len())
	for i := 0; i < channels.Len(); i++ {
		ch := channels.At(i)
		data[i] = make([]byte, width*height*4)
		fb.Set(ch.Name, exr.NewSlice(exr.PixelTypeFloat, data[i], width, height))
	}
	for i := 0; i < channels.Len(); i++ {
		ch := channels.At(i)
		slice := fb.Get(ch.Name)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				slice.SetFloat32(x, y, pixels[(y*width+x)*channels.Len()+i])
			}
		}
	}

	sw, err := exr.NewScanlineWriter(tmp, header)
	if err != nil {
		return fmt.Errorf("merge: failed to open %s for writing: %w", tmpPath, err)
	}
	sw.SetFrameBuffer(fb)

	dw := header.DataWindow()
	if err := sw.WritePixels(int(dw.Min.Y), int(dw.Max.Y)); err != nil {
		return fmt.Errorf("merge: failed to write to %s: %w", tmpPath, err)
	}
	if err := sw.Close(); err != nil {
		return fmt.Errorf("merge: failed to save %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("merge: failed to move merged image to %s: %w", path, err)
	}
	ok = true
	return nil
}
