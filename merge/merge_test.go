package merge

import "testing"

func TestParseChannelOperationClassifiesKnownPasses(t *testing.T) {
	cases := map[string]ChannelOp{
		"Depth":                  OpCopy,
		"IndexMA":                OpCopy,
		"IndexOB":                OpCopy,
		"CryptoObject00":         OpCopy,
		"Debug BVH Traversed":    OpSum,
		"Debug Ray Bounces":      OpSum,
		"Debug Render Time":      OpSum,
		"Combined":               OpAverage,
		"Denoising Normal":       OpAverage,
	}
	for name, want := range cases {
		if got := parseChannelOperation(name); got != want {
			t.Errorf("parseChannelOperation(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestParseChannelNameSingleView(t *testing.T) {
	layer, pass, channel, ok := parseChannelName("RenderLayer.Combined.R", false)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if layer != "RenderLayer" || pass != "Combined" || channel != "R" {
		t.Fatalf("got (%q, %q, %q)", layer, pass, channel)
	}
}

func TestParseChannelNameMultiview(t *testing.T) {
	layer, pass, channel, ok := parseChannelName("RenderLayer.Combined.left.R", true)
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	if layer != "RenderLayer.left" || pass != "Combined" || channel != "R" {
		t.Fatalf("got (%q, %q, %q)", layer, pass, channel)
	}
}

func TestParseChannelNameNoDotFails(t *testing.T) {
	if _, _, _, ok := parseChannelName("R", false); ok {
		t.Fatal("expected parse to fail for a channel name with no dots")
	}
}

func TestCopyWinsFirstWriter(t *testing.T) {
	if copyWins(CopyFirstWriterWins, "Depth", nil, nil, nil) {
		t.Fatal("CopyFirstWriterWins should never let a later writer take over")
	}
}

func TestCopyWinsLastWriter(t *testing.T) {
	if !copyWins(CopyLastWriterWins, "Depth", nil, nil, nil) {
		t.Fatal("CopyLastWriterWins should let a later writer take over")
	}
}

func TestSecondsToHumanRoundTrips(t *testing.T) {
	s := secondsToHuman(3725.5)
	got := humanToSeconds(s)
	if got < 3725.4 || got > 3725.6 {
		t.Fatalf("round-trip mismatch: %s -> %v", s, got)
	}
}

func TestHumanToSecondsEmptyIsZero(t *testing.T) {
	if got := humanToSeconds(""); got != 0 {
		t.Fatalf("expected 0, got %v", got)
	}
}

func TestAttrMergeIsAverage(t *testing.T) {
	cases := []struct {
		name, mode string
		want       bool
	}{
		{"cycles.RenderLayer.synchronization_time", "", true},
		{"cycles.RenderLayer.total_time", "", false},
		{"custom_attr", "average", true},
		{"cycles.RenderLayer.synchronization_time", "sum", false},
	}
	for _, c := range cases {
		if got := attrMergeIsAverage(c.name, c.mode); got != c.want {
			t.Errorf("attrMergeIsAverage(%q, %q) = %v, want %v", c.name, c.mode, got, c.want)
		}
	}
}

func TestOutIndexMapsPixelAcrossStrides(t *testing.T) {
	// source pixel 2 (base index 2*4=8) of a 4-channel image mapped
	// into merge offset 3 of a 6-channel output.
	got := outIndex(8, 4, 3, 6)
	want := 2*6 + 3
	if got != want {
		t.Fatalf("outIndex = %d, want %d", got, want)
	}
}

func TestMergePixelsAveragesWeightedBySamples(t *testing.T) {
	images := []*inputImage{
		{
			pixels:  []float32{1, 1},
			channel: 1,
			layers:  []layer{{name: "RenderLayer", samples: 1, passes: []pass{{op: OpAverage, offset: 0, mergeOffset: 0}}}},
		},
		{
			pixels:  []float32{3, 3},
			channel: 1,
			layers:  []layer{{name: "RenderLayer", samples: 3, passes: []pass{{op: OpAverage, offset: 0, mergeOffset: 0}}}},
		},
	}
	out, err := mergePixels(images, []int{4}, 2, 1)
	if err != nil {
		t.Fatalf("mergePixels: %v", err)
	}
	// weighted average: (1*1 + 3*3) / 4 = 2.5
	for i, v := range out {
		if v < 2.4 || v > 2.6 {
			t.Fatalf("pixel %d = %v, want ~2.5", i, v)
		}
	}
}

func TestMergePixelsSumsAcrossImages(t *testing.T) {
	images := []*inputImage{
		{pixels: []float32{2}, channel: 1, layers: []layer{{samples: 1, passes: []pass{{op: OpSum, offset: 0, mergeOffset: 0}}}}},
		{pixels: []float32{5}, channel: 1, layers: []layer{{samples: 1, passes: []pass{{op: OpSum, offset: 0, mergeOffset: 0}}}}},
	}
	out, err := mergePixels(images, []int{2}, 1, 1)
	if err != nil {
		t.Fatalf("mergePixels: %v", err)
	}
	if out[0] != 7 {
		t.Fatalf("sum = %v, want 7", out[0])
	}
}

func TestMergePixelsCopySkipsNOP(t *testing.T) {
	images := []*inputImage{
		{pixels: []float32{9}, channel: 1, layers: []layer{{samples: 1, passes: []pass{{op: OpNOP, offset: 0, mergeOffset: 0}}}}},
	}
	out, err := mergePixels(images, []int{1}, 1, 1)
	if err != nil {
		t.Fatalf("mergePixels: %v", err)
	}
	if out[0] != 0 {
		t.Fatalf("expected NOP to leave the merged pixel untouched, got %v", out[0])
	}
}

func TestSameLayoutRejectsMismatchedDimensions(t *testing.T) {
	a := &inputImage{width: 100, height: 100}
	b := &inputImage{width: 100, height: 50}
	if sameLayout(a, b) {
		t.Fatal("expected mismatched heights to fail layout comparison")
	}
}

func TestSameLayoutRejectsDeepMismatch(t *testing.T) {
	a := &inputImage{width: 10, height: 10, deep: false}
	b := &inputImage{width: 10, height: 10, deep: true}
	if sameLayout(a, b) {
		t.Fatal("expected deep-vs-non-deep mismatch to fail layout comparison")
	}
}
