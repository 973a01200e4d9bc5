// Command teximage-merge combines the per-device partial render outputs of
// a split-frame render into a single multi-layer EXR.
package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/gogpu/teximage/merge"
)

// attrFlag collects repeated -attr name=mode flags into a map, so the
// command line can opt extra string attributes into mergeChannelsMetadata's
// sum/average duration merge alongside the built-in RenderTime set.
type attrFlag map[string]string

func (a attrFlag) String() string {
	parts := make([]string, 0, len(a))
	for k, v := range a {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (a attrFlag) Set(s string) error {
	name, mode, _ := strings.Cut(s, "=")
	a[name] = mode
	return nil
}

func main() {
	var (
		output     = flag.String("output", "", "merged output EXR path (required)")
		lastWriter = flag.Bool("last-writer-wins", false, "keep the last input's value for colliding copy-only channels instead of the first")
		workers    = flag.Int("workers", 0, "number of input files to decode concurrently (0 selects GOMAXPROCS)")
		attrs      = make(attrFlag)
	)
	flag.Var(attrs, "attr", "extra duration attribute to merge, as name=mode (mode is \"sum\" or \"average\"); repeatable")
	flag.Usage = func() {
		log.Printf("usage: teximage-merge -output merged.exr input1.exr input2.exr ...")
		flag.PrintDefaults()
	}
	flag.Parse()

	inputs := flag.Args()
	if *output == "" || len(inputs) == 0 {
		flag.Usage()
		log.Fatalf("teximage-merge: -output and at least one input file are required")
	}

	policy := merge.CopyFirstWriterWins
	if *lastWriter {
		policy = merge.CopyLastWriterWins
	}

	opts := merge.MergeOptions{
		Inputs:     inputs,
		Output:     *output,
		CopyPolicy: policy,
		Workers:    *workers,
		Attributes: attrs,
	}

	if err := merge.Run(context.Background(), opts); err != nil {
		log.Fatalf("teximage-merge: %v", err)
	}
	log.Printf("merged %s into %s", strings.Join(inputs, ", "), *output)
}
