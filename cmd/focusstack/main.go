// Command focusstack fuses a stack of differently-focused exposures of
// the same scene into one all-in-focus image, with optional depth-map
// and 3-D view byproducts.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"focusstack/engine"
)

const version = "focusstack 0.1.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("focusstack", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: focusstack [flags] image1 image2 [image3 ...]\n\n")
		fs.PrintDefaults()
	}

	var cfg engine.Config
	var showVersion bool
	var viewpoint string

	fs.StringVar(&cfg.Output, "output", "", "output image path (':memory:' or empty keeps the result in-process)")
	fs.StringVar(&cfg.Depthmap, "depthmap", "", "depth map output path")
	fs.StringVar(&cfg.ThreeDView, "3dview", "", "3-D view render output path")
	fs.BoolVar(&cfg.SaveSteps, "save-steps", false, "save intermediate per-stage images")
	fs.IntVar(&cfg.JPEGQuality, "jpgquality", 95, "JPEG encode quality (1-100)")
	fs.BoolVar(&cfg.NoCrop, "nocrop", false, "has no effect: the saved result is always cropped to the common valid area")
	fs.IntVar(&cfg.Reference, "reference", -1, "reference image index (-1 selects the middle image)")
	fs.BoolVar(&cfg.GlobalAlign, "global-align", false, "register every image directly against the reference")
	fs.BoolVar(&cfg.FullResolutionAlign, "full-resolution-align", false, "run registration at full resolution instead of a coarse pyramid level")
	fs.BoolVar(&cfg.NoWhiteBalance, "no-whitebalance", false, "disable automatic white balance during alignment")
	fs.BoolVar(&cfg.NoContrast, "no-contrast", false, "disable automatic contrast normalization during alignment")
	fs.BoolVar(&cfg.AlignOnly, "align-only", false, "stop after alignment; the aligned frames are not saved")
	fs.BoolVar(&cfg.AlignKeepSize, "align-keep-size", false, "keep original canvas size when saving aligned frames")
	fs.IntVar(&cfg.Consistency, "consistency", 1, "merge consistency level (0, 1, or 2)")
	fs.Float64Var(&cfg.Denoise, "denoise", 0, "wavelet coefficient denoise threshold")
	fs.Float64Var(&cfg.DepthNoiseLevel, "depthmap-noise", 0, "depth map inpaint accept/reject noise floor")
	fs.Float64Var(&cfg.DepthmapThreshold, "depthmap-threshold", 0, "depth map confidence threshold")
	fs.IntVar(&cfg.DepthSmoothXY, "depthmap-smooth-xy", 0, "depth map spatial smoothing radius")
	fs.Float64Var(&cfg.DepthSmoothZ, "depthmap-smooth-z", 0, "depth map value smoothing strength")
	fs.Float64Var(&cfg.RemoveBG, "remove-bg", 0, "background removal threshold on the depth fit's amplitude")
	fs.IntVar(&cfg.HaloRadius, "halo-radius", 0, "inpaint halo suppression radius")
	fs.StringVar(&viewpoint, "3dviewpoint", "0:0:1:1", "3-D view camera as x:y:z:zscale")
	fs.IntVar(&cfg.Threads, "threads", 0, "worker thread count (0 selects hardware concurrency + 1)")
	fs.IntVar(&cfg.BatchSize, "batchsize", 0, "images merged per rolling-merge batch (0 selects the default)")
	fs.BoolVar(&cfg.NoOpenCL, "no-opencl", false, "disable GPU acceleration")
	waitImages := fs.Int("wait-images", 0, "wait for late-arriving streamed image files; any value above 0 waits with no time limit")
	fs.BoolVar(&cfg.Verbose, "verbose", false, "enable verbose logging")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if showVersion {
		fmt.Println(version)
		return 0
	}

	cfg.WaitImages = time.Duration(*waitImages) * time.Second
	if v, err := parseViewpoint(viewpoint); err == nil {
		cfg.ThreeDViewpoint = v
	} else {
		fmt.Fprintf(os.Stderr, "focusstack: %v\n", err)
		return 1
	}

	paths := fs.Args()
	if len(paths) < 2 {
		fs.Usage()
		return 1
	}

	eng := engine.New(cfg, nil)
	defer eng.Shutdown()

	result, err := eng.Run(paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "focusstack: %v\n", err)
		return 1
	}

	if cfg.AlignOnly {
		fmt.Printf("aligned %d frames\n", len(result.AlignedOut))
	}
	return 0
}

func parseViewpoint(s string) ([4]float64, error) {
	var v [4]float64
	n, err := fmt.Sscanf(s, "%f:%f:%f:%f", &v[0], &v[1], &v[2], &v[3])
	if err != nil || n != 4 {
		return v, fmt.Errorf("invalid -3dviewpoint %q, want x:y:z:zscale", s)
	}
	return v, nil
}
