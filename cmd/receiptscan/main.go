// Command receiptscan finds and flattens receipts in image files.
//
// Usage:
//
//	receiptscan [options] image_or_dir...
//
// In auto mode each receipt is detected and written as NAME-scan.jpg (or
// .png for PNG input). In detect mode the corners are printed as JSON
// lines. In flatten mode the -corners quad is applied to every input.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"receipt-geometry/internal/config"
	"receipt-geometry/internal/detect"
	"receipt-geometry/internal/version"
)

const (
	modeAuto    = "auto"
	modeDetect  = "detect"
	modeFlatten = "flatten"
)

type options struct {
	mode       string
	corners    string
	outputDir  string
	debugDir   string
	configPath string
	detector   string
	logLevel   string
	dryRun     bool
	initConfig string
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("receiptscan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	var showVersion bool
	fs.StringVar(&opts.mode, "mode", modeAuto, "auto, detect or flatten")
	fs.StringVar(&opts.corners, "corners", "", `Corner quad for flatten mode, e.g. '[{"x":0.1,"y":0.1},...]'`)
	fs.StringVar(&opts.outputDir, "output-dir", "", "Output directory (default: next to each input)")
	fs.StringVar(&opts.debugDir, "debug-dir", "", "Write mask and quad overlay images here")
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.StringVar(&opts.detector, "detector", "", "Override the detector: "+detect.FinderPaper+" or "+detect.FinderContour)
	fs.StringVar(&opts.logLevel, "log-level", "", "Override the log level")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Do not write output images")
	fs.StringVar(&opts.initConfig, "init-config", "", "Write the default config to this path and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	if opts.initConfig != "" {
		if err := config.Default().Save(opts.initConfig); err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "wrote %s\n", opts.initConfig)
		return 0
	}

	if fs.NArg() == 0 {
		fmt.Fprintf(stderr, "Usage: receiptscan [options] image_or_dir...\n")
		fs.PrintDefaults()
		return 2
	}

	s, err := newScanner(opts, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 2
	}
	return s.processAll(fs.Args())
}
