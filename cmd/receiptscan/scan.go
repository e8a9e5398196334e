package main

import (
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"receipt-geometry/internal/config"
	"receipt-geometry/internal/detect"
	scanimage "receipt-geometry/internal/image"
	"receipt-geometry/internal/logging"
	"receipt-geometry/internal/scan"
	"receipt-geometry/pkg/colorutil"
	"receipt-geometry/pkg/geometry"
)

// detectLine is one line of detect-mode output.
type detectLine struct {
	File     string                  `json:"file"`
	Detected bool                    `json:"detected"`
	Corners  geometry.NormalizedQuad `json:"corners"`
}

type scanner struct {
	opts    options
	engine  *scan.Engine
	corners geometry.NormalizedQuad
	log     *logrus.Entry
	stdout  io.Writer
	stderr  io.Writer
	listDir func(dir string) ([]string, error)
}

func newScanner(opts options, stdout, stderr io.Writer) (*scanner, error) {
	switch opts.mode {
	case modeAuto, modeDetect, modeFlatten:
	default:
		return nil, fmt.Errorf("unknown mode %q", opts.mode)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.detector != "" {
		cfg.Scan.Finder = opts.detector
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return nil, err
	}
	engine, err := scan.New(cfg.Scan, logging.Component(logger, "scan"))
	if err != nil {
		return nil, err
	}

	s := &scanner{
		opts:    opts,
		engine:  engine,
		log:     logging.Component(logger, "receiptscan"),
		stdout:  stdout,
		stderr:  stderr,
		listDir: expandDirectory,
	}
	if opts.mode == modeFlatten {
		if opts.corners == "" {
			return nil, fmt.Errorf("flatten mode needs -corners")
		}
		if s.corners, err = geometry.ParseNormalizedQuad([]byte(opts.corners)); err != nil {
			return nil, fmt.Errorf("bad -corners: %w", err)
		}
	}
	return s, nil
}

// processAll handles every input and returns the exit code: 0 when all
// files went through, 1 when any failed.
func (s *scanner) processAll(paths []string) int {
	var inputs []string
	failed := 0
	for _, p := range paths {
		if isDir(p) {
			files, err := s.listDir(p)
			if err != nil {
				failed++
				fmt.Fprintf(s.stderr, "ERROR: Failed to list directory '%s': %v\n", p, err)
				continue
			}
			inputs = append(inputs, files...)
			continue
		}
		inputs = append(inputs, p)
	}

	total := len(inputs)
	for idx, path := range inputs {
		if err := s.processSafe(path); err != nil {
			failed++
			fmt.Fprintf(s.stderr, "[%d/%d] WARNING: Skipping '%s': %v\n", idx+1, total, path, err)
		}
	}
	s.log.WithFields(logrus.Fields{"files": total, "failed": failed}).Debug("done")
	if failed > 0 {
		return 1
	}
	return 0
}

func (s *scanner) processSafe(path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.process(path)
}

func (s *scanner) process(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if s.opts.debugDir != "" {
		s.writeDebug(path, data)
	}

	switch s.opts.mode {
	case modeDetect:
		q, err := s.engine.DetectFile(data)
		line := detectLine{File: path, Detected: err == nil, Corners: q}
		if err != nil {
			if !scan.IsSoft(err) {
				return err
			}
			line.Corners = geometry.DefaultNormalizedQuad()
		}
		return json.NewEncoder(s.stdout).Encode(line)

	case modeFlatten:
		f, err := s.engine.FlattenFile(filepath.Base(path), data, s.corners)
		if err != nil {
			return err
		}
		return s.write(path, f)

	default:
		f, ok := s.engine.AutoCropFile(filepath.Base(path), data)
		if !ok {
			fmt.Fprintf(s.stdout, "%s: no receipt found, left unchanged\n", path)
			return nil
		}
		return s.write(path, f)
	}
}

func (s *scanner) write(input string, f *scan.File) error {
	dir := s.opts.outputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	out := filepath.Join(dir, f.Name)
	if s.opts.dryRun {
		fmt.Fprintf(s.stdout, "%s -> %s (%dx%d, dry run)\n", input, out, f.Width, f.Height)
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := os.WriteFile(out, f.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Fprintf(s.stdout, "%s -> %s (%dx%d)\n", input, out, f.Width, f.Height)
	return nil
}

// writeDebug saves the paper mask and, when a receipt is found, the work
// image with the detected quad drawn on it. Failures are only logged.
func (s *scanner) writeDebug(path string, data []byte) {
	img, _, err := scanimage.Decode(data)
	if err != nil {
		return
	}
	prefix := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	opts := s.engine.Options()

	work, det, err := s.engine.DetectWork(img)
	if work == nil {
		return
	}
	if analysis, _, _, derr := work.Downscale(opts.Detect.AnalysisMaxSide); derr == nil {
		a := detect.NewPaperFinder(opts.Detect, nil).Analyze(analysis.Image)
		s.saveDebug(prefix+"-mask", scanimage.MaskImage(a.Mask.Pix, a.Mask.Width, a.Mask.Height))
	}
	if err != nil {
		s.log.WithError(err).WithField("file", path).Debug("no quad to draw")
		return
	}
	s.saveDebug(prefix+"-quad", scanimage.DrawQuad(work.Image, det.Corners, colorutil.Magenta, 3))
}

func (s *scanner) saveDebug(prefix string, img image.Image) {
	p, err := scanimage.SaveDebug(s.opts.debugDir, prefix, img)
	if err != nil {
		s.log.WithError(err).Warn("debug image not saved")
		return
	}
	s.log.WithField("path", p).Debug("saved debug image")
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// expandDirectory lists the supported images directly inside dir, sorted.
// Earlier "-scan" outputs are skipped.
func expandDirectory(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())), "-scan") {
			continue
		}
		if scanimage.IsSupportedFormat(e.Name()) {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
