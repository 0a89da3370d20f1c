package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/tingold/goavif"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "avifdec: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("avifdec", flag.ContinueOnError)
	fs.SetOutput(stderr)
	workers := fs.Int("workers", getEnvInt("AVIFDEC_WORKERS", runtime.NumCPU()), "tiles decoded concurrently")
	precision := fs.String("precision", getEnv("AVIFDEC_PRECISION", "float"), "conversion precision: float, fixed, approx, fast")
	maxPixels := fs.Int64("max-pixels", getEnvInt64("AVIFDEC_MAX_PIXELS", 0), "reject images larger than this many pixels (0 = no limit)")
	infoOnly := fs.Bool("info", false, "print metadata and exit")
	noAlpha := fs.Bool("no-alpha", false, "ignore the alpha channel")
	grain := fs.Bool("grain", false, "apply film grain")
	libPath := fs.String("dav1d", getEnv("GOAVIF_DAV1D_PATH", ""), "path to libdav1d")
	timeout := fs.Duration("timeout", 0, "give up after this long (0 = no limit)")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: avifdec [flags] input.avif|URL [output.png|.tif|.raw|.raw.zst]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if fs.NArg() < 1 || (!*infoOnly && fs.NArg() < 2) {
		fs.Usage()
		return errors.New("missing arguments")
	}
	input := fs.Arg(0)

	f, err := goavif.Open(input, nil)
	if err != nil {
		return err
	}
	defer f.Close()

	if *infoOnly {
		return printInfo(stdout, f.Info())
	}

	output := fs.Arg(1)
	format, err := formatFor(output)
	if err != nil {
		return err
	}
	prec, err := goavif.ParsePrecision(*precision)
	if err != nil {
		return err
	}

	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	dav1dCfg := dav1dConfig(*grain, *libPath, *maxPixels)
	dec := goavif.NewDecoder(
		goavif.WithWorkers(*workers),
		goavif.WithPrecision(prec),
		goavif.WithMaxPixels(*maxPixels),
		goavif.WithIgnoreAlpha(*noAlpha),
		goavif.WithApplyGrain(*grain),
		goavif.WithLogger(logger),
		goavif.WithAV1Decoder(func() (goavif.AV1Decoder, error) {
			return goavif.NewDav1dDecoder(dav1dCfg)
		}),
	)

	start := time.Now()
	img, err := f.Decode(ctx, dec)
	if err != nil {
		return err
	}
	logger.Debug("decoded", "input", input, "layout", img.Layout, "size", img.Bounds(), "elapsed", time.Since(start))

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := writeImage(out, img, format); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	logger.Info("wrote image", "output", output, "format", format, "layout", img.Layout, "size", img.Bounds())
	return nil
}

// dav1dConfig mirrors the library's default factory, with the frame size
// limit taken from -max-pixels so dav1d refuses oversized frames itself.
func dav1dConfig(grain bool, libPath string, maxPixels int64) goavif.Dav1dConfig {
	cfg := goavif.Dav1dConfig{Threads: 1, ApplyGrain: grain, LibraryPath: libPath}
	if maxPixels > 0 && maxPixels <= math.MaxUint32 {
		cfg.FrameSizeLimit = uint32(maxPixels)
	}
	return cfg
}

type infoLine struct {
	key string
	val interface{}
}

func printInfo(w io.Writer, info *goavif.Info) error {
	lines := []infoLine{
		{"brand", info.MajorBrand},
		{"primary item", info.PrimaryItem},
		{"size", fmt.Sprintf("%dx%d", info.Width, info.Height)},
		{"bit depth", info.BitDepth},
		{"subsampling", info.Subsampling},
		{"cicp", fmt.Sprintf("%d/%d/%d (%s)", info.ColorPrimaries, info.TransferCharacteristics, info.MatrixCoefficients, info.ColorSource)},
		{"range", info.Range},
		{"icc profile", fmt.Sprintf("%d bytes", len(info.ICCProfile))},
		{"alpha", info.HasAlpha},
		{"premultiplied", info.PremultipliedAlpha},
		{"rotation", info.Rotation},
		{"mirror axis", info.MirrorAxis},
		{"exif", info.HasExif},
		{"xmp", info.HasXMP},
		{"gain map", info.HasGainMap},
	}
	if info.Grid != nil {
		lines = append(lines, infoLine{"grid", fmt.Sprintf("%dx%d tiles, output %dx%d", info.Grid.Columns, info.Grid.Rows, info.Grid.OutputWidth, info.Grid.OutputHeight)})
	}
	if info.CleanAperture != nil {
		if r, err := info.CleanAperture.Rect(info.Width, info.Height); err == nil {
			lines = append(lines, infoLine{"clean aperture", r.String()})
		} else {
			lines = append(lines, infoLine{"clean aperture", err.Error()})
		}
	}
	if info.ContentLight != nil {
		lines = append(lines, infoLine{"content light", fmt.Sprintf("MaxCLL %d, MaxPALL %d", info.ContentLight.MaxCLL, info.ContentLight.MaxPALL)})
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%-15s %v\n", l.key+":", l.val); err != nil {
			return err
		}
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if x, err := strconv.Atoi(v); err == nil {
			return x
		}
	}
	return def
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if x, err := strconv.ParseInt(v, 10, 64); err == nil {
			return x
		}
	}
	return def
}
