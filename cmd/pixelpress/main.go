package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/dunamismax/pixelpress/internal/app"
	"github.com/dunamismax/pixelpress/internal/batch"
	"github.com/dunamismax/pixelpress/internal/config"
	"github.com/dunamismax/pixelpress/internal/domain"
	"github.com/dunamismax/pixelpress/internal/export"
	"github.com/dunamismax/pixelpress/internal/logging"
	"github.com/dunamismax/pixelpress/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const serviceName = "pixelpress"

type cliOptions struct {
	preset     string
	savePreset string
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "pixelpress:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] FILE...\n", serviceName)
		flags.PrintDefaults()
	}

	flags.Int("quality", 80, "output quality 1-100 (ignored for png)")
	flags.String("format", domain.FormatJPEG, "output format: jpeg, png or webp")
	flags.Int("max-width", 1920, "output width in pixels; height keeps the aspect ratio")
	flags.Bool("apply-filter", false, "apply the tonal filter")
	flags.String("filter", domain.FilterNone, "tonal filter: none, grayscale, sepia or invert")
	flags.String("resampler", pipeline.ResamplerBiLinear, "scaling kernel: bilinear, catmullrom, approx, nearest or lanczos3")
	flags.String("policy", string(batch.PolicyAllOrNothing), "install policy: all-or-nothing or partial")
	flags.String("out", export.DefaultDir, "output directory")
	flags.String("log-level", "info", "log level")
	flags.String("store", "file", "preset backend: memory, file, redis, postgres or sqlite")

	var opts cliOptions
	flags.StringVar(&opts.preset, "preset", "", "load a saved preset before processing")
	flags.StringVar(&opts.savePreset, "save-preset", "", "save the effective settings as a preset")

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	v := config.New()
	if err := config.ReadFile(v); err != nil {
		return err
	}
	if err := bindFlags(v, flags); err != nil {
		return err
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		return err
	}
	cfg.Export.Target = config.ExportTargetDir

	logger, logCloser, err := logging.New(cfg.Log.Logging(), serviceName)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer pipeline.Shutdown()

	application, err := app.New(ctx, cfg, logger, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	defer application.Close()

	return process(ctx, application, flags, opts, flags.Args(), logger, stdout)
}

var flagKeys = map[string]string{
	"quality":      "engine.quality",
	"format":       "engine.format",
	"max-width":    "engine.max_width",
	"apply-filter": "engine.apply_filter",
	"filter":       "engine.filter",
	"resampler":    "engine.resampler",
	"policy":       "batch.policy",
	"out":          "export.dir",
	"log-level":    "log.level",
	"store":        "presets.backend",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// overrideChanged copies the engine flags given on the command line over p,
// so explicit flags win field by field over a loaded preset.
func overrideChanged(flags *pflag.FlagSet, p domain.Params) (domain.Params, []string, error) {
	var (
		changed []string
		err     error
	)
	if flags.Changed("quality") {
		changed = append(changed, "quality")
		if p.Quality, err = flags.GetInt("quality"); err != nil {
			return p, nil, err
		}
	}
	if flags.Changed("format") {
		changed = append(changed, "format")
		if p.Format, err = flags.GetString("format"); err != nil {
			return p, nil, err
		}
	}
	if flags.Changed("max-width") {
		changed = append(changed, "max-width")
		if p.MaxWidth, err = flags.GetInt("max-width"); err != nil {
			return p, nil, err
		}
	}
	if flags.Changed("apply-filter") {
		changed = append(changed, "apply-filter")
		if p.ApplyFilter, err = flags.GetBool("apply-filter"); err != nil {
			return p, nil, err
		}
	}
	return p, changed, nil
}

func applyPreset(a *app.App, flags *pflag.FlagSet, name string, logger zerolog.Logger) error {
	p, ok := a.Presets.Find(name)
	if !ok {
		return fmt.Errorf("preset %q not found", name)
	}

	next, changed, err := overrideChanged(flags, a.Params.Get().WithPreset(p))
	if err != nil {
		return err
	}
	if err := a.Params.Set(next); err != nil {
		return fmt.Errorf("apply preset %q: %w", p.Name, err)
	}
	if len(changed) > 0 {
		logger.Info().Str("preset", p.Name).Strs("overridden", changed).Msg("flags override preset fields")
	}
	return nil
}

func process(ctx context.Context, a *app.App, flags *pflag.FlagSet, opts cliOptions, files []string, logger zerolog.Logger, stdout io.Writer) error {
	if opts.preset != "" {
		if err := applyPreset(a, flags, opts.preset, logger); err != nil {
			return err
		}
	}

	if opts.savePreset != "" {
		if _, err := a.Presets.Save(ctx, domain.PresetFromParams(opts.savePreset, a.Params.Get())); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved preset %s\n", opts.savePreset)
	}

	if len(files) == 0 {
		if opts.savePreset != "" {
			return nil
		}
		flags.Usage()
		return errors.New("no input files")
	}

	uploads, err := readUploads(files)
	if err != nil {
		return err
	}
	a.Records.Add(uploads)

	report, runErr := a.Batch.RunStored(ctx, a.Params.Get())
	for _, out := range report.Outcomes {
		if out.OK() {
			fmt.Fprintf(stdout, "ok    %s  %d -> %d bytes\n", out.Name, out.Record.OriginalSize, *out.Record.CompressedSize)
			continue
		}
		fmt.Fprintf(stdout, "fail  %s  %v\n", out.Name, out.Err)
	}

	var failure *batch.Failure
	if runErr != nil && !(errors.As(runErr, &failure) && failure.Installed > 0) {
		return runErr
	}

	written, err := export.ExportAll(ctx, a.Exporter, installedRecords(a, report))
	if err != nil {
		return err
	}
	for _, w := range written {
		fmt.Fprintf(stdout, "wrote %s\n", w.Location)
	}
	fmt.Fprintf(stdout, "saved %d bytes across %d images\n", report.Usage.BytesSaved, report.Usage.Succeeded)
	return runErr
}

// installedRecords returns the stored records that carry a transform result.
func installedRecords(a *app.App, report batch.Report) []domain.ImageRecord {
	records := make([]domain.ImageRecord, 0, len(report.Outcomes))
	for _, out := range report.Outcomes {
		if !out.OK() {
			continue
		}
		if rec, ok := a.Records.Get(out.ID); ok {
			records = append(records, rec)
		}
	}
	return records
}

func readUploads(paths []string) ([]domain.Upload, error) {
	uploads := make([]domain.Upload, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		uploads = append(uploads, domain.Upload{
			Name:        filepath.Base(path),
			ContentType: contentType,
			Data:        data,
		})
	}
	return uploads, nil
}
