// Package main implements stockmeta-batch, a command that generates stock
// metadata for every image in a directory and writes the CSV export without
// running the HTTP server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/phrazzld/stockmeta/internal/config"
	"github.com/phrazzld/stockmeta/internal/domain"
	"github.com/phrazzld/stockmeta/internal/events"
	"github.com/phrazzld/stockmeta/internal/export"
	"github.com/phrazzld/stockmeta/internal/generation"
	"github.com/phrazzld/stockmeta/internal/platform/backend"
	"github.com/phrazzld/stockmeta/internal/platform/gemini"
	"github.com/phrazzld/stockmeta/internal/platform/logger"
	"github.com/phrazzld/stockmeta/internal/service"
	"github.com/phrazzld/stockmeta/internal/store"
)

// options are the command line flags.
type options struct {
	dir         string
	outDir      string
	context     string
	concurrency int
	artist      string
	exclude     string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "stockmeta-batch: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	l, err := logger.Setup(cfg.Server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stockmeta-batch: failed to set up logger: %v\n", err)
		os.Exit(1)
	}

	gen, err := gemini.NewGeminiGenerator(ctx, l.With("component", "llm_generator"), cfg.LLM)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stockmeta-batch: %v\n", err)
		os.Exit(1)
	}

	if err := run(ctx, opts, cfg, gen, l, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "stockmeta-batch: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("stockmeta-batch", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&opts.dir, "dir", "", "directory containing the images to describe (required)")
	fs.StringVar(&opts.outDir, "out", ".", "directory the CSV export is written to")
	fs.StringVar(&opts.context, "context", "", "context hint applied to every image")
	fs.IntVar(&opts.concurrency, "concurrency", 0, "maximum concurrent requests (0 keeps the saved setting)")
	fs.StringVar(&opts.artist, "artist", "", "artist name used for attribution (empty keeps the saved setting)")
	fs.StringVar(&opts.exclude, "exclude", "", "comma-separated keywords the model must not use (empty keeps the saved setting)")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if opts.dir == "" {
		fmt.Fprintln(output, "-dir is required")
		fs.Usage()
		return options{}, errors.New("missing -dir")
	}
	return opts, nil
}

// run submits every image under opts.dir, processes them as one batch and
// writes the export. It fails only when nothing could be exported.
func run(
	ctx context.Context,
	opts options,
	cfg *config.Config,
	gen generation.Generator,
	l *slog.Logger,
	out io.Writer,
) error {
	out = &lockedWriter{w: out}

	uploads, err := readImages(opts.dir)
	if err != nil {
		return err
	}

	settingsStore, closer, err := backend.OpenSettingsStore(ctx, cfg, l)
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}
	defer func() { _ = closer.Close() }()

	emitter := events.NewInMemoryEventEmitter(l)
	unregister := emitter.RegisterHandler(progressPrinter(out))
	defer unregister()

	previews := store.NewPreviewRegistry()
	jobs := store.NewJobRecordStore(previews, emitter, l)
	svc, err := service.NewBatchService(jobs, previews, settingsStore, gen, emitter,
		service.BatchServiceConfig{JobTimeout: cfg.Batch.JobTimeout}, l)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = svc.Close(closeCtx)
	}()

	if err := applyOverrides(ctx, svc, opts); err != nil {
		return err
	}

	if _, err := svc.SubmitImages(ctx, uploads, opts.context); err != nil {
		return fmt.Errorf("failed to submit images: %w", err)
	}

	summary, err := svc.RunAllEligible(ctx)
	if err != nil {
		return fmt.Errorf("batch failed: %w", err)
	}
	fmt.Fprintf(out, "processed %d images in %s: %d completed, %d failed\n",
		summary.Total, summary.Duration.Round(time.Millisecond), summary.Completed, summary.Failed)

	doc, err := svc.ExportCompleted(ctx)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	path := filepath.Join(opts.outDir, export.FileName(time.Now()))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := export.Write(f, doc); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close export file: %w", err)
	}

	fmt.Fprintf(out, "export written to %s\n", path)
	return nil
}

// applyOverrides saves any settings given on the command line.
func applyOverrides(ctx context.Context, svc *service.BatchService, opts options) error {
	if opts.concurrency == 0 && opts.artist == "" && opts.exclude == "" {
		return nil
	}

	settings, err := svc.Settings(ctx)
	if err != nil {
		return err
	}
	if opts.concurrency != 0 {
		settings.MaxConcurrency = opts.concurrency
	}
	if opts.artist != "" {
		settings.ArtistName = opts.artist
	}
	if opts.exclude != "" {
		settings.NegativeKeywords = opts.exclude
	}

	if _, err := svc.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// readImages loads every regular file in dir whose content sniffs as an
// image, in file name order.
func readImages(dir string) ([]service.ImageUpload, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var uploads []service.ImageUpload
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}
		mimeType := http.DetectContentType(data)
		if !strings.HasPrefix(mimeType, "image/") {
			continue
		}
		uploads = append(uploads, service.ImageUpload{
			Filename: entry.Name(),
			MIMEType: mimeType,
			Data:     data,
		})
	}

	if len(uploads) == 0 {
		return nil, fmt.Errorf("no images found in %s", dir)
	}
	return uploads, nil
}

// progressPrinter reports each finished job on out.
func progressPrinter(out io.Writer) events.EventHandler {
	return events.HandlerFunc(func(ctx context.Context, event *events.Event) error {
		if event.Type != events.TypeJobUpdated {
			return nil
		}
		var payload events.JobPayload
		if err := event.UnmarshalPayload(&payload); err != nil {
			return err
		}
		switch payload.Status {
		case domain.JobStatusCompleted:
			fmt.Fprintf(out, "done    %s\n", payload.Filename)
		case domain.JobStatusError:
			fmt.Fprintf(out, "failed  %s: %s\n", payload.Filename, payload.FailureReason)
		}
		return nil
	})
}

// lockedWriter serializes writes from concurrent event handlers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
