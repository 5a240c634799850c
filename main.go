package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"text/tabwriter"

	"github.com/ytget/plastic-in-river/internal/cache"
	"github.com/ytget/plastic-in-river/internal/config"
	"github.com/ytget/plastic-in-river/internal/dataset"
	"github.com/ytget/plastic-in-river/internal/download"
	"github.com/ytget/plastic-in-river/internal/export"
	"github.com/ytget/plastic-in-river/internal/model"
	"github.com/ytget/plastic-in-river/internal/platform"
	"github.com/ytget/plastic-in-river/internal/stats"
)

// Version is set during build via -ldflags "-X main.version=X.Y.Z"
var version = "dev"

const AppName = "plastic-in-river"

// errUsage is returned after usage has been printed
var errUsage = errors.New("usage")

func usage(w io.Writer, global *flag.FlagSet) {
	fmt.Fprintf(w, "usage of %s:\n", AppName)
	fmt.Fprintln(w, AppName, "[flags] command [command flags]")
	global.SetOutput(w)
	global.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, `commands:`)
	fmt.Fprintln(w, `  urls     print the archive URLs of the configured version`)
	fmt.Fprintln(w, `  info     print the dataset description as JSON`)
	fmt.Fprintln(w, `  fetch    download every archive and print the local paths`)
	fmt.Fprintln(w, `  load     print the records of a split as JSON lines`)
	fmt.Fprintln(w, `  stats    print label and box statistics`)
	fmt.Fprintln(w, `  export   write a split to a directory`)
	fmt.Fprintln(w, `  cache    list or prune the download cache`)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "The config file may also be named by $%s.\n", config.EnvConfigFile)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		log.Fatalf("%s: %v", AppName, err)
	}
}

// options are the global flags; zero values keep the configured settings
type options struct {
	configPath string
	baseURL    string
	version    string
	cacheDir   string
	force      bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opts options
	global := flag.NewFlagSet(AppName, flag.ContinueOnError)
	global.SetOutput(stderr)
	global.StringVar(&opts.configPath, "config", "", "config file (.yaml, .toml or .json)")
	global.StringVar(&opts.baseURL, "base-url", "", "dataset base URL or local mirror directory")
	global.StringVar(&opts.version, "version", "", "dataset release, e.g. 1.1.0")
	global.StringVar(&opts.cacheDir, "cache-dir", "", "directory for downloaded archives")
	global.BoolVar(&opts.force, "force", false, "ignore cached archives")
	showVersion := global.Bool("v", false, "print the program version")
	global.Usage = func() { usage(stderr, global) }

	if err := global.Parse(args); err != nil {
		return errUsage
	}
	if *showVersion {
		fmt.Fprintf(stdout, "%s v%s\n", AppName, version)
		return nil
	}
	if global.NArg() == 0 {
		global.Usage()
		return errUsage
	}

	settings, err := loadSettings(opts)
	if err != nil {
		return err
	}

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "urls":
		return runURLs(settings, stdout)
	case "info":
		return runInfo(settings, stdout)
	case "fetch":
		return withServices(settings, func(s *services) error { return runFetch(ctx, s, stdout) })
	case "load":
		return withServices(settings, func(s *services) error { return runLoad(ctx, s, cmdArgs, stdout, stderr) })
	case "stats":
		return withServices(settings, func(s *services) error { return runStats(ctx, s, cmdArgs, stdout, stderr) })
	case "export":
		return withServices(settings, func(s *services) error { return runExport(ctx, s, cmdArgs, stdout, stderr) })
	case "cache":
		return withServices(settings, func(s *services) error { return runCache(s, cmdArgs, stdout, stderr) })
	}
	fmt.Fprintf(stderr, "unknown command %q\n", cmd)
	global.Usage()
	return errUsage
}

func loadSettings(opts options) (*config.Settings, error) {
	var (
		settings *config.Settings
		err      error
	)
	if opts.configPath != "" {
		settings, err = config.Load(opts.configPath)
	} else {
		settings, err = config.LoadFromEnv()
	}
	if err != nil {
		return nil, err
	}

	if opts.baseURL != "" {
		settings.SetBaseURL(opts.baseURL)
	}
	if opts.version != "" {
		if err := settings.SetVersion(opts.version); err != nil {
			return nil, err
		}
	}
	if opts.cacheDir != "" {
		settings.SetCacheDir(opts.cacheDir)
	}
	if opts.force {
		settings.SetForceDownload(true)
	}
	return settings, nil
}

// services are the long-lived components a command needs
type services struct {
	settings   *config.Settings
	index      *cache.Index
	downloader *download.Service
	builder    *dataset.Builder
}

func withServices(settings *config.Settings, fn func(*services) error) error {
	cacheDir := settings.GetCacheDir()
	if err := platform.CreateDirectoryIfNotExists(cacheDir); err != nil {
		return fmt.Errorf("failed to ensure cache dir: %w", err)
	}

	index, err := cache.Open(settings.GetCacheIndexPath())
	if err != nil {
		return err
	}
	defer index.Close()

	downloader := download.NewService(cacheDir, index, settings.GetMaxParallelDownloads())
	downloader.SetRetries(settings.GetRetries())
	downloader.SetForce(settings.GetForceDownload())
	downloader.SetUpdateCallback(func(task *model.DownloadTask) {
		if task.Status.IsFinished() {
			log.Printf("%s: %s (%s)", task.GetDisplayName(), task.Status, task.OutputPath)
		}
	})

	return fn(&services{
		settings:   settings,
		index:      index,
		downloader: downloader,
		builder:    dataset.NewBuilder(downloader, settings.BuilderConfig()),
	})
}

func runURLs(settings *config.Settings, stdout io.Writer) error {
	b := dataset.NewBuilder(nil, settings.BuilderConfig())
	locs, err := b.Locators()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, key := range locs.Keys() {
		fmt.Fprintf(tw, "%s\t%s\n", key, locs[key])
	}
	return tw.Flush()
}

func runInfo(settings *config.Settings, stdout io.Writer) error {
	b := dataset.NewBuilder(nil, settings.BuilderConfig())
	return writeJSON(stdout, b.Info())
}

func runFetch(ctx context.Context, s *services, stdout io.Writer) error {
	gens, err := s.builder.SplitGenerators(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, gen := range gens {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", gen.Split, gen.ImagesPath, gen.AnnotationsPath)
	}
	return tw.Flush()
}

// recordLine is the load output; the image is summarized by its shape
type recordLine struct {
	Index     int                `json:"index"`
	ImageName string             `json:"image_name"`
	Image     *imageSummary      `json:"image"`
	Litter    []model.LitterItem `json:"litter"`
}

type imageSummary struct {
	Shape [3]int `json:"shape"`
}

func runLoad(ctx context.Context, s *services, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	fs.SetOutput(stderr)
	splitName := fs.String("split", string(model.SplitTrain), "split to load (train, validation, test)")
	limit := fs.Int("limit", 0, "stop after this many records (0 = all)")
	noImages := fs.Bool("no-images", false, "skip image decoding")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	split, err := model.ParseSplit(*splitName)
	if err != nil {
		return err
	}
	gen, err := s.builder.Split(ctx, split)
	if err != nil {
		return err
	}
	ex, err := gen.Examples(dataset.WithImageDecoding(!*noImages))
	if err != nil {
		return err
	}
	defer ex.Close()

	features := s.builder.Info().Features
	enc := json.NewEncoder(stdout)
	for idx, rec := range ex.All() {
		if err := features.Validate(rec, *noImages); err != nil {
			return fmt.Errorf("record %d: %w", idx, err)
		}
		line := recordLine{Index: idx, ImageName: rec.ImageName, Litter: rec.Litter}
		if rec.Image != nil {
			line.Image = &imageSummary{Shape: rec.Image.Shape()}
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
		// Stop before the archives are read past the last wanted record
		if *limit > 0 && idx+1 >= *limit {
			break
		}
	}
	return ex.Err()
}

func runStats(ctx context.Context, s *services, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	splitName := fs.String("split", "", "split to summarize (default all)")
	plotDir := fs.String("plots", "", "write PNG charts to this directory")
	withImages := fs.Bool("images", false, "decode images to report their sizes")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	splits := model.Splits()
	if *splitName != "" {
		split, err := model.ParseSplit(*splitName)
		if err != nil {
			return err
		}
		splits = []model.Split{split}
	}

	summaries := make(map[model.Split]stats.Summary, len(splits))
	for _, split := range splits {
		gen, err := s.builder.Split(ctx, split)
		if err != nil {
			return err
		}
		ex, err := gen.Examples(dataset.WithImageDecoding(*withImages))
		if err != nil {
			return err
		}

		acc := stats.NewAccumulator()
		for _, rec := range ex.All() {
			acc.Add(rec)
		}
		err = ex.Err()
		ex.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", split, err)
		}
		summaries[split] = acc.Summary()

		if *plotDir != "" {
			paths, err := acc.SavePlots(filepath.Join(*plotDir, string(split)), string(split))
			if err != nil {
				return err
			}
			for _, p := range paths {
				log.Printf("wrote %s", p)
			}
		}
	}
	return writeJSON(stdout, summaries)
}

func runExport(ctx context.Context, s *services, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	splitName := fs.String("split", string(model.SplitTrain), "split to export")
	outDir := fs.String("out", "", "output directory")
	maxSide := fs.Int("max-side", 0, "downscale images to at most this many pixels per side")
	previews := fs.Bool("previews", false, "write PNG previews with boxes drawn")
	reveal := fs.Bool("reveal", false, "open the output directory when done")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *outDir == "" {
		fmt.Fprintln(stderr, "export: -out is required")
		fs.PrintDefaults()
		return errUsage
	}

	split, err := model.ParseSplit(*splitName)
	if err != nil {
		return err
	}
	gen, err := s.builder.Split(ctx, split)
	if err != nil {
		return err
	}
	ex, err := gen.Examples()
	if err != nil {
		return err
	}
	defer ex.Close()

	w := export.NewWriter(*outDir, export.Options{MaxSide: *maxSide, Previews: *previews})
	res, err := w.WriteSplit(split, ex.All())
	if err != nil {
		return err
	}
	if err := ex.Err(); err != nil {
		return err
	}

	if *reveal {
		if err := platform.RevealInFileManager(*outDir); err != nil {
			log.Printf("failed to reveal %s: %v", *outDir, err)
		}
	}
	return writeJSON(stdout, res)
}

func runCache(s *services, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("cache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	prune := fs.Bool("prune", false, "forget entries whose files are missing or truncated")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	entries, err := s.index.List()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	for _, e := range entries {
		state := "ok"
		if !e.Valid() {
			state = "stale"
			if *prune {
				if err := s.index.Delete(e.URL); err != nil {
					return err
				}
				state = "pruned"
			}
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", state, e.Size, e.URL, e.Path)
	}
	return tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
