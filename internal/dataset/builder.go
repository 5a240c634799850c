package dataset

import (
	"context"
	"fmt"
	"io"

	"github.com/ytget/plastic-in-river/internal/annotation"
	"github.com/ytget/plastic-in-river/internal/compress"
	"github.com/ytget/plastic-in-river/internal/model"
)

// Downloader fetches every URL of the mapping and returns local paths under
// the same keys.
type Downloader interface {
	Download(ctx context.Context, urls map[string]string) (map[string]string, error)
}

// BuilderConfig selects the release and loading behaviour
type BuilderConfig struct {
	BaseURL        string
	Version        string
	Pairing        Pairing
	AnnotationMode annotation.Mode
}

// Builder resolves, downloads and loads the dataset splits
type Builder struct {
	downloader Downloader
	cfg        BuilderConfig
}

// NewBuilder creates a builder; an empty version means CurrentVersion
func NewBuilder(downloader Downloader, cfg BuilderConfig) *Builder {
	if cfg.Version == "" {
		cfg.Version = CurrentVersion
	}
	return &Builder{downloader: downloader, cfg: cfg}
}

// Info returns the dataset description for the configured version
func (b *Builder) Info() DatasetInfo {
	return NewInfo(b.cfg.Version)
}

// Locators resolves the six archive URLs of the configured version
func (b *Builder) Locators() (Locators, error) {
	return ResolveLocators(b.cfg.BaseURL, b.cfg.Version)
}

// SplitGenerator holds the local archives of one split
type SplitGenerator struct {
	Split           model.Split
	ImagesPath      string
	AnnotationsPath string

	opts []Option
}

// SplitGenerators downloads all archives and returns one generator per split,
// in train, test, validation order.
func (b *Builder) SplitGenerators(ctx context.Context) ([]SplitGenerator, error) {
	locs, err := b.Locators()
	if err != nil {
		return nil, err
	}

	paths, err := b.downloader.Download(ctx, locs)
	if err != nil {
		return nil, err
	}

	gens := make([]SplitGenerator, 0, len(model.Splits()))
	for _, split := range model.Splits() {
		gen, err := b.generator(split, paths)
		if err != nil {
			return nil, err
		}
		gens = append(gens, gen)
	}
	return gens, nil
}

// Split downloads and returns the generator of a single split
func (b *Builder) Split(ctx context.Context, split model.Split) (*SplitGenerator, error) {
	if _, err := model.ParseSplit(string(split)); err != nil {
		return nil, err
	}
	locs, err := b.Locators()
	if err != nil {
		return nil, err
	}

	urls := map[string]string{}
	for _, kind := range model.ResourceKinds() {
		key := model.ResourceKey(split, kind)
		urls[key] = locs[key]
	}

	paths, err := b.downloader.Download(ctx, urls)
	if err != nil {
		return nil, err
	}

	gen, err := b.generator(split, paths)
	if err != nil {
		return nil, err
	}
	return &gen, nil
}

func (b *Builder) generator(split model.Split, paths map[string]string) (SplitGenerator, error) {
	images, ok := paths[model.ResourceKey(split, model.KindImages)]
	if !ok {
		return SplitGenerator{}, fmt.Errorf("downloader returned no %s archive", model.ResourceKey(split, model.KindImages))
	}
	annotations, ok := paths[model.ResourceKey(split, model.KindAnnotations)]
	if !ok {
		return SplitGenerator{}, fmt.Errorf("downloader returned no %s archive", model.ResourceKey(split, model.KindAnnotations))
	}

	return SplitGenerator{
		Split:           split,
		ImagesPath:      images,
		AnnotationsPath: annotations,
		opts: []Option{
			WithPairing(b.cfg.Pairing),
			WithAnnotationMode(b.cfg.AnnotationMode),
		},
	}, nil
}

// Examples opens both archives and starts a new traversal. Extra options
// override the builder configuration. The caller must Close the result.
func (g SplitGenerator) Examples(opts ...Option) (*Examples, error) {
	images, err := compress.Open(g.ImagesPath)
	if err != nil {
		return nil, fmt.Errorf("%s images: %w", g.Split, err)
	}
	annotations, err := compress.Open(g.AnnotationsPath)
	if err != nil {
		images.Close()
		return nil, fmt.Errorf("%s annotations: %w", g.Split, err)
	}

	all := append(append([]Option{}, g.opts...), opts...)
	ex := Load(images, annotations, all...)
	ex.closers = []io.Closer{images, annotations}
	return ex, nil
}
