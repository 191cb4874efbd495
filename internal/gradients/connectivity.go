// Package gradients turns a collection of timeseries files into a group
// connectivity matrix and a gradient map.
package gradients

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/calc"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/errs"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/image"
	"github.com/childmindresearch/ba-timeseries-gradients/internal/logs"
)

// Loader reads one image file
type Loader func(path string) (*image.Volume, error)

// Builder computes group connectivity matrices
type Builder struct {
	logger    *zap.Logger
	load      Loader
	workers   int
	loaders   int
	queueSize int
}

// Option customises a Builder
type Option func(*Builder)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(b *Builder) { b.logger = logs.OrNop(logger) }
}

// WithLoader replaces the image loader
func WithLoader(load Loader) Option {
	return func(b *Builder) { b.load = load }
}

// WithWorkers sets the number of row workers; zero or less uses one per CPU
func WithWorkers(n int) Option {
	return func(b *Builder) { b.workers = n }
}

// WithLoaders sets how many files are read concurrently and how many loaded
// files may wait for the compute stage
func WithLoaders(loaders int, queueSize int) Option {
	return func(b *Builder) {
		if loaders > 0 {
			b.loaders = loaders
		}
		if queueSize > 0 {
			b.queueSize = queueSize
		}
	}
}

// NewBuilder returns a Builder that reads NIfTI and GIFTI files
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		logger:    zap.NewNop(),
		load:      image.Load,
		loaders:   2,
		queueSize: 2,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) pipeline() *calc.PipeLine {
	return calc.Init(b.queueSize, b.workers)
}

// loadLabels reads and flattens a parcellation image
func (b *Builder) loadLabels(path string) ([]float64, error) {
	b.logger.Debug("Loading parcellation data...", zap.String("file", path))

	v, err := b.load(path)
	if err != nil {
		return nil, fmt.Errorf("loading parcellation: %w", err)
	}
	return v.Data, nil
}

// timeseries loads one file as a time-by-feature matrix, parcellated when labels is set
func (b *Builder) timeseries(path string, labels []float64) (*mat.Dense, error) {
	v, err := b.load(path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	ts, err := v.Squeeze().TimeByFeature()
	if err != nil {
		return nil, fmt.Errorf("reshaping %s: %w", path, err)
	}

	if labels != nil {
		b.logger.Debug("Parcellating timeseries...", zap.String("file", path))
		ts, err = ParcellateTimeseries(ts, labels)
		if err != nil {
			return nil, err
		}
	}

	return ts, nil
}

// ConnectivityMatrix returns the group connectivity of files: each file's
// feature-by-feature correlation is Fisher z-transformed, the z-matrices are
// averaged and the mean is transformed back. parcellation may be empty.
func (b *Builder) ConnectivityMatrix(ctx context.Context, files []string, parcellation string) (*mat.Dense, error) {
	if len(files) == 0 {
		return nil, errs.Input("No files provided.")
	}

	var labels []float64
	if parcellation != "" {
		var err error
		if labels, err = b.loadLabels(parcellation); err != nil {
			return nil, err
		}
	}

	pl := b.pipeline()
	ring := make([]*mat.Dense, pl.QueueSize())
	weight := 1 / float64(len(files))

	var group *mat.Dense

	g, gctx := errgroup.WithContext(ctx)

	names := make(chan int)
	g.Go(func() error {
		defer close(names)
		for i := range files {
			select {
			case names <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var loaders sync.WaitGroup
	for w := 0; w < b.loaders; w++ {
		loaders.Add(1)
		g.Go(func() error {
			defer loaders.Done()
			for i := range names {
				slot, err := pl.Malloc(gctx)
				if err != nil {
					return err
				}

				b.logger.Debug("Processing file...", zap.Int("index", i+1), zap.Int("total", len(files)), zap.String("file", files[i]))
				ts, err := b.timeseries(files[i], labels)
				if err != nil {
					pl.Free(slot)
					return err
				}

				ring[slot] = ts
				pl.Push(slot)
			}
			return nil
		})
	}

	g.Go(func() error {
		loaders.Wait()
		pl.Close()
		return nil
	})

	g.Go(func() error {
		for {
			slot, ok := pl.Pop()
			if !ok {
				return nil
			}

			err := b.accumulate(gctx, pl, ring[slot], &group, weight)
			ring[slot] = nil
			pl.Free(slot)
			if err != nil {
				return err
			}
		}
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	pushed, popped := pl.Counts()
	b.logger.Debug("Connectivity pipeline drained", zap.Int64("pushed", pushed), zap.Int64("popped", popped))

	if err := pl.InverseFisherZ(group, group); err != nil {
		return nil, err
	}
	return group, nil
}

// accumulate adds weight * arctanh(corr(ts)) to the group matrix, creating it on first use
func (b *Builder) accumulate(ctx context.Context, pl *calc.PipeLine, ts *mat.Dense, group **mat.Dense, weight float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	corr, err := pl.Correlation(ts)
	if err != nil {
		return err
	}
	if err := pl.FisherZ(corr, corr); err != nil {
		return err
	}

	features, _ := corr.Dims()
	if *group == nil {
		*group = mat.NewDense(features, features, nil)
	}
	if n, _ := (*group).Dims(); n != features {
		return errs.Input("timeseries files disagree on the number of features (%d and %d)", n, features)
	}

	return pl.Acc(corr, *group, weight)
}
