package gradients

import (
	"context"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/childmindresearch/ba-timeseries-gradients/internal/embed"
)

// denseNodeLimit is the node count above which the dense decompositions
// behind every embedding need gigabytes of memory and hours of CPU
const denseNodeLimit = 5000

// Output is the group connectivity matrix and its gradient map
type Output struct {
	Connectivity *mat.Dense
	Gradients    *mat.Dense
	Lambdas      []float64
}

// Compute builds the group connectivity of files and fits gradients to it
func (b *Builder) Compute(ctx context.Context, files []string, parcellation string, opts embed.Options) (*Output, error) {
	b.logger.Info("Computing connectivity matrix...", zap.Int("files", len(files)))
	conn, err := b.ConnectivityMatrix(ctx, files, parcellation)
	if err != nil {
		return nil, err
	}

	nodes, _ := conn.Dims()
	b.warnSize(nodes, opts)

	b.logger.Info("Computing gradients...",
		zap.String("approach", string(opts.Approach)),
		zap.String("kernel", string(opts.Kernel)),
		zap.Int("nodes", nodes))
	res, err := embed.Fit(b.pipeline(), conn, opts)
	if err != nil {
		return nil, err
	}

	return &Output{
		Connectivity: conn,
		Gradients:    res.Gradients,
		Lambdas:      res.Lambdas,
	}, nil
}

func (b *Builder) warnSize(nodes int, opts embed.Options) {
	if opts.NComponents >= nodes && nodes > 1 {
		b.logger.Warn("Requested more components than the connectivity matrix supports",
			zap.Int("requested", opts.NComponents), zap.Int("using", nodes-1))
	}
	if nodes > denseNodeLimit {
		b.logger.Warn("Connectivity matrix is large for a dense decomposition; consider a parcellation",
			zap.Int("nodes", nodes), zap.Int("limit", denseNodeLimit))
	}
}
