package adjust

import (
	"math"
	"slices"

	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// BlockStats summarizes the residual norms of one kind of block.
type BlockStats struct {
	Kind   BlockKind
	Count  int
	Mean   float64
	Median float64
	Max    float64
	RMS    float64
}

// Summary describes the residuals of a problem at one parameter vector.
type Summary struct {
	Cost   float64
	ByKind []BlockStats
}

// Summarize evaluates p at params and summarizes the per-block residual norms by kind.
func Summarize(p Problem, params []float64) (Summary, error) {
	if len(params) != p.NumParams() {
		return Summary{}, errors.Errorf("parameters have length %d, expected %d", len(params), p.NumParams())
	}
	resid := make([]float64, p.NumResiduals())
	p.Residuals(resid, params)

	summary := Summary{Cost: halfSquaredNorm(resid)}
	byKind := lo.GroupBy(p.Blocks(), func(b Block) BlockKind { return b.Kind })
	kinds := lo.Keys(byKind)
	slices.Sort(kinds)
	for _, kind := range kinds {
		norms := lo.Map(byKind[kind], func(b Block, _ int) float64 {
			return math.Sqrt(2 * halfSquaredNorm(resid[b.Offset:b.Offset+b.Size]))
		})
		bs, err := blockStats(kind, norms)
		if err != nil {
			return Summary{}, err
		}
		summary.ByKind = append(summary.ByKind, bs)
	}
	return summary, nil
}

func blockStats(kind BlockKind, norms stats.Float64Data) (BlockStats, error) {
	mean, err := norms.Mean()
	if err != nil {
		return BlockStats{}, errors.Wrapf(err, "%s residuals", kind)
	}
	median, err := norms.Median()
	if err != nil {
		return BlockStats{}, errors.Wrapf(err, "%s residuals", kind)
	}
	maxNorm, err := norms.Max()
	if err != nil {
		return BlockStats{}, errors.Wrapf(err, "%s residuals", kind)
	}
	meanSquare, err := stats.Mean(lo.Map(norms, func(n float64, _ int) float64 { return n * n }))
	if err != nil {
		return BlockStats{}, errors.Wrapf(err, "%s residuals", kind)
	}
	return BlockStats{
		Kind:   kind,
		Count:  len(norms),
		Mean:   mean,
		Median: median,
		Max:    maxNorm,
		RMS:    math.Sqrt(meanSquare),
	}, nil
}

func halfSquaredNorm(r []float64) float64 {
	s := 0.0
	for _, v := range r {
		s += v * v
	}
	return s / 2
}
