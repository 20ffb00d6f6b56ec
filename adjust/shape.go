package adjust

import (
	"slices"

	"github.com/datomi79/Earth-ain-t-Flat-IROS18/problems"
)

// ShapeAdjustment recovers the deformation coefficients of one view given a prior pose.
//
// Parameters: the coefficients, then angle-axis rotation (3) and translation (3) when
// Options.RefinePose is set. Otherwise the prior pose is held fixed.
type ShapeAdjustment struct {
	problem *problems.ShapeProblem
	opts    Options
	layout  blockBuilder
	initial []float64
}

// NewShapeAdjustment builds the residuals of a shape problem.
func NewShapeAdjustment(p *problems.ShapeProblem, opts Options) (*ShapeAdjustment, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	a := &ShapeAdjustment{problem: p, opts: opts}
	for j := 0; j < p.NumPts(); j++ {
		a.layout.add(Reprojection, 0, j, 2)
	}
	if opts.LambdaWeight > 0 {
		for i := 0; i < p.NumVec(); i++ {
			a.layout.add(LambdaPrior, -1, i, 1)
		}
	}

	a.initial = p.Lambdas()
	if opts.RefinePose {
		pose := make([]float64, 6)
		putPose(pose, p.Pose())
		a.initial = append(a.initial, pose...)
	}
	return a, nil
}

// NumParams implements Problem.
func (a *ShapeAdjustment) NumParams() int { return len(a.initial) }

// NumResiduals implements Problem.
func (a *ShapeAdjustment) NumResiduals() int { return a.layout.size }

// Initial implements Problem.
func (a *ShapeAdjustment) Initial() []float64 { return slices.Clone(a.initial) }

// Blocks implements Problem.
func (a *ShapeAdjustment) Blocks() []Block { return slices.Clone(a.layout.blocks) }

// Residuals implements Problem.
func (a *ShapeAdjustment) Residuals(dst, params []float64) {
	sol := a.Decode(params)
	k := a.problem.K()
	obs := a.problem.ObservationSet()
	for _, b := range a.layout.blocks {
		out := dst[b.Offset : b.Offset+b.Size]
		switch b.Kind {
		case Reprojection:
			x := a.problem.Keypoint(b.Index, sol.Lambdas)
			reprojection(out, k, sol.Pose, x, obs.At(0, b.Index), obs.Weight(0, b.Index))
		case LambdaPrior:
			out[0] = a.opts.LambdaWeight * sol.Lambdas[b.Index]
		}
	}
}

// Decode returns the coefficients and pose encoded in params.
func (a *ShapeAdjustment) Decode(params []float64) PoseSolution {
	numVec := a.problem.NumVec()
	sol := PoseSolution{Lambdas: slices.Clone(params[:numVec]), Pose: a.problem.Pose()}
	if a.opts.RefinePose {
		sol.Pose = poseParams(params[numVec : numVec+6])
	}
	return sol
}
