package adjust

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/datomi79/Earth-ain-t-Flat-IROS18/problems"
)

// MultiViewSolution is a decoded multi-view estimate.
type MultiViewSolution struct {
	Lambdas []float64
	Poses   problems.PoseSet
}

// MultiViewAdjustment jointly solves the shared deformation coefficients and one pose per
// view.
//
// Parameters: the coefficients, then angle-axis rotation (3) and translation (3) for each
// view in order. Observation j of every view is matched to keypoint j.
type MultiViewAdjustment struct {
	problem *problems.MultiViewShapeAndPoseProblem
	opts    Options
	layout  blockBuilder
	initial []float64
}

// NewMultiViewAdjustment builds the residuals of a multi-view problem. It fails when a
// view has more observations than the basis has keypoints.
func NewMultiViewAdjustment(p *problems.MultiViewShapeAndPoseProblem, opts Options) (*MultiViewAdjustment, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	if p.NumObs() > p.NumPts() {
		return nil, errors.Errorf("%d observations per view but only %d keypoints", p.NumObs(), p.NumPts())
	}
	a := &MultiViewAdjustment{problem: p, opts: opts}
	for v := 0; v < p.NumViews(); v++ {
		for j := 0; j < p.NumObs(); j++ {
			a.layout.add(Reprojection, v, j, 2)
		}
	}
	if opts.LambdaWeight > 0 {
		for i := 0; i < p.NumVec(); i++ {
			a.layout.add(LambdaPrior, -1, i, 1)
		}
	}

	a.initial = make([]float64, p.NumVec()+6*p.NumViews())
	copy(a.initial, p.Lambdas())
	poses := p.Poses()
	for v := 0; v < poses.Len(); v++ {
		putPose(a.initial[a.poseOffset(v):], poses.At(v))
	}
	return a, nil
}

func (a *MultiViewAdjustment) poseOffset(view int) int {
	return a.problem.NumVec() + 6*view
}

// NumParams implements Problem.
func (a *MultiViewAdjustment) NumParams() int { return len(a.initial) }

// NumResiduals implements Problem.
func (a *MultiViewAdjustment) NumResiduals() int { return a.layout.size }

// Initial implements Problem.
func (a *MultiViewAdjustment) Initial() []float64 { return slices.Clone(a.initial) }

// Blocks implements Problem.
func (a *MultiViewAdjustment) Blocks() []Block { return slices.Clone(a.layout.blocks) }

// Residuals implements Problem.
func (a *MultiViewAdjustment) Residuals(dst, params []float64) {
	lambdas := params[:a.problem.NumVec()]
	k := a.problem.K()
	obs := a.problem.ObservationSet()
	poses := make([]problems.Pose, a.problem.NumViews())
	for v := range poses {
		poses[v] = poseParams(params[a.poseOffset(v):])
	}
	for _, b := range a.layout.blocks {
		out := dst[b.Offset : b.Offset+b.Size]
		switch b.Kind {
		case Reprojection:
			x := a.problem.Keypoint(b.View, b.Index, lambdas)
			reprojection(out, k, poses[b.View], x, obs.At(b.View, b.Index), obs.Weight(b.View, b.Index))
		case LambdaPrior:
			out[0] = a.opts.LambdaWeight * lambdas[b.Index]
		}
	}
}

// Decode returns the coefficients and poses encoded in params.
func (a *MultiViewAdjustment) Decode(params []float64) MultiViewSolution {
	poses := make([]problems.Pose, a.problem.NumViews())
	for v := range poses {
		poses[v] = poseParams(params[a.poseOffset(v):])
	}
	return MultiViewSolution{
		Lambdas: slices.Clone(params[:a.problem.NumVec()]),
		Poses:   problems.NewPoseSet(poses...),
	}
}
