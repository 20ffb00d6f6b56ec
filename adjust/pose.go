package adjust

import (
	"slices"

	"github.com/datomi79/Earth-ain-t-Flat-IROS18/problems"
)

// PoseSolution is a decoded single view pose estimate.
type PoseSolution struct {
	Pose    problems.Pose
	Lambdas []float64
}

// PoseAdjustment recovers one view's pose from the deformed mean shape.
//
// Parameters: angle-axis rotation (3), translation (3), then the coefficients when
// Options.FreeLambdas is set. The pose starts at the identity rotation with the
// translation at the car center.
type PoseAdjustment struct {
	problem *problems.PoseProblem
	opts    Options
	layout  blockBuilder
	initial []float64
}

// NewPoseAdjustment builds the residuals of a pose problem.
func NewPoseAdjustment(p *problems.PoseProblem, opts Options) (*PoseAdjustment, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	a := &PoseAdjustment{problem: p, opts: opts}
	for j := 0; j < p.NumPts(); j++ {
		a.layout.add(Reprojection, 0, j, 2)
	}
	if opts.FreeLambdas && opts.LambdaWeight > 0 {
		for i := 0; i < p.NumVec(); i++ {
			a.layout.add(LambdaPrior, -1, i, 1)
		}
	}

	pose := problems.IdentityPose()
	center := p.CarCenter()
	pose.Translation = [3]float64{center.X, center.Y, center.Z}
	a.initial = make([]float64, 6, a.NumParams())
	putPose(a.initial, pose)
	if opts.FreeLambdas {
		a.initial = append(a.initial, p.Lambdas()...)
	}
	return a, nil
}

// NumParams implements Problem.
func (a *PoseAdjustment) NumParams() int {
	if a.opts.FreeLambdas {
		return 6 + a.problem.NumVec()
	}
	return 6
}

// NumResiduals implements Problem.
func (a *PoseAdjustment) NumResiduals() int { return a.layout.size }

// Initial implements Problem.
func (a *PoseAdjustment) Initial() []float64 { return slices.Clone(a.initial) }

// Blocks implements Problem.
func (a *PoseAdjustment) Blocks() []Block { return slices.Clone(a.layout.blocks) }

// Residuals implements Problem.
func (a *PoseAdjustment) Residuals(dst, params []float64) {
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

// Decode returns the pose and coefficients encoded in params. Fixed coefficients come
// from the problem.
func (a *PoseAdjustment) Decode(params []float64) PoseSolution {
	sol := PoseSolution{Pose: poseParams(params)}
	if a.opts.FreeLambdas {
		sol.Lambdas = slices.Clone(params[6 : 6+a.problem.NumVec()])
	} else {
		sol.Lambdas = a.problem.Lambdas()
	}
	return sol
}
