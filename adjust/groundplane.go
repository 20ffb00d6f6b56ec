package adjust

import (
	"slices"

	"github.com/golang/geo/r3"

	"github.com/datomi79/Earth-ain-t-Flat-IROS18/problems"
)

// GroundPlaneSolution is a decoded ground plane estimate.
type GroundPlaneSolution struct {
	Points problems.PointSet
	Plane  problems.GroundPlane
}

// GroundPlaneAdjustment refines the shared 3D points, and optionally the plane, with the
// camera poses held fixed.
//
// Parameters: the points (3 per point), then the plane (4) when Options.FreePlane is set.
// Each point contributes one reprojection block per view and, when Options.PlaneWeight is
// positive, one plane distance block.
type GroundPlaneAdjustment struct {
	problem *problems.GroundPlaneProblem
	opts    Options
	layout  blockBuilder
	initial []float64
}

// NewGroundPlaneAdjustment builds the residuals of a ground plane problem.
func NewGroundPlaneAdjustment(p *problems.GroundPlaneProblem, opts Options) (*GroundPlaneAdjustment, error) {
	if err := opts.check(); err != nil {
		return nil, err
	}
	a := &GroundPlaneAdjustment{problem: p, opts: opts}
	for v := 0; v < p.NumViews(); v++ {
		for j := 0; j < p.NumPts(); j++ {
			a.layout.add(Reprojection, v, j, 2)
		}
	}
	if opts.PlaneWeight > 0 {
		for j := 0; j < p.NumPts(); j++ {
			a.layout.add(PlaneDistance, -1, j, 1)
		}
	}

	a.initial = p.Points3D()
	if opts.FreePlane {
		plane := p.Plane()
		a.initial = append(a.initial, plane[:]...)
	}
	return a, nil
}

// NumParams implements Problem.
func (a *GroundPlaneAdjustment) NumParams() int { return len(a.initial) }

// NumResiduals implements Problem.
func (a *GroundPlaneAdjustment) NumResiduals() int { return a.layout.size }

// Initial implements Problem.
func (a *GroundPlaneAdjustment) Initial() []float64 { return slices.Clone(a.initial) }

// Blocks implements Problem.
func (a *GroundPlaneAdjustment) Blocks() []Block { return slices.Clone(a.layout.blocks) }

// Residuals implements Problem.
func (a *GroundPlaneAdjustment) Residuals(dst, params []float64) {
	plane := a.plane(params)
	k := a.problem.K()
	poses := a.problem.Poses()
	obs := a.problem.ObservationSet()
	for _, b := range a.layout.blocks {
		out := dst[b.Offset : b.Offset+b.Size]
		x := point(params, b.Index)
		switch b.Kind {
		case Reprojection:
			reprojection(out, k, poses.At(b.View), x, obs.At(b.View, b.Index), 1)
		case PlaneDistance:
			out[0] = a.opts.PlaneWeight * plane.SignedDistance(x)
		}
	}
}

// Decode returns the points and plane encoded in params. A free plane is rescaled to a
// unit normal.
func (a *GroundPlaneAdjustment) Decode(params []float64) (GroundPlaneSolution, error) {
	n := a.problem.NumPts()
	points, err := problems.NewPointSet(1, n, slices.Clone(params[:3*n]))
	if err != nil {
		return GroundPlaneSolution{}, err
	}
	plane := a.plane(params)
	if a.opts.FreePlane {
		if norm := plane.Normal().Norm(); norm > 0 {
			for i := range plane {
				plane[i] /= norm
			}
		}
	}
	return GroundPlaneSolution{Points: points, Plane: plane}, nil
}

func (a *GroundPlaneAdjustment) plane(params []float64) problems.GroundPlane {
	if !a.opts.FreePlane {
		return a.problem.Plane()
	}
	off := 3 * a.problem.NumPts()
	return problems.GroundPlane(params[off : off+4])
}

func point(params []float64, j int) r3.Vector {
	return r3.Vector{X: params[3*j], Y: params[3*j+1], Z: params[3*j+2]}
}
